package compose

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDocument struct {
	empty bool
}

func (d fakeDocument) IsEmpty() bool {
	return d.empty
}

func TestValidateDispatch_Matrix(t *testing.T) {
	for mask := 0; mask < 8; mask++ {
		hasRecipients := mask&1 != 0
		hasSubject := mask&2 != 0
		hasBody := mask&4 != 0

		t.Run(fmt.Sprintf("recipients=%v subject=%v body=%v", hasRecipients, hasSubject, hasBody), func(t *testing.T) {
			recipients, subject := " , ", "   "
			if hasRecipients {
				recipients = "a@x.com"
			}
			if hasSubject {
				subject = "Hello"
			}
			doc := fakeDocument{empty: !hasBody}

			err := ValidateDispatch(recipients, subject, doc)

			if hasRecipients && hasSubject && hasBody {
				assert.NoError(t, err)
				return
			}

			var validationErr *ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Equal(t, !hasRecipients, validationErr.Has(FieldRecipients))
			assert.Equal(t, !hasSubject, validationErr.Has(FieldSubject))
			assert.Equal(t, !hasBody, validationErr.Has(FieldBody))
		})
	}
}

func TestValidateDispatch_LeavesInputsUntouched(t *testing.T) {
	recipients := "  a@x.com ,"
	subject := "  "

	err := ValidateDispatch(recipients, subject, fakeDocument{})

	assert.Error(t, err)
	assert.Equal(t, "  a@x.com ,", recipients)
	assert.Equal(t, "  ", subject)
}

func TestValidateDispatch_NilDocumentIsEmpty(t *testing.T) {
	err := ValidateDispatch("a@x.com", "Hi", nil)

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, []string{FieldBody}, validationErr.Fields)
	assert.Equal(t, "missing required fields: body", validationErr.Error())
}
