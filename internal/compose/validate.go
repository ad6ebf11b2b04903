package compose

import "strings"

// Document is the part of the editor the validator needs.
type Document interface {
	IsEmpty() bool
}

// ValidateDispatch checks that recipients, subject and body are all present.
// Every missing field is reported in a single *ValidationError; inputs are never modified.
func ValidateDispatch(recipients, subject string, doc Document) error {
	var missing []string

	if len(ParseRecipients(recipients)) == 0 {
		missing = append(missing, FieldRecipients)
	}
	if strings.TrimSpace(subject) == "" {
		missing = append(missing, FieldSubject)
	}
	if doc == nil || doc.IsEmpty() {
		missing = append(missing, FieldBody)
	}

	if len(missing) > 0 {
		return &ValidationError{Fields: missing}
	}
	return nil
}
