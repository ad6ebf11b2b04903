package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vdavid/draftmail/internal/compose"
	"github.com/vdavid/draftmail/internal/delivery"
	"github.com/vdavid/draftmail/internal/models"
	"github.com/vdavid/draftmail/internal/testutil"
)

func getOutbox(t *testing.T, handler *TestHandler) *httptest.ResponseRecorder {
	t.Helper()

	rr := httptest.NewRecorder()
	handler.GetOutbox(rr, httptest.NewRequest(http.MethodGet, "/test/outbox", nil))
	return rr
}

func TestTestHandler_GetOutbox(t *testing.T) {
	t.Run("lists messages captured by the SMTP sink", func(t *testing.T) {
		server := testutil.NewTestSMTPServer(t)
		msg, err := newTestAssembler().Assemble("a@x.com", "Quarterly update", compose.FormatDraft("Hello\n\nBye"))
		require.NoError(t, err)
		require.NoError(t, newSMTPSender(t, server.Host(), server.Port()).Send(context.Background(), msg))

		rr := getOutbox(t, NewTestHandler(OutboxListerFunc(server.Outbox)))

		require.Equal(t, http.StatusOK, rr.Code)
		entries := decodeResponse[[]models.OutboxEntry](t, rr)
		require.Len(t, entries, 1)
		assert.Equal(t, msg.MessageID(), entries[0].MessageID)
		assert.Equal(t, "Quarterly update", entries[0].Subject)
		assert.Equal(t, []string{"a@x.com"}, entries[0].To)
		assert.Equal(t, []string{"a@x.com", testOperationalBCC}, entries[0].Envelope)
		assert.Contains(t, entries[0].Text, "Hello")
		assert.False(t, entries[0].CapturedAt.IsZero())
	})

	t.Run("lists messages saved by the dev sender", func(t *testing.T) {
		sender, err := delivery.NewDevSender(t.TempDir())
		require.NoError(t, err)
		msg, err := newTestAssembler().Assemble("a@x.com", "Saved", compose.FormatDraft("Hello"))
		require.NoError(t, err)
		require.NoError(t, sender.Send(context.Background(), msg))

		rr := getOutbox(t, NewTestHandler(sender))

		require.Equal(t, http.StatusOK, rr.Code)
		entries := decodeResponse[[]models.OutboxEntry](t, rr)
		require.Len(t, entries, 1)
		assert.Equal(t, "Saved", entries[0].Subject)
	})

	t.Run("empty outbox is an empty array", func(t *testing.T) {
		server := testutil.NewTestSMTPServer(t)

		rr := getOutbox(t, NewTestHandler(OutboxListerFunc(server.Outbox)))

		require.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, "[]", rr.Body.String())
	})

	t.Run("lister failure", func(t *testing.T) {
		handler := NewTestHandler(OutboxListerFunc(func() ([]models.OutboxEntry, error) {
			return nil, errors.New("disk on fire")
		}))

		rr := getOutbox(t, handler)

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		resp := decodeResponse[models.ErrorResponse](t, rr)
		assert.Equal(t, "Failed to list outbox", resp.Error)
	})

	t.Run("only GET is allowed", func(t *testing.T) {
		handler := NewTestHandler(OutboxListerFunc(func() ([]models.OutboxEntry, error) {
			return nil, nil
		}))

		rr := httptest.NewRecorder()
		handler.GetOutbox(rr, httptest.NewRequest(http.MethodPost, "/test/outbox", nil))

		assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	})
}
