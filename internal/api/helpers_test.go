package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vdavid/draftmail/internal/compose"
	"github.com/vdavid/draftmail/internal/delivery"
	"github.com/vdavid/draftmail/internal/llm"
	"github.com/vdavid/draftmail/internal/testutil"
)

const testOperationalBCC = "audit@acme.test"

func newTestAssembler() *compose.Assembler {
	return compose.NewAssembler(compose.AssemblerConfig{
		FromName:       "Acme Mailer",
		FromAddress:    "mailer@acme.test",
		OperationalBCC: testOperationalBCC,
	})
}

func newTestCompleter(model *testutil.ModelServer) *llm.Client {
	return llm.NewClient(llm.Config{
		APIKey:  "gsk_test",
		BaseURL: model.URL,
		Timeout: 5 * time.Second,
	})
}

func newSMTPSender(t *testing.T, host string, port int) *delivery.SMTPSender {
	t.Helper()

	sender, err := delivery.NewSMTPSender(delivery.SMTPConfig{
		Host:     host,
		Port:     port,
		Username: testutil.SMTPUsername,
		Password: testutil.SMTPPassword,
		TLSMode:  delivery.TLSModeNone,
		Timeout:  5 * time.Second,
	})
	require.NoError(t, err)
	return sender
}

func postJSON(t *testing.T, handler http.HandlerFunc, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	switch v := body.(type) {
	case string:
		buf.WriteString(v)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(v))
	}

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler(rr, req)
	return rr
}

func decodeResponse[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v), "body: %s", rr.Body.String())
	return v
}
