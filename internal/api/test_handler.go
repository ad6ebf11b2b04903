package api

import (
	"log"
	"net/http"

	"github.com/vdavid/draftmail/internal/models"
)

// OutboxLister lists the messages a test transport has captured.
type OutboxLister interface {
	List() ([]models.OutboxEntry, error)
}

// OutboxListerFunc adapts a function to OutboxLister.
type OutboxListerFunc func() ([]models.OutboxEntry, error)

// List calls f.
func (f OutboxListerFunc) List() ([]models.OutboxEntry, error) {
	return f()
}

// TestHandler handles test-only endpoints for E2E tests.
type TestHandler struct {
	outbox OutboxLister
}

// NewTestHandler creates a new TestHandler instance.
func NewTestHandler(outbox OutboxLister) *TestHandler {
	return &TestHandler{outbox: outbox}
}

// GetOutbox returns every message delivered so far.
// This is only available in test mode.
func (h *TestHandler) GetOutbox(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	entries, err := h.outbox.List()
	if err != nil {
		log.Printf("TestHandler: Failed to list outbox: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse("Failed to list outbox", err.Error(), nil), "TestHandler")
		return
	}

	writeJSON(w, http.StatusOK, entries, "TestHandler")
}
