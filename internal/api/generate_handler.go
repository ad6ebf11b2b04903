package api

import (
	"errors"
	"log"
	"net/http"

	"github.com/vdavid/draftmail/internal/compose"
	"github.com/vdavid/draftmail/internal/models"
)

// GenerateHandler handles draft generation requests.
type GenerateHandler struct {
	completer compose.Completer
}

// NewGenerateHandler creates a new GenerateHandler instance.
func NewGenerateHandler(completer compose.Completer) *GenerateHandler {
	return &GenerateHandler{completer: completer}
}

// Generate drafts an email from the prompt and returns it as formatted HTML.
func (h *GenerateHandler) Generate(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req models.GenerateEmailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		log.Printf("GenerateHandler: Failed to decode request: %v", err)
		writeJSON(w, http.StatusBadRequest, errorResponse("Invalid request body", "", nil), "GenerateHandler")
		return
	}

	html, err := compose.Draft(r.Context(), h.completer, req.Prompt)
	if err != nil {
		status, body := generateErrorResponse(err)
		log.Printf("GenerateHandler: Failed to generate draft (status %d): %v", status, err)
		writeJSON(w, status, body, "GenerateHandler")
		return
	}

	writeJSON(w, http.StatusOK, models.GenerateEmailResponse{Email: html}, "GenerateHandler")
}

// generateErrorResponse maps a generation failure to a status and a sanitized message.
func generateErrorResponse(err error) (int, models.ErrorResponse) {
	var validationErr *compose.ValidationError
	var upstreamErr *compose.UpstreamAPIError
	var formatErr *compose.GenerationFormatError

	switch {
	case errors.As(err, &validationErr):
		details, fields := validationDetails(err)
		return http.StatusBadRequest, errorResponse(details, "", fields)
	case errors.As(err, &upstreamErr):
		return http.StatusBadGateway, errorResponse(upstreamSummary(upstreamErr.StatusCode), "", nil)
	case errors.As(err, &formatErr):
		return http.StatusBadGateway, errorResponse("Invalid response format from model service", "", nil)
	default:
		return http.StatusInternalServerError, errorResponse("Failed to generate email", "", nil)
	}
}

// upstreamSummary describes a model service error status without the upstream text.
func upstreamSummary(status int) string {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return "Model service authentication failed"
	case status == http.StatusTooManyRequests:
		return "Rate limited by model service, please try again later"
	case status >= 400 && status < 500:
		return "Model service rejected the request"
	default:
		return "Model service unavailable"
	}
}
