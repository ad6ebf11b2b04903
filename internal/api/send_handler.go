package api

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/vdavid/draftmail/internal/compose"
	"github.com/vdavid/draftmail/internal/delivery"
	"github.com/vdavid/draftmail/internal/editor"
	"github.com/vdavid/draftmail/internal/models"
)

// SendHandler handles one-shot dispatch requests.
type SendHandler struct {
	assembler *compose.Assembler
	sender    delivery.Sender
}

// NewSendHandler creates a new SendHandler instance.
func NewSendHandler(assembler *compose.Assembler, sender delivery.Sender) *SendHandler {
	return &SendHandler{
		assembler: assembler,
		sender:    sender,
	}
}

// Send validates the request, assembles the message and delivers it once.
// The content is normalised through the editor so only the supported markup is sent.
func (h *SendHandler) Send(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req models.SendEmailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		log.Printf("SendHandler: Failed to decode request: %v", err)
		writeJSON(w, http.StatusBadRequest, errorResponse("Invalid request body", err.Error(), nil), "SendHandler")
		return
	}

	doc := editor.New()
	if err := doc.LoadContent(req.Content); err != nil {
		log.Printf("SendHandler: Failed to parse content: %v", err)
		writeJSON(w, http.StatusBadRequest, errorResponse("Invalid content", err.Error(), nil), "SendHandler")
		return
	}

	recipients := req.Recipients.String()
	if err := compose.ValidateDispatch(recipients, req.Subject, doc); err != nil {
		h.writeValidationError(w, err)
		return
	}

	msg, err := h.assembler.Assemble(recipients, req.Subject, doc.Serialize())
	if err != nil {
		var validationErr *compose.ValidationError
		if errors.As(err, &validationErr) {
			h.writeValidationError(w, err)
			return
		}
		log.Printf("SendHandler: Failed to assemble message: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse("Failed to send email", err.Error(), nil), "SendHandler")
		return
	}

	if err := h.sender.Send(r.Context(), msg); err != nil {
		log.Printf("SendHandler: Failed to send %s: %v", msg.MessageID(), err)
		writeJSON(w, http.StatusInternalServerError, errorResponse("Failed to send email", err.Error(), nil), "SendHandler")
		return
	}

	writeJSON(w, http.StatusOK, models.SendEmailResponse{Success: true, Message: "Email sent successfully"}, "SendHandler")
}

func (h *SendHandler) writeValidationError(w http.ResponseWriter, err error) {
	message := "Missing required fields"
	var validationErr *compose.ValidationError
	if errors.As(err, &validationErr) && validationErr.Reason != "" {
		message = "Invalid " + strings.Join(validationErr.Fields, ", ")
	}

	details, fields := validationDetails(err)
	log.Printf("SendHandler: Validation failed: %v", err)
	writeJSON(w, http.StatusBadRequest, errorResponse(message, details, fields), "SendHandler")
}
