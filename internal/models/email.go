package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// GenerateEmailRequest is the payload of POST /api/generate-email.
type GenerateEmailRequest struct {
	Prompt string `json:"prompt"`
}

// GenerateEmailResponse carries the formatted HTML draft.
type GenerateEmailResponse struct {
	Email string `json:"email"`
}

// SendEmailRequest is the payload of POST /api/send-email.
type SendEmailRequest struct {
	Recipients RecipientList `json:"recipients"`
	Subject    string        `json:"subject"`
	Content    string        `json:"content"`
}

// SendEmailResponse is returned after a successful delivery.
type SendEmailResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ErrorResponse is the body of every non-2xx JSON answer.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Details string   `json:"details,omitempty"`
	Fields  []string `json:"fields,omitempty"`
}

// RecipientList accepts either a JSON array of addresses or one comma-separated string.
type RecipientList []string

func (r *RecipientList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*r = nil
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		*r = strings.Split(raw, ",")
		return nil
	}

	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("recipients must be a string or an array of strings: %w", err)
	}
	*r = list
	return nil
}

// String joins the entries into the comma-separated form the composer parses.
func (r RecipientList) String() string {
	return strings.Join(r, ",")
}

// OutboxEntry describes one captured outbound message.
type OutboxEntry struct {
	MessageID  string    `json:"message_id"`
	From       string    `json:"from"`
	To         []string  `json:"to"`
	Envelope   []string  `json:"envelope"`
	Subject    string    `json:"subject"`
	Text       string    `json:"text"`
	HTML       string    `json:"html,omitempty"`
	CapturedAt time.Time `json:"captured_at"`
}
