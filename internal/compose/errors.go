package compose

import (
	"errors"
	"fmt"
	"strings"
)

// Field names reported by ValidationError.
const (
	FieldPrompt     = "prompt"
	FieldRecipients = "recipients"
	FieldSubject    = "subject"
	FieldBody       = "body"
)

var fieldMessages = map[string]string{
	FieldPrompt:     "Please enter a prompt for email generation",
	FieldRecipients: "Please enter recipients",
	FieldSubject:    "Please enter a subject",
	FieldBody:       "Please generate or write an email body",
}

// ErrSenderNotConfigured is returned when the sender address is empty.
// This is a deployment misconfiguration, never a user error.
var ErrSenderNotConfigured = errors.New("sender address is not configured")

// ValidationError reports every missing or invalid field of a request.
// It is raised before any network call is made.
type ValidationError struct {
	Fields []string
	// Reason optionally carries detail beyond "missing", e.g. an unparsable address.
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid %s: %s", strings.Join(e.Fields, ", "), e.Reason)
	}
	return "missing required fields: " + strings.Join(e.Fields, ", ")
}

// Has reports whether field is among the failed fields.
func (e *ValidationError) Has(field string) bool {
	for _, f := range e.Fields {
		if f == field {
			return true
		}
	}
	return false
}

// Messages returns one user-facing message per failed field, in field order.
func (e *ValidationError) Messages() []string {
	messages := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		if msg, ok := fieldMessages[f]; ok && e.Reason == "" {
			messages = append(messages, msg)
			continue
		}
		messages = append(messages, e.Error())
	}
	return messages
}

// GenerationFormatError means the model service answered successfully but the
// payload lacked the expected completion content.
type GenerationFormatError struct {
	Reason string
}

func (e *GenerationFormatError) Error() string {
	return "invalid response format from model service: " + e.Reason
}

// UpstreamAPIError means a remote service answered with an error status.
type UpstreamAPIError struct {
	Service    string
	StatusCode int
	Message    string
}

func (e *UpstreamAPIError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Service, e.StatusCode, e.Message)
}

// DeliveryError wraps a failed delivery attempt with the transport's diagnostic.
type DeliveryError struct {
	Transport string
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s delivery failed: %v", e.Transport, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}
