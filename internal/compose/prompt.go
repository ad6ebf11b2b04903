package compose

import (
	"context"
	"strings"
)

// SystemInstruction tells the model which output conventions the formatter relies on.
const SystemInstruction = "You are an expert email writer. Format your responses with proper spacing and paragraphs. " +
	"Include appropriate salutations and closings. Separate paragraphs with line breaks. " +
	"Do not include any HTML tags - just focus on the content structure with proper spacing and line breaks."

const (
	userInstructionPrefix = "Write a professional email with the following instructions: "

	// DefaultTemperature keeps drafts varied but on topic.
	DefaultTemperature = 0.7
	// DefaultMaxTokens bounds the cost of a single draft.
	DefaultMaxTokens = 1024
)

// ModelRequest is one chat-style completion request.
type ModelRequest struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
}

// ModelResponse is the completion text returned by the model service.
type ModelResponse struct {
	Content string
}

// Completer is the model service contract: one request, one completion.
type Completer interface {
	Complete(ctx context.Context, req ModelRequest) (ModelResponse, error)
}

// BuildRequest assembles the model request for a user prompt.
// An empty or whitespace-only prompt is rejected before anything leaves the process.
func BuildRequest(prompt string) (ModelRequest, error) {
	if strings.TrimSpace(prompt) == "" {
		return ModelRequest{}, &ValidationError{Fields: []string{FieldPrompt}}
	}

	return ModelRequest{
		System:      SystemInstruction,
		User:        userInstructionPrefix + prompt,
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
	}, nil
}

// Draft turns a prompt into a formatted email body using the given model service.
func Draft(ctx context.Context, completer Completer, prompt string) (string, error) {
	req, err := BuildRequest(prompt)
	if err != nil {
		return "", err
	}

	resp, err := completer.Complete(ctx, req)
	if err != nil {
		return "", err
	}

	if resp.Content == "" {
		return "", &GenerationFormatError{Reason: "completion content is empty"}
	}

	return FormatDraft(resp.Content), nil
}
