// Package llm is a client for OpenAI-compatible chat completion services.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/vdavid/draftmail/internal/compose"
)

const (
	DefaultBaseURL = "https://api.groq.com/openai/v1"
	DefaultModel   = "llama-3.3-70b-versatile"

	defaultTimeout = 60 * time.Second
	unknownError   = "Unknown error"
)

// Config configures the model service client.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Client calls the chat completions endpoint. It implements compose.Completer.
type Client struct {
	baseURL string
	model   string
	timeout time.Duration
	api     *openai.Client
}

var _ compose.Completer = (*Client)(nil)

// NewClient creates a new Client, filling in defaults for empty fields.
func NewClient(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	apiConfig := openai.DefaultConfig(cfg.APIKey)
	apiConfig.BaseURL = baseURL
	apiConfig.HTTPClient = &http.Client{Timeout: timeout}

	return &Client{
		baseURL: baseURL,
		model:   model,
		timeout: timeout,
		api:     openai.NewClientWithConfig(apiConfig),
	}
}

// Complete sends one chat completion request and returns the first choice's content.
// A non-2xx answer is a *compose.UpstreamAPIError; a payload without content is a
// *compose.GenerationFormatError.
func (c *Client) Complete(ctx context.Context, req compose.ModelRequest) (compose.ModelResponse, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, Content: req.User},
		},
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return compose.ModelResponse{}, classify(err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return compose.ModelResponse{}, &compose.GenerationFormatError{Reason: "first choice has no message content"}
	}

	return compose.ModelResponse{Content: resp.Choices[0].Message.Content}, nil
}

// classify maps go-openai errors onto the compose error types.
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		log.Printf("LLMClient: Model service returned status %d: %s", apiErr.HTTPStatusCode, apiErr.Message)
		message := apiErr.Message
		if message == "" {
			message = unknownError
		}
		return &compose.UpstreamAPIError{Service: "model", StatusCode: apiErr.HTTPStatusCode, Message: message}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		log.Printf("LLMClient: Model service returned status %d without an error payload: %v", reqErr.HTTPStatusCode, reqErr.Err)
		return &compose.UpstreamAPIError{Service: "model", StatusCode: reqErr.HTTPStatusCode, Message: unknownError}
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return &compose.GenerationFormatError{Reason: fmt.Sprintf("undecodable payload: %v", err)}
	}

	return fmt.Errorf("failed to call model service: %w", err)
}
