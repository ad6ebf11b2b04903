package testutil

import (
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// DefaultCompletion is the draft the fake model service answers with.
const DefaultCompletion = "Dear Team,\n\nThank you for your hard work this quarter.\n\nBest regards,\nDraftmail"

// ModelServer is a fake OpenAI-compatible chat completions service.
type ModelServer struct {
	URL string

	mu         sync.Mutex
	completion string
	status     int
	requests   []ModelCall
	server     *http.Server
	testServer *httptest.Server
}

// ModelCall is one request received by the ModelServer.
type ModelCall struct {
	Authorization string
	Model         string
	System        string
	User          string
	Temperature   float64
	MaxTokens     int
}

// NewModelServer starts a fake model service that is closed when the test ends.
func NewModelServer(t *testing.T) *ModelServer {
	t.Helper()

	m := &ModelServer{completion: DefaultCompletion, status: http.StatusOK}
	m.testServer = httptest.NewServer(m.handler())
	m.URL = m.testServer.URL
	t.Cleanup(m.testServer.Close)

	return m
}

// NewModelServerForE2E starts a fake model service on addr outside a test context.
func NewModelServerForE2E(addr string) *ModelServer {
	m := &ModelServer{completion: DefaultCompletion, status: http.StatusOK}
	m.server = &http.Server{Addr: addr, Handler: m.handler()}
	m.URL = "http://" + addr

	go func() {
		if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("ModelServer: Server error: %v", err)
		}
	}()

	return m
}

// Close shuts the server down.
func (m *ModelServer) Close() {
	if m.testServer != nil {
		m.testServer.Close()
	}
	if m.server != nil {
		_ = m.server.Close()
	}
}

// SetCompletion changes the completion text returned by later requests.
func (m *ModelServer) SetCompletion(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completion = text
}

// FailWith makes later requests answer with status and an OpenAI-style error body.
// A 2xx status restores normal answers.
func (m *ModelServer) FailWith(status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = status
}

// Calls returns the requests received so far.
func (m *ModelServer) Calls() []ModelCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ModelCall(nil), m.requests...)
}

func (m *ModelServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
			Temperature float64 `json:"temperature"`
			MaxTokens   int     `json:"max_tokens"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		call := ModelCall{
			Authorization: r.Header.Get("Authorization"),
			Model:         req.Model,
			Temperature:   req.Temperature,
			MaxTokens:     req.MaxTokens,
		}
		for _, msg := range req.Messages {
			switch strings.ToLower(msg.Role) {
			case "system":
				call.System = msg.Content
			case "user":
				call.User = msg.Content
			}
		}

		m.mu.Lock()
		m.requests = append(m.requests, call)
		status, completion := m.status, m.completion
		m.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if status < 200 || status > 299 {
			w.WriteHeader(status)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]string{"message": http.StatusText(status)},
			})
			return
		}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": completion}},
			},
		})
	})
	return mux
}
