package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/vdavid/draftmail/internal/api"
	"github.com/vdavid/draftmail/internal/compose"
	"github.com/vdavid/draftmail/internal/config"
	"github.com/vdavid/draftmail/internal/delivery"
	"github.com/vdavid/draftmail/internal/llm"
	"github.com/vdavid/draftmail/internal/session"
	ws "github.com/vdavid/draftmail/internal/websocket"
)

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	server, err := NewServer(cfg)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	address := ":" + cfg.Port
	log.Printf("Draftmail server starting on %s (environment: %s, transport: %s)", address, cfg.Environment, cfg.Transport)

	if err := http.ListenAndServe(address, server); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}

// NewServer creates and returns a new HTTP handler for the Draftmail API server.
func NewServer(cfg *config.Config) (http.Handler, error) {
	sender, err := delivery.New(cfg.DeliveryConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create sender: %w", err)
	}

	completer := llm.NewClient(cfg.LLMConfig())
	assembler := compose.NewAssembler(cfg.AssemblerConfig())
	wsHub := ws.NewHub(cfg.MaxEditorSessions)

	handlers := api.Handlers{
		Generate: api.NewGenerateHandler(completer),
		Send:     api.NewSendHandler(assembler, sender),
		Editor: api.NewEditorWebSocketHandler(wsHub, session.Deps{
			Completer: completer,
			Assembler: assembler,
			Sender:    sender,
		}),
	}
	// Add test endpoints
	if cfg.Environment == "test" {
		if outbox, ok := sender.(api.OutboxLister); ok {
			handlers.Test = api.NewTestHandler(outbox)
		}
	}

	mux := api.NewRouter(handlers)
	mux.HandleFunc("/", handleRoot)

	return mux, nil
}

func handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Draftmail API is running")
}
