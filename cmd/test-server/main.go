package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/vdavid/draftmail/internal/api"
	"github.com/vdavid/draftmail/internal/compose"
	"github.com/vdavid/draftmail/internal/config"
	"github.com/vdavid/draftmail/internal/delivery"
	"github.com/vdavid/draftmail/internal/llm"
	"github.com/vdavid/draftmail/internal/session"
	"github.com/vdavid/draftmail/internal/testutil"
	ws "github.com/vdavid/draftmail/internal/websocket"
)

// modelAddress is where the fake model service listens during E2E runs.
const modelAddress = "127.0.0.1:1026"

func main() {
	// Start test SMTP server and fake model service
	smtpServer, modelServer, err := startFakeServices()
	if err != nil {
		log.Fatalf("Failed to start fake services: %v", err)
	}
	defer smtpServer.Close()
	defer modelServer.Close()

	// Point the app at them
	if err := setupTestEnvironment(smtpServer, modelServer); err != nil {
		log.Fatalf("Failed to setup test environment: %v", err)
	}

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Start HTTP server
	if err := startHTTPServer(cfg, smtpServer); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// startFakeServices starts the SMTP sink and the fake model service.
func startFakeServices() (*testutil.TestSMTPServer, *testutil.ModelServer, error) {
	log.Println("Starting test SMTP server...")
	smtpServer, err := testutil.NewTestSMTPServerForE2E()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start test SMTP server: %w", err)
	}
	log.Printf("Test SMTP server started on %s", smtpServer.Address)

	log.Println("Starting fake model service...")
	modelServer := testutil.NewModelServerForE2E(modelAddress)
	log.Printf("Fake model service started on %s", modelServer.URL)

	return smtpServer, modelServer, nil
}

// setupTestEnvironment sets the environment variables config.NewConfig reads.
func setupTestEnvironment(smtpServer *testutil.TestSMTPServer, modelServer *testutil.ModelServer) error {
	vars := []struct {
		key   string
		value string
	}{
		{"DRAFTMAIL_ENV", "test"},
		{"GROQ_API_KEY", "gsk_test"},
		{"DRAFTMAIL_MODEL_BASE_URL", modelServer.URL},
		{"DRAFTMAIL_TRANSPORT", delivery.TransportSMTP},
		{"SMTP_HOST", smtpServer.Host()},
		{"SMTP_PORT", strconv.Itoa(smtpServer.Port())},
		{"SMTP_USER", testutil.SMTPUsername},
		{"SMTP_PASSWORD", testutil.SMTPPassword},
		{"SMTP_TLS_MODE", delivery.TLSModeNone},
		{"SMTP_FROM_NAME", "Draftmail"},
		{"SMTP_FROM_EMAIL", "mailer@draftmail.test"},
		{"DRAFTMAIL_OPERATIONAL_BCC", "audit@draftmail.test"},
	}

	for _, v := range vars {
		if err := os.Setenv(v.key, v.value); err != nil {
			return fmt.Errorf("failed to set %s: %w", v.key, err)
		}
	}

	return nil
}

// startHTTPServer starts the HTTP server and waits for shutdown signals.
func startHTTPServer(cfg *config.Config, smtpServer *testutil.TestSMTPServer) error {
	server, err := NewServer(cfg, smtpServer)
	if err != nil {
		return err
	}
	address := ":" + cfg.Port

	log.Printf("Draftmail test server starting on %s", address)
	log.Printf("Test SMTP server: %s (username: %s, password: %s)", smtpServer.Address, testutil.SMTPUsername, testutil.SMTPPassword)
	log.Println("Server ready for E2E tests. Press Ctrl+C to stop.")

	serverErr := make(chan error, 1)
	go func() {
		if err := http.ListenAndServe(address, server); err != nil {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Printf("Received signal %v, shutting down...", sig)
		return nil
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	}
}

// NewServer creates the Draftmail API handler with the outbox backed by the SMTP sink.
func NewServer(cfg *config.Config, smtpServer *testutil.TestSMTPServer) (http.Handler, error) {
	sender, err := delivery.New(cfg.DeliveryConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create sender: %w", err)
	}

	completer := llm.NewClient(cfg.LLMConfig())
	assembler := compose.NewAssembler(cfg.AssemblerConfig())
	wsHub := ws.NewHub(cfg.MaxEditorSessions)

	mux := api.NewRouter(api.Handlers{
		Generate: api.NewGenerateHandler(completer),
		Send:     api.NewSendHandler(assembler, sender),
		Editor: api.NewEditorWebSocketHandler(wsHub, session.Deps{
			Completer: completer,
			Assembler: assembler,
			Sender:    sender,
		}),
		Test: api.NewTestHandler(api.OutboxListerFunc(smtpServer.Outbox)),
	})
	mux.HandleFunc("/", handleRoot)

	return mux, nil
}

func handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Draftmail Test Server is running")
}
