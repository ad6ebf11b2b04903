package testutil

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

// Credentials accepted by the test SMTP server.
const (
	SMTPUsername = "test-user"
	SMTPPassword = "test-pass"
)

var errBadCredentials = &smtp.SMTPError{
	Code:         535,
	EnhancedCode: smtp.EnhancedCode{5, 7, 8},
	Message:      "Authentication credentials invalid",
}

// Message is one message captured by the MemoryBackend.
type Message struct {
	From string
	To   []string
	Data []byte
	// User is the authenticated username, empty for unauthenticated sessions.
	User     string
	Received time.Time
}

// MemoryBackend is a simple in-memory SMTP backend for testing.
type MemoryBackend struct {
	mu          sync.Mutex
	messages    []*Message
	dataErr     error
	requireAuth bool
}

// NewMemoryBackend creates a new in-memory SMTP backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		messages: make([]*Message, 0),
	}
}

// NewSession creates a new SMTP session.
func (b *MemoryBackend) NewSession(*smtp.Conn) (smtp.Session, error) {
	return &memorySession{backend: b}, nil
}

// GetMessages returns a copy of all received messages.
func (b *MemoryBackend) GetMessages() []*Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Message(nil), b.messages...)
}

// ClearMessages clears all stored messages.
func (b *MemoryBackend) ClearMessages() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = make([]*Message, 0)
}

// RejectData makes every following DATA command fail with err. A nil err accepts again.
func (b *MemoryBackend) RejectData(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dataErr = err
}

// RequireAuth makes MAIL fail for sessions that did not authenticate.
func (b *MemoryBackend) RequireAuth(required bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requireAuth = required
}

type memorySession struct {
	backend *MemoryBackend
	user    string
	from    string
	to      []string
}

var _ smtp.AuthSession = (*memorySession)(nil)

func (s *memorySession) AuthMechanisms() []string {
	return []string{sasl.Plain}
}

func (s *memorySession) Auth(mech string) (sasl.Server, error) {
	if mech != sasl.Plain {
		return nil, smtp.ErrAuthUnknownMechanism
	}
	return sasl.NewPlainServer(func(identity, username, password string) error {
		if username != SMTPUsername || password != SMTPPassword {
			return errBadCredentials
		}
		s.user = username
		return nil
	}), nil
}

func (s *memorySession) Mail(from string, _ *smtp.MailOptions) error {
	s.backend.mu.Lock()
	required := s.backend.requireAuth
	s.backend.mu.Unlock()

	if required && s.user == "" {
		return smtp.ErrAuthRequired
	}
	s.from = from
	return nil
}

func (s *memorySession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.to = append(s.to, to)
	return nil
}

func (s *memorySession) Data(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()

	if s.backend.dataErr != nil {
		return s.backend.dataErr
	}

	s.backend.messages = append(s.backend.messages, &Message{
		From:     s.from,
		To:       append([]string(nil), s.to...),
		Data:     data,
		User:     s.user,
		Received: time.Now().UTC(),
	})

	return nil
}

func (s *memorySession) Reset() {
	s.from = ""
	s.to = nil
}

func (s *memorySession) Logout() error {
	return nil
}

// TestSMTPServer represents a test SMTP server instance.
type TestSMTPServer struct {
	Server  *smtp.Server
	Address string
	Backend *MemoryBackend
	cleanup func()
}

func startSMTPServer(listenAddr string) (*TestSMTPServer, <-chan error, error) {
	be := NewMemoryBackend()

	s := smtp.NewServer(be)
	s.AllowInsecureAuth = true
	s.Domain = "localhost"
	s.ReadTimeout = 10 * time.Second
	s.WriteTimeout = 10 * time.Second

	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to listen: %w", err)
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := s.Serve(listener); err != nil && !errors.Is(err, smtp.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	return &TestSMTPServer{
		Server:  s,
		Address: listener.Addr().String(),
		Backend: be,
		cleanup: func() {
			_ = s.Close()
		},
	}, serveErr, nil
}

// NewTestSMTPServer creates a new test SMTP server with an in-memory backend on a random port.
// It accepts SMTPUsername / SMTPPassword and is closed when the test ends.
func NewTestSMTPServer(t *testing.T) *TestSMTPServer {
	t.Helper()

	server, serveErr, err := startSMTPServer("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to start SMTP server: %v", err)
	}
	go func() {
		for err := range serveErr {
			t.Logf("SMTP server error: %v", err)
		}
	}()
	t.Cleanup(server.Close)

	return server
}

// NewTestSMTPServerForE2E creates a test SMTP server outside a test context.
// It listens on the fixed port 1025 so browser-driven tests can find it.
func NewTestSMTPServerForE2E() (*TestSMTPServer, error) {
	server, _, err := startSMTPServer("127.0.0.1:1025")
	if err != nil {
		return nil, err
	}
	return server, nil
}

// Close shuts down the test SMTP server.
func (s *TestSMTPServer) Close() {
	if s.cleanup != nil {
		s.cleanup()
	}
}

// Host returns the host part of the listening address.
func (s *TestSMTPServer) Host() string {
	host, _, _ := net.SplitHostPort(s.Address)
	return host
}

// Port returns the port part of the listening address.
func (s *TestSMTPServer) Port() int {
	_, port, _ := net.SplitHostPort(s.Address)
	n, _ := strconv.Atoi(port)
	return n
}

// GetMessages returns all messages received by the server.
func (s *TestSMTPServer) GetMessages() []*Message {
	return s.Backend.GetMessages()
}

// ClearMessages clears all stored messages.
func (s *TestSMTPServer) ClearMessages() {
	s.Backend.ClearMessages()
}

// UnusedAddress returns a loopback address nothing is listening on.
func UnusedAddress(t *testing.T) (string, int) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	addr := listener.Addr().(*net.TCPAddr)
	_ = listener.Close()

	return addr.IP.String(), addr.Port
}
