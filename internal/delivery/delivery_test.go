package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/jhillyerd/enmime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vdavid/draftmail/internal/compose"
	"github.com/vdavid/draftmail/internal/testutil"
)

func newTestMessage(t *testing.T) *compose.OutboundMessage {
	t.Helper()

	assembler := compose.NewAssembler(compose.AssemblerConfig{
		FromName:       "Acme Mailer",
		FromAddress:    "mailer@acme.test",
		OperationalBCC: "audit@acme.test",
	})
	msg, err := assembler.Assemble("a@x.com, b@y.com", "Quarterly update", compose.FormatDraft("Dear Team,\n\nThanks!\n\nBest,\nJane"))
	require.NoError(t, err)
	return msg
}

func smtpConfigFor(server *testutil.TestSMTPServer) SMTPConfig {
	return SMTPConfig{
		Host:     server.Host(),
		Port:     server.Port(),
		Username: testutil.SMTPUsername,
		Password: testutil.SMTPPassword,
		TLSMode:  TLSModeNone,
		Timeout:  5 * time.Second,
	}
}

func requireDeliveryError(t *testing.T, err error, transport string) *compose.DeliveryError {
	t.Helper()

	var deliveryErr *compose.DeliveryError
	require.True(t, errors.As(err, &deliveryErr), "expected DeliveryError, got %v", err)
	assert.Equal(t, transport, deliveryErr.Transport)
	return deliveryErr
}

func TestNew(t *testing.T) {
	t.Run("selects transport", func(t *testing.T) {
		smtpSender, err := New(Config{Transport: TransportSMTP, SMTP: SMTPConfig{Host: "localhost"}})
		require.NoError(t, err)
		assert.IsType(t, &SMTPSender{}, smtpSender)

		defaultSender, err := New(Config{SMTP: SMTPConfig{Host: "localhost"}})
		require.NoError(t, err)
		assert.IsType(t, &SMTPSender{}, defaultSender)

		postmarkSender, err := New(Config{Transport: TransportPostmark, Postmark: PostmarkConfig{ServerToken: "token"}})
		require.NoError(t, err)
		assert.IsType(t, &PostmarkSender{}, postmarkSender)

		devSender, err := New(Config{Transport: TransportDev, DevOutboxDir: t.TempDir()})
		require.NoError(t, err)
		assert.IsType(t, &DevSender{}, devSender)
	})

	t.Run("rejects invalid config", func(t *testing.T) {
		tests := []struct {
			name string
			cfg  Config
		}{
			{"unknown transport", Config{Transport: "pigeon"}},
			{"smtp without host", Config{Transport: TransportSMTP}},
			{"smtp with unknown TLS mode", Config{SMTP: SMTPConfig{Host: "localhost", TLSMode: "ssl3"}}},
			{"postmark without token", Config{Transport: TransportPostmark}},
			{"dev without directory", Config{Transport: TransportDev}},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				sender, err := New(tt.cfg)
				assert.ErrorIs(t, err, ErrInvalidConfig)
				assert.Nil(t, sender)
			})
		}
	})
}

func TestNewSMTPSender_Defaults(t *testing.T) {
	sender, err := NewSMTPSender(SMTPConfig{Host: "smtp.example.com"})
	require.NoError(t, err)

	assert.Equal(t, "smtp.example.com:587", sender.addr)
	assert.Equal(t, TLSModeStartTLS, sender.tlsMode)
	assert.Equal(t, defaultSMTPTimeout, sender.timeout)
	assert.False(t, sender.tlsConfig.InsecureSkipVerify)
	assert.Equal(t, "smtp.example.com", sender.tlsConfig.ServerName)
}

// silentRelay accepts connections and never sends a greeting.
func silentRelay(t *testing.T) (string, int) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		var conns []net.Conn
		defer func() {
			for _, c := range conns {
				_ = c.Close()
			}
		}()
		for {
			c, err := ln.Accept()
			if err != nil {
				<-done
				return
			}
			conns = append(conns, c)
		}
	}()
	t.Cleanup(func() {
		_ = ln.Close()
		close(done)
	})

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, port
}

func TestSMTPSender_Send(t *testing.T) {
	t.Run("delivers multipart message to every envelope recipient", func(t *testing.T) {
		server := testutil.NewTestSMTPServer(t)
		server.Backend.RequireAuth(true)
		msg := newTestMessage(t)

		sender, err := NewSMTPSender(smtpConfigFor(server))
		require.NoError(t, err)
		require.NoError(t, sender.Send(context.Background(), msg))

		messages := server.GetMessages()
		require.Len(t, messages, 1)
		got := messages[0]
		assert.Equal(t, "mailer@acme.test", got.From)
		assert.Equal(t, []string{"a@x.com", "b@y.com", "audit@acme.test"}, got.To)
		assert.Equal(t, testutil.SMTPUsername, got.User)

		env, err := enmime.ReadEnvelope(bytes.NewReader(got.Data))
		require.NoError(t, err)
		assert.Equal(t, "Quarterly update", env.GetHeader("Subject"))
		assert.Empty(t, env.GetHeader("Bcc"))
		assert.NotContains(t, env.GetHeader("To"), "audit@acme.test")
		assert.Equal(t, msg.Text(), strings.TrimSpace(env.Text))
		assert.Equal(t, msg.HTML(), strings.TrimSpace(env.HTML))
		assert.Equal(t, compose.FormatDraft("Dear Team,\n\nThanks!\n\nBest,\nJane"), strings.TrimSpace(env.HTML))
	})

	t.Run("skips auth without username", func(t *testing.T) {
		server := testutil.NewTestSMTPServer(t)
		cfg := smtpConfigFor(server)
		cfg.Username = ""

		sender, err := NewSMTPSender(cfg)
		require.NoError(t, err)
		require.NoError(t, sender.Send(context.Background(), newTestMessage(t)))

		messages := server.GetMessages()
		require.Len(t, messages, 1)
		assert.Empty(t, messages[0].User)
	})

	t.Run("wrong credentials", func(t *testing.T) {
		server := testutil.NewTestSMTPServer(t)
		cfg := smtpConfigFor(server)
		cfg.Password = "wrong"

		sender, err := NewSMTPSender(cfg)
		require.NoError(t, err)

		err = sender.Send(context.Background(), newTestMessage(t))
		requireDeliveryError(t, err, TransportSMTP)
		assert.Empty(t, server.GetMessages())
	})

	t.Run("unreachable relay", func(t *testing.T) {
		host, port := testutil.UnusedAddress(t)

		sender, err := NewSMTPSender(SMTPConfig{Host: host, Port: port, TLSMode: TLSModeNone, Timeout: time.Second})
		require.NoError(t, err)

		err = sender.Send(context.Background(), newTestMessage(t))
		deliveryErr := requireDeliveryError(t, err, TransportSMTP)
		assert.Contains(t, deliveryErr.Error(), "failed to connect")
	})

	t.Run("relay without STARTTLS support", func(t *testing.T) {
		server := testutil.NewTestSMTPServer(t)
		cfg := smtpConfigFor(server)
		cfg.TLSMode = TLSModeStartTLS

		sender, err := NewSMTPSender(cfg)
		require.NoError(t, err)

		err = sender.Send(context.Background(), newTestMessage(t))
		requireDeliveryError(t, err, TransportSMTP)
		assert.Empty(t, server.GetMessages())
	})

	t.Run("silent relay times out during the STARTTLS handshake", func(t *testing.T) {
		host, port := silentRelay(t)

		sender, err := NewSMTPSender(SMTPConfig{Host: host, Port: port, TLSMode: TLSModeStartTLS, Timeout: 200 * time.Millisecond})
		require.NoError(t, err)

		start := time.Now()
		err = sender.Send(context.Background(), newTestMessage(t))
		requireDeliveryError(t, err, TransportSMTP)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Less(t, time.Since(start), 5*time.Second)
	})

	t.Run("cancellation interrupts a hung greeting", func(t *testing.T) {
		host, port := silentRelay(t)

		sender, err := NewSMTPSender(SMTPConfig{Host: host, Port: port, TLSMode: TLSModeStartTLS, Timeout: time.Minute})
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(100*time.Millisecond, cancel)

		start := time.Now()
		err = sender.Send(ctx, newTestMessage(t))
		requireDeliveryError(t, err, TransportSMTP)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Less(t, time.Since(start), 5*time.Second)
	})

	t.Run("message rejected at DATA", func(t *testing.T) {
		server := testutil.NewTestSMTPServer(t)
		server.Backend.RejectData(&smtp.SMTPError{
			Code:         554,
			EnhancedCode: smtp.EnhancedCode{5, 7, 1},
			Message:      "Message refused",
		})

		sender, err := NewSMTPSender(smtpConfigFor(server))
		require.NoError(t, err)

		err = sender.Send(context.Background(), newTestMessage(t))
		deliveryErr := requireDeliveryError(t, err, TransportSMTP)
		assert.Contains(t, deliveryErr.Error(), "Message refused")
		assert.Empty(t, server.GetMessages())
	})

	t.Run("cancelled context", func(t *testing.T) {
		server := testutil.NewTestSMTPServer(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		sender, err := NewSMTPSender(smtpConfigFor(server))
		require.NoError(t, err)

		err = sender.Send(ctx, newTestMessage(t))
		requireDeliveryError(t, err, TransportSMTP)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, server.GetMessages())
	})
}

func TestPostmarkSender_Send(t *testing.T) {
	t.Run("submits the message", func(t *testing.T) {
		var payload map[string]any
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/email", r.URL.Path)
			assert.Equal(t, "server-token", r.Header.Get("X-Postmark-Server-Token"))
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"To":"a@x.com","MessageID":"pm-1","ErrorCode":0,"Message":"OK"}`))
		}))
		defer server.Close()

		sender, err := NewPostmarkSender(PostmarkConfig{ServerToken: "server-token", BaseURL: server.URL})
		require.NoError(t, err)

		msg := newTestMessage(t)
		require.NoError(t, sender.Send(context.Background(), msg))

		assert.Equal(t, "a@x.com, b@y.com", payload["To"])
		assert.Equal(t, "audit@acme.test", payload["Bcc"])
		assert.Equal(t, "Quarterly update", payload["Subject"])
		assert.Equal(t, msg.HTML(), payload["HtmlBody"])
		assert.Equal(t, msg.Text(), payload["TextBody"])
		assert.Equal(t, `"Acme Mailer" <mailer@acme.test>`, payload["From"])
	})

	t.Run("api error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"ErrorCode":300,"Message":"Invalid email request"}`))
		}))
		defer server.Close()

		sender, err := NewPostmarkSender(PostmarkConfig{ServerToken: "server-token", BaseURL: server.URL})
		require.NoError(t, err)

		err = sender.Send(context.Background(), newTestMessage(t))
		requireDeliveryError(t, err, TransportPostmark)
	})
}

func TestDevSender(t *testing.T) {
	t.Run("writes message and metadata", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "outbox")
		sender, err := NewDevSender(dir)
		require.NoError(t, err)

		msg := newTestMessage(t)
		require.NoError(t, sender.Send(context.Background(), msg))

		entries, err := sender.List()
		require.NoError(t, err)
		require.Len(t, entries, 1)
		entry := entries[0]
		assert.Equal(t, msg.MessageID(), entry.MessageID)
		assert.Equal(t, []string{"a@x.com", "b@y.com"}, entry.To)
		assert.Equal(t, []string{"a@x.com", "b@y.com", "audit@acme.test"}, entry.Envelope)
		assert.Equal(t, "Quarterly update", entry.Subject)
		assert.Equal(t, `"Acme Mailer" <mailer@acme.test>`, entry.From)
		assert.Equal(t, msg.Text(), entry.Text)
		assert.Equal(t, msg.HTML(), entry.HTML)

		emlFiles, err := filepath.Glob(filepath.Join(dir, "*_quarterly_update.eml"))
		require.NoError(t, err)
		require.Len(t, emlFiles, 1)

		raw, err := os.ReadFile(emlFiles[0])
		require.NoError(t, err)
		env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
		require.NoError(t, err)
		assert.Equal(t, msg.Text(), strings.TrimSpace(env.Text))
	})

	t.Run("lists in send order", func(t *testing.T) {
		sender, err := NewDevSender(t.TempDir())
		require.NoError(t, err)

		clock := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		sender.now = func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		}

		assembler := compose.NewAssembler(compose.AssemblerConfig{FromAddress: "mailer@acme.test"})
		for _, subject := range []string{"Zulu", "Alpha"} {
			msg, err := assembler.Assemble("a@x.com", subject, compose.FormatDraft("Hi"))
			require.NoError(t, err)
			require.NoError(t, sender.Send(context.Background(), msg))
		}

		entries, err := sender.List()
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "Zulu", entries[0].Subject)
		assert.Equal(t, "Alpha", entries[1].Subject)
	})

	t.Run("missing directory is an empty outbox", func(t *testing.T) {
		sender, err := NewDevSender(filepath.Join(t.TempDir(), "never-created"))
		require.NoError(t, err)

		entries, err := sender.List()
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("cancelled context", func(t *testing.T) {
		dir := t.TempDir()
		sender, err := NewDevSender(dir)
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err = sender.Send(ctx, newTestMessage(t))
		requireDeliveryError(t, err, TransportDev)

		files, _ := os.ReadDir(dir)
		assert.Empty(t, files)
	})
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Quarterly update", "quarterly_update"},
		{"Re: Hello / World?", "re_hello__world"},
		{"", "email"},
		{"!!!", "email"},
		{strings.Repeat("a", 120), strings.Repeat("a", 80)},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeFilename(tt.input))
		})
	}
}
