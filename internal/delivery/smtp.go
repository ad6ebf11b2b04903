package delivery

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/vdavid/draftmail/internal/compose"
)

// TLS modes for SMTPConfig.TLSMode.
const (
	TLSModeStartTLS = "starttls"
	TLSModeImplicit = "tls"
	TLSModeNone     = "none"
)

const (
	DefaultSMTPPort    = 587
	defaultSMTPTimeout = 30 * time.Second
)

// SMTPConfig holds the SMTP relay settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	// TLSMode is one of TLSModeStartTLS (default), TLSModeImplicit or TLSModeNone.
	TLSMode string
	// InsecureSkipVerify disables certificate verification. Only for relays with self-signed certificates.
	InsecureSkipVerify bool
	// Timeout bounds dialing and every SMTP command.
	Timeout time.Duration
}

// SMTPSender delivers messages through an SMTP relay.
type SMTPSender struct {
	addr      string
	username  string
	password  string
	tlsMode   string
	tlsConfig *tls.Config
	timeout   time.Duration
}

// NewSMTPSender validates cfg and creates an SMTPSender.
func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("%w: SMTP host is required", ErrInvalidConfig)
	}

	port := cfg.Port
	if port == 0 {
		port = DefaultSMTPPort
	}

	mode := cfg.TLSMode
	if mode == "" {
		mode = TLSModeStartTLS
	}
	switch mode {
	case TLSModeStartTLS, TLSModeImplicit, TLSModeNone:
	default:
		return nil, fmt.Errorf("%w: unknown SMTP TLS mode %q", ErrInvalidConfig, mode)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultSMTPTimeout
	}

	if cfg.InsecureSkipVerify && mode != TLSModeNone {
		log.Printf("SMTPSender: WARNING: TLS certificate verification is disabled for %s", cfg.Host)
	}

	return &SMTPSender{
		addr:     net.JoinHostPort(cfg.Host, strconv.Itoa(port)),
		username: cfg.Username,
		password: cfg.Password,
		tlsMode:  mode,
		tlsConfig: &tls.Config{
			ServerName:         cfg.Host,
			InsecureSkipVerify: cfg.InsecureSkipVerify,
			MinVersion:         tls.VersionTLS12,
		},
		timeout: timeout,
	}, nil
}

// Send performs one SMTP transaction: MAIL FROM, one RCPT TO per envelope recipient, DATA.
// Cancelling ctx closes the connection, including during the greeting and TLS handshake.
func (s *SMTPSender) Send(ctx context.Context, msg *compose.OutboundMessage) error {
	c, stop, err := s.dial(ctx)
	if err != nil {
		return s.fail(ctx, "failed to connect to "+s.addr, err)
	}
	defer stop()
	defer func() {
		_ = c.Close()
	}()

	if s.username != "" {
		if err := c.Auth(sasl.NewPlainClient("", s.username, s.password)); err != nil {
			return s.fail(ctx, "failed to authenticate as "+s.username, err)
		}
	}

	if err := c.Mail(msg.From().Address, nil); err != nil {
		return s.fail(ctx, "MAIL FROM rejected", err)
	}

	for _, rcpt := range msg.Recipients() {
		if err := c.Rcpt(rcpt, nil); err != nil {
			return s.fail(ctx, "RCPT TO "+rcpt+" rejected", err)
		}
	}

	wc, err := c.Data()
	if err != nil {
		return s.fail(ctx, "DATA rejected", err)
	}
	if err := msg.Encode(wc); err != nil {
		_ = wc.Close()
		return s.fail(ctx, "failed to write message", err)
	}
	if err := wc.Close(); err != nil {
		return s.fail(ctx, "message rejected", err)
	}

	if err := c.Quit(); err != nil {
		log.Printf("SMTPSender: QUIT failed after successful delivery: %v", err)
	}

	log.Printf("SMTPSender: Delivered %s to %d recipient(s) via %s", msg.MessageID(), len(msg.Recipients()), s.addr)
	return nil
}

// dial connects and completes the greeting and, for STARTTLS, the TLS upgrade.
// The handshake is bounded by the timeout. Until the returned stop func is
// called, cancelling ctx closes the connection.
func (s *SMTPSender) dial(ctx context.Context) (*smtp.Client, func() bool, error) {
	dialer := &net.Dialer{Timeout: s.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return nil, nil, err
	}

	handshakeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	stopHandshake := context.AfterFunc(handshakeCtx, func() {
		_ = conn.Close()
	})

	var c *smtp.Client
	switch s.tlsMode {
	case TLSModeImplicit:
		c = smtp.NewClient(tls.Client(conn, s.tlsConfig))
	case TLSModeStartTLS:
		c, err = smtp.NewClientStartTLS(conn, s.tlsConfig)
	default:
		c = smtp.NewClient(conn)
	}
	if !stopHandshake() && err == nil {
		_ = c.Close()
		err = net.ErrClosed
	}
	if err != nil {
		_ = conn.Close()
		if ctx.Err() == nil && handshakeCtx.Err() != nil {
			return nil, nil, fmt.Errorf("handshake timed out after %s: %w", s.timeout, handshakeCtx.Err())
		}
		return nil, nil, err
	}

	c.CommandTimeout = s.timeout
	c.SubmissionTimeout = s.timeout

	stop := context.AfterFunc(ctx, func() {
		_ = c.Close()
	})
	return c, stop, nil
}

// fail builds the DeliveryError, preferring the context error when ctx ended the transaction.
func (s *SMTPSender) fail(ctx context.Context, step string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = ctxErr
	}
	log.Printf("SMTPSender: %s: %v", step, err)
	return deliveryError(TransportSMTP, step, err)
}
