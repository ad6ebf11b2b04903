// Package delivery hands assembled messages to a mail transport.
// It makes exactly one synchronous attempt per message; retries and queueing are
// left to callers.
package delivery

import (
	"context"
	"errors"
	"fmt"

	"github.com/vdavid/draftmail/internal/compose"
)

// Transport names accepted by New.
const (
	TransportSMTP     = "smtp"
	TransportPostmark = "postmark"
	TransportDev      = "dev"
)

// ErrInvalidConfig is returned by the constructors for unusable configuration.
var ErrInvalidConfig = errors.New("invalid delivery configuration")

// Sender delivers one message. Every failure is a *compose.DeliveryError.
type Sender interface {
	Send(ctx context.Context, msg *compose.OutboundMessage) error
}

// Config selects and configures a transport.
type Config struct {
	Transport    string
	SMTP         SMTPConfig
	Postmark     PostmarkConfig
	DevOutboxDir string
}

// New creates the Sender for cfg.Transport. An empty transport means SMTP.
func New(cfg Config) (Sender, error) {
	switch cfg.Transport {
	case TransportSMTP, "":
		return NewSMTPSender(cfg.SMTP)
	case TransportPostmark:
		return NewPostmarkSender(cfg.Postmark)
	case TransportDev:
		return NewDevSender(cfg.DevOutboxDir)
	default:
		return nil, fmt.Errorf("%w: unknown transport %q", ErrInvalidConfig, cfg.Transport)
	}
}

func deliveryError(transport, step string, err error) error {
	return &compose.DeliveryError{Transport: transport, Err: fmt.Errorf("%s: %w", step, err)}
}
