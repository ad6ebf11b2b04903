package delivery

import (
	"context"
	"fmt"
	"log"

	"github.com/mrz1836/postmark"
	"github.com/vdavid/draftmail/internal/compose"
)

// PostmarkConfig holds the Postmark API credentials.
type PostmarkConfig struct {
	ServerToken  string
	AccountToken string
	// BaseURL overrides the Postmark API endpoint.
	BaseURL string
}

// PostmarkSender delivers messages through Postmark's transactional API.
type PostmarkSender struct {
	client *postmark.Client
}

// NewPostmarkSender validates cfg and creates a PostmarkSender.
func NewPostmarkSender(cfg PostmarkConfig) (*PostmarkSender, error) {
	if cfg.ServerToken == "" {
		return nil, fmt.Errorf("%w: Postmark server token is required", ErrInvalidConfig)
	}

	client := postmark.NewClient(cfg.ServerToken, cfg.AccountToken)
	if cfg.BaseURL != "" {
		client.BaseURL = cfg.BaseURL
	}

	return &PostmarkSender{client: client}, nil
}

// Send submits msg as one Postmark email. Postmark derives the envelope from To and Bcc.
func (p *PostmarkSender) Send(ctx context.Context, msg *compose.OutboundMessage) error {
	resp, err := p.client.SendEmail(ctx, postmark.Email{
		From:     msg.FromHeader(),
		To:       msg.ToHeader(),
		Bcc:      msg.BCC(),
		Subject:  msg.Subject(),
		HTMLBody: msg.HTML(),
		TextBody: msg.Text(),
	})
	if err != nil {
		log.Printf("PostmarkSender: Request failed: %v", err)
		return deliveryError(TransportPostmark, "request failed", err)
	}
	if resp.ErrorCode > 0 {
		log.Printf("PostmarkSender: Postmark error %d: %s", resp.ErrorCode, resp.Message)
		return deliveryError(TransportPostmark, "email rejected", fmt.Errorf("postmark error %d: %s", resp.ErrorCode, resp.Message))
	}

	log.Printf("PostmarkSender: Delivered %s as Postmark message %s", msg.MessageID(), resp.MessageID)
	return nil
}
