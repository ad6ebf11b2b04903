package testutil

import (
	"bytes"
	"fmt"

	"github.com/jhillyerd/enmime"
	"github.com/vdavid/draftmail/internal/models"
)

// Outbox parses the captured messages into outbox entries, oldest first.
func (s *TestSMTPServer) Outbox() ([]models.OutboxEntry, error) {
	messages := s.GetMessages()
	entries := make([]models.OutboxEntry, 0, len(messages))

	for i, msg := range messages {
		env, err := enmime.ReadEnvelope(bytes.NewReader(msg.Data))
		if err != nil {
			return nil, fmt.Errorf("failed to parse message %d: %w", i, err)
		}

		var to []string
		if addrs, err := env.AddressList("To"); err == nil {
			for _, addr := range addrs {
				to = append(to, addr.Address)
			}
		}

		entries = append(entries, models.OutboxEntry{
			MessageID:  env.GetHeader("Message-Id"),
			From:       env.GetHeader("From"),
			To:         to,
			Envelope:   append([]string(nil), msg.To...),
			Subject:    env.GetHeader("Subject"),
			Text:       env.Text,
			HTML:       env.HTML,
			CapturedAt: msg.Received,
		})
	}

	return entries, nil
}
