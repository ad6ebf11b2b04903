package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/vdavid/draftmail/internal/compose"
	"github.com/vdavid/draftmail/internal/models"
)

// DevSender writes every message to a local outbox directory instead of sending it.
// Each message produces a .eml file with the full MIME document and a .json file with its metadata.
type DevSender struct {
	dir string
	now func() time.Time
}

// NewDevSender creates a DevSender writing to dir. The directory is created on first send.
func NewDevSender(dir string) (*DevSender, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: dev outbox directory is required", ErrInvalidConfig)
	}
	return &DevSender{dir: dir, now: time.Now}, nil
}

// Send saves msg to the outbox directory.
func (d *DevSender) Send(ctx context.Context, msg *compose.OutboundMessage) error {
	if err := ctx.Err(); err != nil {
		return deliveryError(TransportDev, "send cancelled", err)
	}

	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return deliveryError(TransportDev, "failed to create outbox directory", err)
	}

	now := d.now()
	base := fmt.Sprintf("%s_%s", now.Format("2006_01_02_150405.000000"), sanitizeFilename(msg.Subject()))

	var raw bytes.Buffer
	if err := msg.Encode(&raw); err != nil {
		return deliveryError(TransportDev, "failed to encode message", err)
	}
	if err := os.WriteFile(filepath.Join(d.dir, base+".eml"), raw.Bytes(), 0o644); err != nil {
		return deliveryError(TransportDev, "failed to write message file", err)
	}

	entry := models.OutboxEntry{
		MessageID:  msg.MessageID(),
		From:       msg.FromHeader(),
		To:         msg.To(),
		Envelope:   msg.Recipients(),
		Subject:    msg.Subject(),
		Text:       msg.Text(),
		HTML:       msg.HTML(),
		CapturedAt: now.UTC(),
	}
	meta, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return deliveryError(TransportDev, "failed to marshal metadata", err)
	}
	if err := os.WriteFile(filepath.Join(d.dir, base+".json"), meta, 0o644); err != nil {
		return deliveryError(TransportDev, "failed to write metadata file", err)
	}

	log.Printf("DevSender: Saved %s to %s", msg.MessageID(), filepath.Join(d.dir, base+".eml"))
	return nil
}

// List returns the saved messages, oldest first. A missing directory is an empty outbox.
func (d *DevSender) List() ([]models.OutboxEntry, error) {
	files, err := filepath.Glob(filepath.Join(d.dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to list outbox: %w", err)
	}
	sort.Strings(files)

	entries := make([]models.OutboxEntry, 0, len(files))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", file, err)
		}
		var entry models.OutboxEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", file, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

var sanitizeRegex = regexp.MustCompile(`[^a-zA-Z0-9\-_.]`)

// sanitizeFilename turns a subject into a short, lowercase, filesystem-safe name.
func sanitizeFilename(s string) string {
	s = strings.ReplaceAll(s, " ", "_")
	s = sanitizeRegex.ReplaceAllString(s, "")

	const maxLength = 80
	if len(s) > maxLength {
		s = s[:maxLength]
	}
	if s == "" {
		s = "email"
	}
	return strings.ToLower(s)
}
