package compose

import (
	"fmt"
	"io"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jhillyerd/enmime"
	"github.com/vdavid/draftmail/internal/markup"
)

// DefaultFromName is the display name used when none is configured.
const DefaultFromName = "Draftmail"

// AssemblerConfig holds the deployment's sender identity and audit policy.
type AssemblerConfig struct {
	FromName    string
	FromAddress string
	// OperationalBCC receives a blind copy of every outbound message.
	OperationalBCC string
}

// Assembler builds outbound messages for one sender identity.
type Assembler struct {
	from mail.Address
	bcc  string
	now  func() time.Time
}

// NewAssembler creates an Assembler. An empty FromName falls back to DefaultFromName.
// An empty FromAddress is accepted here but every Assemble call will fail with
// ErrSenderNotConfigured.
func NewAssembler(cfg AssemblerConfig) *Assembler {
	name := strings.TrimSpace(cfg.FromName)
	if name == "" {
		name = DefaultFromName
	}

	return &Assembler{
		from: mail.Address{Name: name, Address: strings.TrimSpace(cfg.FromAddress)},
		bcc:  strings.TrimSpace(cfg.OperationalBCC),
		now:  time.Now,
	}
}

// OutboundMessage is a fully assembled, immutable email.
type OutboundMessage struct {
	to        []string
	envelope  []string
	bcc       string
	from      mail.Address
	subject   string
	text      string
	html      string
	messageID string
	date      time.Time
}

// Assemble parses recipients, derives the plain-text body from htmlBody and builds the message.
func (a *Assembler) Assemble(recipients, subject, htmlBody string) (*OutboundMessage, error) {
	if a.from.Address == "" {
		return nil, ErrSenderNotConfigured
	}

	to := ParseRecipients(recipients)
	if len(to) == 0 {
		return nil, &ValidationError{Fields: []string{FieldRecipients}}
	}

	envelope := make([]string, 0, len(to)+1)
	for _, entry := range to {
		addr, err := mail.ParseAddress(entry)
		if err != nil {
			return nil, &ValidationError{
				Fields: []string{FieldRecipients},
				Reason: fmt.Sprintf("%q is not a valid email address", entry),
			}
		}
		envelope = append(envelope, addr.Address)
	}
	if a.bcc != "" {
		envelope = append(envelope, a.bcc)
	}

	return &OutboundMessage{
		to:        to,
		envelope:  envelope,
		bcc:       a.bcc,
		from:      a.from,
		subject:   subject,
		text:      markup.PlainText(htmlBody),
		html:      htmlBody,
		messageID: fmt.Sprintf("<%s@%s>", uuid.NewString(), domainOf(a.from.Address)),
		date:      a.now(),
	}, nil
}

// To returns the visible recipients in input order.
func (m *OutboundMessage) To() []string {
	return append([]string(nil), m.to...)
}

// ToHeader returns the recipients joined for a To header.
func (m *OutboundMessage) ToHeader() string {
	return strings.Join(m.to, ", ")
}

// BCC returns the operational blind-copy address, if any.
func (m *OutboundMessage) BCC() string {
	return m.bcc
}

// Recipients returns the SMTP envelope recipients: every To address, then the BCC.
func (m *OutboundMessage) Recipients() []string {
	return append([]string(nil), m.envelope...)
}

// From returns the sender identity.
func (m *OutboundMessage) From() mail.Address {
	return m.from
}

// FromHeader returns the sender formatted for a From header, quoting the
// display name when needed.
func (m *OutboundMessage) FromHeader() string {
	return m.from.String()
}

func (m *OutboundMessage) Subject() string {
	return m.subject
}

// Text returns the plain-text alternative. It is always derived from HTML.
func (m *OutboundMessage) Text() string {
	return m.text
}

func (m *OutboundMessage) HTML() string {
	return m.html
}

func (m *OutboundMessage) MessageID() string {
	return m.messageID
}

func (m *OutboundMessage) Date() time.Time {
	return m.date
}

// Encode writes the message as a multipart/alternative MIME document.
// The BCC address is part of the envelope only and never appears in headers.
func (m *OutboundMessage) Encode(w io.Writer) error {
	builder := enmime.Builder().
		From(m.from.Name, m.from.Address).
		Subject(m.subject).
		Date(m.date).
		Header("Message-ID", m.messageID).
		Text([]byte(m.text)).
		HTML([]byte(m.html))

	for _, entry := range m.to {
		if addr, err := mail.ParseAddress(entry); err == nil {
			builder = builder.To(addr.Name, addr.Address)
		}
	}

	root, err := builder.Build()
	if err != nil {
		return fmt.Errorf("failed to build MIME message: %w", err)
	}

	if err := root.Encode(w); err != nil {
		return fmt.Errorf("failed to encode MIME message: %w", err)
	}
	return nil
}

func domainOf(address string) string {
	if at := strings.LastIndex(address, "@"); at >= 0 && at < len(address)-1 {
		return address[at+1:]
	}
	return "localhost"
}
