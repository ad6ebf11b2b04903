// Package session holds one user's composition state: the prompt, recipients,
// subject and the rich-text document, and drives generation and dispatch for it.
package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/vdavid/draftmail/internal/compose"
	"github.com/vdavid/draftmail/internal/delivery"
	"github.com/vdavid/draftmail/internal/editor"
)

var (
	// ErrGenerationInProgress is returned when a draft is requested while another is being generated.
	ErrGenerationInProgress = errors.New("a draft is already being generated")
	// ErrSendInProgress is returned when a send is requested while another is in flight.
	ErrSendInProgress = errors.New("the email is already being sent")
)

// Deps are the collaborators a Session uses. NewEditor defaults to editor.New.
type Deps struct {
	Completer compose.Completer
	Assembler *compose.Assembler
	Sender    delivery.Sender
	NewEditor func() editor.CursorEditor
}

// Fields updates the form fields of a session. Nil fields are left unchanged.
type Fields struct {
	Recipients *string `json:"recipients,omitempty"`
	Subject    *string `json:"subject,omitempty"`
	Prompt     *string `json:"prompt,omitempty"`
}

// State is a snapshot of a session.
type State struct {
	ID         string           `json:"id"`
	Recipients string           `json:"recipients"`
	Subject    string           `json:"subject"`
	Prompt     string           `json:"prompt"`
	HTML       string           `json:"html"`
	Blocks     []editor.Block   `json:"blocks,omitempty"`
	Selection  editor.Selection `json:"selection"`
	Empty      bool             `json:"empty"`
	Generating bool             `json:"generating"`
	Sending    bool             `json:"sending"`
}

// Session is safe for concurrent use. Editor access is serialised; generate and send
// each allow one operation in flight.
type Session struct {
	id   string
	deps Deps

	mu         sync.Mutex
	editor     editor.CursorEditor
	recipients string
	subject    string
	prompt     string

	generating atomic.Bool
	sending    atomic.Bool
}

// New creates a session with an empty document.
func New(deps Deps) *Session {
	if deps.NewEditor == nil {
		deps.NewEditor = func() editor.CursorEditor { return editor.New() }
	}

	return &Session{
		id:     uuid.NewString(),
		deps:   deps,
		editor: deps.NewEditor(),
	}
}

func (s *Session) ID() string {
	return s.id
}

// SetFields updates the recipients, subject and prompt that are set in f.
// It fails with ErrSendInProgress while a send is in flight.
func (s *Session) SetFields(f Fields) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sending.Load() {
		return ErrSendInProgress
	}

	if f.Recipients != nil {
		s.recipients = *f.Recipients
	}
	if f.Subject != nil {
		s.subject = *f.Subject
	}
	if f.Prompt != nil {
		s.prompt = *f.Prompt
	}
	return nil
}

// Edit runs fn with exclusive access to the document. The document is frozen
// while a send is in flight and Edit returns ErrSendInProgress without calling fn.
func (s *Session) Edit(fn func(ed editor.CursorEditor) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sending.Load() {
		return ErrSendInProgress
	}
	return fn(s.editor)
}

// Generate drafts an email from the current prompt and loads it into the document,
// replacing its content. On failure the document is left untouched. A draft that
// arrives while a send is in flight is discarded with ErrSendInProgress.
func (s *Session) Generate(ctx context.Context) (string, error) {
	s.mu.Lock()
	prompt, sending := s.prompt, s.sending.Load()
	s.mu.Unlock()

	if sending {
		return "", ErrSendInProgress
	}

	if _, err := compose.BuildRequest(prompt); err != nil {
		return "", err
	}

	if !s.generating.CompareAndSwap(false, true) {
		return "", ErrGenerationInProgress
	}
	defer s.generating.Store(false)

	html, err := compose.Draft(ctx, s.deps.Completer, prompt)
	if err != nil {
		log.Printf("Session: Failed to generate draft for session %s: %v", s.id, err)
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sending.Load() {
		return "", ErrSendInProgress
	}
	if err := s.editor.LoadContent(html); err != nil {
		return "", err
	}
	return html, nil
}

// Send validates the form, assembles the message from the serialized document and
// delivers it. After a successful delivery every field and the document are reset;
// on any failure the state is kept so the user can correct and retry.
func (s *Session) Send(ctx context.Context) (*compose.OutboundMessage, error) {
	if !s.sending.CompareAndSwap(false, true) {
		return nil, ErrSendInProgress
	}
	defer s.sending.Store(false)

	s.mu.Lock()
	recipients, subject := s.recipients, s.subject
	err := compose.ValidateDispatch(recipients, subject, s.editor)
	html := s.editor.Serialize()
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}

	msg, err := s.deps.Assembler.Assemble(recipients, subject, html)
	if err != nil {
		return nil, err
	}

	if err := s.deps.Sender.Send(ctx, msg); err != nil {
		log.Printf("Session: Failed to send email for session %s: %v", s.id, err)
		return nil, err
	}

	s.mu.Lock()
	s.recipients, s.subject, s.prompt = "", "", ""
	s.editor.Clear()
	s.mu.Unlock()

	log.Printf("Session: Sent %s for session %s", msg.MessageID(), s.id)
	return msg, nil
}

// State returns a snapshot of the session.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := State{
		ID:         s.id,
		Recipients: s.recipients,
		Subject:    s.subject,
		Prompt:     s.prompt,
		HTML:       s.editor.Serialize(),
		Selection:  s.editor.Selection(),
		Empty:      s.editor.IsEmpty(),
		Generating: s.generating.Load(),
		Sending:    s.sending.Load(),
	}
	if doc, ok := s.editor.(interface{ Blocks() []editor.Block }); ok {
		state.Blocks = doc.Blocks()
	}
	return state
}
