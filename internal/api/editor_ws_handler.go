package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/vdavid/draftmail/internal/compose"
	"github.com/vdavid/draftmail/internal/editor"
	"github.com/vdavid/draftmail/internal/session"
	ws "github.com/vdavid/draftmail/internal/websocket"
)

// Commands accepted on the editor WebSocket.
const (
	cmdSetFields        = "set_fields"
	cmdGenerate         = "generate"
	cmdLoadContent      = "load_content"
	cmdSelect           = "select"
	cmdInsertText       = "insert_text"
	cmdSplitBlock       = "split_block"
	cmdToggleBold       = "toggle_bold"
	cmdToggleItalic     = "toggle_italic"
	cmdToggleBulletList = "toggle_bullet_list"
	cmdSetLink          = "set_link"
	cmdClear            = "clear"
	cmdSend             = "send"
)

// Events sent on the editor WebSocket.
const (
	eventState     = "state"
	eventError     = "error"
	eventGenerated = "generated"
	eventSent      = "sent"
)

type editorCommand struct {
	Type       string            `json:"type"`
	Recipients *string           `json:"recipients,omitempty"`
	Subject    *string           `json:"subject,omitempty"`
	Prompt     *string           `json:"prompt,omitempty"`
	Content    string            `json:"content,omitempty"`
	Text       string            `json:"text,omitempty"`
	Href       string            `json:"href,omitempty"`
	Selection  *editor.Selection `json:"selection,omitempty"`
}

type editorEvent struct {
	Type      string         `json:"type"`
	Command   string         `json:"command,omitempty"`
	State     *session.State `json:"state,omitempty"`
	Error     string         `json:"error,omitempty"`
	Details   string         `json:"details,omitempty"`
	Fields    []string       `json:"fields,omitempty"`
	Email     string         `json:"email,omitempty"`
	Message   string         `json:"message,omitempty"`
	MessageID string         `json:"message_id,omitempty"`
}

// EditorWebSocketHandler handles the /api/v1/editor/ws endpoint. Each connection
// drives one composition session; ?session=<id> reattaches to a live one.
type EditorWebSocketHandler struct {
	hub  *ws.Hub
	deps session.Deps
}

// NewEditorWebSocketHandler creates a new EditorWebSocketHandler instance.
func NewEditorWebSocketHandler(hub *ws.Hub, deps session.Deps) *EditorWebSocketHandler {
	return &EditorWebSocketHandler{
		hub:  hub,
		deps: deps,
	}
}

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// For now, allow all origins. This server is expected to be used
		// behind a reverse proxy in a trusted environment.
		return true
	},
}

// Handle upgrades the connection, attaches it to a session and sends the initial state.
func (h *EditorWebSocketHandler) Handle(w http.ResponseWriter, r *http.Request) {
	sess := h.resolveSession(r.URL.Query().Get("session"))

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("EditorWebSocketHandler: Failed to upgrade connection for session %s: %v", sess.ID(), err)
		return
	}
	conn.SetReadLimit(maxBodyBytes)

	client := h.hub.Register(sess, conn)
	if client == nil {
		log.Printf("EditorWebSocketHandler: Connection rejected for session %s", sess.ID())
		return
	}

	log.Printf("EditorWebSocketHandler: Connection established for session %s", sess.ID())

	if err := client.WriteJSON(stateEvent(sess)); err != nil {
		log.Printf("EditorWebSocketHandler: Failed to send initial state for session %s: %v", sess.ID(), err)
		h.hub.Unregister(sess.ID(), client)
		return
	}

	go h.readLoop(sess, client)
}

func (h *EditorWebSocketHandler) resolveSession(id string) *session.Session {
	if id != "" {
		if sess, ok := h.hub.Lookup(id); ok {
			return sess
		}
		log.Printf("EditorWebSocketHandler: Unknown session %s, starting a new one", id)
	}
	return session.New(h.deps)
}

// readLoop processes commands until the connection closes, then unregisters the client.
// Operations still running for this connection are cancelled.
func (h *EditorWebSocketHandler) readLoop(sess *session.Session, client *ws.Client) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn := client.Conn()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("EditorWebSocketHandler: Read failed for session %s: %v", sess.ID(), err)
			}
			break
		}

		var cmd editorCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			h.reply(client, editorEvent{Type: eventError, Error: "Invalid command", Details: err.Error()})
			continue
		}
		h.dispatch(ctx, sess, client, cmd)
	}

	h.hub.Unregister(sess.ID(), client)
}

func (h *EditorWebSocketHandler) dispatch(ctx context.Context, sess *session.Session, client *ws.Client, cmd editorCommand) {
	var err error

	switch cmd.Type {
	case cmdSetFields:
		err = sess.SetFields(session.Fields{Recipients: cmd.Recipients, Subject: cmd.Subject, Prompt: cmd.Prompt})
	case cmdGenerate:
		go h.generate(ctx, sess, client)
		return
	case cmdSend:
		go h.send(ctx, sess, client)
		return
	case cmdLoadContent:
		err = sess.Edit(func(ed editor.CursorEditor) error { return ed.LoadContent(cmd.Content) })
	case cmdSelect:
		if cmd.Selection == nil {
			err = errors.New("selection is required")
			break
		}
		err = sess.Edit(func(ed editor.CursorEditor) error { return ed.Select(*cmd.Selection) })
	case cmdInsertText:
		err = sess.Edit(func(ed editor.CursorEditor) error {
			ed.InsertText(cmd.Text)
			return nil
		})
	case cmdSetLink:
		err = sess.Edit(func(ed editor.CursorEditor) error { return ed.SetLink(cmd.Href) })
	case cmdSplitBlock, cmdToggleBold, cmdToggleItalic, cmdToggleBulletList, cmdClear:
		err = sess.Edit(func(ed editor.CursorEditor) error {
			applySimpleCommand(ed, cmd.Type)
			return nil
		})
	default:
		err = fmt.Errorf("unknown command %q", cmd.Type)
	}

	if err != nil {
		h.reply(client, editorEvent{Type: eventError, Command: cmd.Type, Error: err.Error()})
		return
	}
	h.hub.Send(sess.ID(), stateEvent(sess))
}

func applySimpleCommand(ed editor.CursorEditor, command string) {
	switch command {
	case cmdSplitBlock:
		ed.SplitBlock()
	case cmdToggleBold:
		ed.ToggleBold()
	case cmdToggleItalic:
		ed.ToggleItalic()
	case cmdToggleBulletList:
		ed.ToggleBulletList()
	case cmdClear:
		ed.Clear()
	}
}

func (h *EditorWebSocketHandler) generate(ctx context.Context, sess *session.Session, client *ws.Client) {
	html, err := sess.Generate(ctx)
	if err != nil {
		event := editorEvent{Type: eventError, Command: cmdGenerate, Error: err.Error()}
		if !errors.Is(err, session.ErrGenerationInProgress) && !errors.Is(err, session.ErrSendInProgress) {
			_, body := generateErrorResponse(err)
			event.Error, event.Fields = body.Error, body.Fields
		}
		h.reply(client, event)
		return
	}

	h.hub.Send(sess.ID(), editorEvent{Type: eventGenerated, Email: html})
	h.hub.Send(sess.ID(), stateEvent(sess))
}

func (h *EditorWebSocketHandler) send(ctx context.Context, sess *session.Session, client *ws.Client) {
	msg, err := sess.Send(ctx)
	if err != nil {
		event := editorEvent{Type: eventError, Command: cmdSend, Error: err.Error()}
		var validationErr *compose.ValidationError
		switch {
		case errors.Is(err, session.ErrSendInProgress):
		case errors.As(err, &validationErr):
			event.Error = "Missing required fields"
			event.Details, event.Fields = validationDetails(err)
		default:
			event.Error = "Failed to send email"
			event.Details = err.Error()
		}
		h.reply(client, event)
		return
	}

	h.hub.Send(sess.ID(), editorEvent{Type: eventSent, Message: "Email sent successfully", MessageID: msg.MessageID()})
	h.hub.Send(sess.ID(), stateEvent(sess))
}

func (h *EditorWebSocketHandler) reply(client *ws.Client, event editorEvent) {
	if err := client.WriteJSON(event); err != nil {
		log.Printf("EditorWebSocketHandler: Failed to write %s event: %v", event.Type, err)
	}
}

func stateEvent(sess *session.Session) editorEvent {
	state := sess.State()
	return editorEvent{Type: eventState, State: &state}
}
