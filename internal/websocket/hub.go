package websocket

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vdavid/draftmail/internal/session"
)

const (
	defaultMaxSessions = 100
	maxPerSession      = 10
)

// Client wraps a WebSocket connection. Writes are serialised.
type Client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// Conn returns the underlying WebSocket connection.
func (c *Client) Conn() *websocket.Conn {
	return c.conn
}

// WriteJSON writes v as one text message.
func (c *Client) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

type room struct {
	session *session.Session
	clients map[*Client]struct{}
}

// Hub tracks live editor sessions and the connections attached to each.
// A session can be attached by several connections (e.g., multiple tabs) and is
// dropped when the last one leaves.
type Hub struct {
	mu          sync.RWMutex
	rooms       map[string]*room // sessionID -> room
	maxSessions int
}

// NewHub creates a new Hub with a limit on concurrent sessions.
func NewHub(maxSessions int) *Hub {
	if maxSessions <= 0 {
		maxSessions = defaultMaxSessions
	}
	return &Hub{
		rooms:       make(map[string]*room),
		maxSessions: maxSessions,
	}
}

// Lookup returns the live session with the given ID.
func (h *Hub) Lookup(sessionID string) (*session.Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	r, ok := h.rooms[sessionID]
	if !ok {
		return nil, false
	}
	return r.session, true
}

// Register attaches conn to sess, adding the session if it is new.
// If a limit is exceeded, the connection is closed and nil is returned.
func (h *Hub) Register(sess *session.Session, conn *websocket.Conn) *Client {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[sess.ID()]
	if !ok {
		if len(h.rooms) >= h.maxSessions {
			log.Printf("websocket: max editor sessions (%d) reached, closing new connection", h.maxSessions)
			reject(conn, "too many editor sessions")
			return nil
		}
		r = &room{session: sess, clients: make(map[*Client]struct{})}
		h.rooms[sess.ID()] = r
	}

	if len(r.clients) >= maxPerSession {
		log.Printf("websocket: session %s exceeded max connections (%d), closing new connection", sess.ID(), maxPerSession)
		reject(conn, "too many connections for this session")
		return nil
	}

	client := &Client{conn: conn}
	r.clients[client] = struct{}{}
	return client
}

func reject(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason),
		time.Now().Add(time.Second),
	)
	_ = conn.Close()
}

// Unregister detaches a client and closes its connection. The session is dropped
// with its last client.
func (h *Hub) Unregister(sessionID string, client *Client) {
	if client == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if r, ok := h.rooms[sessionID]; ok {
		delete(r.clients, client)
		if len(r.clients) == 0 {
			delete(h.rooms, sessionID)
		}
	}

	_ = client.conn.Close()
}

// Send broadcasts msg as JSON to every client attached to the session.
func (h *Hub) Send(sessionID string, msg any) {
	h.mu.RLock()
	r, ok := h.rooms[sessionID]
	var clients []*Client
	if ok {
		clients = make([]*Client, 0, len(r.clients))
		for client := range r.clients {
			clients = append(clients, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range clients {
		if err := client.WriteJSON(msg); err != nil {
			log.Printf("websocket: failed to write message for session %s: %v", sessionID, err)
			go h.Unregister(sessionID, client)
		}
	}
}

// ActiveSessions returns the number of live sessions.
func (h *Hub) ActiveSessions() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.rooms)
}

// ActiveConnections returns the number of connections attached to a session.
func (h *Hub) ActiveConnections(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if r, ok := h.rooms[sessionID]; ok {
		return len(r.clients)
	}
	return 0
}
