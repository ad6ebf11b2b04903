package api

import "net/http"

// Handlers are the endpoints mounted by NewRouter. Test is only set in test mode.
type Handlers struct {
	Generate *GenerateHandler
	Send     *SendHandler
	Editor   *EditorWebSocketHandler
	Test     *TestHandler
}

// NewRouter mounts the API routes. Callers add their own root handler.
func NewRouter(h Handlers) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/generate-email", h.Generate.Generate)
	mux.HandleFunc("/api/generate-email/", h.Generate.Generate)
	mux.HandleFunc("/api/send-email", h.Send.Send)
	mux.HandleFunc("/api/send-email/", h.Send.Send)
	// Browsers can't set headers on WebSocket connections, so the session is a query parameter.
	mux.HandleFunc("/api/v1/editor/ws", h.Editor.Handle)

	if h.Test != nil {
		mux.HandleFunc("/test/outbox", h.Test.GetOutbox)
	}

	return mux
}
