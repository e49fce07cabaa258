package server

import (
	"log"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/shaadiscout/concierge/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The browser UI is served from a different origin in development.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WebSocketWriter serializes concurrent writes to one connection.
type WebSocketWriter struct {
	Conn   *websocket.Conn
	Logger *log.Logger
	mu     sync.Mutex
}

func (w *WebSocketWriter) WriteEvent(ev models.StreamEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.Conn.WriteJSON(ev)
}

func (w *WebSocketWriter) WriteError(message string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.Conn.WriteJSON(map[string]string{"error": message})
}

// handleChatWS upgrades the connection and serves chat turns over it: the
// client sends one ChatRequest per turn, the server answers with the turn's
// full event sequence.
func (s *Server) handleChatWS(c *gin.Context) {
	sessionKey := c.Param("sessionKey")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Logger.Printf("[WS] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	writer := &WebSocketWriter{Conn: conn, Logger: s.Logger}

	for {
		var req models.ChatRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.Logger.Printf("[WS] read error: %v", err)
			}
			return
		}

		events := s.Router.Respond(c.Request.Context(), sessionKey, req.Messages)
		for ev := range events {
			if err := writer.WriteEvent(ev); err != nil {
				s.Logger.Printf("[WS] write error: %v", err)
				return
			}
		}
	}
}
