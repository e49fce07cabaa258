// Package server exposes the concierge over HTTP: an SSE chat endpoint, a
// WebSocket chat endpoint, session state CRUD, and wall-ready history.
package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	concierge "github.com/shaadiscout/concierge"
	"github.com/shaadiscout/concierge/models"
	"github.com/shaadiscout/concierge/stores"
	"github.com/shaadiscout/concierge/wall"
)

// IndexHealth is the slice of the vendor index the server needs for health
// checks and stats.
type IndexHealth interface {
	Ping() error
	Count(ctx context.Context) (int, error)
}

// Server wires the chat router and persistence into HTTP handlers.
type Server struct {
	Router *concierge.ChatRouter
	Store  stores.Store
	Index  IndexHealth
	Logger *log.Logger
}

// New creates a server. A nil logger falls back to the standard logger.
func New(router *concierge.ChatRouter, store stores.Store, index IndexHealth, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{Router: router, Store: store, Index: index, Logger: logger}
}

// Routes builds the gin engine with all endpoints registered.
func (s *Server) Routes() *gin.Engine {
	r := gin.Default()

	r.GET("/healthz", s.handleHealth)

	api := r.Group("/api/v1")
	api.POST("/chat/:sessionKey", s.handleChat)
	api.GET("/chat/:sessionKey/ws", s.handleChatWS)

	api.POST("/sessions", s.handleNewSession)
	api.GET("/sessions/:key", s.handleGetSession)
	api.POST("/sessions/:key", s.handleCreateSession)
	api.PUT("/sessions/:key", s.handleUpdateSession)
	api.GET("/sessions/:key/history", s.handleHistory)
	api.GET("/sessions/:key/turns", s.handleTurns)

	return r
}

// handleChat runs one chat turn and streams the event sequence as SSE.
func (s *Server) handleChat(c *gin.Context) {
	sessionKey := c.Param("sessionKey")

	var req models.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	writer := newGinSSEWriter(c)
	if writer == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
		return
	}

	events := s.Router.Respond(c.Request.Context(), sessionKey, req.Messages)
	for ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			s.Logger.Printf("[SERVER] error marshalling event: %v", err)
			continue
		}
		if err := writer.WriteSSE(string(data)); err != nil {
			s.Logger.Printf("[SERVER] error writing to SSE stream: %v", err)
			return
		}
		writer.Flush()
	}
}

// handleNewSession mints a fresh session key and creates its record.
func (s *Server) handleNewSession(c *gin.Context) {
	key := uuid.New().String()
	sess, err := s.Store.Create(key, nil)
	if err != nil {
		s.Logger.Printf("[SERVER] error creating session: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session_key": sess.SessionKey, "last_updated": sess.LastUpdated})
}

func (s *Server) handleGetSession(c *gin.Context) {
	key := c.Param("key")

	state, found, err := s.Store.Lookup(key)
	if err != nil {
		s.Logger.Printf("[SERVER] session lookup failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session store unavailable"})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_key": key, "state": json.RawMessage(state)})
}

func (s *Server) handleCreateSession(c *gin.Context) {
	key := c.Param("key")

	var state json.RawMessage
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&state); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	sess, err := s.Store.Create(key, state)
	if err != nil {
		s.Logger.Printf("[SERVER] error creating session %s: %v", key, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session_key": sess.SessionKey, "state": sess.State(), "last_updated": sess.LastUpdated})
}

func (s *Server) handleUpdateSession(c *gin.Context) {
	key := c.Param("key")

	var state json.RawMessage
	if err := c.ShouldBindJSON(&state); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess, err := s.Store.Update(key, state)
	if err != nil {
		s.Logger.Printf("[SERVER] error updating session %s: %v", key, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_key": sess.SessionKey, "state": sess.State(), "last_updated": sess.LastUpdated})
}

// handleHistory returns the session's message history as wall render items.
func (s *Server) handleHistory(c *gin.Context) {
	key := c.Param("key")

	stored, err := s.Store.FetchHistory(key, 0)
	if err != nil {
		s.Logger.Printf("[SERVER] error fetching history for %s: %v", key, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch history"})
		return
	}

	// Repair truncated or corrupted histories before replaying them: orphaned
	// tool traffic must not surface as wall items.
	stored = stores.SanitizeHistory(stored)

	msgs := make([]models.Message, 0, len(stored))
	for _, m := range stored {
		msg, ok := storedToMessage(m, s.Logger)
		if ok {
			msgs = append(msgs, msg)
		}
	}

	items := wall.BuildRenderList(msgs, wall.StatusReady)
	c.JSON(http.StatusOK, gin.H{"session_key": key, "messages": items})
}

func (s *Server) handleTurns(c *gin.Context) {
	key := c.Param("key")

	turns, err := s.Store.TurnsForSession(key)
	if err != nil {
		s.Logger.Printf("[SERVER] error fetching turns for %s: %v", key, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch turns"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_key": key, "turns": turns})
}

func (s *Server) handleHealth(c *gin.Context) {
	if err := s.Store.Ping(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "store": err.Error()})
		return
	}
	if s.Index != nil {
		if err := s.Index.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "index": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// storedToMessage rebuilds a client-shape message from its stored row.
func storedToMessage(m stores.Message, logger *log.Logger) (models.Message, bool) {
	role := models.RoleAssistant
	if m.Role == "user" {
		role = models.RoleUser
	}

	var parts []models.Part
	if m.PartsJSON != "" && m.PartsJSON != "{}" && m.PartsJSON != "null" {
		if err := json.Unmarshal([]byte(m.PartsJSON), &parts); err != nil {
			logger.Printf("[SERVER] error unmarshalling parts for message %d: %v", m.ID, err)
			return models.Message{}, false
		}
	}

	return models.Message{
		ID:    uuid.NewSHA1(uuid.NameSpaceOID, []byte(m.SessionKey+"/"+strconv.Itoa(m.Sequence))).String(),
		Role:  role,
		Parts: parts,
	}, true
}
