package stores

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// Message is one persisted chat message within a session's conversation.
type Message struct {
	gorm.Model
	SessionKey string `gorm:"index;not null"`
	Sequence   int    `gorm:"not null"`
	Role       string `gorm:"not null"` // "user", "model"
	Type       string `gorm:"not null"` // "user_message", "model_message", "function_call", "function_response"
	// FunctionID links a function_response bundle back to its function_call.
	FunctionID string `gorm:"index" json:"function_id,omitempty"`
	// PartsJSON stores the JSON marshaled array of content parts for this turn.
	PartsJSON string `gorm:"type:json"`
}

// Conversation holds metadata for one session's message history.
type Conversation struct {
	gorm.Model
	SessionKey   string    `gorm:"uniqueIndex;not null"`
	Title        string    `gorm:"type:text"`
	MessageCount int       `gorm:"default:0"`
	Messages     []Message `gorm:"foreignKey:SessionKey;references:SessionKey"`
}

// Session is the persisted conversation state blob, keyed by an externally
// supplied session key. State is replaced wholesale on update; there is no
// version token, concurrent updates are last-write-wins.
type Session struct {
	gorm.Model
	SessionKey  string    `gorm:"uniqueIndex;not null" json:"session_key"`
	StateJSON   string    `gorm:"type:json" json:"-"`
	LastUpdated time.Time `json:"last_updated"`
}

// State returns the session's state blob as raw JSON.
func (s Session) State() json.RawMessage {
	if s.StateJSON == "" {
		return json.RawMessage("{}")
	}
	return json.RawMessage(s.StateJSON)
}

// TurnRecord is an audit entry for one routed chat turn.
type TurnRecord struct {
	gorm.Model
	SessionKey string `gorm:"index;not null"`
	Path       string `gorm:"not null"` // "denied", "vendor", "general"
	Utterance  string `gorm:"type:text"`
	DurationMS int64
	Failed     bool
}

// PersistenceError wraps a store failure with the operation and key that
// produced it.
type PersistenceError struct {
	Op  string // "create", "update", "lookup", "save"
	Key string
	Err error
}

func (e *PersistenceError) Error() string {
	return "store " + e.Op + " failed for key " + e.Key + ": " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// SessionStore persists conversation state blobs. Lookup distinguishes
// not-found from store failure so callers can tell a fresh session from an
// unavailable store.
type SessionStore interface {
	Lookup(key string) (state json.RawMessage, found bool, err error)
	Create(key string, initialState json.RawMessage) (Session, error)
	Update(key string, newState json.RawMessage) (Session, error)
}

// MessageStore persists per-session message history.
type MessageStore interface {
	SaveMessage(sessionKey, role, messageType string, parts interface{}, functionID string) error
	FetchHistory(sessionKey string, limit int) ([]Message, error)
	CreateConversation(sessionKey string) error
	ListConversations() ([]string, error)
}

// TurnLog records routed chat turns for diagnostics.
type TurnLog interface {
	RecordTurn(rec *TurnRecord) error
	TurnsForSession(sessionKey string) ([]*TurnRecord, error)
}

// Store is the full persistence surface backed by one database connection.
type Store interface {
	SessionStore
	MessageStore
	TurnLog

	Connect() error
	Close() error
	Ping() error
}

// StoreConfig holds configuration for database stores.
type StoreConfig struct {
	Type       string            `json:"type"`       // "sqlite", "postgres"
	Connection string            `json:"connection"` // file path or DSN
	Options    map[string]string `json:"options"`
}

// NewStoreConfig creates a new store configuration.
func NewStoreConfig(storeType, connection string) *StoreConfig {
	return &StoreConfig{
		Type:       storeType,
		Connection: connection,
		Options:    make(map[string]string),
	}
}
