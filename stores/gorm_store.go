package stores

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"
)

// gormStore implements the Store surface on top of an open GORM connection.
// SQLiteStore and PostgresStore differ only in how they connect.
type gormStore struct {
	db *gorm.DB
}

func (s *gormStore) migrate() error {
	return s.db.AutoMigrate(&Conversation{}, &Message{}, &Session{}, &TurnRecord{})
}

// ---- SessionStore ----

// Lookup fetches a session state blob. A missing session is reported as
// found=false with a nil error, a store failure as a PersistenceError.
func (s *gormStore) Lookup(key string) (json.RawMessage, bool, error) {
	if s.db == nil {
		return nil, false, &PersistenceError{Op: "lookup", Key: key, Err: errors.New("database connection is nil")}
	}

	var sess Session
	err := s.db.Where("session_key = ?", key).First(&sess).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &PersistenceError{Op: "lookup", Key: key, Err: err}
	}
	return sess.State(), true, nil
}

// Create inserts a new session with the given initial state.
func (s *gormStore) Create(key string, initialState json.RawMessage) (Session, error) {
	if key == "" {
		return Session{}, &PersistenceError{Op: "create", Key: key, Err: errors.New("session key is empty")}
	}
	if s.db == nil {
		return Session{}, &PersistenceError{Op: "create", Key: key, Err: errors.New("database connection is nil")}
	}

	if initialState == nil {
		initialState = json.RawMessage("{}")
	}

	sess := Session{
		SessionKey:  key,
		StateJSON:   string(initialState),
		LastUpdated: time.Now().UTC(),
	}
	if err := s.db.Create(&sess).Error; err != nil {
		return Session{}, &PersistenceError{Op: "create", Key: key, Err: err}
	}
	return sess, nil
}

// Update replaces the session state wholesale and refreshes last_updated.
// A session is created on first reference to its key. Last write wins; no
// version token is kept.
func (s *gormStore) Update(key string, newState json.RawMessage) (Session, error) {
	if key == "" {
		return Session{}, &PersistenceError{Op: "update", Key: key, Err: errors.New("session key is empty")}
	}
	if s.db == nil {
		return Session{}, &PersistenceError{Op: "update", Key: key, Err: errors.New("database connection is nil")}
	}

	if newState == nil {
		newState = json.RawMessage("{}")
	}

	var sess Session
	err := s.db.Where("session_key = ?", key).First(&sess).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.Create(key, newState)
	}
	if err != nil {
		return Session{}, &PersistenceError{Op: "update", Key: key, Err: err}
	}

	sess.StateJSON = string(newState)
	sess.LastUpdated = time.Now().UTC()
	if err := s.db.Save(&sess).Error; err != nil {
		return Session{}, &PersistenceError{Op: "update", Key: key, Err: err}
	}
	return sess, nil
}

// ---- MessageStore ----

// SaveMessage appends a message to a session's history, creating the
// conversation record on the first message.
func (s *gormStore) SaveMessage(sessionKey, role, messageType string, parts interface{}, functionID string) error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}

	var count int64
	if err := s.db.Model(&Conversation{}).Where("session_key = ?", sessionKey).Count(&count).Error; err != nil {
		log.Printf("[STORE] Error checking for conversation %s: %v", sessionKey, err)
	} else if count == 0 {
		if err := s.CreateConversation(sessionKey); err != nil {
			log.Printf("[STORE] Failed to create conversation record for %s: %v", sessionKey, err)
		}
	}

	if err := s.db.Model(&Message{}).Where("session_key = ?", sessionKey).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to count existing messages: %w", err)
	}
	seq := int(count) + 1

	partsJSONBytes, err := json.Marshal(parts)
	if err != nil {
		return fmt.Errorf("failed to marshal parts for database: %w", err)
	}
	partsJSONStr := string(partsJSONBytes)
	if parts == nil || partsJSONStr == "null" || partsJSONStr == "[]" {
		log.Printf("[STORE] Saving message with empty parts for session %s, role %s, type %s", sessionKey, role, messageType)
		partsJSONStr = "{}"
	}

	msg := Message{
		SessionKey: sessionKey,
		Sequence:   seq,
		Role:       role,
		Type:       messageType,
		PartsJSON:  partsJSONStr,
		FunctionID: functionID,
	}

	tx := s.db.Begin()
	if err := tx.Create(&msg).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to create message record: %w", err)
	}
	if err := tx.Model(&Conversation{}).Where("session_key = ?", sessionKey).Update("message_count", seq).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to update conversation message count: %w", err)
	}
	return tx.Commit().Error
}

// FetchHistory retrieves messages for a session in sequence order.
// limit: maximum number of messages to retrieve (0 = all).
func (s *gormStore) FetchHistory(sessionKey string, limit int) ([]Message, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	query := s.db.Where("session_key = ?", sessionKey).Order("sequence ASC")

	if limit > 0 {
		var count int64
		if err := s.db.Model(&Message{}).Where("session_key = ?", sessionKey).Count(&count).Error; err != nil {
			return nil, fmt.Errorf("failed to count messages: %w", err)
		}
		if count > int64(limit) {
			query = query.Offset(int(count) - limit)
		}
	}

	var msgs []Message
	if err := query.Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}
	return msgs, nil
}

// CreateConversation creates a new conversation record for a session.
func (s *gormStore) CreateConversation(sessionKey string) error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}
	return s.db.Create(&Conversation{SessionKey: sessionKey, MessageCount: 0}).Error
}

// ListConversations returns all known session keys with history.
func (s *gormStore) ListConversations() ([]string, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	var convs []Conversation
	if err := s.db.Find(&convs).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch conversations: %w", err)
	}

	keys := make([]string, len(convs))
	for i, c := range convs {
		keys[i] = c.SessionKey
	}
	return keys, nil
}

// ---- TurnLog ----

// RecordTurn appends one routed-turn audit entry.
func (s *gormStore) RecordTurn(rec *TurnRecord) error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}
	return s.db.Create(rec).Error
}

// TurnsForSession retrieves the audit trail for a session in order.
func (s *gormStore) TurnsForSession(sessionKey string) ([]*TurnRecord, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	var recs []*TurnRecord
	err := s.db.Where("session_key = ?", sessionKey).Order("created_at ASC").Find(&recs).Error
	return recs, err
}
