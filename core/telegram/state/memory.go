package state

import (
	"context"
	"sync"
	"time"
)

type memorySession struct {
	Session
	messageUpdatedAt time.Time
}

// MemoryStore is an in-memory Store implementation for tests and development.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[int64]*memorySession
	writes   int
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[int64]*memorySession)}
}

// Load returns the stored session or a default idle one.
func (m *MemoryStore) Load(_ context.Context, userID int64) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if sess, ok := m.sessions[userID]; ok {
		return sess.Session, nil
	}
	return Session{UserID: userID, State: StateIdle}, nil
}

// SaveState updates the state, creating the session if necessary.
func (m *MemoryStore) SaveState(_ context.Context, userID int64, st State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upsert(userID).State = st
	m.writes++
	return nil
}

// SaveLanguage stores the language and the state together.
func (m *MemoryStore) SaveLanguage(_ context.Context, userID int64, lang string, st State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess := m.upsert(userID)
	sess.Language = lang
	sess.State = st
	m.writes++
	return nil
}

// LastMessage returns the visible message id, if any.
func (m *MemoryStore) LastMessage(_ context.Context, userID int64) (int, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[userID]
	if !ok || sess.LastMessageID == 0 {
		return 0, false, nil
	}
	return sess.LastMessageID, true, nil
}

// SetLastMessage records the visible message id.
func (m *MemoryStore) SetLastMessage(_ context.Context, userID int64, messageID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess := m.upsert(userID)
	sess.LastMessageID = messageID
	sess.messageUpdatedAt = time.Now()
	return nil
}

// TouchLastMessage refreshes the freshness timestamp only.
func (m *MemoryStore) TouchLastMessage(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[userID]; ok {
		sess.messageUpdatedAt = time.Now()
	}
	return nil
}

// StateWrites returns how many state or language writes happened so far.
func (m *MemoryStore) StateWrites() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}

func (m *MemoryStore) upsert(userID int64) *memorySession {
	sess, ok := m.sessions[userID]
	if !ok {
		sess = &memorySession{Session: Session{UserID: userID, State: StateIdle}}
		m.sessions[userID] = sess
	}
	return sess
}
