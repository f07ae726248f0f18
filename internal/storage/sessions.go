package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/intakebot/core/telegram/state"
)

// SessionStore persists conversation sessions in bot_sessions.
type SessionStore struct {
	db *sqlx.DB
}

var _ state.Store = (*SessionStore)(nil)

// NewSessionStore constructs a SessionStore.
func NewSessionStore(db *sqlx.DB) *SessionStore {
	return &SessionStore{db: db}
}

type sessionRow struct {
	UserID        int64          `db:"user_id"`
	State         string         `db:"state"`
	Language      sql.NullString `db:"language"`
	LastMessageID sql.NullInt64  `db:"last_message_id"`
}

// Load returns the stored session; a missing row yields an idle session.
func (s *SessionStore) Load(ctx context.Context, userID int64) (state.Session, error) {
	var row sessionRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(
		`SELECT user_id, state, language, last_message_id FROM bot_sessions WHERE user_id = ?`), userID)
	if errors.Is(err, sql.ErrNoRows) {
		return state.Session{UserID: userID, State: state.StateIdle}, nil
	}
	if err != nil {
		return state.Session{}, fmt.Errorf("storage: load session: %w", err)
	}
	sess := state.Session{
		UserID:        row.UserID,
		State:         state.State(row.State),
		Language:      row.Language.String,
		LastMessageID: int(row.LastMessageID.Int64),
	}
	if sess.State == "" {
		sess.State = state.StateIdle
	}
	return sess, nil
}

// SaveState upserts the conversation state.
func (s *SessionStore) SaveState(ctx context.Context, userID int64, st state.State) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO bot_sessions (user_id, state)
		VALUES (?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			state = EXCLUDED.state,
			updated_at = CURRENT_TIMESTAMP`), userID, string(st))
	if err != nil {
		return fmt.Errorf("storage: save state: %w", err)
	}
	return nil
}

// SaveLanguage upserts the language together with the state.
func (s *SessionStore) SaveLanguage(ctx context.Context, userID int64, lang string, st state.State) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO bot_sessions (user_id, state, language)
		VALUES (?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			state = EXCLUDED.state,
			language = EXCLUDED.language,
			updated_at = CURRENT_TIMESTAMP`), userID, string(st), lang)
	if err != nil {
		return fmt.Errorf("storage: save language: %w", err)
	}
	return nil
}

// LastMessage returns the id of the visible bot message, if any.
func (s *SessionStore) LastMessage(ctx context.Context, userID int64) (int, bool, error) {
	var id sql.NullInt64
	err := s.db.GetContext(ctx, &id, s.db.Rebind(
		`SELECT last_message_id FROM bot_sessions WHERE user_id = ?`), userID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("storage: last message: %w", err)
	}
	if !id.Valid || id.Int64 == 0 {
		return 0, false, nil
	}
	return int(id.Int64), true, nil
}

// SetLastMessage upserts the visible message id and its timestamp.
func (s *SessionStore) SetLastMessage(ctx context.Context, userID int64, messageID int) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO bot_sessions (user_id, last_message_id, message_updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (user_id) DO UPDATE SET
			last_message_id = EXCLUDED.last_message_id,
			message_updated_at = CURRENT_TIMESTAMP,
			updated_at = CURRENT_TIMESTAMP`), userID, messageID)
	if err != nil {
		return fmt.Errorf("storage: set last message: %w", err)
	}
	return nil
}

// TouchLastMessage refreshes message_updated_at without changing the id.
func (s *SessionStore) TouchLastMessage(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`UPDATE bot_sessions SET message_updated_at = CURRENT_TIMESTAMP WHERE user_id = ?`), userID)
	if err != nil {
		return fmt.Errorf("storage: touch last message: %w", err)
	}
	return nil
}
