package state

import "context"

// State identifies a finite-state-machine step used in conversations.
type State string

const (
	// StateIdle indicates there is no active conversation with the user.
	StateIdle State = "idle"
)

// Session is the persisted conversation record of one user.
type Session struct {
	UserID int64
	State  State
	// Language is empty until the user picks one.
	Language string
	// LastMessageID is the bot message currently visible to the user; 0 means none.
	LastMessageID int
}

// HasLanguage reports whether the user already picked a language.
func (s Session) HasLanguage() bool {
	return s.Language != ""
}

// Store persists sessions. A user without a stored row behaves as an idle
// session without language or visible message; rows are created on first write.
type Store interface {
	Load(ctx context.Context, userID int64) (Session, error)
	SaveState(ctx context.Context, userID int64, st State) error
	// SaveLanguage stores the language and the state in one write.
	SaveLanguage(ctx context.Context, userID int64, lang string, st State) error

	LastMessage(ctx context.Context, userID int64) (int, bool, error)
	SetLastMessage(ctx context.Context, userID int64, messageID int) error
	// TouchLastMessage refreshes the freshness timestamp of the visible message.
	TouchLastMessage(ctx context.Context, userID int64) error
}
