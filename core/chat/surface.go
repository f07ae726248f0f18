package chat

import (
	"context"
	"errors"
)

// ErrStaleMedia marks a send that failed because the platform no longer
// accepts the media handle.
var ErrStaleMedia = errors.New("chat: stale media handle")

// Button is a single inline keyboard button carrying callback data.
type Button struct {
	Text string
	Data string
}

// Keyboard is an inline keyboard laid out in rows. A nil keyboard sends no markup.
type Keyboard [][]Button

// Row is a small helper to build one keyboard row.
func Row(buttons ...Button) []Button {
	return buttons
}

// Media is a platform handle to previously uploaded media that can be sent
// again without re-uploading.
type Media struct {
	// MessageID is the numeric id of the message holding the upload.
	MessageID int
	// FileID is the reusable access credential.
	FileID string
	// UniqueID is the stable reference of the file across bots.
	UniqueID string
}

// Empty reports whether the handle carries no reusable credential.
func (m Media) Empty() bool {
	return m.FileID == ""
}

// Surface is the set of chat operations the bot performs on behalf of a user.
// Every call addresses the private chat with the given user id.
type Surface interface {
	SendText(ctx context.Context, userID int64, text string, kb Keyboard) (int, error)
	SendPhoto(ctx context.Context, userID int64, media Media, caption string, kb Keyboard) (int, error)
	EditText(ctx context.Context, userID int64, messageID int, text string, kb Keyboard) error
	Delete(ctx context.Context, userID int64, messageID int) error
	AnswerCallback(ctx context.Context, callbackID string) error
}
