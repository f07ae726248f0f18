package chattest

import (
	"context"
	"fmt"
	"sync"

	"github.com/m3rciful/intakebot/core/chat"
)

// Uploader records cache-channel uploads and hands out sequential file ids.
type Uploader struct {
	mu       sync.Mutex
	n        int
	captions []string
	Fail     bool
}

func (u *Uploader) Upload(ctx context.Context, channelID int64, data []byte, caption string) (chat.Media, error) {
	if err := ctx.Err(); err != nil {
		return chat.Media{}, err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.Fail {
		return chat.Media{}, fmt.Errorf("upload: %w", ErrInjected)
	}
	u.n++
	u.captions = append(u.captions, caption)
	return chat.Media{
		MessageID: u.n,
		FileID:    fmt.Sprintf("file-%d", u.n),
		UniqueID:  fmt.Sprintf("uniq-%d", u.n),
	}, nil
}

// Uploads returns the number of successful uploads.
func (u *Uploader) Uploads() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.n
}

// Captions returns the captions of successful uploads.
func (u *Uploader) Captions() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.captions...)
}
