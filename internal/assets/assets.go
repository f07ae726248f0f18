// Package assets uploads local images once into a cache channel and reuses the
// returned media handle afterwards.
package assets

import (
	"context"
	"errors"
	"fmt"

	"github.com/m3rciful/intakebot/core/chat"
)

var (
	// ErrUnavailable marks any failure to produce a usable media handle.
	ErrUnavailable = errors.New("assets: unavailable")
	// ErrAssetNotFound is returned when the local repository has no file for a ref.
	ErrAssetNotFound = fmt.Errorf("%w: asset file not found", ErrUnavailable)
	// ErrNoEntry is returned by stores on a lookup miss.
	ErrNoEntry = errors.New("assets: no cache entry")
)

// Ref names an asset by its subfolder and base name (without extension).
type Ref struct {
	Subfolder string
	Name      string
}

// Key returns the logical name used as the cache key.
func (r Ref) Key() string {
	if r.Subfolder == "" {
		return r.Name
	}
	return r.Subfolder + "/" + r.Name
}

// Path returns the location of the image inside the asset repository.
func (r Ref) Path() string {
	return r.Key() + ".png"
}

func (r Ref) String() string { return r.Key() }

// Entry is one cached handle.
type Entry struct {
	Name      string
	Subfolder string
	Media     chat.Media
}

// Store persists cache entries keyed by logical name.
type Store interface {
	// Get returns ErrNoEntry when the name is not cached.
	Get(ctx context.Context, name string) (Entry, error)
	// Put inserts or replaces the entry.
	Put(ctx context.Context, e Entry) error
	Delete(ctx context.Context, name string) error
}

// Uploader posts raw image bytes to a chat and returns the resulting handle.
type Uploader interface {
	Upload(ctx context.Context, channelID int64, data []byte, caption string) (chat.Media, error)
}
