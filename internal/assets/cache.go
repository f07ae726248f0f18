package assets

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/m3rciful/intakebot/core/chat"
	"github.com/m3rciful/intakebot/core/logger"
)

// CacheOptions configures NewCache.
type CacheOptions struct {
	Store     Store
	Uploader  Uploader
	Files     fs.FS
	ChannelID int64
	// NewID generates upload ids; uuid.NewString is used when nil.
	NewID func() string
}

// Cache resolves asset refs to reusable media handles. There is no
// cross-process lock: concurrent misses both upload and the last write wins.
//
// Handles the store failed to persist are held in process and written back on
// the next lookup, so an outage of the store does not turn every render into
// a fresh upload.
type Cache struct {
	store     Store
	uploader  Uploader
	files     fs.FS
	channelID int64
	newID     func() string

	mu      sync.Mutex
	unsaved map[string]Entry
}

// NewCache constructs a Cache.
func NewCache(opts CacheOptions) (*Cache, error) {
	if opts.Store == nil || opts.Uploader == nil || opts.Files == nil {
		return nil, fmt.Errorf("assets: store, uploader and files are required")
	}
	if opts.ChannelID == 0 {
		return nil, fmt.Errorf("assets: cache channel id is required")
	}
	newID := opts.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	return &Cache{
		store:     opts.Store,
		uploader:  opts.Uploader,
		files:     opts.Files,
		channelID: opts.ChannelID,
		newID:     newID,
		unsaved:   make(map[string]Entry),
	}, nil
}

// Resolve returns the cached handle for ref, uploading the local file on a miss.
// Every returned error wraps ErrUnavailable.
func (c *Cache) Resolve(ctx context.Context, ref Ref) (chat.Media, error) {
	key := ref.Key()
	entry, err := c.store.Get(ctx, key)
	switch {
	case err == nil && !entry.Media.Empty():
		logger.Debug(ctx, "assets", "resolve",
			slog.String("asset", key),
			slog.String("cache", "hit"),
		)
		return entry.Media, nil
	case err != nil && !errors.Is(err, ErrNoEntry):
		if media, ok := c.recall(ctx, key); ok {
			return media, nil
		}
		return chat.Media{}, fmt.Errorf("%w: lookup %s: %v", ErrUnavailable, key, err)
	}
	if media, ok := c.recall(ctx, key); ok {
		return media, nil
	}
	return c.upload(ctx, ref, "miss")
}

// recall returns a handle uploaded earlier but not yet persisted and tries to
// write it to the store again.
func (c *Cache) recall(ctx context.Context, key string) (chat.Media, bool) {
	c.mu.Lock()
	entry, ok := c.unsaved[key]
	c.mu.Unlock()
	if !ok {
		return chat.Media{}, false
	}
	if err := c.store.Put(ctx, entry); err == nil {
		c.forget(key, entry.Media)
		logger.Info(ctx, "assets", "store",
			slog.String("asset", key),
			slog.String("status", "ok"),
		)
	}
	logger.Debug(ctx, "assets", "resolve",
		slog.String("asset", key),
		slog.String("cache", "hit"),
	)
	return entry.Media, true
}

// forget drops the unsaved handle for key unless it was replaced meanwhile.
func (c *Cache) forget(key string, media chat.Media) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.unsaved[key]; ok && cur.Media == media {
		delete(c.unsaved, key)
	}
}

// Refresh drops the cached handle for ref and uploads the file again.
func (c *Cache) Refresh(ctx context.Context, ref Ref) (chat.Media, error) {
	if err := c.Invalidate(ctx, ref); err != nil {
		logger.Warn(ctx, "assets", "invalidate",
			slog.String("asset", ref.Key()),
			logger.Err(err),
		)
	}
	return c.upload(ctx, ref, "refresh")
}

// Invalidate removes the cached handle for ref.
func (c *Cache) Invalidate(ctx context.Context, ref Ref) error {
	c.mu.Lock()
	delete(c.unsaved, ref.Key())
	c.mu.Unlock()
	if err := c.store.Delete(ctx, ref.Key()); err != nil {
		return fmt.Errorf("assets: invalidate %s: %w", ref.Key(), err)
	}
	logger.Info(ctx, "assets", "invalidate",
		slog.String("asset", ref.Key()),
		slog.String("cache", "stale"),
	)
	return nil
}

func (c *Cache) upload(ctx context.Context, ref Ref, outcome string) (chat.Media, error) {
	key := ref.Key()
	data, err := fs.ReadFile(c.files, ref.Path())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return chat.Media{}, fmt.Errorf("%w: %s", ErrAssetNotFound, ref.Path())
		}
		return chat.Media{}, fmt.Errorf("%w: read %s: %v", ErrUnavailable, ref.Path(), err)
	}

	uploadID := c.newID()
	start := time.Now()
	media, err := c.uploader.Upload(ctx, c.channelID, data, fmt.Sprintf("[CACHE] %s %s", key, uploadID))
	if err != nil {
		return chat.Media{}, fmt.Errorf("%w: upload %s: %v", ErrUnavailable, key, err)
	}
	if media.Empty() {
		return chat.Media{}, fmt.Errorf("%w: upload %s returned no photo", ErrUnavailable, key)
	}

	entry := Entry{Name: key, Subfolder: ref.Subfolder, Media: media}
	if err := c.store.Put(ctx, entry); err != nil {
		c.mu.Lock()
		c.unsaved[key] = entry
		c.mu.Unlock()
		logger.Warn(ctx, "assets", "store",
			slog.String("asset", key),
			slog.String("upload_id", uploadID),
			slog.String("status", "fail"),
			logger.Err(err),
		)
	} else {
		c.forget(key, media)
	}
	logger.Info(ctx, "assets", "upload",
		slog.String("asset", key),
		slog.String("cache", outcome),
		slog.String("upload_id", uploadID),
		slog.Int("message_id", media.MessageID),
		slog.Duration("duration", time.Since(start)),
	)
	return media, nil
}

// Prewarm resolves every ref so the first user does not wait for uploads.
// All refs are tried; failures are returned joined.
func (c *Cache) Prewarm(ctx context.Context, refs []Ref) error {
	var errs []error
	for _, ref := range refs {
		if _, err := c.Resolve(ctx, ref); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
