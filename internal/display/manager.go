// Package display keeps at most one bot message visible per user: every new
// screen replaces the previous one.
package display

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/m3rciful/intakebot/core/chat"
	"github.com/m3rciful/intakebot/core/logger"
	"github.com/m3rciful/intakebot/internal/assets"
)

// MessageStore tracks the visible bot message of each user.
type MessageStore interface {
	LastMessage(ctx context.Context, userID int64) (int, bool, error)
	SetLastMessage(ctx context.Context, userID int64, messageID int) error
	TouchLastMessage(ctx context.Context, userID int64) error
}

// Resolver turns asset refs into media handles.
type Resolver interface {
	Resolve(ctx context.Context, ref assets.Ref) (chat.Media, error)
	// Refresh discards the cached handle and uploads again.
	Refresh(ctx context.Context, ref assets.Ref) (chat.Media, error)
}

// Manager renders screens through a chat surface.
type Manager struct {
	surface  chat.Surface
	messages MessageStore
	assets   Resolver
}

// New constructs a Manager.
func New(surface chat.Surface, messages MessageStore, resolver Resolver) *Manager {
	return &Manager{surface: surface, messages: messages, assets: resolver}
}

// RenderText replaces the visible message with a text message.
func (m *Manager) RenderText(ctx context.Context, userID int64, text string, kb chat.Keyboard) (int, error) {
	m.clear(ctx, userID)
	id, err := m.surface.SendText(ctx, userID, text, kb)
	if err != nil {
		return 0, fmt.Errorf("display: send text: %w", err)
	}
	return id, m.remember(ctx, userID, id)
}

// RenderImage replaces the visible message with a photo. The asset is
// resolved before anything is deleted, so a resolution failure leaves the
// current message in place and returns an error wrapping assets.ErrUnavailable.
func (m *Manager) RenderImage(ctx context.Context, userID int64, ref assets.Ref, caption string, kb chat.Keyboard) (int, error) {
	media, err := m.assets.Resolve(ctx, ref)
	if err != nil {
		return 0, fmt.Errorf("display: resolve %s: %w", ref, err)
	}

	m.clear(ctx, userID)
	id, err := m.surface.SendPhoto(ctx, userID, media, caption, kb)
	if errors.Is(err, chat.ErrStaleMedia) {
		logger.Warn(ctx, "display", "photo.stale",
			slog.String("asset", ref.Key()),
			logger.Err(err),
		)
		media, err = m.assets.Refresh(ctx, ref)
		if err != nil {
			return 0, fmt.Errorf("display: refresh %s: %w", ref, err)
		}
		id, err = m.surface.SendPhoto(ctx, userID, media, caption, kb)
	}
	if err != nil {
		return 0, fmt.Errorf("display: send photo: %w", err)
	}
	return id, m.remember(ctx, userID, id)
}

// EditText edits the visible message in place. When there is nothing to edit
// or the edit fails the screen is rendered anew with RenderText.
func (m *Manager) EditText(ctx context.Context, userID int64, text string, kb chat.Keyboard) (int, error) {
	last, ok, err := m.messages.LastMessage(ctx, userID)
	if err != nil {
		logger.Warn(ctx, "display", "last_message.load", logger.Err(err))
	}
	if ok {
		editErr := m.surface.EditText(ctx, userID, last, text, kb)
		if editErr == nil {
			if err := m.messages.TouchLastMessage(ctx, userID); err != nil {
				logger.Warn(ctx, "display", "last_message.touch", logger.Err(err))
			}
			return last, nil
		}
		logger.Debug(ctx, "display", "edit.fallback",
			slog.Int("message_id", last),
			logger.Err(editErr),
		)
	}
	return m.RenderText(ctx, userID, text, kb)
}

// clear deletes the visible message. Failures are logged and ignored: the
// message may already be gone or too old to delete.
func (m *Manager) clear(ctx context.Context, userID int64) {
	last, ok, err := m.messages.LastMessage(ctx, userID)
	if err != nil {
		logger.Warn(ctx, "display", "last_message.load", logger.Err(err))
		return
	}
	if !ok {
		return
	}
	if err := m.surface.Delete(ctx, userID, last); err != nil {
		logger.Debug(ctx, "display", "delete.previous",
			slog.String("status", "fail"),
			slog.Int("message_id", last),
			logger.Err(err),
		)
	}
}

func (m *Manager) remember(ctx context.Context, userID int64, messageID int) error {
	if err := m.messages.SetLastMessage(ctx, userID, messageID); err != nil {
		return fmt.Errorf("display: remember message %d: %w", messageID, err)
	}
	return nil
}
