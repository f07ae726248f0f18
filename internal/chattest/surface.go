// Package chattest provides an in-memory chat surface for tests. It keeps the
// set of bot messages each user can currently see.
package chattest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/m3rciful/intakebot/core/chat"
)

// ErrInjected is returned by operations configured to fail.
var ErrInjected = errors.New("chattest: injected failure")

// Sent is a message delivered by the bot.
type Sent struct {
	UserID    int64
	MessageID int
	Text      string
	// FileID is set for photo messages.
	FileID   string
	Keyboard chat.Keyboard
}

// Surface implements chat.Surface in memory.
type Surface struct {
	mu      sync.Mutex
	nextID  int
	visible map[int64]map[int]Sent
	sent    []Sent
	deleted []int
	answers []string
	edits   int

	stale map[string]bool

	// Fail* flags make the matching operation return ErrInjected.
	FailSend   bool
	FailPhoto  bool
	FailDelete bool
	FailEdit   bool
	FailAnswer bool
}

var _ chat.Surface = (*Surface)(nil)

// New constructs an empty Surface. Message ids start at 1000 so they never
// collide with incoming user message ids used by tests.
func New() *Surface {
	return &Surface{
		nextID:  1000,
		visible: make(map[int64]map[int]Sent),
		stale:   make(map[string]bool),
	}
}

// MarkStale makes photo sends with fileID fail with chat.ErrStaleMedia.
func (s *Surface) MarkStale(fileID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stale[fileID] = true
}

// Deliver registers an incoming user message as visible in the chat.
func (s *Surface) Deliver(userID int64, messageID int, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.show(Sent{UserID: userID, MessageID: messageID, Text: text})
}

func (s *Surface) SendText(ctx context.Context, userID int64, text string, kb chat.Keyboard) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailSend {
		return 0, fmt.Errorf("send text: %w", ErrInjected)
	}
	return s.add(Sent{UserID: userID, Text: text, Keyboard: kb}), nil
}

func (s *Surface) SendPhoto(ctx context.Context, userID int64, media chat.Media, caption string, kb chat.Keyboard) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stale[media.FileID] {
		return 0, fmt.Errorf("send photo %s: %w", media.FileID, chat.ErrStaleMedia)
	}
	if s.FailPhoto || s.FailSend {
		return 0, fmt.Errorf("send photo: %w", ErrInjected)
	}
	return s.add(Sent{UserID: userID, Text: caption, FileID: media.FileID, Keyboard: kb}), nil
}

func (s *Surface) EditText(ctx context.Context, userID int64, messageID int, text string, kb chat.Keyboard) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.visible[userID][messageID]
	if s.FailEdit || !ok || msg.FileID != "" {
		return fmt.Errorf("edit %d: %w", messageID, ErrInjected)
	}
	msg.Text = text
	msg.Keyboard = kb
	s.visible[userID][messageID] = msg
	s.edits++
	return nil
}

func (s *Surface) Delete(ctx context.Context, userID int64, messageID int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailDelete {
		return fmt.Errorf("delete %d: %w", messageID, ErrInjected)
	}
	if _, ok := s.visible[userID][messageID]; !ok {
		return fmt.Errorf("delete %d: message not found", messageID)
	}
	delete(s.visible[userID], messageID)
	s.deleted = append(s.deleted, messageID)
	return nil
}

func (s *Surface) AnswerCallback(ctx context.Context, callbackID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answers = append(s.answers, callbackID)
	if s.FailAnswer {
		return fmt.Errorf("answer %s: %w", callbackID, ErrInjected)
	}
	return nil
}

// Visible returns the messages the user currently sees, sorted by id.
func (s *Surface) Visible(userID int64) []Sent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Sent, 0, len(s.visible[userID]))
	for _, m := range s.visible[userID] {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MessageID < out[j].MessageID })
	return out
}

// VisibleFromBot returns only the bot messages the user currently sees.
func (s *Surface) VisibleFromBot(userID int64) []Sent {
	var out []Sent
	for _, m := range s.Visible(userID) {
		if m.MessageID >= 1000 {
			out = append(out, m)
		}
	}
	return out
}

// Sent returns every message sent so far.
func (s *Surface) Sent() []Sent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Sent(nil), s.sent...)
}

// Deleted returns the ids of deleted messages in order.
func (s *Surface) Deleted() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.deleted...)
}

// Answers returns answered callback ids in order.
func (s *Surface) Answers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.answers...)
}

// Edits returns the number of successful in-place edits.
func (s *Surface) Edits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.edits
}

func (s *Surface) add(m Sent) int {
	s.nextID++
	m.MessageID = s.nextID
	s.sent = append(s.sent, m)
	s.show(m)
	return m.MessageID
}

func (s *Surface) show(m Sent) {
	if s.visible[m.UserID] == nil {
		s.visible[m.UserID] = make(map[int]Sent)
	}
	s.visible[m.UserID][m.MessageID] = m
}
