package chattest

import (
	"context"
	"errors"
	"testing"

	"github.com/m3rciful/intakebot/core/chat"
)

func TestSurfaceVisibility(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.Deliver(1, 5, "hello")
	id, err := s.SendText(ctx, 1, "menu", nil)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if got := len(s.Visible(1)); got != 2 {
		t.Fatalf("expected 2 visible, got %d", got)
	}
	if err := s.Delete(ctx, 1, 5); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Delete(ctx, 1, 5); err == nil {
		t.Fatal("deleting twice must fail")
	}
	bot := s.VisibleFromBot(1)
	if len(bot) != 1 || bot[0].MessageID != id {
		t.Fatalf("unexpected bot messages %+v", bot)
	}
	if err := s.EditText(ctx, 1, id, "edited", nil); err != nil {
		t.Fatalf("edit: %v", err)
	}
	if s.Visible(1)[0].Text != "edited" {
		t.Fatal("edit not applied")
	}
}

func TestSurfaceStalePhoto(t *testing.T) {
	s := New()
	s.MarkStale("old")
	if _, err := s.SendPhoto(context.Background(), 1, chat.Media{FileID: "old"}, "c", nil); !errors.Is(err, chat.ErrStaleMedia) {
		t.Fatalf("expected stale error, got %v", err)
	}
	if _, err := s.SendPhoto(context.Background(), 1, chat.Media{FileID: "new"}, "c", nil); err != nil {
		t.Fatalf("send fresh: %v", err)
	}
}
