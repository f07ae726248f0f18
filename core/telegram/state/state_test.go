package state

import (
	"context"
	"testing"
)

func TestMemoryStoreDefaults(t *testing.T) {
	store := NewMemoryStore()
	sess, err := store.Load(context.Background(), 5)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if sess.State != StateIdle || sess.HasLanguage() || sess.LastMessageID != 0 {
		t.Fatalf("unexpected default session %+v", sess)
	}
	if _, ok, _ := store.LastMessage(context.Background(), 5); ok {
		t.Fatal("expected no last message")
	}
	if store.StateWrites() != 0 {
		t.Fatal("load must not write")
	}
}

func TestMemoryStoreWrites(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.SaveLanguage(ctx, 1, "en", StateIdle); err != nil {
		t.Fatalf("save language: %v", err)
	}
	if err := store.SaveState(ctx, 1, State("awaiting")); err != nil {
		t.Fatalf("save state: %v", err)
	}
	if err := store.SetLastMessage(ctx, 1, 42); err != nil {
		t.Fatalf("set last: %v", err)
	}
	sess, _ := store.Load(ctx, 1)
	if sess.Language != "en" || sess.State != "awaiting" || sess.LastMessageID != 42 {
		t.Fatalf("unexpected session %+v", sess)
	}
	if id, ok, _ := store.LastMessage(ctx, 1); !ok || id != 42 {
		t.Fatalf("unexpected last message %d %v", id, ok)
	}
}

func TestTableResolve(t *testing.T) {
	table := NewTable[string]()
	table.Register(StateIdle, "idle")
	table.Register("awaiting", "awaiting")

	if table.Resolve("bogus") != StateIdle {
		t.Fatal("unknown state must resolve to idle")
	}
	if h, ok := table.Lookup(""); !ok || h != "idle" {
		t.Fatalf("empty state lookup = %q %v", h, ok)
	}
	if h, ok := table.Lookup("awaiting"); !ok || h != "awaiting" {
		t.Fatalf("lookup = %q %v", h, ok)
	}
}
