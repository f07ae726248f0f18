package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/m3rciful/intakebot/core/chat"
)

// scriptedSource replays batches, then cancels the loop once they are consumed.
type scriptedSource struct {
	mu      sync.Mutex
	batches []sourceStep
	cursors []int
	cancel  context.CancelFunc
}

type sourceStep struct {
	events []chat.Event
	err    error
}

func (s *scriptedSource) Fetch(ctx context.Context, cursor int, _ time.Duration) ([]chat.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursors = append(s.cursors, cursor)
	if len(s.batches) == 0 {
		s.cancel()
		return nil, ctx.Err()
	}
	step := s.batches[0]
	s.batches = s.batches[1:]
	return step.events, step.err
}

func msg(update int, user int64, text string) chat.Event {
	return chat.Message{Update: update, From: chat.User{ID: user}, Text: text}
}

func TestLoopAdvancesCursorDespiteHandlerErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := &scriptedSource{cancel: cancel, batches: []sourceStep{
		{events: []chat.Event{msg(10, 1, "a"), msg(11, 1, "b")}},
		{events: []chat.Event{chat.Ignored{Update: 12}}},
	}}
	var seen []int
	loop := New(Options{
		Source: src,
		Handler: HandlerFunc(func(_ context.Context, ev chat.Event) error {
			seen = append(seen, ev.UpdateID())
			return errors.New("handler failed")
		}),
		Cursor: 10,
	})
	if err := loop.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(seen) != 3 || seen[0] != 10 || seen[2] != 12 {
		t.Fatalf("unexpected handled order %v", seen)
	}
	if loop.Cursor() != 13 {
		t.Fatalf("cursor = %d, want 13", loop.Cursor())
	}
	want := []int{10, 12, 13}
	for i, c := range want {
		if src.cursors[i] != c {
			t.Fatalf("fetch %d used cursor %d, want %d", i, src.cursors[i], c)
		}
	}
}

func TestLoopBacksOffAfterFetchError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := &scriptedSource{cancel: cancel, batches: []sourceStep{
		{err: errors.New("network down")},
		{events: []chat.Event{msg(5, 1, "x")}},
	}}
	handled := 0
	loop := New(Options{
		Source:  src,
		Handler: HandlerFunc(func(context.Context, chat.Event) error { handled++; return nil }),
		Backoff: 20 * time.Millisecond,
	})
	start := time.Now()
	if err := loop.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Fatal("expected back-off pause after fetch error")
	}
	if handled != 1 || loop.Cursor() != 6 {
		t.Fatalf("handled=%d cursor=%d", handled, loop.Cursor())
	}
	if src.cursors[0] != 0 || src.cursors[1] != 0 {
		t.Fatalf("failed fetch must be retried with the same cursor: %v", src.cursors)
	}
}

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next Handler) Handler {
			return HandlerFunc(func(ctx context.Context, ev chat.Event) error {
				order = append(order, name)
				return next.Handle(ctx, ev)
			})
		}
	}
	h := Chain(HandlerFunc(func(context.Context, chat.Event) error {
		order = append(order, "handler")
		return nil
	}), mark("outer"), nil, mark("inner"))
	_ = h.Handle(context.Background(), msg(1, 1, ""))
	if len(order) != 3 || order[0] != "outer" || order[1] != "inner" || order[2] != "handler" {
		t.Fatalf("unexpected order %v", order)
	}
}

func TestRecoverTurnsPanicIntoError(t *testing.T) {
	h := Chain(HandlerFunc(func(context.Context, chat.Event) error {
		panic("boom")
	}), Recover(), Logging())
	if err := h.Handle(context.Background(), msg(1, 1, "hi")); err == nil {
		t.Fatal("expected error from recovered panic")
	}
}

func TestRateLimitDropsBurstsPerUser(t *testing.T) {
	now := time.Unix(0, 0)
	limited := 0
	calls := 0
	h := Chain(HandlerFunc(func(context.Context, chat.Event) error { calls++; return nil }),
		RateLimit(RateLimitOptions{
			Interval:  time.Second,
			Exclude:   ExcludeSet([]string{" Callback "}),
			OnLimited: HandlerFunc(func(context.Context, chat.Event) error { limited++; return nil }),
			Now:       func() time.Time { return now },
		}))
	ctx := context.Background()

	_ = h.Handle(ctx, msg(1, 1, "a"))
	_ = h.Handle(ctx, msg(2, 1, "b"))
	_ = h.Handle(ctx, msg(3, 2, "other user"))
	_ = h.Handle(ctx, chat.Callback{Update: 4, From: chat.User{ID: 1}, Data: "menu_order"})
	now = now.Add(2 * time.Second)
	_ = h.Handle(ctx, msg(5, 1, "c"))

	if calls != 4 || limited != 1 {
		t.Fatalf("calls=%d limited=%d", calls, limited)
	}
}

func TestHandlerName(t *testing.T) {
	cases := []struct {
		ev   chat.Event
		want string
	}{
		{msg(1, 1, "/start"), "start"},
		{msg(1, 1, "hello"), "text"},
		{chat.Callback{Data: "\fmenu_order|x"}, "cb:menu_order"},
		{chat.Callback{}, "callback"},
		{chat.Ignored{}, "ignored"},
	}
	for _, tc := range cases {
		if got := HandlerName(tc.ev); got != tc.want {
			t.Fatalf("HandlerName = %q, want %q", got, tc.want)
		}
	}
}
