package engine

import (
	"context"
	"testing"
	"time"

	"github.com/m3rciful/intakebot/core/chat"
	"github.com/m3rciful/intakebot/core/config"
	"github.com/m3rciful/intakebot/core/dispatch"
	"github.com/m3rciful/intakebot/internal/records"
)

// backlogSource hands out one batch, then stops the loop.
type backlogSource struct {
	events []chat.Event
	cancel context.CancelFunc
}

func (s *backlogSource) Fetch(ctx context.Context, _ int, _ time.Duration) ([]chat.Event, error) {
	if s.events == nil {
		s.cancel()
		return nil, ctx.Err()
	}
	batch := s.events
	s.events = nil
	return batch, nil
}

func TestBacklogOfMessagesSurvivesRateLimit(t *testing.T) {
	h := newHarness(t, allImages(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := h.sessions.SaveLanguage(ctx, userID, "ru", StateAwaitingOrderTask); err != nil {
		t.Fatalf("seed: %v", err)
	}

	var batch []chat.Event
	for i, text := range []string{"Need a logo", "+1 555"} {
		id := 100 + i
		h.surface.Deliver(userID, id, text)
		batch = append(batch, chat.Message{Update: 1 + i, From: h.user(), MessageID: id, Text: text})
	}

	// both events are stamped with the same instant, as happens when a
	// backlog is drained right after a restart
	frozen := time.Unix(1_700_000_000, 0)
	rl := config.RateLimitConfig{IntervalMS: 700, ExcludeUpdates: []string{config.UpdateCallback}}
	loop := dispatch.New(dispatch.Options{
		Source:  &backlogSource{events: batch, cancel: cancel},
		Handler: h.engine,
		Middlewares: []dispatch.Middleware{
			dispatch.RateLimit(dispatch.RateLimitOptions{
				Interval: rl.Interval(),
				Exclude:  dispatch.ExcludeSet(rl.Exempt()),
				Now:      func() time.Time { return frozen },
			}),
		},
		Cursor: 1,
	})
	if err := loop.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	if loop.Cursor() != 3 {
		t.Fatalf("cursor = %d, want 3", loop.Cursor())
	}
	h.mustState(StateIdle)
	orders := h.records.All(records.KindOrder)
	if len(orders) != 1 || orders[0].Text != "Need a logo" || orders[0].Contacts != "+1 555" {
		t.Fatalf("order not completed from backlog: %+v", orders)
	}
	if deleted := h.surface.Deleted(); len(deleted) < 2 {
		t.Fatalf("both incoming messages should be removed, got %v", deleted)
	}
}
