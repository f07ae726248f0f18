// Package notify reports completed intake records to the operator chat.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/m3rciful/intakebot/core/logger"
	"github.com/m3rciful/intakebot/core/telegram/format"
	"github.com/m3rciful/intakebot/core/telegram/sender"
	"github.com/m3rciful/intakebot/internal/records"
)

// MarkdownSender delivers a MarkdownV2 message to a chat.
type MarkdownSender interface {
	SendMarkdown(ctx context.Context, chatID int64, text string) error
}

// Queue runs outbound calls asynchronously.
type Queue interface {
	Enqueue(ctx context.Context, action, endpoint string, run sender.RunFunc) error
}

// Notifier sends record summaries to the admin chat.
type Notifier struct {
	adminID int64
	client  MarkdownSender
	queue   Queue
}

// New constructs a Notifier. A zero adminID disables notifications; a nil
// queue sends synchronously.
func New(adminID int64, client MarkdownSender, queue Queue) *Notifier {
	return &Notifier{adminID: adminID, client: client, queue: queue}
}

// Enabled reports whether an admin chat is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && n.adminID != 0 && n.client != nil
}

// RecordCompleted schedules a summary of rec. When the queue is saturated or
// closed the message is sent inline.
func (n *Notifier) RecordCompleted(ctx context.Context, kind records.Kind, rec records.Record) error {
	if !n.Enabled() {
		return nil
	}
	text := Summary(kind, rec)
	run := func(ctx context.Context) error {
		return n.client.SendMarkdown(ctx, n.adminID, text)
	}
	if n.queue == nil {
		return run(ctx)
	}
	action := "notify." + string(kind)
	if err := n.queue.Enqueue(ctx, action, "sendMessage", run); err != nil {
		if errors.Is(err, sender.ErrQueueFull) || errors.Is(err, sender.ErrQueueClosed) {
			logger.Warn(ctx, "notify", "queue.fallback",
				slog.String("op", action),
				logger.Err(err),
			)
			return run(ctx)
		}
		return fmt.Errorf("notify: enqueue: %w", err)
	}
	return nil
}

// Summary renders rec as a MarkdownV2 message.
func Summary(kind records.Kind, rec records.Record) string {
	title := "New order"
	textLabel := "Task"
	if kind == records.KindTest {
		title = "New test registration"
		textLabel = "Channel"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*%s* \\#%d\n", format.MustEscapeV2(title), rec.ID)
	user := rec.Name
	if rec.Username != "" {
		user += " @" + rec.Username
	}
	fmt.Fprintf(&b, "*User:* %s \\(`%d`\\)\n", format.MustEscapeV2(user), rec.UserID)
	if rec.Text != "" {
		fmt.Fprintf(&b, "*%s:* %s\n", textLabel, format.MustEscapeV2(rec.Text))
	}
	fmt.Fprintf(&b, "*Contacts:* %s", format.MustEscapeV2(rec.Contacts))
	return b.String()
}
