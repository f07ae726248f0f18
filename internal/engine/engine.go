package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/m3rciful/intakebot/core/chat"
	"github.com/m3rciful/intakebot/core/logger"
	"github.com/m3rciful/intakebot/core/telegram"
	"github.com/m3rciful/intakebot/core/telegram/callbacks"
	"github.com/m3rciful/intakebot/core/telegram/commands"
	"github.com/m3rciful/intakebot/core/telegram/state"
	"github.com/m3rciful/intakebot/internal/assets"
	"github.com/m3rciful/intakebot/internal/records"
)

// Renderer shows screens while keeping one bot message visible per user.
type Renderer interface {
	RenderText(ctx context.Context, userID int64, text string, kb chat.Keyboard) (int, error)
	RenderImage(ctx context.Context, userID int64, ref assets.Ref, caption string, kb chat.Keyboard) (int, error)
	EditText(ctx context.Context, userID int64, text string, kb chat.Keyboard) (int, error)
}

// Notifier is told about completed records.
type Notifier interface {
	RecordCompleted(ctx context.Context, kind records.Kind, rec records.Record) error
}

// Options configures New.
type Options struct {
	Sessions state.Store
	Records  records.Store
	Display  Renderer
	// Surface deletes incoming messages and answers callbacks.
	Surface chat.Surface
	// Commands resolves aliases to canonical command names; optional.
	Commands *telegram.Registry
	Notifier Notifier

	// RecordTestRegistrations stores test registrations like orders.
	RecordTestRegistrations bool
	// EditInPlace lets plain text screens edit the visible message.
	EditInPlace bool
}

// Engine is the conversation state machine. It keeps no per-user data in
// memory: every event reloads the session.
type Engine struct {
	sessions state.Store
	records  records.Store
	display  Renderer
	surface  chat.Surface
	commands *telegram.Registry
	notifier Notifier
	flags    flags
	table    *state.Table[stateFunc]
}

// New constructs an Engine.
func New(opts Options) (*Engine, error) {
	if opts.Sessions == nil || opts.Records == nil || opts.Display == nil || opts.Surface == nil {
		return nil, fmt.Errorf("engine: sessions, records, display and surface are required")
	}
	return &Engine{
		sessions: opts.Sessions,
		records:  opts.Records,
		display:  opts.Display,
		surface:  opts.Surface,
		commands: opts.Commands,
		notifier: opts.Notifier,
		flags: flags{
			recordTests: opts.RecordTestRegistrations,
			editInPlace: opts.EditInPlace,
		},
		table: newTable(),
	}, nil
}

// RegisterCommands adds the bot commands to reg.
func RegisterCommands(reg *telegram.Registry) error {
	return errors.Join(
		reg.RegisterCommand(CommandStart, commands.Command{Description: "Start / Начать"}),
		reg.RegisterCommand(CommandMenu, commands.Command{Description: "Main menu / Главное меню"}),
		reg.RegisterCommand(CommandLanguage, commands.Command{Description: "Language / Язык", Aliases: []string{"lang"}}),
	)
}

// Handle processes one event. Every step of a transition runs even when an
// earlier one failed; the failures are returned joined.
func (e *Engine) Handle(ctx context.Context, ev chat.Event) error {
	var (
		in        input
		messageID int
		errs      []error
	)
	switch ev := ev.(type) {
	case chat.Message:
		in = input{user: ev.From, text: ev.Text, command: e.canonical(ev.Command())}
		messageID = ev.MessageID
	case chat.Callback:
		if err := e.surface.AnswerCallback(ctx, ev.CallbackID); err != nil {
			errs = append(errs, fmt.Errorf("engine: answer callback: %w", err))
		}
		in = input{user: ev.From, callback: callbacks.Key(ev.Data)}
		if in.callback == "" {
			return errors.Join(errs...)
		}
	case chat.Ignored:
		return nil
	default:
		logger.Warn(ctx, "engine", "event.unknown", slog.String("kind", ev.Kind()))
		return nil
	}

	userID := in.user.ID
	sess, err := e.sessions.Load(ctx, userID)
	if err != nil {
		errs = append(errs, fmt.Errorf("engine: load session: %w", err))
		return errors.Join(errs...)
	}
	cur := e.table.Resolve(sess.State)
	sess.State = cur
	step, _ := e.table.Lookup(cur)
	t := step(e.flags, sess, in)
	if !t.handled {
		logger.Debug(ctx, "engine", "transition.skip", slog.String("state", string(cur)))
		return errors.Join(errs...)
	}

	errs = append(errs, e.apply(ctx, sess, t, messageID)...)
	logger.Debug(ctx, "engine", "transition",
		slog.String("state", string(cur)),
		slog.String("next_state", string(t.next)),
	)
	return errors.Join(errs...)
}

func (e *Engine) apply(ctx context.Context, sess state.Session, t transition, incoming int) []error {
	var errs []error
	userID := sess.UserID

	var (
		written   records.Record
		recordOK  bool
		recordErr error
	)
	if t.record != nil {
		written, recordErr = e.writeRecord(ctx, userID, t.record)
		if recordErr != nil {
			errs = append(errs, recordErr)
		} else {
			recordOK = true
		}
	}

	if t.write {
		var err error
		if t.language != "" {
			err = e.sessions.SaveLanguage(ctx, userID, t.language, t.next)
		} else {
			err = e.sessions.SaveState(ctx, userID, t.next)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("engine: save session: %w", err))
		}
	}

	if t.screen != nil {
		if err := e.render(ctx, userID, t.screen); err != nil {
			errs = append(errs, err)
		}
	}

	if t.deleteIncoming && incoming != 0 {
		if err := e.surface.Delete(ctx, userID, incoming); err != nil {
			logger.Debug(ctx, "engine", "delete.incoming",
				slog.String("status", "fail"),
				slog.Int("message_id", incoming),
				logger.Err(err),
			)
		}
	}

	if recordOK && t.record.notify && e.notifier != nil {
		if err := e.notifier.RecordCompleted(ctx, t.record.kind, written); err != nil {
			errs = append(errs, fmt.Errorf("engine: notify: %w", err))
		}
	}
	return errs
}

func (e *Engine) writeRecord(ctx context.Context, userID int64, w *recordWrite) (records.Record, error) {
	switch w.action {
	case recordCreate:
		rec := w.record
		id, err := e.records.Create(ctx, w.kind, rec)
		if err != nil {
			return records.Record{}, fmt.Errorf("engine: create %s: %w", w.kind, err)
		}
		rec.ID = id
		logger.Info(ctx, "engine", "record.create",
			slog.String("record", string(w.kind)),
			slog.Int64("record_id", id),
		)
		return rec, nil
	case recordUpdateLatest:
		rec, err := e.records.UpdateLatest(ctx, w.kind, userID, w.patch)
		if err != nil {
			return records.Record{}, fmt.Errorf("engine: update %s: %w", w.kind, err)
		}
		logger.Info(ctx, "engine", "record.update",
			slog.String("record", string(w.kind)),
			slog.Int64("record_id", rec.ID),
		)
		return rec, nil
	}
	return records.Record{}, fmt.Errorf("engine: unknown record action %d", w.action)
}

// render shows s. A screen whose image cannot be resolved is shown as text.
func (e *Engine) render(ctx context.Context, userID int64, s *screen) error {
	if s.image != nil {
		_, err := e.display.RenderImage(ctx, userID, *s.image, s.text, s.kb)
		if err == nil {
			return nil
		}
		if !errors.Is(err, assets.ErrUnavailable) {
			return fmt.Errorf("engine: render image: %w", err)
		}
		logger.Warn(ctx, "engine", "render.fallback",
			slog.String("asset", s.image.Key()),
			logger.Err(err),
		)
	}
	var err error
	if s.edit {
		_, err = e.display.EditText(ctx, userID, s.text, s.kb)
	} else {
		_, err = e.display.RenderText(ctx, userID, s.text, s.kb)
	}
	if err != nil {
		return fmt.Errorf("engine: render text: %w", err)
	}
	return nil
}

func (e *Engine) canonical(cmd string) string {
	if cmd == "" || e.commands == nil {
		return cmd
	}
	if name, _, ok := e.commands.LookupCommand(cmd); ok {
		return name
	}
	return cmd
}
