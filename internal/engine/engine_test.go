package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/m3rciful/intakebot/core/chat"
	"github.com/m3rciful/intakebot/core/telegram"
	"github.com/m3rciful/intakebot/core/telegram/state"
	"github.com/m3rciful/intakebot/internal/assets"
	"github.com/m3rciful/intakebot/internal/chattest"
	"github.com/m3rciful/intakebot/internal/display"
	"github.com/m3rciful/intakebot/internal/records"
)

const userID = 42

type notified struct {
	kind records.Kind
	rec  records.Record
}

type fakeNotifier struct {
	calls []notified
}

func (f *fakeNotifier) RecordCompleted(_ context.Context, kind records.Kind, rec records.Record) error {
	f.calls = append(f.calls, notified{kind: kind, rec: rec})
	return nil
}

type harness struct {
	t        *testing.T
	engine   *Engine
	sessions *state.MemoryStore
	records  *records.MemoryStore
	surface  *chattest.Surface
	uploader *chattest.Uploader
	notifier *fakeNotifier
	update   int
	nextMsg  int
}

func allImages() fstest.MapFS {
	files := fstest.MapFS{}
	for _, ref := range Assets() {
		files[ref.Path()] = &fstest.MapFile{Data: []byte(ref.Key())}
	}
	return files
}

func newHarness(t *testing.T, files fstest.MapFS, mutate func(*Options)) *harness {
	t.Helper()
	h := &harness{
		t:        t,
		sessions: state.NewMemoryStore(),
		records:  records.NewMemoryStore(),
		surface:  chattest.New(),
		uploader: &chattest.Uploader{},
		notifier: &fakeNotifier{},
		nextMsg:  1,
	}
	cache, err := assets.NewCache(assets.CacheOptions{
		Store:     assets.NewMemoryStore(),
		Uploader:  h.uploader,
		Files:     files,
		ChannelID: -100,
	})
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	reg := telegram.NewRegistry()
	if err := RegisterCommands(reg); err != nil {
		t.Fatalf("register commands: %v", err)
	}
	opts := Options{
		Sessions: h.sessions,
		Records:  h.records,
		Display:  display.New(h.surface, h.sessions, cache),
		Surface:  h.surface,
		Commands: reg,
		Notifier: h.notifier,
	}
	if mutate != nil {
		mutate(&opts)
	}
	h.engine, err = New(opts)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	return h
}

func (h *harness) user() chat.User {
	return chat.User{ID: userID, FirstName: "Ann", Username: "ann"}
}

// text delivers a user message and handles it; it returns the incoming id.
func (h *harness) text(s string) (int, error) {
	h.update++
	h.nextMsg++
	h.surface.Deliver(userID, h.nextMsg, s)
	return h.nextMsg, h.engine.Handle(context.Background(), chat.Message{
		Update: h.update, From: h.user(), MessageID: h.nextMsg, Text: s,
	})
}

func (h *harness) press(data string) error {
	h.update++
	return h.engine.Handle(context.Background(), chat.Callback{
		Update: h.update, From: h.user(), CallbackID: "cb-" + data, Data: data,
	})
}

func (h *harness) session() state.Session {
	h.t.Helper()
	sess, err := h.sessions.Load(context.Background(), userID)
	if err != nil {
		h.t.Fatalf("load session: %v", err)
	}
	return sess
}

func (h *harness) mustState(want state.State) {
	h.t.Helper()
	if got := h.session().State; got != want {
		h.t.Fatalf("state = %q, want %q", got, want)
	}
}

// screen returns the single visible bot message.
func (h *harness) screen() chattest.Sent {
	h.t.Helper()
	visible := h.surface.VisibleFromBot(userID)
	if len(visible) != 1 {
		h.t.Fatalf("expected exactly one visible bot message, got %+v", visible)
	}
	return visible[0]
}

func TestFirstContactLanguageSelection(t *testing.T) {
	h := newHarness(t, allImages(), nil)

	incoming, err := h.text("/start")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	h.mustState(StateLanguageSelect)
	prompt := h.screen()
	if !strings.Contains(prompt.Text, "Select language") || len(prompt.Keyboard) != 1 || len(prompt.Keyboard[0]) != 2 {
		t.Fatalf("unexpected language prompt %+v", prompt)
	}
	if deleted := h.surface.Deleted(); len(deleted) != 1 || deleted[0] != incoming {
		t.Fatalf("incoming message not deleted: %v", deleted)
	}

	if err := h.press("lang_en"); err != nil {
		t.Fatalf("lang_en: %v", err)
	}
	sess := h.session()
	if sess.State != StateIdle || sess.Language != "en" {
		t.Fatalf("unexpected session %+v", sess)
	}
	menu := h.screen()
	if menu.FileID == "" || !strings.Contains(menu.Text, "Choose an action") {
		t.Fatalf("expected english main menu photo, got %+v", menu)
	}
	if menu.Keyboard[0][0].Data != CallbackOrder || menu.Keyboard[0][0].Text != "📝 Make order" {
		t.Fatalf("unexpected menu keyboard %+v", menu.Keyboard)
	}
	if answers := h.surface.Answers(); len(answers) != 1 || answers[0] != "cb-lang_en" {
		t.Fatalf("callback not answered: %v", answers)
	}

	// language persists across later renders
	if _, err := h.text("/menu"); err != nil {
		t.Fatalf("menu: %v", err)
	}
	if !strings.Contains(h.screen().Text, "Choose an action") {
		t.Fatalf("menu not in english: %+v", h.screen())
	}
}

func TestLanguageSelectIgnoresText(t *testing.T) {
	h := newHarness(t, allImages(), nil)
	_, _ = h.text("/start")
	writes := h.sessions.StateWrites()
	sent := len(h.surface.Sent())
	deleted := len(h.surface.Deleted())

	if _, err := h.text("hello"); err != nil {
		t.Fatalf("text: %v", err)
	}
	h.mustState(StateLanguageSelect)
	if h.sessions.StateWrites() != writes || len(h.surface.Sent()) != sent || len(h.surface.Deleted()) != deleted {
		t.Fatal("text in language selection must be ignored")
	}
	if err := h.press("lang_de"); err != nil {
		t.Fatalf("unsupported language: %v", err)
	}
	h.mustState(StateLanguageSelect)
}

func TestOrderFlow(t *testing.T) {
	h := newHarness(t, allImages(), nil)
	if err := h.sessions.SaveLanguage(context.Background(), userID, "ru", StateIdle); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := h.press(CallbackOrder); err != nil {
		t.Fatalf("menu_order: %v", err)
	}
	h.mustState(StateAwaitingOrderTask)
	if h.screen().Text != "Опишите ваш заказ:" {
		t.Fatalf("unexpected prompt %+v", h.screen())
	}

	if _, err := h.text("Need a logo"); err != nil {
		t.Fatalf("task: %v", err)
	}
	h.mustState(StateAwaitingOrderContacts)
	orders := h.records.All(records.KindOrder)
	if len(orders) != 1 || orders[0].Text != "Need a logo" || orders[0].Name != "Ann" || orders[0].Username != "ann" {
		t.Fatalf("unexpected orders %+v", orders)
	}

	if _, err := h.text("@ann"); err != nil {
		t.Fatalf("contacts: %v", err)
	}
	h.mustState(StateIdle)
	orders = h.records.All(records.KindOrder)
	if len(orders) != 1 || orders[0].Contacts != "@ann" || orders[0].Text != "Need a logo" {
		t.Fatalf("order not completed: %+v", orders)
	}
	if h.screen().Text != "✅ Заказ сохранён! Мы свяжемся с вами." {
		t.Fatalf("unexpected confirmation %+v", h.screen())
	}
	if len(h.notifier.calls) != 1 || h.notifier.calls[0].rec.Contacts != "@ann" {
		t.Fatalf("admin not notified: %+v", h.notifier.calls)
	}
	// only the confirmation is left in the chat
	if visible := h.surface.Visible(userID); len(visible) != 1 {
		t.Fatalf("chat should hold one message, got %+v", visible)
	}
}

func TestTestFlowWithoutRecords(t *testing.T) {
	h := newHarness(t, allImages(), nil)
	_ = h.press(CallbackTest)
	h.mustState(StateAwaitingTestChannel)
	_, _ = h.text("t.me/channel")
	h.mustState(StateAwaitingTestContacts)
	_, _ = h.text("@ann")
	h.mustState(StateIdle)
	if n := len(h.records.All(records.KindTest)); n != 0 {
		t.Fatalf("no registrations expected, got %d", n)
	}
	if len(h.notifier.calls) != 0 {
		t.Fatal("no notification expected")
	}
	if h.screen().Text != "✅ Вы записаны на тесты!" {
		t.Fatalf("unexpected confirmation %+v", h.screen())
	}
}

func TestTestFlowWithRecords(t *testing.T) {
	h := newHarness(t, allImages(), func(o *Options) { o.RecordTestRegistrations = true })
	_ = h.press(CallbackTest)
	_, _ = h.text("t.me/channel")
	_, _ = h.text("@ann")
	regs := h.records.All(records.KindTest)
	if len(regs) != 1 || regs[0].Text != "t.me/channel" || regs[0].Contacts != "@ann" {
		t.Fatalf("unexpected registrations %+v", regs)
	}
	if len(h.notifier.calls) != 1 || h.notifier.calls[0].kind != records.KindTest {
		t.Fatalf("unexpected notifications %+v", h.notifier.calls)
	}
}

func TestUnmappedInputsAreNoOps(t *testing.T) {
	h := newHarness(t, allImages(), nil)
	_ = h.press(CallbackOrder)
	writes := h.sessions.StateWrites()
	sent := len(h.surface.Sent())

	for _, data := range []string{CallbackTest, "lang_en", "unknown"} {
		if err := h.press(data); err != nil {
			t.Fatalf("%s: %v", data, err)
		}
	}
	h.mustState(StateAwaitingOrderTask)
	if h.sessions.StateWrites() != writes || len(h.surface.Sent()) != sent {
		t.Fatal("unmapped callbacks must not write or render")
	}
	if got := len(h.surface.Answers()); got != 4 {
		t.Fatalf("every callback must be answered, got %d", got)
	}
	if err := h.engine.Handle(context.Background(), chat.Ignored{Update: 99}); err != nil {
		t.Fatalf("ignored: %v", err)
	}
}

func TestIdleTextAndCommands(t *testing.T) {
	h := newHarness(t, allImages(), nil)

	_, _ = h.text("hello")
	h.mustState(StateIdle)
	if h.screen().Text != "Напишите /start" {
		t.Fatalf("unexpected hint %+v", h.screen())
	}

	// no language yet: /menu falls back to the start hint
	_, _ = h.text("/menu")
	h.mustState(StateIdle)
	if h.screen().FileID != "" || h.screen().Text != "Напишите /start" {
		t.Fatalf("expected start hint, got %+v", h.screen())
	}
	for _, m := range h.surface.Sent() {
		if m.FileID != "" {
			t.Fatalf("no photo expected before a language is chosen, got %+v", m)
		}
	}

	if err := h.sessions.SaveLanguage(context.Background(), userID, "ru", StateIdle); err != nil {
		t.Fatalf("seed: %v", err)
	}
	writes := h.sessions.StateWrites()
	_, _ = h.text("/menu")
	h.mustState(StateIdle)
	if h.screen().FileID == "" || h.screen().Text != "Выберите действие:" {
		t.Fatalf("expected menu, got %+v", h.screen())
	}
	if h.sessions.StateWrites() != writes {
		t.Fatal("idle to idle transitions must not write the state")
	}

	_, _ = h.text("/lang")
	h.mustState(StateLanguageSelect)
}

func TestMissingAssetFallsBackToText(t *testing.T) {
	files := allImages()
	delete(files, AssetOrderTask.Path())
	h := newHarness(t, files, nil)

	if err := h.press(CallbackOrder); err != nil {
		t.Fatalf("fallback render must not fail: %v", err)
	}
	h.mustState(StateAwaitingOrderTask)
	screen := h.screen()
	if screen.FileID != "" || screen.Text != "Опишите ваш заказ:" {
		t.Fatalf("expected text fallback, got %+v", screen)
	}
}

func TestFailuresDoNotStopLaterSteps(t *testing.T) {
	h := newHarness(t, allImages(), nil)
	_ = h.press(CallbackOrder)
	h.surface.FailSend = true

	incoming, err := h.text("Need a logo")
	if err == nil || !errors.Is(err, chattest.ErrInjected) {
		t.Fatalf("expected render error, got %v", err)
	}
	h.mustState(StateAwaitingOrderContacts)
	if len(h.records.All(records.KindOrder)) != 1 {
		t.Fatal("record must be written before the render")
	}
	deleted := h.surface.Deleted()
	if len(deleted) == 0 || deleted[len(deleted)-1] != incoming {
		t.Fatalf("incoming message must still be deleted: %v", deleted)
	}
}

func TestUnknownStoredStateActsAsIdle(t *testing.T) {
	h := newHarness(t, allImages(), nil)
	if err := h.sessions.SaveState(context.Background(), userID, state.State("legacy_42")); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := h.press(CallbackTest); err != nil {
		t.Fatalf("press: %v", err)
	}
	h.mustState(StateAwaitingTestChannel)
}

func TestTransitionTable(t *testing.T) {
	table := newTable()
	withLang := state.Session{UserID: userID, Language: "en"}
	noLang := state.Session{UserID: userID}
	text := func(s string) input {
		in := input{user: chat.User{ID: userID}, text: s}
		if strings.HasPrefix(s, "/") {
			in.command = s
		}
		return in
	}
	cb := func(d string) input { return input{user: chat.User{ID: userID}, callback: d} }

	cases := []struct {
		name    string
		from    state.State
		sess    state.Session
		in      input
		handled bool
		next    state.State
		record  bool
	}{
		{"start without language", StateIdle, noLang, text("/start"), true, StateLanguageSelect, false},
		{"start with language", StateIdle, withLang, text("/start"), true, StateIdle, false},
		{"menu without language", StateIdle, noLang, text("/menu"), true, StateIdle, false},
		{"menu with language", StateIdle, withLang, text("/menu"), true, StateIdle, false},
		{"language command", StateIdle, withLang, text("/language"), true, StateLanguageSelect, false},
		{"idle text", StateIdle, withLang, text("hi"), true, StateIdle, false},
		{"order button", StateIdle, withLang, cb(CallbackOrder), true, StateAwaitingOrderTask, false},
		{"test button", StateIdle, withLang, cb(CallbackTest), true, StateAwaitingTestChannel, false},
		{"idle language pick", StateIdle, withLang, cb("lang_en"), false, "", false},
		{"select text", StateLanguageSelect, noLang, text("/start"), false, "", false},
		{"select pick", StateLanguageSelect, noLang, cb("lang_ru"), true, StateIdle, false},
		{"order task", StateAwaitingOrderTask, withLang, text("logo"), true, StateAwaitingOrderContacts, true},
		{"order contacts", StateAwaitingOrderContacts, withLang, text("@a"), true, StateIdle, true},
		{"test channel", StateAwaitingTestChannel, withLang, text("t.me/x"), true, StateAwaitingTestContacts, false},
		{"test contacts", StateAwaitingTestContacts, withLang, text("@a"), true, StateIdle, false},
		{"order task callback", StateAwaitingOrderTask, withLang, cb(CallbackOrder), false, "", false},
	}
	for _, tc := range cases {
		step, ok := table.Lookup(tc.from)
		if !ok {
			t.Fatalf("%s: no handler for %q", tc.name, tc.from)
		}
		tc.sess.State = tc.from
		got := step(flags{}, tc.sess, tc.in)
		if got.handled != tc.handled {
			t.Fatalf("%s: handled = %v", tc.name, got.handled)
		}
		if !tc.handled {
			continue
		}
		if got.next != tc.next {
			t.Fatalf("%s: next = %q, want %q", tc.name, got.next, tc.next)
		}
		if (got.record != nil) != tc.record {
			t.Fatalf("%s: record write = %v", tc.name, got.record != nil)
		}
		if got.screen == nil {
			t.Fatalf("%s: handled transitions render a screen", tc.name)
		}
	}
}
