package engine

import (
	"strings"

	"github.com/m3rciful/intakebot/core/chat"
	"github.com/m3rciful/intakebot/core/telegram/state"
	"github.com/m3rciful/intakebot/internal/assets"
	"github.com/m3rciful/intakebot/internal/i18n"
	"github.com/m3rciful/intakebot/internal/records"
)

// screen is what the user sees after a transition.
type screen struct {
	text  string
	image *assets.Ref
	kb    chat.Keyboard
	// edit allows the text to replace the visible message in place.
	edit bool
}

type recordAction int

const (
	recordCreate recordAction = iota + 1
	recordUpdateLatest
)

// recordWrite is the single business write of a transition.
type recordWrite struct {
	action recordAction
	kind   records.Kind
	record records.Record
	patch  records.Patch
	// notify reports the written record to the admin once it is complete.
	notify bool
}

// transition is the planned outcome of one event. The zero value is a no-op.
type transition struct {
	handled bool

	next     state.State
	language string
	write    bool

	record *recordWrite
	screen *screen
	// deleteIncoming removes the user's message from the chat.
	deleteIncoming bool
}

// input is the normalized event a state handler sees.
type input struct {
	user     chat.User
	text     string
	command  string
	callback string
}

func (in input) isText() bool     { return in.callback == "" && in.text != "" }
func (in input) isCallback() bool { return in.callback != "" }

type stateFunc func(flags flags, sess state.Session, in input) transition

// flags are the configurable parts of the transition table.
type flags struct {
	recordTests bool
	editInPlace bool
}

func newTable() *state.Table[stateFunc] {
	t := state.NewTable[stateFunc]()
	t.Register(StateIdle, onIdle)
	t.Register(StateLanguageSelect, onLanguageSelect)
	t.Register(StateAwaitingOrderTask, onOrderTask)
	t.Register(StateAwaitingOrderContacts, onOrderContacts)
	t.Register(StateAwaitingTestChannel, onTestChannel)
	t.Register(StateAwaitingTestContacts, onTestContacts)
	return t
}

func moveTo(next state.State) transition {
	return transition{handled: true, next: next, write: true}
}

func stay(cur state.State) transition {
	return transition{handled: true, next: cur}
}

func languagePrompt() *screen {
	return &screen{text: i18n.LanguagePrompt(), kb: languageKeyboard()}
}

func mainMenu(lang, caption string) *screen {
	ref := AssetStart
	return &screen{text: caption, image: &ref, kb: mainMenuKeyboard(lang)}
}

func imagePrompt(ref assets.Ref, caption string) *screen {
	return &screen{text: caption, image: &ref}
}

func onIdle(f flags, sess state.Session, in input) transition {
	tr := i18n.T(sess.Language)
	switch {
	case in.isCallback():
		switch in.callback {
		case CallbackOrder:
			t := moveTo(StateAwaitingOrderTask)
			t.screen = imagePrompt(AssetOrderTask, tr.OrderTask)
			return t
		case CallbackTest:
			t := moveTo(StateAwaitingTestChannel)
			t.screen = imagePrompt(AssetTestChannel, tr.TestChannel)
			return t
		}
		return transition{}
	case !in.isText():
		return transition{}
	}

	var t transition
	switch {
	case in.command == CommandStart && !sess.HasLanguage():
		t = moveTo(StateLanguageSelect)
		t.screen = languagePrompt()
	case in.command == CommandStart:
		t = stay(StateIdle)
		t.screen = mainMenu(sess.Language, tr.Welcome+"\n\n"+tr.ChooseAction)
	case in.command == CommandMenu && sess.HasLanguage():
		t = stay(StateIdle)
		t.screen = mainMenu(sess.Language, tr.ChooseAction)
	case in.command == CommandLanguage:
		t = moveTo(StateLanguageSelect)
		t.screen = languagePrompt()
	default:
		t = stay(StateIdle)
		t.screen = &screen{text: tr.WriteStart, edit: f.editInPlace}
	}
	t.deleteIncoming = true
	return t
}

func onLanguageSelect(_ flags, _ state.Session, in input) transition {
	if !in.isCallback() {
		return transition{}
	}
	lang, ok := strings.CutPrefix(in.callback, CallbackLangPrefix)
	if !ok || !i18n.Supported(lang) {
		return transition{}
	}
	tr := i18n.T(lang)
	t := moveTo(StateIdle)
	t.language = lang
	t.screen = mainMenu(lang, tr.LangChanged+"\n\n"+tr.ChooseAction)
	return t
}

func onOrderTask(_ flags, sess state.Session, in input) transition {
	if !in.isText() {
		return transition{}
	}
	t := moveTo(StateAwaitingOrderContacts)
	t.record = &recordWrite{action: recordCreate, kind: records.KindOrder, record: newRecord(in)}
	t.screen = imagePrompt(AssetOrderContacts, i18n.T(sess.Language).OrderContacts)
	t.deleteIncoming = true
	return t
}

func onOrderContacts(f flags, sess state.Session, in input) transition {
	if !in.isText() {
		return transition{}
	}
	t := moveTo(StateIdle)
	t.record = &recordWrite{
		action: recordUpdateLatest,
		kind:   records.KindOrder,
		patch:  records.Patch{}.Set(records.FieldContacts, in.text),
		notify: true,
	}
	t.screen = &screen{text: i18n.T(sess.Language).OrderSaved, edit: f.editInPlace}
	t.deleteIncoming = true
	return t
}

func onTestChannel(f flags, sess state.Session, in input) transition {
	if !in.isText() {
		return transition{}
	}
	t := moveTo(StateAwaitingTestContacts)
	if f.recordTests {
		t.record = &recordWrite{action: recordCreate, kind: records.KindTest, record: newRecord(in)}
	}
	t.screen = imagePrompt(AssetTestContacts, i18n.T(sess.Language).TestContacts)
	t.deleteIncoming = true
	return t
}

func onTestContacts(f flags, sess state.Session, in input) transition {
	if !in.isText() {
		return transition{}
	}
	t := moveTo(StateIdle)
	if f.recordTests {
		t.record = &recordWrite{
			action: recordUpdateLatest,
			kind:   records.KindTest,
			patch:  records.Patch{}.Set(records.FieldContacts, in.text),
			notify: true,
		}
	}
	t.screen = &screen{text: i18n.T(sess.Language).TestRegistered, edit: f.editInPlace}
	t.deleteIncoming = true
	return t
}

func newRecord(in input) records.Record {
	return records.Record{
		UserID:   in.user.ID,
		Name:     in.user.DisplayName(),
		Username: in.user.Username,
		Text:     in.text,
	}
}
