// Package engine drives the intake conversation: one event in, at most one
// record write, one session write and one screen out.
package engine

import (
	"github.com/m3rciful/intakebot/core/chat"
	"github.com/m3rciful/intakebot/core/telegram/state"
	"github.com/m3rciful/intakebot/internal/assets"
	"github.com/m3rciful/intakebot/internal/i18n"
)

// Conversation states.
const (
	StateIdle                  = state.StateIdle
	StateLanguageSelect        = state.State("language_select")
	StateAwaitingOrderTask     = state.State("awaiting_order_task")
	StateAwaitingOrderContacts = state.State("awaiting_order_contacts")
	StateAwaitingTestChannel   = state.State("awaiting_test_channel")
	StateAwaitingTestContacts  = state.State("awaiting_test_contacts")
)

// Commands understood by the bot.
const (
	CommandStart    = "/start"
	CommandMenu     = "/menu"
	CommandLanguage = "/language"
)

// Callback data of the inline buttons.
const (
	CallbackOrder      = "menu_order"
	CallbackTest       = "menu_test"
	CallbackLangPrefix = "lang_"
)

// Images shown by the flows.
var (
	AssetStart         = assets.Ref{Name: "start"}
	AssetOrderTask     = assets.Ref{Subfolder: "order", Name: "task"}
	AssetOrderContacts = assets.Ref{Subfolder: "order", Name: "contacts"}
	AssetTestChannel   = assets.Ref{Subfolder: "test", Name: "channel"}
	AssetTestContacts  = assets.Ref{Subfolder: "test", Name: "contacts"}
)

// Assets lists every image the flows may render.
func Assets() []assets.Ref {
	return []assets.Ref{AssetStart, AssetOrderTask, AssetOrderContacts, AssetTestChannel, AssetTestContacts}
}

func languageKeyboard() chat.Keyboard {
	return chat.Keyboard{chat.Row(
		chat.Button{Text: "🇷🇺 " + i18n.Name(i18n.LangRU), Data: CallbackLangPrefix + i18n.LangRU},
		chat.Button{Text: "🇬🇧 " + i18n.Name(i18n.LangEN), Data: CallbackLangPrefix + i18n.LangEN},
	)}
}

func mainMenuKeyboard(lang string) chat.Keyboard {
	tr := i18n.T(lang)
	return chat.Keyboard{chat.Row(
		chat.Button{Text: tr.OrderButton, Data: CallbackOrder},
		chat.Button{Text: tr.TestButton, Data: CallbackTest},
	)}
}
