// Package keyboard converts platform-neutral keyboards into Telegram markup.
package keyboard

import (
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/intakebot/core/chat"
)

// FromChat converts a chat.Keyboard into inline markup. Button data is sent
// verbatim, without telebot's "\funique|" envelope, because the conversation
// engine matches raw callback strings. Empty rows are skipped; a keyboard
// without buttons yields nil markup.
func FromChat(kb chat.Keyboard) *tele.ReplyMarkup {
	var rows [][]tele.InlineButton
	for _, row := range kb {
		if len(row) == 0 {
			continue
		}
		buttons := make([]tele.InlineButton, len(row))
		for i, b := range row {
			buttons[i] = tele.InlineButton{Text: b.Text, Data: b.Data}
		}
		rows = append(rows, buttons)
	}
	if len(rows) == 0 {
		return nil
	}
	return &tele.ReplyMarkup{InlineKeyboard: rows}
}
