package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/intakebot/core/chat"
	"github.com/m3rciful/intakebot/core/logger"
	"github.com/m3rciful/intakebot/core/telegram/callbacks"
	"github.com/m3rciful/intakebot/core/telegram/keyboard"
)

// allowedUpdates limits getUpdates to the update types the bot reacts to.
const allowedUpdates = `["message","callback_query"]`

// ClientOptions configures NewClient.
type ClientOptions struct {
	Token string
	// APIURL overrides the Bot API endpoint; empty selects the public one.
	APIURL          string
	LongPollTimeout time.Duration
	// HTTPClient replaces the client built by BuildHTTPClient.
	HTTPClient *http.Client
	// Offline skips the getMe handshake; used in tests.
	Offline bool
}

// Client is the Telegram adapter of the bot. It is the event source of the
// dispatch loop, the chat surface of the display manager and the uploader of
// the asset cache.
type Client struct {
	bot *tele.Bot
}

// NewClient builds a Client on top of a telebot Bot that never polls by itself.
func NewClient(opts ClientOptions) (*Client, error) {
	if strings.TrimSpace(opts.Token) == "" {
		return nil, fmt.Errorf("telegram: empty token")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.LongPollTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = BuildHTTPClient(timeout)
	}
	bot, err := tele.NewBot(tele.Settings{
		URL:         opts.APIURL,
		Token:       opts.Token,
		Client:      httpClient,
		Offline:     opts.Offline,
		Synchronous: true,
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: bot initialization failed: %w", err)
	}
	return &Client{bot: bot}, nil
}

// Fetch long-polls getUpdates starting at cursor. The call returns early when
// ctx is cancelled; the in-flight request is abandoned and its updates are
// fetched again on the next start because the cursor was not confirmed.
func (c *Client) Fetch(ctx context.Context, cursor int, timeout time.Duration) ([]chat.Event, error) {
	params := map[string]string{
		"offset":          strconv.Itoa(cursor),
		"timeout":         strconv.Itoa(int(timeout / time.Second)),
		"allowed_updates": allowedUpdates,
	}

	type result struct {
		data []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		data, err := c.bot.Raw("getUpdates", params)
		done <- result{data: data, err: err}
	}()

	var res result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-done:
	}
	if res.err != nil {
		return nil, fmt.Errorf("telegram: getUpdates: %w", res.err)
	}

	var resp struct {
		Result []tele.Update `json:"result"`
	}
	if err := json.Unmarshal(res.data, &resp); err != nil {
		return nil, fmt.Errorf("telegram: decode updates: %w", err)
	}
	events := make([]chat.Event, 0, len(resp.Result))
	for i := range resp.Result {
		events = append(events, ToEvent(&resp.Result[i]))
	}
	return events, nil
}

// ToEvent converts a raw update into a chat event. Only text messages and
// callbacks from private chats are surfaced; anything else is Ignored so the
// cursor still moves past it.
func ToEvent(u *tele.Update) chat.Event {
	switch {
	case u.Callback != nil:
		return chat.Callback{
			Update:     u.ID,
			From:       toUser(u.Callback.Sender),
			CallbackID: u.Callback.ID,
			Data:       callbacks.Normalize(u.Callback.Data),
		}
	case u.Message != nil:
		m := u.Message
		private := m.Chat == nil || m.Chat.Type == tele.ChatPrivate
		if private && m.Text != "" && m.Sender != nil {
			return chat.Message{
				Update:    u.ID,
				From:      toUser(m.Sender),
				MessageID: m.ID,
				Text:      m.Text,
			}
		}
		return chat.Ignored{Update: u.ID, From: toUser(m.Sender)}
	default:
		return chat.Ignored{Update: u.ID}
	}
}

func toUser(u *tele.User) chat.User {
	if u == nil {
		return chat.User{}
	}
	return chat.User{
		ID:        u.ID,
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Language:  u.LanguageCode,
	}
}

func sendOptions(kb chat.Keyboard) *tele.SendOptions {
	return &tele.SendOptions{ReplyMarkup: keyboard.FromChat(kb)}
}

// SendText implements chat.Surface.
func (c *Client) SendText(ctx context.Context, userID int64, text string, kb chat.Keyboard) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	msg, err := c.bot.Send(tele.ChatID(userID), text, sendOptions(kb))
	if err != nil {
		return 0, fmt.Errorf("telegram: sendMessage: %w", err)
	}
	return msg.ID, nil
}

// SendPhoto implements chat.Surface. A rejected file id is reported as
// chat.ErrStaleMedia.
func (c *Client) SendPhoto(ctx context.Context, userID int64, media chat.Media, caption string, kb chat.Keyboard) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	photo := &tele.Photo{File: tele.File{FileID: media.FileID}, Caption: caption}
	msg, err := c.bot.Send(tele.ChatID(userID), photo, sendOptions(kb))
	if err != nil {
		if IsStaleFileID(err) {
			return 0, fmt.Errorf("telegram: sendPhoto: %w: %v", chat.ErrStaleMedia, err)
		}
		return 0, fmt.Errorf("telegram: sendPhoto: %w", err)
	}
	return msg.ID, nil
}

// EditText implements chat.Surface.
func (c *Client) EditText(ctx context.Context, userID int64, messageID int, text string, kb chat.Keyboard) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := c.bot.Edit(stored(userID, messageID), text, sendOptions(kb)); err != nil {
		return fmt.Errorf("telegram: editMessageText: %w", err)
	}
	return nil
}

// Delete implements chat.Surface.
func (c *Client) Delete(ctx context.Context, userID int64, messageID int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.bot.Delete(stored(userID, messageID)); err != nil {
		return fmt.Errorf("telegram: deleteMessage: %w", err)
	}
	return nil
}

// AnswerCallback implements chat.Surface.
func (c *Client) AnswerCallback(ctx context.Context, callbackID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.bot.Respond(&tele.Callback{ID: callbackID}); err != nil {
		return fmt.Errorf("telegram: answerCallbackQuery: %w", err)
	}
	return nil
}

// Upload posts a photo into the cache channel and returns its reusable handle.
func (c *Client) Upload(ctx context.Context, channelID int64, data []byte, caption string) (chat.Media, error) {
	if err := ctx.Err(); err != nil {
		return chat.Media{}, err
	}
	photo := &tele.Photo{File: tele.FromReader(bytes.NewReader(data)), Caption: caption}
	msg, err := c.bot.Send(tele.ChatID(channelID), photo)
	if err != nil {
		return chat.Media{}, fmt.Errorf("telegram: upload photo: %w", err)
	}
	if msg.Photo == nil || msg.Photo.FileID == "" {
		return chat.Media{}, fmt.Errorf("telegram: upload photo: message %d carries no photo", msg.ID)
	}
	return chat.Media{
		MessageID: msg.ID,
		FileID:    msg.Photo.FileID,
		UniqueID:  msg.Photo.UniqueID,
	}, nil
}

// SendMarkdown sends a MarkdownV2 text to an arbitrary chat.
func (c *Client) SendMarkdown(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := c.bot.Send(tele.ChatID(chatID), text, &tele.SendOptions{ParseMode: tele.ModeMarkdownV2}); err != nil {
		return fmt.Errorf("telegram: sendMessage: %w", err)
	}
	return nil
}

// SetCommands publishes the visible commands of reg to the command menu.
func (c *Client) SetCommands(reg *Registry) error {
	if reg == nil {
		return nil
	}
	if err := c.bot.SetCommands(reg.ListCommands(true)); err != nil {
		return fmt.Errorf("telegram: setMyCommands: %w", err)
	}
	return nil
}

// DeleteWebhook removes a configured webhook so getUpdates is allowed.
func (c *Client) DeleteWebhook(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := c.bot.Raw("deleteWebhook", map[string]string{"drop_pending_updates": "false"}); err != nil {
		return fmt.Errorf("telegram: deleteWebhook: %w", err)
	}
	logger.Info(ctx, "tg", "delete_webhook", slog.String("status", "ok"))
	return nil
}

func stored(userID int64, messageID int) *tele.StoredMessage {
	return &tele.StoredMessage{MessageID: strconv.Itoa(messageID), ChatID: userID}
}

// IsStaleFileID reports whether the Bot API rejected a file identifier.
func IsStaleFileID(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, tele.ErrWrongFileID) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "wrong file identifier") ||
		strings.Contains(msg, "wrong remote file id") ||
		strings.Contains(msg, "file reference expired")
}
