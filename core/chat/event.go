// Package chat holds the platform-neutral shapes exchanged between the
// transport adapter and the bot logic: inbound events, outbound keyboards,
// media handles and the surface used to display messages.
package chat

import "strings"

// User identifies the author of an inbound event.
type User struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
	Language  string
}

// DisplayName returns the user's visible name, falling back to the username.
func (u User) DisplayName() string {
	name := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
	if name != "" {
		return name
	}
	if u.Username != "" {
		return u.Username
	}
	return "Unknown"
}

// Event is one inbound occurrence from the chat platform. The set of
// implementations is closed: Message, Callback and Ignored.
type Event interface {
	// UpdateID is the monotonically increasing identifier used as the
	// resumption cursor of the event source.
	UpdateID() int
	// Kind names the event variant for logging and rate limit exclusions.
	Kind() string

	isEvent()
}

const (
	// KindMessage marks text messages.
	KindMessage = "message"
	// KindCallback marks inline button presses.
	KindCallback = "callback"
	// KindIgnored marks updates the bot does not react to.
	KindIgnored = "ignored"
)

// Message is a text message sent by a user to the bot.
type Message struct {
	Update    int
	From      User
	MessageID int
	Text      string
}

// UpdateID implements Event.
func (m Message) UpdateID() int { return m.Update }

// Kind implements Event.
func (Message) Kind() string { return KindMessage }

func (Message) isEvent() {}

// IsCommand reports whether the text starts with a slash command.
func (m Message) IsCommand() bool {
	return strings.HasPrefix(strings.TrimSpace(m.Text), "/")
}

// Command returns the bare command ("/start") with any "@botname" suffix and
// arguments stripped. It returns an empty string for plain text.
func (m Message) Command() string {
	if !m.IsCommand() {
		return ""
	}
	fields := strings.Fields(m.Text)
	cmd := fields[0]
	if i := strings.IndexByte(cmd, '@'); i > 0 {
		cmd = cmd[:i]
	}
	return strings.ToLower(cmd)
}

// Callback is an inline keyboard button press.
type Callback struct {
	Update     int
	From       User
	CallbackID string
	Data       string
}

// UpdateID implements Event.
func (c Callback) UpdateID() int { return c.Update }

// Kind implements Event.
func (Callback) Kind() string { return KindCallback }

func (Callback) isEvent() {}

// Ignored carries only the cursor of an update the bot has no handler for
// (stickers, edits, channel posts...). It keeps the cursor moving.
type Ignored struct {
	Update int
	From   User
}

// UpdateID implements Event.
func (i Ignored) UpdateID() int { return i.Update }

// Kind implements Event.
func (Ignored) Kind() string { return KindIgnored }

func (Ignored) isEvent() {}

// Sender returns the author of an event, if any.
func Sender(ev Event) User {
	switch e := ev.(type) {
	case Message:
		return e.From
	case Callback:
		return e.From
	case Ignored:
		return e.From
	default:
		return User{}
	}
}
