// Package message normalizes inbound Telegram messages into the shape the
// relay services reason about.
package message

import (
	"strings"

	tg "github.com/m3rciful/topicrelay/core/telegram"
)

// ForwardKind classifies the origin of a forwarded message.
type ForwardKind string

const (
	ForwardNone    ForwardKind = ""
	ForwardUser    ForwardKind = "user"
	ForwardHidden  ForwardKind = "hidden_user"
	ForwardChat    ForwardKind = "chat"
	ForwardChannel ForwardKind = "channel"
)

// Sender is the author of a message.
type Sender struct {
	ID        int64
	FirstName string
	LastName  string
	Username  string
	IsBot     bool
}

// Message is an inbound message reduced to the fields the relay needs.
type Message struct {
	ID       int
	ChatID   int64
	Private  bool
	ThreadID int
	// TopicMessage is set for messages posted inside a forum topic.
	TopicMessage bool
	From         Sender

	Text    string
	Caption string
	// Media is nil for text-only messages and for content kinds the relay
	// cannot resend by file id.
	Media *tg.Media
	// Other is set for content that is neither text nor a supported media
	// kind (locations, contacts, polls, video notes...).
	Other bool
	// AlbumID groups messages sent as one media group.
	AlbumID string

	Forward ForwardKind
	HasLink bool

	Date     int64
	EditDate int64
}

// Body returns the text or, for media, the caption.
func (m Message) Body() string {
	if m.Text != "" {
		return m.Text
	}
	return m.Caption
}

// HasBody reports whether the message carries text or a caption.
func (m Message) HasBody() bool {
	return m.Body() != ""
}

// Command returns the lower-cased slash command without a bot mention, or "".
func (m Message) Command() string {
	text := strings.TrimSpace(m.Text)
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	word := strings.Fields(text)[0]
	if at := strings.IndexByte(word, '@'); at > 0 {
		word = word[:at]
	}
	return strings.ToLower(word)
}

// IsPlainText reports text with no media, no other content and no forward origin.
func (m Message) IsPlainText() bool {
	return m.Text != "" && m.Media == nil && !m.Other && m.Forward == ForwardNone
}

// Callback is an inline button press.
type Callback struct {
	ID   string
	Data string
	From Sender
	// ChatID and MessageID locate the message carrying the keyboard.
	ChatID    int64
	MessageID int
	ThreadID  int
}
