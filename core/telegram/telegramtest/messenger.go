// Package telegramtest provides a recording Messenger for service tests.
package telegramtest

import (
	"context"
	"errors"
	"sync"

	tele "gopkg.in/telebot.v4"

	tg "github.com/m3rciful/topicrelay/core/telegram"
)

// ErrInjected is the default error returned by FailWith.
var ErrInjected = errors.New("telegramtest: injected failure")

// Call is one recorded outbound call.
type Call struct {
	Method     string
	ChatID     int64
	Text       string
	Media      tg.Media
	FromChatID int64
	MessageID  int
	Opts       tg.SendOptions
	Markup     *tele.ReplyMarkup
	CallbackID string
	TopicName  string
}

type failure struct {
	err   error
	times int
}

// Messenger records every call and returns increasing message ids.
type Messenger struct {
	mu        sync.Mutex
	calls     []Call
	nextMsgID int
	nextTopic int
	failures  map[string]*failure
}

// New returns an empty recorder. Message ids start at 1000, topic ids at 500.
func New() *Messenger {
	return &Messenger{nextMsgID: 1000, nextTopic: 500, failures: make(map[string]*failure)}
}

var _ tg.Messenger = (*Messenger)(nil)

// FailWith makes the next times calls of method fail with err.
// times < 0 fails forever; a nil err uses ErrInjected.
func (m *Messenger) FailWith(method string, err error, times int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		err = ErrInjected
	}
	m.failures[method] = &failure{err: err, times: times}
}

// Calls returns a copy of all recorded calls.
func (m *Messenger) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallsTo returns the recorded calls of method, including failed ones.
func (m *Messenger) CallsTo(method string) []Call {
	var out []Call
	for _, c := range m.Calls() {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// TextsTo returns the texts sent with sendMessage to chatID.
func (m *Messenger) TextsTo(chatID int64) []string {
	var out []string
	for _, c := range m.CallsTo("sendMessage") {
		if c.ChatID == chatID {
			out = append(out, c.Text)
		}
	}
	return out
}

// Reset drops recorded calls and failures.
func (m *Messenger) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.failures = make(map[string]*failure)
}

func (m *Messenger) record(c Call) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, c)
	if f, ok := m.failures[c.Method]; ok && f.times != 0 {
		if f.times > 0 {
			f.times--
		}
		return f.err
	}
	return nil
}

func (m *Messenger) nextMessage(chatID int64) tg.Sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextMsgID++
	return tg.Sent{ChatID: chatID, MessageID: m.nextMsgID}
}

func (m *Messenger) SendText(_ context.Context, chatID int64, text string, opts tg.SendOptions) (tg.Sent, error) {
	if err := m.record(Call{Method: "sendMessage", ChatID: chatID, Text: text, Opts: opts, Markup: opts.Markup}); err != nil {
		return tg.Sent{}, err
	}
	return m.nextMessage(chatID), nil
}

func (m *Messenger) SendMedia(_ context.Context, chatID int64, media tg.Media, opts tg.SendOptions) (tg.Sent, error) {
	if err := m.record(Call{Method: media.Method(), ChatID: chatID, Media: media, Text: media.Caption, Opts: opts, Markup: opts.Markup}); err != nil {
		return tg.Sent{}, err
	}
	return m.nextMessage(chatID), nil
}

func (m *Messenger) Copy(_ context.Context, toChatID, fromChatID int64, messageID int, opts tg.SendOptions) (tg.Sent, error) {
	if err := m.record(Call{Method: "copyMessage", ChatID: toChatID, FromChatID: fromChatID, MessageID: messageID, Opts: opts}); err != nil {
		return tg.Sent{}, err
	}
	return m.nextMessage(toChatID), nil
}

func (m *Messenger) CreateTopic(_ context.Context, chatID int64, name string) (int, error) {
	if err := m.record(Call{Method: "createForumTopic", ChatID: chatID, TopicName: name}); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextTopic++
	return m.nextTopic, nil
}

func (m *Messenger) EditText(_ context.Context, chatID int64, messageID int, text string, opts tg.SendOptions) error {
	return m.record(Call{Method: "editMessageText", ChatID: chatID, MessageID: messageID, Text: text, Opts: opts, Markup: opts.Markup})
}

func (m *Messenger) EditMarkup(_ context.Context, chatID int64, messageID int, markup *tele.ReplyMarkup) error {
	return m.record(Call{Method: "editMessageReplyMarkup", ChatID: chatID, MessageID: messageID, Markup: markup})
}

func (m *Messenger) Pin(_ context.Context, chatID int64, messageID int) error {
	return m.record(Call{Method: "pinChatMessage", ChatID: chatID, MessageID: messageID})
}

func (m *Messenger) AnswerCallback(_ context.Context, callbackID, text string) error {
	return m.record(Call{Method: "answerCallbackQuery", CallbackID: callbackID, Text: text})
}
