package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/topicrelay/core/logger"
	"github.com/m3rciful/topicrelay/core/telegram/middleware"
)

// MediaKind enumerates the attachment kinds the relay can resend by file id.
type MediaKind string

const (
	MediaPhoto     MediaKind = "photo"
	MediaVideo     MediaKind = "video"
	MediaAudio     MediaKind = "audio"
	MediaVoice     MediaKind = "voice"
	MediaDocument  MediaKind = "document"
	MediaSticker   MediaKind = "sticker"
	MediaAnimation MediaKind = "animation"
)

// Media is an attachment referenced by its Telegram file id.
type Media struct {
	Kind    MediaKind
	FileID  string
	Caption string
}

// SendOptions carries the optional parameters shared by outbound calls.
type SendOptions struct {
	ThreadID  int
	ParseMode tele.ParseMode
	Markup    *tele.ReplyMarkup
	Silent    bool
}

// Sent identifies a message produced by an outbound call.
type Sent struct {
	ChatID    int64
	MessageID int
}

// Messenger is the outbound Bot API surface used by the services.
type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string, opts SendOptions) (Sent, error)
	SendMedia(ctx context.Context, chatID int64, media Media, opts SendOptions) (Sent, error)
	Copy(ctx context.Context, toChatID, fromChatID int64, messageID int, opts SendOptions) (Sent, error)
	CreateTopic(ctx context.Context, chatID int64, name string) (int, error)
	EditText(ctx context.Context, chatID int64, messageID int, text string, opts SendOptions) error
	EditMarkup(ctx context.Context, chatID int64, messageID int, markup *tele.ReplyMarkup) error
	Pin(ctx context.Context, chatID int64, messageID int) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

// BotMessenger implements Messenger on top of a telebot Bot.
type BotMessenger struct {
	bot *tele.Bot
}

// NewBotMessenger wraps bot.
func NewBotMessenger(bot *tele.Bot) *BotMessenger {
	return &BotMessenger{bot: bot}
}

func (m *BotMessenger) SendText(ctx context.Context, chatID int64, text string, opts SendOptions) (Sent, error) {
	start := time.Now()
	msg, err := m.bot.Send(tele.ChatID(chatID), text, opts.tele())
	return m.result(ctx, "sendMessage", chatID, start, opts, msg, err)
}

func (m *BotMessenger) SendMedia(ctx context.Context, chatID int64, media Media, opts SendOptions) (Sent, error) {
	what, method, err := media.sendable()
	if err != nil {
		return Sent{}, err
	}
	start := time.Now()
	msg, err := m.bot.Send(tele.ChatID(chatID), what, opts.tele())
	return m.result(ctx, method, chatID, start, opts, msg, err)
}

func (m *BotMessenger) Copy(ctx context.Context, toChatID, fromChatID int64, messageID int, opts SendOptions) (Sent, error) {
	start := time.Now()
	src := tele.StoredMessage{MessageID: strconv.Itoa(messageID), ChatID: fromChatID}
	msg, err := m.bot.Copy(tele.ChatID(toChatID), src, opts.tele())
	return m.result(ctx, "copyMessage", toChatID, start, opts, msg, err)
}

func (m *BotMessenger) CreateTopic(ctx context.Context, chatID int64, name string) (int, error) {
	start := time.Now()
	topic, err := m.bot.CreateTopic(&tele.Chat{ID: chatID}, &tele.Topic{Name: name})
	m.logCall(ctx, "createForumTopic", chatID, start, err)
	if err != nil {
		return 0, fmt.Errorf("createForumTopic: %w", err)
	}
	middleware.CountSent(ctx, false)
	return topic.ThreadID, nil
}

func (m *BotMessenger) EditText(ctx context.Context, chatID int64, messageID int, text string, opts SendOptions) error {
	start := time.Now()
	ref := tele.StoredMessage{MessageID: strconv.Itoa(messageID), ChatID: chatID}
	_, err := m.bot.Edit(ref, text, opts.tele())
	m.logCall(ctx, "editMessageText", chatID, start, err)
	if err != nil {
		return fmt.Errorf("editMessageText: %w", err)
	}
	middleware.CountSent(ctx, opts.Markup != nil)
	return nil
}

func (m *BotMessenger) EditMarkup(ctx context.Context, chatID int64, messageID int, markup *tele.ReplyMarkup) error {
	start := time.Now()
	ref := tele.StoredMessage{MessageID: strconv.Itoa(messageID), ChatID: chatID}
	_, err := m.bot.EditReplyMarkup(ref, markup)
	m.logCall(ctx, "editMessageReplyMarkup", chatID, start, err)
	if err != nil {
		return fmt.Errorf("editMessageReplyMarkup: %w", err)
	}
	return nil
}

func (m *BotMessenger) Pin(ctx context.Context, chatID int64, messageID int) error {
	start := time.Now()
	ref := tele.StoredMessage{MessageID: strconv.Itoa(messageID), ChatID: chatID}
	err := m.bot.Pin(ref)
	m.logCall(ctx, "pinChatMessage", chatID, start, err)
	if err != nil {
		return fmt.Errorf("pinChatMessage: %w", err)
	}
	return nil
}

func (m *BotMessenger) AnswerCallback(ctx context.Context, callbackID, text string) error {
	start := time.Now()
	resp := &tele.CallbackResponse{Text: text}
	err := m.bot.Respond(&tele.Callback{ID: callbackID}, resp)
	m.logCall(ctx, "answerCallbackQuery", 0, start, err)
	if err != nil {
		return fmt.Errorf("answerCallbackQuery: %w", err)
	}
	return nil
}

func (m *BotMessenger) result(ctx context.Context, method string, chatID int64, start time.Time, opts SendOptions, msg *tele.Message, err error) (Sent, error) {
	m.logCall(ctx, method, chatID, start, err)
	if err != nil {
		return Sent{}, fmt.Errorf("%s: %w", method, err)
	}
	middleware.CountSent(ctx, opts.Markup != nil)
	sent := Sent{ChatID: chatID}
	if msg != nil {
		sent.MessageID = msg.ID
	}
	return sent, nil
}

func (m *BotMessenger) logCall(ctx context.Context, method string, chatID int64, start time.Time, err error) {
	attrs := []slog.Attr{
		slog.String("endpoint", method),
		slog.String("status", logger.Status(err)),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	}
	if chatID != 0 {
		attrs = append(attrs, slog.Int64("chat_id", chatID))
	}
	if err != nil {
		attrs = append(attrs, slog.String("err", logger.SanitizeLimit(err.Error(), 256)))
		logger.Warn(ctx, logger.ComponentSender, "api.call", attrs...)
		return
	}
	logger.Debug(ctx, logger.ComponentSender, "api.call", attrs...)
}

func (o SendOptions) tele() *tele.SendOptions {
	return &tele.SendOptions{
		ThreadID:            o.ThreadID,
		ParseMode:           o.ParseMode,
		ReplyMarkup:         o.Markup,
		DisableNotification: o.Silent,
	}
}

// Method returns the Bot API method that sends md.
func (md Media) Method() string {
	switch md.Kind {
	case MediaPhoto:
		return "sendPhoto"
	case MediaVideo:
		return "sendVideo"
	case MediaAudio:
		return "sendAudio"
	case MediaVoice:
		return "sendVoice"
	case MediaDocument:
		return "sendDocument"
	case MediaSticker:
		return "sendSticker"
	case MediaAnimation:
		return "sendAnimation"
	}
	return ""
}

func (md Media) sendable() (tele.Sendable, string, error) {
	file := tele.File{FileID: md.FileID}
	var what tele.Sendable
	switch md.Kind {
	case MediaPhoto:
		what = &tele.Photo{File: file, Caption: md.Caption}
	case MediaVideo:
		what = &tele.Video{File: file, Caption: md.Caption}
	case MediaAudio:
		what = &tele.Audio{File: file, Caption: md.Caption}
	case MediaVoice:
		what = &tele.Voice{File: file, Caption: md.Caption}
	case MediaDocument:
		what = &tele.Document{File: file, Caption: md.Caption}
	case MediaSticker:
		what = &tele.Sticker{File: file}
	case MediaAnimation:
		what = &tele.Animation{File: file, Caption: md.Caption}
	default:
		return nil, "", fmt.Errorf("unsupported media kind %q", md.Kind)
	}
	return what, md.Method(), nil
}
