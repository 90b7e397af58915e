// Package console implements the inline-keyboard admin console and the
// input wizards that edit persisted settings.
package console

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/topicrelay/core/logger"
	tg "github.com/m3rciful/topicrelay/core/telegram"
	"github.com/m3rciful/topicrelay/core/telegram/callbacks"
	"github.com/m3rciful/topicrelay/core/telegram/state"
	"github.com/m3rciful/topicrelay/internal/message"
	"github.com/m3rciful/topicrelay/internal/settings"
)

// Domain prefixes console callback payloads.
const Domain = "cfg"

// Console actions.
const (
	ActionMenu   = "menu"
	ActionToggle = "toggle"
	ActionEdit   = "edit"
	ActionAdd    = "add"
	ActionList   = "list"
	ActionDelete = "delete"
)

// ValueClear on an edit payload empties a list setting without a wizard.
const ValueClear = "clear"

// TextWizardReset is sent when a stored wizard could not be decoded.
const TextWizardReset = "⚠️ Your pending input was unreadable and has been reset."

// Service renders menus and applies admin changes.
type Service struct {
	settings *settings.Resolver
	wizards  *state.Manager
	msgr     tg.Messenger
	now      func() time.Time
}

// New builds a Service.
func New(resolver *settings.Resolver, wizards *state.Manager, msgr tg.Messenger) *Service {
	return &Service{settings: resolver, wizards: wizards, msgr: msgr, now: time.Now}
}

// Open sends the root menu.
func (s *Service) Open(ctx context.Context, chatID int64) error {
	return s.show(ctx, chatID, 0, rootMenu())
}

// HandleCallback runs a cfg:* button press from an authorized admin.
func (s *Service) HandleCallback(ctx context.Context, cb message.Callback, p callbacks.Payload) error {
	toast := ""
	var err error
	switch p.Action {
	case ActionMenu:
		err = s.show(ctx, cb.ChatID, cb.MessageID, s.render(ctx, p.Target))
	case ActionToggle:
		toast, err = s.toggle(ctx, cb, p.Target)
	case ActionEdit:
		toast, err = s.edit(ctx, cb, p.Target, p.Value)
	case ActionAdd:
		err = s.beginAdd(ctx, cb, p.Target)
	case ActionList:
		err = s.show(ctx, cb.ChatID, cb.MessageID, s.listView(ctx, p.Target))
	case ActionDelete:
		toast, err = s.delete(ctx, cb, p.Target, p.Value)
	default:
		toast = "Unknown action"
	}
	s.answer(ctx, cb.ID, toast)
	if err != nil {
		logger.Error(ctx, logger.ComponentConsole, "console.callback",
			slog.String("action", p.Action),
			slog.String("key", p.Target),
			slog.String("err", err.Error()),
		)
	}
	return err
}

func (s *Service) toggle(ctx context.Context, cb message.Callback, key string) (string, error) {
	if !isForwardingKey(key) {
		return "Unknown setting", nil
	}
	on, err := s.settings.Toggle(ctx, key)
	if err != nil {
		return "Failed to save", err
	}
	logger.Info(ctx, logger.ComponentConsole, "config.toggle",
		slog.String("key", key),
		slog.Bool("value", on),
		slog.Int64("admin_id", cb.From.ID),
	)
	toast := label(key) + ": off"
	if on {
		toast = label(key) + ": on"
	}
	return toast, s.show(ctx, cb.ChatID, cb.MessageID, s.forwardingMenu(ctx))
}

func (s *Service) edit(ctx context.Context, cb message.Callback, key, value string) (string, error) {
	if value == ValueClear {
		return s.clearList(ctx, cb, key)
	}
	if _, ok := editPrompts[key]; !ok {
		return "Unknown setting", nil
	}
	if err := s.wizards.Begin(ctx, cb.From.ID, state.Wizard{Action: ActionEdit, Key: key}); err != nil {
		return "Failed to start", err
	}
	return "", s.send(ctx, cb.ChatID, s.editPrompt(ctx, key))
}

func (s *Service) clearList(ctx context.Context, cb message.Callback, key string) (string, error) {
	switch key {
	case settings.KeyBlockKeywords:
		if err := s.settings.SetStrings(ctx, key, nil); err != nil {
			return "Failed to save", err
		}
	case settings.KeyKeywordResponses:
		if err := s.settings.SetRules(ctx, nil); err != nil {
			return "Failed to save", err
		}
	default:
		return "Unknown setting", nil
	}
	logger.Info(ctx, logger.ComponentConsole, "config.clear",
		slog.String("key", key),
		slog.Int64("admin_id", cb.From.ID),
	)
	return "Cleared", s.show(ctx, cb.ChatID, cb.MessageID, s.render(ctx, ParentMenu(key)))
}

func (s *Service) beginAdd(ctx context.Context, cb message.Callback, key string) error {
	prompt, ok := addPrompts[key]
	if !ok {
		return nil
	}
	if err := s.wizards.Begin(ctx, cb.From.ID, state.Wizard{Action: ActionAdd, Key: key}); err != nil {
		return err
	}
	return s.send(ctx, cb.ChatID, prompt)
}

func (s *Service) delete(ctx context.Context, cb message.Callback, key, value string) (string, error) {
	removed := false
	switch key {
	case settings.KeyKeywordResponses:
		id, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return "Unknown entry", nil
		}
		rules := s.settings.Rules(ctx)
		kept := rules[:0]
		for _, rule := range rules {
			if rule.ID == id && !removed {
				removed = true
				continue
			}
			kept = append(kept, rule)
		}
		if removed {
			if err := s.settings.SetRules(ctx, kept); err != nil {
				return "Failed to save", err
			}
		}
	case settings.KeyBlockKeywords:
		list := s.settings.Strings(ctx, key)
		kept := make([]string, 0, len(list))
		for _, kw := range list {
			if !removed && keywordMatchesToken(kw, value) {
				removed = true
				continue
			}
			kept = append(kept, kw)
		}
		if removed {
			if err := s.settings.SetStrings(ctx, key, kept); err != nil {
				return "Failed to save", err
			}
		}
	default:
		return "Unknown setting", nil
	}
	if !removed {
		return "Already removed", s.show(ctx, cb.ChatID, cb.MessageID, s.listView(ctx, key))
	}
	logger.Info(ctx, logger.ComponentConsole, "config.delete",
		slog.String("key", key),
		slog.Int64("admin_id", cb.From.ID),
	)
	return "Deleted", s.show(ctx, cb.ChatID, cb.MessageID, s.listView(ctx, key))
}

func keywordMatchesToken(kw, token string) bool {
	if strings.HasPrefix(token, hashPrefix) {
		return hashToken(kw) == token
	}
	return kw == token
}

func isForwardingKey(key string) bool {
	for _, k := range settings.ForwardingKeys {
		if k == key {
			return true
		}
	}
	return false
}

// show edits messageID in place when set, sending a fresh message if the
// edit fails.
func (s *Service) show(ctx context.Context, chatID int64, messageID int, v view) error {
	opts := tg.SendOptions{ParseMode: tele.ModeHTML, Markup: v.markup}
	if messageID != 0 {
		err := s.msgr.EditText(ctx, chatID, messageID, v.text, opts)
		if err == nil || isNotModified(err) {
			return nil
		}
		logger.Debug(ctx, logger.ComponentConsole, "menu.edit",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
	}
	if _, err := s.msgr.SendText(ctx, chatID, v.text, opts); err != nil {
		return fmt.Errorf("send menu: %w", err)
	}
	return nil
}

func isNotModified(err error) bool {
	return err != nil && strings.Contains(err.Error(), "message is not modified")
}

func (s *Service) send(ctx context.Context, chatID int64, text string) error {
	if _, err := s.msgr.SendText(ctx, chatID, text, tg.SendOptions{ParseMode: tele.ModeHTML}); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

func (s *Service) answer(ctx context.Context, callbackID, text string) {
	if callbackID == "" {
		return
	}
	if err := s.msgr.AnswerCallback(ctx, callbackID, text); err != nil {
		logger.Warn(ctx, logger.ComponentConsole, "callback.answer", slog.String("err", err.Error()))
	}
}

// Pending reports whether actorID has a wizard waiting for input. A
// malformed wizard counts as pending so HandleInput can reset it.
func (s *Service) Pending(ctx context.Context, actorID int64) bool {
	w, err := s.wizards.Get(ctx, actorID)
	if errors.Is(err, state.ErrMalformed) {
		return true
	}
	return err == nil && !w.Idle()
}
