package relay

import (
	"context"
	"fmt"
	"log/slog"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/topicrelay/core/logger"
	"github.com/m3rciful/topicrelay/core/telegram/callbacks"
	"github.com/m3rciful/topicrelay/core/telegram/format"
	"github.com/m3rciful/topicrelay/core/telegram/keyboard"
	"github.com/m3rciful/topicrelay/internal/message"
	"github.com/m3rciful/topicrelay/internal/store"
)

// DomainModeration prefixes moderation callback payloads.
const DomainModeration = "mod"

// Moderation actions.
const (
	ActionBlock   = "block"
	ActionUnblock = "unblock"
	ActionPin     = "pin"
)

// ModerationKeyboard is attached to profile cards. The block button reads
// "Blocked" while the user is blocked.
func ModerationKeyboard(userID string, blocked bool) *tele.ReplyMarkup {
	data := func(action string) string {
		return callbacks.New(DomainModeration, action, userID, "").String()
	}
	blockLabel := "🔒 Block"
	if blocked {
		blockLabel = "🔒 Blocked"
	}
	return keyboard.Rows(
		[]keyboard.Button{
			keyboard.Btn(blockLabel, data(ActionBlock)),
			keyboard.Btn("🔓 Unblock", data(ActionUnblock)),
		},
		[]keyboard.Button{keyboard.Btn("📌 Pin", data(ActionPin))},
	)
}

// HandleCallback runs a mod:<action>:<user id> button press. The caller is
// expected to have authorized the admin.
func (r *Router) HandleCallback(ctx context.Context, cb message.Callback, p callbacks.Payload) error {
	if _, err := p.TargetInt64(); err != nil {
		return r.answer(ctx, cb.ID, "User not found")
	}

	switch p.Action {
	case ActionBlock, ActionUnblock:
		blocked := p.Action == ActionBlock
		if err := r.setBlocked(ctx, p.Target, blocked, cb.From, cb.ThreadID); err != nil {
			_ = r.answer(ctx, cb.ID, "Failed, try again")
			return err
		}
		if err := r.msgr.EditMarkup(ctx, cb.ChatID, cb.MessageID, ModerationKeyboard(p.Target, blocked)); err != nil {
			logger.Warn(ctx, logger.ComponentRelay, "moderation.card",
				slog.String("user_id", p.Target),
				slog.String("err", err.Error()),
			)
		}
		if blocked {
			return r.answer(ctx, cb.ID, "User blocked")
		}
		return r.answer(ctx, cb.ID, "User unblocked")
	case ActionPin:
		if err := r.msgr.Pin(ctx, cb.ChatID, cb.MessageID); err != nil {
			logger.Warn(ctx, logger.ComponentRelay, "moderation.pin",
				slog.String("user_id", p.Target),
				slog.String("err", err.Error()),
			)
			return r.answer(ctx, cb.ID, "Could not pin the message")
		}
		return r.answer(ctx, cb.ID, "Pinned")
	default:
		return r.answer(ctx, cb.ID, "Unknown action")
	}
}

// TopicCommand handles /info, /block and /unblock sent by an authorized admin
// inside a user's topic. It reports whether m was such a command.
func (r *Router) TopicCommand(ctx context.Context, m message.Message) (bool, error) {
	cmd := m.Command()
	switch cmd {
	case "/info", "/block", "/unblock":
	default:
		return false, nil
	}
	if !r.IsThreadMessage(m) || !r.admins.IsAuthorizedAdmin(ctx, m.From.ID) {
		return false, nil
	}

	u, err := r.lookupTopicUser(ctx, m.ThreadID)
	if err != nil {
		return true, err
	}
	if u == nil {
		r.notify(ctx, r.groupID, m.ThreadID, TextNoUserInTopic)
		return true, nil
	}

	switch cmd {
	case "/info":
		if err := r.postCard(ctx, u, m.ThreadID); err != nil {
			return true, fmt.Errorf("post profile card: %w", err)
		}
		return true, nil
	default:
		return true, r.setBlocked(ctx, u.ID, cmd == "/block", m.From, m.ThreadID)
	}
}

// setBlocked updates the flag and leaves a note in the topic. Unblocking
// also clears the keyword hit count.
func (r *Router) setBlocked(ctx context.Context, userID string, blocked bool, actor message.Sender, thread int) error {
	patch := store.UserPatch{IsBlocked: store.Ptr(blocked)}
	if !blocked {
		patch.BlockCount = store.Ptr(0)
	}
	if err := r.store.UpdateUser(ctx, userID, patch); err != nil {
		return fmt.Errorf("set blocked: %w", err)
	}
	logger.Info(ctx, logger.ComponentRelay, "moderation.block",
		slog.String("user_id", userID),
		slog.Bool("blocked", blocked),
		slog.Int64("admin_id", actor.ID),
	)

	verb := "unblocked"
	if blocked {
		verb = "blocked"
	}
	by := format.DisplayName(actor.FirstName, actor.LastName, actor.Username)
	if by == "" {
		by = "an admin"
	}
	if thread != 0 {
		r.notify(ctx, r.groupID, thread, "User "+userID+" was "+verb+" by "+by+".")
	}
	return nil
}

func (r *Router) answer(ctx context.Context, callbackID, text string) error {
	if err := r.msgr.AnswerCallback(ctx, callbackID, text); err != nil {
		logger.Warn(ctx, logger.ComponentRelay, "callback.answer", slog.String("err", err.Error()))
	}
	return nil
}
