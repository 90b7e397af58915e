package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/topicrelay/core/logger"
	tg "github.com/m3rciful/topicrelay/core/telegram"
	"github.com/m3rciful/topicrelay/core/telegram/format"
	"github.com/m3rciful/topicrelay/internal/message"
	"github.com/m3rciful/topicrelay/internal/store"
)

// Placeholders used when no snapshot of the edited message exists.
const (
	UnavailableText = "(original content unavailable)"
	UnavailableDate = "unknown"
)

// UserEdited posts a before/after notice into the user's topic and
// replaces the stored snapshot. Users without a topic are ignored.
func (r *Router) UserEdited(ctx context.Context, u *store.User, m message.Message) error {
	if u.TopicID == "" {
		return nil
	}
	topic, err := strconv.Atoi(u.TopicID)
	if err != nil {
		return fmt.Errorf("topic id %q: %w", u.TopicID, err)
	}

	before, origDate, found, err := r.previous(ctx, u.ID, m.ID)
	if err != nil {
		return err
	}
	if !found {
		origDate = m.Date
	}
	snap := store.Snapshot{UserID: u.ID, MessageID: strconv.Itoa(m.ID), Text: m.Body(), Date: origDate}
	if err := r.store.PutSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}

	dateLabel := UnavailableDate
	if found {
		dateLabel = formatTime(origDate)
	}
	notice := "✏️ <b>The user edited a message</b>\n\n" +
		"<b>Original</b> (" + dateLabel + "):\n" + quote(before) + "\n\n" +
		"<b>Edited</b>:\n" + quote(m.Body())
	if _, err := r.msgr.SendText(ctx, r.groupID, notice, tg.SendOptions{ThreadID: topic, ParseMode: tele.ModeHTML}); err != nil {
		logEditFailure(ctx, u, "user", err)
		return nil
	}
	logger.Info(ctx, logger.ComponentRelay, "edit.user",
		slog.String("user_id", u.ID),
		slog.Int("message_id", m.ID),
		slog.Bool("snapshot", found),
	)
	return nil
}

// AdminEdited notifies the topic's user that an admin reply changed.
func (r *Router) AdminEdited(ctx context.Context, m message.Message) error {
	if !r.IsThreadMessage(m) || !r.admins.IsAuthorizedAdmin(ctx, m.From.ID) {
		return nil
	}
	u, err := r.lookupTopicUser(ctx, m.ThreadID)
	if err != nil || u == nil {
		return err
	}
	chatID, err := userChatID(u)
	if err != nil {
		return err
	}

	before, origDate, found, err := r.previous(ctx, u.ID, m.ID)
	if err != nil {
		return err
	}
	editDate := m.EditDate
	if editDate == 0 {
		editDate = origDate
	}
	if editDate == 0 {
		editDate = m.Date
	}
	snap := store.Snapshot{UserID: u.ID, MessageID: strconv.Itoa(m.ID), Text: m.Body(), Date: editDate}
	if err := r.store.PutSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}

	origLabel := UnavailableDate
	if found {
		origLabel = formatTime(origDate)
	}
	notice := "✏️ <b>A message from the team was edited</b>\n\n" +
		"<b>Original</b> (" + origLabel + "):\n" + quote(before) + "\n\n" +
		"<b>Edited</b> (" + formatTime(editDate) + "):\n" + quote(m.Body())
	if _, err := r.msgr.SendText(ctx, chatID, notice, tg.SendOptions{ParseMode: tele.ModeHTML}); err != nil {
		logEditFailure(ctx, u, "admin", err)
		return nil
	}
	logger.Info(ctx, logger.ComponentRelay, "edit.admin",
		slog.String("user_id", u.ID),
		slog.Int("message_id", m.ID),
		slog.Bool("snapshot", found),
	)
	return nil
}

// previous returns the stored text and date for a message, or placeholders.
func (r *Router) previous(ctx context.Context, userID string, messageID int) (string, int64, bool, error) {
	snap, err := r.store.GetSnapshot(ctx, userID, strconv.Itoa(messageID))
	if errors.Is(err, store.ErrNotFound) {
		return UnavailableText, 0, false, nil
	}
	if err != nil {
		return "", 0, false, fmt.Errorf("load snapshot: %w", err)
	}
	return snap.Text, snap.Date, true, nil
}

func quote(s string) string {
	if s == "" {
		s = "(empty)"
	}
	return "<blockquote>" + format.EscapeHTML(s) + "</blockquote>"
}

func logEditFailure(ctx context.Context, u *store.User, side string, err error) {
	logger.Warn(ctx, logger.ComponentRelay, "edit."+side,
		slog.String("user_id", u.ID),
		slog.String("status", "fail"),
		slog.String("err", err.Error()),
	)
}
