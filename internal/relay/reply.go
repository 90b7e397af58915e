package relay

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/m3rciful/topicrelay/core/logger"
	tg "github.com/m3rciful/topicrelay/core/telegram"
	"github.com/m3rciful/topicrelay/internal/message"
	"github.com/m3rciful/topicrelay/internal/store"
)

// IsThreadMessage reports a topic message inside the admin group.
func (r *Router) IsThreadMessage(m message.Message) bool {
	return m.ChatID == r.groupID && m.TopicMessage && m.ThreadID != 0 && !m.From.IsBot
}

// FromThread delivers an admin's topic message to the topic's user. The
// snapshot is stored whether or not the delivery succeeds.
func (r *Router) FromThread(ctx context.Context, m message.Message) error {
	if !r.IsThreadMessage(m) || !r.admins.IsAuthorizedAdmin(ctx, m.From.ID) {
		return nil
	}
	u, err := r.lookupTopicUser(ctx, m.ThreadID)
	if err != nil {
		return err
	}
	if u == nil {
		r.notify(ctx, r.groupID, m.ThreadID, TextNoUserInTopic)
		return nil
	}
	ctx = logger.WithRelayMeta(ctx, u.ID, m.ThreadID)
	chatID, err := userChatID(u)
	if err != nil {
		return err
	}

	sendErr := r.deliver(ctx, chatID, m)

	snap := store.Snapshot{UserID: u.ID, MessageID: strconv.Itoa(m.ID), Text: m.Body(), Date: m.Date}
	if err := r.store.PutSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}

	if sendErr != nil {
		logger.Warn(ctx, logger.ComponentRelay, "relay.to_user",
			slog.String("user_id", u.ID),
			slog.String("status", "fail"),
			slog.String("err", sendErr.Error()),
		)
		r.notify(ctx, r.groupID, m.ThreadID, "⚠️ Delivery to the user failed: "+sendErr.Error())
		return nil
	}
	logger.Info(ctx, logger.ComponentRelay, "relay.to_user",
		slog.String("user_id", u.ID),
		slog.Int("topic_id", m.ThreadID),
		slog.String("status", "ok"),
	)
	return nil
}

func (r *Router) deliver(ctx context.Context, chatID int64, m message.Message) error {
	switch {
	case m.Media != nil:
		media := *m.Media
		media.Caption = m.Caption
		_, err := r.msgr.SendMedia(ctx, chatID, media, tg.SendOptions{})
		return err
	case m.Text != "" && !m.Other:
		_, err := r.msgr.SendText(ctx, chatID, m.Text, tg.SendOptions{})
		return err
	default:
		_, err := r.msgr.SendText(ctx, chatID, TextCannotForward, tg.SendOptions{})
		return err
	}
}
