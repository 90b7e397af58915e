// Package relay mirrors messages between private chats and the per-user
// topics of the admin forum group.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/topicrelay/core/logger"
	tg "github.com/m3rciful/topicrelay/core/telegram"
	"github.com/m3rciful/topicrelay/core/telegram/format"
	"github.com/m3rciful/topicrelay/core/telegram/sender"
	"github.com/m3rciful/topicrelay/internal/message"
	"github.com/m3rciful/topicrelay/internal/settings"
	"github.com/m3rciful/topicrelay/internal/store"
)

// MaxTopicNameLen is the forum topic name limit in characters.
const MaxTopicNameLen = 128

// User facing texts.
const (
	TextDeliveryFailed = "⚠️ Sorry, your message could not be delivered right now. Please try again later."
	TextCannotForward  = "⚠️ The team sent content that cannot be forwarded here."
	TextNoUserInTopic  = "⚠️ No user is linked to this topic."
)

// Store is the persistence the router needs.
type Store interface {
	GetOrCreateUser(ctx context.Context, id string) (*store.User, error)
	UpdateUser(ctx context.Context, id string, patch store.UserPatch) error
	UserByTopic(ctx context.Context, topicID string) (*store.User, error)
	PutSnapshot(ctx context.Context, snap store.Snapshot) error
	GetSnapshot(ctx context.Context, userID, messageID string) (*store.Snapshot, error)
}

// Admins authorizes senders inside the admin group.
type Admins interface {
	IsAuthorizedAdmin(ctx context.Context, id int64) bool
}

// Options configures a Router.
type Options struct {
	// AdminGroupID is the forum supergroup hosting one topic per user.
	AdminGroupID int64
	// Backup runs the backup mirror sends. Nil runs them inline.
	Backup sender.Enqueuer
	Now    func() time.Time
}

// Router relays messages in both directions.
type Router struct {
	store    Store
	settings *settings.Resolver
	admins   Admins
	msgr     tg.Messenger
	groupID  int64
	backup   sender.Enqueuer
	now      func() time.Time
}

// New builds a Router.
func New(st Store, resolver *settings.Resolver, admins Admins, msgr tg.Messenger, opts Options) *Router {
	r := &Router{
		store:    st,
		settings: resolver,
		admins:   admins,
		msgr:     msgr,
		groupID:  opts.AdminGroupID,
		backup:   opts.Backup,
		now:      opts.Now,
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// AdminGroupID returns the configured admin group.
func (r *Router) AdminGroupID() int64 { return r.groupID }

// ToThread copies a private message into the user's topic, creating the
// topic when needed. A failed copy recreates the topic and retries once.
func (r *Router) ToThread(ctx context.Context, u *store.User, m message.Message) error {
	defer r.mirror(ctx, u, m)

	topic, err := r.ensureTopic(ctx, u, m.From)
	if err != nil {
		r.apologize(ctx, m.ChatID)
		return err
	}
	ctx = logger.WithRelayMeta(ctx, u.ID, topic)

	sent, err := r.copyInto(ctx, topic, u, m)
	if err != nil {
		logger.Warn(ctx, logger.ComponentRelay, "relay.copy",
			slog.String("user_id", u.ID),
			slog.Int("topic_id", topic),
			slog.String("status", "retry"),
			slog.String("err", err.Error()),
		)
		if err := r.forgetTopic(ctx, u); err != nil {
			r.apologize(ctx, m.ChatID)
			return err
		}
		if topic, err = r.ensureTopic(ctx, u, m.From); err != nil {
			r.apologize(ctx, m.ChatID)
			return err
		}
		if sent, err = r.copyInto(ctx, topic, u, m); err != nil {
			r.apologize(ctx, m.ChatID)
			return fmt.Errorf("copy into recreated topic: %w", err)
		}
	}

	logger.Info(ctx, logger.ComponentRelay, "relay.to_thread",
		slog.String("user_id", u.ID),
		slog.Int("topic_id", topic),
		slog.Int("message_id", sent.MessageID),
		slog.Bool("muted", u.IsBlocked),
	)

	if m.HasBody() {
		snap := store.Snapshot{UserID: u.ID, MessageID: strconv.Itoa(m.ID), Text: m.Body(), Date: m.Date}
		if err := r.store.PutSnapshot(ctx, snap); err != nil {
			return fmt.Errorf("store snapshot: %w", err)
		}
	}
	return nil
}

func (r *Router) copyInto(ctx context.Context, topic int, u *store.User, m message.Message) (tg.Sent, error) {
	return r.msgr.Copy(ctx, r.groupID, m.ChatID, m.ID, tg.SendOptions{ThreadID: topic, Silent: u.IsBlocked})
}

// ensureTopic returns the user's topic, creating it and posting the profile
// card when the user has none.
func (r *Router) ensureTopic(ctx context.Context, u *store.User, from message.Sender) (int, error) {
	if u.TopicID != "" {
		if id, err := strconv.Atoi(u.TopicID); err == nil && id > 0 {
			return id, nil
		}
	}

	name := format.DisplayName(from.FirstName, from.LastName, from.Username)
	id, err := r.msgr.CreateTopic(ctx, r.groupID, TopicName(name, u.ID))
	if err != nil {
		return 0, fmt.Errorf("create topic: %w", err)
	}

	info := &store.UserInfo{Name: name, Username: from.Username, FirstSeen: r.now().Unix()}
	if u.Info != nil && u.Info.FirstSeen > 0 {
		info.FirstSeen = u.Info.FirstSeen
	}
	topicID := strconv.Itoa(id)
	patch := store.UserPatch{TopicID: &topicID, BlockCount: store.Ptr(0), Info: info}
	if err := r.store.UpdateUser(ctx, u.ID, patch); err != nil {
		return 0, fmt.Errorf("persist topic: %w", err)
	}
	u.TopicID, u.BlockCount, u.Info = topicID, 0, info

	logger.Info(ctx, logger.ComponentRelay, "topic.created",
		slog.String("user_id", u.ID),
		slog.Int("topic_id", id),
	)
	if err := r.postCard(ctx, u, id); err != nil {
		logger.Warn(ctx, logger.ComponentRelay, "topic.card",
			slog.String("user_id", u.ID),
			slog.String("err", err.Error()),
		)
	}
	return id, nil
}

func (r *Router) forgetTopic(ctx context.Context, u *store.User) error {
	if err := r.store.UpdateUser(ctx, u.ID, store.UserPatch{TopicID: store.Ptr("")}); err != nil {
		return fmt.Errorf("clear topic: %w", err)
	}
	u.TopicID = ""
	return nil
}

// TopicName builds "name | id" within the forum topic name limit.
func TopicName(name, userID string) string {
	if name == "" {
		name = "User"
	}
	return format.TruncateRunes(name+" | "+userID, MaxTopicNameLen)
}

// postCard sends the HTML profile card with moderation buttons.
func (r *Router) postCard(ctx context.Context, u *store.User, topic int) error {
	_, err := r.msgr.SendText(ctx, r.groupID, ProfileCard(u), tg.SendOptions{
		ThreadID:  topic,
		ParseMode: tele.ModeHTML,
		Markup:    ModerationKeyboard(u.ID, u.IsBlocked),
	})
	return err
}

// ProfileCard renders the user summary posted at the top of a topic.
func ProfileCard(u *store.User) string {
	name, username, firstSeen := "", "", int64(0)
	if u.Info != nil {
		name, username, firstSeen = u.Info.Name, u.Info.Username, u.Info.FirstSeen
	}
	if name == "" {
		name = "Unknown"
	}
	handle := "none"
	if username != "" {
		handle = "@" + format.EscapeHTML(username)
	}
	status := string(u.State)
	if u.IsBlocked {
		status += ", blocked"
	}
	return "👤 <b>" + format.EscapeHTML(name) + "</b>\n" +
		"Username: " + handle + "\n" +
		"ID: <code>" + format.EscapeHTML(u.ID) + "</code>\n" +
		"First contact: " + formatTime(firstSeen) + "\n" +
		"Status: " + format.EscapeHTML(status)
}

func (r *Router) apologize(ctx context.Context, chatID int64) {
	r.notify(ctx, chatID, 0, TextDeliveryFailed)
}

func (r *Router) notify(ctx context.Context, chatID int64, thread int, text string) {
	if _, err := r.msgr.SendText(ctx, chatID, text, tg.SendOptions{ThreadID: thread}); err != nil {
		logger.Warn(ctx, logger.ComponentRelay, "notice.send",
			slog.Int64("chat_id", chatID),
			slog.String("err", err.Error()),
		)
	}
}

func userChatID(u *store.User) (int64, error) {
	id, err := strconv.ParseInt(u.ID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("user id %q: %w", u.ID, err)
	}
	return id, nil
}

// lookupTopicUser resolves the user owning a topic; a miss is reported as
// (nil, nil).
func (r *Router) lookupTopicUser(ctx context.Context, thread int) (*store.User, error) {
	u, err := r.store.UserByTopic(ctx, strconv.Itoa(thread))
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup topic %d: %w", thread, err)
	}
	return u, nil
}

func formatTime(unix int64) string {
	if unix <= 0 {
		return "unknown"
	}
	return time.Unix(unix, 0).UTC().Format("2006-01-02 15:04 UTC")
}
