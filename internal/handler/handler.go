// Package handler routes inbound updates through verification, filtering,
// relay and the admin console.
package handler

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/m3rciful/topicrelay/core/logger"
	"github.com/m3rciful/topicrelay/core/telegram/callbacks"
	"github.com/m3rciful/topicrelay/internal/console"
	"github.com/m3rciful/topicrelay/internal/filter"
	"github.com/m3rciful/topicrelay/internal/message"
	"github.com/m3rciful/topicrelay/internal/relay"
	"github.com/m3rciful/topicrelay/internal/store"
	"github.com/m3rciful/topicrelay/internal/verify"
)

// Users loads private chat users.
type Users interface {
	GetOrCreateUser(ctx context.Context, id string) (*store.User, error)
}

// Deps are the services a Handler drives.
type Deps struct {
	Users   Users
	Gate    *verify.Gate
	Filter  *filter.Engine
	Relay   *relay.Router
	Console *console.Service
}

// Handler dispatches normalized updates.
type Handler struct {
	users   Users
	gate    *verify.Gate
	filter  *filter.Engine
	relay   *relay.Router
	console *console.Service
}

// New builds a Handler.
func New(d Deps) *Handler {
	return &Handler{users: d.Users, gate: d.Gate, filter: d.Filter, relay: d.Relay, console: d.Console}
}

// Private runs a private message through wizard input, verification,
// filtering and relay. Messages of blocked verified users are dropped
// without any outbound call or state change.
func (h *Handler) Private(ctx context.Context, m message.Message) error {
	if m.From.ID == 0 || m.From.IsBot {
		return nil
	}
	u, err := h.users.GetOrCreateUser(ctx, strconv.FormatInt(m.From.ID, 10))
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	if dropped(u) {
		logger.Debug(ctx, logger.ComponentRelay, "message.dropped",
			slog.String("user_id", u.ID),
			slog.String("reason", "blocked"),
		)
		return nil
	}

	isAdmin, err := h.gate.ForceAdmin(ctx, u, m.From.ID)
	if err != nil {
		return err
	}
	if isAdmin && h.console.Pending(ctx, m.From.ID) {
		if handled, err := h.console.HandleInput(ctx, m.From.ID, m.ChatID, m.Text); handled || err != nil {
			return err
		}
	}

	out, err := h.gate.Handle(ctx, u, m)
	if err != nil {
		return err
	}
	switch out {
	case verify.OpenConsole:
		return h.console.Open(ctx, m.ChatID)
	case verify.Handled:
		return nil
	}

	verdict, err := h.filter.Apply(ctx, u, m)
	if err != nil {
		return err
	}
	if verdict != filter.Pass {
		return nil
	}
	return h.relay.ToThread(ctx, u, m)
}

// Group handles admin group messages: topic commands first, then replies.
func (h *Handler) Group(ctx context.Context, m message.Message) error {
	if m.ChatID != h.relay.AdminGroupID() {
		return nil
	}
	if handled, err := h.relay.TopicCommand(ctx, m); handled || err != nil {
		return err
	}
	return h.relay.FromThread(ctx, m)
}

// Edited reconciles an edit on either side of the relay.
func (h *Handler) Edited(ctx context.Context, m message.Message) error {
	if !m.Private {
		if m.ChatID != h.relay.AdminGroupID() {
			return nil
		}
		return h.relay.AdminEdited(ctx, m)
	}
	if m.From.ID == 0 {
		return nil
	}
	u, err := h.users.GetOrCreateUser(ctx, strconv.FormatInt(m.From.ID, 10))
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	if dropped(u) {
		return nil
	}
	return h.relay.UserEdited(ctx, u, m)
}

// ConsoleCallback runs a cfg:* payload.
func (h *Handler) ConsoleCallback(ctx context.Context, cb message.Callback) error {
	p, err := callbacks.Parse(cb.Data)
	if err != nil {
		return err
	}
	return h.console.HandleCallback(ctx, cb, p)
}

// ModerationCallback runs a mod:* payload.
func (h *Handler) ModerationCallback(ctx context.Context, cb message.Callback) error {
	p, err := callbacks.Parse(cb.Data)
	if err != nil {
		return err
	}
	return h.relay.HandleCallback(ctx, cb, p)
}

func dropped(u *store.User) bool {
	return u.State == store.StateVerified && u.IsBlocked
}
