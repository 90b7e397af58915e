// Package helpers bridges telebot contexts and the logging context.
package helpers

import (
	"context"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/topicrelay/core/logger"
)

const contextKey = "logger_ctx"

// Meta identifies an update for correlation.
type Meta struct {
	UpdateID int
	ChatID   int64
	UserID   int64
	// ThreadID is the forum topic of a topic message, 0 otherwise.
	ThreadID int
}

// MetaOf extracts the identifiers of the update carried by c.
func MetaOf(c tele.Context) Meta {
	m := Meta{UpdateID: c.Update().ID}
	if chat := c.Chat(); chat != nil {
		m.ChatID = chat.ID
	}
	if user := c.Sender(); user != nil {
		m.UserID = user.ID
	}
	if msg := c.Message(); msg != nil && msg.TopicMessage {
		m.ThreadID = msg.ThreadID
	}
	return m
}

// RID returns the correlation id of the update.
func (m Meta) RID() string {
	return logger.BuildRID(m.UpdateID, m.ChatID, m.UserID)
}

// StoreContext caches ctx on c for later handlers of the same update.
func StoreContext(c tele.Context, ctx context.Context) {
	if c == nil || ctx == nil {
		return
	}
	c.Set(contextKey, ctx)
}

// ContextFrom returns the context cached by StoreContext.
func ContextFrom(c tele.Context) (context.Context, bool) {
	if c == nil {
		return nil, false
	}
	ctx, ok := c.Get(contextKey).(context.Context)
	return ctx, ok
}

// BuildContext returns the logging context of the update, creating and
// caching it on first use. Topic messages also carry their topic id.
func BuildContext(c tele.Context) context.Context {
	if cached, ok := ContextFrom(c); ok {
		return cached
	}
	m := MetaOf(c)
	ctx := logger.WithRID(context.Background(), m.RID())
	ctx = logger.WithUpdateMeta(ctx, m.UpdateID, m.UserID, m.ChatID)
	ctx = logger.WithRelayMeta(ctx, "", m.ThreadID)
	ctx = logger.WithLogger(ctx, logger.Component(logger.ComponentTG))
	StoreContext(c, ctx)
	return ctx
}

// WithHandler records the route name on the update context.
func WithHandler(c tele.Context, handler string) context.Context {
	ctx := BuildContext(c)
	if handler == "" || logger.HandlerFrom(ctx) == handler {
		return ctx
	}
	ctx = logger.WithHandler(ctx, handler)
	StoreContext(c, ctx)
	return ctx
}
