package middleware

import (
	"context"
	"sync/atomic"

	tghelpers "github.com/m3rciful/topicrelay/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// Counters tracks outbound Bot API calls made while handling one update.
type Counters struct {
	messages atomic.Int64
	kb       atomic.Bool
}

type countersKey struct{}

// WithCounters attaches a fresh counter set to ctx.
func WithCounters(ctx context.Context) (context.Context, *Counters) {
	c := &Counters{}
	return context.WithValue(ctx, countersKey{}, c), c
}

// CountersFrom returns the counters attached to ctx, if any.
func CountersFrom(ctx context.Context) *Counters {
	if ctx == nil {
		return nil
	}
	c, _ := ctx.Value(countersKey{}).(*Counters)
	return c
}

// CountSent records a successful outbound message on the counters in ctx.
func CountSent(ctx context.Context, hasKB bool) {
	c := CountersFrom(ctx)
	if c == nil {
		return
	}
	c.messages.Add(1)
	if hasKB {
		c.kb.Store(true)
	}
}

// Snapshot returns the message count and whether any message carried a keyboard.
func (c *Counters) Snapshot() (int, bool) {
	if c == nil {
		return 0, false
	}
	return int(c.messages.Load()), c.kb.Load()
}

// MessageMetricsMiddleware installs per-update counters into the stored context.
func MessageMetricsMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx, _ := WithCounters(tghelpers.BuildContext(c))
		tghelpers.StoreContext(c, ctx)
		return next(c)
	}
}

// GetCounters reads message count and keyboard presence for the update in c.
func GetCounters(c tele.Context) (int, bool) {
	ctx, ok := tghelpers.ContextFrom(c)
	if !ok {
		return 0, false
	}
	return CountersFrom(ctx).Snapshot()
}
