package middleware

import (
	"log/slog"
	"time"

	"github.com/maypok86/otter"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/topicrelay/core/logger"
	tghelpers "github.com/m3rciful/topicrelay/core/telegram/helpers"
)

// rateLimitCapacity bounds how many senders are tracked at once.
const rateLimitCapacity = 10_000

// RateLimitOptions configures RateLimitMiddleware. Exclude holds update kinds
// as returned by UpdateKind.
type RateLimitOptions struct {
	Interval  time.Duration
	Exclude   map[string]struct{}
	OnLimited tele.HandlerFunc
}

// RateLimitMiddleware drops updates from a sender that arrive within
// Interval of the previous accepted one. Edits and album parts always pass:
// Telegram delivers an album as one update per item, and dropping an edit
// would leave the relayed copy stale.
func RateLimitMiddleware(opts RateLimitOptions) tele.MiddlewareFunc {
	if opts.Interval <= 0 {
		return func(next tele.HandlerFunc) tele.HandlerFunc { return next }
	}
	lastSeen, err := otter.MustBuilder[int64, struct{}](rateLimitCapacity).
		WithTTL(opts.Interval).
		Build()
	if err != nil {
		panic(err)
	}
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := c.Sender()
			if user == nil {
				return next(c)
			}
			kind := UpdateKind(c.Update())
			if _, skip := opts.Exclude[kind]; skip {
				return next(c)
			}
			if lastSeen.SetIfAbsent(user.ID, struct{}{}) || exempt(c.Update()) {
				return next(c)
			}

			logger.Warn(tghelpers.BuildContext(c), logger.ComponentTG, "tg.rate_limit",
				slog.String("status", "rate_limited"),
				slog.String("kind", kind),
			)
			if opts.OnLimited != nil {
				_ = opts.OnLimited(c)
			}
			return nil
		}
	}
}

func exempt(upd tele.Update) bool {
	if upd.EditedMessage != nil {
		return true
	}
	return upd.Message != nil && upd.Message.AlbumID != ""
}

// UpdateKind names the payload of upd for logging and exclusion lists.
func UpdateKind(upd tele.Update) string {
	switch {
	case upd.Callback != nil:
		return "callback"
	case upd.Message != nil:
		return "message"
	case upd.EditedMessage != nil:
		return "edited_message"
	default:
		return "other"
	}
}
