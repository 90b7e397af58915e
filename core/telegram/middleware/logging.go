package middleware

import (
	"log/slog"
	"time"

	"github.com/maypok86/otter"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/topicrelay/core/logger"
	"github.com/m3rciful/topicrelay/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/topicrelay/core/telegram/helpers"
)

// seenUpdates remembers recently logged update ids so an update that passes
// through several wrapped routes is logged once.
var seenUpdates otter.Cache[int, struct{}]

func init() {
	cache, err := otter.MustBuilder[int, struct{}](4096).WithTTL(30 * time.Second).Build()
	if err != nil {
		panic(err)
	}
	seenUpdates = cache
}

// firstSight reports whether updateID has not been logged recently.
func firstSight(updateID int) bool {
	return seenUpdates.SetIfAbsent(updateID, struct{}{})
}

// LoggerMiddleware builds the update context and logs one sampled receipt
// line per update.
func LoggerMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx := tghelpers.BuildContext(c)
		upd := c.Update()
		if logger.ShouldSampleDebug() && firstSight(upd.ID) {
			logger.LogEvent(ctx, logger.Component(logger.ComponentTG), slog.LevelDebug, "update.received", receiptAttrs(c, upd)...)
		}
		return next(c)
	}
}

func receiptAttrs(c tele.Context, upd tele.Update) []slog.Attr {
	attrs := []slog.Attr{slog.String("status", "ok")}
	if chat := c.Chat(); chat != nil {
		attrs = append(attrs, slog.String("chat_type", string(chat.Type)))
	}
	if user := c.Sender(); user != nil && user.Username != "" {
		attrs = append(attrs, slog.String("username", logger.SanitizeLimit(user.Username, 64)))
	}
	kind := UpdateKind(upd)
	attrs = append(attrs, slog.String("kind", kind))
	if kind == "callback" {
		if p, err := callbacks.Parse(upd.Callback.Data); err == nil {
			attrs = append(attrs,
				slog.String("cb_key", p.Domain),
				slog.String("action", p.Action),
			)
		} else {
			attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(upd.Callback.Data, 64)))
		}
	}
	return attrs
}
