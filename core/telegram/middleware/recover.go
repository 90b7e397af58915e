package middleware

import (
	"fmt"
	"log/slog"
	"runtime/debug"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/topicrelay/core/logger"
	tghelpers "github.com/m3rciful/topicrelay/core/telegram/helpers"
)

const maxStackBytes = 4096

// RecoverMiddleware turns a handler panic into an error log line and lets
// the update loop continue.
func RecoverMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) (err error) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			stack := debug.Stack()
			if len(stack) > maxStackBytes {
				stack = stack[:maxStackBytes]
			}
			logger.Error(tghelpers.BuildContext(c), logger.ComponentTG, "tg.panic",
				slog.String("status", "fail"),
				slog.String("kind", UpdateKind(c.Update())),
				slog.String("err", logger.SanitizeLimit(fmt.Sprint(r), 256)),
				slog.String("stack", string(stack)),
			)
			err = nil
		}()
		return next(c)
	}
}
