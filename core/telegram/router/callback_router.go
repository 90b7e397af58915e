package router

import (
	"log/slog"
	"strings"

	tele "gopkg.in/telebot.v4"

	tg "github.com/m3rciful/topicrelay/core/telegram"
	"github.com/m3rciful/topicrelay/core/telegram/callbacks"
	"github.com/m3rciful/topicrelay/core/telegram/middleware"
)

// CallbackOptions customises fallback behaviour and access for callbacks.
type CallbackOptions struct {
	NotFound tele.HandlerFunc
	// Authorizer, when set, restricts every callback to authorized admins.
	Authorizer middleware.Authorizer
	OnReject   tele.HandlerFunc
}

// CallbackRoute returns a handler that routes callbacks to the handler
// registered for the payload domain.
func CallbackRoute(reg *tg.Registry, opts CallbackOptions) tg.Route {
	handler := func(c tele.Context) error {
		if c.Callback() == nil {
			return nil
		}

		key := callbackDomain(c.Callback().Data)
		name := "callback." + routeName(key)
		extras := []slog.Attr{slog.String("cb_key", key)}

		cbHandler, ok := reg.GetCallback(key)
		if !ok || cbHandler == nil {
			fallback := reg.CallbackNotFound()
			if fallback == nil {
				fallback = opts.NotFound
			}
			extras = append(extras, slog.String("reason", "not_found"))
			return runLogged(c, name, func() error {
				if fallback != nil {
					return fallback(c)
				}
				return nil
			}, extras...)
		}

		return runLogged(c, name, func() error {
			return cbHandler(c)
		}, extras...)
	}

	h := tele.HandlerFunc(handler)
	if opts.Authorizer != nil {
		h = middleware.AdminOnlyMiddleware(middleware.AdminOptions{
			Authorizer: opts.Authorizer,
			OnReject:   opts.OnReject,
		})(h)
	}
	return tg.Route{
		Endpoint: tele.OnCallback,
		Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(middleware.MessageMetricsMiddleware(h))),
	}
}

// callbackDomain returns the domain segment of raw callback data. Payloads
// without an action still route by their first segment.
func callbackDomain(data string) string {
	if p, err := callbacks.Parse(data); err == nil {
		return p.Domain
	}
	key, _, _ := strings.Cut(strings.TrimPrefix(data, "\f"), ":")
	return strings.TrimSpace(key)
}
