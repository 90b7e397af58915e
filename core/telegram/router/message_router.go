package router

import (
	tele "gopkg.in/telebot.v4"

	tg "github.com/m3rciful/topicrelay/core/telegram"
	"github.com/m3rciful/topicrelay/core/telegram/middleware"
)

// MessageOptions names the handlers for new and edited messages.
type MessageOptions struct {
	Message tele.HandlerFunc
	Edited  tele.HandlerFunc
}

// messageEndpoints are the telebot events that carry a new message worth
// handling. Media kinds without a dedicated handler fall back to OnMedia.
var messageEndpoints = []string{
	tele.OnText,
	tele.OnMedia,
	tele.OnContact,
	tele.OnLocation,
	tele.OnVenue,
	tele.OnPoll,
	tele.OnDice,
}

// MessageRoutes builds the routes for new and edited messages.
func MessageRoutes(opts MessageOptions) []tg.Route {
	var routes []tg.Route
	if opts.Message != nil {
		h := wrap("message", opts.Message)
		for _, ep := range messageEndpoints {
			routes = append(routes, tg.Route{Endpoint: ep, Handler: h})
		}
	}
	if opts.Edited != nil {
		routes = append(routes, tg.Route{Endpoint: tele.OnEdited, Handler: wrap("edited", opts.Edited)})
	}
	return routes
}

func wrap(name string, next tele.HandlerFunc) tele.HandlerFunc {
	handler := func(c tele.Context) error {
		return runLogged(c, handlerName(name, c), func() error {
			return next(c)
		})
	}
	return middleware.RecoverMiddleware(middleware.LoggerMiddleware(middleware.MessageMetricsMiddleware(handler)))
}

func handlerName(base string, c tele.Context) string {
	chat := c.Chat()
	if chat == nil {
		return base
	}
	if chat.Type == tele.ChatPrivate {
		return base + ".private"
	}
	return base + ".group"
}
