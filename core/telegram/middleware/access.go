package middleware

import (
	"context"

	tghelpers "github.com/m3rciful/topicrelay/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// Authorizer decides whether a sender may reach admin-only handlers.
type Authorizer interface {
	IsAuthorizedAdmin(ctx context.Context, userID int64) bool
}

// AdminOptions defines how admin-only checks should behave.
type AdminOptions struct {
	Authorizer Authorizer
	OnReject   tele.HandlerFunc
}

// AdminOnlyMiddleware lets only authorized admins reach downstream handlers.
func AdminOnlyMiddleware(opts AdminOptions) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			sender := c.Sender()
			if opts.Authorizer == nil || sender == nil ||
				!opts.Authorizer.IsAuthorizedAdmin(tghelpers.BuildContext(c), sender.ID) {
				if opts.OnReject != nil {
					return opts.OnReject(c)
				}
				return nil
			}
			return next(c)
		}
	}
}
