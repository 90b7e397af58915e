package handler

import (
	"fmt"

	tele "gopkg.in/telebot.v4"

	tg "github.com/m3rciful/topicrelay/core/telegram"
	"github.com/m3rciful/topicrelay/core/telegram/commands"
	"github.com/m3rciful/topicrelay/core/telegram/helpers"
	"github.com/m3rciful/topicrelay/core/telegram/middleware"
	"github.com/m3rciful/topicrelay/core/telegram/router"
	"github.com/m3rciful/topicrelay/internal/console"
	"github.com/m3rciful/topicrelay/internal/message"
	"github.com/m3rciful/topicrelay/internal/relay"
)

// Commands lists the bot commands shown in the Telegram menu.
var Commands = map[string]commands.Command{
	"/start":   {Description: "Start the conversation"},
	"/help":    {Description: "Show the welcome message"},
	"/cancel":  {Description: "Cancel pending admin input", Hidden: true},
	"/info":    {Description: "Show the user card in a topic", AdminOnly: true},
	"/block":   {Description: "Block the topic's user", AdminOnly: true},
	"/unblock": {Description: "Unblock the topic's user", AdminOnly: true},
}

// Routes registers commands and callback domains on reg and returns the
// bot routes. Callbacks are limited to authorized admins.
func (h *Handler) Routes(reg *tg.Registry, admins middleware.Authorizer) ([]tg.Route, error) {
	for name, cmd := range Commands {
		reg.RegisterCommand(name, cmd)
	}
	if err := reg.RegisterCallback(console.Domain, h.onConsole); err != nil {
		return nil, fmt.Errorf("register console callbacks: %w", err)
	}
	if err := reg.RegisterCallback(relay.DomainModeration, h.onModeration); err != nil {
		return nil, fmt.Errorf("register moderation callbacks: %w", err)
	}

	routes := router.MessageRoutes(router.MessageOptions{
		Message: h.onMessage,
		Edited:  h.onEdited,
	})
	routes = append(routes, router.CallbackRoute(reg, router.CallbackOptions{
		Authorizer: admins,
		OnReject: func(c tele.Context) error {
			return c.Respond(&tele.CallbackResponse{Text: "Not allowed"})
		},
	}))
	return routes, nil
}

func (h *Handler) onMessage(c tele.Context) error {
	m, ok := message.FromTele(c.Message())
	if !ok {
		return nil
	}
	ctx := helpers.BuildContext(c)
	if m.Private {
		return h.Private(ctx, m)
	}
	return h.Group(ctx, m)
}

func (h *Handler) onEdited(c tele.Context) error {
	m, ok := message.FromTele(c.Message())
	if !ok {
		return nil
	}
	return h.Edited(helpers.BuildContext(c), m)
}

func (h *Handler) onConsole(c tele.Context) error {
	cb, ok := message.CallbackFromTele(c.Callback())
	if !ok {
		return nil
	}
	return h.ConsoleCallback(helpers.BuildContext(c), cb)
}

func (h *Handler) onModeration(c tele.Context) error {
	cb, ok := message.CallbackFromTele(c.Callback())
	if !ok {
		return nil
	}
	return h.ModerationCallback(helpers.BuildContext(c), cb)
}
