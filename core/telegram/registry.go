package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/topicrelay/core/logger"
	"github.com/m3rciful/topicrelay/core/telegram/commands"
)

// ErrInvalidRegistration is returned for empty callback keys or handlers.
var ErrInvalidRegistration = errors.New("telegram: invalid registration")

// Registry holds the advertised slash commands and the callback handlers
// keyed by payload domain. It is safe for concurrent use.
type Registry struct {
	mu               sync.RWMutex
	commands         map[string]commands.Command
	callbacks        map[string]tele.HandlerFunc
	callbackNotFound tele.HandlerFunc
}

// NewRegistry returns an empty registry whose unknown-callback fallback
// answers with a short notice.
func NewRegistry() *Registry {
	return &Registry{
		commands:  make(map[string]commands.Command),
		callbacks: make(map[string]tele.HandlerFunc),
		callbackNotFound: func(c tele.Context) error {
			return c.Respond(&tele.CallbackResponse{Text: "Unsupported action"})
		},
	}
}

// RegisterCommand records menu metadata for name, which must start with a
// slash and carry a description. Invalid or duplicate entries are logged
// and ignored.
func (r *Registry) RegisterCommand(name string, cmd commands.Command) {
	reason := ""
	switch {
	case !strings.HasPrefix(name, "/") || len(name) < 2:
		reason = "bad_name"
	case cmd.Description == "":
		reason = "no_description"
	}
	r.mu.Lock()
	if _, dup := r.commands[name]; dup && reason == "" {
		reason = "duplicate"
	}
	if reason == "" {
		r.commands[name] = cmd
	}
	r.mu.Unlock()

	if reason != "" {
		logger.Warn(context.Background(), logger.ComponentWire, "register.command.skip",
			slog.String("name", name),
			slog.String("reason", reason),
		)
	}
}

// ListCommands returns the commands sorted by name. With visibleOnly,
// hidden and admin commands are left out.
func (r *Registry) ListCommands(visibleOnly bool) []tele.Command {
	return r.selectCommands(func(c commands.Command) bool {
		return !visibleOnly || (!c.Hidden && !c.AdminOnly)
	})
}

// AdminCommands returns the non-hidden admin commands sorted by name.
func (r *Registry) AdminCommands() []tele.Command {
	return r.selectCommands(func(c commands.Command) bool {
		return c.AdminOnly && !c.Hidden
	})
}

func (r *Registry) selectCommands(keep func(commands.Command) bool) []tele.Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var list []tele.Command
	for name, meta := range r.commands {
		if keep(meta) {
			list = append(list, tele.Command{Text: name, Description: meta.Description})
		}
	}
	slices.SortFunc(list, func(a, b tele.Command) int { return strings.Compare(a.Text, b.Text) })
	return list
}

// RegisterCallback binds handler to a payload domain such as "cfg".
func (r *Registry) RegisterCallback(key string, handler tele.HandlerFunc) error {
	if key == "" || handler == nil {
		return fmt.Errorf("%w: callback %q", ErrInvalidRegistration, key)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.callbacks[key]; exists {
		return fmt.Errorf("callback already registered: %s", key)
	}
	r.callbacks[key] = handler
	return nil
}

// GetCallback returns the handler bound to key.
func (r *Registry) GetCallback(key string) (tele.HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.callbacks[key]
	return h, ok
}

// ListCallbacks returns the registered domains, sorted.
func (r *Registry) ListCallbacks() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.callbacks))
	for k := range r.callbacks {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// SetCallbackNotFound replaces the fallback for unknown domains.
func (r *Registry) SetCallbackNotFound(h tele.HandlerFunc) {
	if h == nil {
		return
	}
	r.mu.Lock()
	r.callbackNotFound = h
	r.mu.Unlock()
}

// CallbackNotFound returns the fallback for unknown domains.
func (r *Registry) CallbackNotFound() tele.HandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.callbackNotFound
}

// InitBotCommands publishes the command menus: public commands for private
// chats, and admin commands inside the admin group when adminGroupID is set.
func InitBotCommands(bot *tele.Bot, reg *Registry, adminGroupID int64) {
	ctx := context.Background()
	publish := func(scope string, cmds []tele.Command, s tele.CommandScope) {
		if len(cmds) == 0 {
			return
		}
		if err := bot.SetCommands(cmds, s); err != nil {
			logger.Error(ctx, logger.ComponentWire, "register.commands",
				slog.String("status", "fail"),
				slog.String("scope", scope),
				slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			)
			return
		}
		logger.Debug(ctx, logger.ComponentWire, "register.commands",
			slog.String("status", "ok"),
			slog.String("scope", scope),
			slog.Int("count", len(cmds)),
		)
	}

	publish("private", reg.ListCommands(true), tele.CommandScope{Type: tele.CommandScopeAllPrivateChats})
	if adminGroupID != 0 {
		publish("admin_group", reg.AdminCommands(), tele.CommandScope{Type: tele.CommandScopeChat, ChatID: adminGroupID})
	}
}
