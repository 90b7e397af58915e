// Package verify runs the question gate private users pass before their
// messages reach the admin group.
package verify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/m3rciful/topicrelay/core/logger"
	tg "github.com/m3rciful/topicrelay/core/telegram"
	"github.com/m3rciful/topicrelay/internal/message"
	"github.com/m3rciful/topicrelay/internal/settings"
	"github.com/m3rciful/topicrelay/internal/store"
)

// User facing texts.
const (
	TextPassed      = "✅ Thank you, you are verified. You can now write your message."
	TextFailed      = "❌ That is not the right answer. Please try again."
	TextStartPrompt = "Please send /start to begin."
)

// Outcome tells the caller what to do after Handle.
type Outcome int

const (
	// Continue hands the message to the filter and relay.
	Continue Outcome = iota
	// Handled means the message was consumed by the gate.
	Handled
	// OpenConsole means a primary admin asked for /start or /help.
	OpenConsole
)

// Users is the slice of the store the gate mutates.
type Users interface {
	UpdateUser(ctx context.Context, id string, patch store.UserPatch) error
}

// Admins answers the admin membership questions the gate needs.
type Admins interface {
	IsPrimaryAdmin(id int64) bool
	IsAuthorizedAdmin(ctx context.Context, id int64) bool
}

// Gate moves users through new, pending_verification and verified.
type Gate struct {
	users    Users
	settings *settings.Resolver
	admins   Admins
	msgr     tg.Messenger
}

// New builds a Gate.
func New(users Users, resolver *settings.Resolver, admins Admins, msgr tg.Messenger) *Gate {
	return &Gate{users: users, settings: resolver, admins: admins, msgr: msgr}
}

// IsStartCommand reports /start and /help.
func IsStartCommand(m message.Message) bool {
	cmd := m.Command()
	return cmd == "/start" || cmd == "/help"
}

// ForceAdmin verifies authorized admins without asking the question.
// It reports whether the sender is an authorized admin.
func (g *Gate) ForceAdmin(ctx context.Context, u *store.User, senderID int64) (bool, error) {
	if !g.admins.IsAuthorizedAdmin(ctx, senderID) {
		return false, nil
	}
	if u.State == store.StateVerified {
		return true, nil
	}
	if err := g.setState(ctx, u, store.StateVerified); err != nil {
		return true, err
	}
	logger.Info(ctx, logger.ComponentVerify, "user.verified",
		slog.String("user_id", u.ID),
		slog.String("reason", "admin"),
	)
	return true, nil
}

// Handle applies the verification rules to a private message. u is updated
// in place when its state changes.
func (g *Gate) Handle(ctx context.Context, u *store.User, m message.Message) (Outcome, error) {
	if _, err := g.ForceAdmin(ctx, u, m.From.ID); err != nil {
		return Handled, err
	}

	if IsStartCommand(m) {
		if g.admins.IsPrimaryAdmin(m.From.ID) {
			return OpenConsole, nil
		}
		return Handled, g.start(ctx, u, m)
	}

	switch u.State {
	case store.StateVerified:
		return Continue, nil
	case store.StatePendingVerification:
		if m.Text == "" || m.Command() != "" {
			g.send(ctx, m.ChatID, g.settings.Value(ctx, settings.KeyVerifyQuestion))
			return Handled, nil
		}
		return Handled, g.answer(ctx, u, m)
	default:
		g.send(ctx, m.ChatID, TextStartPrompt)
		return Handled, nil
	}
}

func (g *Gate) start(ctx context.Context, u *store.User, m message.Message) error {
	welcome := g.settings.Value(ctx, settings.KeyWelcome)
	// Verified is terminal: no transition leaves it, so /start only greets.
	if u.State == store.StateVerified {
		g.send(ctx, m.ChatID, welcome)
		return nil
	}
	if u.State != store.StatePendingVerification {
		if err := g.setState(ctx, u, store.StatePendingVerification); err != nil {
			return err
		}
	}
	g.send(ctx, m.ChatID, welcome+"\n\n"+g.settings.Value(ctx, settings.KeyVerifyQuestion))
	return nil
}

func (g *Gate) answer(ctx context.Context, u *store.User, m message.Message) error {
	if !Accepts(g.settings.Value(ctx, settings.KeyVerifyAnswer), m.Text) {
		logger.Info(ctx, logger.ComponentVerify, "answer.rejected", slog.String("user_id", u.ID))
		g.send(ctx, m.ChatID, TextFailed)
		return nil
	}
	if err := g.setState(ctx, u, store.StateVerified); err != nil {
		return err
	}
	logger.Info(ctx, logger.ComponentVerify, "user.verified",
		slog.String("user_id", u.ID),
		slog.String("reason", "answer"),
	)
	g.send(ctx, m.ChatID, TextPassed)
	return nil
}

// Accepts compares input with each "|" separated accepted answer, ignoring
// case and surrounding whitespace.
func Accepts(accepted, input string) bool {
	input = strings.TrimSpace(input)
	if input == "" {
		return false
	}
	for _, want := range strings.Split(accepted, "|") {
		want = strings.TrimSpace(want)
		if want != "" && strings.EqualFold(want, input) {
			return true
		}
	}
	return false
}

func (g *Gate) setState(ctx context.Context, u *store.User, state store.State) error {
	if err := g.users.UpdateUser(ctx, u.ID, store.UserPatch{State: store.Ptr(state)}); err != nil {
		return fmt.Errorf("set state %s: %w", state, err)
	}
	u.State = state
	return nil
}

func (g *Gate) send(ctx context.Context, chatID int64, text string) {
	if _, err := g.msgr.SendText(ctx, chatID, text, tg.SendOptions{}); err != nil {
		logger.Warn(ctx, logger.ComponentVerify, "notice.send",
			slog.Int64("chat_id", chatID),
			slog.String("err", err.Error()),
		)
	}
}
