package console

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/m3rciful/topicrelay/core/logger"
	"github.com/m3rciful/topicrelay/core/telegram/format"
	"github.com/m3rciful/topicrelay/core/telegram/state"
	"github.com/m3rciful/topicrelay/internal/filter"
	"github.com/m3rciful/topicrelay/internal/settings"
)

// RuleSeparator splits pattern and response in the add-rule wizard.
const RuleSeparator = "==="

const cancelHint = "\n\nSend /cancel to go back."

var editPrompts = map[string]string{
	settings.KeyWelcome:          "Send the new welcome message.",
	settings.KeyVerifyQuestion:   "Send the new verification question.",
	settings.KeyVerifyAnswer:     "Send the accepted answers separated by <code>|</code>.",
	settings.KeyBlockThreshold:   "Send the number of keyword hits that blocks a user.",
	settings.KeyAuthorizedAdmins: "Send the user ids of delegated admins separated by spaces or commas. Send <code>-</code> to remove all.",
	settings.KeyBackupGroupID:    "Send the chat id of the backup group. Send <code>-</code> to disable backups.",
}

var addPrompts = map[string]string{
	settings.KeyBlockKeywords:    "Send the keyword or regular expression to block." + cancelHint,
	settings.KeyKeywordResponses: "Send <code>pattern" + RuleSeparator + "response</code>." + cancelHint,
}

// clearable keys accept an empty value or "-" to reset.
var clearable = map[string]bool{
	settings.KeyBackupGroupID:    true,
	settings.KeyAuthorizedAdmins: true,
}

func (s *Service) editPrompt(ctx context.Context, key string) string {
	current := s.settings.Value(ctx, key)
	if key == settings.KeyAuthorizedAdmins {
		current = strings.Join(s.settings.Strings(ctx, key), ", ")
	}
	if current == "" {
		current = "(empty)"
	}
	return "✏️ <b>" + label(key) + "</b>\n" + editPrompts[key] +
		"\n\nCurrent value:\n<code>" + format.EscapeHTML(format.TruncateRunes(current, 500)) + "</code>" + cancelHint
}

// HandleInput consumes a private text from actorID when a wizard is
// pending. It reports whether the text was consumed.
func (s *Service) HandleInput(ctx context.Context, actorID, chatID int64, text string) (bool, error) {
	w, err := s.wizards.Get(ctx, actorID)
	if errors.Is(err, state.ErrMalformed) {
		logger.Warn(ctx, logger.ComponentConsole, "wizard.reset",
			slog.Int64("admin_id", actorID),
			slog.String("err", err.Error()),
		)
		if err := s.wizards.Clear(ctx, actorID); err != nil {
			return true, err
		}
		if err := s.send(ctx, chatID, TextWizardReset); err != nil {
			return true, err
		}
		return true, s.show(ctx, chatID, 0, rootMenu())
	}
	if err != nil {
		return false, err
	}
	if w.Idle() {
		return false, nil
	}

	input := strings.TrimSpace(text)
	if strings.EqualFold(input, "/cancel") {
		if err := s.wizards.Clear(ctx, actorID); err != nil {
			return true, err
		}
		if err := s.send(ctx, chatID, "Cancelled."); err != nil {
			return true, err
		}
		return true, s.show(ctx, chatID, 0, s.render(ctx, ParentMenu(w.Key)))
	}
	if strings.HasPrefix(input, "/") {
		cmd, _, _ := strings.Cut(input, " ")
		cmd, _, _ = strings.Cut(cmd, "@")
		if cmd == "/start" || cmd == "/help" {
			// The caller opens the console next.
			return false, s.wizards.Clear(ctx, actorID)
		}
		return true, s.send(ctx, chatID, "⚠️ Commands cannot be saved as a value."+cancelHint)
	}

	var problem string
	switch w.Action {
	case ActionEdit:
		problem, err = s.applyEdit(ctx, w.Key, input)
	case ActionAdd:
		problem, err = s.applyAdd(ctx, w.Key, input)
	default:
		problem = "unknown wizard"
	}
	if err != nil {
		return true, err
	}
	if problem != "" {
		return true, s.send(ctx, chatID, "⚠️ "+format.EscapeHTML(problem)+" Please try again."+cancelHint)
	}

	if err := s.wizards.Clear(ctx, actorID); err != nil {
		return true, err
	}
	logger.Info(ctx, logger.ComponentConsole, "config.saved",
		slog.String("action", w.Action),
		slog.String("key", w.Key),
		slog.Int64("admin_id", actorID),
	)
	if err := s.send(ctx, chatID, "✅ Saved."); err != nil {
		return true, err
	}
	return true, s.show(ctx, chatID, 0, s.render(ctx, ParentMenu(w.Key)))
}

// applyEdit validates and stores a single value. A non-empty problem is
// shown to the admin and keeps the wizard open.
func (s *Service) applyEdit(ctx context.Context, key, input string) (string, error) {
	clearing := input == "" || input == "-"
	if clearing && !clearable[key] {
		return "The value cannot be empty.", nil
	}

	var value string
	switch key {
	case settings.KeyBlockThreshold:
		n, err := strconv.Atoi(input)
		if err != nil || n < 1 {
			return "The threshold must be a positive whole number.", nil
		}
		value = strconv.Itoa(n)
	case settings.KeyBackupGroupID:
		if !clearing {
			if _, err := strconv.ParseInt(input, 10, 64); err != nil {
				return "The chat id must be a whole number, for example -1001234567890.", nil
			}
			value = input
		}
	case settings.KeyAuthorizedAdmins:
		ids, problem := parseAdminIDs(input, clearing)
		if problem != "" {
			return problem, nil
		}
		return "", s.settings.SetStrings(ctx, key, ids)
	case settings.KeyWelcome, settings.KeyVerifyQuestion, settings.KeyVerifyAnswer:
		value = input
	default:
		return "This setting cannot be edited.", nil
	}
	return "", s.settings.Set(ctx, key, value)
}

func parseAdminIDs(input string, clearing bool) ([]string, string) {
	if clearing {
		return nil, ""
	}
	fields := strings.FieldsFunc(input, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n' || r == '\t' || r == ';'
	})
	ids := make([]string, 0, len(fields))
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if _, err := strconv.ParseInt(f, 10, 64); err != nil {
			return nil, fmt.Sprintf("%q is not a numeric user id.", f)
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		ids = append(ids, f)
	}
	return ids, ""
}

func (s *Service) applyAdd(ctx context.Context, key, input string) (string, error) {
	if input == "" {
		return "The value cannot be empty.", nil
	}
	switch key {
	case settings.KeyBlockKeywords:
		if err := filter.ValidatePattern(input); err != nil {
			return "Invalid pattern: " + err.Error() + ".", nil
		}
		list := s.settings.Strings(ctx, key)
		return "", s.settings.SetStrings(ctx, key, append(list, input))
	case settings.KeyKeywordResponses:
		pattern, response, ok := strings.Cut(input, RuleSeparator)
		pattern, response = strings.TrimSpace(pattern), strings.TrimSpace(response)
		if !ok || pattern == "" || response == "" {
			return "Use the form pattern" + RuleSeparator + "response.", nil
		}
		if err := filter.ValidatePattern(pattern); err != nil {
			return "Invalid pattern: " + err.Error() + ".", nil
		}
		rules := s.settings.Rules(ctx)
		rule := settings.Rule{Keywords: pattern, Response: response, ID: settings.NextRuleID(rules, s.now())}
		return "", s.settings.SetRules(ctx, append(rules, rule))
	default:
		return "Entries cannot be added to this setting.", nil
	}
}
