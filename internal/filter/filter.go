// Package filter decides whether a verified user's message may reach the
// admin group.
package filter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"time"

	"github.com/maypok86/otter"

	"github.com/m3rciful/topicrelay/core/logger"
	tg "github.com/m3rciful/topicrelay/core/telegram"
	"github.com/m3rciful/topicrelay/internal/message"
	"github.com/m3rciful/topicrelay/internal/settings"
	"github.com/m3rciful/topicrelay/internal/store"
)

// MaxPatternLen bounds user supplied patterns. Longer patterns never match.
const MaxPatternLen = 512

const (
	patternCacheCapacity = 1024
	patternCacheTTL      = time.Hour
)

// AutoReplyBanner prefixes every automated response.
const AutoReplyBanner = "🤖 Automated reply:\n\n"

// Verdict is the outcome of Apply.
type Verdict int

const (
	// Pass lets the message through to the relay.
	Pass Verdict = iota
	// KeywordHit means a block keyword matched and the warning was sent.
	KeywordHit
	// Filtered means the forwarding flags rejected the message.
	Filtered
	// AutoReplied means an auto-reply rule answered the message.
	AutoReplied
)

func (v Verdict) String() string {
	switch v {
	case Pass:
		return "pass"
	case KeywordHit:
		return "keyword"
	case Filtered:
		return "filtered"
	case AutoReplied:
		return "auto_reply"
	default:
		return "unknown"
	}
}

// Users is the slice of the store the engine mutates.
type Users interface {
	IncrementBlockCount(ctx context.Context, id string) (int, error)
	UpdateUser(ctx context.Context, id string, patch store.UserPatch) error
}

// Engine applies block keywords, forwarding flags and auto-reply rules in
// that order, stopping at the first one that handles the message.
type Engine struct {
	settings *settings.Resolver
	users    Users
	msgr     tg.Messenger
	patterns otter.Cache[string, *regexp.Regexp]
}

// New builds an Engine. Close releases the pattern cache.
func New(resolver *settings.Resolver, users Users, msgr tg.Messenger) (*Engine, error) {
	cache, err := otter.MustBuilder[string, *regexp.Regexp](patternCacheCapacity).
		WithTTL(patternCacheTTL).
		Build()
	if err != nil {
		return nil, fmt.Errorf("build pattern cache: %w", err)
	}
	return &Engine{settings: resolver, users: users, msgr: msgr, patterns: cache}, nil
}

// Close stops the cache maintenance goroutines.
func (e *Engine) Close() {
	e.patterns.Close()
}

// Apply runs the filter chain for a verified user's private message.
// Notices are sent to m.ChatID. A non-nil error is returned only for store
// failures; failed notices are logged.
func (e *Engine) Apply(ctx context.Context, u *store.User, m message.Message) (Verdict, error) {
	body := m.Body()

	if pattern, ok := e.firstMatch(ctx, e.settings.Strings(ctx, settings.KeyBlockKeywords), body); ok {
		return KeywordHit, e.keywordHit(ctx, u, m, pattern)
	}

	if reason, rejected := e.Classify(ctx, m); rejected {
		logger.Info(ctx, logger.ComponentFilter, "message.filtered",
			slog.String("user_id", u.ID),
			slog.String("verdict", Filtered.String()),
			slog.String("reason", reason),
		)
		e.notify(ctx, m.ChatID, "🚫 Your message was not delivered: "+reason+" is not accepted here.")
		return Filtered, nil
	}

	for _, rule := range e.settings.Rules(ctx) {
		if !e.Match(ctx, rule.Keywords, body) {
			continue
		}
		logger.Info(ctx, logger.ComponentFilter, "message.auto_reply",
			slog.String("user_id", u.ID),
			slog.String("verdict", AutoReplied.String()),
			slog.Int64("rule_id", rule.ID),
		)
		e.notify(ctx, m.ChatID, AutoReplyBanner+rule.Response)
		return AutoReplied, nil
	}
	return Pass, nil
}

func (e *Engine) keywordHit(ctx context.Context, u *store.User, m message.Message, pattern string) error {
	count, err := e.users.IncrementBlockCount(ctx, u.ID)
	if err != nil {
		return fmt.Errorf("increment block count: %w", err)
	}
	u.BlockCount = count
	threshold := e.settings.BlockThreshold(ctx)
	remaining := threshold - count
	if remaining < 0 {
		remaining = 0
	}
	logger.Info(ctx, logger.ComponentFilter, "message.keyword",
		slog.String("user_id", u.ID),
		slog.String("verdict", KeywordHit.String()),
		slog.String("pattern", pattern),
		slog.Int("block_count", count),
		slog.Int("threshold", threshold),
	)
	e.notify(ctx, m.ChatID, "⚠️ Your message contains a forbidden keyword and was not delivered. "+
		"Warnings left before an automatic block: "+strconv.Itoa(remaining)+".")

	if count < threshold {
		return nil
	}
	if err := e.users.UpdateUser(ctx, u.ID, store.UserPatch{IsBlocked: store.Ptr(true)}); err != nil {
		return fmt.Errorf("auto-block user: %w", err)
	}
	u.IsBlocked = true
	logger.Warn(ctx, logger.ComponentFilter, "user.auto_block",
		slog.String("user_id", u.ID),
		slog.Int("block_count", count),
	)
	e.notify(ctx, m.ChatID, "⛔️ You have been blocked automatically after repeated violations.")
	return nil
}

// Classify applies the forwarding flags and returns the rejection reason.
func (e *Engine) Classify(ctx context.Context, m message.Message) (string, bool) {
	allowed := func(key string) bool { return e.settings.Bool(ctx, key) }

	var reason string
	switch {
	case m.Forward != message.ForwardNone:
		if !allowed(settings.KeyForwardForwarding) {
			reason = "forwarded message"
		} else if m.Forward == message.ForwardChannel && !allowed(settings.KeyChannelForwarding) {
			reason = "forwarded channel message"
		}
	case m.Media != nil:
		switch m.Media.Kind {
		case tg.MediaAudio, tg.MediaVoice:
			if !allowed(settings.KeyAudioForwarding) {
				reason = "audio or voice message"
			}
		case tg.MediaSticker, tg.MediaAnimation:
			if !allowed(settings.KeyStickerForwarding) {
				reason = "sticker or GIF"
			}
		default:
			if !allowed(settings.KeyImageForwarding) {
				reason = "media (photo, video or file)"
			}
		}
	}

	if m.HasLink && !allowed(settings.KeyLinkForwarding) {
		if reason == "" {
			reason = "message contains a link"
		} else {
			reason += " and contains a link"
		}
	}

	if reason == "" && m.IsPlainText() && !allowed(settings.KeyTextForwarding) {
		reason = "text message"
	}
	return reason, reason != ""
}

// Match reports whether pattern matches text case-insensitively. Invalid or
// oversized patterns are logged and never match.
func (e *Engine) Match(ctx context.Context, pattern, text string) bool {
	if text == "" || pattern == "" {
		return false
	}
	re, err := e.compile(pattern)
	if err != nil {
		logger.Warn(ctx, logger.ComponentFilter, "pattern.invalid",
			slog.String("pattern", pattern),
			slog.String("err", err.Error()),
		)
		return false
	}
	return re.MatchString(text)
}

func (e *Engine) firstMatch(ctx context.Context, patterns []string, text string) (string, bool) {
	for _, p := range patterns {
		if e.Match(ctx, p, text) {
			return p, true
		}
	}
	return "", false
}

func (e *Engine) compile(pattern string) (*regexp.Regexp, error) {
	if re, ok := e.patterns.Get(pattern); ok {
		return re, nil
	}
	re, err := compilePattern(pattern)
	if err != nil {
		return nil, err
	}
	e.patterns.Set(pattern, re)
	return re, nil
}

// ValidatePattern reports why pattern cannot be used for matching.
func ValidatePattern(pattern string) error {
	_, err := compilePattern(pattern)
	return err
}

func compilePattern(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, errors.New("empty pattern")
	}
	if len(pattern) > MaxPatternLen {
		return nil, fmt.Errorf("pattern longer than %d bytes", MaxPatternLen)
	}
	return regexp.Compile("(?i)" + pattern)
}

func (e *Engine) notify(ctx context.Context, chatID int64, text string) {
	if _, err := e.msgr.SendText(ctx, chatID, text, tg.SendOptions{}); err != nil {
		logger.Warn(ctx, logger.ComponentFilter, "notice.send",
			slog.Int64("chat_id", chatID),
			slog.String("err", err.Error()),
		)
	}
}
