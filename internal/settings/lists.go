package settings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/m3rciful/topicrelay/core/logger"
)

// Rule is an auto-reply entry: Keywords is a regular expression matched
// against message text, ID is a creation timestamp in milliseconds.
type Rule struct {
	Keywords string `json:"keywords"`
	Response string `json:"response"`
	ID       int64  `json:"id"`
}

// Strings decodes a JSON array setting. Numbers and strings are accepted and
// trimmed; empty entries are dropped. Malformed input yields an empty list.
func (r *Resolver) Strings(ctx context.Context, key string) []string {
	raw := strings.TrimSpace(r.Value(ctx, key))
	if raw == "" {
		return nil
	}
	out, err := DecodeStrings(raw)
	if err != nil {
		warnMalformed(ctx, key, err)
		return nil
	}
	return out
}

// Rules decodes the auto-reply list. Malformed input yields an empty list.
func (r *Resolver) Rules(ctx context.Context) []Rule {
	raw := strings.TrimSpace(r.Value(ctx, KeyKeywordResponses))
	if raw == "" {
		return nil
	}
	var rules []Rule
	if err := json.Unmarshal([]byte(raw), &rules); err != nil {
		warnMalformed(ctx, KeyKeywordResponses, err)
		return nil
	}
	out := rules[:0]
	for _, rule := range rules {
		if strings.TrimSpace(rule.Keywords) == "" {
			continue
		}
		out = append(out, rule)
	}
	return out
}

// SetStrings stores list under key.
func (r *Resolver) SetStrings(ctx context.Context, key string, list []string) error {
	raw, err := EncodeStrings(list)
	if err != nil {
		return err
	}
	return r.Set(ctx, key, raw)
}

// SetRules stores the auto-reply list.
func (r *Resolver) SetRules(ctx context.Context, rules []Rule) error {
	raw, err := EncodeRules(rules)
	if err != nil {
		return err
	}
	return r.Set(ctx, KeyKeywordResponses, raw)
}

// DecodeStrings parses a JSON array of strings and numbers.
func DecodeStrings(raw string) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var items []any
	if err := dec.Decode(&items); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		var s string
		switch v := item.(type) {
		case string:
			s = v
		case json.Number:
			s = v.String()
		default:
			continue
		}
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// EncodeStrings renders list as a JSON array, never "null".
func EncodeStrings(list []string) (string, error) {
	if list == nil {
		list = []string{}
	}
	raw, err := json.Marshal(list)
	if err != nil {
		return "", fmt.Errorf("encode list: %w", err)
	}
	return string(raw), nil
}

// EncodeRules renders rules as a JSON array, never "null".
func EncodeRules(rules []Rule) (string, error) {
	if rules == nil {
		rules = []Rule{}
	}
	raw, err := json.Marshal(rules)
	if err != nil {
		return "", fmt.Errorf("encode rules: %w", err)
	}
	return string(raw), nil
}

// NextRuleID returns a millisecond timestamp strictly greater than any id in rules.
func NextRuleID(rules []Rule, now time.Time) int64 {
	id := now.UnixMilli()
	for _, rule := range rules {
		if rule.ID >= id {
			id = rule.ID + 1
		}
	}
	return id
}

func warnMalformed(ctx context.Context, key string, err error) {
	logger.Warn(ctx, logger.ComponentSettings, "config.decode",
		slog.String("key", key),
		slog.String("err", err.Error()),
	)
}
