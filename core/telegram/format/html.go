// Package format holds text helpers for HTML-mode Telegram messages.
package format

import (
	"html"
	"strings"
	"unicode/utf8"
)

// EscapeHTML escapes text for use inside an HTML parse-mode message.
func EscapeHTML(s string) string {
	return html.EscapeString(s)
}

// TruncateRunes cuts s to at most max runes.
func TruncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}

// DisplayName joins first and last name, falling back to the username.
func DisplayName(first, last, username string) string {
	name := strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
	if name == "" {
		name = strings.TrimSpace(username)
	}
	return name
}
