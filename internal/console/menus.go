package console

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/topicrelay/core/telegram/callbacks"
	"github.com/m3rciful/topicrelay/core/telegram/format"
	"github.com/m3rciful/topicrelay/core/telegram/keyboard"
	"github.com/m3rciful/topicrelay/internal/settings"
)

// Menu names used as callback targets.
const (
	MenuRoot       = "root"
	MenuMessages   = "messages"
	MenuForwarding = "forwarding"
	MenuKeywords   = "keywords"
	MenuReplies    = "replies"
	MenuSystem     = "system"
)

// view is a rendered menu.
type view struct {
	text   string
	markup *tele.ReplyMarkup
}

var keyLabels = map[string]string{
	settings.KeyWelcome:           "Welcome message",
	settings.KeyVerifyQuestion:    "Verification question",
	settings.KeyVerifyAnswer:      "Verification answer",
	settings.KeyBlockThreshold:    "Block threshold",
	settings.KeyBlockKeywords:     "Block keywords",
	settings.KeyKeywordResponses:  "Auto-replies",
	settings.KeyAuthorizedAdmins:  "Authorized admins",
	settings.KeyBackupGroupID:     "Backup group",
	settings.KeyTextForwarding:    "Text",
	settings.KeyImageForwarding:   "Photos, videos, files",
	settings.KeyLinkForwarding:    "Links",
	settings.KeyAudioForwarding:   "Audio and voice",
	settings.KeyStickerForwarding: "Stickers and GIFs",
	settings.KeyForwardForwarding: "Forwarded messages",
	settings.KeyChannelForwarding: "Channel forwards",
}

// parentMenus maps a key to the menu shown after its wizard ends.
var parentMenus = map[string]string{
	settings.KeyWelcome:          MenuMessages,
	settings.KeyVerifyQuestion:   MenuMessages,
	settings.KeyVerifyAnswer:     MenuMessages,
	settings.KeyBlockThreshold:   MenuKeywords,
	settings.KeyBlockKeywords:    MenuKeywords,
	settings.KeyKeywordResponses: MenuReplies,
	settings.KeyAuthorizedAdmins: MenuSystem,
	settings.KeyBackupGroupID:    MenuSystem,
}

// ParentMenu returns the menu that owns key, or the root menu.
func ParentMenu(key string) string {
	if m, ok := parentMenus[key]; ok {
		return m
	}
	return MenuRoot
}

func label(key string) string {
	if l, ok := keyLabels[key]; ok {
		return l
	}
	return key
}

func data(action, target, value string) string {
	return callbacks.New(Domain, action, target, value).String()
}

func backRow(menu string) []keyboard.Button {
	return []keyboard.Button{keyboard.Btn("⬅️ Back", data(ActionMenu, menu, ""))}
}

// render builds the named menu; unknown names render the root.
func (s *Service) render(ctx context.Context, menu string) view {
	switch menu {
	case MenuMessages:
		return s.messagesMenu(ctx)
	case MenuForwarding:
		return s.forwardingMenu(ctx)
	case MenuKeywords:
		return s.keywordsMenu(ctx)
	case MenuReplies:
		return s.repliesMenu(ctx)
	case MenuSystem:
		return s.systemMenu(ctx)
	default:
		return rootMenu()
	}
}

func rootMenu() view {
	return view{
		text: "⚙️ <b>Admin console</b>\nChoose a section.",
		markup: keyboard.Rows(
			[]keyboard.Button{
				keyboard.Btn("💬 Messages", data(ActionMenu, MenuMessages, "")),
				keyboard.Btn("🚦 Forwarding", data(ActionMenu, MenuForwarding, "")),
			},
			[]keyboard.Button{
				keyboard.Btn("⛔ Block keywords", data(ActionMenu, MenuKeywords, "")),
				keyboard.Btn("🤖 Auto-replies", data(ActionMenu, MenuReplies, "")),
			},
			[]keyboard.Button{keyboard.Btn("🛡 Admins and backup", data(ActionMenu, MenuSystem, ""))},
		),
	}
}

func (s *Service) messagesMenu(ctx context.Context) view {
	var b strings.Builder
	b.WriteString("💬 <b>Messages</b>\n")
	for _, key := range []string{settings.KeyWelcome, settings.KeyVerifyQuestion, settings.KeyVerifyAnswer} {
		b.WriteString("\n<b>" + label(key) + ":</b>\n")
		b.WriteString(format.EscapeHTML(format.TruncateRunes(s.settings.Value(ctx, key), 300)) + "\n")
	}
	return view{
		text: b.String(),
		markup: keyboard.Rows(
			[]keyboard.Button{keyboard.Btn("✏️ Welcome", data(ActionEdit, settings.KeyWelcome, ""))},
			[]keyboard.Button{
				keyboard.Btn("✏️ Question", data(ActionEdit, settings.KeyVerifyQuestion, "")),
				keyboard.Btn("✏️ Answer", data(ActionEdit, settings.KeyVerifyAnswer, "")),
			},
			backRow(MenuRoot),
		),
	}
}

func (s *Service) forwardingMenu(ctx context.Context) view {
	buttons := make([]keyboard.Button, 0, len(settings.ForwardingKeys))
	for _, key := range settings.ForwardingKeys {
		mark := "❌"
		if s.settings.Bool(ctx, key) {
			mark = "✅"
		}
		buttons = append(buttons, keyboard.Btn(mark+" "+label(key), data(ActionToggle, key, "")))
	}
	rows := make([][]keyboard.Button, 0, len(buttons)+1)
	for _, b := range buttons {
		rows = append(rows, []keyboard.Button{b})
	}
	rows = append(rows, backRow(MenuRoot))
	return view{
		text:   "🚦 <b>Forwarding</b>\nTap a content type to allow or reject it.",
		markup: keyboard.Rows(rows...),
	}
}

func (s *Service) keywordsMenu(ctx context.Context) view {
	count := len(s.settings.Strings(ctx, settings.KeyBlockKeywords))
	text := "⛔ <b>Block keywords</b>\n" +
		"Keywords: " + strconv.Itoa(count) + "\n" +
		"Block threshold: " + strconv.Itoa(s.settings.BlockThreshold(ctx))
	return view{
		text: text,
		markup: keyboard.Rows(
			[]keyboard.Button{
				keyboard.Btn("➕ Add", data(ActionAdd, settings.KeyBlockKeywords, "")),
				keyboard.Btn("📋 List", data(ActionList, settings.KeyBlockKeywords, "")),
			},
			[]keyboard.Button{
				keyboard.Btn("🔢 Threshold", data(ActionEdit, settings.KeyBlockThreshold, "")),
				keyboard.Btn("🧹 Clear all", data(ActionEdit, settings.KeyBlockKeywords, ValueClear)),
			},
			backRow(MenuRoot),
		),
	}
}

func (s *Service) repliesMenu(ctx context.Context) view {
	count := len(s.settings.Rules(ctx))
	return view{
		text: "🤖 <b>Auto-replies</b>\nRules: " + strconv.Itoa(count),
		markup: keyboard.Rows(
			[]keyboard.Button{
				keyboard.Btn("➕ Add", data(ActionAdd, settings.KeyKeywordResponses, "")),
				keyboard.Btn("📋 List", data(ActionList, settings.KeyKeywordResponses, "")),
			},
			[]keyboard.Button{keyboard.Btn("🧹 Clear all", data(ActionEdit, settings.KeyKeywordResponses, ValueClear))},
			backRow(MenuRoot),
		),
	}
}

func (s *Service) systemMenu(ctx context.Context) view {
	admins := s.settings.Strings(ctx, settings.KeyAuthorizedAdmins)
	adminText := "none"
	if len(admins) > 0 {
		adminText = strings.Join(admins, ", ")
	}
	backup := "not set"
	if id, ok := s.settings.BackupGroupID(ctx); ok {
		backup = strconv.FormatInt(id, 10)
	}
	return view{
		text: "🛡 <b>Admins and backup</b>\n" +
			"Authorized admins: " + format.EscapeHTML(adminText) + "\n" +
			"Backup group: " + backup,
		markup: keyboard.Rows(
			[]keyboard.Button{keyboard.Btn("✏️ Authorized admins", data(ActionEdit, settings.KeyAuthorizedAdmins, ""))},
			[]keyboard.Button{keyboard.Btn("✏️ Backup group", data(ActionEdit, settings.KeyBackupGroupID, ""))},
			backRow(MenuRoot),
		),
	}
}

// listView renders a list setting with one delete button per entry.
func (s *Service) listView(ctx context.Context, key string) view {
	var b strings.Builder
	var buttons []keyboard.Button
	b.WriteString("📋 <b>" + label(key) + "</b>\n")

	switch key {
	case settings.KeyKeywordResponses:
		rules := s.settings.Rules(ctx)
		for i, rule := range rules {
			n := strconv.Itoa(i + 1)
			b.WriteString("\n" + n + ". <code>" + format.EscapeHTML(rule.Keywords) + "</code> → " +
				format.EscapeHTML(format.TruncateRunes(rule.Response, 200)))
			buttons = append(buttons, keyboard.Btn("🗑 "+n, data(ActionDelete, key, strconv.FormatInt(rule.ID, 10))))
		}
	case settings.KeyBlockKeywords:
		for i, kw := range s.settings.Strings(ctx, key) {
			n := strconv.Itoa(i + 1)
			b.WriteString("\n" + n + ". <code>" + format.EscapeHTML(kw) + "</code>")
			buttons = append(buttons, keyboard.Btn("🗑 "+n, data(ActionDelete, key, keywordToken(key, kw))))
		}
	}
	if len(buttons) == 0 {
		b.WriteString("\nThe list is empty.")
	}

	var rows [][]keyboard.Button
	for i := 0; i < len(buttons); i += 4 {
		end := min(i+4, len(buttons))
		rows = append(rows, buttons[i:end])
	}
	rows = append(rows, backRow(ParentMenu(key)))
	return view{text: b.String(), markup: keyboard.Rows(rows...)}
}

// keywordToken addresses a keyword in a delete payload: the literal value
// when it fits the callback limit, otherwise a short hash.
func keywordToken(key, kw string) string {
	if !strings.HasPrefix(kw, hashPrefix) && callbacks.New(Domain, ActionDelete, key, kw).Fits() {
		return kw
	}
	return hashToken(kw)
}

const hashPrefix = "#"

func hashToken(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hashPrefix + hex.EncodeToString(sum[:8])
}
