package console

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/topicrelay/core/telegram/callbacks"
	"github.com/m3rciful/topicrelay/core/telegram/keyboard"
	"github.com/m3rciful/topicrelay/core/telegram/state"
	"github.com/m3rciful/topicrelay/core/telegram/telegramtest"
	"github.com/m3rciful/topicrelay/internal/message"
	"github.com/m3rciful/topicrelay/internal/settings"
	"github.com/m3rciful/topicrelay/internal/store"
)

const adminID = int64(1)

type fixture struct {
	svc     *Service
	mem     *store.Memory
	msgr    *telegramtest.Messenger
	res     *settings.Resolver
	wizards *state.Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := store.NewMemory()
	res := settings.NewWithChain(mem, settings.StoreLookup(mem))
	msgr := telegramtest.New()
	wizards := state.NewManager(mem)
	svc := New(res, wizards, msgr)
	svc.now = func() time.Time { return time.UnixMilli(1_700_000_000_000) }
	return &fixture{svc: svc, mem: mem, msgr: msgr, res: res, wizards: wizards}
}

func (f *fixture) press(t *testing.T, action, target, value string) {
	t.Helper()
	cb := message.Callback{ID: "cb", Data: data(action, target, value), From: message.Sender{ID: adminID}, ChatID: adminID, MessageID: 77}
	p, err := callbacks.Parse(cb.Data)
	require.NoError(t, err)
	require.NoError(t, f.svc.HandleCallback(context.Background(), cb, p))
}

func (f *fixture) input(t *testing.T, text string) bool {
	t.Helper()
	handled, err := f.svc.HandleInput(context.Background(), adminID, adminID, text)
	require.NoError(t, err)
	return handled
}

func lastText(m *telegramtest.Messenger) string {
	calls := m.Calls()
	for i := len(calls) - 1; i >= 0; i-- {
		if calls[i].Method == "sendMessage" || calls[i].Method == "editMessageText" {
			return calls[i].Text
		}
	}
	return ""
}

func TestOpenSendsRootMenu(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.svc.Open(context.Background(), adminID))
	sends := f.msgr.CallsTo("sendMessage")
	require.Len(t, sends, 1)
	assert.Contains(t, sends[0].Text, "Admin console")
	for _, b := range keyboard.Flatten(sends[0].Markup) {
		assert.True(t, strings.HasPrefix(b.Data, "cfg:menu:"), b.Data)
		assert.LessOrEqual(t, len(b.Data), callbacks.MaxDataLen)
	}
}

func TestMenuEditFallsBackToSend(t *testing.T) {
	f := newFixture(t)
	f.msgr.FailWith("editMessageText", nil, 1)
	f.press(t, ActionMenu, MenuReplies, "")
	assert.Len(t, f.msgr.CallsTo("editMessageText"), 1)
	require.Len(t, f.msgr.CallsTo("sendMessage"), 1)
	assert.Contains(t, lastText(f.msgr), "Auto-replies")
	assert.Len(t, f.msgr.CallsTo("answerCallbackQuery"), 1)
}

func TestToggleFlipsFlag(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.press(t, ActionToggle, settings.KeyLinkForwarding, "")
	assert.False(t, f.res.Bool(ctx, settings.KeyLinkForwarding))
	assert.Empty(t, f.msgr.CallsTo("sendMessage"))
	f.press(t, ActionToggle, settings.KeyLinkForwarding, "")
	assert.True(t, f.res.Bool(ctx, settings.KeyLinkForwarding))

	f.press(t, ActionToggle, settings.KeyWelcome, "")
	_, ok, err := f.mem.GetConfig(ctx, settings.KeyWelcome)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEditWizardValidatesAndSaves(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.press(t, ActionEdit, settings.KeyBlockThreshold, "")

	w, err := f.wizards.Get(ctx, adminID)
	require.NoError(t, err)
	assert.Equal(t, state.Wizard{Action: ActionEdit, Key: settings.KeyBlockThreshold}, w)

	assert.True(t, f.input(t, "zero"))
	assert.Contains(t, lastText(f.msgr), "positive whole number")
	assert.True(t, f.input(t, "   "))
	assert.Contains(t, lastText(f.msgr), "cannot be empty")
	assert.Equal(t, settings.DefaultBlockThreshold, f.res.BlockThreshold(ctx))

	assert.True(t, f.input(t, " 3 "))
	assert.Equal(t, 3, f.res.BlockThreshold(ctx))
	w, err = f.wizards.Get(ctx, adminID)
	require.NoError(t, err)
	assert.True(t, w.Idle())
	assert.Contains(t, lastText(f.msgr), "Block keywords")

	assert.False(t, f.input(t, "ordinary text"))
}

func TestClearableKeys(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.press(t, ActionEdit, settings.KeyAuthorizedAdmins, "")
	assert.True(t, f.input(t, "12x"))
	assert.Contains(t, lastText(f.msgr), "not a numeric user id")
	assert.True(t, f.input(t, "5, 6 5"))
	assert.Equal(t, []string{"5", "6"}, f.res.Strings(ctx, settings.KeyAuthorizedAdmins))

	f.press(t, ActionEdit, settings.KeyAuthorizedAdmins, "")
	assert.True(t, f.input(t, "-"))
	raw, _, err := f.mem.GetConfig(ctx, settings.KeyAuthorizedAdmins)
	require.NoError(t, err)
	assert.Equal(t, "[]", raw)

	f.press(t, ActionEdit, settings.KeyBackupGroupID, "")
	assert.True(t, f.input(t, "-100200"))
	id, ok := f.res.BackupGroupID(ctx)
	assert.True(t, ok)
	assert.Equal(t, int64(-100200), id)

	f.press(t, ActionEdit, settings.KeyBackupGroupID, "")
	assert.True(t, f.input(t, "-"))
	_, ok = f.res.BackupGroupID(ctx)
	assert.False(t, ok)
}

func TestCancelReturnsToParentMenu(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.press(t, ActionEdit, settings.KeyWelcome, "")
	assert.True(t, f.input(t, "/cancel"))

	w, err := f.wizards.Get(ctx, adminID)
	require.NoError(t, err)
	assert.True(t, w.Idle())
	assert.Contains(t, lastText(f.msgr), "<b>Messages</b>")
	assert.Equal(t, settings.Default(settings.KeyWelcome), f.res.Value(ctx, settings.KeyWelcome))
}

func TestWizardRejectsCommandsAsValues(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.press(t, ActionEdit, settings.KeyWelcome, "")

	assert.True(t, f.input(t, "/stats"))
	assert.Contains(t, lastText(f.msgr), "Commands cannot be saved")
	w, err := f.wizards.Get(ctx, adminID)
	require.NoError(t, err)
	assert.False(t, w.Idle())

	assert.False(t, f.input(t, "/start"))
	w, err = f.wizards.Get(ctx, adminID)
	require.NoError(t, err)
	assert.True(t, w.Idle())
	assert.Equal(t, settings.Default(settings.KeyWelcome), f.res.Value(ctx, settings.KeyWelcome))
}

func TestAddRuleAndDeleteByID(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.press(t, ActionAdd, settings.KeyKeywordResponses, "")
	assert.True(t, f.input(t, "price"))
	assert.Contains(t, lastText(f.msgr), "pattern===response")
	assert.True(t, f.input(t, "(bad===x"))
	assert.Contains(t, lastText(f.msgr), "Invalid pattern")
	assert.True(t, f.input(t, "price|cost === See https://example.org/prices"))

	f.press(t, ActionAdd, settings.KeyKeywordResponses, "")
	assert.True(t, f.input(t, "hours===We answer 9-17."))

	rules := f.res.Rules(ctx)
	require.Len(t, rules, 2)
	assert.Equal(t, "price|cost", rules[0].Keywords)
	assert.Equal(t, "See https://example.org/prices", rules[0].Response)
	assert.Equal(t, int64(1_700_000_000_000), rules[0].ID)
	assert.Equal(t, int64(1_700_000_000_001), rules[1].ID)

	f.press(t, ActionList, settings.KeyKeywordResponses, "")
	list := f.msgr.CallsTo("editMessageText")
	require.NotEmpty(t, list)
	var deletes []string
	for _, b := range keyboard.Flatten(list[len(list)-1].Markup) {
		if strings.HasPrefix(b.Data, "cfg:delete:") {
			deletes = append(deletes, b.Data)
		}
	}
	assert.Equal(t, []string{
		"cfg:delete:keyword_responses:1700000000000",
		"cfg:delete:keyword_responses:1700000000001",
	}, deletes)

	f.press(t, ActionDelete, settings.KeyKeywordResponses, "1700000000000")
	rules = f.res.Rules(ctx)
	require.Len(t, rules, 1)
	assert.Equal(t, "hours", rules[0].Keywords)
}

func TestDeleteKeywordByExactValue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	long := strings.Repeat("verylongkeyword", 5)
	require.NoError(t, f.res.SetStrings(ctx, settings.KeyBlockKeywords, []string{"spam", "spammer", "a spam", long}))

	f.press(t, ActionDelete, settings.KeyBlockKeywords, "spam")
	assert.Equal(t, []string{"spammer", "a spam", long}, f.res.Strings(ctx, settings.KeyBlockKeywords))

	token := keywordToken(settings.KeyBlockKeywords, long)
	assert.True(t, strings.HasPrefix(token, hashPrefix))
	assert.True(t, callbacks.New(Domain, ActionDelete, settings.KeyBlockKeywords, token).Fits())
	f.press(t, ActionDelete, settings.KeyBlockKeywords, token)
	assert.Equal(t, []string{"spammer", "a spam"}, f.res.Strings(ctx, settings.KeyBlockKeywords))

	f.press(t, ActionDelete, settings.KeyBlockKeywords, "missing")
	answers := f.msgr.CallsTo("answerCallbackQuery")
	assert.Equal(t, "Already removed", answers[len(answers)-1].Text)
}

func TestClearListWithoutWizard(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.res.SetStrings(ctx, settings.KeyBlockKeywords, []string{"a", "b"}))

	f.press(t, ActionEdit, settings.KeyBlockKeywords, ValueClear)
	assert.Empty(t, f.res.Strings(ctx, settings.KeyBlockKeywords))
	w, err := f.wizards.Get(ctx, adminID)
	require.NoError(t, err)
	assert.True(t, w.Idle())
}

func TestMalformedWizardIsReset(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.mem.PutConfig(ctx, state.Key(adminID), "{not json"))
	assert.True(t, f.svc.Pending(ctx, adminID))

	assert.True(t, f.input(t, "anything"))
	_, ok, err := f.mem.GetConfig(ctx, state.Key(adminID))
	require.NoError(t, err)
	assert.False(t, ok)

	texts := f.msgr.TextsTo(adminID)
	require.Len(t, texts, 2)
	assert.Equal(t, TextWizardReset, texts[0])
	assert.Contains(t, texts[1], "Admin console")
}
