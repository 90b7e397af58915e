package verify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/topicrelay/core/telegram/telegramtest"
	"github.com/m3rciful/topicrelay/internal/access"
	"github.com/m3rciful/topicrelay/internal/message"
	"github.com/m3rciful/topicrelay/internal/settings"
	"github.com/m3rciful/topicrelay/internal/store"
)

const (
	userID  = int64(100)
	adminID = int64(1)
)

type fixture struct {
	gate *Gate
	mem  *store.Memory
	msgr *telegramtest.Messenger
	res  *settings.Resolver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := store.NewMemory()
	res := settings.NewWithChain(mem, settings.StoreLookup(mem))
	msgr := telegramtest.New()
	ctl := access.New([]string{"1"}, res)
	require.NoError(t, res.Set(context.Background(), settings.KeyVerifyAnswer, "Seven| 7 "))
	return &fixture{gate: New(mem, res, ctl, msgr), mem: mem, msgr: msgr, res: res}
}

func (f *fixture) user(t *testing.T, id string) *store.User {
	t.Helper()
	u, err := f.mem.GetOrCreateUser(context.Background(), id)
	require.NoError(t, err)
	return u
}

func from(id int64, text string) message.Message {
	return message.Message{ID: 5, ChatID: id, Private: true, From: message.Sender{ID: id}, Text: text}
}

func TestVerificationScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.user(t, "100")

	out, err := f.gate.Handle(ctx, u, from(userID, "/start"))
	require.NoError(t, err)
	assert.Equal(t, Handled, out)
	assert.Equal(t, store.StatePendingVerification, f.user(t, "100").State)
	texts := f.msgr.TextsTo(userID)
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], settings.Default(settings.KeyWelcome))
	assert.Contains(t, texts[0], settings.Default(settings.KeyVerifyQuestion))

	f.msgr.Reset()
	out, err = f.gate.Handle(ctx, u, from(userID, "six"))
	require.NoError(t, err)
	assert.Equal(t, Handled, out)
	assert.Equal(t, []string{TextFailed}, f.msgr.TextsTo(userID))
	assert.Equal(t, store.StatePendingVerification, f.user(t, "100").State)

	f.msgr.Reset()
	out, err = f.gate.Handle(ctx, u, from(userID, "  SEVEN "))
	require.NoError(t, err)
	assert.Equal(t, Handled, out)
	assert.Equal(t, []string{TextPassed}, f.msgr.TextsTo(userID))
	assert.Equal(t, store.StateVerified, f.user(t, "100").State)

	// a repeated answer is an ordinary message now
	f.msgr.Reset()
	out, err = f.gate.Handle(ctx, u, from(userID, "7"))
	require.NoError(t, err)
	assert.Equal(t, Continue, out)
	assert.Empty(t, f.msgr.Calls())
	assert.Equal(t, store.StateVerified, f.user(t, "100").State)
}

func TestNewUserWithoutStartGetsPrompt(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.user(t, "100")

	out, err := f.gate.Handle(ctx, u, from(userID, "hello"))
	require.NoError(t, err)
	assert.Equal(t, Handled, out)
	assert.Equal(t, []string{TextStartPrompt}, f.msgr.TextsTo(userID))
	assert.Equal(t, store.StateNew, f.user(t, "100").State)
}

func TestPendingNonTextRepeatsQuestion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.user(t, "100")
	require.NoError(t, f.mem.UpdateUser(ctx, "100", store.UserPatch{State: store.Ptr(store.StatePendingVerification)}))
	u.State = store.StatePendingVerification

	m := from(userID, "")
	m.Other = true
	_, err := f.gate.Handle(ctx, u, m)
	require.NoError(t, err)
	assert.Equal(t, []string{settings.Default(settings.KeyVerifyQuestion)}, f.msgr.TextsTo(userID))
}

func TestVerifiedUserStartKeepsState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.user(t, "100")
	require.NoError(t, f.mem.UpdateUser(ctx, "100", store.UserPatch{State: store.Ptr(store.StateVerified)}))
	u.State = store.StateVerified

	_, err := f.gate.Handle(ctx, u, from(userID, "/help"))
	require.NoError(t, err)
	assert.Equal(t, []string{settings.Default(settings.KeyWelcome)}, f.msgr.TextsTo(userID))
	assert.Equal(t, store.StateVerified, f.user(t, "100").State)
}

func TestPrimaryAdminStartOpensConsole(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.user(t, "1")

	out, err := f.gate.Handle(ctx, u, from(adminID, "/start"))
	require.NoError(t, err)
	assert.Equal(t, OpenConsole, out)
	assert.Equal(t, store.StateVerified, f.user(t, "1").State)
	assert.Empty(t, f.msgr.Calls())
}

func TestDelegatedAdminIsForceVerified(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.res.SetStrings(ctx, settings.KeyAuthorizedAdmins, []string{"200"}))
	u := f.user(t, "200")

	out, err := f.gate.Handle(ctx, u, from(200, "hi team"))
	require.NoError(t, err)
	assert.Equal(t, Continue, out)
	assert.Equal(t, store.StateVerified, f.user(t, "200").State)
}

func TestAccepts(t *testing.T) {
	assert.True(t, Accepts("7|seven", " Seven"))
	assert.True(t, Accepts("7|seven", "7"))
	assert.False(t, Accepts("7|seven", "77"))
	assert.False(t, Accepts("7||", ""))
	assert.False(t, Accepts("", "anything"))
}
