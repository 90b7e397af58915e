package relay

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tg "github.com/m3rciful/topicrelay/core/telegram"
	"github.com/m3rciful/topicrelay/core/telegram/callbacks"
	"github.com/m3rciful/topicrelay/core/telegram/keyboard"
	"github.com/m3rciful/topicrelay/core/telegram/telegramtest"
	"github.com/m3rciful/topicrelay/internal/access"
	"github.com/m3rciful/topicrelay/internal/message"
	"github.com/m3rciful/topicrelay/internal/settings"
	"github.com/m3rciful/topicrelay/internal/store"
)

const (
	groupID  = int64(-1001)
	backupID = int64(-2002)
	userID   = int64(100)
	adminID  = int64(1)
)

type inlineQueue struct{ actions []string }

func (q *inlineQueue) Enqueue(_ context.Context, action, _ string, run func() error) error {
	q.actions = append(q.actions, action)
	return run()
}

type heldQueue struct{ runs []func() error }

func (q *heldQueue) Enqueue(_ context.Context, _, _ string, run func() error) error {
	q.runs = append(q.runs, run)
	return nil
}

type fixture struct {
	router *Router
	mem    *store.Memory
	msgr   *telegramtest.Messenger
	res    *settings.Resolver
	queue  *inlineQueue
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := store.NewMemory()
	res := settings.NewWithChain(mem, settings.StoreLookup(mem))
	msgr := telegramtest.New()
	queue := &inlineQueue{}
	ctl := access.New([]string{"1"}, res)
	now := func() time.Time { return time.Unix(1_700_000_000, 0) }
	r := New(mem, res, ctl, msgr, Options{AdminGroupID: groupID, Backup: queue, Now: now})
	return &fixture{router: r, mem: mem, msgr: msgr, res: res, queue: queue}
}

func (f *fixture) verifiedUser(t *testing.T) *store.User {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.mem.UpdateUser(ctx, "100", store.UserPatch{
		State:      store.Ptr(store.StateVerified),
		BlockCount: store.Ptr(2),
	}))
	u, err := f.mem.GetOrCreateUser(ctx, "100")
	require.NoError(t, err)
	return u
}

func privateText(id int, text string) message.Message {
	return message.Message{
		ID: id, ChatID: userID, Private: true, Text: text, Date: 1_700_000_100,
		From: message.Sender{ID: userID, FirstName: "Ann", LastName: "Lee", Username: "ann"},
	}
}

func threadMessage(id, thread int) message.Message {
	return message.Message{
		ID: id, ChatID: groupID, ThreadID: thread, TopicMessage: true, Date: 1_700_000_200,
		From: message.Sender{ID: adminID, FirstName: "Boss"},
	}
}

func TestToThreadCreatesTopicAndStoresSnapshot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.verifiedUser(t)

	require.NoError(t, f.router.ToThread(ctx, u, privateText(7, "hello")))

	topics := f.msgr.CallsTo("createForumTopic")
	require.Len(t, topics, 1)
	assert.Equal(t, "Ann Lee | 100", topics[0].TopicName)

	cards := f.msgr.CallsTo("sendMessage")
	require.NotEmpty(t, cards)
	card := cards[0]
	assert.Equal(t, groupID, card.ChatID)
	assert.Equal(t, 501, card.Opts.ThreadID)
	assert.Contains(t, card.Text, "<code>100</code>")
	var data []string
	for _, b := range keyboard.Flatten(card.Markup) {
		data = append(data, b.Data)
	}
	assert.Equal(t, []string{"mod:block:100:", "mod:unblock:100:", "mod:pin:100:"}, data)

	copies := f.msgr.CallsTo("copyMessage")
	require.Len(t, copies, 1)
	assert.Equal(t, groupID, copies[0].ChatID)
	assert.Equal(t, userID, copies[0].FromChatID)
	assert.Equal(t, 7, copies[0].MessageID)
	assert.False(t, copies[0].Opts.Silent)

	stored, err := f.mem.GetOrCreateUser(ctx, "100")
	require.NoError(t, err)
	assert.Equal(t, "501", stored.TopicID)
	assert.Equal(t, 0, stored.BlockCount)
	require.NotNil(t, stored.Info)
	assert.Equal(t, "ann", stored.Info.Username)
	assert.Equal(t, int64(1_700_000_000), stored.Info.FirstSeen)

	snap, err := f.mem.GetSnapshot(ctx, "100", "7")
	require.NoError(t, err)
	assert.Equal(t, "hello", snap.Text)
	assert.Equal(t, int64(1_700_000_100), snap.Date)
}

func TestToThreadReusesTopicAndMutesBlockedUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.mem.UpdateUser(ctx, "100", store.UserPatch{
		TopicID:   store.Ptr("77"),
		IsBlocked: store.Ptr(true),
	}))
	u, err := f.mem.GetOrCreateUser(ctx, "100")
	require.NoError(t, err)

	require.NoError(t, f.router.ToThread(ctx, u, privateText(8, "again")))
	assert.Empty(t, f.msgr.CallsTo("createForumTopic"))
	copies := f.msgr.CallsTo("copyMessage")
	require.Len(t, copies, 1)
	assert.Equal(t, 77, copies[0].Opts.ThreadID)
	assert.True(t, copies[0].Opts.Silent)
}

func TestToThreadRecreatesTopicOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.mem.UpdateUser(ctx, "100", store.UserPatch{TopicID: store.Ptr("77")}))
	u, err := f.mem.GetOrCreateUser(ctx, "100")
	require.NoError(t, err)
	f.msgr.FailWith("copyMessage", nil, 1)

	require.NoError(t, f.router.ToThread(ctx, u, privateText(9, "hi")))
	assert.Len(t, f.msgr.CallsTo("createForumTopic"), 1)
	copies := f.msgr.CallsTo("copyMessage")
	require.Len(t, copies, 2)
	assert.Equal(t, 501, copies[1].Opts.ThreadID)

	_, err = f.mem.UserByTopic(ctx, "77")
	assert.ErrorIs(t, err, store.ErrNotFound)
	owner, err := f.mem.UserByTopic(ctx, "501")
	require.NoError(t, err)
	assert.Equal(t, "100", owner.ID)
}

func TestToThreadApologizesAfterSecondFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.verifiedUser(t)
	f.msgr.FailWith("copyMessage", nil, -1)

	err := f.router.ToThread(ctx, u, privateText(10, "hi"))
	require.Error(t, err)
	assert.Len(t, f.msgr.CallsTo("copyMessage"), 2)
	assert.Len(t, f.msgr.CallsTo("createForumTopic"), 2)
	assert.Equal(t, []string{TextDeliveryFailed}, f.msgr.TextsTo(userID))

	_, err = f.mem.GetSnapshot(ctx, "100", "10")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestBackupMergesTextWithHeader(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.res.Set(ctx, settings.KeyBackupGroupID, "-2002"))
	u := f.verifiedUser(t)

	require.NoError(t, f.router.ToThread(ctx, u, privateText(11, "note")))
	assert.Equal(t, []string{"relay.backup"}, f.queue.actions)
	assert.Equal(t, []string{"📨 Ann Lee (@ann) | 100\n\nnote"}, f.msgr.TextsTo(backupID))
}

func TestBackupAlbumUsesHeaderThenCopy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.res.Set(ctx, settings.KeyBackupGroupID, "-2002"))
	u := f.verifiedUser(t)

	m := privateText(12, "")
	m.Media = &tg.Media{Kind: tg.MediaPhoto, FileID: "f1", Caption: "pic"}
	m.Caption = "pic"
	m.AlbumID = "album"
	require.NoError(t, f.router.ToThread(ctx, u, m))

	assert.Equal(t, []string{"📨 Ann Lee (@ann) | 100"}, f.msgr.TextsTo(backupID))
	var backupCopies int
	for _, c := range f.msgr.CallsTo("copyMessage") {
		if c.ChatID == backupID {
			backupCopies++
		}
	}
	assert.Equal(t, 1, backupCopies)
}

func TestBackupRetrySkipsDeliveredHeader(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	held := &heldQueue{}
	now := func() time.Time { return time.Unix(1_700_000_000, 0) }
	f.router = New(f.mem, f.res, access.New([]string{"1"}, f.res), f.msgr, Options{AdminGroupID: groupID, Backup: held, Now: now})
	require.NoError(t, f.res.Set(ctx, settings.KeyBackupGroupID, "-2002"))
	u := f.verifiedUser(t)

	m := privateText(14, "")
	m.Media = &tg.Media{Kind: tg.MediaPhoto, FileID: "f1"}
	m.AlbumID = "album"
	require.NoError(t, f.router.ToThread(ctx, u, m))
	require.Len(t, held.runs, 1)

	f.msgr.FailWith("copyMessage", nil, 1)
	assert.Error(t, held.runs[0]())
	require.NoError(t, held.runs[0]())

	assert.Equal(t, []string{"📨 Ann Lee (@ann) | 100"}, f.msgr.TextsTo(backupID))
	var backupCopies int
	for _, c := range f.msgr.CallsTo("copyMessage") {
		if c.ChatID == backupID {
			backupCopies++
		}
	}
	assert.Equal(t, 2, backupCopies)
}

func TestBackupFailureDoesNotAffectRelay(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.res.Set(ctx, settings.KeyBackupGroupID, "-2002"))
	u := f.verifiedUser(t)

	m := privateText(13, "")
	m.Media = &tg.Media{Kind: tg.MediaVideo, FileID: "v1", Caption: "clip"}
	m.Caption = "clip"
	f.msgr.FailWith("sendVideo", nil, 1)

	require.NoError(t, f.router.ToThread(ctx, u, m))
	snap, err := f.mem.GetSnapshot(ctx, "100", "13")
	require.NoError(t, err)
	assert.Equal(t, "clip", snap.Text)
}

func TestFromThreadForwardsPhoto(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.mem.UpdateUser(ctx, "100", store.UserPatch{TopicID: store.Ptr("501")}))

	m := threadMessage(300, 501)
	m.Media = &tg.Media{Kind: tg.MediaPhoto, FileID: "photo-1", Caption: "look"}
	m.Caption = "look"
	require.NoError(t, f.router.FromThread(ctx, m))

	photos := f.msgr.CallsTo("sendPhoto")
	require.Len(t, photos, 1)
	assert.Equal(t, userID, photos[0].ChatID)
	assert.Equal(t, "photo-1", photos[0].Media.FileID)
	assert.Equal(t, "look", photos[0].Media.Caption)

	snap, err := f.mem.GetSnapshot(ctx, "100", "300")
	require.NoError(t, err)
	assert.Equal(t, "look", snap.Text)
}

func TestFromThreadStoresSnapshotEvenWhenSendFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.mem.UpdateUser(ctx, "100", store.UserPatch{TopicID: store.Ptr("501")}))
	f.msgr.FailWith("sendMessage", nil, 1)

	m := threadMessage(301, 501)
	m.Text = "reply"
	require.NoError(t, f.router.FromThread(ctx, m))

	_, err := f.mem.GetSnapshot(ctx, "100", "301")
	require.NoError(t, err)
	notes := f.msgr.TextsTo(groupID)
	require.Len(t, notes, 1)
	assert.Contains(t, notes[0], "Delivery to the user failed")
}

func TestFromThreadRoutingMissAndUnsupportedContent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	m := threadMessage(302, 999)
	m.Text = "anyone?"
	require.NoError(t, f.router.FromThread(ctx, m))
	assert.Equal(t, []string{TextNoUserInTopic}, f.msgr.TextsTo(groupID))

	require.NoError(t, f.mem.UpdateUser(ctx, "100", store.UserPatch{TopicID: store.Ptr("501")}))
	m = threadMessage(303, 501)
	m.Other = true
	require.NoError(t, f.router.FromThread(ctx, m))
	assert.Equal(t, []string{TextCannotForward}, f.msgr.TextsTo(userID))
}

func TestFromThreadIgnoresUnauthorizedSender(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.mem.UpdateUser(ctx, "100", store.UserPatch{TopicID: store.Ptr("501")}))

	m := threadMessage(304, 501)
	m.From.ID = 555
	m.Text = "psst"
	require.NoError(t, f.router.FromThread(ctx, m))
	assert.Empty(t, f.msgr.Calls())
}

func TestUserEditReportsPreviousEdit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.verifiedUser(t)
	require.NoError(t, f.router.ToThread(ctx, u, privateText(20, "v1")))
	f.msgr.Reset()

	first := privateText(20, "v2")
	first.EditDate = 1_700_000_500
	require.NoError(t, f.router.UserEdited(ctx, u, first))
	second := privateText(20, "v3")
	require.NoError(t, f.router.UserEdited(ctx, u, second))

	notices := f.msgr.TextsTo(groupID)
	require.Len(t, notices, 2)
	assert.Contains(t, notices[0], "<blockquote>v1</blockquote>")
	assert.Contains(t, notices[1], "<blockquote>v2</blockquote>")
	assert.NotContains(t, notices[1], "v1")

	snap, err := f.mem.GetSnapshot(ctx, "100", "20")
	require.NoError(t, err)
	assert.Equal(t, "v3", snap.Text)
	assert.Equal(t, int64(1_700_000_100), snap.Date)
}

func TestUserEditWithoutSnapshotUsesPlaceholders(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.mem.UpdateUser(ctx, "100", store.UserPatch{TopicID: store.Ptr("501")}))
	u, err := f.mem.GetOrCreateUser(ctx, "100")
	require.NoError(t, err)

	require.NoError(t, f.router.UserEdited(ctx, u, privateText(21, "<b>new</b>")))
	notices := f.msgr.TextsTo(groupID)
	require.Len(t, notices, 1)
	assert.Contains(t, notices[0], UnavailableText)
	assert.Contains(t, notices[0], "&lt;b&gt;new&lt;/b&gt;")

	snap, err := f.mem.GetSnapshot(ctx, "100", "21")
	require.NoError(t, err)
	assert.Equal(t, "<b>new</b>", snap.Text)
}

func TestUserEditWithoutTopicIsIgnored(t *testing.T) {
	f := newFixture(t)
	u := f.verifiedUser(t)
	require.NoError(t, f.router.UserEdited(context.Background(), u, privateText(22, "x")))
	assert.Empty(t, f.msgr.Calls())
}

func TestAdminEditNotifiesUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.mem.UpdateUser(ctx, "100", store.UserPatch{TopicID: store.Ptr("501")}))

	m := threadMessage(400, 501)
	m.Text = "first"
	require.NoError(t, f.router.FromThread(ctx, m))
	f.msgr.Reset()

	m.Text = "second"
	m.EditDate = 1_700_000_900
	require.NoError(t, f.router.AdminEdited(ctx, m))

	texts := f.msgr.TextsTo(userID)
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "<blockquote>first</blockquote>")
	assert.Contains(t, texts[0], "<blockquote>second</blockquote>")

	snap, err := f.mem.GetSnapshot(ctx, "100", "400")
	require.NoError(t, err)
	assert.Equal(t, "second", snap.Text)
	assert.Equal(t, int64(1_700_000_900), snap.Date)
}

func TestModerationCallbacks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.mem.UpdateUser(ctx, "100", store.UserPatch{BlockCount: store.Ptr(5)}))
	cb := message.Callback{ID: "cb1", From: message.Sender{ID: adminID, FirstName: "Boss"}, ChatID: groupID, MessageID: 55, ThreadID: 501}

	require.NoError(t, f.router.HandleCallback(ctx, cb, callbacks.New(DomainModeration, ActionBlock, "100", "")))
	u, err := f.mem.GetOrCreateUser(ctx, "100")
	require.NoError(t, err)
	assert.True(t, u.IsBlocked)

	require.NoError(t, f.router.HandleCallback(ctx, cb, callbacks.New(DomainModeration, ActionUnblock, "100", "")))
	u, err = f.mem.GetOrCreateUser(ctx, "100")
	require.NoError(t, err)
	assert.False(t, u.IsBlocked)
	assert.Equal(t, 0, u.BlockCount)

	require.NoError(t, f.router.HandleCallback(ctx, cb, callbacks.New(DomainModeration, ActionPin, "100", "")))
	pins := f.msgr.CallsTo("pinChatMessage")
	require.Len(t, pins, 1)
	assert.Equal(t, 55, pins[0].MessageID)

	answers := f.msgr.CallsTo("answerCallbackQuery")
	require.Len(t, answers, 3)
	assert.Equal(t, "Pinned", answers[2].Text)
}

func TestModerationCallbackRefreshesCardKeyboard(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	cb := message.Callback{ID: "cb1", From: message.Sender{ID: adminID}, ChatID: groupID, MessageID: 55, ThreadID: 501}
	label := func(c telegramtest.Call) string {
		buttons := keyboard.Flatten(c.Markup)
		require.NotEmpty(t, buttons)
		return buttons[0].Text
	}

	require.NoError(t, f.router.HandleCallback(ctx, cb, callbacks.New(DomainModeration, ActionBlock, "100", "")))
	edits := f.msgr.CallsTo("editMessageReplyMarkup")
	require.Len(t, edits, 1)
	assert.Equal(t, groupID, edits[0].ChatID)
	assert.Equal(t, 55, edits[0].MessageID)
	assert.Equal(t, "🔒 Blocked", label(edits[0]))

	require.NoError(t, f.router.HandleCallback(ctx, cb, callbacks.New(DomainModeration, ActionUnblock, "100", "")))
	edits = f.msgr.CallsTo("editMessageReplyMarkup")
	require.Len(t, edits, 2)
	assert.Equal(t, "🔒 Block", label(edits[1]))

	f.msgr.FailWith("editMessageReplyMarkup", nil, 1)
	require.NoError(t, f.router.HandleCallback(ctx, cb, callbacks.New(DomainModeration, ActionBlock, "100", "")))
	u, err := f.mem.GetOrCreateUser(ctx, "100")
	require.NoError(t, err)
	assert.True(t, u.IsBlocked)
}

func TestTopicCommands(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.mem.UpdateUser(ctx, "100", store.UserPatch{TopicID: store.Ptr("501")}))

	m := threadMessage(500, 501)
	m.Text = "/block@relaybot"
	handled, err := f.router.TopicCommand(ctx, m)
	require.NoError(t, err)
	assert.True(t, handled)
	u, err := f.mem.GetOrCreateUser(ctx, "100")
	require.NoError(t, err)
	assert.True(t, u.IsBlocked)

	m.Text = "/info"
	handled, err = f.router.TopicCommand(ctx, m)
	require.NoError(t, err)
	assert.True(t, handled)
	last := f.msgr.CallsTo("sendMessage")
	assert.Contains(t, last[len(last)-1].Text, "blocked")

	m.Text = "/unknown"
	handled, err = f.router.TopicCommand(ctx, m)
	require.NoError(t, err)
	assert.False(t, handled)
}

func TestTopicNameIsBounded(t *testing.T) {
	name := TopicName(strings.Repeat("é", 200), "123456789")
	assert.Equal(t, MaxTopicNameLen, utf8.RuneCountInString(name))
	assert.Equal(t, "User | 5", TopicName("", "5"))
}
