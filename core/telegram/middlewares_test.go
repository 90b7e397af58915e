package telegram

import (
	"testing"

	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/topicrelay/core/config"
)

func chain(mws []Middleware, h tele.HandlerFunc) tele.HandlerFunc {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i].Use(h)
	}
	return h
}

func TestDefaultMiddlewaresKeepAlbumsAndEdits(t *testing.T) {
	cfg := &coreconfig.Config{RateLimit: coreconfig.RateLimitConfig{
		IntervalMS:     500,
		ExcludeUpdates: []string{"callback"},
	}}
	mws := DefaultMiddlewares(cfg, nil)
	if len(mws) != 2 || mws[1].Name != "rate_limit" {
		t.Fatalf("unexpected chain: %+v", mws)
	}

	handled := 0
	h := chain(mws, func(tele.Context) error { handled++; return nil })

	from := &tele.User{ID: 42}
	chat := &tele.Chat{ID: 42, Type: tele.ChatPrivate}
	for i := 1; i <= 3; i++ {
		upd := tele.Update{ID: i, Message: &tele.Message{
			ID: i, Sender: from, Chat: chat, AlbumID: "g1", Photo: &tele.Photo{},
		}}
		if err := h(tele.NewContext(nil, upd)); err != nil {
			t.Fatalf("album part %d: %v", i, err)
		}
	}
	edit := tele.Update{ID: 4, EditedMessage: &tele.Message{ID: 1, Sender: from, Chat: chat, Text: "caption"}}
	if err := h(tele.NewContext(nil, edit)); err != nil {
		t.Fatalf("edit: %v", err)
	}
	if handled != 4 {
		t.Fatalf("handled=%d, want 4", handled)
	}
}

func TestDefaultMiddlewaresWithoutInterval(t *testing.T) {
	mws := DefaultMiddlewares(&coreconfig.Config{}, nil)
	if len(mws) != 1 || mws[0].Name != "recover" {
		t.Fatalf("unexpected chain: %+v", mws)
	}
}
