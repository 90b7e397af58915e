package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	tg "github.com/m3rciful/topicrelay/core/telegram"
)

func TestFromTelePhotoWithLinkCaption(t *testing.T) {
	in := &tele.Message{
		ID:       9,
		Unixtime: 1700000000,
		Chat:     &tele.Chat{ID: 42, Type: tele.ChatPrivate},
		Sender:   &tele.User{ID: 42, FirstName: "Ann", Username: "ann"},
		Photo:    &tele.Photo{File: tele.File{FileID: "ph1"}},
		Caption:  "see example.org",
		CaptionEntities: tele.Entities{
			{Type: tele.EntityURL, Offset: 4, Length: 11},
		},
	}
	m, ok := FromTele(in)
	require.True(t, ok)
	assert.True(t, m.Private)
	assert.Equal(t, int64(42), m.From.ID)
	require.NotNil(t, m.Media)
	assert.Equal(t, tg.MediaPhoto, m.Media.Kind)
	assert.Equal(t, "see example.org", m.Media.Caption)
	assert.True(t, m.HasLink)
	assert.Equal(t, "see example.org", m.Body())
	assert.False(t, m.IsPlainText())
}

func TestFromTeleTopicMessageAndOther(t *testing.T) {
	in := &tele.Message{
		ID:           3,
		Chat:         &tele.Chat{ID: -100, Type: tele.ChatSuperGroup},
		Sender:       &tele.User{ID: 7},
		ThreadID:     55,
		TopicMessage: true,
		Location:     &tele.Location{Lat: 1, Lng: 2},
	}
	m, ok := FromTele(in)
	require.True(t, ok)
	assert.False(t, m.Private)
	assert.True(t, m.TopicMessage)
	assert.Equal(t, 55, m.ThreadID)
	assert.Nil(t, m.Media)
	assert.True(t, m.Other)
}

func TestFromTeleNil(t *testing.T) {
	_, ok := FromTele(nil)
	assert.False(t, ok)
	_, ok = FromTele(&tele.Message{})
	assert.False(t, ok)
}

func TestCommand(t *testing.T) {
	cases := map[string]string{
		"/start":             "/start",
		"/Start@relay_bot x": "/start",
		"  /help":            "/help",
		"hello /start":       "",
		"":                   "",
	}
	for text, want := range cases {
		assert.Equal(t, want, Message{Text: text}.Command(), text)
	}
}

func TestIsPlainText(t *testing.T) {
	assert.True(t, Message{Text: "hi"}.IsPlainText())
	assert.False(t, Message{Text: "hi", Forward: ForwardUser}.IsPlainText())
	assert.False(t, Message{}.IsPlainText())
}

func TestCallbackFromTele(t *testing.T) {
	cb := &tele.Callback{
		ID:     "cb1",
		Data:   "mod:block:42:",
		Sender: &tele.User{ID: 1},
		Message: &tele.Message{
			ID:       77,
			ThreadID: 5,
			Chat:     &tele.Chat{ID: -100},
		},
	}
	got, ok := CallbackFromTele(cb)
	require.True(t, ok)
	assert.Equal(t, Callback{ID: "cb1", Data: "mod:block:42:", From: Sender{ID: 1}, ChatID: -100, MessageID: 77, ThreadID: 5}, got)
}
