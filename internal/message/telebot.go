package message

import (
	tele "gopkg.in/telebot.v4"

	tg "github.com/m3rciful/topicrelay/core/telegram"
)

// FromTele converts a telebot message. It returns false for nil input.
func FromTele(m *tele.Message) (Message, bool) {
	if m == nil || m.Chat == nil {
		return Message{}, false
	}
	out := Message{
		ID:           m.ID,
		ChatID:       m.Chat.ID,
		Private:      m.Chat.Type == tele.ChatPrivate,
		ThreadID:     m.ThreadID,
		TopicMessage: m.TopicMessage,
		Text:         m.Text,
		Caption:      m.Caption,
		AlbumID:      m.AlbumID,
		Date:         m.Unixtime,
		EditDate:     m.LastEdit,
	}
	if m.Sender != nil {
		out.From = senderFromTele(m.Sender)
	}
	out.Media, out.Other = mediaFromTele(m)
	out.Forward = forwardKind(m)
	out.HasLink = hasLink(m.Entities) || hasLink(m.CaptionEntities)
	return out, true
}

// CallbackFromTele converts a telebot callback.
func CallbackFromTele(cb *tele.Callback) (Callback, bool) {
	if cb == nil || cb.Sender == nil {
		return Callback{}, false
	}
	out := Callback{
		ID:   cb.ID,
		Data: cb.Data,
		From: senderFromTele(cb.Sender),
	}
	if cb.Message != nil {
		out.MessageID = cb.Message.ID
		out.ThreadID = cb.Message.ThreadID
		if cb.Message.Chat != nil {
			out.ChatID = cb.Message.Chat.ID
		}
	}
	return out, true
}

func senderFromTele(u *tele.User) Sender {
	return Sender{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Username:  u.Username,
		IsBot:     u.IsBot,
	}
}

func mediaFromTele(m *tele.Message) (*tg.Media, bool) {
	switch {
	case m.Photo != nil:
		return &tg.Media{Kind: tg.MediaPhoto, FileID: m.Photo.FileID, Caption: m.Caption}, false
	case m.Video != nil:
		return &tg.Media{Kind: tg.MediaVideo, FileID: m.Video.FileID, Caption: m.Caption}, false
	case m.Animation != nil:
		return &tg.Media{Kind: tg.MediaAnimation, FileID: m.Animation.FileID, Caption: m.Caption}, false
	case m.Audio != nil:
		return &tg.Media{Kind: tg.MediaAudio, FileID: m.Audio.FileID, Caption: m.Caption}, false
	case m.Voice != nil:
		return &tg.Media{Kind: tg.MediaVoice, FileID: m.Voice.FileID, Caption: m.Caption}, false
	case m.Sticker != nil:
		return &tg.Media{Kind: tg.MediaSticker, FileID: m.Sticker.FileID}, false
	case m.Document != nil:
		return &tg.Media{Kind: tg.MediaDocument, FileID: m.Document.FileID, Caption: m.Caption}, false
	}
	other := m.VideoNote != nil || m.Contact != nil || m.Location != nil ||
		m.Venue != nil || m.Poll != nil || m.Dice != nil
	return nil, other
}

func forwardKind(m *tele.Message) ForwardKind {
	if m.Origin == nil {
		return ForwardNone
	}
	switch string(m.Origin.Type) {
	case "channel":
		return ForwardChannel
	case "chat":
		return ForwardChat
	case "hidden_user":
		return ForwardHidden
	default:
		return ForwardUser
	}
}

func hasLink(entities tele.Entities) bool {
	for _, e := range entities {
		if e.Type == tele.EntityURL || e.Type == tele.EntityTextLink {
			return true
		}
	}
	return false
}
