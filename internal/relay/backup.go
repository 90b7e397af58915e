package relay

import (
	"context"
	"log/slog"
	"unicode/utf8"

	"github.com/m3rciful/topicrelay/core/logger"
	tg "github.com/m3rciful/topicrelay/core/telegram"
	"github.com/m3rciful/topicrelay/core/telegram/format"
	"github.com/m3rciful/topicrelay/internal/message"
	"github.com/m3rciful/topicrelay/internal/store"
)

// Bot API limits for merged backup sends.
const (
	maxTextLen    = 4096
	maxCaptionLen = 1024
)

// BackupHeader names the author of a mirrored message.
func BackupHeader(u *store.User, from message.Sender) string {
	name := format.DisplayName(from.FirstName, from.LastName, from.Username)
	if name == "" {
		name = "User"
	}
	header := "📨 " + name
	if from.Username != "" {
		header += " (@" + from.Username + ")"
	}
	return header + " | " + u.ID
}

// mirror copies m to the backup group when one is configured. Text and
// single captioned media are merged with the header; anything else gets the
// header followed by a verbatim copy. Failures are only logged.
func (r *Router) mirror(ctx context.Context, u *store.User, m message.Message) {
	backupID, ok := r.settings.BackupGroupID(ctx)
	if !ok {
		return
	}
	header := BackupHeader(u, m.From)

	var run func() error
	endpoint := "copyMessage"
	switch {
	case m.Text != "" && m.Media == nil && !m.Other && utf8.RuneCountInString(header)+2+utf8.RuneCountInString(m.Text) <= maxTextLen:
		endpoint = "sendMessage"
		run = func() error {
			_, err := r.msgr.SendText(ctx, backupID, header+"\n\n"+m.Text, tg.SendOptions{})
			return err
		}
	case m.Media != nil && m.Caption != "" && m.AlbumID == "" &&
		utf8.RuneCountInString(header)+2+utf8.RuneCountInString(m.Caption) <= maxCaptionLen:
		media := *m.Media
		media.Caption = header + "\n\n" + m.Caption
		endpoint = media.Method()
		run = func() error {
			_, err := r.msgr.SendMedia(ctx, backupID, media, tg.SendOptions{})
			return err
		}
	default:
		// Retries resume at the copy once the header is out.
		headerSent := false
		run = func() error {
			if !headerSent {
				if _, err := r.msgr.SendText(ctx, backupID, header, tg.SendOptions{}); err != nil {
					return err
				}
				headerSent = true
			}
			_, err := r.msgr.Copy(ctx, backupID, m.ChatID, m.ID, tg.SendOptions{})
			return err
		}
	}

	if r.backup == nil {
		if err := run(); err != nil {
			logBackupFailure(ctx, u, err)
		}
		return
	}
	if err := r.backup.Enqueue(ctx, "relay.backup", endpoint, run); err != nil {
		logBackupFailure(ctx, u, err)
	}
}

func logBackupFailure(ctx context.Context, u *store.User, err error) {
	logger.Warn(ctx, logger.ComponentRelay, "relay.backup",
		slog.String("user_id", u.ID),
		slog.String("status", "fail"),
		slog.String("err", err.Error()),
	)
}
