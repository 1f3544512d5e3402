package telegram

import (
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"insurance-bot/internal/domain"
)

// ToInput converts an update into a conversation input. Updates that carry
// nothing the conversation reacts to report false.
func ToInput(u tgbotapi.Update) (domain.Input, bool) {
	if cq := u.CallbackQuery; cq != nil {
		if cq.Message == nil || cq.Message.Chat == nil {
			return domain.Input{}, false
		}
		chatID := cq.Message.Chat.ID
		return domain.Input{
			SessionID:  sessionID(chatID),
			ChatID:     chatID,
			Kind:       domain.InputButton,
			Action:     cq.Data,
			CallbackID: cq.ID,
			UpdateID:   u.UpdateID,
		}, true
	}

	msg := u.Message
	if msg == nil || msg.Chat == nil {
		return domain.Input{}, false
	}
	in := domain.Input{SessionID: sessionID(msg.Chat.ID), ChatID: msg.Chat.ID, UpdateID: u.UpdateID}
	switch {
	case msg.IsCommand():
		in.Kind = domain.InputCommand
		in.Command = strings.ToLower(msg.Command())
	case len(msg.Photo) > 0:
		in.Kind = domain.InputPhoto
		// Telegram lists sizes ascending; the last one is the original.
		in.PhotoID = msg.Photo[len(msg.Photo)-1].FileID
	case msg.Document != nil && strings.HasPrefix(msg.Document.MimeType, "image/"):
		in.Kind = domain.InputPhoto
		in.PhotoID = msg.Document.FileID
	case strings.TrimSpace(msg.Text) != "":
		in.Kind = domain.InputText
		in.Text = msg.Text
	default:
		return domain.Input{}, false
	}
	return in, true
}

func sessionID(chatID int64) string {
	return strconv.FormatInt(chatID, 10)
}
