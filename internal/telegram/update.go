package telegram

import (
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Inbound is the part of a Telegram update the bot acts on.
type Inbound struct {
	UpdateID  int64
	MessageID int
	ChatID    int64
	UserID    int64
	Username  string
	FirstName string
	Text      string
}

// DisplayName is the username, else the first name, else "there".
func (in Inbound) DisplayName() string {
	switch {
	case in.Username != "":
		return in.Username
	case in.FirstName != "":
		return in.FirstName
	}
	return "there"
}

// FromUpdate extracts a text message from u. ok is false for updates the
// bot ignores: no message, no sender, or no text.
func FromUpdate(u tgbotapi.Update) (in Inbound, ok bool) {
	m := u.Message
	if m == nil || m.Chat == nil || m.From == nil {
		return Inbound{}, false
	}
	text := strings.TrimSpace(m.Text)
	if text == "" {
		return Inbound{}, false
	}
	return Inbound{
		UpdateID:  int64(u.UpdateID),
		MessageID: m.MessageID,
		ChatID:    m.Chat.ID,
		UserID:    m.From.ID,
		Username:  m.From.UserName,
		FirstName: m.From.FirstName,
		Text:      text,
	}, true
}
