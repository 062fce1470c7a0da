// Package telegram adapts the Telegram Bot API: outbound messages and chat
// actions, inbound webhook updates and mini-app init-data verification.
//
// Outbound calls are fire-and-forget. Failures are logged and never
// returned, so callers cannot tell a failed delivery from a successful one.
package telegram

import (
	"context"
	"fmt"
	"html"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
)

// ActionTyping is the "typing…" chat action.
const ActionTyping = tgbotapi.ChatTyping

// Transport sends messages and chat actions to Telegram chats. Text is HTML;
// only <b> is used.
type Transport interface {
	SendMessage(ctx context.Context, chatID int64, htmlText string)
	SendChatAction(ctx context.Context, chatID int64, action string)
}

// BotTransport is a Transport over the Bot HTTP API.
type BotTransport struct {
	api *tgbotapi.BotAPI
}

// NewBotTransport authenticates against the Bot API (getMe) and returns a
// transport. endpoint may be empty for the public API; it uses the
// tgbotapi format with %s placeholders for token and method.
func NewBotTransport(token, endpoint string, client *http.Client) (*BotTransport, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token cannot be empty")
	}
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	if client == nil {
		client = &http.Client{}
	}
	api, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("telegram getMe: %w", err)
	}
	log.Info().Str("bot", api.Self.UserName).Msg("Telegram transport configured")
	return &BotTransport{api: api}, nil
}

// SendMessage posts htmlText to chatID with HTML parse mode.
func (t *BotTransport) SendMessage(_ context.Context, chatID int64, htmlText string) {
	msg := tgbotapi.NewMessage(chatID, htmlText)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := t.api.Send(msg); err != nil {
		log.Error().Err(err).Int64("chat_id", chatID).Msg("telegram sendMessage failed")
	}
}

// SendChatAction posts a chat action such as ActionTyping.
func (t *BotTransport) SendChatAction(_ context.Context, chatID int64, action string) {
	// Request, not Send: the API answers `true` rather than a Message.
	if _, err := t.api.Request(tgbotapi.NewChatAction(chatID, action)); err != nil {
		log.Error().Err(err).Int64("chat_id", chatID).Str("action", action).Msg("telegram sendChatAction failed")
	}
}

// LogTransport only logs outbound traffic. It is used when no bot token is
// configured, e.g. in local development.
type LogTransport struct{}

// SendMessage logs the message.
func (LogTransport) SendMessage(_ context.Context, chatID int64, htmlText string) {
	log.Info().Int64("chat_id", chatID).Str("text", htmlText).Msg("telegram disabled: sendMessage")
}

// SendChatAction logs the action.
func (LogTransport) SendChatAction(_ context.Context, chatID int64, action string) {
	log.Debug().Int64("chat_id", chatID).Str("action", action).Msg("telegram disabled: sendChatAction")
}

// Escape makes s safe to embed in HTML parse mode.
func Escape(s string) string { return html.EscapeString(s) }

// Bold wraps escaped s in <b>.
func Bold(s string) string { return "<b>" + Escape(s) + "</b>" }
