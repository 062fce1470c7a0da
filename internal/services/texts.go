package services

import (
	"fmt"
	"strings"

	"github.com/tbourn/go-companion-bot/internal/domain"
	"github.com/tbourn/go-companion-bot/internal/queue"
	"github.com/tbourn/go-companion-bot/internal/telegram"
)

// Chat texts are HTML for Telegram's parse mode. Only <b> is used; every
// interpolated value is escaped.

// header renders the "<avatar> <b>Name</b>" line companions sign with.
func header(avatar, name string) string {
	return telegram.Escape(avatar) + " " + telegram.Bold(name)
}

// ApologyText is the companion-voiced reply sent when a completion fails.
func ApologyText(c queue.CompanionSnapshot) string {
	return header(c.Avatar, c.Name) + "\n\nSorry, I'm having trouble thinking right now. Please try again in a moment!"
}

// ReplyText signs a completion with the companion header.
func ReplyText(c queue.CompanionSnapshot, reply string) string {
	return header(c.Avatar, c.Name) + "\n\n" + telegram.Escape(strings.TrimSpace(reply))
}

// WelcomeText greets a user who picked c in the mini app.
func WelcomeText(c domain.Companion) string {
	return header(c.Avatar, c.Name) + "\n\n" +
		fmt.Sprintf("Hello! I'm %s. %s", telegram.Escape(c.Name), telegram.Escape(c.Description)) +
		"\n\nI'm so excited to start our conversation! What would you like to talk about today?"
}

// UnknownCommandText answers a slash command the bot does not know.
func UnknownCommandText(name string) string {
	return fmt.Sprintf("Unknown command: %s. Type /help for available commands.", telegram.Escape(name))
}

const howToChat = "<b>How to chat with specific companions:</b>\n" +
	"• Say \"Chat with Sophia\" to talk to Sophia\n" +
	"• Say \"Talk to Luna\" to chat with Luna\n" +
	"• Say \"Switch to [Name]\" to change companions\n" +
	"• Just send a message to chat with %s (default)"

// StartText is the /start welcome. history is the number of stored messages
// in this chat; a non-zero count adds a reminder line.
func StartText(cs []domain.Companion, def domain.Companion, history int64) string {
	var b strings.Builder
	b.WriteString("🎉 Welcome! I'm your AI companion bot.\n\n")
	b.WriteString("I have multiple AI personalities to choose from:\n")
	for _, c := range cs {
		fmt.Fprintf(&b, "• %s - %s\n", telegram.Escape(c.Name), telegram.Escape(c.Description))
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, howToChat, telegram.Escape(def.Name))
	if history > 0 {
		fmt.Fprintf(&b, "\n\n📚 I remember %d messages from our conversation. Type /clear to start fresh.", history)
	}
	b.WriteString("\n\nType /help for more commands!")
	return b.String()
}

// HelpText lists the commands.
func HelpText(def domain.Companion) string {
	return "🤖 <b>Available Commands:</b>\n\n" +
		"/start - Start the bot and get welcome message\n" +
		"/help - Show this help message\n" +
		"/companions - List available AI companions\n" +
		"/clear - Forget our conversation so far\n\n" +
		fmt.Sprintf(howToChat, telegram.Escape(def.Name)) +
		"\n\n<b>Energy System:</b>\nEach message costs energy based on the companion you're chatting with."
}

// CompanionsText lists cs with avatar, name, description and energy cost.
func CompanionsText(cs []domain.Companion, def domain.Companion) string {
	var b strings.Builder
	b.WriteString("🤖 <b>Available Companions:</b>\n\n")
	for _, c := range cs {
		fmt.Fprintf(&b, "%s %s - %s (%d⚡)\n", telegram.Escape(c.Avatar), telegram.Escape(c.Name), telegram.Escape(c.Description), c.EnergyCost)
	}
	b.WriteString("\n<b>How to chat with them:</b>\n")
	b.WriteString("• Say \"Chat with [Name]\" to start chatting\n")
	b.WriteString("• Say \"Switch to [Name]\" to change companions\n")
	fmt.Fprintf(&b, "• Or just send a message to chat with %s", telegram.Escape(def.Name))
	return b.String()
}

// ClearedText confirms /clear.
func ClearedText(def domain.Companion) string {
	return header(def.Avatar, def.Name) + "\n\n🧹 Our conversation has been cleared. Let's start fresh!"
}

// ClearFailedText is sent when /clear could not delete history.
func ClearFailedText(def domain.Companion) string {
	return header(def.Avatar, def.Name) + "\n\nSorry, I couldn't clear our conversation right now. Please try again later."
}

// PersonaPrompt is the system prompt for a reply by c to username.
func PersonaPrompt(c queue.CompanionSnapshot, username string) string {
	if strings.TrimSpace(username) == "" {
		username = "User"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, an AI companion with the following personality: %s\n\n", c.Name, c.Personality)
	if c.Description != "" {
		fmt.Fprintf(&b, "About you: %s\n\n", c.Description)
	}
	fmt.Fprintf(&b, "Respond in character as %s and keep your personality consistent. ", c.Name)
	b.WriteString("Use the previous messages of this conversation to keep continuity: remember what the user told you and refer back to it when it helps.\n\n")
	fmt.Fprintf(&b, "Current user: %s", username)
	return b.String()
}
