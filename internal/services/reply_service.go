// Package services – ReplyService
//
// ReplyService is the queue handler that turns a reply job into a
// companion message: it loads recent history, builds the persona prompt,
// calls the completion client, stores the answer and delivers it.
package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-companion-bot/internal/completion"
	"github.com/tbourn/go-companion-bot/internal/conversation"
	"github.com/tbourn/go-companion-bot/internal/domain"
	"github.com/tbourn/go-companion-bot/internal/queue"
	"github.com/tbourn/go-companion-bot/internal/telegram"
)

// DefaultHistoryLimit is how many stored messages are fed to the model.
const DefaultHistoryLimit = 15

// ReplyService generates and delivers companion replies.
type ReplyService struct {
	Conversations ConversationStore
	Completion    completion.Client
	Transport     telegram.Transport
	HistoryLimit  int
}

// Handle implements queue.Handler. A failed completion sends the apology
// on the first attempt only and returns the error so the queue retries.
func (s *ReplyService) Handle(ctx context.Context, job *queue.Job) error {
	tr := otel.Tracer("services/ReplyService")
	ctx, span := tr.Start(ctx, "Handle",
		trace.WithAttributes(
			attribute.String("job.id", job.ID),
			attribute.Int64("telegram.chat_id", job.ChatID),
			attribute.String("companion.id", job.Companion.ID),
			attribute.Int("job.attempt", job.Attempt),
		),
	)
	defer span.End()

	l := log.With().
		Str("job_id", job.ID).
		Int64("chat_id", job.ChatID).
		Str("companion", job.Companion.ID).
		Int("attempt", job.Attempt).
		Logger()

	h := conversation.Handle{ExternalChatID: job.ChatID, Fallback: true}
	if job.Conversation != nil {
		h = *job.Conversation
	}

	// Messages sent after this one may already be stored; read past them.
	limit := s.historyLimit()
	history := HistoryBefore(s.Conversations.Recall(ctx, h, 2*limit), job.PostedAt, limit)
	msgs := BuildPrompt(job.Companion, job.Username, history, job.UserMessage)

	res := s.Completion.Complete(ctx, msgs)
	if !res.OK() {
		err := res.Error()
		span.RecordError(err)
		l.Warn().Err(err).Str("outcome", res.Outcome.String()).Msg("completion failed")
		if job.Attempt <= 1 {
			s.Transport.SendMessage(ctx, job.ChatID, ApologyText(job.Companion))
		}
		return fmt.Errorf("completion: %w", err)
	}

	s.Conversations.Record(ctx, h, domain.RoleAssistant, res.Text)
	s.Transport.SendMessage(ctx, job.ChatID, ReplyText(job.Companion, res.Text))
	l.Info().Int("history", len(history)).Msg("reply delivered")
	return nil
}

func (s *ReplyService) historyLimit() int {
	if s.HistoryLimit > 0 {
		return s.HistoryLimit
	}
	return DefaultHistoryLimit
}

// HistoryBefore keeps the newest limit entries stored before cutoff. A zero
// cutoff only applies the limit. Entries without a timestamp are kept.
func HistoryBefore(history []conversation.Entry, cutoff time.Time, limit int) []conversation.Entry {
	if !cutoff.IsZero() {
		kept := make([]conversation.Entry, 0, len(history))
		for _, e := range history {
			if e.At.IsZero() || e.At.Before(cutoff) {
				kept = append(kept, e)
			}
		}
		history = kept
	}
	if limit >= 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	return history
}

// BuildPrompt assembles [system, ...history, user]. The webhook stores the
// user message before the job runs, so a trailing history entry equal to
// it is not repeated.
func BuildPrompt(c queue.CompanionSnapshot, username string, history []conversation.Entry, userMessage string) []completion.Message {
	if n := len(history); n > 0 {
		last := history[n-1]
		if strings.EqualFold(last.Role, domain.RoleUser) && last.Content == userMessage {
			history = history[:n-1]
		}
	}
	msgs := make([]completion.Message, 0, len(history)+2)
	msgs = append(msgs, completion.Message{Role: completion.RoleSystem, Content: PersonaPrompt(c, username)})
	for _, e := range history {
		role := completionRole(e.Role)
		if role == "" || strings.TrimSpace(e.Content) == "" {
			continue
		}
		msgs = append(msgs, completion.Message{Role: role, Content: e.Content})
	}
	msgs = append(msgs, completion.Message{Role: completion.RoleUser, Content: userMessage})
	return msgs
}

// completionRole maps stored roles onto provider roles. Stored system
// messages are dropped: the persona prompt is the only system turn.
func completionRole(stored string) string {
	switch strings.ToUpper(stored) {
	case domain.RoleUser:
		return completion.RoleUser
	case domain.RoleAssistant:
		return completion.RoleAssistant
	}
	return ""
}
