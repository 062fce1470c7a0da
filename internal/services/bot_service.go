// Package services – BotService
//
// BotService is the webhook pipeline. For every inbound Telegram text it
// claims the update id, opens the conversation (primary or fallback),
// resolves the companion and either answers a slash command directly or
// records the user message and enqueues a reply job. It never fails the
// webhook for downstream problems: those are logged and, where the user is
// waiting for an answer, turned into a companion-voiced message.
package services

import (
	"context"
	"errors"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-companion-bot/internal/conversation"
	"github.com/tbourn/go-companion-bot/internal/domain"
	"github.com/tbourn/go-companion-bot/internal/queue"
	"github.com/tbourn/go-companion-bot/internal/repo"
	"github.com/tbourn/go-companion-bot/internal/resolver"
	"github.com/tbourn/go-companion-bot/internal/telegram"
)

// ConversationStore is the part of conversation.Store the bot and the
// reply worker use.
type ConversationStore interface {
	Open(ctx context.Context, externalChatID, externalUserID int64, username string) conversation.Handle
	Record(ctx context.Context, h conversation.Handle, role, content string) conversation.Handle
	Recall(ctx context.Context, h conversation.Handle, limit int) []conversation.Entry
	ClearConversation(ctx context.Context, h conversation.Handle) error
	Summary(ctx context.Context, h conversation.Handle) (conversation.Summary, error)
}

// CompanionResolver picks the companion for an inbound text.
type CompanionResolver interface {
	Resolve(ctx context.Context, text string, user resolver.User, chat conversation.Handle) resolver.Resolution
}

// CompanionCatalog lists companions for command replies.
type CompanionCatalog interface {
	List(ctx context.Context) ([]domain.Companion, error)
	Default(ctx context.Context) domain.Companion
}

// Enqueuer admits reply jobs.
type Enqueuer interface {
	Enqueue(ctx context.Context, job *queue.Job) error
}

// DefaultUpdateTTL is how long a processed update id is remembered.
const DefaultUpdateTTL = 24 * time.Hour

// BotService handles inbound Telegram updates.
type BotService struct {
	// DB records processed update ids. Nil disables de-duplication.
	DB            *gorm.DB
	Conversations ConversationStore
	Resolver      CompanionResolver
	Catalog       CompanionCatalog
	Queue         Enqueuer
	Transport     telegram.Transport
	UpdateTTL     time.Duration
	Now           func() time.Time
}

// HandleUpdate processes one update. The returned error is informational:
// the webhook acknowledges the update either way.
func (s *BotService) HandleUpdate(ctx context.Context, u tgbotapi.Update) error {
	in, ok := telegram.FromUpdate(u)
	if !ok {
		return nil
	}

	tr := otel.Tracer("services/BotService")
	ctx, span := tr.Start(ctx, "HandleUpdate",
		trace.WithAttributes(
			attribute.Int64("telegram.update_id", in.UpdateID),
			attribute.Int64("telegram.chat_id", in.ChatID),
		),
	)
	defer span.End()

	l := log.With().Int64("update_id", in.UpdateID).Int64("chat_id", in.ChatID).Int64("user_id", in.UserID).Logger()

	if s.claim(ctx, in) {
		l.Debug().Msg("update already processed, skipping")
		return nil
	}
	// A panic below turns into a 500 and Telegram re-delivers the update;
	// drop the claim so that delivery is not skipped as a duplicate.
	defer func() {
		if rec := recover(); rec != nil {
			s.release(ctx, in)
			panic(rec)
		}
	}()

	h := s.Conversations.Open(ctx, in.ChatID, in.UserID, in.Username)
	res := s.Resolver.Resolve(ctx, in.Text, resolver.User{ID: in.UserID, Username: in.Username}, h)

	if res.Source == resolver.SourceCommand {
		span.SetAttributes(attribute.String("bot.command", res.Command))
		s.handleCommand(ctx, in, h, res.Command)
		return nil
	}

	comp := res.Companion
	if comp == nil {
		def := s.Catalog.Default(ctx)
		comp = &def
	}
	span.SetAttributes(attribute.String("companion.id", comp.ID), attribute.String("resolver.source", string(res.Source)))

	s.Transport.SendChatAction(ctx, in.ChatID, telegram.ActionTyping)
	// Stored timestamps use the wall clock at microsecond precision (postgres).
	posted := time.Now().UTC().Truncate(time.Microsecond)
	h = s.Conversations.Record(ctx, h, domain.RoleUser, in.Text)

	job := &queue.Job{
		ChatID:       in.ChatID,
		UserMessage:  in.Text,
		Companion:    queue.Snapshot(*comp),
		Username:     in.DisplayName(),
		MessageID:    in.MessageID,
		Conversation: &h,
		PostedAt:     posted,
	}
	if err := s.Queue.Enqueue(ctx, job); err != nil {
		span.RecordError(err)
		l.Error().Err(err).Str("companion", comp.ID).Msg("enqueue reply failed")
		s.Transport.SendMessage(ctx, in.ChatID, ApologyText(job.Companion))
		return err
	}
	l.Info().Str("companion", comp.ID).Str("source", string(res.Source)).Str("job_id", job.ID).Msg("reply queued")
	return nil
}

// claim reports whether the update was already handled. Storage errors
// let the update through.
func (s *BotService) claim(ctx context.Context, in telegram.Inbound) bool {
	if s.DB == nil || in.UpdateID == 0 {
		return false
	}
	ttl := s.UpdateTTL
	if ttl <= 0 {
		ttl = DefaultUpdateTTL
	}
	err := repo.ClaimUpdate(ctx, s.DB, in.UpdateID, in.ChatID, ttl, s.now())
	switch {
	case err == nil:
		return false
	case errors.Is(err, repo.ErrDuplicate):
		return true
	default:
		log.Warn().Err(err).Int64("update_id", in.UpdateID).Msg("update de-duplication unavailable")
		return false
	}
}

func (s *BotService) release(ctx context.Context, in telegram.Inbound) {
	if s.DB == nil || in.UpdateID == 0 {
		return
	}
	if err := repo.ReleaseUpdate(context.WithoutCancel(ctx), s.DB, in.UpdateID); err != nil {
		log.Error().Err(err).Int64("update_id", in.UpdateID).Msg("release update claim")
	}
}

func (s *BotService) handleCommand(ctx context.Context, in telegram.Inbound, h conversation.Handle, name string) {
	def := s.Catalog.Default(ctx)
	var text string
	switch name {
	case "start":
		cs := s.companions(ctx)
		var n int64
		if sum, err := s.Conversations.Summary(ctx, h); err == nil {
			n = sum.MessageCount
		}
		text = StartText(cs, def, n)
	case "help":
		text = HelpText(def)
	case "companions", "list":
		text = CompanionsText(s.companions(ctx), def)
	case "clear":
		if err := s.Conversations.ClearConversation(ctx, h); err != nil {
			log.Error().Err(err).Str("chat", h.String()).Msg("clear conversation")
			text = ClearFailedText(def)
		} else {
			text = ClearedText(def)
		}
	default:
		text = UnknownCommandText(name)
	}
	s.Transport.SendMessage(ctx, in.ChatID, text)
}

func (s *BotService) companions(ctx context.Context) []domain.Companion {
	cs, err := s.Catalog.List(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("list companions for command")
		return nil
	}
	return cs
}

func (s *BotService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
