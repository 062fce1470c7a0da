// Package queue decouples "a reply is needed" from "the reply is generated
// and delivered". Jobs are admitted by Enqueue and executed by a bounded
// pool of workers with exponential-backoff retries.
//
// Delivery is at-least-once: a job whose handler fails is retried until
// MaxAttempts, then recorded as failed. There is no per-chat ordering and
// no coalescing; every admitted job runs independently.
package queue

import (
	"time"

	"github.com/tbourn/go-companion-bot/internal/conversation"
	"github.com/tbourn/go-companion-bot/internal/domain"
)

// DefaultPriority is the fixed priority of reply jobs.
const DefaultPriority = 1

// CompanionSnapshot freezes the companion a job was resolved to, so later
// catalog edits do not change an in-flight reply.
type CompanionSnapshot struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Avatar      string `json:"avatar"`
	Description string `json:"description"`
	Personality string `json:"personality"`
	EnergyCost  int    `json:"energyCost"`
}

// Snapshot copies the job-relevant fields of c.
func Snapshot(c domain.Companion) CompanionSnapshot {
	return CompanionSnapshot{
		ID:          c.ID,
		Name:        c.Name,
		Avatar:      c.Avatar,
		Description: c.Description,
		Personality: c.Personality,
		EnergyCost:  c.EnergyCost,
	}
}

// Job is one unit of "generate and deliver one reply".
type Job struct {
	ID           string               `json:"id"`
	ChatID       int64                `json:"chatId"`
	UserMessage  string               `json:"userMessage"`
	Companion    CompanionSnapshot    `json:"companion"`
	Username     string               `json:"username"`
	MessageID    int                  `json:"messageId"`
	Conversation *conversation.Handle `json:"conversation,omitempty"`
	// PostedAt is taken just before the user message is stored. History at
	// or after it belongs to later messages and is not context for this one.
	PostedAt time.Time `json:"postedAt,omitempty"`

	Priority   int       `json:"priority"`
	Attempt    int       `json:"attempt"` // attempts made so far
	EnqueuedAt time.Time `json:"enqueuedAt"`
	LastError  string    `json:"lastError,omitempty"`
}

// Stats counts jobs per state.
type Stats struct {
	Waiting   int64 `json:"waiting"`
	Delayed   int64 `json:"delayed"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}
