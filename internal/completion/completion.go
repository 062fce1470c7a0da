// Package completion calls a hosted chat-completion endpoint. Every call
// yields a Result tagged with its Outcome; no error escapes Complete, so
// callers must handle "no usable text" as an ordinary case.
package completion

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Chat roles understood by completion providers.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one prompt turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Outcome tags a Result.
type Outcome int

const (
	// OutcomeOK means Text holds usable content.
	OutcomeOK Outcome = iota
	// OutcomeNoContent means the provider answered without usable text.
	OutcomeNoContent
	// OutcomeTransportError means the request failed or was rejected.
	OutcomeTransportError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeNoContent:
		return "no_content"
	case OutcomeTransportError:
		return "transport_error"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// ErrNoContent is carried by NoContent results.
var ErrNoContent = errors.New("completion returned no usable content")

// Result is the tagged outcome of a completion call.
type Result struct {
	Outcome Outcome
	Text    string
	Err     error
}

// Ok wraps usable text. Blank text becomes a NoContent result.
func Ok(text string) Result {
	text = strings.TrimSpace(text)
	if text == "" {
		return NoContent()
	}
	return Result{Outcome: OutcomeOK, Text: text}
}

// NoContent reports a response without usable text.
func NoContent() Result {
	return Result{Outcome: OutcomeNoContent, Err: ErrNoContent}
}

// TransportError reports a failed request.
func TransportError(err error) Result {
	return Result{Outcome: OutcomeTransportError, Err: err}
}

// OK reports whether r carries usable text.
func (r Result) OK() bool { return r.Outcome == OutcomeOK }

// Error returns the failure cause, or nil for OK results.
func (r Result) Error() error {
	if r.OK() {
		return nil
	}
	if r.Err != nil {
		return fmt.Errorf("%s: %w", r.Outcome, r.Err)
	}
	return errors.New(r.Outcome.String())
}

// Client produces a completion for an ordered prompt.
type Client interface {
	Complete(ctx context.Context, msgs []Message) Result
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, msgs []Message) Result

// Complete calls f.
func (f ClientFunc) Complete(ctx context.Context, msgs []Message) Result { return f(ctx, msgs) }
