// Package services holds the bot's application logic: the webhook pipeline
// and chat commands, the reply worker, mini-app login and companion
// selection. This file centralizes service-level error values so handlers
// can map them to HTTP results consistently.
//
// Translation into user-facing messages or HTTP status codes is done in the
// handler layer.
package services

import "errors"

var (
	// ErrNotFound indicates that a requested companion or user does not exist
	// or is not active.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput is returned when a request is missing required fields
	// or carries values outside the allowed set.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized is returned when a mini-app init payload fails
	// signature or expiry checks.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotConfigured is returned when an operation needs a bot token or
	// admin token that was not configured.
	ErrNotConfigured = errors.New("not configured")
)
