// Package courier holds the error taxonomy shared across the broker's
// components. Only ErrTokenExpired and ErrTokenInvalid are returned today
// (by internal/auth); the HTTP and WebSocket handlers choose status codes
// and close codes directly and do not check these values with errors.Is.
package courier

import "errors"

var (
	// ErrChannelNameInvalid means a channel name failed validation (C1).
	ErrChannelNameInvalid = errors.New("channel name invalid")

	// ErrChannelNotFound means a referenced channel is absent and
	// auto-creation does not apply.
	ErrChannelNotFound = errors.New("channel not found")

	// ErrTokenExpired means a JWT's exp claim is in the past.
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenInvalid means a JWT failed signature verification, was
	// malformed, or was missing a required claim.
	ErrTokenInvalid = errors.New("token invalid")

	// ErrAuthorizationDenied means an authenticated (or anonymous) caller
	// lacks access to the requested channel.
	ErrAuthorizationDenied = errors.New("authorization denied")

	// ErrChannelAtCapacity means a channel's subscriber count has reached
	// its configured limit.
	ErrChannelAtCapacity = errors.New("channel at capacity")

	// ErrPayloadInvalid means a publish body was not a JSON object or was
	// missing a required field.
	ErrPayloadInvalid = errors.New("payload invalid")
)
