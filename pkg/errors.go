// Package pkg holds utilities shared across layers. This file defines the
// domain error sentinels.
//
// Services wrap a sentinel with context and callers match with errors.Is:
//
//	return fmt.Errorf("%w: channel %d", pkg.ErrNotFound, id)
//	if errors.Is(err, pkg.ErrNotFound) { ... }
//
// The HTTP layer (response.go) and the websocket layer (ws.errorCode) map
// the same sentinels to status codes and wire error codes.
package pkg

import "errors"

var (
	// ErrNotFound: channel, server, invite or membership does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized: missing or invalid access token.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden: the caller lacks the membership or role an operation needs.
	ErrForbidden = errors.New("access denied")

	// ErrConflict: the operation collides with existing state, e.g. a one-time
	// invite that was already redeemed.
	ErrConflict = errors.New("conflict")

	// ErrAlreadyExists is returned by repositories on UNIQUE violations.
	// It wraps ErrConflict so callers that only care about the taxonomy can
	// match either one.
	ErrAlreadyExists = &wrapped{msg: "already exists", parent: ErrConflict}

	// ErrPersistence: the storage layer failed. The operation is retryable.
	ErrPersistence = errors.New("persistence failure")

	// ErrExpired: an invite past its expiry timestamp.
	ErrExpired = errors.New("expired")

	ErrBadRequest      = errors.New("bad request")
	ErrTooManyRequests = errors.New("too many requests")
	ErrInternal        = errors.New("internal error")
)

// wrapped is a sentinel that also matches its parent under errors.Is.
type wrapped struct {
	msg    string
	parent error
}

func (e *wrapped) Error() string { return e.msg }
func (e *wrapped) Unwrap() error { return e.parent }
