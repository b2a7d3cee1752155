package ws

import (
	"errors"

	"github.com/akinalp/corkboard/pkg"
)

// Error codes sent in ErrorData.Code.
const (
	CodeAccessDenied       = "access_denied"
	CodeNotFound           = "not_found"
	CodeConflict           = "conflict"
	CodeExpired            = "expired"
	CodePersistenceFailure = "persistence_failure"
	CodeBadRequest         = "bad_request"
	CodeRateLimited        = "rate_limited"
	CodeInternal           = "internal"
)

// errorCode maps a domain error onto its wire code.
func errorCode(err error) string {
	switch {
	case errors.Is(err, pkg.ErrForbidden), errors.Is(err, pkg.ErrUnauthorized):
		return CodeAccessDenied
	case errors.Is(err, pkg.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, pkg.ErrConflict):
		return CodeConflict
	case errors.Is(err, pkg.ErrExpired):
		return CodeExpired
	case errors.Is(err, pkg.ErrPersistence):
		return CodePersistenceFailure
	case errors.Is(err, pkg.ErrBadRequest):
		return CodeBadRequest
	case errors.Is(err, pkg.ErrTooManyRequests):
		return CodeRateLimited
	default:
		return CodeInternal
	}
}

// Fixed client texts for failures whose details stay in the log.
const (
	msgInternal           = "internal error"
	msgPersistenceFailure = "message could not be saved, retry"
)

// errorMessage hides internal details from the client.
func errorMessage(err error) string {
	switch errorCode(err) {
	case CodeInternal:
		return msgInternal
	case CodePersistenceFailure:
		return msgPersistenceFailure
	default:
		return err.Error()
	}
}
