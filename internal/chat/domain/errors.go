package domain

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

var (
	// ErrAuth bad or expired credential
	ErrAuth = errors.New("authentication failed")
	// ErrNotAuthorized valid user, not a member of the target chat
	ErrNotAuthorized = errors.New("not a member of this chat")
	// ErrNotFound referenced chat or message does not exist
	ErrNotFound = errors.New("not found")
	// ErrNotOwner mutation attempted by someone other than the sender
	ErrNotOwner = errors.New("only the sender can modify this message")
	// ErrAlreadyDeleted message was soft deleted
	ErrAlreadyDeleted = errors.New("message already deleted")
	// ErrStorage collaborator failure
	ErrStorage = errors.New("storage failure")
	// ErrValidation malformed payload
	ErrValidation = errors.New("validation failed")
	// ErrDuplicateConnection connection id already registered
	ErrDuplicateConnection = errors.New("duplicate connection")
	// ErrUnknownConnection connection id not registered
	ErrUnknownConnection = errors.New("unknown connection")
	// ErrRateLimited too many inbound events on one connection
	ErrRateLimited = errors.New("rate limited")
)

// ErrorCode short wire code sent back in error acknowledgements
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrAuth):
		return "auth_error"
	case errors.Is(err, ErrNotAuthorized):
		return "not_authorized"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrNotOwner):
		return "not_owner"
	case errors.Is(err, ErrAlreadyDeleted):
		return "already_deleted"
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	default:
		return "internal_error"
	}
}

// StatusCode http status of a domain error
func StatusCode(err error) int {
	switch {
	case errors.Is(err, ErrAuth):
		return fiber.StatusUnauthorized
	case errors.Is(err, ErrNotAuthorized), errors.Is(err, ErrNotOwner):
		return fiber.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, ErrAlreadyDeleted):
		return fiber.StatusConflict
	case errors.Is(err, ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, ErrRateLimited):
		return fiber.StatusTooManyRequests
	default:
		return fiber.StatusInternalServerError
	}
}

// PublicMessage message safe to show to the invoking client
// Storage failures are reported as a generic failure.
func PublicMessage(err error) string {
	if ErrorCode(err) == "internal_error" {
		return "operation failed, please retry"
	}
	return err.Error()
}
