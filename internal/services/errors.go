package services

import (
	"errors"

	"github.com/lanefeed/lanefeed/pkg/models"
)

// Sentinel errors the handlers map onto HTTP statuses. Anything else
// a service returns is treated as a transient/internal failure (5xx).
var (
	ErrNotFound           = errors.New("not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrSessionInvalid     = errors.New("session invalid or expired")
	ErrNoValidEvents      = errors.New("no valid engagement events in request")
)

// DuplicateLinkError carries the already-saved entry so the conflict
// response can return it alongside the error message.
type DuplicateLinkError struct {
	Existing *models.LibraryEntry
}

func (e *DuplicateLinkError) Error() string {
	return "link already saved"
}
