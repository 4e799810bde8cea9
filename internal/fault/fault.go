// Package fault defines the error taxonomy shared by the stores, the
// service layer and the HTTP handlers.
package fault

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized means the request carried no verified user identity.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound means a conversation, message or listing does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNotParticipant means the authenticated user is not a participant
	// of the target conversation.
	ErrNotParticipant = errors.New("not a participant")

	// ErrValidation means the input was malformed. Use NewValidation to
	// attach a field and reason the client can act on.
	ErrValidation = errors.New("validation failed")

	// ErrTransientStore means the persistence operation timed out or hit a
	// contention conflict. The whole operation is safe to retry, except a
	// raw message append without an idempotency key.
	ErrTransientStore = errors.New("transient store error")

	// ErrRelayDelivery means a pub/sub publish failed. Logged, never fatal,
	// never rolls back the committed mutation.
	ErrRelayDelivery = errors.New("relay delivery failed")
)

// ValidationError carries the offending field so the client can correct
// and resubmit.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidation builds a field-level ValidationError.
func NewValidation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
