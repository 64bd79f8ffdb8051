package domain

import (
	"errors"
	"fmt"
)

var (
	ErrChatNotFound          = errors.New("chat not found")
	ErrNotParticipant        = errors.New("user is not a participant of this chat")
	ErrMessageNotFound       = errors.New("message not found")
	ErrEmptyText             = errors.New("message text cannot be empty")
	ErrInvalidIdempotencyKey = errors.New("idempotency key must be 1-255 characters")
	ErrInvalidToken          = errors.New("invalid token")
	ErrClientClosed          = errors.New("client closed")
)

// StoreErrorKind classifies a failure at a store adapter boundary.
type StoreErrorKind string

const (
	StoreConnection    StoreErrorKind = "connection"
	StoreQuery         StoreErrorKind = "query"
	StoreSerialization StoreErrorKind = "serialization"
)

// StoreError is returned by store adapters instead of the raw driver error.
type StoreError struct {
	Kind StoreErrorKind
	Op   string
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func NewStoreError(kind StoreErrorKind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Kind: kind, Op: op, Err: err}
}

// IsStoreKind reports whether err carries a StoreError of the given kind.
func IsStoreKind(err error, kind StoreErrorKind) bool {
	var se *StoreError
	return errors.As(err, &se) && se.Kind == kind
}
