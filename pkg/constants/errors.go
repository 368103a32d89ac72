package constants

import "errors"

// Errors
var (
	ErrClosed          = errors.New("client is closed")
	ErrNilQuery        = errors.New("query must not be nil")
	ErrNilEntity       = errors.New("entity must not be nil")
	ErrNilHandler      = errors.New("handler must not be nil")
	ErrNoBaseURL       = errors.New("base url not set")
	ErrNoMarshaler     = errors.New("marshaler is not set")
	ErrInvalidResponse = errors.New("invalid backend response")
	ErrEmptyTopicID    = errors.New("topic id must not be empty")
	ErrMissingKind     = errors.New("entity kind must not be empty")
	ErrMissingID       = errors.New("entity id must not be empty")
)
