package leaderboard

import (
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("team not found")
var ErrDuplicateName = errors.New("team with this name already exists")
var ErrUnsupportedCommand = errors.New("unsupported command")

// ValidationError reports a missing or malformed required field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

// StoreError wraps an unexpected persistence failure.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return fmt.Sprintf("store %s: %v", e.Op, e.Err) }
func (e *StoreError) Unwrap() error { return e.Err }

// Kind classifies an error returned by the Service. Transports map it to
// their own failure signal (HTTP status, ack kind).
type Kind string

const (
	KindNone          Kind = ""
	KindValidation    Kind = "validation"
	KindNotFound      Kind = "not_found"
	KindDuplicateName Kind = "duplicate_name"
	KindStore         Kind = "store"
)

func KindOf(err error) Kind {
	var ve *ValidationError
	switch {
	case err == nil:
		return KindNone
	case errors.As(err, &ve), errors.Is(err, ErrUnsupportedCommand):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrDuplicateName):
		return KindDuplicateName
	default:
		return KindStore
	}
}

// storeErr keeps domain sentinels visible and wraps everything else.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrDuplicateName) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// Message is the caller-facing text for err. Wrapped detail (which name,
// which driver error) stays in the logs.
func Message(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Message
	}
	switch KindOf(err) {
	case KindNone:
		return ""
	case KindValidation:
		return "Unsupported event"
	case KindNotFound:
		return "Team not found"
	case KindDuplicateName:
		return "Team with this name already exists"
	default:
		return "Server Error"
	}
}
