package model

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTokenType is returned when an operation names a type outside
	// the configured set. No mutation has been performed.
	ErrInvalidTokenType = errors.New("invalid token type")

	// ErrInvalidSentRecord is returned for a malformed import or manifest record.
	ErrInvalidSentRecord = errors.New("invalid sent record")

	// ErrDuplicateToken wraps a uniqueness violation reported by the database.
	ErrDuplicateToken = errors.New("duplicate token")

	// ErrContradictoryExport is returned when a caller asks to fetch already
	// exported tokens and mark them exported in the same call.
	ErrContradictoryExport = errors.New("marking exported without fetching unexported tokens")

	// ErrNoTokens is returned when asked to send a message with no tokens.
	ErrNoTokens = errors.New("refusing to send no tokens")

	// ErrInvalidCount is returned when asked to issue or send fewer than one
	// token.
	ErrInvalidCount = errors.New("count must be positive")

	// ErrNoTemplate is returned when no message template exists for a type.
	ErrNoTemplate = errors.New("message template not found")
)

// InvalidRecordError describes a malformed CSV record. It matches
// ErrInvalidSentRecord under errors.Is.
type InvalidRecordError struct {
	Line   int
	Reason string
}

func (e *InvalidRecordError) Error() string {
	return fmt.Sprintf("%s: line %d: %s", ErrInvalidSentRecord, e.Line, e.Reason)
}

func (e *InvalidRecordError) Unwrap() error {
	return ErrInvalidSentRecord
}
