package args

import (
	"errors"
	"fmt"
)

var (
	ErrUnspecifiedValue  = errors.New("args: unspecified value")
	ErrTooLarge          = errors.New("args: record too large for length prefix")
	ErrTruncated         = errors.New("args: truncated buffer")
	ErrInvalidLength     = errors.New("args: invalid length prefix")
	ErrMissingTerminator = errors.New("args: missing string terminator")
	ErrInvalidText       = errors.New("args: wide string is not valid UTF-8")
)

// RecordError locates an encode or parse failure within the argument list.
type RecordError struct {
	Position int
	Tag      Tag
	Err      error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("args: record %d (%s): %v", e.Position, e.Tag, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}
