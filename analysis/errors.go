package analysis

import (
	"context"
	"errors"

	"github.com/RyanBlaney/sonido-harmony/algorithms/pitch"
	"github.com/RyanBlaney/sonido-harmony/algorithms/tonal"
	"github.com/RyanBlaney/sonido-harmony/transcode"
)

// ErrPanic marks an analysis that panicked and was recovered
var ErrPanic = errors.New("analysis panicked")

// Error kind names used in reports, metrics and HTTP responses
const (
	ErrorKindUndeterminedKey   = "undetermined_key"
	ErrorKindIncompleteChord   = "incomplete_chord"
	ErrorKindEmptySimultaneity = "empty_simultaneity"
	ErrorKindInvalidInput      = "invalid_input"
	ErrorKindDecodeFailed      = "decode_failed"
	ErrorKindTimeout           = "timeout"
	ErrorKindPanic             = "panic"
	ErrorKindUnknown           = "unknown"
)

// ErrorKind maps an error to its kind name. nil maps to "".
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, tonal.ErrUndeterminedKey):
		return ErrorKindUndeterminedKey
	case errors.Is(err, tonal.ErrIncompleteChord):
		return ErrorKindIncompleteChord
	case errors.Is(err, tonal.ErrEmptySimultaneity):
		return ErrorKindEmptySimultaneity
	case errors.Is(err, pitch.ErrInvalidInput):
		return ErrorKindInvalidInput
	case errors.Is(err, transcode.ErrDecodeFailed):
		return ErrorKindDecodeFailed
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ErrorKindTimeout
	case errors.Is(err, ErrPanic):
		return ErrorKindPanic
	default:
		return ErrorKindUnknown
	}
}

// ErrorKinds lists every kind name ErrorKind can return for a non-nil error
func ErrorKinds() []string {
	return []string{
		ErrorKindUndeterminedKey, ErrorKindIncompleteChord, ErrorKindEmptySimultaneity, ErrorKindInvalidInput,
		ErrorKindDecodeFailed, ErrorKindTimeout, ErrorKindPanic, ErrorKindUnknown,
	}
}
