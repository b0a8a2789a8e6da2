package tonal

import (
	"errors"

	"github.com/RyanBlaney/sonido-harmony/algorithms/pitch"
)

var (
	// ErrUndeterminedKey means the profile carries no usable key evidence:
	// it is silent, or so flat that no template correlates with it.
	ErrUndeterminedKey = errors.New("undetermined key")

	// ErrIncompleteChord means fewer than three distinct pitch classes
	// sound, or no root explains three of them as a tertian chord.
	ErrIncompleteChord = errors.New("incomplete chord")

	// ErrEmptySimultaneity is returned when labeling a segment where nothing sounds
	ErrEmptySimultaneity = errors.New("empty simultaneity")

	// ErrInvalidInput is shared with the pitch package
	ErrInvalidInput = pitch.ErrInvalidInput
)
