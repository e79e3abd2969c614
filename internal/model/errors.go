package model

import "errors"

var (
	// ErrConflict: prefix or offset mismatch, or a resume with no backing state.
	// The caller restarts its exchange at offset 0.
	ErrConflict = errors.New("swap conflict")
	// ErrInvalidInput: malformed timestamp. Nothing was mutated.
	ErrInvalidInput = errors.New("invalid input")
)
