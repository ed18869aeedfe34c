package fasta

import "fmt"

// ParseError represents malformed FASTA input.
type ParseError struct {
	Message string
	Cause   error
}

func (e *ParseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("fasta: %s: %v", e.Message, e.Cause)
	}
	return "fasta: " + e.Message
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}
