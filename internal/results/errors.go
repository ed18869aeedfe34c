package results

import "fmt"

// StatsError represents an unreadable statistics payload
type StatsError struct {
	Message string
	Cause   error
}

func (e *StatsError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *StatsError) Unwrap() error {
	return e.Cause
}

// ArchiveError represents a failure while writing a results archive
type ArchiveError struct {
	Message string
	Path    string
	Cause   error
}

func (e *ArchiveError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %v", e.Message, e.Path, e.Cause)
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Path)
}

func (e *ArchiveError) Unwrap() error {
	return e.Cause
}
