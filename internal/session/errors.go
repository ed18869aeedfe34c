package session

import "fmt"

// StoreError represents a failure to set up the session root.
type StoreError struct {
	Message string
	Cause   error
}

func (e *StoreError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *StoreError) Unwrap() error {
	return e.Cause
}
