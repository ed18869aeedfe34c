package jobs

import (
	"fmt"

	"github.com/google/uuid"
)

// StoreError represents a job persistence failure
type StoreError struct {
	Message string
	JobID   uuid.UUID
	Cause   error
}

func (e *StoreError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (job %s): %v", e.Message, e.JobID, e.Cause)
	}
	return fmt.Sprintf("%s (job %s)", e.Message, e.JobID)
}

func (e *StoreError) Unwrap() error {
	return e.Cause
}
