package tools

import "fmt"

// ToolError represents a failed helper script invocation.
type ToolError struct {
	Tool    string
	Message string
	Cause   error
}

func (e *ToolError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Tool, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Tool, e.Message)
}

func (e *ToolError) Unwrap() error {
	return e.Cause
}
