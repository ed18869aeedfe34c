package pipeline

import (
	"fmt"
	"strings"
)

// ProcessError represents an external process that failed or was stopped
type ProcessError struct {
	Command  string
	ExitCode int
	Stdout   string
	Stderr   string
	Cause    error
}

func (e *ProcessError) Error() string {
	msg := fmt.Sprintf("%s exited with code %d", e.Command, e.ExitCode)
	if last := lastLine(e.Stderr); last != "" {
		msg += ": " + last
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s (%v)", msg, e.Cause)
	}
	return msg
}

func (e *ProcessError) Unwrap() error {
	return e.Cause
}

// TransitionError represents an illegal orchestrator state change
type TransitionError struct {
	From State
	To   State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid orchestrator transition from %s to %s", e.From, e.To)
}

// OutputError represents unusable output from the post-processing stage
type OutputError struct {
	Message string
	Output  string
}

func (e *OutputError) Error() string {
	return fmt.Sprintf("%s: %q", e.Message, truncate(e.Output, 200))
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\r\n"), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
