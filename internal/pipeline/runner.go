package pipeline

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Command is one external process invocation.
type Command struct {
	Name string
	Args []string
	Dir  string
	Env  []string
}

// String renders the command line for logs.
func (c Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Output holds what a process wrote.
type Output struct {
	Stdout string
	Stderr string
}

// Runner starts external processes and waits for them.
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Output, error)
}

// ExecRunner runs commands with os/exec. Cancelling ctx kills the process.
type ExecRunner struct {
	// WaitDelay bounds how long to wait for output pipes after a kill.
	WaitDelay time.Duration
}

// Run executes cmd and captures its output. A non-zero exit, or a context that
// ends first, yields a *ProcessError carrying the captured stderr.
func (r ExecRunner) Run(ctx context.Context, c Command) (*Output, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	cmd.WaitDelay = r.WaitDelay
	if cmd.WaitDelay == 0 {
		cmd.WaitDelay = 5 * time.Second
	}

	// Capture both stdout and stderr
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	out := &Output{Stdout: stdout.String(), Stderr: stderr.String()}
	if runErr == nil {
		return out, nil
	}

	procErr := &ProcessError{
		Command:  c.Name,
		ExitCode: -1,
		Stdout:   out.Stdout,
		Stderr:   out.Stderr,
		Cause:    runErr,
	}
	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		procErr.ExitCode = exitErr.ExitCode()
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		procErr.Cause = ctxErr
	}
	return out, procErr
}
