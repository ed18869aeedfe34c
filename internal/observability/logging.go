package observability

import (
	"context"
	"io"

	"goa.design/clue/log"
)

// LogContext returns ctx carrying a clue logger. format is "json",
// "terminal", or empty to pick terminal output when stdout is a TTY.
func LogContext(ctx context.Context, format string, debug bool, out io.Writer) context.Context {
	f := log.FormatJSON
	switch format {
	case "terminal":
		f = log.FormatTerminal
	case "json":
	default:
		if log.IsTerminal() {
			f = log.FormatTerminal
		}
	}
	opts := []log.LogOption{log.WithFormat(f)}
	if out != nil {
		opts = append(opts, log.WithOutput(out))
	}
	ctx = log.Context(ctx, opts...)
	if debug {
		ctx = log.Context(ctx, log.WithDebug())
	}
	return ctx
}
