// Package tools wraps the auxiliary helper scripts: the consensus model
// lister and the restriction enzyme cut-site finder.
package tools

import (
	"strings"

	"github.com/jonathan/bulk-plasmid-seq/internal/pipeline"
)

// Interpreter is the python executable and the flags placed before a script.
type Interpreter struct {
	Path string
	Args []string
}

func (i Interpreter) command(script string, args ...string) pipeline.Command {
	full := make([]string, 0, len(i.Args)+1+len(args))
	full = append(full, i.Args...)
	full = append(full, script)
	full = append(full, args...)
	return pipeline.Command{Name: i.Path, Args: full}
}

// outputLines splits script output into trimmed, non-empty lines.
func outputLines(stdout string) []string {
	var lines []string
	for _, line := range strings.Split(stdout, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
