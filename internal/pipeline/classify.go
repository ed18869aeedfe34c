package pipeline

import (
	"context"
	"errors"
	"strings"

	"github.com/jonathan/bulk-plasmid-seq/internal/failure"
	"github.com/jonathan/bulk-plasmid-seq/internal/types"
)

// NoReadsAssigned is the pipeline's report that binning matched nothing.
const NoReadsAssigned = "No reads were assigned to any plasmid!"

// EmptyBiobinMessage is reported to callers for an empty biobin run.
const EmptyBiobinMessage = "Biobin Error: " + NoReadsAssigned

// ClassifyPipelineFailure maps a main-stage error to a failure kind. It is the
// only place that inspects pipeline output to decide how a run failed.
func ClassifyPipelineFailure(mode types.Mode, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return failure.Wrap(failure.KindTimeout, err, "analysis pipeline exceeded its time limit")
	case errors.Is(err, context.Canceled):
		return failure.Wrap(failure.KindCanceled, err, "analysis pipeline was canceled")
	}

	if mode == types.ModeBiobin {
		var procErr *ProcessError
		if errors.As(err, &procErr) && reportsNoReads(procErr.Stderr, procErr.Stdout) {
			return &failure.Error{Kind: failure.KindEmptyResult, Message: EmptyBiobinMessage, Cause: err}
		}
	}
	return failure.Wrap(failure.KindRuntime, err, "Runtime error")
}

// reportsNoReads looks for the empty-binning message as a bare line or as the
// final line of a traceback, e.g. "Exception: No reads were assigned to any plasmid!".
func reportsNoReads(outputs ...string) bool {
	for _, out := range outputs {
		for _, line := range strings.Split(out, "\n") {
			line = strings.TrimSpace(line)
			if line == NoReadsAssigned || strings.HasSuffix(line, ": "+NoReadsAssigned) {
				return true
			}
		}
	}
	return false
}
