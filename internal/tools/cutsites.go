package tools

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/jonathan/bulk-plasmid-seq/internal/failure"
	"github.com/jonathan/bulk-plasmid-seq/internal/pipeline"
	"github.com/jonathan/bulk-plasmid-seq/internal/session"
)

// CutSiteFinder locates restriction enzyme cut sites in the references of a
// staged session.
type CutSiteFinder struct {
	runner pipeline.Runner
	python Interpreter
	script string
	store  *session.Store
}

// NewCutSiteFinder creates a finder that runs script against sessions in store.
func NewCutSiteFinder(runner pipeline.Runner, python Interpreter, script string, store *session.Store) *CutSiteFinder {
	return &CutSiteFinder{runner: runner, python: python, script: script, store: store}
}

// Offsets runs the finder over every reference in the session for the
// enzyme assignment string (e.g. "ref_a:EcoRI,ref_b:BsaI") and returns the
// script's answer: its first output line, as JSON when it parses.
func (f *CutSiteFinder) Offsets(ctx context.Context, serverID, enzymes string) (json.RawMessage, error) {
	if err := session.ValidateID(serverID); err != nil {
		return nil, failure.Wrap(failure.KindValidation, err, "invalid session id")
	}
	if strings.TrimSpace(enzymes) == "" {
		return nil, failure.Validationf("no restriction enzymes given")
	}
	dir, err := f.store.Dir(serverID)
	if err != nil {
		return nil, failure.Wrap(failure.KindValidation, err, "invalid session id")
	}
	if !f.store.Exists(serverID) {
		return nil, failure.NotFoundf("reference session %s does not exist", serverID)
	}

	out, err := f.runner.Run(ctx, f.python.command(f.script, dir, enzymes))
	if err != nil {
		return nil, failure.Wrap(failure.KindRuntime, &ToolError{Tool: "cut-sites", Message: "finder failed", Cause: err}, "error finding offsets")
	}
	lines := outputLines(out.Stdout)
	if len(lines) == 0 {
		return nil, failure.New(failure.KindRuntime, "error finding offsets: script printed nothing")
	}
	first := []byte(lines[0])
	if json.Valid(first) {
		return json.RawMessage(first), nil
	}
	quoted, err := json.Marshal(lines[0])
	if err != nil {
		return nil, err
	}
	return json.RawMessage(quoted), nil
}
