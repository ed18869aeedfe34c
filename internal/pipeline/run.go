// Package pipeline provides the high-level orchestration of one analysis run:
// content renaming, the external pipeline, and result post-processing.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"goa.design/clue/log"

	"github.com/jonathan/bulk-plasmid-seq/internal/failure"
	"github.com/jonathan/bulk-plasmid-seq/internal/options"
	"github.com/jonathan/bulk-plasmid-seq/internal/pipeline/steps"
	"github.com/jonathan/bulk-plasmid-seq/internal/results"
	"github.com/jonathan/bulk-plasmid-seq/internal/types"
)

const tracerName = "github.com/jonathan/bulk-plasmid-seq/internal/pipeline"

// State is the orchestrator's position in a run.
type State string

const (
	StateIdle              State = "idle"
	StateRenamingContent   State = "renaming_content"
	StateRunningPipeline   State = "running_pipeline"
	StateProcessingResults State = "processing_results"
	StateDone              State = "done"
	StateAborted           State = "aborted"
)

var transitions = map[State][]State{
	StateIdle:              {StateRenamingContent, StateRunningPipeline, StateProcessingResults, StateAborted},
	StateRenamingContent:   {StateRunningPipeline, StateAborted},
	StateRunningPipeline:   {StateProcessingResults, StateAborted},
	StateProcessingResults: {StateDone, StateAborted},
}

// CanTransitionTo reports whether the orchestrator may move from s to next.
func (s State) CanTransitionTo(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether s is Done or Aborted.
func (s State) Terminal() bool {
	return s == StateDone || s == StateAborted
}

// ProgressEvent represents a progress update during pipeline execution
type ProgressEvent struct {
	Step     string    `json:"step"`
	Category string    `json:"category"`
	Status   string    `json:"status"`
	State    State     `json:"state"`
	Message  string    `json:"message"`
	Time     time.Time `json:"time"`
}

// ProgressCallback is called when pipeline progress occurs
type ProgressCallback func(event ProgressEvent)

// Config locates the external scripts and bounds their run time.
type Config struct {
	Python          string
	PythonArgs      []string
	PipelineScript  string
	ResultsScript   string
	PipelineTimeout time.Duration
	ResultsTimeout  time.Duration
}

// Run describes one analysis to orchestrate.
type Run struct {
	Mode       types.Mode
	Args       []string
	RefDir     string
	OutDir     string
	Renamed    types.RenameMap
	Bundle     types.ResultBundle
	OnProgress ProgressCallback
}

// Orchestrator runs the stages of an analysis strictly in order.
type Orchestrator struct {
	runner  Runner
	renamer ContentRenamer
	cfg     Config
	tracer  trace.Tracer
}

// NewOrchestrator creates an orchestrator. A nil renamer uses FastaRenamer.
func NewOrchestrator(runner Runner, renamer ContentRenamer, cfg Config) *Orchestrator {
	if renamer == nil {
		renamer = FastaRenamer{}
	}
	return &Orchestrator{
		runner:  runner,
		renamer: renamer,
		cfg:     cfg,
		tracer:  otel.Tracer(tracerName),
	}
}

// execution is the mutable state of one Execute or Restore call.
type execution struct {
	run        *Run
	state      State
	statuses   map[string]string
	result     *types.RunResult
	skipChecks bool
}

func newExecution(run *Run) *execution {
	bundle := run.Bundle
	return &execution{
		run:      run,
		state:    StateIdle,
		statuses: map[string]string{},
		result:   &types.RunResult{Data: &bundle},
	}
}

func (ex *execution) transition(next State) error {
	if !ex.state.CanTransitionTo(next) {
		return &TransitionError{From: ex.state, To: next}
	}
	ex.state = next
	return nil
}

func (ex *execution) emit(step, status, message string) {
	ex.statuses[step] = status
	if ex.run.OnProgress == nil {
		return
	}
	ex.run.OnProgress(ProgressEvent{
		Step:     step,
		Category: steps.CategoryOf(step),
		Status:   status,
		State:    ex.state,
		Message:  message,
		Time:     time.Now(),
	})
}

// Execute runs content renaming (when files were renamed), the external
// pipeline, and post-processing. On failure the partially filled result is
// returned together with the classified error.
func (o *Orchestrator) Execute(ctx context.Context, run Run) (*types.RunResult, error) {
	ex := newExecution(&run)
	ctx = log.With(ctx, log.KV{K: "mode", V: string(run.Mode)})

	if len(run.Renamed) > 0 {
		err := o.stage(ctx, ex, steps.StepRenameContent, StateRenamingContent, 0, func(ctx context.Context) error {
			if err := o.renamer.RenameContent(ctx, run.RefDir, run.Renamed); err != nil {
				return classifyStage(err, "Error renaming sequences within renamed files")
			}
			return nil
		})
		if err != nil {
			return ex.result, err
		}
	} else {
		ex.emit(steps.StepRenameContent, types.StageStatusSkipped, "no renamed files")
	}

	err := o.stage(ctx, ex, steps.StepRunPipeline, StateRunningPipeline, o.cfg.PipelineTimeout, func(ctx context.Context) error {
		cmd := o.python(o.cfg.PipelineScript, run.Args...)
		log.Info(ctx, log.KV{K: "msg", V: "running analysis pipeline"}, log.KV{K: "cmd", V: cmd.String()})
		_, err := o.runner.Run(ctx, cmd)
		return ClassifyPipelineFailure(run.Mode, err)
	})
	if err != nil {
		return ex.result, err
	}

	if err := o.processResults(ctx, ex); err != nil {
		return ex.result, err
	}
	return ex.result, nil
}

// Restore re-runs only post-processing over outputs of an earlier run.
func (o *Orchestrator) Restore(ctx context.Context, run Run) (*types.RunResult, error) {
	ex := newExecution(&run)
	ex.skipChecks = true
	ctx = log.With(ctx, log.KV{K: "mode", V: "restore"})

	ex.emit(steps.StepRenameContent, types.StageStatusSkipped, "restoring earlier run")
	ex.emit(steps.StepRunPipeline, types.StageStatusSkipped, "restoring earlier run")

	if err := o.processResults(ctx, ex); err != nil {
		return ex.result, err
	}
	return ex.result, nil
}

func (o *Orchestrator) processResults(ctx context.Context, ex *execution) error {
	run := ex.run
	err := o.stage(ctx, ex, steps.StepProcessResults, StateProcessingResults, o.cfg.ResultsTimeout, func(ctx context.Context) error {
		cmd := o.python(o.cfg.ResultsScript,
			dirArg(run.RefDir),
			filepath.Join(run.OutDir, options.ConsensusDir),
			filepath.Join(run.OutDir, options.AlignmentFile),
		)
		out, err := o.runner.Run(ctx, cmd)
		if err != nil {
			return classifyStage(err, "Runtime error")
		}
		stats, err := extractJSON(out.Stdout)
		if err != nil {
			return failure.Wrap(failure.KindRuntime, err, "Runtime error")
		}
		ex.result.Stats = stats
		summary, err := results.Summarize(stats)
		if err != nil {
			log.Warnf(ctx, "could not grade result statistics: %v", err)
		}
		ex.result.Summary = summary
		return nil
	})
	if err != nil {
		return err
	}
	return ex.transition(StateDone)
}

// stage runs fn as one named stage: dependency check, state transition,
// tracing, optional timeout, and progress reporting.
func (o *Orchestrator) stage(ctx context.Context, ex *execution, name string, state State, timeout time.Duration, fn func(context.Context) error) error {
	if !ex.skipChecks {
		if err := steps.ValidateDependencies(func(s string) string { return ex.statuses[s] }, name); err != nil {
			ex.abort()
			return failure.WithStage(failure.Wrap(failure.KindRuntime, err, "stage dependencies not met"), name)
		}
	}
	if err := ex.transition(state); err != nil {
		ex.abort()
		return failure.WithStage(failure.Wrap(failure.KindRuntime, err, "stage out of order"), name)
	}

	ctx, span := o.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("stage", name),
		attribute.String("mode", string(ex.run.Mode)),
		attribute.String("session", ex.run.Bundle.ResServerID),
	))
	defer span.End()

	stageCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		stageCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ex.emit(name, types.StageStatusInProgress, "")
	log.Info(ctx, log.KV{K: "msg", V: "stage started"}, log.KV{K: "stage", V: name})
	start := time.Now()

	if err := fn(stageCtx); err != nil {
		staged := failure.WithStage(err, name)
		span.RecordError(staged)
		span.SetStatus(codes.Error, staged.Message)
		log.Error(ctx, staged, log.KV{K: "msg", V: "stage failed"}, log.KV{K: "stage", V: name},
			log.KV{K: "kind", V: string(staged.Kind)})
		ex.emit(name, types.StageStatusFailed, staged.Error())
		ex.abort()
		return staged
	}

	log.Info(ctx, log.KV{K: "msg", V: "stage completed"}, log.KV{K: "stage", V: name},
		log.KV{K: "duration_ms", V: time.Since(start).Milliseconds()})
	ex.emit(name, types.StageStatusCompleted, "")
	return nil
}

func (ex *execution) abort() {
	if !ex.state.Terminal() {
		ex.state = StateAborted
	}
}

func (o *Orchestrator) python(script string, args ...string) Command {
	full := make([]string, 0, len(o.cfg.PythonArgs)+1+len(args))
	full = append(full, o.cfg.PythonArgs...)
	full = append(full, script)
	full = append(full, args...)
	return Command{Name: o.cfg.Python, Args: full}
}

// classifyStage keeps existing classifications and marks everything else as runtime.
func classifyStage(err error, message string) error {
	var classified *failure.Error
	if errors.As(err, &classified) {
		return err
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return failure.Wrap(failure.KindTimeout, err, "stage exceeded its time limit")
	case errors.Is(err, context.Canceled):
		return failure.Wrap(failure.KindCanceled, err, "stage was canceled")
	}
	return failure.Wrap(failure.KindRuntime, err, message)
}

// extractJSON returns the statistics document from post-processing output:
// the whole output when it is JSON, else its last JSON line.
func extractJSON(stdout string) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace([]byte(stdout))
	if len(trimmed) > 0 && json.Valid(trimmed) {
		return json.RawMessage(trimmed), nil
	}
	lines := strings.Split(stdout, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		if json.Valid([]byte(line)) {
			return json.RawMessage(line), nil
		}
		break
	}
	return nil, &OutputError{Message: "post-processing output is not valid JSON", Output: stdout}
}

// dirArg renders a directory with a trailing separator.
func dirArg(dir string) string {
	return strings.TrimRight(dir, string(filepath.Separator)) + string(filepath.Separator)
}
