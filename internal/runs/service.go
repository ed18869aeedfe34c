// Package runs composes staging, decompression, option compilation, the
// pipeline orchestrator, background jobs and result packaging into the
// operations exposed by the HTTP API and the CLI.
package runs

import (
	"context"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"goa.design/clue/log"

	"github.com/jonathan/bulk-plasmid-seq/internal/compress"
	"github.com/jonathan/bulk-plasmid-seq/internal/failure"
	"github.com/jonathan/bulk-plasmid-seq/internal/jobs"
	"github.com/jonathan/bulk-plasmid-seq/internal/options"
	"github.com/jonathan/bulk-plasmid-seq/internal/pipeline"
	"github.com/jonathan/bulk-plasmid-seq/internal/results"
	"github.com/jonathan/bulk-plasmid-seq/internal/session"
	"github.com/jonathan/bulk-plasmid-seq/internal/types"
)

// Service runs analyses over staged sessions.
type Service struct {
	store        *session.Store
	normalizer   *compress.Normalizer
	orchestrator *pipeline.Orchestrator
	jobs         *jobs.Manager
	packager     *results.Packager
	now          func() time.Time
}

// NewService wires the service. manager may be nil for callers that only use
// the synchronous operations.
func NewService(store *session.Store, normalizer *compress.Normalizer, orchestrator *pipeline.Orchestrator,
	manager *jobs.Manager, packager *results.Packager) *Service {
	if normalizer == nil {
		normalizer = compress.NewNormalizer()
	}
	return &Service{
		store:        store,
		normalizer:   normalizer,
		orchestrator: orchestrator,
		jobs:         manager,
		packager:     packager,
		now:          time.Now,
	}
}

// Store returns the session store the service works on.
func (s *Service) Store() *session.Store {
	return s.store
}

// prepared is a validated, compiled run waiting to execute.
type prepared struct {
	req  *RunRequest
	plan *options.Plan
}

// prepare validates and compiles req, then allocates the output session.
// Nothing is written before validation has passed.
func (s *Service) prepare(ctx context.Context, req *RunRequest) (*prepared, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	for _, id := range []string{req.ReadServerID, req.RefServerID} {
		if !s.store.Exists(id) {
			return nil, failure.NotFoundf("session %s does not exist", id)
		}
	}
	if req.Options.Name == "" {
		req.Options.Name = types.RandomRunName()
	}

	readDir, _ := s.store.Dir(req.ReadServerID)
	refDir, _ := s.store.Dir(req.RefServerID)
	in := options.Input{
		Options:     req.Options,
		ReadDir:     readDir,
		ReadFiles:   req.ReadFiles,
		RefDir:      refDir,
		RefFiles:    req.RefFiles,
		RefServerID: req.RefServerID,
		Date:        s.now().UTC(),
	}
	if _, err := options.Compile(in); err != nil {
		return nil, err
	}

	resID, err := s.store.Create()
	if err != nil {
		return nil, err
	}
	in.ResServerID = resID
	in.OutDir, _ = s.store.Dir(resID)
	plan, err := options.Compile(in)
	if err != nil {
		s.discard(ctx, resID)
		return nil, err
	}
	log.Info(ctx, log.KV{K: "msg", V: "run compiled"}, log.KV{K: "session_id", V: resID},
		log.KV{K: "mode", V: string(req.Options.Mode)}, log.KV{K: "name", V: req.Options.Name})
	return &prepared{req: req, plan: plan}, nil
}

func (s *Service) discard(ctx context.Context, id string) {
	if err := s.store.Remove(id, ""); err != nil {
		log.Warnf(ctx, "failed to remove session %s: %v", id, err)
	}
}

// execute decompresses inputs, writes the run artifacts and drives the
// orchestrator. It holds the single-writer lock of every session involved.
func (s *Service) execute(ctx context.Context, p *prepared, progress pipeline.ProgressCallback) (*types.RunResult, error) {
	req, plan := p.req, p.plan
	partial := &types.RunResult{Data: &plan.Bundle}

	unlock := s.store.Lock(req.ReadServerID, req.RefServerID, plan.Bundle.ResServerID)
	defer unlock()

	readDir, _ := s.store.Dir(req.ReadServerID)
	refDir, _ := s.store.Dir(req.RefServerID)
	outDir, _ := s.store.Dir(plan.Bundle.ResServerID)

	if _, err := s.normalizer.Normalize(ctx, readDir, req.ReadFiles); err != nil {
		return partial, decompressFailure(err)
	}
	if _, err := s.normalizer.Normalize(ctx, refDir, req.RefFiles); err != nil {
		return partial, decompressFailure(err)
	}
	if err := options.Materialize(ctx, plan); err != nil {
		return partial, err
	}

	return s.orchestrator.Execute(ctx, pipeline.Run{
		Mode:       req.Options.Mode,
		Args:       plan.Args,
		RefDir:     refDir,
		OutDir:     outDir,
		Renamed:    req.Renamed,
		Bundle:     plan.Bundle,
		OnProgress: progress,
	})
}

func decompressFailure(err error) error {
	switch failure.KindOf(err) {
	case failure.KindCanceled, failure.KindTimeout:
		return failure.WithStage(err, "decompress")
	}
	return failure.WithStage(failure.Wrap(failure.KindStorage, err, "error decompressing input files"), "decompress")
}

// Submit validates and compiles req synchronously, then runs it as a
// background job. Validation errors are returned before any job exists.
func (s *Service) Submit(ctx context.Context, req *RunRequest) (*types.Job, error) {
	if s.jobs == nil {
		return nil, failure.New(failure.KindRuntime, "background jobs are not available")
	}
	p, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	spec := jobs.Spec{Kind: types.JobKindRun, Mode: req.Options.Mode, ResServerID: p.plan.Bundle.ResServerID}
	return s.jobs.Submit(ctx, spec, func(jobCtx context.Context, progress pipeline.ProgressCallback) (*types.RunResult, error) {
		return s.execute(jobCtx, p, progress)
	})
}

// Run validates, compiles and executes req in the caller's goroutine.
func (s *Service) Run(ctx context.Context, req *RunRequest, progress pipeline.ProgressCallback) (*types.RunResult, error) {
	p, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.execute(ctx, p, progress)
}

// restoreRun loads the persisted parameters of a result session and builds
// the post-processing-only run.
func (s *Service) restoreRun(req *RestoreRequest) (*pipeline.Run, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if !s.store.Exists(req.ResServerID) {
		return nil, failure.NotFoundf("cannot restore session: result session %s does not exist", req.ResServerID)
	}
	if !s.store.Exists(req.RefServerID) {
		return nil, failure.NotFoundf("cannot restore session: reference session %s does not exist", req.RefServerID)
	}
	resDir, _ := s.store.Dir(req.ResServerID)
	refDir, _ := s.store.Dir(req.RefServerID)

	params, err := options.ReadRunParams(filepath.Join(resDir, options.RunParamsFile))
	if err != nil {
		return nil, err
	}

	name := req.Name
	if name == "" {
		name = params.Name
	}
	refFile := req.RefFile
	if refFile == "" {
		refFile = restoredRefFile(params.PlasmidReferenceFiles)
	}
	return &pipeline.Run{
		Mode:   params.Mode,
		RefDir: refDir,
		OutDir: resDir,
		Bundle: types.ResultBundle{
			AlignmentFile: options.AlignmentFile,
			RefServerID:   req.RefServerID,
			ResServerID:   req.ResServerID,
			OrigRefFiles:  params.PlasmidReferenceFiles,
			RefFile:       refFile,
			Name:          name,
			Date:          params.Date,
			RunParams:     params,
		},
	}, nil
}

func restoredRefFile(refs []string) string {
	switch len(refs) {
	case 0:
		return ""
	case 1:
		return compress.StripCompression(refs[0])
	default:
		return options.CombinedRefFile
	}
}

// Restore post-processes an existing result session as a background job.
func (s *Service) Restore(ctx context.Context, req *RestoreRequest) (*types.Job, error) {
	if s.jobs == nil {
		return nil, failure.New(failure.KindRuntime, "background jobs are not available")
	}
	run, err := s.restoreRun(req)
	if err != nil {
		return nil, err
	}
	spec := jobs.Spec{Kind: types.JobKindRestore, Mode: run.Mode, ResServerID: req.ResServerID}
	return s.jobs.Submit(ctx, spec, func(jobCtx context.Context, progress pipeline.ProgressCallback) (*types.RunResult, error) {
		return s.restore(jobCtx, *run, progress)
	})
}

// RestoreSync post-processes an existing result session in the caller's goroutine.
func (s *Service) RestoreSync(ctx context.Context, req *RestoreRequest, progress pipeline.ProgressCallback) (*types.RunResult, error) {
	run, err := s.restoreRun(req)
	if err != nil {
		return nil, err
	}
	return s.restore(ctx, *run, progress)
}

func (s *Service) restore(ctx context.Context, run pipeline.Run, progress pipeline.ProgressCallback) (*types.RunResult, error) {
	unlock := s.store.Lock(run.Bundle.RefServerID, run.Bundle.ResServerID)
	defer unlock()
	run.OnProgress = progress
	return s.orchestrator.Restore(ctx, run)
}

// Package archives a result session into a new session.
func (s *Service) Package(ctx context.Context, req *PackageRequest) (*results.Archive, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.packager.Package(ctx, req.ServerID)
}

// Job returns a job by id.
func (s *Service) Job(ctx context.Context, id uuid.UUID) (*types.Job, error) {
	if s.jobs == nil {
		return nil, failure.NotFoundf("job %s not found", id)
	}
	return s.jobs.Get(ctx, id)
}

// Jobs returns the job manager, or nil when only synchronous runs are wired.
func (s *Service) Jobs() *jobs.Manager {
	return s.jobs
}
