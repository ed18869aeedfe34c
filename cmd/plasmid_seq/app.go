package main

import (
	"context"
	"fmt"
	"os"

	"goa.design/clue/log"

	"github.com/jonathan/bulk-plasmid-seq/internal/compress"
	"github.com/jonathan/bulk-plasmid-seq/internal/config"
	"github.com/jonathan/bulk-plasmid-seq/internal/db"
	"github.com/jonathan/bulk-plasmid-seq/internal/jobs"
	"github.com/jonathan/bulk-plasmid-seq/internal/kvstore"
	"github.com/jonathan/bulk-plasmid-seq/internal/observability"
	"github.com/jonathan/bulk-plasmid-seq/internal/pipeline"
	"github.com/jonathan/bulk-plasmid-seq/internal/results"
	"github.com/jonathan/bulk-plasmid-seq/internal/runs"
	"github.com/jonathan/bulk-plasmid-seq/internal/session"
	"github.com/jonathan/bulk-plasmid-seq/internal/tools"
)

// interruptedMessage is recorded on jobs a previous process left unfinished.
const interruptedMessage = "server restarted before the job finished"

// loadSettings reads the settings and returns them with a logging context.
func loadSettings(ctx context.Context) (context.Context, *config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return ctx, nil, err
	}
	if debugLogs {
		cfg.Debug = true
	}
	ctx = observability.LogContext(ctx, cfg.LogFormat, cfg.Debug, os.Stderr)
	return ctx, cfg, nil
}

// app holds the wired services shared by the subcommands.
type app struct {
	cfg      *config.Config
	store    *session.Store
	svc      *runs.Service
	manager  *jobs.Manager
	jobStore jobs.Store
	models   *tools.ModelCatalog
	cutSites *tools.CutSiteFinder
	closers  []func()
}

// newApp wires the service graph described by cfg. Close must be called.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	store, err := session.NewStore(cfg.SessionRoot)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, store: store}
	runner := pipeline.ExecRunner{}
	var renamer pipeline.ContentRenamer
	if cfg.RenameScript != "" {
		renamer = pipeline.ScriptRenamer{Runner: runner, Python: cfg.Python, Args: cfg.PythonArgs, Script: cfg.RenameScript}
	}
	orch := pipeline.NewOrchestrator(runner, renamer, pipeline.Config{
		Python:          cfg.Python,
		PythonArgs:      cfg.PythonArgs,
		PipelineScript:  cfg.PipelineScript,
		ResultsScript:   cfg.ResultsScript,
		PipelineTimeout: cfg.PipelineTimeout,
		ResultsTimeout:  cfg.ResultsTimeout,
	})

	jobStore, err := a.openJobStore(ctx)
	if err != nil {
		return nil, err
	}
	a.jobStore = jobStore
	a.manager = jobs.NewManager(ctx, jobStore, cfg.MaxConcurrentRuns)

	a.svc = runs.NewService(store, compress.NewNormalizer(), orch, a.manager, results.NewPackager(store, cfg.ArchiveLabel))

	python := tools.Interpreter{Path: cfg.Python, Args: cfg.PythonArgs}
	a.models = tools.NewModelCatalog(runner, python, cfg.ModelsScript, cfg.ModelsCache)
	a.cutSites = tools.NewCutSiteFinder(runner, python, cfg.CutSiteScript, store)
	return a, nil
}

// openJobStore picks Postgres, then badger, then memory.
func (a *app) openJobStore(ctx context.Context) (jobs.Store, error) {
	switch {
	case a.cfg.DatabaseURL != "":
		database, err := db.Connect(ctx, a.cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := database.EnsureSchema(ctx); err != nil {
			database.Close()
			return nil, err
		}
		a.closers = append(a.closers, database.Close)
		log.Info(ctx, log.KV{K: "msg", V: "job store ready"}, log.KV{K: "backend", V: "postgres"})
		return database.Jobs(), nil

	case a.cfg.StateDir != "":
		kv, err := kvstore.Open(a.cfg.StateDir)
		if err != nil {
			return nil, err
		}
		n, err := kv.MarkInterrupted(ctx, interruptedMessage)
		if err != nil {
			_ = kv.Close()
			return nil, fmt.Errorf("failed to recover job store: %w", err)
		}
		a.closers = append(a.closers, func() { _ = kv.Close() })
		log.Info(ctx, log.KV{K: "msg", V: "job store ready"}, log.KV{K: "backend", V: "badger"},
			log.KV{K: "interrupted", V: n})
		return kv, nil

	default:
		log.Debug(ctx, log.KV{K: "msg", V: "job store ready"}, log.KV{K: "backend", V: "memory"})
		return jobs.NewMemoryStore(), nil
	}
}

// Close stops background jobs and releases the job store.
func (a *app) Close(ctx context.Context) {
	if a.manager != nil {
		if err := a.manager.Shutdown(ctx); err != nil {
			log.Errorf(ctx, err, "failed to stop jobs")
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
