package tools

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"goa.design/clue/log"

	"github.com/jonathan/bulk-plasmid-seq/internal/failure"
	"github.com/jonathan/bulk-plasmid-seq/internal/pipeline"
)

// ModelCatalog lists the consensus models the installed pipeline supports.
// The first successful listing is cached in a JSON file and served from
// there afterwards.
type ModelCatalog struct {
	runner    pipeline.Runner
	python    Interpreter
	script    string
	cachePath string

	mu sync.Mutex
}

// NewModelCatalog creates a catalog backed by script and cachePath.
func NewModelCatalog(runner pipeline.Runner, python Interpreter, script, cachePath string) *ModelCatalog {
	return &ModelCatalog{runner: runner, python: python, script: script, cachePath: cachePath}
}

// Models returns the model names, running the listing script only when no
// usable cache exists.
func (c *ModelCatalog) Models(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if models, err := c.readCache(); err == nil {
		return models, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		log.Warn(ctx, log.KV{K: "msg", V: "ignoring unreadable model cache"}, log.KV{K: "path", V: c.cachePath}, log.KV{K: "err", V: err.Error()})
	}

	out, err := c.runner.Run(ctx, c.python.command(c.script))
	if err != nil {
		return nil, failure.Wrap(failure.KindRuntime, &ToolError{Tool: "models", Message: "listing failed", Cause: err}, "error getting consensus models")
	}
	models := outputLines(out.Stdout)
	if len(models) == 0 {
		return nil, failure.New(failure.KindRuntime, "error getting consensus models: script printed nothing")
	}

	if err := c.writeCache(models); err != nil {
		log.Warn(ctx, log.KV{K: "msg", V: "failed to cache models"}, log.KV{K: "path", V: c.cachePath}, log.KV{K: "err", V: err.Error()})
	}
	return models, nil
}

func (c *ModelCatalog) readCache() ([]string, error) {
	if c.cachePath == "" {
		return nil, os.ErrNotExist
	}
	data, err := os.ReadFile(c.cachePath)
	if err != nil {
		return nil, err
	}
	var models []string
	if err := json.Unmarshal(data, &models); err != nil {
		return nil, &ToolError{Tool: "models", Message: "cache is not a JSON list", Cause: err}
	}
	if len(models) == 0 {
		return nil, &ToolError{Tool: "models", Message: "cache is empty"}
	}
	return models, nil
}

func (c *ModelCatalog) writeCache(models []string) error {
	if c.cachePath == "" {
		return nil
	}
	data, err := json.Marshal(models)
	if err != nil {
		return err
	}
	tmp := c.cachePath + ".partial"
	if err := os.MkdirAll(filepath.Dir(c.cachePath), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, c.cachePath)
}
