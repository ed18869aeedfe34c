// Package steps provides stage definitions and dependency validation for the
// analysis orchestrator.
package steps

import (
	"fmt"

	"github.com/jonathan/bulk-plasmid-seq/internal/types"
)

// Stage names
const (
	StepRenameContent  = "rename_content"
	StepRunPipeline    = "run_pipeline"
	StepProcessResults = "process_results"
)

// Stage categories
const (
	CategoryStaging  = "staging"
	CategoryAnalysis = "analysis"
	CategoryResults  = "results"
)

// StepDefinition defines metadata for a pipeline step
type StepDefinition struct {
	Name         string
	Category     string
	Dependencies []string
	Optional     []string
}

// StepRegistry holds all step definitions
var StepRegistry = map[string]StepDefinition{
	StepRenameContent: {
		Name:         StepRenameContent,
		Category:     CategoryStaging,
		Dependencies: []string{},
		Optional:     []string{},
	},
	StepRunPipeline: {
		Name:         StepRunPipeline,
		Category:     CategoryAnalysis,
		Dependencies: []string{},
		Optional:     []string{StepRenameContent},
	},
	StepProcessResults: {
		Name:         StepProcessResults,
		Category:     CategoryResults,
		Dependencies: []string{StepRunPipeline},
		Optional:     []string{},
	},
}

// order is the fixed execution order of the registry.
var order = []string{StepRenameContent, StepRunPipeline, StepProcessResults}

// Ordered returns the step definitions in execution order.
func Ordered() []StepDefinition {
	defs := make([]StepDefinition, 0, len(order))
	for _, name := range order {
		defs = append(defs, StepRegistry[name])
	}
	return defs
}

// CategoryOf returns the category of a step, or "" when unknown.
func CategoryOf(name string) string {
	return StepRegistry[name].Category
}

// NewStageRecords returns pending stage records for every registered step.
func NewStageRecords() []types.StageRecord {
	defs := Ordered()
	records := make([]types.StageRecord, len(defs))
	for i, def := range defs {
		records[i] = types.StageRecord{
			Name:     def.Name,
			Category: def.Category,
			Status:   types.StageStatusPending,
		}
	}
	return records
}

// DependencyError represents a dependency validation error
type DependencyError struct {
	Step                string
	MissingDependencies []string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("missing dependencies: %v", e.MissingDependencies)
}

// StatusLookup reports the current status of a step, or "" if it never ran.
type StatusLookup func(step string) string

// ValidateDependencies checks if all required dependencies for a step are completed.
// Optional dependencies only need to have settled: completed or skipped.
func ValidateDependencies(status StatusLookup, stepName string) error {
	def, ok := StepRegistry[stepName]
	if !ok {
		return fmt.Errorf("unknown step: %s", stepName)
	}

	var missing []string

	for _, dep := range def.Dependencies {
		if status(dep) != types.StageStatusCompleted {
			missing = append(missing, dep)
		}
	}
	for _, dep := range def.Optional {
		switch status(dep) {
		case types.StageStatusCompleted, types.StageStatusSkipped:
		default:
			missing = append(missing, dep)
		}
	}

	if len(missing) > 0 {
		return &DependencyError{
			Step:                stepName,
			MissingDependencies: missing,
		}
	}

	return nil
}
