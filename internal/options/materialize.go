package options

import (
	"context"
	"encoding/json"
	"os"

	"goa.design/clue/log"
	"gopkg.in/yaml.v3"

	"github.com/jonathan/bulk-plasmid-seq/internal/failure"
	"github.com/jonathan/bulk-plasmid-seq/internal/fasta"
	"github.com/jonathan/bulk-plasmid-seq/internal/schemas"
	"github.com/jonathan/bulk-plasmid-seq/internal/types"
)

// Materialize writes the plan's artifacts into the output directory: the
// enzyme table, the combined reference (when there are several) and the run
// parameters record. Decompression must have finished before it is called.
func Materialize(ctx context.Context, plan *Plan) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tableYAML, err := yaml.Marshal(plan.EnzymeTable)
	if err != nil {
		return failure.Wrap(failure.KindStorage, err, "could not encode restriction enzyme table")
	}
	if err := os.WriteFile(plan.EnzymeTablePath, tableYAML, 0o644); err != nil {
		return failure.Storage(err, "could not write %s", EnzymeTableFile)
	}

	if plan.CombinedRefPath != "" {
		n, err := fasta.Concatenate(plan.CombinedRefPath, plan.RefSources)
		if err != nil {
			return failure.Storage(err, "error combining reference files")
		}
		log.Info(ctx, log.KV{K: "msg", V: "combined references"},
			log.KV{K: "files", V: len(plan.RefSources)}, log.KV{K: "records", V: n})
	}

	if err := WriteRunParams(plan.RunParamsPath, &plan.Params); err != nil {
		return err
	}
	return nil
}

// WriteRunParams validates params against the run parameters schema and writes them.
func WriteRunParams(path string, params *types.RunParameters) error {
	data, err := json.MarshalIndent(params, "", "  ")
	if err != nil {
		return failure.Wrap(failure.KindStorage, err, "could not encode run parameters")
	}
	if err := schemas.ValidateRunParams(data); err != nil {
		return failure.Wrap(failure.KindValidation, err, "run parameters failed schema validation")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return failure.Storage(err, "could not write params file")
	}
	return nil
}

// ReadRunParams loads and validates a persisted run parameters record.
func ReadRunParams(path string) (*types.RunParameters, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, failure.NotFoundf("cannot restore session: %s not found", RunParamsFile)
		}
		return nil, failure.Storage(err, "cannot restore session")
	}
	if err := schemas.ValidateRunParams(data); err != nil {
		return nil, failure.Wrap(failure.KindValidation, err, "cannot restore session: invalid run parameters")
	}
	var params types.RunParameters
	if err := json.Unmarshal(data, &params); err != nil {
		return nil, failure.Wrap(failure.KindValidation, err, "cannot restore session: invalid run parameters")
	}
	return &params, nil
}
