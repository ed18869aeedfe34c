// Package results interprets post-processing statistics and packages result
// sessions for download.
package results

import (
	"bytes"
	"encoding/json"
	"math"
	"sort"

	"github.com/jonathan/bulk-plasmid-seq/internal/types"
)

// Quality thresholds applied to each reference's consensus.
const (
	GoodMaxErrorsPerKb = 1.0
	GoodMaxErrRun      = 2
	GoodMinDepth       = 100
	FairMaxErrors      = 6
	FairMaxErrRun      = 3
	FairMinDepth       = 50
)

// ParseStats decodes the statistics payload. The payload is either an array of
// per-reference rows or an object of rows keyed by reference name.
func ParseStats(raw []byte) ([]types.ReferenceStats, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, &StatsError{Message: "statistics payload is empty"}
	}

	if raw[0] == '{' {
		var keyed map[string]types.ReferenceStats
		if err := json.Unmarshal(raw, &keyed); err != nil {
			return nil, &StatsError{Message: "failed to decode statistics object", Cause: err}
		}
		names := make([]string, 0, len(keyed))
		for name := range keyed {
			names = append(names, name)
		}
		sort.Strings(names)
		rows := make([]types.ReferenceStats, 0, len(keyed))
		for _, name := range names {
			row := keyed[name]
			if row.InputFastaName == "" {
				row.InputFastaName = name
			}
			rows = append(rows, row)
		}
		return rows, nil
	}

	var rows []types.ReferenceStats
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, &StatsError{Message: "failed to decode statistics rows", Cause: err}
	}
	return rows, nil
}

// Classify grades one reference row.
func Classify(row types.ReferenceStats) types.Quality {
	st := row.PairwiseAlnStats
	errs := float64(st.GapsCount + st.MismatchCount)
	depth := float64(row.SequencingCov)
	run := float64(st.LongestErrRun)

	perKb := math.Inf(1)
	if st.Length > 0 {
		perKb = errs / (float64(st.Length) / 1000)
	}

	switch {
	case perKb <= GoodMaxErrorsPerKb && run <= GoodMaxErrRun && depth >= GoodMinDepth:
		return types.QualityGood
	case errs <= FairMaxErrors && run <= FairMaxErrRun && depth >= FairMinDepth:
		return types.QualityFair
	default:
		return types.QualityPoor
	}
}

// Summarize grades every row of a statistics payload.
func Summarize(raw []byte) ([]types.QualitySummary, error) {
	rows, err := ParseStats(raw)
	if err != nil {
		return nil, err
	}
	out := make([]types.QualitySummary, 0, len(rows))
	for _, row := range rows {
		st := row.PairwiseAlnStats
		out = append(out, types.QualitySummary{
			Reference: row.InputFastaName,
			Quality:   Classify(row),
			Depth:     float64(row.SequencingCov),
			Errors:    int(st.GapsCount + st.MismatchCount),
		})
	}
	return out, nil
}
