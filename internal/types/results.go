package types

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// ResultBundle locates the artifacts of one run. Fields are filled in as stages complete.
type ResultBundle struct {
	AlignmentFile string         `json:"algnFile"`
	RefServerID   string         `json:"refServerId"`
	ResServerID   string         `json:"resServerId"`
	OrigRefFiles  []string       `json:"origRefFiles,omitempty"`
	RefFile       string         `json:"refFile,omitempty"`
	Name          string         `json:"name,omitempty"`
	Date          string         `json:"date,omitempty"`
	RunParams     *RunParameters `json:"runParams,omitempty"`
}

// RunResult is what a finished (or partially finished) run hands back.
type RunResult struct {
	Data    *ResultBundle    `json:"data"`
	Stats   json.RawMessage  `json:"stats,omitempty"`
	Summary []QualitySummary `json:"summary,omitempty"`
}

// Count is a numeric statistic that the post-processing stage may emit as a
// JSON number or as a numeric string.
type Count float64

// UnmarshalJSON accepts 12, 12.5, "12" and "". Non-numeric strings decode to zero.
func (c *Count) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*c = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			*c = 0
			return nil
		}
		*c = Count(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*c = Count(v)
	return nil
}

// AlignmentStats summarizes the pairwise alignment of a reference and its consensus.
type AlignmentStats struct {
	Length        Count  `json:"length"`
	GapsStr       string `json:"gaps_str"`
	GapsCount     Count  `json:"gaps_count"`
	GapsPct       Count  `json:"gaps_pct"`
	MismatchCount Count  `json:"mismatch_count"`
	MismatchPct   Count  `json:"mismatch_pct"`
	IdentityStr   Count  `json:"identity_str"`
	IdentityPct   Count  `json:"identity_pct"`
	SimilarityStr Count  `json:"similarity_str"`
	SimilarityPct Count  `json:"similarity_pct"`
	Score         Count  `json:"score"`
	LongestErrRun Count  `json:"longest_err_run"`
}

// ReferenceStats is one per-reference row of the statistics payload.
type ReferenceStats struct {
	InputFastaName   string         `json:"input_fasta_name"`
	InputFastaSeq    string         `json:"input_fasta_seq"`
	ConsensusName    string         `json:"consensus_name"`
	ConsensusSeq     string         `json:"consensus_seq"`
	PairwiseAlnName  string         `json:"pairwise_algn_name"`
	PairwiseAlnSeq   string         `json:"pairwise_algn_seq"`
	PairwiseAlnStats AlignmentStats `json:"pairwise_algn_stats"`
	SequencingCov    Count          `json:"sequencing_cov"`
}

// Quality is the traffic-light grade given to a consensus.
type Quality string

const (
	QualityGood Quality = "good"
	QualityFair Quality = "fair"
	QualityPoor Quality = "poor"
)

// QualitySummary pairs a reference with its grade.
type QualitySummary struct {
	Reference string  `json:"reference"`
	Quality   Quality `json:"quality"`
	Depth     float64 `json:"depth"`
	Errors    int     `json:"errors"`
}
