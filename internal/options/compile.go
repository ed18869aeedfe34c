// Package options translates a run request into the external pipeline's
// argument vector and the artifacts that accompany it.
package options

import (
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jonathan/bulk-plasmid-seq/internal/compress"
	"github.com/jonathan/bulk-plasmid-seq/internal/failure"
	"github.com/jonathan/bulk-plasmid-seq/internal/types"
)

// Artifact names inside the output session.
const (
	EnzymeTableFile   = "restriction_enzyme_cut_sites.yaml"
	RunParamsFile     = "run_params.json"
	CombinedRefFile   = "combined_ref_seqs.fasta"
	AlignmentFile     = "filtered_alignment.bam"
	ConsensusDir      = "consensus_sequences"
	DateLayout        = time.RFC3339
	enzymeErrorPrefix = "error in restriction offsets"
)

// Input is everything Compile needs. File lists are the names as uploaded;
// compression suffixes are stripped to predict the names the pipeline sees.
type Input struct {
	Options     types.RunOptions
	ReadDir     string
	ReadFiles   []string
	RefDir      string
	RefFiles    []string
	OutDir      string
	RefServerID string
	ResServerID string
	Date        time.Time
}

// Plan is a compiled run.
type Plan struct {
	Args            []string
	EnzymeTable     types.EnzymeTable
	EnzymeTablePath string
	RunParamsPath   string
	// CombinedRefPath is empty when a single reference is used unmodified.
	CombinedRefPath string
	RefSources      []string
	ReadFiles       []string
	RefFiles        []string
	Params          types.RunParameters
	Bundle          types.ResultBundle
}

// Compile validates the input and builds the plan. It has no side effects.
func Compile(in Input) (*Plan, error) {
	opts := in.Options
	if !opts.Mode.Valid() {
		return nil, failure.Validationf("unknown analysis mode %q", opts.Mode)
	}
	if len(in.ReadFiles) == 0 {
		return nil, failure.Validationf("no sequencing read files were provided")
	}
	if len(in.RefFiles) == 0 {
		return nil, failure.Validationf("no plasmid reference files were provided")
	}
	if err := opts.Validate(); err != nil {
		return nil, failure.Wrap(failure.KindValidation, err, "invalid run options")
	}
	table, err := CompileEnzymeTable(opts.FastaREData)
	if err != nil {
		return nil, err
	}

	reads := compress.ExpectedNames(in.ReadFiles)
	refs := compress.ExpectedNames(in.RefFiles)
	plan := &Plan{
		EnzymeTable:     table,
		EnzymeTablePath: filepath.Join(in.OutDir, EnzymeTableFile),
		RunParamsPath:   filepath.Join(in.OutDir, RunParamsFile),
		ReadFiles:       reads,
		RefFiles:        refs,
	}

	refFile := refs[0]
	if len(refs) > 1 {
		refFile = CombinedRefFile
		plan.CombinedRefPath = filepath.Join(in.OutDir, CombinedRefFile)
		plan.RefSources = make([]string, len(refs))
		for i, r := range refs {
			plan.RefSources[i] = filepath.Join(in.RefDir, r)
		}
	}

	plan.Params = buildParams(in, table)
	plan.Args = buildArgs(in, reads, refs, plan.EnzymeTablePath)
	plan.Bundle = types.ResultBundle{
		AlignmentFile: AlignmentFile,
		RefServerID:   in.RefServerID,
		ResServerID:   in.ResServerID,
		OrigRefFiles:  append([]string(nil), in.RefFiles...),
		RefFile:       refFile,
		Name:          plan.Params.Name,
		Date:          plan.Params.Date,
		RunParams:     &plan.Params,
	}
	return plan, nil
}

// CompileEnzymeTable converts per-reference enzyme records into the table
// artifact. A record with more than one cut site rejects the whole table, and
// so do two files whose names reduce to the same reference name.
func CompileEnzymeTable(records map[string]types.RestrictionEnzymeRecord) (types.EnzymeTable, error) {
	keys := make([]string, 0, len(records))
	for k := range records {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	table := make(types.EnzymeTable, len(records))
	for _, file := range keys {
		rec := records[file]
		ref := StripReferenceName(file)
		if prev, clash := table[ref]; clash {
			return nil, failure.Validationf("%s: %s and %s both map to reference %s",
				enzymeErrorPrefix, prev.FileName, file, ref)
		}
		if len(rec.CutSites) > 1 {
			return nil, failure.Validationf("%s: multiple cut sites found for %s in %s",
				enzymeErrorPrefix, rec.Enzyme, file)
		}
		entry := types.EnzymeTableEntry{FileName: file, Enzyme: rec.Enzyme}
		if len(rec.CutSites) == 1 {
			if rec.CutSites[0] < 0 {
				return nil, failure.Validationf("%s: negative cut site for %s in %s",
					enzymeErrorPrefix, rec.Enzyme, file)
			}
			entry.CutSite = rec.CutSites[0]
		}
		table[ref] = entry
	}
	return table, nil
}

// StripReferenceName drops a compression suffix and then the file extension.
func StripReferenceName(name string) string {
	base := compress.StripCompression(filepath.Base(name))
	if ext := filepath.Ext(base); ext != "" && ext != base {
		return strings.TrimSuffix(base, ext)
	}
	return base
}

func buildParams(in Input, table types.EnzymeTable) types.RunParameters {
	opts := in.Options
	params := types.RunParameters{
		Mode:                  opts.Mode,
		Name:                  opts.Name,
		Date:                  in.Date.UTC().Format(DateLayout),
		SequencingReadFiles:   append([]string(nil), in.ReadFiles...),
		PlasmidReferenceFiles: append([]string(nil), in.RefFiles...),
		PlasmidEnzymeData:     table,
		MedakaConsensusModel:  opts.MedakaModel,
		Double:                opts.Double,
		Trim:                  opts.Trim,
		Filter:                opts.Filter,
	}
	if opts.Mode == types.ModeBiobin {
		params.BiobinOptions = &types.BiobinOptions{
			MarkerScore: opts.MarkerScore,
			KmerLength:  opts.KmerLen,
			Match:       opts.Match,
			Mismatch:    opts.Mismatch,
			GapOpen:     opts.GapOpen,
			GapExtend:   opts.GapExtend,
			ContextMap:  opts.ContextMap,
			FineMap:     opts.FineMap,
			MaxRegions:  opts.MaxRegions,
		}
	}
	if opts.Filter {
		params.NanofiltOptions = &types.NanofiltOptions{
			MaxLength:  opts.MaxLen,
			MinLength:  opts.MinLen,
			MinQuality: opts.MinQual,
		}
	}
	return params
}

// buildArgs emits the argument vector in its fixed order.
func buildArgs(in Input, reads, refs []string, tablePath string) []string {
	opts := in.Options
	args := []string{string(opts.Mode)}

	args = append(args, "-i", inputPath(in.ReadDir, reads))
	args = append(args, "-r", inputPath(in.RefDir, refs))
	args = append(args, "--model", opts.MedakaModel)
	if opts.Double {
		args = append(args, "--double")
	}
	if opts.Trim {
		args = append(args, "--trim")
	}
	args = append(args, "--restriction_enzyme_table", tablePath)

	if opts.Mode == types.ModeBiobin {
		args = append(args,
			"--marker_score", strconv.Itoa(opts.MarkerScore),
			"--kmer_length", strconv.Itoa(opts.KmerLen),
			"--match", strconv.Itoa(opts.Match),
			"--mismatch", strconv.Itoa(opts.Mismatch),
			"--gap_open", strconv.Itoa(opts.GapOpen),
			"--gap_extend", strconv.Itoa(opts.GapExtend),
			"--context_map", formatFloat(opts.ContextMap),
			"--fine_map", formatFloat(opts.FineMap),
			"--max_regions", strconv.Itoa(opts.MaxRegions),
		)
	}
	if opts.Filter {
		args = append(args, "--filter",
			"--max_length", strconv.Itoa(opts.MaxLen),
			"--min_length", strconv.Itoa(opts.MinLen),
			"--min_quality", formatFloat(opts.MinQual),
		)
	}
	return append(args, "-o", dirArg(in.OutDir))
}

// inputPath is the directory when several files share it, else the single file.
func inputPath(dir string, names []string) string {
	if len(names) > 1 {
		return dirArg(dir)
	}
	return filepath.Join(dir, names[0])
}

// dirArg renders a directory with a trailing separator; the pipeline joins
// file names onto directory arguments by concatenation.
func dirArg(dir string) string {
	return strings.TrimRight(dir, string(filepath.Separator)) + string(filepath.Separator)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
