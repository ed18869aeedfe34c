package options

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/jonathan/bulk-plasmid-seq/internal/failure"
	"github.com/jonathan/bulk-plasmid-seq/internal/fasta"
	"github.com/jonathan/bulk-plasmid-seq/internal/types"
)

var runDate = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func baseInput(mode types.Mode) Input {
	opts := types.DefaultRunOptions()
	opts.Mode = mode
	opts.Name = "calm_otter"
	return Input{
		Options:     opts,
		ReadDir:     "/data/1111111111",
		ReadFiles:   []string{"reads.fastq.gz"},
		RefDir:      "/data/2222222222",
		RefFiles:    []string{"ref.fasta"},
		OutDir:      "/data/3333333333",
		RefServerID: "2222222222",
		ResServerID: "3333333333",
		Date:        runDate,
	}
}

func TestCompile_RejectsMultipleCutSites(t *testing.T) {
	in := baseInput(types.ModeMedaka)
	in.Options.FastaREData = map[string]types.RestrictionEnzymeRecord{
		"ref.fasta": {Enzyme: "EcoRI", CutSites: []int{10, 500}},
	}

	plan, err := Compile(in)
	require.Error(t, err)
	assert.Nil(t, plan)
	assert.True(t, failure.Is(err, failure.KindValidation))
	assert.Contains(t, err.Error(), "EcoRI")
	assert.Contains(t, err.Error(), "ref.fasta")
}

func TestCompileEnzymeTable_ReferenceNameClash(t *testing.T) {
	tests := []struct {
		name    string
		records map[string]types.RestrictionEnzymeRecord
		files   []string
	}{
		{
			name: "different extensions",
			records: map[string]types.RestrictionEnzymeRecord{
				"a.fasta": {Enzyme: "EcoRI", CutSites: []int{10}},
				"a.fa":    {Enzyme: "BsaI", CutSites: []int{20}},
			},
			files: []string{"a.fa", "a.fasta"},
		},
		{
			name: "compressed and plain",
			records: map[string]types.RestrictionEnzymeRecord{
				"x.fasta":    {Enzyme: "NotI"},
				"x.fasta.gz": {Enzyme: "NotI"},
			},
			files: []string{"x.fasta", "x.fasta.gz"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, err := CompileEnzymeTable(tt.records)
			require.Error(t, err)
			assert.Nil(t, table)
			assert.True(t, failure.Is(err, failure.KindValidation))
			for _, f := range tt.files {
				assert.Contains(t, err.Error(), f)
			}
		})
	}
}

func TestCompile_ZeroCutSitesDefaultsToZero(t *testing.T) {
	in := baseInput(types.ModeMedaka)
	in.Options.FastaREData = map[string]types.RestrictionEnzymeRecord{
		"ref.fasta": {Enzyme: "NotI"},
	}

	plan, err := Compile(in)
	require.NoError(t, err)
	entry, ok := plan.EnzymeTable["ref"]
	require.True(t, ok)
	assert.Equal(t, 0, entry.CutSite)
	assert.Equal(t, "ref.fasta", entry.FileName)
	assert.Equal(t, "NotI", entry.Enzyme)
}

func TestCompile_MedakaArgumentOrder(t *testing.T) {
	in := baseInput(types.ModeMedaka)
	in.Options.Double = true
	in.Options.Trim = true

	plan, err := Compile(in)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"medaka",
		"-i", "/data/1111111111/reads.fastq",
		"-r", "/data/2222222222/ref.fasta",
		"--model", types.DefaultMedakaModel,
		"--double",
		"--trim",
		"--restriction_enzyme_table", "/data/3333333333/restriction_enzyme_cut_sites.yaml",
		"-o", "/data/3333333333/",
	}, plan.Args)
	assert.Empty(t, plan.CombinedRefPath)
	assert.Equal(t, "ref.fasta", plan.Bundle.RefFile)
	assert.Nil(t, plan.Params.BiobinOptions)
	assert.Nil(t, plan.Params.NanofiltOptions)
}

func TestCompile_BiobinWithFilterAndDirectories(t *testing.T) {
	in := baseInput(types.ModeBiobin)
	in.ReadFiles = []string{"a.fastq", "b.fastq.gz"}
	in.RefFiles = []string{"p1.fasta", "p2.fa.gz"}
	in.Options.Filter = true
	in.Options.MinQual = 9.5

	plan, err := Compile(in)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"biobin",
		"-i", "/data/1111111111/",
		"-r", "/data/2222222222/",
		"--model", types.DefaultMedakaModel,
		"--restriction_enzyme_table", "/data/3333333333/restriction_enzyme_cut_sites.yaml",
		"--marker_score", "95",
		"--kmer_length", "12",
		"--match", "3",
		"--mismatch", "-6",
		"--gap_open", "-10",
		"--gap_extend", "-5",
		"--context_map", "0.8",
		"--fine_map", "0.95",
		"--max_regions", "3",
		"--filter",
		"--max_length", "1000000",
		"--min_length", "0",
		"--min_quality", "9.5",
		"-o", "/data/3333333333/",
	}, plan.Args)

	assert.Equal(t, CombinedRefFile, plan.Bundle.RefFile)
	assert.Equal(t, "/data/3333333333/combined_ref_seqs.fasta", plan.CombinedRefPath)
	assert.Equal(t, []string{"/data/2222222222/p1.fasta", "/data/2222222222/p2.fa"}, plan.RefSources)
	assert.Equal(t, []string{"p1.fasta", "p2.fa.gz"}, plan.Bundle.OrigRefFiles)
	require.NotNil(t, plan.Params.BiobinOptions)
	assert.Equal(t, 12, plan.Params.BiobinOptions.KmerLength)
	require.NotNil(t, plan.Params.NanofiltOptions)
	assert.Equal(t, 9.5, plan.Params.NanofiltOptions.MinQuality)
	assert.Equal(t, "2026-03-01T10:00:00Z", plan.Params.Date)
}

func TestCompile_Deterministic(t *testing.T) {
	in := baseInput(types.ModeBiobin)
	in.Options.FastaREData = map[string]types.RestrictionEnzymeRecord{
		"b.fasta": {Enzyme: "BsaI", CutSites: []int{7}},
		"a.fasta": {Enzyme: "EcoRI", CutSites: []int{3}},
	}
	first, err := Compile(in)
	require.NoError(t, err)
	second, err := Compile(in)
	require.NoError(t, err)
	assert.Equal(t, first.Args, second.Args)
	assert.Equal(t, first.EnzymeTable, second.EnzymeTable)
}

func TestCompile_ValidationBeforeSideEffects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Input)
	}{
		{"unknown mode", func(in *Input) { in.Options.Mode = "guppy" }},
		{"no reads", func(in *Input) { in.ReadFiles = nil }},
		{"no references", func(in *Input) { in.RefFiles = nil }},
		{"context map out of range", func(in *Input) { in.Options.ContextMap = 1.5 }},
		{"negative cut site", func(in *Input) {
			in.Options.FastaREData = map[string]types.RestrictionEnzymeRecord{
				"ref.fasta": {Enzyme: "EcoRI", CutSites: []int{-4}},
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := baseInput(types.ModeMedaka)
			in.OutDir = filepath.Join(t.TempDir(), "out")
			tt.mutate(&in)
			_, err := Compile(in)
			require.Error(t, err)
			assert.Equal(t, failure.KindValidation, failure.KindOf(err))
			_, statErr := os.Stat(in.OutDir)
			assert.True(t, os.IsNotExist(statErr))
		})
	}
}

func TestStripReferenceName(t *testing.T) {
	tests := map[string]string{
		"ref.fasta":       "ref",
		"ref.fasta.gz":    "ref",
		"p.v2.fa.gzip":    "p.v2",
		"noext":           "noext",
		"/a/b/plasmid.fa": "plasmid",
	}
	for in, want := range tests {
		assert.Equal(t, want, StripReferenceName(in), in)
	}
}

func TestMaterialize_WritesArtifacts(t *testing.T) {
	root := t.TempDir()
	refDir := filepath.Join(root, "refs")
	outDir := filepath.Join(root, "out")
	require.NoError(t, os.MkdirAll(refDir, 0o755))
	require.NoError(t, os.MkdirAll(outDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(refDir, "a.fasta"), []byte(">a1\nAC\n>a2\nGT\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(refDir, "b.fasta"), []byte(">b1\nA\n>b2\nC\n>b3\nG"), 0o644))

	in := baseInput(types.ModeMedaka)
	in.RefDir = refDir
	in.RefFiles = []string{"a.fasta", "b.fasta"}
	in.OutDir = outDir
	in.Options.FastaREData = map[string]types.RestrictionEnzymeRecord{
		"a.fasta": {Enzyme: "EcoRI", CutSites: []int{42}},
	}

	plan, err := Compile(in)
	require.NoError(t, err)
	require.NoError(t, Materialize(context.Background(), plan))

	records, err := fasta.ReadFile(filepath.Join(outDir, CombinedRefFile))
	require.NoError(t, err)
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	assert.Equal(t, []string{"a1", "a2", "b1", "b2", "b3"}, ids)

	raw, err := os.ReadFile(filepath.Join(outDir, EnzymeTableFile))
	require.NoError(t, err)
	var table types.EnzymeTable
	require.NoError(t, yaml.Unmarshal(raw, &table))
	assert.Equal(t, 42, table["a"].CutSite)

	raw, err = os.ReadFile(filepath.Join(outDir, RunParamsFile))
	require.NoError(t, err)
	var params types.RunParameters
	require.NoError(t, json.Unmarshal(raw, &params))
	assert.Equal(t, types.ModeMedaka, params.Mode)
	assert.Equal(t, []string{"a.fasta", "b.fasta"}, params.PlasmidReferenceFiles)

	restored, err := ReadRunParams(filepath.Join(outDir, RunParamsFile))
	require.NoError(t, err)
	assert.Equal(t, params, *restored)
}

func TestReadRunParams_Missing(t *testing.T) {
	_, err := ReadRunParams(filepath.Join(t.TempDir(), RunParamsFile))
	require.Error(t, err)
	assert.Equal(t, failure.KindNotFound, failure.KindOf(err))
}

func TestMaterialize_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	plan, err := Compile(baseInput(types.ModeMedaka))
	require.NoError(t, err)
	assert.ErrorIs(t, Materialize(ctx, plan), context.Canceled)
}
