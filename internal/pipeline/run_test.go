package pipeline

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/bulk-plasmid-seq/internal/failure"
	"github.com/jonathan/bulk-plasmid-seq/internal/fasta"
	"github.com/jonathan/bulk-plasmid-seq/internal/pipeline/steps"
	"github.com/jonathan/bulk-plasmid-seq/internal/types"
)

const statsJSON = `[{"input_fasta_name":"pA","sequencing_cov":150,"pairwise_algn_stats":{"length":4000,"gaps_count":0,"mismatch_count":1,"longest_err_run":1}}]`

// fakeRunner answers by script name and records every command it receives.
type fakeRunner struct {
	mu       sync.Mutex
	calls    []Command
	handlers map[string]func(ctx context.Context, cmd Command) (*Output, error)
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{handlers: map[string]func(context.Context, Command) (*Output, error){}}
}

func (f *fakeRunner) on(script string, h func(ctx context.Context, cmd Command) (*Output, error)) {
	f.handlers[script] = h
}

func (f *fakeRunner) Run(ctx context.Context, cmd Command) (*Output, error) {
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	f.mu.Unlock()
	script := cmd.Args[1]
	if h, ok := f.handlers[script]; ok {
		return h(ctx, cmd)
	}
	return &Output{}, nil
}

func (f *fakeRunner) scripts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.Args[1]
	}
	return out
}

type recordingRenamer struct {
	dir     string
	renamed types.RenameMap
	err     error
}

func (r *recordingRenamer) RenameContent(_ context.Context, dir string, renamed types.RenameMap) error {
	r.dir = dir
	r.renamed = renamed
	return r.err
}

var testConfig = Config{
	Python:         "python3",
	PythonArgs:     []string{"-u"},
	PipelineScript: "bulkPlasmidSeq.py",
	ResultsScript:  "processResults.py",
}

func testRun(mode types.Mode, events *[]ProgressEvent) Run {
	return Run{
		Mode:    mode,
		Args:    []string{string(mode), "-i", "/s/1111111111/r.fastq", "-o", "/s/3333333333/"},
		RefDir:  "/s/2222222222",
		OutDir:  "/s/3333333333",
		Renamed: types.RenameMap{},
		Bundle: types.ResultBundle{
			AlignmentFile: "filtered_alignment.bam",
			RefServerID:   "2222222222",
			ResServerID:   "3333333333",
			RefFile:       "ref.fasta",
		},
		OnProgress: func(e ProgressEvent) { *events = append(*events, e) },
	}
}

func statusesOf(events []ProgressEvent) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Step + ":" + e.Status
	}
	return out
}

func TestExecute_Success(t *testing.T) {
	runner := newFakeRunner()
	runner.on("processResults.py", func(context.Context, Command) (*Output, error) {
		return &Output{Stdout: "loading...\n" + statsJSON + "\n"}, nil
	})
	var events []ProgressEvent
	o := NewOrchestrator(runner, nil, testConfig)

	result, err := o.Execute(context.Background(), testRun(types.ModeMedaka, &events))
	require.NoError(t, err)

	assert.Equal(t, []string{"bulkPlasmidSeq.py", "processResults.py"}, runner.scripts())
	assert.Equal(t, []string{"-u", "bulkPlasmidSeq.py", "medaka", "-i", "/s/1111111111/r.fastq", "-o", "/s/3333333333/"},
		runner.calls[0].Args)
	assert.Equal(t, []string{"-u", "processResults.py", "/s/2222222222/",
		"/s/3333333333/consensus_sequences", "/s/3333333333/filtered_alignment.bam"}, runner.calls[1].Args)

	assert.JSONEq(t, statsJSON, string(result.Stats))
	require.Len(t, result.Summary, 1)
	assert.Equal(t, types.QualityGood, result.Summary[0].Quality)
	assert.Equal(t, "3333333333", result.Data.ResServerID)

	assert.Equal(t, []string{
		"rename_content:skipped",
		"run_pipeline:in_progress",
		"run_pipeline:completed",
		"process_results:in_progress",
		"process_results:completed",
	}, statusesOf(events))
}

func TestExecute_RenamesContentFirst(t *testing.T) {
	runner := newFakeRunner()
	runner.on("processResults.py", func(context.Context, Command) (*Output, error) {
		return &Output{Stdout: "[]"}, nil
	})
	renamer := &recordingRenamer{}
	var events []ProgressEvent
	run := testRun(types.ModeMedaka, &events)
	run.Renamed = types.RenameMap{"plasmid_a_1.fasta": "plasmid a.fasta"}

	_, err := NewOrchestrator(runner, renamer, testConfig).Execute(context.Background(), run)
	require.NoError(t, err)
	assert.Equal(t, "/s/2222222222", renamer.dir)
	assert.Equal(t, run.Renamed, renamer.renamed)
	assert.Equal(t, "rename_content:in_progress", statusesOf(events)[0])
}

func TestExecute_RenameFailureAborts(t *testing.T) {
	runner := newFakeRunner()
	renamer := &recordingRenamer{err: errors.New("bad fasta")}
	var events []ProgressEvent
	run := testRun(types.ModeMedaka, &events)
	run.Renamed = types.RenameMap{"a_1.fasta": "a.fasta"}

	_, err := NewOrchestrator(runner, renamer, testConfig).Execute(context.Background(), run)
	require.Error(t, err)
	assert.Equal(t, failure.KindRuntime, failure.KindOf(err))
	assert.Equal(t, steps.StepRenameContent, failure.StageOf(err))
	assert.Empty(t, runner.scripts(), "no external process may start after a rename failure")
}

func TestExecute_BiobinEmptyResult(t *testing.T) {
	runner := newFakeRunner()
	runner.on("bulkPlasmidSeq.py", func(context.Context, Command) (*Output, error) {
		return &Output{}, &ProcessError{
			Command:  "python3",
			ExitCode: 1,
			Stderr:   "Traceback (most recent call last):\n  File \"x.py\"\nException: No reads were assigned to any plasmid!\n",
		}
	})
	var events []ProgressEvent

	result, err := NewOrchestrator(runner, nil, testConfig).Execute(context.Background(), testRun(types.ModeBiobin, &events))
	require.Error(t, err)
	assert.Equal(t, failure.KindEmptyResult, failure.KindOf(err))
	assert.Equal(t, steps.StepRunPipeline, failure.StageOf(err))
	assert.Contains(t, err.Error(), EmptyBiobinMessage)
	assert.Equal(t, []string{"bulkPlasmidSeq.py"}, runner.scripts(), "post-processing must not run")

	require.NotNil(t, result)
	assert.Equal(t, "2222222222", result.Data.RefServerID)
	assert.Nil(t, result.Stats)
}

func TestExecute_PipelineTimeout(t *testing.T) {
	runner := newFakeRunner()
	runner.on("bulkPlasmidSeq.py", func(ctx context.Context, _ Command) (*Output, error) {
		<-ctx.Done()
		return &Output{}, &ProcessError{Command: "python3", ExitCode: -1, Cause: ctx.Err()}
	})
	cfg := testConfig
	cfg.PipelineTimeout = 20 * time.Millisecond
	var events []ProgressEvent

	_, err := NewOrchestrator(runner, nil, cfg).Execute(context.Background(), testRun(types.ModeMedaka, &events))
	require.Error(t, err)
	assert.Equal(t, failure.KindTimeout, failure.KindOf(err))
}

func TestExecute_Canceled(t *testing.T) {
	runner := newFakeRunner()
	ctx, cancel := context.WithCancel(context.Background())
	runner.on("bulkPlasmidSeq.py", func(ctx context.Context, _ Command) (*Output, error) {
		cancel()
		<-ctx.Done()
		return &Output{}, &ProcessError{Command: "python3", ExitCode: -1, Cause: ctx.Err()}
	})
	var events []ProgressEvent

	_, err := NewOrchestrator(runner, nil, testConfig).Execute(ctx, testRun(types.ModeMedaka, &events))
	require.Error(t, err)
	assert.Equal(t, failure.KindCanceled, failure.KindOf(err))
}

func TestExecute_ResultsNotJSON(t *testing.T) {
	runner := newFakeRunner()
	runner.on("processResults.py", func(context.Context, Command) (*Output, error) {
		return &Output{Stdout: "something went sideways"}, nil
	})
	var events []ProgressEvent

	result, err := NewOrchestrator(runner, nil, testConfig).Execute(context.Background(), testRun(types.ModeMedaka, &events))
	require.Error(t, err)
	assert.Equal(t, failure.KindRuntime, failure.KindOf(err))
	assert.Equal(t, steps.StepProcessResults, failure.StageOf(err))
	assert.Equal(t, "ref.fasta", result.Data.RefFile, "populated bundle fields are kept")
}

func TestRestore_OnlyPostProcesses(t *testing.T) {
	runner := newFakeRunner()
	runner.on("processResults.py", func(context.Context, Command) (*Output, error) {
		return &Output{Stdout: statsJSON}, nil
	})
	var events []ProgressEvent

	result, err := NewOrchestrator(runner, nil, testConfig).Restore(context.Background(), testRun(types.ModeMedaka, &events))
	require.NoError(t, err)
	assert.Equal(t, []string{"processResults.py"}, runner.scripts())
	assert.NotEmpty(t, result.Stats)
	assert.Equal(t, []string{
		"rename_content:skipped",
		"run_pipeline:skipped",
		"process_results:in_progress",
		"process_results:completed",
	}, statusesOf(events))
}

func TestStateTransitions(t *testing.T) {
	tests := []struct {
		from, to State
		ok       bool
	}{
		{StateIdle, StateRenamingContent, true},
		{StateIdle, StateRunningPipeline, true},
		{StateIdle, StateProcessingResults, true},
		{StateRenamingContent, StateRunningPipeline, true},
		{StateRenamingContent, StateProcessingResults, false},
		{StateRunningPipeline, StateProcessingResults, true},
		{StateRunningPipeline, StateDone, false},
		{StateProcessingResults, StateDone, true},
		{StateProcessingResults, StateAborted, true},
		{StateDone, StateAborted, false},
		{StateAborted, StateIdle, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.ok, tt.from.CanTransitionTo(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestClassifyPipelineFailure(t *testing.T) {
	noReads := &ProcessError{ExitCode: 1, Stderr: "Error: No reads were assigned to any plasmid!"}
	tests := []struct {
		name string
		mode types.Mode
		err  error
		want failure.Kind
	}{
		{"biobin empty", types.ModeBiobin, noReads, failure.KindEmptyResult},
		{"bare line on stdout", types.ModeBiobin, &ProcessError{Stdout: NoReadsAssigned + "\n"}, failure.KindEmptyResult},
		{"medaka same text", types.ModeMedaka, noReads, failure.KindRuntime},
		{"other biobin error", types.ModeBiobin, &ProcessError{ExitCode: 2, Stderr: "KeyError: 'x'"}, failure.KindRuntime},
		{"deadline", types.ModeBiobin, &ProcessError{Cause: context.DeadlineExceeded}, failure.KindTimeout},
		{"canceled", types.ModeMedaka, context.Canceled, failure.KindCanceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, failure.KindOf(ClassifyPipelineFailure(tt.mode, tt.err)))
		})
	}
	assert.NoError(t, ClassifyPipelineFailure(types.ModeBiobin, nil))
}

func TestRecordRenamer(t *testing.T) {
	tests := []struct {
		name     string
		original string
		renamed  string
		ids      map[string]string
	}{
		{
			name:     "whitespace and suffix",
			original: "plasmid a.fasta",
			renamed:  "plasmid_a_1.fasta",
			ids:      map[string]string{"plasmid a": "plasmid_a_1", "plasmid_a": "plasmid_a_1", "backbone": "backbone_1"},
		},
		{
			name:     "compressed",
			original: "seq.fasta.gz",
			renamed:  "seq_2.fasta.gz",
			ids:      map[string]string{"seq": "seq_2", "insert": "insert_2"},
		},
		{
			name:     "whitespace only",
			original: "my plasmid.fasta",
			renamed:  "my_plasmid.fasta",
			ids:      map[string]string{"pUC19": "pUC19", "my plasmid": "my_plasmid", "my_plasmid": "my_plasmid"},
		},
		{
			name:     "already renamed",
			original: "a.fasta",
			renamed:  "a_1.fasta",
			ids:      map[string]string{"pUC19_1": "pUC19_1", "a_1": "a_1", "a": "a_1"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rename := RecordRenamer(tt.original, tt.renamed)
			for id, want := range tt.ids {
				assert.Equal(t, want, rename(id), id)
			}
		})
	}
}

func TestFastaRenamer(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "p_1.fasta")
	require.NoError(t, os.WriteFile(path, []byte(">p circular\nACGT\n>other\nTT\n"), 0o644))

	renamed := types.RenameMap{
		"p_1.fasta":     "p.fasta",
		"reads_1.fastq": "reads.fastq",
		"gone_1.fasta":  "gone.fasta",
	}
	require.NoError(t, FastaRenamer{}.RenameContent(context.Background(), dir, renamed))

	records, err := fasta.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "p_1", records[0].ID)
	assert.Equal(t, "circular", records[0].Description)
	assert.Equal(t, "other_1", records[1].ID)
}

func TestFastaRenamer_RepeatedRuns(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a_1.fasta")
	require.NoError(t, os.WriteFile(path, []byte(">pUC19 desc\nACGT\n"), 0o644))
	spaced := filepath.Join(dir, "my_plasmid.fasta")
	require.NoError(t, os.WriteFile(spaced, []byte(">pUC19 desc\nACGT\n"), 0o644))

	renamed := types.RenameMap{"a_1.fasta": "a.fasta", "my_plasmid.fasta": "my plasmid.fasta"}
	for run := 1; run <= 2; run++ {
		require.NoError(t, FastaRenamer{}.RenameContent(context.Background(), dir, renamed))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, ">pUC19_1 desc\nACGT\n", string(data), "run %d", run)

		data, err = os.ReadFile(spaced)
		require.NoError(t, err)
		assert.Equal(t, ">pUC19 desc\nACGT\n", string(data), "run %d", run)
	}
}

func TestScriptRenamer(t *testing.T) {
	runner := newFakeRunner()
	r := ScriptRenamer{Runner: runner, Python: "python3", Args: []string{"-u"}, Script: "renameSeqs.py"}
	require.NoError(t, r.RenameContent(context.Background(), "/s/2222222222", types.RenameMap{"a_1.fa": "a.fa"}))
	require.Len(t, runner.calls, 1)
	assert.Equal(t, []string{"-u", "renameSeqs.py", "/s/2222222222/", `{"a_1.fa":"a.fa"}`}, runner.calls[0].Args)
}

func TestExecRunner(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	r := ExecRunner{}

	out, err := r.Run(context.Background(), Command{Name: "sh", Args: []string{"-c", "echo ok"}})
	require.NoError(t, err)
	assert.Equal(t, "ok\n", out.Stdout)

	_, err = r.Run(context.Background(), Command{Name: "sh", Args: []string{"-c", "echo boom >&2; exit 3"}})
	var procErr *ProcessError
	require.ErrorAs(t, err, &procErr)
	assert.Equal(t, 3, procErr.ExitCode)
	assert.Equal(t, "boom\n", procErr.Stderr)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = r.Run(ctx, Command{Name: "sh", Args: []string{"-c", "exec sleep 5"}})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
