package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"goa.design/clue/log"

	"github.com/jonathan/bulk-plasmid-seq/internal/observability"
	"github.com/jonathan/bulk-plasmid-seq/internal/pipeline"
	"github.com/jonathan/bulk-plasmid-seq/internal/runs"
	"github.com/jonathan/bulk-plasmid-seq/internal/types"
)

var runCommand = &cobra.Command{
	Use:   "run",
	Short: "Stage local files and run the analysis synchronously",
	Long: `Copies the read and reference files into fresh sessions, reconciles their names,
compiles the run options and runs the pipeline and post-processing in the foreground.

Options can be loaded from a JSON file using --options. Flags override file values.`,
	RunE: runAnalysisCmd,
}

var (
	runReads       []string
	runRefs        []string
	runOptionsPath string
	runMode        string
	runName        string
	runModel       string
	runDouble      bool
	runTrim        bool
	runFilter      bool
)

func init() {
	runCommand.Flags().StringSliceVarP(&runReads, "reads", "r", nil, "Sequencing read files (.fastq, .fq, optionally gzipped)")
	runCommand.Flags().StringSliceVarP(&runRefs, "refs", "p", nil, "Plasmid reference files (.fasta, .fa, .gb, optionally gzipped)")
	runCommand.Flags().StringVar(&runOptionsPath, "options", "", "JSON file with run options (same shape as the API's options object)")
	runCommand.Flags().StringVarP(&runMode, "mode", "m", "", "Analysis mode: medaka or biobin")
	runCommand.Flags().StringVarP(&runName, "name", "n", "", "Run name (generated when empty)")
	runCommand.Flags().StringVar(&runModel, "model", "", "Consensus model")
	runCommand.Flags().BoolVar(&runDouble, "double", false, "Double the reference for circular plasmids")
	runCommand.Flags().BoolVar(&runTrim, "trim", false, "Trim reads before mapping")
	runCommand.Flags().BoolVar(&runFilter, "filter", false, "Filter reads by length and quality")

	_ = runCommand.MarkFlagRequired("reads")
	_ = runCommand.MarkFlagRequired("refs")

	rootCmd.AddCommand(runCommand)
}

// runOptions merges defaults, the --options file and explicit flags.
func runOptions(cmd *cobra.Command) (types.RunOptions, error) {
	opts := types.DefaultRunOptions()
	if runOptionsPath != "" {
		data, err := os.ReadFile(runOptionsPath)
		if err != nil {
			return opts, fmt.Errorf("failed to read options file: %w", err)
		}
		if err := json.Unmarshal(data, &opts); err != nil {
			return opts, fmt.Errorf("failed to parse options file: %w", err)
		}
	}

	flags := cmd.Flags()
	if flags.Changed("mode") {
		opts.Mode = types.Mode(runMode)
	}
	if flags.Changed("name") {
		opts.Name = runName
	}
	if flags.Changed("model") {
		opts.MedakaModel = runModel
	}
	if flags.Changed("double") {
		opts.Double = runDouble
	}
	if flags.Changed("trim") {
		opts.Trim = runTrim
	}
	if flags.Changed("filter") {
		opts.Filter = runFilter
	}
	return opts, nil
}

// stageFiles copies local files into one new session and reports the stored
// names along with every rename the reconciliation made.
func stageFiles(ctx context.Context, svc *runs.Service, paths []string) (string, []string, types.RenameMap, error) {
	var serverID string
	names := make([]string, 0, len(paths))
	renamed := types.RenameMap{}
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return serverID, nil, nil, fmt.Errorf("failed to open %s: %w", path, err)
		}
		staged, err := svc.Stage(ctx, serverID, filepath.Base(path), f)
		f.Close()
		if err != nil {
			return serverID, nil, nil, fmt.Errorf("failed to stage %s: %w", path, err)
		}
		serverID = staged.ServerID
		names = append(names, staged.FileName)
		if staged.Original != "" {
			renamed[staged.FileName] = staged.Original
		}
	}
	return serverID, names, renamed, nil
}

// logProgress logs stage transitions.
func logProgress(ctx context.Context) pipeline.ProgressCallback {
	return func(ev pipeline.ProgressEvent) {
		kvs := []log.Fielder{log.KV{K: "stage", V: ev.Step}, log.KV{K: "status", V: ev.Status}}
		if ev.Message != "" {
			kvs = append(kvs, log.KV{K: "detail", V: ev.Message})
		}
		log.Info(ctx, kvs...)
	}
}

func runAnalysisCmd(cmd *cobra.Command, _ []string) error {
	opts, err := runOptions(cmd)
	if err != nil {
		return err
	}

	ctx, cfg, err := loadSettings(cmd.Context())
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	readID, readFiles, _, err := stageFiles(ctx, a.svc, runReads)
	if err != nil {
		return err
	}
	refID, refFiles, renamed, err := stageFiles(ctx, a.svc, runRefs)
	if err != nil {
		return err
	}

	req := &runs.RunRequest{
		ReadServerID: readID,
		ReadFiles:    readFiles,
		RefServerID:  refID,
		RefFiles:     refFiles,
		Renamed:      renamed,
		Options:      opts,
	}

	printer := observability.NewPrinter(cmd.OutOrStdout())
	printer.PrintRenameMap(renamed)

	result, runErr := a.svc.Run(ctx, req, logProgress(ctx))
	if result != nil {
		printer.PrintRunSummary(result)
	}
	return runErr
}
