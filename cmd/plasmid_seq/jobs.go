package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jonathan/bulk-plasmid-seq/internal/observability"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs [job-id]",
	Short: "Show background jobs recorded by the server",
	Long: `Lists recent jobs, or shows one job with its stage timeline. Only useful with
a persistent job store (database_url or state_dir).`,
	Args: cobra.MaximumNArgs(1),
	RunE: runJobsCmd,
}

var jobsLimit int

func init() {
	jobsCmd.Flags().IntVar(&jobsLimit, "limit", 20, "Maximum number of jobs to list")
	rootCmd.AddCommand(jobsCmd)
}

func runJobsCmd(cmd *cobra.Command, args []string) error {
	ctx, cfg, err := loadSettings(cmd.Context())
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" && cfg.StateDir == "" {
		return fmt.Errorf("no persistent job store configured; set database_url or state_dir")
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	printer := observability.NewPrinter(cmd.OutOrStdout())
	if len(args) == 1 {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid job id %q: %w", args[0], err)
		}
		job, err := a.manager.Get(ctx, id)
		if err != nil {
			return err
		}
		printer.PrintJob(job)
		return nil
	}

	list, err := a.manager.List(ctx, jobsLimit)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No jobs recorded")
		return nil
	}
	for _, job := range list {
		printer.PrintJob(job)
	}
	return nil
}
