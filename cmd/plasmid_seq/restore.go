package main

import (
	"github.com/spf13/cobra"

	"github.com/jonathan/bulk-plasmid-seq/internal/observability"
	"github.com/jonathan/bulk-plasmid-seq/internal/runs"
)

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Re-run post-processing over an existing result session",
	Long: `Reads the run parameters saved in a result session and runs only the
post-processing step again, e.g. after the results script was updated.`,
	RunE: runRestoreCmd,
}

var restoreReq runs.RestoreRequest

func init() {
	restoreCmd.Flags().StringVar(&restoreReq.ResServerID, "res-session", "", "Result session id (required)")
	restoreCmd.Flags().StringVar(&restoreReq.RefServerID, "ref-session", "", "Reference session id (required)")
	restoreCmd.Flags().StringVar(&restoreReq.RefFile, "ref-file", "", "Reference file to post-process against (defaults from the saved parameters)")
	restoreCmd.Flags().StringVarP(&restoreReq.Name, "name", "n", "", "Run name (defaults to the saved name)")

	_ = restoreCmd.MarkFlagRequired("res-session")
	_ = restoreCmd.MarkFlagRequired("ref-session")

	rootCmd.AddCommand(restoreCmd)
}

func runRestoreCmd(cmd *cobra.Command, _ []string) error {
	ctx, cfg, err := loadSettings(cmd.Context())
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	req := restoreReq
	result, err := a.svc.RestoreSync(ctx, &req, logProgress(ctx))
	if result != nil {
		observability.NewPrinter(cmd.OutOrStdout()).PrintRunSummary(result)
	}
	return err
}
