package main

import (
	"github.com/spf13/cobra"

	"github.com/jonathan/bulk-plasmid-seq/internal/observability"
	"github.com/jonathan/bulk-plasmid-seq/internal/runs"
)

var packageCmd = &cobra.Command{
	Use:   "package <result-session>",
	Short: "Archive a result session as a .tar.gz",
	Args:  cobra.ExactArgs(1),
	RunE:  runPackageCmd,
}

func init() {
	rootCmd.AddCommand(packageCmd)
}

func runPackageCmd(cmd *cobra.Command, args []string) error {
	ctx, cfg, err := loadSettings(cmd.Context())
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	archive, err := a.svc.Package(ctx, &runs.PackageRequest{ServerID: args[0]})
	if err != nil {
		return err
	}
	observability.NewPrinter(cmd.OutOrStdout()).PrintArchive(archive.ServerID, archive.FileName, archive.Size)
	return nil
}
