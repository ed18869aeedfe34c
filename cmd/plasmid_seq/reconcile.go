package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/bulk-plasmid-seq/internal/observability"
	"github.com/jonathan/bulk-plasmid-seq/internal/types"
	"github.com/jonathan/bulk-plasmid-seq/internal/upload"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile <name>...",
	Short: "Show how uploaded file names would be stored",
	Long: `Prints the stored name of each argument and the resulting rename map.

By default names are added one at a time, as uploads arrive, after any
--existing names. With --batch the whole list is reconciled at once.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runReconcileCmd,
}

var (
	reconcileExisting []string
	reconcileBatch    bool
)

func init() {
	reconcileCmd.Flags().StringSliceVar(&reconcileExisting, "existing", nil, "Names already present in the session")
	reconcileCmd.Flags().BoolVar(&reconcileBatch, "batch", false, "Reconcile all names as one batch")
	rootCmd.AddCommand(reconcileCmd)
}

// reconcileNames returns the stored name of every incoming name.
func reconcileNames(existing, incoming []string, batch bool) ([]string, types.RenameMap) {
	if batch {
		return upload.ReconcileSet(incoming)
	}
	taken := append([]string(nil), existing...)
	final := make([]string, len(incoming))
	renamed := types.RenameMap{}
	for i, name := range incoming {
		res := upload.Add(taken, name)
		final[i] = res.Name
		taken = append(taken, res.Name)
		if res.Renamed() {
			renamed[res.Name] = res.Original
		}
	}
	return final, renamed
}

func runReconcileCmd(cmd *cobra.Command, args []string) error {
	if reconcileBatch && len(reconcileExisting) > 0 {
		return fmt.Errorf("--existing cannot be combined with --batch")
	}
	final, renamed := reconcileNames(reconcileExisting, args, reconcileBatch)
	out := cmd.OutOrStdout()
	for i, name := range final {
		fmt.Fprintf(out, "%s -> %s\n", args[i], name)
	}
	observability.NewPrinter(out).PrintRenameMap(renamed)
	return nil
}
