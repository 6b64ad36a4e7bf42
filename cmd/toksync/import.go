package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:     "import",
	GroupID: "sync",
	Short:   "Bulk-adopt the remote state of the Figma file",
	Long: `Adopt every remote addition and modification in one pass.

Import resolves each ADDED and MODIFIED divergence in favor of the
remote side. REMOVED divergences are left untouched: import never
deletes local tokens. Variables whose values fail normalization are
skipped and reported, without aborting the rest of the batch.

History entries are recorded with origin FIGMA.`,
	Run: func(cmd *cobra.Command, args []string) {
		dir := requireDataDir()
		db := openStore(dir)
		defer db.Close()

		cfg := resolveSyncConfig()
		eng := newEngine(db, cfg, nil)

		ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
		defer cancel()

		start := time.Now()
		res, err := eng.Import(ctx, cfg.projectID, cfg.fileKey)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error importing: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Import complete in %v\n", time.Since(start).Round(time.Millisecond))
		fmt.Printf("   Created: %d\n", res.Created)
		fmt.Printf("   Updated: %d\n", res.Updated)
		if len(res.Errors) > 0 {
			fmt.Printf("   Skipped: %d\n", len(res.Errors))
			for _, ie := range res.Errors {
				fmt.Fprintf(os.Stderr, "   Warning: %s: %s\n", ie.Name, ie.Reason)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
}
