package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tokensmith/toksync/internal/diff"
)

var diffCmd = &cobra.Command{
	Use:     "diff",
	GroupID: "sync",
	Short:   "Compare the token store against the remote Figma file",
	Long: `Fetch the remote variable snapshot and report every divergence
between it and the local token store.

Divergence kinds:
  ADDED      variable exists remotely with no local counterpart
  REMOVED    a linked token's variable is gone from the remote file
  MODIFIED   both sides exist and their canonical values differ

Each divergence carries a key (e.g. modified:tk-a1b2c3d4e5f6) usable
with 'toksync apply' to submit a resolution.`,
	Run: func(cmd *cobra.Command, args []string) {
		asJSON, _ := cmd.Flags().GetBool("json")

		dir := requireDataDir()
		db := openStore(dir)
		defer db.Close()

		cfg := resolveSyncConfig()
		eng := newEngine(db, cfg, nil)

		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		res, err := eng.Diff(ctx, cfg.projectID, cfg.fileKey)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error computing diff: %v\n", err)
			os.Exit(1)
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(res); err != nil {
				fmt.Fprintf(os.Stderr, "Error encoding result: %v\n", err)
				os.Exit(1)
			}
			return
		}

		if len(res.Divergences) == 0 {
			fmt.Println("In sync: no divergences")
			return
		}

		fmt.Printf("%d divergence(s) against %s:\n\n", len(res.Divergences), cfg.fileKey)
		for _, d := range res.Divergences {
			printDivergence(d)
		}
	},
}

func printDivergence(d diff.Divergence) {
	name := d.Name
	if d.Category != "" {
		name = d.Category + "/" + name
	}
	fmt.Printf("  [%s] %s (%s)\n", d.Kind, name, d.Key)

	switch d.Kind {
	case diff.Added:
		if d.RemoteInvalid {
			fmt.Printf("      remote: %s (malformed)\n", d.RemoteValue)
		} else {
			fmt.Printf("      remote: %s\n", d.RemoteValue)
		}
	case diff.Removed:
		fmt.Printf("      local:  %s\n", d.LocalValue)
	case diff.Modified:
		fmt.Printf("      local:  %s\n", d.LocalValue)
		if d.RemoteInvalid {
			fmt.Printf("      remote: %s (malformed)\n", d.RemoteValue)
		} else {
			fmt.Printf("      remote: %s\n", d.RemoteValue)
		}
		if d.Proposed {
			fmt.Printf("      match:  proposed by name\n")
		}
	}
	fmt.Println()
}

func init() {
	diffCmd.Flags().Bool("json", false, "emit the divergence set as JSON")
	rootCmd.AddCommand(diffCmd)
}
