package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tokensmith/toksync/internal/engine"
	"github.com/tokensmith/toksync/internal/resolve"
	"github.com/tokensmith/toksync/internal/token"
)

var applyCmd = &cobra.Command{
	Use:     "apply",
	GroupID: "sync",
	Short:   "Resolve divergences and commit the result",
	Long: `Submit resolution choices for divergences reported by 'toksync diff'
and commit the resulting mutations in a single transaction.

Choices reference divergences by key:
  --keep-local KEY        keep the local side (dismisses an ADDED
                          divergence, acknowledges a MODIFIED one)
  --use-remote KEY        adopt the remote side
  --set KEY=VALUE         override both sides with an explicit value
  --all-remote            adopt the remote side of every divergence
  --all-local             keep the local side of every divergence

Examples:
  toksync apply --use-remote modified:tk-a1b2c3d4e5f6
  toksync apply --keep-local added:VariableID:12:34 --set modified:tk-9f8e7d6c5b4a=#112233ff
  toksync apply --all-remote`,
	Run: func(cmd *cobra.Command, args []string) {
		keepLocal, _ := cmd.Flags().GetStringArray("keep-local")
		useRemote, _ := cmd.Flags().GetStringArray("use-remote")
		sets, _ := cmd.Flags().GetStringArray("set")
		allRemote, _ := cmd.Flags().GetBool("all-remote")
		allLocal, _ := cmd.Flags().GetBool("all-local")
		actor, _ := cmd.Flags().GetString("actor")
		originFlag, _ := cmd.Flags().GetString("origin")

		if allRemote && allLocal {
			fmt.Fprintf(os.Stderr, "Error: --all-remote and --all-local are mutually exclusive\n")
			os.Exit(1)
		}

		origin := token.Origin(strings.ToUpper(originFlag))
		if !origin.IsValid() {
			fmt.Fprintf(os.Stderr, "Error: invalid origin %q (MANUAL, FIGMA, AUTOMATION, AI)\n", originFlag)
			os.Exit(1)
		}

		dir := requireDataDir()
		db := openStore(dir)
		defer db.Close()

		cfg := resolveSyncConfig()
		eng := newEngine(db, cfg, nil)

		ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
		defer cancel()

		var resolutions []engine.Resolution
		for _, key := range keepLocal {
			resolutions = append(resolutions, engine.Resolution{Key: key, Choice: resolve.Choice{Kind: resolve.KeepLocal}})
		}
		for _, key := range useRemote {
			resolutions = append(resolutions, engine.Resolution{Key: key, Choice: resolve.Choice{Kind: resolve.UseRemote}})
		}
		for _, kv := range sets {
			key, val, ok := strings.Cut(kv, "=")
			if !ok {
				fmt.Fprintf(os.Stderr, "Error: --set requires KEY=VALUE, got %q\n", kv)
				os.Exit(1)
			}
			resolutions = append(resolutions, engine.Resolution{Key: key, Choice: resolve.ExplicitValue(val)})
		}

		if allRemote || allLocal {
			kind := resolve.UseRemote
			if allLocal {
				kind = resolve.KeepLocal
			}
			diffRes, err := eng.Diff(ctx, cfg.projectID, cfg.fileKey)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error computing diff: %v\n", err)
				os.Exit(1)
			}
			for _, d := range diffRes.Divergences {
				// Malformed remote values cannot be adopted; leave them open.
				if kind == resolve.UseRemote && d.RemoteInvalid {
					fmt.Fprintf(os.Stderr, "Warning: skipping %s: remote value is malformed\n", d.Key)
					continue
				}
				resolutions = append(resolutions, engine.Resolution{Key: d.Key, Choice: resolve.Choice{Kind: kind}})
			}
		}

		if len(resolutions) == 0 {
			fmt.Println("Nothing to apply")
			return
		}

		res, err := eng.Apply(ctx, cfg.projectID, cfg.fileKey, resolutions, origin, actor)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error applying resolutions: %v\n", err)
			os.Exit(1)
		}

		a := res.Applied
		fmt.Printf("Applied %d resolution(s)\n", len(resolutions))
		fmt.Printf("   Created: %d\n", a.Created)
		fmt.Printf("   Updated: %d\n", a.Updated)
		fmt.Printf("   Deleted: %d\n", a.Deleted)
		fmt.Printf("   Dismissed: %d\n", a.Dismissed)
		fmt.Printf("   Acknowledged: %d\n", a.Acknowledged)
		if a.Noops > 0 {
			fmt.Printf("   No-ops: %d\n", a.Noops)
		}
	},
}

func init() {
	applyCmd.Flags().StringArray("keep-local", nil, "divergence key to resolve by keeping the local side")
	applyCmd.Flags().StringArray("use-remote", nil, "divergence key to resolve by adopting the remote side")
	applyCmd.Flags().StringArray("set", nil, "KEY=VALUE explicit override for a divergence")
	applyCmd.Flags().Bool("all-remote", false, "adopt the remote side of every divergence")
	applyCmd.Flags().Bool("all-local", false, "keep the local side of every divergence")
	applyCmd.Flags().String("actor", "", "actor recorded on history entries")
	applyCmd.Flags().String("origin", "MANUAL", "origin recorded on history entries (MANUAL, FIGMA, AUTOMATION, AI)")
	rootCmd.AddCommand(applyCmd)
}
