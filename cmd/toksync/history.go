package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tokensmith/toksync/internal/store"
	"github.com/tokensmith/toksync/internal/token"
)

var historyCmd = &cobra.Command{
	Use:     "history",
	GroupID: "sync",
	Short:   "Show the change history of the token store",
	Long: `List recorded token changes, oldest first.

Every create, update, delete, and import writes an entry recording the
changed fields, who made the change, and where it came from (MANUAL,
FIGMA, AUTOMATION, AI). Entries are append-only; deleting a token does
not remove its history.

Examples:
  toksync history
  toksync history --token tk-a1b2c3d4e5f6
  toksync history --origin FIGMA --limit 20`,
	Run: func(cmd *cobra.Command, args []string) {
		tokenID, _ := cmd.Flags().GetString("token")
		originFlag, _ := cmd.Flags().GetString("origin")
		actionFlag, _ := cmd.Flags().GetString("action")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")
		asJSON, _ := cmd.Flags().GetBool("json")

		dir := requireDataDir()
		db := openStore(dir)
		defer db.Close()

		projectID := resolveProjectID()

		filter := store.HistoryFilter{
			TokenID: tokenID,
			Limit:   limit,
			Offset:  offset,
		}
		if originFlag != "" {
			origin := token.Origin(strings.ToUpper(originFlag))
			if !origin.IsValid() {
				fmt.Fprintf(os.Stderr, "Error: invalid origin %q\n", originFlag)
				os.Exit(1)
			}
			filter.Origin = origin
		}
		if actionFlag != "" {
			filter.Action = token.Action(strings.ToLower(actionFlag))
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		entries, err := db.ListHistory(ctx, projectID, filter)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing history: %v\n", err)
			os.Exit(1)
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(entries); err != nil {
				fmt.Fprintf(os.Stderr, "Error encoding result: %v\n", err)
				os.Exit(1)
			}
			return
		}

		if len(entries) == 0 {
			fmt.Println("No history entries")
			return
		}

		for _, e := range entries {
			actor := e.Actor
			if actor == "" {
				actor = "-"
			}
			fmt.Printf("%s  %-8s  %-10s  %s  (%s)\n",
				e.CreatedAt.Format(time.RFC3339), e.Action, e.Origin, e.TokenID, actor)

			fields := make([]string, 0, len(e.Changes))
			for f := range e.Changes {
				fields = append(fields, f)
			}
			sort.Strings(fields)
			for _, f := range fields {
				c := e.Changes[f]
				fmt.Printf("    %s: %q -> %q\n", f, c.Before, c.After)
			}
		}
	},
}

// resolveProjectID reads the configured project without requiring the
// remote file settings.
func resolveProjectID() string {
	if p := viper.GetString("project"); p != "" {
		return p
	}
	return "default"
}

func init() {
	historyCmd.Flags().String("token", "", "filter by token ID")
	historyCmd.Flags().String("origin", "", "filter by origin (MANUAL, FIGMA, AUTOMATION, AI)")
	historyCmd.Flags().String("action", "", "filter by action (created, updated, deleted, imported)")
	historyCmd.Flags().Int("limit", 0, "maximum number of entries (0 = all)")
	historyCmd.Flags().Int("offset", 0, "number of entries to skip")
	historyCmd.Flags().Bool("json", false, "emit entries as JSON")
	rootCmd.AddCommand(historyCmd)
}
