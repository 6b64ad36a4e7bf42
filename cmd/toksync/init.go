package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tokensmith/toksync/internal/store"
)

var initCmd = &cobra.Command{
	Use:     "init",
	GroupID: "sync",
	Short:   "Initialize a toksync project in the current directory",
	Long: `Create the .toksync data directory with an empty token database
and a starter configuration file.

Layout:
  .toksync/toksync.db    token database
  .toksync/tokens/       token JSON files (watched by 'toksync watch')
  .toksync.yaml          configuration (created if absent)`,
	Run: func(cmd *cobra.Command, args []string) {
		dir := dataDirName
		if _, err := os.Stat(dir); err == nil {
			fmt.Fprintf(os.Stderr, "Error: %s already exists\n", dir)
			os.Exit(1)
		}

		if err := os.MkdirAll(filepath.Join(dir, "tokens"), 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "Error creating %s: %v\n", dir, err)
			os.Exit(1)
		}

		db, err := store.Open(filepath.Join(dir, "toksync.db"))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating token database: %v\n", err)
			os.Exit(1)
		}
		defer db.Close()

		if err := db.InitSchema(); err != nil {
			fmt.Fprintf(os.Stderr, "Error initializing schema: %v\n", err)
			os.Exit(1)
		}

		if _, err := os.Stat(".toksync.yaml"); os.IsNotExist(err) {
			starter := `# toksync configuration
project: default
figma:
  file: ""       # Figma file key
  # token via TOKSYNC_FIGMA_TOKEN
sync:
  persist_dismissals: true
  auto_adopt: false
  # mode_overrides:
  #   "VariableCollectionId:1:2": "3:1"
dashboard:
  port: 8090
`
			if err := os.WriteFile(".toksync.yaml", []byte(starter), 0o644); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: cannot write .toksync.yaml: %v\n", err)
			}
		}

		fmt.Printf("Initialized toksync project in %s\n", dir)
		fmt.Println("Next: set figma.file in .toksync.yaml and export TOKSYNC_FIGMA_TOKEN")
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
