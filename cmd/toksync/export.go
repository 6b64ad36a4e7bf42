package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tokensmith/toksync/internal/token"
)

// yamlToken is the export document shape for a single token.
type yamlToken struct {
	Name        string `yaml:"name"`
	Value       string `yaml:"value"`
	Type        string `yaml:"type"`
	Description string `yaml:"description,omitempty"`
	ExternalRef string `yaml:"external_ref,omitempty"`
}

var exportCmd = &cobra.Command{
	Use:     "export",
	GroupID: "sync",
	Short:   "Export the token store to files",
	Long: `Export the token store for consumption by build tooling.

Formats:
  files   one JSON file per token under .toksync/tokens/ (default)
  yaml    a single YAML document grouped by category, written to
          stdout or --out

Examples:
  toksync export
  toksync export --format yaml --out tokens.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		format, _ := cmd.Flags().GetString("format")
		outPath, _ := cmd.Flags().GetString("out")

		dir := requireDataDir()
		db := openStore(dir)
		defer db.Close()

		projectID := resolveProjectID()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		tokens, err := db.ReadSnapshot(ctx, projectID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading tokens: %v\n", err)
			os.Exit(1)
		}

		switch format {
		case "files":
			tokensDir := filepath.Join(dir, "tokens")
			if err := os.MkdirAll(tokensDir, 0o755); err != nil {
				fmt.Fprintf(os.Stderr, "Error creating tokens directory: %v\n", err)
				os.Exit(1)
			}
			for _, tok := range tokens {
				if err := token.WriteFile(tokensDir, tok); err != nil {
					fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", tok.ID, err)
					os.Exit(1)
				}
			}
			fmt.Printf("Exported %d token(s) to %s\n", len(tokens), tokensDir)

		case "yaml":
			doc := make(map[string][]yamlToken)
			for _, tok := range tokens {
				cat := tok.Category
				if cat == "" {
					cat = "uncategorized"
				}
				doc[cat] = append(doc[cat], yamlToken{
					Name:        tok.Name,
					Value:       tok.Value,
					Type:        string(tok.Type),
					Description: tok.Description,
					ExternalRef: tok.ExternalRef,
				})
			}

			out := os.Stdout
			if outPath != "" {
				f, err := os.Create(outPath)
				if err != nil {
					fmt.Fprintf(os.Stderr, "Error creating %s: %v\n", outPath, err)
					os.Exit(1)
				}
				defer f.Close()
				out = f
			}

			enc := yaml.NewEncoder(out)
			enc.SetIndent(2)
			if err := enc.Encode(doc); err != nil {
				fmt.Fprintf(os.Stderr, "Error encoding YAML: %v\n", err)
				os.Exit(1)
			}
			_ = enc.Close()
			if outPath != "" {
				fmt.Printf("Exported %d token(s) to %s\n", len(tokens), outPath)
			}

		default:
			fmt.Fprintf(os.Stderr, "Error: unknown format %q (files, yaml)\n", format)
			os.Exit(1)
		}
	},
}

func init() {
	exportCmd.Flags().String("format", "files", "export format (files, yaml)")
	exportCmd.Flags().String("out", "", "output path for yaml format (default stdout)")
	rootCmd.AddCommand(exportCmd)
}
