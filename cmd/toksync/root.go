package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tokensmith/toksync/internal/engine"
	"github.com/tokensmith/toksync/internal/figma"
	"github.com/tokensmith/toksync/internal/store"
)

const dataDirName = ".toksync"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "toksync",
	Short: "Design token store synchronized with Figma variables",
	Long: `toksync keeps a local design token store in sync with the variables
of a Figma file.

Tokens live in a local SQLite database (.toksync/toksync.db) with an
append-only history of every change. The diff command compares the store
against the remote file and reports divergences; apply commits your
resolution choices; import bulk-adopts the remote state.

Configuration is read from .toksync.yaml (or --config) and TOKSYNC_*
environment variables:
  figma.token   Figma personal access token (TOKSYNC_FIGMA_TOKEN)
  figma.file    Figma file key
  project       Project identifier`,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default .toksync.yaml)")
	rootCmd.PersistentFlags().String("project", "", "project identifier")
	rootCmd.PersistentFlags().String("file", "", "Figma file key")
	rootCmd.PersistentFlags().String("figma-token", "", "Figma personal access token")

	_ = viper.BindPFlag("project", rootCmd.PersistentFlags().Lookup("project"))
	_ = viper.BindPFlag("figma.file", rootCmd.PersistentFlags().Lookup("file"))
	_ = viper.BindPFlag("figma.token", rootCmd.PersistentFlags().Lookup("figma-token"))

	rootCmd.AddGroup(
		&cobra.Group{ID: "sync", Title: "Sync Commands:"},
		&cobra.Group{ID: "advanced", Title: "Advanced Commands:"},
	)
}

// initConfig reads in the config file and TOKSYNC_* environment variables.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName(".toksync")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		if dir := findDataDir(); dir != "" {
			viper.AddConfigPath(filepath.Dir(dir))
		}
	}

	viper.SetEnvPrefix("TOKSYNC")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("sync.persist_dismissals", true)
	viper.SetDefault("sync.auto_adopt", false)
	viper.SetDefault("dashboard.port", 8090)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Warning: cannot read config: %v\n", err)
		}
	}
}

// findDataDir walks up from the current directory looking for .toksync/.
// Returns "" when no data directory exists.
func findDataDir() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, dataDirName)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// requireDataDir locates the data directory or exits with guidance.
func requireDataDir() string {
	dir := findDataDir()
	if dir == "" {
		fmt.Fprintf(os.Stderr, "Error: %s directory not found\n", dataDirName)
		fmt.Fprintf(os.Stderr, "Run 'toksync init' to set up a project\n")
		os.Exit(1)
	}
	return dir
}

// openStore opens the token database under dir with the schema applied.
func openStore(dir string) *store.DB {
	db, err := store.Open(filepath.Join(dir, "toksync.db"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening token database: %v\n", err)
		os.Exit(1)
	}
	if err := db.InitSchema(); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing schema: %v\n", err)
		os.Exit(1)
	}
	return db
}

// syncConfig is the resolved configuration for commands that reach the
// remote design file.
type syncConfig struct {
	projectID string
	fileKey   string
	token     string
}

func resolveSyncConfig() syncConfig {
	cfg := syncConfig{
		projectID: viper.GetString("project"),
		fileKey:   viper.GetString("figma.file"),
		token:     viper.GetString("figma.token"),
	}
	if cfg.projectID == "" {
		cfg.projectID = "default"
	}
	if cfg.fileKey == "" {
		fmt.Fprintf(os.Stderr, "Error: no Figma file configured (set figma.file or --file)\n")
		os.Exit(1)
	}
	if cfg.token == "" {
		fmt.Fprintf(os.Stderr, "Error: no Figma token configured (set TOKSYNC_FIGMA_TOKEN or figma.token)\n")
		os.Exit(1)
	}
	return cfg
}

// newEngine builds a sync engine wired to the real Figma API.
func newEngine(db *store.DB, cfg syncConfig, logger *log.Logger) engine.Engine {
	client := figma.NewClient(cfg.token, nil)
	opts := engine.Options{
		ModeOverrides:     viper.GetStringMapString("sync.mode_overrides"),
		PersistDismissals: viper.GetBool("sync.persist_dismissals"),
	}
	return engine.New(db, client, opts, logger)
}
