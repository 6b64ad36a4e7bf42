package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/tokensmith/toksync/internal/daemon"
	"github.com/tokensmith/toksync/internal/dashboard"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	GroupID: "advanced",
	Short:   "Run the sync daemon with a real-time dashboard",
	Long: `Run the long-lived sync daemon.

The daemon:
  - watches .toksync/tokens/*.json and records edits as MANUAL changes
  - periodically re-diffs the store against the remote file
  - with --auto-adopt, imports remote additions and modifications
  - broadcasts updates over the dashboard WebSocket

WebSocket messages include:
  divergences     a freshly computed divergence set
  apply_complete  a mutation batch was committed
  sync_complete   a reconciliation pass finished
  token_update    a token file was created, edited, or deleted

Example usage:
  toksync watch                        # dashboard on default port 8090
  toksync watch --port 9000 --interval 1m
  toksync watch --auto-adopt

Connect with a WebSocket client:
  ws://localhost:8090/ws`,
	Run: func(cmd *cobra.Command, args []string) {
		port, _ := cmd.Flags().GetInt("port")
		interval, _ := cmd.Flags().GetDuration("interval")
		autoAdopt, _ := cmd.Flags().GetBool("auto-adopt")
		noDashboard, _ := cmd.Flags().GetBool("no-dashboard")

		if !cmd.Flags().Changed("port") {
			port = viper.GetInt("dashboard.port")
		}
		if !cmd.Flags().Changed("auto-adopt") {
			autoAdopt = viper.GetBool("sync.auto_adopt")
		}

		dir := requireDataDir()
		db := openStore(dir)
		defer db.Close()

		cfg := resolveSyncConfig()
		logger := newWatchLogger(dir)

		eng := newEngine(db, cfg, logger)

		// Start dashboard
		var dash *dashboard.Server
		if !noDashboard {
			dash = dashboard.NewServer(&dashboard.Config{Port: port, Logger: logger})
			if err := dash.Start(); err != nil {
				fmt.Fprintf(os.Stderr, "Error: failed to start dashboard: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("Dashboard: http://localhost:%d (ws://localhost:%d/ws)\n", port, port)
		}

		dcfg := daemon.DefaultConfig()
		dcfg.RemoteSyncInterval = interval
		dcfg.AutoAdopt = autoAdopt
		dcfg.Logger = logger

		d, err := daemon.New(db, eng, dash, cfg.projectID, cfg.fileKey, filepath.Join(dir, "tokens"), dcfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to create daemon: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Watching %s against %s (interval %v)\n", filepath.Join(dir, "tokens"), cfg.fileKey, interval)
		fmt.Println("Press Ctrl+C to stop...")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if err := d.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: daemon failed: %v\n", err)
			os.Exit(1)
		}

		if dash != nil {
			if err := dash.Stop(); err != nil {
				fmt.Fprintf(os.Stderr, "Error during dashboard shutdown: %v\n", err)
			}
		}
	},
}

// newWatchLogger builds the daemon logger. With log.file configured the
// log is rotated; otherwise it tees to stderr only.
func newWatchLogger(dir string) *log.Logger {
	var out io.Writer = os.Stderr
	if path := viper.GetString("log.file"); path != "" {
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		out = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   path,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		})
	}
	return log.New(out, "[toksync] ", log.LstdFlags)
}

func init() {
	watchCmd.Flags().Int("port", 8090, "dashboard port")
	watchCmd.Flags().Duration("interval", 5*time.Minute, "remote re-diff interval")
	watchCmd.Flags().Bool("auto-adopt", false, "automatically adopt remote additions and modifications")
	watchCmd.Flags().Bool("no-dashboard", false, "run without the WebSocket dashboard")
	rootCmd.AddCommand(watchCmd)
}
