package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"issuesync/internal/config"
)

//go:generate swagger generate spec -o swagger.json

// General API information
//
// This API synchronizes GitHub issues into a local store and a vector index, and answers questions about them.
//
// swagger:meta
//
// ---
// swagger: '2.0'
// info:
//   title: issuesync API
//   description: |
//     Incremental GitHub issue synchronization with retrieval-augmented question answering.
//     Each repository gets its own SQLite database and Qdrant collection.
//   version: 1.0.0
// schemes:
//   - http
// consumes:
//   - application/json
// produces:
//   - application/json

var (
	cfg       *config.Config
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "issuesync",
	Short: "Sync GitHub issues into a searchable index",
	Long: `issuesync keeps a local SQLite copy of a repository's issues and comments,
mirrors them into a Qdrant collection as embedded chunks, and answers questions
over them with a chat model.

Configuration is read from the environment and from the first .env file found
walking up from the working directory. Flags override both.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		cfg = loaded

		logCloser = setupLogging(cfg, os.Stderr)
		slog.Debug("Logging configured", "level", cfg.LogLevel.String(), "format", cfg.LogFormat, "file", cfg.LogFile)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			_ = logCloser.Close()
		}
	},
}

func init() {
	rootCmd.AddCommand(syncCmd, reconcileCmd, statusCmd, logsCmd, askCmd, serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
