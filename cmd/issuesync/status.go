package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"issuesync/internal/contextutil"
	"issuesync/internal/service"
)

var statusCmd = &cobra.Command{
	Use:   "status <repo>",
	Short: "Show stored counts and the last sync",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := contextutil.WithLogger(cmd.Context(), slog.Default())
		format, _ := cmd.Flags().GetString("format")
		if err := checkFormat(format); err != nil {
			return err
		}

		a, err := newApp(cfg, engineConfig(cfg, ""))
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		status, err := a.manager.Status(ctx, args[0])
		if err != nil {
			return err
		}
		if format == "table" {
			renderStatus(cmd.OutOrStdout(), status)
			return nil
		}
		return encode(cmd.OutOrStdout(), format, status)
	},
}

var logsCmd = &cobra.Command{
	Use:   "logs <repo>",
	Short: "List recent sync runs, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := contextutil.WithLogger(cmd.Context(), slog.Default())
		format, _ := cmd.Flags().GetString("format")
		if err := checkFormat(format); err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cfg, engineConfig(cfg, ""))
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		entries, err := a.manager.Logs(ctx, args[0], limit)
		if err != nil {
			return err
		}
		if format == "table" {
			renderLogs(cmd.OutOrStdout(), entries)
			return nil
		}
		return encode(cmd.OutOrStdout(), format, entries)
	},
}

func init() {
	statusCmd.Flags().String("format", "table", "Output format: table, json or yaml")
	logsCmd.Flags().String("format", "table", "Output format: table, json or yaml")
	logsCmd.Flags().Int("limit", service.DefaultLogLimit, "Number of runs to show")
}

func checkFormat(format string) error {
	switch format {
	case "table", "json", "yaml":
		return nil
	default:
		return fmt.Errorf("--format must be table, json or yaml, got %q", format)
	}
}

// encode writes v as indented JSON or YAML.
func encode(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("--format must be table, json or yaml, got %q", format)
	}
}
