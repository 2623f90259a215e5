package main

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"issuesync/internal/config"
	"issuesync/internal/contextutil"
	"issuesync/internal/service"
)

var syncCmd = &cobra.Command{
	Use:   "sync <repo>",
	Short: "Fetch changed issues and reconcile the index",
	Long: `Fetch every issue updated since the last logged watermark, store it, and bring the
vector index in line with the stored issues.

<repo> may be owner/name, owner/name.git or an https://github.com URL.
--since accepts RFC 3339, a date (2024-01-31) or a phrase such as "3 days ago".`,
	Args: cobra.ExactArgs(1),
	RunE: runSync,
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile <repo>",
	Short: "Repair index debt without fetching",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := contextutil.WithLogger(cmd.Context(), slog.Default())

		a, err := newApp(cfg, engineConfig(cfg, ""))
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		if err := a.checkEmbeddings(ctx); err != nil {
			return err
		}

		result, err := a.manager.Reconcile(ctx, args[0])
		if err != nil {
			return err
		}
		renderSyncResult(cmd.OutOrStdout(), args[0], result)
		return nil
	},
}

func init() {
	f := syncCmd.Flags()
	f.String("token", "", "GitHub token (overrides GITHUB_TOKEN)")
	f.String("state", "all", "Issue state to fetch: open, closed or all")
	f.Int("page-size", 0, "Issues per page, 1-100 (overrides GITHUB_PAGE_SIZE)")
	f.Int("chunk-size", 0, "Chunk size in tokens (overrides CHUNK_SIZE)")
	f.Int("chunk-overlap", 0, "Chunk overlap in tokens (overrides CHUNK_OVERLAP)")
	f.Int("context-chars", 0, "Issue body characters prefixed to comment chunks (overrides ISSUE_CONTEXT_CHARS)")
	f.String("watermark-buffer", "", "Rewind the watermark by this duration or number of seconds (overrides WATERMARK_BUFFER)")
	f.Bool("disable-buffer", false, "Use the watermark exactly, ignoring any buffer")
	f.String("since", "", "Fetch issues updated since this time instead of the watermark")
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := contextutil.WithLogger(cmd.Context(), slog.Default())

	state, err := applySyncFlags(cmd, cfg)
	if err != nil {
		return err
	}

	var opts service.SyncOptions
	if raw, _ := cmd.Flags().GetString("since"); raw != "" {
		since, err := parseSince(raw, time.Now())
		if err != nil {
			return err
		}
		opts.Since = &since
	}

	a, err := newApp(cfg, engineConfig(cfg, state))
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if err := a.checkEmbeddings(ctx); err != nil {
		return err
	}

	result, err := a.manager.Sync(ctx, args[0], opts)
	if err != nil {
		return err
	}
	renderSyncResult(cmd.OutOrStdout(), args[0], result)
	return nil
}

// applySyncFlags copies the flags that were set onto cfg, revalidates it and returns the issue state.
func applySyncFlags(cmd *cobra.Command, cfg *config.Config) (string, error) {
	f := cmd.Flags()
	if f.Changed("token") {
		cfg.GitHubToken, _ = f.GetString("token")
	}
	if f.Changed("page-size") {
		cfg.GitHubPageSize, _ = f.GetInt("page-size")
	}
	if f.Changed("chunk-size") {
		cfg.ChunkSize, _ = f.GetInt("chunk-size")
	}
	if f.Changed("chunk-overlap") {
		cfg.ChunkOverlap, _ = f.GetInt("chunk-overlap")
	}
	if f.Changed("context-chars") {
		cfg.IssueContextChars, _ = f.GetInt("context-chars")
	}
	if f.Changed("watermark-buffer") {
		raw, _ := f.GetString("watermark-buffer")
		buffer, err := config.ParseBuffer(raw)
		if err != nil {
			return "", fmt.Errorf("--watermark-buffer: %w", err)
		}
		cfg.WatermarkBuffer = buffer
	}
	if disable, _ := f.GetBool("disable-buffer"); disable {
		cfg.WatermarkBuffer = 0
	}
	if err := cfg.Validate(); err != nil {
		return "", err
	}

	state, _ := f.GetString("state")
	state = strings.ToLower(state)
	switch state {
	case "open", "closed", "all":
		return state, nil
	default:
		return "", fmt.Errorf("--state must be open, closed or all, got %q", state)
	}
}
