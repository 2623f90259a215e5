package main

import (
	"context"
	"errors"
	"log/slog"
	nethttp "net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"issuesync/internal/http"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if port, _ := cmd.Flags().GetString("port"); port != "" {
			cfg.APIPort = port
		}

		a, err := newApp(cfg, engineConfig(cfg, "all"))
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		if err := a.checkEmbeddings(ctx); err != nil {
			return err
		}

		router := http.NewRouter(&http.Deps{
			SyncService: a.manager,
			VectorStore: a.vectorStore,
			Models:      a.models,
			LLMModel:    cfg.LLMModelName,
		})

		server := &nethttp.Server{
			Addr:              ":" + cfg.APIPort,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			slog.Info("Starting API server", "addr", server.Addr)
			slog.Debug("LLM configuration", "base_url", cfg.LLMBaseURL, "model", cfg.LLMModelName)
			errCh <- server.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if !errors.Is(err, nethttp.ErrServerClosed) {
				return err
			}
			return nil
		case <-ctx.Done():
		}

		slog.Info("Shutting down API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	},
}

func init() {
	serveCmd.Flags().String("port", "", "Port to listen on (overrides API_PORT)")
}
