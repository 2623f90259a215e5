package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"issuesync/internal/contextutil"
	"issuesync/internal/rag"
)

var askCmd = &cobra.Command{
	Use:   "ask <repo> <question>",
	Short: "Answer a question from the repository's issues",
	Long: `Retrieve the issue and comment chunks closest to the question, rerank them and ask
the chat model to answer from them. The answer cites issues as #123.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := contextutil.WithLogger(cmd.Context(), slog.Default())
		f := cmd.Flags()

		req := rag.AskRequest{Question: strings.Join(args[1:], " ")}
		req.State, _ = f.GetString("state")
		req.Kind, _ = f.GetString("kind")
		req.K, _ = f.GetInt("k")
		req.Detail, _ = f.GetString("detail")
		req.Debug, _ = f.GetBool("debug")
		stream, _ := f.GetBool("stream")

		a, err := newApp(cfg, engineConfig(cfg, ""))
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		out := cmd.OutOrStdout()
		if stream {
			req.OnToken = func(token string) error {
				_, err := fmt.Fprint(out, token)
				return err
			}
		}

		resp, err := a.manager.Ask(ctx, args[0], req)
		if err != nil {
			return err
		}
		if stream {
			fmt.Fprintln(out)
		} else {
			fmt.Fprintln(out, resp.Answer)
		}
		renderReferences(out, resp.References)
		if resp.Debug != nil {
			renderDebug(out, resp.Debug)
		}
		return nil
	},
}

func init() {
	f := askCmd.Flags()
	f.Bool("stream", false, "Print the answer as it is generated")
	f.String("state", "", "Only use open or closed issues")
	f.String("kind", "", "Only use issue bodies (issue) or comments (comment)")
	f.Int("k", 0, "Number of chunks to retrieve, 0 picks one from the question")
	f.String("detail", "", "Answer length: brief, normal or detailed")
	f.Bool("debug", false, "Show the retrieved chunks and their scores")
}
