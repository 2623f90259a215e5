package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"issuesync/internal/rag"
	"issuesync/internal/service"
	"issuesync/internal/syncer"
)

var (
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))  // Bright blue
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))  // Bright green
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))  // Bright yellow
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("7"))
	boxStyle    = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("12")).
			Padding(0, 1).
			Align(lipgloss.Left)
)

// row renders one "label  value" line with aligned labels.
func row(label string, value any) string {
	return fmt.Sprintf("%s %v", dimStyle.Render(fmt.Sprintf("%-16s", label)), value)
}

func renderSyncResult(w io.Writer, repo string, r syncer.Result) {
	lines := []string{
		headerStyle.Render("Synced " + repo),
		"",
		row("New", okStyle.Render(fmt.Sprint(r.New))),
		row("Updated", accentStyle.Render(fmt.Sprint(r.Updated))),
		row("Redundant", r.Redundant),
		row("Issues", fmt.Sprintf("%d → %d", r.BeforeCount, r.AfterCount)),
		row("Pages", r.Pages),
		row("Reconciled", r.Reconciled),
	}
	if r.ReconcileFailed > 0 {
		lines = append(lines, row("Failed", warnStyle.Render(fmt.Sprint(r.ReconcileFailed))))
	}
	if r.DebtRepaired > 0 {
		lines = append(lines, row("Debt repaired", r.DebtRepaired))
	}
	if r.Since != nil {
		lines = append(lines, row("Since", r.Since.Format(time.RFC3339)))
	}
	if !r.Watermark.IsZero() {
		lines = append(lines, row("Watermark", r.Watermark.Format(time.RFC3339)))
	}
	if r.Chunks.Count > 0 {
		lines = append(lines, row("Chunk tokens", fmt.Sprintf("n=%d min=%d max=%d mean=%.1f p95=%d",
			r.Chunks.Count, r.Chunks.Min, r.Chunks.Max, r.Chunks.Mean, r.Chunks.P95)))
	}
	if r.Rate != nil {
		lines = append(lines, row("Rate limit", fmt.Sprintf("%d/%d, resets %s",
			r.Rate.Remaining, r.Rate.Limit, r.Rate.Reset.Local().Format(time.Kitchen))))
	}
	lines = append(lines, row("Duration", r.Duration.Round(time.Millisecond)))

	fmt.Fprintln(w, boxStyle.Render(strings.Join(lines, "\n")))
}

func renderStatus(w io.Writer, s service.Status) {
	lines := []string{
		headerStyle.Render(s.Repository),
		"",
		row("Issues", s.Issues),
		row("Comments", s.Comments),
		row("Chunks", s.Chunks),
		row("Collection", s.Collection),
		row("Index version", s.IndexVersion),
		row("Database", s.DatabasePath),
	}
	if s.LatestUpdate != nil {
		lines = append(lines, row("Latest update", s.LatestUpdate.Format(time.RFC3339)))
	}
	if s.LastSync != nil {
		lines = append(lines, row("Last sync", fmt.Sprintf("%s (%d new, %d updated)",
			s.LastSync.Watermark.Format(time.RFC3339), s.LastSync.New, s.LastSync.Updated)))
	} else {
		lines = append(lines, row("Last sync", warnStyle.Render("never")))
	}
	if len(s.MostCommented) > 0 {
		lines = append(lines, "", headerStyle.Render("Most commented"))
		for _, stat := range s.MostCommented {
			lines = append(lines, fmt.Sprintf("%s %s %s",
				accentStyle.Render(fmt.Sprintf("#%-6d", stat.Number)),
				dimStyle.Render(fmt.Sprintf("%4d", stat.Comments)),
				stat.Title))
		}
	}

	fmt.Fprintln(w, boxStyle.Render(strings.Join(lines, "\n")))
}

func renderLogs(w io.Writer, entries []service.LogEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, dimStyle.Render("No syncs recorded."))
		return
	}
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%-20s %5s %7s %9s %11s %10s %9s",
		"WATERMARK", "NEW", "UPDATED", "REDUNDANT", "ISSUES", "RECONCILED", "DURATION")))
	for _, e := range entries {
		reconciled := fmt.Sprint(e.Reconciled)
		if e.ReconcileFailed > 0 {
			reconciled = fmt.Sprintf("%d/%d", e.Reconciled, e.Reconciled+e.ReconcileFailed)
		}
		fmt.Fprintf(w, "%-20s %5d %7d %9d %11s %10s %9s\n",
			e.Watermark.Format("2006-01-02T15:04:05Z"),
			e.New, e.Updated, e.Redundant,
			fmt.Sprintf("%d→%d", e.BeforeCount, e.AfterCount),
			reconciled, e.Duration)
	}
}

func renderReferences(w io.Writer, refs []rag.Reference) {
	if len(refs) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, headerStyle.Render("References"))
	seen := make(map[int]bool, len(refs))
	for _, ref := range refs {
		if seen[ref.IssueNumber] {
			continue
		}
		seen[ref.IssueNumber] = true
		marker := dimStyle.Render(" ")
		if ref.Cited {
			marker = okStyle.Render("*")
		}
		fmt.Fprintf(w, "%s %s %s %s\n", marker, accentStyle.Render(fmt.Sprintf("#%d", ref.IssueNumber)), ref.Title, dimStyle.Render(ref.URL))
	}
}

func renderDebug(w io.Writer, d *rag.DebugInfo) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("Retrieval (k=%d)", d.K)))
	for _, c := range d.RetrievedChunks {
		fmt.Fprintf(w, "%2d. %-24s vector=%.3f lexical=%.3f final=%.3f\n",
			c.Rank, c.ChunkID, c.ScoreVector, c.ScoreLexical, c.ScoreFinal)
	}
	if len(d.UnknownCitations) > 0 {
		fmt.Fprintln(w, warnStyle.Render(fmt.Sprintf("Cited but not retrieved: %v", d.UnknownCitations)))
	}
}
