// Package report renders human-facing summaries for the command line.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/F-swanlight/sniffer-geo/internal/backlog"
	"github.com/F-swanlight/sniffer-geo/internal/delivery"
	"github.com/F-swanlight/sniffer-geo/internal/planner"
)

// StateInfo is what `stats` shows about the state database.
type StateInfo struct {
	Path   string
	Size   int64
	Counts backlog.Counts
	Runs   []backlog.Run
}

func row(label, value string) string {
	return labelStyle.Render(label) + valueStyle.Render(value)
}

// Stats writes backlog counts and recent runs.
func Stats(w io.Writer, info StateInfo) {
	var sb strings.Builder
	sb.WriteString(headerStyle.Render("Backlog") + "\n")
	sb.WriteString(row("State", info.Path) + "\n")
	sb.WriteString(row("Size", FormatBytes(info.Size)) + "\n")
	sb.WriteString(row("Articles", fmt.Sprint(info.Counts.Articles)) + "\n")
	sb.WriteString(row("Unpushed", fmt.Sprint(info.Counts.Unpushed)) + "\n")
	sb.WriteString(row("Pushed", fmt.Sprint(info.Counts.Pushed)) + "\n")
	sb.WriteString(row("Pushed links", fmt.Sprint(info.Counts.PushedLinks)) + "\n")

	sb.WriteString("\n" + headerStyle.Render("Recent runs") + "\n")
	if len(info.Runs) == 0 {
		sb.WriteString(dimStyle.Render("no runs recorded yet") + "\n")
	}
	for _, r := range info.Runs {
		status := okStyle.Render(fmt.Sprintf("%d sent", r.Sent))
		if r.Failed > 0 {
			status += " " + failStyle.Render(fmt.Sprintf("%d failed", r.Failed))
		}
		feeds := fmt.Sprintf("%d/%d feeds", r.Feeds-r.FeedErrors, r.Feeds)
		sb.WriteString(fmt.Sprintf("%s  %s  %s  %s  %s\n",
			dimStyle.Render(r.StartedAt.Format("2006-01-02 15:04")),
			feeds,
			fmt.Sprintf("%d candidates", r.Candidates),
			fmt.Sprintf("%d batches", r.Batches),
			status,
		))
	}
	io.WriteString(w, sb.String())
}

// Preview writes each rendered batch inside a box, for --dry-run.
func Preview(w io.Writer, batches []planner.Batch, messages []string) {
	if len(batches) == 0 {
		io.WriteString(w, dimStyle.Render("Nothing to send today.")+"\n")
		if len(messages) == 1 {
			io.WriteString(w, headerStyle.Render("Empty-day notice")+"\n")
			io.WriteString(w, messageStyle.Render(messages[0])+"\n")
		}
		return
	}
	for i, b := range batches {
		label := fmt.Sprintf("Batch %d/%d  %d articles", b.Index, b.Total, len(b.Articles))
		if b.Backfilled > 0 {
			label += fmt.Sprintf(" (%d from backlog)", b.Backfilled)
		}
		io.WriteString(w, headerStyle.Render(label)+"\n")
		if i < len(messages) {
			io.WriteString(w, messageStyle.Render(messages[i])+"\n")
		}
	}
}

// Delivery writes the outcome of a run.
func Delivery(w io.Writer, r delivery.Report) {
	parts := []string{okStyle.Render(fmt.Sprintf("%d sent", r.Sent))}
	if r.Failed > 0 {
		parts = append(parts, failStyle.Render(fmt.Sprintf("%d failed", r.Failed)))
	}
	if r.Skipped > 0 {
		parts = append(parts, failStyle.Render(fmt.Sprintf("%d skipped", r.Skipped)))
	}
	if r.Dropped > 0 {
		parts = append(parts, dimStyle.Render(fmt.Sprintf("%d expired", r.Dropped)))
	}
	line := "Batches: " + strings.Join(parts, ", ")
	if r.PersistErr != nil {
		line += "\n" + failStyle.Render("State not saved: "+r.PersistErr.Error())
	}
	io.WriteString(w, line+"\n")
}

func FormatBytes(b int64) string {
	switch {
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
