package feed

import (
	"strings"
	"time"

	"github.com/F-swanlight/sniffer-geo/internal/backlog"
	"github.com/F-swanlight/sniffer-geo/internal/signal"
)

const maxSummary = 500

type IngestOptions struct {
	Keywords []string
	Weights  signal.Weights
	// Pushed holds links that were already delivered.
	Pushed   map[string]bool
	Location *time.Location
	Now      time.Time
}

// Ingest turns raw entries into today's candidates: dated today in the
// configured zone, matching at least one keyword, with a link that has
// not been pushed. A link seen twice is kept once.
func Ingest(entries []Entry, opts IngestOptions) []backlog.Article {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	today := now.In(loc).Format("2006-01-02")

	seen := make(map[string]bool)
	var out []backlog.Article
	for _, e := range entries {
		link := strings.TrimSpace(e.Link)
		if link == "" || seen[link] || opts.Pushed[link] {
			continue
		}
		if e.Published == nil {
			continue
		}
		published := *e.Published
		if e.Floating {
			published = anchor(published, loc)
		}
		if published.In(loc).Format("2006-01-02") != today {
			continue
		}
		matched := signal.MatchKeywords(e.Title+" "+e.Summary, opts.Keywords)
		if len(matched) == 0 {
			continue
		}
		seen[link] = true

		sc := signal.Score(matched, e.Source, opts.Weights)
		out = append(out, backlog.Article{
			Title:     e.Title,
			Link:      link,
			Summary:   truncate(e.Summary, maxSummary),
			Published: published,
			Source:    e.Source,
			Keywords:  matched,
			Score:     sc.Score,
			ZoneScore: sc.ZoneScore,
		})
	}
	return out
}
