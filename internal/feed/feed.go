package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/F-swanlight/sniffer-geo/internal/config"
)

const (
	DefaultTimeout     = 30 * time.Second
	DefaultAttempts    = 3
	DefaultBackoffBase = 2 * time.Second
	DefaultBackoffMax  = 10 * time.Second
	DefaultUserAgent   = "sniffer-geo/1.0 (+https://github.com/F-swanlight/sniffer-geo)"
)

// Entry is one feed item with the optional fields made explicit: Summary
// is empty and Published is nil when the feed leaves them out.
type Entry struct {
	Title     string
	Link      string
	Summary   string
	Published *time.Time
	// Floating marks a Published value that carried no zone. Its wall
	// clock is parsed as UTC and belongs to whatever zone reads it.
	Floating bool
	Source   string
}

type Fetcher interface {
	Fetch(ctx context.Context, source config.Source) ([]Entry, error)
}

type Options struct {
	Timeout     time.Duration
	Attempts    int
	BackoffBase time.Duration
	BackoffMax  time.Duration
	UserAgent   string
}

type RSSFetcher struct {
	parser   *gofeed.Parser
	attempts int
	base     time.Duration
	max      time.Duration
}

func NewRSSFetcher(opts Options) *RSSFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Attempts <= 0 {
		opts.Attempts = DefaultAttempts
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = DefaultBackoffBase
	}
	if opts.BackoffMax <= 0 {
		opts.BackoffMax = DefaultBackoffMax
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}

	parser := gofeed.NewParser()
	parser.Client = &http.Client{Timeout: opts.Timeout}
	parser.UserAgent = opts.UserAgent
	return &RSSFetcher{
		parser:   parser,
		attempts: opts.Attempts,
		base:     opts.BackoffBase,
		max:      opts.BackoffMax,
	}
}

// Fetch downloads and parses one feed, retrying with exponential backoff.
func (f *RSSFetcher) Fetch(ctx context.Context, source config.Source) ([]Entry, error) {
	bo := newBackoff(f.base, f.max)

	var (
		feed *gofeed.Feed
		err  error
	)
	for attempt := 1; attempt <= f.attempts; attempt++ {
		feed, err = f.parser.ParseURLWithContext(source.URL, ctx)
		if err == nil {
			break
		}
		if ctx.Err() != nil || attempt == f.attempts || !retryable(err) {
			break
		}
		wait := bo.Next()
		slog.Debug("retrying feed", "feed", source.Name, "attempt", attempt, "wait", wait, "err", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", source.Name, err)
	}

	name := source.Name
	if name == "" {
		name = strings.TrimSpace(feed.Title)
	}
	if name == "" {
		name = source.URL
	}

	entries := make([]Entry, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		desc := item.Description
		if desc == "" {
			desc = item.Content
		}
		published, floating := itemDate(item)
		entries = append(entries, Entry{
			Title:     strings.TrimSpace(stripHTML(item.Title)),
			Link:      strings.TrimSpace(item.Link),
			Summary:   stripHTML(desc),
			Published: published,
			Floating:  floating,
			Source:    name,
		})
	}
	return entries, nil
}

// retryable reports whether a failed fetch is worth another attempt.
// Client errors other than 408 and 429 will not fix themselves.
func retryable(err error) bool {
	var herr gofeed.HTTPError
	if errors.As(err, &herr) {
		code := herr.StatusCode
		return code >= 500 || code == http.StatusTooManyRequests || code == http.StatusRequestTimeout
	}
	return !errors.Is(err, gofeed.ErrFeedTypeNotDetected)
}

var dateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC3339,
	time.RFC822Z,
	time.RFC822,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
}

// floatingLayouts carry no zone.
var floatingLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2 Jan 2006",
	"02 Jan 2006",
	"January 2, 2006",
	"Jan 2, 2006",
}

// itemDate picks the published date, then the updated one. gofeed reads a
// zone-less string as UTC, so the raw text is checked for that first and
// the result is reported as floating.
func itemDate(item *gofeed.Item) (*time.Time, bool) {
	candidates := []struct {
		parsed *time.Time
		raw    string
	}{
		{item.PublishedParsed, item.Published},
		{item.UpdatedParsed, item.Updated},
	}
	for _, c := range candidates {
		t, floating, ok := parseDate(c.raw)
		if ok && floating {
			return &t, true
		}
		if c.parsed != nil {
			return c.parsed, false
		}
		if ok {
			return &t, false
		}
	}
	return nil, false
}

func parseDate(s string) (t time.Time, floating, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, false, true
		}
	}
	for _, layout := range floatingLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true, true
		}
	}
	return time.Time{}, false, false
}

// anchor reads a floating time's wall clock in loc.
func anchor(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	if n <= 3 {
		return string(runes[:n])
	}
	return string(runes[:n-3]) + "..."
}

func stripHTML(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
