package feed

import (
	"context"
	"log/slog"
	"time"

	"github.com/F-swanlight/sniffer-geo/internal/config"
	"github.com/F-swanlight/sniffer-geo/internal/pace"
)

// FeedError is a failed fetch of one source.
type FeedError struct {
	Source string
	URL    string
	Err    error
}

func (e *FeedError) Error() string {
	return e.Err.Error()
}

func (e *FeedError) Unwrap() error {
	return e.Err
}

type FetchResult struct {
	Entries []Entry
	Errors  []*FeedError
	Fetched int
}

// FetchAll fetches sources one after another, pausing delay between the end
// of one request and the start of the next.
// A failing source is logged and skipped. Cancellation stops the loop and
// returns what was gathered so far.
func FetchAll(ctx context.Context, fetcher Fetcher, sources []config.Source, delay time.Duration) FetchResult {
	var result FetchResult

	gap := pace.New(delay)
	for _, src := range sources {
		if err := gap.Wait(ctx); err != nil {
			slog.Warn("feed fetch interrupted", "err", err)
			break
		}
		entries, err := fetcher.Fetch(ctx, src)
		gap.Done()
		if err != nil {
			if ctx.Err() != nil {
				slog.Warn("feed fetch interrupted", "feed", src.Name, "err", ctx.Err())
				break
			}
			slog.Warn("feed failed", "feed", src.Name, "url", src.URL, "err", err)
			result.Errors = append(result.Errors, &FeedError{Source: src.Name, URL: src.URL, Err: err})
			continue
		}
		slog.Debug("feed fetched", "feed", src.Name, "entries", len(entries))
		result.Fetched++
		result.Entries = append(result.Entries, entries...)
	}
	return result
}
