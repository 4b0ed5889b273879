package feed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/F-swanlight/sniffer-geo/internal/config"
)

type stubFetcher struct {
	entries map[string][]Entry
	fail    map[string]error
	calls   []string
	cancel  context.CancelFunc
}

func (s *stubFetcher) Fetch(ctx context.Context, src config.Source) ([]Entry, error) {
	s.calls = append(s.calls, src.Name)
	if s.cancel != nil {
		s.cancel()
	}
	if err := s.fail[src.Name]; err != nil {
		return nil, err
	}
	return s.entries[src.Name], nil
}

func TestFetchAllSkipsFailures(t *testing.T) {
	boom := errors.New("boom")
	f := &stubFetcher{
		entries: map[string][]Entry{
			"a": {{Link: "https://a/1"}},
			"c": {{Link: "https://c/1"}, {Link: "https://c/2"}},
		},
		fail: map[string]error{"b": boom},
	}
	sources := []config.Source{{Name: "a"}, {Name: "b", URL: "https://b/rss"}, {Name: "c"}}

	res := FetchAll(context.Background(), f, sources, 0)
	if len(f.calls) != 3 {
		t.Errorf("expected all sources tried, got %v", f.calls)
	}
	if res.Fetched != 2 {
		t.Errorf("expected 2 fetched, got %d", res.Fetched)
	}
	if len(res.Entries) != 3 {
		t.Errorf("expected 3 entries, got %d", len(res.Entries))
	}
	if len(res.Errors) != 1 || res.Errors[0].Source != "b" || res.Errors[0].URL != "https://b/rss" {
		t.Fatalf("unexpected errors: %v", res.Errors)
	}
	if !errors.Is(res.Errors[0], boom) {
		t.Error("expected FeedError to unwrap to cause")
	}
}

func TestFetchAllStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := &stubFetcher{
		entries: map[string][]Entry{"a": {{Link: "https://a/1"}}},
		cancel:  cancel,
	}
	sources := []config.Source{{Name: "a"}, {Name: "b"}}

	res := FetchAll(ctx, f, sources, 0)
	if len(f.calls) != 1 {
		t.Errorf("expected fetching to stop after cancel, got %v", f.calls)
	}
	if res.Fetched != 1 || len(res.Entries) != 1 {
		t.Errorf("expected first source kept, got %+v", res)
	}
}

type slowFetcher struct {
	took         time.Duration
	starts, ends []time.Time
}

func (s *slowFetcher) Fetch(ctx context.Context, src config.Source) ([]Entry, error) {
	s.starts = append(s.starts, time.Now())
	time.Sleep(s.took)
	s.ends = append(s.ends, time.Now())
	return nil, nil
}

func TestFetchAllPausesAfterSlowFetch(t *testing.T) {
	f := &slowFetcher{took: 80 * time.Millisecond}
	FetchAll(context.Background(), f, []config.Source{{Name: "a"}, {Name: "b"}}, 50*time.Millisecond)
	if len(f.starts) != 2 {
		t.Fatalf("expected 2 fetches, got %d", len(f.starts))
	}
	if gap := f.starts[1].Sub(f.ends[0]); gap < 40*time.Millisecond {
		t.Errorf("expected the delay after a slow fetch completes, gap %v", gap)
	}
}
