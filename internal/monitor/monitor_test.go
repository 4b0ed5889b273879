package monitor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/F-swanlight/sniffer-geo/internal/backlog"
	"github.com/F-swanlight/sniffer-geo/internal/config"
	"github.com/F-swanlight/sniffer-geo/internal/feed"
	"github.com/F-swanlight/sniffer-geo/internal/notify"
	"github.com/F-swanlight/sniffer-geo/internal/signal"
)

var testNow = time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

type fakeFetcher struct {
	entries []feed.Entry
	err     error
}

func (f *fakeFetcher) Fetch(ctx context.Context, src config.Source) ([]feed.Entry, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.entries, nil
}

type fakeSender struct {
	sent []string
	err  error
}

func (f *fakeSender) Send(ctx context.Context, text string) error {
	f.sent = append(f.sent, text)
	return f.err
}

type fakeTranslator struct{}

func (fakeTranslator) Titles(ctx context.Context, titles []string) map[string]string {
	out := map[string]string{}
	for _, t := range titles {
		out[t] = "译:" + t
	}
	return out
}

func entries(prefix string, n int) []feed.Entry {
	pub := testNow.Add(-time.Hour)
	out := make([]feed.Entry, n)
	for i := range out {
		out[i] = feed.Entry{
			Title:     fmt.Sprintf("%s slow slip fault %d", prefix, i),
			Link:      fmt.Sprintf("https://%s.org/%d", prefix, i),
			Published: &pub,
			Source:    "Nature Geoscience",
		}
	}
	return out
}

func testConfig() Config {
	return Config{
		Feeds:    []config.Source{{Name: "Nature Geoscience", URL: "https://example.com/rss"}},
		Keywords: []string{"fault"},
		Weights:  signal.Weights{{Match: "nature", Weight: 10}},
		Location: time.UTC,
		Now:      func() time.Time { return testNow },
	}
}

type harness struct {
	t    *testing.T
	path string
}

func newHarness(t *testing.T) *harness {
	return &harness{t: t, path: filepath.Join(t.TempDir(), "state.db")}
}

// run opens the store fresh, as a new process would, and performs one check.
func (h *harness) run(cfg Config, fetched []feed.Entry, sender notify.Sender) Result {
	h.t.Helper()
	store, err := backlog.Open(h.path, backlog.Options{Location: time.UTC})
	if err != nil {
		h.t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	res, err := New(cfg, &fakeFetcher{entries: fetched}, sender, store).Run(context.Background())
	if err != nil {
		h.t.Fatalf("Run: %v", err)
	}
	return res
}

func (h *harness) store() *backlog.Store {
	h.t.Helper()
	store, err := backlog.Open(h.path, backlog.Options{Location: time.UTC})
	if err != nil {
		h.t.Fatalf("Open: %v", err)
	}
	h.t.Cleanup(func() { store.Close() })
	store.Load()
	return store
}

func TestRunDeliversAndIsIdempotent(t *testing.T) {
	h := newHarness(t)
	s := &fakeSender{}

	res := h.run(testConfig(), entries("a", 3), s)
	if len(s.sent) != 1 || res.Report.Sent != 1 {
		t.Fatalf("expected one message, got %d", len(s.sent))
	}
	for i := 0; i < 3; i++ {
		if !strings.Contains(s.sent[0], fmt.Sprintf("https://a.org/%d", i)) {
			t.Errorf("message missing article %d", i)
		}
	}

	// Same feed content again: nothing new, nothing left to backfill.
	s2 := &fakeSender{}
	res = h.run(testConfig(), entries("a", 3), s2)
	if len(s2.sent) != 0 {
		t.Errorf("expected no re-push, got %d messages", len(s2.sent))
	}
	if res.Run.Candidates != 0 {
		t.Errorf("expected no candidates on second run, got %d", res.Run.Candidates)
	}
}

func TestRunOverflowThenBackfill(t *testing.T) {
	h := newHarness(t)
	s := &fakeSender{}
	res := h.run(testConfig(), entries("big", 14), s)
	if len(s.sent) != 2 || res.Run.Batches != 2 {
		t.Fatalf("expected two batches, got %d", len(s.sent))
	}
	if strings.Contains(strings.Join(s.sent, "\n"), "https://big.org/12") {
		t.Error("article beyond both batches must not be sent")
	}

	st := h.store()
	if n := len(st.UnpushedCandidates()); n != 2 {
		t.Fatalf("expected 2 leftovers in backlog, got %d", n)
	}
	st.Close()

	s2 := &fakeSender{}
	res = h.run(testConfig(), entries("small", 1), s2)
	if len(s2.sent) != 1 {
		t.Fatalf("expected one batch, got %d", len(s2.sent))
	}
	msg := s2.sent[0]
	for _, link := range []string{"https://small.org/0", "https://big.org/12", "https://big.org/13"} {
		if !strings.Contains(msg, link) {
			t.Errorf("expected %s in backfilled batch:\n%s", link, msg)
		}
	}
	if res.Batches[0].Backfilled != 2 {
		t.Errorf("expected 2 backfilled, got %d", res.Batches[0].Backfilled)
	}
}

func TestRunFailedDeliveryRetriedNextRun(t *testing.T) {
	h := newHarness(t)
	failing := &fakeSender{err: notify.ErrRejected}
	res := h.run(testConfig(), entries("a", 4), failing)
	if res.Report.Failed != 1 || res.Report.Sent != 0 {
		t.Fatalf("unexpected report %+v", res.Report)
	}

	// No new articles: the undelivered ones come back as backfill.
	s := &fakeSender{}
	h.run(testConfig(), nil, s)
	if len(s.sent) != 1 {
		t.Fatalf("expected retry batch, got %d", len(s.sent))
	}
	for i := 0; i < 4; i++ {
		if !strings.Contains(s.sent[0], fmt.Sprintf("https://a.org/%d", i)) {
			t.Errorf("expected article %d retried", i)
		}
	}
}

func TestRunDryRunChangesNothing(t *testing.T) {
	h := newHarness(t)
	cfg := testConfig()
	cfg.DryRun = true
	s := &fakeSender{}

	res := h.run(cfg, entries("a", 2), s)
	if len(s.sent) != 0 {
		t.Error("dry run must not send")
	}
	if len(res.Messages) != 1 || !strings.Contains(res.Messages[0], "https://a.org/1") {
		t.Errorf("expected rendered preview, got %v", res.Messages)
	}
	if c := h.store().Counts(); c.Articles != 0 || c.PushedLinks != 0 {
		t.Errorf("dry run must not persist, got %+v", c)
	}
}

func TestRunRecordsStatistics(t *testing.T) {
	h := newHarness(t)
	h.run(testConfig(), entries("a", 2), &fakeSender{})

	runs, err := h.store().RecentRuns(5)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected one recorded run, got %d", len(runs))
	}
	r := runs[0]
	if r.ID == "" || r.Feeds != 1 || r.Entries != 2 || r.Candidates != 2 || r.Batches != 1 || r.Sent != 1 {
		t.Errorf("unexpected run %+v", r)
	}
}

func TestRunFeedFailureIsAbsorbed(t *testing.T) {
	h := newHarness(t)
	store, err := backlog.Open(h.path, backlog.Options{Location: time.UTC})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	s := &fakeSender{}
	res, err := New(testConfig(), &fakeFetcher{err: errors.New("timeout")}, s, store).Run(context.Background())
	if err != nil {
		t.Fatalf("feed failure should not fail the run: %v", err)
	}
	if res.Run.FeedErrors != 1 || len(s.sent) != 0 {
		t.Errorf("unexpected result %+v", res.Run)
	}
}

func TestRunInterrupted(t *testing.T) {
	h := newHarness(t)
	store, err := backlog.Open(h.path, backlog.Options{Location: time.UTC})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := &fakeSender{}
	if _, err := New(testConfig(), &fakeFetcher{entries: entries("a", 2)}, s, store).Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected cancellation error, got %v", err)
	}
	if len(s.sent) != 0 {
		t.Error("nothing should be sent after interruption")
	}
}

func TestRunTranslationAndTrending(t *testing.T) {
	h := newHarness(t)
	cfg := testConfig()
	cfg.TrendingTop = 3
	store, err := backlog.Open(h.path, backlog.Options{Location: time.UTC})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	s := &fakeSender{}
	m := New(cfg, &fakeFetcher{entries: entries("a", 2)}, s, store).WithTranslator(fakeTranslator{})
	if _, err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(s.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(s.sent))
	}
	if !strings.Contains(s.sent[0], "译:a slow slip fault 0") {
		t.Errorf("expected translated title:\n%s", s.sent[0])
	}
	if !strings.Contains(s.sent[0], "Trending: slow slip fault") {
		t.Errorf("expected trending line:\n%s", s.sent[0])
	}
}

func TestRunSendsEmptyNotice(t *testing.T) {
	h := newHarness(t)
	cfg := testConfig()
	cfg.SendEmpty = true
	s := &fakeSender{}

	res := h.run(cfg, nil, s)
	if len(s.sent) != 1 || !strings.Contains(s.sent[0], "No new matching articles") {
		t.Fatalf("expected empty-day notice, got %q", s.sent)
	}
	if !res.Report.EmptySent || len(res.Batches) != 0 {
		t.Errorf("unexpected result %+v", res.Report)
	}

	quiet := &fakeSender{}
	h.run(testConfig(), nil, quiet)
	if len(quiet.sent) != 0 {
		t.Errorf("expected silence without send_empty_reports, got %d messages", len(quiet.sent))
	}
}

func TestFromConfig(t *testing.T) {
	c := &config.Config{
		Timezone:         "UTC",
		Feeds:            []config.Source{{Name: "on", Enabled: true, Zone: 1}, {Name: "off"}},
		ZoneWeights:      map[int]float64{1: 10},
		Batch:            config.BatchConfig{MaxFirst: 4, MaxSecond: 3, Delay: "2s"},
		Trending:         config.TrendingConfig{Enabled: true},
		SendEmptyReports: true,
	}
	mc, err := FromConfig(c)
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	if len(mc.Feeds) != 1 || mc.Feeds[0].Name != "on" {
		t.Errorf("expected only enabled feeds, got %v", mc.Feeds)
	}
	if mc.Limits.MaxFirst != 4 || mc.Limits.MaxSecond != 3 {
		t.Errorf("unexpected limits %+v", mc.Limits)
	}
	if mc.BatchDelay != 2*time.Second || mc.FetchDelay != time.Second {
		t.Errorf("unexpected delays %v/%v", mc.BatchDelay, mc.FetchDelay)
	}
	if mc.TrendingTop != 5 || mc.KeywordTableSize != 10 {
		t.Errorf("unexpected defaults %d/%d", mc.TrendingTop, mc.KeywordTableSize)
	}
	if mc.Location.String() != "UTC" {
		t.Errorf("unexpected location %v", mc.Location)
	}
	if got := mc.Weights.Lookup("on"); got != 10 {
		t.Errorf("expected zone 1 weight 10 for feed, got %v", got)
	}
	if !mc.SendEmpty {
		t.Error("expected SendEmpty from send_empty_reports")
	}
}
