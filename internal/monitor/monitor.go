// Package monitor runs one daily check: fetch feeds, pick today's
// candidates, plan batches against the backlog, deliver, persist.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/F-swanlight/sniffer-geo/internal/backlog"
	"github.com/F-swanlight/sniffer-geo/internal/config"
	"github.com/F-swanlight/sniffer-geo/internal/delivery"
	"github.com/F-swanlight/sniffer-geo/internal/feed"
	"github.com/F-swanlight/sniffer-geo/internal/notify"
	"github.com/F-swanlight/sniffer-geo/internal/planner"
	"github.com/F-swanlight/sniffer-geo/internal/signal"
	"github.com/F-swanlight/sniffer-geo/internal/trending"
)

// Config is everything a run needs. Zero values select defaults.
type Config struct {
	Feeds            []config.Source
	Keywords         []string
	Weights          signal.Weights
	Location         *time.Location
	Limits           planner.Limits
	Title            string
	FetchDelay       time.Duration
	BatchDelay       time.Duration
	KeywordTableSize int
	TrendingTop      int // zero disables trending phrases
	SendEmpty        bool
	DryRun           bool
	Now              func() time.Time
}

// FromConfig maps the file config onto a run config.
func FromConfig(c *config.Config) (Config, error) {
	loc, err := c.Location()
	if err != nil {
		return Config{}, err
	}
	mc := Config{
		Feeds:            c.EnabledFeeds(),
		Keywords:         c.Keywords,
		Weights:          c.Weights(),
		Location:         loc,
		Limits:           planner.Limits{MaxFirst: c.Batch.MaxFirst, MaxSecond: c.Batch.MaxSecond},
		Title:            c.Title,
		FetchDelay:       c.FetchDelay(),
		BatchDelay:       c.BatchDelay(),
		KeywordTableSize: c.GetKeywordTableSize(),
		SendEmpty:        c.SendEmptyReports,
	}
	if c.Trending.Enabled {
		mc.TrendingTop = c.Trending.Top
		if mc.TrendingTop <= 0 {
			mc.TrendingTop = 5
		}
	}
	return mc, nil
}

// Translator supplies optional title translations.
type Translator interface {
	Titles(ctx context.Context, titles []string) map[string]string
}

type Monitor struct {
	cfg        Config
	fetcher    feed.Fetcher
	sender     notify.Sender
	store      *backlog.Store
	translator Translator
}

func New(cfg Config, fetcher feed.Fetcher, sender notify.Sender, store *backlog.Store) *Monitor {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.KeywordTableSize <= 0 {
		cfg.KeywordTableSize = 10
	}
	return &Monitor{cfg: cfg, fetcher: fetcher, sender: sender, store: store}
}

// WithTranslator enables title translation.
func (m *Monitor) WithTranslator(t Translator) *Monitor {
	m.translator = t
	return m
}

// Result describes a finished run.
type Result struct {
	Run      backlog.Run
	Batches  []planner.Batch
	Messages []string
	Report   delivery.Report
}

// Run performs one daily check. Feed and delivery failures are absorbed
// and logged; the returned error is non-nil only when the run was
// interrupted.
func (m *Monitor) Run(ctx context.Context) (Result, error) {
	now := m.cfg.Now().In(m.cfg.Location)
	run := backlog.Run{ID: uuid.NewString(), StartedAt: now, Feeds: len(m.cfg.Feeds)}
	log := slog.With("run_id", run.ID)

	m.store.Load()

	fetched := feed.FetchAll(ctx, m.fetcher, m.cfg.Feeds, m.cfg.FetchDelay)
	run.FeedErrors = len(fetched.Errors)
	run.Entries = len(fetched.Entries)
	if err := ctx.Err(); err != nil {
		return Result{Run: run}, fmt.Errorf("interrupted while fetching: %w", err)
	}

	today := feed.Ingest(fetched.Entries, feed.IngestOptions{
		Keywords: m.cfg.Keywords,
		Weights:  m.cfg.Weights,
		Pushed:   m.store.PushedSet(),
		Location: m.cfg.Location,
		Now:      now,
	})
	run.Candidates = len(today)
	log.Info("candidates selected", "feeds", run.Feeds, "failed", run.FeedErrors, "entries", run.Entries, "candidates", run.Candidates)

	corpus := titles(m.store.Articles())
	m.store.Append(today)
	batches := planner.Plan(today, m.store.UnpushedCandidates(), m.cfg.Limits)
	run.Batches = len(batches)

	opts := delivery.Options{
		Title:            m.cfg.Title,
		Delay:            m.cfg.BatchDelay,
		KeywordTableSize: m.cfg.KeywordTableSize,
		SendEmpty:        m.cfg.SendEmpty,
		Now:              now,
	}
	if m.cfg.TrendingTop > 0 && len(batches) > 0 {
		opts.Trending = trending.Phrases(titles(today), corpus, m.cfg.TrendingTop)
	}
	if m.translator != nil && len(batches) > 0 {
		opts.Translations = m.translator.Titles(ctx, titles(planner.Articles(batches)))
	}

	res := Result{Batches: batches}
	if m.cfg.DryRun {
		res.Messages = delivery.Messages(batches, opts)
		res.Run = run
		log.Info("dry run, nothing sent or saved", "batches", len(batches))
		return res, nil
	}

	opts.BeforePersist = func(r delivery.Report) {
		run.Sent = r.Sent
		run.Failed = r.Failed
		m.store.RecordRun(run)
	}
	res.Report = delivery.Deliver(ctx, batches, m.sender, m.store, opts)
	run.Sent = res.Report.Sent
	run.Failed = res.Report.Failed
	res.Run = run

	log.Info("run complete", "batches", run.Batches, "sent", run.Sent, "failed", run.Failed, "dropped", res.Report.Dropped)
	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("interrupted while delivering: %w", err)
	}
	return res, nil
}

func titles(articles []backlog.Article) []string {
	out := make([]string, 0, len(articles))
	for _, a := range articles {
		out = append(out, a.Title)
	}
	return out
}
