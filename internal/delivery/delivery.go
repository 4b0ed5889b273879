// Package delivery sends planned batches and records which of them were
// confirmed, so a failed batch stays eligible for a later run.
package delivery

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/F-swanlight/sniffer-geo/internal/backlog"
	"github.com/F-swanlight/sniffer-geo/internal/notify"
	"github.com/F-swanlight/sniffer-geo/internal/pace"
	"github.com/F-swanlight/sniffer-geo/internal/planner"
)

const DefaultDelay = 5 * time.Second

// Tracker is the part of the backlog store delivery writes to.
type Tracker interface {
	MarkPushed(articles []backlog.Article, date time.Time) int
	Cleanup(now time.Time) int
	Persist() error
}

type Options struct {
	Title string
	// Delay is the pause between one send finishing and the next starting.
	// Zero sends back to back.
	Delay            time.Duration
	KeywordTableSize int
	Trending         []string
	Translations     map[string]string
	// SendEmpty posts a short notice when there are no batches.
	SendEmpty bool
	Now       time.Time
	// BeforePersist sees the final report before state is written.
	BeforePersist func(Report)
}

type BatchResult struct {
	Index  int
	Sent   bool
	Marked int
	Err    error
}

// Report describes one delivery pass.
type Report struct {
	Batches    []BatchResult
	Sent       int
	Failed     int
	Skipped    int // not attempted because the run was cancelled
	EmptySent  bool
	Marked     int
	Dropped    int
	PersistErr error
}

// Messages renders every batch. The final batch carries the keyword table
// for the whole run. With no batches and SendEmpty set it returns the
// single empty-day notice.
func Messages(batches []planner.Batch, opts Options) []string {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	if len(batches) == 0 {
		if opts.SendEmpty {
			return []string{notify.RenderEmpty(opts.Title, now)}
		}
		return nil
	}
	size := opts.KeywordTableSize
	if size <= 0 {
		size = 10
	}

	out := make([]string, 0, len(batches))
	for _, b := range batches {
		m := notify.Message{
			Title:        opts.Title,
			Date:         now,
			Index:        b.Index,
			Total:        b.Total,
			Articles:     b.Articles,
			Translations: opts.Translations,
		}
		if b.Final() {
			m.Keywords = notify.KeywordFrequency(planner.Articles(batches), size)
			m.Trending = opts.Trending
		}
		out = append(out, notify.Render(m))
	}
	return out
}

// Deliver sends batches in order. A batch is marked pushed only after the
// sender confirms it; a failure is logged and the next batch still goes
// out. Cancellation stops further sends. Cleanup and Persist run exactly
// once at the end, whatever happened before.
func Deliver(ctx context.Context, batches []planner.Batch, sender notify.Sender, tracker Tracker, opts Options) Report {
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	var report Report

	gap := pace.New(opts.Delay)
	messages := Messages(batches, opts)
	for i, b := range batches {
		if err := gap.Wait(ctx); err != nil {
			report.Skipped = len(batches) - i
			slog.Warn("delivery interrupted", "batch", b.Index, "skipped", report.Skipped, "err", err)
			break
		}

		res := BatchResult{Index: b.Index}
		err := sender.Send(ctx, messages[i])
		gap.Done()
		switch {
		case err == nil:
			res.Sent = true
			res.Marked = tracker.MarkPushed(b.Articles, opts.Now)
			report.Sent++
			report.Marked += len(b.Articles)
			slog.Info("batch sent", "batch", b.Index, "total", b.Total, "articles", len(b.Articles))
		case errors.Is(err, notify.ErrDisabled):
			res.Err = err
			report.Failed++
			slog.Info("batch not delivered", "batch", b.Index, "total", b.Total)
		default:
			res.Err = err
			report.Failed++
			slog.Error("batch failed", "batch", b.Index, "total", b.Total, "err", err)
		}
		report.Batches = append(report.Batches, res)

		if ctx.Err() != nil {
			report.Skipped = len(batches) - i - 1
			if report.Skipped > 0 {
				slog.Warn("delivery interrupted", "skipped", report.Skipped, "err", ctx.Err())
			}
			break
		}
	}

	if len(batches) == 0 && len(messages) == 1 && ctx.Err() == nil {
		if err := sender.Send(ctx, messages[0]); err != nil {
			slog.Warn("empty report not delivered", "err", err)
		} else {
			report.EmptySent = true
			slog.Info("empty report sent")
		}
	}

	report.Dropped = tracker.Cleanup(opts.Now)
	if opts.BeforePersist != nil {
		opts.BeforePersist(report)
	}
	if err := tracker.Persist(); err != nil {
		report.PersistErr = err
		slog.Error("persisting backlog failed", "err", err)
	}
	return report
}
