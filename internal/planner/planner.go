// Package planner splits a run's candidates into push batches, topping up a
// thin day with ranked articles carried over from the backlog.
package planner

import (
	"github.com/F-swanlight/sniffer-geo/internal/backlog"
)

const (
	DefaultMaxFirst  = 6
	DefaultMaxSecond = 6
)

// Limits bound the size of the first and second batch.
type Limits struct {
	MaxFirst  int
	MaxSecond int
}

// DefaultLimits returns 6/6.
func DefaultLimits() Limits {
	return Limits{MaxFirst: DefaultMaxFirst, MaxSecond: DefaultMaxSecond}
}

func (l Limits) normalized() Limits {
	if l.MaxFirst <= 0 {
		l.MaxFirst = DefaultMaxFirst
	}
	if l.MaxSecond <= 0 {
		l.MaxSecond = DefaultMaxSecond
	}
	return l
}

// Batch is one outbound message's worth of articles.
type Batch struct {
	Index      int // 1-based
	Total      int
	Articles   []backlog.Article
	Backfilled int // trailing articles drawn from the backlog
}

// Final reports whether this is the last batch of the run.
func (b Batch) Final() bool {
	return b.Index == b.Total
}

// Plan ranks today's candidates and partitions them into at most two
// batches. When today fits in the first batch, the remaining room is filled
// from backlogRanked (assumed ranked), skipping links already selected.
// Today's articles beyond both batches are not returned; they stay unpushed
// in the backlog.
func Plan(today, backlogRanked []backlog.Article, limits Limits) []Batch {
	limits = limits.normalized()

	ranked := append([]backlog.Article(nil), today...)
	backlog.SortByRank(ranked)

	if len(ranked) <= limits.MaxFirst {
		selected := make(map[string]bool, len(ranked))
		for _, a := range ranked {
			selected[a.Link] = true
		}

		needed := limits.MaxFirst - len(ranked)
		var fill []backlog.Article
		for _, a := range backlogRanked {
			if len(fill) >= needed {
				break
			}
			if selected[a.Link] {
				continue
			}
			selected[a.Link] = true
			fill = append(fill, a)
		}

		articles := append(ranked, fill...)
		if len(articles) == 0 {
			return nil
		}
		return []Batch{{Index: 1, Total: 1, Articles: articles, Backfilled: len(fill)}}
	}

	first := ranked[:limits.MaxFirst]
	rest := ranked[limits.MaxFirst:]
	if len(rest) > limits.MaxSecond {
		rest = rest[:limits.MaxSecond]
	}
	return []Batch{
		{Index: 1, Total: 2, Articles: first},
		{Index: 2, Total: 2, Articles: rest},
	}
}

// Articles flattens batches in delivery order.
func Articles(batches []Batch) []backlog.Article {
	var out []backlog.Article
	for _, b := range batches {
		out = append(out, b.Articles...)
	}
	return out
}
