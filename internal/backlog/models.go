package backlog

import (
	"sort"
	"time"
)

// Article is a keyword-matched feed entry tracked by the backlog. Link is
// the identity.
type Article struct {
	Title     string
	Link      string
	Summary   string
	Published time.Time // zero when the feed gave no usable date
	Source    string
	Keywords  []string
	Score     float64
	ZoneScore float64
	IsPushed  bool
	PushDate  time.Time // calendar date of confirmed delivery; set iff IsPushed
	FirstSeen time.Time
}

// Rank is the ordering key: zone score plus keyword score.
func (a Article) Rank() float64 {
	return a.ZoneScore + a.Score
}

// SortByRank orders articles by Rank descending. Equal ranks keep their
// relative order.
func SortByRank(articles []Article) {
	sort.SliceStable(articles, func(i, j int) bool {
		return articles[i].Rank() > articles[j].Rank()
	})
}

// Run is one daily check's statistics row.
type Run struct {
	ID         string
	StartedAt  time.Time
	Feeds      int
	FeedErrors int
	Entries    int
	Candidates int
	Batches    int
	Sent       int
	Failed     int
}

// Counts summarizes the in-memory state.
type Counts struct {
	Articles    int
	Unpushed    int
	Pushed      int
	PushedLinks int
}
