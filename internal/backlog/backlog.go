package backlog

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

const (
	DefaultRetention     = 30 * 24 * time.Hour
	DefaultPushedLinkCap = 1000
)

// Options tune retention. Zero values select the defaults.
type Options struct {
	Retention     time.Duration
	PushedLinkCap int
	// Location is the zone push dates belong to. Nil leaves times in the
	// zone the caller passes and reloads stored dates in time.Local.
	Location *time.Location
}

// Store is the historical backlog: every candidate seen on previous runs
// plus a capped, insertion-ordered set of delivered links. All operations
// work on memory; Persist writes the whole state in one transaction.
type Store struct {
	path string
	db   *sql.DB

	retention time.Duration
	linkCap   int
	loc       *time.Location
	now       func() time.Time

	articles  []Article
	index     map[string]int
	pushed    []string
	pushedSet map[string]bool
	runs      []Run
}

// Open opens (or creates) the state database at path. A file that is not a
// readable database is moved aside and replaced with a fresh one.
func Open(path string, opts Options) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating state dir: %w", err)
	}

	db, err := openDB(path)
	if err != nil {
		quarantined := fmt.Sprintf("%s.corrupt-%d", path, time.Now().Unix())
		slog.Warn("state database unusable, moving aside", "path", path, "moved_to", quarantined, "error", err)
		if rerr := os.Rename(path, quarantined); rerr != nil {
			return nil, fmt.Errorf("moving corrupt state aside: %w", rerr)
		}
		if db, err = openDB(path); err != nil {
			return nil, err
		}
	}

	s := &Store{
		path:      path,
		db:        db,
		retention: opts.Retention,
		linkCap:   opts.PushedLinkCap,
		loc:       opts.Location,
		now:       time.Now,
	}
	if s.retention <= 0 {
		s.retention = DefaultRetention
	}
	if s.linkCap <= 0 {
		s.linkCap = DefaultPushedLinkCap
	}
	s.reset()
	return s, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) reset() {
	s.articles = nil
	s.index = make(map[string]int)
	s.pushed = nil
	s.pushedSet = make(map[string]bool)
}

// Load replaces the in-memory state with the persisted one. Unreadable or
// foreign-version state is logged and the store starts empty.
func (s *Store) Load() {
	s.reset()

	articles, pushed, err := s.read()
	if err != nil {
		slog.Warn("backlog state unreadable, starting empty", "path", s.path, "error", err)
		return
	}

	for _, a := range articles {
		s.index[a.Link] = len(s.articles)
		s.articles = append(s.articles, a)
	}
	for _, link := range pushed {
		s.addPushed(link)
	}
	slog.Debug("backlog loaded", "articles", len(s.articles), "pushed_links", len(s.pushed))
}

// Append adds candidates to the backlog. An unpushed entry with the same
// link is refreshed in place; pushed entries and empty links are left alone.
func (s *Store) Append(articles []Article) int {
	added := 0
	for _, a := range articles {
		if a.Link == "" {
			slog.Warn("skipping article without link", "title", a.Title)
			continue
		}
		if i, ok := s.index[a.Link]; ok {
			existing := &s.articles[i]
			if existing.IsPushed {
				continue
			}
			firstSeen := existing.FirstSeen
			*existing = a
			existing.IsPushed = false
			existing.PushDate = time.Time{}
			existing.FirstSeen = firstSeen
			continue
		}
		if a.FirstSeen.IsZero() {
			a.FirstSeen = dateOf(s.now())
		}
		a.IsPushed = false
		a.PushDate = time.Time{}
		a.Keywords = append([]string(nil), a.Keywords...)
		s.index[a.Link] = len(s.articles)
		s.articles = append(s.articles, a)
		added++
	}
	return added
}

// UnpushedCandidates returns entries not yet delivered and not in the
// pushed-links set, ranked.
func (s *Store) UnpushedCandidates() []Article {
	var out []Article
	for _, a := range s.articles {
		if a.IsPushed || s.pushedSet[a.Link] {
			continue
		}
		out = append(out, a)
	}
	SortByRank(out)
	return out
}

// MarkPushed records delivery of articles on date. Every link joins the
// pushed-links set even if it is not in the backlog. Returns how many
// backlog entries were updated.
func (s *Store) MarkPushed(articles []Article, date time.Time) int {
	day := dateOf(s.in(date))
	marked := 0
	for _, a := range articles {
		if a.Link == "" {
			continue
		}
		if i, ok := s.index[a.Link]; ok {
			s.articles[i].IsPushed = true
			s.articles[i].PushDate = day
			marked++
		}
		s.addPushed(a.Link)
	}
	return marked
}

// Cleanup drops pushed entries whose push date is older than the retention
// window and trims the pushed-links set to its cap. Unpushed entries are
// never dropped. Returns the number of articles removed.
func (s *Store) Cleanup(now time.Time) int {
	cutoff := s.cutoff(s.in(now))

	kept := s.articles[:0]
	dropped := 0
	for _, a := range s.articles {
		if a.IsPushed && a.PushDate.Before(cutoff) {
			dropped++
			continue
		}
		kept = append(kept, a)
	}
	s.articles = kept

	s.index = make(map[string]int, len(s.articles))
	for i, a := range s.articles {
		s.index[a.Link] = i
	}
	s.trimPushed()

	if dropped > 0 {
		slog.Info("backlog cleanup", "dropped", dropped, "cutoff", cutoff.Format("2006-01-02"))
	}
	return dropped
}

// RecordRun queues a statistics row for the next Persist.
func (s *Store) RecordRun(r Run) {
	s.runs = append(s.runs, r)
}

// Contains reports whether link is in the pushed-links set.
func (s *Store) Contains(link string) bool {
	return s.pushedSet[link]
}

// PushedLinks returns the pushed-links set, oldest first.
func (s *Store) PushedLinks() []string {
	return append([]string(nil), s.pushed...)
}

// PushedSet returns a copy of the pushed-links set for membership checks.
func (s *Store) PushedSet() map[string]bool {
	out := make(map[string]bool, len(s.pushedSet))
	for k := range s.pushedSet {
		out[k] = true
	}
	return out
}

// Articles returns a copy of the backlog in insertion order.
func (s *Store) Articles() []Article {
	return append([]Article(nil), s.articles...)
}

// Counts summarizes the in-memory state.
func (s *Store) Counts() Counts {
	c := Counts{Articles: len(s.articles), PushedLinks: len(s.pushed)}
	for _, a := range s.articles {
		if a.IsPushed {
			c.Pushed++
		} else {
			c.Unpushed++
		}
	}
	return c
}

func (s *Store) addPushed(link string) {
	if s.pushedSet[link] {
		for i, l := range s.pushed {
			if l == link {
				s.pushed = append(s.pushed[:i], s.pushed[i+1:]...)
				break
			}
		}
	}
	s.pushed = append(s.pushed, link)
	s.pushedSet[link] = true
	s.trimPushed()
}

func (s *Store) trimPushed() {
	if len(s.pushed) <= s.linkCap {
		return
	}
	evict := len(s.pushed) - s.linkCap
	for _, l := range s.pushed[:evict] {
		delete(s.pushedSet, l)
	}
	s.pushed = append([]string(nil), s.pushed[evict:]...)
}

// cutoff is the oldest push date that survives cleanup at now.
func (s *Store) cutoff(now time.Time) time.Time {
	if s.retention%(24*time.Hour) == 0 {
		days := int(s.retention / (24 * time.Hour))
		return dateOf(now).AddDate(0, 0, -days)
	}
	return now.Add(-s.retention)
}

func (s *Store) in(t time.Time) time.Time {
	if s.loc == nil {
		return t
	}
	return t.In(s.loc)
}

func (s *Store) location() *time.Location {
	if s.loc == nil {
		return time.Local
	}
	return s.loc
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
