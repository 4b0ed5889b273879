package backlog

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	_ "modernc.org/sqlite"
)

// SchemaVersion stamps persisted state. State written under any other
// version is ignored on load and replaced on the next persist.
const SchemaVersion = 1

const dateLayout = "2006-01-02"

var errUnknownVersion = errors.New("unknown state schema version")

const schema = `
	CREATE TABLE IF NOT EXISTS meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS articles (
		position   INTEGER NOT NULL,
		link       TEXT PRIMARY KEY,
		title      TEXT NOT NULL,
		summary    TEXT NOT NULL DEFAULT '',
		published  TEXT NOT NULL DEFAULT '',
		source     TEXT NOT NULL DEFAULT '',
		keywords   TEXT NOT NULL DEFAULT '[]',
		score      REAL NOT NULL DEFAULT 0,
		zone_score REAL NOT NULL DEFAULT 0,
		is_pushed  INTEGER NOT NULL DEFAULT 0,
		push_date  TEXT NOT NULL DEFAULT '',
		first_seen TEXT NOT NULL DEFAULT ''
	);
	CREATE TABLE IF NOT EXISTS pushed_links (
		seq  INTEGER PRIMARY KEY,
		link TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS runs (
		id          TEXT PRIMARY KEY,
		started_at  TEXT NOT NULL,
		feeds       INTEGER NOT NULL DEFAULT 0,
		feed_errors INTEGER NOT NULL DEFAULT 0,
		entries     INTEGER NOT NULL DEFAULT 0,
		candidates  INTEGER NOT NULL DEFAULT 0,
		batches     INTEGER NOT NULL DEFAULT 0,
		sent        INTEGER NOT NULL DEFAULT 0,
		failed      INTEGER NOT NULL DEFAULT 0
	);
`

func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return db, nil
}

type rowQuerier interface {
	QueryRow(query string, args ...any) *sql.Row
}

type querier interface {
	Query(query string, args ...any) (*sql.Rows, error)
}

// stateColumns lists the columns each state table must carry.
var stateColumns = map[string][]string{
	"meta":         {"key", "value"},
	"articles":     {"position", "link", "title", "summary", "published", "source", "keywords", "score", "zone_score", "is_pushed", "push_date", "first_seen"},
	"pushed_links": {"seq", "link"},
	"runs":         {"id", "started_at", "feeds", "feed_errors", "entries", "candidates", "batches", "sent", "failed"},
}

// columnsMatch reports whether every state table exists with the expected
// columns.
func columnsMatch(q querier) (bool, error) {
	for table, want := range stateColumns {
		rows, err := q.Query("SELECT name FROM pragma_table_info(?)", table)
		if err != nil {
			return false, fmt.Errorf("inspecting %s: %w", table, err)
		}
		have := make(map[string]bool)
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				rows.Close()
				return false, fmt.Errorf("inspecting %s: %w", table, err)
			}
			have[name] = true
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return false, fmt.Errorf("inspecting %s: %w", table, err)
		}
		for _, col := range want {
			if !have[col] {
				return false, nil
			}
		}
	}
	return true, nil
}

type stateTx interface {
	rowQuerier
	querier
}

// foreignState reports whether the tables were written by something other
// than this schema: a different version stamp, an unreadable meta table, or
// tables whose columns do not match even though no version was recorded.
func foreignState(tx stateTx) (bool, error) {
	version, ok, err := storedVersion(tx)
	if err != nil || (ok && version != SchemaVersion) {
		return true, nil
	}
	match, err := columnsMatch(tx)
	if err != nil {
		return false, err
	}
	return !match, nil
}

func storedVersion(q rowQuerier) (int, bool, error) {
	var value string
	err := q.QueryRow("SELECT value FROM meta WHERE key = 'schema_version'").Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("reading schema version: %w", err)
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, true, fmt.Errorf("%w: %q", errUnknownVersion, value)
	}
	return v, true, nil
}

func (s *Store) read() ([]Article, []string, error) {
	version, ok, err := storedVersion(s.db)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, nil
	}
	if version != SchemaVersion {
		return nil, nil, fmt.Errorf("%w: %d", errUnknownVersion, version)
	}

	rows, err := s.db.Query(`
		SELECT link, title, summary, published, source, keywords, score, zone_score, is_pushed, push_date, first_seen
		FROM articles ORDER BY position`)
	if err != nil {
		return nil, nil, fmt.Errorf("querying articles: %w", err)
	}
	defer rows.Close()

	var articles []Article
	for rows.Next() {
		var (
			a                                    Article
			published, keywords, push, firstSeen string
			isPushed                             int
		)
		if err := rows.Scan(&a.Link, &a.Title, &a.Summary, &published, &a.Source, &keywords,
			&a.Score, &a.ZoneScore, &isPushed, &push, &firstSeen); err != nil {
			return nil, nil, fmt.Errorf("scanning article: %w", err)
		}
		if a.Link == "" {
			return nil, nil, errors.New("article row without link")
		}
		if err := json.Unmarshal([]byte(keywords), &a.Keywords); err != nil {
			return nil, nil, fmt.Errorf("decoding keywords for %s: %w", a.Link, err)
		}
		if a.Published, err = parseOptional(time.RFC3339, published, s.location()); err != nil {
			return nil, nil, fmt.Errorf("decoding published for %s: %w", a.Link, err)
		}
		if a.PushDate, err = parseOptional(dateLayout, push, s.location()); err != nil {
			return nil, nil, fmt.Errorf("decoding push date for %s: %w", a.Link, err)
		}
		if a.FirstSeen, err = parseOptional(dateLayout, firstSeen, s.location()); err != nil {
			return nil, nil, fmt.Errorf("decoding first seen for %s: %w", a.Link, err)
		}
		a.IsPushed = isPushed != 0
		if a.IsPushed && a.PushDate.IsZero() {
			return nil, nil, fmt.Errorf("pushed article %s has no push date", a.Link)
		}
		articles = append(articles, a)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	linkRows, err := s.db.Query("SELECT link FROM pushed_links ORDER BY seq")
	if err != nil {
		return nil, nil, fmt.Errorf("querying pushed links: %w", err)
	}
	defer linkRows.Close()

	var pushed []string
	for linkRows.Next() {
		var link string
		if err := linkRows.Scan(&link); err != nil {
			return nil, nil, fmt.Errorf("scanning pushed link: %w", err)
		}
		pushed = append(pushed, link)
	}
	return articles, pushed, linkRows.Err()
}

// Persist writes the backlog, the pushed-links set and queued run rows in
// a single transaction.
func (s *Store) Persist() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning persist: %w", err)
	}
	defer tx.Rollback()

	foreign, err := foreignState(tx)
	if err != nil {
		return err
	}
	if foreign {
		slog.Warn("replacing foreign state tables", "path", s.path)
		if _, err := tx.Exec(`
			DROP TABLE IF EXISTS articles;
			DROP TABLE IF EXISTS pushed_links;
			DROP TABLE IF EXISTS runs;
			DROP TABLE IF EXISTS meta;`); err != nil {
			return fmt.Errorf("dropping foreign state: %w", err)
		}
		if _, err := tx.Exec(schema); err != nil {
			return fmt.Errorf("recreating schema: %w", err)
		}
	}

	if _, err := tx.Exec("DELETE FROM articles"); err != nil {
		return fmt.Errorf("clearing articles: %w", err)
	}
	stmt, err := tx.Prepare(`
		INSERT INTO articles (position, link, title, summary, published, source, keywords, score, zone_score, is_pushed, push_date, first_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, a := range s.articles {
		keywords, err := json.Marshal(nonNil(a.Keywords))
		if err != nil {
			return fmt.Errorf("encoding keywords for %s: %w", a.Link, err)
		}
		pushed := 0
		if a.IsPushed {
			pushed = 1
		}
		if _, err := stmt.Exec(i, a.Link, a.Title, a.Summary, formatOptional(time.RFC3339, a.Published),
			a.Source, string(keywords), a.Score, a.ZoneScore, pushed,
			formatOptional(dateLayout, a.PushDate), formatOptional(dateLayout, a.FirstSeen)); err != nil {
			return fmt.Errorf("writing article %s: %w", a.Link, err)
		}
	}

	if _, err := tx.Exec("DELETE FROM pushed_links"); err != nil {
		return fmt.Errorf("clearing pushed links: %w", err)
	}
	for i, link := range s.pushed {
		if _, err := tx.Exec("INSERT INTO pushed_links (seq, link) VALUES (?, ?)", i, link); err != nil {
			return fmt.Errorf("writing pushed link: %w", err)
		}
	}

	for _, r := range s.runs {
		if _, err := tx.Exec(`
			INSERT OR REPLACE INTO runs (id, started_at, feeds, feed_errors, entries, candidates, batches, sent, failed)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.StartedAt.Format(time.RFC3339), r.Feeds, r.FeedErrors, r.Entries,
			r.Candidates, r.Batches, r.Sent, r.Failed); err != nil {
			return fmt.Errorf("writing run %s: %w", r.ID, err)
		}
	}

	if _, err := tx.Exec(`
		INSERT INTO meta (key, value) VALUES ('schema_version', ?), ('last_persist', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		strconv.Itoa(SchemaVersion), s.now().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("writing meta: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing state: %w", err)
	}
	s.runs = nil
	return nil
}

// RecentRuns returns up to limit persisted runs, newest first.
func (s *Store) RecentRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(`
		SELECT id, started_at, feeds, feed_errors, entries, candidates, batches, sent, failed
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r       Run
			started string
		)
		if err := rows.Scan(&r.ID, &started, &r.Feeds, &r.FeedErrors, &r.Entries,
			&r.Candidates, &r.Batches, &r.Sent, &r.Failed); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		r.StartedAt, _ = time.Parse(time.RFC3339, started)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// FileSize returns the size of the state database on disk.
func (s *Store) FileSize() (int64, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func parseOptional(layout, value string, loc *time.Location) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.ParseInLocation(layout, value, loc)
}

func formatOptional(layout string, t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(layout)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
