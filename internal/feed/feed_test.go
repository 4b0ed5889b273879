package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/F-swanlight/sniffer-geo/internal/config"
)

const rssTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Journal of Test Geology</title>
  <item>
    <title>Slow slip beneath the &lt;i&gt;Hikurangi&lt;/i&gt; margin</title>
    <link>https://example.com/a1</link>
    <description>&lt;p&gt;Geodetic evidence for   slow slip.&lt;/p&gt;</description>
    <pubDate>%s</pubDate>
  </item>
  <item>
    <title>Undated note</title>
    <link>https://example.com/a2</link>
  </item>
</channel>
</rss>`

func fastFetcher() *RSSFetcher {
	return NewRSSFetcher(Options{Timeout: 5 * time.Second, BackoffBase: time.Millisecond, BackoffMax: 2 * time.Millisecond})
}

func TestFetchParsesEntries(t *testing.T) {
	pub := time.Date(2026, 10, 15, 6, 30, 0, 0, time.UTC)
	var ua string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua = r.Header.Get("User-Agent")
		fmt.Fprintf(w, rssTemplate, pub.Format(time.RFC1123Z))
	}))
	defer srv.Close()

	entries, err := fastFetcher().Fetch(context.Background(), config.Source{Name: "JTG", URL: srv.URL})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if ua != DefaultUserAgent {
		t.Errorf("expected user agent %q, got %q", DefaultUserAgent, ua)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	e := entries[0]
	if e.Title != "Slow slip beneath the Hikurangi margin" {
		t.Errorf("unexpected title %q", e.Title)
	}
	if e.Summary != "Geodetic evidence for slow slip." {
		t.Errorf("unexpected summary %q", e.Summary)
	}
	if e.Source != "JTG" {
		t.Errorf("expected configured source name, got %q", e.Source)
	}
	if e.Published == nil || !e.Published.Equal(pub) {
		t.Errorf("expected published %v, got %v", pub, e.Published)
	}

	if entries[1].Published != nil {
		t.Errorf("expected nil date for undated item, got %v", entries[1].Published)
	}
	if entries[1].Summary != "" {
		t.Errorf("expected empty summary, got %q", entries[1].Summary)
	}
}

func TestFetchFallsBackToFeedTitle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, rssTemplate, "Thu, 15 Oct 2026 06:30:00 +0000")
	}))
	defer srv.Close()

	entries, err := fastFetcher().Fetch(context.Background(), config.Source{URL: srv.URL})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if entries[0].Source != "Journal of Test Geology" {
		t.Errorf("expected feed title as source, got %q", entries[0].Source)
	}
}

func TestFetchRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprintf(w, rssTemplate, "Thu, 15 Oct 2026 06:30:00 +0000")
	}))
	defer srv.Close()

	entries, err := fastFetcher().Fetch(context.Background(), config.Source{Name: "x", URL: srv.URL})
	if err != nil {
		t.Fatalf("expected success on third attempt: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("expected 2 entries, got %d", len(entries))
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestFetchGivesUpAfterAttempts(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := fastFetcher().Fetch(context.Background(), config.Source{Name: "x", URL: srv.URL})
	if err == nil {
		t.Fatal("expected error")
	}
	var herr gofeed.HTTPError
	if !errors.As(err, &herr) || herr.StatusCode != http.StatusBadGateway {
		t.Errorf("expected wrapped HTTP 502, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != DefaultAttempts {
		t.Errorf("expected %d attempts, got %d", DefaultAttempts, got)
	}
}

func TestFetchDoesNotRetryNotFound(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	if _, err := fastFetcher().Fetch(context.Background(), config.Source{Name: "x", URL: srv.URL}); err == nil {
		t.Fatal("expected error")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("expected a single attempt for 404, got %d", got)
	}
}

func TestBackoff(t *testing.T) {
	b := newBackoff(2*time.Second, 10*time.Second)
	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 10 * time.Second, 10 * time.Second}
	for i, w := range want {
		if got := b.Next(); got != w {
			t.Errorf("step %d: got %v, want %v", i, got, w)
		}
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		input    string
		ok       bool
		floating bool
	}{
		{"Thu, 15 Oct 2026 06:30:00 +0000", true, false},
		{"2026-10-15T06:30:00Z", true, false},
		{"2026-10-15T06:30:00", true, true},
		{"2026-10-15 20:00:00", true, true},
		{"2026-10-15", true, true},
		{"15 Oct 2026", true, true},
		{"October 15, 2026", true, true},
		{"", false, false},
		{"sometime last week", false, false},
	}
	for _, tt := range tests {
		got, floating, ok := parseDate(tt.input)
		if ok != tt.ok {
			t.Errorf("parseDate(%q) ok = %v, want %v", tt.input, ok, tt.ok)
			continue
		}
		if floating != tt.floating {
			t.Errorf("parseDate(%q) floating = %v, want %v", tt.input, floating, tt.floating)
		}
		if ok && (got.Year() != 2026 || got.Month() != time.October || got.Day() != 15) {
			t.Errorf("parseDate(%q) = %v", tt.input, got)
		}
	}
}

func TestItemDateFallsBackToUpdated(t *testing.T) {
	up := time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC)
	if got, floating := itemDate(&gofeed.Item{UpdatedParsed: &up}); got == nil || !got.Equal(up) || floating {
		t.Errorf("expected updated date, got %v floating=%v", got, floating)
	}
	if got, floating := itemDate(&gofeed.Item{Published: "2026-10-13"}); got == nil || got.Day() != 13 || !floating {
		t.Errorf("expected floating free-text date, got %v floating=%v", got, floating)
	}
	if got, _ := itemDate(&gofeed.Item{}); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
}

func TestItemDateZonelessOverridesParsed(t *testing.T) {
	// gofeed parses a zone-less string as UTC.
	parsed := time.Date(2026, 10, 15, 20, 0, 0, 0, time.UTC)
	got, floating := itemDate(&gofeed.Item{Published: "2026-10-15 20:00:00", PublishedParsed: &parsed})
	if got == nil || !floating || got.Hour() != 20 {
		t.Errorf("expected floating 20:00, got %v floating=%v", got, floating)
	}

	zoned := time.Date(2026, 10, 15, 6, 30, 0, 0, time.UTC)
	got, floating = itemDate(&gofeed.Item{Published: "Thu, 15 Oct 2026 06:30:00 +0000", PublishedParsed: &zoned})
	if got == nil || floating || !got.Equal(zoned) {
		t.Errorf("expected zoned date kept, got %v floating=%v", got, floating)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		input string
		n     int
		want  string
	}{
		{"short", 10, "short"},
		{"exactly ten", 11, "exactly ten"},
		{"this is a long string", 10, "this is..."},
		{"abc", 3, "abc"},
		{"abcd", 3, "abc"},
		{"", 5, ""},
	}
	for _, tt := range tests {
		got := truncate(tt.input, tt.n)
		if got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.input, tt.n, got, tt.want)
		}
	}
}

func TestTruncateUTF8(t *testing.T) {
	got := truncate("地震波速度结构研究", 5)
	if got != "地震..." {
		t.Errorf("truncate by rune failed: %q", got)
	}
}

func TestStripHTML(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"<p>Hello</p>", "Hello"},
		{"<b>Bold</b> and <i>italic</i>", "Bold and italic"},
		{"No tags here", "No tags here"},
		{"<div>  Multiple   spaces  </div>", "Multiple spaces"},
		{"", ""},
		{"<a href=\"url\">Link</a> text", "Link text"},
	}
	for _, tt := range tests {
		got := stripHTML(tt.input)
		if got != tt.want {
			t.Errorf("stripHTML(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
