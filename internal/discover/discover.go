// Package discover finds RSS and Atom feeds advertised by or hidden on a
// journal's website.
package discover

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
)

// Suffixes probed on the site URL when the page advertises nothing.
var commonSuffixes = []string{"/rss", "/feed", "/feeds", ".rss", ".xml"}

const feedLinkSelector = `link[type="application/rss+xml"], link[type="application/atom+xml"]`

type Finder struct {
	client    *http.Client
	userAgent string
}

func New(timeout time.Duration, userAgent string) *Finder {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Finder{client: &http.Client{Timeout: timeout}, userAgent: userAgent}
}

// Find returns the feed URLs for siteURL: first those declared with
// <link type="application/rss+xml"> (or atom) in the page head, then
// any common feed path that answers with a parseable feed.
func (f *Finder) Find(ctx context.Context, siteURL string) ([]string, error) {
	base, err := url.Parse(siteURL)
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") {
		return nil, fmt.Errorf("invalid site url %q", siteURL)
	}

	var found []string
	seen := map[string]bool{}
	add := func(u string) {
		if !seen[u] {
			seen[u] = true
			found = append(found, u)
		}
	}

	declared, pageErr := f.declared(ctx, base)
	if pageErr != nil {
		slog.Warn("reading site page failed", "url", siteURL, "err", pageErr)
	}
	for _, u := range declared {
		add(u)
	}

	root := strings.TrimRight(siteURL, "/")
	for _, suffix := range commonSuffixes {
		if ctx.Err() != nil {
			return found, ctx.Err()
		}
		candidate := root + suffix
		if seen[candidate] {
			continue
		}
		if f.isFeed(ctx, candidate) {
			add(candidate)
		}
	}

	if len(found) == 0 && pageErr != nil {
		return nil, pageErr
	}
	return found, nil
}

func (f *Finder) declared(ctx context.Context, base *url.URL) ([]string, error) {
	resp, err := f.get(ctx, base.String())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: HTTP %d", base, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", base, err)
	}

	var out []string
	doc.Find(feedLinkSelector).Each(func(_ int, link *goquery.Selection) {
		href, exists := link.Attr("href")
		href = strings.TrimSpace(href)
		if !exists || href == "" {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		out = append(out, base.ResolveReference(ref).String())
	})
	return out, nil
}

func (f *Finder) isFeed(ctx context.Context, u string) bool {
	resp, err := f.get(ctx, u)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false
	}
	head, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return false
	}
	return gofeed.DetectFeedType(bytes.NewReader(head)) != gofeed.FeedTypeUnknown
}

func (f *Finder) get(ctx context.Context, u string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	return f.client.Do(req)
}
