// Package update looks up the newest published sniffer-geo release.
package update

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	ReleasesURL    = "https://api.github.com/repos/F-swanlight/sniffer-geo/releases/latest"
	DefaultTimeout = 5 * time.Second
)

// ErrNoReleases is returned when the project has not published a release.
var ErrNoReleases = errors.New("no published releases")

// Release is the newest published build.
type Release struct {
	Version   string
	URL       string
	Published time.Time
}

type Checker struct {
	url       string
	userAgent string
	client    *http.Client
}

func NewChecker(timeout time.Duration, userAgent string) *Checker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Checker{url: ReleasesURL, userAgent: userAgent, client: &http.Client{Timeout: timeout}}
}

// Latest fetches the newest release.
func (c *Checker) Latest(ctx context.Context) (*Release, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("checking releases: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNoReleases
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("checking releases: status %d", resp.StatusCode)
	}

	var body struct {
		TagName     string    `json:"tag_name"`
		HTMLURL     string    `json:"html_url"`
		PublishedAt time.Time `json:"published_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding release: %w", err)
	}
	if body.TagName == "" {
		return nil, ErrNoReleases
	}
	return &Release{
		Version:   strings.TrimPrefix(body.TagName, "v"),
		URL:       body.HTMLURL,
		Published: body.PublishedAt,
	}, nil
}

// Newer reports whether latest is a higher version than current. A build
// without a numeric version, such as "dev", is never behind.
func Newer(current, latest string) bool {
	cur, ok := parseVersion(current)
	if !ok {
		return false
	}
	lat, ok := parseVersion(latest)
	if !ok {
		return false
	}
	for i := range cur {
		if lat[i] != cur[i] {
			return lat[i] > cur[i]
		}
	}
	return false
}

// parseVersion reads "v1.2.3" into its numeric parts. Missing parts are
// zero and a pre-release suffix is ignored.
func parseVersion(v string) ([3]int, bool) {
	var out [3]int
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	if i := strings.IndexAny(v, "-+"); i >= 0 {
		v = v[:i]
	}
	parts := strings.Split(v, ".")
	if v == "" || len(parts) > 3 {
		return out, false
	}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return out, false
		}
		out[i] = n
	}
	return out, true
}
