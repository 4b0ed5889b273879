package config

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// catalogColumns are the required header names of a journal catalog.
var catalogColumns = []string{"journal_name", "zone", "rss_url"}

// LoadCatalog reads a journal catalog: a CSV file with a header row naming
// at least journal_name, zone and rss_url. Other columns, such as
// impact_factor, are ignored. Every row becomes an enabled feed.
func LoadCatalog(path string) ([]Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}
	defer f.Close()
	return readCatalog(f)
}

func readCatalog(r io.Reader) ([]Source, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading catalog header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, name := range catalogColumns {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("catalog: missing column %q", name)
		}
	}

	var out []Source
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("catalog line %d: %w", line, err)
		}
		zone, err := strconv.Atoi(strings.TrimSpace(row[col["zone"]]))
		if err != nil {
			return nil, fmt.Errorf("catalog line %d: invalid zone %q", line, row[col["zone"]])
		}
		out = append(out, Source{
			Name:    strings.TrimSpace(row[col["journal_name"]]),
			URL:     strings.TrimSpace(row[col["rss_url"]]),
			Enabled: true,
			Zone:    zone,
		})
	}
	return out, nil
}

// mergeFeeds appends catalog journals whose URL is not already listed.
func mergeFeeds(feeds, journals []Source) []Source {
	seen := make(map[string]bool, len(feeds))
	for _, s := range feeds {
		seen[s.URL] = true
	}
	for _, j := range journals {
		if seen[j.URL] {
			continue
		}
		seen[j.URL] = true
		feeds = append(feeds, j)
	}
	return feeds
}
