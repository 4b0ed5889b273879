/*
Package notify formats push batches as chat text and delivers them to a
group-bot webhook.
*/
package notify

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/F-swanlight/sniffer-geo/internal/backlog"
)

const DefaultTitle = "Geoscience Daily"

// KeywordCount is one row of the keyword-frequency table.
type KeywordCount struct {
	Keyword string
	Count   int
}

// Message is everything needed to render one batch.
type Message struct {
	Title    string
	Date     time.Time
	Index    int
	Total    int
	Articles []backlog.Article

	// Only set on the final batch.
	Keywords []KeywordCount
	Trending []string

	// Translations maps an original title to its translation.
	Translations map[string]string
}

// RenderEmpty is the notice for a day with nothing to deliver.
func RenderEmpty(title string, date time.Time) string {
	if title == "" {
		title = DefaultTitle
	}
	return fmt.Sprintf("【%s】%s\n\nNo new matching articles today.", title, date.Format("2006-01-02"))
}

// Render produces the plain text body for a batch.
func Render(m Message) string {
	title := m.Title
	if title == "" {
		title = DefaultTitle
	}

	var sb strings.Builder
	index, total := m.Index, m.Total
	if total < 1 {
		index, total = 1, 1
	}
	sb.WriteString(fmt.Sprintf("【%s】%s (%d/%d)\n\n", title, m.Date.Format("2006-01-02"), index, total))

	for i, a := range m.Articles {
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, strings.TrimSpace(a.Title)))
		if tr, ok := m.Translations[a.Title]; ok && tr != "" && tr != a.Title {
			sb.WriteString(fmt.Sprintf("   %s\n", tr))
		}
		sb.WriteString(fmt.Sprintf("   %s\n", a.Link))
		if i < len(m.Articles)-1 {
			sb.WriteString("\n")
		}
	}

	if len(m.Keywords) > 0 {
		sb.WriteString("\nKeywords:\n")
		for _, kc := range m.Keywords {
			sb.WriteString(fmt.Sprintf("  %s × %d\n", kc.Keyword, kc.Count))
		}
	}

	if len(m.Trending) > 0 {
		sb.WriteString("\nTrending: ")
		sb.WriteString(strings.Join(m.Trending, ", "))
		sb.WriteString("\n")
	}

	return strings.TrimRight(sb.String(), "\n")
}

// KeywordFrequency counts matched keywords across articles, case-folded,
// sorted by count descending then first appearance, capped at top.
func KeywordFrequency(articles []backlog.Article, top int) []KeywordCount {
	counts := map[string]int{}
	display := map[string]string{}
	var order []string
	for _, a := range articles {
		for _, kw := range a.Keywords {
			key := strings.ToLower(kw)
			if _, ok := counts[key]; !ok {
				order = append(order, key)
				display[key] = kw
			}
			counts[key]++
		}
	}

	out := make([]KeywordCount, 0, len(order))
	for _, key := range order {
		out = append(out, KeywordCount{Keyword: display[key], Count: counts[key]})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Count > out[j].Count
	})
	if top > 0 && len(out) > top {
		out = out[:top]
	}
	return out
}
