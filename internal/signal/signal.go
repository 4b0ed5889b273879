package signal

import (
	"strings"
)

// Weight maps a source-name fragment to a multiplier.
type Weight struct {
	Match  string  `yaml:"match"`
	Weight float64 `yaml:"weight"`
}

// Weights is an ordered lookup table. The first fragment that occurs in a
// source name (case-insensitive) decides the weight.
type Weights []Weight

// DefaultWeight applies to sources that match no fragment.
const DefaultWeight = 1.0

// Lookup returns the weight for a source name.
func (w Weights) Lookup(source string) float64 {
	lower := strings.ToLower(source)
	for _, entry := range w {
		frag := strings.ToLower(strings.TrimSpace(entry.Match))
		if frag == "" {
			continue
		}
		if strings.Contains(lower, frag) {
			return entry.Weight
		}
	}
	return DefaultWeight
}

// MatchKeywords returns the keywords that occur in text as case-insensitive
// substrings, in keyword order. A keyword listed twice (in any case) is
// reported once.
func MatchKeywords(text string, keywords []string) []string {
	lower := strings.ToLower(text)
	seen := make(map[string]bool, len(keywords))
	var matched []string
	for _, kw := range keywords {
		key := strings.ToLower(strings.TrimSpace(kw))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		if strings.Contains(lower, key) {
			matched = append(matched, kw)
		}
	}
	return matched
}

// Scores holds the two relevance numbers attached to an article.
type Scores struct {
	Score     float64
	ZoneScore float64
}

// Total is the ranking key.
func (s Scores) Total() float64 {
	return s.ZoneScore + s.Score
}

// Score computes the keyword score and source-weighted zone score.
func Score(matched []string, source string, weights Weights) Scores {
	score := float64(len(matched))
	return Scores{
		Score:     score,
		ZoneScore: score * weights.Lookup(source),
	}
}
