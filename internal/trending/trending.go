// Package trending surfaces phrases that recur across today's titles but
// are uncommon in the backlog.
package trending

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

const (
	minWords = 2
	maxWords = 4
)

// Phrases returns up to top phrases of two to four words drawn from today's
// titles, scored by frequency today times inverse document frequency over
// corpus. A phrase must occur at least twice today. Phrases overlapping a
// better-scored one are skipped.
func Phrases(today, corpus []string, top int) []string {
	if top <= 0 || len(today) == 0 {
		return nil
	}

	df := map[string]int{}
	for _, title := range corpus {
		seen := map[string]bool{}
		for _, p := range ngrams(tokenize(title)) {
			if !seen[p] {
				df[p]++
				seen[p] = true
			}
		}
	}

	tf := map[string]int{}
	for _, title := range today {
		for _, p := range ngrams(tokenize(title)) {
			tf[p]++
		}
	}

	totalDocs := float64(len(corpus))

	type scored struct {
		term  string
		score float64
	}
	var terms []scored
	for term, freq := range tf {
		if freq < 2 {
			continue
		}
		idf := math.Log((totalDocs+1)/float64(df[term]+1)) + 1
		score := float64(freq) * idf * float64(len(strings.Fields(term)))
		terms = append(terms, scored{term, score})
	}

	sort.Slice(terms, func(i, j int) bool {
		if terms[i].score != terms[j].score {
			return terms[i].score > terms[j].score
		}
		return terms[i].term < terms[j].term
	})

	var out []string
	for _, t := range terms {
		if overlaps(t.term, out) {
			continue
		}
		out = append(out, t.term)
		if len(out) >= top {
			break
		}
	}
	return out
}

func overlaps(term string, chosen []string) bool {
	for _, c := range chosen {
		if strings.Contains(c, term) || strings.Contains(term, c) {
			return true
		}
	}
	return false
}

func ngrams(tokens []string) []string {
	var out []string
	for n := minWords; n <= maxWords; n++ {
		for i := 0; i+n <= len(tokens); i++ {
			out = append(out, strings.Join(tokens[i:i+n], " "))
		}
	}
	return out
}

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
	"with": true, "by": true, "from": true, "is": true, "it": true, "its": true,
	"this": true, "that": true, "are": true, "was": true, "were": true, "be": true,
	"been": true, "have": true, "has": true, "had": true, "do": true, "does": true,
	"will": true, "would": true, "could": true, "should": true, "may": true,
	"might": true, "can": true, "not": true, "no": true, "how": true, "what": true,
	"when": true, "where": true, "which": true, "why": true, "all": true,
	"each": true, "both": true, "more": true, "most": true, "other": true,
	"some": true, "such": true, "than": true, "into": true, "over": true,
	"after": true, "before": true, "between": true, "under": true, "during": true,
	"new": true, "using": true, "based": true, "via": true, "across": true,
	"study": true, "evidence": true, "implications": true,
}

func tokenize(s string) []string {
	var tokens []string
	for _, word := range strings.Fields(strings.ToLower(s)) {
		word = strings.TrimFunc(word, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if len([]rune(word)) < 3 {
			continue
		}
		if stopWords[word] {
			continue
		}
		tokens = append(tokens, word)
	}
	return tokens
}
