package signal

import (
	"reflect"
	"testing"
)

var testWeights = Weights{
	{Match: "Nature Geoscience", Weight: 3.0},
	{Match: "nature", Weight: 2.5},
	{Match: "Geophysical Research Letters", Weight: 2.0},
	{Match: "  ", Weight: 9.0},
}

func TestLookup(t *testing.T) {
	tests := []struct {
		source string
		want   float64
	}{
		{"Nature Geoscience", 3.0},
		{"nature geoscience - current issue", 3.0},
		{"Nature Communications", 2.5},
		{"GEOPHYSICAL RESEARCH LETTERS", 2.0},
		{"Tectonophysics", DefaultWeight},
		{"", DefaultWeight},
	}
	for _, tt := range tests {
		if got := testWeights.Lookup(tt.source); got != tt.want {
			t.Errorf("Lookup(%q) = %v, want %v", tt.source, got, tt.want)
		}
	}
}

func TestLookupNilTable(t *testing.T) {
	var w Weights
	if got := w.Lookup("Nature"); got != DefaultWeight {
		t.Errorf("expected default weight, got %v", got)
	}
}

func TestMatchKeywords(t *testing.T) {
	keywords := []string{"Seismic", "fault", "subduction", "seismic", "", "magma"}
	text := "Seismic imaging of a subduction FAULT zone"

	got := MatchKeywords(text, keywords)
	want := []string{"Seismic", "fault", "subduction"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("MatchKeywords = %v, want %v", got, want)
	}
}

func TestMatchKeywordsSubstring(t *testing.T) {
	got := MatchKeywords("Paleoclimate records", []string{"climate"})
	if len(got) != 1 {
		t.Errorf("expected substring match, got %v", got)
	}
}

func TestMatchKeywordsNone(t *testing.T) {
	if got := MatchKeywords("Protein folding", []string{"basalt"}); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
}

func TestScore(t *testing.T) {
	s := Score([]string{"a", "b"}, "Nature Communications", testWeights)
	if s.Score != 2 {
		t.Errorf("Score = %v, want 2", s.Score)
	}
	if s.ZoneScore != 5 {
		t.Errorf("ZoneScore = %v, want 5", s.ZoneScore)
	}
	if s.Total() != 7 {
		t.Errorf("Total = %v, want 7", s.Total())
	}
}

func TestScoreUnweightedSource(t *testing.T) {
	s := Score([]string{"a"}, "Unknown Journal", testWeights)
	if s.ZoneScore != s.Score {
		t.Errorf("expected zone score to equal score for default weight, got %v vs %v", s.ZoneScore, s.Score)
	}
}
