package intent_test

import (
	"testing"

	"github.com/MrWong99/museguide/internal/exhibit"
	"github.com/MrWong99/museguide/internal/intent"
)

var features = []exhibit.Feature{
	{ID: "1", Name: "Rosetta Stone", Anchor: "egypt-04"},
	{ID: "2", Name: "Stone", Anchor: "geo-01"},
	{ID: "3", Name: "Cafe", Anchor: "cafe"},
}

func TestMatchFeature(t *testing.T) {
	t.Parallel()

	tests := []struct {
		message string
		wantID  string
		wantOK  bool
	}{
		{"where is the rosetta stone please", "1", true},
		{"take me to the stone exhibit", "2", true},
		{"is the CAFE open", "3", true},
		{"where is the cafeteria", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := intent.MatchFeature(tt.message, features)
		if ok != tt.wantOK || got.ID != tt.wantID {
			t.Errorf("MatchFeature(%q) = (%q, %v), want (%q, %v)", tt.message, got.ID, ok, tt.wantID, tt.wantOK)
		}
	}
}

func TestMatchFeature_ListOrderWins(t *testing.T) {
	t.Parallel()

	// Both "Stone" and "Rosetta Stone" occur; order of the supplied list decides.
	reordered := []exhibit.Feature{features[1], features[0]}
	got, ok := intent.MatchFeature("show me the rosetta stone", reordered)
	if !ok || got.ID != "2" {
		t.Errorf("MatchFeature = (%q, %v), want (%q, true)", got.ID, ok, "2")
	}
}

func TestMatchFeature_SkipsUnnamed(t *testing.T) {
	t.Parallel()

	list := []exhibit.Feature{{ID: "blank"}, features[2]}
	got, ok := intent.MatchFeature("the cafe", list)
	if !ok || got.ID != "3" {
		t.Errorf("MatchFeature = (%q, %v), want (%q, true)", got.ID, ok, "3")
	}
}

func TestMatchFeatureFuzzy(t *testing.T) {
	t.Parallel()

	// One dropped letter: 1 - 1/7 = 0.857.
	got, ok := intent.MatchFeatureFuzzy("where is the roseta stone", features, 0.75)
	if !ok || got.ID != "1" {
		t.Errorf("MatchFeatureFuzzy = (%q, %v), want (%q, true)", got.ID, ok, "1")
	}

	// A transposition costs two edits: 1 - 2/7 = 0.714, so the first
	// word misses and the shorter name further down wins.
	got, ok = intent.MatchFeatureFuzzy("where is the rosseta stone", features, 0.75)
	if !ok || got.ID != "2" {
		t.Errorf("MatchFeatureFuzzy = (%q, %v), want (%q, true)", got.ID, ok, "2")
	}
	got, ok = intent.MatchFeatureFuzzy("where is the rosseta stone", features, 0.7)
	if !ok || got.ID != "1" {
		t.Errorf("MatchFeatureFuzzy at 0.7 = (%q, %v), want (%q, true)", got.ID, ok, "1")
	}

	if _, ok := intent.MatchFeatureFuzzy("where is the gift shop", features, 0.75); ok {
		t.Error("MatchFeatureFuzzy matched an unknown feature")
	}
}
