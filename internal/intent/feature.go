package intent

import "github.com/MrWong99/museguide/internal/exhibit"

// MatchFeature returns the first feature, in the order given, whose name
// occurs in message as a whole-word phrase (see [ContainsPhrase]).
func MatchFeature(message string, features []exhibit.Feature) (exhibit.Feature, bool) {
	for _, f := range features {
		if f.Name == "" {
			continue
		}
		if ContainsPhrase(message, f.Name) {
			return f, true
		}
	}
	return exhibit.Feature{}, false
}

// MatchFeatureFuzzy is the tolerant counterpart of [MatchFeature] for
// transcribed or mistyped names. It returns the first feature whose name
// passes [ContainsPhraseFuzzy] at minRatio.
func MatchFeatureFuzzy(message string, features []exhibit.Feature, minRatio float64) (exhibit.Feature, bool) {
	for _, f := range features {
		if len(words(f.Name)) == 0 {
			continue
		}
		if ContainsPhraseFuzzy(message, f.Name, minRatio) {
			return f, true
		}
	}
	return exhibit.Feature{}, false
}
