package chat

import (
	"github.com/MrWong99/museguide/internal/exhibit"
	"github.com/MrWong99/museguide/internal/intent"
)

// RequestKind tells the client what to do with a [Reply].
type RequestKind int

const (
	// KindChat means show Reply.Text and nothing else.
	KindChat RequestKind = iota

	// KindNavigation means start guiding the visitor to Reply.Destination.
	KindNavigation

	// KindRecognition means run the on-device classifier on the current
	// camera frame and pass the results to [Service.Recognize].
	KindRecognition
)

// String returns the lower-case name of the kind.
func (k RequestKind) String() string {
	switch k {
	case KindNavigation:
		return "navigation"
	case KindRecognition:
		return "recognition"
	default:
		return "chat"
	}
}

// MarshalText implements [encoding.TextMarshaler].
func (k RequestKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Reply is the answer to one visitor message. It is built per message and
// never stored.
type Reply struct {
	Kind   RequestKind   `json:"kind"`
	Intent intent.Intent `json:"intent"`
	Text   string        `json:"text"`

	// Destination is the navigation anchor of Feature. Only set when Kind is
	// KindNavigation.
	Destination string `json:"destination,omitempty"`

	// Feature is the exhibit the message referred to, if any.
	Feature *exhibit.Feature `json:"feature,omitempty"`
}

// Classification is one label produced by the client's image classifier.
type Classification struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Recognition is the outcome of [Service.Recognize].
type Recognition struct {
	Recognized bool             `json:"recognized"`
	Label      string           `json:"label,omitempty"`
	Confidence float64          `json:"confidence,omitempty"`
	Text       string           `json:"text"`
	Feature    *exhibit.Feature `json:"feature,omitempty"`
}

// Canned reply texts.
const (
	greetingText    = "Hello! I'm your museum guide. Ask me where an exhibit is, point your camera at something, or ask me about it."
	helpText        = "I can take you to an exhibit, recognise what your camera is pointing at, and tell you about the pieces on display. Try \"take me to\" followed by an exhibit name."
	askWhereText    = "Which exhibit would you like to go to?"
	askWhichText    = "Which exhibit would you like to know about?"
	recognitionText = "Hold your camera steady on the exhibit and I'll take a look."
	fallbackText    = "Sorry, I didn't catch that. You can ask me for directions, or about an exhibit."
	unrecognised    = "Sorry, I couldn't recognise that exhibit. Try getting a little closer."
	noDescription   = "I don't have any more details about %s yet."
)
