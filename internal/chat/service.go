// Package chat turns visitor messages into replies for the guide client.
//
// A [Service] classifies each message with the intent matcher and resolves
// exhibit names against an ordered feature list. Navigation and
// information requests try an exact whole-word match first and fall back to
// a fuzzy word-sequence match, so a dropped letter as in "roseta stone"
// still finds the Rosetta Stone at the default threshold.
package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/museguide/internal/exhibit"
	"github.com/MrWong99/museguide/internal/intent"
	"github.com/MrWong99/museguide/internal/observe"
)

// Default thresholds.
const (
	DefaultFuzzyThreshold      = intent.DefaultFuzzyRatio
	DefaultConfidenceThreshold = 0.6
)

// FeatureLister supplies exhibits in match order. [exhibit.Store]
// implementations satisfy it.
type FeatureLister interface {
	List(ctx context.Context) ([]exhibit.Feature, error)
}

// Option is a functional option for configuring a [Service].
type Option func(*Service)

// WithFuzzyThreshold sets the per-word similarity used by the fuzzy feature
// fallback.
func WithFuzzyThreshold(ratio float64) Option {
	return func(s *Service) { s.fuzzy = ratio }
}

// WithConfidenceThreshold sets the minimum classifier confidence accepted by
// [Service.Recognize].
func WithConfidenceThreshold(c float64) Option {
	return func(s *Service) { s.confidence = c }
}

// WithMetrics records chat and recognition counters on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// Service answers visitor messages. It is safe for concurrent use.
type Service struct {
	features FeatureLister
	metrics  *observe.Metrics

	mu         sync.RWMutex
	fuzzy      float64
	confidence float64
}

// New creates a Service that looks exhibits up in features.
func New(features FeatureLister, opts ...Option) *Service {
	s := &Service{
		features:   features,
		fuzzy:      DefaultFuzzyThreshold,
		confidence: DefaultConfidenceThreshold,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SetThresholds replaces the fuzzy and confidence thresholds. Non-positive
// values leave the current setting unchanged.
func (s *Service) SetThresholds(fuzzy, confidence float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fuzzy > 0 {
		s.fuzzy = fuzzy
	}
	if confidence > 0 {
		s.confidence = confidence
	}
}

// Thresholds returns the current fuzzy and confidence thresholds.
func (s *Service) Thresholds() (fuzzy, confidence float64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fuzzy, s.confidence
}

// Respond classifies message and builds the reply. The only error source is
// the feature lister.
func (s *Service) Respond(ctx context.Context, message string) (Reply, error) {
	ctx, span := observe.StartSpan(ctx, "chat.respond")
	defer span.End()
	start := time.Now()

	in, ok := intent.Classify(message)
	reply := Reply{Kind: KindChat, Intent: in}

	switch {
	case !ok:
		reply.Text = fallbackText
	case in == intent.Greeting:
		reply.Text = greetingText
	case in == intent.Help:
		reply.Text = helpText
	case in == intent.Recognition:
		reply.Kind = KindRecognition
		reply.Text = recognitionText
	case in == intent.Navigation, in == intent.Information:
		f, found, err := s.lookup(ctx, message)
		if err != nil {
			span.RecordError(err)
			return Reply{}, fmt.Errorf("chat: respond: %w", err)
		}
		s.resolve(&reply, f, found)
	}

	span.SetAttributes(
		attribute.String("chat.intent", in.String()),
		attribute.String("chat.kind", reply.Kind.String()),
	)
	if s.metrics != nil {
		s.metrics.RecordChat(ctx, in.String(), reply.Kind.String(), time.Since(start))
	}
	observe.Logger(ctx).Debug("chat: replied", "intent", in, "kind", reply.Kind, "destination", reply.Destination)
	return reply, nil
}

// resolve fills reply for a navigation or information intent.
func (s *Service) resolve(reply *Reply, f exhibit.Feature, found bool) {
	if !found {
		if reply.Intent == intent.Navigation {
			reply.Text = askWhereText
		} else {
			reply.Text = askWhichText
		}
		return
	}
	reply.Feature = &f

	if reply.Intent == intent.Navigation {
		reply.Kind = KindNavigation
		reply.Destination = f.Anchor
		reply.Text = fmt.Sprintf("Let me take you to %s.", f.Name)
		return
	}
	reply.Text = describe(f)
}

// lookup finds the feature message refers to, exact match first.
func (s *Service) lookup(ctx context.Context, message string) (exhibit.Feature, bool, error) {
	features, err := s.features.List(ctx)
	if err != nil {
		return exhibit.Feature{}, false, fmt.Errorf("list features: %w", err)
	}
	if f, ok := intent.MatchFeature(message, features); ok {
		return f, true, nil
	}
	fuzzy, _ := s.Thresholds()
	f, ok := intent.MatchFeatureFuzzy(message, features, fuzzy)
	if ok {
		observe.Logger(ctx).Debug("chat: fuzzy feature match", "feature", f.Name, "min_ratio", fuzzy)
	}
	return f, ok, nil
}

// Recognize picks the most confident classifier label that names a known
// exhibit and reaches the confidence threshold. Label comparison is
// case-insensitive and exact.
func (s *Service) Recognize(ctx context.Context, results []Classification) (Recognition, error) {
	ctx, span := observe.StartSpan(ctx, "chat.recognize")
	defer span.End()

	features, err := s.features.List(ctx)
	if err != nil {
		span.RecordError(err)
		return Recognition{}, fmt.Errorf("chat: recognize: list features: %w", err)
	}
	_, minConfidence := s.Thresholds()

	var (
		best  Classification
		match exhibit.Feature
		found bool
	)
	for _, r := range results {
		if r.Confidence < minConfidence || (found && r.Confidence <= best.Confidence) {
			continue
		}
		if f, ok := featureByName(features, r.Label); ok {
			best, match, found = r, f, true
		}
	}

	if s.metrics != nil {
		s.metrics.RecordRecognition(ctx, found)
	}
	if !found {
		return Recognition{Text: unrecognised}, nil
	}
	return Recognition{
		Recognized: true,
		Label:      best.Label,
		Confidence: best.Confidence,
		Text:       describe(match),
		Feature:    &match,
	}, nil
}

func featureByName(features []exhibit.Feature, label string) (exhibit.Feature, bool) {
	label = strings.TrimSpace(label)
	for _, f := range features {
		if strings.EqualFold(f.Name, label) {
			return f, true
		}
	}
	return exhibit.Feature{}, false
}

func describe(f exhibit.Feature) string {
	if strings.TrimSpace(f.Description) == "" {
		return fmt.Sprintf(noDescription, f.Name)
	}
	return f.Description
}
