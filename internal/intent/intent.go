// Package intent classifies free-text visitor messages.
//
// Classification is rule based: each [Intent] owns an ordered list of trigger
// phrases and [Classify] returns the first intent with a trigger that occurs
// in the message as a whole-word, case-insensitive phrase. Intents are tried
// in declaration order and the first hit wins; there is no scoring across
// intents.
//
// A trigger is bounded as a single unit: "get to" must be preceded by the
// start of the message or whitespace and followed by whitespace or the end of
// the message, where whitespace includes Unicode spaces such as NBSP.
// Punctuation is not a boundary, so "help?" does not contain
// the trigger "help" but "help me?" does.
//
// Everything in this package is pure and safe for concurrent use.
package intent

import (
	"slices"
	"strings"
)

// Intent is the category a visitor message falls into.
type Intent int

const (
	// None is returned when no trigger matches.
	None Intent = iota
	Greeting
	Help
	Navigation
	Recognition
	Information
)

// String returns the lower-case name of the intent.
func (i Intent) String() string {
	switch i {
	case Greeting:
		return "greeting"
	case Help:
		return "help"
	case Navigation:
		return "navigation"
	case Recognition:
		return "recognition"
	case Information:
		return "information"
	default:
		return "none"
	}
}

// MarshalText implements [encoding.TextMarshaler] so intents encode as
// their names in JSON.
func (i Intent) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

type rule struct {
	intent   Intent
	triggers []string
}

// rules is the classification table. Order matters twice: intents are tried
// top to bottom and, within an intent, triggers left to right.
var rules = []rule{
	newRule(Greeting, "hello", "hi", "hey", "good morning", "good afternoon", "good evening", "greetings"),
	newRule(Help, "help", "assist", "what can you do", "how does this work", "support"),
	newRule(Navigation, "where", "how do i get to", "get to", "take me to", "navigate", "directions", "find", "go to", "show me the way"),
	newRule(Recognition, "what is this", "what am i looking at", "recognize", "identify", "what's this", "scan"),
	newRule(Information, "tell me about", "information", "info", "describe", "explain", "what do you know about", "details"),
}

func newRule(i Intent, phrases ...string) rule {
	return rule{intent: i, triggers: phrases}
}

// All returns every intent in classification order.
func All() []Intent {
	out := make([]Intent, len(rules))
	for i, r := range rules {
		out[i] = r.intent
	}
	return out
}

// Triggers returns a copy of the trigger phrases for i, in match order.
// None has no triggers.
func (i Intent) Triggers() []string {
	idx := slices.IndexFunc(rules, func(r rule) bool { return r.intent == i })
	if idx < 0 {
		return nil
	}
	return slices.Clone(rules[idx].triggers)
}

// Classify returns the first intent whose trigger phrase occurs in message.
// ok is false (and the intent None) when nothing matches.
func Classify(message string) (i Intent, ok bool) {
	if strings.TrimSpace(message) == "" {
		return None, false
	}
	for _, r := range rules {
		for _, t := range r.triggers {
			if containsBounded(message, t) {
				return r.intent, true
			}
		}
	}
	return None, false
}
