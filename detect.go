package travelmate

import "strings"

// Detector decides whether a free-form agent response signals that the task
// cannot complete without an external credential. The Runner consults the
// structured Response.NeedsAuthorization flag first; a Detector is the
// fallback for agents that only emit prose.
type Detector interface {
	NeedsAuthorization(text string) bool
}

// DetectorFunc adapts a function to the Detector interface.
type DetectorFunc func(text string) bool

// NeedsAuthorization calls f.
func (f DetectorFunc) NeedsAuthorization(text string) bool { return f(text) }

// authPhrases are the signal phrases matched by KeywordDetector, scanned
// case-insensitively.
var authPhrases = []string{
	"authentication", "authorize", "authorization", "auth",
	"sign in", "login", "access", "permission", "credential",
	"need authentication", "requires authentication",
}

// KeywordDetector flags responses containing any known authorization-signal
// phrase. Inherently brittle on free-form text; prefer agents that set the
// structured flag and keep this as a compatibility layer.
type KeywordDetector struct {
	// Phrases overrides the default phrase set when non-empty.
	Phrases []string
}

// NeedsAuthorization reports whether text contains any signal phrase,
// case-insensitively.
func (d *KeywordDetector) NeedsAuthorization(text string) bool {
	phrases := d.Phrases
	if len(phrases) == 0 {
		phrases = authPhrases
	}
	lower := strings.ToLower(text)
	for _, p := range phrases {
		if strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

var _ Detector = (*KeywordDetector)(nil)
