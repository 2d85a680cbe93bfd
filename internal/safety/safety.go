// Package safety provides the hard-stop rule engine for CareLink triage.
//
// The engine evaluates patient utterances against a fixed list of red-flag
// phrases. Matching is case-insensitive substring matching; precision is
// deliberately sacrificed for recall, since a false positive routes to human
// follow-up at worst while a false negative is the danger to avoid.
package safety

import (
	"log/slog"
	"strings"
)

// Engine matches utterances against a hard-stop phrase list. It is a pure
// function of its phrase list and is consulted by both the fallback heuristic
// and the decision coercion layer; it must never be bypassed.
type Engine struct {
	phrases []string
}

// NewEngine creates a rule engine from the given phrase list. Phrases are
// normalized to lower case once at construction.
func NewEngine(phrases []string) *Engine {
	normalized := make([]string, 0, len(phrases))
	for _, p := range phrases {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			normalized = append(normalized, p)
		}
	}
	return &Engine{phrases: normalized}
}

// MatchesHardStop reports whether the utterance contains any hard-stop phrase.
func (e *Engine) MatchesHardStop(utterance string) bool {
	return len(e.MatchedPhrases(utterance)) > 0
}

// MatchedPhrases returns every hard-stop phrase found in the utterance, in
// phrase-list order.
func (e *Engine) MatchedPhrases(utterance string) []string {
	text := strings.ToLower(utterance)
	if strings.TrimSpace(text) == "" {
		return nil
	}
	var matched []string
	for _, p := range e.phrases {
		if strings.Contains(text, p) {
			matched = append(matched, p)
		}
	}
	if len(matched) > 0 {
		slog.Debug("safety.Engine: hard-stop phrases matched", "count", len(matched), "phrases", matched)
	}
	return matched
}

// PhraseCount returns the number of phrases the engine evaluates.
func (e *Engine) PhraseCount() int {
	return len(e.phrases)
}
