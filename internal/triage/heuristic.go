// Package triage implements the conversational triage state machine for
// CareLink check-in calls: the fallback heuristic, the decision coercion
// layer, the identity and symptom sub-protocols, and the call orchestrator.
package triage

import (
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/JoyZhuoz/CareLink-sub000/internal/models"
	"github.com/JoyZhuoz/CareLink-sub000/internal/safety"
)

// questionPrefixLen is how many characters of a question are compared when
// checking whether it was already asked. Prefix matching tolerates the oracle
// paraphrasing the tail of a question without changing its substance.
const questionPrefixLen = 24

// Heuristic produces a conservative triage decision from session state and
// the latest utterance. It is used whenever the oracle is unavailable or
// returns something unusable, and can drive a full call end-to-end on its own.
type Heuristic struct {
	engine *safety.Engine
	policy *safety.Policy
}

// NewHeuristic creates the fallback decision heuristic.
func NewHeuristic(engine *safety.Engine, policy *safety.Policy) *Heuristic {
	return &Heuristic{engine: engine, policy: policy}
}

// Decide returns the conservative decision for one symptom turn:
// hard-stop phrases force RED and termination; otherwise ask another
// clarifying question while budget remains, else close with YELLOW.
func (h *Heuristic) Decide(s *models.Session, utterance string) models.Decision {
	if matched := h.engine.MatchedPhrases(utterance); len(matched) > 0 {
		slog.Info("Heuristic.Decide: hard-stop matched, forcing RED", "sessionID", s.SessionID, "phrases", matched)
		return models.Decision{
			AskFollowup:          false,
			EndCall:              true,
			TriageLevel:          models.TriageRed,
			Rationale:            fmt.Sprintf("patient reported a red-flag symptom (%s)", strings.Join(matched, ", ")),
			MatchedComplications: matched,
			RecommendedAction:    h.policy.RecommendedAction(models.TriageRed),
			Source:               models.DecisionSourceFallback,
		}
	}

	if s.FollowupCount < models.MaxFollowups {
		if q, ok := h.PickUnaskedQuestion(s); ok {
			return models.Decision{
				AskFollowup:    true,
				EndCall:        false,
				TriageLevel:    models.TriageYellow,
				NextQuestion:   q.Text,
				NextQuestionID: q.ID,
				Rationale:      "insufficient information; asking a clarifying question",
				Source:         models.DecisionSourceFallback,
			}
		}
		slog.Debug("Heuristic.Decide: question set exhausted before follow-up budget", "sessionID", s.SessionID)
	}

	return models.Decision{
		AskFollowup:       false,
		EndCall:           true,
		TriageLevel:       models.TriageYellow,
		Rationale:         "follow-up budget exhausted without a definitive assessment",
		RecommendedAction: h.policy.RecommendedAction(models.TriageYellow),
		Source:            models.DecisionSourceFallback,
	}
}

// PickUnaskedQuestion selects the first question from the policy's priority
// list that has not been asked in this session, checking both the asked-id
// set and the AI transcript entries so the conversation never visibly
// repeats itself even across many fallback invocations.
func (h *Heuristic) PickUnaskedQuestion(s *models.Session) (safety.Question, bool) {
	for _, q := range h.policy.Questions {
		if s.AskedQuestions[q.ID] {
			continue
		}
		if questionInTranscript(s, q.Text) {
			continue
		}
		return q, true
	}
	return safety.Question{}, false
}

// questionInTranscript reports whether a question's prefix already appears
// among prior AI transcript entries.
func questionInTranscript(s *models.Session, question string) bool {
	prefix := questionPrefix(question)
	for _, u := range s.Transcript {
		if u.Speaker != models.SpeakerAI {
			continue
		}
		if strings.Contains(strings.ToLower(u.Text), prefix) {
			return true
		}
	}
	return false
}

// questionPrefix normalizes a question to its lower-cased comparison prefix,
// never cutting in the middle of a multi-byte rune.
func questionPrefix(question string) string {
	q := strings.ToLower(strings.TrimSpace(question))
	if len(q) <= questionPrefixLen {
		return q
	}
	cut := questionPrefixLen
	for cut > 0 && !utf8.RuneStart(q[cut]) {
		cut--
	}
	return q[:cut]
}

// samePrefix reports whether two question texts share the comparison prefix.
func samePrefix(a, b string) bool {
	pa, pb := questionPrefix(a), questionPrefix(b)
	return pa != "" && pa == pb
}
