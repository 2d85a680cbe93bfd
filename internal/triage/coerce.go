// Package triage decision coercion: validates, repairs, and safety-clamps
// raw oracle replies so the orchestrator only ever sees a policy-compliant
// decision, no matter how the oracle misbehaves.
package triage

import (
	"log/slog"
	"strings"

	"github.com/JoyZhuoz/CareLink-sub000/internal/models"
	"github.com/JoyZhuoz/CareLink-sub000/internal/safety"
)

// Coercer turns an untrusted oracle reply into a valid Decision. Oracle
// failure is fully absorbed here: the orchestrator never sees an error, only
// a decision the safety policy permits.
type Coercer struct {
	heuristic *Heuristic
	engine    *safety.Engine
	policy    *safety.Policy
}

// NewCoercer creates the decision coercion layer.
func NewCoercer(heuristic *Heuristic, engine *safety.Engine, policy *safety.Policy) *Coercer {
	return &Coercer{heuristic: heuristic, engine: engine, policy: policy}
}

// Coerce validates and clamps reply against the fallback heuristic and the
// hard safety policy. Rules are applied in order:
//
//  1. Compute the fallback decision.
//  2. A failed, malformed, or control-field-free reply yields the fallback
//     verbatim. When at least one control field survived type checking,
//     remaining fields are salvaged field-by-field.
//  3. Hard overrides no oracle output may violate: hard-stop phrases force
//     RED + termination; the follow-up ceiling forces no further questions;
//     a decision never leaves the call hanging with no question and no
//     termination; the first symptom turn may only terminate on an
//     independently confirmed hard stop; a question is never repeated
//     back-to-back.
func (c *Coercer) Coerce(reply models.OracleReply, s *models.Session, utterance string) models.Decision {
	fallback := c.heuristic.Decide(s, utterance)

	d := fallback
	if reply.Kind == models.OracleReplyOk && reply.Fields.HasControlField() {
		d = c.merge(fallback, reply.Fields)
	} else if reply.Kind != models.OracleReplyOk {
		slog.Warn("Coercer.Coerce: unusable oracle reply, using fallback",
			"sessionID", s.SessionID, "kind", reply.Kind, "error", reply.Err)
	} else {
		slog.Warn("Coercer.Coerce: oracle reply missing all control fields, using fallback",
			"sessionID", s.SessionID, "raw", truncateForLog(reply.Raw))
	}

	// Hard-stop phrases dominate everything the oracle said.
	matched := c.engine.MatchedPhrases(utterance)
	if len(matched) > 0 {
		d.TriageLevel = models.TriageRed
		d.AskFollowup = false
		d.EndCall = true
		d.MatchedComplications = mergePhrases(matched, d.MatchedComplications)
		if d.Rationale == "" {
			d.Rationale = fallback.Rationale
		}
	}

	// Follow-up ceiling: once reached, no further question may be asked
	// regardless of oracle output.
	if s.FollowupCount >= models.MaxFollowups {
		d.AskFollowup = false
	}

	// A committed RED always terminates in the same turn.
	if d.TriageLevel == models.TriageRed {
		d.AskFollowup = false
	}

	// A decision can never leave the session hanging.
	if !d.AskFollowup {
		d.EndCall = true
	}

	// A follow-up needs usable question text.
	if d.AskFollowup && strings.TrimSpace(d.NextQuestion) == "" {
		d.NextQuestion = fallback.NextQuestion
		d.NextQuestionID = fallback.NextQuestionID
	}

	// First-turn anti-premature-termination: a single short or vague answer
	// is never sufficient basis for a final verdict. Ending on the very
	// first symptom turn requires RED plus an independently confirmed
	// hard-stop phrase.
	if s.FollowupCount == 0 && d.EndCall && !(d.TriageLevel == models.TriageRed && len(matched) > 0) {
		slog.Info("Coercer.Coerce: overriding premature first-turn termination",
			"sessionID", s.SessionID, "oracleTriage", d.TriageLevel)
		d.AskFollowup = true
		d.EndCall = false
		if d.TriageLevel == models.TriageRed {
			// An unconfirmed RED is not committed; probe instead.
			d.TriageLevel = models.TriageYellow
		}
		if strings.TrimSpace(d.NextQuestion) == "" {
			d.NextQuestion = fallback.NextQuestion
			d.NextQuestionID = fallback.NextQuestionID
		}
	}

	if d.AskFollowup {
		d.EndCall = false
	}

	// Never repeat the question just asked: substitute a different unasked
	// question from the policy set.
	if d.AskFollowup {
		if last, ok := s.LastAIUtterance(); ok && samePrefix(d.NextQuestion, last) {
			if q, ok := c.heuristic.PickUnaskedQuestion(s); ok && !samePrefix(q.Text, last) {
				slog.Debug("Coercer.Coerce: substituting repeated question",
					"sessionID", s.SessionID, "repeated", d.NextQuestion, "substitute", q.Text)
				d.NextQuestion = q.Text
				d.NextQuestionID = q.ID
			}
		}
	}

	if strings.TrimSpace(d.RecommendedAction) == "" {
		d.RecommendedAction = c.policy.RecommendedAction(d.TriageLevel)
	}

	return d
}

// merge takes each oracle field independently when present and well-typed,
// falling back to the heuristic's value otherwise. Confidence is clamped to
// [0,1]; lists were already type-filtered and are truncated here.
func (c *Coercer) merge(fallback models.Decision, f models.PartialDecision) models.Decision {
	d := fallback
	d.Source = models.DecisionSourceOracle

	if f.NeedsFollowup != nil {
		d.AskFollowup = *f.NeedsFollowup
	}
	if f.EndCall != nil {
		d.EndCall = *f.EndCall
	}
	if f.NextQuestion != nil && strings.TrimSpace(*f.NextQuestion) != "" {
		d.NextQuestion = strings.TrimSpace(*f.NextQuestion)
		// Oracle-authored questions carry no policy id; the asked set is
		// tracked only for the fixed question set.
		d.NextQuestionID = ""
	}
	if f.TriageLevel != nil {
		if level, ok := models.ParseTriageLevel(*f.TriageLevel); ok {
			d.TriageLevel = level
		}
	}
	if f.Rationale != nil && strings.TrimSpace(*f.Rationale) != "" {
		d.Rationale = strings.TrimSpace(*f.Rationale)
	}
	if f.RecommendedAction != nil && strings.TrimSpace(*f.RecommendedAction) != "" {
		d.RecommendedAction = strings.TrimSpace(*f.RecommendedAction)
	}
	if f.Confidence != nil {
		d.Confidence = clamp01(*f.Confidence)
	}
	if f.MatchedComplications != nil {
		d.MatchedComplications = truncateList(f.MatchedComplications, models.MaxListedComplications)
	}
	if f.ReportedSymptoms != nil {
		d.ReportedSymptoms = truncateList(f.ReportedSymptoms, models.MaxListedComplications)
	}
	return d
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func truncateList(items []string, max int) []string {
	if len(items) > max {
		return items[:max]
	}
	return items
}

// mergePhrases unions matched safety phrases with oracle-supplied
// complications, safety phrases first, bounded by the list ceiling.
func mergePhrases(matched, existing []string) []string {
	seen := make(map[string]bool, len(matched)+len(existing))
	var out []string
	for _, p := range append(append([]string{}, matched...), existing...) {
		key := strings.ToLower(strings.TrimSpace(p))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, p)
	}
	return truncateList(out, models.MaxListedComplications)
}

func truncateForLog(s string) string {
	const max = 200
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
