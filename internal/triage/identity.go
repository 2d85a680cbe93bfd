package triage

import (
	"context"
	"log/slog"
	"strings"
	"unicode"

	"github.com/JoyZhuoz/CareLink-sub000/internal/models"
)

var (
	identityYesWords   = []string{"yes", "yeah", "yep", "speaking", "correct"}
	identityYesPhrases = []string{"this is", "that's me", "thats me"}
	identityNoWords    = []string{"no", "nope"}
	identityNoPhrases  = []string{"wrong number", "not me", "she's not", "he's not", "they're not", "not here", "not available"}
)

// classifyIdentityKeyword classifies an identity answer with deterministic
// keyword matching. Single-word markers must appear as whole words, so "no"
// never fires inside "know" or "not sure"; multi-word phrases match as
// substrings. Returns UNCLEAR when no marker matches or the answer matches
// markers on both sides.
func classifyIdentityKeyword(utterance string) IdentityVerdict {
	text := strings.ToLower(strings.TrimSpace(utterance))
	if text == "" {
		return IdentityUnclear
	}
	words := splitAnswerWords(text)
	yes := matchesMarkers(text, words, identityYesWords, identityYesPhrases)
	no := matchesMarkers(text, words, identityNoWords, identityNoPhrases)
	switch {
	case yes && !no:
		return IdentityYes
	case no && !yes:
		return IdentityNo
	default:
		return IdentityUnclear
	}
}

// splitAnswerWords breaks an utterance into words, keeping apostrophes so
// contractions like "don't" stay one word.
func splitAnswerWords(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

func matchesMarkers(text string, words, wordMarkers, phraseMarkers []string) bool {
	for _, m := range wordMarkers {
		for _, w := range words {
			if w == m {
				return true
			}
		}
	}
	for _, m := range phraseMarkers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

// handleIdentityTurn runs one turn of the identity-verification stage.
// Keyword classification runs first; the oracle breaks ties only for
// answers the keywords cannot place.
func (o *Orchestrator) handleIdentityTurn(ctx context.Context, s *models.Session, utterance string) models.TurnResult {
	if strings.TrimSpace(utterance) == "" {
		// A silent line is not an attempt; repeat the question.
		s.Append(models.SpeakerAI, o.policy.IdentityQuestion)
		return models.TurnResult{PromptText: o.policy.IdentityQuestion, Stage: s.Stage}
	}

	verdict := classifyIdentityKeyword(utterance)
	if verdict == IdentityUnclear {
		verdict = o.gateway.ClassifyIdentity(ctx, s, utterance)
	}
	// Every classified answer counts as an attempt, whatever the verdict.
	s.IdentityAttempts++
	slog.Debug("Orchestrator.handleIdentityTurn: classified answer",
		"sessionID", s.SessionID, "verdict", verdict, "attempts", s.IdentityAttempts)

	switch verdict {
	case IdentityYes:
		s.IdentityConfirmed = true
		s.Stage = models.StageSymptoms
		s.Append(models.SpeakerAI, o.policy.OpeningQuestion)
		return models.TurnResult{PromptText: o.policy.OpeningQuestion, Stage: s.Stage}

	case IdentityNo:
		s.Rationale = "call answered by someone other than the patient"
		s.Append(models.SpeakerAI, o.policy.DeclinationClosing)
		s.Complete()
		return models.TurnResult{
			PromptText:      o.policy.DeclinationClosing,
			ShouldTerminate: true,
			Stage:           s.Stage,
			TriageLevel:     s.TriageLevel,
		}

	default:
		if s.IdentityAttempts < models.MaxIdentityAttempts {
			prompt := o.policy.RepromptPrefix + o.policy.IdentityQuestion
			s.Append(models.SpeakerAI, prompt)
			return models.TurnResult{PromptText: prompt, Stage: s.Stage}
		}
		s.Rationale = "identity could not be verified"
		s.Append(models.SpeakerAI, o.policy.UnverifiedClosing)
		s.Complete()
		return models.TurnResult{
			PromptText:      o.policy.UnverifiedClosing,
			ShouldTerminate: true,
			Stage:           s.Stage,
			TriageLevel:     s.TriageLevel,
		}
	}
}
