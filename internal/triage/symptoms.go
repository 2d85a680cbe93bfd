package triage

import (
	"context"
	"log/slog"
	"strings"

	"github.com/JoyZhuoz/CareLink-sub000/internal/models"
)

// handleSymptomTurn runs one turn of the symptom-assessment stage: ask the
// oracle, coerce its reply into a safe decision, then apply the decision to
// the session.
func (o *Orchestrator) handleSymptomTurn(ctx context.Context, s *models.Session, utterance string) models.TurnResult {
	if strings.TrimSpace(utterance) == "" {
		// Silence repeats the open question without consuming any budget.
		prompt := s.LastPrompt
		if prompt == "" {
			prompt = o.policy.OpeningQuestion
		}
		s.Append(models.SpeakerAI, prompt)
		return models.TurnResult{PromptText: prompt, Stage: s.Stage}
	}

	s.TurnCount++

	var decision models.Decision
	if s.TurnCount >= models.MaxTurns {
		// Turn ceiling hit: skip the oracle but keep hard-stop detection
		// live for this last answer, then close out.
		decision = o.heuristic.Decide(s, utterance)
		decision.AskFollowup = false
		decision.EndCall = true
		if decision.Rationale == "" {
			decision.Rationale = "turn ceiling reached before a conclusive assessment"
		}
		slog.Info("Orchestrator.handleSymptomTurn: turn ceiling reached",
			"sessionID", s.SessionID, "turnCount", s.TurnCount)
	} else {
		reply := o.gateway.Query(ctx, s, utterance)
		decision = o.coercer.Coerce(reply, s, utterance)
	}

	return o.applyDecision(s, decision)
}

// applyDecision writes a coerced decision onto the session and produces the
// turn result: either the next follow-up question or a closing script.
func (o *Orchestrator) applyDecision(s *models.Session, d models.Decision) models.TurnResult {
	s.ApplyTriage(d.TriageLevel)
	if d.Rationale != "" {
		s.Rationale = d.Rationale
	}
	if len(d.MatchedComplications) > 0 {
		s.MatchedComplications = d.MatchedComplications
	}
	if d.RecommendedAction != "" {
		s.RecommendedAction = d.RecommendedAction
	}

	if d.AskFollowup {
		s.FollowupCount++
		if d.NextQuestionID != "" {
			s.AskedQuestions[d.NextQuestionID] = true
		}
		s.Append(models.SpeakerAI, d.NextQuestion)
		slog.Debug("Orchestrator.applyDecision: asking follow-up",
			"sessionID", s.SessionID, "followupCount", s.FollowupCount,
			"questionID", d.NextQuestionID, "source", d.Source)
		return models.TurnResult{PromptText: d.NextQuestion, Stage: s.Stage, TriageLevel: s.TriageLevel}
	}

	closing := o.policy.ClosingScript(s.TriageLevel)
	s.Append(models.SpeakerAI, closing)
	s.Complete()
	slog.Info("Orchestrator.applyDecision: call complete",
		"sessionID", s.SessionID, "triageLevel", s.TriageLevel, "source", d.Source)
	return models.TurnResult{
		PromptText:      closing,
		ShouldTerminate: true,
		Stage:           s.Stage,
		TriageLevel:     s.TriageLevel,
	}
}
