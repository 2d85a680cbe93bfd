package triage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/JoyZhuoz/CareLink-sub000/internal/models"
	"github.com/JoyZhuoz/CareLink-sub000/internal/safety"
	"github.com/JoyZhuoz/CareLink-sub000/internal/session"
	"github.com/google/uuid"
)

// SummarySink receives the call summary once a session reaches its terminal
// stage. Delivery failures are logged and do not fail the turn.
type SummarySink interface {
	AddCallSummary(ctx context.Context, summary models.CallSummary) error
}

// Orchestrator drives a triage call turn by turn: session lookup, stage
// dispatch, and summary emission on completion.
type Orchestrator struct {
	sessions  session.Store
	gateway   OracleGateway
	coercer   *Coercer
	heuristic *Heuristic
	policy    *safety.Policy
	sink      SummarySink
}

// NewOrchestrator wires the triage components together. The sink may be nil
// when no summary persistence is configured.
func NewOrchestrator(sessions session.Store, gateway OracleGateway, policy *safety.Policy, sink SummarySink) *Orchestrator {
	engine := safety.NewEngine(policy.HardStopPhrases)
	heuristic := NewHeuristic(engine, policy)
	return &Orchestrator{
		sessions:  sessions,
		gateway:   gateway,
		coercer:   NewCoercer(heuristic, engine, policy),
		heuristic: heuristic,
		policy:    policy,
		sink:      sink,
	}
}

// HandleTurn processes one conversational turn. The first turn of a session
// must carry a subject ID; later turns are matched by session ID alone. A
// turn against an unknown session without a subject ID is a hard error.
func (o *Orchestrator) HandleTurn(ctx context.Context, req models.TurnRequest) (models.TurnResult, error) {
	slog.Debug("Orchestrator.HandleTurn: turn received", "sessionID", req.SessionID, "subjectID", req.SubjectID)
	if err := req.Validate(); err != nil {
		return models.TurnResult{}, err
	}

	var handle *session.Handle
	if req.SubjectID != "" {
		var created bool
		handle, created = o.sessions.GetOrCreate(req.SessionID, session.Seed{SubjectID: req.SubjectID})
		if created {
			slog.Info("Orchestrator.HandleTurn: session created", "sessionID", req.SessionID, "subjectID", req.SubjectID)
		}
	} else {
		var err error
		handle, err = o.sessions.Get(req.SessionID)
		if err != nil {
			return models.TurnResult{}, fmt.Errorf("failed to resolve session %s: %w", req.SessionID, err)
		}
	}

	handle.Lock()
	defer handle.Unlock()
	s := handle.Session

	if s.IsComplete() {
		// Replay the closing line; a finished call never reopens.
		return models.TurnResult{
			PromptText:      s.LastPrompt,
			ShouldTerminate: true,
			Stage:           s.Stage,
			TriageLevel:     s.TriageLevel,
		}, nil
	}

	if req.Utterance != "" {
		s.Append(models.SpeakerSubject, req.Utterance)
	}

	var result models.TurnResult
	switch s.Stage {
	case models.StageIdentity:
		result = o.handleIdentityTurn(ctx, s, req.Utterance)
	case models.StageSymptoms:
		result = o.handleSymptomTurn(ctx, s, req.Utterance)
	default:
		return models.TurnResult{}, fmt.Errorf("session %s is in unexpected stage %s", s.SessionID, s.Stage)
	}

	s.LastPrompt = result.PromptText
	if s.IsComplete() {
		o.emitSummary(ctx, s)
	}
	return result, nil
}

// emitSummary builds the durable record of a finished call and hands it to
// the sink. Failures are logged; the call outcome stands regardless.
func (o *Orchestrator) emitSummary(ctx context.Context, s *models.Session) {
	if o.sink == nil {
		return
	}
	completedAt := time.Now()
	if s.CompletedAt != nil {
		completedAt = *s.CompletedAt
	}
	summary := models.CallSummary{
		ID:                   uuid.NewString(),
		SessionID:            s.SessionID,
		SubjectID:            s.SubjectID,
		TriageLevel:          s.TriageLevel,
		Rationale:            s.Rationale,
		MatchedComplications: s.MatchedComplications,
		RecommendedAction:    s.RecommendedAction,
		Transcript:           s.Transcript,
		CompletedAt:          completedAt,
	}
	if err := o.sink.AddCallSummary(ctx, summary); err != nil {
		slog.Error("Orchestrator.emitSummary: failed to persist call summary",
			"error", err, "sessionID", s.SessionID)
		return
	}
	slog.Info("Orchestrator.emitSummary: call summary recorded",
		"sessionID", s.SessionID, "triageLevel", s.TriageLevel)
}
