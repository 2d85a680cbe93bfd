// Package models defines the core data structures for CareLink.
//
// It includes the call session, transcript, and triage decision types shared
// across modules.
package models

import (
	"errors"
	"strings"
	"time"
)

// Stage represents the coarse phase of a call session.
type Stage string

const (
	// StageIdentity is the identity-confirmation phase at the start of a call.
	StageIdentity Stage = "IDENTITY"
	// StageSymptoms is the bounded follow-up / triage phase.
	StageSymptoms Stage = "SYMPTOMS"
	// StageComplete marks a terminal session; no further turns are accepted.
	StageComplete Stage = "COMPLETE"
)

// TriageLevel classifies the severity of a patient's reported condition.
type TriageLevel string

const (
	TriageGreen  TriageLevel = "GREEN"
	TriageYellow TriageLevel = "YELLOW"
	TriageRed    TriageLevel = "RED"
)

// IsValidTriageLevel checks if the given triage level is one of the three known values.
func IsValidTriageLevel(l TriageLevel) bool {
	switch l {
	case TriageGreen, TriageYellow, TriageRed:
		return true
	default:
		return false
	}
}

// ParseTriageLevel normalizes a raw string into a TriageLevel.
// Returns false if the value is not one of the known levels.
func ParseTriageLevel(raw string) (TriageLevel, bool) {
	l := TriageLevel(strings.ToUpper(strings.TrimSpace(raw)))
	if !IsValidTriageLevel(l) {
		return "", false
	}
	return l, true
}

// Speaker identifies who produced a transcript entry.
type Speaker string

const (
	SpeakerAI      Speaker = "AI"
	SpeakerSubject Speaker = "SUBJECT"
)

// Utterance is one entry in a session transcript.
type Utterance struct {
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Conversation bounds. These are hard ceilings the coercion layer and
// orchestrator enforce regardless of oracle output.
const (
	// MaxFollowups bounds the number of clarifying questions asked in one call.
	MaxFollowups = 2
	// MaxIdentityAttempts bounds how often an unclear identity answer is re-asked.
	MaxIdentityAttempts = 2
	// MaxTurns bounds total inbound utterances processed in the SYMPTOMS stage.
	MaxTurns = 6
	// MaxListedComplications truncates complication and symptom lists from the oracle.
	MaxListedComplications = 5
)

// Error variables for better error handling and testability.
var (
	ErrEmptySessionID  = errors.New("session id cannot be empty")
	ErrEmptySubjectID  = errors.New("subject id is required to start a session")
	ErrSessionNotFound = errors.New("session not found")
	ErrPatientNotFound = errors.New("patient not found")
	ErrNoOracle        = errors.New("oracle client not configured")
)

// Session holds the state for one ongoing phone call between creation and termination.
// A session is mutated exclusively by the call orchestrator while its per-session
// lock is held; the transcript is append-only.
type Session struct {
	SessionID string `json:"session_id"`
	SubjectID string `json:"subject_id"`
	Stage     Stage  `json:"stage"`

	Transcript []Utterance `json:"transcript"`

	FollowupCount     int  `json:"followup_count"`
	TurnCount         int  `json:"turn_count"`
	IdentityAttempts  int  `json:"identity_attempts"`
	IdentityConfirmed bool `json:"identity_confirmed"`

	TriageLevel          TriageLevel `json:"triage_level"`
	Rationale            string      `json:"rationale,omitempty"`
	MatchedComplications []string    `json:"matched_complications,omitempty"`
	RecommendedAction    string      `json:"recommended_action,omitempty"`

	// AskedQuestions tracks which clarifying-question identifiers have been
	// used, so the conversation never visibly repeats itself.
	AskedQuestions map[string]bool `json:"asked_questions,omitempty"`

	// ContextCache memoizes external reference context (recovery expectations,
	// prior-call digest) fetched at most once per session.
	ContextCache   string `json:"context_cache,omitempty"`
	ContextFetched bool   `json:"context_fetched"`

	// LastPrompt is the most recent outbound prompt, replayed verbatim when a
	// turn arrives for an already-terminal session.
	LastPrompt string `json:"last_prompt,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Append adds an utterance to the transcript. History is never edited or
// removed, only appended.
func (s *Session) Append(speaker Speaker, text string) {
	s.Transcript = append(s.Transcript, Utterance{Speaker: speaker, Text: text, Timestamp: time.Now()})
}

// LastAIUtterance returns the most recent AI transcript entry, if any.
func (s *Session) LastAIUtterance() (string, bool) {
	for i := len(s.Transcript) - 1; i >= 0; i-- {
		if s.Transcript[i].Speaker == SpeakerAI {
			return s.Transcript[i].Text, true
		}
	}
	return "", false
}

// ApplyTriage assigns a triage level to the session. A RED already committed
// is never downgraded.
func (s *Session) ApplyTriage(level TriageLevel) {
	if s.TriageLevel == TriageRed {
		return
	}
	if IsValidTriageLevel(level) {
		s.TriageLevel = level
	}
}

// Complete marks the session terminal. The completion timestamp is set exactly once.
func (s *Session) Complete() {
	if s.Stage == StageComplete {
		return
	}
	s.Stage = StageComplete
	now := time.Now()
	s.CompletedAt = &now
}

// IsComplete reports whether the session is terminal.
func (s *Session) IsComplete() bool {
	return s.Stage == StageComplete
}

// DecisionSource records which component produced a decision.
type DecisionSource string

const (
	// DecisionSourceFallback means the conservative heuristic produced the decision.
	DecisionSourceFallback DecisionSource = "fallback"
	// DecisionSourceOracle means oracle fields survived coercion.
	DecisionSourceOracle DecisionSource = "oracle"
)

// Decision is the coerced, policy-compliant output of one symptom turn.
type Decision struct {
	AskFollowup bool        `json:"ask_followup"`
	EndCall     bool        `json:"end_call"`
	TriageLevel TriageLevel `json:"triage_level"`

	NextQuestion   string `json:"next_question,omitempty"`
	NextQuestionID string `json:"next_question_id,omitempty"`

	Rationale            string   `json:"rationale,omitempty"`
	MatchedComplications []string `json:"matched_complications,omitempty"`
	ReportedSymptoms     []string `json:"reported_symptoms,omitempty"`
	RecommendedAction    string   `json:"recommended_action,omitempty"`

	Confidence float64        `json:"confidence,omitempty"`
	Source     DecisionSource `json:"source,omitempty"`
}

// TurnRequest is one inbound turn delivered by the telephony gateway.
// Utterance is empty when the caller said nothing (call start or silence).
type TurnRequest struct {
	SessionID string `json:"session_id"`
	SubjectID string `json:"subject_id,omitempty"`
	Utterance string `json:"utterance,omitempty"`
	StageHint string `json:"stage_hint,omitempty"`
}

// Validate performs basic validation on a TurnRequest.
func (r *TurnRequest) Validate() error {
	if strings.TrimSpace(r.SessionID) == "" {
		return ErrEmptySessionID
	}
	return nil
}

// TurnResult is the outbound side of one turn: the next prompt to speak and
// whether the call should terminate.
type TurnResult struct {
	PromptText      string      `json:"prompt_text"`
	ShouldTerminate bool        `json:"should_terminate"`
	Stage           Stage       `json:"stage"`
	TriageLevel     TriageLevel `json:"triage_level"`
}

// CallSummary is emitted to the summary sink when a session completes.
type CallSummary struct {
	ID                   string      `json:"id"`
	SessionID            string      `json:"session_id"`
	SubjectID            string      `json:"subject_id"`
	TriageLevel          TriageLevel `json:"triage_level"`
	Rationale            string      `json:"rationale,omitempty"`
	MatchedComplications []string    `json:"matched_complications,omitempty"`
	RecommendedAction    string      `json:"recommended_action,omitempty"`
	Transcript           []Utterance `json:"transcript"`
	CompletedAt          time.Time   `json:"completed_at"`
}

// Patient is the reference record a check-in call concerns.
type Patient struct {
	SubjectID     string    `json:"subject_id"`
	Name          string    `json:"name,omitempty"`
	PhoneNumber   string    `json:"phone_number"`
	Procedure     string    `json:"procedure,omitempty"`
	SurgeryDate   time.Time `json:"surgery_date,omitempty"`
	RecoveryNotes string    `json:"recovery_notes,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
