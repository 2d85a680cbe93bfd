// Package triage oracle gateway: adapts the GenAI client into the untrusted
// reasoning-oracle contract the symptom sub-protocol consumes.
package triage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/JoyZhuoz/CareLink-sub000/internal/genai"
	"github.com/JoyZhuoz/CareLink-sub000/internal/models"
	"github.com/openai/openai-go"
)

// IdentityVerdict is the outcome of classifying an identity-confirmation answer.
type IdentityVerdict string

const (
	IdentityYes     IdentityVerdict = "YES"
	IdentityNo      IdentityVerdict = "NO"
	IdentityUnclear IdentityVerdict = "UNCLEAR"
)

// OracleGateway sends session context plus the latest utterance to the
// external reasoning oracle. Replies are untrusted; transport errors and
// timeouts surface as a Failure reply, never as an error.
type OracleGateway interface {
	// Query asks the oracle for a triage judgment on the latest utterance.
	Query(ctx context.Context, s *models.Session, utterance string) models.OracleReply

	// ClassifyIdentity asks the oracle to classify an identity answer as
	// YES, NO, or UNCLEAR. Any malformed answer is UNCLEAR.
	ClassifyIdentity(ctx context.Context, s *models.Session, utterance string) IdentityVerdict
}

// ContextProvider resolves external reference context for a subject:
// expected-recovery guidance and a digest of prior sessions. Fetched at most
// once per session and memoized on the session.
type ContextProvider interface {
	PatientContext(ctx context.Context, subjectID string) (string, error)
}

const triageSystemPrompt = `You are a post-surgical telephone triage assistant reviewing one patient answer at a time.
Respond with a single JSON object and nothing else, using these fields:
  "needs_followup": boolean, true if another clarifying question is needed
  "end_call": boolean, true if the call should end now
  "next_question": string, the next question to ask (when needs_followup is true)
  "triage_level": "GREEN", "YELLOW" or "RED"
  "rationale": string, one sentence explaining the assessment
  "matched_complications": array of strings naming suspected complications
  "reported_symptoms": array of strings naming symptoms the patient described
  "recommended_action": string, what the care team should do
  "confidence": number between 0 and 1
Be conservative: when in doubt prefer YELLOW and a follow-up question over a final verdict.`

// GenAIGateway implements OracleGateway over a GenAI client.
type GenAIGateway struct {
	client   genai.ClientInterface
	contexts ContextProvider
}

// NewGenAIGateway creates an oracle gateway. Both the client and the context
// provider may be nil; a nil client makes every query a Failure so the
// fallback heuristic drives the call.
func NewGenAIGateway(client genai.ClientInterface, contexts ContextProvider) *GenAIGateway {
	return &GenAIGateway{client: client, contexts: contexts}
}

// Query sends the session context and latest utterance to the oracle. On the
// first call for a session it also resolves and memoizes the reference
// context so subsequent turns do not refetch it.
func (g *GenAIGateway) Query(ctx context.Context, s *models.Session, utterance string) models.OracleReply {
	if g.client == nil {
		return models.OracleFailure(models.ErrNoOracle)
	}

	g.ensureContext(ctx, s)

	raw, err := g.client.GenerateWithMessages(ctx, g.buildTriageMessages(s))
	if err != nil {
		slog.Warn("GenAIGateway.Query: oracle unavailable", "error", err, "sessionID", s.SessionID)
		return models.OracleFailure(err)
	}
	reply := ParseOracleReply(raw)
	slog.Debug("GenAIGateway.Query: oracle replied", "sessionID", s.SessionID, "kind", reply.Kind)
	return reply
}

// ClassifyIdentity asks the oracle for a one-word identity classification.
func (g *GenAIGateway) ClassifyIdentity(ctx context.Context, s *models.Session, utterance string) IdentityVerdict {
	if g.client == nil {
		return IdentityUnclear
	}
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage("You are verifying a phone caller's identity. The caller was asked whether they are the patient. Classify their answer. Reply with exactly one word: YES, NO, or UNCLEAR."),
		openai.UserMessage(utterance),
	}
	raw, err := g.client.GenerateWithMessages(ctx, messages)
	if err != nil {
		slog.Warn("GenAIGateway.ClassifyIdentity: oracle unavailable", "error", err, "sessionID", s.SessionID)
		return IdentityUnclear
	}
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "YES":
		return IdentityYes
	case "NO":
		return IdentityNo
	default:
		return IdentityUnclear
	}
}

// ensureContext resolves the subject's reference context once per session.
// A failed fetch is logged and not retried; the oracle simply runs without
// the extra context for the rest of the call.
func (g *GenAIGateway) ensureContext(ctx context.Context, s *models.Session) {
	if s.ContextFetched || g.contexts == nil {
		return
	}
	s.ContextFetched = true
	text, err := g.contexts.PatientContext(ctx, s.SubjectID)
	if err != nil {
		slog.Warn("GenAIGateway.ensureContext: reference context fetch failed", "error", err, "subjectID", s.SubjectID)
		return
	}
	s.ContextCache = text
	slog.Debug("GenAIGateway.ensureContext: reference context cached", "subjectID", s.SubjectID, "length", len(text))
}

// buildTriageMessages assembles the oracle conversation: system prompt,
// cached reference context, follow-up budget, and the transcript so far. The
// latest subject utterance is already the final transcript entry.
func (g *GenAIGateway) buildTriageMessages(s *models.Session) []openai.ChatCompletionMessageParamUnion {
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(triageSystemPrompt),
	}
	if s.ContextCache != "" {
		messages = append(messages, openai.SystemMessage("PATIENT CONTEXT:\n"+s.ContextCache))
	}
	messages = append(messages, openai.SystemMessage(fmt.Sprintf(
		"Follow-up questions used: %d of %d. Turns used: %d of %d.",
		s.FollowupCount, models.MaxFollowups, s.TurnCount, models.MaxTurns)))

	for _, u := range s.Transcript {
		switch u.Speaker {
		case models.SpeakerAI:
			messages = append(messages, openai.AssistantMessage(u.Text))
		case models.SpeakerSubject:
			messages = append(messages, openai.UserMessage(u.Text))
		}
	}
	return messages
}

// ParseOracleReply extracts typed decision fields from raw oracle text. The
// reply is untrusted: markdown fences are stripped, non-JSON text yields a
// Malformed reply, and each field is kept only when present with the correct
// type.
func ParseOracleReply(raw string) models.OracleReply {
	obj, ok := decodeLooseJSON(raw)
	if !ok {
		return models.OracleMalformed(raw)
	}

	var f models.PartialDecision
	f.NeedsFollowup = boolField(obj, "needs_followup", "ask_followup", "needs_follow_up")
	f.EndCall = boolField(obj, "end_call", "terminate", "hang_up")
	f.NextQuestion = stringField(obj, "next_question", "question")
	f.TriageLevel = stringField(obj, "triage_level", "severity", "level")
	f.Rationale = stringField(obj, "rationale", "reasoning")
	f.RecommendedAction = stringField(obj, "recommended_action", "action")
	f.Confidence = floatField(obj, "confidence")
	f.MatchedComplications = stringListField(obj, "matched_complications", "complications")
	f.ReportedSymptoms = stringListField(obj, "reported_symptoms", "symptoms")

	return models.OracleReply{Kind: models.OracleReplyOk, Fields: f, Raw: raw}
}

// decodeLooseJSON unmarshals raw text into a JSON object, tolerating
// surrounding prose and markdown code fences.
func decodeLooseJSON(raw string) (map[string]interface{}, bool) {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(text), &obj); err == nil {
		return obj, true
	}

	// Tolerate prose around the object: try the outermost brace span.
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(text[start:end+1]), &obj); err == nil {
			return obj, true
		}
	}
	return nil, false
}

func boolField(obj map[string]interface{}, keys ...string) *bool {
	for _, k := range keys {
		if v, ok := obj[k]; ok {
			if b, ok := v.(bool); ok {
				return &b
			}
		}
	}
	return nil
}

func stringField(obj map[string]interface{}, keys ...string) *string {
	for _, k := range keys {
		if v, ok := obj[k]; ok {
			if s, ok := v.(string); ok {
				return &s
			}
		}
	}
	return nil
}

func floatField(obj map[string]interface{}, keys ...string) *float64 {
	for _, k := range keys {
		if v, ok := obj[k]; ok {
			if f, ok := v.(float64); ok {
				return &f
			}
		}
	}
	return nil
}

// stringListField keeps only genuine string arrays; non-list values and
// non-string elements are discarded.
func stringListField(obj map[string]interface{}, keys ...string) []string {
	for _, k := range keys {
		v, ok := obj[k]
		if !ok {
			continue
		}
		items, ok := v.([]interface{})
		if !ok {
			continue
		}
		var out []string
		for _, item := range items {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, s)
			}
		}
		if out != nil {
			return out
		}
	}
	return nil
}
