package triage

import (
	"context"
	"errors"
	"testing"

	"github.com/JoyZhuoz/CareLink-sub000/internal/models"
	"github.com/google/go-cmp/cmp"
	"github.com/openai/openai-go"
)

// mockGenAIClient returns canned responses and records how often it was
// called.
type mockGenAIClient struct {
	responses []string
	err       error
	calls     int
}

func (m *mockGenAIClient) GenerateWithMessages(_ context.Context, _ []openai.ChatCompletionMessageParamUnion) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	idx := m.calls
	m.calls++
	if idx >= len(m.responses) {
		idx = len(m.responses) - 1
	}
	return m.responses[idx], nil
}

// mockContextProvider records fetches per subject.
type mockContextProvider struct {
	text    string
	err     error
	fetches int
}

func (m *mockContextProvider) PatientContext(_ context.Context, _ string) (string, error) {
	m.fetches++
	if m.err != nil {
		return "", m.err
	}
	return m.text, nil
}

func TestParseOracleReplyWellFormed(t *testing.T) {
	raw := `{"needs_followup": true, "next_question": "When did it start?", "triage_level": "YELLOW", "confidence": 0.8, "matched_complications": ["infection"], "rationale": "possible infection"}`
	reply := ParseOracleReply(raw)
	if reply.Kind != models.OracleReplyOk {
		t.Fatalf("kind = %v, want ok", reply.Kind)
	}
	f := reply.Fields
	if f.NeedsFollowup == nil || !*f.NeedsFollowup {
		t.Error("needs_followup not extracted")
	}
	if f.NextQuestion == nil || *f.NextQuestion != "When did it start?" {
		t.Error("next_question not extracted")
	}
	if f.TriageLevel == nil || *f.TriageLevel != "YELLOW" {
		t.Error("triage_level not extracted")
	}
	if f.Confidence == nil || *f.Confidence != 0.8 {
		t.Error("confidence not extracted")
	}
	if diff := cmp.Diff([]string{"infection"}, f.MatchedComplications); diff != "" {
		t.Errorf("complications mismatch (-want +got):\n%s", diff)
	}
}

func TestParseOracleReplyMarkdownFences(t *testing.T) {
	raw := "```json\n{\"end_call\": true, \"triage_level\": \"GREEN\"}\n```"
	reply := ParseOracleReply(raw)
	if reply.Kind != models.OracleReplyOk {
		t.Fatalf("kind = %v, want ok", reply.Kind)
	}
	if reply.Fields.EndCall == nil || !*reply.Fields.EndCall {
		t.Error("end_call not extracted from fenced JSON")
	}
}

func TestParseOracleReplySurroundingProse(t *testing.T) {
	raw := `Sure! Here is my assessment: {"needs_followup": false, "end_call": true} Hope that helps.`
	reply := ParseOracleReply(raw)
	if reply.Kind != models.OracleReplyOk {
		t.Fatalf("kind = %v, want ok", reply.Kind)
	}
	if reply.Fields.EndCall == nil || !*reply.Fields.EndCall {
		t.Error("end_call not extracted from embedded JSON")
	}
}

func TestParseOracleReplyAliasKeys(t *testing.T) {
	raw := `{"ask_followup": true, "question": "How severe is it?", "severity": "yellow", "complications": ["swelling"], "reasoning": "needs detail", "action": "monitor"}`
	reply := ParseOracleReply(raw)
	if reply.Kind != models.OracleReplyOk {
		t.Fatalf("kind = %v, want ok", reply.Kind)
	}
	f := reply.Fields
	if f.NeedsFollowup == nil || f.NextQuestion == nil || f.TriageLevel == nil ||
		f.Rationale == nil || f.RecommendedAction == nil || f.MatchedComplications == nil {
		t.Errorf("alias keys not recognized: %+v", f)
	}
}

func TestParseOracleReplyWrongTypesDropped(t *testing.T) {
	raw := `{"needs_followup": "yes please", "end_call": true, "confidence": "high", "matched_complications": [1, 2], "next_question": 7}`
	reply := ParseOracleReply(raw)
	if reply.Kind != models.OracleReplyOk {
		t.Fatalf("kind = %v, want ok", reply.Kind)
	}
	f := reply.Fields
	if f.NeedsFollowup != nil {
		t.Error("string needs_followup should be dropped")
	}
	if f.EndCall == nil || !*f.EndCall {
		t.Error("well-typed end_call should survive")
	}
	if f.Confidence != nil {
		t.Error("string confidence should be dropped")
	}
	if f.MatchedComplications != nil {
		t.Error("numeric complication list should be dropped")
	}
	if f.NextQuestion != nil {
		t.Error("numeric next_question should be dropped")
	}
}

func TestParseOracleReplyGarbage(t *testing.T) {
	for _, raw := range []string{"", "I am sorry, I cannot help with that.", "[1,2,3]", "{broken"} {
		reply := ParseOracleReply(raw)
		if reply.Kind != models.OracleReplyMalformed {
			t.Errorf("ParseOracleReply(%q) kind = %v, want malformed", raw, reply.Kind)
		}
	}
}

func TestGatewayQueryFailure(t *testing.T) {
	client := &mockGenAIClient{err: errors.New("connection refused")}
	g := NewGenAIGateway(client, nil)
	s := newSymptomSession()

	reply := g.Query(context.Background(), s, "hello")
	if reply.Kind != models.OracleReplyFailure {
		t.Errorf("kind = %v, want failure", reply.Kind)
	}
}

func TestGatewayNilClient(t *testing.T) {
	g := NewGenAIGateway(nil, nil)
	s := newSymptomSession()

	if reply := g.Query(context.Background(), s, "hello"); reply.Kind != models.OracleReplyFailure {
		t.Errorf("kind = %v, want failure", reply.Kind)
	}
	if v := g.ClassifyIdentity(context.Background(), s, "yes"); v != IdentityUnclear {
		t.Errorf("verdict = %v, want UNCLEAR", v)
	}
}

func TestGatewayContextFetchedOnce(t *testing.T) {
	client := &mockGenAIClient{responses: []string{`{"needs_followup": true, "next_question": "Go on?"}`}}
	provider := &mockContextProvider{text: "Procedure: appendectomy"}
	g := NewGenAIGateway(client, provider)
	s := newSymptomSession()

	g.Query(context.Background(), s, "first answer")
	g.Query(context.Background(), s, "second answer")

	if provider.fetches != 1 {
		t.Errorf("context fetched %d times, want 1", provider.fetches)
	}
	if s.ContextCache != "Procedure: appendectomy" {
		t.Errorf("context cache = %q", s.ContextCache)
	}
}

func TestGatewayContextFetchFailureNotRetried(t *testing.T) {
	client := &mockGenAIClient{responses: []string{`{"needs_followup": true}`}}
	provider := &mockContextProvider{err: errors.New("db down")}
	g := NewGenAIGateway(client, provider)
	s := newSymptomSession()

	g.Query(context.Background(), s, "first answer")
	g.Query(context.Background(), s, "second answer")

	if provider.fetches != 1 {
		t.Errorf("failed context fetch retried: %d fetches", provider.fetches)
	}
	if !s.ContextFetched {
		t.Error("session should remember the fetch attempt")
	}
}

func TestGatewayClassifyIdentity(t *testing.T) {
	cases := []struct {
		response string
		want     IdentityVerdict
	}{
		{"YES", IdentityYes},
		{" yes \n", IdentityYes},
		{"NO", IdentityNo},
		{"UNCLEAR", IdentityUnclear},
		{"I think that was an affirmative answer", IdentityUnclear},
	}
	for _, tc := range cases {
		client := &mockGenAIClient{responses: []string{tc.response}}
		g := NewGenAIGateway(client, nil)
		s := newSymptomSession()
		if got := g.ClassifyIdentity(context.Background(), s, "mumble"); got != tc.want {
			t.Errorf("ClassifyIdentity with oracle response %q = %v, want %v", tc.response, got, tc.want)
		}
	}
}
