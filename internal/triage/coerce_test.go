package triage

import (
	"errors"
	"testing"

	"github.com/JoyZhuoz/CareLink-sub000/internal/models"
	"github.com/JoyZhuoz/CareLink-sub000/internal/safety"
	"github.com/google/go-cmp/cmp"
)

func newTestCoercer() (*Coercer, *safety.Policy) {
	policy := safety.DefaultPolicy()
	engine := safety.NewEngine(policy.HardStopPhrases)
	heuristic := NewHeuristic(engine, policy)
	return NewCoercer(heuristic, engine, policy), policy
}

func okReply(f models.PartialDecision) models.OracleReply {
	return models.OracleReply{Kind: models.OracleReplyOk, Fields: f}
}

func boolPtr(b bool) *bool        { return &b }
func strPtr(s string) *string     { return &s }
func floatPtr(f float64) *float64 { return &f }

func TestCoerceFailureYieldsFallback(t *testing.T) {
	c, _ := newTestCoercer()
	s := newSymptomSession()

	d := c.Coerce(models.OracleFailure(errors.New("timeout")), s, "not feeling great")
	if d.Source != models.DecisionSourceFallback {
		t.Errorf("source = %v, want fallback", d.Source)
	}
	if !d.AskFollowup {
		t.Errorf("fallback on turn one should probe: %+v", d)
	}
}

func TestCoerceMalformedYieldsFallback(t *testing.T) {
	c, _ := newTestCoercer()
	s := newSymptomSession()

	d := c.Coerce(models.OracleMalformed("sorry, I can't do that"), s, "my leg hurts a bit")
	if d.Source != models.DecisionSourceFallback {
		t.Errorf("source = %v, want fallback", d.Source)
	}
}

func TestCoerceMissingAllControlFieldsYieldsFallback(t *testing.T) {
	c, _ := newTestCoercer()
	s := newSymptomSession()

	// Valid JSON, but nothing that says what to do next.
	reply := okReply(models.PartialDecision{
		TriageLevel: strPtr("GREEN"),
		Rationale:   strPtr("sounds fine"),
	})
	d := c.Coerce(reply, s, "doing alright I think")
	if d.Source != models.DecisionSourceFallback {
		t.Errorf("source = %v, want full fallback when no control field survives", d.Source)
	}
}

func TestCoerceSalvagesFieldsAroundMissingOnes(t *testing.T) {
	c, _ := newTestCoercer()
	s := newSymptomSession()

	reply := okReply(models.PartialDecision{
		NeedsFollowup: boolPtr(true),
		NextQuestion:  strPtr("Could you tell me more about the swelling?"),
		// triage level and rationale absent: fallback values fill in
	})
	d := c.Coerce(reply, s, "there is some swelling")
	if d.Source != models.DecisionSourceOracle {
		t.Fatalf("source = %v, want oracle", d.Source)
	}
	if d.NextQuestion != "Could you tell me more about the swelling?" {
		t.Errorf("question = %q", d.NextQuestion)
	}
	if d.TriageLevel != models.TriageYellow {
		t.Errorf("missing triage level should inherit fallback YELLOW, got %v", d.TriageLevel)
	}
}

func TestCoerceHardStopOverridesOracle(t *testing.T) {
	c, _ := newTestCoercer()
	s := newSymptomSession()

	// Oracle says everything is fine; the utterance contains a hard stop.
	reply := okReply(models.PartialDecision{
		NeedsFollowup: boolPtr(false),
		EndCall:       boolPtr(true),
		TriageLevel:   strPtr("GREEN"),
	})
	d := c.Coerce(reply, s, "just some chest pain, probably nothing")
	if d.TriageLevel != models.TriageRed {
		t.Fatalf("triage = %v, want RED", d.TriageLevel)
	}
	if !d.EndCall || d.AskFollowup {
		t.Errorf("hard stop must terminate: %+v", d)
	}
	found := false
	for _, cpl := range d.MatchedComplications {
		if cpl == "chest pain" {
			found = true
		}
	}
	if !found {
		t.Errorf("matched phrase missing from complications: %v", d.MatchedComplications)
	}
}

func TestCoerceFollowupCeiling(t *testing.T) {
	c, _ := newTestCoercer()
	s := newSymptomSession()
	s.FollowupCount = models.MaxFollowups

	// Adversarial oracle that always wants another question.
	reply := okReply(models.PartialDecision{
		NeedsFollowup: boolPtr(true),
		NextQuestion:  strPtr("And one more thing?"),
	})
	d := c.Coerce(reply, s, "like I said, it's hard to describe")
	if d.AskFollowup {
		t.Fatalf("follow-up ceiling violated: %+v", d)
	}
	if !d.EndCall {
		t.Error("decision left the call hanging")
	}
}

func TestCoerceRedTerminatesSameTurn(t *testing.T) {
	c, _ := newTestCoercer()
	s := newSymptomSession()
	s.FollowupCount = 1

	reply := okReply(models.PartialDecision{
		NeedsFollowup: boolPtr(true),
		NextQuestion:  strPtr("Can you describe the pain?"),
		TriageLevel:   strPtr("RED"),
	})
	d := c.Coerce(reply, s, "the incision site looks infected and I feel awful")
	if d.AskFollowup || !d.EndCall {
		t.Fatalf("RED must terminate in the same turn: %+v", d)
	}
	if d.TriageLevel != models.TriageRed {
		t.Errorf("triage = %v, want RED", d.TriageLevel)
	}
}

func TestCoerceFirstTurnNeverTerminatesWithoutHardStop(t *testing.T) {
	c, _ := newTestCoercer()

	cases := []struct {
		name  string
		level string
	}{
		{"oracle ends GREEN", "GREEN"},
		{"oracle ends YELLOW", "YELLOW"},
		{"oracle ends unconfirmed RED", "RED"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newSymptomSession()
			reply := okReply(models.PartialDecision{
				EndCall:     boolPtr(true),
				TriageLevel: strPtr(tc.level),
			})
			d := c.Coerce(reply, s, "fine")
			if d.EndCall || !d.AskFollowup {
				t.Fatalf("first turn terminated without a confirmed hard stop: %+v", d)
			}
			if d.NextQuestion == "" {
				t.Error("override must supply a question")
			}
			if d.TriageLevel == models.TriageRed {
				t.Error("unconfirmed RED should be downgraded while probing")
			}
		})
	}
}

func TestCoerceFirstTurnTerminatesOnConfirmedHardStop(t *testing.T) {
	c, _ := newTestCoercer()
	s := newSymptomSession()

	reply := okReply(models.PartialDecision{
		EndCall:     boolPtr(true),
		TriageLevel: strPtr("RED"),
	})
	d := c.Coerce(reply, s, "I can't breathe")
	if !d.EndCall {
		t.Fatalf("confirmed hard stop on first turn must terminate: %+v", d)
	}
	if d.TriageLevel != models.TriageRed {
		t.Errorf("triage = %v, want RED", d.TriageLevel)
	}
}

func TestCoerceEmptyQuestionSubstituted(t *testing.T) {
	c, policy := newTestCoercer()
	s := newSymptomSession()

	reply := okReply(models.PartialDecision{
		NeedsFollowup: boolPtr(true),
		NextQuestion:  strPtr("   "),
	})
	d := c.Coerce(reply, s, "it aches a little")
	if !d.AskFollowup {
		t.Fatalf("expected follow-up: %+v", d)
	}
	if d.NextQuestion != policy.Questions[0].Text {
		t.Errorf("question = %q, want fallback %q", d.NextQuestion, policy.Questions[0].Text)
	}
	if d.NextQuestionID != policy.Questions[0].ID {
		t.Errorf("question id = %q, want %q", d.NextQuestionID, policy.Questions[0].ID)
	}
}

func TestCoerceNeverRepeatsLastQuestion(t *testing.T) {
	c, policy := newTestCoercer()
	s := newSymptomSession()
	s.FollowupCount = 1
	s.Append(models.SpeakerAI, policy.Questions[0].Text)
	s.AskedQuestions[policy.Questions[0].ID] = true

	reply := okReply(models.PartialDecision{
		NeedsFollowup: boolPtr(true),
		NextQuestion:  strPtr(policy.Questions[0].Text),
	})
	d := c.Coerce(reply, s, "I already told you when it started")
	if !d.AskFollowup {
		t.Fatalf("expected follow-up: %+v", d)
	}
	if samePrefix(d.NextQuestion, policy.Questions[0].Text) {
		t.Errorf("repeated the previous question: %q", d.NextQuestion)
	}
}

func TestCoerceClampsConfidenceAndTruncatesLists(t *testing.T) {
	c, _ := newTestCoercer()
	s := newSymptomSession()

	long := []string{"a", "b", "c", "d", "e", "f", "g"}
	reply := okReply(models.PartialDecision{
		NeedsFollowup:        boolPtr(true),
		NextQuestion:         strPtr("How is the incision looking?"),
		Confidence:           floatPtr(3.5),
		MatchedComplications: long,
		ReportedSymptoms:     long,
	})
	d := c.Coerce(reply, s, "there is some redness around the incision")
	if d.Confidence != 1 {
		t.Errorf("confidence = %v, want clamped to 1", d.Confidence)
	}
	if len(d.MatchedComplications) != models.MaxListedComplications {
		t.Errorf("complications length = %d, want %d", len(d.MatchedComplications), models.MaxListedComplications)
	}
	if diff := cmp.Diff(long[:models.MaxListedComplications], d.ReportedSymptoms); diff != "" {
		t.Errorf("reported symptoms mismatch (-want +got):\n%s", diff)
	}
}

func TestCoerceInvalidTriageLevelIgnored(t *testing.T) {
	c, _ := newTestCoercer()
	s := newSymptomSession()

	reply := okReply(models.PartialDecision{
		NeedsFollowup: boolPtr(true),
		NextQuestion:  strPtr("Anything else bothering you?"),
		TriageLevel:   strPtr("PURPLE"),
	})
	d := c.Coerce(reply, s, "mostly tired")
	if d.TriageLevel != models.TriageYellow {
		t.Errorf("invalid level should keep fallback YELLOW, got %v", d.TriageLevel)
	}
}

func TestCoerceDerivesRecommendedAction(t *testing.T) {
	c, policy := newTestCoercer()
	s := newSymptomSession()
	s.FollowupCount = 1

	reply := okReply(models.PartialDecision{
		NeedsFollowup: boolPtr(false),
		EndCall:       boolPtr(true),
		TriageLevel:   strPtr("GREEN"),
	})
	d := c.Coerce(reply, s, "honestly everything feels normal")
	if d.RecommendedAction != policy.RecommendedAction(models.TriageGreen) {
		t.Errorf("action = %q, want level default", d.RecommendedAction)
	}
}
