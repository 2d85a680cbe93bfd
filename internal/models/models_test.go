package models

import (
	"testing"
	"time"
)

func TestParseTriageLevel(t *testing.T) {
	cases := []struct {
		raw   string
		want  TriageLevel
		valid bool
	}{
		{"RED", TriageRed, true},
		{"red", TriageRed, true},
		{"  Yellow ", TriageYellow, true},
		{"GREEN", TriageGreen, true},
		{"URGENT", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := ParseTriageLevel(tc.raw)
		if ok != tc.valid {
			t.Errorf("ParseTriageLevel(%q) valid = %v, want %v", tc.raw, ok, tc.valid)
			continue
		}
		if ok && got != tc.want {
			t.Errorf("ParseTriageLevel(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}

func TestApplyTriageNeverDowngradesRed(t *testing.T) {
	s := &Session{TriageLevel: TriageGreen}
	s.ApplyTriage(TriageYellow)
	if s.TriageLevel != TriageYellow {
		t.Fatalf("expected YELLOW, got %v", s.TriageLevel)
	}
	s.ApplyTriage(TriageRed)
	if s.TriageLevel != TriageRed {
		t.Fatalf("expected RED, got %v", s.TriageLevel)
	}
	s.ApplyTriage(TriageGreen)
	if s.TriageLevel != TriageRed {
		t.Errorf("RED was downgraded to %v", s.TriageLevel)
	}
	s.ApplyTriage(TriageLevel("BOGUS"))
	if s.TriageLevel != TriageRed {
		t.Errorf("invalid level changed triage to %v", s.TriageLevel)
	}
}

func TestSessionCompleteIsIdempotent(t *testing.T) {
	s := &Session{Stage: StageSymptoms}
	s.Complete()
	if !s.IsComplete() {
		t.Fatal("session should be complete")
	}
	first := s.CompletedAt
	if first == nil {
		t.Fatal("completion timestamp not set")
	}
	time.Sleep(5 * time.Millisecond)
	s.Complete()
	if s.CompletedAt != first {
		t.Error("completion timestamp changed on second Complete")
	}
}

func TestSessionTranscriptAppend(t *testing.T) {
	s := &Session{}
	s.Append(SpeakerAI, "how are you?")
	s.Append(SpeakerSubject, "fine")
	s.Append(SpeakerAI, "good to hear")

	if len(s.Transcript) != 3 {
		t.Fatalf("expected 3 transcript entries, got %d", len(s.Transcript))
	}
	last, ok := s.LastAIUtterance()
	if !ok || last != "good to hear" {
		t.Errorf("LastAIUtterance = %q, %v", last, ok)
	}
}

func TestLastAIUtteranceEmpty(t *testing.T) {
	s := &Session{}
	s.Append(SpeakerSubject, "hello?")
	if _, ok := s.LastAIUtterance(); ok {
		t.Error("expected no AI utterance")
	}
}

func TestTurnRequestValidate(t *testing.T) {
	empty := TurnRequest{}
	if err := empty.Validate(); err != ErrEmptySessionID {
		t.Errorf("expected ErrEmptySessionID, got %v", err)
	}
	valid := TurnRequest{SessionID: "c1", Utterance: "hi"}
	if err := valid.Validate(); err != nil {
		t.Errorf("expected valid request, got %v", err)
	}
}

func TestPartialDecisionHasControlField(t *testing.T) {
	var f PartialDecision
	if f.HasControlField() {
		t.Error("empty fields should have no control field")
	}
	level := "RED"
	f.TriageLevel = &level
	if f.HasControlField() {
		t.Error("triage level alone is not a control field")
	}
	end := true
	f.EndCall = &end
	if !f.HasControlField() {
		t.Error("end_call is a control field")
	}
}
