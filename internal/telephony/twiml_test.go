package telephony

import (
	"context"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/JoyZhuoz/CareLink-sub000/internal/models"
)

func TestGatherTwiML(t *testing.T) {
	doc, err := GatherTwiML("How are you feeling today?", "https://example.com/webhooks/twilio/voice?subject_id=p1")
	if err != nil {
		t.Fatalf("GatherTwiML failed: %v", err)
	}
	for _, want := range []string{
		"<Gather",
		`input="speech"`,
		`method="POST"`,
		`speechTimeout="auto"`,
		"How are you feeling today?",
		"subject_id=p1",
		"<Redirect",
	} {
		if !strings.Contains(doc, want) {
			t.Errorf("document missing %q:\n%s", want, doc)
		}
	}
}

func TestGatherTwiMLEscapesContent(t *testing.T) {
	doc, err := GatherTwiML(`Is it better, worse, or "about the same" <today>?`, "https://example.com/cb?a=1&b=2")
	if err != nil {
		t.Fatalf("GatherTwiML failed: %v", err)
	}
	if strings.Contains(doc, "<today>") {
		t.Error("prompt text not escaped")
	}
	if !strings.Contains(doc, "&amp;") {
		t.Error("action URL ampersand not escaped")
	}
}

func TestHangupTwiML(t *testing.T) {
	doc, err := HangupTwiML("Goodbye.")
	if err != nil {
		t.Fatalf("HangupTwiML failed: %v", err)
	}
	if !strings.Contains(doc, "Goodbye.") || !strings.Contains(doc, "<Hangup") {
		t.Errorf("unexpected hangup document:\n%s", doc)
	}
	if strings.Contains(doc, "<Gather") {
		t.Error("hangup document must not gather")
	}
}

func TestParseVoiceWebhook(t *testing.T) {
	form := url.Values{}
	form.Set("CallSid", "CA123")
	form.Set("SpeechResult", "yes this is me")
	r := httptest.NewRequest("POST", "/webhooks/twilio/voice?subject_id=patient-1", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	req, err := ParseVoiceWebhook(r)
	if err != nil {
		t.Fatalf("ParseVoiceWebhook failed: %v", err)
	}
	if req.SessionID != "CA123" || req.Utterance != "yes this is me" || req.SubjectID != "patient-1" {
		t.Errorf("unexpected request: %+v", req)
	}
}

func TestParseVoiceWebhookMissingCallSid(t *testing.T) {
	r := httptest.NewRequest("POST", "/webhooks/twilio/voice", strings.NewReader(""))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if _, err := ParseVoiceWebhook(r); err != models.ErrEmptySessionID {
		t.Errorf("expected ErrEmptySessionID, got %v", err)
	}
}

func TestMockClientRecordsCalls(t *testing.T) {
	mock := &MockClient{}
	sid, err := mock.PlaceCall(context.Background(), "+15551230001", "https://example.com/cb")
	if err != nil {
		t.Fatalf("PlaceCall failed: %v", err)
	}
	if sid == "" {
		t.Error("expected a synthetic SID")
	}
	if len(mock.PlacedCalls) != 1 || mock.PlacedCalls[0].To != "+15551230001" {
		t.Errorf("call not recorded: %+v", mock.PlacedCalls)
	}
}
