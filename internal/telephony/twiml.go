package telephony

import (
	"fmt"
	"net/http"

	"github.com/twilio/twilio-go/twiml"

	"github.com/JoyZhuoz/CareLink-sub000/internal/models"
)

// GatherTwiML renders a TwiML document that speaks a prompt and gathers the
// caller's spoken answer, posting the result back to actionURL. The trailing
// redirect re-enters the webhook when the caller says nothing.
func GatherTwiML(prompt string, actionURL string) (string, error) {
	gather := &twiml.VoiceGather{
		Input:         "speech",
		Action:        actionURL,
		Method:        "POST",
		SpeechTimeout: "auto",
		InnerElements: []twiml.Element{
			&twiml.VoiceSay{Message: prompt},
		},
	}
	redirect := &twiml.VoiceRedirect{
		Url:    actionURL,
		Method: "POST",
	}
	return twiml.Voice([]twiml.Element{gather, redirect})
}

// HangupTwiML renders a TwiML document that speaks a closing line and ends
// the call.
func HangupTwiML(closing string) (string, error) {
	return twiml.Voice([]twiml.Element{
		&twiml.VoiceSay{Message: closing},
		&twiml.VoiceHangup{},
	})
}

// ParseVoiceWebhook maps a Twilio voice webhook form post onto a turn
// request: the call SID identifies the session, the speech-recognition
// result is the utterance, and the subject ID rides on the query string set
// when the call was placed.
func ParseVoiceWebhook(r *http.Request) (models.TurnRequest, error) {
	if err := r.ParseForm(); err != nil {
		return models.TurnRequest{}, fmt.Errorf("failed to parse webhook form: %w", err)
	}
	req := models.TurnRequest{
		SessionID: r.FormValue("CallSid"),
		Utterance: r.FormValue("SpeechResult"),
		SubjectID: r.URL.Query().Get("subject_id"),
	}
	if req.SessionID == "" {
		return models.TurnRequest{}, models.ErrEmptySessionID
	}
	return req, nil
}
