// Package api provides HTTP handlers for CareLink endpoints.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/JoyZhuoz/CareLink-sub000/internal/models"
	"github.com/JoyZhuoz/CareLink-sub000/internal/telephony"
)

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("ok", nil))
}

// turnHandler runs one conversational turn from a JSON request. This is the
// transport-agnostic twin of the Twilio voice webhook.
func (s *Server) turnHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.turnHandler: processing turn request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.turnHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req models.TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.turnHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	result, err := s.orchestrator.HandleTurn(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrSessionNotFound):
			writeJSONResponse(w, http.StatusNotFound, models.Error("Session not found"))
		case errors.Is(err, models.ErrEmptySessionID), errors.Is(err, models.ErrEmptySubjectID):
			writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		default:
			slog.Error("Server.turnHandler: turn failed", "error", err, "sessionID", req.SessionID)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to process turn"))
		}
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(result))
}

// voiceWebhookHandler drives a call from Twilio voice webhooks. Twilio posts
// the call SID and the speech-recognition result of the caller's last
// answer; the response is TwiML that either gathers the next answer or ends
// the call.
func (s *Server) voiceWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.voiceWebhookHandler: processing voice webhook", "method", r.Method)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	req, err := telephony.ParseVoiceWebhook(r)
	if err != nil {
		slog.Warn("Server.voiceWebhookHandler: bad webhook payload", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	result, err := s.orchestrator.HandleTurn(r.Context(), req)
	if err != nil {
		slog.Error("Server.voiceWebhookHandler: turn failed", "error", err, "sessionID", req.SessionID)
		// Close the call gracefully rather than leaving dead air.
		doc, renderErr := telephony.HangupTwiML("We are sorry, something went wrong. Goodbye.")
		writeTwiML(w, doc, renderErr)
		return
	}

	if result.ShouldTerminate {
		doc, renderErr := telephony.HangupTwiML(result.PromptText)
		writeTwiML(w, doc, renderErr)
		return
	}
	doc, renderErr := telephony.GatherTwiML(result.PromptText, s.webhookURL(req.SubjectID))
	writeTwiML(w, doc, renderErr)
}

// patientsHandler upserts a patient record on POST and lists records on GET.
func (s *Server) patientsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	switch r.Method {
	case http.MethodPost:
		var p models.Patient
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			slog.Warn("Server.patientsHandler: failed to decode JSON", "error", err)
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
			return
		}
		if p.SubjectID == "" || p.PhoneNumber == "" {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("subject_id and phone_number are required"))
			return
		}
		if err := s.st.UpsertPatient(r.Context(), p); err != nil {
			slog.Error("Server.patientsHandler: upsert failed", "error", err, "subjectID", p.SubjectID)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to save patient"))
			return
		}
		slog.Info("Server.patientsHandler: patient saved", "subjectID", p.SubjectID)
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Patient saved", nil))

	case http.MethodGet:
		patients, err := s.st.ListPatients(r.Context())
		if err != nil {
			slog.Error("Server.patientsHandler: list failed", "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list patients"))
			return
		}
		writeJSONResponse(w, http.StatusOK, models.Success(patients))

	default:
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// checkinsHandler starts a check-in call for a subject, either immediately
// or on a recurring cron schedule.
func (s *Server) checkinsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.checkinsHandler: processing check-in request", "method", r.Method)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req models.CheckinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.checkinsHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	if s.placer == nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("Outbound calling is not configured"))
		return
	}

	patient, err := s.st.GetPatient(r.Context(), req.SubjectID)
	if err != nil {
		if errors.Is(err, models.ErrPatientNotFound) {
			writeJSONResponse(w, http.StatusNotFound, models.Error("Patient not found"))
			return
		}
		slog.Error("Server.checkinsHandler: patient lookup failed", "error", err, "subjectID", req.SubjectID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to look up patient"))
		return
	}

	cronExpr := req.Cron
	if cronExpr != "" {
		if s.sched == nil {
			writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("Scheduling is not configured"))
			return
		}
		subjectID := patient.SubjectID
		phone := patient.PhoneNumber
		err := s.sched.AddJob(cronExpr, func() {
			if _, err := s.placer.PlaceCall(context.Background(), phone, s.webhookURL(subjectID)); err != nil {
				slog.Error("Server.checkinsHandler: scheduled call failed", "error", err, "subjectID", subjectID)
			}
		})
		if err != nil {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid cron expression"))
			return
		}
		slog.Info("Server.checkinsHandler: recurring check-in scheduled", "subjectID", subjectID, "cron", cronExpr)
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Check-in scheduled", nil))
		return
	}

	sid, err := s.placer.PlaceCall(r.Context(), patient.PhoneNumber, s.webhookURL(patient.SubjectID))
	if err != nil {
		slog.Error("Server.checkinsHandler: call placement failed", "error", err, "subjectID", patient.SubjectID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to place call"))
		return
	}
	slog.Info("Server.checkinsHandler: check-in call placed", "subjectID", patient.SubjectID, "callSID", sid)
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"call_sid": sid}))
}

// summariesHandler lists completed call summaries, optionally filtered by
// subject.
func (s *Server) summariesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	summaries, err := s.st.ListCallSummaries(r.Context(), r.URL.Query().Get("subject_id"))
	if err != nil {
		slog.Error("Server.summariesHandler: list failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list call summaries"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(summaries))
}
