// Package models defines API response envelope structures for CareLink.
package models

// APIResponse is the standard JSON envelope returned by all HTTP endpoints.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success builds a success response with a result payload.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: "ok", Result: result}
}

// SuccessWithMessage builds a success response with a message and optional payload.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: "ok", Message: message, Result: result}
}

// Error builds an error response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: "error", Message: message}
}

// CheckinRequest starts a check-in call for a subject. A cron expression
// makes the check-in recurring instead of immediate.
type CheckinRequest struct {
	SubjectID string `json:"subject_id"`
	Cron      string `json:"cron,omitempty"`
}

// Validate checks that the check-in request identifies a subject.
func (c CheckinRequest) Validate() error {
	if c.SubjectID == "" {
		return ErrEmptySubjectID
	}
	return nil
}
