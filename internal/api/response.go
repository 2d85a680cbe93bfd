// Package api provides HTTP response utilities for CareLink.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/JoyZhuoz/CareLink-sub000/internal/models"
)

// Pre-marshaled fallback responses to avoid runtime JSON encoding failures
var (
	fallbackErrorResponse []byte
)

// init validates that our fallback responses can be marshaled
func init() {
	var err error
	fallbackErrorResponse, err = json.Marshal(models.Error("Internal server error"))
	if err != nil {
		panic(fmt.Sprintf("Failed to marshal fallback error response at startup: %v", err))
	}
}

// writeJSONResponse writes a JSON response to the http.ResponseWriter with the given status code.
func writeJSONResponse(w http.ResponseWriter, statusCode int, response interface{}) {
	// Marshal the response to JSON first to catch encoding errors before writing headers
	jsonData, err := json.Marshal(response)
	if err != nil {
		slog.Error("Server.writeJSONResponse: failed to marshal JSON response", "error", err)
		jsonData = fallbackErrorResponse
		statusCode = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, writeErr := w.Write(jsonData); writeErr != nil {
		slog.Error("Server.writeJSONResponse: failed to write JSON response", "error", writeErr)
	}
}

// Pre-rendered fallback document so a TwiML render failure still ends the
// call cleanly instead of leaving dead air.
const fallbackTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response><Say>We are sorry, something went wrong. Goodbye.</Say><Hangup/></Response>`

// writeTwiML writes a TwiML document response. A render error from the
// builder is substituted with the fallback hangup document.
func writeTwiML(w http.ResponseWriter, doc string, renderErr error) {
	if renderErr != nil {
		slog.Error("Server.writeTwiML: failed to render TwiML", "error", renderErr)
		doc = fallbackTwiML
	}
	w.Header().Set("Content-Type", "application/xml")
	if _, err := w.Write([]byte(doc)); err != nil {
		slog.Error("Server.writeTwiML: failed to write TwiML response", "error", err)
	}
}
