package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"iptv-player/work/client"
	"iptv-player/work/logger"
)

// Envelope is the JSON body of every API response.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// MissingParameterError reports a required query or body parameter that was
// absent or blank.
type MissingParameterError struct {
	Name string
}

func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("missing required parameter: %s", e.Name)
}

// RequireQuery returns the named query parameter or a *MissingParameterError.
func RequireQuery(r *http.Request, name string) (string, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return "", &MissingParameterError{Name: name}
	}
	return v, nil
}

// WriteJSON writes data in a success envelope.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	writeEnvelope(w, status, Envelope{Success: true, Data: data})
}

// WriteError writes err in a failure envelope. The status comes from
// StatusFor unless status is non-zero.
func WriteError(w http.ResponseWriter, status int, err error) {
	if status == 0 {
		status = StatusFor(err)
	}
	writeEnvelope(w, status, Envelope{Success: false, Error: Message(err)})
}

func writeEnvelope(w http.ResponseWriter, status int, env Envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		logger.Debug("{handlers/respond - writeEnvelope} encode failed: %v", err)
	}
}

// StatusFor maps an error to the HTTP status returned to the client. Upstream
// errors mirror the upstream status when it is an error status; everything
// else without a better match is a 500.
func StatusFor(err error) int {
	var missing *MissingParameterError
	if errors.As(err, &missing) {
		return http.StatusBadRequest
	}

	var upstream *client.UpstreamFetchError
	if errors.As(err, &upstream) {
		if upstream.StatusCode >= 400 {
			return upstream.StatusCode
		}
		return http.StatusInternalServerError
	}

	return http.StatusInternalServerError
}

// Message is the client-facing text for err.
func Message(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
