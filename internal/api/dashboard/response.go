package dashboard

import (
	"encoding/json"
	"net/http"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/groovebox/internal/app/playback"
)

// ErrorResponse is the body of every non-2xx API reply.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ActionResponse is the body of a successful control request.
type ActionResponse struct {
	Message  string             `json:"message"`
	Snapshot *playback.Snapshot `json:"snapshot,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zlog.Debug().Msgf("dashboard: write response failed: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

// statusOf maps a failure code onto an HTTP status.
func statusOf(code string) int {
	switch code {
	case playback.CodeNotResponsive:
		return http.StatusServiceUnavailable
	case playback.CodeNotPlaying, playback.CodeNotPaused:
		return http.StatusConflict
	case playback.CodeResolutionFailed, playback.CodeStreamResolutionFailed:
		return http.StatusNotFound
	case playback.CodeConnectionFailed, playback.CodeBackendStartFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeFailure reports a driver error with its code and configured message.
func (s *Server) writeFailure(w http.ResponseWriter, err error) {
	f := playback.NewFailure(err)
	status := statusOf(f.Code)
	if _, rejected := f.Rejected(); rejected {
		status = http.StatusUnprocessableEntity
	}
	if status >= http.StatusInternalServerError {
		zlog.Warn().Msgf("dashboard: command failed: code=%s error=%v", f.Code, f.Err)
	}
	writeError(w, status, f.Code, s.cfg.GetMessage(f.MessageCode()))
}
