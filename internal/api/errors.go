package api

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/narralabs/narra-core/internal/synth"
)

type errorResponse struct {
	RequestID string    `json:"request_id"`
	ErrorCode string    `json:"error_code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	Timestamp time.Time `json:"timestamp"`
}

func statusFor(code synth.Code) int {
	switch code {
	case synth.CodeInvalidInput:
		return http.StatusBadRequest
	case synth.CodeVoiceNotFound:
		return http.StatusNotFound
	case synth.CodeAuth:
		return http.StatusUnauthorized
	case synth.CodeForbidden:
		return http.StatusForbidden
	case synth.CodeRateLimited:
		return http.StatusTooManyRequests
	case synth.CodeUpstream, synth.CodeTimeout:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as the wire error shape, mapping its
// classification to a status code. Unclassified errors become 500s.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	serr, ok := synth.AsError(err)
	if !ok {
		serr = &synth.Error{Code: synth.CodeInternal, Message: "internal error"}
	}
	if serr.Code == synth.CodeRateLimited && serr.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(serr.RetryAfter.Seconds()))))
	}
	writeJSON(w, statusFor(serr.Code), errorResponse{
		RequestID: RequestIDFrom(r.Context()),
		ErrorCode: string(serr.Code),
		Message:   serr.Message,
		Retryable: serr.Retryable,
		Timestamp: time.Now().UTC(),
	})
}

func writeErrorCode(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		RequestID: RequestIDFrom(r.Context()),
		ErrorCode: code,
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
