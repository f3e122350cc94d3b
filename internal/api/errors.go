package api

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"mime"
	"net/http"
	"strconv"
	"time"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusBadRequest, msg)
}

func unauthorized(w http.ResponseWriter) {
	writeError(w, http.StatusUnauthorized, "unauthorized")
}

func notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}

func internalServerError(w http.ResponseWriter) {
	writeError(w, http.StatusInternalServerError, "internal server error")
}

// rateLimited conveys the retry-after hint for the category that rejected the
// request; the limiter itself never retries anything.
func rateLimited(w http.ResponseWriter, interval time.Duration) {
	w.Header().Set("Retry-After", retryAfterSeconds(interval))
	writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
}

// serviceUnavailable covers the retryable failures: unreachable ticket
// authority and storage errors. Distinct from 4xx so clients know a retry
// may succeed.
func serviceUnavailable(w http.ResponseWriter, msg string) {
	w.Header().Set("Retry-After", "5")
	writeError(w, http.StatusServiceUnavailable, msg)
}

func retryAfterSeconds(interval time.Duration) string {
	secs := int64(math.Ceil(interval.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.FormatInt(secs, 10)
}

// isJSONContentType accepts exactly the application/json media type, with or
// without parameters. Look-alikes (application/jsonp, json-patch+json) are
// refused.
func isJSONContentType(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "application/json"
}

func mapDecodeError(err error) string {
	if err == nil {
		return "invalid json"
	}
	var synErr *json.SyntaxError
	if errors.As(err, &synErr) {
		return "invalid json"
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return "invalid json"
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return "invalid json field type"
	}
	return "invalid request body"
}
