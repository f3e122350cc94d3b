package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestIsJSONContentType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		ct   string
		want bool
	}{
		{"application/json", true},
		{"application/json; charset=utf-8", true},
		{"APPLICATION/JSON", true},
		{"application/jsonp", false},
		{"application/json-patch+json", false},
		{"text/plain", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.ct, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			if tt.ct != "" {
				req.Header.Set("Content-Type", tt.ct)
			}
			if got := isJSONContentType(req); got != tt.want {
				t.Fatalf("isJSONContentType(%q) = %v, want %v", tt.ct, got, tt.want)
			}
		})
	}
}

func TestRetryAfterSeconds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		interval time.Duration
		want     string
	}{
		{10 * time.Second, "10"},
		{1500 * time.Millisecond, "2"},
		{100 * time.Millisecond, "1"},
		{0, "1"},
	}
	for _, tt := range tests {
		if got := retryAfterSeconds(tt.interval); got != tt.want {
			t.Fatalf("retryAfterSeconds(%v) = %q, want %q", tt.interval, got, tt.want)
		}
	}
}
