package httpx

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

type statusErr struct{ code int }

func (e *statusErr) Error() string       { return "status error" }
func (e *statusErr) HTTPStatusCode() int { return e.code }

func TestIsRetryableHTTPStatus(t *testing.T) {
	cases := []struct {
		code int
		want bool
	}{
		{200, false},
		{400, false},
		{404, false},
		{408, true},
		{409, false},
		{422, false},
		{429, true},
		{500, true},
		{503, true},
		{599, true},
	}
	for _, tc := range cases {
		if got := IsRetryableHTTPStatus(tc.code); got != tc.want {
			t.Fatalf("IsRetryableHTTPStatus(%d) = %v, want %v", tc.code, got, tc.want)
		}
	}
}

func TestIsRetryableError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadline", context.DeadlineExceeded, true},
		{"plain error", errors.New("boom"), false},
		{"retryable status", &statusErr{code: 503}, true},
		{"non-retryable status", &statusErr{code: 422}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsRetryableError(tc.err); got != tc.want {
				t.Fatalf("IsRetryableError(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestRetryAfterDuration(t *testing.T) {
	withHeader := func(val string) *http.Response {
		resp := &http.Response{Header: http.Header{}}
		if val != "" {
			resp.Header.Set("Retry-After", val)
		}
		return resp
	}
	cases := []struct {
		name     string
		resp     *http.Response
		fallback time.Duration
		max      time.Duration
		want     time.Duration
	}{
		{"nil response uses fallback", nil, time.Second, 0, time.Second},
		{"no header uses fallback", withHeader(""), 2 * time.Second, 0, 2 * time.Second},
		{"header in seconds", withHeader("5"), time.Second, 0, 5 * time.Second},
		{"malformed header uses fallback", withHeader("soon"), time.Second, 0, time.Second},
		{"capped at max", withHeader("120"), time.Second, 30 * time.Second, 30 * time.Second},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := RetryAfterDuration(tc.resp, tc.fallback, tc.max); got != tc.want {
				t.Fatalf("RetryAfterDuration = %v, want %v", got, tc.want)
			}
		})
	}
}
