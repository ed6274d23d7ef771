package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MJE43/coindle/internal/calendar"
	"github.com/MJE43/coindle/internal/scoretoken"
)

var testDay = calendar.Day{Year: 2026, Month: time.October, Day: 17}

func newTestClient(url string) *Client {
	return New(Config{
		BaseURL:        url,
		Timeout:        2 * time.Second,
		BaseRetryDelay: time.Millisecond,
		MaxRetryDelay:  5 * time.Millisecond,
	})
}

func TestBaseURLNormalization(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"stats.example.com", "https://stats.example.com"},
		{"http://localhost:8080/", "http://localhost:8080"},
		{" https://api.example.com ", "https://api.example.com"},
	}
	for _, tt := range tests {
		if got := New(Config{BaseURL: tt.in}).BaseURL(); got != tt.want {
			t.Errorf("BaseURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSubmitScore(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/scores" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("missing Content-Type header")
		}

		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body["score"] != float64(3) || body["date"] != "2026-10-17" || body["token"] != scoretoken.Generate(3, testDay, "k") {
			t.Errorf("unexpected body %v", body)
		}

		w.Write([]byte(`{"success":true,"stats":{"totalPlayers":4,"averageScore":2.5,"topScore":5,"percentile":50}}`))
	}))
	defer server.Close()

	snap, err := newTestClient(server.URL).SubmitScore(context.Background(), scoretoken.NewSubmission(3, testDay, "k"))
	if err != nil {
		t.Fatalf("SubmitScore: %v", err)
	}
	if snap.TotalPlayers != 4 || snap.AverageScore != 2.5 || snap.TopScore != 5 {
		t.Errorf("unexpected snapshot %+v", snap)
	}
	if snap.Percentile == nil || *snap.Percentile != 50 {
		t.Errorf("percentile = %v, want 50", snap.Percentile)
	}
}

func TestSubmitScoreRejectedIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"success":false,"error":"invalid token"}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).SubmitScore(context.Background(), scoretoken.NewSubmission(9, testDay, "wrong"))

	var rej *RejectedError
	if !errors.As(err, &rej) {
		t.Fatalf("expected RejectedError, got %T: %v", err, err)
	}
	if rej.StatusCode != http.StatusForbidden || rej.Message != "invalid token" {
		t.Errorf("unexpected rejection %+v", rej)
	}
	if IsNetworkFailure(err) {
		t.Error("rejection must not count as a network failure")
	}
	if calls.Load() != 1 {
		t.Errorf("expected exactly one request, got %d", calls.Load())
	}
}

func TestSubmitScoreServerErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).SubmitScore(context.Background(), scoretoken.NewSubmission(1, testDay, "k"))
	if !IsNetworkFailure(err) {
		t.Fatalf("expected network failure, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("submissions must not retry, got %d requests", calls.Load())
	}
}

func TestSubmitScoreMalformedResponse(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "<html>oops</html>"},
		{"missing stats", `{"success":true}`},
		{"bad percentile", `{"success":true,"stats":{"totalPlayers":1,"averageScore":1,"topScore":1,"percentile":140}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := newTestClient(server.URL).SubmitScore(context.Background(), scoretoken.NewSubmission(1, testDay, "k"))
			var bad *MalformedResponseError
			if !errors.As(err, &bad) {
				t.Fatalf("expected MalformedResponseError, got %T: %v", err, err)
			}
			if !IsNetworkFailure(err) {
				t.Error("malformed response should be treated as a network failure")
			}
		})
	}
}

func TestStatsNullPercentile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/v1/stats/7" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		w.Write([]byte(`{"totalPlayers":0,"averageScore":0,"topScore":0,"percentile":null}`))
	}))
	defer server.Close()

	snap, err := newTestClient(server.URL).Stats(context.Background(), 7)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if snap.Percentile != nil {
		t.Errorf("expected nil percentile, got %d", *snap.Percentile)
	}
}

func TestStatsRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"totalPlayers":2,"averageScore":1.5,"topScore":2,"percentile":0}`))
	}))
	defer server.Close()

	snap, err := newTestClient(server.URL).Stats(context.Background(), 1)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if snap.Percentile == nil || *snap.Percentile != 0 {
		t.Errorf("percentile = %v, want 0", snap.Percentile)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestStatsGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Stats(context.Background(), 1)
	if !IsNetworkFailure(err) {
		t.Fatalf("expected network failure, got %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 1 attempt + 2 retries, got %d", calls.Load())
	}
}

func TestStatsDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Stats(context.Background(), 1)
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected HTTP 400 error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected one attempt, got %d", calls.Load())
	}
}

func TestTimeoutIsNetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer server.Close()

	c := New(Config{BaseURL: server.URL, Timeout: 50 * time.Millisecond, MaxRetries: -1})
	_, err := c.SubmitScore(context.Background(), scoretoken.NewSubmission(1, testDay, "k"))
	if !IsNetworkFailure(err) {
		t.Fatalf("expected network failure on timeout, got %v", err)
	}
}

func TestRetryDelay(t *testing.T) {
	c := New(Config{BaseRetryDelay: 100 * time.Millisecond, MaxRetryDelay: 300 * time.Millisecond})

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 300 * time.Millisecond},
		{4, 300 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := c.retryDelay(tt.attempt); got != tt.want {
			t.Errorf("retryDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}
