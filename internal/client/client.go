// Package client talks to the Coindle stats API.
//
// Submissions are sent exactly once: a retried submission could count the same score twice,
// and a rejected one would be rejected again. Stats queries are idempotent and are retried
// with exponential backoff on transport errors and 5xx responses.
//
// # Usage
//
//	c := client.New(client.Config{BaseURL: "http://localhost:8080"})
//	snap, err := c.SubmitScore(ctx, scoretoken.NewSubmission(3, today, secret))
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MJE43/coindle/internal/scoretoken"
	"github.com/MJE43/coindle/internal/stats"
)

const (
	scoresPath = "/api/v1/scores"
	statsPath  = "/api/v1/stats/"
)

// Config holds configuration for the API client.
type Config struct {
	// BaseURL is the API root, e.g. "http://localhost:8080". A missing scheme means https.
	BaseURL string

	// Timeout bounds each call, including retries. Defaults to 10 seconds if zero.
	Timeout time.Duration

	// MaxRetries is the maximum number of retry attempts for a stats query.
	// Defaults to 2 if zero; negative disables retries.
	MaxRetries int

	// BaseRetryDelay is the initial delay before the first retry.
	// Defaults to 500ms if zero.
	BaseRetryDelay time.Duration

	// MaxRetryDelay caps the exponential backoff delay.
	// Defaults to 4 seconds if zero.
	MaxRetryDelay time.Duration

	// HTTPClient allows injecting a custom HTTP client (useful for testing).
	HTTPClient *http.Client

	// UserAgent overrides the User-Agent header. Optional.
	UserAgent string
}

// Client is a Coindle API client. It is safe for concurrent use.
type Client struct {
	config Config
	http   *http.Client
}

type submitRequest struct {
	Score int    `json:"score"`
	Date  string `json:"date"`
	Token string `json:"token"`
}

type submitResponse struct {
	Success bool            `json:"success"`
	Stats   *stats.Snapshot `json:"stats,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// New creates a client with the given configuration.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 2
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseRetryDelay == 0 {
		cfg.BaseRetryDelay = 500 * time.Millisecond
	}
	if cfg.MaxRetryDelay == 0 {
		cfg.MaxRetryDelay = 4 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{config: cfg, http: httpClient}
}

// BaseURL returns the normalized API root.
func (c *Client) BaseURL() string {
	base := strings.TrimSpace(c.config.BaseURL)
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}
	return strings.TrimRight(base, "/")
}

// SubmitScore sends sub once and returns the day's snapshot ranked against sub.Score.
// A token mismatch or other refusal yields *RejectedError.
func (c *Client) SubmitScore(ctx context.Context, sub scoretoken.Submission) (stats.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	body, err := json.Marshal(submitRequest{
		Score: sub.Score,
		Date:  sub.Date.String(),
		Token: sub.Token,
	})
	if err != nil {
		return stats.Snapshot{}, fmt.Errorf("coindle: marshal submission: %w", err)
	}

	status, raw, err := c.do(ctx, http.MethodPost, scoresPath, body)
	if err != nil {
		return stats.Snapshot{}, err
	}

	var resp submitResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		if status != http.StatusOK {
			return stats.Snapshot{}, &HTTPError{StatusCode: status, Body: string(raw)}
		}
		return stats.Snapshot{}, &MalformedResponseError{Body: string(raw), Err: err}
	}

	switch {
	case status == http.StatusOK && resp.Success:
		if resp.Stats == nil {
			return stats.Snapshot{}, &MalformedResponseError{Body: string(raw), Err: fmt.Errorf("missing stats")}
		}
		if err := checkSnapshot(*resp.Stats); err != nil {
			return stats.Snapshot{}, &MalformedResponseError{Body: string(raw), Err: err}
		}
		return *resp.Stats, nil
	case status >= 500 || status == http.StatusTooManyRequests:
		return stats.Snapshot{}, &HTTPError{StatusCode: status, Body: string(raw)}
	default:
		msg := resp.Error
		if msg == "" {
			msg = "submission refused"
		}
		return stats.Snapshot{}, &RejectedError{StatusCode: status, Message: msg}
	}
}

// Stats ranks score against today's distribution without recording it.
func (c *Client) Stats(ctx context.Context, score int) (stats.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	path := statsPath + strconv.Itoa(score)

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(c.retryDelay(attempt)):
			case <-ctx.Done():
				return stats.Snapshot{}, &transportError{err: ctx.Err()}
			}
		}

		snap, err := c.queryOnce(ctx, path)
		if err == nil {
			return snap, nil
		}
		lastErr = err
		if !retryable(err) {
			return stats.Snapshot{}, err
		}
	}
	return stats.Snapshot{}, fmt.Errorf("coindle: max retries exceeded: %w", lastErr)
}

func (c *Client) queryOnce(ctx context.Context, path string) (stats.Snapshot, error) {
	status, raw, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return stats.Snapshot{}, err
	}
	if status != http.StatusOK {
		return stats.Snapshot{}, &HTTPError{StatusCode: status, Body: string(raw)}
	}

	var snap stats.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return stats.Snapshot{}, &MalformedResponseError{Body: string(raw), Err: err}
	}
	if err := checkSnapshot(snap); err != nil {
		return stats.Snapshot{}, &MalformedResponseError{Body: string(raw), Err: err}
	}
	return snap, nil
}

// do sends a single request and returns the status code and body.
func (c *Client) do(ctx context.Context, method, path string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL()+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("coindle: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, &transportError{err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, &transportError{err: err}
	}
	return resp.StatusCode, raw, nil
}

// retryDelay calculates the backoff delay for a given attempt number.
func (c *Client) retryDelay(attempt int) time.Duration {
	delay := c.config.BaseRetryDelay * time.Duration(math.Pow(2, float64(attempt-1)))
	if delay > c.config.MaxRetryDelay {
		delay = c.config.MaxRetryDelay
	}
	return delay
}

func retryable(err error) bool {
	switch e := err.(type) {
	case *HTTPError:
		return e.IsRetryable()
	case *transportError:
		return true
	default:
		return false
	}
}

func checkSnapshot(s stats.Snapshot) error {
	if s.TotalPlayers < 0 || s.TopScore < 0 {
		return fmt.Errorf("negative counters in snapshot")
	}
	if s.Percentile != nil && (*s.Percentile < 0 || *s.Percentile > 100) {
		return fmt.Errorf("percentile %d out of range", *s.Percentile)
	}
	return nil
}
