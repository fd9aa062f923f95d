// Package directory is an HTTP client for the student directory: billed fees,
// payments and the paginated profile listing.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-gatepass-api/pkg/middleware/requestid"
)

const userAgent = "sma-gatepass-api/1.0"

// Config configures the directory client.
type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// Client calls the directory API. Transient failures are retried with exponential backoff.
type Client struct {
	baseURL    *url.URL
	apiKey     string
	httpClient *http.Client
	maxRetries int
	retryDelay time.Duration
	logger     *zap.Logger
}

// New constructs a client.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		return nil, fmt.Errorf("directory base url required")
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	parsed, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse directory base url: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    parsed,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		logger:     logger,
	}, nil
}

// BilledFees returns the fee lines billed to a student for a term.
// A 404 yields an error wrapping ErrNotFound.
func (c *Client) BilledFees(ctx context.Context, studentID, termCode string) ([]Bill, error) {
	var resp billsResponse
	q := url.Values{"student_id_number": {studentID}, "term": {termCode}}
	if err := c.getJSON(ctx, "billed_fees", "student/billed-fee-types/", q, &resp); err != nil {
		return nil, err
	}
	return resp.Data.Bills, nil
}

// Payments returns the payments a student made for a term.
func (c *Client) Payments(ctx context.Context, studentID, termCode string) ([]Payment, error) {
	var resp paymentsResponse
	q := url.Values{"student_id_number": {studentID}, "term": {termCode}}
	if err := c.getJSON(ctx, "payments", "student/payments/", q, &resp); err != nil {
		return nil, err
	}
	return resp.Data.Payments, nil
}

// ProfilesPage fetches one page of student profiles. page is zero-based.
func (c *Client) ProfilesPage(ctx context.Context, page, pageSize int) (ProfilePage, error) {
	if page < 0 {
		return ProfilePage{}, &Error{Op: "profiles", Err: fmt.Errorf("negative page %d", page)}
	}
	var resp profilesResponse
	q := url.Values{"page": {strconv.Itoa(page + 1)}, "page_size": {strconv.Itoa(pageSize)}}
	if err := c.getJSON(ctx, "profiles", "school/students/data", q, &resp); err != nil {
		return ProfilePage{}, err
	}
	if resp.Error != "" {
		return ProfilePage{}, &Error{Op: "profiles", Err: errors.New(resp.Error)}
	}
	return ProfilePage{
		Page:    page,
		Records: resp.Results.Data,
		HasMore: resp.Next != nil && *resp.Next != "",
	}, nil
}

// WithoutRetries returns a copy of c that makes one attempt per call, for
// callers that run their own retry loop.
func (c *Client) WithoutRetries() *Client {
	single := *c
	single.maxRetries = 0
	return &single
}

// contextError classifies a request aborted by its context. An expired
// deadline is a timeout and may be retried; an explicit cancellation is not.
func contextError(op string, err error) error {
	return &Error{Op: op, Transient: errors.Is(err, context.DeadlineExceeded), Err: err}
}

func (c *Client) getJSON(ctx context.Context, op, path string, query url.Values, out interface{}) error {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.retryDelay << (attempt - 1)
			c.logger.Sugar().Warnw("retrying directory call", "op", op, "attempt", attempt, "delay", delay, "error", lastErr)
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return contextError(op, ctx.Err())
			case <-timer.C:
			}
		}
		lastErr = c.do(ctx, op, path, query, out)
		if lastErr == nil || !IsTransient(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

func (c *Client) do(ctx context.Context, op, path string, query url.Values, out interface{}) error {
	endpoint := c.baseURL.ResolveReference(&url.URL{Path: path, RawQuery: query.Encode()})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Api-Key "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if id := requestid.FromContext(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return contextError(op, ctxErr)
		}
		// Timeouts, refused connections and resets.
		return &Error{Op: op, Transient: true, Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	c.logger.Debug("directory call",
		zap.String("op", op),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return &Error{Op: op, StatusCode: resp.StatusCode, Err: ErrNotFound}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &Error{
			Op:         op,
			StatusCode: resp.StatusCode,
			Transient:  classifyStatus(resp.StatusCode),
			Err:        fmt.Errorf("unexpected response: %s", strings.TrimSpace(string(body))),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
