// Package revision provides the HTTP client for the external AI clause
// revision service.
package revision

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/nohjs/Yaksok/internal/port/reviser"
	"github.com/nohjs/Yaksok/internal/resilience"
)

// Client talks to the clause revision service over HTTP JSON. It implements
// reviser.Client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	breaker    *resilience.Breaker
}

// NewClient creates a new revision service client.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// SetBreaker attaches a circuit breaker to all outgoing HTTP calls.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

// envelope is the service's response wrapper. On failure the service
// returns {success:false, message, error} instead of a result.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
	Data    *reviser.Result `json:"data,omitempty"`
}

// Revise sends one clause with its full context and returns the revised
// clause. Errors are mapped onto the reviser taxonomy: connection faults,
// 5xx and 429 are reviser.ErrServiceUnavailable; deadline overruns are
// reviser.ErrTimeout; everything malformed is reviser.ErrInvalidResponse.
func (c *Client) Revise(ctx context.Context, req reviser.Request) (*reviser.Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal revision request: %w", err)
	}

	data, err := c.doRequest(ctx, "/v1/clauses/revise", body)
	if err != nil {
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal revision response: %w", reviser.ErrInvalidResponse)
	}
	if !env.Success || env.Data == nil {
		return nil, fmt.Errorf("revision service refused (%s): %w", env.Message, reviser.ErrInvalidResponse)
	}

	if err := validateResult(env.Data); err != nil {
		return nil, err
	}
	return env.Data, nil
}

// validateResult rejects results missing required fields.
func validateResult(res *reviser.Result) error {
	switch {
	case res.Title == "":
		return fmt.Errorf("missing title: %w", reviser.ErrInvalidResponse)
	case res.Content == "":
		return fmt.Errorf("missing content: %w", reviser.ErrInvalidResponse)
	case !res.Assessment.Owner.Level.Valid() || !res.Assessment.Tenant.Level.Valid():
		return fmt.Errorf("missing or unknown assessment level: %w", reviser.ErrInvalidResponse)
	}
	return nil
}

func (c *Client) doRequest(ctx context.Context, path string, body []byte) ([]byte, error) {
	var result []byte
	call := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}

		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return classifyTransportError(err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode >= 400 {
			return classifyStatusError(resp.StatusCode, data)
		}

		result = data
		return nil
	}

	if c.breaker != nil {
		if err := c.breaker.Execute(call); err != nil {
			if errors.Is(err, resilience.ErrCircuitOpen) {
				return nil, fmt.Errorf("%v: %w", err, reviser.ErrServiceUnavailable)
			}
			return nil, err
		}
		return result, nil
	}

	if err := call(); err != nil {
		return nil, err
	}
	return result, nil
}

// classifyTransportError maps connection-level failures onto the reviser
// taxonomy.
func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("revision request: %w", reviser.ErrTimeout)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("revision request: %w", reviser.ErrTimeout)
	}
	return fmt.Errorf("revision request: %v: %w", err, reviser.ErrServiceUnavailable)
}

// classifyStatusError maps HTTP error statuses onto the reviser taxonomy.
func classifyStatusError(status int, body []byte) error {
	switch {
	case status == http.StatusRequestTimeout:
		return fmt.Errorf("revision service status %d: %w", status, reviser.ErrTimeout)
	case status == http.StatusTooManyRequests || status >= 500:
		return fmt.Errorf("revision service status %d: %w", status, reviser.ErrServiceUnavailable)
	default:
		return fmt.Errorf("revision service status %d: %s: %w", status, string(body), reviser.ErrInvalidResponse)
	}
}
