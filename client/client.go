// Package client calls the prediction service.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrUnavailable is returned when the service cannot be reached at all.
var ErrUnavailable = errors.New("prediction service unavailable")

// APIError is a non-200 answer from the service.
type APIError struct {
	StatusCode int
	Body       []byte
}

// Error reports the status code and body.
func (e *APIError) Error() string {
	return fmt.Sprintf("prediction service returned %d: %s", e.StatusCode, strings.TrimSpace(string(e.Body)))
}

// PrettyBody returns the body indented when it is JSON, verbatim otherwise.
func (e *APIError) PrettyBody() string {
	var out bytes.Buffer
	if err := json.Indent(&out, e.Body, "", "  "); err != nil {
		return string(e.Body)
	}
	return out.String()
}

// Client talks to one prediction service.
type Client struct {
	baseURL string
	client  *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default 10s-timeout client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithTimeout sets the request timeout of the default client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.client.Timeout = d }
}

// New returns a client for the service at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the service address without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Predict requests the productivity predicted for incentive.
func (c *Client) Predict(ctx context.Context, incentive float64) (float64, error) {
	payload, err := json.Marshal(map[string]float64{"incentive": incentive})
	if err != nil {
		return 0, err
	}
	body, err := c.do(ctx, http.MethodPost, "/predict", payload)
	if err != nil {
		return 0, err
	}

	var result struct {
		PredictedProductivity *float64 `json:"predicted_productivity"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return 0, fmt.Errorf("decode prediction: %w", err)
	}
	if result.PredictedProductivity == nil {
		return 0, fmt.Errorf("decode prediction: missing predicted_productivity in %s", body)
	}
	return *result.PredictedProductivity, nil
}

// Health calls GET / and returns the service message.
func (c *Client) Health(ctx context.Context) (string, error) {
	body, err := c.do(ctx, http.MethodGet, "/", nil)
	if err != nil {
		return "", err
	}
	var result struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("decode health: %w", err)
	}
	return result.Message, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: body}
	}
	return body, nil
}
