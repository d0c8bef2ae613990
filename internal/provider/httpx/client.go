// Package httpx is the thin JSON HTTP client shared by the REST-backed
// provider adapters. It handles auth headers, rate-limit retry with
// exponential backoff, and JSON (de)serialization.
package httpx

import (
	"bytes"
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

	"github.com/DevSrijit/commsync-sub002/internal/model"
	"github.com/DevSrijit/commsync-sub002/internal/provider"
)

// Client is a thin HTTP client for JSON provider APIs.
type Client struct {
	baseURL      string
	providerType model.ProviderType
	httpClient   *http.Client
	maxRetries   int

	// headers are applied to every request (auth tokens and API
	// version headers).
	headers map[string]string
}

// New creates a client rooted at baseURL. The headers map carries the
// provider's auth scheme (e.g. "Authorization: Bearer <token>").
func New(baseURL string, pt model.ProviderType, headers map[string]string) *Client {
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		providerType: pt,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		maxRetries: 3,
		headers:    headers,
	}
}

// WithTimeout overrides the underlying HTTP client timeout.
func (c *Client) WithTimeout(d time.Duration) *Client {
	c.httpClient = &http.Client{Timeout: d}
	return c
}

// Get performs an HTTP GET request and unmarshals the JSON response.
func (c *Client) Get(ctx context.Context, path string, query url.Values, result interface{}) error {
	if len(query) > 0 {
		path = path + "?" + query.Encode()
	}
	return c.do(ctx, http.MethodGet, path, nil, result)
}

// Post performs an HTTP POST request with a JSON body and unmarshals
// the JSON response.
func (c *Client) Post(ctx context.Context, path string, body interface{}, result interface{}) error {
	return c.do(ctx, http.MethodPost, path, body, result)
}

// Delete performs an HTTP DELETE request. A 404 response is treated as
// success: deleting something already gone is not an error.
func (c *Client) Delete(ctx context.Context, path string) error {
	err := c.do(ctx, http.MethodDelete, path, nil, nil)
	if IsNotFound(err) {
		return nil
	}
	return err
}

// StatusError carries a non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// IsNotFound reports whether err is a 404 StatusError.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

// do is the core HTTP method that builds the request, applies headers,
// retries rate limits with exponential backoff, and handles JSON
// (de)serialization.
func (c *Client) do(
	ctx context.Context,
	method string,
	path string,
	body interface{},
	result interface{},
) error {
	target := c.baseURL + path

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		var bodyReader io.Reader
		if body != nil {
			data, err := json.Marshal(body)
			if err != nil {
				return fmt.Errorf("marshaling request body: %w", err)
			}
			bodyReader = bytes.NewReader(data)
		}

		req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}

		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		for k, v := range c.headers {
			req.Header.Set(k, v)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return &provider.ConnectionError{
				ProviderType: c.providerType,
				Err:          fmt.Errorf("%s %s: %w", method, path, err),
			}
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return fmt.Errorf("reading response body: %w", readErr)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			waitDuration := retryAfterDuration(resp, attempt)
			lastErr = fmt.Errorf("rate limited (429) on %s %s", method, path)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(waitDuration):
				continue
			}
		}

		if resp.StatusCode == http.StatusUnauthorized ||
			resp.StatusCode == http.StatusForbidden {
			return &provider.AuthError{
				ProviderType: c.providerType,
				Message: fmt.Sprintf(
					"authentication failed (%d) on %s %s",
					resp.StatusCode, method, path,
				),
			}
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &StatusError{
				Code: resp.StatusCode,
				Body: strings.TrimSpace(string(respBody)),
			}
		}

		if result == nil || resp.StatusCode == http.StatusNoContent ||
			len(respBody) == 0 {
			return nil
		}

		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf(
				"unmarshaling response from %s %s: %w", method, path, err,
			)
		}

		return nil
	}

	return fmt.Errorf("max retries (%d) exceeded: %w", c.maxRetries, lastErr)
}

// retryAfterDuration reads the Retry-After header and computes a wait
// duration. Falls back to exponential backoff if the header is missing.
func retryAfterDuration(resp *http.Response, attempt int) time.Duration {
	if header := resp.Header.Get("Retry-After"); header != "" {
		if seconds, err := strconv.Atoi(header); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}

	// Exponential backoff: 1s, 2s, 4s, ...
	backoff := time.Duration(1<<uint(attempt)) * time.Second
	if backoff > 30*time.Second {
		backoff = 30 * time.Second
	}
	return backoff
}
