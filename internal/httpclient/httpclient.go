// Package httpclient holds small JSON-over-HTTP helpers shared by the remote
// text and packer clients.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"
)

// DefaultTimeout bounds a single remote call.
const DefaultTimeout = 10 * time.Minute

// New returns an http.Client with the given timeout, or DefaultTimeout when
// timeout is zero.
func New(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// PostJSON performs a POST request with a JSON body and unmarshals the JSON
// response. Any status other than 200 OK is an error.
func PostJSON[T any](ctx context.Context, client *http.Client, url string, requestBody any) (*T, error) {
	return DoJSON[T](ctx, client, http.MethodPost, url, requestBody, http.StatusOK)
}

// GetJSON performs a GET request and unmarshals the JSON response.
func GetJSON[T any](ctx context.Context, client *http.Client, url string) (*T, error) {
	return DoJSON[T](ctx, client, http.MethodGet, url, nil, http.StatusOK)
}

// DoJSON performs a request with an optional JSON body. It accepts one or more
// valid status codes. If the response status doesn't match any, an error is
// returned.
func DoJSON[T any](ctx context.Context, client *http.Client, method, url string, requestBody any, expectedStatuses ...int) (*T, error) {
	var bodyReader io.Reader
	if requestBody != nil {
		jsonBody, err := json.Marshal(requestBody)
		if err != nil {
			return nil, fmt.Errorf("could not marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if requestBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not send request: %w", err)
	}
	defer resp.Body.Close()

	if !slices.Contains(expectedStatuses, resp.StatusCode) {
		return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, readErrorBody(resp.Body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("could not read response body: %w", err)
	}

	var result T
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("could not unmarshal response: %w", err)
	}

	return &result, nil
}

// JoinURL appends an endpoint path to a base URL.
func JoinURL(base, endpoint string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(endpoint, "/")
}

// readErrorBody reads at most 1 KiB of an error response for diagnostics.
func readErrorBody(r io.Reader) string {
	body, err := io.ReadAll(io.LimitReader(r, 1024))
	if err != nil {
		return "(could not read body)"
	}
	return strings.TrimSpace(string(body))
}
