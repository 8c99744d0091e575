package main

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RequestResult is one /proxy round trip's outcome, classified for the
// rolling stats: success implies a status code was actually read back from
// the engine, not necessarily a 2xx.
type RequestResult struct {
	Success        bool
	StatusCode     int
	Duration       time.Duration
	BytesReceived  int
	RequestID      string
	Error          string
	ExpectedStatus int
	IsMismatch     bool
	Host           string
	URL            string
}

// buildRequest targets the engine's /proxy passthrough route rather than a
// render endpoint: this tool drives the Local Proxy directly, not a
// browser-rendering gateway, so there is no auth key to attach.
func buildRequest(engineBase string, targetURL string, userAgent string) (*http.Request, error) {
	endpoint := fmt.Sprintf("%s/proxy?url=%s", strings.TrimRight(engineBase, "/"), url.QueryEscape(targetURL))

	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Request-ID", uuid.New().String())

	return req, nil
}

func executeRequest(client *http.Client, req *http.Request, expectedStatus int, host string, targetURL string) *RequestResult {
	start := time.Now()

	resp, err := client.Do(req)
	elapsed := time.Since(start)

	if err != nil {
		return &RequestResult{
			Success:        false,
			Error:          categorizeError(err),
			Duration:       elapsed,
			ExpectedStatus: expectedStatus,
			Host:           host,
			URL:            targetURL,
		}
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return &RequestResult{
			Success:        false,
			Error:          "body_read_error",
			Duration:       elapsed,
			StatusCode:     resp.StatusCode,
			RequestID:      resp.Header.Get("X-Request-ID"),
			ExpectedStatus: expectedStatus,
			Host:           host,
			URL:            targetURL,
		}
	}

	requestID := resp.Header.Get("X-Request-ID")

	isMismatch := expectedStatus > 0 && expectedStatus != resp.StatusCode

	return &RequestResult{
		Success:        true,
		StatusCode:     resp.StatusCode,
		Duration:       elapsed,
		BytesReceived:  len(bodyBytes),
		RequestID:      requestID,
		ExpectedStatus: expectedStatus,
		IsMismatch:     isMismatch,
		Host:           host,
		URL:            targetURL,
	}
}

func categorizeError(err error) string {
	errStr := err.Error()

	if os.IsTimeout(err) || strings.Contains(errStr, "timeout") {
		return "timeout"
	}

	if strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "connection reset") {
		return "connection_refused"
	}

	if strings.Contains(errStr, "no such host") {
		return "dns_error"
	}

	return "network_error_other"
}
