// Package checkers holds reusable health.Check implementations.
package checkers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPChecker probes an HTTP endpoint such as the chat relay's health URL. A ws:// or
// wss:// URL is probed over plain HTTP(S), so the relay address itself can be given.
type HTTPChecker struct {
	name   string
	url    string
	client *http.Client
}

// NewHTTPChecker probes url with a 10s client. An empty name defaults to the URL.
func NewHTTPChecker(url, name string) *HTTPChecker {
	return NewHTTPCheckerWithClient(url, name, &http.Client{Timeout: 10 * time.Second})
}

func NewHTTPCheckerWithClient(url, name string, client *http.Client) *HTTPChecker {
	if name == "" {
		name = url
	}
	return &HTTPChecker{name: name, url: probeURL(url), client: client}
}

func probeURL(url string) string {
	switch {
	case strings.HasPrefix(url, "ws://"):
		return "http://" + strings.TrimPrefix(url, "ws://")
	case strings.HasPrefix(url, "wss://"):
		return "https://" + strings.TrimPrefix(url, "wss://")
	}
	return url
}

func (h *HTTPChecker) Name() string { return h.name }

// Check fails on transport errors and 5xx. Other statuses, including the 400 a websocket
// endpoint answers to a plain GET, mean the peer is up.
func (h *HTTPChecker) Check(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", h.name, err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", h.name, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%s: unhealthy status %d", h.name, resp.StatusCode)
	}
	return nil
}
