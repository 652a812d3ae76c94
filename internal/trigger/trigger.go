// Package trigger performs the single outbound call that asks a Dokploy
// instance to redeploy an application, either through the Dokploy API or
// through a pre-built deploy webhook. One invocation is exactly one call:
// retries and backoff are the caller's decision.
package trigger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"dokpub/internal/publish"
)

const (
	// DeployPath is the Dokploy API endpoint that redeploys an application
	// from its currently configured image source. The workflow renderer
	// consumes this constant so the emitted CI step issues the same call.
	DeployPath = "/api/application.deploy"

	// APIKeyHeader authenticates API sub-mode requests.
	APIKeyHeader = "x-api-key"

	// maxResponseBytes caps how much of the remote body is kept as the
	// acknowledgment or rejection reason.
	maxResponseBytes = 64 * 1024
)

// Outcome classifies the result of a trigger call.
type Outcome int

const (
	// Success: the remote platform acknowledged the trigger (2xx).
	Success Outcome = iota + 1
	// Rejected: the remote platform understood the request and declined it,
	// e.g. an unknown application id. Never retried automatically.
	Rejected
	// TransportFailure: the call never completed (connection error or
	// timeout). An ambiguous timeout is never assumed successful.
	TransportFailure
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Rejected:
		return "rejected"
	case TransportFailure:
		return "transport_failure"
	default:
		return "unknown"
	}
}

// Result is the tagged outcome of one trigger attempt. It is created per
// call and never persisted by this package.
type Result struct {
	Outcome    Outcome
	StatusCode int
	// Body holds the remote acknowledgment on Success or the remote-reported
	// reason on Rejected.
	Body string
	// Err holds the transport-level cause on TransportFailure.
	Err error
}

// OK reports whether the remote platform acknowledged the trigger.
func (r Result) OK() bool {
	return r.Outcome == Success
}

// Reason renders the failure for a human caller.
func (r Result) Reason() string {
	switch r.Outcome {
	case Rejected:
		body := r.Body
		if body == "" {
			body = "(empty response body)"
		}
		return fmt.Sprintf("HTTP %d: %s", r.StatusCode, body)
	case TransportFailure:
		return r.Err.Error()
	default:
		return ""
	}
}

// Endpoint returns the API deploy URL for a Dokploy base URL.
func Endpoint(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + DeployPath
}

// Client issues deploy trigger calls with a bounded timeout.
type Client struct {
	logger *slog.Logger
}

// NewClient creates a trigger client. The timeout of each call comes from
// the resolved configuration; logger may be nil.
func NewClient(logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{logger: logger}
}

// Trigger performs exactly one outbound call for the configured transport
// and classifies the response. The call is bounded by cfg.Timeout; expiry
// surfaces as TransportFailure rather than blocking.
func (c *Client) Trigger(ctx context.Context, cfg *publish.Config) Result {
	req, client, err := c.buildRequest(ctx, cfg)
	if err != nil {
		return Result{Outcome: TransportFailure, Err: err}
	}

	c.logger.Info("triggering deployment",
		"transport", cfg.Transport.String(),
		"url", req.URL.String())

	resp, err := client.Do(req)
	if err != nil {
		return Result{Outcome: TransportFailure, Err: err}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	trimmed := strings.TrimSpace(string(body))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return Result{Outcome: Success, StatusCode: resp.StatusCode, Body: trimmed}
	}
	return Result{Outcome: Rejected, StatusCode: resp.StatusCode, Body: trimmed}
}

// buildRequest assembles the outbound request and the HTTP client carrying
// its authorization. The webhook client is built from an oauth2 static token
// source when a bearer token is configured; without one, no Authorization
// header is sent.
func (c *Client) buildRequest(ctx context.Context, cfg *publish.Config) (*http.Request, *http.Client, error) {
	switch cfg.Transport {
	case publish.TransportAPI:
		payload, err := json.Marshal(map[string]string{"applicationId": cfg.ApplicationID})
		if err != nil {
			return nil, nil, fmt.Errorf("encoding trigger payload: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, Endpoint(cfg.DokployURL), bytes.NewReader(payload))
		if err != nil {
			return nil, nil, fmt.Errorf("building API trigger request: %w", err)
		}
		req.Header.Set(APIKeyHeader, cfg.APIKey)
		req.Header.Set("accept", "application/json")
		req.Header.Set("content-type", "application/json")
		return req, &http.Client{Timeout: cfg.Timeout}, nil

	case publish.TransportWebhook:
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.DeployURL, nil)
		if err != nil {
			return nil, nil, fmt.Errorf("building webhook trigger request: %w", err)
		}
		client := &http.Client{Timeout: cfg.Timeout}
		if cfg.Token != "" {
			ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
			client = oauth2.NewClient(ctx, ts)
			client.Timeout = cfg.Timeout
		}
		return req, client, nil

	default:
		return nil, nil, fmt.Errorf("no deploy transport configured")
	}
}
