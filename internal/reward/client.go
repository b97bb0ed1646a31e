package reward

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"verigate/pkg/platform/backend"
	"verigate/pkg/platform/circuit"
)

const backendName = "reward-status"

// Remote step values that end polling.
const (
	StepSuccess = "success"
	StepError   = "error"
)

// Status is the remote verification status document.
type Status struct {
	CurrentStep string `json:"currentStep"`
	RewardCode  string `json:"rewardCode,omitempty"`
	RewardData  *struct {
		RewardCode string `json:"rewardCode,omitempty"`
	} `json:"rewardData,omitempty"`
	RedirectURL string   `json:"redirectUrl,omitempty"`
	ErrorIDs    []string `json:"errorIds,omitempty"`
}

// Code returns the reward code from either location it may appear in.
func (s *Status) Code() string {
	if s.RewardCode != "" {
		return s.RewardCode
	}
	if s.RewardData != nil {
		return s.RewardData.RewardCode
	}
	return ""
}

// StatusFetcher performs one status lookup.
type StatusFetcher interface {
	FetchStatus(ctx context.Context, verificationID string) (*Status, error)
}

// HTTPClient fetches status documents over HTTP behind a circuit breaker, so
// many concurrent pollers stop hammering a failing endpoint.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	breaker *circuit.Breaker
	logger  *slog.Logger
}

type ClientOption func(*HTTPClient)

func WithHTTPClient(c *http.Client) ClientOption {
	return func(h *HTTPClient) {
		h.http = c
	}
}

func WithBreaker(b *circuit.Breaker) ClientOption {
	return func(h *HTTPClient) {
		h.breaker = b
	}
}

func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(h *HTTPClient) {
		h.logger = logger
	}
}

func NewHTTPClient(baseURL string, timeout time.Duration, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		breaker: circuit.New(backendName),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *HTTPClient) FetchStatus(ctx context.Context, verificationID string) (*Status, error) {
	if !c.breaker.Allow() {
		return nil, backend.New(backend.ErrorCircuitOpen, backendName, "circuit open", nil)
	}

	status, err := c.fetch(ctx, verificationID)
	if err != nil {
		if backend.IsRetryable(err) {
			if _, change := c.breaker.RecordFailure(); change.Opened {
				c.logger.WarnContext(ctx, "reward status circuit opened", "error", err)
			}
		}
		return nil, err
	}
	if _, change := c.breaker.RecordSuccess(); change.Closed {
		c.logger.InfoContext(ctx, "reward status circuit closed")
	}
	return status, nil
}

func (c *HTTPClient) fetch(ctx context.Context, verificationID string) (*Status, error) {
	endpoint := c.baseURL + "/verification/" + url.PathEscape(verificationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, backend.New(backend.ErrorInternal, backendName, "build request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, backend.FromTransport(backendName, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, backend.FromStatus(backendName, resp.StatusCode)
	}

	var status Status
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&status); err != nil {
		return nil, backend.New(backend.ErrorBadData, backendName, fmt.Sprintf("decode status for %s", verificationID), err)
	}
	return &status, nil
}
