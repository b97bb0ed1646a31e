package verifier

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"verigate/internal/verification/models"
	"verigate/pkg/platform/backend"
)

// HTTPVerifier delegates to a remote backend service that performs the
// document automation.
type HTTPVerifier struct {
	category models.Category
	endpoint string
	client   *http.Client
}

func NewHTTPVerifier(category models.Category, endpoint string, timeout time.Duration) *HTTPVerifier {
	return &HTTPVerifier{
		category: category,
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

type verifyRequest struct {
	Category   string `json:"category"`
	Identifier string `json:"identifier"`
}

func (v *HTTPVerifier) Verify(ctx context.Context, identifier string) (*models.VerifyResult, error) {
	name := v.category.String()
	body, err := json.Marshal(verifyRequest{Category: name, Identifier: identifier})
	if err != nil {
		return nil, backend.New(backend.ErrorInternal, name, "encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, backend.New(backend.ErrorInternal, name, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, backend.FromTransport(name, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, backend.FromStatus(name, resp.StatusCode)
	}

	var result models.VerifyResult
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&result); err != nil {
		return nil, backend.New(backend.ErrorBadData, name, "decode response", err)
	}
	return &result, nil
}
