package verifier

import (
	"context"
	"strings"
	"time"

	"verigate/internal/verification/models"
)

// MockVerifier is the development backend. It sleeps for Latency and then
// succeeds, unless the identifier starts with "fail" which yields a failed
// result. Delayed-code categories echo the identifier as the verification id
// and never return a code inline.
type MockVerifier struct {
	Category models.Category
	Latency  time.Duration
}

func (m MockVerifier) Verify(ctx context.Context, identifier string) (*models.VerifyResult, error) {
	if m.Latency > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.Latency):
		}
	}
	if strings.HasPrefix(identifier, "fail") {
		return &models.VerifyResult{Success: false, Message: "document rejected"}, nil
	}
	result := &models.VerifyResult{Success: true}
	if m.Category.DelayedCode() {
		result.VerificationID = identifier
		return result, nil
	}
	result.Pending = m.Category == models.CategorySpotifyStudent || m.Category == models.CategoryYouTubeStudent
	return result, nil
}
