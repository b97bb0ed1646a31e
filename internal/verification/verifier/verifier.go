// Package verifier adapts the per-category verification backends.
package verifier

import (
	"context"
	"fmt"
	"sync"

	"verigate/internal/verification/models"
	dErrors "verigate/pkg/domain-errors"
)

// Verifier runs one blocking verification against a backend.
type Verifier interface {
	Verify(ctx context.Context, identifier string) (*models.VerifyResult, error)
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, identifier string) (*models.VerifyResult, error)

func (f VerifierFunc) Verify(ctx context.Context, identifier string) (*models.VerifyResult, error) {
	return f(ctx, identifier)
}

// Registry maps categories to their verifier.
type Registry struct {
	mu        sync.RWMutex
	verifiers map[models.Category]Verifier
}

func NewRegistry() *Registry {
	return &Registry{verifiers: make(map[models.Category]Verifier)}
}

func (r *Registry) Register(category models.Category, v Verifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.verifiers[category] = v
}

// Get returns the verifier for category, or invalid_input when none exists.
func (r *Registry) Get(category models.Category) (Verifier, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.verifiers[category]
	if !ok {
		return nil, dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("unsupported category %q", category))
	}
	return v, nil
}
