// Package sentinel holds store-level error values that services translate
// into domain errors.
package sentinel

import "errors"

// ErrNotFound is returned (possibly wrapped) when a store has no such row.
var ErrNotFound = errors.New("not found")
