// Package models holds the sliding-window throttle result shared by stores
// and middleware.
package models

import (
	"fmt"
	"time"

	id "verigate/pkg/domain"
)

// Result reports whether one request fits the window.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is the whole-second wait until the oldest entry leaves the window.
func (r Result) RetryAfter(now time.Time) int {
	d := r.ResetAt.Sub(now)
	if d <= 0 {
		return 0
	}
	secs := int(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	return secs
}

// UserKey scopes verification attempts per user.
func UserKey(userID id.UserID) string {
	return fmt.Sprintf("rl:verify:user:%d", userID)
}
