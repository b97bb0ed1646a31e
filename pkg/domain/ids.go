package domain

import (
	"strconv"

	"github.com/google/uuid"

	dErrors "verigate/pkg/domain-errors"
)

// UserID is the chat-platform identity of a point holder. It is numeric and
// assigned externally, so it is never generated here.
type UserID int64

// AttemptID identifies one verification attempt. It is the idempotency key
// for settlement: a refund is written at most once per AttemptID.
type AttemptID uuid.UUID

const maxUserIDLen = 20

// ParseUserID parses a positive decimal user identifier.
func ParseUserID(s string) (UserID, error) {
	if s == "" {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "user id is required")
	}
	if len(s) > maxUserIDLen {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "user id is too long")
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInvalidInput, "user id must be numeric")
	}
	if v <= 0 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "user id must be positive")
	}
	return UserID(v), nil
}

func (id UserID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// IsZero reports whether the id was never set.
func (id UserID) IsZero() bool {
	return id == 0
}

// NewAttemptID returns a fresh random attempt identifier.
func NewAttemptID() AttemptID {
	return AttemptID(uuid.New())
}

// ParseAttemptID parses a non-nil UUID.
func ParseAttemptID(s string) (AttemptID, error) {
	if s == "" {
		return AttemptID{}, dErrors.New(dErrors.CodeInvalidInput, "attempt id is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return AttemptID{}, dErrors.Wrap(err, dErrors.CodeInvalidInput, "attempt id must be a UUID")
	}
	if u == uuid.Nil {
		return AttemptID{}, dErrors.New(dErrors.CodeInvalidInput, "attempt id must not be nil")
	}
	return AttemptID(u), nil
}

func (id AttemptID) String() string {
	return uuid.UUID(id).String()
}

func (id AttemptID) IsNil() bool {
	return uuid.UUID(id) == uuid.Nil
}
