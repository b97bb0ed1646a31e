// Package models holds the ledger's persisted shapes.
package models

import (
	"time"

	id "verigate/pkg/domain"
)

// User is a registered account with a point balance.
type User struct {
	ID        id.UserID
	Username  string
	FullName  string
	Balance   int
	Blocked   bool
	CreatedAt time.Time
}

// Settlement is what the ledger needs to finish an attempt's accounting.
type Settlement struct {
	AttemptID id.AttemptID
	UserID    id.UserID
	Cost      int
	Success   bool
}

type RecordStatus string

const (
	StatusSuccess RecordStatus = "success"
	StatusFailed  RecordStatus = "failed"
	StatusPending RecordStatus = "pending"
)

// VerificationRecord is the persisted audit row for one attempt.
type VerificationRecord struct {
	AttemptID  id.AttemptID
	UserID     id.UserID
	Category   string
	Input      string
	Status     RecordStatus
	Detail     string
	ExternalID string
	// RefundOwed is the amount still to be refunded when settlement could
	// not complete. Zero for every other record.
	RefundOwed int
	CreatedAt  time.Time
}

// OwedRefund is a failed attempt whose refund has not been credited yet.
type OwedRefund struct {
	AttemptID id.AttemptID
	UserID    id.UserID
	Amount    int
}
