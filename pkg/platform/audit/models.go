package audit

import (
	"context"
	"time"

	id "verigate/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose so sinks can
// route and retain them differently.
type EventCategory string

const (
	// CategoryLedger covers balance movements: reservations, refunds, credits.
	CategoryLedger EventCategory = "ledger"

	// CategoryVerification covers attempt outcomes and reward code retrieval.
	CategoryVerification EventCategory = "verification"

	// CategorySecurity covers operator actions such as blocking a user.
	CategorySecurity EventCategory = "security"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	UserID    id.UserID
	AttemptID string
	Subject   string // category of verification, or target of an admin action
	Action    string
	Decision  string // outcome: success, failed, error, pending, code_ready
	Reason    string
	Amount    int
	RequestID string
	ActorID   string
}

type AuditEvent string

const (
	EventVerificationSettled  AuditEvent = "verification_settled"
	EventVerificationRefunded AuditEvent = "verification_refunded"
	EventReservationDeclined  AuditEvent = "reservation_declined"
	EventRewardCodeReady      AuditEvent = "reward_code_ready"
	EventRewardCodePending    AuditEvent = "reward_code_pending"

	EventBalanceCredited AuditEvent = "balance_credited"
	EventDailyCheckIn    AuditEvent = "daily_checkin"
	EventUserBlocked     AuditEvent = "user_blocked"
	EventUserUnblocked   AuditEvent = "user_unblocked"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventVerificationSettled:  CategoryVerification,
	EventRewardCodeReady:      CategoryVerification,
	EventRewardCodePending:    CategoryVerification,
	EventVerificationRefunded: CategoryLedger,
	EventReservationDeclined:  CategoryLedger,
	EventBalanceCredited:      CategoryLedger,
	EventDailyCheckIn:         CategoryLedger,
	EventUserBlocked:          CategorySecurity,
	EventUserUnblocked:        CategorySecurity,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryVerification.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryVerification
}

// Store is any sink that durably accepts audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Lister is implemented by sinks that can read events back.
type Lister interface {
	ListByUser(ctx context.Context, userID id.UserID) ([]Event, error)
}
