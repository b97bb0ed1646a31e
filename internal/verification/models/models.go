// Package models defines verification attempts, their states, and outcomes.
package models

import (
	"time"

	id "verigate/pkg/domain"
)

// Category identifies one supported verification product.
type Category string

const (
	CategoryGeminiOnePro      Category = "gemini_one_pro"
	CategoryChatGPTTeacherK12 Category = "chatgpt_teacher_k12"
	CategorySpotifyStudent    Category = "spotify_student"
	CategoryYouTubeStudent    Category = "youtube_student"
	CategoryBoltTeacher       Category = "bolt_teacher"
)

var categories = []Category{
	CategoryGeminiOnePro,
	CategoryChatGPTTeacherK12,
	CategorySpotifyStudent,
	CategoryYouTubeStudent,
	CategoryBoltTeacher,
}

// Categories returns every supported category.
func Categories() []Category {
	return append([]Category(nil), categories...)
}

func (c Category) IsValid() bool {
	for _, known := range categories {
		if c == known {
			return true
		}
	}
	return false
}

func (c Category) String() string {
	return string(c)
}

// DelayedCode reports whether the category issues its reward code
// asynchronously after document review.
func (c Category) DelayedCode() bool {
	return c == CategoryBoltTeacher
}

// State is a step of the attempt lifecycle:
// Requested -> Reserved -> Admitted -> Executing -> Settled.
type State string

const (
	StateRequested State = "requested"
	StateReserved  State = "reserved"
	StateAdmitted  State = "admitted"
	StateExecuting State = "executing"
	StateSettled   State = "settled"
	// StateDeclined ends an attempt that never reserved points.
	StateDeclined State = "declined"
)

// Outcome is the settled result of an attempt.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeRefunded Outcome = "refunded"
	OutcomeErrored  Outcome = "errored"
)

// FailureKind classifies why an attempt did not succeed.
type FailureKind string

const (
	FailureNone                FailureKind = ""
	FailureInsufficientBalance FailureKind = "insufficient_balance"
	FailureStoreUnavailable    FailureKind = "store_unavailable"
	FailureVerifierFailure     FailureKind = "verifier_failure"
	FailureVerifierException   FailureKind = "verifier_exception"
	FailurePollTimeout         FailureKind = "poll_timeout"
	FailureRemoteStatusError   FailureKind = "remote_status_error"
	FailureUserNotRegistered   FailureKind = "user_not_registered"
	FailureUserBlocked         FailureKind = "user_blocked"
	FailureInvalidInput        FailureKind = "invalid_input"
	// FailureCancelled ends an attempt whose caller gave up while waiting
	// for admission.
	FailureCancelled FailureKind = "cancelled"
)

// VerifyResult is what a verifier backend returns for one call.
type VerifyResult struct {
	Success        bool   `json:"success"`
	Pending        bool   `json:"pending,omitempty"`
	RedirectURL    string `json:"redirect_url,omitempty"`
	Message        string `json:"message,omitempty"`
	VerificationID string `json:"verification_id,omitempty"`
	RewardCode     string `json:"reward_code,omitempty"`
}

// Request is one user's ask to run a verification.
type Request struct {
	UserID   id.UserID
	Category Category
	Input    string
}

// Attempt tracks one verification run from request to settlement.
type Attempt struct {
	ID                     id.AttemptID
	UserID                 id.UserID
	Category               Category
	Input                  string
	Identifier             string
	Cost                   int
	State                  State
	Outcome                Outcome
	Failure                FailureKind
	Detail                 string
	ExternalVerificationID string
	RedirectURL            string
	Pending                bool
	RewardCode             string
	RewardPending          bool
	Refunded               bool
	// RefundOwed marks a failed attempt whose refund settlement could not
	// apply. The ledger's refund sweep picks it up later.
	RefundOwed bool
	Balance    *int
	CreatedAt  time.Time
	SettledAt  time.Time
}

// Advance moves the attempt forward. Settled and declined attempts do not
// move again.
func (a *Attempt) Advance(next State) {
	if a.State == StateSettled || a.State == StateDeclined {
		return
	}
	a.State = next
}

// Decline ends an attempt before any points were reserved.
func (a *Attempt) Decline(kind FailureKind, detail string) {
	a.State = StateDeclined
	a.Failure = kind
	a.Detail = detail
}

// Settle records the terminal outcome.
func (a *Attempt) Settle(outcome Outcome, kind FailureKind, at time.Time) {
	a.State = StateSettled
	a.Outcome = outcome
	a.Failure = kind
	a.SettledAt = at
}

// Succeeded reports whether the verifier reported success.
func (a *Attempt) Succeeded() bool {
	return a.State == StateSettled && a.Outcome == OutcomeSuccess
}
