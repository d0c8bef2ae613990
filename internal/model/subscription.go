package model

import "time"

// SubscriptionStatus mirrors the billing provider's subscription state.
type SubscriptionStatus string

const (
	StatusIncomplete SubscriptionStatus = "incomplete"
	StatusTrialing   SubscriptionStatus = "trialing"
	StatusActive     SubscriptionStatus = "active"
	StatusPastDue    SubscriptionStatus = "past_due"
	StatusUnpaid     SubscriptionStatus = "unpaid"
	StatusCanceled   SubscriptionStatus = "canceled"
)

// Organization groups users under one subscription. Plans are
// organization-scoped, so usage is aggregated across all members.
type Organization struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	MemberIDs []string `json:"member_ids"`
}

// Subscription carries the plan ceilings and current usage counters for
// one organization. The used_* counters are advisory metering: they are
// clamped to the ceilings at write time and never gate the operation
// that produced the overage.
type Subscription struct {
	// ID is the internal row identifier.
	ID string `json:"id" db:"id"`

	// BillingID is the billing-provider subscription id; billing events
	// upsert idempotently on it.
	BillingID string `json:"billing_id" db:"billing_id"`

	OrgID string `json:"org_id" db:"org_id"`

	Status   SubscriptionStatus `json:"status" db:"status"`
	PlanType string             `json:"plan_type" db:"plan_type"`

	TotalStorage     int64 `json:"total_storage" db:"total_storage"`
	TotalConnections int   `json:"total_connections" db:"total_connections"`
	TotalAICredits   int64 `json:"total_ai_credits" db:"total_ai_credits"`
	MaxUsers         int   `json:"max_users" db:"max_users"`

	UsedStorage     int64 `json:"used_storage" db:"used_storage"`
	UsedConnections int   `json:"used_connections" db:"used_connections"`
	UsedAICredits   int64 `json:"used_ai_credits" db:"used_ai_credits"`

	PeriodStart time.Time `json:"period_start" db:"period_start"`
	PeriodEnd   time.Time `json:"period_end" db:"period_end"`

	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// BillingEvent is the normalized payload a billing-provider webhook
// delivers for reconciliation.
type BillingEvent struct {
	BillingID        string
	OrgID            string
	Status           SubscriptionStatus
	PlanType         string
	TotalStorage     int64
	TotalConnections int
	TotalAICredits   int64
	MaxUsers         int
	PeriodStart      time.Time
	PeriodEnd        time.Time
}

// ParseSubscriptionStatus maps a billing-provider status string onto the
// known set, defaulting to incomplete for anything unrecognized so event
// replay stays idempotent.
func ParseSubscriptionStatus(s string) SubscriptionStatus {
	switch SubscriptionStatus(s) {
	case StatusTrialing, StatusActive, StatusPastDue, StatusUnpaid, StatusCanceled:
		return SubscriptionStatus(s)
	default:
		return StatusIncomplete
	}
}
