package billing

import (
	"time"

	"github.com/google/uuid"
)

// Subscription statuses the processor is known to send. The set is open:
// unmodeled values are stored verbatim and treated as no entitlement.
const (
	StatusActive   = "active"
	StatusTrialing = "trialing"
	StatusPastDue  = "past_due"
	StatusCanceled = "canceled"
)

// UserSubscription is one record per processor subscription id. Optional
// fields are pointers: nil means the processor has never told us the value,
// and merges never clear a known field with a nil.
type UserSubscription struct {
	ID                     uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID                 *string    `gorm:"index" json:"user_id,omitempty"`
	PrimaryEmail           *string    `json:"primary_email,omitempty"`
	ExternalSubscriptionID string     `gorm:"uniqueIndex;not null" json:"external_subscription_id"`
	ExternalCustomerID     *string    `json:"external_customer_id,omitempty"`
	ExternalProductID      *string    `json:"external_product_id,omitempty"`
	PlanName               *string    `json:"plan_name,omitempty"`
	Status                 string     `gorm:"not null" json:"status"`
	CurrentPeriodEnd       *time.Time `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd      bool       `json:"cancel_at_period_end"`
	CanceledAt             *time.Time `json:"canceled_at,omitempty"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `gorm:"index" json:"updated_at"`
}

// IsCurrentStatus reports whether a status still grants entitlement.
func IsCurrentStatus(status string) bool {
	switch status {
	case StatusActive, StatusTrialing, StatusPastDue:
		return true
	default:
		return false
	}
}
