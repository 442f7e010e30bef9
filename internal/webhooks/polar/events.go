package polarwebhook

import (
	"encoding/json"
	"time"

	"github.com/skylarhq/agentdesk-backend/internal/billing"
)

// Event types handled by the dispatcher. Anything else is acknowledged and
// ignored so new processor event types never cause redelivery storms.
const (
	EventOrderCreated         = "order.created"
	EventSubscriptionCreated  = "subscription.created"
	EventSubscriptionUpdated  = "subscription.updated"
	EventSubscriptionCanceled = "subscription.canceled"
)

// Event is the processor's webhook envelope: a type tag plus a payload whose
// shape depends on the tag. The payload stays raw until dispatch decodes it.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type customerPayload struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	// ExternalID carries our user id when the checkout was opened by an
	// authenticated session.
	ExternalID *string `json:"external_id"`
}

type orderPayload struct {
	ID       string          `json:"id"`
	Amount   int64           `json:"amount"`
	Currency string          `json:"currency"`
	Customer customerPayload `json:"customer"`
}

type subscriptionPayload struct {
	ID                string           `json:"id"`
	Status            string           `json:"status"`
	CurrentPeriodEnd  *string          `json:"current_period_end"`
	CancelAtPeriodEnd bool             `json:"cancel_at_period_end"`
	CanceledAt        *string          `json:"canceled_at"`
	CustomerID        *string          `json:"customer_id"`
	ProductID         *string          `json:"product_id"`
	Customer          *customerPayload `json:"customer"`
}

// normalizeSubscription maps the processor payload onto the billing write
// shape. Optional fields the event did not carry come through as nil so the
// merge never clears known data.
func normalizeSubscription(payload subscriptionPayload) billing.UpsertInput {
	input := billing.UpsertInput{
		ExternalSubscriptionID: payload.ID,
		Status:                 payload.Status,
		ExternalCustomerID:     payload.CustomerID,
		ExternalProductID:      payload.ProductID,
		CurrentPeriodEnd:       parseEventTime(payload.CurrentPeriodEnd),
		CancelAtPeriodEnd:      payload.CancelAtPeriodEnd,
		CanceledAt:             parseEventTime(payload.CanceledAt),
	}
	if payload.Customer != nil {
		if payload.Customer.Email != "" {
			email := payload.Customer.Email
			input.Email = &email
		}
		if input.ExternalCustomerID == nil && payload.Customer.ID != "" {
			customerID := payload.Customer.ID
			input.ExternalCustomerID = &customerID
		}
		if payload.Customer.ExternalID != nil && *payload.Customer.ExternalID != "" {
			input.UserID = payload.Customer.ExternalID
		}
	}
	return input
}

// parseEventTime parses the processor's RFC3339 date strings. Absent or
// unparseable values normalize to nil.
func parseEventTime(value *string) *time.Time {
	if value == nil || *value == "" {
		return nil
	}
	parsed, err := time.Parse(time.RFC3339, *value)
	if err != nil {
		return nil
	}
	utc := parsed.UTC()
	return &utc
}
