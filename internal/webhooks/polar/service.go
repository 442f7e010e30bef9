package polarwebhook

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/skylarhq/agentdesk-backend/internal/billing"
	"github.com/skylarhq/agentdesk-backend/internal/mailer"
	pkgerrors "github.com/skylarhq/agentdesk-backend/pkg/errors"
	"github.com/skylarhq/agentdesk-backend/pkg/logger"
	"github.com/skylarhq/agentdesk-backend/pkg/metrics"
)

type accessMailer interface {
	SendAccessEmail(ctx context.Context, params mailer.AccessEmailParams) error
}

// ServiceParams groups dependencies for the webhook dispatcher. Guard is
// optional: without Redis duplicates fall through to the idempotent upsert.
type ServiceParams struct {
	Billing billing.Service
	Mailer  accessMailer
	Guard   *IdempotencyGuard
	Logger  *logger.Logger
	Metrics *metrics.APIMetrics
}

// Service routes verified processor events to their side effects.
type Service struct {
	billing billing.Service
	mailer  accessMailer
	guard   *IdempotencyGuard
	logger  *logger.Logger
	metrics *metrics.APIMetrics
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Billing == nil {
		return nil, fmt.Errorf("billing service required")
	}
	if params.Mailer == nil {
		return nil, fmt.Errorf("mailer required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{
		billing: params.Billing,
		mailer:  params.Mailer,
		guard:   params.Guard,
		logger:  params.Logger,
		metrics: params.Metrics,
	}, nil
}

// HandleEvent dispatches one verified event. Returning nil acknowledges the
// delivery; only subscription persistence failures propagate, so the
// processor redelivers exactly the events whose effects were not applied.
func (s *Service) HandleEvent(ctx context.Context, eventID string, event *Event) error {
	if event == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "event is required")
	}
	ctx = s.logger.WithField(ctx, "event_type", event.Type)

	if s.guard != nil && eventID != "" {
		seen, err := s.guard.CheckAndMark(ctx, eventID)
		if err != nil {
			// The guard is an optimization over an already idempotent
			// upsert, so a Redis failure must not reject the delivery.
			s.logger.Error(ctx, "idempotency check failed, continuing", err)
		} else if seen {
			s.logger.Info(ctx, "duplicate webhook delivery ignored")
			s.metrics.IncWebhookEvent(event.Type, "duplicate")
			return nil
		}
	}

	err := s.dispatch(ctx, event)
	if err != nil && s.guard != nil && eventID != "" {
		if releaseErr := s.guard.Release(ctx, eventID); releaseErr != nil {
			s.logger.Error(ctx, "release idempotency key", releaseErr)
		}
	}
	return err
}

func (s *Service) dispatch(ctx context.Context, event *Event) error {
	switch event.Type {
	case EventOrderCreated:
		s.handleOrderCreated(ctx, event.Data)
		return nil
	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionCanceled:
		return s.handleSubscriptionEvent(ctx, event.Type, event.Data)
	default:
		s.logger.Info(ctx, "ignoring unhandled webhook event type")
		s.metrics.IncWebhookEvent(event.Type, "ignored")
		return nil
	}
}

// handleOrderCreated sends the access email for a completed order. Every
// failure path is terminal for the event: the email is best effort and must
// never fail the webhook response.
func (s *Service) handleOrderCreated(ctx context.Context, data json.RawMessage) {
	var order orderPayload
	if err := json.Unmarshal(data, &order); err != nil {
		s.logger.Error(ctx, "decode order payload", err)
		s.metrics.IncWebhookEvent(EventOrderCreated, "failed")
		return
	}
	ctx = s.logger.WithField(ctx, "order_id", order.ID)

	if order.Customer.Email == "" {
		s.logger.Warn(ctx, "order has no customer email, skipping access email")
		s.metrics.IncWebhookEvent(EventOrderCreated, "skipped")
		return
	}

	err := s.mailer.SendAccessEmail(ctx, mailer.AccessEmailParams{
		To:          order.Customer.Email,
		OrderID:     order.ID,
		AmountCents: order.Amount,
		Currency:    order.Currency,
	})
	if err != nil {
		s.logger.Error(ctx, "send access email", err)
		s.metrics.IncWebhookEvent(EventOrderCreated, "failed")
		return
	}
	s.metrics.IncWebhookEvent(EventOrderCreated, "processed")
}

func (s *Service) handleSubscriptionEvent(ctx context.Context, eventType string, data json.RawMessage) error {
	var payload subscriptionPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		s.metrics.IncWebhookEvent(eventType, "failed")
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode subscription payload")
	}

	if _, err := s.billing.UpsertFromEvent(ctx, normalizeSubscription(payload)); err != nil {
		s.metrics.IncWebhookEvent(eventType, "failed")
		return err
	}
	s.metrics.IncWebhookEvent(eventType, "processed")
	return nil
}
