package billing

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/skylarhq/agentdesk-backend/pkg/errors"
	"github.com/skylarhq/agentdesk-backend/pkg/logger"
)

// Badge variants rendered by the dashboard plan card.
const (
	BadgeDefault   = "default"
	BadgeSecondary = "secondary"
	BadgeWarning   = "warning"
)

const planDateFormat = "Jan 2, 2006"

// Service is the billing surface: the webhook handler writes through
// UpsertFromEvent, everything else reads through ResolveCurrentPlan.
type Service interface {
	UpsertFromEvent(ctx context.Context, input UpsertInput) (*UserSubscription, error)
	ResolveCurrentPlan(ctx context.Context, userID string) PlanView
}

// UpsertInput is the normalized write shape. Nil optionals mean "the event
// did not carry this field" and never clear stored values.
type UpsertInput struct {
	ExternalSubscriptionID string
	Status                 string
	UserID                 *string
	Email                  *string
	ExternalCustomerID     *string
	ExternalProductID      *string
	CurrentPeriodEnd       *time.Time
	CancelAtPeriodEnd      bool
	CanceledAt             *time.Time
}

// PlanView is the entitlement read model rendered to the dashboard.
type PlanView struct {
	HasSubscription bool   `json:"has_subscription"`
	Label           string `json:"label"`
	Status          string `json:"status"`
	HelperText      string `json:"helper_text"`
	BadgeVariant    string `json:"badge_variant"`
}

// ServiceParams groups dependencies for the billing service.
type ServiceParams struct {
	Repo   Repository
	Plans  PlanCatalog
	Logger *logger.Logger
	Now    func() time.Time
}

type service struct {
	repo   Repository
	plans  PlanCatalog
	logger *logger.Logger
	now    func() time.Time
}

// NewService builds a billing service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("repository required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:   params.Repo,
		plans:  params.Plans,
		logger: params.Logger,
		now:    now,
	}, nil
}

// UpsertFromEvent creates or merges the record keyed by the processor
// subscription id. Merges only enrich: a field already known is never
// cleared by an event that omits it, and the user link is write-once.
// A missing subscription id is logged and skipped rather than failed, so
// the processor does not redeliver an event we can never apply.
func (s *service) UpsertFromEvent(ctx context.Context, input UpsertInput) (*UserSubscription, error) {
	externalID := strings.TrimSpace(input.ExternalSubscriptionID)
	if externalID == "" {
		s.logger.Error(ctx, "subscription event without subscription id, skipping", nil)
		return nil, nil
	}
	ctx = s.logger.WithSubscriptionID(ctx, externalID)

	existing, err := s.repo.FindByExternalID(ctx, externalID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup subscription")
	}

	now := s.now().UTC()
	sub := existing
	if sub == nil {
		sub = &UserSubscription{
			ID:                     uuid.New(),
			ExternalSubscriptionID: externalID,
			CreatedAt:              now,
		}
	}

	if input.UserID != nil && *input.UserID != "" && sub.UserID == nil {
		sub.UserID = input.UserID
	}
	if input.Email != nil {
		sub.PrimaryEmail = input.Email
	}
	if input.ExternalCustomerID != nil {
		sub.ExternalCustomerID = input.ExternalCustomerID
	}
	if input.ExternalProductID != nil {
		sub.ExternalProductID = input.ExternalProductID
	}
	if input.CurrentPeriodEnd != nil {
		sub.CurrentPeriodEnd = input.CurrentPeriodEnd
	}
	if input.CanceledAt != nil {
		sub.CanceledAt = input.CanceledAt
	}
	sub.CancelAtPeriodEnd = input.CancelAtPeriodEnd
	sub.Status = input.Status
	sub.PlanName = s.plans.Resolve(sub.ExternalProductID)
	sub.UpdatedAt = now

	if err := s.repo.Save(ctx, sub); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save subscription")
	}

	s.logger.Info(s.logger.WithField(ctx, "status", sub.Status), "subscription upserted")
	return sub, nil
}

// ResolveCurrentPlan computes the entitlement view for a user. It never
// fails: unknown users, repository errors, and unmodeled statuses all
// degrade to the Free view, since this gates features rather than bills.
func (s *service) ResolveCurrentPlan(ctx context.Context, userID string) PlanView {
	if strings.TrimSpace(userID) == "" {
		return freePlanView()
	}

	subs, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		s.logger.Error(s.logger.WithUserID(ctx, userID), "list subscriptions for plan resolution", err)
		return freePlanView()
	}
	if len(subs) == 0 {
		return freePlanView()
	}

	if current := pickCurrent(subs); current != nil {
		return renderPlanView(*current)
	}
	if canceled := pickCanceled(subs); canceled != nil {
		return renderPlanView(*canceled)
	}
	return freePlanView()
}

// pickCurrent selects the winning entitlement-bearing record: highest
// period end first, nil losing to any real date, then most recently
// updated, then subscription id so full ties stay deterministic across
// calls regardless of repository iteration order.
func pickCurrent(subs []UserSubscription) *UserSubscription {
	var current []UserSubscription
	for _, sub := range subs {
		if IsCurrentStatus(sub.Status) {
			current = append(current, sub)
		}
	}
	if len(current) == 0 {
		return nil
	}

	sort.SliceStable(current, func(i, j int) bool {
		left, right := periodEndOrZero(current[i]), periodEndOrZero(current[j])
		if !left.Equal(right) {
			return left.After(right)
		}
		if !current[i].UpdatedAt.Equal(current[j].UpdatedAt) {
			return current[i].UpdatedAt.After(current[j].UpdatedAt)
		}
		return current[i].ExternalSubscriptionID < current[j].ExternalSubscriptionID
	})
	return &current[0]
}

// pickCanceled selects the most recently ended subscription, preferring
// canceledAt and falling back to updatedAt when the processor never sent
// an effective cancellation time.
func pickCanceled(subs []UserSubscription) *UserSubscription {
	var best *UserSubscription
	var bestAt time.Time
	for i := range subs {
		sub := subs[i]
		if sub.Status != StatusCanceled {
			continue
		}
		at := sub.UpdatedAt
		if sub.CanceledAt != nil {
			at = *sub.CanceledAt
		}
		if best == nil || at.After(bestAt) {
			best = &subs[i]
			bestAt = at
		}
	}
	return best
}

func periodEndOrZero(sub UserSubscription) time.Time {
	if sub.CurrentPeriodEnd == nil {
		return time.Time{}
	}
	return *sub.CurrentPeriodEnd
}

func freePlanView() PlanView {
	return PlanView{
		HasSubscription: false,
		Label:           "Free",
		Status:          "No active subscription",
		HelperText:      "Upgrade to unlock premium features.",
		BadgeVariant:    BadgeSecondary,
	}
}

func renderPlanView(sub UserSubscription) PlanView {
	label := "Pro"
	if sub.PlanName != nil && *sub.PlanName != "" {
		label = *sub.PlanName
	}

	switch sub.Status {
	case StatusActive:
		helper := "Subscription active."
		if sub.CurrentPeriodEnd != nil {
			if sub.CancelAtPeriodEnd {
				helper = fmt.Sprintf("Cancels on %s.", sub.CurrentPeriodEnd.Format(planDateFormat))
			} else {
				helper = fmt.Sprintf("Renews on %s.", sub.CurrentPeriodEnd.Format(planDateFormat))
			}
		}
		return PlanView{
			HasSubscription: true,
			Label:           label,
			Status:          "Active",
			HelperText:      helper,
			BadgeVariant:    BadgeDefault,
		}
	case StatusTrialing:
		helper := "Trial in progress."
		if sub.CurrentPeriodEnd != nil {
			helper = fmt.Sprintf("Trial ends on %s.", sub.CurrentPeriodEnd.Format(planDateFormat))
		}
		return PlanView{
			HasSubscription: true,
			Label:           label,
			Status:          "Trialing",
			HelperText:      helper,
			BadgeVariant:    BadgeDefault,
		}
	case StatusPastDue:
		helper := "Payment issue. Please update your billing details."
		if sub.CurrentPeriodEnd != nil {
			helper = fmt.Sprintf("Payment issue. Resolve before %s to keep access.", sub.CurrentPeriodEnd.Format(planDateFormat))
		}
		return PlanView{
			HasSubscription: true,
			Label:           label,
			Status:          "Past due",
			HelperText:      helper,
			BadgeVariant:    BadgeWarning,
		}
	case StatusCanceled:
		if sub.PlanName == nil || *sub.PlanName == "" {
			label = "Previous plan"
		}
		canceledAt := sub.UpdatedAt
		if sub.CanceledAt != nil {
			canceledAt = *sub.CanceledAt
		}
		return PlanView{
			HasSubscription: false,
			Label:           label,
			Status:          "Canceled",
			HelperText:      fmt.Sprintf("Canceled on %s.", canceledAt.Format(planDateFormat)),
			BadgeVariant:    BadgeSecondary,
		}
	default:
		return freePlanView()
	}
}
