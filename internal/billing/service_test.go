package billing

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/skylarhq/agentdesk-backend/pkg/logger"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, clock *fakeClock) (Service, Repository) {
	t.Helper()
	repo := NewMemoryRepository()
	svc, err := NewService(ServiceParams{
		Repo:   repo,
		Plans:  NewPlanCatalog("prod-monthly", "prod-onetime"),
		Logger: logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled, Output: io.Discard}),
		Now:    clock.Now,
	})
	require.NoError(t, err)
	return svc, repo
}

type fakeClock struct {
	current time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.current
}

func (c *fakeClock) Advance(d time.Duration) {
	c.current = c.current.Add(d)
}

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }

func TestUpsertCreatesRecordWithDerivedPlan(t *testing.T) {
	clock := &fakeClock{current: time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)}
	svc, _ := newTestService(t, clock)

	sub, err := svc.UpsertFromEvent(context.Background(), UpsertInput{
		ExternalSubscriptionID: "sub_1",
		Status:                 StatusActive,
		UserID:                 strPtr("u1"),
		ExternalProductID:      strPtr("prod-monthly"),
	})
	require.NoError(t, err)
	require.NotNil(t, sub)
	require.Equal(t, "sub_1", sub.ExternalSubscriptionID)
	require.NotNil(t, sub.PlanName)
	require.Equal(t, PlanNameMonthly, *sub.PlanName)
	require.Equal(t, clock.current, sub.CreatedAt)
	require.Equal(t, clock.current, sub.UpdatedAt)
}

func TestUpsertIsIdempotent(t *testing.T) {
	clock := &fakeClock{current: time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)}
	svc, repo := newTestService(t, clock)

	input := UpsertInput{
		ExternalSubscriptionID: "sub_1",
		Status:                 StatusActive,
		UserID:                 strPtr("u1"),
		ExternalCustomerID:     strPtr("cus_1"),
	}
	first, err := svc.UpsertFromEvent(context.Background(), input)
	require.NoError(t, err)

	second, err := svc.UpsertFromEvent(context.Background(), input)
	require.NoError(t, err)

	require.Equal(t, first.ID, second.ID)
	stored, err := repo.FindByExternalID(context.Background(), "sub_1")
	require.NoError(t, err)
	require.Equal(t, *first, *stored)
}

func TestUpsertEnrichmentNeverRegresses(t *testing.T) {
	clock := &fakeClock{current: time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)}
	svc, _ := newTestService(t, clock)

	_, err := svc.UpsertFromEvent(context.Background(), UpsertInput{
		ExternalSubscriptionID: "sub_1",
		Status:                 StatusActive,
		ExternalCustomerID:     strPtr("c1"),
		Email:                  strPtr("a@example.com"),
	})
	require.NoError(t, err)

	clock.Advance(time.Minute)
	sub, err := svc.UpsertFromEvent(context.Background(), UpsertInput{
		ExternalSubscriptionID: "sub_1",
		Status:                 StatusPastDue,
	})
	require.NoError(t, err)

	require.NotNil(t, sub.ExternalCustomerID)
	require.Equal(t, "c1", *sub.ExternalCustomerID)
	require.NotNil(t, sub.PrimaryEmail)
	require.Equal(t, "a@example.com", *sub.PrimaryEmail)
	require.Equal(t, StatusPastDue, sub.Status)
}

func TestUpsertUserIDWriteOnce(t *testing.T) {
	clock := &fakeClock{current: time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)}
	svc, _ := newTestService(t, clock)

	_, err := svc.UpsertFromEvent(context.Background(), UpsertInput{
		ExternalSubscriptionID: "sub_1",
		Status:                 StatusActive,
		UserID:                 strPtr("u1"),
	})
	require.NoError(t, err)

	sub, err := svc.UpsertFromEvent(context.Background(), UpsertInput{
		ExternalSubscriptionID: "sub_1",
		Status:                 StatusActive,
		UserID:                 strPtr("u2"),
	})
	require.NoError(t, err)
	require.Equal(t, "u1", *sub.UserID)
}

func TestUpsertAlwaysTakesCancelAtPeriodEnd(t *testing.T) {
	clock := &fakeClock{current: time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)}
	svc, _ := newTestService(t, clock)

	_, err := svc.UpsertFromEvent(context.Background(), UpsertInput{
		ExternalSubscriptionID: "sub_1",
		Status:                 StatusActive,
		CancelAtPeriodEnd:      true,
	})
	require.NoError(t, err)

	sub, err := svc.UpsertFromEvent(context.Background(), UpsertInput{
		ExternalSubscriptionID: "sub_1",
		Status:                 StatusActive,
		CancelAtPeriodEnd:      false,
	})
	require.NoError(t, err)
	require.False(t, sub.CancelAtPeriodEnd)
}

func TestUpsertMissingSubscriptionIDIsNoOp(t *testing.T) {
	clock := &fakeClock{current: time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)}
	svc, _ := newTestService(t, clock)

	sub, err := svc.UpsertFromEvent(context.Background(), UpsertInput{
		ExternalSubscriptionID: "   ",
		Status:                 StatusActive,
	})
	require.NoError(t, err)
	require.Nil(t, sub)
}

func TestResolvePlanFreeFallback(t *testing.T) {
	clock := &fakeClock{current: time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)}
	svc, _ := newTestService(t, clock)

	view := svc.ResolveCurrentPlan(context.Background(), "")
	require.False(t, view.HasSubscription)
	require.Equal(t, "Free", view.Label)

	view = svc.ResolveCurrentPlan(context.Background(), "nobody")
	require.False(t, view.HasSubscription)
	require.Equal(t, "Free", view.Label)
	require.Equal(t, "No active subscription", view.Status)
}

func TestResolvePlanUnmodeledStatusIsFree(t *testing.T) {
	clock := &fakeClock{current: time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)}
	svc, _ := newTestService(t, clock)

	_, err := svc.UpsertFromEvent(context.Background(), UpsertInput{
		ExternalSubscriptionID: "sub_1",
		Status:                 "incomplete_expired",
		UserID:                 strPtr("u1"),
	})
	require.NoError(t, err)

	view := svc.ResolveCurrentPlan(context.Background(), "u1")
	require.False(t, view.HasSubscription)
	require.Equal(t, "Free", view.Label)
}

func TestResolvePlanActiveWithRenewalDate(t *testing.T) {
	clock := &fakeClock{current: time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)}
	svc, _ := newTestService(t, clock)

	_, err := svc.UpsertFromEvent(context.Background(), UpsertInput{
		ExternalSubscriptionID: "sub_1",
		Status:                 StatusActive,
		UserID:                 strPtr("u1"),
		ExternalProductID:      strPtr("prod-monthly"),
		CurrentPeriodEnd:       timePtr(time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)),
	})
	require.NoError(t, err)

	view := svc.ResolveCurrentPlan(context.Background(), "u1")
	require.True(t, view.HasSubscription)
	require.Equal(t, PlanNameMonthly, view.Label)
	require.Equal(t, "Active", view.Status)
	require.Contains(t, view.HelperText, "Renews on Feb 10, 2026")
	require.Equal(t, BadgeDefault, view.BadgeVariant)
}

func TestResolvePlanActiveScheduledCancellation(t *testing.T) {
	clock := &fakeClock{current: time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)}
	svc, _ := newTestService(t, clock)

	_, err := svc.UpsertFromEvent(context.Background(), UpsertInput{
		ExternalSubscriptionID: "sub_1",
		Status:                 StatusActive,
		UserID:                 strPtr("u1"),
		CurrentPeriodEnd:       timePtr(time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)),
		CancelAtPeriodEnd:      true,
	})
	require.NoError(t, err)

	view := svc.ResolveCurrentPlan(context.Background(), "u1")
	require.True(t, view.HasSubscription)
	require.Contains(t, view.HelperText, "Cancels on Feb 10, 2026")
}

func TestResolvePlanPastDueWarns(t *testing.T) {
	clock := &fakeClock{current: time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)}
	svc, _ := newTestService(t, clock)

	_, err := svc.UpsertFromEvent(context.Background(), UpsertInput{
		ExternalSubscriptionID: "sub_1",
		Status:                 StatusPastDue,
		UserID:                 strPtr("u1"),
	})
	require.NoError(t, err)

	view := svc.ResolveCurrentPlan(context.Background(), "u1")
	require.True(t, view.HasSubscription)
	require.Equal(t, "Past due", view.Status)
	require.Equal(t, BadgeWarning, view.BadgeVariant)
}

func TestResolvePlanPrefersHigherPeriodEnd(t *testing.T) {
	clock := &fakeClock{current: time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)}
	svc, _ := newTestService(t, clock)

	_, err := svc.UpsertFromEvent(context.Background(), UpsertInput{
		ExternalSubscriptionID: "sub_no_end",
		Status:                 StatusActive,
		UserID:                 strPtr("u1"),
	})
	require.NoError(t, err)

	clock.Advance(time.Minute)
	_, err = svc.UpsertFromEvent(context.Background(), UpsertInput{
		ExternalSubscriptionID: "sub_with_end",
		Status:                 StatusActive,
		UserID:                 strPtr("u1"),
		ExternalProductID:      strPtr("prod-onetime"),
		CurrentPeriodEnd:       timePtr(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)),
	})
	require.NoError(t, err)

	view := svc.ResolveCurrentPlan(context.Background(), "u1")
	require.Equal(t, PlanNameOnetime, view.Label)
}

func TestResolvePlanTieBreaksByUpdatedAt(t *testing.T) {
	clock := &fakeClock{current: time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)}
	svc, _ := newTestService(t, clock)

	periodEnd := timePtr(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	_, err := svc.UpsertFromEvent(context.Background(), UpsertInput{
		ExternalSubscriptionID: "sub_old",
		Status:                 StatusActive,
		UserID:                 strPtr("u1"),
		ExternalProductID:      strPtr("prod-monthly"),
		CurrentPeriodEnd:       periodEnd,
	})
	require.NoError(t, err)

	clock.Advance(time.Hour)
	_, err = svc.UpsertFromEvent(context.Background(), UpsertInput{
		ExternalSubscriptionID: "sub_new",
		Status:                 StatusActive,
		UserID:                 strPtr("u1"),
		ExternalProductID:      strPtr("prod-onetime"),
		CurrentPeriodEnd:       periodEnd,
	})
	require.NoError(t, err)

	view := svc.ResolveCurrentPlan(context.Background(), "u1")
	require.Equal(t, PlanNameOnetime, view.Label)
}

func TestResolvePlanFullTieIsDeterministic(t *testing.T) {
	clock := &fakeClock{current: time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)}
	svc, _ := newTestService(t, clock)

	periodEnd := timePtr(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	_, err := svc.UpsertFromEvent(context.Background(), UpsertInput{
		ExternalSubscriptionID: "sub_b",
		Status:                 StatusActive,
		UserID:                 strPtr("u1"),
		ExternalProductID:      strPtr("prod-onetime"),
		CurrentPeriodEnd:       periodEnd,
	})
	require.NoError(t, err)

	_, err = svc.UpsertFromEvent(context.Background(), UpsertInput{
		ExternalSubscriptionID: "sub_a",
		Status:                 StatusActive,
		UserID:                 strPtr("u1"),
		ExternalProductID:      strPtr("prod-monthly"),
		CurrentPeriodEnd:       periodEnd,
	})
	require.NoError(t, err)

	// Both records share periodEnd and updatedAt; the subscription id
	// decides, and the answer must not flip between calls.
	for i := 0; i < 10; i++ {
		view := svc.ResolveCurrentPlan(context.Background(), "u1")
		require.Equal(t, PlanNameMonthly, view.Label)
	}
}

func TestResolvePlanCanceledFallback(t *testing.T) {
	clock := &fakeClock{current: time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)}
	svc, _ := newTestService(t, clock)

	_, err := svc.UpsertFromEvent(context.Background(), UpsertInput{
		ExternalSubscriptionID: "sub_1",
		Status:                 StatusCanceled,
		UserID:                 strPtr("u1"),
		CanceledAt:             timePtr(time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)),
	})
	require.NoError(t, err)

	view := svc.ResolveCurrentPlan(context.Background(), "u1")
	require.False(t, view.HasSubscription)
	require.Equal(t, "Previous plan", view.Label)
	require.Contains(t, view.HelperText, "Jan 5, 2026")
}

func TestResolvePlanCanceledFallsBackToUpdatedAt(t *testing.T) {
	clock := &fakeClock{current: time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)}
	svc, _ := newTestService(t, clock)

	_, err := svc.UpsertFromEvent(context.Background(), UpsertInput{
		ExternalSubscriptionID: "sub_1",
		Status:                 StatusCanceled,
		UserID:                 strPtr("u1"),
	})
	require.NoError(t, err)

	view := svc.ResolveCurrentPlan(context.Background(), "u1")
	require.Contains(t, view.HelperText, "Jan 10, 2026")
}
