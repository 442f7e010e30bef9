package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/skylarhq/agentdesk-backend/pkg/config"
	pkgerrors "github.com/skylarhq/agentdesk-backend/pkg/errors"
	"github.com/skylarhq/agentdesk-backend/pkg/logger"
	"github.com/skylarhq/agentdesk-backend/pkg/polar"
	"github.com/skylarhq/agentdesk-backend/pkg/types"
	"github.com/stretchr/testify/require"
)

type stubCheckoutClient struct {
	lastParams polar.CheckoutParams
	session    *polar.CheckoutSession
	err        error
}

func (s *stubCheckoutClient) CreateCheckoutSession(_ context.Context, params polar.CheckoutParams) (*polar.CheckoutSession, error) {
	s.lastParams = params
	if s.err != nil {
		return nil, s.err
	}
	return s.session, nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled, Output: io.Discard})
}

func checkoutConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{PublicURL: "https://app.agentdesk.dev"},
		Polar: config.PolarConfig{
			AccessToken:      "polar-token",
			ProductIDMonthly: "abc-123",
			ProductIDOnetime: "def-456",
		},
	}
}

func TestCheckoutResolvesMonthlyPlaceholder(t *testing.T) {
	client := &stubCheckoutClient{session: &polar.CheckoutSession{ID: "co_1", URL: "https://polar.sh/checkout/co_1"}}
	handler := Checkout(checkoutConfig(), client, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/checkout?products=MONTHLY_PRODUCT_ID", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)

	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "https://polar.sh/checkout/co_1", rec.Header().Get("Location"))
	require.Equal(t, []string{"abc-123"}, client.lastParams.Products)
	require.NotContains(t, client.lastParams.Products, PlaceholderMonthlyProduct)
	require.Equal(t, "https://app.agentdesk.dev/dashboard?checkoutId={CHECKOUT_ID}", client.lastParams.SuccessURL)
	require.Equal(t, "https://app.agentdesk.dev/checkout/error", client.lastParams.ReturnURL)
}

func TestCheckoutDefaultsToMonthly(t *testing.T) {
	client := &stubCheckoutClient{session: &polar.CheckoutSession{URL: "https://polar.sh/checkout/co_1"}}
	handler := Checkout(checkoutConfig(), client, testLogger())

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/checkout", nil))

	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, []string{"abc-123"}, client.lastParams.Products)
}

func TestCheckoutPassesThroughRealProductIDs(t *testing.T) {
	client := &stubCheckoutClient{session: &polar.CheckoutSession{URL: "https://polar.sh/checkout/co_1"}}
	handler := Checkout(checkoutConfig(), client, testLogger())

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/checkout?products=raw-id-789&products=ONETIME_PRODUCT_ID", nil))

	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, []string{"raw-id-789", "def-456"}, client.lastParams.Products)
}

func TestCheckoutUnconfiguredProductIs400(t *testing.T) {
	cfg := checkoutConfig()
	cfg.Polar.ProductIDMonthly = ""
	client := &stubCheckoutClient{session: &polar.CheckoutSession{URL: "https://polar.sh/x"}}
	handler := Checkout(cfg, client, testLogger())

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/checkout?products=MONTHLY_PRODUCT_ID", nil))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var envelope types.ErrorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.Equal(t, string(pkgerrors.CodeValidation), envelope.Error.Code)
}

func TestCheckoutMissingCredentialsIs500(t *testing.T) {
	cfg := checkoutConfig()
	cfg.Polar.AccessToken = ""
	handler := Checkout(cfg, &stubCheckoutClient{}, testLogger())

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/checkout", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var envelope types.ErrorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.Equal(t, string(pkgerrors.CodeMisconfigured), envelope.Error.Code)
}

func TestCheckoutUpstreamFailureIs500(t *testing.T) {
	client := &stubCheckoutClient{err: pkgerrors.New(pkgerrors.CodeInternal, "unexpected response from checkout provider")}
	handler := Checkout(checkoutConfig(), client, testLogger())

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/checkout", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
