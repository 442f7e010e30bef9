package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/skylarhq/agentdesk-backend/api/responses"
	"github.com/skylarhq/agentdesk-backend/pkg/config"
	pkgerrors "github.com/skylarhq/agentdesk-backend/pkg/errors"
	"github.com/skylarhq/agentdesk-backend/pkg/logger"
	"github.com/skylarhq/agentdesk-backend/pkg/polar"
)

// Placeholder tokens the front end uses instead of deployment product ids.
const (
	PlaceholderMonthlyProduct = "MONTHLY_PRODUCT_ID"
	PlaceholderOnetimeProduct = "ONETIME_PRODUCT_ID"
)

type checkoutClient interface {
	CreateCheckoutSession(ctx context.Context, params polar.CheckoutParams) (*polar.CheckoutSession, error)
}

// Checkout resolves placeholder product tokens to configured product ids and
// redirects the browser into the hosted checkout. The upstream provider must
// never see an unresolved placeholder: bad product config fails with 400 and
// missing credentials with 500 before anything goes upstream.
func Checkout(cfg *config.Config, client checkoutClient, logg *logger.Logger) http.HandlerFunc {
	placeholders := map[string]string{
		PlaceholderMonthlyProduct: strings.TrimSpace(cfg.Polar.ProductIDMonthly),
		PlaceholderOnetimeProduct: strings.TrimSpace(cfg.Polar.ProductIDOnetime),
	}
	publicURL := strings.TrimRight(cfg.App.PublicURL, "/")

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if client == nil || strings.TrimSpace(cfg.Polar.AccessToken) == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeMisconfigured, "checkout is not configured"))
			return
		}

		tokens := r.URL.Query()["products"]
		if len(tokens) == 0 {
			tokens = []string{PlaceholderMonthlyProduct}
		}

		products := make([]string, 0, len(tokens))
		for _, token := range tokens {
			token = strings.TrimSpace(token)
			if token == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "empty product token"))
				return
			}
			resolved, isPlaceholder := placeholders[token]
			if isPlaceholder {
				if resolved == "" {
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "product is not configured").
						WithDetails(map[string]any{"product": token}))
					return
				}
				products = append(products, resolved)
				continue
			}
			// Unrecognized tokens pass through so callers may use real
			// product ids directly.
			products = append(products, token)
		}

		session, err := client.CreateCheckoutSession(ctx, polar.CheckoutParams{
			Products:   products,
			SuccessURL: publicURL + "/dashboard?checkoutId={CHECKOUT_ID}",
			ReturnURL:  publicURL + "/checkout/error",
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		http.Redirect(w, r, session.URL, http.StatusFound)
	}
}
