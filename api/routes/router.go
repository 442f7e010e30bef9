package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/skylarhq/agentdesk-backend/api/controllers"
	webhookcontrollers "github.com/skylarhq/agentdesk-backend/api/controllers/webhooks"
	"github.com/skylarhq/agentdesk-backend/api/middleware"
	"github.com/skylarhq/agentdesk-backend/internal/billing"
	polarwebhook "github.com/skylarhq/agentdesk-backend/internal/webhooks/polar"
	"github.com/skylarhq/agentdesk-backend/pkg/config"
	"github.com/skylarhq/agentdesk-backend/pkg/fal"
	"github.com/skylarhq/agentdesk-backend/pkg/logger"
	"github.com/skylarhq/agentdesk-backend/pkg/metrics"
	"github.com/skylarhq/agentdesk-backend/pkg/openrouter"
	"github.com/skylarhq/agentdesk-backend/pkg/polar"
	"github.com/skylarhq/agentdesk-backend/pkg/vapi"
)

// RouterParams wires every dependency the HTTP surface needs. Optional
// relays (OpenRouter, Fal) may be nil when their keys are not configured;
// their routes then respond with a misconfiguration error.
type RouterParams struct {
	Config         *config.Config
	Logger         *logger.Logger
	Metrics        *metrics.APIMetrics
	MetricsHandler http.Handler
	Pingers        []controllers.HealthPinger

	Billing        billing.Service
	PolarClient    *polar.Client
	WebhookService *polarwebhook.Service
	VapiClient     *vapi.Client
	OpenRouter     *openrouter.Client
	Fal            *fal.Client
}

func NewRouter(params RouterParams) http.Handler {
	cfg := params.Config
	logg := params.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.PublicURL),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, params.Pingers...))
	})

	if params.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", params.MetricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/webhooks/polar", webhookcontrollers.PolarWebhook(webhookServiceOrNil(params.WebhookService), secretProviderOrNil(params.PolarClient), logg))
		r.Get("/checkout", controllers.Checkout(cfg, checkoutClientOrNil(params.PolarClient), logg))
		r.Post("/chat", controllers.Chat(params.VapiClient, logg, params.Metrics))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))
			r.Post("/chat-routed", controllers.ChatRouted(routedClientOrNil(params.OpenRouter), logg, params.Metrics))
			r.Post("/image", controllers.Image(imageClientOrNil(params.Fal), params.Billing, logg, params.Metrics))
			r.Get("/billing/plan", controllers.CurrentPlan(params.Billing, logg))
		})
	})

	return r
}

// The nil-or-client helpers keep typed nils out of the controllers'
// interface values so their nil checks work.

func webhookServiceOrNil(svc *polarwebhook.Service) webhookcontrollers.PolarWebhookService {
	if svc == nil {
		return nil
	}
	return svc
}

type secretProvider interface {
	SigningSecret() string
}

func secretProviderOrNil(client *polar.Client) secretProvider {
	if client == nil {
		return nil
	}
	return client
}

type checkoutClient interface {
	CreateCheckoutSession(ctx context.Context, params polar.CheckoutParams) (*polar.CheckoutSession, error)
}

func checkoutClientOrNil(client *polar.Client) checkoutClient {
	if client == nil {
		return nil
	}
	return client
}

type routedClient interface {
	StreamChatCompletion(ctx context.Context, messages []openrouter.Message) (*openrouter.Stream, error)
}

func routedClientOrNil(client *openrouter.Client) routedClient {
	if client == nil {
		return nil
	}
	return client
}

type imageClient interface {
	GenerateImage(ctx context.Context, params fal.GenerateParams) (*fal.Image, error)
}

func imageClientOrNil(client *fal.Client) imageClient {
	if client == nil {
		return nil
	}
	return client
}
