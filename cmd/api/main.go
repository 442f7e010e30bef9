package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skylarhq/agentdesk-backend/api/controllers"
	"github.com/skylarhq/agentdesk-backend/api/routes"
	"github.com/skylarhq/agentdesk-backend/internal/billing"
	"github.com/skylarhq/agentdesk-backend/internal/mailer"
	polarwebhook "github.com/skylarhq/agentdesk-backend/internal/webhooks/polar"
	"github.com/skylarhq/agentdesk-backend/pkg/config"
	"github.com/skylarhq/agentdesk-backend/pkg/db"
	"github.com/skylarhq/agentdesk-backend/pkg/fal"
	"github.com/skylarhq/agentdesk-backend/pkg/logger"
	"github.com/skylarhq/agentdesk-backend/pkg/metrics"
	"github.com/skylarhq/agentdesk-backend/pkg/openrouter"
	"github.com/skylarhq/agentdesk-backend/pkg/polar"
	"github.com/skylarhq/agentdesk-backend/pkg/redis"
	"github.com/skylarhq/agentdesk-backend/pkg/vapi"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "agentdesk"})
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(ctx, "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "agentdesk",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	apiMetrics := metrics.NewAPIMetrics(registry)

	var pingers []controllers.HealthPinger

	billingRepo := billing.Repository(billing.NewMemoryRepository())
	if cfg.FeatureFlags.DurableBilling {
		dbClient, err := db.New(ctx, cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap database", err)
			os.Exit(1)
		}
		defer func() {
			if err := dbClient.Close(); err != nil {
				logg.Error(ctx, "error closing database", err)
			}
		}()
		if cfg.FeatureFlags.AutoMigrate || cfg.FeatureFlags.UseSQLite {
			if err := dbClient.AutoMigrate(ctx, &billing.UserSubscription{}); err != nil {
				logg.Error(ctx, "failed to migrate billing schema", err)
				os.Exit(1)
			}
		}
		billingRepo = billing.NewGormRepository(dbClient.DB())
		pingers = append(pingers, controllers.HealthPinger{Name: "database", Ping: dbClient.Ping})
	}

	billingSvc, err := billing.NewService(billing.ServiceParams{
		Repo:   billingRepo,
		Plans:  billing.NewPlanCatalog(cfg.Polar.ProductIDMonthly, cfg.Polar.ProductIDOnetime),
		Logger: logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create billing service", err)
		os.Exit(1)
	}

	var webhookGuard *polarwebhook.IdempotencyGuard
	if cfg.Redis.Enabled() {
		redisClient, err := redis.New(ctx, cfg.Redis)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(ctx, "error closing redis", err)
			}
		}()
		webhookGuard, err = polarwebhook.NewIdempotencyGuard(redisClient, polarwebhook.DefaultIdempotencyTTL, "polar")
		if err != nil {
			logg.Error(ctx, "failed to create idempotency guard", err)
			os.Exit(1)
		}
		pingers = append(pingers, controllers.HealthPinger{Name: "redis", Ping: redisClient.Ping})
	}

	polarClient, err := polar.NewClient(ctx, cfg.Polar, logg)
	if err != nil {
		logg.Error(ctx, "failed to create polar client", err)
		os.Exit(1)
	}

	mailerSvc, err := mailer.NewService(mailer.ServiceParams{
		Emails:    mailer.NewResendSender(cfg.Email.ResendAPIKey),
		FromEmail: cfg.Email.FromEmail,
		FromName:  cfg.Email.FromName,
		AccessURL: cfg.Email.AccessURL,
		Logger:    logg,
		Metrics:   apiMetrics,
	})
	if err != nil {
		logg.Error(ctx, "failed to create mailer", err)
		os.Exit(1)
	}

	webhookSvc, err := polarwebhook.NewService(polarwebhook.ServiceParams{
		Billing: billingSvc,
		Mailer:  mailerSvc,
		Guard:   webhookGuard,
		Logger:  logg,
		Metrics: apiMetrics,
	})
	if err != nil {
		logg.Error(ctx, "failed to create webhook service", err)
		os.Exit(1)
	}

	var openRouterClient *openrouter.Client
	if cfg.OpenRouter.APIKey != "" {
		openRouterClient, err = openrouter.NewClient(cfg.OpenRouter)
		if err != nil {
			logg.Error(ctx, "failed to create openrouter client", err)
			os.Exit(1)
		}
	}

	var falClient *fal.Client
	if cfg.Fal.APIKey != "" {
		falClient, err = fal.NewClient(cfg.Fal)
		if err != nil {
			logg.Error(ctx, "failed to create fal client", err)
			os.Exit(1)
		}
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx = logg.WithFields(ctx, map[string]any{
		"env":       cfg.App.Env,
		"addr":      addr,
		"polar_env": polarClient.Environment(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:         cfg,
			Logger:         logg,
			Metrics:        apiMetrics,
			MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
			Pingers:        pingers,
			Billing:        billingSvc,
			PolarClient:    polarClient,
			WebhookService: webhookSvc,
			VapiClient:     vapi.NewClient(cfg.Vapi),
			OpenRouter:     openRouterClient,
			Fal:            falClient,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
