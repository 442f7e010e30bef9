package controllers

import (
	"context"
	"net/http"

	"github.com/skylarhq/agentdesk-backend/api/responses"
	"github.com/skylarhq/agentdesk-backend/pkg/config"
	pkgerrors "github.com/skylarhq/agentdesk-backend/pkg/errors"
	"github.com/skylarhq/agentdesk-backend/pkg/logger"
	"go.uber.org/multierr"
)

// HealthPinger is one named dependency checked by the readiness probe.
type HealthPinger struct {
	Name string
	Ping func(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-AgentDesk-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every registered dependency and aggregates failures so
// an unhealthy pod reports all broken dependencies at once.
func HealthReady(cfg *config.Config, logg *logger.Logger, pingers ...HealthPinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-AgentDesk-Env", cfg.App.Env)

		var err error
		for _, pinger := range pingers {
			if pinger.Ping == nil {
				continue
			}
			if pingErr := pinger.Ping(r.Context()); pingErr != nil {
				err = multierr.Append(err, pkgerrors.Wrap(pkgerrors.CodeDependency, pingErr, pinger.Name+" unavailable"))
			}
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "readiness check failed"))
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
