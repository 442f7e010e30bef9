package controllers

import (
	"net/http"

	"github.com/skylarhq/agentdesk-backend/api/middleware"
	"github.com/skylarhq/agentdesk-backend/api/responses"
	pkgerrors "github.com/skylarhq/agentdesk-backend/pkg/errors"
	"github.com/skylarhq/agentdesk-backend/pkg/logger"
)

// CurrentPlan returns the authenticated user's entitlement view. The
// resolver itself never fails; unknown users just see the Free plan.
func CurrentPlan(plans planResolver, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		userID := middleware.UserIDFromContext(ctx)
		if userID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}
		responses.WriteSuccess(w, plans.ResolveCurrentPlan(ctx, userID))
	}
}
