package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/skylarhq/agentdesk-backend/api/responses"
	polarwebhook "github.com/skylarhq/agentdesk-backend/internal/webhooks/polar"
	pkgerrors "github.com/skylarhq/agentdesk-backend/pkg/errors"
	"github.com/skylarhq/agentdesk-backend/pkg/logger"
	"github.com/skylarhq/agentdesk-backend/pkg/polar"
)

const maxWebhookBodyBytes = 1 << 20

type PolarWebhookService interface {
	HandleEvent(ctx context.Context, eventID string, event *polarwebhook.Event) error
}

type signingSecretProvider interface {
	SigningSecret() string
}

// PolarWebhook verifies standard-webhooks signatures and hands the event to
// the dispatcher. The processor only sees a failure when the subscription
// state could not be applied, so it redelivers exactly those events.
func PolarWebhook(svc PolarWebhookService, client signingSecretProvider, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil || client == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "read request body"))
			return
		}

		msgID := r.Header.Get("webhook-id")
		timestamp := r.Header.Get("webhook-timestamp")
		signature := r.Header.Get("webhook-signature")

		if !polar.WebhookTimestampFresh(timestamp, time.Now(), polar.DefaultWebhookTolerance) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "webhook timestamp outside tolerance"))
			return
		}
		if !polar.VerifyWebhookSignature(client.SigningSecret(), msgID, timestamp, payload, signature) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook signature"))
			return
		}

		var event polarwebhook.Event
		if err := json.Unmarshal(payload, &event); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode webhook payload"))
			return
		}

		if err := svc.HandleEvent(ctx, msgID, &event); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, nil)
	}
}
