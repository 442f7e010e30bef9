package controllers

import (
	"context"
	"encoding/base64"
	"net/http"

	"github.com/skylarhq/agentdesk-backend/api/middleware"
	"github.com/skylarhq/agentdesk-backend/api/responses"
	"github.com/skylarhq/agentdesk-backend/api/validators"
	"github.com/skylarhq/agentdesk-backend/internal/billing"
	pkgerrors "github.com/skylarhq/agentdesk-backend/pkg/errors"
	"github.com/skylarhq/agentdesk-backend/pkg/fal"
	"github.com/skylarhq/agentdesk-backend/pkg/logger"
	"github.com/skylarhq/agentdesk-backend/pkg/metrics"
)

type imageGenerator interface {
	GenerateImage(ctx context.Context, params fal.GenerateParams) (*fal.Image, error)
}

type planResolver interface {
	ResolveCurrentPlan(ctx context.Context, userID string) billing.PlanView
}

type imageRequest struct {
	Prompt         string     `json:"prompt" validate:"required"`
	NegativePrompt string     `json:"negative_prompt"`
	Size           *imageSize `json:"size"`
}

type imageSize struct {
	Width  int `json:"width" validate:"omitempty,min=1,max=4096"`
	Height int `json:"height" validate:"omitempty,min=1,max=4096"`
}

type imageResponse struct {
	ImageURL string `json:"imageUrl"`
	MimeType string `json:"mimeType,omitempty"`
}

// Image gates generation behind an active plan, forwards the prompt to the
// image provider, and normalizes the provider's result shapes into a single
// URL. Raw bytes become a data URI so the client always gets something it
// can render directly.
func Image(generator imageGenerator, plans planResolver, logg *logger.Logger, apiMetrics *metrics.APIMetrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if generator == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeMisconfigured, "image generation is not configured"))
			return
		}

		userID := middleware.UserIDFromContext(ctx)
		if userID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}
		if !plans.ResolveCurrentPlan(ctx, userID).HasSubscription {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodePaymentRequired, "active subscription required"))
			return
		}

		var req imageRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		params := fal.GenerateParams{
			Prompt:         req.Prompt,
			NegativePrompt: req.NegativePrompt,
		}
		if req.Size != nil {
			params.Width = req.Size.Width
			params.Height = req.Size.Height
		}

		image, err := generator.GenerateImage(ctx, params)
		if err != nil {
			apiMetrics.IncRelayStream("fal", "failed")
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := normalizeImage(image)
		if err != nil {
			apiMetrics.IncRelayStream("fal", "failed")
			responses.WriteError(ctx, logg, w, err)
			return
		}
		apiMetrics.IncRelayStream("fal", "completed")
		responses.WriteSuccess(w, result)
	}
}

// normalizeImage flattens the provider's url/file/bytes variants into one
// imageUrl shape.
func normalizeImage(image *fal.Image) (*imageResponse, error) {
	if image == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "no image was generated")
	}

	mimeType := image.ContentType
	switch {
	case image.URL != "":
		return &imageResponse{ImageURL: image.URL, MimeType: mimeType}, nil
	case image.File != "":
		return &imageResponse{ImageURL: image.File, MimeType: mimeType}, nil
	case len(image.Data) > 0:
		if mimeType == "" {
			mimeType = "image/png"
		}
		encoded := base64.StdEncoding.EncodeToString(image.Data)
		return &imageResponse{
			ImageURL: "data:" + mimeType + ";base64," + encoded,
			MimeType: mimeType,
		}, nil
	default:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "image result has no content")
	}
}
