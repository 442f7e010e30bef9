package fal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/skylarhq/agentdesk-backend/pkg/config"
	pkgerrors "github.com/skylarhq/agentdesk-backend/pkg/errors"
)

var errAPIKeyRequired = errors.New("fal api key is required")

// Client runs synchronous image generations against fal.run.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

// NewClient validates the key and builds a client for the configured model.
func NewClient(cfg config.FalConfig) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errAPIKeyRequired
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://fal.run"
	}
	model := strings.Trim(cfg.Model, "/")
	if model == "" {
		model = "fal-ai/flux/dev"
	}
	return &Client{
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		baseURL:    base,
		apiKey:     cfg.APIKey,
		model:      model,
	}, nil
}

// GenerateParams configures a single image generation.
type GenerateParams struct {
	Prompt         string
	NegativePrompt string
	Width          int
	Height         int
}

type generateRequest struct {
	Prompt         string    `json:"prompt"`
	NegativePrompt string    `json:"negative_prompt,omitempty"`
	ImageSize      imageSize `json:"image_size"`
}

type imageSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Image is one generated result. Depending on the model the provider returns
// a hosted URL, a file reference, or inline bytes.
type Image struct {
	URL         string `json:"url,omitempty"`
	File        string `json:"file,omitempty"`
	Data        []byte `json:"data,omitempty"`
	ContentType string `json:"content_type,omitempty"`
}

type generateResponse struct {
	Images []Image `json:"images"`
}

// GenerateImage runs one synchronous generation and returns the first image.
func (c *Client) GenerateImage(ctx context.Context, params GenerateParams) (*Image, error) {
	if strings.TrimSpace(params.Prompt) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "prompt is required")
	}

	width, height := params.Width, params.Height
	if width <= 0 {
		width = 1024
	}
	if height <= 0 {
		height = 1024
	}

	body, err := json.Marshal(generateRequest{
		Prompt:         params.Prompt,
		NegativePrompt: params.NegativePrompt,
		ImageSize:      imageSize{Width: width, Height: height},
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode generate request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+c.model, bytes.NewReader(body))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build generate request")
	}
	req.Header.Set("Authorization", "Key "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "call image upstream")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "image upstream error").
			WithDetails(map[string]any{"status": resp.StatusCode, "body": string(respBody)})
	}

	var result generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode generate response")
	}
	if len(result.Images) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "no image was generated")
	}
	return &result.Images[0], nil
}
