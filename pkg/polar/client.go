package polar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/skylarhq/agentdesk-backend/pkg/config"
	pkgerrors "github.com/skylarhq/agentdesk-backend/pkg/errors"
	"github.com/skylarhq/agentdesk-backend/pkg/logger"
)

var (
	errAccessTokenRequired   = errors.New("polar access token is required")
	errWebhookSecretRequired = errors.New("polar webhook secret is required")
	errLoggerRequired        = errors.New("polar logger is required")
)

var baseURLs = map[string]string{
	config.PolarEnvSandbox:    "https://sandbox-api.polar.sh",
	config.PolarEnvProduction: "https://api.polar.sh",
}

// Client exposes Polar primitives with centralized auth, logging, and error
// mapping.
type Client struct {
	httpClient    *http.Client
	accessToken   string
	environment   string
	webhookSecret string
	baseURL       string
	logger        *logger.Logger
}

// NewClient initializes the Polar wrapper and validates the credentials.
func NewClient(ctx context.Context, cfg config.PolarConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}

	accessToken := strings.TrimSpace(cfg.AccessToken)
	if accessToken == "" {
		return nil, errAccessTokenRequired
	}
	webhookSecret := strings.TrimSpace(cfg.WebhookSecret)
	if webhookSecret == "" {
		return nil, errWebhookSecretRequired
	}

	env := cfg.Environment()
	baseURL, ok := baseURLs[env]
	if !ok {
		return nil, fmt.Errorf("polar environment must be %q or %q", config.PolarEnvSandbox, config.PolarEnvProduction)
	}

	c := &Client{
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		accessToken:   accessToken,
		environment:   env,
		webhookSecret: webhookSecret,
		baseURL:       baseURL,
		logger:        logg,
	}

	logg.Info(ctx, "polar client initialized")
	return c, nil
}

// Environment reports the normalized Polar environment.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// SigningSecret returns the webhook signing secret.
func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.webhookSecret
}

// CheckoutParams configures a hosted checkout session.
type CheckoutParams struct {
	Products   []string `json:"products"`
	SuccessURL string   `json:"success_url,omitempty"`
	ReturnURL  string   `json:"return_url,omitempty"`
}

// CheckoutSession is the subset of the checkout resource the API consumes.
type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// CreateCheckoutSession opens a hosted checkout and returns the redirect URL.
func (c *Client) CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error) {
	if len(params.Products) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one product is required")
	}

	body, err := json.Marshal(params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode checkout params")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/checkouts/", bytes.NewReader(body))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build checkout request")
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create checkout session")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Full upstream context goes to the log; the caller sees a
		// generic failure.
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		ctx = c.logger.WithFields(ctx, map[string]any{
			"status": resp.StatusCode,
			"body":   string(respBody),
		})
		c.logger.Error(ctx, "polar checkout returned unexpected status", nil)
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "unexpected response from checkout provider")
	}

	var session CheckoutSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode checkout session")
	}
	if session.URL == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "checkout session missing redirect url")
	}
	return &session, nil
}
