package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/skylarhq/agentdesk-backend/pkg/config"
	pkgerrors "github.com/skylarhq/agentdesk-backend/pkg/errors"
)

var errAPIKeyRequired = errors.New("openrouter api key is required")

// Client calls the OpenRouter chat-completions API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

// NewClient validates the key and builds a client for the configured model.
func NewClient(cfg config.OpenRouterConfig) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errAPIKeyRequired
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://openrouter.ai/api"
	}
	model := cfg.Model
	if model == "" {
		model = "openai/gpt-oss-20b:free"
	}
	return &Client{
		httpClient: &http.Client{},
		baseURL:    base,
		apiKey:     cfg.APIKey,
		model:      model,
	}, nil
}

// Message is a single turn in the model conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	Temperature float64   `json:"temperature,omitempty"`
}

// Stream holds the provider's SSE body for pass-through relaying.
type Stream struct {
	Body        io.ReadCloser
	ContentType string
}

// StreamChatCompletion starts a streaming completion and hands back the raw
// SSE body; the caller relays it unmodified. The upstream request inherits
// ctx so a client disconnect cancels it.
func (c *Client) StreamChatCompletion(ctx context.Context, messages []Message) (*Stream, error) {
	if len(messages) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "messages are required")
	}

	body, err := json.Marshal(completionRequest{
		Model:       c.model,
		Messages:    messages,
		Stream:      true,
		Temperature: 0.7,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode completion request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build completion request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "call completion upstream")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		resp.Body.Close()
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "completion upstream error").
			WithDetails(map[string]any{"status": resp.StatusCode, "body": string(respBody)})
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/event-stream"
	}
	return &Stream{Body: resp.Body, ContentType: contentType}, nil
}
