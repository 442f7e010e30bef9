package vapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/skylarhq/agentdesk-backend/pkg/config"
	pkgerrors "github.com/skylarhq/agentdesk-backend/pkg/errors"
)

// Client talks to the Vapi chat API. The API key is supplied per request by
// the caller, not held by the server.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient builds a Vapi client against the configured base URL.
func NewClient(cfg config.VapiConfig) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://api.vapi.ai"
	}
	return &Client{
		// No overall timeout: chat streams are open-ended and are bounded
		// by the request context instead.
		httpClient: &http.Client{},
		baseURL:    base,
	}
}

type chatRequest struct {
	AssistantID string `json:"assistantId"`
	Input       string `json:"input"`
	Stream      bool   `json:"stream"`
}

// streamEvent is the subset of the upstream SSE payload the relay consumes.
type streamEvent struct {
	Delta  string `json:"delta"`
	Output string `json:"output"`
	Done   bool   `json:"done"`
}

// StreamChat opens a streaming chat with the assistant and invokes fn for
// every incremental text delta. The upstream call is bound to ctx so a
// client disconnect tears the stream down promptly.
func (c *Client) StreamChat(ctx context.Context, apiKey, assistantID, message string, fn func(delta string) error) error {
	if apiKey == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "api key is required")
	}
	if assistantID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "assistant id is required")
	}

	body, err := json.Marshal(chatRequest{
		AssistantID: assistantID,
		Input:       message,
		Stream:      true,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode chat request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat", bytes.NewReader(body))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build chat request")
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "call chat upstream")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return pkgerrors.New(pkgerrors.CodeInternal, "chat upstream error").
			WithDetails(map[string]any{"status": resp.StatusCode, "body": string(respBody)})
	}

	return scanStream(resp.Body, fn)
}

// scanStream walks newline-delimited "data: {...}" frames, forwarding each
// text delta until the stream ends or fn returns an error.
func scanStream(r io.Reader, fn func(delta string) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" || payload == "[DONE]" {
			continue
		}

		var event streamEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			// Skip malformed keep-alive frames rather than killing the stream.
			continue
		}
		if event.Done {
			break
		}
		delta := event.Delta
		if delta == "" {
			delta = event.Output
		}
		if delta == "" {
			continue
		}
		if err := fn(delta); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("read chat stream: %w", err)
	}
	return nil
}
