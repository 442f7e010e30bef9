package controllers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/skylarhq/agentdesk-backend/api/responses"
	"github.com/skylarhq/agentdesk-backend/api/validators"
	pkgerrors "github.com/skylarhq/agentdesk-backend/pkg/errors"
	"github.com/skylarhq/agentdesk-backend/pkg/logger"
	"github.com/skylarhq/agentdesk-backend/pkg/metrics"
	"github.com/skylarhq/agentdesk-backend/pkg/openrouter"
)

type assistantChatClient interface {
	StreamChat(ctx context.Context, apiKey, assistantID, message string, fn func(delta string) error) error
}

type routedChatClient interface {
	StreamChatCompletion(ctx context.Context, messages []openrouter.Message) (*openrouter.Stream, error)
}

type chatRequest struct {
	Message     string `json:"message" validate:"required"`
	APIKey      string `json:"apiKey" validate:"required"`
	AssistantID string `json:"assistantId" validate:"required"`
}

type chatDeltaFrame struct {
	Delta string `json:"delta"`
}

// Chat relays one assistant conversation turn as SSE-style delta frames.
// Each upstream text delta becomes one "data: {\"delta\": ...}\n" frame;
// the client accumulates them. The upstream call inherits the request
// context, so a client disconnect tears the upstream stream down.
func Chat(client assistantChatClient, logg *logger.Logger, apiMetrics *metrics.APIMetrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req chatRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "streaming unsupported"))
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		started := false
		err := client.StreamChat(ctx, req.APIKey, req.AssistantID, req.Message, func(delta string) error {
			frame, marshalErr := json.Marshal(chatDeltaFrame{Delta: delta})
			if marshalErr != nil {
				return marshalErr
			}
			started = true
			if _, writeErr := fmt.Fprintf(w, "data: %s\n", frame); writeErr != nil {
				return writeErr
			}
			flusher.Flush()
			return nil
		})
		if err != nil {
			apiMetrics.IncRelayStream("vapi", "failed")
			if !started {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			// Headers are gone; the dropped stream is the only signal the
			// client gets.
			logg.Error(ctx, "assistant stream aborted", err)
			return
		}
		apiMetrics.IncRelayStream("vapi", "completed")
	}
}

type routedChatRequest struct {
	Messages []openrouter.Message `json:"messages" validate:"required,min=1"`
}

// ChatRouted relays a structured conversation through the model-routing
// provider and passes its native stream framing through unmodified.
func ChatRouted(client routedChatClient, logg *logger.Logger, apiMetrics *metrics.APIMetrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if client == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeMisconfigured, "routed chat is not configured"))
			return
		}

		var req routedChatRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		for _, msg := range req.Messages {
			if msg.Role == "" || msg.Content == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "messages must have role and content"))
				return
			}
		}

		stream, err := client.StreamChatCompletion(ctx, req.Messages)
		if err != nil {
			apiMetrics.IncRelayStream("openrouter", "failed")
			responses.WriteError(ctx, logg, w, err)
			return
		}
		defer stream.Body.Close()

		w.Header().Set("Content-Type", stream.ContentType)
		w.Header().Set("Cache-Control", "no-cache")

		if _, err := io.Copy(newFlushWriter(w), stream.Body); err != nil {
			apiMetrics.IncRelayStream("openrouter", "failed")
			logg.Error(ctx, "routed chat stream aborted", err)
			return
		}
		apiMetrics.IncRelayStream("openrouter", "completed")
	}
}

// flushWriter flushes after every chunk so frames reach the client as they
// arrive instead of sitting in the response buffer.
type flushWriter struct {
	w       io.Writer
	flusher http.Flusher
}

func newFlushWriter(w http.ResponseWriter) io.Writer {
	flusher, _ := w.(http.Flusher)
	return &flushWriter{w: w, flusher: flusher}
}

func (fw *flushWriter) Write(p []byte) (int, error) {
	n, err := fw.w.Write(p)
	if fw.flusher != nil {
		fw.flusher.Flush()
	}
	return n, err
}
