package controllers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	pkgerrors "github.com/skylarhq/agentdesk-backend/pkg/errors"
	"github.com/skylarhq/agentdesk-backend/pkg/openrouter"
	"github.com/stretchr/testify/require"
)

type stubAssistantClient struct {
	deltas  []string
	err     error
	gotKey  string
	gotID   string
	gotText string
}

func (s *stubAssistantClient) StreamChat(_ context.Context, apiKey, assistantID, message string, fn func(delta string) error) error {
	s.gotKey, s.gotID, s.gotText = apiKey, assistantID, message
	if s.err != nil {
		return s.err
	}
	for _, delta := range s.deltas {
		if err := fn(delta); err != nil {
			return err
		}
	}
	return nil
}

type stubRoutedClient struct {
	body string
	err  error
}

func (s *stubRoutedClient) StreamChatCompletion(context.Context, []openrouter.Message) (*openrouter.Stream, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &openrouter.Stream{
		Body:        io.NopCloser(strings.NewReader(s.body)),
		ContentType: "text/event-stream",
	}, nil
}

func TestChatStreamsDeltaFrames(t *testing.T) {
	client := &stubAssistantClient{deltas: []string{"Hel", "lo"}}
	handler := Chat(client, testLogger(), nil)

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(
		`{"message":"hi","apiKey":"key-1","assistantId":"asst-1"}`,
	))
	rec := httptest.NewRecorder()
	handler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	require.Equal(t, "data: {\"delta\":\"Hel\"}\ndata: {\"delta\":\"lo\"}\n", rec.Body.String())
	require.Equal(t, "key-1", client.gotKey)
	require.Equal(t, "asst-1", client.gotID)
	require.Equal(t, "hi", client.gotText)
}

func TestChatRejectsMissingFields(t *testing.T) {
	handler := Chat(&stubAssistantClient{}, testLogger(), nil)

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"hi"}`))
	rec := httptest.NewRecorder()
	handler(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatUpstreamFailureBeforeStream(t *testing.T) {
	client := &stubAssistantClient{err: pkgerrors.New(pkgerrors.CodeInternal, "chat upstream error")}
	handler := Chat(client, testLogger(), nil)

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(
		`{"message":"hi","apiKey":"key-1","assistantId":"asst-1"}`,
	))
	rec := httptest.NewRecorder()
	handler(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestChatRoutedPassesStreamThrough(t *testing.T) {
	client := &stubRoutedClient{body: "data: {\"choices\":[]}\n\ndata: [DONE]\n\n"}
	handler := ChatRouted(client, testLogger(), nil)

	req := httptest.NewRequest(http.MethodPost, "/chat-routed", strings.NewReader(
		`{"messages":[{"role":"user","content":"hi"}]}`,
	))
	rec := httptest.NewRecorder()
	handler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	require.Equal(t, client.body, rec.Body.String())
}

func TestChatRoutedRejectsEmptyMessages(t *testing.T) {
	handler := ChatRouted(&stubRoutedClient{}, testLogger(), nil)

	req := httptest.NewRequest(http.MethodPost, "/chat-routed", strings.NewReader(`{"messages":[]}`))
	rec := httptest.NewRecorder()
	handler(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatRoutedRejectsMalformedMessage(t *testing.T) {
	handler := ChatRouted(&stubRoutedClient{}, testLogger(), nil)

	req := httptest.NewRequest(http.MethodPost, "/chat-routed", strings.NewReader(
		`{"messages":[{"role":"user"}]}`,
	))
	rec := httptest.NewRecorder()
	handler(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}
