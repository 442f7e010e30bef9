package vapi

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/skylarhq/agentdesk-backend/pkg/config"
	"github.com/stretchr/testify/require"
)

func TestStreamChatForwardsDeltas(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat", r.URL.Path)
		require.Equal(t, "Bearer key-123", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"delta\":\"Hel\"}\n\n")
		fmt.Fprint(w, "\n")
		fmt.Fprint(w, "data: {\"delta\":\"lo\"}\n\n")
		fmt.Fprint(w, "data: {\"output\":\"!\"}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client := NewClient(config.VapiConfig{BaseURL: server.URL})

	var got strings.Builder
	err := client.StreamChat(context.Background(), "key-123", "asst_1", "hi", func(delta string) error {
		got.WriteString(delta)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, "Hello!", got.String())
}

func TestStreamChatStopsOnDoneEvent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"delta\":\"a\"}\n")
		fmt.Fprint(w, "data: {\"done\":true}\n")
		fmt.Fprint(w, "data: {\"delta\":\"never\"}\n")
	}))
	defer server.Close()

	client := NewClient(config.VapiConfig{BaseURL: server.URL})

	var got strings.Builder
	err := client.StreamChat(context.Background(), "k", "a", "m", func(delta string) error {
		got.WriteString(delta)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, "a", got.String())
}

func TestStreamChatUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":"bad key"}`)
	}))
	defer server.Close()

	client := NewClient(config.VapiConfig{BaseURL: server.URL})
	err := client.StreamChat(context.Background(), "bad", "a", "m", func(string) error { return nil })
	require.Error(t, err)
}

func TestStreamChatValidatesInput(t *testing.T) {
	client := NewClient(config.VapiConfig{})
	require.Error(t, client.StreamChat(context.Background(), "", "a", "m", nil))
	require.Error(t, client.StreamChat(context.Background(), "k", "", "m", nil))
}
