package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAIChatSendsConversation(t *testing.T) {
	var got ollamaChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"tinyllama","message":{"role":"assistant","content":"  Use a bar chart. "},"done":true}`))
	}))
	defer srv.Close()

	ai := NewAIService(AIConfig{BaseURL: srv.URL, Model: "tinyllama", Timeout: time.Second})
	reply, err := ai.Chat(context.Background(), []ChatMessage{
		{Role: "system", Content: BuildSystemPrompt(2, 3)},
		{Role: "user", Content: "How should I show sales?"},
	})
	require.NoError(t, err)

	assert.Equal(t, "Use a bar chart.", reply)
	assert.Equal(t, "tinyllama", got.Model)
	assert.False(t, got.Stream)
	require.Len(t, got.Messages, 2)
	assert.Contains(t, got.Messages[0].Content, "- 2 data files")
	assert.Contains(t, got.Messages[0].Content, "- 3 charts/dashboards")
}

func TestAIChatErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model not found"}`))
	}))
	defer srv.Close()

	ai := NewAIService(AIConfig{BaseURL: srv.URL, Timeout: time.Second})
	_, err := ai.Chat(context.Background(), []ChatMessage{{Role: "user", Content: "hi"}})
	require.ErrorIs(t, err, ErrAIUnavailable)
	assert.Contains(t, err.Error(), "model not found")
}

func TestAIChatEmptyReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"done":true}`))
	}))
	defer srv.Close()

	ai := NewAIService(AIConfig{BaseURL: srv.URL, Timeout: time.Second})
	_, err := ai.Chat(context.Background(), []ChatMessage{{Role: "user", Content: "hi"}})
	assert.ErrorIs(t, err, ErrAIUnexpectedBody)
}

func TestAIBreakerOpensAfterRepeatedFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ai := NewAIService(AIConfig{
		BaseURL:          srv.URL,
		Timeout:          time.Second,
		FailureThreshold: 2,
		OpenTimeout:      time.Minute,
	})
	msgs := []ChatMessage{{Role: "user", Content: "hi"}}
	for range 2 {
		_, err := ai.Chat(context.Background(), msgs)
		require.ErrorIs(t, err, ErrAIUnavailable)
	}

	_, err := ai.Chat(context.Background(), msgs)
	require.ErrorIs(t, err, ErrAIUnavailable)
	assert.Equal(t, int32(2), calls.Load())
}
