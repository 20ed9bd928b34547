package assistant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(baseURL string) *ChatClient {
	return &ChatClient{
		httpClient:   &http.Client{Timeout: 5 * time.Second},
		baseURL:      baseURL,
		apiKey:       "test-key",
		modelID:      defaultModelID,
		systemPrompt: defaultSystemPrompt,
	}
}

func TestSendMessage(t *testing.T) {
	var captured chatCompletionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  相声讲究说学逗唱。  "}}]}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	reply, err := client.SendMessage(context.Background(), "相声有什么特点？", []ChatMessage{
		{Role: "user", Content: "你好"},
		{Role: "assistant", Content: "你好，想了解什么？"},
	})
	require.NoError(t, err)
	assert.Equal(t, "相声讲究说学逗唱。", reply)

	assert.Equal(t, defaultModelID, captured.Model)
	assert.Equal(t, defaultTemperature, captured.Temperature)
	assert.Equal(t, defaultMaxTokens, captured.MaxTokens)
	assert.False(t, captured.Stream)

	require.Len(t, captured.Messages, 4)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Equal(t, defaultSystemPrompt, captured.Messages[0].Content)
	assert.Equal(t, "相声有什么特点？", captured.Messages[3].Content)
}

func TestSendMessageRejectsEmpty(t *testing.T) {
	client := newTestClient("http://localhost:0")
	_, err := client.SendMessage(context.Background(), "   ", nil)
	require.Error(t, err)
}

func TestSendMessageUpstreamFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.SendMessage(context.Background(), "你好", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status")
}

func TestSendMessageNoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.SendMessage(context.Background(), "你好", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}

func TestSendMessageStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)

		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(`data: {"choices":[{"delta":{"content":"评书"}}]}` + "\n\n"))
		_, _ = w.Write([]byte(": keep-alive\n\n"))
		_, _ = w.Write([]byte(`data: {"choices":[{"delta":{"content":"的特点"},"finish_reason":"stop"}]}` + "\n\n"))
		_, _ = w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	var deltas []string
	var done bool
	reply, err := client.SendMessageStream(context.Background(), "介绍评书", nil, func(delta ChatStreamDelta) error {
		if delta.Done {
			done = true
			return nil
		}
		if delta.Content != "" {
			deltas = append(deltas, delta.Content)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "评书的特点", reply)
	assert.Equal(t, []string{"评书", "的特点"}, deltas)
	assert.True(t, done)
}

func TestAssembleMessagesSkipsBlankTurns(t *testing.T) {
	client := newTestClient("http://localhost:0")

	messages := client.assembleMessages("新问题", []ChatMessage{
		{Role: "", Content: "没写角色"},
		{Role: "assistant", Content: "   "},
		{Role: "assistant", Content: "回答"},
	})

	require.Len(t, messages, 4)
	assert.Equal(t, "system", messages[0].Role)
	assert.Equal(t, "user", messages[1].Role)
	assert.Equal(t, "没写角色", messages[1].Content)
	assert.Equal(t, "回答", messages[2].Content)
	assert.Equal(t, "新问题", messages[3].Content)
}
