package assistant

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.deepseek.com/v1"
	defaultModelID = "deepseek-chat"

	defaultTemperature = 0.7
	defaultMaxTokens   = 1000
)

// defaultSystemPrompt 是曲艺文化助手的固定人设提示词。
const defaultSystemPrompt = `你是一个曲艺文化助手，专门帮助用户了解中国传统文化和曲艺知识。
请用简洁、友好的语言回答用户关于曲艺、传统文化的问题。
重点介绍相声、评书、京剧等传统艺术形式的历史、特点、代表人物。
如果用户的问题超出曲艺范围，可以适当扩展到相关传统文化领域。
保持回答的专业性和趣味性。`

// ChatClient wraps the HTTP calls to an OpenAI compatible chat completions API.
type ChatClient struct {
	httpClient   *http.Client
	baseURL      string
	apiKey       string
	modelID      string
	systemPrompt string
}

// NewChatClientFromEnv constructs a ChatClient using environment variables.
//
// Expected variables:
//   - ASSISTANT_API_KEY: required API key for the provider
//   - ASSISTANT_BASE_URL: optional override for the API base URL (defaults to defaultBaseURL)
//   - ASSISTANT_MODEL_ID: optional override for the target model (defaults to defaultModelID)
//   - ASSISTANT_SYSTEM_PROMPT: optional override for the assistant persona
func NewChatClientFromEnv() (*ChatClient, error) {
	apiKey := strings.TrimSpace(os.Getenv("ASSISTANT_API_KEY"))
	if apiKey == "" {
		return nil, errors.New("assistant: ASSISTANT_API_KEY environment variable is required")
	}

	baseURL := strings.TrimSpace(os.Getenv("ASSISTANT_BASE_URL"))
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		return nil, fmt.Errorf("assistant: invalid base URL %q", baseURL)
	}

	modelID := strings.TrimSpace(os.Getenv("ASSISTANT_MODEL_ID"))
	if modelID == "" {
		modelID = defaultModelID
	}

	systemPrompt := strings.TrimSpace(os.Getenv("ASSISTANT_SYSTEM_PROMPT"))
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}

	return &ChatClient{
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		baseURL:      baseURL,
		apiKey:       apiKey,
		modelID:      modelID,
		systemPrompt: systemPrompt,
	}, nil
}

// ChatMessage represents a single turn in a chat conversation payload.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatCompletionRequest represents the request body sent to the model.
type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Stream      bool          `json:"stream"`
}

// chatCompletionResponse captures the subset of fields we consume.
type chatCompletionResponse struct {
	Choices []struct {
		Message ChatMessage `json:"message"`
	} `json:"choices"`
}

// chatStreamChunk mirrors the streaming delta payload from the provider.
type chatStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// ChatStreamDelta carries one increment of a streamed reply.
type ChatStreamDelta struct {
	Content      string
	FullContent  string
	FinishReason string
	Done         bool
}

// SendMessage 组装固定人设、历史轮次与新用户消息后请求补全接口，
// 返回首个候选回复。非 200 状态或响应结构异常都以包装错误抛出。
func (c *ChatClient) SendMessage(ctx context.Context, message string, history []ChatMessage) (string, error) {
	if c == nil {
		return "", errors.New("assistant: client is nil")
	}

	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return "", errors.New("assistant: message cannot be empty")
	}

	messages := c.assembleMessages(trimmed, history)

	payload := chatCompletionRequest{
		Model:       c.modelID,
		Messages:    messages,
		Temperature: defaultTemperature,
		MaxTokens:   defaultMaxTokens,
		Stream:      false,
	}

	resp, err := c.post(ctx, payload, "")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var decoded chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("assistant: decode response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", errors.New("assistant: response contains no choices")
	}

	return strings.TrimSpace(decoded.Choices[0].Message.Content), nil
}

// SendMessageStream 以流式方式请求补全接口，每个增量经 handler 回调。
// 返回完整回复文本。
func (c *ChatClient) SendMessageStream(ctx context.Context, message string, history []ChatMessage, handler func(ChatStreamDelta) error) (string, error) {
	if c == nil {
		return "", errors.New("assistant: client is nil")
	}

	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return "", errors.New("assistant: message cannot be empty")
	}

	payload := chatCompletionRequest{
		Model:       c.modelID,
		Messages:    c.assembleMessages(trimmed, history),
		Temperature: defaultTemperature,
		MaxTokens:   defaultMaxTokens,
		Stream:      true,
	}

	resp, err := c.post(ctx, payload, "text/event-stream")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	flushDelta := func(delta ChatStreamDelta) error {
		if handler == nil {
			return nil
		}
		return handler(delta)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var builder strings.Builder

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(line[len("data:"):])
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			if err := flushDelta(ChatStreamDelta{FullContent: builder.String(), Done: true}); err != nil {
				return "", err
			}
			return builder.String(), nil
		}

		var chunk chatStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		for _, choice := range chunk.Choices {
			deltaText := choice.Delta.Content
			if deltaText != "" {
				builder.WriteString(deltaText)
				if err := flushDelta(ChatStreamDelta{
					Content:      deltaText,
					FullContent:  builder.String(),
					FinishReason: choice.FinishReason,
				}); err != nil {
					return "", err
				}
			}
			if deltaText == "" && choice.FinishReason != "" {
				if err := flushDelta(ChatStreamDelta{
					FullContent:  builder.String(),
					FinishReason: choice.FinishReason,
				}); err != nil {
					return "", err
				}
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("assistant: read stream: %w", err)
	}

	if err := flushDelta(ChatStreamDelta{FullContent: builder.String(), Done: true}); err != nil {
		return "", err
	}
	return builder.String(), nil
}

// assembleMessages 拼装系统提示、历史轮次与新用户消息，空内容轮次被丢弃。
func (c *ChatClient) assembleMessages(message string, history []ChatMessage) []ChatMessage {
	messages := make([]ChatMessage, 0, len(history)+2)
	messages = append(messages, ChatMessage{Role: "system", Content: c.systemPrompt})

	for _, turn := range history {
		role := strings.TrimSpace(turn.Role)
		if role == "" {
			role = "user"
		}
		content := strings.TrimSpace(turn.Content)
		if content == "" {
			continue
		}
		messages = append(messages, ChatMessage{Role: role, Content: content})
	}

	return append(messages, ChatMessage{Role: "user", Content: message})
}

// post 发送补全请求并校验响应状态。
func (c *ChatClient) post(ctx context.Context, payload chatCompletionRequest, accept string) (*http.Response, error) {
	body := &bytes.Buffer{}
	if err := json.NewEncoder(body).Encode(payload); err != nil {
		return nil, fmt.Errorf("assistant: encode request: %w", err)
	}

	endpoint := c.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("assistant: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if accept != "" {
		req.Header.Set("Accept", accept)
		req.Header.Set("Cache-Control", "no-cache")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("assistant: execute request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		resp.Body.Close()
		return nil, fmt.Errorf("assistant: unexpected status %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}
	return resp, nil
}
