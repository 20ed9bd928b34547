package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"quyi_back/cache"
)

const chatUnavailableMessage = "AI 助手暂时不可用，请稍后重试"

// Module 聚合助手对话所需的模型客户端与会话历史。
type Module struct {
	client   *ChatClient
	history  *sessionHistory
	upgrader websocket.Upgrader
}

// RegisterRoutes 在 /assistant 下挂载助手接口。
// Redis 不可用时会话历史被禁用，对话本身仍可工作。
func RegisterRoutes(router *gin.Engine) (*Module, error) {
	if router == nil {
		return nil, fmt.Errorf("assistant: router is nil")
	}

	client, err := NewChatClientFromEnv()
	if err != nil {
		return nil, err
	}

	var history *sessionHistory
	if redisClient, err := cache.GetRedisClient(); err != nil {
		log.Printf("assistant: session history disabled: %v", err)
	} else {
		history = newSessionHistory(redisClient)
	}

	module := &Module{
		client:  client,
		history: history,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 << 10,
			WriteBufferSize: 4 << 10,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}

	group := router.Group("/assistant")
	group.GET("/questions", module.handleSuggestedQuestions)
	group.POST("/chat", module.handleChat)
	group.GET("/ws", module.handleChatSocket)
	group.DELETE("/sessions/:id", module.handleClearSession)

	return module, nil
}

// chatRequest 表示一次助手对话请求。
// History 显式传入时优先于服务端缓存的会话历史。
type chatRequest struct {
	Message   string        `json:"message"`
	SessionID string        `json:"session_id"`
	History   []ChatMessage `json:"history"`
}

type chatResponse struct {
	Reply     string `json:"reply"`
	SessionID string `json:"session_id"`
}

// handleSuggestedQuestions 返回推荐问题列表
// @Summary 获取推荐问题
// @Tags assistant
// @Produce json
// @Success 200 {object} map[string]any
// @Router /assistant/questions [get]
func (m *Module) handleSuggestedQuestions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"questions": SuggestedQuestions()})
}

// handleChat 处理一次助手对话
// @Summary 助手对话
// @Tags assistant
// @Accept json
// @Produce json
// @Param payload body chatRequest true "对话请求"
// @Success 200 {object} chatResponse
// @Failure 400 {object} map[string]string
// @Failure 502 {object} map[string]string
// @Router /assistant/chat [post]
func (m *Module) handleChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求格式"})
		return
	}

	message := strings.TrimSpace(req.Message)
	if message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "消息内容不能为空"})
		return
	}

	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = NewSessionID()
	}

	history := req.History
	if len(history) == 0 {
		history = m.history.load(c.Request.Context(), sessionID)
	}

	if wantsEventStream(c) {
		m.streamChat(c, sessionID, message, history)
		return
	}

	reply, err := m.client.SendMessage(c.Request.Context(), message, history)
	if err != nil {
		log.Printf("assistant: chat completion failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": chatUnavailableMessage})
		return
	}

	m.history.append(c.Request.Context(), sessionID, message, reply)

	c.JSON(http.StatusOK, chatResponse{Reply: reply, SessionID: sessionID})
}

// streamChat 以 Server-Sent Events 推送回复增量。
func (m *Module) streamChat(c *gin.Context, sessionID, message string, history []ChatMessage) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		reply, err := m.client.SendMessage(c.Request.Context(), message, history)
		if err != nil {
			log.Printf("assistant: chat completion failed: %v", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": chatUnavailableMessage})
			return
		}
		m.history.append(c.Request.Context(), sessionID, message, reply)
		c.JSON(http.StatusOK, chatResponse{Reply: reply, SessionID: sessionID})
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache, no-transform")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Status(http.StatusOK)
	flusher.Flush()

	if err := streamEvent(c.Writer, flusher, "session", gin.H{"session_id": sessionID}); err != nil {
		return
	}

	reply, err := m.client.SendMessageStream(c.Request.Context(), message, history, func(delta ChatStreamDelta) error {
		if delta.Done {
			return nil
		}
		if delta.Content == "" {
			return nil
		}
		return streamEvent(c.Writer, flusher, "delta", gin.H{"content": delta.Content})
	})
	if err != nil {
		log.Printf("assistant: chat stream failed: %v", err)
		_ = streamEvent(c.Writer, flusher, "error", gin.H{"error": chatUnavailableMessage})
		return
	}

	m.history.append(c.Request.Context(), sessionID, message, reply)

	_ = streamEvent(c.Writer, flusher, "done", chatResponse{Reply: reply, SessionID: sessionID})
}

// handleClearSession 清空指定会话的历史
// @Summary 清空会话历史
// @Tags assistant
// @Produce json
// @Param id path string true "会话ID"
// @Success 204
// @Router /assistant/sessions/{id} [delete]
func (m *Module) handleClearSession(c *gin.Context) {
	m.history.clear(c.Request.Context(), c.Param("id"))
	c.Status(http.StatusNoContent)
}

// socketFrame 是 WebSocket 对话的统一消息帧。
type socketFrame struct {
	Type      string `json:"type"`
	Content   string `json:"content,omitempty"`
	Reply     string `json:"reply,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// handleChatSocket 通过 WebSocket 承载多轮对话，
// 每条用户消息以 delta 帧流式回推，结束时发送 done 帧。
func (m *Module) handleChatSocket(c *gin.Context) {
	conn, err := m.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("assistant: websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	sessionID := strings.TrimSpace(c.Query("session_id"))
	if sessionID == "" {
		sessionID = NewSessionID()
	}
	if err := conn.WriteJSON(socketFrame{Type: "session", SessionID: sessionID}); err != nil {
		return
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var req chatRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			_ = conn.WriteJSON(socketFrame{Type: "error", Error: "无效的请求格式"})
			continue
		}

		message := strings.TrimSpace(req.Message)
		if message == "" {
			_ = conn.WriteJSON(socketFrame{Type: "error", Error: "消息内容不能为空"})
			continue
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 60*time.Second)
		history := m.history.load(ctx, sessionID)

		reply, err := m.client.SendMessageStream(ctx, message, history, func(delta ChatStreamDelta) error {
			if delta.Done || delta.Content == "" {
				return nil
			}
			return conn.WriteJSON(socketFrame{Type: "delta", Content: delta.Content})
		})
		if err != nil {
			cancel()
			log.Printf("assistant: websocket chat failed: %v", err)
			if writeErr := conn.WriteJSON(socketFrame{Type: "error", Error: chatUnavailableMessage}); writeErr != nil {
				return
			}
			continue
		}

		m.history.append(ctx, sessionID, message, reply)
		cancel()

		if err := conn.WriteJSON(socketFrame{Type: "done", Reply: reply, SessionID: sessionID}); err != nil {
			return
		}
	}
}
