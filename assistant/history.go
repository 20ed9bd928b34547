package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	sessionHistoryTTL     = 30 * time.Minute
	sessionHistoryTimeout = 300 * time.Millisecond

	// maxHistoryTurns 限制拼入提示词的历史轮次数量。
	maxHistoryTurns = 20
)

// sessionHistory 在 Redis 中缓存助手会话的近期轮次。
// 客户端为 nil 时所有操作退化为无历史。
type sessionHistory struct {
	client *redis.Client
}

// newSessionHistory 使用 Redis 客户端创建会话历史存储。
func newSessionHistory(client *redis.Client) *sessionHistory {
	if client == nil {
		return nil
	}
	return &sessionHistory{client: client}
}

// NewSessionID 生成新的会话标识。
func NewSessionID() string {
	return uuid.NewString()
}

// historyContext 为缓存操作设置超时上下文。
func (s *sessionHistory) historyContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return context.WithTimeout(context.Background(), sessionHistoryTimeout)
	}
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) <= sessionHistoryTimeout {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, sessionHistoryTimeout)
}

// key 构造会话历史的缓存键。非法会话 ID 返回空键。
func (s *sessionHistory) key(sessionID string) string {
	if s == nil || s.client == nil {
		return ""
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return ""
	}
	if _, err := uuid.Parse(sessionID); err != nil {
		return ""
	}
	return fmt.Sprintf("assistant:session:%s", sessionID)
}

// load 读取会话的历史轮次，缓存未命中返回空切片。
func (s *sessionHistory) load(ctx context.Context, sessionID string) []ChatMessage {
	key := s.key(sessionID)
	if key == "" {
		return nil
	}

	ctx, cancel := s.historyContext(ctx)
	defer cancel()

	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("assistant: load session history failed: %v", err)
		}
		return nil
	}

	var turns []ChatMessage
	if err := json.Unmarshal(data, &turns); err != nil {
		log.Printf("assistant: decode session history failed: %v", err)
		return nil
	}
	return turns
}

// append 追加一问一答并刷新过期时间，仅保留最近 maxHistoryTurns 条。
func (s *sessionHistory) append(ctx context.Context, sessionID, question, answer string) {
	key := s.key(sessionID)
	if key == "" {
		return
	}

	turns := s.load(ctx, sessionID)
	turns = append(turns,
		ChatMessage{Role: "user", Content: question},
		ChatMessage{Role: "assistant", Content: answer},
	)
	if len(turns) > maxHistoryTurns {
		turns = turns[len(turns)-maxHistoryTurns:]
	}

	payload, err := json.Marshal(turns)
	if err != nil {
		log.Printf("assistant: encode session history failed: %v", err)
		return
	}

	ctx, cancel := s.historyContext(ctx)
	defer cancel()

	if err := s.client.Set(ctx, key, payload, sessionHistoryTTL).Err(); err != nil {
		log.Printf("assistant: store session history failed: %v", err)
	}
}

// clear 删除会话的全部历史。
func (s *sessionHistory) clear(ctx context.Context, sessionID string) {
	key := s.key(sessionID)
	if key == "" {
		return
	}

	ctx, cancel := s.historyContext(ctx)
	defer cancel()

	if err := s.client.Del(ctx, key).Err(); err != nil {
		log.Printf("assistant: clear session history failed: %v", err)
	}
}
