// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"docsage-go/internal/model"

	"github.com/go-redis/redis/v8"
)

// maxTurns 每个用户在 Redis 中保留的最近对话轮数。
const maxTurns = 50

// ConversationRepository 定义了对话历史记录的操作接口。
type ConversationRepository interface {
	Append(ctx context.Context, userID string, turns ...model.ConversationTurn) error
	History(ctx context.Context, userID string) ([]model.ConversationTurn, error)
	Clear(ctx context.Context, userID string) error
}

type redisConversationRepository struct {
	redisClient *redis.Client
}

// NewConversationRepository 创建一个新的 ConversationRepository 实例。
func NewConversationRepository(redisClient *redis.Client) ConversationRepository {
	return &redisConversationRepository{redisClient: redisClient}
}

func conversationKey(userID string) string {
	return fmt.Sprintf("conversation:%s", userID)
}

// Append 追加对话并裁剪到最近 maxTurns 条，7 天过期。
func (r *redisConversationRepository) Append(ctx context.Context, userID string, turns ...model.ConversationTurn) error {
	if len(turns) == 0 {
		return nil
	}
	key := conversationKey(userID)
	values := make([]interface{}, 0, len(turns))
	for _, t := range turns {
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("failed to marshal conversation turn: %w", err)
		}
		values = append(values, data)
	}
	pipe := r.redisClient.TxPipeline()
	pipe.RPush(ctx, key, values...)
	pipe.LTrim(ctx, key, -maxTurns, -1)
	pipe.Expire(ctx, key, 7*24*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append conversation history: %w", err)
	}
	return nil
}

// History 从 Redis 获取对话历史记录，按时间顺序。
func (r *redisConversationRepository) History(ctx context.Context, userID string) ([]model.ConversationTurn, error) {
	items, err := r.redisClient.LRange(ctx, conversationKey(userID), 0, -1).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to get conversation history: %w", err)
	}
	turns := make([]model.ConversationTurn, 0, len(items))
	for _, item := range items {
		var t model.ConversationTurn
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			continue
		}
		turns = append(turns, t)
	}
	return turns, nil
}

func (r *redisConversationRepository) Clear(ctx context.Context, userID string) error {
	if err := r.redisClient.Del(ctx, conversationKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to clear conversation history: %w", err)
	}
	return nil
}
