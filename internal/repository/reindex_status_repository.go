package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// 重建索引任务状态
const (
	ReindexIdle      = "idle"
	ReindexRunning   = "running"
	ReindexCompleted = "completed"
)

// FailedFile 记录单个文件失败的原因。
type FailedFile struct {
	Filename string `json:"filename"`
	Reason   string `json:"reason"`
}

// ReindexStatus 是某个租户最近一次重建索引的状态。
type ReindexStatus struct {
	State          string       `json:"state"`
	StartedAt      time.Time    `json:"startedAt"`
	FinishedAt     *time.Time   `json:"finishedAt,omitempty"`
	ProcessedCount int          `json:"processedCount"`
	FailedFiles    []FailedFile `json:"failedFiles"`
	EmptyFiles     []string     `json:"emptyFiles"`
}

// ReindexStatusRepository 保存重建索引状态。
type ReindexStatusRepository interface {
	Save(ctx context.Context, userID string, status ReindexStatus) error
	Get(ctx context.Context, userID string) (ReindexStatus, error)
}

type redisReindexStatusRepository struct {
	redisClient *redis.Client
	ttl         time.Duration
}

// NewReindexStatusRepository 创建基于 Redis 的实现，状态保留 7 天。
func NewReindexStatusRepository(redisClient *redis.Client) ReindexStatusRepository {
	return &redisReindexStatusRepository{redisClient: redisClient, ttl: 7 * 24 * time.Hour}
}

func reindexStatusKey(userID string) string {
	return fmt.Sprintf("reindex:status:%s", userID)
}

func (r *redisReindexStatusRepository) Save(ctx context.Context, userID string, status ReindexStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal reindex status: %w", err)
	}
	if err := r.redisClient.Set(ctx, reindexStatusKey(userID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save reindex status: %w", err)
	}
	return nil
}

// Get 未运行过时返回 idle 状态。
func (r *redisReindexStatusRepository) Get(ctx context.Context, userID string) (ReindexStatus, error) {
	data, err := r.redisClient.Get(ctx, reindexStatusKey(userID)).Bytes()
	if err == redis.Nil {
		return ReindexStatus{State: ReindexIdle, FailedFiles: []FailedFile{}}, nil
	}
	if err != nil {
		return ReindexStatus{}, fmt.Errorf("failed to get reindex status: %w", err)
	}
	var status ReindexStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return ReindexStatus{}, fmt.Errorf("failed to unmarshal reindex status: %w", err)
	}
	return status, nil
}
