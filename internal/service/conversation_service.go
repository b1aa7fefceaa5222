package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"docsage-go/internal/model"
	"docsage-go/internal/repository"
	"docsage-go/pkg/log"
)

// ConversationService 管理对话历史：Redis 中保留最近若干轮，会话结束或导出时归档到对象存储。
type ConversationService interface {
	Record(ctx context.Context, userID string, turn model.ConversationTurn) error
	History(ctx context.Context, userID string) ([]model.ConversationTurn, error)
	// Archive 把一次交互会话的全部轮次写入 history/{user}/conversation_{ts}.json。
	Archive(ctx context.Context, userID string, startedAt time.Time, turns []model.ConversationTurn) (string, error)
	// Export 把 Redis 中的历史写入 history/{user}/export_{ts}.json。
	Export(ctx context.Context, userID string) (string, int, error)
	Clear(ctx context.Context, userID string) error
}

type conversationService struct {
	repo   repository.ConversationRepository
	blobs  ObjectStore
	prefix string
	now    func() time.Time
}

// NewConversationService 创建一个新的 ConversationService。
func NewConversationService(repo repository.ConversationRepository, blobs ObjectStore, prefix string) ConversationService {
	if prefix == "" {
		prefix = "history"
	}
	return &conversationService{repo: repo, blobs: blobs, prefix: prefix, now: time.Now}
}

func (s *conversationService) Record(ctx context.Context, userID string, turn model.ConversationTurn) error {
	return s.repo.Append(ctx, userID, turn)
}

func (s *conversationService) History(ctx context.Context, userID string) ([]model.ConversationTurn, error) {
	return s.repo.History(ctx, userID)
}

func (s *conversationService) Archive(ctx context.Context, userID string, startedAt time.Time, turns []model.ConversationTurn) (string, error) {
	if len(turns) == 0 {
		return "", nil
	}
	ended := s.now().UTC()
	key := fmt.Sprintf("%s/%s/conversation_%d.json", s.prefix, userID, ended.Unix())
	if err := s.write(ctx, key, model.ConversationArchive{
		UserID:    userID,
		StartedAt: startedAt.UTC(),
		EndedAt:   ended,
		Turns:     turns,
	}); err != nil {
		return "", err
	}
	log.Infof("[ConversationService] 会话已归档: %s, 轮数: %d", key, len(turns))
	return key, nil
}

func (s *conversationService) Export(ctx context.Context, userID string) (string, int, error) {
	turns, err := s.repo.History(ctx, userID)
	if err != nil {
		return "", 0, err
	}
	now := s.now().UTC()
	started := now
	if len(turns) > 0 {
		started = turns[0].Timestamp
	}
	key := fmt.Sprintf("%s/%s/export_%d.json", s.prefix, userID, now.Unix())
	if err := s.write(ctx, key, model.ConversationArchive{
		UserID:    userID,
		StartedAt: started,
		EndedAt:   now,
		Turns:     turns,
	}); err != nil {
		return "", 0, err
	}
	return key, len(turns), nil
}

// Clear 只清理 Redis 中的近期历史，已归档的文件保留。
func (s *conversationService) Clear(ctx context.Context, userID string) error {
	return s.repo.Clear(ctx, userID)
}

func (s *conversationService) write(ctx context.Context, key string, archive model.ConversationArchive) error {
	data, err := json.MarshalIndent(archive, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal conversation archive: %w", err)
	}
	return s.blobs.PutBytes(ctx, key, data, "application/json")
}
