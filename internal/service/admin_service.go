package service

import (
	"context"
	"fmt"

	"docsage-go/internal/model"
	"docsage-go/internal/repository"
	"docsage-go/pkg/log"
)

// TenantIndex 是管理功能依赖的知识库能力。
type TenantIndex interface {
	GetStats(ctx context.Context) (model.IndexStats, error)
	DeleteByUserID(ctx context.Context, userID string) error
}

// PurgeResult 汇总一次租户清理。
type PurgeResult struct {
	UserID         string `json:"userId"`
	FilesRemoved   int64  `json:"filesRemoved"`
	ObjectsRemoved int    `json:"objectsRemoved"`
}

// AdminService 接口定义了所有管理员相关的业务操作。
type AdminService interface {
	Stats(ctx context.Context) (model.IndexStats, error)
	// PurgeUser 删除租户的全部分块、上传对象和登记记录。
	PurgeUser(ctx context.Context, userID string) (*PurgeResult, error)
}

type adminService struct {
	index TenantIndex
	files repository.FileRepository
	blobs ObjectStore
}

// NewAdminService 创建一个新的 AdminService 实例。
func NewAdminService(index TenantIndex, files repository.FileRepository, blobs ObjectStore) AdminService {
	return &adminService{index: index, files: files, blobs: blobs}
}

func (s *adminService) Stats(ctx context.Context) (model.IndexStats, error) {
	return s.index.GetStats(ctx)
}

func (s *adminService) PurgeUser(ctx context.Context, userID string) (*PurgeResult, error) {
	log.Infof("[AdminService] 开始清理租户 %s", userID)
	if err := s.index.DeleteByUserID(ctx, userID); err != nil {
		return nil, err
	}
	objects, err := s.blobs.RemovePrefix(ctx, fmt.Sprintf("uploads/%s/", userID))
	if err != nil {
		return nil, err
	}
	files, err := s.files.DeleteByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("删除文件记录失败: %w", err)
	}
	log.Infof("[AdminService] 租户 %s 清理完成, 文件 %d, 对象 %d", userID, files, objects)
	return &PurgeResult{UserID: userID, FilesRemoved: files, ObjectsRemoved: objects}, nil
}
