// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"context"
	"errors"
	"fmt"

	"docsage-go/internal/model"

	"gorm.io/gorm"
)

// ErrFileNotFound 表示按 file_id 查询的文件不存在或不属于该用户。
var ErrFileNotFound = errors.New("file not found")

// FileRepository 是上传文件登记表的持久化操作，也是重建索引时文件清单的唯一来源。
type FileRepository interface {
	Create(ctx context.Context, record *model.FileRecord) error
	Get(ctx context.Context, fileID, userID string) (*model.FileRecord, error)
	ListByUser(ctx context.Context, userID string) ([]model.FileRecord, error)
	Delete(ctx context.Context, fileID, userID string) error
	DeleteByUser(ctx context.Context, userID string) (int64, error)
}

type fileRepository struct {
	db *gorm.DB
}

// NewFileRepository 创建一个新的 FileRepository 实例。
func NewFileRepository(db *gorm.DB) FileRepository {
	return &fileRepository{db: db}
}

func (r *fileRepository) Create(ctx context.Context, record *model.FileRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

// Get 根据 file_id 和 user_id 查询，找不到时返回 ErrFileNotFound。
func (r *fileRepository) Get(ctx context.Context, fileID, userID string) (*model.FileRecord, error) {
	var record model.FileRecord
	err := r.db.WithContext(ctx).Where("file_id = ? AND user_id = ?", fileID, userID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrFileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询文件记录失败: %w", err)
	}
	return &record, nil
}

// ListByUser 按上传时间升序返回用户的全部文件。
func (r *fileRepository) ListByUser(ctx context.Context, userID string) ([]model.FileRecord, error) {
	var records []model.FileRecord
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at ASC, id ASC").Find(&records).Error
	return records, err
}

// Delete 删除一条记录，记录不存在时返回 ErrFileNotFound。
func (r *fileRepository) Delete(ctx context.Context, fileID, userID string) error {
	res := r.db.WithContext(ctx).Where("file_id = ? AND user_id = ?", fileID, userID).Delete(&model.FileRecord{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrFileNotFound
	}
	return nil
}

func (r *fileRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	res := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&model.FileRecord{})
	return res.RowsAffected, res.Error
}
