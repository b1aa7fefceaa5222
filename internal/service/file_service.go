package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"docsage-go/internal/config"
	"docsage-go/internal/model"
	"docsage-go/internal/repository"
	"docsage-go/pkg/log"
	"docsage-go/pkg/tasks"

	"github.com/google/uuid"
)

// ObjectStore 是业务层使用的对象存储能力。
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	PutBytes(ctx context.Context, key string, data []byte, contentType string) error
	Remove(ctx context.Context, key string) error
	RemovePrefix(ctx context.Context, prefix string) (int, error)
}

// TaskQueue 投递文件处理任务。
type TaskQueue interface {
	Enqueue(ctx context.Context, task tasks.FileProcessingTask) error
}

// TaskQueueFunc 让普通函数满足 TaskQueue。
type TaskQueueFunc func(ctx context.Context, task tasks.FileProcessingTask) error

func (f TaskQueueFunc) Enqueue(ctx context.Context, task tasks.FileProcessingTask) error {
	return f(ctx, task)
}

// ChunkIndex 是文件管理依赖的知识库能力。
type ChunkIndex interface {
	DeleteByFileID(ctx context.Context, fileID, userID string) error
	GetFileTags(ctx context.Context, fileID, userID string) ([]string, error)
	CountChunks(ctx context.Context, fileID, userID string) (int, error)
}

// UploadInput 描述一次上传。
type UploadInput struct {
	UserID      string
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// FileStatus 表示文件的索引状态。
type FileStatus struct {
	FileID  string `json:"fileId"`
	Indexed bool   `json:"indexed"`
	Chunks  int    `json:"chunks"`
}

// FileService 接口定义了文件管理相关的业务操作。
type FileService interface {
	Upload(ctx context.Context, in UploadInput) (*model.FileRecord, error)
	List(ctx context.Context, userID string) ([]model.FileRecord, error)
	Get(ctx context.Context, fileID, userID string) (*model.FileRecord, error)
	Delete(ctx context.Context, fileID, userID string) error
	Tags(ctx context.Context, fileID, userID string) ([]string, error)
	Status(ctx context.Context, fileID, userID string) (*FileStatus, error)
}

type fileService struct {
	files   repository.FileRepository
	blobs   ObjectStore
	index   ChunkIndex
	queue   TaskQueue
	cfg     config.UploadConfig
	allowed map[string]struct{}
}

// NewFileService 创建一个新的 FileService 实例。
func NewFileService(files repository.FileRepository, blobs ObjectStore, index ChunkIndex, queue TaskQueue, cfg config.UploadConfig) FileService {
	allowed := make(map[string]struct{}, len(cfg.AllowedTypes))
	for _, t := range cfg.AllowedTypes {
		allowed[strings.ToLower(t)] = struct{}{}
	}
	return &fileService{files: files, blobs: blobs, index: index, queue: queue, cfg: cfg, allowed: allowed}
}

// StoragePath 返回上传文件在对象存储中的路径。
func StoragePath(userID, fileID, filename string) string {
	return fmt.Sprintf("uploads/%s/%s/%s", userID, fileID, filepath.Base(filename))
}

// Upload 校验类型与大小后写入对象存储和登记表，再投递索引任务。
// 任务投递失败只记录日志，文件可以通过重建索引补齐。
func (s *fileService) Upload(ctx context.Context, in UploadInput) (*model.FileRecord, error) {
	contentType := normalizeContentType(in.ContentType, in.Filename)
	if _, ok := s.allowed[contentType]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
	}
	if in.Size <= 0 {
		return nil, ErrEmptyFile
	}
	if limit := int64(s.cfg.MaxSizeMB) * 1024 * 1024; limit > 0 && in.Size > limit {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d MB", ErrFileTooLarge, in.Size, s.cfg.MaxSizeMB)
	}

	fileID := uuid.NewString()
	rec := &model.FileRecord{
		FileID:      fileID,
		UserID:      in.UserID,
		StoragePath: StoragePath(in.UserID, fileID, in.Filename),
		ContentType: contentType,
		Filename:    filepath.Base(in.Filename),
		Size:        in.Size,
	}

	log.Infof("[FileService] 步骤1: 上传文件到对象存储, key=%s", rec.StoragePath)
	if err := s.blobs.Put(ctx, rec.StoragePath, in.Body, in.Size, contentType); err != nil {
		return nil, err
	}

	log.Info("[FileService] 步骤2: 写入文件登记表")
	if err := s.files.Create(ctx, rec); err != nil {
		if rmErr := s.blobs.Remove(ctx, rec.StoragePath); rmErr != nil {
			log.Warnf("[FileService] 回滚对象 %s 失败: %v", rec.StoragePath, rmErr)
		}
		return nil, fmt.Errorf("保存文件记录失败: %w", err)
	}

	log.Info("[FileService] 步骤3: 投递索引任务")
	task := tasks.FileProcessingTask{
		FileID:      rec.FileID,
		UserID:      rec.UserID,
		StoragePath: rec.StoragePath,
		ContentType: rec.ContentType,
		FileName:    rec.Filename,
	}
	if err := s.queue.Enqueue(ctx, task); err != nil {
		log.Errorf("[FileService] 投递索引任务失败, file_id=%s: %v", rec.FileID, err)
	}
	return rec, nil
}

func (s *fileService) List(ctx context.Context, userID string) ([]model.FileRecord, error) {
	return s.files.ListByUser(ctx, userID)
}

func (s *fileService) Get(ctx context.Context, fileID, userID string) (*model.FileRecord, error) {
	return s.files.Get(ctx, fileID, userID)
}

// Delete 依次删除分块、对象和登记记录。分块先删，保证记录消失后不会再被检索到。
func (s *fileService) Delete(ctx context.Context, fileID, userID string) error {
	rec, err := s.files.Get(ctx, fileID, userID)
	if err != nil {
		return err
	}
	if err := s.index.DeleteByFileID(ctx, fileID, userID); err != nil {
		return err
	}
	if err := s.blobs.Remove(ctx, rec.StoragePath); err != nil {
		log.Warnf("[FileService] 删除对象 %s 失败: %v", rec.StoragePath, err)
	}
	if err := s.files.Delete(ctx, fileID, userID); err != nil && !errors.Is(err, repository.ErrFileNotFound) {
		return err
	}
	return nil
}

func (s *fileService) Tags(ctx context.Context, fileID, userID string) ([]string, error) {
	if _, err := s.files.Get(ctx, fileID, userID); err != nil {
		return nil, err
	}
	return s.index.GetFileTags(ctx, fileID, userID)
}

// Status 文件存在分块即视为已索引。
func (s *fileService) Status(ctx context.Context, fileID, userID string) (*FileStatus, error) {
	if _, err := s.files.Get(ctx, fileID, userID); err != nil {
		return nil, err
	}
	n, err := s.index.CountChunks(ctx, fileID, userID)
	if err != nil {
		return nil, err
	}
	return &FileStatus{FileID: fileID, Indexed: n > 0, Chunks: n}, nil
}

// normalizeContentType 去掉参数并小写；缺失或为通用二进制类型时按扩展名推断。
func normalizeContentType(contentType, filename string) string {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		ct = mt
	}
	if ct == "" || ct == "application/octet-stream" {
		if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename))); byExt != "" {
			if mt, _, err := mime.ParseMediaType(byExt); err == nil {
				return mt
			}
		}
	}
	return ct
}
