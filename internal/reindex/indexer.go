// Package reindex 负责把已登记的文件重新提取并写入知识库，供上传流水线和重建索引任务共用。
package reindex

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"docsage-go/internal/extract"
	"docsage-go/internal/model"
	"docsage-go/pkg/log"
)

// ErrBlobMissing 对象存储中找不到文件。
var ErrBlobMissing = errors.New("file not found")

// BlobStore 是 Indexer 需要的对象存储能力。
type BlobStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	Download(ctx context.Context, key, dst string) error
}

// ChunkIndex 是 Indexer 需要的知识库能力。
type ChunkIndex interface {
	ReplaceDocuments(ctx context.Context, pages map[string]string, documentName, fileID, userID string) (int, error)
}

// Indexer 处理单个文件：下载、提取、覆盖写入知识库。
type Indexer struct {
	Blobs     BlobStore
	Extractor extract.Extractor
	Index     ChunkIndex
	// TempDir 为空时使用系统临时目录。
	TempDir string
}

// IndexFile 返回写入的分块数。每次调用使用独立的临时目录，任何路径退出时都会删除。
// 提取结果没有文本时仍然覆盖写入，旧分块被删除，返回 0。
func (ix *Indexer) IndexFile(ctx context.Context, rec model.FileRecord) (int, error) {
	exists, err := ix.Blobs.Exists(ctx, rec.StoragePath)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, ErrBlobMissing
	}

	dir, err := os.MkdirTemp(ix.TempDir, "reindex-*")
	if err != nil {
		return 0, fmt.Errorf("创建临时目录失败: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			log.Warnf("[Indexer] 清理临时目录 %s 失败: %v", dir, err)
		}
	}()

	local := filepath.Join(dir, safeName(rec.Filename))
	if err := ix.Blobs.Download(ctx, rec.StoragePath, local); err != nil {
		return 0, err
	}

	pages, err := ix.Extractor.Extract(ctx, local, rec.Filename, rec.ContentType)
	if err != nil {
		return 0, fmt.Errorf("提取文本失败: %w", err)
	}
	if !hasText(pages) {
		log.Warnf("[Indexer] 文件 %s (file_id=%s) 未提取到文本, 清空其分块", rec.Filename, rec.FileID)
	}

	n, err := ix.Index.ReplaceDocuments(ctx, pages, rec.Filename, rec.FileID, rec.UserID)
	if err != nil {
		return 0, err
	}
	log.Infof("[Indexer] 文件 %s (file_id=%s) 写入 %d 个分块", rec.Filename, rec.FileID, n)
	return n, nil
}

func hasText(pages map[string]string) bool {
	for _, text := range pages {
		if strings.TrimSpace(text) != "" {
			return true
		}
	}
	return false
}

// safeName 去掉目录部分，防止文件名逃逸出临时目录。
func safeName(name string) string {
	base := filepath.Base(filepath.Clean("/" + name))
	if base == "/" || base == "." || base == "" {
		return "file"
	}
	return base
}
