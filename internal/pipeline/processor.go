// Package pipeline 定义了文件处理的核心流程。
package pipeline

import (
	"context"
	"fmt"

	"docsage-go/internal/model"
	"docsage-go/pkg/log"
	"docsage-go/pkg/tasks"
)

// FileIndexer 处理单个登记文件。
type FileIndexer interface {
	IndexFile(ctx context.Context, rec model.FileRecord) (int, error)
}

// Processor 消费上传产生的文件处理任务，与重建索引共用同一套单文件处理逻辑。
type Processor struct {
	indexer FileIndexer
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(indexer FileIndexer) *Processor {
	return &Processor{indexer: indexer}
}

// Process 是文件处理的主函数。没有可提取文本的文件视为处理完成，不会重试。
func (p *Processor) Process(ctx context.Context, task tasks.FileProcessingTask) error {
	log.Infof("[Processor] 开始处理文件, FileID: %s, FileName: %s, UserID: %s", task.FileID, task.FileName, task.UserID)
	if task.FileID == "" || task.UserID == "" || task.StoragePath == "" {
		log.Errorf("[Processor] 任务缺少必要字段, 丢弃: %+v", task)
		return nil
	}

	rec := model.FileRecord{
		FileID:      task.FileID,
		UserID:      task.UserID,
		StoragePath: task.StoragePath,
		ContentType: task.ContentType,
		Filename:    task.FileName,
	}
	n, err := p.indexer.IndexFile(ctx, rec)
	if err != nil {
		return fmt.Errorf("处理文件 %s 失败: %w", task.FileID, err)
	}
	if n == 0 {
		log.Warnf("[Processor] 文件 '%s' 未提取到文本", task.FileName)
	}
	log.Infof("[Processor] 文件处理完成, FileID: %s, 分块数: %d", task.FileID, n)
	return nil
}
