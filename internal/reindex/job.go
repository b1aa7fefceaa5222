package reindex

import (
	"context"
	"fmt"

	"docsage-go/internal/model"
	"docsage-go/internal/repository"
	"docsage-go/pkg/log"
)

// FileLister 列出租户登记过的文件。
type FileLister interface {
	ListByUser(ctx context.Context, userID string) ([]model.FileRecord, error)
}

// Report 是一次重建索引的结果。单个文件失败不影响其它文件。
type Report struct {
	ProcessedCount int                     `json:"processedCount"`
	FailedFiles    []repository.FailedFile `json:"failedFiles"`

	// EmptyFiles 处理成功但没有提取到文本，索引中不再有它们的分块。
	EmptyFiles []string `json:"emptyFiles"`
}

// Job 按文件登记表重建一个租户的全部分块。
type Job struct {
	Files   FileLister
	Indexer *Indexer
}

// Run 逐个处理文件，失败原因汇总到 Report，从不向调用方返回错误。
func (j *Job) Run(ctx context.Context, userID string) Report {
	report := Report{FailedFiles: []repository.FailedFile{}, EmptyFiles: []string{}}

	log.Infof("[ReindexJob] 步骤1: 读取用户 %s 的文件清单", userID)
	files, err := j.Files.ListByUser(ctx, userID)
	if err != nil {
		log.Errorf("[ReindexJob] 读取文件清单失败, user_id=%s: %v", userID, err)
		report.FailedFiles = append(report.FailedFiles, repository.FailedFile{Filename: "*", Reason: err.Error()})
		return report
	}
	log.Infof("[ReindexJob] 共 %d 个文件待处理", len(files))

	for i, rec := range files {
		if err := ctx.Err(); err != nil {
			report.FailedFiles = append(report.FailedFiles, repository.FailedFile{Filename: rec.Filename, Reason: err.Error()})
			continue
		}
		log.Infof("[ReindexJob] 步骤2: 处理文件 %d/%d: %s", i+1, len(files), rec.Filename)
		n, err := j.indexOne(ctx, rec)
		if err != nil {
			log.Warnf("[ReindexJob] 文件 %s 处理失败: %v", rec.Filename, err)
			report.FailedFiles = append(report.FailedFiles, repository.FailedFile{Filename: rec.Filename, Reason: err.Error()})
			continue
		}
		if n == 0 {
			report.EmptyFiles = append(report.EmptyFiles, rec.Filename)
		}
		report.ProcessedCount++
	}

	log.Infof("[ReindexJob] 完成, user_id=%s, 成功 %d, 失败 %d", userID, report.ProcessedCount, len(report.FailedFiles))
	return report
}

// indexOne 把单个文件中的 panic 转成错误。
func (j *Job) indexOne(ctx context.Context, rec model.FileRecord) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			n, err = 0, fmt.Errorf("panic: %v", r)
		}
	}()
	return j.Indexer.IndexFile(ctx, rec)
}
