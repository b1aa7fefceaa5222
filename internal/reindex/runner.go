package reindex

import (
	"context"
	"sync"
	"time"

	"docsage-go/internal/repository"
	"docsage-go/pkg/log"
)

// Runner 在后台执行重建索引，同一租户同时只有一个任务。
type Runner struct {
	job    *Job
	status repository.ReindexStatusRepository

	mu      sync.Mutex
	running map[string]bool
	wg      sync.WaitGroup
	now     func() time.Time
}

func NewRunner(job *Job, status repository.ReindexStatusRepository) *Runner {
	return &Runner{
		job:     job,
		status:  status,
		running: make(map[string]bool),
		now:     time.Now,
	}
}

// Trigger 立即返回。该租户已有任务在运行时返回 false。
// 任务使用独立的 background context，不随触发请求结束而取消。
func (r *Runner) Trigger(userID string) bool {
	r.mu.Lock()
	if r.running[userID] {
		r.mu.Unlock()
		return false
	}
	r.running[userID] = true
	r.mu.Unlock()

	started := r.now().UTC()
	r.save(userID, repository.ReindexStatus{
		State:       repository.ReindexRunning,
		StartedAt:   started,
		FailedFiles: []repository.FailedFile{},
		EmptyFiles:  []string{},
	})

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			r.mu.Lock()
			delete(r.running, userID)
			r.mu.Unlock()
		}()

		report := r.job.Run(context.Background(), userID)
		finished := r.now().UTC()
		r.save(userID, repository.ReindexStatus{
			State:          repository.ReindexCompleted,
			StartedAt:      started,
			FinishedAt:     &finished,
			ProcessedCount: report.ProcessedCount,
			FailedFiles:    report.FailedFiles,
			EmptyFiles:     report.EmptyFiles,
		})
	}()
	return true
}

// Status 返回最近一次任务的状态。
func (r *Runner) Status(ctx context.Context, userID string) (repository.ReindexStatus, error) {
	return r.status.Get(ctx, userID)
}

// Wait 等待所有已触发的任务结束，用于优雅退出。
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) save(userID string, st repository.ReindexStatus) {
	if err := r.status.Save(context.Background(), userID, st); err != nil {
		log.Errorf("[ReindexRunner] 保存状态失败, user_id=%s: %v", userID, err)
	}
}
