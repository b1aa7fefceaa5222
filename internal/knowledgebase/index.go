// Package knowledgebase 实现按租户隔离的知识库索引：分块写入、检索、删除与统计。
// 租户隔离完全依赖每次调用携带的 user_id 过滤条件。
package knowledgebase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"docsage-go/internal/model"
	"docsage-go/internal/tagger"
	"docsage-go/internal/vectorstore"
	"docsage-go/pkg/log"
	"docsage-go/pkg/retry"

	"github.com/google/uuid"
)

// ErrValidation 表示调用参数不合法，例如缺少 file_id 或 user_id。
var ErrValidation = errors.New("knowledgebase: invalid argument")

// Options 控制索引行为。
type Options struct {
	// DefaultResults 是 Search 未指定数量时返回的条数。
	DefaultResults int
	// MaxDocuments 是全量扫描（统计、按文件删除等）的上限。
	MaxDocuments int
	Retry        retry.Policy
}

// Index 是知识库索引，并发安全。
type Index struct {
	store  vectorstore.Store
	tagger tagger.Tagger
	opts   Options
	files  *keyLock
	now    func() time.Time
	newID  func() string
}

// NewIndex 创建索引。tg 为 nil 时使用 KeywordTagger。
func NewIndex(store vectorstore.Store, tg tagger.Tagger, opts Options) *Index {
	if tg == nil {
		tg = tagger.NewKeywordTagger()
	}
	if opts.DefaultResults <= 0 {
		opts.DefaultResults = 5
	}
	if opts.MaxDocuments <= 0 {
		opts.MaxDocuments = 10000
	}
	return &Index{
		store:  store,
		tagger: tg,
		opts:   opts,
		files:  newKeyLock(),
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
	}
}

// IndexDocuments 把每一页写成一个分块，返回写入的分块数。
// 空白页被静默跳过；全部为空时只记录警告。该操作是追加式的，不会删除同一文件已有的分块。
func (x *Index) IndexDocuments(ctx context.Context, pages map[string]string, documentName, fileID, userID string) (int, error) {
	if strings.TrimSpace(fileID) == "" || strings.TrimSpace(userID) == "" {
		return 0, fmt.Errorf("%w: file_id and user_id are required", ErrValidation)
	}

	chunks := x.buildChunks(pages, documentName, fileID, userID)
	if len(chunks) == 0 {
		log.Warnf("[KnowledgeBase] 文档 '%s' (file_id=%s) 没有可索引的非空页面", documentName, fileID)
		return 0, nil
	}

	ids := make([]string, len(chunks))
	texts := make([]string, len(chunks))
	metas := make([]model.ChunkMetadata, len(chunks))
	for i, c := range chunks {
		ids[i], texts[i], metas[i] = c.ChunkID, c.Text, c.Metadata
	}

	err := x.opts.Retry.Do(ctx, func(ctx context.Context) error {
		return x.store.Add(ctx, ids, texts, metas)
	})
	if err != nil {
		return 0, fmt.Errorf("写入分块失败 (file_id=%s): %w", fileID, err)
	}
	log.Infof("[KnowledgeBase] 已索引文档 '%s': file_id=%s, user_id=%s, 分块数=%d", documentName, fileID, userID, len(ids))
	return len(ids), nil
}

// buildChunks 为每个非空页面生成一个分块，按页码顺序排列，同一批分块共用 indexed_at。
func (x *Index) buildChunks(pages map[string]string, documentName, fileID, userID string) []model.Chunk {
	labels := make([]string, 0, len(pages))
	for label, text := range pages {
		if strings.TrimSpace(text) == "" {
			continue
		}
		labels = append(labels, label)
	}
	sortPageLabels(labels)

	indexedAt := x.now().UTC()
	chunks := make([]model.Chunk, len(labels))
	for i, label := range labels {
		text := pages[label]
		chunks[i] = model.Chunk{
			ChunkID: x.newID(),
			Text:    text,
			Metadata: model.ChunkMetadata{
				FileID:    fileID,
				UserID:    userID,
				Source:    documentName,
				Page:      label,
				Tags:      x.tagger.GenerateTags(text),
				IndexedAt: indexedAt,
			},
		}
	}
	return chunks
}

// sortPageLabels 按页码排序：page_2 排在 page_10 之前。前缀不同或没有数字后缀时按字符串比较。
func sortPageLabels(labels []string) {
	sort.SliceStable(labels, func(i, j int) bool {
		pi, ni, oki := splitPageLabel(labels[i])
		pj, nj, okj := splitPageLabel(labels[j])
		if oki && okj && pi == pj && ni != nj {
			return ni < nj
		}
		return labels[i] < labels[j]
	})
}

// splitPageLabel 把 "page_12" 拆成 ("page_", 12)。
func splitPageLabel(label string) (string, int, bool) {
	end := len(label)
	start := end
	for start > 0 && label[start-1] >= '0' && label[start-1] <= '9' {
		start--
	}
	if start == end {
		return label, 0, false
	}
	n, err := strconv.Atoi(label[start:])
	if err != nil {
		return label, 0, false
	}
	return label[:start], n, true
}

// ReplaceDocuments 以 file_id 为键覆盖写入：同一文件的调用串行执行，先删除旧分块再写入新分块。
func (x *Index) ReplaceDocuments(ctx context.Context, pages map[string]string, documentName, fileID, userID string) (int, error) {
	if strings.TrimSpace(fileID) == "" || strings.TrimSpace(userID) == "" {
		return 0, fmt.Errorf("%w: file_id and user_id are required", ErrValidation)
	}
	unlock := x.files.Lock(fileID)
	defer unlock()

	if err := x.DeleteByFileID(ctx, fileID, userID); err != nil {
		return 0, err
	}
	return x.IndexDocuments(ctx, pages, documentName, fileID, userID)
}

// Search 在租户范围内检索，按相关度降序返回。
// userID 为空时不做任何检索；任何存储错误都只记录日志并返回空结果。
// 相关度 = 1/(1+distance)，distance 小于 0 时按 0 处理，取值 (0,1]。
func (x *Index) Search(ctx context.Context, query, userID string, maxResults int, extraFilters map[string]string) []model.RetrievalResult {
	results := []model.RetrievalResult{}
	if strings.TrimSpace(userID) == "" {
		log.Warnf("[KnowledgeBase] 检索缺少 user_id，拒绝执行")
		return results
	}
	if maxResults <= 0 {
		maxResults = x.opts.DefaultResults
	}

	filter := vectorstore.Filter{}
	for k, v := range extraFilters {
		filter[k] = v
	}
	filter[model.FieldUserID] = userID

	var matches []vectorstore.Match
	err := x.opts.Retry.Do(ctx, func(ctx context.Context) error {
		var err error
		matches, err = x.store.Query(ctx, query, filter, maxResults)
		return err
	})
	if err != nil {
		log.Errorf("[KnowledgeBase] 检索失败, user_id=%s: %v", userID, err)
		return results
	}

	for _, m := range matches {
		if m.Metadata.UserID != userID {
			log.Errorw("[KnowledgeBase] 检索结果租户不匹配，已丢弃", "chunk_id", m.ID, "want", userID, "got", m.Metadata.UserID)
			continue
		}
		results = append(results, model.RetrievalResult{
			Text:           m.Text,
			Metadata:       m.Metadata,
			RelevanceScore: Relevance(m.Distance),
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].RelevanceScore > results[j].RelevanceScore
	})
	if len(results) > maxResults {
		results = results[:maxResults]
	}
	return results
}

// Relevance 把存储返回的距离换算为 (0,1] 区间的相关度，随距离单调不增。
func Relevance(distance float64) float64 {
	if distance < 0 {
		distance = 0
	}
	return 1 / (1 + distance)
}

// DeleteByFileID 删除文件的全部分块。userID 非空时额外要求租户匹配。文件不存在时什么也不做。
func (x *Index) DeleteByFileID(ctx context.Context, fileID, userID string) error {
	if strings.TrimSpace(fileID) == "" {
		return fmt.Errorf("%w: file_id is required", ErrValidation)
	}
	filter := vectorstore.Filter{model.FieldFileID: fileID}
	if userID != "" {
		filter[model.FieldUserID] = userID
	}
	n, err := x.deleteMatching(ctx, filter)
	if err != nil {
		return fmt.Errorf("删除文件分块失败 (file_id=%s): %w", fileID, err)
	}
	if n > 0 {
		log.Infof("[KnowledgeBase] 已删除文件 %s 的 %d 个分块", fileID, n)
	}
	return nil
}

// DeleteByUserID 删除租户的全部分块。
func (x *Index) DeleteByUserID(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("%w: user_id is required", ErrValidation)
	}
	n, err := x.deleteMatching(ctx, vectorstore.Filter{model.FieldUserID: userID})
	if err != nil {
		return fmt.Errorf("删除租户分块失败 (user_id=%s): %w", userID, err)
	}
	log.Infof("[KnowledgeBase] 已删除租户 %s 的 %d 个分块", userID, n)
	return nil
}

// deleteMatching 分批扫描并删除，直到没有匹配记录。
func (x *Index) deleteMatching(ctx context.Context, filter vectorstore.Filter) (int, error) {
	total := 0
	for {
		records, err := x.scan(ctx, filter, x.opts.MaxDocuments)
		if err != nil {
			return total, err
		}
		if len(records) == 0 {
			return total, nil
		}
		ids := make([]string, len(records))
		for i, r := range records {
			ids[i] = r.ID
		}
		err = x.opts.Retry.Do(ctx, func(ctx context.Context) error {
			return x.store.Delete(ctx, ids)
		})
		if err != nil {
			return total, err
		}
		total += len(ids)
		if len(records) < x.opts.MaxDocuments {
			return total, nil
		}
	}
}

// GetFilesByUser 返回租户拥有的 file_id，已排序。
func (x *Index) GetFilesByUser(ctx context.Context, userID string) ([]string, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrValidation)
	}
	records, err := x.scan(ctx, vectorstore.Filter{model.FieldUserID: userID}, x.opts.MaxDocuments)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	files := make([]string, 0)
	for _, r := range records {
		if _, ok := seen[r.Metadata.FileID]; ok {
			continue
		}
		seen[r.Metadata.FileID] = struct{}{}
		files = append(files, r.Metadata.FileID)
	}
	sort.Strings(files)
	return files, nil
}

// GetFileTags 返回文件各分块标签的并集，按首次出现顺序。
func (x *Index) GetFileTags(ctx context.Context, fileID, userID string) ([]string, error) {
	filter := vectorstore.Filter{model.FieldFileID: fileID}
	if userID != "" {
		filter[model.FieldUserID] = userID
	}
	records, err := x.scan(ctx, filter, x.opts.MaxDocuments)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	tags := make([]string, 0)
	for _, r := range records {
		for _, t := range r.Metadata.Tags {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			tags = append(tags, t)
		}
	}
	return tags, nil
}

// CountChunks 返回文件的分块数量，上限为 MaxDocuments。
func (x *Index) CountChunks(ctx context.Context, fileID, userID string) (int, error) {
	filter := vectorstore.Filter{model.FieldFileID: fileID}
	if userID != "" {
		filter[model.FieldUserID] = userID
	}
	records, err := x.scan(ctx, filter, x.opts.MaxDocuments)
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// GetStats 统计全库。最多统计 MaxDocuments 个分块，库中分块更多时 Truncated 置为 true。
func (x *Index) GetStats(ctx context.Context) (model.IndexStats, error) {
	// 多取一条用于判断是否还有剩余
	records, err := x.scan(ctx, nil, x.opts.MaxDocuments+1)
	if err != nil {
		return model.IndexStats{}, err
	}
	truncated := len(records) > x.opts.MaxDocuments
	if truncated {
		records = records[:x.opts.MaxDocuments]
	}
	files := make(map[string]struct{})
	users := make(map[string]struct{})
	for _, r := range records {
		files[r.Metadata.FileID] = struct{}{}
		users[r.Metadata.UserID] = struct{}{}
	}
	return model.IndexStats{
		TotalChunks:   len(records),
		DistinctFiles: len(files),
		DistinctUsers: len(users),
		Truncated:     truncated,
	}, nil
}

func (x *Index) scan(ctx context.Context, filter vectorstore.Filter, limit int) ([]vectorstore.Record, error) {
	var records []vectorstore.Record
	err := x.opts.Retry.Do(ctx, func(ctx context.Context) error {
		var err error
		records, err = x.store.Scan(ctx, filter, limit)
		return err
	})
	return records, err
}
