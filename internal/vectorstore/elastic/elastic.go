// Package elastic 实现基于 Elasticsearch dense_vector + kNN 的相似度存储。
package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"docsage-go/internal/model"
	"docsage-go/internal/vectorstore"
	"docsage-go/pkg/embedding"
	"docsage-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
)

// maxWindow 是 Elasticsearch 默认的 index.max_result_window。
const maxWindow = 10000

// Store 把分块文本经 embedding 服务向量化后写入 Elasticsearch。
type Store struct {
	es       *elasticsearch.Client
	embedder embedding.Client
	index    string
}

var _ vectorstore.Store = (*Store)(nil)

func NewStore(es *elasticsearch.Client, embedder embedding.Client, index string) *Store {
	return &Store{es: es, embedder: embedder, index: index}
}

// document 是写入 Elasticsearch 的文档结构，字段与 pkg/es 中的 mapping 对应。
type document struct {
	ChunkID   string    `json:"chunk_id"`
	FileID    string    `json:"file_id"`
	UserID    string    `json:"user_id"`
	Source    string    `json:"source"`
	Page      string    `json:"page"`
	Tags      []string  `json:"tags"`
	Text      string    `json:"text"`
	IndexedAt time.Time `json:"indexed_at"`
	Vector    []float32 `json:"vector,omitempty"`
}

func (d document) record() vectorstore.Record {
	return vectorstore.Record{
		ID:   d.ChunkID,
		Text: d.Text,
		Metadata: model.ChunkMetadata{
			FileID:    d.FileID,
			UserID:    d.UserID,
			Source:    d.Source,
			Page:      d.Page,
			Tags:      d.Tags,
			IndexedAt: d.IndexedAt,
		},
	}
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string   `json:"_id"`
			Score  float64  `json:"_score"`
			Source document `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Add 批量向量化后通过 _bulk 写入。
func (s *Store) Add(ctx context.Context, ids, texts []string, metas []model.ChunkMetadata) error {
	if len(ids) != len(texts) || len(ids) != len(metas) {
		return fmt.Errorf("ids, texts and metadata length mismatch")
	}
	if len(ids) == 0 {
		return nil
	}
	vectors, err := s.embedder.CreateEmbeddings(ctx, texts)
	if err != nil {
		return fmt.Errorf("向量化分块失败: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i, id := range ids {
		m := metas[i]
		if err := enc.Encode(map[string]any{"index": map[string]any{"_index": s.index, "_id": id}}); err != nil {
			return err
		}
		doc := document{
			ChunkID:   id,
			FileID:    m.FileID,
			UserID:    m.UserID,
			Source:    m.Source,
			Page:      m.Page,
			Tags:      m.Tags,
			Text:      texts[i],
			IndexedAt: m.IndexedAt,
			Vector:    vectors[i],
		}
		if err := enc.Encode(doc); err != nil {
			return err
		}
	}
	return s.bulk(ctx, &buf)
}

// Query 使用带过滤的 kNN 检索。cosine 相似度下 _score = (1+cos)/2，
// 换算为距离 1-cos = 2*(1-_score)，取值 [0,2]。
func (s *Store) Query(ctx context.Context, text string, filter vectorstore.Filter, maxResults int) ([]vectorstore.Match, error) {
	if maxResults <= 0 {
		return nil, nil
	}
	vector, err := s.embedder.CreateEmbedding(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("向量化查询失败: %w", err)
	}

	knn := map[string]any{
		"field":          "vector",
		"query_vector":   vector,
		"k":              maxResults,
		"num_candidates": numCandidates(maxResults),
	}
	if f := termFilters(filter); len(f) > 0 {
		knn["filter"] = map[string]any{"bool": map[string]any{"filter": f}}
	}
	body := map[string]any{
		"knn":     knn,
		"size":    maxResults,
		"_source": map[string]any{"excludes": []string{"vector"}},
	}

	resp, err := s.search(ctx, body)
	if err != nil {
		return nil, err
	}
	out := make([]vectorstore.Match, 0, len(resp.Hits.Hits))
	for _, h := range resp.Hits.Hits {
		rec := h.Source.record()
		if rec.ID == "" {
			rec.ID = h.ID
		}
		d := 2 * (1 - h.Score)
		if d < 0 {
			d = 0
		}
		out = append(out, vectorstore.Match{Record: rec, Distance: d})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	return out, nil
}

// Delete 通过 _bulk 删除，不存在的 id 返回 not_found，不视为错误。
func (s *Store) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, id := range ids {
		if err := enc.Encode(map[string]any{"delete": map[string]any{"_index": s.index, "_id": id}}); err != nil {
			return err
		}
	}
	return s.bulk(ctx, &buf)
}

// Scan 按 indexed_at 升序返回满足过滤条件的记录。limit 受 max_result_window 限制。
func (s *Store) Scan(ctx context.Context, filter vectorstore.Filter, limit int) ([]vectorstore.Record, error) {
	if limit <= 0 || limit > maxWindow {
		limit = maxWindow
	}
	query := map[string]any{"match_all": map[string]any{}}
	if f := termFilters(filter); len(f) > 0 {
		query = map[string]any{"bool": map[string]any{"filter": f}}
	}
	body := map[string]any{
		"query":   query,
		"size":    limit,
		"sort":    []any{map[string]any{"indexed_at": "asc"}},
		"_source": map[string]any{"excludes": []string{"vector"}},
	}
	resp, err := s.search(ctx, body)
	if err != nil {
		return nil, err
	}
	out := make([]vectorstore.Record, 0, len(resp.Hits.Hits))
	for _, h := range resp.Hits.Hits {
		rec := h.Source.record()
		if rec.ID == "" {
			rec.ID = h.ID
		}
		out = append(out, rec)
	}
	return out, nil
}

func numCandidates(k int) int {
	n := k * 10
	if n < 100 {
		n = 100
	}
	if n > maxWindow {
		n = maxWindow
	}
	return n
}

// termFilters 按键排序生成 term 过滤，保证请求体稳定。
func termFilters(filter vectorstore.Filter) []any {
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]any, 0, len(keys))
	for _, k := range keys {
		out = append(out, map[string]any{"term": map[string]any{k: filter[k]}})
	}
	return out
}

func (s *Store) search(ctx context.Context, body map[string]any) (*searchResponse, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, fmt.Errorf("failed to encode es query: %w", err)
	}
	res, err := s.es.Search(
		s.es.Search.WithContext(ctx),
		s.es.Search.WithIndex(s.index),
		s.es.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		b, _ := io.ReadAll(res.Body)
		log.Errorf("[ElasticStore] Elasticsearch 返回错误, status: %s, body: %s", res.Status(), string(b))
		return nil, fmt.Errorf("elasticsearch returned an error: %s", res.Status())
	}
	var out searchResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode es response: %w", err)
	}
	return &out, nil
}

func (s *Store) bulk(ctx context.Context, body io.Reader) error {
	res, err := s.es.Bulk(body,
		s.es.Bulk.WithContext(ctx),
		s.es.Bulk.WithRefresh("wait_for"),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch bulk failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		b, _ := io.ReadAll(res.Body)
		return fmt.Errorf("elasticsearch bulk returned %s: %s", res.Status(), string(b))
	}

	var out struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			Status int `json:"status"`
			Error  *struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return fmt.Errorf("failed to decode bulk response: %w", err)
	}
	if !out.Errors {
		return nil
	}
	for _, item := range out.Items {
		for op, r := range item {
			if r.Error != nil && !(op == "delete" && r.Status == 404) {
				return fmt.Errorf("bulk %s failed: %s: %s", op, r.Error.Type, r.Error.Reason)
			}
		}
	}
	return nil
}
