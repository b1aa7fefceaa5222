// Package vectorstore 定义知识库使用的相似度存储接口。
package vectorstore

import (
	"context"

	"docsage-go/internal/model"
)

// Filter 是元数据等值过滤条件，所有键必须同时匹配。
type Filter map[string]string

// Matches 判断元数据是否满足过滤条件。未知字段视为不匹配。
func (f Filter) Matches(meta model.ChunkMetadata) bool {
	for k, want := range f {
		got, ok := meta.Field(k)
		if !ok || got != want {
			return false
		}
	}
	return true
}

// Record 是存储中的一条分块记录。
type Record struct {
	ID       string
	Text     string
	Metadata model.ChunkMetadata
}

// Match 是一次相似度查询的命中，Distance 越小越相似。
type Match struct {
	Record
	Distance float64
}

// Store 是相似度存储的最小能力集合。
type Store interface {
	// Add 写入分块，ids、texts、metas 按下标一一对应。
	Add(ctx context.Context, ids, texts []string, metas []model.ChunkMetadata) error
	// Query 返回与 text 最相近、满足 filter 的至多 maxResults 条记录，按距离升序。
	Query(ctx context.Context, text string, filter Filter, maxResults int) ([]Match, error)
	// Delete 删除指定 id，不存在的 id 忽略。
	Delete(ctx context.Context, ids []string) error
	// Scan 返回满足 filter 的记录，至多 limit 条。
	Scan(ctx context.Context, filter Filter, limit int) ([]Record, error)
}
