// Package model 包含了应用的数据模型定义。
package model

import "time"

// 元数据字段名，同时也是 Elasticsearch 中的字段名和检索过滤条件的键。
const (
	FieldFileID    = "file_id"
	FieldUserID    = "user_id"
	FieldSource    = "source"
	FieldPage      = "page"
	FieldTags      = "tags"
	FieldIndexedAt = "indexed_at"
)

// ChunkMetadata 随分块一起写入向量库。
type ChunkMetadata struct {
	FileID    string    `json:"file_id"`
	UserID    string    `json:"user_id"`
	Source    string    `json:"source"`
	Page      string    `json:"page"`
	Tags      []string  `json:"tags"`
	IndexedAt time.Time `json:"indexed_at"`
}

// Field 返回可用于等值过滤的标量字段，tags 等非标量字段返回 false。
func (m ChunkMetadata) Field(key string) (string, bool) {
	switch key {
	case FieldFileID:
		return m.FileID, true
	case FieldUserID:
		return m.UserID, true
	case FieldSource:
		return m.Source, true
	case FieldPage:
		return m.Page, true
	}
	return "", false
}

// Chunk 是知识库中的最小检索单元，一页文本对应一个分块。
// 创建后不再修改，只能整体删除。
type Chunk struct {
	ChunkID  string
	Text     string
	Metadata ChunkMetadata
}

// RetrievalResult 是一次检索返回的单条结果。
type RetrievalResult struct {
	Text           string        `json:"text"`
	Metadata       ChunkMetadata `json:"metadata"`
	RelevanceScore float64       `json:"relevanceScore"`
}

// IndexStats 是知识库的聚合统计。
type IndexStats struct {
	TotalChunks   int `json:"totalChunks"`
	DistinctFiles int `json:"distinctFiles"`
	DistinctUsers int `json:"distinctUsers"`
	// Truncated 表示库中分块数超过 max_documents，统计值只覆盖前 max_documents 个。
	Truncated bool `json:"truncated"`
}
