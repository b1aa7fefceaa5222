// Package memory 提供进程内的相似度存储，使用词项重叠（Ochiai 系数）作为相似度，
// 用于本地开发和测试，不依赖 embedding 服务。
package memory

import (
	"context"
	"errors"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"

	"docsage-go/internal/model"
	"docsage-go/internal/vectorstore"
)

var wordRe = regexp.MustCompile(`[\p{L}\p{N}]+`)

type entry struct {
	record vectorstore.Record
	tokens map[string]struct{}
	seq    int
}

// Store 是线程安全的内存存储。
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
	seq     int
}

var _ vectorstore.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{entries: make(map[string]*entry)}
}

// Add 写入分块，重复 id 覆盖旧值。
func (s *Store) Add(_ context.Context, ids, texts []string, metas []model.ChunkMetadata) error {
	if len(ids) != len(texts) || len(ids) != len(metas) {
		return errors.New("ids, texts and metadata length mismatch")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, id := range ids {
		s.seq++
		s.entries[id] = &entry{
			record: vectorstore.Record{ID: id, Text: texts[i], Metadata: metas[i]},
			tokens: tokenSet(texts[i]),
			seq:    s.seq,
		}
	}
	return nil
}

// Query 距离定义为 1 - Ochiai 系数，取值 [0,1]。
func (s *Store) Query(ctx context.Context, text string, filter vectorstore.Filter, maxResults int) ([]vectorstore.Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if maxResults <= 0 {
		return nil, nil
	}
	q := tokenSet(text)

	s.mu.RLock()
	matches := make([]vectorstore.Match, 0)
	seqs := make(map[string]int)
	for id, e := range s.entries {
		if !filter.Matches(e.record.Metadata) {
			continue
		}
		matches = append(matches, vectorstore.Match{Record: e.record, Distance: 1 - ochiai(q, e.tokens)})
		seqs[id] = e.seq
	}
	s.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return seqs[matches[i].ID] < seqs[matches[j].ID]
	})
	if len(matches) > maxResults {
		matches = matches[:maxResults]
	}
	return matches, nil
}

func (s *Store) Delete(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.entries, id)
	}
	return nil
}

// Scan 按写入顺序返回。
func (s *Store) Scan(ctx context.Context, filter vectorstore.Filter, limit int) ([]vectorstore.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	all := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		if filter.Matches(e.record.Metadata) {
			all = append(all, e)
		}
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].seq < all[j].seq })
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	out := make([]vectorstore.Record, len(all))
	for i, e := range all {
		out[i] = e.record
	}
	return out, nil
}

// Len 返回当前记录数。
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func tokenSet(text string) map[string]struct{} {
	tokens := wordRe.FindAllString(strings.ToLower(text), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

// ochiai |A∩B| / sqrt(|A||B|)
func ochiai(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	return float64(inter) / math.Sqrt(float64(len(a))*float64(len(b)))
}
