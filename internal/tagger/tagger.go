// Package tagger 为文本分块生成轻量标签，用于检索结果的可发现性。
package tagger

import (
	"regexp"
	"strings"
)

// MaxTags 单个分块最多保留的标签数。
const MaxTags = 10

// Tagger 可替换的打标签能力。实现必须对相同输入给出相同输出。
type Tagger interface {
	GenerateTags(text string) []string
}

var wordRe = regexp.MustCompile(`[\p{L}\p{N}]+`)

var fallbackTags = []string{"document", "text"}

// KeywordTagger 基于关键词的占位实现：小写、分词、去停用词和短词、去重。
type KeywordTagger struct {
	stopwords map[string]struct{}
}

// NewKeywordTagger 使用内置停用词表创建 KeywordTagger。
func NewKeywordTagger() *KeywordTagger {
	return &KeywordTagger{stopwords: defaultStopwords()}
}

// GenerateTags 按首次出现顺序返回至多 MaxTags 个标签，结果为空时返回 ["document","text"]。
func (t *KeywordTagger) GenerateTags(text string) []string {
	tokens := wordRe.FindAllString(strings.ToLower(text), -1)
	seen := make(map[string]struct{}, len(tokens))
	tags := make([]string, 0, MaxTags)
	for _, tok := range tokens {
		if len([]rune(tok)) <= 3 {
			continue
		}
		if _, stop := t.stopwords[tok]; stop {
			continue
		}
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		tags = append(tags, tok)
		if len(tags) == MaxTags {
			break
		}
	}
	if len(tags) == 0 {
		return append([]string(nil), fallbackTags...)
	}
	return tags
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"that", "have", "with", "this", "from", "they", "been", "than", "were", "said",
		"each", "which", "their", "time", "will", "about", "many", "then", "them", "these",
		"some", "would", "make", "like", "into", "more", "very", "what", "know", "just",
		"first", "over", "think", "also", "your", "work", "life", "only", "still", "should",
		"after", "there", "where", "when", "those", "being", "other", "could",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
