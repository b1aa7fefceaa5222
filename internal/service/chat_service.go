// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"docsage-go/internal/model"
	"docsage-go/pkg/llm"
	"docsage-go/pkg/log"
	"docsage-go/pkg/retry"
)

// 生成失败时返回给用户的固定文案
const (
	ApologyResponse = "Sorry, I couldn't generate a response. Please try again later."
	ApologySummary  = "Sorry, I couldn't generate a summary. Please try again later."
	ApologyHumanize = "Sorry, I couldn't rewrite the text. Please try again later."
)

const (
	summarizeInstruction = "Summarize the following text in a concise manner while preserving the key information:"
	humanizeInstruction  = "Rewrite the following text in a more conversational and human-like tone, making it more engaging and easier to understand:"
)

// Retriever 是对话编排依赖的检索能力。
type Retriever interface {
	Search(ctx context.Context, query, userID string, maxResults int, extraFilters map[string]string) []model.RetrievalResult
}

// ChatResponse 是一次问答的结果。
type ChatResponse struct {
	Content    string                  `json:"content"`
	RAGContext []model.RetrievalResult `json:"ragContext"`
	ModelID    string                  `json:"model"`
}

// GenerationResponse 是摘要、改写等无需检索的生成结果。
type GenerationResponse struct {
	Content string `json:"content"`
	ModelID string `json:"model"`
}

// ChatService 定义了对话编排的接口。所有方法都不返回错误，失败时降级为固定文案。
type ChatService interface {
	GenerateResponse(ctx context.Context, query, userID, modelID string) ChatResponse
	SummarizeText(ctx context.Context, text, modelID string) GenerationResponse
	HumanizeText(ctx context.Context, text, modelID string) GenerationResponse
	AvailableModels(ctx context.Context) []string
}

// ChatOptions 控制对话编排。
type ChatOptions struct {
	DefaultModel   string
	ContextResults int
	Retry          retry.Policy
}

type chatService struct {
	retriever Retriever
	llmClient llm.Client
	opts      ChatOptions
}

// NewChatService 创建一个新的 ChatService 实例。retriever 可以为 nil，此时不做检索增强。
func NewChatService(retriever Retriever, llmClient llm.Client, opts ChatOptions) ChatService {
	if opts.ContextResults <= 0 {
		opts.ContextResults = 5
	}
	return &chatService{retriever: retriever, llmClient: llmClient, opts: opts}
}

// GenerateResponse 检索完成后才构建 prompt；检索结果为空时直接使用原始问题。
func (s *chatService) GenerateResponse(ctx context.Context, query, userID, modelID string) ChatResponse {
	modelName := s.pickModel(modelID)

	ragContext := []model.RetrievalResult{}
	if s.retriever != nil && userID != "" {
		log.Infof("[ChatService] 步骤1: 检索上下文, user_id=%s", userID)
		ragContext = s.retriever.Search(ctx, query, userID, s.opts.ContextResults, nil)
		log.Infof("[ChatService] 检索到 %d 条上下文", len(ragContext))
	}

	prompt := query
	if len(ragContext) > 0 {
		prompt = BuildRAGPrompt(query, ragContext)
	}

	log.Infof("[ChatService] 步骤2: 调用模型 %s", modelName)
	content, err := s.chat(ctx, modelName, prompt)
	if err != nil {
		log.Errorf("[ChatService] 生成回答失败, model=%s: %v", modelName, err)
		return ChatResponse{Content: ApologyResponse, RAGContext: []model.RetrievalResult{}, ModelID: modelName}
	}
	return ChatResponse{Content: content, RAGContext: ragContext, ModelID: modelName}
}

func (s *chatService) SummarizeText(ctx context.Context, text, modelID string) GenerationResponse {
	return s.generate(ctx, summarizeInstruction, text, modelID, ApologySummary)
}

func (s *chatService) HumanizeText(ctx context.Context, text, modelID string) GenerationResponse {
	return s.generate(ctx, humanizeInstruction, text, modelID, ApologyHumanize)
}

// AvailableModels 查询失败时只返回默认模型。
func (s *chatService) AvailableModels(ctx context.Context) []string {
	models, err := s.llmClient.ListModels(ctx)
	if err != nil || len(models) == 0 {
		if err != nil {
			log.Errorf("[ChatService] 获取模型列表失败: %v", err)
		}
		return []string{s.opts.DefaultModel}
	}
	return models
}

func (s *chatService) generate(ctx context.Context, instruction, text, modelID, apology string) GenerationResponse {
	modelName := s.pickModel(modelID)
	content, err := s.chat(ctx, modelName, instruction+"\n\n"+text)
	if err != nil {
		log.Errorf("[ChatService] 生成失败, model=%s: %v", modelName, err)
		return GenerationResponse{Content: apology, ModelID: modelName}
	}
	return GenerationResponse{Content: content, ModelID: modelName}
}

// chat 对可重试的错误做有限重试，4xx 视为永久错误。
func (s *chatService) chat(ctx context.Context, modelName, prompt string) (string, error) {
	messages := []llm.Message{{Role: "user", Content: prompt}}
	var content string
	err := s.opts.Retry.Do(ctx, func(ctx context.Context) error {
		var err error
		content, err = s.llmClient.Chat(ctx, modelName, messages)
		var se *llm.StatusError
		if errors.As(err, &se) && se.StatusCode >= 400 && se.StatusCode < 500 && se.StatusCode != 429 {
			return retry.Permanent(err)
		}
		return err
	})
	return content, err
}

func (s *chatService) pickModel(modelID string) string {
	if strings.TrimSpace(modelID) != "" {
		return modelID
	}
	return s.opts.DefaultModel
}

// BuildRAGPrompt 把检索结果连同相关度写入 prompt，要求模型优先参考上下文，不足时使用自身知识。
func BuildRAGPrompt(query string, results []model.RetrievalResult) string {
	var ctxBuilder strings.Builder
	for i, r := range results {
		if i > 0 {
			ctxBuilder.WriteString("\n\n")
		}
		ctxBuilder.WriteString(fmt.Sprintf("[Relevance: %.2f] %s", r.RelevanceScore, r.Text))
	}
	return fmt.Sprintf(`Use the following context to answer the question.
If the context is insufficient, use your own knowledge.

Context:
%s

Question:
%s

Provide a comprehensive and helpful response based on the available information.`, ctxBuilder.String(), query)
}
