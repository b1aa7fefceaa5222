package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"docsage-go/internal/middleware"
	"docsage-go/internal/model"
	"docsage-go/internal/repository"
	"docsage-go/internal/service"
	"docsage-go/pkg/log"
	"docsage-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var (
	upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // 允许所有来源
		},
	}
)

// ReindexRunner 是触发和查询重建索引的能力。
type ReindexRunner interface {
	Trigger(userID string) bool
	Status(ctx context.Context, userID string) (repository.ReindexStatus, error)
}

// ChatHandler 负责处理问答相关的 REST 请求和 WebSocket 聊天连接。
type ChatHandler struct {
	chatService   service.ChatService
	conversations service.ConversationService
	reindex       ReindexRunner
	jwtManager    *token.JWTManager
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(chatService service.ChatService, conversations service.ConversationService, reindex ReindexRunner, jwtManager *token.JWTManager) *ChatHandler {
	return &ChatHandler{
		chatService:   chatService,
		conversations: conversations,
		reindex:       reindex,
		jwtManager:    jwtManager,
	}
}

// ChatRequest 是一次提问。
type ChatRequest struct {
	Query string `json:"query" binding:"required"`
	Model string `json:"model"`
}

// TextRequest 是摘要和改写的请求体。
type TextRequest struct {
	Text  string `json:"text" binding:"required"`
	Model string `json:"model"`
}

// wsMessage 是 WebSocket 上客户端发来的一轮输入。
type wsMessage struct {
	Content string `json:"content"`
	Model   string `json:"model"`
}

// wsReply 是 WebSocket 上返回的一轮输出。
type wsReply struct {
	Role       string                  `json:"role"`
	Content    string                  `json:"content"`
	RAGContext []model.RetrievalResult `json:"ragContext"`
	Model      string                  `json:"model"`
}

// Chat 基于当前用户的知识库回答问题。生成失败时仍返回 200 和致歉文案。
func (h *ChatHandler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Query) == "" {
		respond(c, http.StatusBadRequest, "无效的请求负载", nil)
		return
	}
	userID := middleware.UserID(c)
	resp := h.chatService.GenerateResponse(c.Request.Context(), req.Query, userID, req.Model)
	h.record(c.Request.Context(), userID, req.Query, resp.Content, resp.ModelID)
	respond(c, http.StatusOK, "success", resp)
}

func (h *ChatHandler) Summarize(c *gin.Context) {
	var req TextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, http.StatusBadRequest, "无效的请求负载", nil)
		return
	}
	respond(c, http.StatusOK, "success", h.chatService.SummarizeText(c.Request.Context(), req.Text, req.Model))
}

func (h *ChatHandler) Humanize(c *gin.Context) {
	var req TextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, http.StatusBadRequest, "无效的请求负载", nil)
		return
	}
	respond(c, http.StatusOK, "success", h.chatService.HumanizeText(c.Request.Context(), req.Text, req.Model))
}

// Models 返回可用模型列表。
func (h *ChatHandler) Models(c *gin.Context) {
	respond(c, http.StatusOK, "success", gin.H{"models": h.chatService.AvailableModels(c.Request.Context())})
}

// Reindex 在后台为当前用户重建索引，立即返回 202。
// 已有任务在运行时不再启动新任务，started 为 false。
func (h *ChatHandler) Reindex(c *gin.Context) {
	userID := middleware.UserID(c)
	started := h.reindex.Trigger(userID)
	if started {
		log.Infof("[ChatHandler] 已为用户 %s 启动重建索引", userID)
	} else {
		log.Infof("[ChatHandler] 用户 %s 的重建索引已在运行", userID)
	}
	respond(c, http.StatusAccepted, "accepted", gin.H{"started": started})
}

// ReindexStatus 返回最近一次重建索引的状态。
func (h *ChatHandler) ReindexStatus(c *gin.Context) {
	st, err := h.reindex.Status(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		log.Errorf("[ChatHandler] 获取重建索引状态失败: %v", err)
		respond(c, http.StatusInternalServerError, "获取重建索引状态失败", nil)
		return
	}
	respond(c, http.StatusOK, "success", st)
}

// Handle 处理一个传入的 WebSocket 连接。令牌通过路径参数传递。
// 连接结束时（正常断开或出错）把本次会话的全部轮次归档到对象存储。
func (h *ChatHandler) Handle(c *gin.Context) {
	claims, err := h.jwtManager.VerifyToken(c.Param("token"))
	if err != nil {
		respond(c, http.StatusUnauthorized, "无效的 token", nil)
		return
	}
	userID := claims.UserID

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	startedAt := time.Now()
	var turns []model.ConversationTurn
	defer func() {
		// 请求 context 此时可能已取消
		if _, err := h.conversations.Archive(context.Background(), userID, startedAt, turns); err != nil {
			log.Errorf("[ChatHandler] 归档会话失败, user_id=%s: %v", userID, err)
		}
	}()

	log.Infof("WebSocket 连接已建立，用户: %s", userID)
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warnf("从 WebSocket 读取消息失败: %v", err)
			}
			return
		}

		in := parseWSMessage(message)
		if strings.TrimSpace(in.Content) == "" {
			continue
		}

		resp := h.chatService.GenerateResponse(c.Request.Context(), in.Content, userID, in.Model)
		turns = append(turns, model.ConversationTurn{
			Timestamp: time.Now().UTC(),
			Query:     in.Content,
			Response:  resp.Content,
			Model:     resp.ModelID,
		})
		h.record(c.Request.Context(), userID, in.Content, resp.Content, resp.ModelID)

		if err := conn.WriteJSON(wsReply{
			Role:       "assistant",
			Content:    resp.Content,
			RAGContext: resp.RAGContext,
			Model:      resp.ModelID,
		}); err != nil {
			log.Warnf("向 WebSocket 写入响应失败: %v", err)
			return
		}
	}
}

// parseWSMessage 接受 JSON 形式的 {content, model}，其他内容整体视为问题文本。
func parseWSMessage(message []byte) wsMessage {
	var in wsMessage
	if len(message) > 0 && message[0] == '{' {
		if err := json.Unmarshal(message, &in); err == nil {
			return in
		}
	}
	return wsMessage{Content: string(message)}
}

func (h *ChatHandler) record(ctx context.Context, userID, query, response, modelID string) {
	if userID == "" {
		return
	}
	err := h.conversations.Record(ctx, userID, model.ConversationTurn{
		Timestamp: time.Now().UTC(),
		Query:     query,
		Response:  response,
		Model:     modelID,
	})
	if err != nil {
		log.Warnf("[ChatHandler] 保存对话历史失败, user_id=%s: %v", userID, err)
	}
}
