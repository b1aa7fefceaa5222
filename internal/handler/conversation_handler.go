package handler

import (
	"net/http"

	"docsage-go/internal/middleware"
	"docsage-go/internal/service"
	"docsage-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// ConversationHandler 处理与对话历史相关的 API 请求。
type ConversationHandler struct {
	service service.ConversationService
}

// NewConversationHandler 创建一个新的 ConversationHandler。
func NewConversationHandler(service service.ConversationService) *ConversationHandler {
	return &ConversationHandler{service: service}
}

// GetHistory 返回 Redis 中保留的近期对话。
func (h *ConversationHandler) GetHistory(c *gin.Context) {
	history, err := h.service.History(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		log.Errorf("[ConversationHandler] 获取对话历史失败: %v", err)
		respond(c, http.StatusInternalServerError, "Failed to retrieve conversation history", nil)
		return
	}
	respond(c, http.StatusOK, "success", history)
}

// Export 把近期对话写入对象存储并返回文件位置。
func (h *ConversationHandler) Export(c *gin.Context) {
	key, n, err := h.service.Export(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		log.Errorf("[ConversationHandler] 导出对话历史失败: %v", err)
		respond(c, http.StatusInternalServerError, "Failed to export conversation history", nil)
		return
	}
	respond(c, http.StatusOK, "success", gin.H{"path": key, "turns": n})
}

// ClearHistory 清空近期对话，已归档和导出的文件不受影响。
func (h *ConversationHandler) ClearHistory(c *gin.Context) {
	if err := h.service.Clear(c.Request.Context(), middleware.UserID(c)); err != nil {
		log.Errorf("[ConversationHandler] 清空对话历史失败: %v", err)
		respond(c, http.StatusInternalServerError, "Failed to clear conversation history", nil)
		return
	}
	respond(c, http.StatusOK, "对话历史已清空", nil)
}
