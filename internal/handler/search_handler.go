package handler

import (
	"net/http"
	"strconv"

	"docsage-go/internal/middleware"
	"docsage-go/internal/model"
	"docsage-go/internal/service"
	"docsage-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// maxSearchTopK 是单次检索允许返回的最大条数。
const maxSearchTopK = 50

// SearchHandler 结构体定义了搜索相关的处理器。
type SearchHandler struct {
	retriever service.Retriever
}

// NewSearchHandler 创建一个新的 SearchHandler 实例。
func NewSearchHandler(retriever service.Retriever) *SearchHandler {
	return &SearchHandler{retriever: retriever}
}

// Search 在当前用户的知识库中检索，topK 缺省或非法时使用索引的默认条数，超过 maxSearchTopK 时截断。
func (h *SearchHandler) Search(c *gin.Context) {
	query := c.Query("query")
	log.Infof("[SearchHandler] 收到搜索请求, query: %s", query)

	if query == "" {
		log.Warnf("[SearchHandler] 搜索请求失败: query 参数为空")
		respond(c, http.StatusBadRequest, "无效的查询参数", nil)
		return
	}
	topK, err := strconv.Atoi(c.Query("topK"))
	if err != nil || topK <= 0 {
		topK = 0
	}
	if topK > maxSearchTopK {
		topK = maxSearchTopK
	}

	filters := map[string]string{}
	if fileID := c.Query("fileId"); fileID != "" {
		filters[model.FieldFileID] = fileID
	}

	results := h.retriever.Search(c.Request.Context(), query, middleware.UserID(c), topK, filters)
	log.Infof("[SearchHandler] 搜索完成, query: '%s', 返回 %d 条结果", query, len(results))
	respond(c, http.StatusOK, "success", results)
}
