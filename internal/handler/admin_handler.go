package handler

import (
	"net/http"

	"docsage-go/internal/middleware"
	"docsage-go/internal/service"
	"docsage-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// AdminHandler 负责处理所有与管理员相关的 API 请求。
type AdminHandler struct {
	adminService service.AdminService
}

// NewAdminHandler 创建一个新的 AdminHandler 实例。
func NewAdminHandler(adminService service.AdminService) *AdminHandler {
	return &AdminHandler{adminService: adminService}
}

// Stats 返回知识库的全局统计。
func (h *AdminHandler) Stats(c *gin.Context) {
	stats, err := h.adminService.Stats(c.Request.Context())
	if err != nil {
		log.Errorf("[AdminHandler] 获取统计失败: %v", err)
		respond(c, http.StatusInternalServerError, "获取统计失败", nil)
		return
	}
	respond(c, http.StatusOK, "success", stats)
}

// PurgeUser 删除指定租户的全部数据。
func (h *AdminHandler) PurgeUser(c *gin.Context) {
	userID := c.Param("userId")
	if userID == "" {
		respond(c, http.StatusBadRequest, "缺少 userId", nil)
		return
	}
	res, err := h.adminService.PurgeUser(c.Request.Context(), userID)
	if err != nil {
		log.Errorf("[AdminHandler] 清理租户 %s 失败: %v", userID, err)
		respond(c, http.StatusInternalServerError, "清理租户数据失败", nil)
		return
	}
	log.Infof("[AdminHandler] 管理员 %s 清理了租户 %s", middleware.UserID(c), userID)
	respond(c, http.StatusOK, "success", res)
}
