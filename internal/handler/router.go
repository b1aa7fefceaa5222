package handler

import (
	"docsage-go/internal/middleware"
	"docsage-go/pkg/token"

	"github.com/gin-gonic/gin"
)

// Handlers 汇总路由需要的全部处理器。
type Handlers struct {
	Files         *FileHandler
	Search        *SearchHandler
	Chat          *ChatHandler
	Conversations *ConversationHandler
	Admin         *AdminHandler
}

// RegisterRoutes 注册全部路由。上传接口按客户端 IP 限流。
func RegisterRoutes(r *gin.Engine, h Handlers, jwtManager *token.JWTManager, uploadPerMinute int) {
	api := r.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(jwtManager))
	{
		files := api.Group("/files")
		files.POST("", middleware.RateLimit(uploadPerMinute), h.Files.Upload)
		files.GET("", h.Files.List)
		files.GET("/:fileId", h.Files.Get)
		files.DELETE("/:fileId", h.Files.Delete)
		files.GET("/:fileId/tags", h.Files.Tags)
		files.GET("/:fileId/status", h.Files.Status)

		api.GET("/search", h.Search.Search)

		chat := api.Group("/chat")
		chat.POST("", h.Chat.Chat)
		chat.POST("/summarize", h.Chat.Summarize)
		chat.POST("/humanize", h.Chat.Humanize)
		chat.GET("/models", h.Chat.Models)
		chat.POST("/reindex", h.Chat.Reindex)
		chat.GET("/reindex/status", h.Chat.ReindexStatus)
		chat.GET("/history", h.Conversations.GetHistory)
		chat.POST("/export", h.Conversations.Export)
		chat.DELETE("/history", h.Conversations.ClearHistory)

		admin := api.Group("/admin")
		admin.Use(middleware.AdminAuthMiddleware())
		admin.GET("/stats", h.Admin.Stats)
		admin.DELETE("/users/:userId/chunks", h.Admin.PurgeUser)
	}

	// WebSocket 路由，令牌在路径中
	r.GET("/chat/:token", h.Chat.Handle)
}
