package handler

import (
	"errors"
	"net/http"

	"docsage-go/internal/middleware"
	"docsage-go/internal/model"
	"docsage-go/internal/repository"
	"docsage-go/internal/service"
	"docsage-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// FileHandler 负责处理所有与文件管理相关的 API 请求。
type FileHandler struct {
	fileService service.FileService
}

// NewFileHandler 创建一个新的 FileHandler 实例。
func NewFileHandler(fileService service.FileService) *FileHandler {
	return &FileHandler{fileService: fileService}
}

// Upload 处理 multipart 单文件上传，字段名为 file。
func (h *FileHandler) Upload(c *gin.Context) {
	userID := middleware.UserID(c)
	header, err := c.FormFile("file")
	if err != nil {
		respond(c, http.StatusBadRequest, "缺少上传文件", nil)
		return
	}
	f, err := header.Open()
	if err != nil {
		log.Errorf("[FileHandler] 打开上传文件失败: %v", err)
		respond(c, http.StatusInternalServerError, "读取上传文件失败", nil)
		return
	}
	defer f.Close()

	rec, err := h.fileService.Upload(c.Request.Context(), service.UploadInput{
		UserID:      userID,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        f,
	})
	if err != nil {
		h.fail(c, "上传文件失败", err)
		return
	}
	log.Infof("[FileHandler] 用户 %s 上传文件成功, file_id=%s", userID, rec.FileID)
	respond(c, http.StatusOK, "success", rec.View())
}

// List 返回当前用户的文件列表。
func (h *FileHandler) List(c *gin.Context) {
	records, err := h.fileService.List(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		h.fail(c, "获取文件列表失败", err)
		return
	}
	views := make([]model.FileView, 0, len(records))
	for _, r := range records {
		views = append(views, r.View())
	}
	respond(c, http.StatusOK, "success", views)
}

func (h *FileHandler) Get(c *gin.Context) {
	rec, err := h.fileService.Get(c.Request.Context(), c.Param("fileId"), middleware.UserID(c))
	if err != nil {
		h.fail(c, "获取文件失败", err)
		return
	}
	respond(c, http.StatusOK, "success", rec.View())
}

func (h *FileHandler) Delete(c *gin.Context) {
	fileID := c.Param("fileId")
	if err := h.fileService.Delete(c.Request.Context(), fileID, middleware.UserID(c)); err != nil {
		h.fail(c, "删除文件失败", err)
		return
	}
	respond(c, http.StatusOK, "文件已删除", gin.H{"fileId": fileID})
}

func (h *FileHandler) Tags(c *gin.Context) {
	fileID := c.Param("fileId")
	tags, err := h.fileService.Tags(c.Request.Context(), fileID, middleware.UserID(c))
	if err != nil {
		h.fail(c, "获取文件标签失败", err)
		return
	}
	respond(c, http.StatusOK, "success", gin.H{"fileId": fileID, "tags": tags})
}

func (h *FileHandler) Status(c *gin.Context) {
	st, err := h.fileService.Status(c.Request.Context(), c.Param("fileId"), middleware.UserID(c))
	if err != nil {
		h.fail(c, "获取文件状态失败", err)
		return
	}
	respond(c, http.StatusOK, "success", st)
}

// fail 把业务错误映射为 HTTP 状态码。
func (h *FileHandler) fail(c *gin.Context, message string, err error) {
	switch {
	case errors.Is(err, repository.ErrFileNotFound):
		respond(c, http.StatusNotFound, "文件不存在", nil)
	case errors.Is(err, service.ErrUnsupportedType):
		respond(c, http.StatusUnsupportedMediaType, err.Error(), nil)
	case errors.Is(err, service.ErrFileTooLarge):
		respond(c, http.StatusRequestEntityTooLarge, err.Error(), nil)
	case errors.Is(err, service.ErrEmptyFile):
		respond(c, http.StatusBadRequest, err.Error(), nil)
	default:
		log.Errorf("[FileHandler] %s: %v", message, err)
		respond(c, http.StatusInternalServerError, message, nil)
	}
}
