// Package extract 把本地文件按类型提取为 page_label → 文本 的映射。
package extract

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// Extractor 从本地文件提取分页文本。
type Extractor interface {
	Extract(ctx context.Context, path, filename, contentType string) (map[string]string, error)
}

// TikaClient 是 extract 依赖的 Tika 能力。
type TikaClient interface {
	ExtractText(ctx context.Context, r io.Reader, fileName, contentType string) (string, error)
	ExtractHTML(ctx context.Context, r io.Reader, fileName, contentType string) (string, error)
}

// 支持的内容类型
const (
	TypePDF  = "application/pdf"
	TypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	TypeXLS  = "application/vnd.ms-excel"
)

// PageLabel 返回第 n 页（从 1 开始）的标签。
func PageLabel(n int) string {
	return fmt.Sprintf("page_%d", n)
}

// Router 按内容类型选择提取器：PDF 逐页提取，XLSX 逐工作表提取，其余交给 Tika 通用提取。
type Router struct {
	PDF     Extractor
	Excel   Extractor
	Generic Extractor
}

// NewRouter 基于 Tika 客户端组装默认提取器。
func NewRouter(tika TikaClient) *Router {
	return &Router{
		PDF:     NewPDFExtractor(tika),
		Excel:   NewExcelExtractor(),
		Generic: NewTikaExtractor(tika),
	}
}

func (r *Router) Extract(ctx context.Context, path, filename, contentType string) (map[string]string, error) {
	return r.pick(filename, contentType).Extract(ctx, path, filename, contentType)
}

func (r *Router) pick(filename, contentType string) Extractor {
	ct := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	ext := strings.ToLower(filepath.Ext(filename))
	switch {
	case ct == TypePDF || ext == ".pdf":
		return r.PDF
	// excelize 不支持 BIFF 格式的 .xls，交给 Tika
	case ct == TypeXLSX || ext == ".xlsx":
		return r.Excel
	default:
		return r.Generic
	}
}
