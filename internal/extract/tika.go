package extract

import (
	"context"
	"fmt"
	"os"
)

// TikaExtractor 通用提取，整篇文本作为 page_1。
type TikaExtractor struct {
	tika TikaClient
}

func NewTikaExtractor(tika TikaClient) *TikaExtractor {
	return &TikaExtractor{tika: tika}
}

func (e *TikaExtractor) Extract(ctx context.Context, path, filename, contentType string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开文件失败: %w", err)
	}
	defer f.Close()

	text, err := e.tika.ExtractText(ctx, f, filename, contentType)
	if err != nil {
		return nil, err
	}
	return map[string]string{PageLabel(1): text}, nil
}
