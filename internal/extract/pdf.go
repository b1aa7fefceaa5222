package extract

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// PDFExtractor 通过 Tika 的 XHTML 输出按 <div class="page"> 切分页面，页码与原文件一致。
type PDFExtractor struct {
	tika TikaClient
}

func NewPDFExtractor(tika TikaClient) *PDFExtractor {
	return &PDFExtractor{tika: tika}
}

func (e *PDFExtractor) Extract(ctx context.Context, path, filename, contentType string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开文件失败: %w", err)
	}
	defer f.Close()

	html, err := e.tika.ExtractHTML(ctx, f, filename, TypePDF)
	if err != nil {
		return nil, err
	}
	return SplitPages(html)
}

// SplitPages 解析 Tika 的 XHTML。没有分页标记时整篇作为 page_1。
// 空白页保留页码但文本为空，由索引阶段跳过。
func SplitPages(html string) (map[string]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("解析 Tika 输出失败: %w", err)
	}
	pages := make(map[string]string)
	doc.Find("div.page").Each(func(i int, s *goquery.Selection) {
		pages[PageLabel(i+1)] = pageText(s)
	})
	if len(pages) == 0 {
		pages[PageLabel(1)] = pageText(doc.Find("body"))
	}
	return pages, nil
}

const blockSelector = "p, h1, h2, h3, h4, h5, h6, li, td"

// pageText 按段落拼接，保留段落间换行。
// 嵌套的块（例如 <td><p>..</p></td>）只取最外层，避免同一段文本出现两次。
func pageText(s *goquery.Selection) string {
	var parts []string
	blocks := s.Find(blockSelector)
	if blocks.Length() == 0 {
		return strings.TrimSpace(s.Text())
	}
	blocks = blocks.FilterFunction(func(_ int, b *goquery.Selection) bool {
		return b.ParentsUntilSelection(s).Filter(blockSelector).Length() == 0
	})
	blocks.Each(func(_ int, b *goquery.Selection) {
		if t := strings.TrimSpace(b.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	return strings.Join(parts, "\n")
}
