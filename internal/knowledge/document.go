package knowledge

import (
	"mime"
	"strings"
)

// 支持的媒体类型
const (
	MediaTypePDF         = "application/pdf"
	MediaTypeText        = "text/plain"
	MediaTypeMarkdown    = "text/markdown"
	MediaTypeCSV         = "text/csv"
	MediaTypeDOCX        = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MediaTypeDOC         = "application/msword"
	MediaTypeXLSX        = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	MediaTypePNG         = "image/png"
	MediaTypeJPEG        = "image/jpeg"
	MediaTypeTIFF        = "image/tiff"
	MediaTypeBMP         = "image/bmp"
	MediaTypeGIF         = "image/gif"
	MediaTypeWebP        = "image/webp"
	MediaTypeOctetStream = "application/octet-stream"
)

// Document 上传的原始文档
type Document struct {
	Name      string
	MediaType string
	Content   []byte
}

// Essence 返回去掉参数后的小写媒体类型
func (d Document) Essence() string {
	return MediaTypeEssence(d.MediaType)
}

// MediaTypeEssence 规范化媒体类型
func MediaTypeEssence(mediaType string) string {
	mediaType = strings.TrimSpace(mediaType)
	if mediaType == "" {
		return ""
	}
	if parsed, _, err := mime.ParseMediaType(mediaType); err == nil {
		return parsed
	}
	if idx := strings.Index(mediaType, ";"); idx >= 0 {
		mediaType = mediaType[:idx]
	}
	return strings.ToLower(strings.TrimSpace(mediaType))
}

// TextChunk 文本分块，Start/End为rune偏移
type TextChunk struct {
	Seq          int    `json:"seq"`
	Text         string `json:"text"`
	Start        int    `json:"start"`
	End          int    `json:"end"`
	DocumentName string `json:"document,omitempty"`
}

// IndexEntry 索引条目
type IndexEntry struct {
	Vector []float32
	Chunk  TextChunk
}

// ScoredChunk 检索结果
type ScoredChunk struct {
	Chunk TextChunk `json:"chunk"`
	Score float64   `json:"score"`
}

// Answer 生成的答案及引用
type Answer struct {
	Text     string      `json:"answer"`
	Sources  []TextChunk `json:"sources"`
	Strategy Strategy    `json:"strategy"`
}
