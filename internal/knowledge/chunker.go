package knowledge

import (
	"iter"
	"strings"
	"unicode"
	"unicode/utf8"

	apperrors "github.com/aihub/docqa/internal/errors"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 0
)

// Chunker 定长重叠分块器，长度按字符(rune)计算
type Chunker struct {
	chunkSize    int
	chunkOverlap int
	documentName string
}

// NewChunker 创建分块器
func NewChunker(chunkSize, overlap int) (*Chunker, error) {
	if chunkSize <= 0 {
		return nil, apperrors.Newf(apperrors.KindInvalidConfig, "chunk size must be positive, got %d", chunkSize)
	}
	if overlap < 0 || overlap >= chunkSize {
		return nil, apperrors.Newf(apperrors.KindInvalidConfig,
			"chunk overlap must be in [0, %d), got %d", chunkSize, overlap)
	}
	return &Chunker{
		chunkSize:    chunkSize,
		chunkOverlap: overlap,
	}, nil
}

// ForDocument 返回带文档引用的分块器副本
func (c *Chunker) ForDocument(name string) *Chunker {
	cp := *c
	cp.documentName = name
	return &cp
}

func (c *Chunker) Size() int    { return c.chunkSize }
func (c *Chunker) Overlap() int { return c.chunkOverlap }

// Chunks 返回惰性分块序列，每次遍历都从头开始
func (c *Chunker) Chunks(text string) iter.Seq[TextChunk] {
	return func(yield func(TextChunk) bool) {
		step := c.chunkSize - c.chunkOverlap
		total := utf8.RuneCountInString(text)

		// 字节游标：start rune对应的字节位置
		startByte := 0
		for seq, start := 0, 0; ; seq, start = seq+1, start+step {
			end := min(start+c.chunkSize, total)
			endByte := advanceRunes(text, startByte, end-start)

			chunk := TextChunk{
				Seq:          seq,
				Text:         text[startByte:endByte],
				Start:        start,
				End:          end,
				DocumentName: c.documentName,
			}
			if !yield(chunk) || end >= total {
				return
			}
			startByte = advanceRunes(text, startByte, step)
		}
	}
}

// Split 返回全部分块
func (c *Chunker) Split(text string) []TextChunk {
	var chunks []TextChunk
	for chunk := range c.Chunks(text) {
		chunks = append(chunks, chunk)
	}
	return chunks
}

// Embeddable 是否包含字母或数字；纯空白、纯标点的分块不参与向量化
func Embeddable(text string) bool {
	return strings.IndexFunc(text, func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsNumber(r)
	}) >= 0
}

// advanceRunes 从字节位置from向前移动n个rune
func advanceRunes(s string, from, n int) int {
	pos := from
	for i := 0; i < n && pos < len(s); i++ {
		_, size := utf8.DecodeRuneInString(s[pos:])
		pos += size
	}
	return pos
}
