package knowledge

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strings"

	apperrors "github.com/aihub/docqa/internal/errors"
)

const DefaultHashingDimensions = 256

// HashingEmbedder 基于特征哈希的词袋向量，离线且确定
type HashingEmbedder struct {
	dimensions   int
	tokenPattern *regexp.Regexp
}

// NewHashingEmbedder 创建哈希向量化器
func NewHashingEmbedder(dimensions int) *HashingEmbedder {
	if dimensions <= 0 {
		dimensions = DefaultHashingDimensions
	}
	return &HashingEmbedder{
		dimensions:   dimensions,
		tokenPattern: regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}]+)*`),
	}
}

func (e *HashingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.FromContext(err)
	}
	tokens := e.tokenPattern.FindAllString(strings.ToLower(text), -1)
	if len(tokens) == 0 {
		return nil, apperrors.New(apperrors.KindEmbedding, "text has no tokens")
	}

	vec := make([]float64, e.dimensions)
	for _, tok := range tokens {
		h := fnv.New64a()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum64()
		idx := int(sum % uint64(e.dimensions))
		// 高位决定符号，减少哈希冲突带来的偏差
		if sum>>63 == 1 {
			vec[idx]--
		} else {
			vec[idx]++
		}
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	out := make([]float32, e.dimensions)
	if norm == 0 {
		return out, nil
	}
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out, nil
}

func (e *HashingEmbedder) Dimensions() int {
	return e.dimensions
}

func (e *HashingEmbedder) Ready() bool {
	return true
}
