package knowledge

import (
	"context"
	"math"
	"sort"
	"sync"

	apperrors "github.com/aihub/docqa/internal/errors"
)

// VectorIndex 会话级相似度索引，整体构建、不做增量更新
type VectorIndex interface {
	Build(ctx context.Context, entries []IndexEntry) error
	Query(ctx context.Context, vector []float32, k int) ([]ScoredChunk, error)
	Len() int
	Release(ctx context.Context) error
}

// MemoryIndex 内存暴力检索索引（余弦相似度）
type MemoryIndex struct {
	mu        sync.RWMutex
	entries   []IndexEntry
	norms     []float64
	dimension int
}

// NewMemoryIndex 创建内存索引
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{}
}

// Build 用给定条目替换索引内容
func (s *MemoryIndex) Build(ctx context.Context, entries []IndexEntry) error {
	dimension, err := validateEntries(entries)
	if err != nil {
		return err
	}

	stored := make([]IndexEntry, len(entries))
	norms := make([]float64, len(entries))
	for i, entry := range entries {
		vec := make([]float32, len(entry.Vector))
		copy(vec, entry.Vector)
		stored[i] = IndexEntry{Vector: vec, Chunk: entry.Chunk}
		norms[i] = vectorNorm(vec)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = stored
	s.norms = norms
	s.dimension = dimension
	return nil
}

// Query 返回与查询向量最相近的k个分块
func (s *MemoryIndex) Query(ctx context.Context, vector []float32, k int) ([]ScoredChunk, error) {
	if k <= 0 {
		return nil, apperrors.Newf(apperrors.KindInvalidConfig, "k must be positive, got %d", k)
	}
	if err := ctx.Err(); err != nil {
		return nil, apperrors.FromContext(err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.entries) == 0 {
		return []ScoredChunk{}, nil
	}
	if len(vector) != s.dimension {
		return nil, apperrors.Newf(apperrors.KindInvalidConfig,
			"query vector has dimension %d, index has %d", len(vector), s.dimension)
	}

	queryNorm := vectorNorm(vector)
	results := make([]ScoredChunk, len(s.entries))
	for i, entry := range s.entries {
		results[i] = ScoredChunk{
			Chunk: entry.Chunk,
			Score: cosineSimilarity(vector, entry.Vector, queryNorm, s.norms[i]),
		}
	}

	sortByScore(results)
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (s *MemoryIndex) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Release 丢弃索引内容
func (s *MemoryIndex) Release(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	s.norms = nil
	s.dimension = 0
	return nil
}

// validateEntries 检查向量维度一致，返回维度
func validateEntries(entries []IndexEntry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	dimension := len(entries[0].Vector)
	if dimension == 0 {
		return 0, apperrors.New(apperrors.KindInvalidConfig, "index entry has an empty vector")
	}
	for _, entry := range entries[1:] {
		if len(entry.Vector) != dimension {
			return 0, apperrors.Newf(apperrors.KindInvalidConfig,
				"index entries have mixed dimensions %d and %d", dimension, len(entry.Vector))
		}
	}
	return dimension, nil
}

// sortByScore 按分数降序，分数相同按分块序号升序
func sortByScore(results []ScoredChunk) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score == results[j].Score {
			return results[i].Chunk.Seq < results[j].Chunk.Seq
		}
		return results[i].Score > results[j].Score
	})
}

func vectorNorm(vec []float32) float64 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

func cosineSimilarity(a, b []float32, normA, normB float64) float64 {
	if normA == 0 || normB == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (normA * normB)
}
