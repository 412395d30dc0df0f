package knowledge

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/aihub/docqa/internal/errors"
)

// unitVectorWithSimilarity 构造与(1,0)余弦相似度为s的向量
func unitVectorWithSimilarity(s float64) []float32 {
	return []float32{float32(s), float32(math.Sqrt(1 - s*s))}
}

func entryWithSimilarity(seq int, s float64) IndexEntry {
	return IndexEntry{
		Vector: unitVectorWithSimilarity(s),
		Chunk:  TextChunk{Seq: seq, Text: string(rune('a' + seq))},
	}
}

func TestMemoryIndex_TieBreakBySequence(t *testing.T) {
	idx := NewMemoryIndex()
	// 故意打乱构建顺序
	entries := []IndexEntry{
		entryWithSimilarity(4, 0.1),
		entryWithSimilarity(2, 0.85),
		entryWithSimilarity(0, 0.9),
		entryWithSimilarity(3, 0.5),
		entryWithSimilarity(1, 0.85),
	}
	require.NoError(t, idx.Build(context.Background(), entries))

	results, err := idx.Query(context.Background(), []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 0, results[0].Chunk.Seq)
	assert.InDelta(t, 0.9, results[0].Score, 1e-6)
	assert.Equal(t, 1, results[1].Chunk.Seq)
	assert.InDelta(t, 0.85, results[1].Score, 1e-6)

	all, err := idx.Query(context.Background(), []float32{1, 0}, 5)
	require.NoError(t, err)
	seqs := make([]int, len(all))
	for i, r := range all {
		seqs[i] = r.Chunk.Seq
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4}, seqs)
}

func TestMemoryIndex_ResultCountBounds(t *testing.T) {
	ctx := context.Background()
	for size := 0; size <= 6; size++ {
		idx := NewMemoryIndex()
		entries := make([]IndexEntry, size)
		for i := range entries {
			entries[i] = entryWithSimilarity(i, float64(i)/10)
		}
		require.NoError(t, idx.Build(ctx, entries))
		assert.Equal(t, size, idx.Len())

		for k := 1; k <= 5; k++ {
			results, err := idx.Query(ctx, []float32{1, 0}, k)
			require.NoError(t, err)
			assert.LessOrEqual(t, len(results), k)
			assert.Equal(t, min(k, size), len(results))
			for i := 1; i < len(results); i++ {
				assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
			}
		}
	}
}

func TestMemoryIndex_EmptyIndexReturnsEmptyResult(t *testing.T) {
	idx := NewMemoryIndex()
	require.NoError(t, idx.Build(context.Background(), nil))

	results, err := idx.Query(context.Background(), []float32{1, 2, 3}, 3)
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestMemoryIndex_InvalidQueries(t *testing.T) {
	idx := NewMemoryIndex()
	require.NoError(t, idx.Build(context.Background(), []IndexEntry{entryWithSimilarity(0, 0.5)}))

	for _, k := range []int{0, -1} {
		_, err := idx.Query(context.Background(), []float32{1, 0}, k)
		assert.True(t, apperrors.Is(err, apperrors.KindInvalidConfig))
	}

	_, err := idx.Query(context.Background(), []float32{1, 0, 0}, 1)
	assert.True(t, apperrors.Is(err, apperrors.KindInvalidConfig))
}

func TestMemoryIndex_BuildRejectsMixedDimensions(t *testing.T) {
	idx := NewMemoryIndex()
	err := idx.Build(context.Background(), []IndexEntry{
		{Vector: []float32{1, 0}},
		{Vector: []float32{1, 0, 0}},
	})
	assert.True(t, apperrors.Is(err, apperrors.KindInvalidConfig))
}

func TestMemoryIndex_BuildReplacesAndReleaseClears(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	require.NoError(t, idx.Build(ctx, []IndexEntry{entryWithSimilarity(0, 0.2), entryWithSimilarity(1, 0.3)}))
	require.NoError(t, idx.Build(ctx, []IndexEntry{entryWithSimilarity(7, 0.4)}))
	assert.Equal(t, 1, idx.Len())

	results, err := idx.Query(ctx, []float32{1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 7, results[0].Chunk.Seq)

	require.NoError(t, idx.Release(ctx))
	assert.Equal(t, 0, idx.Len())
}

func TestMemoryIndex_WithHashingEmbedder(t *testing.T) {
	ctx := context.Background()
	embedder := NewHashingEmbedder(128)
	texts := []string{
		"invoices are due within thirty days of delivery",
		"the warranty covers manufacturing defects for two years",
		"shipping is free for orders above fifty euros",
	}

	entries := make([]IndexEntry, len(texts))
	for i, text := range texts {
		vec, err := embedder.Embed(ctx, text)
		require.NoError(t, err)
		entries[i] = IndexEntry{Vector: vec, Chunk: TextChunk{Seq: i, Text: text}}
	}
	idx := NewMemoryIndex()
	require.NoError(t, idx.Build(ctx, entries))

	query, err := embedder.Embed(ctx, "how long does the warranty cover defects")
	require.NoError(t, err)
	results, err := idx.Query(ctx, query, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, strings.Contains(results[0].Chunk.Text, "warranty"))
}

func TestMilvusIndex_ValidatesWithoutServer(t *testing.T) {
	idx := newMilvusIndexWithClient(nil, "docqa_test")
	assert.True(t, strings.HasPrefix(idx.Collection(), "docqa_test_"))
	assert.NotContains(t, idx.Collection(), "-")
	assert.NotEqual(t, idx.Collection(), newMilvusIndexWithClient(nil, "docqa_test").Collection())

	_, err := idx.Query(context.Background(), []float32{1}, 0)
	assert.True(t, apperrors.Is(err, apperrors.KindInvalidConfig))

	results, err := idx.Query(context.Background(), []float32{1}, 2)
	require.NoError(t, err)
	assert.Empty(t, results)

	err = idx.Build(context.Background(), []IndexEntry{{Vector: []float32{1}}, {Vector: []float32{1, 2}}})
	assert.True(t, apperrors.Is(err, apperrors.KindInvalidConfig))
}
