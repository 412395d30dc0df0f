package knowledge

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/aihub/docqa/internal/errors"
)

func chunkLengths(chunks []TextChunk) []int {
	lengths := make([]int, len(chunks))
	for i, c := range chunks {
		lengths[i] = utf8.RuneCountInString(c.Text)
	}
	return lengths
}

// reconstruct 拼接分块并去掉相邻重叠部分
func reconstruct(chunks []TextChunk, overlap int) string {
	var b strings.Builder
	for i, c := range chunks {
		if i == 0 {
			b.WriteString(c.Text)
			continue
		}
		runes := []rune(c.Text)
		b.WriteString(string(runes[overlap:]))
	}
	return b.String()
}

func TestNewChunker_InvalidConfig(t *testing.T) {
	tests := []struct {
		name          string
		size, overlap int
	}{
		{"zero size", 0, 0},
		{"negative size", -5, 0},
		{"negative overlap", 10, -1},
		{"overlap equals size", 10, 10},
		{"overlap above size", 10, 11},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewChunker(tt.size, tt.overlap)
			assert.Nil(t, c)
			assert.True(t, apperrors.Is(err, apperrors.KindInvalidConfig))
		})
	}
}

func TestChunker_FixedSizeWithoutOverlap(t *testing.T) {
	c, err := NewChunker(1000, 0)
	require.NoError(t, err)

	chunks := c.Split(strings.Repeat("a", 2500))
	assert.Equal(t, []int{1000, 1000, 500}, chunkLengths(chunks))
	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.Seq)
	}
}

func TestChunker_ShortTextIsSingleChunk(t *testing.T) {
	c, err := NewChunker(DefaultChunkSize, DefaultChunkOverlap)
	require.NoError(t, err)

	for _, text := range []string{"", "short", strings.Repeat("x", 1000)} {
		chunks := c.Split(text)
		require.Len(t, chunks, 1)
		assert.Equal(t, text, chunks[0].Text)
	}
}

func TestChunker_ReconstructsWithOverlap(t *testing.T) {
	texts := []string{
		strings.Repeat("The quick brown fox jumps over the lazy dog.\n\n", 40),
		strings.Repeat("数据分块测试，包含多字节字符。", 30),
		"line one\r\n\tline two  with   spaces\n",
	}
	params := [][2]int{{10, 0}, {10, 3}, {37, 36}, {100, 25}, {7, 1}}

	for _, text := range texts {
		for _, p := range params {
			c, err := NewChunker(p[0], p[1])
			require.NoError(t, err)

			chunks := c.Split(text)
			require.NotEmpty(t, chunks)
			assert.Equal(t, text, reconstruct(chunks, p[1]), "size=%d overlap=%d", p[0], p[1])

			for i := 1; i < len(chunks); i++ {
				prev := []rune(chunks[i-1].Text)
				cur := []rune(chunks[i].Text)
				assert.Equal(t, string(prev[len(prev)-p[1]:]), string(cur[:p[1]]))
				assert.Equal(t, chunks[i-1].Start+p[0]-p[1], chunks[i].Start)
			}
			for _, chunk := range chunks[:len(chunks)-1] {
				assert.Equal(t, p[0], utf8.RuneCountInString(chunk.Text))
			}
		}
	}
}

func TestChunker_IsRestartableAndDeterministic(t *testing.T) {
	c, err := NewChunker(16, 4)
	require.NoError(t, err)
	text := strings.Repeat("restartable sequence ", 12)

	seq := c.Chunks(text)
	var first, second []TextChunk
	for chunk := range seq {
		first = append(first, chunk)
	}
	for chunk := range seq {
		second = append(second, chunk)
	}
	assert.Equal(t, first, second)
	assert.Equal(t, first, c.Split(text))
}

func TestChunker_StopsOnBreak(t *testing.T) {
	c, err := NewChunker(5, 0)
	require.NoError(t, err)

	var seen int
	for range c.Chunks(strings.Repeat("z", 100)) {
		seen++
		if seen == 2 {
			break
		}
	}
	assert.Equal(t, 2, seen)
}

func TestChunker_ForDocument(t *testing.T) {
	c, err := NewChunker(4, 0)
	require.NoError(t, err)

	chunks := c.ForDocument("notes.txt").Split("abcdefgh")
	require.Len(t, chunks, 2)
	assert.Equal(t, "notes.txt", chunks[1].DocumentName)
	assert.Empty(t, c.Split("abcd")[0].DocumentName)
}

func TestEmbeddable(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{text: "", want: false},
		{text: "\n", want: false},
		{text: " \t\r\n ", want: false},
		{text: "-----|-----", want: false},
		{text: "a", want: true},
		{text: "  42  ", want: true},
		{text: "\n退款\n", want: true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Embeddable(tt.text), "%q", tt.text)
	}
}
