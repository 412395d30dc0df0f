package knowledge

import (
	"context"
	"strings"
	"sync/atomic"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	apperrors "github.com/aihub/docqa/internal/errors"
)

// Embedder 定义文本向量化接口
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	Ready() bool
}

// BatchEmbedder 支持批量向量化
type BatchEmbedder interface {
	Embedder
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

var embeddingDimensions = map[string]int{
	"text-embedding-3-large": 3072,
	"text-embedding-3-small": 1536,
	"text-embedding-ada-002": 1536,
}

const DefaultOpenAIEmbeddingModel = "text-embedding-3-small"

// OpenAIEmbedderOptions OpenAI向量化配置
type OpenAIEmbedderOptions struct {
	APIKey            string
	Model             string
	BaseURL           string
	RequestsPerSecond float64
}

// OpenAIEmbedder 使用OpenAI Embedding API
type OpenAIEmbedder struct {
	client     *openai.Client
	model      string
	dimensions atomic.Int64
	limiter    *rate.Limiter
}

// NewOpenAIEmbedder 创建OpenAI嵌入向量生成器
func NewOpenAIEmbedder(opts OpenAIEmbedderOptions) (*OpenAIEmbedder, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, apperrors.New(apperrors.KindInvalidConfig, "openai credential is required for embeddings")
	}
	model := opts.Model
	if model == "" {
		model = DefaultOpenAIEmbeddingModel
	}

	dims, ok := embeddingDimensions[model]
	if !ok {
		dims = 0 // 未知模型，首次调用后确定
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}

	e := &OpenAIEmbedder{
		client:  newOpenAIClient(opts.APIKey, opts.BaseURL),
		model:   model,
		limiter: limiter,
	}
	e.dimensions.Store(int64(dims))
	return e, nil
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch 一次请求向量化多段文本，结果与输入顺序一致
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for _, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, apperrors.New(apperrors.KindEmbedding, "text is empty")
		}
	}

	if err := e.limiter.Wait(ctx); err != nil {
		return nil, apperrors.FromContext(err)
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: texts,
	})
	if err != nil {
		return nil, classifyOpenAIError(err, apperrors.KindEmbedding, "embedding request failed")
	}
	if len(resp.Data) != len(texts) {
		return nil, apperrors.Newf(apperrors.KindEmbedding,
			"embedding response has %d vectors for %d inputs", len(resp.Data), len(texts)).AsRetryable()
	}

	result := make([][]float32, len(texts))
	for i, item := range resp.Data {
		idx := item.Index
		if idx < 0 || idx >= len(texts) {
			idx = i
		}
		vec := make([]float32, len(item.Embedding))
		copy(vec, item.Embedding)
		result[idx] = vec
	}
	for i, vec := range result {
		if len(vec) == 0 {
			return nil, apperrors.Newf(apperrors.KindEmbedding, "embedding %d missing from response", i).AsRetryable()
		}
	}
	e.dimensions.CompareAndSwap(0, int64(len(result[0])))
	return result, nil
}

func (e *OpenAIEmbedder) Dimensions() int {
	return int(e.dimensions.Load())
}

func (e *OpenAIEmbedder) Ready() bool {
	return e.client != nil
}
