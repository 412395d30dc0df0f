package pipeline

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/aihub/docqa/internal/config"
	apperrors "github.com/aihub/docqa/internal/errors"
	"github.com/aihub/docqa/internal/knowledge"
	"github.com/aihub/docqa/internal/logger"
)

// ComponentFactory 按请求凭证创建外部组件
type ComponentFactory interface {
	NewEmbedder(ctx context.Context, credential string) (knowledge.Embedder, error)
	NewIndex(ctx context.Context) (knowledge.VectorIndex, error)
	NewChatModel(ctx context.Context, credential string) (knowledge.ChatModel, error)
	EmbeddingProvider() string
}

// ConfigFactory 根据配置创建组件
type ConfigFactory struct {
	embedding config.EmbeddingConfig
	llm       config.LLMConfig
	index     config.IndexConfig

	localMu       sync.Mutex
	localEmbedder closableEmbedder
	handedOff     bool
	closed        bool
}

type closableEmbedder interface {
	knowledge.Embedder
	Close() error
}

var loadLocalEmbedder = func(model, modelDir string) (closableEmbedder, error) {
	return knowledge.NewLocalEmbedder(model, modelDir)
}

// NewConfigFactory 创建组件工厂
func NewConfigFactory(cfg *config.Config) *ConfigFactory {
	return &ConfigFactory{
		embedding: cfg.Embedding,
		llm:       cfg.LLM,
		index:     cfg.Index,
	}
}

func (f *ConfigFactory) EmbeddingProvider() string {
	return f.embedding.Provider
}

// NewEmbedder 创建向量化器；本地模型在首次使用时加载并复用
func (f *ConfigFactory) NewEmbedder(ctx context.Context, credential string) (knowledge.Embedder, error) {
	switch f.embedding.Provider {
	case "local":
		e, err := f.local()
		if err != nil {
			return nil, err
		}
		return e, nil
	case "hashing":
		return knowledge.NewHashingEmbedder(f.embedding.Dimensions), nil
	case "openai", "":
		return knowledge.NewOpenAIEmbedder(knowledge.OpenAIEmbedderOptions{
			APIKey:            credential,
			Model:             f.embedding.Model,
			BaseURL:           f.embedding.BaseURL,
			RequestsPerSecond: f.embedding.RequestsPerSecond,
		})
	default:
		return nil, apperrors.Newf(apperrors.KindInvalidConfig, "unknown embedding provider %q", f.embedding.Provider)
	}
}

func (f *ConfigFactory) localModel() string {
	if strings.Contains(f.embedding.Model, "/") {
		return f.embedding.Model
	}
	return knowledge.DefaultLocalEmbeddingModel
}

// local 首次使用时加载本地模型，之后复用；加载失败下次重试
func (f *ConfigFactory) local() (closableEmbedder, error) {
	f.localMu.Lock()
	defer f.localMu.Unlock()
	if f.localEmbedder != nil {
		return f.localEmbedder, nil
	}
	if f.closed {
		return nil, apperrors.New(apperrors.KindServiceUnavailable, "component factory is closed")
	}

	model := f.localModel()
	logger.Info("loading local embedding model",
		zap.String("model", model),
		zap.String("model_dir", f.embedding.ModelDir))
	e, err := loadLocalEmbedder(model, f.embedding.ModelDir)
	if err != nil {
		return nil, err
	}
	f.localEmbedder = e
	return e, nil
}

// Inherit 接管旧工厂已加载的本地模型，模型与目录不变时热加载不再重复加载。
// 旧工厂仍可继续使用该模型，但Close不再释放它；应在新工厂投入使用前调用
func (f *ConfigFactory) Inherit(prev *ConfigFactory) bool {
	if prev == nil || prev == f || f.embedding.Provider != "local" || prev.embedding.Provider != "local" {
		return false
	}
	if f.localModel() != prev.localModel() || f.embedding.ModelDir != prev.embedding.ModelDir {
		return false
	}

	f.localMu.Lock()
	loaded := f.localEmbedder != nil
	f.localMu.Unlock()
	if loaded {
		return false
	}

	prev.localMu.Lock()
	e := prev.localEmbedder
	take := e != nil && !prev.handedOff
	if take {
		prev.handedOff = true
	}
	prev.localMu.Unlock()
	if !take {
		return false
	}

	f.localMu.Lock()
	f.localEmbedder = e
	f.localMu.Unlock()
	return true
}

// NewIndex 创建会话级索引
func (f *ConfigFactory) NewIndex(ctx context.Context) (knowledge.VectorIndex, error) {
	switch f.index.Provider {
	case "milvus":
		m := f.index.Milvus
		return knowledge.NewMilvusIndex(ctx, knowledge.MilvusOptions{
			Address:          m.Address,
			Username:         m.Username,
			Password:         m.Password,
			Database:         m.Database,
			CollectionPrefix: m.CollectionPrefix,
			UseTLS:           m.UseTLS,
		})
	case "memory", "":
		return knowledge.NewMemoryIndex(), nil
	default:
		return nil, apperrors.Newf(apperrors.KindInvalidConfig, "unknown index provider %q", f.index.Provider)
	}
}

func (f *ConfigFactory) NewChatModel(ctx context.Context, credential string) (knowledge.ChatModel, error) {
	return knowledge.NewOpenAIChatModel(knowledge.OpenAIChatOptions{
		APIKey:      credential,
		Model:       f.llm.Model,
		BaseURL:     f.llm.BaseURL,
		Temperature: f.llm.Temperature,
		MaxTokens:   f.llm.MaxTokens,
	})
}

// Close 释放本地模型，已移交给新工厂的除外。关闭后不再加载模型
func (f *ConfigFactory) Close() error {
	f.localMu.Lock()
	defer f.localMu.Unlock()
	f.closed = true
	e := f.localEmbedder
	f.localEmbedder = nil
	if e == nil || f.handedOff {
		return nil
	}
	return e.Close()
}

// Closed 是否已关闭
func (f *ConfigFactory) Closed() bool {
	f.localMu.Lock()
	defer f.localMu.Unlock()
	return f.closed
}

// NewFromConfig 按配置组装编排器
func NewFromConfig(cfg *config.Config, extractor TextExtractor, factory ComponentFactory) *Orchestrator {
	p := cfg.Pipeline
	return New(
		Components{Extractor: extractor, Factory: factory},
		WithRetryPolicy(RetryPolicy{MaxRetries: p.MaxRetries, InitialBackoff: p.RetryBackoff}),
		WithMaxParallel(p.MaxParallel),
		WithTimeout(p.Timeout),
		WithContextBudget(cfg.LLM.ContextTokens, cfg.LLM.MaxTokens),
		WithCredentialCheck(p.VerifyCredential),
	)
}
