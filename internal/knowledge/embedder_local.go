package knowledge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"

	apperrors "github.com/aihub/docqa/internal/errors"
)

const (
	DefaultLocalEmbeddingModel = "sentence-transformers/all-MiniLM-L6-v2"
	localEmbeddingDimensions   = 384
)

// LocalEmbedder 基于hugot的本地句向量模型
type LocalEmbedder struct {
	session  *hugot.Session
	pipeline *pipelines.FeatureExtractionPipeline
	mu       sync.Mutex
}

// PrepareModel 模型不存在时下载，返回模型目录
func PrepareModel(modelName, modelDir string) (string, error) {
	if modelDir == "" {
		modelDir = "./models"
	}
	modelPath := filepath.Join(modelDir, strings.ReplaceAll(modelName, "/", "_"))

	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		if err := os.MkdirAll(modelDir, 0o755); err != nil {
			return "", fmt.Errorf("failed to create model directory: %w", err)
		}
		downloadOptions := hugot.NewDownloadOptions()
		downloadOptions.OnnxFilePath = "onnx/model.onnx"
		downloadedPath, err := hugot.DownloadModel(modelName, modelDir, downloadOptions)
		if err != nil {
			return "", fmt.Errorf("failed to download model: %w", err)
		}
		modelPath = downloadedPath
	}
	return modelPath, nil
}

// NewLocalEmbedder 加载（必要时下载）本地模型
func NewLocalEmbedder(modelName, modelDir string) (*LocalEmbedder, error) {
	if modelName == "" {
		modelName = DefaultLocalEmbeddingModel
	}
	modelPath, err := PrepareModel(modelName, modelDir)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindEmbedding, "local embedding model unavailable", err)
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindEmbedding, "failed to create hugot session", err)
	}

	config := hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "docqa-embedder",
	}
	sentencePipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			err = fmt.Errorf("%w (cleanup error: %v)", err, destroyErr)
		}
		return nil, apperrors.Wrap(apperrors.KindEmbedding, "failed to create embedding pipeline", err)
	}

	return &LocalEmbedder{session: session, pipeline: sentencePipeline}, nil
}

func (e *LocalEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *LocalEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for _, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, apperrors.New(apperrors.KindEmbedding, "text is empty")
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, apperrors.FromContext(err)
	}

	// pipeline不保证并发安全
	e.mu.Lock()
	defer e.mu.Unlock()

	result, err := e.pipeline.RunPipeline(texts)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindEmbedding, "failed to generate embedding", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, apperrors.Newf(apperrors.KindEmbedding,
			"model returned %d embeddings for %d inputs", len(result.Embeddings), len(texts))
	}
	return result.Embeddings, nil
}

func (e *LocalEmbedder) Dimensions() int {
	return localEmbeddingDimensions
}

func (e *LocalEmbedder) Ready() bool {
	return e.pipeline != nil
}

// Close 释放模型会话
func (e *LocalEmbedder) Close() error {
	if e.session == nil {
		return nil
	}
	return e.session.Destroy()
}
