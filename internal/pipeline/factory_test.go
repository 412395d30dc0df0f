package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aihub/docqa/internal/config"
	apperrors "github.com/aihub/docqa/internal/errors"
	"github.com/aihub/docqa/internal/knowledge"
)

// closingEmbedder 记录关闭次数的本地模型替身
type closingEmbedder struct {
	*knowledge.HashingEmbedder
	closed int
}

func (e *closingEmbedder) Close() error {
	e.closed++
	return nil
}

// stubLocalLoader 替换本地模型加载并统计加载次数
func stubLocalLoader(t *testing.T) *[]*closingEmbedder {
	t.Helper()
	loaded := &[]*closingEmbedder{}
	original := loadLocalEmbedder
	loadLocalEmbedder = func(model, modelDir string) (closableEmbedder, error) {
		e := &closingEmbedder{HashingEmbedder: knowledge.NewHashingEmbedder(16)}
		*loaded = append(*loaded, e)
		return e, nil
	}
	t.Cleanup(func() { loadLocalEmbedder = original })
	return loaded
}

func localConfig(model, dir string) *config.Config {
	cfg := &config.Config{}
	cfg.Embedding.Provider = "local"
	cfg.Embedding.Model = model
	cfg.Embedding.ModelDir = dir
	return cfg
}

func TestConfigFactory_LocalEmbedderLoadedOnce(t *testing.T) {
	loaded := stubLocalLoader(t)
	f := NewConfigFactory(localConfig("", "/models"))

	first, err := f.NewEmbedder(context.Background(), "")
	require.NoError(t, err)
	second, err := f.NewEmbedder(context.Background(), "")
	require.NoError(t, err)
	assert.Same(t, first, second)
	require.Len(t, *loaded, 1)

	require.NoError(t, f.Close())
	assert.True(t, f.Closed())
	assert.Equal(t, 1, (*loaded)[0].closed)

	_, err = f.NewEmbedder(context.Background(), "")
	assert.Equal(t, apperrors.KindServiceUnavailable, apperrors.KindOf(err))
	assert.Len(t, *loaded, 1, "closed factory must not load again")
}

func TestConfigFactory_LocalLoadFailureIsRetried(t *testing.T) {
	original := loadLocalEmbedder
	t.Cleanup(func() { loadLocalEmbedder = original })
	attempts := 0
	loadLocalEmbedder = func(model, modelDir string) (closableEmbedder, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("model download interrupted")
		}
		return &closingEmbedder{HashingEmbedder: knowledge.NewHashingEmbedder(16)}, nil
	}

	f := NewConfigFactory(localConfig("", ""))
	_, err := f.NewEmbedder(context.Background(), "")
	require.Error(t, err)
	e, err := f.NewEmbedder(context.Background(), "")
	require.NoError(t, err)
	assert.NotNil(t, e)
	assert.Equal(t, 2, attempts)
}

func TestConfigFactory_Inherit(t *testing.T) {
	t.Run("same model is handed over", func(t *testing.T) {
		loaded := stubLocalLoader(t)
		prev := NewConfigFactory(localConfig("", "/models"))
		_, err := prev.NewEmbedder(context.Background(), "")
		require.NoError(t, err)

		next := NewConfigFactory(localConfig("", "/models"))
		require.True(t, next.Inherit(prev))

		require.NoError(t, prev.Close())
		assert.Zero(t, (*loaded)[0].closed, "handed over model stays open")

		e, err := next.NewEmbedder(context.Background(), "")
		require.NoError(t, err)
		assert.Same(t, (*loaded)[0], e)
		assert.Len(t, *loaded, 1)

		require.NoError(t, next.Close())
		assert.Equal(t, 1, (*loaded)[0].closed)
	})

	t.Run("model change loads fresh", func(t *testing.T) {
		loaded := stubLocalLoader(t)
		prev := NewConfigFactory(localConfig("", "/models"))
		_, err := prev.NewEmbedder(context.Background(), "")
		require.NoError(t, err)

		next := NewConfigFactory(localConfig("sentence-transformers/paraphrase-MiniLM-L6-v2", "/models"))
		assert.False(t, next.Inherit(prev))

		require.NoError(t, prev.Close())
		assert.Equal(t, 1, (*loaded)[0].closed)
	})

	t.Run("nothing loaded yet", func(t *testing.T) {
		stubLocalLoader(t)
		prev := NewConfigFactory(localConfig("", ""))
		next := NewConfigFactory(localConfig("", ""))
		assert.False(t, next.Inherit(prev))
		assert.False(t, next.Inherit(nil))
	})

	t.Run("other providers", func(t *testing.T) {
		cfg := &config.Config{}
		cfg.Embedding.Provider = "hashing"
		assert.False(t, NewConfigFactory(cfg).Inherit(NewConfigFactory(cfg)))
	})
}
