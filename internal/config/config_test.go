package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CONFIG_FILE",
		"SERVER_PORT",
		"OPENAI_BASE_URL",
		"MILVUS_ADDRESS",
		"UNIDOC_LICENSE_API_KEY",
		"DOCQA_PIPELINE_CHUNK_SIZE",
		"DOCQA_PIPELINE_CHUNK_OVERLAP",
		"DOCQA_PIPELINE_TOP_K",
		"DOCQA_PIPELINE_STRATEGY",
		"DOCQA_EMBEDDING_PROVIDER",
		"DOCQA_EXTRACTOR_OCR_LANGUAGES",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestConfigLoader_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := NewConfigLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, "docqa", cfg.App.Name)
	assert.Equal(t, 8001, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 2.0, cfg.Server.RateLimit)
	assert.Equal(t, 4, cfg.Server.RateBurst)

	assert.Equal(t, 1000, cfg.Pipeline.ChunkSize)
	assert.Equal(t, 0, cfg.Pipeline.ChunkOverlap)
	assert.Equal(t, 2, cfg.Pipeline.TopK)
	assert.Equal(t, "stuff", cfg.Pipeline.Strategy)
	assert.Equal(t, 1, cfg.Pipeline.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.Pipeline.RetryBackoff)
	assert.Equal(t, 2*time.Minute, cfg.Pipeline.Timeout)

	assert.Equal(t, "openai", cfg.Embedding.Provider)
	assert.Equal(t, "gpt-4", cfg.LLM.Model)
	assert.Equal(t, "memory", cfg.Index.Provider)
	assert.Equal(t, []string{"eng"}, cfg.Extractor.OCRLanguages)
}

func TestConfigLoader_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("DOCQA_PIPELINE_CHUNK_SIZE", "500")
	t.Setenv("DOCQA_PIPELINE_CHUNK_OVERLAP", "50")
	t.Setenv("DOCQA_PIPELINE_STRATEGY", "map_rerank")
	t.Setenv("DOCQA_EMBEDDING_PROVIDER", "hashing")
	t.Setenv("SERVER_PORT", "9000")
	t.Setenv("DOCQA_EXTRACTOR_OCR_LANGUAGES", "eng, deu")

	cfg, err := NewConfigLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 500, cfg.Pipeline.ChunkSize)
	assert.Equal(t, 50, cfg.Pipeline.ChunkOverlap)
	assert.Equal(t, "map_rerank", cfg.Pipeline.Strategy)
	assert.Equal(t, "hashing", cfg.Embedding.Provider)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, []string{"eng", "deu"}, cfg.Extractor.OCRLanguages)
}

func TestConfigLoader_Validation(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"top k above five", "DOCQA_PIPELINE_TOP_K", "6"},
		{"unknown strategy", "DOCQA_PIPELINE_STRATEGY", "summarize"},
		{"unknown embedder", "DOCQA_EMBEDDING_PROVIDER", "cohere"},
		{"overlap not below size", "DOCQA_PIPELINE_CHUNK_OVERLAP", "1000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.val)

			_, err := NewConfigLoader().Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "validation failed")
		})
	}
}

func TestConfigLoader_FileAndReload(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "docqa.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pipeline:\n  top_k: 3\n"), 0o600))
	t.Setenv("CONFIG_FILE", path)

	loader := NewConfigLoader()
	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Pipeline.TopK)

	var seen []int
	loader.RegisterCallback(func(oldConfig, newConfig *Config) error {
		seen = append(seen, oldConfig.Pipeline.TopK, newConfig.Pipeline.TopK)
		return nil
	})

	require.NoError(t, os.WriteFile(path, []byte("pipeline:\n  top_k: 4\n"), 0o600))
	require.NoError(t, loader.Reload())

	assert.Equal(t, []int{3, 4}, seen)
	assert.Equal(t, 4, loader.GetConfig().Pipeline.TopK)
}

func TestLoadConfig_SetsGlobal(t *testing.T) {
	clearEnv(t)
	require.NoError(t, LoadConfig())
	require.NotNil(t, AppConfig)
	assert.Equal(t, "docqa", AppConfig.App.Name)
	require.NotNil(t, GetLoader())
	assert.True(t, AppConfig.Pipeline.VerifyCredential)
}
