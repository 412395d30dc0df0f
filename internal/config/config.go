package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/aihub/docqa/internal/logger"
)

// EnvPrefix 环境变量前缀
const EnvPrefix = "DOCQA"

// Config 服务配置
type Config struct {
	App       AppSettings     `mapstructure:"app" validate:"required"`
	Server    ServerConfig    `mapstructure:"server" validate:"required"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline" validate:"required"`
	Embedding EmbeddingConfig `mapstructure:"embedding" validate:"required"`
	LLM       LLMConfig       `mapstructure:"llm" validate:"required"`
	Index     IndexConfig     `mapstructure:"index" validate:"required"`
	Extractor ExtractorConfig `mapstructure:"extractor"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// AppSettings 应用基础配置
type AppSettings struct {
	Name    string `mapstructure:"name" validate:"required"`
	Version string `mapstructure:"version" validate:"required"`
	Env     string `mapstructure:"env" validate:"required,oneof=development staging production"`
}

// ServerConfig HTTP服务配置
type ServerConfig struct {
	Port           int      `mapstructure:"port" validate:"required,min=1,max=65535"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	RateLimit      float64  `mapstructure:"rate_limit" validate:"gte=0"`
	RateBurst      int      `mapstructure:"rate_burst" validate:"gte=0"`
}

// PipelineConfig 问答流水线默认参数
type PipelineConfig struct {
	ChunkSize    int           `mapstructure:"chunk_size" validate:"gt=0"`
	ChunkOverlap int           `mapstructure:"chunk_overlap" validate:"gte=0,ltfield=ChunkSize"`
	TopK         int           `mapstructure:"top_k" validate:"min=1,max=5"`
	Strategy     string        `mapstructure:"strategy" validate:"oneof=stuff map_reduce refine map_rerank"`
	MaxRetries   int           `mapstructure:"max_retries" validate:"gte=0,lte=10"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	MaxParallel  int           `mapstructure:"max_parallel" validate:"min=1,max=64"`
	Timeout      time.Duration `mapstructure:"timeout"`
	// VerifyCredential 运行前先校验凭证
	VerifyCredential bool `mapstructure:"verify_credential"`
}

// EmbeddingConfig 向量化配置
type EmbeddingConfig struct {
	Provider          string  `mapstructure:"provider" validate:"required,oneof=openai local hashing"`
	Model             string  `mapstructure:"model"`
	BaseURL           string  `mapstructure:"base_url"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" validate:"gte=0"`
	ModelDir          string  `mapstructure:"model_dir"`
	Dimensions        int     `mapstructure:"dimensions" validate:"gte=0"`
}

// LLMConfig 生成模型配置
type LLMConfig struct {
	Model         string  `mapstructure:"model" validate:"required"`
	BaseURL       string  `mapstructure:"base_url"`
	Temperature   float32 `mapstructure:"temperature" validate:"gte=0,lte=2"`
	MaxTokens     int     `mapstructure:"max_tokens" validate:"gte=0"`
	ContextTokens int     `mapstructure:"context_tokens" validate:"gte=0"`
}

// IndexConfig 相似度索引配置
type IndexConfig struct {
	Provider string       `mapstructure:"provider" validate:"required,oneof=memory milvus"`
	Milvus   MilvusConfig `mapstructure:"milvus"`
}

// MilvusConfig Milvus连接配置
type MilvusConfig struct {
	Address          string `mapstructure:"address"`
	Database         string `mapstructure:"database"`
	Username         string `mapstructure:"username"`
	Password         string `mapstructure:"password"`
	CollectionPrefix string `mapstructure:"collection_prefix"`
	UseTLS           bool   `mapstructure:"use_tls"`
}

// ExtractorConfig 文档解析配置
type ExtractorConfig struct {
	OCRLanguages     []string `mapstructure:"ocr_languages"`
	UnidocLicenseKey string   `mapstructure:"unidoc_license_key"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// ConfigUpdateCallback 配置更新回调函数类型
type ConfigUpdateCallback func(oldConfig, newConfig *Config) error

// ConfigLoader 配置加载器
type ConfigLoader struct {
	viper     *viper.Viper
	validator *validator.Validate
	config    *Config
	callbacks []ConfigUpdateCallback
	watching  bool
	mu        sync.RWMutex
}

// NewConfigLoader 创建配置加载器
func NewConfigLoader() *ConfigLoader {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	return &ConfigLoader{
		viper:     v,
		validator: validator.New(),
	}
}

// Load 从默认值、环境变量和配置文件加载配置
func (cl *ConfigLoader) Load() (*Config, error) {
	cfg, err := cl.load()
	if err != nil {
		return nil, err
	}

	cl.mu.Lock()
	cl.config = cfg
	cl.mu.Unlock()

	return cfg, nil
}

func (cl *ConfigLoader) load() (*Config, error) {
	cl.setDefaults()
	cl.loadFromEnv()

	// 配置文件可选
	if configFile := os.Getenv("CONFIG_FILE"); configFile != "" {
		cl.viper.SetConfigFile(configFile)
		if err := cl.viper.ReadInConfig(); err != nil {
			logger.Warn("config file not found or invalid",
				zap.String("file", configFile),
				zap.Error(err))
		}
	}

	var cfg Config
	if err := cl.viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cl.validator.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// RegisterCallback 注册配置更新回调
func (cl *ConfigLoader) RegisterCallback(callback ConfigUpdateCallback) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.callbacks = append(cl.callbacks, callback)
}

// StartWatching 监听配置文件变化
func (cl *ConfigLoader) StartWatching() error {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if cl.watching {
		return fmt.Errorf("config watcher is already running")
	}
	if cl.viper.ConfigFileUsed() == "" {
		return fmt.Errorf("no config file to watch")
	}

	cl.viper.OnConfigChange(func(e fsnotify.Event) {
		logger.Info("config file changed", zap.String("file", e.Name))
		if err := cl.Reload(); err != nil {
			logger.Error("config reload failed", zap.Error(err))
		}
	})
	cl.viper.WatchConfig()

	cl.watching = true
	return nil
}

// Reload 重新加载配置并通知回调
func (cl *ConfigLoader) Reload() error {
	newConfig, err := cl.load()
	if err != nil {
		return fmt.Errorf("failed to reload config: %w", err)
	}

	cl.mu.Lock()
	oldConfig := cl.config
	cl.config = newConfig
	callbacks := make([]ConfigUpdateCallback, len(cl.callbacks))
	copy(callbacks, cl.callbacks)
	cl.mu.Unlock()

	for _, callback := range callbacks {
		if err := callback(oldConfig, newConfig); err != nil {
			logger.Warn("config update callback failed", zap.Error(err))
		}
	}
	return nil
}

// GetConfig 获取当前配置的副本
func (cl *ConfigLoader) GetConfig() *Config {
	cl.mu.RLock()
	defer cl.mu.RUnlock()

	if cl.config == nil {
		return nil
	}
	configCopy := *cl.config
	return &configCopy
}

// setDefaults 设置默认值
func (cl *ConfigLoader) setDefaults() {
	cl.viper.SetDefault("app.name", "docqa")
	cl.viper.SetDefault("app.version", "1.0.0")
	cl.viper.SetDefault("app.env", "development")

	cl.viper.SetDefault("server.port", 8001)
	cl.viper.SetDefault("server.allowed_origins", []string{"*"})
	cl.viper.SetDefault("server.rate_limit", 2)
	cl.viper.SetDefault("server.rate_burst", 4)

	cl.viper.SetDefault("pipeline.chunk_size", 1000)
	cl.viper.SetDefault("pipeline.chunk_overlap", 0)
	cl.viper.SetDefault("pipeline.top_k", 2)
	cl.viper.SetDefault("pipeline.strategy", "stuff")
	cl.viper.SetDefault("pipeline.max_retries", 1)
	cl.viper.SetDefault("pipeline.retry_backoff", "500ms")
	cl.viper.SetDefault("pipeline.max_parallel", 4)
	cl.viper.SetDefault("pipeline.timeout", "2m")
	cl.viper.SetDefault("pipeline.verify_credential", true)

	cl.viper.SetDefault("embedding.provider", "openai")
	cl.viper.SetDefault("embedding.model", "text-embedding-3-small")
	cl.viper.SetDefault("embedding.base_url", "")
	cl.viper.SetDefault("embedding.requests_per_second", 0)
	cl.viper.SetDefault("embedding.model_dir", "./models")
	cl.viper.SetDefault("embedding.dimensions", 256)

	cl.viper.SetDefault("llm.model", "gpt-4")
	cl.viper.SetDefault("llm.base_url", "")
	cl.viper.SetDefault("llm.temperature", 0)
	cl.viper.SetDefault("llm.max_tokens", 512)
	cl.viper.SetDefault("llm.context_tokens", 8192)

	cl.viper.SetDefault("index.provider", "memory")
	cl.viper.SetDefault("index.milvus.address", "localhost:19530")
	cl.viper.SetDefault("index.milvus.database", "default")
	cl.viper.SetDefault("index.milvus.username", "")
	cl.viper.SetDefault("index.milvus.password", "")
	cl.viper.SetDefault("index.milvus.collection_prefix", "docqa_session")
	cl.viper.SetDefault("index.milvus.use_tls", false)

	cl.viper.SetDefault("extractor.ocr_languages", []string{"eng"})
	cl.viper.SetDefault("extractor.unidoc_license_key", "")

	cl.viper.SetDefault("metrics.enabled", true)
}

// loadFromEnv 处理非前缀的常用环境变量
func (cl *ConfigLoader) loadFromEnv() {
	cl.setFromEnv("server.port", "SERVER_PORT")
	cl.setFromEnv("llm.base_url", "OPENAI_BASE_URL")
	cl.setFromEnv("index.milvus.address", "MILVUS_ADDRESS")
	cl.setFromEnv("extractor.unidoc_license_key", "UNIDOC_LICENSE_API_KEY")

	if langs := os.Getenv(EnvPrefix + "_EXTRACTOR_OCR_LANGUAGES"); langs != "" {
		parts := strings.Split(langs, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		cl.viper.Set("extractor.ocr_languages", parts)
	}
}

func (cl *ConfigLoader) setFromEnv(configKey, envKey string) {
	if value := os.Getenv(envKey); value != "" {
		cl.viper.Set(configKey, value)
	}
}

var (
	AppConfig *Config
	appLoader *ConfigLoader
)

// LoadConfig 加载全局配置
func LoadConfig() error {
	loader := NewConfigLoader()
	cfg, err := loader.Load()
	if err != nil {
		return err
	}
	AppConfig = cfg
	appLoader = loader
	return nil
}

// GetLoader 返回LoadConfig使用的加载器，未加载时为nil
func GetLoader() *ConfigLoader {
	return appLoader
}
