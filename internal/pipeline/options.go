package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/aihub/docqa/internal/config"
	apperrors "github.com/aihub/docqa/internal/errors"
	"github.com/aihub/docqa/internal/knowledge"
)

// Options 单次问答的配置值对象
type Options struct {
	ChunkSize    int                `json:"chunk_size" validate:"gt=0"`
	ChunkOverlap int                `json:"chunk_overlap" validate:"gte=0,ltfield=ChunkSize"`
	TopK         int                `json:"k" validate:"min=1,max=5"`
	Strategy     knowledge.Strategy `json:"strategy" validate:"strategy"`
	Credential   string             `json:"-" validate:"required,notblank"`
}

// DefaultOptions 返回默认配置（不含凭证）
func DefaultOptions() Options {
	return Options{
		ChunkSize:    knowledge.DefaultChunkSize,
		ChunkOverlap: knowledge.DefaultChunkOverlap,
		TopK:         2,
		Strategy:     knowledge.DefaultStrategy,
	}
}

// OptionsFromConfig 从流水线配置生成默认选项
func OptionsFromConfig(cfg config.PipelineConfig) Options {
	opts := DefaultOptions()
	if cfg.ChunkSize > 0 {
		opts.ChunkSize = cfg.ChunkSize
	}
	opts.ChunkOverlap = cfg.ChunkOverlap
	if cfg.TopK > 0 {
		opts.TopK = cfg.TopK
	}
	if cfg.Strategy != "" {
		opts.Strategy = knowledge.Strategy(cfg.Strategy)
	}
	return opts
}

// Request 单次问答请求
type Request struct {
	Document knowledge.Document
	Query    string
	Options  Options
}

// RetryPolicy 重试策略
type RetryPolicy struct {
	MaxRetries     int
	InitialBackoff time.Duration
}

// DefaultRetryPolicy 默认重试一次，初始退避500ms
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 1, InitialBackoff: 500 * time.Millisecond}
}

var optionsValidator = newOptionsValidator()

func newOptionsValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("strategy", func(fl validator.FieldLevel) bool {
		return knowledge.Strategy(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}

// Validate 校验请求，在任何外部调用之前执行
func (r Request) Validate() error {
	if len(r.Document.Content) == 0 {
		return apperrors.New(apperrors.KindInvalidConfig, "document is required")
	}
	if strings.TrimSpace(r.Query) == "" {
		return apperrors.New(apperrors.KindInvalidConfig, "query must not be blank")
	}
	if err := optionsValidator.Struct(r.Options); err != nil {
		return apperrors.Wrap(apperrors.KindInvalidConfig, describeValidation(err), err)
	}
	return nil
}

func describeValidation(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return "invalid options"
	}
	fe := verrs[0]
	switch fe.Field() {
	case "TopK":
		return "k must be between 1 and 5"
	case "ChunkSize":
		return "chunk size must be positive"
	case "ChunkOverlap":
		return "chunk overlap must be non-negative and smaller than chunk size"
	case "Strategy":
		return fmt.Sprintf("unknown strategy %q", fe.Value())
	case "Credential":
		return "credential is required"
	}
	return "invalid option " + fe.Field()
}
