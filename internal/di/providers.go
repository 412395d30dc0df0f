package di

import (
	"fmt"

	"go.uber.org/dig"

	"github.com/aihub/docqa/internal/config"
	"github.com/aihub/docqa/internal/knowledge"
	"github.com/aihub/docqa/internal/pipeline"
)

// RegisterProviders 注册所有依赖提供者
func RegisterProviders(container *dig.Container, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config not loaded")
	}

	// 配置
	if err := container.Provide(func() *config.Config {
		return cfg
	}); err != nil {
		return err
	}

	// 文档提取器
	if err := container.Provide(func(cfg *config.Config) *knowledge.Extractor {
		return knowledge.NewExtractor(knowledge.ExtractorOptions{
			OCRLanguages:     cfg.Extractor.OCRLanguages,
			UnidocLicenseKey: cfg.Extractor.UnidocLicenseKey,
		})
	}); err != nil {
		return err
	}

	// 组件工厂
	if err := container.Provide(pipeline.NewConfigFactory); err != nil {
		return err
	}

	// 编排器
	if err := container.Provide(func(cfg *config.Config, extractor *knowledge.Extractor, factory *pipeline.ConfigFactory) *pipeline.Orchestrator {
		return pipeline.NewFromConfig(cfg, extractor, factory)
	}); err != nil {
		return err
	}

	return nil
}

// BuildContainer 创建容器并注册提供者
func BuildContainer(cfg *config.Config) (*dig.Container, error) {
	container := InitContainer()
	if err := RegisterProviders(container, cfg); err != nil {
		return nil, fmt.Errorf("failed to register providers: %w", err)
	}
	return container, nil
}
