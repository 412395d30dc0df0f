package di

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aihub/docqa/internal/config"
	"github.com/aihub/docqa/internal/knowledge"
	"github.com/aihub/docqa/internal/pipeline"
)

func TestDependencyInjectionContainer(t *testing.T) {
	container := InitContainer()
	assert.NotNil(t, container)
	assert.Same(t, container, GetContainer())
}

func TestContainerBasicOperations(t *testing.T) {
	InitContainer()

	type TestService struct {
		Name string
	}

	err := Provide(func() *TestService {
		return &TestService{Name: "test"}
	})
	require.NoError(t, err)

	err = Invoke(func(svc *TestService) {
		assert.Equal(t, "test", svc.Name)
	})
	assert.NoError(t, err)
}

func TestBuildContainer_ResolvesOrchestrator(t *testing.T) {
	cfg, err := config.NewConfigLoader().Load()
	require.NoError(t, err)

	_, err = BuildContainer(cfg)
	require.NoError(t, err)

	err = Invoke(func(o *pipeline.Orchestrator, extractor *knowledge.Extractor, resolved *config.Config) {
		assert.NotNil(t, o)
		assert.Same(t, cfg, resolved)
		assert.True(t, extractor.Supports(knowledge.MediaTypePDF))
		assert.Equal(t, extractor.SupportedMediaTypes(), o.SupportedMediaTypes())
	})
	assert.NoError(t, err)
}

func TestBuildContainer_RequiresConfig(t *testing.T) {
	_, err := BuildContainer(nil)
	assert.Error(t, err)
}

func TestResolve(t *testing.T) {
	cfg, err := config.NewConfigLoader().Load()
	require.NoError(t, err)
	_, err = BuildContainer(cfg)
	require.NoError(t, err)

	factory, err := Resolve[*pipeline.ConfigFactory]()
	require.NoError(t, err)
	assert.Equal(t, cfg.Embedding.Provider, factory.EmbeddingProvider())

	_, err = Resolve[*testing.T]()
	assert.Error(t, err)
}
