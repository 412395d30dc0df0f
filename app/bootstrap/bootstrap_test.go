package bootstrap

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aihub/docqa/internal/config"
	"github.com/aihub/docqa/internal/pipeline"
)

func TestApp_ApplyConfigSwapsOrchestrator(t *testing.T) {
	cfg, err := config.NewConfigLoader().Load()
	require.NoError(t, err)

	original := pipeline.New(pipeline.Components{})
	app := NewApp(cfg, original)
	assert.Same(t, original, app.Orchestrator())

	updated := *cfg
	updated.Pipeline.TopK = 4
	require.NoError(t, app.applyConfig(cfg, &updated))

	assert.NotSame(t, original, app.Orchestrator())
	assert.Equal(t, 4, app.Config().Pipeline.TopK)
	assert.NotEmpty(t, app.Orchestrator().SupportedMediaTypes())
}

func TestApp_ShutdownRunsCleanupInReverse(t *testing.T) {
	app := NewApp(nil, nil)
	var order []int
	app.AddCleanup(func() error { order = append(order, 1); return nil })
	app.AddCleanup(func() error { order = append(order, 2); return errors.New("ignored") })
	app.AddCleanup(func() error { order = append(order, 3); return nil })

	app.Shutdown()
	assert.Equal(t, []int{3, 2, 1}, order)
}

func TestGlobalApp(t *testing.T) {
	app := NewApp(nil, nil)
	SetGlobalApp(app)
	t.Cleanup(func() { SetGlobalApp(nil) })
	assert.Same(t, app, GetApp())
}

func TestApp_ApplyConfigRetiresPreviousFactory(t *testing.T) {
	cfg, err := config.NewConfigLoader().Load()
	require.NoError(t, err)

	first := pipeline.NewConfigFactory(cfg)
	app := NewApp(cfg, pipeline.New(pipeline.Components{}))
	app.factory = first
	app.AddCleanup(app.closeFactory)

	for i := 1; i <= 3; i++ {
		updated := *cfg
		updated.Pipeline.TopK = i
		require.NoError(t, app.applyConfig(cfg, &updated))
	}
	app.retiring.Wait()

	assert.True(t, first.Closed())
	current := app.factory
	assert.NotSame(t, first, current)
	assert.False(t, current.Closed())

	app.Shutdown()
	assert.True(t, current.Closed())
}
