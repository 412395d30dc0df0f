package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/aihub/docqa/internal/errors"
)

func TestCanTransition(t *testing.T) {
	happy := fullTrace()
	for i := 0; i+1 < len(happy); i++ {
		assert.True(t, CanTransition(happy[i], happy[i+1]), "%s -> %s", happy[i], happy[i+1])
	}
	for _, s := range happy[:len(happy)-1] {
		assert.True(t, CanTransition(s, StateFailed), "%s -> Failed", s)
	}

	assert.False(t, CanTransition(StateIdle, StateEmbedding))
	assert.False(t, CanTransition(StateDone, StateFailed))
	assert.False(t, CanTransition(StateFailed, StateIdle))
	assert.False(t, CanTransition(StateSynthesizing, StateRetrieving))
}

func TestStateMachine_IllegalTransition(t *testing.T) {
	sm := newStateMachine("run-1")
	require.NoError(t, sm.Transition(StateExtracting))

	err := sm.Transition(StateDone)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindInternal, apperrors.KindOf(err))
	assert.Contains(t, err.Error(), "InvalidState")
	assert.Equal(t, StateExtracting, sm.Current())
	assert.Equal(t, []State{StateIdle, StateExtracting}, sm.Trace())
	assert.True(t, StateDone.Terminal())
	assert.False(t, StateIndexing.Terminal())
}

func TestRetrier(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 2, InitialBackoff: time.Millisecond}

	t.Run("non retryable stops immediately", func(t *testing.T) {
		r := newRetrier(policy, "run")
		calls := 0
		err := r.do(context.Background(), StateEmbedding, func(ctx context.Context) error {
			calls++
			return apperrors.New(apperrors.KindAuthentication, "nope")
		})
		assert.Equal(t, apperrors.KindAuthentication, apperrors.KindOf(err))
		assert.Equal(t, 1, calls)
		assert.Zero(t, r.Count())
	})

	t.Run("retryable recovers", func(t *testing.T) {
		r := newRetrier(policy, "run")
		calls := 0
		err := r.do(context.Background(), StateEmbedding, func(ctx context.Context) error {
			calls++
			if calls < 3 {
				return apperrors.New(apperrors.KindServiceUnavailable, "busy")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
		assert.Equal(t, 2, r.Count())
	})

	t.Run("retries accumulate across calls", func(t *testing.T) {
		r := newRetrier(RetryPolicy{MaxRetries: 1, InitialBackoff: time.Millisecond}, "run")
		for i := 0; i < 2; i++ {
			err := r.do(context.Background(), StateSynthesizing, func(ctx context.Context) error {
				return apperrors.New(apperrors.KindEmptyResult, "empty")
			})
			assert.Equal(t, apperrors.KindEmptyResult, apperrors.KindOf(err))
		}
		assert.Equal(t, 2, r.Count())
	})

	t.Run("zero retries", func(t *testing.T) {
		r := newRetrier(RetryPolicy{}, "run")
		calls := 0
		err := r.do(context.Background(), StateEmbedding, func(ctx context.Context) error {
			calls++
			return apperrors.New(apperrors.KindServiceUnavailable, "busy")
		})
		assert.Equal(t, apperrors.KindServiceUnavailable, apperrors.KindOf(err))
		assert.Equal(t, 1, calls)
	})

	t.Run("cancelled context", func(t *testing.T) {
		r := newRetrier(policy, "run")
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		calls := 0
		err := r.do(ctx, StateEmbedding, func(ctx context.Context) error {
			calls++
			return nil
		})
		assert.Equal(t, apperrors.KindCancelled, apperrors.KindOf(err))
		assert.Zero(t, calls)
	})
}

func TestRequestValidate(t *testing.T) {
	req := textRequest("hello")
	require.NoError(t, req.Validate())

	req.Options.TopK = 9
	err := req.Validate()
	assert.Equal(t, apperrors.KindInvalidConfig, apperrors.KindOf(err))
	assert.Contains(t, err.Error(), "k must be between 1 and 5")
}
