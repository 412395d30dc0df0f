package pipeline

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	apperrors "github.com/aihub/docqa/internal/errors"
	"github.com/aihub/docqa/internal/logger"
)

// retrier 有界重试，只重试标记为可重试的错误
type retrier struct {
	policy  RetryPolicy
	runID   string
	retries atomic.Int64
}

func newRetrier(policy RetryPolicy, runID string) *retrier {
	return &retrier{policy: policy, runID: runID}
}

func (r *retrier) backOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	if r.policy.InitialBackoff > 0 {
		eb.InitialInterval = r.policy.InitialBackoff
	}
	eb.MaxElapsedTime = 0
	eb.MaxInterval = 30 * time.Second
	eb.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(max(r.policy.MaxRetries, 0))), ctx)
}

// do 执行op，失败时按策略重试；返回的错误总是*apperrors.Error
func (r *retrier) do(ctx context.Context, stage State, op func(ctx context.Context) error) error {
	attempt := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(apperrors.FromContext(err))
		}
		err := op(ctx)
		if err == nil {
			return nil
		}
		if !apperrors.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		r.retries.Add(1)
		retriesTotal.WithLabelValues(string(stage)).Inc()
		logger.Warn("retrying pipeline call",
			zap.String("run_id", r.runID),
			zap.String("stage", string(stage)),
			zap.Duration("backoff", wait),
			zap.Error(err))
	}

	err := backoff.RetryNotify(attempt, r.backOff(ctx), notify)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return apperrors.FromContext(ctxErr).WithStage(string(stage))
	}
	return apperrors.Ensure(err, apperrors.KindInternal, "pipeline call failed").WithStage(string(stage))
}

// Count 已发生的重试次数
func (r *retrier) Count() int {
	return int(r.retries.Load())
}
