package pipeline

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/aihub/docqa/internal/errors"
	"github.com/aihub/docqa/internal/knowledge"
	"github.com/aihub/docqa/internal/logger"
)

const (
	defaultMaxParallel    = 4
	defaultEmbedBatchSize = 16
	releaseTimeout        = 10 * time.Second
)

// TextExtractor 文本提取接口
type TextExtractor interface {
	Supports(mediaType string) bool
	Extract(ctx context.Context, doc knowledge.Document) (string, error)
}

// Components 流水线依赖
type Components struct {
	Extractor TextExtractor
	Factory   ComponentFactory
}

// Outcome 单次运行结果
type Outcome struct {
	RunID   string            `json:"run_id"`
	State   State             `json:"state"`
	Answer  *knowledge.Answer `json:"answer,omitempty"`
	Err     error             `json:"-"`
	Retries int               `json:"retries"`
	Trace   []State           `json:"trace"`
}

// Option 编排器选项
type Option func(*Orchestrator)

// WithRetryPolicy 设置重试策略
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(o *Orchestrator) {
		o.retry = policy
	}
}

// WithMaxParallel 设置向量化并发数
func WithMaxParallel(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxParallel = n
		}
	}
}

// WithEmbedBatchSize 设置批量向量化的批大小
func WithEmbedBatchSize(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.embedBatchSize = n
		}
	}
}

// WithTimeout 设置单次运行超时，<=0 表示不限
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.timeout = d
	}
}

// WithContextBudget 设置模型上下文预算
func WithContextBudget(contextTokens, maxTokens int) Option {
	return func(o *Orchestrator) {
		o.contextTokens = contextTokens
		o.maxTokens = maxTokens
	}
}

// WithCredentialCheck 运行前校验凭证
func WithCredentialCheck(enabled bool) Option {
	return func(o *Orchestrator) {
		o.verifyCredential = enabled
	}
}

// Orchestrator 文档问答流水线编排器，只持有不可变配置，可并发调用Run
type Orchestrator struct {
	extractor        TextExtractor
	factory          ComponentFactory
	retry            RetryPolicy
	maxParallel      int
	embedBatchSize   int
	timeout          time.Duration
	contextTokens    int
	maxTokens        int
	verifyCredential bool

	// 每次运行持有读锁，Drain取写锁等待其结束
	active sync.RWMutex
}

// New 创建编排器
func New(components Components, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		extractor:      components.Extractor,
		factory:        components.Factory,
		retry:          DefaultRetryPolicy(),
		maxParallel:    defaultMaxParallel,
		embedBatchSize: defaultEmbedBatchSize,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SupportedMediaTypes 返回可处理的媒体类型
func (o *Orchestrator) SupportedMediaTypes() []string {
	if lister, ok := o.extractor.(interface{ SupportedMediaTypes() []string }); ok {
		return lister.SupportedMediaTypes()
	}
	return nil
}

// Drain 阻塞直到进行中的运行全部结束
func (o *Orchestrator) Drain() {
	o.active.Lock()
	defer o.active.Unlock()
}

// run 单次运行的可变状态
type run struct {
	id         string
	sm         *stateMachine
	retrier    *retrier
	index      knowledge.VectorIndex
	stageStart time.Time
}

func (r *run) enter(to State) error {
	now := time.Now()
	stageDuration.WithLabelValues(string(r.sm.Current())).Observe(now.Sub(r.stageStart).Seconds())
	r.stageStart = now
	return r.sm.Transition(to)
}

// Run 执行一次完整的问答流水线
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Outcome, error) {
	o.active.RLock()
	defer o.active.RUnlock()

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	runID := uuid.NewString()
	r := &run{
		id:         runID,
		sm:         newStateMachine(runID),
		retrier:    newRetrier(o.retry, runID),
		stageStart: time.Now(),
	}
	started := r.stageStart

	logger.Info("pipeline run started",
		zap.String("run_id", runID),
		zap.String("document", req.Document.Name),
		zap.String("media_type", req.Document.Essence()),
		zap.String("strategy", string(req.Options.Strategy)),
		zap.Int("k", req.Options.TopK))

	answer, err := o.execute(ctx, req, r)
	o.releaseIndex(ctx, r)

	outcome := &Outcome{RunID: runID}
	if err != nil {
		appErr := apperrors.Ensure(err, apperrors.KindInternal, "pipeline failed")
		if appErr.Stage == "" {
			appErr = appErr.WithStage(string(r.sm.Current()))
		}
		if !r.sm.Current().Terminal() {
			_ = r.enter(StateFailed)
		}
		outcome.State = r.sm.Current()
		outcome.Err = appErr
		outcome.Retries = r.retrier.Count()
		outcome.Trace = r.sm.Trace()

		runsTotal.WithLabelValues("failed", string(appErr.Kind)).Inc()
		logger.Warn("pipeline run failed",
			zap.String("run_id", runID),
			zap.String("kind", string(appErr.Kind)),
			zap.String("stage", appErr.Stage),
			zap.Int("retries", outcome.Retries),
			zap.Duration("elapsed", time.Since(started)),
			zap.Error(appErr))
		return outcome, appErr
	}

	outcome.State = r.sm.Current()
	outcome.Answer = answer
	outcome.Retries = r.retrier.Count()
	outcome.Trace = r.sm.Trace()

	runsTotal.WithLabelValues("done", "").Inc()
	logger.Info("pipeline run finished",
		zap.String("run_id", runID),
		zap.Int("sources", len(answer.Sources)),
		zap.Int("retries", outcome.Retries),
		zap.Duration("elapsed", time.Since(started)))
	return outcome, nil
}

func (o *Orchestrator) execute(ctx context.Context, req Request, r *run) (*knowledge.Answer, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	mediaType := req.Document.Essence()
	if mediaType == "" || !o.extractor.Supports(mediaType) {
		return nil, apperrors.Newf(apperrors.KindUnsupportedFormat, "unsupported media type %q", mediaType)
	}
	opts := req.Options

	embedder, err := o.factory.NewEmbedder(ctx, opts.Credential)
	if err != nil {
		return nil, apperrors.Ensure(err, apperrors.KindInvalidConfig, "failed to create embedder")
	}
	model, err := o.factory.NewChatModel(ctx, opts.Credential)
	if err != nil {
		return nil, apperrors.Ensure(err, apperrors.KindInvalidConfig, "failed to create chat model")
	}
	if verifier, ok := model.(knowledge.CredentialVerifier); ok && o.verifyCredential {
		if err := r.retrier.do(ctx, StateIdle, verifier.VerifyCredential); err != nil {
			return nil, err
		}
	}

	// Extracting
	if err := o.advance(ctx, r, StateExtracting); err != nil {
		return nil, err
	}
	text, err := o.extractor.Extract(ctx, req.Document)
	if err != nil {
		return nil, apperrors.Ensure(err, apperrors.KindExtraction, "extraction failed")
	}

	// Chunking
	if err := o.advance(ctx, r, StateChunking); err != nil {
		return nil, err
	}
	chunker, err := knowledge.NewChunker(opts.ChunkSize, opts.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	chunks := chunker.ForDocument(req.Document.Name).Split(text)

	// Embedding
	if err := o.advance(ctx, r, StateEmbedding); err != nil {
		return nil, err
	}
	// 空白分块保留在序列中，但不进入索引
	indexed := make([]knowledge.TextChunk, 0, len(chunks))
	for _, c := range chunks {
		if knowledge.Embeddable(c.Text) {
			indexed = append(indexed, c)
		}
	}
	if skipped := len(chunks) - len(indexed); skipped > 0 {
		logger.Debug("skipping chunks without embeddable text",
			zap.String("run_id", r.id),
			zap.Int("chunks", len(chunks)),
			zap.Int("skipped", skipped))
	}
	vectors, err := o.embedChunks(ctx, r, embedder, indexed)
	if err != nil {
		return nil, err
	}

	// Indexing
	if err := o.advance(ctx, r, StateIndexing); err != nil {
		return nil, err
	}
	index, err := o.factory.NewIndex(ctx)
	if err != nil {
		return nil, apperrors.Ensure(err, apperrors.KindServiceUnavailable, "failed to create index")
	}
	r.index = index
	entries := make([]knowledge.IndexEntry, len(indexed))
	for i := range indexed {
		entries[i] = knowledge.IndexEntry{Vector: vectors[i], Chunk: indexed[i]}
	}
	if err := r.retrier.do(ctx, StateIndexing, func(ctx context.Context) error {
		return index.Build(ctx, entries)
	}); err != nil {
		return nil, err
	}

	// Retrieving
	if err := o.advance(ctx, r, StateRetrieving); err != nil {
		return nil, err
	}
	var queryVector []float32
	if err := r.retrier.do(ctx, StateRetrieving, func(ctx context.Context) error {
		embeddingCalls.WithLabelValues(o.factory.EmbeddingProvider()).Inc()
		vec, err := embedder.Embed(ctx, req.Query)
		if err != nil {
			return apperrors.Ensure(err, apperrors.KindEmbedding, "failed to embed query")
		}
		queryVector = vec
		return nil
	}); err != nil {
		return nil, err
	}
	var retrieved []knowledge.ScoredChunk
	if err := r.retrier.do(ctx, StateRetrieving, func(ctx context.Context) error {
		results, err := index.Query(ctx, queryVector, opts.TopK)
		retrieved = results
		return err
	}); err != nil {
		return nil, err
	}
	for i := range retrieved {
		retrieved[i].Chunk.DocumentName = req.Document.Name
	}

	// Synthesizing
	if err := o.advance(ctx, r, StateSynthesizing); err != nil {
		return nil, err
	}
	synthesizer := knowledge.NewSynthesizer(&retryingChatModel{model: model, retrier: r.retrier}, knowledge.SynthesizerOptions{
		ContextTokens: o.contextTokens,
		MaxTokens:     o.maxTokens,
	})
	answer, err := synthesizer.Synthesize(ctx, req.Query, retrieved, opts.Strategy)
	if err != nil {
		return nil, err
	}

	if err := r.enter(StateDone); err != nil {
		return nil, err
	}
	return answer, nil
}

// advance 检查取消后进入下一阶段
func (o *Orchestrator) advance(ctx context.Context, r *run, to State) error {
	if err := ctx.Err(); err != nil {
		return apperrors.FromContext(err)
	}
	return r.enter(to)
}

// embedChunks 并发向量化，结果按分块顺序返回
func (o *Orchestrator) embedChunks(ctx context.Context, r *run, embedder knowledge.Embedder, chunks []knowledge.TextChunk) ([][]float32, error) {
	vectors := make([][]float32, len(chunks))
	provider := o.factory.EmbeddingProvider()

	batchSize := 1
	batcher, isBatch := embedder.(knowledge.BatchEmbedder)
	if isBatch {
		batchSize = o.embedBatchSize
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.maxParallel)
	for start := 0; start < len(chunks); start += batchSize {
		end := min(start+batchSize, len(chunks))
		g.Go(func() error {
			return r.retrier.do(gctx, StateEmbedding, func(ctx context.Context) error {
				embeddingCalls.WithLabelValues(provider).Inc()
				if isBatch {
					texts := make([]string, 0, end-start)
					for _, c := range chunks[start:end] {
						texts = append(texts, c.Text)
					}
					batch, err := batcher.EmbedBatch(ctx, texts)
					if err != nil {
						return apperrors.Ensure(err, apperrors.KindEmbedding, "failed to embed chunks")
					}
					copy(vectors[start:end], batch)
					return nil
				}
				vec, err := embedder.Embed(ctx, chunks[start].Text)
				if err != nil {
					return apperrors.Ensure(err, apperrors.KindEmbedding, "failed to embed chunk")
				}
				vectors[start] = vec
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, apperrors.FromContext(ctxErr)
		}
		return nil, err
	}
	return vectors, nil
}

// releaseIndex 尽力释放会话索引
func (o *Orchestrator) releaseIndex(ctx context.Context, r *run) {
	if r.index == nil {
		return
	}
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if err := r.index.Release(releaseCtx); err != nil {
		logger.Warn("failed to release session index",
			zap.String("run_id", r.id),
			zap.Error(err))
	}
	r.index = nil
}

// retryingChatModel 对每次模型调用应用重试策略
type retryingChatModel struct {
	model   knowledge.ChatModel
	retrier *retrier
}

func (m *retryingChatModel) Complete(ctx context.Context, system, user string) (string, error) {
	var out string
	err := m.retrier.do(ctx, StateSynthesizing, func(ctx context.Context) error {
		text, err := m.model.Complete(ctx, system, user)
		if err != nil {
			return apperrors.Ensure(err, apperrors.KindServiceUnavailable, "chat completion failed")
		}
		if strings.TrimSpace(text) == "" {
			return apperrors.New(apperrors.KindEmptyResult, "model returned an empty answer")
		}
		out = text
		return nil
	})
	return out, err
}
