package knowledge

import (
	"context"
	"fmt"
	"strings"
	"text/template"

	"go.uber.org/zap"

	apperrors "github.com/aihub/docqa/internal/errors"
	"github.com/aihub/docqa/internal/logger"
)

// Strategy 答案聚合策略
type Strategy string

const (
	StrategyStuff     Strategy = "stuff"
	StrategyMapReduce Strategy = "map_reduce"
	StrategyRefine    Strategy = "refine"
	StrategyMapRerank Strategy = "map_rerank"

	DefaultStrategy = StrategyStuff
)

// Strategies 返回全部策略
func Strategies() []Strategy {
	return []Strategy{StrategyStuff, StrategyMapReduce, StrategyRefine, StrategyMapRerank}
}

// Valid 是否为已知策略
func (s Strategy) Valid() bool {
	switch s {
	case StrategyStuff, StrategyMapReduce, StrategyRefine, StrategyMapRerank:
		return true
	}
	return false
}

// ParseStrategy 解析策略名，空字符串返回默认策略
func ParseStrategy(name string) (Strategy, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return DefaultStrategy, nil
	}
	s := Strategy(name)
	if !s.Valid() {
		return "", apperrors.Newf(apperrors.KindInvalidConfig, "unknown strategy %q", name)
	}
	return s, nil
}

// SynthesizerOptions 生成配置
type SynthesizerOptions struct {
	// ContextTokens 模型上下文窗口，<=0 时不做预算检查
	ContextTokens int
	// MaxTokens 为回复预留的token数
	MaxTokens int
	Reranker  Reranker
}

// Synthesizer 根据检索结果生成答案
type Synthesizer struct {
	model         ChatModel
	contextTokens int
	maxTokens     int
	reranker      Reranker
}

// NewSynthesizer 创建答案生成器
func NewSynthesizer(model ChatModel, opts SynthesizerOptions) *Synthesizer {
	reranker := opts.Reranker
	if reranker == nil {
		reranker = ScoreReranker{}
	}
	return &Synthesizer{
		model:         model,
		contextTokens: opts.ContextTokens,
		maxTokens:     opts.MaxTokens,
		reranker:      reranker,
	}
}

// Synthesize 按策略生成答案
func (s *Synthesizer) Synthesize(ctx context.Context, query string, chunks []ScoredChunk, strategy Strategy) (*Answer, error) {
	if !strategy.Valid() {
		return nil, apperrors.Newf(apperrors.KindInvalidConfig, "unknown strategy %q", strategy)
	}
	if s.model == nil {
		return nil, apperrors.New(apperrors.KindInvalidConfig, "no chat model configured")
	}

	if len(chunks) == 0 {
		text, err := s.stuff(ctx, query, nil)
		if err != nil {
			return nil, err
		}
		return &Answer{Text: text, Sources: []TextChunk{}, Strategy: strategy}, nil
	}

	var (
		text    string
		sources []ScoredChunk
		err     error
	)
	switch strategy {
	case StrategyStuff:
		text, err = s.stuff(ctx, query, chunks)
		sources = chunks
	case StrategyMapReduce:
		text, err = s.mapReduce(ctx, query, chunks)
		sources = chunks
	case StrategyRefine:
		text, err = s.refine(ctx, query, chunks)
		sources = chunks
	case StrategyMapRerank:
		var winner ScoredChunk
		text, winner, err = s.mapRerank(ctx, query, chunks)
		sources = []ScoredChunk{winner}
	}
	if err != nil {
		return nil, err
	}

	logger.Debug("answer synthesized",
		zap.String("strategy", string(strategy)),
		zap.Int("chunks", len(chunks)),
		zap.Int("sources", len(sources)))

	answer := &Answer{Text: text, Strategy: strategy, Sources: make([]TextChunk, len(sources))}
	for i, c := range sources {
		answer.Sources[i] = c.Chunk
	}
	return answer, nil
}

func (s *Synthesizer) stuff(ctx context.Context, query string, chunks []ScoredChunk) (string, error) {
	system, err := s.render(stuffSystemPrompt, promptData{Context: joinChunks(chunks)})
	if err != nil {
		return "", err
	}
	return s.complete(ctx, system, query)
}

func (s *Synthesizer) mapReduce(ctx context.Context, query string, chunks []ScoredChunk) (string, error) {
	summaries := make([]string, 0, len(chunks))
	for _, c := range chunks {
		prompt, err := s.render(mapPrompt, promptData{Question: query, Context: c.Chunk.Text})
		if err != nil {
			return "", err
		}
		summary, err := s.complete(ctx, answerSystemPrompt, prompt)
		if err != nil {
			return "", err
		}
		summaries = append(summaries, summary)
	}

	prompt, err := s.render(combinePrompt, promptData{Question: query, Context: strings.Join(summaries, "\n\n")})
	if err != nil {
		return "", err
	}
	return s.complete(ctx, answerSystemPrompt, prompt)
}

func (s *Synthesizer) refine(ctx context.Context, query string, chunks []ScoredChunk) (string, error) {
	prompt, err := s.render(refineInitialPrompt, promptData{Question: query, Context: chunks[0].Chunk.Text})
	if err != nil {
		return "", err
	}
	answer, err := s.complete(ctx, answerSystemPrompt, prompt)
	if err != nil {
		return "", err
	}

	for _, c := range chunks[1:] {
		prompt, err := s.render(refineStepPrompt, promptData{
			Question: query,
			Context:  c.Chunk.Text,
			Existing: answer,
		})
		if err != nil {
			return "", err
		}
		if answer, err = s.complete(ctx, answerSystemPrompt, prompt); err != nil {
			return "", err
		}
	}
	return answer, nil
}

func (s *Synthesizer) mapRerank(ctx context.Context, query string, chunks []ScoredChunk) (string, ScoredChunk, error) {
	candidates := make([]RerankCandidate, 0, len(chunks))
	for i, c := range chunks {
		prompt, err := s.render(rerankPrompt, promptData{Question: query, Context: c.Chunk.Text})
		if err != nil {
			return "", ScoredChunk{}, err
		}
		completion, err := s.complete(ctx, answerSystemPrompt, prompt)
		if err != nil {
			return "", ScoredChunk{}, err
		}
		text, score := parseScoredAnswer(completion)
		candidates = append(candidates, RerankCandidate{
			Position: i,
			Chunk:    c,
			Answer:   text,
			Score:    score,
		})
	}

	ranked, err := s.reranker.Rerank(ctx, query, candidates)
	if err != nil {
		return "", ScoredChunk{}, apperrors.Ensure(err, apperrors.KindInternal, "rerank failed")
	}
	if len(ranked) == 0 {
		return "", ScoredChunk{}, apperrors.New(apperrors.KindEmptyResult, "rerank produced no candidates")
	}
	best := ranked[0].Candidate
	return best.Answer, best.Chunk, nil
}

// complete 预算检查后调用模型
func (s *Synthesizer) complete(ctx context.Context, system, user string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", apperrors.FromContext(err)
	}
	if s.contextTokens > 0 {
		need := EstimateTokens(system) + EstimateTokens(user) + s.maxTokens
		if need > s.contextTokens {
			return "", apperrors.Newf(apperrors.KindQuotaOrRequest,
				"prompt needs about %d tokens, model context is %d", need, s.contextTokens)
		}
	}

	text, err := s.model.Complete(ctx, system, user)
	if err != nil {
		return "", apperrors.Ensure(err, apperrors.KindServiceUnavailable, "chat completion failed")
	}
	if strings.TrimSpace(text) == "" {
		return "", apperrors.New(apperrors.KindEmptyResult, "model returned an empty answer")
	}
	return text, nil
}

func (s *Synthesizer) render(tmpl *template.Template, data promptData) (string, error) {
	out, err := renderPrompt(tmpl, data)
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindInternal, fmt.Sprintf("failed to render %s prompt", tmpl.Name()), err)
	}
	return out, nil
}
