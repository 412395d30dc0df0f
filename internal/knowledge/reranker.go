package knowledge

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Reranker 对逐块候选答案重排序
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []RerankCandidate) ([]RerankResult, error)
	Ready() bool
}

// RerankCandidate 单个分块产生的候选答案
type RerankCandidate struct {
	Position int         `json:"position"` // 在检索结果中的位置
	Chunk    ScoredChunk `json:"chunk"`
	Answer   string      `json:"answer"`
	Score    float64     `json:"score"` // 模型自评分数
}

// RerankResult 重排序结果
type RerankResult struct {
	Candidate RerankCandidate `json:"candidate"`
	Score     float64         `json:"score"`
	Rank      int             `json:"rank"`
}

// ScoreReranker 按模型自评分数降序排序，同分时保留检索顺序
type ScoreReranker struct{}

func (ScoreReranker) Rerank(ctx context.Context, query string, candidates []RerankCandidate) ([]RerankResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ordered := make([]RerankCandidate, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Score != ordered[j].Score {
			return ordered[i].Score > ordered[j].Score
		}
		return ordered[i].Position < ordered[j].Position
	})

	results := make([]RerankResult, len(ordered))
	for i, c := range ordered {
		results[i] = RerankResult{
			Candidate: c,
			Score:     c.Score,
			Rank:      i + 1,
		}
	}
	return results, nil
}

func (ScoreReranker) Ready() bool {
	return true
}

var scoredAnswerPattern = regexp.MustCompile(`(?is)^(.*?)\s*Score:\s*([0-9]+(?:\.[0-9]+)?)\s*$`)

// parseScoredAnswer 解析 "答案\nScore: N" 格式；无法解析时分数记为0
func parseScoredAnswer(completion string) (string, float64) {
	text := strings.TrimSpace(completion)
	m := scoredAnswerPattern.FindStringSubmatch(text)
	if m == nil {
		return text, 0
	}
	score, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return strings.TrimSpace(m[1]), 0
	}
	answer := strings.TrimSpace(m[1])
	answer = strings.TrimSpace(strings.TrimPrefix(answer, "Helpful Answer:"))
	return answer, score
}
