package pipeline

import (
	"go.uber.org/zap"

	apperrors "github.com/aihub/docqa/internal/errors"
	"github.com/aihub/docqa/internal/logger"
)

// State 流水线状态
type State string

const (
	StateIdle         State = "Idle"
	StateExtracting   State = "Extracting"
	StateChunking     State = "Chunking"
	StateEmbedding    State = "Embedding"
	StateIndexing     State = "Indexing"
	StateRetrieving   State = "Retrieving"
	StateSynthesizing State = "Synthesizing"
	StateDone         State = "Done"
	StateFailed       State = "Failed"
)

// Terminal 是否为终态
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// 状态转换规则，任一非终态均可转为Failed
var stateTransitions = map[State][]State{
	StateIdle:         {StateExtracting, StateFailed},
	StateExtracting:   {StateChunking, StateFailed},
	StateChunking:     {StateEmbedding, StateFailed},
	StateEmbedding:    {StateIndexing, StateFailed},
	StateIndexing:     {StateRetrieving, StateFailed},
	StateRetrieving:   {StateSynthesizing, StateFailed},
	StateSynthesizing: {StateDone, StateFailed},
}

// CanTransition 检查是否可以进行状态转换
func CanTransition(from, to State) bool {
	for _, next := range stateTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// stateMachine 单次运行的状态记录
type stateMachine struct {
	runID   string
	current State
	trace   []State
}

func newStateMachine(runID string) *stateMachine {
	return &stateMachine{
		runID:   runID,
		current: StateIdle,
		trace:   []State{StateIdle},
	}
}

// Transition 执行状态转换，非法转换返回InvalidState内部错误
func (sm *stateMachine) Transition(to State) error {
	if !CanTransition(sm.current, to) {
		logger.Error("invalid pipeline transition",
			zap.String("run_id", sm.runID),
			zap.String("from", string(sm.current)),
			zap.String("to", string(to)))
		return apperrors.Newf(apperrors.KindInternal, "InvalidState: %s -> %s", sm.current, to)
	}

	logger.Debug("pipeline transition",
		zap.String("run_id", sm.runID),
		zap.String("from", string(sm.current)),
		zap.String("to", string(to)))

	sm.current = to
	sm.trace = append(sm.trace, to)
	return nil
}

func (sm *stateMachine) Current() State {
	return sm.current
}

// Trace 返回状态轨迹副本
func (sm *stateMachine) Trace() []State {
	trace := make([]State, len(sm.trace))
	copy(trace, sm.trace)
	return trace
}
