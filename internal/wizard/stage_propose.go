package wizard

import (
	"context"
	"fmt"
	"time"

	"backend/internal/llm"
	"backend/internal/logger"

	"go.uber.org/zap"
)

// ProposeInput 第 3 步输入
type ProposeInput struct {
	Elements []ClassifiedElement `json:"elements"`
	// TargetCount 期望的智能体数量，0 表示使用默认值 min(15, ceil(n/3))
	TargetCount int `json:"targetCount"`
}

// ProposeExecutor 第 3 步执行器：提案智能体并做一轮优化
// 优化是质量增强而非硬依赖：优化子调用失败时阶段整体仍成功，返回未优化的提案
type ProposeExecutor struct {
	gen Generator
}

// NewProposeExecutor 创建第 3 步执行器
func NewProposeExecutor(gen Generator) *ProposeExecutor {
	return &ProposeExecutor{gen: gen}
}

type proposeEnvelope struct {
	Agents           []ProposedAgent `json:"agents"`
	OrphanedElements []string        `json:"orphanedElements"`
}

type optimizeEnvelope struct {
	Agents  []ProposedAgent      `json:"agents"`
	Actions []OptimizationAction `json:"actions"`
}

// DefaultTargetAgentCount 默认目标智能体数量
func DefaultTargetAgentCount(elementCount int) int {
	n := (elementCount + 2) / 3 // ceil(n/3)
	if n > 15 {
		return 15
	}
	if n < 1 {
		return 1
	}
	return n
}

// Execute 执行智能体提案与优化
func (e *ProposeExecutor) Execute(ctx context.Context, input ProposeInput) *StepResult[Stage3Data] {
	start := time.Now()

	if len(input.Elements) == 0 {
		return stepFailure[Stage3Data](start, nil, fmt.Errorf("没有可用于提案的已分类元素"))
	}

	targetCount := input.TargetCount
	if targetCount <= 0 {
		targetCount = DefaultTargetAgentCount(len(input.Elements))
	}

	totalUsage := &llm.Usage{}

	// 提案调用
	var proposed proposeEnvelope
	usage, err := e.gen.Invoke(ctx, TemplateProposeAgents, struct {
		Elements    []ClassifiedElement
		TargetCount int
	}{input.Elements, targetCount}, &proposed)
	if usage != nil {
		totalUsage.Add(*usage)
	}
	if err != nil {
		return stepFailure[Stage3Data](start, totalUsage, err)
	}

	elementIDs := make(map[string]bool, len(input.Elements))
	for _, el := range input.Elements {
		elementIDs[el.ID] = true
	}

	agents := normalizeProposedAgents(proposed.Agents, elementIDs)
	if len(agents) == 0 {
		return stepFailure[Stage3Data](start, totalUsage, fmt.Errorf("提案结果中没有有效的智能体"))
	}

	data := Stage3Data{
		Agents:           agents,
		OrphanedElements: proposed.OrphanedElements,
	}

	// 优化调用：失败降级，不影响阶段结果
	var optimized optimizeEnvelope
	usage, err = e.gen.Invoke(ctx, TemplateOptimizeAgents, struct {
		Agents []ProposedAgent
	}{agents}, &optimized)
	if usage != nil {
		totalUsage.Add(*usage)
	}
	switch {
	case err != nil:
		logger.Warn("智能体优化子调用失败，返回未优化提案", zap.Error(err))
		data.OptimizeError = err.Error()
	case len(optimized.Agents) == 0:
		logger.Warn("智能体优化结果为空，返回未优化提案")
		data.OptimizeError = "优化结果为空"
	default:
		data.Agents = normalizeProposedAgents(optimized.Agents, elementIDs)
		data.Actions = optimized.Actions
		data.Optimized = true
	}

	return stepSuccess(start, totalUsage, data)
}

// normalizeProposedAgents 补齐临时标识并丢弃无法解析的元素引用
// 无法解析的 ownedElements 引用按约定静默丢弃，不视为失败
func normalizeProposedAgents(agents []ProposedAgent, elementIDs map[string]bool) []ProposedAgent {
	out := make([]ProposedAgent, 0, len(agents))
	seen := make(map[string]bool, len(agents))
	for i, a := range agents {
		if a.Name == "" {
			continue
		}
		if a.ID == "" {
			a.ID = fmt.Sprintf("a%d", i+1)
		}
		if seen[a.ID] {
			a.ID = fmt.Sprintf("%s_%d", a.ID, i+1)
		}
		seen[a.ID] = true

		owned := make([]string, 0, len(a.OwnedElements))
		for _, ref := range a.OwnedElements {
			if elementIDs[ref] {
				owned = append(owned, ref)
			}
		}
		a.OwnedElements = owned

		out = append(out, a)
	}
	return out
}
