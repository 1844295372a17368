package wizard

import (
	"context"
	"fmt"
	"strings"
	"time"

	"backend/internal/llm"
)

// LinksInput 第 6 步输入
type LinksInput struct {
	Agents   []ProposedAgent         `json:"agents"`
	Patterns map[string]AgentPattern `json:"patterns,omitempty"`
	// Industry / KnownSystems 用于引导集成建议的可选提示
	Industry     string   `json:"industry,omitempty"`
	KnownSystems []string `json:"knownSystems,omitempty"`
}

// LinksExecutor 第 6 步执行器：协作关系 + 外部集成
// 两个子调用彼此独立、失败分别上报；都成功阶段才成功
type LinksExecutor struct {
	gen Generator
}

// NewLinksExecutor 创建第 6 步执行器
func NewLinksExecutor(gen Generator) *LinksExecutor {
	return &LinksExecutor{gen: gen}
}

type relationshipsEnvelope struct {
	Relationships []Relationship `json:"relationships"`
}

type integrationsEnvelope struct {
	Integrations []Integration `json:"integrations"`
}

// Execute 执行关系与集成建议
func (e *LinksExecutor) Execute(ctx context.Context, input LinksInput) *StepResult[Stage6Data] {
	start := time.Now()

	if len(input.Agents) == 0 {
		return stepFailure[Stage6Data](start, nil, fmt.Errorf("没有可建立关系的智能体"))
	}

	totalUsage := &llm.Usage{}
	var errs []string

	var rels relationshipsEnvelope
	usage, relErr := e.gen.Invoke(ctx, TemplateSuggestRelationships, struct {
		Agents   []ProposedAgent
		Patterns map[string]AgentPattern
	}{input.Agents, input.Patterns}, &rels)
	if usage != nil {
		totalUsage.Add(*usage)
	}
	if relErr != nil {
		errs = append(errs, fmt.Sprintf("关系建议失败: %v", relErr))
	}

	var ints integrationsEnvelope
	usage, intErr := e.gen.Invoke(ctx, TemplateSuggestIntegrations, struct {
		Agents       []ProposedAgent
		Industry     string
		KnownSystems []string
	}{input.Agents, input.Industry, input.KnownSystems}, &ints)
	if usage != nil {
		totalUsage.Add(*usage)
	}
	if intErr != nil {
		errs = append(errs, fmt.Sprintf("集成建议失败: %v", intErr))
	}

	if len(errs) > 0 {
		return stepFailure[Stage6Data](start, totalUsage, fmt.Errorf("%s", strings.Join(errs, "; ")))
	}

	return stepSuccess(start, totalUsage, Stage6Data{
		Relationships: rels.Relationships,
		Integrations:  ints.Integrations,
	})
}
