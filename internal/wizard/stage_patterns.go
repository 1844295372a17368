package wizard

import (
	"context"
	"fmt"
	"time"

	"backend/internal/llm"
)

// PatternsInput 第 4 步输入
type PatternsInput struct {
	Agents []ProposedAgent `json:"agents"`
}

// PatternsExecutor 第 4 步执行器：先指定行为模式，再定义技能
// 技能调用以模式标注为上下文，使技能形态契合行为模式；两次调用都成功阶段才成功
type PatternsExecutor struct {
	gen Generator
}

// NewPatternsExecutor 创建第 4 步执行器
func NewPatternsExecutor(gen Generator) *PatternsExecutor {
	return &PatternsExecutor{gen: gen}
}

type patternsEnvelope struct {
	Patterns []AgentPattern `json:"patterns"`
}

type skillSetsEnvelope struct {
	SkillSets []AgentSkillSet `json:"skillSets"`
}

// Execute 执行模式指定与技能定义
func (e *PatternsExecutor) Execute(ctx context.Context, input PatternsInput) *StepResult[Stage4Data] {
	start := time.Now()

	if len(input.Agents) == 0 {
		return stepFailure[Stage4Data](start, nil, fmt.Errorf("没有可标注的智能体"))
	}

	agentIDs := make(map[string]bool, len(input.Agents))
	for _, a := range input.Agents {
		agentIDs[a.ID] = true
	}

	totalUsage := &llm.Usage{}

	// 4a 行为模式
	var pats patternsEnvelope
	usage, err := e.gen.Invoke(ctx, TemplateAssignPatterns, struct {
		Agents []ProposedAgent
	}{input.Agents}, &pats)
	if usage != nil {
		totalUsage.Add(*usage)
	}
	if err != nil {
		return stepFailure[Stage4Data](start, totalUsage, err)
	}

	patterns := make(map[string]AgentPattern, len(pats.Patterns))
	for _, p := range pats.Patterns {
		if !agentIDs[p.AgentID] {
			continue
		}
		patterns[p.AgentID] = sanitizePattern(p)
	}

	// 4b 技能定义（以模式标注为上下文）
	var sets skillSetsEnvelope
	usage, err = e.gen.Invoke(ctx, TemplateDefineSkills, struct {
		Agents   []ProposedAgent
		Patterns map[string]AgentPattern
	}{input.Agents, patterns}, &sets)
	if usage != nil {
		totalUsage.Add(*usage)
	}
	if err != nil {
		return stepFailure[Stage4Data](start, totalUsage, err)
	}

	skills := make(map[string]AgentSkillSet, len(sets.SkillSets))
	for _, set := range sets.SkillSets {
		if !agentIDs[set.AgentID] {
			continue
		}
		skills[set.AgentID] = set
	}

	return stepSuccess(start, totalUsage, Stage4Data{Patterns: patterns, Skills: skills})
}

// sanitizePattern 把枚举外的取值归一到兜底值
func sanitizePattern(p AgentPattern) AgentPattern {
	if !validPatterns[p.Pattern] {
		p.Pattern = DefaultPattern
	}
	if p.ReasoningPattern != "" && !validReasoningPatterns[p.ReasoningPattern] {
		p.ReasoningPattern = ""
	}
	if p.AutonomyLevel == "" {
		p.AutonomyLevel = DefaultAutonomy
	}
	if p.RiskAppetite == "" {
		p.RiskAppetite = DefaultRisk
	}
	return p
}
