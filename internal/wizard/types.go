package wizard

import (
	"time"

	"backend/internal/llm"
)

// Capability 从组织描述中抽取出的候选职能单元（第 1 步产物）
// ID 为会话内临时标识，落库前不具持久性
type Capability struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Level       int    `json:"level"`              // 0 顶层，1 子项
	ParentID    string `json:"parentId,omitempty"` // 父级临时标识（可选）
}

// ClassifiedElement 经过分类标注的能力项（第 2 步产物）
type ClassifiedElement struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	ElementType string `json:"elementType"` // capability, process, data_object, service, event
}

// AgentTool 被降级为工具的职责（优化阶段产生，挂在存续智能体上）
type AgentTool struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	FromAgentID string `json:"fromAgentId,omitempty"` // 被降级智能体的临时标识
}

// ProposedAgent 候选智能体（第 3 步产物）
type ProposedAgent struct {
	ID               string      `json:"id"`
	Name             string      `json:"name"`
	Purpose          string      `json:"purpose"`
	Description      string      `json:"description"`
	OwnedElements    []string    `json:"ownedElements"` // 指向 ClassifiedElement 的临时标识
	IsOrchestrator   bool        `json:"isOrchestrator"`
	DelegatesTo      []string    `json:"delegatesTo,omitempty"`
	EscalatesTo      []string    `json:"escalatesTo,omitempty"`
	InternalElements []string    `json:"internalElements,omitempty"`
	Tools            []AgentTool `json:"tools,omitempty"`
}

// 行为模式枚举
const (
	PatternOrchestrator = "orchestrator"
	PatternSpecialist   = "specialist"
	PatternGateway      = "gateway"
	PatternMonitor      = "monitor"
	PatternExecutor     = "executor"
	PatternAnalyzer     = "analyzer"
	PatternAggregator   = "aggregator"
	PatternRouter       = "router"
)

// 推理模式枚举
const (
	ReasoningRouting     = "routing"
	ReasoningPlanning    = "planning"
	ReasoningToolUse     = "tool_use"
	ReasoningHumanInLoop = "human_in_loop"
	ReasoningRAG         = "rag"
	ReasoningReflection  = "reflection"
	ReasoningGuardrails  = "guardrails"
)

// 模式/技能缺失时的兜底取值，落库永远不会因缺少可选增强数据而阻塞
const (
	DefaultPattern  = PatternSpecialist
	DefaultAutonomy = "supervised"
	DefaultRisk     = "medium"
)

// validPatterns 行为模式合法值
var validPatterns = map[string]bool{
	PatternOrchestrator: true,
	PatternSpecialist:   true,
	PatternGateway:      true,
	PatternMonitor:      true,
	PatternExecutor:     true,
	PatternAnalyzer:     true,
	PatternAggregator:   true,
	PatternRouter:       true,
}

// validReasoningPatterns 推理模式合法值
var validReasoningPatterns = map[string]bool{
	ReasoningRouting:     true,
	ReasoningPlanning:    true,
	ReasoningToolUse:     true,
	ReasoningHumanInLoop: true,
	ReasoningRAG:         true,
	ReasoningReflection:  true,
	ReasoningGuardrails:  true,
}

// AgentPattern 智能体行为模式标注（第 4 步产物之一）
type AgentPattern struct {
	AgentID          string   `json:"agentId"`
	Pattern          string   `json:"pattern"`
	ReasoningPattern string   `json:"reasoningPattern"`
	AutonomyLevel    string   `json:"autonomyLevel"` // supervised, semi_autonomous, autonomous
	RiskAppetite     string   `json:"riskAppetite"`  // low, medium, high
	TriggerEvents    []string `json:"triggerEvents,omitempty"`
	OutputEvents     []string `json:"outputEvents,omitempty"`
}

// SkillDef 单项技能定义
type SkillDef struct {
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	InputSchema  map[string]any `json:"inputSchema,omitempty"`  // JSON Schema
	OutputSchema map[string]any `json:"outputSchema,omitempty"` // JSON Schema
}

// AgentSkillSet 智能体技能集（第 4 步产物之一）
type AgentSkillSet struct {
	AgentID string     `json:"agentId"`
	Skills  []SkillDef `json:"skills"`
}

// BPMNFlow 单个流程元素的流程图产物（第 5 步产物，可选）
type BPMNFlow struct {
	ElementID   string    `json:"elementId"`
	ProcessName string    `json:"processName"`
	XML         string    `json:"xml"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// Relationship 智能体间协作关系（第 6 步产物之一），有方向
type Relationship struct {
	SourceAgentID string `json:"sourceAgentId"`
	TargetAgentID string `json:"targetAgentId"`
	Description   string `json:"description"`
	MessageType   string `json:"messageType,omitempty"` // 传递的消息/数据类型
}

// Integration 智能体与外部系统的集成（第 6 步产物之一），有方向
type Integration struct {
	AgentID     string `json:"agentId"`
	SystemName  string `json:"systemName"`
	Direction   string `json:"direction"` // inbound, outbound, bidirectional
	Description string `json:"description"`
}

// OptimizationAction 优化阶段对单个候选智能体的处置
type OptimizationAction struct {
	Type          string `json:"type"` // keep, merge, demote_to_tool, add
	AgentID       string `json:"agentId"`
	TargetAgentID string `json:"targetAgentId,omitempty"` // merge/demote 的归属方
	Reason        string `json:"reason,omitempty"`
}

// StepResult 阶段执行结果统一载体
type StepResult[T any] struct {
	Success         bool       `json:"success"`
	Data            *T         `json:"data,omitempty"`
	Error           string     `json:"error,omitempty"`
	Usage           *llm.Usage `json:"usage,omitempty"`
	ExecutionTimeMs int64      `json:"execution_time_ms"`
}

// stepSuccess 构造成功结果
func stepSuccess[T any](start time.Time, usage *llm.Usage, data T) *StepResult[T] {
	return &StepResult[T]{
		Success:         true,
		Data:            &data,
		Usage:           usage,
		ExecutionTimeMs: time.Since(start).Milliseconds(),
	}
}

// stepFailure 构造失败结果
func stepFailure[T any](start time.Time, usage *llm.Usage, err error) *StepResult[T] {
	return &StepResult[T]{
		Success:         false,
		Error:           err.Error(),
		Usage:           usage,
		ExecutionTimeMs: time.Since(start).Milliseconds(),
	}
}
