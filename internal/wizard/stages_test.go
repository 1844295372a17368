package wizard

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"backend/internal/llm"
	"backend/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	_ = logger.Init("error", "console", "stdout")
}

// mockGenerator 按模板名返回预置 JSON 的生成后端
type mockGenerator struct {
	responses map[string]string          // 模板名 -> JSON 响应
	errors    map[string]error           // 模板名 -> 注入错误
	invokeFn  func(templateName string)  // 调用记录钩子（可选）
}

func newMockGenerator() *mockGenerator {
	return &mockGenerator{
		responses: make(map[string]string),
		errors:    make(map[string]error),
	}
}

func (m *mockGenerator) Invoke(ctx context.Context, templateName string, input any, out any) (*llm.Usage, error) {
	if m.invokeFn != nil {
		m.invokeFn(templateName)
	}
	if err, ok := m.errors[templateName]; ok {
		return &llm.Usage{TotalTokens: 5}, err
	}
	raw, ok := m.responses[templateName]
	if !ok {
		return nil, fmt.Errorf("未预置的模板响应: %s", templateName)
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return nil, err
	}
	return &llm.Usage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30}, nil
}

func TestExtractExecutor(t *testing.T) {
	ctx := context.Background()

	t.Run("正常抽取", func(t *testing.T) {
		gen := newMockGenerator()
		gen.responses[TemplateExtractCapabilities] = `{"capabilities": [
			{"id": "c1", "name": "订单受理", "description": "接收并校验订单", "level": 0},
			{"id": "c2", "name": "发票开具", "level": 1, "parentId": "c1"}
		]}`

		result := NewExtractExecutor(gen).Execute(ctx, ExtractInput{Text: "一家电商公司"})
		require.True(t, result.Success)
		require.Len(t, result.Data.Capabilities, 2)
		assert.Equal(t, "订单受理", result.Data.Capabilities[0].Name)
		assert.NotNil(t, result.Usage)
	})

	t.Run("空文本直接失败", func(t *testing.T) {
		result := NewExtractExecutor(newMockGenerator()).Execute(ctx, ExtractInput{Text: "   "})
		assert.False(t, result.Success)
		assert.NotEmpty(t, result.Error)
	})

	t.Run("缺失标识自动补齐并去重", func(t *testing.T) {
		gen := newMockGenerator()
		gen.responses[TemplateExtractCapabilities] = `{"capabilities": [
			{"name": "能力甲"},
			{"id": "c1", "name": "能力乙"},
			{"id": "c1", "name": "能力丙"}
		]}`

		result := NewExtractExecutor(gen).Execute(ctx, ExtractInput{Text: "描述"})
		require.True(t, result.Success)
		ids := make(map[string]bool)
		for _, c := range result.Data.Capabilities {
			assert.False(t, ids[c.ID], "标识重复: %s", c.ID)
			ids[c.ID] = true
		}
	})

	t.Run("生成错误透传", func(t *testing.T) {
		gen := newMockGenerator()
		gen.errors[TemplateExtractCapabilities] = fmt.Errorf("provider unavailable")

		result := NewExtractExecutor(gen).Execute(ctx, ExtractInput{Text: "描述"})
		assert.False(t, result.Success)
		assert.Contains(t, result.Error, "provider unavailable")
	})
}

func TestClassifyExecutor(t *testing.T) {
	ctx := context.Background()

	caps := []Capability{
		{ID: "c1", Name: "订单受理"},
		{ID: "c2", Name: "库存同步"},
		{ID: "c3", Name: "对账"},
	}

	t.Run("正常分类", func(t *testing.T) {
		gen := newMockGenerator()
		gen.responses[TemplateClassifyElements] = `{"elements": [
			{"id": "c1", "elementType": "process"},
			{"id": "c2", "elementType": "service"},
			{"id": "c9", "elementType": "process"}
		]}`

		result := NewClassifyExecutor(gen, 50).Execute(ctx, ClassifyInput{Capabilities: caps})
		require.True(t, result.Success)
		// c9 不在输入集合中，应被丢弃
		require.Len(t, result.Data.Elements, 2)
		assert.Equal(t, "订单受理", result.Data.Elements[0].Name)
		assert.False(t, result.Data.Truncated)
	})

	t.Run("超出上限截断", func(t *testing.T) {
		var sent int
		gen := newMockGenerator()
		gen.responses[TemplateClassifyElements] = `{"elements": [{"id": "c1", "elementType": "capability"}]}`
		gen.invokeFn = func(string) { sent++ }

		result := NewClassifyExecutor(gen, 2).Execute(ctx, ClassifyInput{Capabilities: caps})
		require.True(t, result.Success)
		assert.True(t, result.Data.Truncated)
		assert.Equal(t, 1, sent)
	})

	t.Run("空输入失败", func(t *testing.T) {
		result := NewClassifyExecutor(newMockGenerator(), 50).Execute(ctx, ClassifyInput{})
		assert.False(t, result.Success)
	})

	t.Run("缺失类型回落到capability", func(t *testing.T) {
		gen := newMockGenerator()
		gen.responses[TemplateClassifyElements] = `{"elements": [{"id": "c1"}]}`

		result := NewClassifyExecutor(gen, 50).Execute(ctx, ClassifyInput{Capabilities: caps})
		require.True(t, result.Success)
		assert.Equal(t, "capability", result.Data.Elements[0].ElementType)
	})
}

func TestProposeExecutor(t *testing.T) {
	ctx := context.Background()

	elements := []ClassifiedElement{
		{ID: "c1", Name: "订单受理", ElementType: "process"},
		{ID: "c2", Name: "库存同步", ElementType: "service"},
	}

	t.Run("提案并优化成功", func(t *testing.T) {
		gen := newMockGenerator()
		gen.responses[TemplateProposeAgents] = `{"agents": [
			{"id": "a1", "name": "订单智能体", "ownedElements": ["c1"]},
			{"id": "a2", "name": "库存智能体", "ownedElements": ["c2"]}
		]}`
		gen.responses[TemplateOptimizeAgents] = `{"agents": [
			{"id": "a1", "name": "订单与库存智能体", "ownedElements": ["c1", "c2"],
			 "tools": [{"name": "库存查询", "fromAgentId": "a2"}]}
		], "actions": [{"type": "merge", "agentId": "a2", "targetAgentId": "a1"}]}`

		result := NewProposeExecutor(gen).Execute(ctx, ProposeInput{Elements: elements})
		require.True(t, result.Success)
		assert.True(t, result.Data.Optimized)
		require.Len(t, result.Data.Agents, 1)
		assert.Len(t, result.Data.Actions, 1)
		assert.Empty(t, result.Data.OptimizeError)
	})

	t.Run("优化失败降级为未优化提案", func(t *testing.T) {
		gen := newMockGenerator()
		gen.responses[TemplateProposeAgents] = `{"agents": [{"id": "a1", "name": "订单智能体", "ownedElements": ["c1"]}]}`
		gen.errors[TemplateOptimizeAgents] = fmt.Errorf("timeout")

		result := NewProposeExecutor(gen).Execute(ctx, ProposeInput{Elements: elements})
		require.True(t, result.Success, "优化失败不应导致阶段失败")
		assert.False(t, result.Data.Optimized)
		assert.Contains(t, result.Data.OptimizeError, "timeout")
		require.Len(t, result.Data.Agents, 1)
	})

	t.Run("优化结果为空同样降级", func(t *testing.T) {
		gen := newMockGenerator()
		gen.responses[TemplateProposeAgents] = `{"agents": [{"id": "a1", "name": "订单智能体"}]}`
		gen.responses[TemplateOptimizeAgents] = `{"agents": []}`

		result := NewProposeExecutor(gen).Execute(ctx, ProposeInput{Elements: elements})
		require.True(t, result.Success)
		assert.False(t, result.Data.Optimized)
		assert.NotEmpty(t, result.Data.OptimizeError)
	})

	t.Run("未知元素引用被静默丢弃", func(t *testing.T) {
		gen := newMockGenerator()
		gen.responses[TemplateProposeAgents] = `{"agents": [
			{"id": "a1", "name": "订单智能体", "ownedElements": ["c1", "c404"]}
		]}`
		gen.responses[TemplateOptimizeAgents] = `{"agents": []}`

		result := NewProposeExecutor(gen).Execute(ctx, ProposeInput{Elements: elements})
		require.True(t, result.Success)
		assert.Equal(t, []string{"c1"}, result.Data.Agents[0].OwnedElements)
	})

	t.Run("提案调用失败则阶段失败", func(t *testing.T) {
		gen := newMockGenerator()
		gen.errors[TemplateProposeAgents] = fmt.Errorf("rate limited")

		result := NewProposeExecutor(gen).Execute(ctx, ProposeInput{Elements: elements})
		assert.False(t, result.Success)
	})
}

func TestDefaultTargetAgentCount(t *testing.T) {
	assert.Equal(t, 1, DefaultTargetAgentCount(0))
	assert.Equal(t, 1, DefaultTargetAgentCount(2))
	assert.Equal(t, 2, DefaultTargetAgentCount(4))
	assert.Equal(t, 10, DefaultTargetAgentCount(30))
	assert.Equal(t, 15, DefaultTargetAgentCount(100))
}

func TestPatternsExecutor(t *testing.T) {
	ctx := context.Background()

	agents := []ProposedAgent{
		{ID: "a1", Name: "订单智能体"},
		{ID: "a2", Name: "调度智能体", IsOrchestrator: true},
	}

	t.Run("模式与技能均成功", func(t *testing.T) {
		gen := newMockGenerator()
		gen.responses[TemplateAssignPatterns] = `{"patterns": [
			{"agentId": "a1", "pattern": "specialist", "autonomyLevel": "supervised", "riskAppetite": "low"},
			{"agentId": "a2", "pattern": "orchestrator", "reasoningPattern": "routing"}
		]}`
		gen.responses[TemplateDefineSkills] = `{"skillSets": [
			{"agentId": "a1", "skills": [{"name": "受理订单", "inputSchema": {"type": "object"}}]}
		]}`

		result := NewPatternsExecutor(gen).Execute(ctx, PatternsInput{Agents: agents})
		require.True(t, result.Success)
		assert.Len(t, result.Data.Patterns, 2)
		assert.Len(t, result.Data.Skills, 1)
		// 缺省的自治等级与风险偏好被补齐
		assert.Equal(t, DefaultAutonomy, result.Data.Patterns["a2"].AutonomyLevel)
		assert.Equal(t, DefaultRisk, result.Data.Patterns["a2"].RiskAppetite)
	})

	t.Run("非法模式归一到兜底值", func(t *testing.T) {
		gen := newMockGenerator()
		gen.responses[TemplateAssignPatterns] = `{"patterns": [
			{"agentId": "a1", "pattern": "wizard_supreme", "reasoningPattern": "mind_reading"}
		]}`
		gen.responses[TemplateDefineSkills] = `{"skillSets": []}`

		result := NewPatternsExecutor(gen).Execute(ctx, PatternsInput{Agents: agents})
		require.True(t, result.Success)
		assert.Equal(t, DefaultPattern, result.Data.Patterns["a1"].Pattern)
		assert.Empty(t, result.Data.Patterns["a1"].ReasoningPattern)
	})

	t.Run("技能调用失败则阶段失败", func(t *testing.T) {
		gen := newMockGenerator()
		gen.responses[TemplateAssignPatterns] = `{"patterns": []}`
		gen.errors[TemplateDefineSkills] = fmt.Errorf("schema mismatch")

		result := NewPatternsExecutor(gen).Execute(ctx, PatternsInput{Agents: agents})
		assert.False(t, result.Success)
	})

	t.Run("未知智能体标注被丢弃", func(t *testing.T) {
		gen := newMockGenerator()
		gen.responses[TemplateAssignPatterns] = `{"patterns": [{"agentId": "ghost", "pattern": "specialist"}]}`
		gen.responses[TemplateDefineSkills] = `{"skillSets": [{"agentId": "ghost", "skills": []}]}`

		result := NewPatternsExecutor(gen).Execute(ctx, PatternsInput{Agents: agents})
		require.True(t, result.Success)
		assert.Empty(t, result.Data.Patterns)
		assert.Empty(t, result.Data.Skills)
	})
}

func TestFlowExecutor(t *testing.T) {
	ctx := context.Background()

	t.Run("正常生成", func(t *testing.T) {
		gen := newMockGenerator()
		gen.responses[TemplateGenerateFlow] = `{"xml": "<definitions id=\"p1\"></definitions>"}`

		result := NewFlowExecutor(gen).Execute(ctx, FlowInput{ElementID: "c1", ProcessName: "订单处理"})
		require.True(t, result.Success)
		assert.Equal(t, "c1", result.Data.ElementID)
		assert.Contains(t, result.Data.XML, "definitions")
		assert.False(t, result.Data.GeneratedAt.IsZero())
	})

	t.Run("缺少元素标识失败", func(t *testing.T) {
		result := NewFlowExecutor(newMockGenerator()).Execute(ctx, FlowInput{ProcessName: "订单处理"})
		assert.False(t, result.Success)
	})

	t.Run("空XML失败", func(t *testing.T) {
		gen := newMockGenerator()
		gen.responses[TemplateGenerateFlow] = `{"xml": "  "}`

		result := NewFlowExecutor(gen).Execute(ctx, FlowInput{ElementID: "c1", ProcessName: "订单处理"})
		assert.False(t, result.Success)
	})
}

func TestLinksExecutor(t *testing.T) {
	ctx := context.Background()

	agents := []ProposedAgent{
		{ID: "a1", Name: "订单智能体"},
		{ID: "a2", Name: "库存智能体"},
	}

	t.Run("关系与集成均成功", func(t *testing.T) {
		gen := newMockGenerator()
		gen.responses[TemplateSuggestRelationships] = `{"relationships": [
			{"sourceAgentId": "a1", "targetAgentId": "a2", "messageType": "库存预占请求"}
		]}`
		gen.responses[TemplateSuggestIntegrations] = `{"integrations": [
			{"agentId": "a2", "systemName": "WMS", "direction": "bidirectional"}
		]}`

		result := NewLinksExecutor(gen).Execute(ctx, LinksInput{Agents: agents})
		require.True(t, result.Success)
		assert.Len(t, result.Data.Relationships, 1)
		assert.Len(t, result.Data.Integrations, 1)
	})

	t.Run("任一子调用失败则阶段失败", func(t *testing.T) {
		gen := newMockGenerator()
		gen.responses[TemplateSuggestRelationships] = `{"relationships": []}`
		gen.errors[TemplateSuggestIntegrations] = fmt.Errorf("server error")

		result := NewLinksExecutor(gen).Execute(ctx, LinksInput{Agents: agents})
		assert.False(t, result.Success)
		assert.Contains(t, result.Error, "集成建议失败")
	})

	t.Run("两个子调用都失败时错误都上报", func(t *testing.T) {
		gen := newMockGenerator()
		gen.errors[TemplateSuggestRelationships] = fmt.Errorf("err-rel")
		gen.errors[TemplateSuggestIntegrations] = fmt.Errorf("err-int")

		result := NewLinksExecutor(gen).Execute(ctx, LinksInput{Agents: agents})
		assert.False(t, result.Success)
		assert.Contains(t, result.Error, "err-rel")
		assert.Contains(t, result.Error, "err-int")
	})
}
