package wizard

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
)

// 模板名称常量，适配层通过名称查找
const (
	TemplateExtractCapabilities  = "extract_capabilities"
	TemplateClassifyElements     = "classify_elements"
	TemplateProposeAgents        = "propose_agents"
	TemplateOptimizeAgents       = "optimize_agents"
	TemplateAssignPatterns       = "assign_patterns"
	TemplateDefineSkills         = "define_skills"
	TemplateGenerateFlow         = "generate_flow"
	TemplateSuggestRelationships = "suggest_relationships"
	TemplateSuggestIntegrations  = "suggest_integrations"
)

// PromptTemplate 一次生成调用的提示词模板
// User 为 Go text/template，入参为该模板约定的输入结构
type PromptTemplate struct {
	Name   string
	System string
	User   *template.Template
}

// Render 渲染用户消息
func (t *PromptTemplate) Render(input any) (string, error) {
	var buf strings.Builder
	if err := t.User.Execute(&buf, input); err != nil {
		return "", fmt.Errorf("渲染模板 %s 失败: %w", t.Name, err)
	}
	return buf.String(), nil
}

var templates = map[string]*PromptTemplate{}

// register 注册模板（包初始化期调用，解析失败直接 panic）
func register(name, system, user string) {
	templates[name] = &PromptTemplate{
		Name:   name,
		System: system,
		User:   template.Must(template.New(name).Funcs(templateFuncs).Parse(user)),
	}
}

// LookupTemplate 按名称查找模板
func LookupTemplate(name string) (*PromptTemplate, bool) {
	t, ok := templates[name]
	return t, ok
}

var templateFuncs = template.FuncMap{
	// toJSON 将任意输入内嵌为 JSON，供模板向模型回传结构化上下文
	"toJSON": func(v any) string {
		b, err := json.Marshal(v)
		if err != nil {
			return "null"
		}
		return string(b)
	},
	"join": strings.Join,
}

const jsonOnly = "只输出有效的 JSON，不要输出任何解释文字或 Markdown 代码块。"

func init() {
	register(TemplateExtractCapabilities,
		"你是一名企业架构分析师，擅长从组织描述中识别业务能力。"+jsonOnly,
		`从以下组织描述中抽取业务能力列表。每项能力包含：id（c1、c2 ... 顺序编号）、name、description、level（0 顶层，1 子项）、parentId（子项指向父项 id，可省略）。

组织描述：
{{.Text}}

输出 JSON 结构：
{"capabilities":[{"id":"c1","name":"...","description":"...","level":0}]}`)

	register(TemplateClassifyElements,
		"你是一名企业架构分析师，负责为业务能力标注元素类型。"+jsonOnly,
		`为每个能力项标注 elementType，取值：capability、process、data_object、service、event。保持 id 不变。

能力列表：
{{toJSON .Capabilities}}

输出 JSON 结构：
{"elements":[{"id":"c1","name":"...","description":"...","elementType":"process"}]}`)

	register(TemplateProposeAgents,
		"你是一名多智能体系统设计师，负责把组织能力划分为协作的智能体。"+jsonOnly,
		`基于以下已分类元素，提出约 {{.TargetCount}} 个智能体。每个智能体包含：id（a1、a2 ... 顺序编号）、name、purpose、description、ownedElements（元素 id 列表）、isOrchestrator、delegatesTo、escalatesTo、internalElements。未被任何智能体认领的元素放入 orphanedElements。

元素列表：
{{toJSON .Elements}}

输出 JSON 结构：
{"agents":[{"id":"a1","name":"...","purpose":"...","description":"...","ownedElements":["c1"],"isOrchestrator":false}],"orphanedElements":[]}`)

	register(TemplateOptimizeAgents,
		"你是一名多智能体系统评审专家，负责精简和优化智能体划分。"+jsonOnly,
		`评审以下智能体提案。可选处置：keep（保留）、merge（并入其他智能体）、demote_to_tool（降级为某个存续智能体的工具，职责以工具形式挂载而不是丢弃）、add（新增）。输出优化后的最终智能体列表与处置记录；被降级智能体的职责必须出现在归属智能体的 tools 中。

智能体提案：
{{toJSON .Agents}}

输出 JSON 结构：
{"agents":[{"id":"a1","name":"...","purpose":"...","ownedElements":["c1"],"tools":[{"name":"...","description":"...","fromAgentId":"a2"}]}],"actions":[{"type":"demote_to_tool","agentId":"a2","targetAgentId":"a1","reason":"..."}]}`)

	register(TemplateAssignPatterns,
		"你是一名多智能体系统设计师，负责为智能体指定行为模式。"+jsonOnly,
		`为每个智能体指定：pattern（orchestrator、specialist、gateway、monitor、executor、analyzer、aggregator、router 之一）、reasoningPattern（routing、planning、tool_use、human_in_loop、rag、reflection、guardrails 之一）、autonomyLevel（supervised、semi_autonomous、autonomous）、riskAppetite（low、medium、high）、triggerEvents、outputEvents。

智能体列表：
{{toJSON .Agents}}

输出 JSON 结构：
{"patterns":[{"agentId":"a1","pattern":"specialist","reasoningPattern":"tool_use","autonomyLevel":"supervised","riskAppetite":"medium","triggerEvents":[],"outputEvents":[]}]}`)

	register(TemplateDefineSkills,
		"你是一名多智能体系统设计师，负责为智能体定义技能。技能形态必须契合其行为模式，例如 monitor 型智能体应获得阈值检测类技能而不是增删改查类技能。"+jsonOnly,
		`结合行为模式为每个智能体定义技能，每项技能包含 name、description、inputSchema、outputSchema（JSON Schema）。

智能体列表：
{{toJSON .Agents}}

行为模式标注：
{{toJSON .Patterns}}

输出 JSON 结构：
{"skillSets":[{"agentId":"a1","skills":[{"name":"...","description":"...","inputSchema":{"type":"object"},"outputSchema":{"type":"object"}}]}]}`)

	register(TemplateGenerateFlow,
		"你是一名业务流程建模专家，输出符合 BPMN 2.0 的流程定义。"+jsonOnly,
		`为流程元素生成 BPMN 2.0 XML。流程名称：{{.ProcessName}}。流程描述：{{.Description}}。
{{if .AgentNames}}参与智能体：{{join .AgentNames "、"}}。{{end}}

输出 JSON 结构：
{"xml":"<?xml version=\"1.0\" encoding=\"UTF-8\"?>..."}`)

	register(TemplateSuggestRelationships,
		"你是一名多智能体系统设计师，负责梳理智能体间的协作关系。"+jsonOnly,
		`基于智能体及其行为模式，给出有方向的协作关系列表，每条包含 sourceAgentId、targetAgentId、description、messageType。

智能体列表：
{{toJSON .Agents}}

行为模式标注：
{{toJSON .Patterns}}

输出 JSON 结构：
{"relationships":[{"sourceAgentId":"a1","targetAgentId":"a2","description":"...","messageType":"..."}]}`)

	register(TemplateSuggestIntegrations,
		"你是一名企业系统集成架构师，负责识别智能体需要对接的外部系统。"+jsonOnly,
		`为智能体建议外部系统集成，每条包含 agentId、systemName、direction（inbound、outbound、bidirectional）、description。
{{if .Industry}}行业背景：{{.Industry}}。{{end}}
{{if .KnownSystems}}已知系统（优先复用）：{{join .KnownSystems "、"}}。{{end}}

智能体列表：
{{toJSON .Agents}}

输出 JSON 结构：
{"integrations":[{"agentId":"a1","systemName":"...","direction":"outbound","description":"..."}]}`)
}
