package wizard

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ExtractInput 第 1 步输入：组织的自由文本描述
// （图示/XML 导入器在边界层先行拍平成文本，这里不感知来源）
type ExtractInput struct {
	Text string `json:"text"`
}

// ExtractExecutor 第 1 步执行器：抽取候选能力列表
type ExtractExecutor struct {
	gen Generator
}

// NewExtractExecutor 创建第 1 步执行器
func NewExtractExecutor(gen Generator) *ExtractExecutor {
	return &ExtractExecutor{gen: gen}
}

type capabilitiesEnvelope struct {
	Capabilities []Capability `json:"capabilities"`
}

// Execute 执行能力抽取
func (e *ExtractExecutor) Execute(ctx context.Context, input ExtractInput) *StepResult[Stage1Data] {
	start := time.Now()

	if strings.TrimSpace(input.Text) == "" {
		return stepFailure[Stage1Data](start, nil, fmt.Errorf("组织描述文本不能为空"))
	}

	var envelope capabilitiesEnvelope
	usage, err := e.gen.Invoke(ctx, TemplateExtractCapabilities, input, &envelope)
	if err != nil {
		return stepFailure[Stage1Data](start, usage, err)
	}

	caps := normalizeCapabilities(envelope.Capabilities)
	if len(caps) == 0 {
		return stepFailure[Stage1Data](start, usage, fmt.Errorf("未能从描述中抽取出任何能力项"))
	}

	return stepSuccess(start, usage, Stage1Data{Capabilities: caps})
}

// normalizeCapabilities 补齐缺失的临时标识并去重
func normalizeCapabilities(caps []Capability) []Capability {
	seen := make(map[string]bool, len(caps))
	out := make([]Capability, 0, len(caps))
	for i, c := range caps {
		if strings.TrimSpace(c.Name) == "" {
			continue
		}
		if c.ID == "" {
			c.ID = fmt.Sprintf("c%d", i+1)
		}
		if seen[c.ID] {
			c.ID = fmt.Sprintf("%s_%d", c.ID, i+1)
		}
		seen[c.ID] = true
		if c.Level != 0 && c.Level != 1 {
			c.Level = 0
		}
		out = append(out, c)
	}
	return out
}

// ClassifyInput 第 2 步输入：待分类的能力子集（用户可在界面上先行筛选）
type ClassifyInput struct {
	Capabilities []Capability `json:"capabilities"`
}

// ClassifyExecutor 第 2 步执行器：为能力项标注元素类型
type ClassifyExecutor struct {
	gen Generator
	// maxBatch 送入分类调用的能力项上限，超出截断而不是拒绝，
	// 用于约束生成调用的时延与成本
	maxBatch int
}

// NewClassifyExecutor 创建第 2 步执行器
func NewClassifyExecutor(gen Generator, maxBatch int) *ClassifyExecutor {
	if maxBatch <= 0 {
		maxBatch = 50
	}
	return &ClassifyExecutor{gen: gen, maxBatch: maxBatch}
}

type elementsEnvelope struct {
	Elements []ClassifiedElement `json:"elements"`
}

// Execute 执行元素分类
func (e *ClassifyExecutor) Execute(ctx context.Context, input ClassifyInput) *StepResult[Stage2Data] {
	start := time.Now()

	if len(input.Capabilities) == 0 {
		return stepFailure[Stage2Data](start, nil, fmt.Errorf("没有待分类的能力项"))
	}

	caps := input.Capabilities
	truncated := false
	if len(caps) > e.maxBatch {
		caps = caps[:e.maxBatch]
		truncated = true
	}

	var envelope elementsEnvelope
	usage, err := e.gen.Invoke(ctx, TemplateClassifyElements, ClassifyInput{Capabilities: caps}, &envelope)
	if err != nil {
		return stepFailure[Stage2Data](start, usage, err)
	}

	// 只保留确实来自输入集合的条目
	known := make(map[string]Capability, len(caps))
	for _, c := range caps {
		known[c.ID] = c
	}
	elements := make([]ClassifiedElement, 0, len(envelope.Elements))
	for _, el := range envelope.Elements {
		src, ok := known[el.ID]
		if !ok {
			continue
		}
		if el.Name == "" {
			el.Name = src.Name
		}
		if el.Description == "" {
			el.Description = src.Description
		}
		if el.ElementType == "" {
			el.ElementType = "capability"
		}
		elements = append(elements, el)
	}

	if len(elements) == 0 {
		return stepFailure[Stage2Data](start, usage, fmt.Errorf("分类结果为空"))
	}

	return stepSuccess(start, usage, Stage2Data{Elements: elements, Truncated: truncated})
}
