package wizard

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// FlowInput 第 5 步输入：针对单个流程元素生成 BPMN
type FlowInput struct {
	ElementID   string   `json:"elementId"`
	ProcessName string   `json:"processName"`
	Description string   `json:"description"`
	AgentNames  []string `json:"agentNames,omitempty"`
}

// FlowExecutor 第 5 步执行器：按元素生成流程图，可独立、重复调用
// 同一元素的结果是替换语义，重新生成不会产生重复条目
type FlowExecutor struct {
	gen Generator
}

// NewFlowExecutor 创建第 5 步执行器
func NewFlowExecutor(gen Generator) *FlowExecutor {
	return &FlowExecutor{gen: gen}
}

type flowEnvelope struct {
	XML string `json:"xml"`
}

// Execute 为单个元素生成流程定义
func (e *FlowExecutor) Execute(ctx context.Context, input FlowInput) *StepResult[BPMNFlow] {
	start := time.Now()

	if input.ElementID == "" {
		return stepFailure[BPMNFlow](start, nil, fmt.Errorf("流程元素标识不能为空"))
	}
	if strings.TrimSpace(input.ProcessName) == "" {
		return stepFailure[BPMNFlow](start, nil, fmt.Errorf("流程名称不能为空"))
	}

	var envelope flowEnvelope
	usage, err := e.gen.Invoke(ctx, TemplateGenerateFlow, input, &envelope)
	if err != nil {
		return stepFailure[BPMNFlow](start, usage, err)
	}

	xml := strings.TrimSpace(envelope.XML)
	if xml == "" {
		return stepFailure[BPMNFlow](start, usage, fmt.Errorf("生成的流程定义为空"))
	}

	return stepSuccess(start, usage, BPMNFlow{
		ElementID:   input.ElementID,
		ProcessName: input.ProcessName,
		XML:         xml,
		GeneratedAt: time.Now().UTC(),
	})
}
