package wizard

import "backend/internal/wizard"

// CreateSessionRequest 创建会话请求体
type CreateSessionRequest struct {
	Name string `json:"name"`
}

// ExtractRequest 能力抽取请求体
type ExtractRequest struct {
	Text string `json:"text" binding:"required"`
}

// ClassifyRequest 元素分类请求体；capabilities 省略时分类第 1 步的全部产物
type ClassifyRequest struct {
	Capabilities []wizard.Capability `json:"capabilities,omitempty"`
}

// ProposeRequest 智能体提案请求体
type ProposeRequest struct {
	TargetCount int `json:"targetCount,omitempty"`
}

// FlowRequest 流程生成请求体
type FlowRequest struct {
	ElementID   string `json:"elementId" binding:"required"`
	ProcessName string `json:"processName" binding:"required"`
	Description string `json:"description,omitempty"`
}

// LinksRequest 关系与集成建议请求体
type LinksRequest struct {
	Industry     string   `json:"industry,omitempty"`
	KnownSystems []string `json:"knownSystems,omitempty"`
}
