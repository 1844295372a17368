package tasks

// Task Types
const (
	TypeGenerateFlow = "wizard:generate_flow"
)

// GenerateFlowPayload 流程图异步生成任务载荷
type GenerateFlowPayload struct {
	SessionID   string   `json:"session_id"`
	TenantID    string   `json:"tenant_id"`
	ElementID   string   `json:"element_id"`
	ProcessName string   `json:"process_name"`
	Description string   `json:"description"`
	AgentNames  []string `json:"agent_names,omitempty"`
}
