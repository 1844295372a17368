package catalog

import (
	"backend/internal/common"

	"gorm.io/datatypes"
)

// AgentToolRecord 挂载在智能体上的工具（优化阶段降级产物）
type AgentToolRecord struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Agent 永久智能体记录
// 由向导会话落库时一次性创建；创建后独立于来源会话存在，
// source_session_id 仅作追溯信息，不建外键
type Agent struct {
	ID       string `json:"id" gorm:"primaryKey;type:uuid"`
	TenantID string `json:"tenantId" gorm:"type:uuid;not null;index"`

	Name        string `json:"name" gorm:"size:255;not null"`
	Purpose     string `json:"purpose" gorm:"type:text"`
	Description string `json:"description" gorm:"type:text"`

	// 行为分类
	Pattern          string `json:"pattern" gorm:"size:32;not null;default:specialist"`
	ReasoningPattern string `json:"reasoningPattern" gorm:"size:32"`
	AutonomyLevel    string `json:"autonomyLevel" gorm:"size:32;not null;default:supervised"`
	RiskAppetite     string `json:"riskAppetite" gorm:"size:32;not null;default:medium"`
	IsOrchestrator   bool   `json:"isOrchestrator" gorm:"default:false"`

	// 职责与事件
	Capabilities  []string          `json:"capabilities" gorm:"type:jsonb;serializer:json"`
	TriggerEvents []string          `json:"triggerEvents" gorm:"type:jsonb;serializer:json"`
	OutputEvents  []string          `json:"outputEvents" gorm:"type:jsonb;serializer:json"`
	Tools         []AgentToolRecord `json:"tools" gorm:"type:jsonb;serializer:json"`

	SourceSessionID string `json:"sourceSessionId" gorm:"type:uuid;index"`

	common.TimestampModel
	common.SoftDeleteModel
}

// TableName 指定表名
func (Agent) TableName() string { return "agents" }

// AgentSkill 智能体技能记录
type AgentSkill struct {
	ID       string `json:"id" gorm:"primaryKey;type:uuid"`
	TenantID string `json:"tenantId" gorm:"type:uuid;not null;index"`
	AgentID  string `json:"agentId" gorm:"type:uuid;not null;index"`

	Name         string         `json:"name" gorm:"size:255;not null"`
	Description  string         `json:"description" gorm:"type:text"`
	InputSchema  datatypes.JSON `json:"inputSchema" gorm:"type:jsonb"`
	OutputSchema datatypes.JSON `json:"outputSchema" gorm:"type:jsonb"`

	common.TimestampModel
}

// TableName 指定表名
func (AgentSkill) TableName() string { return "agent_skills" }

// AgentRelationship 智能体间协作关系记录（有方向）
type AgentRelationship struct {
	ID       string `json:"id" gorm:"primaryKey;type:uuid"`
	TenantID string `json:"tenantId" gorm:"type:uuid;not null;index"`

	SourceAgentID string `json:"sourceAgentId" gorm:"type:uuid;not null;index"`
	TargetAgentID string `json:"targetAgentId" gorm:"type:uuid;not null;index"`
	Description   string `json:"description" gorm:"type:text"`
	MessageType   string `json:"messageType" gorm:"size:255"`

	common.TimestampModel
}

// TableName 指定表名
func (AgentRelationship) TableName() string { return "agent_relationships" }

// AgentIntegration 智能体与外部系统集成记录（有方向）
type AgentIntegration struct {
	ID       string `json:"id" gorm:"primaryKey;type:uuid"`
	TenantID string `json:"tenantId" gorm:"type:uuid;not null;index"`

	AgentID     string `json:"agentId" gorm:"type:uuid;not null;index"`
	SystemName  string `json:"systemName" gorm:"size:255;not null"`
	Direction   string `json:"direction" gorm:"size:32;not null;default:outbound"`
	Description string `json:"description" gorm:"type:text"`

	common.TimestampModel
}

// TableName 指定表名
func (AgentIntegration) TableName() string { return "agent_integrations" }

// AgentProcessFlow 智能体关联的流程定义记录
type AgentProcessFlow struct {
	ID       string `json:"id" gorm:"primaryKey;type:uuid"`
	TenantID string `json:"tenantId" gorm:"type:uuid;not null;index"`
	AgentID  string `json:"agentId" gorm:"type:uuid;not null;index"`

	ElementID   string `json:"elementId" gorm:"size:100"` // 来源会话中的元素临时标识
	ProcessName string `json:"processName" gorm:"size:255"`
	BPMNXml     string `json:"bpmnXml" gorm:"column:bpmn_xml;type:text"`

	common.TimestampModel
}

// TableName 指定表名
func (AgentProcessFlow) TableName() string { return "agent_process_flows" }

// Models 返回本包全部模型，供自动迁移使用
func Models() []interface{} {
	return []interface{}{
		&Agent{},
		&AgentSkill{},
		&AgentRelationship{},
		&AgentIntegration{},
		&AgentProcessFlow{},
	}
}
