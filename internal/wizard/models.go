package wizard

import (
	"time"

	"backend/internal/common"
)

// 会话状态
const (
	StatusDraft    = "draft"    // 创建后、产出智能体提案前
	StatusAnalyzed = "analyzed" // 已产出智能体提案
	StatusApplied  = "applied"  // 已落库为永久记录
	StatusFailed   = "failed"   // 落库失败
)

// 阶段编号（current_step 的取值上限即最近完成的阶段）
const (
	StepNone     = 0
	StepExtract  = 1 // 抽取能力
	StepClassify = 2 // 元素分类
	StepPropose  = 3 // 提案 + 优化
	StepPatterns = 4 // 行为模式 + 技能
	StepFlow     = 5 // BPMN 流程（可选）
	StepLinks    = 6 // 关系 + 集成
)

// Stage1Data 第 1 步产物
type Stage1Data struct {
	Capabilities []Capability `json:"capabilities"`
}

// Stage2Data 第 2 步产物
type Stage2Data struct {
	Elements []ClassifiedElement `json:"elements"`
	// Truncated 表示送入分类调用前发生过截断
	Truncated bool `json:"truncated,omitempty"`
}

// Stage3Data 第 3 步产物
type Stage3Data struct {
	Agents           []ProposedAgent      `json:"agents"`
	OrphanedElements []string             `json:"orphanedElements,omitempty"`
	Optimized        bool                 `json:"optimized"`
	Actions          []OptimizationAction `json:"actions,omitempty"`
	// OptimizeError 优化子调用失败时的降级说明（阶段整体仍成功）
	OptimizeError string `json:"optimizeError,omitempty"`
}

// Stage4Data 第 4 步产物，均以智能体临时标识为键
type Stage4Data struct {
	Patterns map[string]AgentPattern  `json:"patterns"`
	Skills   map[string]AgentSkillSet `json:"skills"`
}

// Stage5Data 第 5 步产物，以流程元素临时标识为键；重复生成按键替换
type Stage5Data struct {
	Flows map[string]BPMNFlow `json:"flows"`
}

// Stage6Data 第 6 步产物
type Stage6Data struct {
	Relationships []Relationship `json:"relationships"`
	Integrations  []Integration  `json:"integrations"`
}

// StageData 会话累积的各阶段产物，持久化为单个 JSON 列
// 每个阶段占一个固定键；合并永远是按键覆写，绝不整体替换，
// 因此重跑早期阶段不会抹掉已存在的后续阶段数据
type StageData struct {
	Step1 *Stage1Data `json:"step1,omitempty"`
	Step2 *Stage2Data `json:"step2,omitempty"`
	Step3 *Stage3Data `json:"step3,omitempty"`
	Step4 *Stage4Data `json:"step4,omitempty"`
	Step5 *Stage5Data `json:"step5,omitempty"`
	Step6 *Stage6Data `json:"step6,omitempty"`
}

// MergeFlow 合并单个元素的流程产物，只替换该元素对应的条目
func (d *StageData) MergeFlow(flow BPMNFlow) {
	if d.Step5 == nil {
		d.Step5 = &Stage5Data{Flows: make(map[string]BPMNFlow)}
	}
	if d.Step5.Flows == nil {
		d.Step5.Flows = make(map[string]BPMNFlow)
	}
	d.Step5.Flows[flow.ElementID] = flow
}

// WizardSession 一次生成向导会话
// current_step 单调递增，是下一阶段能否执行的权威门禁；
// 会话从不被流水线删除（删除属于外部管理操作）
type WizardSession struct {
	ID       string `json:"id" gorm:"primaryKey;type:uuid"`
	TenantID string `json:"tenantId" gorm:"type:uuid;not null;index"`

	Name        string `json:"name" gorm:"size:255"`
	CurrentStep int    `json:"currentStep" gorm:"not null;default:0"`
	Status      string `json:"status" gorm:"size:32;not null;default:draft"`

	StageData StageData `json:"stageData" gorm:"type:jsonb;serializer:json"`

	AppliedAt *time.Time `json:"appliedAt,omitempty"`

	common.TimestampModel
	common.SoftDeleteModel
}

// TableName 指定表名
func (WizardSession) TableName() string {
	return "wizard_sessions"
}

// HasStep 判断某阶段产物是否已存在
func (s *WizardSession) HasStep(step int) bool {
	switch step {
	case StepExtract:
		return s.StageData.Step1 != nil
	case StepClassify:
		return s.StageData.Step2 != nil
	case StepPropose:
		return s.StageData.Step3 != nil
	case StepPatterns:
		return s.StageData.Step4 != nil
	case StepFlow:
		return s.StageData.Step5 != nil
	case StepLinks:
		return s.StageData.Step6 != nil
	}
	return false
}
