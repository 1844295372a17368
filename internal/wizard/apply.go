package wizard

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"backend/internal/catalog"
	"backend/internal/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ApplyResult 落库结果统计
type ApplyResult struct {
	AgentsCreated        int `json:"agentsCreated"`
	SkillsCreated        int `json:"skillsCreated"`
	RelationshipsCreated int `json:"relationshipsCreated"`
	IntegrationsCreated  int `json:"integrationsCreated"`
	FlowsCreated         int `json:"flowsCreated"`

	// 引用了未知智能体而被丢弃的条目数
	DroppedRelationships int `json:"droppedRelationships"`
	DroppedIntegrations  int `json:"droppedIntegrations"`

	// AgentIDs 临时标识到永久ID的映射
	AgentIDs map[string]string `json:"agentIds"`
}

// Apply 将会话产物落库为永久记录，整体在单个事务内完成
//
// 前置条件：会话未落库且至少完成第 3 步。第 4/5/6 步缺失时以兜底值补齐，
// 绝不因缺少可选增强数据而失败。先为全部智能体分配永久ID，再解析引用，
// 因此智能体间关系与前后顺序无关；指向未知临时标识的引用丢弃并计数
func (s *Service) Apply(ctx context.Context, tenantID, sessionID string) (*ApplyResult, error) {
	release, err := s.locker.Acquire(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("获取会话锁失败: %w", err)
	}
	defer release()

	session, err := s.loadSession(ctx, tenantID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status == StatusApplied {
		return nil, fmt.Errorf("%w: 会话已落库，不能重复落库", ErrInvalidState)
	}
	if session.CurrentStep < StepPropose || session.StageData.Step3 == nil || len(session.StageData.Step3.Agents) == 0 {
		return nil, fmt.Errorf("%w: 落库要求至少完成智能体提案阶段", ErrInvalidState)
	}

	result := &ApplyResult{AgentIDs: make(map[string]string)}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.applyInTx(tx, session, result)
	})

	if txErr != nil {
		observeApply(false)
		// 失败状态尽力而为地记录，不掩盖原始错误
		if err := s.db.WithContext(ctx).Model(&WizardSession{}).
			Where("id = ?", session.ID).
			Update("status", StatusFailed).Error; err != nil {
			logger.Error("记录落库失败状态时出错",
				zap.String("session_id", session.ID), zap.Error(err))
		}
		return nil, fmt.Errorf("向导会话落库失败: %w", txErr)
	}

	observeApply(true)
	logger.Info("向导会话已落库",
		zap.String("session_id", session.ID),
		zap.Int("agents", result.AgentsCreated),
		zap.Int("skills", result.SkillsCreated),
		zap.Int("relationships", result.RelationshipsCreated),
		zap.Int("integrations", result.IntegrationsCreated),
		zap.Int("flows", result.FlowsCreated))
	return result, nil
}

// applyInTx 事务体：两遍扫描，先建智能体并分配ID，再解析全部交叉引用
func (s *Service) applyInTx(tx *gorm.DB, session *WizardSession, result *ApplyResult) error {
	data := session.StageData
	elementNames := elementNameIndex(data)

	// 第一遍：创建智能体，建立 临时标识 -> 永久ID 映射
	idMap := make(map[string]string, len(data.Step3.Agents))
	for _, proposed := range data.Step3.Agents {
		agent := buildAgent(session, proposed, data, elementNames)
		if err := tx.Create(agent).Error; err != nil {
			return fmt.Errorf("创建智能体 %q 失败: %w", proposed.Name, err)
		}
		idMap[proposed.ID] = agent.ID
		result.AgentsCreated++
	}
	result.AgentIDs = idMap

	// 第二遍：技能、流程、关系、集成
	for _, proposed := range data.Step3.Agents {
		agentID := idMap[proposed.ID]

		if data.Step4 != nil {
			if skillSet, ok := data.Step4.Skills[proposed.ID]; ok {
				for _, def := range skillSet.Skills {
					skill := buildSkill(session.TenantID, agentID, def)
					if err := tx.Create(skill).Error; err != nil {
						return fmt.Errorf("创建智能体技能 %q 失败: %w", def.Name, err)
					}
					result.SkillsCreated++
				}
			}
		}

		if data.Step5 != nil {
			for _, elementID := range flowKeysFor(proposed) {
				flow, ok := data.Step5.Flows[elementID]
				if !ok {
					continue
				}
				record := &catalog.AgentProcessFlow{
					ID:          uuid.New().String(),
					TenantID:    session.TenantID,
					AgentID:     agentID,
					ElementID:   flow.ElementID,
					ProcessName: flow.ProcessName,
					BPMNXml:     flow.XML,
				}
				if err := tx.Create(record).Error; err != nil {
					return fmt.Errorf("创建流程定义 %q 失败: %w", flow.ProcessName, err)
				}
				result.FlowsCreated++
			}
		}
	}

	if data.Step6 != nil {
		for _, rel := range data.Step6.Relationships {
			sourceID, okSource := idMap[rel.SourceAgentID]
			targetID, okTarget := idMap[rel.TargetAgentID]
			if !okSource || !okTarget {
				result.DroppedRelationships++
				continue
			}
			record := &catalog.AgentRelationship{
				ID:            uuid.New().String(),
				TenantID:      session.TenantID,
				SourceAgentID: sourceID,
				TargetAgentID: targetID,
				Description:   rel.Description,
				MessageType:   rel.MessageType,
			}
			if err := tx.Create(record).Error; err != nil {
				return fmt.Errorf("创建协作关系失败: %w", err)
			}
			result.RelationshipsCreated++
		}

		for _, integ := range data.Step6.Integrations {
			agentID, ok := idMap[integ.AgentID]
			if !ok {
				result.DroppedIntegrations++
				continue
			}
			direction := integ.Direction
			if direction == "" {
				direction = "outbound"
			}
			record := &catalog.AgentIntegration{
				ID:          uuid.New().String(),
				TenantID:    session.TenantID,
				AgentID:     agentID,
				SystemName:  integ.SystemName,
				Direction:   direction,
				Description: integ.Description,
			}
			if err := tx.Create(record).Error; err != nil {
				return fmt.Errorf("创建集成记录失败: %w", err)
			}
			result.IntegrationsCreated++
		}
	}

	// 状态翻转在同一事务内，落库与状态要么同时生效要么同时回滚
	now := time.Now()
	return tx.Model(&WizardSession{}).
		Where("id = ?", session.ID).
		Updates(map[string]interface{}{
			"status":     StatusApplied,
			"applied_at": now,
		}).Error
}

// elementNameIndex 建立元素临时标识到名称的索引，第 2 步优先、第 1 步兜底
func elementNameIndex(data StageData) map[string]string {
	index := make(map[string]string)
	if data.Step1 != nil {
		for _, c := range data.Step1.Capabilities {
			index[c.ID] = c.Name
		}
	}
	if data.Step2 != nil {
		for _, el := range data.Step2.Elements {
			if el.Name != "" {
				index[el.ID] = el.Name
			}
		}
	}
	return index
}

// buildAgent 组装永久智能体记录，模式缺失时回落到兜底值
func buildAgent(session *WizardSession, proposed ProposedAgent, data StageData, elementNames map[string]string) *catalog.Agent {
	agent := &catalog.Agent{
		ID:             uuid.New().String(),
		TenantID:       session.TenantID,
		Name:           proposed.Name,
		Purpose:        proposed.Purpose,
		Description:    proposed.Description,
		IsOrchestrator: proposed.IsOrchestrator,

		Pattern:       DefaultPattern,
		AutonomyLevel: DefaultAutonomy,
		RiskAppetite:  DefaultRisk,

		SourceSessionID: session.ID,
	}

	// 职责以元素名称落库，读取方不依赖会话内的临时标识
	capabilities := make([]string, 0, len(proposed.OwnedElements))
	for _, elementID := range proposed.OwnedElements {
		if name, ok := elementNames[elementID]; ok {
			capabilities = append(capabilities, name)
		}
	}
	agent.Capabilities = capabilities

	for _, tool := range proposed.Tools {
		agent.Tools = append(agent.Tools, catalog.AgentToolRecord{
			Name:        tool.Name,
			Description: tool.Description,
		})
	}

	if data.Step4 != nil {
		if p, ok := data.Step4.Patterns[proposed.ID]; ok {
			if p.Pattern != "" {
				agent.Pattern = p.Pattern
			}
			agent.ReasoningPattern = p.ReasoningPattern
			if p.AutonomyLevel != "" {
				agent.AutonomyLevel = p.AutonomyLevel
			}
			if p.RiskAppetite != "" {
				agent.RiskAppetite = p.RiskAppetite
			}
			agent.TriggerEvents = p.TriggerEvents
			agent.OutputEvents = p.OutputEvents
		}
	}
	if agent.IsOrchestrator && agent.Pattern == DefaultPattern {
		agent.Pattern = PatternOrchestrator
	}
	return agent
}

// buildSkill 组装技能记录，JSON Schema 原样透传
func buildSkill(tenantID, agentID string, def SkillDef) *catalog.AgentSkill {
	skill := &catalog.AgentSkill{
		ID:          uuid.New().String(),
		TenantID:    tenantID,
		AgentID:     agentID,
		Name:        def.Name,
		Description: def.Description,
	}
	if def.InputSchema != nil {
		if raw, err := json.Marshal(def.InputSchema); err == nil {
			skill.InputSchema = raw
		}
	}
	if def.OutputSchema != nil {
		if raw, err := json.Marshal(def.OutputSchema); err == nil {
			skill.OutputSchema = raw
		}
	}
	return skill
}

// flowKeysFor 元素级流程的归属键：智能体持有的元素优先，其次是以智能体
// 临时标识为键直接生成的流程
func flowKeysFor(proposed ProposedAgent) []string {
	keys := make([]string, 0, len(proposed.OwnedElements)+1)
	keys = append(keys, proposed.OwnedElements...)
	keys = append(keys, proposed.ID)
	return keys
}
