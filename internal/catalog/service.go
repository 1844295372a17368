package catalog

import (
	"context"
	"errors"
	"fmt"

	"backend/internal/common"

	"gorm.io/gorm"
)

// ErrAgentNotFound 智能体不存在或不属于该租户
var ErrAgentNotFound = errors.New("智能体不存在")

// Service 智能体目录查询服务
type Service struct {
	db *gorm.DB
}

// NewService 创建目录查询服务
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// ListQuery 列表查询条件
type ListQuery struct {
	TenantID        string
	Pattern         string // 按行为模式过滤（可选）
	SourceSessionID string // 按来源会话过滤（可选）
	Keyword         string // 名称/用途模糊匹配（可选）
	Page            int
	PageSize        int
}

// List 分页查询租户下的智能体
func (s *Service) List(ctx context.Context, query ListQuery) ([]Agent, int64, error) {
	if query.Page < 1 {
		query.Page = 1
	}
	if query.PageSize < 1 || query.PageSize > 100 {
		query.PageSize = 20
	}

	var agents []Agent
	var total int64

	q := s.db.WithContext(ctx).Model(&Agent{}).
		Scopes(common.ByTenant(query.TenantID), common.NotDeleted())

	if query.Pattern != "" {
		q = q.Where("pattern = ?", query.Pattern)
	}
	if query.SourceSessionID != "" {
		q = q.Where("source_session_id = ?", query.SourceSessionID)
	}
	if query.Keyword != "" {
		q = q.Where("name LIKE ? OR purpose LIKE ?", "%"+query.Keyword+"%", "%"+query.Keyword+"%")
	}

	q.Count(&total)
	if err := q.Order("created_at DESC").
		Offset((query.Page - 1) * query.PageSize).Limit(query.PageSize).
		Find(&agents).Error; err != nil {
		return nil, 0, fmt.Errorf("查询智能体列表失败: %w", err)
	}
	return agents, total, nil
}

// AgentDetail 智能体及其关联记录
type AgentDetail struct {
	Agent         Agent               `json:"agent"`
	Skills        []AgentSkill        `json:"skills"`
	Relationships []AgentRelationship `json:"relationships"`
	Integrations  []AgentIntegration  `json:"integrations"`
	Flows         []AgentProcessFlow  `json:"flows"`
}

// GetWithDetails 查询单个智能体及全部关联记录
func (s *Service) GetWithDetails(ctx context.Context, tenantID, agentID string) (*AgentDetail, error) {
	var agent Agent
	err := s.db.WithContext(ctx).
		Scopes(common.ByTenant(tenantID), common.NotDeleted()).
		Where("id = ?", agentID).
		First(&agent).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAgentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询智能体失败: %w", err)
	}

	detail := &AgentDetail{Agent: agent}

	if err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND agent_id = ?", tenantID, agentID).
		Find(&detail.Skills).Error; err != nil {
		return nil, fmt.Errorf("查询智能体技能失败: %w", err)
	}
	if err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND (source_agent_id = ? OR target_agent_id = ?)", tenantID, agentID, agentID).
		Find(&detail.Relationships).Error; err != nil {
		return nil, fmt.Errorf("查询协作关系失败: %w", err)
	}
	if err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND agent_id = ?", tenantID, agentID).
		Find(&detail.Integrations).Error; err != nil {
		return nil, fmt.Errorf("查询集成记录失败: %w", err)
	}
	if err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND agent_id = ?", tenantID, agentID).
		Find(&detail.Flows).Error; err != nil {
		return nil, fmt.Errorf("查询流程定义失败: %w", err)
	}
	return detail, nil
}
