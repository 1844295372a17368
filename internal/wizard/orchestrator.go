package wizard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"backend/internal/common"
	"backend/internal/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service 向导会话编排服务
// 负责会话生命周期、阶段门禁、并发互斥与产物合并；
// 具体的生成语义全部下沉在各阶段执行器中
type Service struct {
	db     *gorm.DB
	gen    Generator
	locker SessionLocker

	extract  *ExtractExecutor
	classify *ClassifyExecutor
	propose  *ProposeExecutor
	patterns *PatternsExecutor
	flow     *FlowExecutor
	links    *LinksExecutor
}

// NewService 创建向导编排服务
func NewService(db *gorm.DB, gen Generator, locker SessionLocker, maxClassifyBatch int) *Service {
	if locker == nil {
		locker = NewLocalLocker()
	}
	return &Service{
		db:       db,
		gen:      gen,
		locker:   locker,
		extract:  NewExtractExecutor(gen),
		classify: NewClassifyExecutor(gen, maxClassifyBatch),
		propose:  NewProposeExecutor(gen),
		patterns: NewPatternsExecutor(gen),
		flow:     NewFlowExecutor(gen),
		links:    NewLinksExecutor(gen),
	}
}

// CreateSessionRequest 创建会话请求
type CreateSessionRequest struct {
	TenantID string `json:"tenantId"`
	Name     string `json:"name"`
}

// CreateSession 创建一个新的向导会话
func (s *Service) CreateSession(ctx context.Context, req *CreateSessionRequest) (*WizardSession, error) {
	if req.TenantID == "" {
		return nil, fmt.Errorf("租户ID不能为空")
	}
	session := &WizardSession{
		ID:          uuid.New().String(),
		TenantID:    req.TenantID,
		Name:        req.Name,
		CurrentStep: StepNone,
		Status:      StatusDraft,
	}
	if err := s.db.WithContext(ctx).Create(session).Error; err != nil {
		return nil, fmt.Errorf("创建向导会话失败: %w", err)
	}
	logger.Info("向导会话已创建",
		zap.String("session_id", session.ID),
		zap.String("tenant_id", session.TenantID))
	return session, nil
}

// GetSession 查询单个会话
func (s *Service) GetSession(ctx context.Context, tenantID, sessionID string) (*WizardSession, error) {
	return s.loadSession(ctx, tenantID, sessionID)
}

// ListSessions 分页查询租户下的会话
func (s *Service) ListSessions(ctx context.Context, tenantID string, page, pageSize int) ([]WizardSession, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	var sessions []WizardSession
	var total int64

	q := s.db.WithContext(ctx).Model(&WizardSession{}).
		Scopes(common.ByTenant(tenantID), common.NotDeleted())

	q.Count(&total)
	if err := q.Order("created_at DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&sessions).Error; err != nil {
		return nil, 0, fmt.Errorf("查询向导会话列表失败: %w", err)
	}
	return sessions, total, nil
}

// loadSession 按租户加载会话
func (s *Service) loadSession(ctx context.Context, tenantID, sessionID string) (*WizardSession, error) {
	var session WizardSession
	err := s.db.WithContext(ctx).
		Scopes(common.ByTenant(tenantID), common.NotDeleted()).
		Where("id = ?", sessionID).
		First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询向导会话失败: %w", err)
	}
	return &session, nil
}

// checkPrerequisite 阶段门禁：执行第 N 步要求 current_step >= N-1
// 第 6 步例外：流程生成可选，current_step >= 4 即可
func checkPrerequisite(session *WizardSession, step int) error {
	required := step - 1
	if step == StepLinks && session.CurrentStep >= StepPatterns {
		return nil
	}
	if session.CurrentStep < required {
		return fmt.Errorf("%w: 第 %d 步要求已完成第 %d 步，当前进度 %d",
			ErrPrerequisiteNotMet, step, required, session.CurrentStep)
	}
	return nil
}

// advance 成功后推进进度：只增不减，重跑早期阶段不回退计数
func advance(session *WizardSession, step int) {
	if step > session.CurrentStep {
		session.CurrentStep = step
	}
	if session.CurrentStep >= StepPropose && session.Status == StatusDraft {
		session.Status = StatusAnalyzed
	}
}

// saveSession 持久化会话（含阶段产物）
func (s *Service) saveSession(ctx context.Context, session *WizardSession) error {
	if err := s.db.WithContext(ctx).Save(session).Error; err != nil {
		return fmt.Errorf("保存向导会话失败: %w", err)
	}
	return nil
}

// runStage 各阶段执行的公共骨架：互斥锁、加载、门禁、执行、合并持久化
// execute 在持锁状态下运行；返回 false 表示阶段失败，进度与状态保持不动
func (s *Service) runStage(ctx context.Context, tenantID, sessionID string, step int,
	execute func(session *WizardSession) (bool, error)) error {

	release, err := s.locker.Acquire(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("获取会话锁失败: %w", err)
	}
	defer release()

	session, err := s.loadSession(ctx, tenantID, sessionID)
	if err != nil {
		return err
	}
	if session.Status == StatusApplied {
		return fmt.Errorf("%w: 会话已落库，不能再执行生成阶段", ErrInvalidState)
	}
	if err := checkPrerequisite(session, step); err != nil {
		return err
	}

	success, err := execute(session)
	if err != nil {
		return err
	}
	if !success {
		// 阶段失败：产物与进度不变，但会话本身无需回滚
		return nil
	}

	advance(session, step)
	return s.saveSession(ctx, session)
}

// RunExtract 执行第 1 步：从组织描述抽取能力
func (s *Service) RunExtract(ctx context.Context, tenantID, sessionID string, input ExtractInput) (*StepResult[Stage1Data], error) {
	var result *StepResult[Stage1Data]
	err := s.runStage(ctx, tenantID, sessionID, StepExtract, func(session *WizardSession) (bool, error) {
		start := time.Now()
		result = s.extract.Execute(ctx, input)
		observeStage("extract", result.Success, time.Since(start), result.Usage)
		if result.Success {
			session.StageData.Step1 = result.Data
		}
		return result.Success, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RunClassify 执行第 2 步：元素分类
// 省略输入时默认分类第 1 步的全部能力项
func (s *Service) RunClassify(ctx context.Context, tenantID, sessionID string, input ClassifyInput) (*StepResult[Stage2Data], error) {
	var result *StepResult[Stage2Data]
	err := s.runStage(ctx, tenantID, sessionID, StepClassify, func(session *WizardSession) (bool, error) {
		if len(input.Capabilities) == 0 && session.StageData.Step1 != nil {
			input.Capabilities = session.StageData.Step1.Capabilities
		}
		start := time.Now()
		result = s.classify.Execute(ctx, input)
		observeStage("classify", result.Success, time.Since(start), result.Usage)
		if result.Success {
			session.StageData.Step2 = result.Data
		}
		return result.Success, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RunPropose 执行第 3 步：智能体提案 + 优化
func (s *Service) RunPropose(ctx context.Context, tenantID, sessionID string, input ProposeInput) (*StepResult[Stage3Data], error) {
	var result *StepResult[Stage3Data]
	err := s.runStage(ctx, tenantID, sessionID, StepPropose, func(session *WizardSession) (bool, error) {
		if len(input.Elements) == 0 && session.StageData.Step2 != nil {
			input.Elements = session.StageData.Step2.Elements
		}
		start := time.Now()
		result = s.propose.Execute(ctx, input)
		observeStage("propose", result.Success, time.Since(start), result.Usage)
		if result.Success {
			session.StageData.Step3 = result.Data
		}
		return result.Success, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RunPatterns 执行第 4 步：行为模式 + 技能
func (s *Service) RunPatterns(ctx context.Context, tenantID, sessionID string) (*StepResult[Stage4Data], error) {
	var result *StepResult[Stage4Data]
	err := s.runStage(ctx, tenantID, sessionID, StepPatterns, func(session *WizardSession) (bool, error) {
		if session.StageData.Step3 == nil || len(session.StageData.Step3.Agents) == 0 {
			return false, fmt.Errorf("%w: 缺少第 3 步的智能体提案", ErrPrerequisiteNotMet)
		}
		input := PatternsInput{Agents: session.StageData.Step3.Agents}
		start := time.Now()
		result = s.patterns.Execute(ctx, input)
		observeStage("patterns", result.Success, time.Since(start), result.Usage)
		if result.Success {
			session.StageData.Step4 = result.Data
		}
		return result.Success, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RunFlow 执行第 5 步：为单个流程元素生成 BPMN
// 可对不同元素重复调用；同一元素的结果按键替换，其余条目保持不动
func (s *Service) RunFlow(ctx context.Context, tenantID, sessionID string, input FlowInput) (*StepResult[BPMNFlow], error) {
	var result *StepResult[BPMNFlow]
	err := s.runStage(ctx, tenantID, sessionID, StepFlow, func(session *WizardSession) (bool, error) {
		if len(input.AgentNames) == 0 && session.StageData.Step3 != nil {
			for _, a := range session.StageData.Step3.Agents {
				input.AgentNames = append(input.AgentNames, a.Name)
			}
		}
		start := time.Now()
		result = s.flow.Execute(ctx, input)
		observeStage("flow", result.Success, time.Since(start), result.Usage)
		if result.Success {
			session.StageData.MergeFlow(*result.Data)
		}
		return result.Success, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RunLinks 执行第 6 步：协作关系 + 外部集成
func (s *Service) RunLinks(ctx context.Context, tenantID, sessionID string, input LinksInput) (*StepResult[Stage6Data], error) {
	var result *StepResult[Stage6Data]
	err := s.runStage(ctx, tenantID, sessionID, StepLinks, func(session *WizardSession) (bool, error) {
		if len(input.Agents) == 0 {
			if session.StageData.Step3 == nil || len(session.StageData.Step3.Agents) == 0 {
				return false, fmt.Errorf("%w: 缺少第 3 步的智能体提案", ErrPrerequisiteNotMet)
			}
			input.Agents = session.StageData.Step3.Agents
		}
		if input.Patterns == nil && session.StageData.Step4 != nil {
			input.Patterns = session.StageData.Step4.Patterns
		}
		start := time.Now()
		result = s.links.Execute(ctx, input)
		observeStage("links", result.Success, time.Since(start), result.Usage)
		if result.Success {
			session.StageData.Step6 = result.Data
		}
		return result.Success, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
