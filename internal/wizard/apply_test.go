package wizard

import (
	"context"
	"fmt"
	"testing"

	"backend/internal/catalog"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runFullPipeline 把会话推进到可落库状态（第 1-4、6 步 + 一个流程）
func runFullPipeline(t *testing.T, svc *Service, tenantID string) string {
	t.Helper()
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, &CreateSessionRequest{TenantID: tenantID, Name: "电商组织"})
	require.NoError(t, err)

	_, err = svc.RunExtract(ctx, tenantID, session.ID, ExtractInput{Text: "电商组织描述"})
	require.NoError(t, err)
	_, err = svc.RunClassify(ctx, tenantID, session.ID, ClassifyInput{})
	require.NoError(t, err)
	_, err = svc.RunPropose(ctx, tenantID, session.ID, ProposeInput{})
	require.NoError(t, err)
	_, err = svc.RunPatterns(ctx, tenantID, session.ID)
	require.NoError(t, err)
	_, err = svc.RunFlow(ctx, tenantID, session.ID, FlowInput{ElementID: "c1", ProcessName: "订单处理"})
	require.NoError(t, err)
	_, err = svc.RunLinks(ctx, tenantID, session.ID, LinksInput{})
	require.NoError(t, err)

	return session.ID
}

func TestApplyFullSession(t *testing.T) {
	ctx := context.Background()
	svc, db := newTestService(t, fullPipelineGenerator())
	sessionID := runFullPipeline(t, svc, "tenant-a")

	result, err := svc.Apply(ctx, "tenant-a", sessionID)
	require.NoError(t, err)

	assert.Equal(t, 2, result.AgentsCreated)
	assert.Equal(t, 2, result.SkillsCreated)
	assert.Equal(t, 1, result.RelationshipsCreated)
	assert.Equal(t, 1, result.IntegrationsCreated)
	assert.Equal(t, 1, result.FlowsCreated)
	assert.Zero(t, result.DroppedRelationships)
	assert.Zero(t, result.DroppedIntegrations)
	require.Len(t, result.AgentIDs, 2)

	t.Run("会话状态翻转", func(t *testing.T) {
		session, err := svc.GetSession(ctx, "tenant-a", sessionID)
		require.NoError(t, err)
		assert.Equal(t, StatusApplied, session.Status)
		require.NotNil(t, session.AppliedAt)
	})

	t.Run("智能体字段落库", func(t *testing.T) {
		var agent catalog.Agent
		require.NoError(t, db.Where("tenant_id = ? AND name = ?", "tenant-a", "订单智能体").First(&agent).Error)
		assert.Equal(t, "executor", agent.Pattern)
		assert.Equal(t, "semi_autonomous", agent.AutonomyLevel)
		assert.Equal(t, "low", agent.RiskAppetite)
		assert.Equal(t, sessionID, agent.SourceSessionID)
		assert.ElementsMatch(t, []string{"订单受理", "售后处理"}, agent.Capabilities)
		assert.Equal(t, []string{"order.created"}, agent.TriggerEvents)
	})

	t.Run("关系引用永久ID", func(t *testing.T) {
		var rels []catalog.AgentRelationship
		require.NoError(t, db.Where("tenant_id = ?", "tenant-a").Find(&rels).Error)
		require.Len(t, rels, 1)
		assert.Equal(t, result.AgentIDs["a1"], rels[0].SourceAgentID)
		assert.Equal(t, result.AgentIDs["a2"], rels[0].TargetAgentID)
	})

	t.Run("流程挂到持有元素的智能体", func(t *testing.T) {
		var flows []catalog.AgentProcessFlow
		require.NoError(t, db.Where("tenant_id = ?", "tenant-a").Find(&flows).Error)
		require.Len(t, flows, 1)
		assert.Equal(t, result.AgentIDs["a1"], flows[0].AgentID)
		assert.Equal(t, "c1", flows[0].ElementID)
	})
}

func TestApplyRejectsRepeatAndPremature(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, fullPipelineGenerator())

	t.Run("重复落库被拒绝", func(t *testing.T) {
		sessionID := runFullPipeline(t, svc, "tenant-a")
		_, err := svc.Apply(ctx, "tenant-a", sessionID)
		require.NoError(t, err)

		_, err = svc.Apply(ctx, "tenant-a", sessionID)
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("落库后的会话拒绝生成阶段", func(t *testing.T) {
		sessionID := runFullPipeline(t, svc, "tenant-b")
		_, err := svc.Apply(ctx, "tenant-b", sessionID)
		require.NoError(t, err)

		_, err = svc.RunLinks(ctx, "tenant-b", sessionID, LinksInput{})
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("未到第3步不能落库", func(t *testing.T) {
		session, err := svc.CreateSession(ctx, &CreateSessionRequest{TenantID: "tenant-c", Name: "会话"})
		require.NoError(t, err)
		_, err = svc.RunExtract(ctx, "tenant-c", session.ID, ExtractInput{Text: "描述"})
		require.NoError(t, err)

		_, err = svc.Apply(ctx, "tenant-c", session.ID)
		assert.ErrorIs(t, err, ErrInvalidState)
	})
}

func TestApplyWithoutOptionalStages(t *testing.T) {
	ctx := context.Background()
	svc, db := newTestService(t, fullPipelineGenerator())

	session, err := svc.CreateSession(ctx, &CreateSessionRequest{TenantID: "tenant-a", Name: "会话"})
	require.NoError(t, err)
	_, err = svc.RunExtract(ctx, "tenant-a", session.ID, ExtractInput{Text: "描述"})
	require.NoError(t, err)
	_, err = svc.RunClassify(ctx, "tenant-a", session.ID, ClassifyInput{})
	require.NoError(t, err)
	_, err = svc.RunPropose(ctx, "tenant-a", session.ID, ProposeInput{})
	require.NoError(t, err)

	// 第 4/5/6 步全部缺失，落库仍然成功并用兜底值补齐
	result, err := svc.Apply(ctx, "tenant-a", session.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, result.AgentsCreated)
	assert.Zero(t, result.SkillsCreated)
	assert.Zero(t, result.FlowsCreated)

	var agent catalog.Agent
	require.NoError(t, db.Where("tenant_id = ? AND name = ?", "tenant-a", "库存智能体").First(&agent).Error)
	assert.Equal(t, DefaultPattern, agent.Pattern)
	assert.Equal(t, DefaultAutonomy, agent.AutonomyLevel)
	assert.Equal(t, DefaultRisk, agent.RiskAppetite)
}

func TestApplyDropsDanglingReferences(t *testing.T) {
	ctx := context.Background()
	gen := fullPipelineGenerator()
	gen.responses[TemplateSuggestRelationships] = `{"relationships": [
		{"sourceAgentId": "a1", "targetAgentId": "a2"},
		{"sourceAgentId": "a1", "targetAgentId": "ghost"}
	]}`
	gen.responses[TemplateSuggestIntegrations] = `{"integrations": [
		{"agentId": "ghost", "systemName": "ERP"},
		{"agentId": "a2", "systemName": "WMS"}
	]}`
	svc, db := newTestService(t, gen)
	sessionID := runFullPipeline(t, svc, "tenant-a")

	result, err := svc.Apply(ctx, "tenant-a", sessionID)
	require.NoError(t, err)

	assert.Equal(t, 1, result.RelationshipsCreated)
	assert.Equal(t, 1, result.DroppedRelationships)
	assert.Equal(t, 1, result.IntegrationsCreated)
	assert.Equal(t, 1, result.DroppedIntegrations)

	// 落库记录里不得存在悬空引用
	var rels []catalog.AgentRelationship
	require.NoError(t, db.Where("tenant_id = ?", "tenant-a").Find(&rels).Error)
	for _, rel := range rels {
		assert.Contains(t, result.AgentIDs, keyByValue(result.AgentIDs, rel.SourceAgentID))
		assert.Contains(t, result.AgentIDs, keyByValue(result.AgentIDs, rel.TargetAgentID))
	}
}

// keyByValue 反查映射中的键，用于断言落库ID确实来自映射
func keyByValue(m map[string]string, value string) string {
	for k, v := range m {
		if v == value {
			return k
		}
	}
	return fmt.Sprintf("未知ID: %s", value)
}

func TestApplyMarksFailedOnTxError(t *testing.T) {
	ctx := context.Background()
	svc, db := newTestService(t, fullPipelineGenerator())
	sessionID := runFullPipeline(t, svc, "tenant-a")

	// 删掉目标表制造事务失败
	require.NoError(t, db.Migrator().DropTable(&catalog.AgentSkill{}))

	_, err := svc.Apply(ctx, "tenant-a", sessionID)
	require.Error(t, err)

	var session WizardSession
	require.NoError(t, db.Where("id = ?", sessionID).First(&session).Error)
	assert.Equal(t, StatusFailed, session.Status)

	// 事务回滚后不得残留半成品记录
	var count int64
	require.NoError(t, db.Model(&catalog.Agent{}).Where("tenant_id = ?", "tenant-a").Count(&count).Error)
	assert.Zero(t, count)
}

