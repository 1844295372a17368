package wizard

import (
	"context"
	"fmt"
	"testing"

	"backend/internal/catalog"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupWizardTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	models := []interface{}{&WizardSession{}}
	models = append(models, catalog.Models()...)
	require.NoError(t, db.AutoMigrate(models...))
	return db
}

// newTestService 用预置响应的生成后端构建编排服务
func newTestService(t *testing.T, gen Generator) (*Service, *gorm.DB) {
	t.Helper()
	db := setupWizardTestDB(t)
	return NewService(db, gen, NewLocalLocker(), 50), db
}

// fullPipelineGenerator 预置六个阶段全部成功响应
func fullPipelineGenerator() *mockGenerator {
	gen := newMockGenerator()
	gen.responses[TemplateExtractCapabilities] = `{"capabilities": [
		{"id": "c1", "name": "订单受理", "description": "接收并校验订单"},
		{"id": "c2", "name": "库存同步"},
		{"id": "c3", "name": "售后处理"}
	]}`
	gen.responses[TemplateClassifyElements] = `{"elements": [
		{"id": "c1", "elementType": "process"},
		{"id": "c2", "elementType": "service"},
		{"id": "c3", "elementType": "process"}
	]}`
	gen.responses[TemplateProposeAgents] = `{"agents": [
		{"id": "a1", "name": "订单智能体", "purpose": "处理订单全流程", "ownedElements": ["c1", "c3"]},
		{"id": "a2", "name": "库存智能体", "ownedElements": ["c2"]}
	]}`
	gen.responses[TemplateOptimizeAgents] = `{"agents": [
		{"id": "a1", "name": "订单智能体", "purpose": "处理订单全流程", "ownedElements": ["c1", "c3"]},
		{"id": "a2", "name": "库存智能体", "ownedElements": ["c2"]}
	], "actions": [{"type": "keep", "agentId": "a1"}, {"type": "keep", "agentId": "a2"}]}`
	gen.responses[TemplateAssignPatterns] = `{"patterns": [
		{"agentId": "a1", "pattern": "executor", "autonomyLevel": "semi_autonomous", "riskAppetite": "low",
		 "triggerEvents": ["order.created"], "outputEvents": ["order.fulfilled"]},
		{"agentId": "a2", "pattern": "monitor"}
	]}`
	gen.responses[TemplateDefineSkills] = `{"skillSets": [
		{"agentId": "a1", "skills": [
			{"name": "受理订单", "inputSchema": {"type": "object"}, "outputSchema": {"type": "object"}},
			{"name": "退款处理"}
		]}
	]}`
	gen.responses[TemplateGenerateFlow] = `{"xml": "<definitions></definitions>"}`
	gen.responses[TemplateSuggestRelationships] = `{"relationships": [
		{"sourceAgentId": "a1", "targetAgentId": "a2", "messageType": "库存预占"}
	]}`
	gen.responses[TemplateSuggestIntegrations] = `{"integrations": [
		{"agentId": "a2", "systemName": "WMS", "direction": "outbound"}
	]}`
	return gen
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, newMockGenerator())

	t.Run("创建并查询", func(t *testing.T) {
		created, err := svc.CreateSession(ctx, &CreateSessionRequest{TenantID: "tenant-a", Name: "电商组织"})
		require.NoError(t, err)
		assert.NotEmpty(t, created.ID)
		assert.Equal(t, StatusDraft, created.Status)
		assert.Equal(t, StepNone, created.CurrentStep)

		got, err := svc.GetSession(ctx, "tenant-a", created.ID)
		require.NoError(t, err)
		assert.Equal(t, "电商组织", got.Name)
	})

	t.Run("跨租户不可见", func(t *testing.T) {
		created, err := svc.CreateSession(ctx, &CreateSessionRequest{TenantID: "tenant-a", Name: "会话"})
		require.NoError(t, err)

		_, err = svc.GetSession(ctx, "tenant-b", created.ID)
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("不存在的会话", func(t *testing.T) {
		_, err := svc.GetSession(ctx, "tenant-a", "00000000-0000-0000-0000-000000000000")
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("分页列表", func(t *testing.T) {
		sessions, total, err := svc.ListSessions(ctx, "tenant-a", 1, 10)
		require.NoError(t, err)
		assert.True(t, total >= 2)
		assert.NotEmpty(t, sessions)
	})
}

func TestStagePrerequisites(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, fullPipelineGenerator())

	session, err := svc.CreateSession(ctx, &CreateSessionRequest{TenantID: "tenant-a", Name: "会话"})
	require.NoError(t, err)

	t.Run("跳步执行被拒绝", func(t *testing.T) {
		_, err := svc.RunPropose(ctx, "tenant-a", session.ID, ProposeInput{})
		assert.ErrorIs(t, err, ErrPrerequisiteNotMet)

		// 被拒绝的调用不得改动会话
		got, err := svc.GetSession(ctx, "tenant-a", session.ID)
		require.NoError(t, err)
		assert.Equal(t, StepNone, got.CurrentStep)
		assert.Nil(t, got.StageData.Step3)
	})

	t.Run("顺序执行通过", func(t *testing.T) {
		result, err := svc.RunExtract(ctx, "tenant-a", session.ID, ExtractInput{Text: "电商组织描述"})
		require.NoError(t, err)
		require.True(t, result.Success)

		got, _ := svc.GetSession(ctx, "tenant-a", session.ID)
		assert.Equal(t, StepExtract, got.CurrentStep)
		require.NotNil(t, got.StageData.Step1)
		assert.Len(t, got.StageData.Step1.Capabilities, 3)
	})

	t.Run("第6步在完成第4步后即可执行", func(t *testing.T) {
		_, err := svc.RunClassify(ctx, "tenant-a", session.ID, ClassifyInput{})
		require.NoError(t, err)
		_, err = svc.RunPropose(ctx, "tenant-a", session.ID, ProposeInput{})
		require.NoError(t, err)
		_, err = svc.RunPatterns(ctx, "tenant-a", session.ID)
		require.NoError(t, err)

		// 跳过第 5 步（流程生成是可选的）
		result, err := svc.RunLinks(ctx, "tenant-a", session.ID, LinksInput{})
		require.NoError(t, err)
		require.True(t, result.Success)

		got, _ := svc.GetSession(ctx, "tenant-a", session.ID)
		assert.Equal(t, StepLinks, got.CurrentStep)
		assert.Nil(t, got.StageData.Step5)
		require.NotNil(t, got.StageData.Step6)
	})
}

func TestCounterMonotonicAndMergeIsolation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, fullPipelineGenerator())

	session, err := svc.CreateSession(ctx, &CreateSessionRequest{TenantID: "tenant-a", Name: "会话"})
	require.NoError(t, err)

	_, err = svc.RunExtract(ctx, "tenant-a", session.ID, ExtractInput{Text: "描述"})
	require.NoError(t, err)
	_, err = svc.RunClassify(ctx, "tenant-a", session.ID, ClassifyInput{})
	require.NoError(t, err)
	_, err = svc.RunPropose(ctx, "tenant-a", session.ID, ProposeInput{})
	require.NoError(t, err)

	before, _ := svc.GetSession(ctx, "tenant-a", session.ID)
	require.Equal(t, StepPropose, before.CurrentStep)
	require.Equal(t, StatusAnalyzed, before.Status)
	require.NotNil(t, before.StageData.Step3)

	// 重跑第 1 步：进度不回退，后续阶段产物原样保留
	_, err = svc.RunExtract(ctx, "tenant-a", session.ID, ExtractInput{Text: "更新后的描述"})
	require.NoError(t, err)

	after, _ := svc.GetSession(ctx, "tenant-a", session.ID)
	assert.Equal(t, StepPropose, after.CurrentStep, "进度只增不减")
	assert.Equal(t, StatusAnalyzed, after.Status)
	require.NotNil(t, after.StageData.Step2, "重跑早期阶段不得抹掉其他阶段产物")
	require.NotNil(t, after.StageData.Step3)
	assert.Len(t, after.StageData.Step3.Agents, 2)
}

func TestStageFailureLeavesSessionUntouched(t *testing.T) {
	ctx := context.Background()
	gen := fullPipelineGenerator()
	gen.errors[TemplateClassifyElements] = fmt.Errorf("provider down")
	svc, _ := newTestService(t, gen)

	session, err := svc.CreateSession(ctx, &CreateSessionRequest{TenantID: "tenant-a", Name: "会话"})
	require.NoError(t, err)
	_, err = svc.RunExtract(ctx, "tenant-a", session.ID, ExtractInput{Text: "描述"})
	require.NoError(t, err)

	result, err := svc.RunClassify(ctx, "tenant-a", session.ID, ClassifyInput{})
	require.NoError(t, err, "阶段失败不是编排错误")
	require.False(t, result.Success)
	assert.Contains(t, result.Error, "provider down")

	got, _ := svc.GetSession(ctx, "tenant-a", session.ID)
	assert.Equal(t, StepExtract, got.CurrentStep)
	assert.Nil(t, got.StageData.Step2)
}

func TestOptimizeDegradationStillAdvances(t *testing.T) {
	ctx := context.Background()
	gen := fullPipelineGenerator()
	gen.errors[TemplateOptimizeAgents] = fmt.Errorf("optimize timeout")
	svc, _ := newTestService(t, gen)

	session, err := svc.CreateSession(ctx, &CreateSessionRequest{TenantID: "tenant-a", Name: "会话"})
	require.NoError(t, err)
	_, err = svc.RunExtract(ctx, "tenant-a", session.ID, ExtractInput{Text: "描述"})
	require.NoError(t, err)
	_, err = svc.RunClassify(ctx, "tenant-a", session.ID, ClassifyInput{})
	require.NoError(t, err)

	result, err := svc.RunPropose(ctx, "tenant-a", session.ID, ProposeInput{})
	require.NoError(t, err)
	require.True(t, result.Success, "优化降级不影响阶段成功")
	assert.False(t, result.Data.Optimized)

	got, _ := svc.GetSession(ctx, "tenant-a", session.ID)
	assert.Equal(t, StepPropose, got.CurrentStep)
	assert.Equal(t, StatusAnalyzed, got.Status)
	require.NotNil(t, got.StageData.Step3)
	assert.NotEmpty(t, got.StageData.Step3.OptimizeError)
}

func TestFlowMergeReplacesOnlyKeyedEntry(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, fullPipelineGenerator())

	session, err := svc.CreateSession(ctx, &CreateSessionRequest{TenantID: "tenant-a", Name: "会话"})
	require.NoError(t, err)
	_, err = svc.RunExtract(ctx, "tenant-a", session.ID, ExtractInput{Text: "描述"})
	require.NoError(t, err)
	_, err = svc.RunClassify(ctx, "tenant-a", session.ID, ClassifyInput{})
	require.NoError(t, err)
	_, err = svc.RunPropose(ctx, "tenant-a", session.ID, ProposeInput{})
	require.NoError(t, err)
	_, err = svc.RunPatterns(ctx, "tenant-a", session.ID)
	require.NoError(t, err)

	_, err = svc.RunFlow(ctx, "tenant-a", session.ID, FlowInput{ElementID: "c1", ProcessName: "订单处理"})
	require.NoError(t, err)
	_, err = svc.RunFlow(ctx, "tenant-a", session.ID, FlowInput{ElementID: "c3", ProcessName: "售后处理"})
	require.NoError(t, err)

	got, _ := svc.GetSession(ctx, "tenant-a", session.ID)
	require.NotNil(t, got.StageData.Step5)
	require.Len(t, got.StageData.Step5.Flows, 2)
	firstGenerated := got.StageData.Step5.Flows["c3"].GeneratedAt

	// 重新生成 c1：c3 的条目必须原样保留
	_, err = svc.RunFlow(ctx, "tenant-a", session.ID, FlowInput{ElementID: "c1", ProcessName: "订单处理v2"})
	require.NoError(t, err)

	got, _ = svc.GetSession(ctx, "tenant-a", session.ID)
	require.Len(t, got.StageData.Step5.Flows, 2)
	assert.Equal(t, "订单处理v2", got.StageData.Step5.Flows["c1"].ProcessName)
	assert.Equal(t, firstGenerated.Unix(), got.StageData.Step5.Flows["c3"].GeneratedAt.Unix())
}
