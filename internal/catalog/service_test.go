package catalog

import (
	"context"
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupCatalogTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(Models()...))
	return db
}

func seedAgent(t *testing.T, db *gorm.DB, tenantID, name, pattern string) *Agent {
	t.Helper()
	agent := &Agent{
		ID:            uuid.New().String(),
		TenantID:      tenantID,
		Name:          name,
		Purpose:       "测试用途",
		Pattern:       pattern,
		AutonomyLevel: "supervised",
		RiskAppetite:  "medium",
		Capabilities:  []string{"订单受理"},
	}
	require.NoError(t, db.Create(agent).Error)
	return agent
}

func TestListAgents(t *testing.T) {
	ctx := context.Background()
	db := setupCatalogTestDB(t)
	svc := NewService(db)

	seedAgent(t, db, "tenant-a", "订单智能体", "executor")
	seedAgent(t, db, "tenant-a", "库存智能体", "monitor")
	seedAgent(t, db, "tenant-b", "别家的智能体", "specialist")

	t.Run("租户隔离", func(t *testing.T) {
		agents, total, err := svc.List(ctx, ListQuery{TenantID: "tenant-a"})
		require.NoError(t, err)
		assert.EqualValues(t, 2, total)
		assert.Len(t, agents, 2)
	})

	t.Run("按模式过滤", func(t *testing.T) {
		agents, total, err := svc.List(ctx, ListQuery{TenantID: "tenant-a", Pattern: "monitor"})
		require.NoError(t, err)
		assert.EqualValues(t, 1, total)
		require.Len(t, agents, 1)
		assert.Equal(t, "库存智能体", agents[0].Name)
	})

	t.Run("关键词匹配", func(t *testing.T) {
		agents, _, err := svc.List(ctx, ListQuery{TenantID: "tenant-a", Keyword: "订单"})
		require.NoError(t, err)
		require.Len(t, agents, 1)
		assert.Equal(t, "订单智能体", agents[0].Name)
	})

	t.Run("分页", func(t *testing.T) {
		agents, total, err := svc.List(ctx, ListQuery{TenantID: "tenant-a", Page: 1, PageSize: 1})
		require.NoError(t, err)
		assert.EqualValues(t, 2, total)
		assert.Len(t, agents, 1)
	})
}

func TestGetWithDetails(t *testing.T) {
	ctx := context.Background()
	db := setupCatalogTestDB(t)
	svc := NewService(db)

	agent := seedAgent(t, db, "tenant-a", "订单智能体", "executor")
	other := seedAgent(t, db, "tenant-a", "库存智能体", "monitor")

	require.NoError(t, db.Create(&AgentSkill{
		ID: uuid.New().String(), TenantID: "tenant-a", AgentID: agent.ID,
		Name: "受理订单",
	}).Error)
	require.NoError(t, db.Create(&AgentRelationship{
		ID: uuid.New().String(), TenantID: "tenant-a",
		SourceAgentID: agent.ID, TargetAgentID: other.ID,
		MessageType: "库存预占",
	}).Error)
	require.NoError(t, db.Create(&AgentIntegration{
		ID: uuid.New().String(), TenantID: "tenant-a", AgentID: agent.ID,
		SystemName: "ERP", Direction: "outbound",
	}).Error)
	require.NoError(t, db.Create(&AgentProcessFlow{
		ID: uuid.New().String(), TenantID: "tenant-a", AgentID: agent.ID,
		ElementID: "c1", ProcessName: "订单处理", BPMNXml: "<definitions/>",
	}).Error)

	t.Run("聚合全部关联记录", func(t *testing.T) {
		detail, err := svc.GetWithDetails(ctx, "tenant-a", agent.ID)
		require.NoError(t, err)
		assert.Equal(t, "订单智能体", detail.Agent.Name)
		assert.Len(t, detail.Skills, 1)
		assert.Len(t, detail.Relationships, 1)
		assert.Len(t, detail.Integrations, 1)
		assert.Len(t, detail.Flows, 1)
	})

	t.Run("关系对双方都可见", func(t *testing.T) {
		detail, err := svc.GetWithDetails(ctx, "tenant-a", other.ID)
		require.NoError(t, err)
		assert.Len(t, detail.Relationships, 1)
	})

	t.Run("跨租户不可见", func(t *testing.T) {
		_, err := svc.GetWithDetails(ctx, "tenant-b", agent.ID)
		assert.ErrorIs(t, err, ErrAgentNotFound)
	})
}
