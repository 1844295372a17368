package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"backend/internal/wizard"
	"backend/internal/worker/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// FlowRunner 流程生成执行抽象，便于注入 mock
type FlowRunner interface {
	RunFlow(ctx context.Context, tenantID, sessionID string, input wizard.FlowInput) (*wizard.StepResult[wizard.BPMNFlow], error)
}

type FlowHandler struct {
	runner FlowRunner
	logger *zap.Logger
}

func NewFlowHandler(runner FlowRunner, logger *zap.Logger) *FlowHandler {
	return &FlowHandler{
		runner: runner,
		logger: logger,
	}
}

func (h *FlowHandler) HandleGenerateFlow(ctx context.Context, t *asynq.Task) error {
	var p tasks.GenerateFlowPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("json unmarshal failed: %w", err)
	}

	h.logger.Info("开始执行流程生成任务",
		zap.String("session_id", p.SessionID),
		zap.String("element_id", p.ElementID),
	)

	result, err := h.runner.RunFlow(ctx, p.TenantID, p.SessionID, wizard.FlowInput{
		ElementID:   p.ElementID,
		ProcessName: p.ProcessName,
		Description: p.Description,
		AgentNames:  p.AgentNames,
	})
	if err != nil {
		h.logger.Error("流程生成任务失败",
			zap.String("session_id", p.SessionID),
			zap.String("element_id", p.ElementID),
			zap.Error(err),
		)
		return err
	}
	if !result.Success {
		// 生成失败交给 asynq 重试
		return fmt.Errorf("流程生成失败: %s", result.Error)
	}

	h.logger.Info("流程生成任务完成",
		zap.String("session_id", p.SessionID),
		zap.String("element_id", p.ElementID),
	)
	return nil
}
