package wizard

import (
	"time"

	"backend/internal/llm"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stageRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wizard_stage_runs_total",
		Help: "向导阶段执行次数",
	}, []string{"step", "result"})

	stageDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wizard_stage_duration_seconds",
		Help:    "向导阶段耗时",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"step"})

	stageTokensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wizard_stage_tokens_total",
		Help: "向导阶段消耗的 Token 数",
	}, []string{"step", "kind"})

	applyTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wizard_apply_total",
		Help: "会话落库次数",
	}, []string{"result"})
)

// observeStage 上报单次阶段执行的指标
func observeStage(step string, success bool, elapsed time.Duration, usage *llm.Usage) {
	result := "success"
	if !success {
		result = "failure"
	}
	stageRunsTotal.WithLabelValues(step, result).Inc()
	stageDurationSeconds.WithLabelValues(step).Observe(elapsed.Seconds())
	if usage != nil {
		stageTokensTotal.WithLabelValues(step, "prompt").Add(float64(usage.PromptTokens))
		stageTokensTotal.WithLabelValues(step, "completion").Add(float64(usage.CompletionTokens))
	}
}

// observeApply 上报落库结果
func observeApply(success bool) {
	if success {
		applyTotal.WithLabelValues("success").Inc()
	} else {
		applyTotal.WithLabelValues("failure").Inc()
	}
}
