package wizard

import (
	"context"
	"encoding/json"
	"sync"

	"backend/internal/llm"
	"backend/internal/logger"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

// Generator 生成后端适配器接口
// 一次调用 = 渲染命名模板 + 单次补全 + 结构化校验，失败时做一次宽松恢复，不做重试
type Generator interface {
	Invoke(ctx context.Context, templateName string, input any, out any) (*llm.Usage, error)
}

// Adapter 默认生成后端适配器，基于 llm.Client
type Adapter struct {
	client      llm.Client
	temperature float64
	maxTokens   int

	encOnce sync.Once
	encoder *tiktoken.Tiktoken
}

// NewAdapter 创建适配器
func NewAdapter(client llm.Client) *Adapter {
	return &Adapter{
		client:      client,
		temperature: 0.2, // 结构化抽取用低温度
		maxTokens:   4096,
	}
}

// Invoke 执行一次生成调用并把结构化结果解析进 out
func (a *Adapter) Invoke(ctx context.Context, templateName string, input any, out any) (*llm.Usage, error) {
	tmpl, ok := LookupTemplate(templateName)
	if !ok {
		return nil, &GenerationError{
			Kind:     GenerationErrSchemaMismatch,
			Template: templateName,
			Message:  "未注册的生成模板",
		}
	}

	userMsg, err := tmpl.Render(input)
	if err != nil {
		return nil, &GenerationError{
			Kind:     GenerationErrSchemaMismatch,
			Template: templateName,
			Message:  "模板渲染失败",
			Err:      err,
		}
	}

	resp, err := a.client.ChatCompletion(ctx, &llm.ChatCompletionRequest{
		Messages: []llm.Message{
			{Role: "system", Content: tmpl.System},
			{Role: "user", Content: userMsg},
		},
		Temperature: a.temperature,
		MaxTokens:   a.maxTokens,
	})
	if err != nil {
		return nil, newProviderError(templateName, err)
	}

	usage := resp.Usage
	if usage.TotalTokens == 0 {
		// 部分兼容网关不回传用量，用 tiktoken 估算
		usage = a.estimateUsage(tmpl.System+userMsg, resp.Content)
	}

	if err := a.parseStructured(templateName, resp.Content, out); err != nil {
		return &usage, err
	}
	return &usage, nil
}

// parseStructured 先严格解析，失败后做一次宽松恢复（剥离围栏、截取首个平衡结构）
func (a *Adapter) parseStructured(templateName, content string, out any) error {
	if err := json.Unmarshal([]byte(content), out); err == nil {
		return nil
	}

	cleaned := RepairJSON(content)
	if err := json.Unmarshal([]byte(cleaned), out); err == nil {
		return nil
	}

	fragment, found := ExtractJSON(cleaned)
	if !found {
		return &GenerationError{
			Kind:     GenerationErrNoStructuredContent,
			Template: templateName,
			Message:  "响应中不包含可解析的 JSON 结构",
		}
	}

	if err := json.Unmarshal([]byte(fragment), out); err != nil {
		return &GenerationError{
			Kind:     GenerationErrSchemaMismatch,
			Template: templateName,
			Message:  "响应不满足输出契约",
			Err:      err,
		}
	}

	logger.Debug("生成响应经宽松恢复后解析成功", zap.String("template", templateName))
	return nil
}

// estimateUsage 基于 cl100k_base 估算 Token 用量
func (a *Adapter) estimateUsage(prompt, completion string) llm.Usage {
	a.encOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			logger.Warn("初始化 tiktoken 编码器失败，跳过用量估算", zap.Error(err))
			return
		}
		a.encoder = enc
	})

	if a.encoder == nil {
		return llm.Usage{}
	}

	promptTokens := len(a.encoder.Encode(prompt, nil, nil))
	completionTokens := len(a.encoder.Encode(completion, nil, nil))
	return llm.Usage{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
	}
}
