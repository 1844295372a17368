package openai

import (
	"context"
	"strings"
	"time"

	"backend/internal/llm"

	openai "github.com/sashabaranov/go-openai"
)

func init() {
	llm.RegisterProvider("openai", func(cfg *llm.ClientConfig) (llm.Client, error) {
		return NewClient(cfg)
	})
}

// Client OpenAI 兼容接口客户端适配器
// 凡是暴露 OpenAI 风格 /chat/completions 的服务（含自建网关）均可通过 BaseURL 接入
type Client struct {
	client     *openai.Client
	modelID    string
	maxRetries int
	timeout    time.Duration
}

// NewClient 创建 OpenAI 客户端
func NewClient(config *llm.ClientConfig) (*Client, error) {
	if config.APIKey == "" {
		return nil, &llm.ClientError{
			Type:    llm.ErrorTypeAuth,
			Message: "OpenAI API Key 不能为空",
		}
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	if config.OrgID != "" {
		clientConfig.OrgID = config.OrgID
	}

	maxRetries := config.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}

	timeout := time.Duration(config.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 90 * time.Second
	}

	return &Client{
		client:     openai.NewClientWithConfig(clientConfig),
		modelID:    config.Model,
		maxRetries: maxRetries,
		timeout:    timeout,
	}, nil
}

// ChatCompletion 对话补全（非流式）
func (c *Client) ChatCompletion(ctx context.Context, req *llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error) {
	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, msg := range req.Messages {
		messages[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	openaiReq := openai.ChatCompletionRequest{
		Model:       c.modelID,
		Messages:    messages,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
		TopP:        float32(req.TopP),
	}

	// 单次调用超时由客户端统一施加，上层不做重试
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	// 调用 API（传输层错误带指数退避重试）
	var resp openai.ChatCompletionResponse
	var err error
	for i := 0; i <= c.maxRetries; i++ {
		resp, err = c.client.CreateChatCompletion(callCtx, openaiReq)
		if err == nil {
			break
		}

		if !isRetryableError(err) {
			break
		}

		if i < c.maxRetries {
			backoff := time.Duration(1<<uint(i)) * time.Second
			select {
			case <-callCtx.Done():
				return nil, wrapError(callCtx.Err())
			case <-time.After(backoff):
			}
		}
	}

	if err != nil {
		return nil, wrapError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, &llm.ClientError{
			Type:    llm.ErrorTypeServerError,
			Message: "API 返回空响应",
		}
	}

	return &llm.ChatCompletionResponse{
		ID:      resp.ID,
		Model:   resp.Model,
		Content: resp.Choices[0].Message.Content,
		Usage: llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

// Name 返回客户端名称
func (c *Client) Name() string {
	return "openai"
}

// Close 关闭客户端
func (c *Client) Close() error {
	// OpenAI 客户端无需显式关闭
	return nil
}

// isRetryableError 判断错误是否可重试
func isRetryableError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "connection") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "500") ||
		strings.Contains(msg, "502") ||
		strings.Contains(msg, "503") ||
		strings.Contains(msg, "504")
}

// wrapError 包装错误并归类
func wrapError(err error) *llm.ClientError {
	msg := strings.ToLower(err.Error())

	var errType llm.ErrorType
	switch {
	case strings.Contains(msg, "401") || strings.Contains(msg, "403"):
		errType = llm.ErrorTypeAuth
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "429"):
		errType = llm.ErrorTypeRateLimit
	case strings.Contains(msg, "400") || strings.Contains(msg, "invalid"):
		errType = llm.ErrorTypeInvalidParams
	case strings.Contains(msg, "500") || strings.Contains(msg, "502") || strings.Contains(msg, "503"):
		errType = llm.ErrorTypeServerError
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline") || strings.Contains(msg, "connection"):
		errType = llm.ErrorTypeNetwork
	default:
		errType = llm.ErrorTypeUnknown
	}

	return &llm.ClientError{
		Type:    errType,
		Message: "OpenAI API 错误",
		Err:     err,
	}
}
