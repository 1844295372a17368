package wizard

import (
	"errors"
	"fmt"

	"backend/internal/llm"
)

// 流水线状态类错误（请求被拒绝，会话不发生任何变更）
var (
	// ErrSessionNotFound 会话不存在或不属于该租户
	ErrSessionNotFound = errors.New("向导会话不存在")
	// ErrPrerequisiteNotMet 前置阶段未完成，阶段请求被拒绝
	ErrPrerequisiteNotMet = errors.New("前置阶段尚未完成")
	// ErrInvalidState 当前会话状态不允许该操作（如重复落库、无可落库数据）
	ErrInvalidState = errors.New("会话状态不允许该操作")
)

// GenerationErrorKind 生成调用错误分类
type GenerationErrorKind string

const (
	// GenerationErrProvider 传输/认证/限流/超时等提供商侧错误
	GenerationErrProvider GenerationErrorKind = "provider"
	// GenerationErrSchemaMismatch 响应可解析但不满足输出契约
	GenerationErrSchemaMismatch GenerationErrorKind = "schema_mismatch"
	// GenerationErrNoStructuredContent 响应中找不到任何可解析的结构
	GenerationErrNoStructuredContent GenerationErrorKind = "no_structured_content"
)

// GenerationError 生成后端适配层的类型化失败
type GenerationError struct {
	Kind     GenerationErrorKind
	Template string // 触发失败的模板名
	Message  string
	Err      error
}

// Error 实现 error 接口
func (e *GenerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s (%s): %v", e.Kind, e.Message, e.Template, e.Err)
	}
	return fmt.Sprintf("[%s] %s (%s)", e.Kind, e.Message, e.Template)
}

// Unwrap 返回原始错误
func (e *GenerationError) Unwrap() error {
	return e.Err
}

// newProviderError 包装提供商侧错误
func newProviderError(template string, err error) *GenerationError {
	msg := "生成调用失败"
	var ce *llm.ClientError
	if errors.As(err, &ce) {
		msg = "生成调用失败: " + string(ce.Type)
	}
	return &GenerationError{
		Kind:     GenerationErrProvider,
		Template: template,
		Message:  msg,
		Err:      err,
	}
}
