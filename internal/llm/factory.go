package llm

import "fmt"

// builders 各提供商的构造函数注册表
// 提供商子包在 init 中注册自身，使用方通过空白导入引入（见 cmd/server）
var builders = map[string]func(*ClientConfig) (Client, error){}

// RegisterProvider 注册一个提供商构造函数
func RegisterProvider(name string, build func(*ClientConfig) (Client, error)) {
	builders[name] = build
}

// NewFromConfig 根据配置创建客户端
func NewFromConfig(cfg *ClientConfig) (Client, error) {
	provider := cfg.Provider
	if provider == "" {
		provider = "openai"
	}

	build, ok := builders[provider]
	if !ok {
		return nil, fmt.Errorf("不支持的模型提供商: %s", provider)
	}
	return build(cfg)
}
