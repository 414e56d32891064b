// Package storage 提供头部存储的配置定义
package storage

// Config 头部存储配置
type Config struct {
	// Path Badger数据目录
	Path string `json:"path"`

	// InMemory 是否使用纯内存模式（测试与一次性运行场景）
	InMemory bool `json:"in_memory"`
}

// New 创建带默认值的存储配置
func New(user *Config) *Config {
	cfg := &Config{
		Path:     "data/headers",
		InMemory: false,
	}
	if user == nil {
		return cfg
	}
	if user.Path != "" {
		cfg.Path = user.Path
	}
	cfg.InMemory = user.InMemory
	return cfg
}
