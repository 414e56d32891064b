// Package log 提供日志子系统的配置定义
package log

import "github.com/qpchain/v1/pkg/types"

// Config 日志配置
type Config struct {
	// Level 日志级别（debug/info/warn/error/fatal）
	Level types.LogLevel `json:"level"`

	// Dir 日志文件目录，为空时仅输出到控制台
	Dir string `json:"dir"`

	// Console 是否同时输出到控制台
	Console bool `json:"console"`

	// MaxSizeMB 单个日志文件的最大体积（MB），超过后轮转
	MaxSizeMB int `json:"max_size_mb"`

	// MaxBackups 保留的轮转文件数量
	MaxBackups int `json:"max_backups"`

	// MaxAgeDays 轮转文件的最长保留天数
	MaxAgeDays int `json:"max_age_days"`
}

// New 创建带默认值的日志配置
func New(user *Config) *Config {
	cfg := &Config{
		Level:      types.InfoLevel,
		Dir:        "",
		Console:    true,
		MaxSizeMB:  100,
		MaxBackups: 5,
		MaxAgeDays: 28,
	}
	if user == nil {
		return cfg
	}
	if user.Level != "" {
		cfg.Level = user.Level
	}
	if user.Dir != "" {
		cfg.Dir = user.Dir
	}
	cfg.Console = user.Console || user.Dir == ""
	if user.MaxSizeMB != 0 {
		cfg.MaxSizeMB = user.MaxSizeMB
	}
	if user.MaxBackups != 0 {
		cfg.MaxBackups = user.MaxBackups
	}
	if user.MaxAgeDays != 0 {
		cfg.MaxAgeDays = user.MaxAgeDays
	}
	return cfg
}
