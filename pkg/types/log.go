// Package types 提供QPC系统的日志级别类型定义
package types

// LogLevel 日志级别类型
type LogLevel string

// 标准日志级别常量
const (
	DebugLevel LogLevel = "debug"
	InfoLevel  LogLevel = "info"
	WarnLevel  LogLevel = "warn"
	ErrorLevel LogLevel = "error"
	FatalLevel LogLevel = "fatal"
)

// String 返回日志级别的字符串表示
func (l LogLevel) String() string {
	return string(l)
}
