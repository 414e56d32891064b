// Package clock 提供时间源的配置定义
package clock

import "time"

// Config 时间源配置
type Config struct {
	// NTPServer NTP对时服务器地址，为空时使用本机时钟
	NTPServer string `json:"ntp_server"`

	// RefreshInterval NTP偏移刷新间隔
	RefreshInterval time.Duration `json:"refresh_interval"`
}

// New 创建带默认值的时间源配置
func New(user *Config) *Config {
	cfg := &Config{
		NTPServer:       "",
		RefreshInterval: 10 * time.Minute,
	}
	if user == nil {
		return cfg
	}
	if user.NTPServer != "" {
		cfg.NTPServer = user.NTPServer
	}
	if user.RefreshInterval != 0 {
		cfg.RefreshInterval = user.RefreshInterval
	}
	return cfg
}
