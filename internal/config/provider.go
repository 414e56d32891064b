// Package config 提供QPC系统的统一配置装载与分发
//
// ⚙️ **配置提供者 (Configuration Provider)**
//
// 本文件实现配置的装载与分发，专注于：
// - 文件装载：从JSON配置文件读取用户配置
// - 默认值合并：用户未给出的字段回落到各子模块的默认值
// - 分发接口：各基础设施与业务模块按需获取自己的配置切片
package config

import (
	"encoding/json"
	"fmt"
	"os"

	clockconfig "github.com/qpchain/v1/internal/config/clock"
	consensusconfig "github.com/qpchain/v1/internal/config/consensus"
	logconfig "github.com/qpchain/v1/internal/config/log"
	storageconfig "github.com/qpchain/v1/internal/config/storage"
)

// AppConfig 用户配置文件的顶层结构
type AppConfig struct {
	Log       *logconfig.Config                 `json:"log"`
	Consensus *consensusconfig.ConsensusOptions `json:"consensus"`
	Storage   *storageconfig.Config             `json:"storage"`
	Clock     *clockconfig.Config               `json:"clock"`
}

// Provider 配置提供者
//
// 持有装载后的用户配置，按需为各模块生成"默认值 + 用户覆盖"的
// 最终配置。各Get方法每次返回独立实例，模块间互不影响。
type Provider struct {
	appConfig *AppConfig
}

// NewProvider 创建配置提供者
func NewProvider(appConfig *AppConfig) *Provider {
	return &Provider{appConfig: appConfig}
}

// Load 从JSON文件装载用户配置；path为空时使用纯默认配置
func Load(path string) (*AppConfig, error) {
	if path == "" {
		return &AppConfig{}, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg AppConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	return &cfg, nil
}

// GetLog 获取日志配置
func (p *Provider) GetLog() *logconfig.Config {
	var user *logconfig.Config
	if p.appConfig != nil {
		user = p.appConfig.Log
	}
	return logconfig.New(user)
}

// GetConsensus 获取共识配置
func (p *Provider) GetConsensus() *consensusconfig.ConsensusOptions {
	var user *consensusconfig.ConsensusOptions
	if p.appConfig != nil {
		user = p.appConfig.Consensus
	}
	return consensusconfig.New(user)
}

// GetClock 获取时间源配置
func (p *Provider) GetClock() *clockconfig.Config {
	var user *clockconfig.Config
	if p.appConfig != nil {
		user = p.appConfig.Clock
	}
	return clockconfig.New(user)
}

// GetStorage 获取存储配置
func (p *Provider) GetStorage() *storageconfig.Config {
	var user *storageconfig.Config
	if p.appConfig != nil {
		user = p.appConfig.Storage
	}
	return storageconfig.New(user)
}
