// Package consensus 提供QPC共识/挖矿子系统的配置定义
//
// ⚙️ **共识配置 (Consensus Configuration)**
//
// 本文件定义PoW核心子系统的全部运行参数，采用分层结构：
// - POWConfig: 谜题与难度控制参数（全网必须一致的共识关键参数）
// - MinerConfig: 生产者/重建触发参数（单节点本地策略）
// - NetworkConfig: 挖矿协调网络参数（连接生命周期与背压）
package consensus

import (
	"fmt"
	"time"
)

// ConsensusOptions 共识配置选项
type ConsensusOptions struct {
	POW     POWConfig     `json:"pow"`     // 谜题与难度参数
	Miner   MinerConfig   `json:"miner"`   // 生产者参数
	Network NetworkConfig `json:"network"` // 挖矿协调网络参数
}

// POWConfig 谜题与难度控制配置
//
// ⚠️ 重要：以下参数参与共识有效性判定，必须在全网一致。
type POWConfig struct {
	// InitialDifficulty 创世初始难度（亦是创世区块记录的工作量）
	InitialDifficulty uint64 `json:"initial_difficulty"`

	// MinDifficulty 难度下界（对难度调整结果夹紧）
	MinDifficulty uint64 `json:"min_difficulty"`

	// TargetBlockTime 目标出块时间
	TargetBlockTime time.Duration `json:"target_block_time"`

	// AdjustmentPeriod 难度调整周期（区块数）
	AdjustmentPeriod uint32 `json:"adjustment_period"`
}

// MinerConfig 生产者角色配置
type MinerConfig struct {
	// MinTxForRebuild 触发交易型重建所需的最少待处理交易数
	MinTxForRebuild uint32 `json:"min_tx_for_rebuild"`

	// MaxRebuildsPerSec 交易型重建的每秒上限（0 表示禁用交易型重建）
	MaxRebuildsPerSec uint32 `json:"max_rebuilds_per_sec"`

	// ResultWaitTimeout 单轮等待挖矿结果的超时时间
	ResultWaitTimeout time.Duration `json:"result_wait_timeout"`

	// LocalWorkers 本地nonce搜索工作器数量（0 表示纯外部挖矿）
	LocalWorkers int `json:"local_workers"`
}

// NetworkConfig 挖矿协调网络配置
type NetworkConfig struct {
	// ListenAddresses 服务端形态的监听multiaddr列表
	ListenAddresses []string `json:"listen_addresses"`

	// MinerAddr 客户端形态下外部矿工的multiaddr（为空则不启用客户端形态）
	MinerAddr string `json:"miner_addr"`

	// KeepAliveInterval 保活探测间隔
	KeepAliveInterval time.Duration `json:"keep_alive_interval"`

	// IdleTimeout 连接空闲超时（独立于保活与退避，仅作用于已建立连接）
	IdleTimeout time.Duration `json:"idle_timeout"`

	// ReconnectBaseDelay 重连退避起始间隔
	ReconnectBaseDelay time.Duration `json:"reconnect_base_delay"`

	// ReconnectMaxDelay 重连退避上限
	ReconnectMaxDelay time.Duration `json:"reconnect_max_delay"`

	// JobQueueSize 每矿工出站任务队列容量（队列满时该矿工错过本次广播）
	JobQueueSize int `json:"job_queue_size"`

	// ResultQueueSize 共享结果通道容量
	ResultQueueSize int `json:"result_queue_size"`
}

// New 创建带默认值的共识配置，用户配置逐字段覆盖默认值
func New(user *ConsensusOptions) *ConsensusOptions {
	opts := defaultOptions()
	if user == nil {
		return opts
	}

	// 共识关键参数：仅在用户显式给出非零值时覆盖
	if user.POW.InitialDifficulty != 0 {
		opts.POW.InitialDifficulty = user.POW.InitialDifficulty
	}
	if user.POW.MinDifficulty != 0 {
		opts.POW.MinDifficulty = user.POW.MinDifficulty
	}
	if user.POW.TargetBlockTime != 0 {
		opts.POW.TargetBlockTime = user.POW.TargetBlockTime
	}
	if user.POW.AdjustmentPeriod != 0 {
		opts.POW.AdjustmentPeriod = user.POW.AdjustmentPeriod
	}

	if user.Miner.MinTxForRebuild != 0 {
		opts.Miner.MinTxForRebuild = user.Miner.MinTxForRebuild
	}
	if user.Miner.MaxRebuildsPerSec != 0 {
		opts.Miner.MaxRebuildsPerSec = user.Miner.MaxRebuildsPerSec
	}
	if user.Miner.ResultWaitTimeout != 0 {
		opts.Miner.ResultWaitTimeout = user.Miner.ResultWaitTimeout
	}
	if user.Miner.LocalWorkers != 0 {
		opts.Miner.LocalWorkers = user.Miner.LocalWorkers
	}

	if len(user.Network.ListenAddresses) > 0 {
		opts.Network.ListenAddresses = user.Network.ListenAddresses
	}
	if user.Network.MinerAddr != "" {
		opts.Network.MinerAddr = user.Network.MinerAddr
	}
	if user.Network.KeepAliveInterval != 0 {
		opts.Network.KeepAliveInterval = user.Network.KeepAliveInterval
	}
	if user.Network.IdleTimeout != 0 {
		opts.Network.IdleTimeout = user.Network.IdleTimeout
	}
	if user.Network.ReconnectBaseDelay != 0 {
		opts.Network.ReconnectBaseDelay = user.Network.ReconnectBaseDelay
	}
	if user.Network.ReconnectMaxDelay != 0 {
		opts.Network.ReconnectMaxDelay = user.Network.ReconnectMaxDelay
	}
	if user.Network.JobQueueSize != 0 {
		opts.Network.JobQueueSize = user.Network.JobQueueSize
	}
	if user.Network.ResultQueueSize != 0 {
		opts.Network.ResultQueueSize = user.Network.ResultQueueSize
	}

	return opts
}

// defaultOptions 返回默认共识配置
func defaultOptions() *ConsensusOptions {
	return &ConsensusOptions{
		POW: POWConfig{
			InitialDifficulty: 1 << 20,
			MinDifficulty:     1,
			TargetBlockTime:   20 * time.Second,
			AdjustmentPeriod:  10,
		},
		Miner: MinerConfig{
			MinTxForRebuild:   5,
			MaxRebuildsPerSec: 5,
			ResultWaitTimeout: 2 * time.Second,
			LocalWorkers:      1,
		},
		Network: NetworkConfig{
			ListenAddresses:    []string{"/ip4/0.0.0.0/tcp/30343"},
			MinerAddr:          "",
			KeepAliveInterval:  10 * time.Second,
			IdleTimeout:        60 * time.Second,
			ReconnectBaseDelay: 1 * time.Second,
			ReconnectMaxDelay:  30 * time.Second,
			JobQueueSize:       16,
			ResultQueueSize:    64,
		},
	}
}

// Validate 校验配置参数的合理性
func (o *ConsensusOptions) Validate() error {
	if o.POW.InitialDifficulty == 0 {
		return fmt.Errorf("初始难度不能为零")
	}
	if o.POW.MinDifficulty == 0 {
		return fmt.Errorf("最小难度不能为零")
	}
	if o.POW.TargetBlockTime <= 0 {
		return fmt.Errorf("目标出块时间必须为正: %v", o.POW.TargetBlockTime)
	}
	if o.POW.AdjustmentPeriod == 0 {
		return fmt.Errorf("难度调整周期不能为零")
	}
	if o.Network.IdleTimeout <= o.Network.KeepAliveInterval {
		return fmt.Errorf("空闲超时(%v)必须大于保活间隔(%v)",
			o.Network.IdleTimeout, o.Network.KeepAliveInterval)
	}
	if o.Network.ReconnectMaxDelay < o.Network.ReconnectBaseDelay {
		return fmt.Errorf("重连退避上限(%v)不能小于起始间隔(%v)",
			o.Network.ReconnectMaxDelay, o.Network.ReconnectBaseDelay)
	}
	return nil
}
