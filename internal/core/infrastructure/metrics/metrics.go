// Package metrics 提供PoW核心子系统的Prometheus指标
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics PoW核心指标集合
type Metrics struct {
	// RebuildsTotal 重建触发次数（按原因分类）
	RebuildsTotal *prometheus.CounterVec

	// JobsBroadcastTotal 广播的挖矿任务总数
	JobsBroadcastTotal prometheus.Counter

	// ResultsTotal 收到的挖矿结果总数（按状态分类）
	ResultsTotal *prometheus.CounterVec

	// StaleResultsTotal 因任务过期被丢弃的结果总数
	StaleResultsTotal prometheus.Counter

	// ConnectedMiners 当前连接的矿工数
	ConnectedMiners prometheus.Gauge

	// CurrentDifficulty 当前难度
	CurrentDifficulty prometheus.Gauge

	// ReconnectsTotal 客户端形态的重连尝试总数
	ReconnectsTotal prometheus.Counter

	// BlocksSealedTotal 成功封块并提交的区块总数
	BlocksSealedTotal prometheus.Counter
}

// New 创建并注册PoW核心指标
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RebuildsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "qpc",
			Subsystem: "miner",
			Name:      "rebuilds_total",
			Help:      "候选区块重建触发次数",
		}, []string{"reason"}),
		JobsBroadcastTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "qpc",
			Subsystem: "miner",
			Name:      "jobs_broadcast_total",
			Help:      "广播的挖矿任务总数",
		}),
		ResultsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "qpc",
			Subsystem: "miner",
			Name:      "results_total",
			Help:      "收到的挖矿结果总数",
		}, []string{"status"}),
		StaleResultsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "qpc",
			Subsystem: "miner",
			Name:      "stale_results_total",
			Help:      "因任务过期或验证失败被丢弃的结果总数",
		}),
		ConnectedMiners: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "qpc",
			Subsystem: "miner",
			Name:      "connected_miners",
			Help:      "当前连接的矿工数",
		}),
		CurrentDifficulty: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "qpc",
			Subsystem: "consensus",
			Name:      "current_difficulty",
			Help:      "当前难度",
		}),
		ReconnectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "qpc",
			Subsystem: "miner",
			Name:      "reconnects_total",
			Help:      "外部矿工连接的重连尝试总数",
		}),
		BlocksSealedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "qpc",
			Subsystem: "miner",
			Name:      "blocks_sealed_total",
			Help:      "成功封块并提交的区块总数",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.RebuildsTotal,
			m.JobsBroadcastTotal,
			m.ResultsTotal,
			m.StaleResultsTotal,
			m.ConnectedMiners,
			m.CurrentDifficulty,
			m.ReconnectsTotal,
			m.BlocksSealedTotal,
		)
	}
	return m
}

// NewNop 创建不注册到任何Registry的指标集合（测试用）
func NewNop() *Metrics {
	return New(nil)
}
