// Package trigger 提供候选区块的重建触发器
//
// ⏱️ **重建触发器 (Rebuild Trigger)**
//
// 生产者不轮询链状态，而是被本触发器驱动。三类触发原因：
// - Initial:         启动后立即触发一次，引导首个候选区块
// - BlockImported:   新的最佳区块导入，无条件触发并复位交易限流
// - NewTransactions: 待处理交易累计达到阈值，受每秒上限限流
//
// 📋 **限流规则**（仅作用于交易型触发）：
// - 交易计数达到阈值且距上次重建已超过最小间隔时立即触发
// - 间隔未到时挂一个一次性定时器，到点后若计数仍达标则触发
// - 区块导入型触发复位交易计数与限流窗口
package trigger

import (
	"sync"
	"time"

	consensusconfig "github.com/qpchain/v1/internal/config/consensus"
	"github.com/qpchain/v1/internal/core/infrastructure/event"
	"github.com/qpchain/v1/internal/core/infrastructure/metrics"
	clockiface "github.com/qpchain/v1/pkg/interfaces/infrastructure/clock"
	logiface "github.com/qpchain/v1/pkg/interfaces/infrastructure/log"
	"github.com/qpchain/v1/pkg/types"
)

// Trigger 重建触发器
type Trigger struct {
	cfg     consensusconfig.MinerConfig
	bus     event.Bus
	clock   clockiface.Clock
	logger  logiface.Logger
	metrics *metrics.Metrics

	out chan types.RebuildReason

	mu          sync.Mutex
	pendingTx   uint32
	lastRebuild time.Time
	timer       *time.Timer
	started     bool
	stopped     bool
}

// New 创建重建触发器
func New(cfg consensusconfig.MinerConfig, bus event.Bus, clock clockiface.Clock, logger logiface.Logger, m *metrics.Metrics) *Trigger {
	if m == nil {
		m = metrics.NewNop()
	}
	return &Trigger{
		cfg:     cfg,
		bus:     bus,
		clock:   clock,
		logger:  logger,
		metrics: m,
		out:     make(chan types.RebuildReason, 4),
	}
}

// Triggers 返回触发信号通道
func (t *Trigger) Triggers() <-chan types.RebuildReason {
	return t.out
}

// Start 订阅事件源并发出引导触发
func (t *Trigger) Start() error {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return nil
	}
	t.started = true
	t.mu.Unlock()

	if err := t.bus.Subscribe(event.TopicBlockImported, t.onBlockImported); err != nil {
		return err
	}
	if err := t.bus.Subscribe(event.TopicTransactionArrived, t.onTransactionArrived); err != nil {
		return err
	}

	t.emit(types.RebuildInitial)
	return nil
}

// Stop 取消订阅并停止挂起的定时器
func (t *Trigger) Stop() {
	t.mu.Lock()
	t.stopped = true
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.mu.Unlock()

	_ = t.bus.Unsubscribe(event.TopicBlockImported, t.onBlockImported)
	_ = t.bus.Unsubscribe(event.TopicTransactionArrived, t.onTransactionArrived)
}

// onBlockImported 区块导入事件：无条件触发并复位交易限流
func (t *Trigger) onBlockImported() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.pendingTx = 0
	t.lastRebuild = t.clock.Now()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.mu.Unlock()

	t.emit(types.RebuildBlockImported)
}

// onTransactionArrived 交易到达事件：计数、限流、必要时挂定时器
func (t *Trigger) onTransactionArrived() {
	if t.cfg.MaxRebuildsPerSec == 0 {
		return
	}

	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}

	t.pendingTx++
	if t.pendingTx < t.cfg.MinTxForRebuild {
		t.mu.Unlock()
		return
	}

	interval := t.rebuildInterval()
	elapsed := t.clock.Now().Sub(t.lastRebuild)

	if t.lastRebuild.IsZero() || elapsed >= interval {
		t.fireTxLocked()
		t.mu.Unlock()
		t.emit(types.RebuildNewTransactions)
		return
	}

	// 间隔未到：挂一次性定时器，到点后复查
	if t.timer == nil {
		remaining := interval - elapsed
		t.timer = time.AfterFunc(remaining, t.onTimerFired)
	}
	t.mu.Unlock()
}

// onTimerFired 限流定时器到点：计数仍达标则触发
func (t *Trigger) onTimerFired() {
	t.mu.Lock()
	t.timer = nil
	if t.stopped || t.pendingTx < t.cfg.MinTxForRebuild {
		t.mu.Unlock()
		return
	}
	t.fireTxLocked()
	t.mu.Unlock()

	t.emit(types.RebuildNewTransactions)
}

// fireTxLocked 记录一次交易型触发（须持锁调用）
func (t *Trigger) fireTxLocked() {
	t.pendingTx = 0
	t.lastRebuild = t.clock.Now()
}

// rebuildInterval 由每秒上限换算出最小重建间隔
func (t *Trigger) rebuildInterval() time.Duration {
	return time.Second / time.Duration(t.cfg.MaxRebuildsPerSec)
}

// emit 发出触发信号（非阻塞；信号挤压时合并）
func (t *Trigger) emit(reason types.RebuildReason) {
	t.metrics.RebuildsTotal.WithLabelValues(reason.String()).Inc()

	select {
	case t.out <- reason:
	default:
		// 生产者尚未消费先前信号，重建会看到最新链状态，合并无害
		if t.logger != nil {
			t.logger.Debugf("重建信号积压，合并 %s 触发", reason)
		}
	}
}
