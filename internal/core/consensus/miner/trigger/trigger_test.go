package trigger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	consensusconfig "github.com/qpchain/v1/internal/config/consensus"
	"github.com/qpchain/v1/internal/core/infrastructure/clock"
	"github.com/qpchain/v1/internal/core/infrastructure/event"
	"github.com/qpchain/v1/pkg/types"
)

// testMinerConfig 阈值5、每秒最多5次交易型重建（200ms窗口）
func testMinerConfig() consensusconfig.MinerConfig {
	return consensusconfig.MinerConfig{
		MinTxForRebuild:   5,
		MaxRebuildsPerSec: 5,
	}
}

// newTestTrigger 创建已启动的触发器并吸掉引导触发
func newTestTrigger(t *testing.T, cfg consensusconfig.MinerConfig) (*Trigger, event.Bus) {
	t.Helper()
	bus := event.New()
	tr := New(cfg, bus, clock.NewSystemClock(), nil, nil)
	require.NoError(t, tr.Start())
	t.Cleanup(tr.Stop)

	expectTrigger(t, tr, types.RebuildInitial)
	return tr, bus
}

// expectTrigger 等待并断言下一个触发原因
func expectTrigger(t *testing.T, tr *Trigger, want types.RebuildReason) {
	t.Helper()
	select {
	case got := <-tr.Triggers():
		require.Equal(t, want, got, "触发原因不符")
	case <-time.After(2 * time.Second):
		t.Fatalf("等待 %s 触发超时", want)
	}
}

// expectNoTrigger 断言指定时长内没有触发
func expectNoTrigger(t *testing.T, tr *Trigger, within time.Duration) {
	t.Helper()
	select {
	case got := <-tr.Triggers():
		t.Fatalf("不应有触发，却收到 %s", got)
	case <-time.After(within):
	}
}

// TestTrigger_Start_FiresInitialExactlyOnce 验证启动引导触发恰好一次
func TestTrigger_Start_FiresInitialExactlyOnce(t *testing.T) {
	// Arrange
	bus := event.New()
	tr := New(testMinerConfig(), bus, clock.NewSystemClock(), nil, nil)
	defer tr.Stop()

	// Act
	require.NoError(t, tr.Start())
	require.NoError(t, tr.Start(), "重复Start应为幂等空操作")

	// Assert
	expectTrigger(t, tr, types.RebuildInitial)
	expectNoTrigger(t, tr, 50*time.Millisecond)
}

// TestTrigger_OnBlockImported_AlwaysFires 验证区块导入无条件触发
func TestTrigger_OnBlockImported_AlwaysFires(t *testing.T) {
	// Arrange
	tr, bus := newTestTrigger(t, testMinerConfig())

	// Act & Assert：连续导入每次都触发，不受交易限流影响
	for i := 0; i < 3; i++ {
		bus.Publish(event.TopicBlockImported)
		expectTrigger(t, tr, types.RebuildBlockImported)
	}
}

// TestTrigger_OnTransactions_BelowThreshold_DoesNotFire 验证阈值以下不触发
func TestTrigger_OnTransactions_BelowThreshold_DoesNotFire(t *testing.T) {
	// Arrange
	tr, bus := newTestTrigger(t, testMinerConfig())

	// Act：4笔交易，低于阈值5
	for i := 0; i < 4; i++ {
		bus.Publish(event.TopicTransactionArrived)
	}

	// Assert
	expectNoTrigger(t, tr, 300*time.Millisecond)
}

// TestTrigger_OnTransactions_AtThreshold_FiresOnce 验证达到阈值触发一次
func TestTrigger_OnTransactions_AtThreshold_FiresOnce(t *testing.T) {
	// Arrange
	tr, bus := newTestTrigger(t, testMinerConfig())

	// Act
	for i := 0; i < 5; i++ {
		bus.Publish(event.TopicTransactionArrived)
	}

	// Assert
	expectTrigger(t, tr, types.RebuildNewTransactions)
	expectNoTrigger(t, tr, 50*time.Millisecond)
}

// TestTrigger_OnTransactionBurst_IsRateLimited 验证交易洪峰被限流
//
// 洪峰远超阈值时，一个限流窗口内至多一次立即触发；后续触发经由
// 一次性定时器延迟到窗口边界。
func TestTrigger_OnTransactionBurst_IsRateLimited(t *testing.T) {
	// Arrange
	tr, bus := newTestTrigger(t, testMinerConfig())

	// Act：短时间内灌入1000笔交易
	for i := 0; i < 1000; i++ {
		bus.Publish(event.TopicTransactionArrived)
	}

	// Assert：立即触发恰好一次
	expectTrigger(t, tr, types.RebuildNewTransactions)
	expectNoTrigger(t, tr, 100*time.Millisecond)

	// 定时器在200ms窗口边界补一次触发（剩余计数仍达标）
	expectTrigger(t, tr, types.RebuildNewTransactions)
}

// TestTrigger_OnBlockImported_ResetsTxLimiter 验证区块导入复位交易限流
func TestTrigger_OnBlockImported_ResetsTxLimiter(t *testing.T) {
	// Arrange
	tr, bus := newTestTrigger(t, testMinerConfig())

	// 灌满交易触发一次并挂起定时器
	for i := 0; i < 20; i++ {
		bus.Publish(event.TopicTransactionArrived)
	}
	expectTrigger(t, tr, types.RebuildNewTransactions)

	// Act：区块导入复位计数与窗口
	bus.Publish(event.TopicBlockImported)
	expectTrigger(t, tr, types.RebuildBlockImported)

	// Assert：先前积压的交易计数已清零，窗口边界不再补触发
	expectNoTrigger(t, tr, 300*time.Millisecond)
}

// TestTrigger_WithZeroMaxRebuilds_DisablesTxTrigger 验证每秒上限为0禁用交易型触发
func TestTrigger_WithZeroMaxRebuilds_DisablesTxTrigger(t *testing.T) {
	// Arrange
	cfg := testMinerConfig()
	cfg.MaxRebuildsPerSec = 0
	tr, bus := newTestTrigger(t, cfg)

	// Act
	for i := 0; i < 100; i++ {
		bus.Publish(event.TopicTransactionArrived)
	}

	// Assert
	expectNoTrigger(t, tr, 300*time.Millisecond)

	// 区块导入型触发不受影响
	bus.Publish(event.TopicBlockImported)
	expectTrigger(t, tr, types.RebuildBlockImported)
}

// TestTrigger_Stop_SilencesAllSources 验证停止后不再触发
func TestTrigger_Stop_SilencesAllSources(t *testing.T) {
	// Arrange
	tr, bus := newTestTrigger(t, testMinerConfig())

	// Act
	tr.Stop()
	bus.Publish(event.TopicBlockImported)
	for i := 0; i < 10; i++ {
		bus.Publish(event.TopicTransactionArrived)
	}

	// Assert
	expectNoTrigger(t, tr, 300*time.Millisecond)
}
