package qpow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qpchain/v1/pkg/types"
)

// testDifficultyConfig 测试用难度参数：目标20秒，每10块调整一次
func testDifficultyConfig() DifficultyConfig {
	return DifficultyConfig{
		TargetBlockTimeMillis: 20_000,
		AdjustmentPeriod:      10,
		MinDifficulty:         1,
	}
}

// runPeriod 以固定间隔连续推进一个调整周期，返回末态与周期内最后一个事件
func runPeriod(state DifficultyState, startMillis, intervalMillis int64, cfg DifficultyConfig) (DifficultyState, *types.DifficultyAdjustedEvent, int64) {
	var last *types.DifficultyAdjustedEvent
	now := startMillis
	for i := uint32(0); i < cfg.AdjustmentPeriod; i++ {
		now += intervalMillis
		var ev *types.DifficultyAdjustedEvent
		state, ev = state.OnBlockFinalized(now, cfg)
		if ev != nil {
			last = ev
		}
	}
	return state, last, now
}

// TestDifficultyState_WithFirstPeriod_SkipsAdjustment 验证首个周期缺少基准时不调整
func TestDifficultyState_WithFirstPeriod_SkipsAdjustment(t *testing.T) {
	// Arrange
	cfg := testDifficultyConfig()
	state := NewDifficultyState(1 << 20)

	// Act：首个周期以极快速度出块，依然不应调整
	state, event, _ := runPeriod(state, 0, 100, cfg)

	// Assert
	assert.Nil(t, event, "首个周期没有先前时间基准，不得产生调整事件")
	assert.Equal(t, uint64(1<<20), state.CurrentDifficulty, "首个周期难度必须保持不变")
	assert.Zero(t, state.BlocksInPeriod, "周期计数应在周期结束时归零")
}

// TestDifficultyState_WithOnTargetBlocks_StaysAtFixedPoint 验证目标速率下的不动点
func TestDifficultyState_WithOnTargetBlocks_StaysAtFixedPoint(t *testing.T) {
	// Arrange
	cfg := testDifficultyConfig()
	state := NewDifficultyState(1 << 20)

	// 先走完引导周期建立时间基准
	state, _, now := runPeriod(state, 0, cfg.TargetBlockTimeMillis, cfg)

	// Act：第二个周期精确按目标间隔出块
	state, event, _ := runPeriod(state, now, cfg.TargetBlockTimeMillis, cfg)

	// Assert
	assert.Nil(t, event, "观测时间等于目标时间时处于不动点，不应产生事件")
	assert.Equal(t, uint64(1<<20), state.CurrentDifficulty)
}

// TestDifficultyState_WithFastBlocks_RaisesDifficulty 验证出块过快时难度上调
func TestDifficultyState_WithFastBlocks_RaisesDifficulty(t *testing.T) {
	// Arrange
	cfg := testDifficultyConfig()
	state := NewDifficultyState(1 << 20)
	state, _, now := runPeriod(state, 0, cfg.TargetBlockTimeMillis, cfg)

	// Act：半速间隔出块
	state, event, _ := runPeriod(state, now, cfg.TargetBlockTimeMillis/2, cfg)

	// Assert
	require.NotNil(t, event, "出块过快必须触发调整事件")
	assert.Equal(t, uint64(1<<20), event.OldDifficulty)
	assert.Greater(t, event.NewDifficulty, event.OldDifficulty, "出块过快时难度必须上调")
	assert.Equal(t, event.NewDifficulty, state.CurrentDifficulty)
	assert.Equal(t, cfg.TargetBlockTimeMillis/2, event.AverageBlockTime)
}

// TestDifficultyState_WithSlowBlocks_LowersDifficulty 验证出块过慢时难度下调
func TestDifficultyState_WithSlowBlocks_LowersDifficulty(t *testing.T) {
	// Arrange
	cfg := testDifficultyConfig()
	state := NewDifficultyState(1 << 20)
	state, _, now := runPeriod(state, 0, cfg.TargetBlockTimeMillis, cfg)

	// Act：双倍间隔出块
	state, event, _ := runPeriod(state, now, cfg.TargetBlockTimeMillis*2, cfg)

	// Assert
	require.NotNil(t, event, "出块过慢必须触发调整事件")
	assert.Less(t, event.NewDifficulty, event.OldDifficulty, "出块过慢时难度必须下调")
	assert.GreaterOrEqual(t, event.NewDifficulty, cfg.MinDifficulty)
	assert.Equal(t, event.NewDifficulty, state.CurrentDifficulty)
}

// TestDifficultyState_WithDamping_LimitsSingleAdjustment 验证阻尼限制单次调整幅度
//
// 即使观测时间是目标的两倍，48次方根阻尼也把单次下调限制在约1.5%以内。
func TestDifficultyState_WithDamping_LimitsSingleAdjustment(t *testing.T) {
	// Arrange
	cfg := testDifficultyConfig()
	state := NewDifficultyState(1 << 20)
	state, _, now := runPeriod(state, 0, cfg.TargetBlockTimeMillis, cfg)

	// Act
	_, event, _ := runPeriod(state, now, cfg.TargetBlockTimeMillis*2, cfg)

	// Assert
	require.NotNil(t, event)
	drop := event.OldDifficulty - event.NewDifficulty
	assert.Less(t, drop*50, event.OldDifficulty, "单次调整幅度必须小于2%")
	assert.Positive(t, drop, "调整仍须朝正确方向移动")
}

// TestDifficultyState_WithLowDifficulty_ClampsToMinimum 验证难度下界夹紧
func TestDifficultyState_WithLowDifficulty_ClampsToMinimum(t *testing.T) {
	// Arrange
	cfg := testDifficultyConfig()
	cfg.MinDifficulty = 1_048_000
	state := NewDifficultyState(1 << 20) // 1048576，仅略高于下界
	state, _, now := runPeriod(state, 0, cfg.TargetBlockTimeMillis, cfg)

	// Act：双倍间隔出块，未夹紧的结果会低于下界
	state, event, _ := runPeriod(state, now, cfg.TargetBlockTimeMillis*2, cfg)

	// Assert
	require.NotNil(t, event)
	assert.Equal(t, cfg.MinDifficulty, state.CurrentDifficulty, "调整结果必须夹紧到难度下界")
}

// TestDifficultyState_WithHighDifficulty_ClampsBelowMaxDistance 验证难度上界夹紧
func TestDifficultyState_WithHighDifficulty_ClampsBelowMaxDistance(t *testing.T) {
	// Arrange
	cfg := testDifficultyConfig()
	state := NewDifficultyState(MaxDistance - 1)
	state, _, now := runPeriod(state, 0, cfg.TargetBlockTimeMillis, cfg)

	// Act：半速出块推动难度上调
	state, event, _ := runPeriod(state, now, cfg.TargetBlockTimeMillis/2, cfg)

	// Assert
	assert.Nil(t, event, "已在上界时夹紧后难度不变，不应产生事件")
	assert.Equal(t, MaxDistance-1, state.CurrentDifficulty, "难度永远不能达到MaxDistance")
}

// TestDifficultyState_BetweenPeriods_NeverEmitsEvents 验证周期内部不产生事件
func TestDifficultyState_BetweenPeriods_NeverEmitsEvents(t *testing.T) {
	// Arrange
	cfg := testDifficultyConfig()
	state := NewDifficultyState(1 << 20)
	now := int64(0)

	// Act & Assert：周期内前9块一律无事件
	for i := uint32(0); i < cfg.AdjustmentPeriod-1; i++ {
		now += 1_000
		var ev *types.DifficultyAdjustedEvent
		state, ev = state.OnBlockFinalized(now, cfg)
		require.Nil(t, ev, "第%d块尚未到达调整周期，不应产生事件", i+1)
		require.Equal(t, i+1, state.BlocksInPeriod)
	}
}

// TestDifficultyState_WithRepeatedPressure_ConvergesMonotonically 验证持续压力下的单调收敛
func TestDifficultyState_WithRepeatedPressure_ConvergesMonotonically(t *testing.T) {
	// Arrange
	cfg := testDifficultyConfig()
	state := NewDifficultyState(1 << 20)
	state, _, now := runPeriod(state, 0, cfg.TargetBlockTimeMillis, cfg)

	// Act：连续五个快速周期，难度应单调上升
	prev := state.CurrentDifficulty
	for i := 0; i < 5; i++ {
		var ev *types.DifficultyAdjustedEvent
		state, ev, now = runPeriod(state, now, cfg.TargetBlockTimeMillis/2, cfg)

		// Assert
		require.NotNil(t, ev, "第%d个快速周期应产生调整事件", i+1)
		require.Greater(t, state.CurrentDifficulty, prev, "难度应在第%d个周期继续上升", i+1)
		prev = state.CurrentDifficulty
	}
}
