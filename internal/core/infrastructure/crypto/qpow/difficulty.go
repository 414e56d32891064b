// Package qpow 提供难度调整控制器
//
// 📊 **难度控制组件 (Difficulty Controller Component)**
//
// 本文件实现阻尼比例式难度调整，专注于：
// - 显式状态：难度/周期状态是一条显式记录，不经由任何全局存储
// - 纯转移函数：(state, now) → (state, 可选事件)，同步、无阻塞
// - 次线性增益：对观测/目标比值取48次方根做阻尼，抑制振荡
//
// 📈 **收敛性质**：
// 观测出块时间等于目标时，控制器处于不动点；出块快于目标时难度
// 单调上调，慢于目标时单调下调。
package qpow

import (
	"math"

	"github.com/qpchain/v1/pkg/types"
)

// dampingRoot 阻尼指数的倒数（对比值取48次方根）
const dampingRoot = 48.0

// DifficultyConfig 难度控制器参数
type DifficultyConfig struct {
	// TargetBlockTimeMillis 目标出块时间（毫秒）
	TargetBlockTimeMillis int64

	// AdjustmentPeriod 调整周期（区块数）
	AdjustmentPeriod uint32

	// MinDifficulty 难度下界
	MinDifficulty uint64
}

// DifficultyState 难度控制器的显式状态记录
//
// 📝 **字段说明**：
// - CurrentDifficulty: 当前生效难度
// - LastBlockTime: 最近一次区块定稿的墙钟读数（毫秒，0表示尚无）
// - PeriodStartTime: 当前调整周期的起点（毫秒，0表示首个周期无基准）
// - BlocksInPeriod: 当前周期内已定稿的区块数
//
// 状态按值传递与返回；调用方持有唯一可变副本。
type DifficultyState struct {
	CurrentDifficulty uint64
	LastBlockTime     int64
	PeriodStartTime   int64
	BlocksInPeriod    uint32
}

// NewDifficultyState 以初始难度创建控制器状态
func NewDifficultyState(initialDifficulty uint64) DifficultyState {
	return DifficultyState{CurrentDifficulty: initialDifficulty}
}

// OnBlockFinalized 区块定稿时推进控制器状态
//
// 📋 **转移规则**：
//  1. 周期计数加一；未达调整周期时仅记录时间并返回
//  2. 达到周期且存在先前时间基准时：
//     averageBlockTime = (now − periodStart) / blocksInPeriod
//     ratio = averageBlockTime / targetBlockTime
//     damping = ratio^(1/48)
//     newDifficulty = clamp(current / damping, MinDifficulty, MaxDistance−1)
//     返回携带(old, new, averageBlockTime)的调整事件
//  3. 首个周期缺少时间基准时只重置计数，不做调整
//
// 全部算术饱和/夹紧，永不溢出或panic。
func (s DifficultyState) OnBlockFinalized(nowMillis int64, cfg DifficultyConfig) (DifficultyState, *types.DifficultyAdjustedEvent) {
	next := s

	// 周期的时间基准取自周期开始前最后一个区块的定稿时间
	if next.BlocksInPeriod == 0 {
		next.PeriodStartTime = next.LastBlockTime
	}

	next.BlocksInPeriod++

	if next.BlocksInPeriod < cfg.AdjustmentPeriod {
		next.LastBlockTime = nowMillis
		return next, nil
	}

	var event *types.DifficultyAdjustedEvent

	if next.PeriodStartTime > 0 {
		elapsed := nowMillis - next.PeriodStartTime
		if elapsed < 0 {
			elapsed = 0
		}

		average := elapsed / int64(next.BlocksInPeriod)
		if average < 1 {
			average = 1
		}

		old := next.CurrentDifficulty
		next.CurrentDifficulty = adjustDifficulty(old, average, cfg)

		if next.CurrentDifficulty != old {
			event = &types.DifficultyAdjustedEvent{
				OldDifficulty:    old,
				NewDifficulty:    next.CurrentDifficulty,
				AverageBlockTime: average,
			}
		}
	}

	next.BlocksInPeriod = 0
	next.LastBlockTime = nowMillis
	next.PeriodStartTime = nowMillis

	return next, event
}

// adjustDifficulty 应用阻尼比例调整并夹紧到合法区间
func adjustDifficulty(current uint64, averageMillis int64, cfg DifficultyConfig) uint64 {
	ratio := float64(averageMillis) / float64(cfg.TargetBlockTimeMillis)
	damping := math.Pow(ratio, 1.0/dampingRoot)

	adjusted := float64(current) / damping
	if math.IsNaN(adjusted) || math.IsInf(adjusted, 0) {
		return current
	}

	return clampDifficulty(uint64(adjusted), cfg.MinDifficulty)
}

// clampDifficulty 将难度夹紧到 [MinDifficulty, MaxDistance−1]
func clampDifficulty(d, minDifficulty uint64) uint64 {
	if d < minDifficulty {
		return minDifficulty
	}
	if d > MaxDistance-1 {
		return MaxDistance - 1
	}
	return d
}
