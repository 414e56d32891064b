package producer

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qpchain/v1/pkg/types"
)

// thresholdEngine 按任务阈值表决定距离的假引擎
type thresholdEngine struct {
	distance uint64
}

func (e *thresholdEngine) GetNonceDistance(header types.Hash, nonce types.Nonce) uint64 {
	return e.distance
}

func (e *thresholdEngine) IsValidNonce(header types.Hash, nonce types.Nonce, difficulty uint64) bool {
	return !nonce.IsZero()
}

func (e *thresholdEngine) BlockWork(header *types.BlockHeader) uint64 { return 1 }

// awaitResult 等待工作器上报结果
func awaitResult(t *testing.T, results chan types.MiningResult) types.MiningResult {
	t.Helper()
	select {
	case r := <-results:
		return r
	case <-time.After(3 * time.Second):
		t.Fatal("等待工作器结果超时")
		return types.MiningResult{}
	}
}

// TestLocalWorker_WithReachableThreshold_ReportsFound 验证可达阈值下命中
func TestLocalWorker_WithReachableThreshold_ReportsFound(t *testing.T) {
	// Arrange
	results := make(chan types.MiningResult, 4)
	worker := NewLocalWorker(&thresholdEngine{distance: 5}, results, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go worker.Run(ctx)

	job := &types.MiningJob{
		JobID:             "w-1",
		PreHash:           types.Hash{0x01},
		DistanceThreshold: 10, // distance 5 ≤ 10，首个非零nonce即命中
		NonceStart:        big.NewInt(1),
		NonceEnd:          big.NewInt(1 << 30),
	}

	// Act
	require.NoError(t, worker.Dispatch(job))
	result := awaitResult(t, results)

	// Assert
	assert.Equal(t, "w-1", result.JobID)
	assert.Equal(t, types.ResultFound, result.Status)
	assert.False(t, result.Nonce.IsZero(), "命中的nonce不能是保留零值")
}

// TestLocalWorker_WithTinyRange_ReportsExhausted 验证范围耗尽上报
func TestLocalWorker_WithTinyRange_ReportsExhausted(t *testing.T) {
	// Arrange
	results := make(chan types.MiningResult, 4)
	worker := NewLocalWorker(&thresholdEngine{distance: 100}, results, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go worker.Run(ctx)

	job := &types.MiningJob{
		JobID:             "w-2",
		PreHash:           types.Hash{0x01},
		DistanceThreshold: 10, // distance 100 > 10，永不命中
		NonceStart:        big.NewInt(1),
		NonceEnd:          big.NewInt(32),
	}

	// Act
	require.NoError(t, worker.Dispatch(job))
	result := awaitResult(t, results)

	// Assert
	assert.Equal(t, "w-2", result.JobID)
	assert.Equal(t, types.ResultExhausted, result.Status)
}

// TestLocalWorker_OnSupersession_AbandonsOldJob 验证新任务取代旧任务
func TestLocalWorker_OnSupersession_AbandonsOldJob(t *testing.T) {
	// Arrange
	engine := &thresholdEngine{distance: 100}
	results := make(chan types.MiningResult, 4)
	worker := NewLocalWorker(engine, results, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go worker.Run(ctx)

	// 永不命中且范围巨大的旧任务
	oldJob := &types.MiningJob{
		JobID:             "w-old",
		PreHash:           types.Hash{0x01},
		DistanceThreshold: 10,
		NonceStart:        big.NewInt(1),
		NonceEnd:          new(big.Int).Lsh(big.NewInt(1), 256),
	}
	require.NoError(t, worker.Dispatch(oldJob))
	time.Sleep(50 * time.Millisecond)

	// Act：下发可命中的新任务
	newJob := &types.MiningJob{
		JobID:             "w-new",
		PreHash:           types.Hash{0x02},
		DistanceThreshold: 200, // distance 100 ≤ 200
		NonceStart:        big.NewInt(1),
		NonceEnd:          big.NewInt(1 << 30),
	}
	require.NoError(t, worker.Dispatch(newJob))
	result := awaitResult(t, results)

	// Assert
	assert.Equal(t, "w-new", result.JobID, "工作器必须放弃旧任务转向新任务")
	assert.Equal(t, types.ResultFound, result.Status)
}

// TestLocalWorker_Dispatch_WithPendingJob_KeepsNewest 验证未开始的旧任务被挤掉
func TestLocalWorker_Dispatch_WithPendingJob_KeepsNewest(t *testing.T) {
	// Arrange：不启动Run，任务滞留在队列里
	results := make(chan types.MiningResult, 4)
	worker := NewLocalWorker(&thresholdEngine{distance: 1}, results, nil)

	jobA := &types.MiningJob{JobID: "a", NonceStart: big.NewInt(1), NonceEnd: big.NewInt(2), DistanceThreshold: 10}
	jobB := &types.MiningJob{JobID: "b", NonceStart: big.NewInt(1), NonceEnd: big.NewInt(2), DistanceThreshold: 10}

	// Act
	require.NoError(t, worker.Dispatch(jobA))
	require.NoError(t, worker.Dispatch(jobB))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go worker.Run(ctx)

	// Assert：只会执行最新任务
	result := awaitResult(t, results)
	assert.Equal(t, "b", result.JobID)
}
