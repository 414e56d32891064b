package producer

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	consensusconfig "github.com/qpchain/v1/internal/config/consensus"
	"github.com/qpchain/v1/internal/core/infrastructure/clock"
	"github.com/qpchain/v1/internal/core/infrastructure/event"
	"github.com/qpchain/v1/pkg/types"
)

// permissiveEngine 接受一切非零nonce的假谜题引擎
type permissiveEngine struct {
	rejectAll bool
}

func (e *permissiveEngine) GetNonceDistance(header types.Hash, nonce types.Nonce) uint64 {
	if nonce.IsZero() {
		return 0
	}
	return 1
}

func (e *permissiveEngine) IsValidNonce(header types.Hash, nonce types.Nonce, difficulty uint64) bool {
	return !e.rejectAll && !nonce.IsZero()
}

func (e *permissiveEngine) BlockWork(header *types.BlockHeader) uint64 {
	return 1
}

// recordingAssembler 记录装配次数的假装配器
type recordingAssembler struct {
	mu     sync.Mutex
	builds int
}

func (a *recordingAssembler) BuildCandidate(ctx context.Context) (*types.CandidateBlock, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.builds++
	return &types.CandidateBlock{
		BestHash: types.Hash{0x01},
		Header: types.BlockHeader{
			ParentHash: types.Hash{0x01},
			Number:     uint64(a.builds),
			PreHash:    types.Hash{0x02, byte(a.builds)},
		},
	}, nil
}

func (a *recordingAssembler) buildCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.builds
}

// recordingChain 记录提交的假链视图
type recordingChain struct {
	mu          sync.Mutex
	failSubmits bool
	submissions []types.Nonce
	imported    chan *types.BlockHeader
}

func newRecordingChain() *recordingChain {
	return &recordingChain{imported: make(chan *types.BlockHeader, 8)}
}

func (c *recordingChain) HeaderByHash(hash types.Hash) (*types.BlockHeader, error) {
	return nil, fmt.Errorf("头部不存在")
}

func (c *recordingChain) SubmitBlock(ctx context.Context, candidate *types.CandidateBlock, seal types.Nonce) (*types.BlockHeader, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failSubmits {
		return nil, fmt.Errorf("模拟导入失败")
	}
	c.submissions = append(c.submissions, seal)
	header := candidate.Header
	header.Seal = seal
	header.Hash = types.Hash{0xdd, byte(len(c.submissions))}
	c.imported <- &header
	return &header, nil
}

func (c *recordingChain) submitCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.submissions)
}

// recordingSink 记录下发任务的假目的地
type recordingSink struct {
	jobs chan *types.MiningJob
}

func newRecordingSink() *recordingSink {
	return &recordingSink{jobs: make(chan *types.MiningJob, 8)}
}

func (s *recordingSink) Dispatch(job *types.MiningJob) error {
	s.jobs <- job
	return nil
}

// testHarness 组装一个运行中的生产者
type testHarness struct {
	producer  *Producer
	assembler *recordingAssembler
	chain     *recordingChain
	engine    *permissiveEngine
	sink      *recordingSink
	triggers  chan types.RebuildReason
	cancel    context.CancelFunc
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	cfg := consensusconfig.New(nil)
	cfg.Miner.LocalWorkers = 0 // 关闭本地工作器，测试只走显式结果注入
	cfg.Miner.ResultWaitTimeout = time.Second

	h := &testHarness{
		assembler: &recordingAssembler{},
		chain:     newRecordingChain(),
		engine:    &permissiveEngine{},
		sink:      newRecordingSink(),
		triggers:  make(chan types.RebuildReason, 4),
	}

	h.producer = New(cfg, h.assembler, h.chain, h.engine,
		clock.NewSystemClock(), event.New(), h.triggers, nil, nil)
	h.producer.AddSink(h.sink)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go h.producer.Run(ctx)
	t.Cleanup(cancel)

	return h
}

// awaitJob 等待目的地收到下一个任务
func (h *testHarness) awaitJob(t *testing.T) *types.MiningJob {
	t.Helper()
	select {
	case job := <-h.sink.jobs:
		return job
	case <-time.After(2 * time.Second):
		t.Fatal("等待任务下发超时")
		return nil
	}
}

// TestProducer_OnTrigger_BuildsAndDispatchesJob 验证触发驱动装配与下发
func TestProducer_OnTrigger_BuildsAndDispatchesJob(t *testing.T) {
	// Arrange
	h := newTestHarness(t)

	// Act
	h.triggers <- types.RebuildInitial
	job := h.awaitJob(t)

	// Assert
	assert.NotEmpty(t, job.JobID)
	assert.Equal(t, 1, h.assembler.buildCount())
	assert.NotZero(t, job.DistanceThreshold)
	assert.Positive(t, job.NonceStart.Sign(), "nonce范围起点必须避开保留的零值")
}

// TestProducer_OnTrigger_NewJobSupersedesOld 验证新任务整体取代旧任务
func TestProducer_OnTrigger_NewJobSupersedesOld(t *testing.T) {
	// Arrange
	h := newTestHarness(t)
	h.triggers <- types.RebuildInitial
	oldJob := h.awaitJob(t)

	// Act
	h.triggers <- types.RebuildBlockImported
	newJob := h.awaitJob(t)

	// 对旧任务的found结果现在是过期结果
	h.producer.ResultsIn() <- types.MiningResult{
		JobID:  oldJob.JobID,
		Status: types.ResultFound,
		Nonce:  types.Nonce{0x01},
	}

	// Assert：静默丢弃，不提交
	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, h.chain.submitCount(), "过期结果必须静默丢弃")
	assert.NotEqual(t, oldJob.JobID, newJob.JobID)
}

// TestProducer_OnFoundResult_SubmitsBlock 验证有效结果走完提交链路
func TestProducer_OnFoundResult_SubmitsBlock(t *testing.T) {
	// Arrange
	h := newTestHarness(t)
	h.triggers <- types.RebuildInitial
	job := h.awaitJob(t)

	nonce := types.Nonce{0x55}

	// Act
	h.producer.ResultsIn() <- types.MiningResult{
		JobID:   job.JobID,
		Status:  types.ResultFound,
		Nonce:   nonce,
		MinerID: 3,
	}

	// Assert
	select {
	case header := <-h.chain.imported:
		assert.Equal(t, nonce, header.Seal, "提交的印章必须是矿工上报的nonce")
	case <-time.After(2 * time.Second):
		t.Fatal("等待区块提交超时")
	}
}

// TestProducer_OnDuplicateFound_SubmitsExactlyOnce 验证双重提交免疫
func TestProducer_OnDuplicateFound_SubmitsExactlyOnce(t *testing.T) {
	// Arrange
	h := newTestHarness(t)
	h.triggers <- types.RebuildInitial
	job := h.awaitJob(t)

	// Act：同一任务的两条found结果
	for i := 0; i < 2; i++ {
		h.producer.ResultsIn() <- types.MiningResult{
			JobID:  job.JobID,
			Status: types.ResultFound,
			Nonce:  types.Nonce{byte(0x10 + i)},
		}
	}

	// Assert
	<-h.chain.imported
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, h.chain.submitCount(), "单槽位必须保证同一候选至多提交一次")
}

// TestProducer_OnInvalidNonce_DiscardsResult 验证验证失败的结果被丢弃
func TestProducer_OnInvalidNonce_DiscardsResult(t *testing.T) {
	// Arrange
	h := newTestHarness(t)
	h.engine.rejectAll = true
	h.triggers <- types.RebuildInitial
	job := h.awaitJob(t)

	// Act
	h.producer.ResultsIn() <- types.MiningResult{
		JobID:  job.JobID,
		Status: types.ResultFound,
		Nonce:  types.Nonce{0x66},
	}

	// Assert
	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, h.chain.submitCount(), "未通过验证的nonce不得提交")
}

// TestProducer_OnSubmitFailure_KeepsRunning 验证导入失败不杀死生产循环
func TestProducer_OnSubmitFailure_KeepsRunning(t *testing.T) {
	// Arrange
	h := newTestHarness(t)
	h.chain.failSubmits = true
	h.triggers <- types.RebuildInitial
	job := h.awaitJob(t)

	// Act：提交失败
	h.producer.ResultsIn() <- types.MiningResult{
		JobID:  job.JobID,
		Status: types.ResultFound,
		Nonce:  types.Nonce{0x77},
	}
	time.Sleep(100 * time.Millisecond)

	// Assert：生产循环仍然响应后续触发
	h.triggers <- types.RebuildBlockImported
	next := h.awaitJob(t)
	assert.NotEqual(t, job.JobID, next.JobID)
	assert.Equal(t, 2, h.assembler.buildCount())
}

// newIdleProducer 创建未启动主循环的生产者（直接测试结果收取接口）
func newIdleProducer() *Producer {
	cfg := consensusconfig.New(nil)
	return New(cfg, nil, nil, &permissiveEngine{},
		clock.NewSystemClock(), event.New(), nil, nil, nil)
}

// TestProducer_TryResult_WithEmptyQueue_ReturnsFalse 验证非阻塞收取在空队列立即返回
func TestProducer_TryResult_WithEmptyQueue_ReturnsFalse(t *testing.T) {
	// Arrange
	p := newIdleProducer()

	// Act
	_, ok := p.TryResult()

	// Assert
	assert.False(t, ok)
}

// TestProducer_TryResult_WithPendingResult_ReturnsIt 验证非阻塞收取取出排队结果
func TestProducer_TryResult_WithPendingResult_ReturnsIt(t *testing.T) {
	// Arrange
	p := newIdleProducer()
	p.ResultsIn() <- types.MiningResult{JobID: "j1", Status: types.ResultFound, Nonce: types.Nonce{0x01}}

	// Act
	result, ok := p.TryResult()

	// Assert
	require.True(t, ok)
	assert.Equal(t, "j1", result.JobID)
}

// TestProducer_WaitResult_WithTimeout_ReturnsContextError 验证限时等待按时超时
func TestProducer_WaitResult_WithTimeout_ReturnsContextError(t *testing.T) {
	// Arrange
	p := newIdleProducer()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	// Act
	_, err := p.WaitResult(ctx)

	// Assert
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// TestProducer_WaitResult_WithLateResult_ReturnsIt 验证限时等待收到迟来的结果
func TestProducer_WaitResult_WithLateResult_ReturnsIt(t *testing.T) {
	// Arrange
	p := newIdleProducer()
	go func() {
		time.Sleep(20 * time.Millisecond)
		p.ResultsIn() <- types.MiningResult{JobID: "j2", Status: types.ResultExhausted}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	// Act
	result, err := p.WaitResult(ctx)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "j2", result.JobID)
}

// TestProducer_OnExhaustedResult_DoesNotSubmit 验证exhausted结果不触发提交
func TestProducer_OnExhaustedResult_DoesNotSubmit(t *testing.T) {
	// Arrange
	h := newTestHarness(t)
	h.triggers <- types.RebuildInitial
	job := h.awaitJob(t)

	// Act
	h.producer.ResultsIn() <- types.MiningResult{
		JobID:  job.JobID,
		Status: types.ResultExhausted,
	}

	// Assert
	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, h.chain.submitCount())
}
