// Package producer 提供区块生产者
//
// 🏭 **区块生产者 (Block Producer)**
//
// 生产者是挖矿子系统的指挥中枢，串起触发→装配→下发→收果→提交：
//
//	重建触发 → 装配候选 → 放入构建槽位 → 下发任务（本地/外部矿工）
//	                                        ↓
//	提交导入 ← 原子取走候选 ← 验证nonce ← 收到found结果
//
// 核心不变量：
// - 过期结果静默丢弃：任务标识不匹配当前槽位的结果只计数不处理
// - 双重提交免疫：槽位原子Take保证同一候选至多提交一次
// - 导入失败非致命：提交失败只记录日志，生产循环继续
package producer

import (
	"context"
	"math/big"

	"github.com/google/uuid"

	consensusconfig "github.com/qpchain/v1/internal/config/consensus"
	"github.com/qpchain/v1/internal/core/infrastructure/crypto/qpow"
	"github.com/qpchain/v1/internal/core/infrastructure/event"
	"github.com/qpchain/v1/internal/core/infrastructure/metrics"
	consensusiface "github.com/qpchain/v1/pkg/interfaces/consensus"
	clockiface "github.com/qpchain/v1/pkg/interfaces/infrastructure/clock"
	"github.com/qpchain/v1/pkg/interfaces/infrastructure/crypto"
	logiface "github.com/qpchain/v1/pkg/interfaces/infrastructure/log"
	"github.com/qpchain/v1/pkg/types"
	"github.com/qpchain/v1/pkg/utils"
)

// JobSink 任务下发目的地
//
// 服务端广播、客户端下发与本地工作器都满足该接口；下发必须是
// 非阻塞的尽力而为。
type JobSink interface {
	Dispatch(job *types.MiningJob) error
}

// Producer 区块生产者
type Producer struct {
	cfg     *consensusconfig.ConsensusOptions
	logger  logiface.Logger
	metrics *metrics.Metrics

	assembler consensusiface.BlockAssembler
	chain     consensusiface.ChainView
	engine    crypto.PuzzleEngine
	clock     clockiface.Clock
	bus       event.Bus

	sinks    []JobSink
	triggers <-chan types.RebuildReason
	results  chan types.MiningResult

	slot      *BuildSlot
	diffState qpow.DifficultyState
	diffCfg   qpow.DifficultyConfig
}

// New 创建区块生产者
func New(
	cfg *consensusconfig.ConsensusOptions,
	assembler consensusiface.BlockAssembler,
	chain consensusiface.ChainView,
	engine crypto.PuzzleEngine,
	clk clockiface.Clock,
	bus event.Bus,
	triggers <-chan types.RebuildReason,
	logger logiface.Logger,
	m *metrics.Metrics,
) *Producer {
	if m == nil {
		m = metrics.NewNop()
	}
	return &Producer{
		cfg:       cfg,
		logger:    logger,
		metrics:   m,
		assembler: assembler,
		chain:     chain,
		engine:    engine,
		clock:     clk,
		bus:       bus,
		triggers:  triggers,
		results:   make(chan types.MiningResult, cfg.Network.ResultQueueSize),
		slot:      NewBuildSlot(),
		diffState: qpow.NewDifficultyState(cfg.POW.InitialDifficulty),
		diffCfg: qpow.DifficultyConfig{
			TargetBlockTimeMillis: cfg.POW.TargetBlockTime.Milliseconds(),
			AdjustmentPeriod:      cfg.POW.AdjustmentPeriod,
			MinDifficulty:         cfg.POW.MinDifficulty,
		},
	}
}

// AddSink 注册一个任务下发目的地
func (p *Producer) AddSink(sink JobSink) {
	p.sinks = append(p.sinks, sink)
}

// ResultsIn 返回结果入口通道（外部矿工来源的结果由装配层泵入）
func (p *Producer) ResultsIn() chan<- types.MiningResult {
	return p.results
}

// CurrentDifficulty 返回当前难度（测试与状态查询）
func (p *Producer) CurrentDifficulty() uint64 {
	return p.diffState.CurrentDifficulty
}

// TryResult 非阻塞地取出下一条挖矿结果
//
// 通道为空时立即返回false；取出的结果不会再被主循环消费。
func (p *Producer) TryResult() (types.MiningResult, bool) {
	select {
	case result := <-p.results:
		return result, true
	default:
		return types.MiningResult{}, false
	}
}

// WaitResult 限时等待下一条挖矿结果，超时或取消返回ctx错误
func (p *Producer) WaitResult(ctx context.Context) (types.MiningResult, error) {
	select {
	case result := <-p.results:
		return result, nil
	case <-ctx.Done():
		return types.MiningResult{}, ctx.Err()
	}
}

// Run 生产者主循环（阻塞直到ctx取消）
//
// 按配置启动本地工作器，然后在触发信号与挖矿结果之间循环。
func (p *Producer) Run(ctx context.Context) {
	p.metrics.CurrentDifficulty.Set(float64(p.diffState.CurrentDifficulty))

	for i := 0; i < p.cfg.Miner.LocalWorkers; i++ {
		worker := NewLocalWorker(p.engine, p.results, p.logger)
		p.sinks = append(p.sinks, worker)
		go worker.Run(ctx)
	}

	for {
		select {
		case reason := <-p.triggers:
			p.rebuild(ctx, reason)

		case result := <-p.results:
			p.handleResult(ctx, result)

		case <-ctx.Done():
			return
		}
	}
}

// rebuild 装配新候选并向全部目的地下发新任务
func (p *Producer) rebuild(ctx context.Context, reason types.RebuildReason) {
	buildCtx, cancel := context.WithTimeout(ctx, p.cfg.Miner.ResultWaitTimeout)
	candidate, err := p.assembler.BuildCandidate(buildCtx)
	cancel()
	if err != nil {
		p.logf("装配候选区块失败（触发原因 %s）: %v", reason, err)
		return
	}

	difficulty := p.diffState.CurrentDifficulty
	candidate.Header.Difficulty = difficulty

	job := &types.MiningJob{
		JobID:             uuid.NewString(),
		PreHash:           candidate.Header.PreHash,
		DistanceThreshold: qpow.DistanceThreshold(difficulty),
		NonceStart:        big.NewInt(1),
		NonceEnd:          utils.MaxU512(),
	}

	p.slot.Put(&pendingBuild{
		jobID:      job.JobID,
		candidate:  candidate,
		difficulty: difficulty,
	})

	for _, sink := range p.sinks {
		if err := sink.Dispatch(job); err != nil {
			p.logf("下发任务 %s 失败: %v", job.JobID, err)
		}
	}

	if p.logger != nil {
		p.logger.Infof("新任务 %s 已下发（触发原因 %s，难度 %d）", job.JobID, reason, difficulty)
	}
}

// handleResult 处理一条挖矿结果
func (p *Producer) handleResult(ctx context.Context, result types.MiningResult) {
	pending := p.slot.Peek()
	if pending == nil || pending.jobID != result.JobID {
		// 过期结果：旧任务已被新任务整体取代
		p.metrics.StaleResultsTotal.Inc()
		if p.logger != nil {
			p.logger.Debugf("丢弃过期结果 %s（矿工 %d）", result.JobID, result.MinerID)
		}
		return
	}

	switch result.Status {
	case types.ResultExhausted:
		if p.logger != nil {
			p.logger.Debugf("矿工 %d 耗尽了任务 %s 的搜索范围", result.MinerID, result.JobID)
		}
		return

	case types.ResultError:
		p.logf("矿工 %d 在任务 %s 上出错", result.MinerID, result.JobID)
		return

	case types.ResultFound:
		p.sealAndSubmit(ctx, result)

	default:
		p.logf("结果 %s 携带未知状态 %q", result.JobID, result.Status)
	}
}

// sealAndSubmit 验证found结果、原子取走候选并提交导入
func (p *Producer) sealAndSubmit(ctx context.Context, result types.MiningResult) {
	pending := p.slot.Peek()
	if pending == nil {
		return
	}

	if !p.engine.IsValidNonce(pending.candidate.Header.PreHash, result.Nonce, pending.difficulty) {
		p.metrics.StaleResultsTotal.Inc()
		p.logf("矿工 %d 的nonce未通过验证，丢弃结果 %s", result.MinerID, result.JobID)
		return
	}

	taken := p.slot.Take()
	if taken == nil || taken.jobID != result.JobID {
		// 另一条提交路径抢先取走了候选
		return
	}

	submitCtx, cancel := context.WithTimeout(ctx, p.cfg.Miner.ResultWaitTimeout)
	header, err := p.chain.SubmitBlock(submitCtx, taken.candidate, result.Nonce)
	cancel()
	if err != nil {
		// 导入失败对生产循环永不致命
		p.logf("提交区块失败（任务 %s）: %v", result.JobID, err)
		return
	}

	p.metrics.BlocksSealedTotal.Inc()
	p.bus.Publish(event.TopicProofSubmitted, header)

	if p.logger != nil {
		p.logger.Infof("区块 #%d 封块成功（矿工 %d，任务 %s）", header.Number, result.MinerID, result.JobID)
	}

	p.advanceDifficulty()
}

// advanceDifficulty 区块定稿后推进难度控制器
func (p *Producer) advanceDifficulty() {
	var ev *types.DifficultyAdjustedEvent
	p.diffState, ev = p.diffState.OnBlockFinalized(p.clock.NowMillis(), p.diffCfg)
	p.metrics.CurrentDifficulty.Set(float64(p.diffState.CurrentDifficulty))

	if ev != nil {
		p.bus.Publish(event.TopicDifficultyAdjusted, ev)
		if p.logger != nil {
			p.logger.Infof("难度调整: %d → %d（平均出块 %dms）",
				ev.OldDifficulty, ev.NewDifficulty, ev.AverageBlockTime)
		}
	}
}

// logf 带nil保护的警告日志
func (p *Producer) logf(format string, args ...interface{}) {
	if p.logger != nil {
		p.logger.Warnf(format, args...)
	}
}
