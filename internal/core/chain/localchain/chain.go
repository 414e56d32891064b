// Package localchain 提供内建的单机链集成
//
// ⛓️ **本地链 (Local Chain)**
//
// PoW核心需要装配器与链视图两个协作能力；本包提供二者的内建实现，
// 把头部存储、链评分器与事件总线缝合为一条可独立运行的链：
// - 装配：在当前最佳链头上构造下一高度的候选区块
// - 提交：重验印章、落盘头部、按累计工作量决定是否切换最佳链
// - 通知：最佳链推进时发布区块导入事件（重建触发源）
//
// 交易选择与执行属于外部协作者；本链的区块体为不透明字节。
package localchain

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"golang.org/x/crypto/sha3"

	consensusconfig "github.com/qpchain/v1/internal/config/consensus"
	"github.com/qpchain/v1/internal/core/chain/scorer"
	"github.com/qpchain/v1/internal/core/infrastructure/event"
	"github.com/qpchain/v1/internal/core/persistence/headerstore"
	consensusiface "github.com/qpchain/v1/pkg/interfaces/consensus"
	clockiface "github.com/qpchain/v1/pkg/interfaces/infrastructure/clock"
	"github.com/qpchain/v1/pkg/interfaces/infrastructure/crypto"
	logiface "github.com/qpchain/v1/pkg/interfaces/infrastructure/log"
	"github.com/qpchain/v1/pkg/types"
)

// Chain 内建单机链
type Chain struct {
	store  *headerstore.Store
	scorer *scorer.Scorer
	engine crypto.PuzzleEngine
	clock  clockiface.Clock
	bus    event.Bus
	logger logiface.Logger

	mu sync.Mutex
}

// 编译期接口断言
var (
	_ consensusiface.BlockAssembler = (*Chain)(nil)
	_ consensusiface.ChainView      = (*Chain)(nil)
)

// New 创建本地链，必要时落盘创世区块
func New(
	cfg *consensusconfig.ConsensusOptions,
	store *headerstore.Store,
	sc *scorer.Scorer,
	engine crypto.PuzzleEngine,
	clk clockiface.Clock,
	bus event.Bus,
	logger logiface.Logger,
) (*Chain, error) {
	c := &Chain{
		store:  store,
		scorer: sc,
		engine: engine,
		clock:  clk,
		bus:    bus,
		logger: logger,
	}

	if store.Best().IsZero() {
		if err := c.bootstrapGenesis(cfg.POW.InitialDifficulty); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// bootstrapGenesis 创建并落盘创世区块
func (c *Chain) bootstrapGenesis(initialDifficulty uint64) error {
	genesis := &types.BlockHeader{
		Number:     0,
		Difficulty: initialDifficulty,
		Timestamp:  c.clock.NowMillis(),
	}
	genesis.PreHash = computePreHash(genesis)
	genesis.Hash = computeBlockHash(genesis)

	if err := c.store.PutHeader(genesis); err != nil {
		return fmt.Errorf("落盘创世区块失败: %w", err)
	}
	if err := c.store.SetBest(genesis.Hash); err != nil {
		return fmt.Errorf("设置创世最佳指针失败: %w", err)
	}

	if c.logger != nil {
		c.logger.Infof("创世区块已落盘: %s（初始难度 %d）", genesis.Hash.Hex(), initialDifficulty)
	}
	return nil
}

// HeaderByHash 按区块标识查询头部
func (c *Chain) HeaderByHash(hash types.Hash) (*types.BlockHeader, error) {
	return c.store.HeaderByHash(hash)
}

// BestHeader 返回当前最佳链头
func (c *Chain) BestHeader() (*types.BlockHeader, error) {
	return c.store.HeaderByHash(c.store.Best())
}

// BuildCandidate 在当前最佳链头上装配下一高度的候选区块
func (c *Chain) BuildCandidate(ctx context.Context) (*types.CandidateBlock, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	parent, err := c.BestHeader()
	if err != nil {
		return nil, fmt.Errorf("读取最佳链头失败: %w", err)
	}

	header := types.BlockHeader{
		ParentHash: parent.Hash,
		Number:     parent.Number + 1,
		Timestamp:  c.clock.NowMillis(),
	}
	header.PreHash = computePreHash(&header)

	return &types.CandidateBlock{
		BestHash: parent.Hash,
		Header:   header,
	}, nil
}

// SubmitBlock 重验印章、落盘并按累计工作量推进最佳链
func (c *Chain) SubmitBlock(ctx context.Context, candidate *types.CandidateBlock, seal types.Nonce) (*types.BlockHeader, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	header := candidate.Header
	if !c.engine.IsValidNonce(header.PreHash, seal, header.Difficulty) {
		return nil, fmt.Errorf("印章未通过谜题验证（高度 %d）", header.Number)
	}

	header.Seal = seal
	header.Hash = computeBlockHash(&header)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.PutHeader(&header); err != nil {
		return nil, fmt.Errorf("落盘区块头部失败: %w", err)
	}

	currentBest := c.store.Best()
	winner, _, err := c.scorer.BestChain([]types.Hash{currentBest, header.Hash})
	if err != nil {
		return nil, fmt.Errorf("分叉选择失败: %w", err)
	}

	if winner == header.Hash {
		if err := c.store.SetBest(header.Hash); err != nil {
			return nil, fmt.Errorf("推进最佳指针失败: %w", err)
		}
		c.bus.Publish(event.TopicBlockImported)
		if c.logger != nil {
			c.logger.Infof("最佳链推进到 #%d %s", header.Number, header.Hash.Hex())
		}
	} else if c.logger != nil {
		c.logger.Infof("区块 #%d %s 已落盘但未超越当前最佳链", header.Number, header.Hash.Hex())
	}

	return &header, nil
}

// computePreHash 计算封块前的头部摘要（谜题输入）
//
// 覆盖父链接、高度与时间戳；难度由生产者在装配后填入，工作量
// 一律从印章重推，因此难度不参与摘要。
func computePreHash(h *types.BlockHeader) types.Hash {
	var buf [types.HashSize + 8 + 8]byte
	copy(buf[:types.HashSize], h.ParentHash[:])
	binary.BigEndian.PutUint64(buf[types.HashSize:], h.Number)
	binary.BigEndian.PutUint64(buf[types.HashSize+8:], uint64(h.Timestamp))
	return sha3.Sum256(buf[:])
}

// computeBlockHash 计算封块后的区块标识（头部摘要 ∥ 印章）
func computeBlockHash(h *types.BlockHeader) types.Hash {
	var buf [types.HashSize + types.NonceSize]byte
	copy(buf[:types.HashSize], h.PreHash[:])
	copy(buf[types.HashSize:], h.Seal[:])
	return sha3.Sum256(buf[:])
}
