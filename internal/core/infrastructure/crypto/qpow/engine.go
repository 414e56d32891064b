// 谜题引擎门面实现
//
// ⚡ **谜题引擎 (Puzzle Engine Facade)**
//
// 本文件将模数推导与距离计算组装为PuzzleEngine接口实现，专注于：
// - 接口落地：GetNonceDistance / IsValidNonce / BlockWork
// - 模数缓存：模数推导含素性筛选，代价高但对头部摘要纯函数，
//   以bigcache按头部摘要缓存(m, n)对
// - 工作量重推：从印章重新计算距离，绝不信任区块携带的历史难度
package qpow

import (
	"context"
	"math/big"
	"time"

	"github.com/allegro/bigcache/v3"

	"github.com/qpchain/v1/pkg/interfaces/infrastructure/crypto"
	logiface "github.com/qpchain/v1/pkg/interfaces/infrastructure/log"
	"github.com/qpchain/v1/pkg/types"
)

// modulusCacheEntry 缓存条目长度：m(32字节大端) ∥ n(64字节大端)
const modulusCacheEntrySize = 96

// Engine PuzzleEngine接口的默认实现
//
// 全部计算路径无锁、无共享可变状态；缓存本身并发安全，缓存未命中
// 仅意味着重算，不影响结果的确定性。
type Engine struct {
	logger logiface.Logger
	cache  *bigcache.BigCache
}

// 编译期接口断言
var _ crypto.PuzzleEngine = (*Engine)(nil)

// NewEngine 创建谜题引擎
//
// 缓存创建失败时降级为无缓存运行（每次重算模数对），只记录警告。
func NewEngine(logger logiface.Logger) *Engine {
	cache, err := bigcache.New(context.Background(), bigcache.Config{
		Shards:           64,
		LifeWindow:       10 * time.Minute,
		CleanWindow:      1 * time.Minute,
		MaxEntrySize:     modulusCacheEntrySize,
		HardMaxCacheSize: 32, // MB
	})
	if err != nil {
		if logger != nil {
			logger.Warnf("模数缓存创建失败，降级为每次重算: %v", err)
		}
		cache = nil
	}

	return &Engine{
		logger: logger,
		cache:  cache,
	}
}

// GetNonceDistance 计算(header, nonce)对的谜题距离
func (e *Engine) GetNonceDistance(header types.Hash, nonce types.Nonce) uint64 {
	if nonce.IsZero() {
		return 0
	}

	m, n := e.modulusPair(header)
	return nonceDistanceWithModulus(header, nonce, m, n)
}

// IsValidNonce 判定nonce在给定难度下是否构成有效证明
func (e *Engine) IsValidNonce(header types.Hash, nonce types.Nonce, difficulty uint64) bool {
	if nonce.IsZero() {
		return false
	}
	return e.GetNonceDistance(header, nonce) <= DistanceThreshold(difficulty)
}

// BlockWork 从区块印章重推该区块贡献的工作量
//
// 创世区块无印章，工作量取其记录的初始难度；其余区块的工作量为
// MaxDistance − 重推出的印章距离。印章距离永远小于MaxDistance，
// 因此非创世区块的工作量恒为正。
func (e *Engine) BlockWork(header *types.BlockHeader) uint64 {
	if header.IsGenesis() {
		return header.Difficulty
	}
	return MaxDistance - e.GetNonceDistance(header.PreHash, header.Seal)
}

// modulusPair 取得头部摘要对应的模数对，优先走缓存
func (e *Engine) modulusPair(header types.Hash) (*big.Int, *big.Int) {
	if e.cache == nil {
		return DeriveModulusPair(header)
	}

	key := header.Hex()
	if raw, err := e.cache.Get(key); err == nil && len(raw) == modulusCacheEntrySize {
		m := new(big.Int).SetBytes(raw[:32])
		n := new(big.Int).SetBytes(raw[32:])
		return m, n
	}

	m, n := DeriveModulusPair(header)

	var entry [modulusCacheEntrySize]byte
	m.FillBytes(entry[:32])
	n.FillBytes(entry[32:])
	if err := e.cache.Set(key, entry[:]); err != nil && e.logger != nil {
		e.logger.Debugf("模数缓存写入失败: %v", err)
	}

	return m, n
}
