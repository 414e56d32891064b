// Package qpow 提供谜题距离计算
//
// 📏 **距离计算组件 (Distance Scoring Component)**
//
// 本文件实现谜题的评分路径，专注于：
// - 模幂运算：平方-乘算法，512位以上任意精度
// - 群元素映射：m^(headerInt + solution) mod n（加法饱和而非回绕）
// - 分块距离：512位群元素按小端序切成16个32位块，逐块求绝对差之和
//
// ⚠️ **一致性约束**：
// 距离定义在挖矿侧与验证侧必须完全一致，否则矿工与验证者会做出
// 相互矛盾的接受/拒绝判定。本实现统一采用原始绝对差求和，不做
// 环形回绕取最小值。
package qpow

import (
	"encoding/binary"
	"math/big"

	"github.com/qpchain/v1/pkg/types"
	"github.com/qpchain/v1/pkg/utils"
)

// MaxDistance 距离上界：16 × 2^32
//
// 16个32位块的逐块绝对差之和不可能达到该值（每块至多2^32−1），
// 因此有效难度区间为 [MinDifficulty, MaxDistance−1]。
const MaxDistance uint64 = 16 << 32

// ChunkCount 512位群元素切分出的32位块数量
const ChunkCount = 16

// modExp 平方-乘模幂：base^exponent mod modulus
//
// 零模数是致命的前置条件违例——按推导不变量它不可能出现，一旦
// 出现说明推导层存在缺陷，必须快速失败而不是重试。
func modExp(base, exponent, modulus *big.Int) *big.Int {
	if modulus.Sign() == 0 {
		panic("qpow: 模幂运算收到零模数，模数推导不变量被破坏")
	}

	result := big.NewInt(1)
	if modulus.Cmp(bigOne) == 0 {
		return result.SetInt64(0)
	}

	b := new(big.Int).Mod(base, modulus)
	e := new(big.Int).Set(exponent)

	for e.Sign() > 0 {
		if e.Bit(0) == 1 {
			result.Mul(result, b)
			result.Mod(result, modulus)
		}
		b.Mul(b, b)
		b.Mod(b, modulus)
		e.Rsh(e, 1)
	}

	return result
}

// HashToGroup 将(headerInt, solution)映射为群元素：m^(headerInt + solution) mod n
//
// 指数加法在512位上界处饱和而不是回绕，保证指数空间单调。
func HashToGroup(headerInt, m, n, solution *big.Int) *big.Int {
	exp := new(big.Int).Add(headerInt, solution)
	if exp.Cmp(utils.MaxU512()) > 0 {
		exp = utils.MaxU512()
	}
	return modExp(m, exp, n)
}

// SplitChunks 将512位值按小端序切分为16个32位块
func SplitChunks(v *big.Int) [ChunkCount]uint32 {
	var be [64]byte
	v.FillBytes(be[:])

	// 大端字节序翻转为小端
	var le [64]byte
	for i := 0; i < 64; i++ {
		le[i] = be[63-i]
	}

	var chunks [ChunkCount]uint32
	for i := 0; i < ChunkCount; i++ {
		chunks[i] = binary.LittleEndian.Uint32(le[4*i : 4*i+4])
	}
	return chunks
}

// Distance 计算两组块的逐块绝对差之和
//
// 结果落在 [0, 16×(2^32−1)]，恒小于MaxDistance。
func Distance(origin, candidate [ChunkCount]uint32) uint64 {
	var sum uint64
	for i := 0; i < ChunkCount; i++ {
		if origin[i] >= candidate[i] {
			sum += uint64(origin[i] - candidate[i])
		} else {
			sum += uint64(candidate[i] - origin[i])
		}
	}
	return sum
}

// GetNonceDistance 计算(header, nonce)对的谜题距离
//
// nonce为保留零哨兵时返回0。结果只依赖两个入参：推导(m, n)、
// 计算原点与候选两个群元素、返回分块距离。
func GetNonceDistance(header types.Hash, nonce types.Nonce) uint64 {
	if nonce.IsZero() {
		return 0
	}

	m, n := DeriveModulusPair(header)
	return nonceDistanceWithModulus(header, nonce, m, n)
}

// nonceDistanceWithModulus 在已知模数对的前提下计算距离（缓存命中路径）
func nonceDistanceWithModulus(header types.Hash, nonce types.Nonce, m, n *big.Int) uint64 {
	headerInt := new(big.Int).SetBytes(header[:])

	origin := HashToGroup(headerInt, m, n, big.NewInt(0))
	candidate := HashToGroup(headerInt, m, n, nonce.Big())

	return Distance(SplitChunks(origin), SplitChunks(candidate))
}

// IsValidNonce 判定nonce在给定难度下是否构成有效证明
//
// 判定规则：nonce ≠ 0 且 distance ≤ MaxDistance − difficulty。
// 难度越高，可容忍的距离越小，谜题越难。
func IsValidNonce(header types.Hash, nonce types.Nonce, difficulty uint64) bool {
	if nonce.IsZero() {
		return false
	}
	return GetNonceDistance(header, nonce) <= DistanceThreshold(difficulty)
}

// DistanceThreshold 将难度换算为可容忍的最大距离（饱和减法）
func DistanceThreshold(difficulty uint64) uint64 {
	if difficulty >= MaxDistance {
		return 0
	}
	return MaxDistance - difficulty
}
