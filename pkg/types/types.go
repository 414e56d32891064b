// Package types 提供QPC系统的公共基础类型定义
//
// 📦 **核心数据模型 (Core Data Model)**
//
// 本文件定义PoW核心子系统在各层之间传递的基础数据类型，专注于：
// - 区块标识：32字节头部摘要（封块前的pre-hash）
// - 谜题求解：512位nonce（零值为保留的非法哨兵值）
// - 挖矿协作：挖矿任务与挖矿结果的进程内表示
// - 跨层共享：被puzzle引擎、链评分器、挖矿协调器共同使用
//
// 🎯 **设计原则**
// - 零依赖：仅依赖标准库，避免基础类型层引入外部依赖
// - 值语义：Hash与Nonce采用定长数组，天然可比较、可作map键
// - 不可变性：任务一经创建不再修改，新任务整体替换旧任务
package types

import (
	"encoding/hex"
	"fmt"
	"math/big"
)

// HashSize 头部摘要的字节长度（256位）
const HashSize = 32

// NonceSize nonce的字节长度（512位）
const NonceSize = 64

// Hash 区块头部摘要（封块前的pre-hash，喂入谜题引擎的32字节值）
type Hash [HashSize]byte

// Nonce 512位谜题解，零值为保留的永久非法哨兵
type Nonce [NonceSize]byte

// ZeroHash 全零摘要
var ZeroHash = Hash{}

// Hex 返回不带0x前缀的小写十六进制表示（64个字符）
func (h Hash) Hex() string {
	return hex.EncodeToString(h[:])
}

// IsZero 判断摘要是否为全零
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// ParseHash 从64位十六进制字符串解析Hash
func ParseHash(s string) (Hash, error) {
	var h Hash
	raw, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("解析头部摘要失败: %w", err)
	}
	if len(raw) != HashSize {
		return h, fmt.Errorf("头部摘要长度必须为%d字节，实际长度: %d", HashSize, len(raw))
	}
	copy(h[:], raw)
	return h, nil
}

// Hex 返回不带0x前缀的小写十六进制表示（128个字符）
func (n Nonce) Hex() string {
	return hex.EncodeToString(n[:])
}

// IsZero 判断nonce是否为保留的零哨兵
func (n Nonce) IsZero() bool {
	return n == Nonce{}
}

// Big 以大端序将nonce转换为大整数
func (n Nonce) Big() *big.Int {
	return new(big.Int).SetBytes(n[:])
}

// NonceFromBig 从大整数构造nonce（大端序右对齐，超过512位时截断高位）
func NonceFromBig(v *big.Int) Nonce {
	var n Nonce
	raw := v.Bytes()
	if len(raw) > NonceSize {
		raw = raw[len(raw)-NonceSize:]
	}
	copy(n[NonceSize-len(raw):], raw)
	return n
}

// ParseNonce 从128位十六进制字符串解析Nonce
func ParseNonce(s string) (Nonce, error) {
	var n Nonce
	raw, err := hex.DecodeString(s)
	if err != nil {
		return n, fmt.Errorf("解析nonce失败: %w", err)
	}
	if len(raw) != NonceSize {
		return n, fmt.Errorf("nonce长度必须为%d字节，实际长度: %d", NonceSize, len(raw))
	}
	copy(n[:], raw)
	return n, nil
}

// BlockHeader 链评分与谜题验证所需的区块头视图
//
// 📝 **字段说明**：
// - Hash: 封块后的区块标识
// - ParentHash: 父区块标识（创世区块为全零）
// - Number: 区块高度（创世为0）
// - PreHash: 封块前的头部摘要（谜题输入）
// - Difficulty: 该区块封块时记录的难度标量
// - Seal: 附着在区块元数据上的nonce（工作量证明）
// - Timestamp: 出块时间（毫秒）
type BlockHeader struct {
	Hash       Hash   `json:"hash"`
	ParentHash Hash   `json:"parent_hash"`
	Number     uint64 `json:"number"`
	PreHash    Hash   `json:"pre_hash"`
	Difficulty uint64 `json:"difficulty"`
	Seal       Nonce  `json:"seal"`
	Timestamp  int64  `json:"timestamp"`
}

// IsGenesis 判断是否为创世区块
func (h *BlockHeader) IsGenesis() bool {
	return h.Number == 0 && h.ParentHash.IsZero()
}

// MiningJob 一个挖矿任务（进程内表示）
//
// 任务由生产者按重建触发逐个创建；新任务整体取代旧任务，系统内
// 不存在对任务的原地修改，也不存在显式取消消息。
type MiningJob struct {
	JobID             string   // 任务唯一标识
	PreHash           Hash     // 待求解的头部摘要
	DistanceThreshold uint64   // 允许的最大距离（MaxDistance − difficulty）
	NonceStart        *big.Int // nonce搜索范围起点（含）
	NonceEnd          *big.Int // nonce搜索范围终点（含）
}

// ResultStatus 挖矿结果状态
type ResultStatus string

const (
	// ResultFound 找到满足阈值的nonce
	ResultFound ResultStatus = "found"
	// ResultExhausted 搜索范围耗尽仍未找到
	ResultExhausted ResultStatus = "exhausted"
	// ResultError 矿工侧出错
	ResultError ResultStatus = "error"
)

// MiningResult 一次挖矿结果（进程内表示），由生产者恰好消费一次
type MiningResult struct {
	JobID   string       // 对应的任务标识
	Status  ResultStatus // 结果状态
	Nonce   Nonce        // Status == found 时为候选nonce
	MinerID uint64       // 产生结果的矿工标识（服务端形态下由连接层打标）
}

// RebuildReason 重建触发原因
type RebuildReason int

const (
	// RebuildInitial 首次观察时立即触发一次（引导生产）
	RebuildInitial RebuildReason = iota
	// RebuildBlockImported 新的最佳区块导入
	RebuildBlockImported
	// RebuildNewTransactions 待处理交易累计达到阈值
	RebuildNewTransactions
)

// String 返回触发原因的可读名称
func (r RebuildReason) String() string {
	switch r {
	case RebuildInitial:
		return "initial"
	case RebuildBlockImported:
		return "block_imported"
	case RebuildNewTransactions:
		return "new_transactions"
	default:
		return "unknown"
	}
}

// DifficultyAdjustedEvent 难度调整事件（结构化上报给运维侧）
type DifficultyAdjustedEvent struct {
	OldDifficulty    uint64 // 调整前难度
	NewDifficulty    uint64 // 调整后难度
	AverageBlockTime int64  // 观测到的平均出块时间（毫秒）
}
