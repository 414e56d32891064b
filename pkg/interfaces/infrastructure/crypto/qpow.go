// Package crypto 提供QPC系统的谜题引擎（PoW核心）接口定义
//
// ⚡ **谜题计算服务 (Puzzle Engine Service)**
//
// 本文件定义了QPC区块链系统的PoW谜题计算接口，专注于：
// - 距离计算：对(头部摘要, nonce)对计算谜题距离
// - 有效性判定：按难度阈值判定nonce是否构成有效证明
// - 工作量推导：从区块印章重推区块工作量（链评分依赖）
// - 算法封装：封装模幂谜题的实现细节
//
// 🎯 **核心功能**
// - PuzzleEngine：谜题引擎接口，提供距离、验证与工作量服务
// - 确定性：同一输入在任何机器、任何时刻产出比特级一致的结果
// - 纯函数：全部操作无副作用、无隐藏状态
//
// 🔗 **组件关系**
// - PuzzleEngine：被挖矿工作器、区块验证、链评分器使用
// - 与难度控制器：共享MaxDistance等谜题常量
package crypto

import (
	"github.com/qpchain/v1/pkg/types"
)

// PuzzleEngine 定义PoW谜题计算接口
//
// 所有方法均为全函数（total）且无副作用；不存在可恢复的错误返回——
// 传入零模数等违反前置条件的调用属于推导层缺陷，实现应当快速失败
// （panic），而不是重试。
type PuzzleEngine interface {
	// GetNonceDistance 计算(header, nonce)对的谜题距离
	//
	// nonce为保留零哨兵时返回0。结果只依赖两个入参，不依赖任何
	// 隐藏状态。
	GetNonceDistance(header types.Hash, nonce types.Nonce) uint64

	// IsValidNonce 判定nonce在给定难度下是否构成有效证明
	//
	// 判定规则：nonce ≠ 0 且 distance ≤ MaxDistance − difficulty。
	IsValidNonce(header types.Hash, nonce types.Nonce, difficulty uint64) bool

	// BlockWork 从区块印章重推该区块贡献的工作量
	//
	// 工作量永远从印章重新推导，绝不信任区块元数据中的历史难度，
	// 以防节点通过谎报历史难度伪造更高的累计得分。创世区块无印章，
	// 其工作量等于其记录的初始难度。
	BlockWork(header *types.BlockHeader) uint64
}
