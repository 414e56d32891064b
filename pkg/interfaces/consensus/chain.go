// Package consensus 提供QPC共识子系统对外协作的窄接口定义
//
// 🔗 **协作边界 (Collaboration Boundary)**
//
// PoW核心不拥有账本存储、交易池或区块导入流水线；它通过本文件的
// 窄能力接口抽象地依赖这些外部协作者。生产实现与测试实现共同满足
// 这些接口。
package consensus

import (
	"context"

	"github.com/qpchain/v1/pkg/types"
)

// HeaderReader 头部查询能力（链评分器的唯一存储依赖）
type HeaderReader interface {
	// HeaderByHash 按区块标识查询头部
	//
	// 缺失的祖先必须以错误形式向上传播，绝不允许静默当作零工作量。
	HeaderByHash(hash types.Hash) (*types.BlockHeader, error)
}

// BlockAssembler 候选区块装配能力（交易选择与打包属于外部协作者）
type BlockAssembler interface {
	// BuildCandidate 在当前最佳链上装配一个新的候选区块
	//
	// 返回封块前的头部摘要与当前难度；区块体由装配方持有，核心只
	// 经手摘要与印章。
	BuildCandidate(ctx context.Context) (*types.CandidateBlock, error)
}

// ChainView 区块提交与链状态查询能力
type ChainView interface {
	HeaderReader

	// SubmitBlock 提交已封块的候选区块进入导入流水线
	//
	// 返回导入后的头部用于下游通知；导入失败只记录日志并视为
	// "未被接受"，对生产者进程永不致命。
	SubmitBlock(ctx context.Context, candidate *types.CandidateBlock, seal types.Nonce) (*types.BlockHeader, error)
}
