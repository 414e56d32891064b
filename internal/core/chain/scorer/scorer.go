// Package scorer 提供链评分与最佳链选择
//
// ⚖️ **链评分器 (Chain Scorer)**
//
// 本文件实现分叉选择所依赖的累计工作量比较，专注于：
// - 工作量重推：单块工作量从印章重新推导，不信任区块自带难度
// - 累计求和：沿父链接回溯到创世，任意精度累加，永不溢出
// - 最重者胜：分叉选择比较累计工作量，不比较链长
//
// 📋 **破平规则**：
// 累计工作量相等时选择区块标识字典序较小的一条，保证所有节点
// 在平局时做出一致选择。
package scorer

import (
	"bytes"
	"fmt"
	"math/big"

	consensusiface "github.com/qpchain/v1/pkg/interfaces/consensus"
	"github.com/qpchain/v1/pkg/interfaces/infrastructure/crypto"
	logiface "github.com/qpchain/v1/pkg/interfaces/infrastructure/log"
	"github.com/qpchain/v1/pkg/types"
)

// Scorer 链评分器
type Scorer struct {
	engine  crypto.PuzzleEngine
	headers consensusiface.HeaderReader
	logger  logiface.Logger
}

// New 创建链评分器
func New(engine crypto.PuzzleEngine, headers consensusiface.HeaderReader, logger logiface.Logger) *Scorer {
	return &Scorer{
		engine:  engine,
		headers: headers,
		logger:  logger,
	}
}

// BlockWork 计算单个区块贡献的工作量
func (s *Scorer) BlockWork(header *types.BlockHeader) uint64 {
	return s.engine.BlockWork(header)
}

// CumulativeWork 计算从给定顶端回溯到创世的累计工作量
//
// 回溯过程中任何一个祖先缺失都是错误，向上传播给调用方；静默把
// 缺失祖先当作零工作量会让分叉选择在不完整数据上得出错误结论。
func (s *Scorer) CumulativeWork(tip types.Hash) (*big.Int, error) {
	total := new(big.Int)
	work := new(big.Int)

	current := tip
	for {
		header, err := s.headers.HeaderByHash(current)
		if err != nil {
			return nil, fmt.Errorf("累计工作量回溯在 %s 处中断: %w", current.Hex(), err)
		}

		work.SetUint64(s.engine.BlockWork(header))
		total.Add(total, work)

		if header.IsGenesis() {
			return total, nil
		}
		current = header.ParentHash
	}
}

// BestChain 在候选顶端中选出累计工作量最大的一条
//
// 返回获胜顶端及其累计工作量。任一候选评分失败即整体失败；
// 平局时返回区块标识字典序最小的候选。
func (s *Scorer) BestChain(tips []types.Hash) (types.Hash, *big.Int, error) {
	if len(tips) == 0 {
		return types.ZeroHash, nil, fmt.Errorf("候选顶端列表为空")
	}

	var (
		bestTip  types.Hash
		bestWork *big.Int
	)

	for _, tip := range tips {
		work, err := s.CumulativeWork(tip)
		if err != nil {
			return types.ZeroHash, nil, fmt.Errorf("评估候选顶端 %s 失败: %w", tip.Hex(), err)
		}

		if bestWork == nil || beats(tip, work, bestTip, bestWork) {
			bestTip = tip
			bestWork = work
		}
	}

	return bestTip, bestWork, nil
}

// beats 判定候选(tip, work)是否优于现任(bestTip, bestWork)
func beats(tip types.Hash, work *big.Int, bestTip types.Hash, bestWork *big.Int) bool {
	switch work.Cmp(bestWork) {
	case 1:
		return true
	case -1:
		return false
	default:
		return bytes.Compare(tip[:], bestTip[:]) < 0
	}
}
