// 本地nonce搜索工作器
//
// ⛏️ **本地工作器 (Local Worker)**
//
// 没有外部矿工时节点自身也能出块。工作器在nonce范围内做随机起点
// 的递增搜索：
// - 新任务到达即放弃当前任务（任务整体取代语义）
// - 随机起点避免多工作器/多节点重复扫描同一区段
// - 范围耗尽时上报exhausted结果
package producer

import (
	"context"
	"crypto/rand"
	"math/big"

	"github.com/qpchain/v1/pkg/interfaces/infrastructure/crypto"
	logiface "github.com/qpchain/v1/pkg/interfaces/infrastructure/log"
	"github.com/qpchain/v1/pkg/types"
)

// checkBatchSize 每批尝试的nonce数，批间检查任务取代与取消
const checkBatchSize = 64

// LocalWorker 本地nonce搜索工作器
type LocalWorker struct {
	engine  crypto.PuzzleEngine
	logger  logiface.Logger
	jobs    chan *types.MiningJob
	results chan<- types.MiningResult
}

// NewLocalWorker 创建本地工作器
func NewLocalWorker(engine crypto.PuzzleEngine, results chan<- types.MiningResult, logger logiface.Logger) *LocalWorker {
	return &LocalWorker{
		engine:  engine,
		logger:  logger,
		jobs:    make(chan *types.MiningJob, 1),
		results: results,
	}
}

// Dispatch 下发新任务（取代正在搜索的旧任务）
func (w *LocalWorker) Dispatch(job *types.MiningJob) error {
	for {
		select {
		case w.jobs <- job:
			return nil
		default:
			// 挤掉未开始的旧任务
			select {
			case <-w.jobs:
			default:
			}
		}
	}
}

// Run 工作器主循环（阻塞直到ctx取消）
func (w *LocalWorker) Run(ctx context.Context) {
	for {
		select {
		case job := <-w.jobs:
			w.search(ctx, job)
		case <-ctx.Done():
			return
		}
	}
}

// search 在任务范围内搜索有效nonce，直到命中、耗尽或被取代
func (w *LocalWorker) search(ctx context.Context, job *types.MiningJob) {
	one := big.NewInt(1)

restart:
	for {
		rangeSize := new(big.Int).Sub(job.NonceEnd, job.NonceStart)
		rangeSize.Add(rangeSize, one)
		if rangeSize.Sign() <= 0 {
			w.report(types.MiningResult{JobID: job.JobID, Status: types.ResultError})
			return
		}

		// 随机起点偏移
		offset, err := rand.Int(rand.Reader, rangeSize)
		if err != nil {
			offset = big.NewInt(0)
		}

		current := new(big.Int).Add(job.NonceStart, offset)
		attempts := new(big.Int)

		for attempts.Cmp(rangeSize) < 0 {
			for i := 0; i < checkBatchSize && attempts.Cmp(rangeSize) < 0; i++ {
				nonce := types.NonceFromBig(current)
				if !nonce.IsZero() {
					if w.engine.GetNonceDistance(job.PreHash, nonce) <= job.DistanceThreshold {
						w.report(types.MiningResult{
							JobID:  job.JobID,
							Status: types.ResultFound,
							Nonce:  nonce,
						})
						return
					}
				}

				// 递增并在范围终点处回绕到起点
				current.Add(current, one)
				if current.Cmp(job.NonceEnd) > 0 {
					current.Set(job.NonceStart)
				}
				attempts.Add(attempts, one)
			}

			// 批间检查：取消或被新任务取代
			select {
			case <-ctx.Done():
				return
			case next := <-w.jobs:
				job = next
				continue restart
			default:
			}
		}

		w.report(types.MiningResult{JobID: job.JobID, Status: types.ResultExhausted})
		return
	}
}

// report 上报结果（非阻塞，通道满时丢弃）
func (w *LocalWorker) report(result types.MiningResult) {
	select {
	case w.results <- result:
	default:
		if w.logger != nil {
			w.logger.Warnf("结果通道已满，丢弃本地结果 %s", result.JobID)
		}
	}
}
