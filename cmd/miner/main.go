// QPC外部矿工入口
//
// ⛏️ **独立矿工进程 (Standalone Miner)**
//
// 连接节点的挖矿协调服务端，按协议收任务、搜nonce、报结果：
//
//	连接 → Ready → 收NewJob（新任务取代旧任务）→ found/exhausted上报
//
// 断连后按指数退避重连，永不放弃。
package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"time"

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/muxer/yamux"
	"github.com/libp2p/go-libp2p/p2p/security/noise"
	"github.com/multiformats/go-multiaddr"
	"github.com/spf13/cobra"

	"github.com/qpchain/v1/internal/core/consensus/miner/protocol"
	"github.com/qpchain/v1/internal/core/infrastructure/crypto/qpow"
	"github.com/qpchain/v1/internal/core/infrastructure/log"
	logiface "github.com/qpchain/v1/pkg/interfaces/infrastructure/log"
	"github.com/qpchain/v1/pkg/types"
)

var (
	nodeAddr          string
	keepAliveInterval time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "qpc-miner",
	Short: "QPC外部矿工",
	Long:  "QPC外部矿工：连接节点的挖矿协调服务端，执行模幂谜题的nonce搜索。",
	RunE: func(cmd *cobra.Command, args []string) error {
		if nodeAddr == "" {
			return fmt.Errorf("必须通过 --node 指定节点multiaddr")
		}
		return runMiner(nodeAddr)
	},
}

func init() {
	rootCmd.Flags().StringVarP(&nodeAddr, "node", "n", "", "节点multiaddr（含/p2p/节点ID）")
	rootCmd.Flags().DurationVar(&keepAliveInterval, "keepalive", 10*time.Second, "保活帧发送间隔")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runMiner 矿工主循环：连接、会话、退避重连
func runMiner(addr string) error {
	logger := log.GetLogger().With("component", "miner")

	maddr, err := multiaddr.NewMultiaddr(addr)
	if err != nil {
		return fmt.Errorf("解析节点地址失败: %w", err)
	}
	info, err := peer.AddrInfoFromP2pAddr(maddr)
	if err != nil {
		return fmt.Errorf("节点地址缺少peer标识: %w", err)
	}

	h, err := libp2p.New(
		libp2p.NoListenAddrs,
		libp2p.Security(noise.ID, noise.New),
		libp2p.Muxer(yamux.ID, yamux.DefaultTransport),
	)
	if err != nil {
		return fmt.Errorf("创建libp2p宿主失败: %w", err)
	}
	defer h.Close()

	ctx := context.Background()
	delay := time.Second
	const maxDelay = 30 * time.Second

	for {
		if err := h.Connect(ctx, *info); err != nil {
			logger.Warnf("连接节点失败: %v，%v后重试", err, delay)
			time.Sleep(delay)
			delay = backoff(delay, maxDelay)
			continue
		}

		stream, err := h.NewStream(ctx, info.ID, protocol.ProtocolID)
		if err != nil {
			logger.Warnf("打开协调协议流失败: %v，%v后重试", err, delay)
			time.Sleep(delay)
			delay = backoff(delay, maxDelay)
			continue
		}

		delay = time.Second
		logger.Infof("已连接节点 %s", info.ID)

		session(stream, logger)
		_ = stream.Close()

		logger.Warnf("与节点的连接中断，%v后重连", delay)
		time.Sleep(delay)
		delay = backoff(delay, maxDelay)
	}
}

// session 驱动单条连接上的完整矿工会话
func session(stream io.ReadWriteCloser, logger logiface.Logger) {
	codec := protocol.NewCodec(stream)

	if err := codec.WriteMessage(protocol.NewReadyMessage()); err != nil {
		logger.Warnf("发送Ready失败: %v", err)
		return
	}

	done := make(chan struct{})
	defer close(done)

	// 保活环
	go func() {
		ticker := time.NewTicker(keepAliveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := codec.WriteKeepAlive(); err != nil {
					_ = stream.Close()
					return
				}
			case <-done:
				return
			}
		}
	}()

	var cancelSearch context.CancelFunc = func() {}
	defer func() { cancelSearch() }()

	for {
		msg, err := codec.ReadMessage()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Warnf("读取节点消息失败: %v", err)
			}
			return
		}

		switch msg.Type {
		case protocol.TypeKeepAlive:

		case protocol.TypeNewJob:
			if msg.Job == nil {
				continue
			}
			job, err := msg.Job.DecodeJob()
			if err != nil {
				logger.Warnf("任务解码失败: %v", err)
				continue
			}

			// 新任务整体取代旧任务
			cancelSearch()
			var searchCtx context.Context
			searchCtx, cancelSearch = context.WithCancel(context.Background())
			go searchJob(searchCtx, codec, job, logger)

		default:
			logger.Warnf("节点发送了意外消息类型: %q", msg.Type)
			return
		}
	}
}

// searchJob 在任务范围内做随机起点的递增搜索
func searchJob(ctx context.Context, codec *protocol.Codec, job *types.MiningJob, logger logiface.Logger) {
	logger.Infof("开始搜索任务 %s（阈值 %d）", job.JobID, job.DistanceThreshold)

	rangeSize := new(big.Int).Sub(job.NonceEnd, job.NonceStart)
	rangeSize.Add(rangeSize, big.NewInt(1))

	offset, err := rand.Int(rand.Reader, rangeSize)
	if err != nil {
		offset = big.NewInt(0)
	}

	current := new(big.Int).Add(job.NonceStart, offset)
	attempts := new(big.Int)
	one := big.NewInt(1)

	for attempts.Cmp(rangeSize) < 0 {
		if ctx.Err() != nil {
			return
		}

		nonce := types.NonceFromBig(current)
		if !nonce.IsZero() {
			if qpow.GetNonceDistance(job.PreHash, nonce) <= job.DistanceThreshold {
				logger.Infof("任务 %s 命中nonce", job.JobID)
				report(codec, &types.MiningResult{
					JobID:  job.JobID,
					Status: types.ResultFound,
					Nonce:  nonce,
				}, logger)
				return
			}
		}

		current.Add(current, one)
		if current.Cmp(job.NonceEnd) > 0 {
			current.Set(job.NonceStart)
		}
		attempts.Add(attempts, one)
	}

	report(codec, &types.MiningResult{
		JobID:  job.JobID,
		Status: types.ResultExhausted,
	}, logger)
}

// report 上报结果
func report(codec *protocol.Codec, result *types.MiningResult, logger logiface.Logger) {
	if err := codec.WriteMessage(protocol.NewResultMessage(result)); err != nil {
		logger.Warnf("上报结果 %s 失败: %v", result.JobID, err)
	}
}

// backoff 指数退避：翻倍并封顶
func backoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}
