// Package client 提供挖矿协调的客户端形态
//
// 🔌 **外部矿工客户端 (External Miner Client)**
//
// 节点配置了外部矿工地址时主动外连，生命周期遵循：
//
//	拨号 → 发送Ready → 收任务/回结果 → 断连 → 指数退避重连（永不放弃）
//
// 核心机制：
// - 指数退避：起始1秒，每次失败翻倍，封顶30秒；成功连接后复位
// - 命令通道：任务下发经有界命令通道串行化到写循环
// - 自动重演：重连成功后把最近一次任务重新下发（任务整体取代语义
//   保证重演无害）
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/muxer/yamux"
	"github.com/libp2p/go-libp2p/p2p/security/noise"
	"github.com/multiformats/go-multiaddr"

	consensusconfig "github.com/qpchain/v1/internal/config/consensus"
	"github.com/qpchain/v1/internal/core/consensus/miner/protocol"
	"github.com/qpchain/v1/internal/core/infrastructure/metrics"
	logiface "github.com/qpchain/v1/pkg/interfaces/infrastructure/log"
	"github.com/qpchain/v1/pkg/types"
)

// ErrClientClosed 客户端已关闭
var ErrClientClosed = errors.New("外部矿工客户端已关闭")

// dialer 建立到外部矿工的一条流（生产实现为libp2p，测试可注入）
type dialer interface {
	Dial(ctx context.Context) (io.ReadWriteCloser, error)
	Close() error
}

// Client 外部矿工客户端
type Client struct {
	cfg     consensusconfig.NetworkConfig
	logger  logiface.Logger
	metrics *metrics.Metrics
	dialer  dialer

	commands chan *types.MiningJob
	results  chan types.MiningResult

	mu      sync.Mutex
	lastJob *types.MiningJob

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New 创建外部矿工客户端（libp2p拨号）
func New(cfg consensusconfig.NetworkConfig, logger logiface.Logger, m *metrics.Metrics) (*Client, error) {
	d, err := newLibp2pDialer(cfg.MinerAddr)
	if err != nil {
		return nil, err
	}
	return newWithDialer(cfg, logger, m, d), nil
}

// newWithDialer 以注入的拨号器创建客户端（测试入口）
func newWithDialer(cfg consensusconfig.NetworkConfig, logger logiface.Logger, m *metrics.Metrics, d dialer) *Client {
	if m == nil {
		m = metrics.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		cfg:      cfg,
		logger:   logger,
		metrics:  m,
		dialer:   d,
		commands: make(chan *types.MiningJob, 16),
		results:  make(chan types.MiningResult, cfg.ResultQueueSize),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Start 启动连接维护循环
func (c *Client) Start() {
	go c.run()
}

// Results 返回结果通道
func (c *Client) Results() <-chan types.MiningResult {
	return c.results
}

// SubmitJob 下发新任务（非阻塞；命令通道满时丢弃最旧的任务）
//
// 任务整体取代语义下只有最新任务有意义，丢弃积压的旧任务是正确
// 行为而不是数据丢失。
func (c *Client) SubmitJob(job *types.MiningJob) error {
	select {
	case <-c.ctx.Done():
		return ErrClientClosed
	default:
	}

	c.mu.Lock()
	c.lastJob = job
	c.mu.Unlock()

	for {
		select {
		case c.commands <- job:
			return nil
		default:
			select {
			case <-c.commands:
			default:
			}
		}
	}
}

// Shutdown 停止重连循环并关闭连接
func (c *Client) Shutdown() {
	c.cancel()
	<-c.done
	_ = c.dialer.Close()
}

// run 连接维护循环：拨号、会话、退避重连
func (c *Client) run() {
	defer close(c.done)

	delay := c.cfg.ReconnectBaseDelay

	for {
		if c.ctx.Err() != nil {
			return
		}

		conn, err := c.dialer.Dial(c.ctx)
		if err != nil {
			c.logReconnect(delay, "连接外部矿工失败: %v，%v后重试", err, delay)
			c.metrics.ReconnectsTotal.Inc()
			if !c.sleep(delay) {
				return
			}
			delay = nextDelay(delay, c.cfg.ReconnectMaxDelay)
			continue
		}

		// 成功建立连接即复位退避
		delay = c.cfg.ReconnectBaseDelay

		c.session(conn)
		_ = conn.Close()

		if c.ctx.Err() != nil {
			return
		}
		c.logReconnect(delay, "与外部矿工的连接中断，%v后重连", delay)
		c.metrics.ReconnectsTotal.Inc()
		if !c.sleep(delay) {
			return
		}
		delay = nextDelay(delay, c.cfg.ReconnectMaxDelay)
	}
}

// session 驱动单条连接上的完整会话
func (c *Client) session(conn io.ReadWriteCloser) {
	codec := protocol.NewCodec(conn)

	if err := codec.WriteMessage(protocol.NewReadyMessage()); err != nil {
		c.logf("发送Ready失败: %v", err)
		return
	}

	// 重连后重演最近一次任务
	c.mu.Lock()
	last := c.lastJob
	c.mu.Unlock()
	if last != nil {
		if err := codec.WriteMessage(protocol.NewJobMessage(last)); err != nil {
			c.logf("重演任务失败: %v", err)
			return
		}
	}

	sessionDone := make(chan struct{})
	defer close(sessionDone)

	// 写循环：命令下发与保活
	go func() {
		keepAlive := time.NewTicker(c.cfg.KeepAliveInterval)
		defer keepAlive.Stop()
		for {
			select {
			case job := <-c.commands:
				if err := codec.WriteMessage(protocol.NewJobMessage(job)); err != nil {
					c.logf("下发任务失败: %v", err)
					_ = conn.Close()
					return
				}
			case <-keepAlive.C:
				if err := codec.WriteKeepAlive(); err != nil {
					_ = conn.Close()
					return
				}
			case <-sessionDone:
				return
			case <-c.ctx.Done():
				_ = conn.Close()
				return
			}
		}
	}()

	// 读循环：结果与保活
	idle := time.NewTimer(c.cfg.IdleTimeout)
	defer idle.Stop()
	go func() {
		select {
		case <-idle.C:
			c.logf("外部矿工连接空闲超过 %v，关闭重连", c.cfg.IdleTimeout)
			_ = conn.Close()
		case <-c.ctx.Done():
			_ = conn.Close()
		case <-sessionDone:
		}
	}()

	for {
		msg, err := codec.ReadMessage()
		if err != nil {
			if !errors.Is(err, io.EOF) && c.ctx.Err() == nil {
				c.logf("读取外部矿工消息失败: %v", err)
			}
			return
		}

		if !idle.Stop() {
			select {
			case <-idle.C:
			default:
			}
		}
		idle.Reset(c.cfg.IdleTimeout)

		switch msg.Type {
		case protocol.TypeKeepAlive:
			// 仅刷新空闲计时

		case protocol.TypeJobResult:
			if msg.Result == nil {
				continue
			}
			result, err := msg.Result.DecodeResult()
			if err != nil {
				c.logf("外部矿工结果解码失败: %v", err)
				continue
			}
			c.metrics.ResultsTotal.WithLabelValues(string(result.Status)).Inc()
			select {
			case c.results <- *result:
			default:
				c.logf("结果通道已满，丢弃结果 %s", result.JobID)
			}

		default:
			c.logf("外部矿工发送了意外消息类型: %q，断开连接", msg.Type)
			return
		}
	}
}

// sleep 可被关闭打断的休眠；返回false表示客户端已关闭
func (c *Client) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-c.ctx.Done():
		return false
	}
}

// nextDelay 指数退避：翻倍并封顶
func nextDelay(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}

// logf 带nil保护的警告日志
func (c *Client) logf(format string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Warnf(format, args...)
	}
}

// logReconnect 退避越久级别越低：首次断连记警告，持续失败降为调试
func (c *Client) logReconnect(delay time.Duration, format string, args ...interface{}) {
	if c.logger == nil {
		return
	}
	if delay > c.cfg.ReconnectBaseDelay {
		c.logger.Debugf(format, args...)
		return
	}
	c.logger.Warnf(format, args...)
}

// libp2pDialer 基于libp2p的生产拨号器
type libp2pDialer struct {
	host host.Host
	peer peer.AddrInfo
}

// newLibp2pDialer 解析矿工multiaddr并准备宿主
func newLibp2pDialer(minerAddr string) (*libp2pDialer, error) {
	maddr, err := multiaddr.NewMultiaddr(minerAddr)
	if err != nil {
		return nil, fmt.Errorf("解析外部矿工地址失败: %w", err)
	}

	info, err := peer.AddrInfoFromP2pAddr(maddr)
	if err != nil {
		return nil, fmt.Errorf("外部矿工地址缺少peer标识: %w", err)
	}

	h, err := libp2p.New(
		libp2p.NoListenAddrs,
		libp2p.Security(noise.ID, noise.New),
		libp2p.Muxer(yamux.ID, yamux.DefaultTransport),
	)
	if err != nil {
		return nil, fmt.Errorf("创建libp2p宿主失败: %w", err)
	}

	return &libp2pDialer{host: h, peer: *info}, nil
}

// Dial 连接外部矿工并打开协调协议流
func (d *libp2pDialer) Dial(ctx context.Context) (io.ReadWriteCloser, error) {
	if err := d.host.Connect(ctx, d.peer); err != nil {
		return nil, fmt.Errorf("连接外部矿工失败: %w", err)
	}

	stream, err := d.host.NewStream(ctx, d.peer.ID, protocol.ProtocolID)
	if err != nil {
		return nil, fmt.Errorf("打开协调协议流失败: %w", err)
	}
	return stream, nil
}

// Close 关闭宿主
func (d *libp2pDialer) Close() error {
	return d.host.Close()
}
