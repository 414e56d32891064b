// Package server 提供挖矿协调的服务端形态
//
// 🖧 **挖矿协调服务端 (Mining Coordination Server)**
//
// 节点监听入站矿工连接，生命周期遵循：
//
//	连接建立 → 等待Ready → 注册并回放当前任务 → 广播/收果 → 断连注销
//
// 核心机制：
// - 每矿工独立的有界任务队列：广播为尽力而为的非阻塞投递，队列满
//   的矿工错过本次任务（新任务会整体取代旧任务，错过无害）
// - 结果打标：连接层给每条结果盖上矿工标识后汇入共享结果通道
// - 任务回放：新就绪的矿工立即收到当前任务，不必等待下一次广播
// - 保活与空闲：按固定间隔发送保活帧；空闲超时的连接被关闭
package server

import (
	"errors"
	"io"
	"sync"
	"time"

	consensusconfig "github.com/qpchain/v1/internal/config/consensus"
	"github.com/qpchain/v1/internal/core/consensus/miner/protocol"
	"github.com/qpchain/v1/internal/core/infrastructure/metrics"
	logiface "github.com/qpchain/v1/pkg/interfaces/infrastructure/log"
	"github.com/qpchain/v1/pkg/types"
)

// ErrServerClosed 服务端已关闭
var ErrServerClosed = errors.New("挖矿协调服务端已关闭")

// Server 挖矿协调服务端
type Server struct {
	cfg     consensusconfig.NetworkConfig
	logger  logiface.Logger
	metrics *metrics.Metrics

	results chan types.MiningResult

	mu          sync.Mutex
	miners      map[uint64]*minerConn
	nextMinerID uint64
	currentJob  *types.MiningJob
	closed      bool

	wg sync.WaitGroup
}

// minerConn 一条已就绪的矿工连接
type minerConn struct {
	id    uint64
	codec *protocol.Codec
	conn  io.Closer
	jobs  chan *types.MiningJob
	done  chan struct{}
}

// New 创建挖矿协调服务端
func New(cfg consensusconfig.NetworkConfig, logger logiface.Logger, m *metrics.Metrics) *Server {
	if m == nil {
		m = metrics.NewNop()
	}
	return &Server{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		results: make(chan types.MiningResult, cfg.ResultQueueSize),
		miners:  make(map[uint64]*minerConn),
	}
}

// Results 返回共享结果通道（所有矿工的结果都打标后汇入这里）
func (s *Server) Results() <-chan types.MiningResult {
	return s.results
}

// MinerCount 返回当前已就绪的矿工数
func (s *Server) MinerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.miners)
}

// Broadcast 向所有已就绪矿工下发新任务
//
// 新任务整体取代旧任务并被记录为当前任务，供后续新矿工回放。投递
// 为非阻塞：队列满的矿工错过本次广播，由日志与指标记录。
func (s *Server) Broadcast(job *types.MiningJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrServerClosed
	}

	s.currentJob = job
	s.metrics.JobsBroadcastTotal.Inc()

	for id, mc := range s.miners {
		select {
		case mc.jobs <- job:
		default:
			s.logf("矿工 %d 的任务队列已满，错过任务 %s", id, job.JobID)
		}
	}
	return nil
}

// HandleConn 处理一条矿工连接（阻塞直到连接终止）
//
// 既被libp2p流处理器调用，也可直接用net.Pipe驱动测试。
func (s *Server) HandleConn(conn io.ReadWriteCloser) {
	defer conn.Close()

	codec := protocol.NewCodec(conn)
	session := protocol.NewSession()

	mc := &minerConn{
		codec: codec,
		conn:  conn,
		jobs:  make(chan *types.MiningJob, s.cfg.JobQueueSize),
		done:  make(chan struct{}),
	}

	registered := false
	defer func() {
		session.Close()
		close(mc.done)
		if registered {
			s.unregister(mc)
		}
	}()

	idle := time.NewTimer(s.cfg.IdleTimeout)
	defer idle.Stop()
	go func() {
		select {
		case <-idle.C:
			s.logf("矿工连接空闲超过 %v，关闭连接", s.cfg.IdleTimeout)
			_ = conn.Close()
		case <-mc.done:
		}
	}()

	for {
		msg, err := codec.ReadMessage()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.logf("读取矿工消息失败: %v", err)
			}
			return
		}

		if !idle.Stop() {
			select {
			case <-idle.C:
			default:
			}
		}
		idle.Reset(s.cfg.IdleTimeout)

		if err := session.Accept(msg.Type); err != nil {
			s.logf("矿工协议违例，丢弃连接: %v", err)
			return
		}

		switch msg.Type {
		case protocol.TypeKeepAlive:
			// 仅刷新空闲计时

		case protocol.TypeReady:
			if ok := s.register(mc); !ok {
				return
			}
			registered = true
			s.wg.Add(1)
			go s.writeLoop(mc)

		case protocol.TypeJobResult:
			s.handleResult(mc, msg.Result)
		}
	}
}

// Close 关闭服务端并断开全部矿工连接
func (s *Server) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	conns := make([]*minerConn, 0, len(s.miners))
	for _, mc := range s.miners {
		conns = append(conns, mc)
	}
	s.mu.Unlock()

	for _, mc := range conns {
		_ = mc.conn.Close()
	}
	s.wg.Wait()
}

// register 注册就绪矿工并回放当前任务
func (s *Server) register(mc *minerConn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	s.nextMinerID++
	mc.id = s.nextMinerID
	s.miners[mc.id] = mc
	s.metrics.ConnectedMiners.Set(float64(len(s.miners)))

	// 回放当前任务：新矿工不必等待下一次广播
	if s.currentJob != nil {
		select {
		case mc.jobs <- s.currentJob:
		default:
		}
	}

	s.infof("矿工 %d 已就绪，当前矿工数 %d", mc.id, len(s.miners))
	return true
}

// unregister 注销断开的矿工
func (s *Server) unregister(mc *minerConn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.miners[mc.id]; !ok {
		return
	}
	delete(s.miners, mc.id)
	s.metrics.ConnectedMiners.Set(float64(len(s.miners)))
	s.infof("矿工 %d 已断开，当前矿工数 %d", mc.id, len(s.miners))
}

// handleResult 解码结果、盖上矿工标识并汇入共享结果通道
func (s *Server) handleResult(mc *minerConn, payload *protocol.ResultPayload) {
	if payload == nil {
		s.logf("矿工 %d 发送了空结果负载", mc.id)
		return
	}

	result, err := payload.DecodeResult()
	if err != nil {
		s.logf("矿工 %d 的结果解码失败: %v", mc.id, err)
		return
	}

	result.MinerID = mc.id
	s.metrics.ResultsTotal.WithLabelValues(string(result.Status)).Inc()

	select {
	case s.results <- *result:
	default:
		s.logf("共享结果通道已满，丢弃矿工 %d 的结果 %s", mc.id, result.JobID)
	}
}

// writeLoop 矿工连接的写循环：任务下发与保活交错进行
func (s *Server) writeLoop(mc *minerConn) {
	defer s.wg.Done()

	keepAlive := time.NewTicker(s.cfg.KeepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case job := <-mc.jobs:
			if err := mc.codec.WriteMessage(protocol.NewJobMessage(job)); err != nil {
				s.logf("向矿工 %d 下发任务失败: %v", mc.id, err)
				_ = mc.conn.Close()
				return
			}

		case <-keepAlive.C:
			if err := mc.codec.WriteKeepAlive(); err != nil {
				_ = mc.conn.Close()
				return
			}

		case <-mc.done:
			return
		}
	}
}

// logf 带nil保护的警告日志
func (s *Server) logf(format string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Warnf(format, args...)
	}
}

// infof 带nil保护的信息日志
func (s *Server) infof(format string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Infof(format, args...)
	}
}
