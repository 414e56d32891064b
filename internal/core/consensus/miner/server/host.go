// libp2p宿主装配
//
// 🌐 **网络宿主 (Network Host)**
//
// 服务端形态的网络入口：创建libp2p宿主，在挖矿协调协议上注册流
// 处理器，把每条入站流交给Server.HandleConn。
//
// 传输安全与复用：
// - Noise安全握手（加密与双向认证）
// - Yamux流复用（单连接上的有序双向流）
package server

import (
	"fmt"

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/p2p/muxer/yamux"
	"github.com/libp2p/go-libp2p/p2p/security/noise"

	consensusconfig "github.com/qpchain/v1/internal/config/consensus"
	"github.com/qpchain/v1/internal/core/consensus/miner/protocol"
	logiface "github.com/qpchain/v1/pkg/interfaces/infrastructure/log"
)

// Listener 把挖矿协调服务端挂到libp2p宿主上
type Listener struct {
	host   host.Host
	server *Server
	logger logiface.Logger
}

// NewListener 创建宿主并开始接受矿工连接
func NewListener(cfg consensusconfig.NetworkConfig, srv *Server, logger logiface.Logger) (*Listener, error) {
	h, err := libp2p.New(
		libp2p.ListenAddrStrings(cfg.ListenAddresses...),
		libp2p.Security(noise.ID, noise.New),
		libp2p.Muxer(yamux.ID, yamux.DefaultTransport),
	)
	if err != nil {
		return nil, fmt.Errorf("创建libp2p宿主失败: %w", err)
	}

	l := &Listener{host: h, server: srv, logger: logger}

	h.SetStreamHandler(protocol.ProtocolID, func(stream network.Stream) {
		if logger != nil {
			logger.Infof("矿工入站连接: %s", stream.Conn().RemotePeer())
		}
		srv.HandleConn(stream)
	})

	if logger != nil {
		for _, addr := range h.Addrs() {
			logger.Infof("挖矿协调服务端监听于 %s/p2p/%s", addr, h.ID())
		}
	}

	return l, nil
}

// Host 返回底层libp2p宿主
func (l *Listener) Host() host.Host {
	return l.host
}

// Close 停止接受连接并关闭宿主
func (l *Listener) Close() error {
	l.host.RemoveStreamHandler(protocol.ProtocolID)
	l.server.Close()
	return l.host.Close()
}
