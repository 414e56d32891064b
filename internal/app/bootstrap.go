// Package app 提供QPC节点的装配与生命周期管理
//
// 🚀 **应用装配 (Application Bootstrap)**
//
// 按依赖层次装配全部模块：
//
//	基础设施层：配置 → 日志 → 时钟 → 事件 → 指标 → 谜题引擎
//	持久化层：  头部存储
//	链层：      链评分器 → 本地链
//	挖矿层：    重建触发器 → 协调服务端/客户端 → 生产者
//
// 注意：加载顺序必须遵循模块间的依赖关系，从底层基础模块到上层
// 应用模块。
package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/qpchain/v1/internal/config"
	consensusconfig "github.com/qpchain/v1/internal/config/consensus"
	"github.com/qpchain/v1/internal/core/chain/localchain"
	"github.com/qpchain/v1/internal/core/chain/scorer"
	"github.com/qpchain/v1/internal/core/consensus/miner/client"
	"github.com/qpchain/v1/internal/core/consensus/miner/producer"
	"github.com/qpchain/v1/internal/core/consensus/miner/server"
	"github.com/qpchain/v1/internal/core/consensus/miner/trigger"
	"github.com/qpchain/v1/internal/core/infrastructure/clock"
	"github.com/qpchain/v1/internal/core/infrastructure/crypto/qpow"
	"github.com/qpchain/v1/internal/core/infrastructure/event"
	"github.com/qpchain/v1/internal/core/infrastructure/log"
	"github.com/qpchain/v1/internal/core/infrastructure/metrics"
	"github.com/qpchain/v1/internal/core/persistence/headerstore"
	consensusiface "github.com/qpchain/v1/pkg/interfaces/consensus"
	clockiface "github.com/qpchain/v1/pkg/interfaces/infrastructure/clock"
	"github.com/qpchain/v1/pkg/interfaces/infrastructure/crypto"
	logiface "github.com/qpchain/v1/pkg/interfaces/infrastructure/log"
	"github.com/qpchain/v1/pkg/types"
)

// Overrides 命令行覆盖项，优先级高于配置文件
type Overrides struct {
	// Mining 是否启动区块生产循环
	Mining bool

	// ListenAddrs 覆盖挖矿协调服务端监听地址
	ListenAddrs []string

	// MinerAddr 覆盖外部矿工multiaddr
	MinerAddr string
}

// Bootstrap 应用装配器
type Bootstrap struct {
	configPath string
	overrides  Overrides
}

// NewBootstrap 创建应用装配器
func NewBootstrap(configPath string, overrides Overrides) *Bootstrap {
	return &Bootstrap{configPath: configPath, overrides: overrides}
}

// Options 返回按依赖顺序排列的全部fx选项
func (b *Bootstrap) Options() fx.Option {
	return fx.Options(
		fx.Options(b.setupInfrastructureLayer()...),
		fx.Options(b.setupPersistenceLayer()...),
		fx.Options(b.setupChainLayer()...),
		fx.Options(b.setupMiningLayer()...),
	)
}

// setupInfrastructureLayer 基础设施层：配置、日志、时钟、事件、指标、谜题引擎
func (b *Bootstrap) setupInfrastructureLayer() []fx.Option {
	return []fx.Option{
		fx.Provide(func() (*config.AppConfig, error) {
			return config.Load(b.configPath)
		}),
		fx.Provide(config.NewProvider),
		fx.Provide(func(p *config.Provider) (*consensusconfig.ConsensusOptions, error) {
			opts := p.GetConsensus()
			if len(b.overrides.ListenAddrs) > 0 {
				opts.Network.ListenAddresses = b.overrides.ListenAddrs
			}
			if b.overrides.MinerAddr != "" {
				opts.Network.MinerAddr = b.overrides.MinerAddr
			}
			if err := opts.Validate(); err != nil {
				return nil, fmt.Errorf("共识配置校验失败: %w", err)
			}
			return opts, nil
		}),

		log.Module(),

		// 时间源按配置启用：指定NTP服务器时用偏移校正时钟，否则用本机时钟
		fx.Provide(func(lc fx.Lifecycle, p *config.Provider, logger logiface.Logger) clockiface.Clock {
			clockCfg := p.GetClock()
			if clockCfg.NTPServer == "" {
				return clock.NewSystemClock()
			}
			ntpClock := clock.NewNTPClock(clockCfg.NTPServer, clockCfg.RefreshInterval, logger)
			lc.Append(fx.Hook{
				OnStop: func(context.Context) error { ntpClock.Stop(); return nil },
			})
			return ntpClock
		}),
		fx.Provide(event.New),
		fx.Provide(func() (*prometheus.Registry, *metrics.Metrics) {
			reg := prometheus.NewRegistry()
			return reg, metrics.New(reg)
		}),

		qpow.Module(),
	}
}

// setupPersistenceLayer 持久化层：头部存储
func (b *Bootstrap) setupPersistenceLayer() []fx.Option {
	return []fx.Option{
		fx.Provide(func(lc fx.Lifecycle, p *config.Provider, logger logiface.Logger) (*headerstore.Store, error) {
			store, err := headerstore.New(p.GetStorage(), logger)
			if err != nil {
				return nil, err
			}
			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					return store.Close()
				},
			})
			return store, nil
		}),
	}
}

// setupChainLayer 链层：评分器与本地链
func (b *Bootstrap) setupChainLayer() []fx.Option {
	return []fx.Option{
		fx.Provide(func(engine crypto.PuzzleEngine, store *headerstore.Store, logger logiface.Logger) *scorer.Scorer {
			return scorer.New(engine, store, logger)
		}),
		fx.Provide(func(
			opts *consensusconfig.ConsensusOptions,
			store *headerstore.Store,
			sc *scorer.Scorer,
			engine crypto.PuzzleEngine,
			clk clockiface.Clock,
			bus event.Bus,
			logger logiface.Logger,
		) (*localchain.Chain, consensusiface.BlockAssembler, consensusiface.ChainView, error) {
			chain, err := localchain.New(opts, store, sc, engine, clk, bus, logger)
			if err != nil {
				return nil, nil, nil, err
			}
			return chain, chain, chain, nil
		}),
	}
}

// setupMiningLayer 挖矿层：触发器、协调服务端/客户端、生产者
func (b *Bootstrap) setupMiningLayer() []fx.Option {
	return []fx.Option{
		fx.Provide(func(
			lc fx.Lifecycle,
			opts *consensusconfig.ConsensusOptions,
			bus event.Bus,
			clk clockiface.Clock,
			logger logiface.Logger,
			m *metrics.Metrics,
		) *trigger.Trigger {
			tr := trigger.New(opts.Miner, bus, clk, logger, m)
			lc.Append(fx.Hook{
				OnStart: func(context.Context) error { return tr.Start() },
				OnStop:  func(context.Context) error { tr.Stop(); return nil },
			})
			return tr
		}),

		fx.Provide(func(
			lc fx.Lifecycle,
			opts *consensusconfig.ConsensusOptions,
			logger logiface.Logger,
			m *metrics.Metrics,
		) (*server.Server, error) {
			srv := server.New(opts.Network, logger, m)
			listener, err := server.NewListener(opts.Network, srv, logger)
			if err != nil {
				return nil, err
			}
			lc.Append(fx.Hook{
				OnStop: func(context.Context) error { return listener.Close() },
			})
			return srv, nil
		}),

		// 客户端形态按配置启用：未配置外部矿工地址时为nil
		fx.Provide(func(
			lc fx.Lifecycle,
			opts *consensusconfig.ConsensusOptions,
			logger logiface.Logger,
			m *metrics.Metrics,
		) (*client.Client, error) {
			if opts.Network.MinerAddr == "" {
				return nil, nil
			}
			cli, err := client.New(opts.Network, logger, m)
			if err != nil {
				return nil, err
			}
			lc.Append(fx.Hook{
				OnStart: func(context.Context) error { cli.Start(); return nil },
				OnStop:  func(context.Context) error { cli.Shutdown(); return nil },
			})
			return cli, nil
		}),

		fx.Invoke(b.runProducer),
	}
}

// runProducer 组装并运行生产者主循环
func (b *Bootstrap) runProducer(
	lc fx.Lifecycle,
	opts *consensusconfig.ConsensusOptions,
	assembler consensusiface.BlockAssembler,
	chainView consensusiface.ChainView,
	engine crypto.PuzzleEngine,
	clk clockiface.Clock,
	bus event.Bus,
	tr *trigger.Trigger,
	srv *server.Server,
	cli *client.Client,
	logger logiface.Logger,
	m *metrics.Metrics,
) {
	if !b.overrides.Mining {
		logger.Infof("区块生产已通过 --mining=false 禁用，节点仅维护链状态")
		return
	}

	prod := producer.New(opts, assembler, chainView, engine, clk, bus, tr.Triggers(), logger, m)

	prod.AddSink(serverSink{srv})
	if cli != nil {
		prod.AddSink(clientSink{cli})
	}

	ctx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go pumpResults(ctx, srv.Results(), prod.ResultsIn())
			if cli != nil {
				go pumpResults(ctx, cli.Results(), prod.ResultsIn())
			}
			go prod.Run(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

// serverSink 把服务端广播适配为任务下发目的地
type serverSink struct {
	srv *server.Server
}

func (s serverSink) Dispatch(job *types.MiningJob) error {
	return s.srv.Broadcast(job)
}

// clientSink 把客户端下发适配为任务下发目的地
type clientSink struct {
	cli *client.Client
}

func (s clientSink) Dispatch(job *types.MiningJob) error {
	return s.cli.SubmitJob(job)
}

// pumpResults 把一路结果源泵入生产者
func pumpResults(ctx context.Context, src <-chan types.MiningResult, dst chan<- types.MiningResult) {
	for {
		select {
		case result := <-src:
			select {
			case dst <- result:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
