// 应用入口
package app

import (
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// Run 装配并运行QPC节点，阻塞直到收到终止信号
func Run(configPath string, overrides Overrides) {
	b := NewBootstrap(configPath, overrides)

	app := fx.New(
		b.Options(),
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger}
		}),
	)

	app.Run()
}
