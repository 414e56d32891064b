// Package log 提供日志管理功能
package log

import (
	"fmt"

	"github.com/qpchain/v1/internal/config"
	logInterface "github.com/qpchain/v1/pkg/interfaces/infrastructure/log"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ModuleParams 定义日志模块的依赖参数
type ModuleParams struct {
	fx.In

	Provider *config.Provider // 配置提供者
}

// ModuleOutput 定义日志模块的输出结构
type ModuleOutput struct {
	fx.Out

	Logger    logInterface.Logger // 日志记录器接口
	ZapLogger *zap.Logger         // zap.Logger 具体类型（供需要zap特性的模块使用）
}

// Module 返回日志模块
func Module() fx.Option {
	return fx.Module("log",
		fx.Provide(ProvideServices),
	)
}

// ProvideServices 提供日志服务
func ProvideServices(params ModuleParams) (ModuleOutput, error) {
	logger, err := New(params.Provider.GetLog())
	if err != nil {
		return ModuleOutput{}, fmt.Errorf("根据用户配置创建日志记录器失败: %w", err)
	}

	// 设置为全局记录器，替换掉init()时用默认配置创建的日志器
	SetLogger(logger)

	concrete, ok := logger.(*Logger)
	if !ok {
		return ModuleOutput{}, fmt.Errorf("logger类型断言失败，无法获取 *zap.Logger")
	}

	return ModuleOutput{
		Logger:    logger,
		ZapLogger: concrete.zapLogger,
	}, nil
}
