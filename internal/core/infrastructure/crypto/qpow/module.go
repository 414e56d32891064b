// Package qpow 提供谜题引擎的fx模块装配
package qpow

import (
	"go.uber.org/fx"

	"github.com/qpchain/v1/pkg/interfaces/infrastructure/crypto"
	logInterface "github.com/qpchain/v1/pkg/interfaces/infrastructure/log"
)

// ModuleParams 定义谜题引擎模块的依赖参数
type ModuleParams struct {
	fx.In

	Logger logInterface.Logger // 日志记录器
}

// ModuleOutput 定义谜题引擎模块的输出结构
type ModuleOutput struct {
	fx.Out

	PuzzleEngine crypto.PuzzleEngine // 谜题引擎接口
}

// Module 返回谜题引擎模块
func Module() fx.Option {
	return fx.Module("qpow",
		fx.Provide(ProvideServices),
	)
}

// ProvideServices 提供谜题引擎服务
func ProvideServices(params ModuleParams) ModuleOutput {
	return ModuleOutput{
		PuzzleEngine: NewEngine(params.Logger),
	}
}
