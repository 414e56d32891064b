// 基于asaskevich/EventBus的事件总线实现
//
// 📡 **进程内事件总线 (In-Process Event Bus)**
//
// PoW核心的异步事件流都经由本总线：
// - chain:block_imported      新的最佳区块完成导入（重建触发源）
// - txpool:transaction_arrived 交易池收到新交易（重建触发源）
// - consensus:difficulty_adjusted 难度调整事件（结构化运维上报）
// - consensus:proof_submitted  有效证明被接受
package event

import (
	evbus "github.com/asaskevich/EventBus"
)

// 事件主题常量
const (
	// TopicBlockImported 新的最佳区块导入完成
	TopicBlockImported = "chain:block_imported"

	// TopicTransactionArrived 交易池收到新交易
	TopicTransactionArrived = "txpool:transaction_arrived"

	// TopicDifficultyAdjusted 难度调整完成
	TopicDifficultyAdjusted = "consensus:difficulty_adjusted"

	// TopicProofSubmitted 有效工作量证明被接受
	TopicProofSubmitted = "consensus:proof_submitted"
)

// Bus 事件总线接口（对asaskevich/EventBus的窄包装）
type Bus interface {
	// Subscribe 订阅指定主题（同步回调）
	Subscribe(topic string, handler interface{}) error

	// SubscribeAsync 订阅指定主题（异步回调）
	SubscribeAsync(topic string, handler interface{}, transactional bool) error

	// Unsubscribe 取消订阅
	Unsubscribe(topic string, handler interface{}) error

	// Publish 发布事件
	Publish(topic string, args ...interface{})

	// WaitAsync 等待所有异步回调完成
	WaitAsync()
}

// eventBus Bus接口的默认实现
type eventBus struct {
	bus evbus.Bus
}

// New 创建事件总线
func New() Bus {
	return &eventBus{bus: evbus.New()}
}

func (b *eventBus) Subscribe(topic string, handler interface{}) error {
	return b.bus.Subscribe(topic, handler)
}

func (b *eventBus) SubscribeAsync(topic string, handler interface{}, transactional bool) error {
	return b.bus.SubscribeAsync(topic, handler, transactional)
}

func (b *eventBus) Unsubscribe(topic string, handler interface{}) error {
	return b.bus.Unsubscribe(topic, handler)
}

func (b *eventBus) Publish(topic string, args ...interface{}) {
	b.bus.Publish(topic, args...)
}

func (b *eventBus) WaitAsync() {
	b.bus.WaitAsync()
}
