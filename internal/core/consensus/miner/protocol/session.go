// 矿工会话状态机
//
// 🔄 **会话生命周期 (Session Lifecycle)**
//
// 每条矿工连接对应一个会话，生命周期为：
//
//	AwaitingReady --Ready--> Active --断连/违例--> Closed
//
// 首条消息必须是Ready；在就绪前收到任何其他业务消息都是协议违例，
// 连接被丢弃。保活帧在任何状态下都合法。
package protocol

import (
	"errors"
	"fmt"
)

// SessionState 会话状态
type SessionState int

const (
	// StateAwaitingReady 等待矿工的首条Ready消息
	StateAwaitingReady SessionState = iota
	// StateActive 矿工已就绪，可以下发任务与接收结果
	StateActive
	// StateClosed 会话已终止
	StateClosed
)

// String 返回状态的可读名称
func (s SessionState) String() string {
	switch s {
	case StateAwaitingReady:
		return "awaiting_ready"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// 会话违例错误
var (
	// ErrNotReady 矿工尚未就绪即发送业务消息
	ErrNotReady = errors.New("矿工尚未发送Ready消息")

	// ErrDuplicateReady 已就绪的矿工重复发送Ready
	ErrDuplicateReady = errors.New("重复的Ready消息")

	// ErrSessionClosed 会话已终止
	ErrSessionClosed = errors.New("会话已终止")
)

// Session 矿工会话状态机（纯转移，不持有连接）
type Session struct {
	state SessionState
}

// NewSession 创建等待就绪的新会话
func NewSession() *Session {
	return &Session{state: StateAwaitingReady}
}

// State 返回当前状态
func (s *Session) State() SessionState {
	return s.state
}

// Accept 校验入站消息在当前状态下是否合法，并推进状态
//
// 返回错误意味着协议违例，调用方应当丢弃该连接。
func (s *Session) Accept(msgType MessageType) error {
	if s.state == StateClosed {
		return ErrSessionClosed
	}

	// 保活帧不参与状态转移
	if msgType == TypeKeepAlive {
		return nil
	}

	switch s.state {
	case StateAwaitingReady:
		if msgType != TypeReady {
			return fmt.Errorf("%w: 首条消息为 %q", ErrNotReady, msgType)
		}
		s.state = StateActive
		return nil

	case StateActive:
		switch msgType {
		case TypeReady:
			return ErrDuplicateReady
		case TypeJobResult:
			return nil
		default:
			return fmt.Errorf("矿工发送了非法消息类型: %q", msgType)
		}

	default:
		return ErrSessionClosed
	}
}

// Close 终止会话
func (s *Session) Close() {
	s.state = StateClosed
}
