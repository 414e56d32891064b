// 长度前缀CBOR编解码器
//
// 🔄 **帧格式 (Frame Layout)**
//
// 每帧由4字节大端长度前缀加CBOR负载组成：
//
//	+----------------+------------------+
//	| length (4B BE) | CBOR(Message)    |
//	+----------------+------------------+
//
// 长度为0的帧是保活帧，不携带负载；超过16MiB的帧视为协议违例，
// 编解码双侧都拒绝。
package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// MaxFrameSize 单帧负载上限（16MiB）
const MaxFrameSize = 16 << 20

// ErrFrameTooLarge 帧超过协议上限
var ErrFrameTooLarge = fmt.Errorf("帧长度超过%d字节上限", MaxFrameSize)

// Codec 在单条双向流上读写协议消息
//
// 写侧由互斥锁保护，允许保活环与任务下发并发写同一条流；读侧假定
// 只有一个读循环，不加锁。
type Codec struct {
	rw io.ReadWriter

	writeMu sync.Mutex
}

// NewCodec 在给定流上创建编解码器
func NewCodec(rw io.ReadWriter) *Codec {
	return &Codec{rw: rw}
}

// WriteMessage 编码并写出一条消息
func (c *Codec) WriteMessage(msg *Message) error {
	payload, err := cbor.Marshal(msg)
	if err != nil {
		return fmt.Errorf("编码消息失败: %w", err)
	}
	if len(payload) > MaxFrameSize {
		return ErrFrameTooLarge
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(payload)))
	if _, err := c.rw.Write(prefix[:]); err != nil {
		return fmt.Errorf("写入帧长度失败: %w", err)
	}
	if _, err := c.rw.Write(payload); err != nil {
		return fmt.Errorf("写入帧负载失败: %w", err)
	}
	return nil
}

// WriteKeepAlive 写出一个零长度保活帧
func (c *Codec) WriteKeepAlive() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	var prefix [4]byte
	if _, err := c.rw.Write(prefix[:]); err != nil {
		return fmt.Errorf("写入保活帧失败: %w", err)
	}
	return nil
}

// ReadMessage 读取下一条消息
//
// 保活帧以Type == TypeKeepAlive的消息形式返回，调用方借此刷新空闲
// 计时。对端关闭时返回io.EOF。
func (c *Codec) ReadMessage() (*Message, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(c.rw, prefix[:]); err != nil {
		return nil, err
	}

	length := binary.BigEndian.Uint32(prefix[:])
	if length == 0 {
		return &Message{Type: TypeKeepAlive}, nil
	}
	if length > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(c.rw, payload); err != nil {
		return nil, fmt.Errorf("读取帧负载失败: %w", err)
	}

	var msg Message
	if err := cbor.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("解码消息失败: %w", err)
	}
	return &msg, nil
}
