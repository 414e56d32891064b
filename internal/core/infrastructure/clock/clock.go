// Package clock 提供时间源实现
//
// 🕒 **时间源组件 (Clock Component)**
//
// 难度控制器只消费一个墙钟读数；本包提供两种实现：
// - SystemClock: 直接读取本机时钟
// - NTPClock: 周期性与NTP服务器对时，持有偏移量校正本机时钟
package clock

import (
	"sync"
	"time"

	"github.com/beevik/ntp"
	clockInterface "github.com/qpchain/v1/pkg/interfaces/infrastructure/clock"
	logInterface "github.com/qpchain/v1/pkg/interfaces/infrastructure/log"
)

// SystemClock 本机时钟实现
type SystemClock struct{}

// NewSystemClock 创建本机时钟
func NewSystemClock() clockInterface.Clock {
	return &SystemClock{}
}

// Now 获取当前时间
func (c *SystemClock) Now() time.Time { return time.Now() }

// Since 计算从指定时间到现在的持续时间
func (c *SystemClock) Since(t time.Time) time.Duration { return time.Since(t) }

// NowMillis 获取当前Unix时间戳（毫秒）
func (c *SystemClock) NowMillis() int64 { return time.Now().UnixMilli() }

// NTPClock 基于NTP偏移校正的时钟实现
//
// 周期性查询NTP服务器获取本机时钟偏移；查询失败时沿用上一次的
// 偏移量（首次失败时偏移为零，等价于本机时钟）。
type NTPClock struct {
	server   string
	interval time.Duration
	logger   logInterface.Logger

	mu     sync.RWMutex
	offset time.Duration

	stopCh chan struct{}
	once   sync.Once
}

// NewNTPClock 创建NTP校正时钟并启动后台对时循环
func NewNTPClock(server string, interval time.Duration, logger logInterface.Logger) *NTPClock {
	c := &NTPClock{
		server:   server,
		interval: interval,
		logger:   logger.With("component", "ntp_clock"),
		stopCh:   make(chan struct{}),
	}
	c.refresh()
	go c.loop()
	return c
}

// Now 获取偏移校正后的当前时间
func (c *NTPClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Now().Add(c.offset)
}

// Since 计算从指定时间到现在的持续时间
func (c *NTPClock) Since(t time.Time) time.Duration { return c.Now().Sub(t) }

// NowMillis 获取偏移校正后的Unix时间戳（毫秒）
func (c *NTPClock) NowMillis() int64 { return c.Now().UnixMilli() }

// Stop 停止后台对时循环
func (c *NTPClock) Stop() {
	c.once.Do(func() { close(c.stopCh) })
}

func (c *NTPClock) loop() {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.refresh()
		case <-c.stopCh:
			return
		}
	}
}

func (c *NTPClock) refresh() {
	resp, err := ntp.Query(c.server)
	if err != nil {
		c.logger.Warnf("NTP对时失败，沿用上次偏移: %v", err)
		return
	}
	if err := resp.Validate(); err != nil {
		c.logger.Warnf("NTP响应校验失败: %v", err)
		return
	}

	c.mu.Lock()
	c.offset = resp.ClockOffset
	c.mu.Unlock()

	c.logger.Debugf("NTP对时完成，时钟偏移: %v", resp.ClockOffset)
}
