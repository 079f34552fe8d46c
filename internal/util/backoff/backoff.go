// Package backoff 计算交易所 websocket 重连前的等待间隔。
// 等待逐次翻倍并带随机抖动，避免行情中断后各客户端同时回连。
package backoff

import (
	"math/rand"
	"time"
)

// Backoff 指数退避计算器（非并发安全，每条连接各持一个）
type Backoff struct {
	// base 首次重连等待
	base time.Duration
	// max 等待上限（抖动前）
	max time.Duration
	// jitter 抖动比例（0-1），0.2 表示 ±20%
	jitter float64
	// next 下一次返回的基础等待
	next time.Duration
}

// New 创建退避计算器
func New(base, max time.Duration, jitter float64) *Backoff {
	return &Backoff{base: base, max: max, jitter: jitter, next: base}
}

// NewDefault 按连接默认参数创建：首发 1s、上限 30s、抖动 ±20%
func NewDefault() *Backoff {
	return New(time.Second, 30*time.Second, 0.2)
}

// Next 返回本次重连前的等待时间并推进内部状态
// 基础等待逐次翻倍、封顶 max，抖动把结果拉到 [d×(1−j), d×(1+j)]。
func (b *Backoff) Next() time.Duration {
	d := b.next
	if d > b.max {
		d = b.max
	}
	if b.next < b.max {
		b.next *= 2
	}
	if b.jitter > 0 {
		d = time.Duration(float64(d) * (1 + (rand.Float64()*2-1)*b.jitter))
	}
	return d
}

// Reset 连接成功后调用，下次断开重新从 base 等起
func (b *Backoff) Reset() {
	b.next = b.base
}
