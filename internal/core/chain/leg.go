package chain

import "circular-arbitrage-bot/internal/core/model"

// Leg 执行链中的一条腿（一张订单）
// 各状态标志不是互斥的枚举，而是随交易所事件逐步点亮的复合状态；
// TradeExecuted 且确认覆盖全部请求量后腿才算结清（Processed）。
type Leg struct {
	// Request 下单请求，重试时价格与数量会被原地调整
	Request *model.NewOrderRequest

	// EnqueuedAtUnixNs 入队时间（纳秒）
	EnqueuedAtUnixNs int64
	// SentAtUnixNs 最近一次发送时间（纳秒）
	SentAtUnixNs int64
	// Attempts 发送尝试次数
	Attempts int

	// OrderID 当前在途订单的交易所 ID（on 事件后可知，重试时清零）
	OrderID int64
	// priorOrderIDs 本腿已作废订单的 ID，迟到的成交按此拒收
	priorOrderIDs []int64

	// Processing 是否在途（整条链同一时刻至多一条腿在途）
	Processing bool
	// Processed 是否已结清（成交确认或按规则跳过）
	Processed bool
	// Skipped 是否因数量归零/低于最小单量被跳过
	Skipped bool

	// OrderPlaced on 事件：订单已挂出
	OrderPlaced bool
	// OrderPlacedAtUnixNs 挂出时间（纳秒）
	OrderPlacedAtUnixNs int64
	// OrderUpdated ou 事件：订单已更新
	OrderUpdated bool
	// OrderUpdatedAtUnixNs 更新时间（纳秒）
	OrderUpdatedAtUnixNs int64
	// OrderCanceled oc 事件：订单已撤销
	OrderCanceled bool
	// OrderCanceledAtUnixNs 撤销时间（纳秒）
	OrderCanceledAtUnixNs int64
	// OrderCancelRequested oc-req 事件或本地已发撤单请求
	OrderCancelRequested bool
	// OrderCancelRequestedAtUnixNs 撤单请求时间（纳秒）
	OrderCancelRequestedAtUnixNs int64

	// TradeExecuted te 事件：成交已覆盖全部请求量
	TradeExecuted bool
	// TradeExecutedAtUnixNs 全部成交时间（纳秒）
	TradeExecutedAtUnixNs int64
	// TradeExecutedPartially te 事件只覆盖部分请求量
	TradeExecutedPartially bool
	// TradeExecutedPartiallyAtUnixNs 部分成交时间（纳秒）
	TradeExecutedPartiallyAtUnixNs int64
	// TradeExecutionUpdated tu 事件：成交明细（手续费等）已更新
	TradeExecutionUpdated bool
	// TradeExecutionUpdatedAtUnixNs 明细更新时间（纳秒）
	TradeExecutionUpdatedAtUnixNs int64

	// FilledAmount 累计成交量（绝对值）
	FilledAmount float64

	// cancelTimer 挂单/部分成交等待计时器，到期触发撤单重试
	cancelTimer Timer
	// retryTimer 结算等待/余额未知时的重试计时器
	retryTimer Timer
}

// clearTimers 取消该腿的全部计时器
// 成功事件到达后必须调用，防止过期计时器重复触发重试。
func (l *Leg) clearTimers() {
	if l.cancelTimer != nil {
		l.cancelTimer.Cancel()
		l.cancelTimer = nil
	}
	if l.retryTimer != nil {
		l.retryTimer.Cancel()
		l.retryTimer = nil
	}
}

// resetForRetry 清除挂单痕迹，准备重新发送
// 旧订单的累计成交量随之清零：撤掉的单即便部分成交过，
// 那些量也不属于即将重发的新订单。
func (l *Leg) resetForRetry() {
	l.Processing = false
	l.OrderPlaced = false
	l.OrderUpdated = false
	l.OrderCanceled = false
	l.OrderCancelRequested = false
	l.TradeExecutedPartially = false
	if l.OrderID != 0 {
		l.priorOrderIDs = append(l.priorOrderIDs, l.OrderID)
		l.OrderID = 0
	}
	l.FilledAmount = 0
	l.clearTimers()
}
