// Package model 定义机器人使用的核心数据结构。
// 包含订单簿档位、订单、钱包、成交、通知等核心类型。
package model

// Action 交易动作
type Action string

const (
	// ActionBuy 买入（订单数量为正）
	ActionBuy Action = "buy"
	// ActionSell 卖出（订单数量为负）
	ActionSell Action = "sell"
)

// BookSide 订单簿方向
type BookSide string

const (
	// SideBids 买盘（按价格降序）
	SideBids BookSide = "bids"
	// SideAsks 卖盘（按价格升序）
	SideAsks BookSide = "asks"
)

// WalletType 钱包类型
type WalletType string

const (
	// WalletExchange 现货钱包
	WalletExchange WalletType = "exchange"
	// WalletMargin 保证金钱包
	WalletMargin WalletType = "margin"
	// WalletFunding 融资钱包
	WalletFunding WalletType = "funding"
)

// 订单状态前缀
// 交易所会在状态后附加成交明细（如 "EXECUTED @ 0.5(50.0)"），
// 判断状态时只比较前缀。
const (
	// OrderStatusActive 活跃订单
	OrderStatusActive = "ACTIVE"
	// OrderStatusExecuted 已完全成交
	OrderStatusExecuted = "EXECUTED"
	// OrderStatusPartially 部分成交
	OrderStatusPartially = "PARTIALLY"
	// OrderStatusCanceled 已撤销
	OrderStatusCanceled = "CANCELED"
)

// 通知状态
const (
	// NotifyStatusSuccess 请求成功
	NotifyStatusSuccess = "SUCCESS"
	// NotifyStatusError 请求错误
	NotifyStatusError = "ERROR"
	// NotifyStatusFailure 请求失败
	NotifyStatusFailure = "FAILURE"
)

// OrderTypeExchangeLimit 现货限价单
// 链上所有腿都以被动限价方式挂单，吃 maker 费率。
const OrderTypeExchangeLimit = "EXCHANGE LIMIT"

// PriceLevel 订单簿价格档位（已归一化，Size 恒为正）
type PriceLevel struct {
	// Price 价格
	Price float64
	// Count 该价位上的订单数，0 表示该价位已被删除
	Count int
	// Size 该价位上的总数量（绝对值）
	Size float64
}

// BookEntry 订单簿原始档位（来自交易所，数量带符号）
// 数量为正表示买盘，为负表示卖盘。
type BookEntry struct {
	// Price 价格
	Price float64
	// Count 该价位上的订单数
	Count int
	// Amount 带符号数量，符号决定档位归属的方向
	Amount float64
}

// Side 根据数量符号推断档位方向
func (e BookEntry) Side() BookSide {
	if e.Amount >= 0 {
		return SideBids
	}
	return SideAsks
}

// Level 转换为归一化档位（数量取绝对值）
func (e BookEntry) Level() PriceLevel {
	size := e.Amount
	if size < 0 {
		size = -size
	}
	return PriceLevel{Price: e.Price, Count: e.Count, Size: size}
}

// BookUpdate 订单簿更新消息
// Snapshot 与 Entry 二选一：初始快照携带完整档位序列，
// 增量更新只携带单个档位变化。
type BookUpdate struct {
	// Symbol 交易对符号，如 tIOTUSD
	Symbol string
	// Snapshot 初始快照（仅快照消息非空）
	Snapshot []BookEntry
	// Entry 增量档位变化（仅增量消息非空）
	Entry *BookEntry
	// ArrivedAtUnixNs 本机收到消息的时间戳（纳秒）
	ArrivedAtUnixNs int64
}

// IsSnapshot 是否为完整快照消息
func (u *BookUpdate) IsSnapshot() bool {
	return u.Snapshot != nil
}
