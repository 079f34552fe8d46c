package model

import "strings"

// Order 订单记录（来自账户频道 os/on/ou/oc 消息）
type Order struct {
	// ID 交易所订单 ID
	ID int64
	// GID 订单组 ID，同一个交易环内的所有腿共享
	GID int64
	// CID 客户端订单 ID，用于在交易所回执到达前关联请求
	CID int64
	// Symbol 交易对符号，如 tIOTUSD
	Symbol string
	// MtsCreate 创建时间（毫秒）
	MtsCreate int64
	// MtsUpdate 最近更新时间（毫秒）
	MtsUpdate int64
	// Amount 剩余数量（正买负卖）
	Amount float64
	// AmountOrig 原始数量
	AmountOrig float64
	// Type 订单类型，如 EXCHANGE LIMIT
	Type string
	// TypePrev 变更前的订单类型
	TypePrev string
	// Status 订单状态文本，前缀为 ACTIVE/EXECUTED/PARTIALLY/CANCELED
	Status string
	// Price 委托价格
	Price float64
	// PriceAvg 平均成交价格
	PriceAvg float64
	// UpdatedAtUnixNs 本机收到该记录的时间戳（纳秒）
	UpdatedAtUnixNs int64
}

// HasStatus 判断订单状态是否以给定前缀开头
func (o *Order) HasStatus(prefix string) bool {
	return strings.HasPrefix(o.Status, prefix)
}

// IsActive 订单是否仍然活跃
func (o *Order) IsActive() bool {
	return o.HasStatus(OrderStatusActive)
}

// Wallet 钱包余额记录（来自 ws/wu 消息）
type Wallet struct {
	// Type 钱包类型: exchange/margin/funding
	Type WalletType
	// Currency 币种，如 IOT、USD
	Currency string
	// Balance 总余额
	Balance float64
	// Available 可用余额
	// 为 nil 表示交易所尚未计算，需要显式发送 calc 请求触发，
	// 绝不能当作 0 使用。
	Available *float64
	// UpdatedAtUnixNs 本机收到该记录的时间戳（纳秒）
	UpdatedAtUnixNs int64
}

// Trade 成交记录（来自 te/tu 消息）
type Trade struct {
	// ID 成交 ID
	ID int64
	// Pair 交易对，线路上通常带 t 前缀（如 tIOTUSD）
	Pair string
	// MtsCreate 成交时间（毫秒）
	MtsCreate int64
	// OrderID 对应的订单 ID
	OrderID int64
	// ExecAmount 成交数量（正买负卖）
	ExecAmount float64
	// ExecPrice 成交价格
	ExecPrice float64
	// OrderType 订单类型
	OrderType string
	// OrderPrice 委托价格
	OrderPrice float64
	// Maker 是否为 maker 成交（1 是，0 否，-1 未知）
	Maker int
	// Fee 手续费（仅 tu 消息携带）
	Fee float64
	// FeeCurrency 手续费币种（仅 tu 消息携带）
	FeeCurrency string
}

// Notification 通知消息（n 消息）
// 下单/撤单请求的受理结果通过通知频道异步返回。
type Notification struct {
	// Mts 通知时间（毫秒）
	Mts int64
	// Type 通知类型: on-req、oc-req、uca 等
	Type string
	// Status 通知状态: SUCCESS/ERROR/FAILURE
	Status string
	// Text 自由文本说明
	Text string
	// Order 通知关联的订单字段（可能为 nil）
	Order *Order
}

// EventKind 账户事件类型
type EventKind string

const (
	// EventOrderSnapshot os 订单快照
	EventOrderSnapshot EventKind = "order-snapshot"
	// EventOrderNew on 新订单
	EventOrderNew EventKind = "order-new"
	// EventOrderUpdate ou 订单更新
	EventOrderUpdate EventKind = "order-update"
	// EventOrderCancel oc 订单撤销
	EventOrderCancel EventKind = "order-cancel"
	// EventOrderCancelRequested oc-req 撤销请求已受理
	EventOrderCancelRequested EventKind = "order-cancel-requested"
	// EventWalletSnapshot ws 钱包快照
	EventWalletSnapshot EventKind = "wallet-snapshot"
	// EventWalletUpdate wu 钱包更新
	EventWalletUpdate EventKind = "wallet-update"
	// EventTradeExecuted te 成交
	EventTradeExecuted EventKind = "trade-executed"
	// EventTradeExecutionUpdate tu 成交明细更新
	EventTradeExecutionUpdate EventKind = "trade-execution-update"
	// EventNotification n 通知
	EventNotification EventKind = "notification"
	// EventMaintenanceBegin 交易所进入维护窗口（info code 20060）
	EventMaintenanceBegin EventKind = "maintenance-begin"
	// EventMaintenanceEnd 交易所离开维护窗口（info code 20061）
	EventMaintenanceEnd EventKind = "maintenance-end"
)

// AccountEvent 账户频道事件（已解析为具名字段的记录）
// 按 Kind 只填充对应的字段。
type AccountEvent struct {
	// Kind 事件类型
	Kind EventKind
	// Orders 订单记录（订单类事件）
	Orders []Order
	// Wallets 钱包记录（钱包类事件）
	Wallets []Wallet
	// Trade 成交记录（成交类事件）
	Trade *Trade
	// Notification 通知记录（通知事件）
	Notification *Notification
}

// NewOrderRequest 下单请求（on 消息负载）
type NewOrderRequest struct {
	// GID 订单组 ID
	GID int64
	// CID 客户端订单 ID
	CID int64
	// Type 订单类型
	Type string
	// Symbol 交易对符号
	Symbol string
	// Price 委托价格
	Price float64
	// Amount 带符号数量（正买负卖）
	Amount float64
}

// Action 根据数量符号推断交易动作
func (r *NewOrderRequest) Action() Action {
	if r.Amount >= 0 {
		return ActionBuy
	}
	return ActionSell
}
