// Package chain 实现多腿订单的串行执行状态机。
// 腿严格一条接一条执行：每条腿的可用量依赖前一条腿的成交结果，
// 整条链不允许并行。异步到达（可能乱序、可能重复）的订单/成交事件
// 通过"超时 + 对账"而不是假设严格有序来收敛到终态。
package chain

import (
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"circular-arbitrage-bot/internal/alert"
	"circular-arbitrage-bot/internal/core/book"
	"circular-arbitrage-bot/internal/core/model"
	"circular-arbitrage-bot/internal/core/orders"
	"circular-arbitrage-bot/internal/core/wallet"
	"circular-arbitrage-bot/internal/symbol"
	"circular-arbitrage-bot/internal/util/precision"
	"circular-arbitrage-bot/internal/util/timeutil"
)

// Transport 交易所发送通道（由 websocket 客户端实现）
// 所有方法都是 fire-and-forget：结果以账户/通知事件异步返回。
type Transport interface {
	// SubmitOrder 提交下单请求
	SubmitOrder(req *model.NewOrderRequest) error
	// CancelOrder 按订单 ID 请求撤单
	CancelOrder(orderID int64) error
	// RequestCalc 请求交易所重算指定钱包币种的可用余额
	RequestCalc(t model.WalletType, currency string) error
}

// Timer 可取消的计划任务句柄
type Timer interface {
	// Cancel 取消任务（已触发或已取消时为空操作）
	Cancel()
}

// Scheduler 计划任务调度器
// 生产实现把回调投递回机器人事件循环，保证与事件处理串行；
// 测试用手动触发的假实现。
type Scheduler interface {
	// After 在 d 之后执行 fn
	After(d time.Duration, fn func()) Timer
}

// Config 执行链可调参数
// 历史版本中这些窗口存在多个取值（10s/30s/60s），按文档默认值处理。
type Config struct {
	// PlaceTimeout 挂单后等待成交的窗口，超时触发撤单重试
	PlaceTimeout time.Duration
	// PartialFillTimeout 部分成交后等待剩余量的窗口（更长）
	PartialFillTimeout time.Duration
	// SettleDelay 撤单确认后到重试之间的结算等待
	SettleDelay time.Duration
	// RetryTimeout 余额未知等待重算时的重试间隔
	RetryTimeout time.Duration
	// RetryNudgePct 重试时向成交方向让价的百分比（如 0.05 表示 0.05%）
	RetryNudgePct float64
	// Fee 每跳手续费率（0-1），重试调整数量时扣除
	Fee float64
	// MaxZeroAttempts 数量归零的放弃阈值（尝试次数）
	MaxZeroAttempts int
	// MaxAttempts 单腿尝试上限，超过后告警并中止整条链
	MaxAttempts int
	// MinOrderSize 按币种的最小单量表，键 OTHER 为兜底
	MinOrderSize map[string]float64
}

// DefaultConfig 文档默认参数
func DefaultConfig() Config {
	return Config{
		PlaceTimeout:       30 * time.Second,
		PartialFillTimeout: 60 * time.Second,
		SettleDelay:        2 * time.Second,
		RetryTimeout:       5 * time.Second,
		RetryNudgePct:      0.05,
		Fee:                0.002,
		MaxZeroAttempts:    3,
		MaxAttempts:        10,
		MinOrderSize: map[string]float64{
			"BTC":   0.005,
			"ZEC":   0.01,
			"OTHER": 0.1,
		},
	}
}

// Chain 订单链状态机
// 不变式：同一时刻至多一条腿 Processing=true。
type Chain struct {
	books     *book.Store
	wallets   *wallet.Store
	orders    *orders.Store
	transport Transport
	sched     Scheduler
	alerter   alert.Alerter
	cfg       Config
	logger    *zap.Logger

	legs []*Leg
	// onDone 链终态回调：nil 表示全部腿结清，否则为中止原因
	onDone    func(err error)
	doneFired bool
	aborted   bool
}

// New 创建订单链
func New(books *book.Store, wallets *wallet.Store, orderStore *orders.Store, transport Transport, sched Scheduler, alerter alert.Alerter, cfg Config, logger *zap.Logger) *Chain {
	return &Chain{
		books:     books,
		wallets:   wallets,
		orders:    orderStore,
		transport: transport,
		sched:     sched,
		alerter:   alerter,
		cfg:       cfg,
		logger:    logger.Named("chain"),
	}
}

// Enqueue 追加一条腿
func (c *Chain) Enqueue(req *model.NewOrderRequest) {
	c.legs = append(c.legs, &Leg{
		Request:          req,
		EnqueuedAtUnixNs: timeutil.NowNano(),
	})
}

// Legs 返回当前全部腿（测试与观测用，视为只读）
func (c *Chain) Legs() []*Leg {
	return c.legs
}

// Start 启动链并登记终态回调
func (c *Chain) Start(onDone func(err error)) {
	c.onDone = onDone
	c.doneFired = false
	c.Process()
}

// Completed 全部腿是否已结清
func (c *Chain) Completed() bool {
	for _, l := range c.legs {
		if !l.Processed {
			return false
		}
	}
	return true
}

// Clear 取消全部计时器并清空腿列表（一轮结束后调用）
func (c *Chain) Clear() {
	for _, l := range c.legs {
		l.clearTimers()
	}
	c.legs = nil
	c.onDone = nil
	c.doneFired = false
	c.aborted = false
}

// fireDone 触发终态回调（恰好一次）
func (c *Chain) fireDone(err error) {
	if c.doneFired {
		return
	}
	c.doneFired = true
	if c.onDone != nil {
		c.onDone(err)
	}
}

// nextLeg 返回第一条未结清的腿
func (c *Chain) nextLeg() *Leg {
	for _, l := range c.legs {
		if !l.Processed {
			return l
		}
	}
	return nil
}

// currentLeg 返回在途的腿（至多一条）
func (c *Chain) currentLeg() *Leg {
	for _, l := range c.legs {
		if l.Processing {
			return l
		}
	}
	return nil
}

// minOrderSize 查询币种的交易所最小单量
func (c *Chain) minOrderSize(currency string) float64 {
	if v, ok := c.cfg.MinOrderSize[currency]; ok {
		return v
	}
	return c.cfg.MinOrderSize["OTHER"]
}

// Process 推进状态机
// 全部腿结清则触发终态回调；否则选中第一条未结清的腿：
// 在途则等事件或超时，不在途则检查跳过条件后发送。
func (c *Chain) Process() {
	if c.aborted {
		return
	}
	leg := c.nextLeg()
	if leg == nil {
		c.logger.Info("订单链全部腿已结清")
		c.fireDone(nil)
		return
	}
	if leg.Processing {
		// 在途：等交易所事件或计时器
		return
	}

	pair, err := symbol.ToCurrencyPair(leg.Request.Symbol)
	if err != nil {
		c.abort(fmt.Errorf("腿的符号非法: %w", err))
		return
	}

	// 浮点舍入可能把剩余量合法地归零，多次尝试后按跳过结清
	if leg.Attempts >= c.cfg.MaxZeroAttempts && precision.AmountIsZero(leg.Request.Amount) {
		c.skipLeg(leg, "数量在交易所精度下归零")
		return
	}
	// 低于最小单量的订单必被拒绝，直接跳过而不是白白提交
	amt := leg.Request.Amount
	if amt < 0 {
		amt = -amt
	}
	if amt < c.minOrderSize(pair.Base) {
		c.skipLeg(leg, "数量低于交易所最小单量")
		return
	}
	if leg.Attempts >= c.cfg.MaxAttempts {
		c.abort(fmt.Errorf("腿 CID=%d 尝试 %d 次仍未成交", leg.Request.CID, leg.Attempts))
		return
	}

	leg.Processing = true
	leg.SentAtUnixNs = timeutil.NowNano()
	leg.Attempts++
	c.logger.Info("发送订单",
		zap.String("symbol", leg.Request.Symbol),
		zap.Float64("price", leg.Request.Price),
		zap.Float64("amount", leg.Request.Amount),
		zap.Int64("cid", leg.Request.CID),
		zap.Int("attempts", leg.Attempts))
	if err := c.transport.SubmitOrder(leg.Request); err != nil {
		c.logger.Warn("发送订单失败，稍后重试", zap.Error(err))
		leg.Processing = false
		c.armRetryTimer(leg, c.cfg.RetryTimeout)
	}
}

// skipLeg 按跳过结清一条腿并推进
func (c *Chain) skipLeg(leg *Leg, reason string) {
	c.logger.Warn("跳过腿",
		zap.Int64("cid", leg.Request.CID),
		zap.String("symbol", leg.Request.Symbol),
		zap.Float64("amount", leg.Request.Amount),
		zap.String("reason", reason))
	leg.Skipped = true
	leg.Processed = true
	leg.Processing = false
	leg.clearTimers()
	c.Process()
}

// abort 中止整条链：取消计时器、告警并触发终态回调
func (c *Chain) abort(err error) {
	c.aborted = true
	for _, l := range c.legs {
		l.clearTimers()
	}
	c.logger.Error("订单链中止", zap.Error(err))
	c.alerter.Alert(fmt.Sprintf("订单链中止: %v", err))
	c.fireDone(err)
}

// armCancelTimer 武装撤单超时计时器（会先取消旧的）
func (c *Chain) armCancelTimer(leg *Leg, d time.Duration) {
	if leg.cancelTimer != nil {
		leg.cancelTimer.Cancel()
	}
	leg.cancelTimer = c.sched.After(d, func() {
		c.onCancelTimeout(leg)
	})
}

// armRetryTimer 武装重试计时器（会先取消旧的）
func (c *Chain) armRetryTimer(leg *Leg, d time.Duration) {
	if leg.retryTimer != nil {
		leg.retryTimer.Cancel()
	}
	leg.retryTimer = c.sched.After(d, func() {
		c.retry(leg)
	})
}

// HandleOrderEvent 接收订单类账户事件
// 腿严格串行，事件只路由到在途的腿。
func (c *Chain) HandleOrderEvent(kind model.EventKind) {
	leg := c.currentLeg()
	if leg == nil {
		return
	}
	now := timeutil.NowNano()
	switch kind {
	case model.EventOrderNew:
		leg.OrderPlaced = true
		leg.OrderPlacedAtUnixNs = now
		c.bindOrderID(leg)
		// 挂出后限时等待成交，超时撤单重试
		c.armCancelTimer(leg, c.cfg.PlaceTimeout)
	case model.EventOrderUpdate:
		leg.OrderUpdated = true
		leg.OrderUpdatedAtUnixNs = now
		if leg.OrderID == 0 {
			c.bindOrderID(leg)
		}
	case model.EventOrderCancelRequested:
		leg.OrderCancelRequested = true
		leg.OrderCancelRequestedAtUnixNs = now
	case model.EventOrderCancel:
		leg.OrderCanceled = true
		leg.OrderCanceledAtUnixNs = now
		o := c.orders.ByCID(leg.Request.CID)
		if o != nil && o.HasStatus(model.OrderStatusCanceled) {
			// 撤单释放了冻结资金，刷新余额后稍候调整重试
			c.refreshWallets(leg)
			c.armRetryTimer(leg, c.cfg.SettleDelay)
		}
	default:
		c.logger.Error("未识别的订单事件类型（上游协议可能已变更）",
			zap.String("kind", string(kind)))
	}
}

// bindOrderID 把订单库里该 CID 的最新订单 ID 记到腿上
// 重试复用 CID，ByCID 的最近更新语义保证取到新订单。
func (c *Chain) bindOrderID(leg *Leg) {
	if o := c.orders.ByCID(leg.Request.CID); o != nil {
		leg.OrderID = o.ID
	}
}

// tradeBelongsToLeg 成交归属校验
// 已作废订单的迟到成交一律拒收；订单 ID 双方已知时按 ID 匹配，
// 否则退回按交易对匹配（on 与 te 可能乱序到达）。
func (c *Chain) tradeBelongsToLeg(leg *Leg, t *model.Trade) bool {
	if t.OrderID != 0 {
		if lo.Contains(leg.priorOrderIDs, t.OrderID) {
			return false
		}
		if leg.OrderID != 0 {
			return t.OrderID == leg.OrderID
		}
	}
	if t.Pair == "" {
		return true
	}
	return t.Pair == leg.Request.Symbol || "t"+t.Pair == leg.Request.Symbol
}

// HandleTradeEvent 接收成交类账户事件
// 归属不符的成交（别的订单、别的交易对）不得记入在途腿。
func (c *Chain) HandleTradeEvent(kind model.EventKind, t *model.Trade) {
	leg := c.currentLeg()
	if leg == nil || t == nil {
		return
	}
	if !c.tradeBelongsToLeg(leg, t) {
		c.logger.Warn("成交归属与在途腿不符，忽略",
			zap.Int64("trade_order_id", t.OrderID),
			zap.Int64("leg_order_id", leg.OrderID),
			zap.String("pair", t.Pair))
		return
	}
	now := timeutil.NowNano()
	switch kind {
	case model.EventTradeExecuted:
		exec := t.ExecAmount
		if exec < 0 {
			exec = -exec
		}
		leg.FilledAmount += exec
		if precision.Covers(leg.FilledAmount, leg.Request.Amount) {
			// 成交覆盖全部请求量：结清并立即推进下一条腿
			leg.TradeExecuted = true
			leg.TradeExecutedAtUnixNs = now
			leg.Processed = true
			leg.Processing = false
			leg.clearTimers()
			c.logger.Info("腿已全部成交",
				zap.Int64("cid", leg.Request.CID),
				zap.Float64("filled", leg.FilledAmount))
			c.Process()
			return
		}
		// 部分成交：延长等待窗口，给剩余量更多时间
		leg.TradeExecutedPartially = true
		leg.TradeExecutedPartiallyAtUnixNs = now
		c.logger.Info("腿部分成交",
			zap.Int64("cid", leg.Request.CID),
			zap.Float64("filled", leg.FilledAmount),
			zap.Float64("requested", leg.Request.Amount))
		c.armCancelTimer(leg, c.cfg.PartialFillTimeout)
	case model.EventTradeExecutionUpdate:
		// 手续费等结算明细，无状态迁移
		leg.TradeExecutionUpdated = true
		leg.TradeExecutionUpdatedAtUnixNs = now
	default:
		c.logger.Error("未识别的成交事件类型（上游协议可能已变更）",
			zap.String("kind", string(kind)))
	}
}

// HandleNotification 接收通知消息
// 下单被拒（ERROR/FAILURE）走与超时相同的调整重试路径。
func (c *Chain) HandleNotification(n *model.Notification) {
	if n == nil {
		return
	}
	switch n.Status {
	case model.NotifyStatusSuccess:
		c.logger.Info("请求受理成功", zap.String("type", n.Type), zap.String("text", n.Text))
	case model.NotifyStatusError, model.NotifyStatusFailure:
		leg := c.legByNotification(n)
		if leg == nil || leg.Processed {
			c.logger.Warn("收到无主的失败通知",
				zap.String("status", n.Status), zap.String("text", n.Text))
			return
		}
		c.logger.Warn("订单被拒，调整后重试",
			zap.Int64("cid", leg.Request.CID),
			zap.String("status", n.Status),
			zap.String("text", n.Text))
		c.retry(leg)
	default:
		c.logger.Error("未识别的通知状态（上游协议可能已变更）",
			zap.String("status", n.Status), zap.String("text", n.Text))
	}
}

// legByNotification 按通知中的 CID 定位腿，找不到退回在途腿
func (c *Chain) legByNotification(n *model.Notification) *Leg {
	if n.Order != nil {
		for _, l := range c.legs {
			if l.Request.CID == n.Order.CID {
				return l
			}
		}
	}
	return c.currentLeg()
}

// onCancelTimeout 撤单超时触发
// 订单仍活跃则请求撤单并等撤销事件；已不活跃（被拒/已消失）
// 则直接走调整重试。
func (c *Chain) onCancelTimeout(leg *Leg) {
	if leg.Processed {
		// 计时器和成交事件竞争，成交先到则此处为空操作
		return
	}
	o := c.orders.ByCID(leg.Request.CID)
	if o != nil && o.IsActive() {
		c.logger.Info("挂单超时，请求撤单",
			zap.Int64("order_id", o.ID), zap.Int64("cid", leg.Request.CID))
		leg.OrderCancelRequested = true
		leg.OrderCancelRequestedAtUnixNs = timeutil.NowNano()
		if err := c.transport.CancelOrder(o.ID); err != nil {
			c.logger.Warn("发送撤单请求失败", zap.Error(err))
			c.armRetryTimer(leg, c.cfg.RetryTimeout)
		}
		return
	}
	c.retry(leg)
}

// retry 调整价格数量后重发
// 调整失败（余额未知或簿无价）时触发余额重算并武装短重试计时器。
func (c *Chain) retry(leg *Leg) {
	if leg.Processed || c.aborted {
		return
	}
	if c.adjustOrderPriceAndAmount(leg) {
		leg.resetForRetry()
		c.Process()
		return
	}
	c.logger.Warn("无法调整订单，等待余额重算",
		zap.Int64("cid", leg.Request.CID))
	c.refreshWallets(leg)
	c.armRetryTimer(leg, c.cfg.RetryTimeout)
}

// adjustOrderPriceAndAmount 按当前钱包与订单簿重算价格和数量
// 返回 false 表示调整不可行（可用余额或最优价不可得），调用方不得重发。
func (c *Chain) adjustOrderPriceAndAmount(leg *Leg) bool {
	pair, err := symbol.ToCurrencyPair(leg.Request.Symbol)
	if err != nil {
		return false
	}
	action := leg.Request.Action()

	// 买用计价币种余额，卖用基础币种余额
	balanceCurrency := pair.Quote
	if action == model.ActionSell {
		balanceCurrency = pair.Base
	}
	available, ok := c.wallets.Available(model.WalletExchange, balanceCurrency)
	if !ok {
		return false
	}

	best, ok := c.books.BestLimitPrice(leg.Request.Symbol, action)
	if !ok || best <= 0 {
		return false
	}

	// 向成交方向让价：买抬价、卖压价
	nudge := c.cfg.RetryNudgePct / 100
	price := best * (1 - nudge)
	if action == model.ActionBuy {
		price = best * (1 + nudge)
	}

	amount := leg.Request.Amount
	if amount < 0 {
		amount = -amount
	}
	if action == model.ActionBuy {
		affordable := available / price
		if amount > affordable {
			c.logger.Info("按可用余额收窄买入量",
				zap.Float64("from", amount), zap.Float64("to", affordable))
			amount = affordable
		}
	} else {
		if amount > available {
			c.logger.Info("按可用余额收窄卖出量",
				zap.Float64("from", amount), zap.Float64("to", available))
			amount = available
		}
	}
	amount *= 1 - c.cfg.Fee

	signed := amount
	if action == model.ActionSell {
		signed = -amount
	}
	leg.Request.Price = precision.TruncatePrice(price)
	leg.Request.Amount = precision.RoundAmount(signed)
	return true
}

// refreshWallets 请求重算该腿涉及币种的可用余额
func (c *Chain) refreshWallets(leg *Leg) {
	pair, err := symbol.ToCurrencyPair(leg.Request.Symbol)
	if err != nil {
		return
	}
	for _, ccy := range []string{pair.Base, pair.Quote} {
		if err := c.transport.RequestCalc(model.WalletExchange, ccy); err != nil {
			c.logger.Warn("发送余额重算请求失败",
				zap.String("currency", ccy), zap.Error(err))
		}
	}
}
