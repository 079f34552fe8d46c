// Package bot 实现机器人的单线程事件循环。
// 所有状态（订单簿、钱包、订单、执行链）只被这一个 goroutine 触碰：
// websocket 客户端把类型化事件投入通道，计时器回调经 Scheduler
// 投递回同一循环，彻底避免跨 goroutine 的共享状态加锁。
package bot

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"circular-arbitrage-bot/internal/alert"
	"circular-arbitrage-bot/internal/config"
	"circular-arbitrage-bot/internal/core/book"
	"circular-arbitrage-bot/internal/core/chain"
	"circular-arbitrage-bot/internal/core/model"
	"circular-arbitrage-bot/internal/core/orders"
	"circular-arbitrage-bot/internal/core/solver"
	"circular-arbitrage-bot/internal/core/wallet"
	"circular-arbitrage-bot/internal/output/jsonl"
	"circular-arbitrage-bot/internal/util/timeutil"
)

// SolutionRecord 套利方案落盘记录
type SolutionRecord struct {
	// CycleID 本轮求解的唯一标识
	CycleID string `json:"cycle_id"`
	// TsNs 求解时间（纳秒）
	TsNs int64 `json:"ts_ns"`
	// Executed 是否进入了执行（trading.enabled=false 时只记录不执行）
	Executed bool `json:"executed"`
	// Solution 求解结果
	Solution *solver.Solution `json:"solution"`
}

// Bot 套利机器人
// 事件循环之外只允许调用 Run 和只读访问器。
type Bot struct {
	cfg    *config.Config
	logger *zap.Logger

	bookCh    <-chan *model.BookUpdate
	accountCh <-chan *model.AccountEvent

	books   *book.Store
	wallets *wallet.Store
	orders  *orders.Store
	chain   *chain.Chain
	sink    *jsonl.Sink

	// callbackCh 计时器回调投递通道，与事件处理串行执行
	callbackCh chan func()
	// done 循环退出信号，防止回调投递阻塞在已停止的循环上
	done chan struct{}

	// trading 是否有执行链在途（在途期间不再求解）
	trading bool
	// maintenance 交易所是否处于维护窗口
	maintenance bool
}

// New 创建机器人
// 参数 transport: 订单发送通道（websocket 客户端）
// 参数 bookCh/accountCh: 客户端的事件输出通道
// 参数 sink: JSONL 落盘出口，可为 nil
func New(cfg *config.Config, transport chain.Transport, bookCh <-chan *model.BookUpdate, accountCh <-chan *model.AccountEvent, sink *jsonl.Sink, alerter alert.Alerter, logger *zap.Logger) *Bot {
	b := &Bot{
		cfg:        cfg,
		logger:     logger.Named("bot"),
		bookCh:     bookCh,
		accountCh:  accountCh,
		books:      book.New(logger),
		wallets:    wallet.New(logger),
		orders:     orders.New(),
		sink:       sink,
		callbackCh: make(chan func(), 64),
		done:       make(chan struct{}),
	}
	b.chain = chain.New(b.books, b.wallets, b.orders, transport,
		&loopScheduler{bot: b}, alerter, chainConfig(cfg), logger)
	return b
}

// chainConfig 把 YAML 配置换算成执行链参数
func chainConfig(cfg *config.Config) chain.Config {
	return chain.Config{
		PlaceTimeout:       time.Duration(cfg.Chain.PlaceTimeoutMs) * time.Millisecond,
		PartialFillTimeout: time.Duration(cfg.Chain.PartialFillTimeoutMs) * time.Millisecond,
		SettleDelay:        time.Duration(cfg.Chain.SettleDelayMs) * time.Millisecond,
		RetryTimeout:       time.Duration(cfg.Chain.RetryTimeoutMs) * time.Millisecond,
		RetryNudgePct:      cfg.Chain.RetryNudgePct,
		Fee:                cfg.Fees.TakerRate,
		MaxZeroAttempts:    cfg.Chain.MaxZeroAttempts,
		MaxAttempts:        cfg.Chain.MaxAttempts,
		MinOrderSize:       cfg.MinOrderSize,
	}
}

// Run 运行事件循环直到 ctx 取消
func (b *Bot) Run(ctx context.Context) {
	defer close(b.done)

	cycleTicker := time.NewTicker(time.Duration(b.cfg.Trading.CycleIntervalMs) * time.Millisecond)
	defer cycleTicker.Stop()

	// 订单簿快照未启用时用 nil 通道让 case 永不命中
	var snapshotC <-chan time.Time
	if b.sink != nil && b.cfg.Output.BookSnapshotsEnabled {
		snapshotTicker := time.NewTicker(time.Duration(b.cfg.Output.SnapshotIntervalMs) * time.Millisecond)
		defer snapshotTicker.Stop()
		snapshotC = snapshotTicker.C
	}

	b.logger.Info("事件循环启动",
		zap.String("start_currency", b.cfg.Trading.StartCurrency),
		zap.Bool("trading_enabled", b.cfg.Trading.Enabled),
		zap.Int("symbols", len(b.cfg.Symbols)))

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("事件循环退出")
			return
		case u, ok := <-b.bookCh:
			if !ok {
				b.logger.Warn("订单簿通道已关闭，事件循环退出")
				return
			}
			b.books.Update(u)
		case ev, ok := <-b.accountCh:
			if !ok {
				b.logger.Warn("账户通道已关闭，事件循环退出")
				return
			}
			b.handleAccountEvent(ev)
		case fn := <-b.callbackCh:
			fn()
		case <-cycleTicker.C:
			b.runCycle()
		case <-snapshotC:
			b.sink.WriteBookSnapshot(b.books.Snapshot())
		}
	}
}

// handleAccountEvent 把账户事件路由到各内存库和执行链
func (b *Bot) handleAccountEvent(ev *model.AccountEvent) {
	switch ev.Kind {
	case model.EventWalletSnapshot:
		// 快照权威覆盖：先清空再整批写入
		b.wallets.Clear()
		b.wallets.Update(ev.Wallets)
	case model.EventWalletUpdate:
		b.wallets.Update(ev.Wallets)
	case model.EventOrderSnapshot:
		b.orders.Update(ev.Orders)
	case model.EventOrderNew, model.EventOrderUpdate,
		model.EventOrderCancel, model.EventOrderCancelRequested:
		// 先更新订单库再通知执行链，链的对账依赖库里的最新状态
		b.orders.Update(ev.Orders)
		b.chain.HandleOrderEvent(ev.Kind)
	case model.EventTradeExecuted, model.EventTradeExecutionUpdate:
		b.chain.HandleTradeEvent(ev.Kind, ev.Trade)
	case model.EventNotification:
		b.chain.HandleNotification(ev.Notification)
	case model.EventMaintenanceBegin:
		b.maintenance = true
		b.logger.Warn("交易所进入维护窗口，暂停求解")
	case model.EventMaintenanceEnd:
		b.maintenance = false
		b.logger.Info("交易所维护结束，恢复求解")
	default:
		b.logger.Error("未识别的账户事件", zap.String("kind", string(ev.Kind)))
	}
}

// runCycle 执行一轮求解
// 有链在途、处于维护窗口或行情尚未齐全时直接跳过。
func (b *Bot) runCycle() {
	if b.trading || b.maintenance {
		return
	}
	if !b.books.HasAllSymbols(b.cfg.Symbols) {
		b.logger.Debug("订单簿尚未齐全，跳过本轮求解")
		return
	}

	s, err := solver.New(b.books, b.cfg.Trading.StartCurrency, b.cfg.Trading.MaxAmount,
		b.cfg.Trading.MinPathLength, b.cfg.Trading.MaxPathLength,
		b.cfg.Trading.MinPathProfitUSD, b.cfg.Fees.TakerRate, b.logger)
	if err != nil {
		b.logger.Error("构造求解器失败", zap.Error(err))
		return
	}

	solutions, err := s.Solve()
	if err != nil {
		if errors.Is(err, solver.ErrNoCirclePath) {
			b.logger.Debug("无可用环路")
		} else {
			b.logger.Warn("求解失败", zap.Error(err))
		}
		return
	}
	if len(solutions) == 0 {
		return
	}

	best := solutions[0]
	cycleID := uuid.NewString()
	b.logger.Info("发现套利机会",
		zap.String("cycle_id", cycleID),
		zap.Strings("path", best.Path),
		zap.Float64("used_amount", best.UsedAmount),
		zap.Float64("profit", best.EstimatedProfit),
		zap.Float64("profit_usd", best.EstimatedProfitUsd))

	if b.sink != nil && b.cfg.Output.SolutionsEnabled {
		b.sink.WriteSolution(SolutionRecord{
			CycleID:  cycleID,
			TsNs:     timeutil.NowNano(),
			Executed: b.cfg.Trading.Enabled,
			Solution: best,
		})
	}

	if !b.cfg.Trading.Enabled {
		// 只求解不执行（观察模式）
		return
	}

	b.execute(cycleID, best)
}

// execute 把方案换成订单链并启动执行
func (b *Bot) execute(cycleID string, sol *solver.Solution) {
	gid := timeutil.NowMs()
	for i, instr := range sol.Instructions {
		b.chain.Enqueue(&model.NewOrderRequest{
			GID:    gid,
			CID:    gid + int64(i), // 毫秒基+序号，重试复用同一 CID
			Type:   model.OrderTypeExchangeLimit,
			Symbol: instr.Symbol,
			Price:  instr.Price,
			Amount: instr.Amount,
		})
	}

	b.trading = true
	start := timeutil.NowNano()
	b.chain.Start(func(err error) {
		elapsed := timeutil.SinceNano(start)
		if err != nil {
			b.logger.Error("订单链执行失败",
				zap.String("cycle_id", cycleID),
				zap.Duration("elapsed", elapsed),
				zap.Error(err))
		} else {
			b.logger.Info("订单链执行完成",
				zap.String("cycle_id", cycleID),
				zap.Duration("elapsed", elapsed))
		}
		b.chain.Clear()
		b.trading = false
	})
}

// Books 返回订单簿库（事件循环外只读访问需自行保证时序）
func (b *Bot) Books() *book.Store {
	return b.books
}

// loopScheduler 把计时器回调投递回事件循环执行
// 回调与事件处理严格串行，链状态机因此无需加锁。
type loopScheduler struct {
	bot *Bot
}

// loopTimer time.Timer 的可取消句柄
// Cancel 与触发存在竞争：已投递的回调仍会执行，
// 链状态机用 Processed 标志把过期回调变成空操作。
type loopTimer struct {
	t *time.Timer
}

// Cancel 实现 chain.Timer
func (lt *loopTimer) Cancel() {
	lt.t.Stop()
}

// After 实现 chain.Scheduler
func (s *loopScheduler) After(d time.Duration, fn func()) chain.Timer {
	t := time.AfterFunc(d, func() {
		select {
		case s.bot.callbackCh <- fn:
		case <-s.bot.done:
			// 循环已停止，丢弃回调
		}
	})
	return &loopTimer{t: t}
}
