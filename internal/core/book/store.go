package book

import (
	"sort"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"circular-arbitrage-bot/internal/core/model"
	"circular-arbitrage-bot/internal/symbol"
	"circular-arbitrage-bot/internal/util/timeutil"
)

// Store 订单簿缓存（单写者）
// 会话内只增不删：见过的交易对一直保留。
type Store struct {
	// books 按符号缓存订单簿
	books map[string]*SymbolBook
	// logger 日志记录器
	logger *zap.Logger
}

// New 创建订单簿缓存
func New(logger *zap.Logger) *Store {
	return &Store{
		books:  make(map[string]*SymbolBook),
		logger: logger.Named("book"),
	}
}

func (s *Store) bookFor(sym string) *SymbolBook {
	b, ok := s.books[sym]
	if !ok {
		b = newSymbolBook()
		s.books[sym] = b
	}
	return b
}

// Update 应用一条订单簿更新
// 首次更新（或快照推送）直接按符号数量的正负填充两侧；
// 增量更新按 count 判定：count==0 删除价位（缺失只告警），
// count>0 以价格为键覆盖档位。更新后重建有序价格快照并做交叉检查。
func (s *Store) Update(u *model.BookUpdate) {
	if u == nil || u.Symbol == "" {
		return
	}
	b := s.bookFor(u.Symbol)

	switch {
	case u.IsSnapshot():
		// 快照推送（首次订阅或重连重同步）：清空后整体重建
		b.bids.Clear()
		b.asks.Clear()
		for _, e := range u.Snapshot {
			b.upsert(e.Side(), e.Level())
		}
	case u.Entry != nil:
		e := *u.Entry
		if e.Count == 0 {
			if !b.remove(e.Side(), e.Price) {
				s.logger.Warn("删除订单簿档位失败：价位不存在",
					zap.String("symbol", u.Symbol),
					zap.String("side", string(e.Side())),
					zap.Float64("price", e.Price),
					zap.Int64("ts_ns", timeutil.NowNano()))
			}
		} else {
			b.upsert(e.Side(), e.Level())
		}
	default:
		return
	}

	b.rebuildSnapshots()
	b.updateCount++
	s.checkCross(u.Symbol, b)
}

// checkCross 交叉簿检查
// 健康行情下最高买价应低于最低卖价，违反只记为数据质量异常。
func (s *Store) checkCross(sym string, b *SymbolBook) {
	bid, okBid := b.BestPrice(model.SideBids)
	ask, okAsk := b.BestPrice(model.SideAsks)
	if okBid && okAsk && bid >= ask {
		s.logger.Warn("订单簿交叉",
			zap.String("symbol", sym),
			zap.Float64("best_bid", bid),
			zap.Float64("best_ask", ask),
			zap.Int64("ts_ns", timeutil.NowNano()))
	}
}

// Book 返回指定符号的订单簿（可能为 nil）
func (s *Store) Book(sym string) *SymbolBook {
	return s.books[sym]
}

// Symbols 返回会话内见过的全部符号（升序，保证遍历确定性）
func (s *Store) Symbols() []string {
	syms := lo.Keys(s.books)
	sort.Strings(syms)
	return syms
}

// HasAllSymbols 订阅就绪门：required 中的符号是否全部有簿
func (s *Store) HasAllSymbols(required []string) bool {
	return lo.EveryBy(required, func(sym string) bool {
		b, ok := s.books[sym]
		return ok && b.updateCount > 0
	})
}

// marketSide 市价口径：买吃卖盘、卖吃买盘（主动侧）
func marketSide(a model.Action) model.BookSide {
	if a == model.ActionBuy {
		return model.SideAsks
	}
	return model.SideBids
}

// BestMarketPrice 市价口径最优价（立即成交要穿越的对手价）
func (s *Store) BestMarketPrice(sym string, a model.Action) (float64, bool) {
	b, ok := s.books[sym]
	if !ok {
		return 0, false
	}
	return b.BestPrice(marketSide(a))
}

// Spread 最优买卖价差（绝对值），任一侧为空时不可得
func (s *Store) Spread(sym string) (float64, bool) {
	b, ok := s.books[sym]
	if !ok {
		return 0, false
	}
	bid, okBid := b.BestPrice(model.SideBids)
	ask, okAsk := b.BestPrice(model.SideAsks)
	if !okBid || !okAsk {
		return 0, false
	}
	d := ask - bid
	if d < 0 {
		d = -d
	}
	return d, true
}

// limitSide 限价口径：买挂买盘、卖挂卖盘（被动侧）
func limitSide(a model.Action) model.BookSide {
	if a == model.ActionBuy {
		return model.SideBids
	}
	return model.SideAsks
}

// BestLimitPrice 限价口径最优价（执行管线挂被动单用）
func (s *Store) BestLimitPrice(sym string, a model.Action) (float64, bool) {
	b, ok := s.books[sym]
	if !ok {
		return 0, false
	}
	return b.BestPrice(limitSide(a))
}

// BestLimitLevel 限价口径最优档位
func (s *Store) BestLimitLevel(sym string, a model.Action) (model.PriceLevel, bool) {
	b, ok := s.books[sym]
	if !ok {
		return model.PriceLevel{}, false
	}
	return b.BestLevel(limitSide(a))
}

// FirstLevelsByPercent 返回与最优价偏离不超过 pct% 的档位
func (s *Store) FirstLevelsByPercent(sym string, side model.BookSide, pct float64) []model.PriceLevel {
	b, ok := s.books[sym]
	if !ok {
		return nil
	}
	return b.FirstLevelsByPercent(side, pct)
}

// usdSymbol 定位 <currency>USD 形式的符号
// 必须恰好存在一个，零个或多个都视为换算失败（未知或歧义市场）。
func (s *Store) usdSymbol(currency string) (string, bool) {
	matches := lo.Filter(s.Symbols(), func(sym string, _ int) bool {
		p, err := symbol.ToCurrencyPair(sym)
		return err == nil && p.Base == currency && p.Quote == "USD"
	})
	if len(matches) != 1 {
		return "", false
	}
	return matches[0], true
}

// ConvertToUsd 按最优买价将 amount 个 currency 换算为 USD
// currency 为 USD 时原样返回。
func (s *Store) ConvertToUsd(currency string, amount float64) (float64, bool) {
	if currency == "USD" {
		return amount, true
	}
	sym, ok := s.usdSymbol(currency)
	if !ok {
		return 0, false
	}
	bid, ok := s.books[sym].BestPrice(model.SideBids)
	if !ok {
		return 0, false
	}
	return amount * bid, true
}

// ConvertFromUsd 按最优卖价将 usdAmount 换算为 currency
func (s *Store) ConvertFromUsd(usdAmount float64, currency string) (float64, bool) {
	if currency == "USD" {
		return usdAmount, true
	}
	sym, ok := s.usdSymbol(currency)
	if !ok {
		return 0, false
	}
	ask, ok := s.books[sym].BestPrice(model.SideAsks)
	if !ok || ask == 0 {
		return 0, false
	}
	return usdAmount / ask, true
}

// SymbolFor 查找连接两个币种的符号
func (s *Store) SymbolFor(c1, c2 string) (string, bool) {
	if _, ok := s.books[symbol.PairToSymbol(c1, c2)]; ok {
		return symbol.PairToSymbol(c1, c2), true
	}
	if _, ok := s.books[symbol.PairToSymbol(c2, c1)]; ok {
		return symbol.PairToSymbol(c2, c1), true
	}
	return "", false
}

// SnapshotRecord 订单簿持久化记录（JSONL 一行）
type SnapshotRecord struct {
	// TsUnixNs 快照时间（纳秒）
	TsUnixNs int64 `json:"ts_unix_ns"`
	// Books 按符号的两侧档位
	Books map[string]SymbolSnapshot `json:"books"`
}

// SymbolSnapshot 单个符号的档位快照
type SymbolSnapshot struct {
	// Bids 买盘档位（降序）
	Bids []model.PriceLevel `json:"bids"`
	// Asks 卖盘档位（升序）
	Asks []model.PriceLevel `json:"asks"`
	// UpdateCount 已应用的更新条数
	UpdateCount int64 `json:"update_count"`
}

// Snapshot 导出全部订单簿，用于周期性落盘和离线回放
func (s *Store) Snapshot() SnapshotRecord {
	rec := SnapshotRecord{
		TsUnixNs: timeutil.NowNano(),
		Books:    make(map[string]SymbolSnapshot, len(s.books)),
	}
	for sym, b := range s.books {
		rec.Books[sym] = SymbolSnapshot{
			Bids:        b.FirstLevelsByCount(model.SideBids, b.bids.Size()),
			Asks:        b.FirstLevelsByCount(model.SideAsks, b.asks.Size()),
			UpdateCount: b.updateCount,
		}
	}
	return rec
}
