// Package book 维护各交易对的 L2 订单簿镜像。
// 买卖两侧分别用红黑树按最优价在前的顺序存放档位，
// 每次更新后重建有序价格快照，供求解器和执行链查询。
// 本包默认由机器人事件循环单 goroutine 读写。
package book

import (
	rbt "github.com/emirpasic/gods/trees/redblacktree"
	"github.com/emirpasic/gods/utils"

	"circular-arbitrage-bot/internal/core/model"
)

// SymbolBook 单个交易对的订单簿
type SymbolBook struct {
	// bids 买盘档位，价格降序（最优买价在前）
	bids *rbt.Tree
	// asks 卖盘档位，价格升序（最优卖价在前）
	asks *rbt.Tree
	// sortedBids 买盘有序价格快照（降序），每次更新后重建
	sortedBids []float64
	// sortedAsks 卖盘有序价格快照（升序），每次更新后重建
	sortedAsks []float64
	// updateCount 已应用的更新条数
	updateCount int64
}

// bidComparator 买盘比较器：价格大的排前面
func bidComparator(a, b interface{}) int {
	return -utils.Float64Comparator(a, b)
}

func newSymbolBook() *SymbolBook {
	return &SymbolBook{
		bids: rbt.NewWith(bidComparator),
		asks: rbt.NewWith(utils.Float64Comparator),
	}
}

func (b *SymbolBook) side(s model.BookSide) *rbt.Tree {
	if s == model.SideBids {
		return b.bids
	}
	return b.asks
}

// upsert 新增或覆盖档位
func (b *SymbolBook) upsert(s model.BookSide, lvl model.PriceLevel) {
	b.side(s).Put(lvl.Price, lvl)
}

// remove 删除价位，返回该价位是否存在
func (b *SymbolBook) remove(s model.BookSide, price float64) bool {
	t := b.side(s)
	if _, found := t.Get(price); !found {
		return false
	}
	t.Remove(price)
	return true
}

// rebuildSnapshots 重建两侧的有序价格快照
// 快照顺序即"最优价"决胜顺序：买盘降序、卖盘升序。
func (b *SymbolBook) rebuildSnapshots() {
	b.sortedBids = sortedPrices(b.bids)
	b.sortedAsks = sortedPrices(b.asks)
}

func sortedPrices(t *rbt.Tree) []float64 {
	prices := make([]float64, 0, t.Size())
	it := t.Iterator()
	for it.Next() {
		prices = append(prices, it.Key().(float64))
	}
	return prices
}

// SortedPrices 返回指定方向的有序价格快照（只读）
func (b *SymbolBook) SortedPrices(s model.BookSide) []float64 {
	if s == model.SideBids {
		return b.sortedBids
	}
	return b.sortedAsks
}

// Level 返回指定方向、指定价格的档位
func (b *SymbolBook) Level(s model.BookSide, price float64) (model.PriceLevel, bool) {
	v, found := b.side(s).Get(price)
	if !found {
		return model.PriceLevel{}, false
	}
	return v.(model.PriceLevel), true
}

// BestPrice 返回指定方向的最优价
func (b *SymbolBook) BestPrice(s model.BookSide) (float64, bool) {
	snap := b.SortedPrices(s)
	if len(snap) == 0 {
		return 0, false
	}
	return snap[0], true
}

// BestLevel 返回指定方向的最优档位
func (b *SymbolBook) BestLevel(s model.BookSide) (model.PriceLevel, bool) {
	p, ok := b.BestPrice(s)
	if !ok {
		return model.PriceLevel{}, false
	}
	return b.Level(s, p)
}

// FirstLevelsByCount 按排序返回前 n 个档位
func (b *SymbolBook) FirstLevelsByCount(s model.BookSide, n int) []model.PriceLevel {
	snap := b.SortedPrices(s)
	if n > len(snap) {
		n = len(snap)
	}
	levels := make([]model.PriceLevel, 0, n)
	for _, p := range snap[:n] {
		if lvl, ok := b.Level(s, p); ok {
			levels = append(levels, lvl)
		}
	}
	return levels
}

// FirstLevelsByPercent 返回与最优价偏离不超过 pct%（按最优价计）的所有档位
// 用于下单前估计薄簿风险。
func (b *SymbolBook) FirstLevelsByPercent(s model.BookSide, pct float64) []model.PriceLevel {
	snap := b.SortedPrices(s)
	if len(snap) == 0 {
		return nil
	}
	top := snap[0]
	band := top * pct / 100
	if band < 0 {
		band = -band
	}
	var levels []model.PriceLevel
	for _, p := range snap {
		diff := p - top
		if diff < 0 {
			diff = -diff
		}
		if diff > band {
			break
		}
		if lvl, ok := b.Level(s, p); ok {
			levels = append(levels, lvl)
		}
	}
	return levels
}

// UpdateCount 已应用的更新条数
func (b *SymbolBook) UpdateCount() int64 {
	return b.updateCount
}
