// Package book 订单簿缓存测试
package book

import (
	"math"
	"sort"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"circular-arbitrage-bot/internal/core/model"
)

// snapshotUpdate 构造一条快照更新
func snapshotUpdate(sym string, entries ...model.BookEntry) *model.BookUpdate {
	return &model.BookUpdate{Symbol: sym, Snapshot: entries}
}

// entryUpdate 构造一条增量更新
func entryUpdate(sym string, price float64, count int, amount float64) *model.BookUpdate {
	return &model.BookUpdate{Symbol: sym, Entry: &model.BookEntry{Price: price, Count: count, Amount: amount}}
}

// newTestStore 构造带标准 IOT/ETH/USD 行情的缓存
// 买一/卖一: tIOTUSD 0.4795/0.50, tETHUSD 300/300.2, tIOTETH 0.0015816/0.0015832
func newTestStore() *Store {
	s := New(zap.NewNop())
	s.Update(snapshotUpdate("tIOTUSD",
		model.BookEntry{Price: 0.4795, Count: 3, Amount: 5000},
		model.BookEntry{Price: 0.4790, Count: 2, Amount: 8000},
		model.BookEntry{Price: 0.50, Count: 4, Amount: -5000},
		model.BookEntry{Price: 0.51, Count: 1, Amount: -9000},
	))
	s.Update(snapshotUpdate("tETHUSD",
		model.BookEntry{Price: 300, Count: 5, Amount: 50},
		model.BookEntry{Price: 299.5, Count: 2, Amount: 80},
		model.BookEntry{Price: 300.2, Count: 6, Amount: -50},
		model.BookEntry{Price: 301, Count: 2, Amount: -70},
	))
	s.Update(snapshotUpdate("tIOTETH",
		model.BookEntry{Price: 0.0015816, Count: 2, Amount: 5000},
		model.BookEntry{Price: 0.0015800, Count: 1, Amount: 7000},
		model.BookEntry{Price: 0.0015832, Count: 2, Amount: -5000},
		model.BookEntry{Price: 0.0015850, Count: 1, Amount: -6000},
	))
	return s
}

// TestStore_SnapshotPopulatesBothSides 测试快照按数量符号分流两侧
func TestStore_SnapshotPopulatesBothSides(t *testing.T) {
	s := newTestStore()

	bid, ok := s.Book("tIOTUSD").BestPrice(model.SideBids)
	if !ok || bid != 0.4795 {
		t.Errorf("最优买价 = %v, want 0.4795", bid)
	}
	ask, ok := s.Book("tIOTUSD").BestPrice(model.SideAsks)
	if !ok || ask != 0.50 {
		t.Errorf("最优卖价 = %v, want 0.50", ask)
	}

	lvl, ok := s.Book("tIOTUSD").Level(model.SideAsks, 0.50)
	if !ok {
		t.Fatal("卖一档位缺失")
	}
	if lvl.Size != 5000 {
		t.Errorf("卖一数量 = %v, want 5000（取绝对值）", lvl.Size)
	}
}

// TestStore_SnapshotIsIdempotent 测试重复应用同一快照结果不变
// 重连重同步会重复推送快照，状态必须收敛。
func TestStore_SnapshotIsIdempotent(t *testing.T) {
	s := New(zap.NewNop())
	snap := snapshotUpdate("tIOTUSD",
		model.BookEntry{Price: 0.4795, Count: 3, Amount: 5000},
		model.BookEntry{Price: 0.50, Count: 4, Amount: -5000},
	)
	s.Update(snap)
	// 中间插入一条增量，快照应把它覆盖掉
	s.Update(entryUpdate("tIOTUSD", 0.48, 1, 1000))
	s.Update(snap)

	b := s.Book("tIOTUSD")
	if got := len(b.SortedPrices(model.SideBids)); got != 1 {
		t.Errorf("买盘档位数 = %d, want 1（快照应覆盖增量）", got)
	}
	bid, _ := b.BestPrice(model.SideBids)
	if bid != 0.4795 {
		t.Errorf("最优买价 = %v, want 0.4795", bid)
	}
}

// TestStore_IncrementalUpsertAndRemove 测试增量覆盖与 count=0 删除
func TestStore_IncrementalUpsertAndRemove(t *testing.T) {
	s := newTestStore()

	// 覆盖已有价位
	s.Update(entryUpdate("tIOTUSD", 0.4795, 5, 6000))
	lvl, _ := s.Book("tIOTUSD").Level(model.SideBids, 0.4795)
	if lvl.Size != 6000 || lvl.Count != 5 {
		t.Errorf("覆盖后档位 = %+v, want Size=6000 Count=5", lvl)
	}

	// count=0 删除买一，次优价顶上
	s.Update(entryUpdate("tIOTUSD", 0.4795, 0, 1))
	bid, _ := s.Book("tIOTUSD").BestPrice(model.SideBids)
	if bid != 0.4790 {
		t.Errorf("删除买一后最优买价 = %v, want 0.4790", bid)
	}
}

// TestStore_RemoveMissingPriceIsSafe 测试删除不存在的价位只告警不崩溃
func TestStore_RemoveMissingPriceIsSafe(t *testing.T) {
	s := newTestStore()
	before := s.Book("tIOTUSD").UpdateCount()

	s.Update(entryUpdate("tIOTUSD", 0.47, 0, 1))

	if got := s.Book("tIOTUSD").UpdateCount(); got != before+1 {
		t.Errorf("更新计数 = %d, want %d（缺失删除也计数）", got, before+1)
	}
	bid, _ := s.Book("tIOTUSD").BestPrice(model.SideBids)
	if bid != 0.4795 {
		t.Errorf("最优买价被意外改动: %v", bid)
	}
}

// TestStore_SortedSnapshotOrder_Property 属性: 任意更新序列后，
// 买盘价格严格降序、卖盘严格升序，且与树中档位一一对应
func TestStore_SortedSnapshotOrder_Property(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("两侧快照有序且与档位一致", prop.ForAll(
		func(prices []float64, counts []int, amounts []float64) bool {
			n := len(prices)
			if len(counts) < n {
				n = len(counts)
			}
			if len(amounts) < n {
				n = len(amounts)
			}
			s := New(zap.NewNop())
			for i := 0; i < n; i++ {
				s.Update(entryUpdate("tTSTUSD", prices[i], counts[i], amounts[i]))
			}
			b := s.Book("tTSTUSD")
			if b == nil {
				return n == 0
			}

			bids := b.SortedPrices(model.SideBids)
			if !sort.SliceIsSorted(bids, func(i, j int) bool { return bids[i] > bids[j] }) {
				return false
			}
			asks := b.SortedPrices(model.SideAsks)
			if !sort.Float64sAreSorted(asks) {
				return false
			}
			for _, p := range bids {
				if _, ok := b.Level(model.SideBids, p); !ok {
					return false
				}
			}
			for _, p := range asks {
				if _, ok := b.Level(model.SideAsks, p); !ok {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Float64Range(0.01, 100)),
		gen.SliceOf(gen.IntRange(0, 3)),
		gen.SliceOf(gen.Float64Range(-500, 500)),
	))

	properties.TestingRun(t)
}

// TestStore_FirstLevelsByPercent 测试按偏离带取档位
func TestStore_FirstLevelsByPercent(t *testing.T) {
	s := New(zap.NewNop())
	s.Update(snapshotUpdate("tETHUSD",
		model.BookEntry{Price: 300, Count: 1, Amount: -10},   // 卖一
		model.BookEntry{Price: 300.5, Count: 1, Amount: -10}, // 偏离 0.167%
		model.BookEntry{Price: 302, Count: 1, Amount: -10},   // 偏离 0.667%，应出界
	))

	levels := s.FirstLevelsByPercent("tETHUSD", model.SideAsks, 0.25)
	if len(levels) != 2 {
		t.Fatalf("0.25%% 带内档位数 = %d, want 2", len(levels))
	}
	if levels[0].Price != 300 || levels[1].Price != 300.5 {
		t.Errorf("带内档位 = %v", levels)
	}
}

// TestStore_BestLimitPrice 测试限价口径的方向约定
func TestStore_BestLimitPrice(t *testing.T) {
	s := newTestStore()

	// 限价口径：买挂买盘，卖挂卖盘
	if p, _ := s.BestLimitPrice("tIOTUSD", model.ActionBuy); p != 0.4795 {
		t.Errorf("限价买 = %v, want 0.4795", p)
	}
	if p, _ := s.BestLimitPrice("tIOTUSD", model.ActionSell); p != 0.50 {
		t.Errorf("限价卖 = %v, want 0.50", p)
	}

	// 限价档位携带数量
	lvl, ok := s.BestLimitLevel("tIOTUSD", model.ActionSell)
	if !ok || lvl.Price != 0.50 {
		t.Errorf("限价卖档位 = %+v, %v", lvl, ok)
	}

	// 未知符号
	if _, ok := s.BestLimitPrice("tXMRUSD", model.ActionBuy); ok {
		t.Error("未知符号不应有最优价")
	}
}

// TestStore_BestMarketPrice 测试市价口径的方向约定
func TestStore_BestMarketPrice(t *testing.T) {
	s := newTestStore()

	// 市价口径：买吃卖盘，卖吃买盘
	if p, _ := s.BestMarketPrice("tIOTUSD", model.ActionBuy); p != 0.50 {
		t.Errorf("市价买 = %v, want 0.50", p)
	}
	if p, _ := s.BestMarketPrice("tIOTUSD", model.ActionSell); p != 0.4795 {
		t.Errorf("市价卖 = %v, want 0.4795", p)
	}

	// 与限价口径互为对侧
	if p, _ := s.BestLimitPrice("tIOTUSD", model.ActionBuy); p == 0.50 {
		t.Error("限价买与市价买不应同侧")
	}

	// 未知符号
	if _, ok := s.BestMarketPrice("tXMRUSD", model.ActionBuy); ok {
		t.Error("未知符号不应有最优价")
	}
}

// TestStore_Spread 测试最优买卖价差
func TestStore_Spread(t *testing.T) {
	s := newTestStore()

	sp, ok := s.Spread("tIOTUSD")
	if !ok || math.Abs(sp-0.0205) > 1e-12 {
		t.Errorf("价差 = %v, %v, want 0.0205", sp, ok)
	}

	// 单侧簿价差不可得
	s2 := New(zap.NewNop())
	s2.Update(snapshotUpdate("tETHUSD",
		model.BookEntry{Price: 300, Count: 1, Amount: 10},
	))
	if _, ok := s2.Spread("tETHUSD"); ok {
		t.Error("缺卖盘时价差应不可得")
	}
	if _, ok := s.Spread("tXMRUSD"); ok {
		t.Error("未知符号价差应不可得")
	}
}

// TestStore_CrossedBookWarnsOnly 测试交叉簿只告警不丢弃
// 买一不低于卖一属于数据质量异常，更新本身必须照常生效。
func TestStore_CrossedBookWarnsOnly(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	s := New(zap.New(core))

	s.Update(snapshotUpdate("tIOTUSD",
		model.BookEntry{Price: 0.50, Count: 1, Amount: 5000},
		model.BookEntry{Price: 0.49, Count: 1, Amount: -5000},
	))

	bid, okBid := s.Book("tIOTUSD").BestPrice(model.SideBids)
	ask, okAsk := s.Book("tIOTUSD").BestPrice(model.SideAsks)
	if !okBid || !okAsk || bid != 0.50 || ask != 0.49 {
		t.Fatalf("交叉簿应照常缓存: bid=%v ask=%v", bid, ask)
	}
	if got := logs.FilterMessage("订单簿交叉").Len(); got != 1 {
		t.Errorf("交叉告警次数 = %d, want 1", got)
	}

	// 交叉解除后不再告警
	s.Update(entryUpdate("tIOTUSD", 0.50, 0, 1))
	if got := logs.FilterMessage("订单簿交叉").Len(); got != 1 {
		t.Errorf("解除交叉后告警次数 = %d, want 仍为 1", got)
	}
}

// TestStore_UsdConversion 测试折美元换算
func TestStore_UsdConversion(t *testing.T) {
	s := newTestStore()

	// USD 原样返回
	if v, ok := s.ConvertToUsd("USD", 42); !ok || v != 42 {
		t.Errorf("USD 自换算 = %v, %v", v, ok)
	}
	// 按最优买价折入
	if v, ok := s.ConvertToUsd("IOT", 100); !ok || v != 100*0.4795 {
		t.Errorf("IOT 折美元 = %v, %v", v, ok)
	}
	// 按最优卖价折出
	if v, ok := s.ConvertFromUsd(300.2, "ETH"); !ok || v != 1 {
		t.Errorf("美元折 ETH = %v, %v", v, ok)
	}
	// 无 <CCY>USD 市场时换算失败
	if _, ok := s.ConvertToUsd("XMR", 1); ok {
		t.Error("未知币种换算应失败")
	}
}

// TestStore_SymbolFor 测试两个币种之间的符号查找（两种排序都试）
func TestStore_SymbolFor(t *testing.T) {
	s := newTestStore()

	if sym, ok := s.SymbolFor("IOT", "ETH"); !ok || sym != "tIOTETH" {
		t.Errorf("SymbolFor(IOT, ETH) = %v, %v", sym, ok)
	}
	if sym, ok := s.SymbolFor("ETH", "IOT"); !ok || sym != "tIOTETH" {
		t.Errorf("SymbolFor(ETH, IOT) = %v, %v", sym, ok)
	}
	if _, ok := s.SymbolFor("IOT", "XMR"); ok {
		t.Error("不存在的市场应返回 false")
	}
}

// TestStore_HasAllSymbols 测试订阅就绪门
func TestStore_HasAllSymbols(t *testing.T) {
	s := newTestStore()

	if !s.HasAllSymbols([]string{"tIOTUSD", "tETHUSD", "tIOTETH"}) {
		t.Error("全部符号有簿时应就绪")
	}
	if s.HasAllSymbols([]string{"tIOTUSD", "tBTCUSD"}) {
		t.Error("缺符号时不应就绪")
	}
}

// TestStore_Snapshot 测试持久化快照导出
func TestStore_Snapshot(t *testing.T) {
	s := newTestStore()
	rec := s.Snapshot()

	if rec.TsUnixNs == 0 {
		t.Error("快照时间戳缺失")
	}
	if len(rec.Books) != 3 {
		t.Fatalf("快照符号数 = %d, want 3", len(rec.Books))
	}
	iot := rec.Books["tIOTUSD"]
	if len(iot.Bids) != 2 || len(iot.Asks) != 2 {
		t.Errorf("tIOTUSD 档位数 = %d/%d, want 2/2", len(iot.Bids), len(iot.Asks))
	}
	if iot.Bids[0].Price != 0.4795 {
		t.Errorf("快照买一 = %v, want 0.4795", iot.Bids[0].Price)
	}
	if iot.UpdateCount == 0 {
		t.Error("快照更新计数缺失")
	}
}
