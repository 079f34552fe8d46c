// Package wallet 钱包余额缓存测试
package wallet

import (
	"testing"

	"go.uber.org/zap"

	"circular-arbitrage-bot/internal/core/model"
)

func f(v float64) *float64 { return &v }

// TestStore_UpdateAndBalance 测试余额写入与查询
func TestStore_UpdateAndBalance(t *testing.T) {
	s := New(zap.NewNop())

	s.Update([]model.Wallet{
		{Type: model.WalletExchange, Currency: "IOT", Balance: 100.5, Available: f(100.5)},
		{Type: model.WalletExchange, Currency: "USD", Balance: 2000, Available: f(1999.5)},
		{Type: model.WalletMargin, Currency: "USD", Balance: 50, Available: f(50)},
	})

	if got := s.Balance(model.WalletExchange, "IOT"); got != 100.5 {
		t.Errorf("Balance(exchange, IOT) = %f, want 100.5", got)
	}
	// 钱包类型隔离
	if got := s.Balance(model.WalletMargin, "IOT"); got != 0 {
		t.Errorf("Balance(margin, IOT) = %f, want 0", got)
	}
	// 未知币种返回 0
	if got := s.Balance(model.WalletExchange, "XMR"); got != 0 {
		t.Errorf("Balance(exchange, XMR) = %f, want 0", got)
	}

	// 增量覆盖
	s.Update([]model.Wallet{
		{Type: model.WalletExchange, Currency: "IOT", Balance: 80, Available: f(80)},
	})
	if got := s.Balance(model.WalletExchange, "IOT"); got != 80 {
		t.Errorf("覆盖后 Balance = %f, want 80", got)
	}
}

// TestStore_AvailableUnknown 测试可用余额的未知态
// 未知与零必须可区分：未知时调用方应触发重算而不是按零下单。
func TestStore_AvailableUnknown(t *testing.T) {
	s := New(zap.NewNop())

	// 未见过的币种
	if _, ok := s.Available(model.WalletExchange, "IOT"); ok {
		t.Error("未见过的币种可用余额应为未知")
	}

	// Available 为 nil（交易所尚未计算）
	s.Update([]model.Wallet{
		{Type: model.WalletExchange, Currency: "IOT", Balance: 100},
	})
	if _, ok := s.Available(model.WalletExchange, "IOT"); ok {
		t.Error("nil available 应为未知，不能按余额或零处理")
	}

	// 余额为零但已知，与未知不同
	s.Update([]model.Wallet{
		{Type: model.WalletExchange, Currency: "USD", Balance: 0, Available: f(0)},
	})
	avail, ok := s.Available(model.WalletExchange, "USD")
	if !ok || avail != 0 {
		t.Errorf("Available(exchange, USD) = %f, %v, want 0, true", avail, ok)
	}
}

// TestStore_Clear 测试重置后保留三类钱包顶层键
func TestStore_Clear(t *testing.T) {
	s := New(zap.NewNop())
	s.Update([]model.Wallet{
		{Type: model.WalletExchange, Currency: "IOT", Balance: 100, Available: f(100)},
	})

	s.Clear()
	if got := s.Balance(model.WalletExchange, "IOT"); got != 0 {
		t.Errorf("Clear 后 Balance = %f, want 0", got)
	}
	if infos := s.Infos(); len(infos) != 0 {
		t.Errorf("Clear 后 Infos = %v, want 空", infos)
	}

	// 三类钱包重置后仍可直接写入
	s.Update([]model.Wallet{
		{Type: model.WalletFunding, Currency: "BTC", Balance: 1, Available: f(1)},
	})
	if got := s.Balance(model.WalletFunding, "BTC"); got != 1 {
		t.Errorf("Clear 后写入失败: %f", got)
	}
}

// TestStore_UnknownWalletType 测试未知钱包类型不丢数据
func TestStore_UnknownWalletType(t *testing.T) {
	s := New(zap.NewNop())
	s.Update([]model.Wallet{
		{Type: model.WalletType("derivatives"), Currency: "USDT", Balance: 9, Available: f(9)},
	})
	if got := s.Balance(model.WalletType("derivatives"), "USDT"); got != 9 {
		t.Errorf("未知钱包类型余额 = %f, want 9", got)
	}
}

// TestStore_Infos 测试已知组合枚举
func TestStore_Infos(t *testing.T) {
	s := New(zap.NewNop())
	s.Update([]model.Wallet{
		{Type: model.WalletExchange, Currency: "IOT", Balance: 1, Available: f(1)},
		{Type: model.WalletExchange, Currency: "USD", Balance: 2, Available: f(2)},
		{Type: model.WalletMargin, Currency: "USD", Balance: 3, Available: f(3)},
	})
	infos := s.Infos()
	if len(infos) != 3 {
		t.Fatalf("len(Infos) = %d, want 3", len(infos))
	}
	seen := make(map[Info]bool, len(infos))
	for _, in := range infos {
		seen[in] = true
	}
	for _, want := range []Info{
		{Type: model.WalletExchange, Currency: "IOT"},
		{Type: model.WalletExchange, Currency: "USD"},
		{Type: model.WalletMargin, Currency: "USD"},
	} {
		if !seen[want] {
			t.Errorf("缺少组合 %+v", want)
		}
	}
}
