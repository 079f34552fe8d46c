// Package symbol 符号转换测试
package symbol

import (
	"sort"
	"testing"

	"circular-arbitrage-bot/internal/core/model"
)

// TestToCurrencyPair 测试符号拆解
func TestToCurrencyPair(t *testing.T) {
	p, err := ToCurrencyPair("tIOTUSD")
	if err != nil {
		t.Fatalf("拆解失败: %v", err)
	}
	if p.Base != "IOT" || p.Quote != "USD" {
		t.Errorf("got %+v, want {IOT USD}", p)
	}

	// 非法长度
	for _, sym := range []string{"", "tIOT", "IOTUSD", "tIOTUSDT"} {
		if _, err := ToCurrencyPair(sym); err == nil {
			t.Errorf("符号 %q 应拆解失败", sym)
		}
	}
}

// TestPairToSymbol_Roundtrip 测试组合与拆解互逆
func TestPairToSymbol_Roundtrip(t *testing.T) {
	sym := PairToSymbol("ETH", "BTC")
	if sym != "tETHBTC" {
		t.Fatalf("PairToSymbol = %q, want tETHBTC", sym)
	}
	p, err := ToCurrencyPair(sym)
	if err != nil {
		t.Fatalf("拆解失败: %v", err)
	}
	if p.Base != "ETH" || p.Quote != "BTC" {
		t.Errorf("往返不一致: %+v", p)
	}
}

// TestActionFor 测试交易动作判定
// 持有基础币种则卖出，持有计价币种则买入。
func TestActionFor(t *testing.T) {
	tests := []struct {
		sym      string
		currency string
		want     model.Action
	}{
		{"tIOTUSD", "IOT", model.ActionSell},
		{"tIOTUSD", "USD", model.ActionBuy},
		{"tETHBTC", "ETH", model.ActionSell},
		{"tETHBTC", "BTC", model.ActionBuy},
	}
	for _, tt := range tests {
		got, err := ActionFor(tt.sym, tt.currency)
		if err != nil {
			t.Errorf("ActionFor(%s, %s) 失败: %v", tt.sym, tt.currency, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ActionFor(%s, %s) = %s, want %s", tt.sym, tt.currency, got, tt.want)
		}
	}

	// 币种不属于符号
	if _, err := ActionFor("tIOTUSD", "ETH"); err == nil {
		t.Error("不相关币种应返回错误")
	}
}

// TestCurrencies 测试币种集合提取（去重、跳过非法符号）
func TestCurrencies(t *testing.T) {
	got := Currencies([]string{"tIOTUSD", "tIOTETH", "tETHUSD", "bad", "tETHUSD"})
	sort.Strings(got)
	want := []string{"ETH", "IOT", "USD"}
	if len(got) != len(want) {
		t.Fatalf("币种数 = %d, want %d (%v)", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("币种[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}
