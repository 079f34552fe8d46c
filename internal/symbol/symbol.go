// Package symbol 提供交易对符号与币种之间的纯字符串转换。
// 符号格式: 前缀 t（现货）或 f（融资）+ 两个 3 字母币种，如 tIOTUSD。
// 核心代码只通过本包理解符号格式，便于适配其它交易所。
package symbol

import (
	"fmt"

	"github.com/samber/lo"

	"circular-arbitrage-bot/internal/core/model"
)

// currencyLength 币种代码长度
const currencyLength = 3

// Pair 币种对
type Pair struct {
	// Base 基础币种（符号中的第一个币种）
	Base string
	// Quote 计价币种（符号中的第二个币种）
	Quote string
}

// ToCurrencyPair 将符号拆解为币种对
// 如 tIOTUSD -> {Base: IOT, Quote: USD}
func ToCurrencyPair(sym string) (Pair, error) {
	if len(sym) != 1+2*currencyLength {
		return Pair{}, fmt.Errorf("符号 %q 长度非法", sym)
	}
	return Pair{
		Base:  sym[1 : 1+currencyLength],
		Quote: sym[1+currencyLength:],
	}, nil
}

// PairToSymbol 将币种对组合为现货符号
// 如 (IOT, USD) -> tIOTUSD
func PairToSymbol(base, quote string) string {
	return "t" + base + quote
}

// ActionFor 确定从 currency 出发经由 sym 交易时的动作
// 源币种等于符号的第一个币种 -> 卖出；等于第二个 -> 买入。
// 如 (tIOTUSD, IOT) -> sell，(tIOTUSD, USD) -> buy。
func ActionFor(sym, currency string) (model.Action, error) {
	p, err := ToCurrencyPair(sym)
	if err != nil {
		return "", err
	}
	switch currency {
	case p.Base:
		return model.ActionSell, nil
	case p.Quote:
		return model.ActionBuy, nil
	}
	return "", fmt.Errorf("币种 %s 不属于符号 %s", currency, sym)
}

// Currencies 从符号列表提取去重后的币种集合
// 长度非法的符号被跳过。
func Currencies(symbols []string) []string {
	pairs := lo.FilterMap(symbols, func(s string, _ int) ([]string, bool) {
		p, err := ToCurrencyPair(s)
		if err != nil {
			return nil, false
		}
		return []string{p.Base, p.Quote}, true
	})
	return lo.Uniq(lo.Flatten(pairs))
}
