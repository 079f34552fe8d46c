// Package precision 实现交易所精度规则下的数值处理。
// 价格统一为 5 位有效数字（交易所会截断更高精度），
// 数量统一保留 8 位小数。使用 decimal 避免二进制浮点的
// 进位误差影响成交量比对。
package precision

import (
	"github.com/shopspring/decimal"
)

// priceSignificantDigits 价格有效数字位数
const priceSignificantDigits = 5

// amountDecimalPlaces 数量小数位数
const amountDecimalPlaces = 8

// TruncatePrice 将价格截断为 5 位有效数字
// 如 12.12345 -> 12.123，0.00123456 -> 0.0012345。
func TruncatePrice(p float64) float64 {
	if p == 0 {
		return 0
	}
	d := decimal.NewFromFloat(p)
	// 有效数字位数 = 整数位数 + 保留的小数位数
	intDigits := len(d.Abs().Truncate(0).String())
	if d.Abs().LessThan(decimal.New(1, 0)) {
		// 纯小数：定位第一个非零小数位
		intDigits = 0
		frac := d.Abs()
		for frac.LessThan(decimal.New(1, 0)) && !frac.IsZero() {
			frac = frac.Shift(1)
			intDigits--
		}
		intDigits++
	}
	places := int32(priceSignificantDigits - intDigits)
	out, _ := d.Truncate(places).Float64()
	return out
}

// RoundAmount 将数量四舍五入到 8 位小数
func RoundAmount(a float64) float64 {
	out, _ := decimal.NewFromFloat(a).Round(amountDecimalPlaces).Float64()
	return out
}

// AmountIsZero 数量在交易所精度下是否等于零
func AmountIsZero(a float64) bool {
	return decimal.NewFromFloat(a).Round(amountDecimalPlaces).IsZero()
}

// Covers 判断累计成交量（按精度舍入后）是否覆盖请求数量
// 两个参数都取绝对值比较。
func Covers(filled, requested float64) bool {
	f := decimal.NewFromFloat(filled).Abs().Round(amountDecimalPlaces)
	r := decimal.NewFromFloat(requested).Abs().Round(amountDecimalPlaces)
	return f.GreaterThanOrEqual(r)
}

// FormatPrice 将价格格式化为请求字段字符串
func FormatPrice(p float64) string {
	return decimal.NewFromFloat(TruncatePrice(p)).String()
}

// FormatAmount 将数量格式化为请求字段字符串（保留符号）
func FormatAmount(a float64) string {
	return decimal.NewFromFloat(a).Round(amountDecimalPlaces).String()
}
