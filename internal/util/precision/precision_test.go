// Package precision 精度处理测试
package precision

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestTruncatePrice_SpecificValues 测试价格截断到 5 位有效数字
func TestTruncatePrice_SpecificValues(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{12.12345, 12.123},
		{0.00123456, 0.0012345},
		{300.15678, 300.15},
		{0.0015832, 0.0015832},
		{1234.5678, 1234.5},
		{0.49975, 0.49975},
		{0, 0},
		{5, 5},
	}
	for _, tt := range tests {
		if got := TruncatePrice(tt.in); got != tt.want {
			t.Errorf("TruncatePrice(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

// TestTruncatePrice_NeverRoundsUp 属性: 截断结果绝不大于原值（正数）
func TestTruncatePrice_NeverRoundsUp(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("正价格截断后不增大", prop.ForAll(
		func(p float64) bool {
			if p <= 0 {
				return true
			}
			return TruncatePrice(p) <= p
		},
		gen.Float64Range(1e-6, 1e5),
	))

	properties.TestingRun(t)
}

// TestRoundAmount 测试数量舍入到 8 位小数
func TestRoundAmount(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{0.123456789, 0.12345679},
		{-0.123456789, -0.12345679},
		{50, 50},
		{0.000000004, 0}, // 第 9 位小数，舍入归零
	}
	for _, tt := range tests {
		if got := RoundAmount(tt.in); got != tt.want {
			t.Errorf("RoundAmount(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

// TestAmountIsZero 测试精度下的数量判零
func TestAmountIsZero(t *testing.T) {
	if !AmountIsZero(0) {
		t.Error("0 应判为零")
	}
	if !AmountIsZero(1e-9) {
		t.Error("1e-9 在 8 位小数精度下应判为零")
	}
	if AmountIsZero(1e-8) {
		t.Error("1e-8 恰在精度内，不应判为零")
	}
	if AmountIsZero(-0.1) {
		t.Error("-0.1 不应判为零")
	}
}

// TestCovers 测试成交量覆盖判断
// 买卖方向的数量符号相反，比较必须按绝对值。
func TestCovers(t *testing.T) {
	tests := []struct {
		filled    float64
		requested float64
		want      bool
	}{
		{50, 50, true},
		{50, -50, true},       // 卖单请求量为负
		{49.999999, 50, false},
		{50.000000004, 50, true}, // 精度外的尾差舍入后相等
		{25, 50, false},
		{51, 50, true},
	}
	for _, tt := range tests {
		if got := Covers(tt.filled, tt.requested); got != tt.want {
			t.Errorf("Covers(%v, %v) = %v, want %v", tt.filled, tt.requested, got, tt.want)
		}
	}
}

// TestFormat 测试请求字段字符串格式化
func TestFormat(t *testing.T) {
	if got := FormatPrice(300.15678); got != "300.15" {
		t.Errorf("FormatPrice = %q, want %q", got, "300.15")
	}
	if got := FormatAmount(-50.123456789); got != "-50.12345679" {
		t.Errorf("FormatAmount = %q, want %q", got, "-50.12345679")
	}
	if got := FormatAmount(50); got != "50" {
		t.Errorf("FormatAmount = %q, want %q", got, "50")
	}
}
