package solver

import "circular-arbitrage-bot/internal/core/model"

// PricingPolicy 被动挂单的定价策略
// 给定动作与簿上限价口径的最优价，返回实际使用的委托价。
// 精确的让价方向与幅度属于可调策略，不写死在模拟里。
type PricingPolicy interface {
	// LimitPrice 返回下单价
	LimitPrice(a model.Action, best float64) float64
}

// FeeNudgePolicy 按手续费比例向价差方向让价的默认策略
// 买单抬价、卖单压价，幅度为每跳手续费的固定比例，
// 以提高被动单的排队优先级。
type FeeNudgePolicy struct {
	// Fee 每跳手续费率（0-1）
	Fee float64
	// Fraction 让价占手续费的比例（如 0.25 表示 25%）
	Fraction float64
}

// LimitPrice 实现 PricingPolicy
func (p FeeNudgePolicy) LimitPrice(a model.Action, best float64) float64 {
	nudge := p.Fee * p.Fraction
	if a == model.ActionBuy {
		return best * (1 + nudge)
	}
	return best * (1 - nudge)
}
