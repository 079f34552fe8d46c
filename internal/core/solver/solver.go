// Package solver 实现环形套利路径搜索与收益估算。
// 把当前订单簿里的币种看作图的状态、交易对看作双向转移，
// 枚举从起始币种出发且回到起始币种的有界闭合路径，
// 对每条路径按簿上限价口径模拟整环成交，扣除手续费与让价，
// 过滤薄簿后按估算收益降序返回可执行方案。
package solver

import (
	"errors"
	"fmt"
	"sort"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"circular-arbitrage-bot/internal/core/book"
	"circular-arbitrage-bot/internal/core/model"
	"circular-arbitrage-bot/internal/symbol"
)

// 路径长度硬边界（按转移条数计）
// 2 跳的"环"只是同一交易对的往返，扣除手续费后必然亏损；
// 超过 6 跳搜索空间爆炸且滑点累积，不允许。
const (
	// HardMinPathLength 路径长度下界
	HardMinPathLength = 3
	// HardMaxPathLength 路径长度上界
	HardMaxPathLength = 6
)

// HardMinProfitUsd 最小 USD 收益阈值下界
// 低于 1 美分的"收益"多半是浮点舍入噪声。
const HardMinProfitUsd = 0.01

// 薄簿防护参数
const (
	// thinBookBandPct 对手盘深度统计的价格偏离带宽（%）
	thinBookBandPct = 0.25
	// thinBookDepthFactor 对手盘带内深度须达到模拟成交量的倍数
	thinBookDepthFactor = 3.0
)

// 构造参数校验错误（快速失败，绝不静默收窄）
var (
	// ErrNilBookStore 订单簿缓存为空
	ErrNilBookStore = errors.New("solver: 订单簿缓存不能为空")
	// ErrInvalidAmount 期望交易量非正
	ErrInvalidAmount = errors.New("solver: 最大交易量必须为正")
	// ErrMinPathLength 路径长度下界非法
	ErrMinPathLength = fmt.Errorf("solver: minPathLength 不能小于 %d", HardMinPathLength)
	// ErrMaxPathLength 路径长度上界非法
	ErrMaxPathLength = fmt.Errorf("solver: maxPathLength 不能大于 %d", HardMaxPathLength)
	// ErrMinProfit USD 收益阈值非法
	ErrMinProfit = fmt.Errorf("solver: minPathProfitUsd 不能小于 %v", HardMinProfitUsd)
)

// 求解期错误（中止本轮求解，由调度方跳过本轮而不是崩溃）
var (
	// ErrNoCirclePath 起始币种不在任何环路上
	ErrNoCirclePath = errors.New("solver: 起始币种没有可达的环形路径")
	// ErrUsdConversion 必需的 USD 换算不可用（市场缺失或歧义）
	ErrUsdConversion = errors.New("solver: USD 换算不可用")
)

// Transition 状态转移：连接两个币种的交易对
type Transition struct {
	// Symbol 交易对符号
	Symbol string
	// State1 符号中的第一个币种
	State1 string
	// State2 符号中的第二个币种
	State2 string
}

// Instruction 单跳执行指令
type Instruction struct {
	// Symbol 交易对符号
	Symbol string `json:"symbol"`
	// Action 交易动作
	Action model.Action `json:"action"`
	// Price 让价后的限价
	Price float64 `json:"price"`
	// Amount 带符号订单数量（正买负卖，基础币种计）
	Amount float64 `json:"amount"`
}

// Solution 一条已定价的环形套利方案
type Solution struct {
	// Path 币种路径（首尾都是起始币种）
	Path []string `json:"path"`
	// Instructions 按跳排列的执行指令
	Instructions []Instruction `json:"instructions"`
	// PathLength 转移条数
	PathLength int `json:"path_length"`
	// UsedAmount 实际用于模拟的起始币种数量
	UsedAmount float64 `json:"used_amount"`
	// EstimatedProfit 估算收益（起始币种计）
	EstimatedProfit float64 `json:"estimated_profit"`
	// EstimatedProfitUsd 估算收益（USD 计）
	EstimatedProfitUsd float64 `json:"estimated_profit_usd"`
}

// Solver 环形路径求解器
// 构造后图结构固定；Solve 每次都按当前簿重新定价。
type Solver struct {
	books        *book.Store
	startState   string
	maxAmount    float64
	minPathLen   int
	maxPathLen   int
	minProfitUsd float64
	// fee 每跳手续费率（0-1）
	fee    float64
	policy PricingPolicy
	logger *zap.Logger

	// states 图状态：当前簿上出现过的全部币种
	states []string
	// transitions 图转移：每个符号一条，双向可走
	transitions []Transition
}

// New 创建求解器并做构造期校验
// 参数 fee: 每跳手续费率（maker 口径）
func New(books *book.Store, startState string, maxAmount float64, minPathLen, maxPathLen int, minProfitUsd, fee float64, logger *zap.Logger) (*Solver, error) {
	if books == nil {
		return nil, ErrNilBookStore
	}
	if maxAmount <= 0 {
		return nil, ErrInvalidAmount
	}
	if minPathLen < HardMinPathLength {
		return nil, ErrMinPathLength
	}
	if maxPathLen > HardMaxPathLength {
		return nil, ErrMaxPathLength
	}
	if minProfitUsd < HardMinProfitUsd {
		return nil, ErrMinProfit
	}

	s := &Solver{
		books:        books,
		startState:   startState,
		maxAmount:    maxAmount,
		minPathLen:   minPathLen,
		maxPathLen:   maxPathLen,
		minProfitUsd: minProfitUsd,
		fee:          fee,
		policy:       FeeNudgePolicy{Fee: fee, Fraction: 0.25},
		logger:       logger.Named("solver"),
	}
	s.buildGraph()
	return s, nil
}

// SetPricingPolicy 替换定价策略（默认 FeeNudgePolicy）
func (s *Solver) SetPricingPolicy(p PricingPolicy) {
	if p != nil {
		s.policy = p
	}
}

// buildGraph 从订单簿符号集构建币种图
func (s *Solver) buildGraph() {
	syms := s.books.Symbols()
	s.states = symbol.Currencies(syms)
	s.transitions = lo.FilterMap(syms, func(sym string, _ int) (Transition, bool) {
		p, err := symbol.ToCurrencyPair(sym)
		if err != nil {
			return Transition{}, false
		}
		return Transition{Symbol: sym, State1: p.Base, State2: p.Quote}, true
	})
}

// neighbors 返回从 state 一步可达的所有币种
func (s *Solver) neighbors(state string) []string {
	next := lo.FilterMap(s.transitions, func(t Transition, _ int) (string, bool) {
		switch state {
		case t.State1:
			return t.State2, true
		case t.State2:
			return t.State1, true
		}
		return "", false
	})
	return lo.Uniq(next)
}

// Solve 枚举闭合路径并返回按收益降序的可执行方案
func (s *Solver) Solve() ([]*Solution, error) {
	paths := s.enumeratePaths()
	if len(paths) == 0 {
		return nil, ErrNoCirclePath
	}

	var solutions []*Solution
	for _, path := range paths {
		sol, err := s.priceAndSimulate(path)
		if err != nil {
			return nil, err
		}
		if sol != nil {
			solutions = append(solutions, sol)
		}
	}

	sort.SliceStable(solutions, func(i, j int) bool {
		return solutions[i].EstimatedProfit > solutions[j].EstimatedProfit
	})
	return solutions, nil
}

// searchFrame 显式 DFS 栈帧
type searchFrame struct {
	state string
	next  []string
	idx   int
}

// enumeratePaths 显式栈 DFS 枚举闭合路径
// 深度（按边计）在 [minPathLen, maxPathLen] 内落回起始币种即输出一条；
// 到达 maxPathLen 后不再扩展。输出后按"起始币种恰好出现两次"过滤，
// 只允许一次完整回环，中间币种允许重复。
func (s *Solver) enumeratePaths() [][]string {
	var paths [][]string

	stack := []searchFrame{{state: s.startState, next: s.neighbors(s.startState)}}
	path := []string{s.startState}

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.idx >= len(top.next) {
			stack = stack[:len(stack)-1]
			path = path[:len(path)-1]
			continue
		}
		nxt := top.next[top.idx]
		top.idx++

		depth := len(path) // 走到 nxt 后的边数
		if nxt == s.startState && depth >= s.minPathLen {
			candidate := make([]string, len(path)+1)
			copy(candidate, path)
			candidate[len(path)] = nxt
			if lo.Count(candidate, s.startState) == 2 {
				paths = append(paths, candidate)
			}
			continue
		}
		if depth >= s.maxPathLen {
			// 已到上界仍未落回起点，整支丢弃
			continue
		}
		stack = append(stack, searchFrame{state: nxt, next: s.neighbors(nxt)})
		path = append(path, nxt)
	}
	return paths
}

// hop 单跳定价上下文
type hop struct {
	sym    string
	pair   symbol.Pair
	action model.Action
	best   model.PriceLevel
}

// priceAndSimulate 对一条路径定价并模拟整环
// 返回 nil 表示路径被过滤（不可定价、薄簿或收益不足），
// 返回错误表示必需的 USD 换算失败，中止本轮求解。
func (s *Solver) priceAndSimulate(path []string) (*Solution, error) {
	hops := make([]hop, 0, len(path)-1)
	for i := 0; i+1 < len(path); i++ {
		sym, ok := s.books.SymbolFor(path[i], path[i+1])
		if !ok {
			return nil, nil
		}
		action, err := symbol.ActionFor(sym, path[i])
		if err != nil {
			return nil, nil
		}
		pair, err := symbol.ToCurrencyPair(sym)
		if err != nil {
			return nil, nil
		}
		best, ok := s.books.BestLimitLevel(sym, action)
		if !ok {
			return nil, nil
		}
		hops = append(hops, hop{sym: sym, pair: pair, action: action, best: best})
	}

	// 可行性上限：各跳簿上可用量换算为 USD 取最小值，
	// 再换回起始币种，约束整环能真实吃到的体量（最弱一环）。
	ceilingUsd := 0.0
	for i, h := range hops {
		usd, ok := s.books.ConvertToUsd(h.pair.Base, h.best.Size)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUsdConversion, h.pair.Base)
		}
		if i == 0 || usd < ceilingUsd {
			ceilingUsd = usd
		}
	}
	ceiling, ok := s.books.ConvertFromUsd(ceilingUsd, s.startState)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUsdConversion, s.startState)
	}

	used := s.maxAmount
	if ceiling < used {
		used = ceiling
	}
	if used <= 0 {
		return nil, nil
	}

	// 整环模拟：每跳按策略让价后成交并扣手续费，跨跳复利
	instructions := make([]Instruction, 0, len(hops))
	running := used
	for _, h := range hops {
		price := s.policy.LimitPrice(h.action, h.best.Price)
		if price <= 0 {
			return nil, nil
		}

		var orderAmount float64
		if h.action == model.ActionBuy {
			orderAmount = running / price
			running = orderAmount * (1 - s.fee)
		} else {
			orderAmount = -running
			running = running * price * (1 - s.fee)
		}
		instructions = append(instructions, Instruction{
			Symbol: h.sym,
			Action: h.action,
			Price:  price,
			Amount: orderAmount,
		})
	}

	// 薄簿防护：每跳对手盘在带内的深度必须覆盖模拟成交量的 3 倍，
	// 否则整条路径按"对手流动性不足"丢弃（区别于"无利可图"）。
	for i, h := range hops {
		opposite := model.SideAsks
		if h.action == model.ActionSell {
			opposite = model.SideBids
		}
		levels := s.books.FirstLevelsByPercent(h.sym, opposite, thinBookBandPct)
		depth := lo.SumBy(levels, func(l model.PriceLevel) float64 { return l.Size })
		size := instructions[i].Amount
		if size < 0 {
			size = -size
		}
		if depth < thinBookDepthFactor*size {
			s.logger.Debug("路径因对手流动性不足被丢弃",
				zap.Strings("path", path),
				zap.String("symbol", h.sym),
				zap.Float64("depth", depth),
				zap.Float64("size", size))
			return nil, nil
		}
	}

	profit := running - used
	profitUsd, ok := s.books.ConvertToUsd(s.startState, profit)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUsdConversion, s.startState)
	}
	if profit <= 0 || profitUsd < s.minProfitUsd {
		return nil, nil
	}

	return &Solution{
		Path:               path,
		Instructions:       instructions,
		PathLength:         len(path) - 1,
		UsedAmount:         used,
		EstimatedProfit:    profit,
		EstimatedProfitUsd: profitUsd,
	}, nil
}
