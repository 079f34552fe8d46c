// Package wallet 维护各钱包类型、各币种的余额状态。
// 可用余额可能为"尚未计算"（交易所延迟给出），调用方必须
// 区分未知与零，未知时应触发余额重算请求而不是按零处理。
package wallet

import (
	"go.uber.org/zap"

	"circular-arbitrage-bot/internal/core/model"
)

// Info 钱包索引项
type Info struct {
	// Type 钱包类型
	Type model.WalletType
	// Currency 币种
	Currency string
}

// Store 钱包余额缓存（单写者）
type Store struct {
	// wallets 第一层 key: 钱包类型，第二层 key: 币种
	wallets map[model.WalletType]map[string]model.Wallet
	logger  *zap.Logger
}

// New 创建钱包余额缓存
func New(logger *zap.Logger) *Store {
	s := &Store{logger: logger.Named("wallet")}
	s.Clear()
	return s
}

// Clear 重置为空状态（保留三类钱包的顶层键）
func (s *Store) Clear() {
	s.wallets = map[model.WalletType]map[string]model.Wallet{
		model.WalletExchange: {},
		model.WalletMargin:   {},
		model.WalletFunding:  {},
	}
}

// Update 应用一批钱包记录（快照或增量共用）
func (s *Store) Update(ws []model.Wallet) {
	for _, w := range ws {
		s.updateOne(w)
	}
}

func (s *Store) updateOne(w model.Wallet) {
	m, ok := s.wallets[w.Type]
	if !ok {
		s.logger.Warn("未知钱包类型", zap.String("wallet_type", string(w.Type)))
		m = make(map[string]model.Wallet)
		s.wallets[w.Type] = m
	}
	m[w.Currency] = w
}

// Balance 总余额，未知币种返回 0
func (s *Store) Balance(t model.WalletType, currency string) float64 {
	if w, ok := s.wallets[t][currency]; ok {
		return w.Balance
	}
	return 0
}

// Available 可用余额
// 第二个返回值为 false 表示余额未知（未见过该币种，或交易所尚未计算），
// 调用方应发送重算请求后再试。
func (s *Store) Available(t model.WalletType, currency string) (float64, bool) {
	w, ok := s.wallets[t][currency]
	if !ok || w.Available == nil {
		return 0, false
	}
	return *w.Available, true
}

// Infos 列出当前已知的 (钱包类型, 币种) 组合
func (s *Store) Infos() []Info {
	var infos []Info
	for t, m := range s.wallets {
		for c := range m {
			infos = append(infos, Info{Type: t, Currency: c})
		}
	}
	return infos
}
