// Package config 负责加载和验证 YAML 配置文件。
// 提供应用程序所需的所有配置项，包括交易所连接、套利策略参数、
// 手续费设置、订单链超时等。API 密钥不放配置文件，从环境变量读取。
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config 应用配置根结构
// 包含所有子模块的配置项
type Config struct {
	// App 应用基础配置
	App AppConfig `yaml:"app"`
	// WS WebSocket 连接配置
	WS WSConfig `yaml:"ws"`
	// Trading 套利策略参数配置
	Trading TradingConfig `yaml:"trading"`
	// Fees 手续费配置
	Fees FeesConfig `yaml:"fees"`
	// Chain 订单链执行配置
	Chain ChainConfig `yaml:"chain"`
	// Symbols 订阅的交易对符号列表，如 tIOTUSD
	Symbols []string `yaml:"symbols"`
	// MinOrderSize 各币种最小下单量，键为币种，OTHER 为兜底项
	MinOrderSize map[string]float64 `yaml:"min_order_size"`
	// Telegram 告警配置
	Telegram TelegramConfig `yaml:"telegram"`
	// Output 输出配置
	Output OutputConfig `yaml:"output"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	// Name 应用名称，用于日志标识
	Name string `yaml:"name"`
	// LogLevel 日志级别: debug, info, warn, error
	LogLevel string `yaml:"log_level"`
}

// WSConfig WebSocket 连接配置
type WSConfig struct {
	// URL WebSocket 连接地址
	URL string `yaml:"url"`
	// HandshakeTimeoutMs 握手超时（毫秒）
	HandshakeTimeoutMs int `yaml:"handshake_timeout_ms"`
	// PingIntervalMs 心跳间隔（毫秒）
	PingIntervalMs int `yaml:"ping_interval_ms"`
	// StaleTimeoutMs 无消息超时（毫秒），超时视为连接失活并重连
	StaleTimeoutMs int `yaml:"stale_timeout_ms"`
}

// TradingConfig 套利策略参数配置
type TradingConfig struct {
	// Enabled 是否实际下单，false 时只求解不执行
	Enabled bool `yaml:"enabled"`
	// StartCurrency 环路起始币种（3 字母），利润以此币种计
	StartCurrency string `yaml:"start_currency"`
	// MaxAmount 单轮投入的起始币种数量上限
	MaxAmount float64 `yaml:"max_amount"`
	// MinPathLength 环路最小长度（含起点重复计数，下限 3）
	MinPathLength int `yaml:"min_path_length"`
	// MaxPathLength 环路最大长度（上限 6）
	MaxPathLength int `yaml:"max_path_length"`
	// MinPathProfitUSD 接受方案的最小折美元利润
	MinPathProfitUSD float64 `yaml:"min_path_profit_usd"`
	// CycleIntervalMs 求解周期（毫秒）
	CycleIntervalMs int `yaml:"cycle_interval_ms"`
}

// FeesConfig 手续费配置
type FeesConfig struct {
	// MakerRate Maker 手续费率（0-1）
	MakerRate float64 `yaml:"maker_rate"`
	// TakerRate Taker 手续费率（0-1）
	TakerRate float64 `yaml:"taker_rate"`
}

// ChainConfig 订单链执行配置
type ChainConfig struct {
	// PlaceTimeoutMs 挂单成交等待超时（毫秒），超时撤单重试
	PlaceTimeoutMs int `yaml:"place_timeout_ms"`
	// PartialFillTimeoutMs 部分成交后等待剩余成交的超时（毫秒）
	PartialFillTimeoutMs int `yaml:"partial_fill_timeout_ms"`
	// SettleDelayMs 撤单确认后等待余额结算的延迟（毫秒）
	SettleDelayMs int `yaml:"settle_delay_ms"`
	// RetryTimeoutMs 余额未就绪时的重试间隔（毫秒）
	RetryTimeoutMs int `yaml:"retry_timeout_ms"`
	// RetryNudgePct 重试时向盘口让价的百分比
	RetryNudgePct float64 `yaml:"retry_nudge_pct"`
	// MaxZeroAttempts 数量归零后允许跳过该腿的尝试次数
	MaxZeroAttempts int `yaml:"max_zero_attempts"`
	// MaxAttempts 单腿最大尝试次数，超出则放弃整条链
	MaxAttempts int `yaml:"max_attempts"`
}

// TelegramConfig Telegram 告警配置
type TelegramConfig struct {
	// Enabled 是否启用 Telegram 告警（token 从环境变量读取）
	Enabled bool `yaml:"enabled"`
	// ChatID 接收告警的会话 ID
	ChatID string `yaml:"chat_id"`
}

// OutputConfig 输出配置
type OutputConfig struct {
	// Dir 输出目录
	Dir string `yaml:"dir"`
	// BookSnapshotsEnabled 是否周期性落盘订单簿快照
	BookSnapshotsEnabled bool `yaml:"book_snapshots_enabled"`
	// SolutionsEnabled 是否落盘求解出的套利方案
	SolutionsEnabled bool `yaml:"solutions_enabled"`
	// SnapshotIntervalMs 订单簿快照间隔（毫秒）
	SnapshotIntervalMs int `yaml:"snapshot_interval_ms"`
	// BufferSize 异步写入缓冲区大小
	BufferSize int `yaml:"buffer_size"`
}

// Load 从文件加载配置并验证
// 参数 path: 配置文件路径
// 返回: 解析后的配置对象，若失败则返回错误
func Load(path string) (*Config, error) {
	// 读取配置文件
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	// 解析 YAML
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	// 设置默认值
	cfg.setDefaults()

	// 验证配置
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}

	return &cfg, nil
}

// setDefaults 设置配置默认值
func (c *Config) setDefaults() {
	// 应用默认值
	if c.App.Name == "" {
		c.App.Name = "circular-arbitrage-bot"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}

	// WebSocket 默认配置
	if c.WS.URL == "" {
		c.WS.URL = "wss://api.bitfinex.com/ws/2"
	}
	if c.WS.HandshakeTimeoutMs == 0 {
		c.WS.HandshakeTimeoutMs = 10000 // 10 秒
	}
	if c.WS.PingIntervalMs == 0 {
		c.WS.PingIntervalMs = 25000 // 25 秒
	}
	if c.WS.StaleTimeoutMs == 0 {
		c.WS.StaleTimeoutMs = 60000 // 60 秒
	}

	// 策略默认值
	if c.Trading.MinPathLength == 0 {
		c.Trading.MinPathLength = 3
	}
	if c.Trading.MaxPathLength == 0 {
		c.Trading.MaxPathLength = 6
	}
	if c.Trading.MinPathProfitUSD == 0 {
		c.Trading.MinPathProfitUSD = 0.01
	}
	if c.Trading.CycleIntervalMs == 0 {
		c.Trading.CycleIntervalMs = 1000 // 1 秒
	}

	// 手续费默认值
	if c.Fees.MakerRate == 0 {
		c.Fees.MakerRate = 0.001
	}
	if c.Fees.TakerRate == 0 {
		c.Fees.TakerRate = 0.002
	}

	// 订单链默认值
	if c.Chain.PlaceTimeoutMs == 0 {
		c.Chain.PlaceTimeoutMs = 30000 // 30 秒
	}
	if c.Chain.PartialFillTimeoutMs == 0 {
		c.Chain.PartialFillTimeoutMs = 60000 // 60 秒
	}
	if c.Chain.SettleDelayMs == 0 {
		c.Chain.SettleDelayMs = 2000 // 2 秒
	}
	if c.Chain.RetryTimeoutMs == 0 {
		c.Chain.RetryTimeoutMs = 5000 // 5 秒
	}
	if c.Chain.RetryNudgePct == 0 {
		c.Chain.RetryNudgePct = 0.05
	}
	if c.Chain.MaxZeroAttempts == 0 {
		c.Chain.MaxZeroAttempts = 3
	}
	if c.Chain.MaxAttempts == 0 {
		c.Chain.MaxAttempts = 10
	}

	// 最小下单量默认表
	if len(c.MinOrderSize) == 0 {
		c.MinOrderSize = map[string]float64{
			"BTC":   0.005,
			"ZEC":   0.01,
			"OTHER": 0.1,
		}
	}
	if _, ok := c.MinOrderSize["OTHER"]; !ok {
		c.MinOrderSize["OTHER"] = 0.1
	}

	// 输出默认值
	if c.Output.Dir == "" {
		c.Output.Dir = "./output"
	}
	if c.Output.SnapshotIntervalMs == 0 {
		c.Output.SnapshotIntervalMs = 60000 // 60 秒
	}
	if c.Output.BufferSize == 0 {
		c.Output.BufferSize = 1000
	}
}

// Validate 验证配置合法性
// 检查所有必填项和数值范围
// 返回: 若配置无效则返回描述性错误
func (c *Config) Validate() error {
	var errs []string

	// 验证 WebSocket 配置
	if c.WS.URL == "" {
		errs = append(errs, "ws.url: WebSocket 地址不能为空")
	}

	// 验证交易对配置
	if len(c.Symbols) == 0 {
		errs = append(errs, "symbols: 至少需要配置一个交易对")
	}
	for i, sym := range c.Symbols {
		if len(sym) != 7 || sym[0] != 't' {
			errs = append(errs, fmt.Sprintf("symbols[%d]: 非法交易对符号 '%s'，期望形如 tIOTUSD", i, sym))
		}
	}

	// 验证策略参数
	if len(c.Trading.StartCurrency) != 3 {
		errs = append(errs, fmt.Sprintf("trading.start_currency: 币种必须为 3 字母，当前值: '%s'", c.Trading.StartCurrency))
	}
	if c.Trading.MaxAmount <= 0 {
		errs = append(errs, "trading.max_amount: 投入数量必须为正数")
	}
	if c.Trading.MinPathLength < 3 {
		errs = append(errs, "trading.min_path_length: 环路长度下限为 3")
	}
	if c.Trading.MaxPathLength > 6 {
		errs = append(errs, "trading.max_path_length: 环路长度上限为 6")
	}
	if c.Trading.MinPathLength > c.Trading.MaxPathLength {
		errs = append(errs, "trading.min_path_length: 不能大于 max_path_length")
	}
	if c.Trading.MinPathProfitUSD <= 0 {
		errs = append(errs, "trading.min_path_profit_usd: 最小利润必须为正数")
	}
	if c.Trading.CycleIntervalMs <= 0 {
		errs = append(errs, "trading.cycle_interval_ms: 求解周期必须为正数")
	}

	// 验证手续费配置（范围 0-1）
	if err := validateFeeRate(c.Fees.MakerRate, "fees.maker_rate"); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateFeeRate(c.Fees.TakerRate, "fees.taker_rate"); err != nil {
		errs = append(errs, err.Error())
	}

	// 验证订单链参数
	if c.Chain.RetryNudgePct < 0 || c.Chain.RetryNudgePct >= 100 {
		errs = append(errs, "chain.retry_nudge_pct: 让价百分比必须在 0-100 之间")
	}
	if c.Chain.MaxAttempts <= 0 {
		errs = append(errs, "chain.max_attempts: 最大尝试次数必须为正数")
	}

	// 验证最小下单量
	for ccy, size := range c.MinOrderSize {
		if size <= 0 {
			errs = append(errs, fmt.Sprintf("min_order_size.%s: 最小下单量必须为正数", ccy))
		}
	}

	// 验证 Telegram 配置
	if c.Telegram.Enabled && c.Telegram.ChatID == "" {
		errs = append(errs, "telegram.chat_id: 启用告警时会话 ID 不能为空")
	}

	// 验证日志级别
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.App.LogLevel)] {
		errs = append(errs, fmt.Sprintf("app.log_level: 无效的日志级别 '%s'，有效值: debug, info, warn, error", c.App.LogLevel))
	}

	if len(errs) > 0 {
		return fmt.Errorf("配置验证错误:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// validateFeeRate 验证手续费率范围
// 参数 rate: 费率值
// 参数 field: 字段名称，用于错误消息
// 返回: 若费率无效则返回错误
func validateFeeRate(rate float64, field string) error {
	if rate < 0 || rate > 1 {
		return fmt.Errorf("%s: 费率必须在 0-1 之间，当前值: %f", field, rate)
	}
	return nil
}
