// Package alert 定义运维告警通道。
// 执行链走入死路（重试耗尽、无法调整订单）时通过本通道上报，
// 绝不静默吞掉。未配置 Telegram 时退化为日志告警。
package alert

import "go.uber.org/zap"

// Alerter 告警通道
type Alerter interface {
	// Alert 发送一条告警消息（尽力而为，失败只记日志）
	Alert(msg string)
}

// LogAlerter 仅写日志的告警通道（默认实现）
type LogAlerter struct {
	logger *zap.Logger
}

// NewLogAlerter 创建日志告警通道
func NewLogAlerter(logger *zap.Logger) *LogAlerter {
	return &LogAlerter{logger: logger.Named("alert")}
}

// Alert 实现 Alerter
func (a *LogAlerter) Alert(msg string) {
	a.logger.Error("运维告警", zap.String("message", msg))
}
