package alert

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// TelegramAlerter 通过 Telegram Bot API 推送告警
type TelegramAlerter struct {
	// token 机器人令牌（来自环境变量）
	token string
	// chatID 接收告警的会话 ID
	chatID string
	client *http.Client
	logger *zap.Logger
}

// NewTelegramAlerter 创建 Telegram 告警通道
func NewTelegramAlerter(token, chatID string, timeout time.Duration, logger *zap.Logger) *TelegramAlerter {
	return &TelegramAlerter{
		token:  token,
		chatID: chatID,
		client: &http.Client{Timeout: timeout},
		logger: logger.Named("telegram"),
	}
}

// Alert 实现 Alerter
// 发送失败只记日志，不影响交易流程。
func (a *TelegramAlerter) Alert(msg string) {
	endpoint := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", a.token)
	resp, err := a.client.PostForm(endpoint, url.Values{
		"chat_id": {a.chatID},
		"text":    {msg},
	})
	if err != nil {
		a.logger.Warn("发送 Telegram 告警失败", zap.Error(err))
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		a.logger.Warn("Telegram 告警被拒绝", zap.Int("status", resp.StatusCode))
	}
}
