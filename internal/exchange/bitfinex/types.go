// Package bitfinex 实现 Bitfinex v2 WebSocket 客户端。
// 连接地址: wss://api.bitfinex.com/ws/2
// 订阅频道: book（prec P0, freq F0, len 25）+ 认证账户频道
// 交易所消息是按位置索引的数组，本包负责把它们解码为具名字段的
// 记录类型，字段数量不足时返回带类型的解码错误而不是静默读空值。
package bitfinex

import "fmt"

// DecodeError 消息解码错误
// Kind 标注出错的消息类型，便于定位上游协议变更。
type DecodeError struct {
	// Kind 消息类型，如 order、wallet、trade
	Kind string
	// Reason 失败原因
	Reason string
}

// Error 实现 error
func (e *DecodeError) Error() string {
	return fmt.Sprintf("bitfinex: 解码 %s 消息失败: %s", e.Kind, e.Reason)
}

func decodeErrorf(kind, format string, args ...any) *DecodeError {
	return &DecodeError{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// 平台 info 消息代码
const (
	// codeMaintenanceBegin 交易所进入维护窗口，机器人应暂停交易
	codeMaintenanceBegin = 20060
	// codeMaintenanceEnd 维护结束，需要重新订阅行情
	codeMaintenanceEnd = 20061
)

// subscribeRequest book 频道订阅请求
type subscribeRequest struct {
	Event   string `json:"event"`
	Channel string `json:"channel"`
	Symbol  string `json:"symbol"`
	Prec    string `json:"prec"`
	Freq    string `json:"freq"`
	Len     string `json:"len"`
}

// authRequest 认证请求（HMAC-SHA384 签名）
type authRequest struct {
	Event       string `json:"event"`
	APIKey      string `json:"apiKey"`
	AuthSig     string `json:"authSig"`
	AuthNonce   string `json:"authNonce"`
	AuthPayload string `json:"authPayload"`
}

// eventMessage 服务端事件帧（JSON 对象）
type eventMessage struct {
	Event   string `json:"event"`
	Channel string `json:"channel"`
	ChanID  int64  `json:"chanId"`
	Symbol  string `json:"symbol"`
	Code    int64  `json:"code"`
	Msg     string `json:"msg"`
	Version int    `json:"version"`
	Status  string `json:"status"`
}

// newOrderPayload on 请求负载
// 价格与数量按交易所要求以字符串传输。
type newOrderPayload struct {
	GID    int64  `json:"gid"`
	CID    int64  `json:"cid"`
	Type   string `json:"type"`
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
	Amount string `json:"amount"`
}

// cancelOrderPayload oc 请求负载
type cancelOrderPayload struct {
	ID int64 `json:"id"`
}

// 数组字段读取助手
// JSON 数字统一解码为 float64，缺失/为 null 时返回 false。

func asFloat(v any) (float64, bool) {
	f, ok := v.(float64)
	return f, ok
}

func asInt64(v any) (int64, bool) {
	f, ok := v.(float64)
	if !ok {
		return 0, false
	}
	return int64(f), true
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}
