package bitfinex

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
)

// Credentials API 凭据（从环境变量加载，不落配置文件）
type Credentials struct {
	// Key API key
	Key string
	// Secret API secret
	Secret string
}

// Valid 凭据是否完整
func (c Credentials) Valid() bool {
	return c.Key != "" && c.Secret != ""
}

// buildAuthRequest 构造签名认证请求
// 签名算法: hex(HMAC-SHA384("AUTH" + nonce, secret))
func buildAuthRequest(creds Credentials, nonce int64) authRequest {
	payload := fmt.Sprintf("AUTH%d", nonce)
	mac := hmac.New(sha512.New384, []byte(creds.Secret))
	mac.Write([]byte(payload))
	return authRequest{
		Event:       "auth",
		APIKey:      creds.Key,
		AuthSig:     hex.EncodeToString(mac.Sum(nil)),
		AuthNonce:   fmt.Sprintf("%d", nonce),
		AuthPayload: payload,
	}
}
