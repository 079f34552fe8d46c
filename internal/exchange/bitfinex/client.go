package bitfinex

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"circular-arbitrage-bot/internal/config"
	"circular-arbitrage-bot/internal/core/model"
	"circular-arbitrage-bot/internal/util/backoff"
	"circular-arbitrage-bot/internal/util/precision"
	"circular-arbitrage-bot/internal/util/timeutil"
)

// Client Bitfinex WebSocket 客户端
// 行情与账户共用一条连接：认证成功后频道 0 推送账户消息，
// 其余频道按订阅回执映射到各交易对的订单簿。
type Client struct {
	// cfg WebSocket 配置
	cfg *config.WSConfig
	// creds API 凭据，为空时跳过认证（只读行情）
	creds Credentials
	// symbols 订阅的交易对符号列表
	symbols []string
	// logger 日志记录器
	logger *zap.Logger
	// parser 消息解析器
	parser *Parser
	// conn WebSocket 连接
	conn *websocket.Conn
	// connMu 连接锁（gorilla/websocket 不允许并发多写者）
	connMu sync.Mutex
	// bookCh 订单簿更新输出通道
	bookCh chan *model.BookUpdate
	// accountCh 账户事件输出通道
	accountCh chan *model.AccountEvent
	// lastMsgNs 最后消息时间（纳秒）
	lastMsgNs int64
	// lastNonce 上次认证 nonce，保证严格递增
	lastNonce int64
	// backoff 重连退避
	backoff *backoff.Backoff
	// closed 是否已关闭
	closed int32
}

// NewClient 创建 Bitfinex WebSocket 客户端
// 参数 cfg: WebSocket 配置
// 参数 creds: API 凭据
// 参数 symbols: 订阅的交易对符号列表
// 参数 logger: 日志记录器
func NewClient(cfg *config.WSConfig, creds Credentials, symbols []string, logger *zap.Logger) *Client {
	return &Client{
		cfg:       cfg,
		creds:     creds,
		symbols:   symbols,
		logger:    logger.Named("bitfinex"),
		parser:    NewParser(),
		bookCh:    make(chan *model.BookUpdate, 1000),
		accountCh: make(chan *model.AccountEvent, 100),
		backoff:   backoff.NewDefault(),
	}
}

// Connect 建立 WebSocket 连接
// 参数 ctx: 上下文，用于取消连接
func (c *Client) Connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	header := http.Header{}
	header.Set("User-Agent", "circular-arbitrage-bot/1.0")

	dialer := websocket.Dialer{
		HandshakeTimeout: time.Duration(c.cfg.HandshakeTimeoutMs) * time.Millisecond,
	}

	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		return fmt.Errorf("连接 Bitfinex WebSocket 失败: %w", err)
	}

	c.conn = conn
	c.backoff.Reset()
	c.logger.Info("Bitfinex WebSocket 连接成功", zap.String("url", c.cfg.URL))

	return nil
}

// Authenticate 发送认证请求
// 认证结果以 auth 事件帧异步返回，失败会被解析器报为错误。
// 凭据为空时跳过（只读行情模式）。
func (c *Client) Authenticate() error {
	if !c.creds.Valid() {
		c.logger.Warn("API 凭据为空，跳过认证，仅订阅行情")
		return nil
	}

	// nonce 取微秒时间戳并保证严格递增
	nonce := timeutil.NowMicro()
	if last := atomic.LoadInt64(&c.lastNonce); nonce <= last {
		nonce = last + 1
	}
	atomic.StoreInt64(&c.lastNonce, nonce)

	if err := c.send(buildAuthRequest(c.creds, nonce)); err != nil {
		return fmt.Errorf("发送认证请求失败: %w", err)
	}

	c.logger.Info("Bitfinex 认证请求已发送")
	return nil
}

// Subscribe 订阅全部交易对的 book 频道
// 精度 P0，频率 F0，深度 25
func (c *Client) Subscribe() error {
	for _, sym := range c.symbols {
		req := subscribeRequest{
			Event:   "subscribe",
			Channel: "book",
			Symbol:  sym,
			Prec:    "P0",
			Freq:    "F0",
			Len:     "25",
		}
		if err := c.send(req); err != nil {
			return fmt.Errorf("发送订阅请求失败 %s: %w", sym, err)
		}
	}

	c.logger.Info("Bitfinex 订阅请求已发送", zap.Int("symbols", len(c.symbols)))
	return nil
}

// Run 启动客户端主循环
// 包含读取循环和心跳循环
func (c *Client) Run(ctx context.Context) {
	go c.heartbeatLoop(ctx)
	c.readLoop(ctx)
}

// readLoop 读取循环
// 持续读取 WebSocket 消息并解析，连接断开时自动重连
func (c *Client) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if atomic.LoadInt32(&c.closed) == 1 {
			return
		}

		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			c.reconnect(ctx)
			continue
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			c.logger.Warn("读取 Bitfinex 消息失败", zap.Error(err))
			c.reconnect(ctx)
			continue
		}

		atomic.StoreInt64(&c.lastMsgNs, timeutil.NowNano())

		inbound, err := c.parser.Parse(data)
		if err != nil {
			sample := data
			if len(sample) > 200 {
				sample = sample[:200]
			}
			c.logger.Warn("解析 Bitfinex 消息失败", zap.Error(err), zap.ByteString("data", sample))
			continue
		}

		// 行情通道满时丢弃（下一帧快照/增量会补齐状态）
		if inbound.Book != nil {
			select {
			case c.bookCh <- inbound.Book:
			default:
				c.logger.Warn("Bitfinex bookCh 已满，丢弃更新")
			}
		}

		// 账户事件不能丢：订单链状态机依赖完整事件序列
		if inbound.Account != nil {
			select {
			case c.accountCh <- inbound.Account:
			case <-ctx.Done():
				return
			}
		}
	}
}

// heartbeatLoop 心跳循环
// 周期发送 ping 事件，并检查连接是否失活（长时间无任何消息）
func (c *Client) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(c.cfg.PingIntervalMs) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if atomic.LoadInt32(&c.closed) == 1 {
				return
			}

			if err := c.send(map[string]string{"event": "ping"}); err != nil {
				c.logger.Warn("发送 Bitfinex ping 失败", zap.Error(err))
				continue
			}

			// Bitfinex 每隔数秒推送 hb 帧，长时间无消息说明连接失活
			last := atomic.LoadInt64(&c.lastMsgNs)
			if last > 0 && timeutil.NowNano()-last > int64(c.cfg.StaleTimeoutMs)*1_000_000 {
				c.logger.Warn("Bitfinex 连接失活，触发重连")
				c.closeConn()
			}
		}
	}
}

// reconnect 重连
// 旧频道号全部失效，需重置解析器并重新认证、重新订阅。
func (c *Client) reconnect(ctx context.Context) {
	c.closeConn()
	c.parser.Reset()

	delay := c.backoff.Next()
	c.logger.Info("Bitfinex 准备重连", zap.Duration("delay", delay))

	select {
	case <-ctx.Done():
		return
	case <-time.After(delay):
	}

	if err := c.Connect(ctx); err != nil {
		c.logger.Error("Bitfinex 重连失败", zap.Error(err))
		return
	}
	if err := c.Authenticate(); err != nil {
		c.logger.Error("Bitfinex 重新认证失败", zap.Error(err))
		return
	}
	if err := c.Subscribe(); err != nil {
		c.logger.Error("Bitfinex 重新订阅失败", zap.Error(err))
	}
}

// SubmitOrder 提交下单请求 [0, "on", null, payload]
// 价格与数量按交易所要求转为字符串。
func (c *Client) SubmitOrder(req *model.NewOrderRequest) error {
	payload := newOrderPayload{
		GID:    req.GID,
		CID:    req.CID,
		Type:   req.Type,
		Symbol: req.Symbol,
		Price:  precision.FormatPrice(req.Price),
		Amount: precision.FormatAmount(req.Amount),
	}
	return c.send([]any{0, "on", nil, payload})
}

// CancelOrder 按订单 ID 请求撤单 [0, "oc", null, {"id": ...}]
func (c *Client) CancelOrder(orderID int64) error {
	return c.send([]any{0, "oc", nil, cancelOrderPayload{ID: orderID}})
}

// RequestCalc 请求重算钱包可用余额 [0, "calc", null, [["wallet_<type>_<ccy>"]]]
func (c *Client) RequestCalc(t model.WalletType, currency string) error {
	key := fmt.Sprintf("wallet_%s_%s", t, currency)
	return c.send([]any{0, "calc", nil, [][]string{{key}}})
}

// send 序列化并写入一帧消息（connMu 串行化写者）
func (c *Client) send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("序列化消息失败: %w", err)
	}

	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("WebSocket 未连接")
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// closeConn 关闭连接
func (c *Client) closeConn() {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// Close 关闭客户端
func (c *Client) Close() error {
	atomic.StoreInt32(&c.closed, 1)
	c.closeConn()
	c.logger.Info("Bitfinex 客户端已关闭")
	return nil
}

// BookCh 获取订单簿更新通道
func (c *Client) BookCh() <-chan *model.BookUpdate {
	return c.bookCh
}

// AccountCh 获取账户事件通道
func (c *Client) AccountCh() <-chan *model.AccountEvent {
	return c.accountCh
}
