package bitfinex

import (
	"encoding/json"

	"circular-arbitrage-bot/internal/core/model"
	"circular-arbitrage-bot/internal/util/timeutil"
)

// accountChanID 认证账户频道固定为 0
const accountChanID = 0

// Inbound 一帧消息的解析结果
// Book 与 Account 至多一个非空；全空表示该帧无需上层处理
// （心跳、订阅回执等已在解析器内部消化）。
type Inbound struct {
	// Book 订单簿更新
	Book *model.BookUpdate
	// Account 账户事件
	Account *model.AccountEvent
}

// Parser Bitfinex 消息解析器
// 持有频道号到符号的映射（由订阅回执建立），
// 以及认证/维护等连接级状态的回调挂钩。
type Parser struct {
	// chanSymbols 频道号 -> 交易对符号
	chanSymbols map[int64]string
}

// NewParser 创建解析器
func NewParser() *Parser {
	return &Parser{chanSymbols: make(map[int64]string)}
}

// Reset 清空频道映射（重连后旧频道号全部失效）
func (p *Parser) Reset() {
	p.chanSymbols = make(map[int64]string)
}

// Parse 解析一帧原始消息
// 对象帧是事件（订阅回执/info/auth/error），数组帧是数据。
func (p *Parser) Parse(data []byte) (*Inbound, error) {
	if len(data) == 0 {
		return nil, decodeErrorf("frame", "空消息")
	}
	if data[0] == '{' {
		return p.parseEvent(data)
	}

	var frame []any
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, decodeErrorf("frame", "非法 JSON: %v", err)
	}
	if len(frame) < 2 {
		return nil, decodeErrorf("frame", "字段不足: %d", len(frame))
	}
	chanID, ok := asInt64(frame[0])
	if !ok {
		return nil, decodeErrorf("frame", "频道号非法")
	}

	// 心跳帧 [chanId, "hb"]
	if s, ok := asString(frame[1]); ok && s == "hb" {
		return &Inbound{}, nil
	}

	if chanID == accountChanID {
		return p.parseAccount(frame)
	}
	return p.parseBook(chanID, frame)
}

// parseEvent 解析事件帧
func (p *Parser) parseEvent(data []byte) (*Inbound, error) {
	var ev eventMessage
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, decodeErrorf("event", "非法 JSON: %v", err)
	}
	switch ev.Event {
	case "subscribed":
		if ev.Channel == "book" && ev.Symbol != "" {
			p.chanSymbols[ev.ChanID] = ev.Symbol
		}
		return &Inbound{}, nil
	case "auth":
		if ev.Status != "OK" {
			return nil, decodeErrorf("auth", "认证失败: %s", ev.Msg)
		}
		return &Inbound{}, nil
	case "info":
		switch ev.Code {
		case codeMaintenanceBegin:
			return &Inbound{Account: &model.AccountEvent{Kind: model.EventMaintenanceBegin}}, nil
		case codeMaintenanceEnd:
			return &Inbound{Account: &model.AccountEvent{Kind: model.EventMaintenanceEnd}}, nil
		}
		return &Inbound{}, nil
	case "error":
		return nil, decodeErrorf("event", "服务端错误 code=%d msg=%s", ev.Code, ev.Msg)
	}
	return &Inbound{}, nil
}

// parseBook 解析订单簿帧
// 快照: [chanId, [[price, count, amount], ...]]
// 增量: [chanId, [price, count, amount]]
func (p *Parser) parseBook(chanID int64, frame []any) (*Inbound, error) {
	sym, ok := p.chanSymbols[chanID]
	if !ok {
		return nil, decodeErrorf("book", "未知频道号 %d", chanID)
	}
	payload, ok := frame[1].([]any)
	if !ok {
		return nil, decodeErrorf("book", "负载非数组")
	}
	if len(payload) == 0 {
		return &Inbound{}, nil
	}

	update := &model.BookUpdate{
		Symbol:          sym,
		ArrivedAtUnixNs: timeutil.NowNano(),
	}
	if _, nested := payload[0].([]any); nested {
		entries := make([]model.BookEntry, 0, len(payload))
		for _, raw := range payload {
			row, ok := raw.([]any)
			if !ok {
				return nil, decodeErrorf("book", "快照档位非数组")
			}
			e, err := decodeBookEntry(row)
			if err != nil {
				return nil, err
			}
			entries = append(entries, e)
		}
		update.Snapshot = entries
	} else {
		e, err := decodeBookEntry(payload)
		if err != nil {
			return nil, err
		}
		update.Entry = &e
	}
	return &Inbound{Book: update}, nil
}

// decodeBookEntry 解码单个档位 [price, count, amount]
func decodeBookEntry(row []any) (model.BookEntry, error) {
	if len(row) < 3 {
		return model.BookEntry{}, decodeErrorf("book", "档位字段不足: %d", len(row))
	}
	price, ok1 := asFloat(row[0])
	count, ok2 := asInt64(row[1])
	amount, ok3 := asFloat(row[2])
	if !ok1 || !ok2 || !ok3 {
		return model.BookEntry{}, decodeErrorf("book", "档位字段类型非法")
	}
	return model.BookEntry{Price: price, Count: int(count), Amount: amount}, nil
}

// parseAccount 解析账户频道帧 [0, type, payload]
func (p *Parser) parseAccount(frame []any) (*Inbound, error) {
	if len(frame) < 3 {
		return nil, decodeErrorf("account", "字段不足: %d", len(frame))
	}
	msgType, ok := asString(frame[1])
	if !ok {
		return nil, decodeErrorf("account", "消息类型非字符串")
	}
	payload, ok := frame[2].([]any)
	if !ok {
		return nil, decodeErrorf("account", "负载非数组")
	}

	switch msgType {
	case "os":
		orders, err := decodeOrders(payload)
		if err != nil {
			return nil, err
		}
		return &Inbound{Account: &model.AccountEvent{Kind: model.EventOrderSnapshot, Orders: orders}}, nil
	case "on", "ou", "oc", "oc-req":
		o, err := decodeOrder(payload)
		if err != nil {
			return nil, err
		}
		kind := map[string]model.EventKind{
			"on":     model.EventOrderNew,
			"ou":     model.EventOrderUpdate,
			"oc":     model.EventOrderCancel,
			"oc-req": model.EventOrderCancelRequested,
		}[msgType]
		return &Inbound{Account: &model.AccountEvent{Kind: kind, Orders: []model.Order{o}}}, nil
	case "ws":
		wallets, err := decodeWallets(payload)
		if err != nil {
			return nil, err
		}
		return &Inbound{Account: &model.AccountEvent{Kind: model.EventWalletSnapshot, Wallets: wallets}}, nil
	case "wu":
		w, err := decodeWallet(payload)
		if err != nil {
			return nil, err
		}
		return &Inbound{Account: &model.AccountEvent{Kind: model.EventWalletUpdate, Wallets: []model.Wallet{w}}}, nil
	case "te", "tu":
		t, err := decodeTrade(payload)
		if err != nil {
			return nil, err
		}
		kind := model.EventTradeExecuted
		if msgType == "tu" {
			kind = model.EventTradeExecutionUpdate
		}
		return &Inbound{Account: &model.AccountEvent{Kind: kind, Trade: t}}, nil
	case "n":
		n, err := decodeNotification(payload)
		if err != nil {
			return nil, err
		}
		return &Inbound{Account: &model.AccountEvent{Kind: model.EventNotification, Notification: n}}, nil
	}
	// 未识别的消息类型交给上层按协议变更告警
	return nil, decodeErrorf("account", "未识别的消息类型 %q", msgType)
}

// decodeOrders 解码订单快照（订单数组的数组）
func decodeOrders(payload []any) ([]model.Order, error) {
	orders := make([]model.Order, 0, len(payload))
	for _, raw := range payload {
		row, ok := raw.([]any)
		if !ok {
			return nil, decodeErrorf("order", "快照项非数组")
		}
		o, err := decodeOrder(row)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, nil
}

// decodeOrder 解码订单数组
// 布局: [ID, GID, CID, SYMBOL, MTS_CREATE, MTS_UPDATE, AMOUNT, AMOUNT_ORIG,
//        TYPE, TYPE_PREV, _, _, FLAGS, STATUS, _, _, PRICE, PRICE_AVG, ...]
func decodeOrder(row []any) (model.Order, error) {
	if len(row) < 18 {
		return model.Order{}, decodeErrorf("order", "字段不足: %d", len(row))
	}
	id, ok := asInt64(row[0])
	if !ok {
		return model.Order{}, decodeErrorf("order", "ID 非法")
	}
	sym, ok := asString(row[3])
	if !ok {
		return model.Order{}, decodeErrorf("order", "SYMBOL 非法")
	}
	o := model.Order{
		ID:              id,
		Symbol:          sym,
		UpdatedAtUnixNs: timeutil.NowNano(),
	}
	o.GID, _ = asInt64(row[1])
	o.CID, _ = asInt64(row[2])
	o.MtsCreate, _ = asInt64(row[4])
	o.MtsUpdate, _ = asInt64(row[5])
	o.Amount, _ = asFloat(row[6])
	o.AmountOrig, _ = asFloat(row[7])
	o.Type, _ = asString(row[8])
	o.TypePrev, _ = asString(row[9])
	o.Status, _ = asString(row[13])
	o.Price, _ = asFloat(row[16])
	o.PriceAvg, _ = asFloat(row[17])
	return o, nil
}

// decodeWallets 解码钱包快照
func decodeWallets(payload []any) ([]model.Wallet, error) {
	wallets := make([]model.Wallet, 0, len(payload))
	for _, raw := range payload {
		row, ok := raw.([]any)
		if !ok {
			return nil, decodeErrorf("wallet", "快照项非数组")
		}
		w, err := decodeWallet(row)
		if err != nil {
			return nil, err
		}
		wallets = append(wallets, w)
	}
	return wallets, nil
}

// decodeWallet 解码钱包数组
// 布局: [WALLET_TYPE, CURRENCY, BALANCE, UNSETTLED_INTEREST, BALANCE_AVAILABLE]
// BALANCE_AVAILABLE 可能为 null（交易所尚未计算）。
func decodeWallet(row []any) (model.Wallet, error) {
	if len(row) < 4 {
		return model.Wallet{}, decodeErrorf("wallet", "字段不足: %d", len(row))
	}
	walletType, ok1 := asString(row[0])
	currency, ok2 := asString(row[1])
	balance, ok3 := asFloat(row[2])
	if !ok1 || !ok2 || !ok3 {
		return model.Wallet{}, decodeErrorf("wallet", "字段类型非法")
	}
	w := model.Wallet{
		Type:            model.WalletType(walletType),
		Currency:        currency,
		Balance:         balance,
		UpdatedAtUnixNs: timeutil.NowNano(),
	}
	if len(row) >= 5 {
		if avail, ok := asFloat(row[4]); ok {
			w.Available = &avail
		}
	}
	return w, nil
}

// decodeTrade 解码成交数组
// 布局: [ID, PAIR, MTS_CREATE, ORDER_ID, EXEC_AMOUNT, EXEC_PRICE,
//        ORDER_TYPE, ORDER_PRICE, MAKER, FEE, FEE_CURRENCY]
// FEE 与 FEE_CURRENCY 仅 tu 消息携带。
func decodeTrade(row []any) (*model.Trade, error) {
	if len(row) < 9 {
		return nil, decodeErrorf("trade", "字段不足: %d", len(row))
	}
	id, ok1 := asInt64(row[0])
	pair, ok2 := asString(row[1])
	orderID, ok3 := asInt64(row[3])
	execAmount, ok4 := asFloat(row[4])
	execPrice, ok5 := asFloat(row[5])
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 {
		return nil, decodeErrorf("trade", "字段类型非法")
	}
	t := &model.Trade{
		ID:         id,
		Pair:       pair,
		OrderID:    orderID,
		ExecAmount: execAmount,
		ExecPrice:  execPrice,
		Maker:      -1,
	}
	t.MtsCreate, _ = asInt64(row[2])
	t.OrderType, _ = asString(row[6])
	t.OrderPrice, _ = asFloat(row[7])
	if maker, ok := asInt64(row[8]); ok {
		t.Maker = int(maker)
	}
	if len(row) >= 11 {
		t.Fee, _ = asFloat(row[9])
		t.FeeCurrency, _ = asString(row[10])
	}
	return t, nil
}

// decodeNotification 解码通知数组
// 布局: [MTS, TYPE, MESSAGE_ID, _, NOTIFY_INFO, CODE, STATUS, TEXT]
// NOTIFY_INFO 对订单类通知是订单数组。
func decodeNotification(row []any) (*model.Notification, error) {
	if len(row) < 8 {
		return nil, decodeErrorf("notification", "字段不足: %d", len(row))
	}
	status, ok := asString(row[6])
	if !ok {
		return nil, decodeErrorf("notification", "STATUS 非法")
	}
	n := &model.Notification{Status: status}
	n.Mts, _ = asInt64(row[0])
	n.Type, _ = asString(row[1])
	n.Text, _ = asString(row[7])
	if info, ok := row[4].([]any); ok && len(info) >= 18 {
		if o, err := decodeOrder(info); err == nil {
			n.Order = &o
		}
	}
	return n, nil
}
