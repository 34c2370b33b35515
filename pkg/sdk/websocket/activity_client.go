// Package websocket 提供 Polymarket 实时活动 WebSocket 客户端
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/betbot/copybot/pkg/logger"
)

const (
	liveDataWSURL = "wss://ws-live-data.polymarket.com/"

	reconnectDelay    = 2 * time.Second
	maxReconnectDelay = 30 * time.Second
	pingInterval      = 30 * time.Second
	readTimeout       = 90 * time.Second // 成交之间可能有较长的空闲期
)

// TradeEvent 表示 orders_matched 推送的一笔成交
type TradeEvent struct {
	Name            string  `json:"name"`
	ProxyWallet     string  `json:"proxyWallet"`
	Pseudonym       string  `json:"pseudonym"`
	Side            string  `json:"side"`
	Size            float64 `json:"size"`
	Price           float64 `json:"price"`
	Outcome         string  `json:"outcome"`
	OutcomeIndex    int     `json:"outcomeIndex"`
	Slug            string  `json:"slug"`
	EventSlug       string  `json:"eventSlug"`
	Title           string  `json:"title"`
	Asset           string  `json:"asset"`
	ConditionID     string  `json:"conditionId"`
	TransactionHash string  `json:"transactionHash"`
	Timestamp       int64   `json:"timestamp"`
}

// liveDataMessage ws-live-data 的消息外壳
type liveDataMessage struct {
	ConnectionID string     `json:"connection_id"`
	Topic        string     `json:"topic"`
	Type         string     `json:"type"`
	Timestamp    int64      `json:"timestamp"`
	Payload      TradeEvent `json:"payload"`
}

// TradeHandler 收到关注钱包的成交时被调用
type TradeHandler func(event TradeEvent)

// ActivityClient 管理到 ws-live-data.polymarket.com 的连接
// 订阅全量 orders_matched 事件，在本地按关注的钱包过滤后回调
type ActivityClient struct {
	conn   *websocket.Conn
	connMu sync.Mutex

	// 关注的钱包地址（小写）
	wallets   map[string]bool
	walletsMu sync.RWMutex

	handler TradeHandler
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	reconnectAttempts int
	lastPong          time.Time

	log *logrus.Entry
}

// NewActivityClient 创建新的活动推送客户端
func NewActivityClient(handler TradeHandler) *ActivityClient {
	return &ActivityClient{
		wallets: make(map[string]bool),
		handler: handler,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
		log:     logger.WithField("component", "activity_ws"),
	}
}

// SetWallets 替换关注的钱包集合
func (c *ActivityClient) SetWallets(addresses []string) {
	c.walletsMu.Lock()
	c.wallets = make(map[string]bool, len(addresses))
	for _, addr := range addresses {
		c.wallets[strings.ToLower(addr)] = true
	}
	c.walletsMu.Unlock()
}

// AddWallet 新增一个关注的钱包
func (c *ActivityClient) AddWallet(address string) {
	c.walletsMu.Lock()
	c.wallets[strings.ToLower(address)] = true
	c.walletsMu.Unlock()
}

// RemoveWallet 移除一个关注的钱包
func (c *ActivityClient) RemoveWallet(address string) {
	c.walletsMu.Lock()
	delete(c.wallets, strings.ToLower(address))
	c.walletsMu.Unlock()
}

// Start 连接 WebSocket 并开始监听
func (c *ActivityClient) Start(ctx context.Context) error {
	if c.running {
		return fmt.Errorf("活动推送客户端已在运行")
	}

	if err := c.connect(); err != nil {
		return fmt.Errorf("初始连接失败: %w", err)
	}
	if err := c.subscribeAll(); err != nil {
		return fmt.Errorf("订阅失败: %w", err)
	}

	c.running = true
	go c.readLoop(ctx)
	go c.pingLoop(ctx)

	c.log.Infof("已连接到 %s", liveDataWSURL)
	return nil
}

// Stop 优雅关闭连接
func (c *ActivityClient) Stop() {
	if !c.running {
		return
	}

	c.running = false
	close(c.stopCh)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.connMu.Unlock()

	select {
	case <-c.doneCh:
	case <-time.After(5 * time.Second):
		c.log.Warnf("关闭超时")
	}

	c.log.Info("已停止")
}

func (c *ActivityClient) connect() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn != nil {
		c.conn.Close()
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	// 必须带 Origin 头
	headers := http.Header{}
	headers.Set("Origin", "https://polymarket.com")

	conn, _, err := dialer.Dial(liveDataWSURL, headers)
	if err != nil {
		return fmt.Errorf("连接失败: %w", err)
	}

	c.conn = conn
	c.lastPong = time.Now()
	c.reconnectAttempts = 0

	conn.SetPongHandler(func(string) error {
		c.lastPong = time.Now()
		return nil
	})

	return nil
}

// subscribeAll 订阅全量 orders_matched 事件
// 不使用服务端过滤，收到后在本地按钱包地址过滤，更简单可靠
func (c *ActivityClient) subscribeAll() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("未连接")
	}

	msg := map[string]interface{}{
		"action": "subscribe",
		"subscriptions": []map[string]interface{}{
			{
				"topic": "activity",
				"type":  "orders_matched",
			},
		},
	}

	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("发送订阅消息失败: %w", err)
	}

	return nil
}

func (c *ActivityClient) readLoop(ctx context.Context) {
	defer close(c.doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		default:
		}

		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			c.reconnect(ctx)
			continue
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Info("连接正常关闭")
				return
			}
			// 长时间无成交导致的读超时属于正常情况，静默重连
			if c.reconnectAttempts == 0 {
				c.log.Debugf("读超时，重连中...")
			}
			c.reconnect(ctx)
			continue
		}

		c.handleMessage(message)
	}
}

func (c *ActivityClient) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.connMu.Lock()
			conn := c.conn
			c.connMu.Unlock()

			if conn == nil {
				continue
			}

			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.Warnf("ping 失败: %v", err)
			}

			if time.Since(c.lastPong) > readTimeout {
				c.log.Warnf("pong 超时（%v 内无响应），重连中...", readTimeout)
				c.reconnect(ctx)
			}
		}
	}
}

func (c *ActivityClient) reconnect(ctx context.Context) {
	c.reconnectAttempts++
	delay := reconnectDelay * time.Duration(c.reconnectAttempts)
	if delay > maxReconnectDelay {
		delay = maxReconnectDelay
	}

	select {
	case <-ctx.Done():
		return
	case <-c.stopCh:
		return
	case <-time.After(delay):
	}

	if err := c.connect(); err != nil {
		c.log.Warnf("重连失败: %v", err)
		return
	}

	if err := c.subscribeAll(); err != nil {
		c.log.Warnf("重新订阅失败: %v", err)
	}
}

func (c *ActivityClient) handleMessage(data []byte) {
	var msg liveDataMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		// 忽略非 JSON 消息（例如连接确认）
		return
	}

	if msg.Type != "orders_matched" {
		return
	}

	// 本地按钱包过滤
	c.walletsMu.RLock()
	followed := c.wallets[strings.ToLower(msg.Payload.ProxyWallet)]
	c.walletsMu.RUnlock()

	if !followed {
		return
	}

	if c.handler != nil {
		c.handler(msg.Payload)
	}
}
