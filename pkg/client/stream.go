package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/betbot/nftmarket/pkg/syncgroup"
)

var streamLog = logrus.WithField("component", "event_stream")

const (
	defaultReconnectCoolDown = 3 * time.Second
	streamReadTimeout        = 30 * time.Second
	streamWriteTimeout       = 10 * time.Second
)

// EventHandler 事件回调
type EventHandler func(Event)

// EventStream 订阅 /api/events/ws。断线后按最后收到的 seq 自动重连续传，
// 回调保证按 seq 递增、不重复。
type EventStream struct {
	wsURL string

	connMu     sync.Mutex
	conn       *websocket.Conn
	connCancel context.CancelFunc

	handlersMu sync.RWMutex
	handlers   []EventHandler

	last atomic.Uint64

	coolDown   time.Duration
	reconnectC chan struct{}
	closeC     chan struct{}
	closeOnce  sync.Once

	sg     *syncgroup.SyncGroup
	connSg *syncgroup.SyncGroup
}

// NewEventStream 基于客户端的 BaseURL 创建事件流
func (c *Client) NewEventStream() *EventStream {
	return NewEventStream(c.BaseURL())
}

// NewEventStream host 形如 http://127.0.0.1:8080
func NewEventStream(host string) *EventStream {
	wsURL := strings.TrimSuffix(host, "/")
	switch {
	case strings.HasPrefix(wsURL, "https://"):
		wsURL = "wss://" + strings.TrimPrefix(wsURL, "https://")
	case strings.HasPrefix(wsURL, "http://"):
		wsURL = "ws://" + strings.TrimPrefix(wsURL, "http://")
	}
	return &EventStream{
		wsURL:      wsURL + "/api/events/ws",
		coolDown:   defaultReconnectCoolDown,
		reconnectC: make(chan struct{}, 1),
		closeC:     make(chan struct{}),
		sg:         syncgroup.NewSyncGroup(),
		connSg:     syncgroup.NewSyncGroup(),
	}
}

// SetReconnectCoolDown 重连冷却时间
func (s *EventStream) SetReconnectCoolDown(d time.Duration) {
	s.coolDown = d
}

// OnEvent 注册回调（Connect 之前调用）
func (s *EventStream) OnEvent(h EventHandler) {
	if h == nil {
		return
	}
	s.handlersMu.Lock()
	s.handlers = append(s.handlers, h)
	s.handlersMu.Unlock()
}

// LastSeq 最近处理的事件序号
func (s *EventStream) LastSeq() uint64 {
	return s.last.Load()
}

// Connect 从 since 之后开始订阅
func (s *EventStream) Connect(ctx context.Context, since uint64) error {
	s.last.Store(since)
	s.sg.Add(func() { s.reconnector(ctx) })
	s.sg.Run()
	return s.dialAndServe(ctx)
}

// Close 关闭连接并停止重连
func (s *EventStream) Close() error {
	s.closeOnce.Do(func() { close(s.closeC) })
	s.connMu.Lock()
	if s.connCancel != nil {
		s.connCancel()
	}
	if s.conn != nil {
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = s.conn.Close()
	}
	s.connMu.Unlock()
	s.connSg.Wait()
	s.sg.Wait()
	return nil
}

func (s *EventStream) closed() bool {
	select {
	case <-s.closeC:
		return true
	default:
		return false
	}
}

func (s *EventStream) dialAndServe(ctx context.Context) error {
	if s.closed() {
		return fmt.Errorf("event stream closed")
	}
	u, err := url.Parse(s.wsURL)
	if err != nil {
		return err
	}
	q := u.Query()
	q.Set("since", strconv.FormatUint(s.last.Load(), 10))
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return err
	}
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(streamReadTimeout))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(streamWriteTimeout))
	})

	s.connMu.Lock()
	if s.connCancel != nil {
		s.connCancel()
	}
	if s.conn != nil {
		_ = s.conn.Close()
	}
	connCtx, cancel := context.WithCancel(ctx)
	s.conn = conn
	s.connCancel = cancel
	s.connMu.Unlock()

	// 旧连接的读循环退出后再启动新的
	s.connSg.Wait()
	s.connSg.Add(func() { s.read(connCtx, conn, cancel) })
	s.connSg.Run()

	streamLog.Infof("事件流已连接: %s", u.String())
	return nil
}

// Reconnect 触发重连
func (s *EventStream) Reconnect() {
	select {
	case s.reconnectC <- struct{}{}:
	default:
	}
}

func (s *EventStream) reconnector(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.closeC:
			return
		case <-s.reconnectC:
			streamLog.Warnf("事件流断开，%s 后重连 (since=%d)", s.coolDown, s.last.Load())
			select {
			case <-ctx.Done():
				return
			case <-s.closeC:
				return
			case <-time.After(s.coolDown):
			}
			if err := s.dialAndServe(ctx); err != nil {
				streamLog.Warnf("重连失败: %v", err)
				s.Reconnect()
			}
		}
	}
}

func (s *EventStream) read(ctx context.Context, conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	for {
		if ctx.Err() != nil || s.closed() {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(streamReadTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			if s.closed() || ctx.Err() != nil {
				return
			}
			streamLog.Warnf("事件流读取错误: %v", err)
			_ = conn.Close()
			s.Reconnect()
			return
		}
		s.handleMessage(message)
	}
}

func (s *EventStream) handleMessage(message []byte) {
	var evt Event
	if err := json.Unmarshal(message, &evt); err != nil {
		streamLog.Warnf("无法解析事件: %v", err)
		return
	}
	// 重连回放可能与已处理的事件重叠
	if evt.Seq <= s.last.Load() {
		return
	}
	s.last.Store(evt.Seq)

	s.handlersMu.RLock()
	handlers := s.handlers
	s.handlersMu.RUnlock()
	for _, h := range handlers {
		h(evt)
	}
}
