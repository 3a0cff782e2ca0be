package notify

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/betbot/nftmarket/pkg/syncgroup"
)

const (
	pingInterval = 10 * time.Second
	readTimeout  = 30 * time.Second
	writeTimeout = 10 * time.Second
)

// Hub websocket 推送：先按游标回放日志，再推送新事件。
// 写超时（客户端消费过慢）直接断开，客户端可凭最后的 seq 重连续传。
type Hub struct {
	bus      *Bus
	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	clients atomic.Int64
}

func NewHub(bus *Bus) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		bus: bus,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

// Clients 当前连接数
func (h *Hub) Clients() int {
	return int(h.clients.Load())
}

// ServeHTTP 升级连接；query 参数 since=N 表示只接收 Seq > N 的事件
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var since uint64
	if raw := r.URL.Query().Get("since"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			http.Error(w, "invalid since", http.StatusBadRequest)
			return
		}
		since = v
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("websocket 升级失败: %v", err)
		return
	}
	h.wg.Add(1)
	defer h.wg.Done()
	h.serve(conn, since)
}

// Close 断开所有连接并等待退出
func (h *Hub) Close() {
	h.cancel()
	h.wg.Wait()
}

func (h *Hub) serve(conn *websocket.Conn, since uint64) {
	h.clients.Add(1)
	defer h.clients.Add(-1)

	ctx, cancel := context.WithCancel(h.ctx)
	defer cancel()

	sig, unsubscribe := h.bus.Subscribe()
	defer unsubscribe()

	remote := conn.RemoteAddr().String()
	log.Infof("websocket 客户端已连接: %s since=%d", remote, since)

	sg := syncgroup.NewSyncGroup()
	sg.Add(func() { h.readLoop(ctx, cancel, conn) })
	sg.Add(func() { h.writeLoop(ctx, cancel, conn, since, sig.C()) })
	sg.Run()

	<-ctx.Done()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	_ = conn.Close()
	sg.Wait()
	log.Infof("websocket 客户端已断开: %s", remote)
}

// readLoop 只处理控制帧；客户端消息被忽略
func (h *Hub) readLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn) {
	defer cancel()
	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debugf("websocket 读取结束: %v", err)
			}
			return
		}
	}
}

func (h *Hub) writeLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, cursor uint64, wake <-chan struct{}) {
	defer cancel()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	flush := func() bool {
		for {
			batch, err := h.bus.Journal().Since(ctx, cursor, DefaultPageSize)
			if err != nil {
				log.Errorf("读取事件日志失败: %v", err)
				return false
			}
			for _, evt := range batch {
				_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := conn.WriteJSON(evt); err != nil {
					log.Warnf("推送事件失败，断开客户端: seq=%d err=%v", evt.Seq, err)
					return false
				}
				cursor = evt.Seq
			}
			if len(batch) < DefaultPageSize {
				return true
			}
		}
	}

	if !flush() {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-wake:
			if !flush() {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				log.Warnf("发送 PING 失败: %v", err)
				return
			}
		}
	}
}
