package service

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/yola1107/kratos/v2/log"
)

const (
	_pushBuffer     = 64
	_writeDeadline  = 5 * time.Second
	_pingInterval   = 30 * time.Second
	_maxInboundSize = 512
)

// pushEnvelope 推送消息信封
type pushEnvelope struct {
	Event   string `json:"event"`
	Payload any    `json:"payload,omitempty"`
	Ts      int64  `json:"ts"`
}

type pushClient struct {
	conn *websocket.Conn
	send chan []byte
}

// PushHub fans engine lifecycle events out to the player's websocket
// clients. A slow client gets dropped messages, never a blocked engine.
type PushHub struct {
	log      *log.Helper
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[string]map[*pushClient]struct{} // playerID -> connections
}

// NewPushHub new a push hub.
func NewPushHub(logger log.Logger) *PushHub {
	return &PushHub{
		log: log.NewHelper(logger),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[string]map[*pushClient]struct{}),
	}
}

// Push implements biz.EventSink.
func (h *PushHub) Push(playerID, event string, payload any) {
	h.mu.Lock()
	conns := h.clients[playerID]
	if len(conns) == 0 {
		h.mu.Unlock()
		return
	}
	targets := make([]*pushClient, 0, len(conns))
	for c := range conns {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	body, err := jsoniter.Marshal(&pushEnvelope{Event: event, Payload: payload, Ts: time.Now().UnixMilli()})
	if err != nil {
		h.log.Warnf("encode push %s: %v", event, err)
		return
	}
	for _, c := range targets {
		select {
		case c.send <- body:
		default:
			// 客户端消费不过来就丢弃，不阻塞引擎回调
		}
	}
}

// HandleWS upgrades /ws?player=<id> connections and subscribes them to
// the player's event stream.
func (h *PushHub) HandleWS(w http.ResponseWriter, r *http.Request) {
	playerID := r.URL.Query().Get("player")
	if playerID == "" {
		http.Error(w, "player query param required", http.StatusBadRequest)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnf("ws upgrade: %v", err)
		return
	}
	c := &pushClient{conn: conn, send: make(chan []byte, _pushBuffer)}

	h.mu.Lock()
	if h.clients[playerID] == nil {
		h.clients[playerID] = make(map[*pushClient]struct{})
	}
	h.clients[playerID][c] = struct{}{}
	n := len(h.clients[playerID])
	h.mu.Unlock()
	h.log.Infof("ws client joined, player=%s conns=%d", playerID, n)

	go h.writePump(c)
	h.readPump(playerID, c)
}

func (h *PushHub) writePump(c *pushClient) {
	ticker := time.NewTicker(_pingInterval)
	defer ticker.Stop()
	for {
		select {
		case body := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(_writeDeadline))
			if err := c.conn.WriteMessage(websocket.TextMessage, body); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(_writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump 只消费控制帧与关闭，推送通道是单向的
func (h *PushHub) readPump(playerID string, c *pushClient) {
	defer h.drop(playerID, c)
	c.conn.SetReadLimit(_maxInboundSize)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *PushHub) drop(playerID string, c *pushClient) {
	h.mu.Lock()
	if conns := h.clients[playerID]; conns != nil {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.clients, playerID)
		}
	}
	h.mu.Unlock()
	// send通道不关闭：Push的快照可能仍持有该客户端；
	// writePump在连接关闭后的下一次写/心跳出错退出
	_ = c.conn.Close()
	h.log.Infof("ws client left, player=%s", playerID)
}
