package output

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeTimeout = time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Hub websocket客户端集合
// 功能：接受websocket连接，把每个统计周期的汇总以JSON文本帧推送给所有客户端
// 说明：客户端发来的消息被丢弃，读取出错即视为断开
type Hub struct {
	clients map[*websocket.Conn]struct{}
	mtx     sync.Mutex
}

// NewHub 创建websocket客户端集合
func NewHub() *Hub {
	return &Hub{clients: make(map[*websocket.Conn]struct{})}
}

// ServeHTTP 升级为websocket连接并登记客户端
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("websocket upgrade: %v", err)
		return
	}
	h.mtx.Lock()
	h.clients[conn] = struct{}{}
	n := len(h.clients)
	h.mtx.Unlock()
	log.Debugf("websocket client %v connected, %d clients", conn.RemoteAddr(), n)
	go h.read(conn)
}

func (h *Hub) read(conn *websocket.Conn) {
	defer h.drop(conn)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warnf("websocket client %v: %v", conn.RemoteAddr(), err)
			}
			return
		}
	}
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mtx.Lock()
	defer h.mtx.Unlock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
	}
}

// Len 当前客户端数
func (h *Hub) Len() int {
	h.mtx.Lock()
	defer h.mtx.Unlock()
	return len(h.clients)
}

// Broadcast 向所有客户端推送v的JSON编码，写入失败的客户端被断开
func (h *Hub) Broadcast(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.mtx.Lock()
	defer h.mtx.Unlock()
	for conn := range h.clients {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Warnf("websocket write to %v: %v", conn.RemoteAddr(), err)
			delete(h.clients, conn)
			conn.Close()
		}
	}
	return nil
}

// Close 断开所有客户端
func (h *Hub) Close() {
	h.mtx.Lock()
	defer h.mtx.Unlock()
	for conn := range h.clients {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeTimeout))
		conn.Close()
		delete(h.clients, conn)
	}
}
