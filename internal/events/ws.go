package events

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WebSocket timeouts mirror the chatroom example's keepalive shape (§6's
// full-duplex /ws channel): the hub pings on a period comfortably inside
// the peer's pong deadline, and the connection is torn down if the peer
// goes quiet.
const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsClient adapts one /ws connection to Subscriber, buffering outbound
// events onto a channel so a slow peer never blocks Hub.Emit.
type wsClient struct {
	conn *websocket.Conn
	send chan Event
	log  *zap.Logger
}

func (c *wsClient) Notify(evt Event) {
	select {
	case c.send <- evt:
	default:
		// Peer isn't draining fast enough; drop rather than block the hub.
	}
}

// ServeWS upgrades the request to a WebSocket and streams every Hub event
// to it as {event, payload} until the peer disconnects (§6). Inbound
// messages are read and discarded except as liveness pings.
func ServeWS(hub *Hub, log *zap.Logger, w http.ResponseWriter, r *http.Request) {
	if log == nil {
		log = zap.L()
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("ws: upgrade failed", zap.Error(err))
		return
	}

	client := &wsClient{conn: conn, send: make(chan Event, 64), log: log}
	unsubscribe := hub.Subscribe(client)

	done := make(chan struct{})
	go client.writePump(done)
	client.readPump(unsubscribe, done)
}

func (c *wsClient) readPump(unsubscribe func(), done chan struct{}) {
	defer func() {
		unsubscribe()
		close(done)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		// Inbound messages from the UI are ignored except for keepalive (§6).
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Debug("ws: read error", zap.Error(err))
			}
			return
		}
	}
}

func (c *wsClient) writePump(done chan struct{}) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case evt := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			body, err := json.Marshal(evt)
			if err != nil {
				c.log.Error("ws: failed to marshal event", zap.Error(err))
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, body); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
