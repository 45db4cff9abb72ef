package notify

import (
	"net/http"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"
)

const (
	writeTimeout   = 5 * time.Second
	pongTimeout    = 60 * time.Second
	pingInterval   = 25 * time.Second
	sendBufferSize = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Cross-origin browser clients are expected; the bearer token is the
	// access control, not the Origin header.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Conn is one subscribed websocket. The user identity comes from the
// authenticated HTTP request that upgraded the connection, never from a
// client-sent join message.
type Conn struct {
	userID    string
	ws        *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// ServeWS upgrades the request and subscribes it to userID's group until the
// peer goes away. The caller must have authenticated the request already.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		glog.Infof("[hub] upgrade failed user=%s: %v", userID, err)
		return
	}

	c := &Conn{
		userID: userID,
		ws:     ws,
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
	}
	h.subscribe(c)

	go c.writePump()
	c.readPump(h)
}

// readPump discards inbound frames; the channel is server-to-client only.
// It exists to observe pongs and the peer closing.
func (c *Conn) readPump(h *Hub) {
	defer func() {
		h.unsubscribe(c)
		c.closeSlow()
	}()

	c.ws.SetReadLimit(512)
	c.ws.SetReadDeadline(time.Now().Add(pongTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			c.ws.WriteMessage(websocket.CloseMessage, nil)
			return
		case msg := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Conn) closeSlow() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.ws.Close()
	})
}
