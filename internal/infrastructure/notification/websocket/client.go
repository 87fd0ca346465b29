package websocket

import (
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dreschagin/install-monitor/pkg/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// Подписчики ленты присылают только control frames
	maxMessageSize = 512

	sendBuffer = 64
)

// Filter narrows the feed a subscriber receives. Empty sets match everything.
type Filter struct {
	Monitors map[string]struct{}
	Types    map[string]struct{}
}

// ParseFilter reads ?monitor=a,b and ?types=probe,ticket. Both may repeat.
func ParseFilter(query url.Values) Filter {
	return Filter{
		Monitors: toSet(query["monitor"]),
		Types:    toSet(query["types"]),
	}
}

func toSet(values []string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, value := range values {
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				set[item] = struct{}{}
			}
		}
	}
	if len(set) == 0 {
		return nil
	}
	return set
}

// Match reports whether message passes the filter. Messages without a monitor
// name pass a monitor filter only when it is empty.
func (f Filter) Match(message Message) bool {
	if len(f.Types) > 0 {
		if _, ok := f.Types[message.Type]; !ok {
			return false
		}
	}
	if len(f.Monitors) > 0 {
		if _, ok := f.Monitors[message.Monitor]; !ok {
			return false
		}
	}
	return true
}

// Client is one /ws/probes subscriber.
type Client struct {
	conn   *websocket.Conn
	hub    *Hub
	filter Filter
	send   chan Message
	logger *logger.Logger
}

func NewClient(hub *Hub, conn *websocket.Conn, filter Filter, log *logger.Logger) *Client {
	return &Client{
		conn:   conn,
		hub:    hub,
		filter: filter,
		send:   make(chan Message, sendBuffer),
		logger: log,
	}
}

// ReadPump keeps the read side alive for pongs and close frames and unregisters
// the client once the connection ends. Run it in its own goroutine.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error("WebSocket set read deadline error", err)
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("Feed subscriber dropped", "error", err.Error())
			}
			return
		}
	}
}

// WritePump delivers feed messages and pings until the hub closes send.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub закрыл канал
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "feed closed"))
				return
			}
			if err := c.conn.WriteJSON(message); err != nil {
				c.logger.Warn("Feed write failed", "error", err.Error())
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
