package hub

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/benedict2310/sensorcast/internal/store"
)

// connection is the hub's record for one client. The outbound queue is
// drained by a single writer goroutine so per-connection order holds; the
// request state below is touched only by the read loop.
type connection struct {
	hub *Hub
	id  string
	ws  *websocket.Conn

	send      chan []byte
	done      chan struct{}
	closed    atomic.Bool
	closeOnce sync.Once

	timeRange  store.TimeRange
	limiters   map[RequestKind]*rate.Limiter
	adminToken string
}

var requestIntervals = map[RequestKind]time.Duration{
	RequestGetData:           getDataInterval,
	RequestGetLatestReadings: getLatestReadingsEvery,
}

func newConnection(h *Hub, id string, ws *websocket.Conn) *connection {
	return &connection{
		hub:       h,
		id:        id,
		ws:        ws,
		send:      make(chan []byte, h.sendQueueSize),
		done:      make(chan struct{}),
		timeRange: h.defaultRange,
		limiters:  map[RequestKind]*rate.Limiter{},
	}
}

// allow applies the per-kind request budget. Kinds without an interval are
// unlimited.
func (c *connection) allow(kind RequestKind) bool {
	interval, ok := requestIntervals[kind]
	if !ok {
		return true
	}
	lim, ok := c.limiters[kind]
	if !ok {
		lim = rate.NewLimiter(rate.Every(interval), 1)
		c.limiters[kind] = lim
	}
	return lim.AllowN(c.hub.nowFn(), 1)
}

func (c *connection) enqueue(payload []byte) bool {
	if c.closed.Load() {
		return false
	}
	select {
	case c.send <- payload:
		return true
	case <-c.done:
		return false
	default:
		c.hub.metrics.SendDropped()
		c.hub.logger.Debug("websocket send queue full", "conn_id", c.id)
		return false
	}
}

func (c *connection) sendJSON(v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		c.hub.logger.Error("encode websocket message failed", "conn_id", c.id, "error", err)
		return
	}
	c.enqueue(payload)
}

func (c *connection) sendError(message string) {
	c.sendJSON(errorMessage{Type: TypeError, Message: message})
}

func (c *connection) close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
		_ = c.ws.Close()
	})
}

func (c *connection) writeLoop() {
	ticker := time.NewTicker(c.hub.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case payload := <-c.send:
			if c.closed.Load() {
				return
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.hub.writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.hub.logger.Debug("websocket write failed", "conn_id", c.id, "error", err)
				c.close()
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.hub.writeTimeout)); err != nil {
				c.close()
				return
			}
		}
	}
}

func (c *connection) readLoop(ctx context.Context) {
	c.ws.SetReadLimit(maxFrameBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.hub.readTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.hub.readTimeout))
	})
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !c.closed.Load() {
				c.hub.logger.Debug("websocket read failed", "conn_id", c.id, "error", err)
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(c.hub.readTimeout))
		c.hub.handleRequest(ctx, c, data)
	}
}
