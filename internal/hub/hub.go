// Package hub serves live sensor readings and query-backed history to
// WebSocket clients.
package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/benedict2310/sensorcast/internal/metrics"
	"github.com/benedict2310/sensorcast/internal/store"
)

const (
	DefaultMaxRequestBytes = 1024
	DefaultSendQueueSize   = 256
	DefaultPingInterval    = 30 * time.Second
	DefaultReadTimeout     = 60 * time.Second
	DefaultWriteTimeout    = 10 * time.Second
	DefaultQueryTimeout    = 10 * time.Second

	getDataInterval        = time.Second
	getLatestReadingsEvery = 500 * time.Millisecond

	// Frames above this size fail the read and close the connection.
	// Anything between MaxRequestBytes and this is dropped quietly.
	maxFrameBytes = 64 * 1024
)

// Store is the part of the reading store the hub answers requests from.
type Store interface {
	QueryAggregated(ctx context.Context, timeRange store.TimeRange) (store.AggregatedResult, error)
	LatestPerSensor(ctx context.Context) ([]store.LatestReading, error)
	ListAliases(ctx context.Context) ([]store.SensorName, error)
	SetAlias(ctx context.Context, mac, name string) (store.SensorName, error)
	DeleteAlias(ctx context.Context, mac string) (bool, error)
}

type Options struct {
	Store            Store
	Sessions         *Sessions
	AdminPassword    string
	DefaultTimeRange store.TimeRange
	MaxRequestBytes  int
	SendQueueSize    int
	PingInterval     time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	QueryTimeout     time.Duration
	CheckOrigin      func(*http.Request) bool
	Logger           *slog.Logger
	Metrics          *metrics.HubMetrics
	NowFn            func() time.Time
}

type Hub struct {
	store    Store
	sessions *Sessions
	password PasswordChecker
	logger   *slog.Logger
	metrics  *metrics.HubMetrics
	nowFn    func() time.Time
	upgrader websocket.Upgrader

	defaultRange    store.TimeRange
	maxRequestBytes int
	sendQueueSize   int
	pingInterval    time.Duration
	readTimeout     time.Duration
	writeTimeout    time.Duration
	queryTimeout    time.Duration

	mu    sync.RWMutex
	conns map[string]*connection
}

func New(opts Options) *Hub {
	if opts.NowFn == nil {
		opts.NowFn = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Sessions == nil {
		opts.Sessions = NewSessions(DefaultSessionTTL, opts.NowFn)
	}
	if !opts.DefaultTimeRange.Valid() {
		opts.DefaultTimeRange = store.DefaultTimeRange
	}
	if opts.MaxRequestBytes <= 0 {
		opts.MaxRequestBytes = DefaultMaxRequestBytes
	}
	if opts.SendQueueSize <= 0 {
		opts.SendQueueSize = DefaultSendQueueSize
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = DefaultPingInterval
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = DefaultQueryTimeout
	}
	checkOrigin := opts.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Hub{
		store:           opts.Store,
		sessions:        opts.Sessions,
		password:        NewPasswordChecker(opts.AdminPassword),
		logger:          opts.Logger,
		metrics:         opts.Metrics,
		nowFn:           opts.NowFn,
		upgrader:        websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024, CheckOrigin: checkOrigin},
		defaultRange:    opts.DefaultTimeRange,
		maxRequestBytes: opts.MaxRequestBytes,
		sendQueueSize:   opts.SendQueueSize,
		pingInterval:    opts.PingInterval,
		readTimeout:     opts.ReadTimeout,
		writeTimeout:    opts.WriteTimeout,
		queryTimeout:    opts.QueryTimeout,
		conns:           map[string]*connection{},
	}
}

func (h *Hub) Sessions() *Sessions {
	return h.sessions
}

func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// ServeHTTP upgrades the request and serves the connection until either
// side closes it.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}
	id, err := newConnectionID(h.nowFn())
	if err != nil {
		h.logger.Error("websocket connection rejected", "error", err)
		_ = ws.Close()
		return
	}
	c := newConnection(h, id, ws)
	h.register(c)
	defer h.unregister(c)

	go c.writeLoop()
	h.logger.Debug("websocket client connected", "conn_id", id, "remote_addr", r.RemoteAddr)

	h.sendLatestReadings(r.Context(), c)
	c.readLoop(r.Context())
}

func (h *Hub) register(c *connection) {
	h.mu.Lock()
	h.conns[c.id] = c
	n := len(h.conns)
	h.mu.Unlock()
	h.metrics.ClientConnected(n)
}

func (h *Hub) unregister(c *connection) {
	c.close()
	h.mu.Lock()
	delete(h.conns, c.id)
	n := len(h.conns)
	h.mu.Unlock()
	h.metrics.ClientDisconnected(n)
	h.logger.Debug("websocket client disconnected", "conn_id", c.id)
}

func (h *Hub) snapshot() []*connection {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*connection, 0, len(h.conns))
	for _, c := range h.conns {
		out = append(out, c)
	}
	return out
}

// Broadcast pushes the live subset of r to every open connection. It never
// blocks on a slow client.
func (h *Hub) Broadcast(r store.Reading) {
	payload, err := json.Marshal(sensorDataMessage{
		Type: TypeSensorData,
		Data: LiveReading{
			SensorMAC:   r.SensorMAC,
			Temperature: r.Temperature,
			Humidity:    r.Humidity,
			Timestamp:   r.Timestamp,
		},
	})
	if err != nil {
		h.logger.Error("encode broadcast failed", "sensor_mac", r.SensorMAC, "error", err)
		return
	}
	h.metrics.Broadcast()
	for _, c := range h.snapshot() {
		c.enqueue(payload)
	}
}

// Accept lets the hub sit behind the ingest pipeline as a sink.
func (h *Hub) Accept(r store.Reading) {
	h.Broadcast(r)
}

// Close disconnects every client.
func (h *Hub) Close() {
	for _, c := range h.snapshot() {
		c.close()
	}
}
