package hub

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/benedict2310/sensorcast/internal/store"
)

// handleRequest answers one client frame. Oversized, malformed and
// rate-limited requests get no response.
func (h *Hub) handleRequest(ctx context.Context, c *connection, data []byte) {
	if len(data) > h.maxRequestBytes {
		h.metrics.RequestRejected("oversized")
		h.logger.Debug("websocket request dropped", "conn_id", c.id, "reason", "oversized", "bytes", len(data))
		return
	}
	var req request
	if err := json.Unmarshal(data, &req); err != nil {
		h.metrics.RequestRejected("malformed")
		h.logger.Debug("websocket request dropped", "conn_id", c.id, "reason", "malformed", "error", err)
		return
	}
	if !c.allow(req.Type) {
		h.metrics.RequestRejected("rate_limited")
		h.logger.Debug("websocket request dropped", "conn_id", c.id, "reason", "rate_limited", "type", req.Type)
		return
	}

	switch req.Type {
	case RequestGetData:
		h.metrics.Request(string(req.Type))
		h.handleGetData(ctx, c, req)
	case RequestGetLatestReadings:
		h.metrics.Request(string(req.Type))
		h.sendLatestReadings(ctx, c)
	case RequestAdminAuth:
		h.metrics.Request(string(req.Type))
		h.handleAdminAuth(c, req)
	case RequestGetSensorNames:
		h.metrics.Request(string(req.Type))
		h.handleGetSensorNames(ctx, c)
	case RequestSetSensorName:
		h.metrics.Request(string(req.Type))
		h.handleSetSensorName(ctx, c, req)
	case RequestDeleteSensorName:
		h.metrics.Request(string(req.Type))
		h.handleDeleteSensorName(ctx, c, req)
	default:
		h.metrics.RequestRejected("unknown_type")
		h.logger.Warn("unknown websocket request type", "conn_id", c.id, "type", req.Type)
	}
}

func (h *Hub) handleGetData(ctx context.Context, c *connection, req request) {
	timeRange := c.timeRange
	if strings.TrimSpace(req.TimeRange) != "" {
		parsed, err := store.ParseTimeRange(req.TimeRange)
		if err != nil {
			c.sendError(msgInvalidRange)
			return
		}
		timeRange = parsed
	}
	c.timeRange = timeRange

	ctx, cancel := context.WithTimeout(ctx, h.queryTimeout)
	defer cancel()
	res, err := h.store.QueryAggregated(ctx, timeRange)
	if err != nil {
		h.logger.Error("aggregated query failed", "conn_id", c.id, "time_range", timeRange, "error", err)
		c.sendError(msgLoadFailed)
		return
	}
	c.sendJSON(historicalDataMessage{
		Type:       TypeHistoricalData,
		Data:       res.Buckets,
		TimeRange:  res.Range,
		BucketSize: res.BucketSeconds,
		Truncated:  res.Truncated,
	})
}

func (h *Hub) sendLatestReadings(ctx context.Context, c *connection) {
	ctx, cancel := context.WithTimeout(ctx, h.queryTimeout)
	defer cancel()
	latest, err := h.store.LatestPerSensor(ctx)
	if err != nil {
		h.logger.Error("latest readings query failed", "conn_id", c.id, "error", err)
		c.sendError(msgLoadFailed)
		return
	}
	c.sendJSON(latestReadingsMessage{
		Type:       TypeLatestReadings,
		Data:       latest,
		ServerTime: h.nowFn().Unix(),
	})
}

func (h *Hub) handleAdminAuth(c *connection, req request) {
	if !h.password.Enabled() {
		h.logger.Warn("admin authentication attempted without a configured password", "conn_id", c.id)
		c.sendJSON(adminAuthResultMessage{Type: TypeAdminAuthResult, Success: false})
		return
	}
	if !h.password.Check(req.Password) {
		h.logger.Warn("admin authentication failed", "conn_id", c.id)
		c.sendJSON(adminAuthResultMessage{Type: TypeAdminAuthResult, Success: false})
		return
	}
	token, err := h.sessions.Issue()
	if err != nil {
		h.logger.Error("issue admin session failed", "conn_id", c.id, "error", err)
		c.sendJSON(adminAuthResultMessage{Type: TypeAdminAuthResult, Success: false})
		return
	}
	c.adminToken = token
	h.logger.Info("admin session issued", "conn_id", c.id)
	c.sendJSON(adminAuthResultMessage{Type: TypeAdminAuthResult, Success: true, Token: token})
}

func (h *Hub) handleGetSensorNames(ctx context.Context, c *connection) {
	ctx, cancel := context.WithTimeout(ctx, h.queryTimeout)
	defer cancel()
	names, err := h.store.ListAliases(ctx)
	if err != nil {
		h.logger.Error("list sensor names failed", "conn_id", c.id, "error", err)
		c.sendError(msgLoadFailed)
		return
	}
	c.sendJSON(sensorNamesMessage{Type: TypeSensorNames, Data: names})
}

// authorize checks the token carried by the request, falling back to the
// one issued on this connection.
func (h *Hub) authorize(c *connection, req request) (string, bool) {
	token := req.AdminToken
	if token == "" {
		token = c.adminToken
	}
	if err := h.sessions.Validate(token); err != nil {
		h.metrics.RequestRejected("unauthorized")
		h.logger.Warn("protected websocket request refused", "conn_id", c.id, "type", req.Type)
		c.sendError(msgUnauthorized)
		return "", false
	}
	return token, true
}

func (h *Hub) handleSetSensorName(ctx context.Context, c *connection, req request) {
	if !h.password.Enabled() {
		c.sendError(msgAdminDisabled)
		return
	}
	token, ok := h.authorize(c, req)
	if !ok {
		return
	}
	mac := store.NormalizeMAC(req.SensorMAC)
	if !store.ValidMAC(mac) {
		c.sendError(msgInvalidName)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, h.queryTimeout)
	defer cancel()
	saved, err := h.store.SetAlias(ctx, mac, req.CustomName)
	if err != nil {
		if errors.Is(err, store.ErrInvalidAlias) {
			c.sendError(msgInvalidName)
			return
		}
		h.logger.Error("set sensor name failed", "conn_id", c.id, "sensor_mac", mac, "error", err)
		c.sendError(msgSaveFailed)
		return
	}
	h.sessions.Extend(token)
	h.logger.Info("sensor name set", "conn_id", c.id, "sensor_mac", saved.SensorMAC)
	c.sendJSON(sensorNameSetMessage{
		Type:       TypeSensorNameSet,
		Success:    true,
		SensorMAC:  saved.SensorMAC,
		CustomName: saved.CustomName,
	})
}

func (h *Hub) handleDeleteSensorName(ctx context.Context, c *connection, req request) {
	if !h.password.Enabled() {
		c.sendError(msgAdminDisabled)
		return
	}
	token, ok := h.authorize(c, req)
	if !ok {
		return
	}
	mac := store.NormalizeMAC(req.SensorMAC)
	if !store.ValidMAC(mac) {
		c.sendError(msgInvalidName)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, h.queryTimeout)
	defer cancel()
	deleted, err := h.store.DeleteAlias(ctx, mac)
	if err != nil {
		h.logger.Error("delete sensor name failed", "conn_id", c.id, "sensor_mac", mac, "error", err)
		c.sendError(msgDeleteFailed)
		return
	}
	h.sessions.Extend(token)
	c.sendJSON(sensorNameDeletedMessage{Type: TypeSensorNameDeleted, Success: deleted, SensorMAC: mac})
}
