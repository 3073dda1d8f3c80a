package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const DefaultReconnectInterval = 5 * time.Second

// MessageHandler is called once per inbound transport message, in arrival
// order for a given subscription.
type MessageHandler func(topic string, payload []byte)

// Subscriber connects to a pub/sub transport and feeds every message on
// the gateway topics to a handler until closed. Start does not wait for
// the first connection; reconnection is the subscriber's job.
type Subscriber interface {
	Start(ctx context.Context, handle MessageHandler) error
	Close() error
}

type TransportKind string

const (
	TransportMQTT TransportKind = "mqtt"
	TransportNATS TransportKind = "nats"
)

func ParseTransportKind(v string) (TransportKind, error) {
	switch kind := TransportKind(strings.ToLower(strings.TrimSpace(v))); kind {
	case TransportMQTT, TransportNATS:
		return kind, nil
	default:
		return "", fmt.Errorf("invalid transport kind %q (expected mqtt|nats)", v)
	}
}

// Subscribe starts sub and routes its messages through the gateway.
func (g *Gateway) Subscribe(ctx context.Context, transport TransportKind, sub Subscriber) error {
	return sub.Start(ctx, func(topic string, payload []byte) {
		g.Deliver(string(transport), topic, payload)
	})
}
