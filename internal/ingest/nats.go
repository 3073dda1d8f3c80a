package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/benedict2310/sensorcast/internal/metrics"
)

// NATSSubjects mirror TopicFilters in NATS wildcard syntax.
var NATSSubjects = []string{"ruuvi.*.*", "gateway.*.*", "ruuvi.*"}

type NATSOptions struct {
	URL               string
	Name              string
	Username          string
	Password          string
	ReconnectInterval time.Duration
	Logger            *slog.Logger
	Metrics           *metrics.IngestMetrics
}

type NATSSubscriber struct {
	opts NATSOptions

	mu   sync.Mutex
	conn *nats.Conn
	subs []*nats.Subscription
}

func NewNATSSubscriber(opts NATSOptions) (*NATSSubscriber, error) {
	if strings.TrimSpace(opts.URL) == "" {
		return nil, fmt.Errorf("nats url is required")
	}
	if opts.ReconnectInterval <= 0 {
		opts.ReconnectInterval = DefaultReconnectInterval
	}
	if opts.Name == "" {
		opts.Name = "sensorcast"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &NATSSubscriber{opts: opts}, nil
}

func (s *NATSSubscriber) connectOptions() []nats.Option {
	logger := s.opts.Logger
	opts := []nats.Option{
		nats.Name(s.opts.Name),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(s.opts.ReconnectInterval),
		nats.ConnectHandler(func(nc *nats.Conn) {
			s.opts.Metrics.TransportConnected()
			logger.Info("nats connected", "url", nc.ConnectedUrlRedacted())
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			s.opts.Metrics.TransportConnected()
			logger.Info("nats reconnected", "url", nc.ConnectedUrlRedacted())
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			logger.Error("nats async error", "subject", subject, "error", err)
		}),
	}
	if s.opts.Username != "" {
		opts = append(opts, nats.UserInfo(s.opts.Username, s.opts.Password))
	}
	return opts
}

// Start subscribes to every gateway subject. Subscriptions made before the
// first successful connect are replayed by the client once it connects.
func (s *NATSSubscriber) Start(_ context.Context, handle MessageHandler) error {
	if handle == nil {
		return fmt.Errorf("message handler is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return fmt.Errorf("nats subscriber already started")
	}
	conn, err := nats.Connect(s.opts.URL, s.connectOptions()...)
	if err != nil {
		return fmt.Errorf("connect nats %s: %w", s.opts.URL, err)
	}
	onMessage := func(m *nats.Msg) {
		handle(SubjectToTopic(m.Subject), m.Data)
	}
	for _, subject := range NATSSubjects {
		sub, err := conn.Subscribe(subject, onMessage)
		if err != nil {
			conn.Close()
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
		s.subs = append(s.subs, sub)
	}
	s.conn = conn
	s.opts.Logger.Info("nats subscribed", "subjects", NATSSubjects)
	return nil
}

func (s *NATSSubscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	s.subs = nil
	s.conn.Close()
	s.conn = nil
	return nil
}

// SubjectToTopic maps a NATS subject onto the MQTT topic shape the gateway
// pipeline understands.
func SubjectToTopic(subject string) string {
	return strings.ReplaceAll(subject, ".", "/")
}
