package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/benedict2310/sensorcast/internal/metrics"
)

const mqttDisconnectQuiesceMS = 250

type MQTTOptions struct {
	BrokerURL         string
	ClientID          string
	Username          string
	Password          string
	QoS               byte
	ReconnectInterval time.Duration
	Logger            *slog.Logger
	Metrics           *metrics.IngestMetrics
}

type MQTTSubscriber struct {
	opts MQTTOptions

	mu     sync.Mutex
	client mqtt.Client
}

func NewMQTTSubscriber(opts MQTTOptions) (*MQTTSubscriber, error) {
	if strings.TrimSpace(opts.BrokerURL) == "" {
		return nil, fmt.Errorf("mqtt broker url is required")
	}
	if opts.QoS > 1 {
		return nil, fmt.Errorf("mqtt qos must be 0 or 1, got %d", opts.QoS)
	}
	if opts.ReconnectInterval <= 0 {
		opts.ReconnectInterval = DefaultReconnectInterval
	}
	if opts.ClientID == "" {
		opts.ClientID = fmt.Sprintf("sensorcast-%d", time.Now().UnixNano())
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &MQTTSubscriber{opts: opts}, nil
}

// clientOptions configures a fixed retry period with no attempt cap. The
// on-connect handler resubscribes so a broker restart does not lose the
// subscriptions of a clean session.
func (s *MQTTSubscriber) clientOptions(handle MessageHandler) *mqtt.ClientOptions {
	logger := s.opts.Logger
	filters := make(map[string]byte, len(TopicFilters))
	for _, f := range TopicFilters {
		filters[f] = s.opts.QoS
	}
	onMessage := func(_ mqtt.Client, msg mqtt.Message) {
		handle(msg.Topic(), msg.Payload())
	}

	o := mqtt.NewClientOptions().
		AddBroker(s.opts.BrokerURL).
		SetClientID(s.opts.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(s.opts.ReconnectInterval).
		SetMaxReconnectInterval(s.opts.ReconnectInterval).
		SetOrderMatters(true)
	if s.opts.Username != "" {
		o.SetUsername(s.opts.Username)
		o.SetPassword(s.opts.Password)
	}
	o.SetOnConnectHandler(func(c mqtt.Client) {
		s.opts.Metrics.TransportConnected()
		logger.Info("mqtt connected", "broker", s.opts.BrokerURL)
		token := c.SubscribeMultiple(filters, onMessage)
		go func() {
			token.Wait()
			if err := token.Error(); err != nil {
				logger.Error("mqtt subscribe failed", "topics", TopicFilters, "error", err)
				return
			}
			logger.Info("mqtt subscribed", "topics", TopicFilters, "qos", s.opts.QoS)
		}()
	})
	o.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", "broker", s.opts.BrokerURL, "error", err)
	})
	o.SetReconnectingHandler(func(_ mqtt.Client, _ *mqtt.ClientOptions) {
		logger.Info("mqtt reconnecting", "broker", s.opts.BrokerURL, "interval", s.opts.ReconnectInterval.String())
	})
	return o
}

func (s *MQTTSubscriber) Start(ctx context.Context, handle MessageHandler) error {
	if handle == nil {
		return fmt.Errorf("message handler is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return fmt.Errorf("mqtt subscriber already started")
	}
	s.client = mqtt.NewClient(s.clientOptions(handle))
	token := s.client.Connect()
	go func() {
		select {
		case <-token.Done():
			if err := token.Error(); err != nil {
				s.opts.Logger.Error("mqtt connect failed", "broker", s.opts.BrokerURL, "error", err)
			}
		case <-ctx.Done():
		}
	}()
	return nil
}

func (s *MQTTSubscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil
	}
	s.client.Disconnect(mqttDisconnectQuiesceMS)
	s.client = nil
	return nil
}
