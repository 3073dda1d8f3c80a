// Package server wires the daemon: storage, ingest transport, broadcast hub
// and the HTTP listener that serves them.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	dbpkg "github.com/benedict2310/sensorcast/internal/db"
	"github.com/benedict2310/sensorcast/internal/hub"
	"github.com/benedict2310/sensorcast/internal/ingest"
	"github.com/benedict2310/sensorcast/internal/metrics"
	"github.com/benedict2310/sensorcast/internal/store"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	cfg        Config
	logger     *slog.Logger
	version    string
	dataPaths  DataPaths
	db         *sql.DB
	metrics    *metrics.Registry
	store      *store.Store
	hub        *hub.Hub
	gateway    *ingest.Gateway
	subscriber ingest.Subscriber
	listener   net.Listener
	httpServer *http.Server
	errCh      chan error

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

func New(cfg Config, logger *slog.Logger, version string) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if version == "" {
		version = "dev"
	}

	srv := &Server{
		cfg:     cfg,
		logger:  logger,
		version: version,
		metrics: metrics.NewRegistry(),
		errCh:   make(chan error, 1),
	}
	return srv, nil
}

// Start opens and migrates the database, then brings up the store, hub,
// ingest subscriber and HTTP listener in that order. A migration failure
// aborts startup.
func (s *Server) Start() error {
	paths, err := InitDataDir(s.cfg.DataDir)
	if err != nil {
		return err
	}
	s.dataPaths = paths

	dbPath := s.cfg.ResolveDBPath()
	opts := dbpkg.DefaultOptions(dbPath)
	opts.EnableWAL = s.cfg.DBWAL
	sqlDB, err := dbpkg.Open(opts)
	if err != nil {
		return err
	}
	applied, err := dbpkg.RunMigrations(context.Background(), sqlDB)
	if err != nil {
		_ = sqlDB.Close()
		return err
	}
	if applied > 0 {
		s.logger.Info("database migrations applied", "count", applied, "db_path", dbPath)
	}
	s.db = sqlDB

	st, err := store.New(sqlDB, store.Options{
		Logger:  s.logger.With("component", "store"),
		Metrics: s.metrics.StoreMetrics(),
	})
	if err != nil {
		s.closeDB()
		return fmt.Errorf("initialize store: %w", err)
	}
	s.store = st

	sessions := hub.NewSessions(s.cfg.Admin.SessionTTL, nil)
	sessions.SetMaxSessions(s.cfg.Admin.MaxSessions)
	s.hub = hub.New(hub.Options{
		Store:            st,
		Sessions:         sessions,
		AdminPassword:    s.cfg.Admin.Password,
		DefaultTimeRange: store.TimeRange(s.cfg.Hub.DefaultTimeRange),
		MaxRequestBytes:  s.cfg.Hub.MaxRequestBytes,
		Logger:           s.logger.With("component", "hub"),
		Metrics:          s.metrics.HubMetrics(),
	})
	if s.cfg.Admin.Password == "" {
		s.logger.Warn("admin password is not configured; alias changes are disabled")
	}

	s.gateway = ingest.NewGateway(ingest.Options{
		Sink:    ingest.MultiSink{ingest.SinkFunc(s.saveReading), s.hub},
		Logger:  s.logger.With("component", "ingest"),
		Metrics: s.metrics.IngestMetrics(),
	})

	bgCtx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel
	s.startBackground(bgCtx)

	if err := s.startSubscriber(bgCtx); err != nil {
		s.stopBackground()
		s.closeStore(context.Background())
		s.closeDB()
		return err
	}

	mux := http.NewServeMux()
	registerRoutes(mux, s)
	s.httpServer = &http.Server{
		Addr:              s.cfg.ListenAddr(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ln, err := net.Listen("tcp", s.cfg.ListenAddr())
	if err != nil {
		s.stopSubscriber()
		s.stopBackground()
		s.closeStore(context.Background())
		s.closeDB()
		return fmt.Errorf("listen on %s: %w", s.cfg.ListenAddr(), err)
	}
	s.listener = ln

	if !isLoopbackHost(s.cfg.BindAddr) {
		s.logger.Warn("binding to non-loopback address", "bind", s.cfg.BindAddr)
	}

	s.logger.Info("sensorcastd starting",
		"listen_addr", ln.Addr().String(),
		"data_dir", s.cfg.DataDir,
		"db_path", dbPath,
		"transport", s.cfg.Transport.Kind,
		"version", s.version,
	)

	go func() {
		err := s.httpServer.Serve(ln)
		if err != nil && err != http.ErrServerClosed {
			s.errCh <- err
		}
		close(s.errCh)
	}()

	return nil
}

func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}

	select {
	case err := <-s.errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

// Shutdown stops intake first so queued readings can still be flushed to
// the database before it closes.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.listener == nil && s.db == nil {
		return nil
	}

	s.logger.Info("sensorcastd shutting down")
	s.stopSubscriber()
	if s.hub != nil {
		s.hub.Close()
	}
	if s.listener != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}

		if err, ok := <-s.errCh; ok && err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		s.listener = nil
	}
	s.stopBackground()
	if err := s.closeStore(ctx); err != nil {
		return err
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			return fmt.Errorf("close sqlite db: %w", err)
		}
		s.db = nil
	}
	return nil
}

func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) Gateway() *ingest.Gateway {
	return s.gateway
}

func (s *Server) Store() *store.Store {
	return s.store
}

func (s *Server) saveReading(r store.Reading) {
	// Save logs its own queue and insert failures.
	_ = s.store.Save(context.Background(), r)
}

func (s *Server) startSubscriber(ctx context.Context) error {
	kind, err := ingest.ParseTransportKind(s.cfg.Transport.Kind)
	if err != nil {
		return err
	}
	logger := s.logger.With("component", "transport")
	var sub ingest.Subscriber
	switch kind {
	case ingest.TransportNATS:
		sub, err = ingest.NewNATSSubscriber(ingest.NATSOptions{
			URL:               s.cfg.Transport.URL,
			Name:              s.cfg.Transport.ClientID,
			Username:          s.cfg.Transport.Username,
			Password:          s.cfg.Transport.Password,
			ReconnectInterval: s.cfg.Transport.ReconnectInterval,
			Logger:            logger,
			Metrics:           s.metrics.IngestMetrics(),
		})
	default:
		sub, err = ingest.NewMQTTSubscriber(ingest.MQTTOptions{
			BrokerURL:         s.cfg.Transport.URL,
			ClientID:          s.cfg.Transport.ClientID,
			Username:          s.cfg.Transport.Username,
			Password:          s.cfg.Transport.Password,
			QoS:               byte(s.cfg.Transport.QoS),
			ReconnectInterval: s.cfg.Transport.ReconnectInterval,
			Logger:            logger,
			Metrics:           s.metrics.IngestMetrics(),
		})
	}
	if err != nil {
		return fmt.Errorf("initialize %s subscriber: %w", kind, err)
	}
	if err := s.gateway.Subscribe(ctx, kind, sub); err != nil {
		_ = sub.Close()
		return fmt.Errorf("start %s subscriber: %w", kind, err)
	}
	s.subscriber = sub
	return nil
}

func (s *Server) stopSubscriber() {
	if s.subscriber == nil {
		return
	}
	if err := s.subscriber.Close(); err != nil {
		s.logger.Warn("close transport subscriber failed", "error", err)
	}
	s.subscriber = nil
}

func (s *Server) startBackground(ctx context.Context) {
	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		s.hub.Sessions().RunSweeper(ctx, hub.DefaultSweepInterval, s.logger.With("component", "sessions"))
	}()
	if s.cfg.Retention.Days > 0 {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			s.runRetentionLoop(ctx, s.cfg.Retention.Days, s.cfg.Retention.Interval)
		}()
	}
}

func (s *Server) stopBackground() {
	if s.bgCancel == nil {
		return
	}
	s.bgCancel()
	s.bgWG.Wait()
	s.bgCancel = nil
}

func (s *Server) closeStore(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	if err := s.store.Close(ctx); err != nil {
		return fmt.Errorf("flush reading store: %w", err)
	}
	s.store = nil
	return nil
}

func (s *Server) closeDB() {
	if s.db != nil {
		_ = s.db.Close()
		s.db = nil
	}
}

func isLoopbackHost(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsLoopback()
}

func parseLogLevel(level string) (slog.Level, error) {
	switch level {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q (expected debug|info|warn|error)", level)
	}
}

func NewLogger(level string) (*slog.Logger, error) {
	parsed, err := parseLogLevel(level)
	if err != nil {
		return nil, err
	}
	h := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: parsed})
	return slog.New(h), nil
}
