package server

import (
	"context"
	"time"
)

const retentionCleanupTimeout = 30 * time.Second

// runRetentionLoop deletes expired readings once at startup and then on
// every interval until ctx is cancelled.
func (s *Server) runRetentionLoop(ctx context.Context, days int, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.runRetentionCleanup(ctx, days)
	for {
		select {
		case <-ticker.C:
			s.runRetentionCleanup(ctx, days)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) runRetentionCleanup(ctx context.Context, days int) {
	if days <= 0 || s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, retentionCleanupTimeout)
	defer cancel()

	deleted, err := s.store.RetentionCleanup(ctx, days)
	if err != nil {
		s.logger.Warn("retention cleanup failed", "retention_days", days, "error", err)
		return
	}
	if deleted > 0 {
		s.logger.Info("retention cleanup complete", "retention_days", days, "deleted", deleted)
	}
}
