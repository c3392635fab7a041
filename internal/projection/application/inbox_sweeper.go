package application

import (
	"context"
	"time"

	"go.uber.org/zap"

	sharedDomain "github.com/enrolab/enrolab/internal/shared/domain"
)

// InboxSweeper purga los marcadores de deduplicación más antiguos que la
// ventana de retención. La deduplicación sigue siendo correcta mientras la
// retención supere la ventana de redelivery del broker.
type InboxSweeper struct {
	guard     sharedDomain.InboxGuard
	retention time.Duration
	interval  time.Duration
	log       *zap.Logger
}

func NewInboxSweeper(guard sharedDomain.InboxGuard, retention, interval time.Duration, log *zap.Logger) *InboxSweeper {
	return &InboxSweeper{
		guard:     guard,
		retention: retention,
		interval:  interval,
		log:       log,
	}
}

// Start inicia el barrido periódico en una goroutine.
func (s *InboxSweeper) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.log.Info("🧹 Inbox sweeper iniciado",
			zap.Duration("retention", s.retention),
			zap.Duration("interval", s.interval),
		)

		for {
			select {
			case <-ctx.Done():
				s.log.Info("🛑 Inbox sweeper detenido.")
				return
			case <-ticker.C:
				s.SweepOnce(ctx)
			}
		}
	}()
}

// SweepOnce ejecuta un barrido.
func (s *InboxSweeper) SweepOnce(ctx context.Context) {
	threshold := time.Now().UTC().Add(-s.retention)
	purged, err := s.guard.PurgeOlderThan(ctx, threshold)
	if err != nil {
		s.log.Warn("⚠️ Fallo al purgar la inbox", zap.Error(err))
		return
	}
	if purged > 0 {
		s.log.Info("🧹 Marcadores de inbox purgados", zap.Int64("count", purged))
	}
}
