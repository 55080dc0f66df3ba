package reservation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopcore/stockhold/internal/domain/stock"
	"github.com/shopcore/stockhold/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Sweeper reclaims holds whose TTL has elapsed. It reads due reservations
// from storage on every run, so a restarted process resumes where the
// previous one stopped.
type Sweeper struct {
	manager         *Manager
	reservationRepo stock.ReservationRepository
	batchSize       int
	logger          *zap.Logger
	metrics         *telemetry.ReservationMetrics
}

// NewSweeper creates a new Sweeper
func NewSweeper(manager *Manager, reservationRepo stock.ReservationRepository, batchSize int, logger *zap.Logger) *Sweeper {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		manager:         manager,
		reservationRepo: reservationRepo,
		batchSize:       batchSize,
		logger:          logger,
	}
}

// SetMetrics sets the metrics collector
func (s *Sweeper) SetMetrics(metrics *telemetry.ReservationMetrics) {
	s.metrics = metrics
}

// PendingCount returns how many open reservations are past due
func (s *Sweeper) PendingCount(ctx context.Context) (int64, error) {
	return s.reservationRepo.CountDue(ctx, s.manager.now())
}

// Sweep expires every reservation that is due at the start of the run.
// A failure on one reservation is logged and counted; it never stops the
// sweep or fails the call. Only a failure to list due reservations is returned.
func (s *Sweeper) Sweep(ctx context.Context) (*SweepStats, error) {
	started := time.Now()
	cutoff := s.manager.now()
	stats := &SweepStats{ProcessedAt: cutoff}

	attempted := make(map[uuid.UUID]struct{})
	for {
		due, err := s.reservationRepo.FindDue(ctx, cutoff, s.batchSize)
		if err != nil {
			s.logger.Error("Failed to find due reservations", zap.Error(err))
			return nil, err
		}

		fresh := 0
		for i := range due {
			if ctx.Err() != nil {
				stats.Duration = time.Since(started)
				return stats, nil
			}
			// failed rows stay open and due, so later batches return them again
			if _, seen := attempted[due[i].ID]; seen {
				continue
			}
			attempted[due[i].ID] = struct{}{}
			fresh++
			stats.TotalDue++
			s.expireOne(ctx, &due[i], stats)
		}

		if fresh == 0 || len(due) < s.batchSize {
			break
		}
	}

	stats.Duration = time.Since(started)
	if s.metrics != nil {
		s.metrics.RecordExpired(ctx, stats.Expired)
	}

	if stats.TotalDue == 0 {
		s.logger.Debug("No due reservations found")
		return stats, nil
	}
	s.logger.Info("Completed reservation sweep",
		zap.Int("total", stats.TotalDue),
		zap.Int("expired", stats.Expired),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed),
		zap.Duration("duration", stats.Duration),
	)
	return stats, nil
}

func (s *Sweeper) expireOne(ctx context.Context, r *stock.Reservation, stats *SweepStats) {
	_, err := s.manager.Expire(ctx, r.ID)
	switch stock.KindOf(err) {
	case stock.KindNone:
		stats.Expired++
	case stock.KindAlreadyTerminal:
		stats.Skipped++
	default:
		stats.Failed++
		s.logger.Error("Failed to expire reservation",
			zap.String("reservation_id", r.ID.String()),
			zap.String("sku", r.SKU.String()),
			zap.Int64("quantity", r.Quantity),
			zap.Error(err),
		)
	}
}
