// Package sweeper periodically moves collars with a depleted battery into the
// low-battery state.
package sweeper

import (
	"context"
	"time"

	"go.uber.org/zap"

	"livestock-collar-backend/config"
	"livestock-collar-backend/internal/catalog"
	"livestock-collar-backend/internal/model"
	"livestock-collar-backend/internal/store"
)

// LowBatteryMarker is the lifecycle operation the sweeper needs.
type LowBatteryMarker interface {
	MarkLowBattery(ctx context.Context, collarID int64) (*model.Collar, error)
}

// Service runs the battery sweep.
type Service struct {
	cfg    config.SweeperConfig
	store  store.Store
	marker LowBatteryMarker
	log    *zap.Logger
}

// NewService creates a sweeper.
func NewService(cfg config.SweeperConfig, s store.Store, marker LowBatteryMarker, log *zap.Logger) *Service {
	return &Service{cfg: cfg, store: s, marker: marker, log: log.Named("sweeper")}
}

// Run sweeps immediately and then on every interval until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	if !s.cfg.Enabled {
		s.log.Info("battery sweeper is disabled, not starting")
		return
	}
	s.log.Info("starting battery sweeper",
		zap.Duration("interval", s.cfg.Interval),
		zap.Float64("threshold", s.cfg.LowBatteryThreshold))

	s.SweepOnce(ctx)

	timer := time.NewTimer(s.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("battery sweeper shutting down")
			return
		case <-timer.C:
			s.SweepOnce(ctx)
			timer.Reset(s.cfg.Interval)
		}
	}
}

// SweepOnce marks every eligible collar and returns how many were marked.
// Collars already low-battery or defective are left alone.
func (s *Service) SweepOnce(ctx context.Context) int {
	collars, err := s.store.CollarsAtOrBelowBattery(ctx, s.cfg.LowBatteryThreshold,
		[]string{string(catalog.LowBattery), string(catalog.Defective)})
	if err != nil {
		s.log.Error("battery sweep query failed", zap.Error(err))
		return 0
	}

	marked := 0
	for _, c := range collars {
		if ctx.Err() != nil {
			break
		}
		if _, err := s.marker.MarkLowBattery(ctx, c.ID); err != nil {
			s.log.Error("failed to mark collar low-battery", zap.String("code", c.Code), zap.Error(err))
			continue
		}
		marked++
	}
	if marked > 0 {
		s.log.Info("battery sweep complete", zap.Int("marked", marked))
	}
	return marked
}
