// internal/scheduler/scheduler.go
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/rainbowcity/dialogue/internal/lifecycle"
	"github.com/rainbowcity/dialogue/internal/telemetry"
	"github.com/rainbowcity/dialogue/internal/types"
)

// cronParser accepts both standard 5-field cron expressions and 6-field
// expressions with an optional seconds field.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Sweeper periodically scans open turns and marks the ones whose response
// window has lapsed as unresponded. A later reply can still recover such a
// turn; the sweep only records that the window was missed.
type Sweeper struct {
	turns         types.TurnStore
	lifecycle     *lifecycle.Controller
	logger        *zap.Logger
	metrics       *telemetry.Metrics
	schedule      string
	defaultWindow time.Duration
	cron          *cron.Cron
}

// New creates a sweeper. schedule is a cron expression, seconds field
// optional; defaultWindow applies to turns that carry no window of their
// own.
func New(turns types.TurnStore, lc *lifecycle.Controller, logger *zap.Logger, metrics *telemetry.Metrics, schedule string, defaultWindow time.Duration) *Sweeper {
	if metrics == nil {
		metrics = telemetry.NewNopMetrics()
	}
	if defaultWindow <= 0 {
		defaultWindow = 30 * time.Minute
	}
	return &Sweeper{
		turns:         turns,
		lifecycle:     lc,
		logger:        telemetry.Component(logger, "sweeper"),
		metrics:       metrics,
		schedule:      schedule,
		defaultWindow: defaultWindow,
		cron:          cron.New(cron.WithParser(cronParser)),
	}
}

// Start registers the sweep as a cron entry and starts the ticker.
func (s *Sweeper) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.schedule, func() {
		if n, err := s.Sweep(ctx); err != nil {
			s.logger.Error("sweep failed", zap.Error(err))
		} else if n > 0 {
			s.logger.Info("swept stale turns", zap.Int("count", n))
		}
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop stops the cron ticker.
func (s *Sweeper) Stop() {
	s.cron.Stop()
}

// Sweep runs one pass over the open turns and returns how many it moved to
// unresponded. Individual turn failures are logged and skipped so one bad
// record cannot stall the sweep.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	open, err := s.turns.Open(ctx)
	if err != nil {
		return 0, err
	}

	now := time.Now()
	swept := 0
	for _, turn := range open {
		window := s.windowFor(turn)
		if now.Sub(turn.StartedAt) < window {
			continue
		}
		if err := s.lifecycle.MarkUnresponded(ctx, turn); err != nil {
			s.logger.Warn("could not mark turn unresponded",
				zap.String("turn_id", string(turn.ID)),
				zap.Error(err))
			continue
		}
		s.metrics.TurnsSwept.Inc()
		swept++
	}
	return swept, nil
}

// windowFor reads the turn's expected response window from its metadata,
// falling back to the sweeper default. JSON decoding delivers numbers as
// float64, so both numeric forms are accepted.
func (s *Sweeper) windowFor(turn *types.Turn) time.Duration {
	if turn.Metadata == nil {
		return s.defaultWindow
	}
	switch v := turn.Metadata["expected_window_minutes"].(type) {
	case float64:
		if v > 0 {
			return time.Duration(v * float64(time.Minute))
		}
	case int:
		if v > 0 {
			return time.Duration(v) * time.Minute
		}
	}
	return s.defaultWindow
}
