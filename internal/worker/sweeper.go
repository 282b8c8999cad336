package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/danubeai/flexquiz-service/internal/engine"
)

// Sweeper runs the engine sweep on a fixed interval. The first sweep runs
// immediately on start so restarts do not delay overdue quizzes by a full
// interval.
type Sweeper struct {
	engine   *engine.Engine
	interval time.Duration
	logger   zerolog.Logger
	done     chan struct{}
}

func NewSweeper(eng *engine.Engine, interval time.Duration, logger zerolog.Logger) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Sweeper{
		engine:   eng,
		interval: interval,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

func (s *Sweeper) Start(ctx context.Context) {
	go func() {
		defer close(s.done)

		s.logger.Info().Dur("interval", s.interval).Msg("Sweeper started")
		s.engine.Sweep(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info().Msg("Sweeper stopped")
				return
			case <-ticker.C:
				s.engine.Sweep(ctx)
			}
		}
	}()
}

// Stop blocks until the sweep loop has exited. The context passed to Start
// must already be cancelled.
func (s *Sweeper) Stop() {
	<-s.done
}
