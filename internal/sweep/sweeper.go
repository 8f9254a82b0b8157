// Package sweep periodically reconciles the full roster so role edits made
// outside the commands are picked up.
package sweep

import (
	"context"
	"sync"
	"tierbot/internal/constants"
	"time"

	"github.com/rs/zerolog"
)

// Reconciler runs one full roster pass.
type Reconciler interface {
	Reconcile(ctx context.Context) (int, error)
}

type Sweeper struct {
	reconciler Reconciler
	interval   time.Duration
	logger     zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSweeper(reconciler Reconciler, interval time.Duration, logger zerolog.Logger) *Sweeper {
	return &Sweeper{
		reconciler: reconciler,
		interval:   interval,
		logger:     logger.With().Str("component", "sweep").Logger(),
	}
}

// Start runs a pass immediately and then once per interval until Stop.
// Calling Start on a running sweeper does nothing.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.loop(ctx, s.done)
	s.logger.Info().Dur("interval", s.interval).Msg("sweeper started")
}

// Stop cancels the loop and waits for an in-flight pass to finish, or for
// ctx to expire.
func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		s.logger.Info().Msg("sweeper stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce performs a single pass and returns the changed count.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.SweepTimeout)
	defer cancel()

	start := time.Now()
	changed, err := s.reconciler.Reconcile(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("sweep failed")
		return 0, err
	}

	s.logger.Info().
		Int("changed", changed).
		Dur("duration", time.Since(start)).
		Msg("sweep completed")
	return changed, nil
}

func (s *Sweeper) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		_, _ = s.RunOnce(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
