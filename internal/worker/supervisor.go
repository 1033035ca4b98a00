package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goran-ethernal/MilestoneIndexor/internal/logger"
	"github.com/goran-ethernal/MilestoneIndexor/internal/store"
	"golang.org/x/sync/errgroup"
)

const (
	drainTimeout    = 5 * time.Second
	persistInterval = 5 * time.Second
)

// Supervisor starts all workers, mirrors the status registry to the store,
// and waits for the drain on shutdown. A fatal worker error (anything a
// worker's Run returns besides context cancellation) cancels every other
// worker and propagates, so the process exits nonzero and the orchestrator
// restarts it.
type Supervisor struct {
	workers     []Worker
	registry    *StatusRegistry
	statusStore *store.StatusStore
	log         *logger.Logger
}

// NewSupervisor creates a Supervisor.
func NewSupervisor(registry *StatusRegistry, statusStore *store.StatusStore, log *logger.Logger) *Supervisor {
	return &Supervisor{
		registry:    registry,
		statusStore: statusStore,
		log:         log,
	}
}

// Register adds a worker to be run.
func (s *Supervisor) Register(w Worker) {
	s.workers = append(s.workers, w)
	s.log.Infof("registered worker: %s", w.Name())
}

// Run starts every worker and blocks until the context fires or a worker
// fails fatally. On shutdown it waits up to the drain timeout for workers to
// finish their current batch.
func (s *Supervisor) Run(ctx context.Context) error {
	if len(s.workers) == 0 {
		return fmt.Errorf("no workers registered")
	}

	g, workerCtx := errgroup.WithContext(ctx)

	go s.registry.PersistLoop(workerCtx, s.statusStore, persistInterval, s.log)

	for _, w := range s.workers {
		g.Go(func() error {
			s.log.Infof("starting worker: %s", w.Name())
			err := w.Run(workerCtx)
			s.registry.Set(w.Name(), StateStopped)

			if err != nil && !errors.Is(err, context.Canceled) {
				s.log.Errorf("worker failed fatally: worker=%s err=%v", w.Name(), err)
				return fmt.Errorf("worker %s: %w", w.Name(), err)
			}

			s.log.Infof("worker stopped: %s", w.Name())
			return nil
		})
	}

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
	}

	// Shutdown requested: give workers the drain timeout to finish their
	// current batch, then force the exit.
	select {
	case err := <-done:
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	case <-time.After(drainTimeout):
		s.log.Warn("drain timeout exceeded, forcing shutdown")
		return nil
	}
}
