package worker

import (
	"context"
	"sync"
	"time"

	"github.com/goran-ethernal/MilestoneIndexor/internal/logger"
	"github.com/goran-ethernal/MilestoneIndexor/internal/metrics"
	"github.com/goran-ethernal/MilestoneIndexor/internal/store"
)

// State describes what a worker is currently doing.
type State string

const (
	// StateRunning means the worker is actively processing a batch.
	StateRunning State = "running"

	// StateIdle means the worker is caught up and waiting for new work.
	StateIdle State = "idle"

	// StateError means the worker's last iteration failed; it stays alive
	// and retries.
	StateError State = "error"

	// StateStopped means the worker has exited its loop.
	StateStopped State = "stopped"
)

// Status is one worker's current status snapshot.
type Status struct {
	State       State
	LastError   string
	LastErrorAt time.Time
	UpdatedAt   time.Time
}

// StatusRegistry is the shared in-process worker status service. Workers write
// it, the health endpoint reads it, and a background loop mirrors it to the
// worker_status table for cross-process reads.
type StatusRegistry struct {
	mu       sync.RWMutex
	statuses map[string]Status
}

// NewStatusRegistry creates an empty registry.
func NewStatusRegistry() *StatusRegistry {
	return &StatusRegistry{statuses: make(map[string]Status)}
}

// Set records a worker's state, preserving its last error.
func (r *StatusRegistry) Set(name string, state State) {
	r.mu.Lock()
	defer r.mu.Unlock()

	status := r.statuses[name]
	status.State = state
	status.UpdatedAt = time.Now()
	r.statuses[name] = status

	metrics.WorkerHealthSet(name, state == StateRunning || state == StateIdle)
}

// SetError records a failed iteration.
func (r *StatusRegistry) SetError(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	r.statuses[name] = Status{
		State:       StateError,
		LastError:   err.Error(),
		LastErrorAt: now,
		UpdatedAt:   now,
	}

	metrics.WorkerHealthSet(name, false)
}

// AnyActive reports whether at least one worker is running or idle. The
// health endpoint serves 200 exactly when this holds.
func (r *StatusRegistry) AnyActive() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, status := range r.statuses {
		if status.State == StateRunning || status.State == StateIdle {
			return true
		}
	}
	return false
}

// Snapshot returns a copy of every worker's status.
func (r *StatusRegistry) Snapshot() map[string]Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Status, len(r.statuses))
	for name, status := range r.statuses {
		out[name] = status
	}
	return out
}

// PersistLoop mirrors the registry to the worker_status table at the given
// interval until the context fires.
func (r *StatusRegistry) PersistLoop(ctx context.Context, statusStore *store.StatusStore, interval time.Duration, log *logger.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.persist(statusStore, log)
			return
		case <-ticker.C:
			r.persist(statusStore, log)
		}
	}
}

func (r *StatusRegistry) persist(statusStore *store.StatusStore, log *logger.Logger) {
	for name, status := range r.Snapshot() {
		var lastError *string
		var lastErrorAt *int64
		if status.LastError != "" {
			e := status.LastError
			at := status.LastErrorAt.Unix()
			lastError = &e
			lastErrorAt = &at
		}

		if err := statusStore.Upsert(name, string(status.State), lastError, lastErrorAt); err != nil {
			log.Warnf("failed to persist worker status: worker=%s err=%v", name, err)
		}
	}
}
