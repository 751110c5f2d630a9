// -----------------------------------------------------------------------
// Cancellation Registry - Cooperative cancellation tokens for active jobs
// -----------------------------------------------------------------------

package cancel

import (
	"context"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scriba/internal/interfaces"
)

// Registry maps in-flight job ids to cancellation tokens. Workers
// register a job when they pick it up and check the token at stage
// boundaries; the engine adapter turns it into a subprocess signal.
type Registry struct {
	mu      sync.Mutex
	entries map[string]context.CancelFunc
	logger  arbor.ILogger
}

// NewRegistry creates an empty cancellation registry.
func NewRegistry(logger arbor.ILogger) *Registry {
	return &Registry{
		entries: make(map[string]context.CancelFunc),
		logger:  logger,
	}
}

// Register creates and records a cancellation context for the job.
// Registering an id twice replaces the previous token.
func (r *Registry) Register(jobID string) context.Context {
	ctx, cancelFn := context.WithCancel(context.Background())
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.entries[jobID]; ok {
		old()
	}
	r.entries[jobID] = cancelFn
	return ctx
}

// Cancel fires the job's token. Unknown ids (never registered, already
// finished, already cancelled) are not cancellable.
func (r *Registry) Cancel(jobID string, reason string) interfaces.CancelOutcome {
	r.mu.Lock()
	cancelFn, ok := r.entries[jobID]
	if ok {
		delete(r.entries, jobID)
	}
	r.mu.Unlock()

	if !ok {
		return interfaces.CancelOutcomeNotCancellable
	}

	r.logger.Info().Str("job_id", jobID).Str("reason", reason).Msg("Cancellation requested")
	cancelFn()
	return interfaces.CancelOutcomeCancelled
}

// Unregister releases the job's token without firing it. Called by the
// worker when the job reaches a terminal state.
func (r *Registry) Unregister(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cancelFn, ok := r.entries[jobID]; ok {
		cancelFn() // release the context's resources
		delete(r.entries, jobID)
	}
}

// ActiveCount returns the number of registered tokens.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
