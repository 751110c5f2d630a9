package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/scriba/internal/models"
)

// JobListOptions filters and pages the job listing.
type JobListOptions struct {
	Status     models.JobStatus // empty = all statuses
	BatchID    string           // empty = all batches
	Search     string           // filename substring match
	DateFrom   time.Time        // zero = unbounded
	DateTo     time.Time        // zero = unbounded
	Limit      int              // 0 = no limit
	Offset     int
	ActiveOnly bool // queued + processing only
}

// JobStorage is the durable job record store. All mutations go through
// Update, which serializes writes per job id, validates the status
// transition, and emits a change notification to the progress broker.
type JobStorage interface {
	Create(ctx context.Context, job *models.Job) error
	Get(ctx context.Context, jobID string) (*models.Job, error)
	Update(ctx context.Context, jobID string, mutate func(*models.Job) error) (*models.Job, error)
	List(ctx context.Context, opts *JobListOptions) ([]*models.Job, error)
	Count(ctx context.Context, status models.JobStatus) (int, error)
	DeleteTerminalOlderThan(ctx context.Context, horizon time.Duration) ([]*models.Job, error)

	// RecoverInterrupted marks jobs left in processing by a previous run as
	// failed with a server-kind error. Called once during startup rehydration.
	RecoverInterrupted(ctx context.Context) (int, error)
}

// BatchStorage persists batch grouping records.
type BatchStorage interface {
	Create(ctx context.Context, batch *models.Batch) error
	Get(ctx context.Context, batchID string) (*models.Batch, error)
	Delete(ctx context.Context, batchID string) error
}

// ArtifactStore persists completed transcription artifacts on the
// filesystem, keyed by job id. The returned ref is an opaque handle
// stored in the job record.
type ArtifactStore interface {
	Save(ctx context.Context, transcript *models.Transcript) (ref string, err error)
	Load(ctx context.Context, ref string) (*models.Transcript, error)
	Delete(ctx context.Context, ref string) error
}

// StorageManager aggregates the storage backends behind one lifecycle.
type StorageManager interface {
	JobStorage() JobStorage
	BatchStorage() BatchStorage
	ArtifactStore() ArtifactStore
	Close() error
}
