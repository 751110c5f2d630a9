// -----------------------------------------------------------------------
// Job Storage - Durable job records with per-id serialized updates
// -----------------------------------------------------------------------

package badger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scriba/internal/interfaces"
	"github.com/ternarybob/scriba/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// JobStorage implements interfaces.JobStorage on badgerhold. Updates are
// serialized per job id; every committed update emits a change
// notification to the injected notifier (the progress broker). The store
// is the only component that publishes progress events.
type JobStorage struct {
	db       *BadgerDB
	logger   arbor.ILogger
	notifier interfaces.Notifier

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewJobStorage creates a new JobStorage instance. notifier may be nil
// (updates are then silent), which tests use.
func NewJobStorage(db *BadgerDB, notifier interfaces.Notifier, logger arbor.ILogger) *JobStorage {
	return &JobStorage{
		db:       db,
		logger:   logger,
		notifier: notifier,
		locks:    make(map[string]*sync.Mutex),
	}
}

// SetNotifier wires the progress broker after construction. The broker
// needs the store for snapshots, so the two are linked in two steps.
func (s *JobStorage) SetNotifier(n interfaces.Notifier) {
	s.notifier = n
}

// lockFor returns the mutex serializing writes for one job id. Entries
// are never removed: a goroutine may still hold a reference to the
// mutex, and removing the map entry would let a concurrent Update run
// under a different instance.
func (s *JobStorage) lockFor(jobID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[jobID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[jobID] = l
	}
	return l
}

// Create writes a new job record. Fails with models.ErrAlreadyExists if
// the id is taken.
func (s *JobStorage) Create(ctx context.Context, job *models.Job) error {
	if job.ID == "" {
		return fmt.Errorf("job ID is required")
	}
	if err := s.db.Store().Insert(job.ID, job); err != nil {
		if errors.Is(err, badgerhold.ErrKeyExists) {
			return fmt.Errorf("%w: %s", models.ErrAlreadyExists, job.ID)
		}
		return fmt.Errorf("failed to create job: %w", err)
	}

	s.logger.Debug().Str("job_id", job.ID).Str("status", string(job.Status)).Msg("Job created")
	s.notify(job)
	return nil
}

// Get returns the current job record.
func (s *JobStorage) Get(ctx context.Context, jobID string) (*models.Job, error) {
	var job models.Job
	if err := s.db.Store().Get(jobID, &job); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", models.ErrNotFound, jobID)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

// Update loads the record, applies the mutator under the per-id lock,
// validates the status transition, writes durably, and emits a broker
// event. The write is retried with bounded exponential backoff; a
// persistent store failure escalates the job to failed with server kind.
func (s *JobStorage) Update(ctx context.Context, jobID string, mutate func(*models.Job) error) (*models.Job, error) {
	lock := s.lockFor(jobID)
	lock.Lock()
	defer lock.Unlock()

	job, err := s.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	before := job.Status
	if err := mutate(job); err != nil {
		return nil, err
	}

	if !before.CanTransitionTo(job.Status) {
		return nil, fmt.Errorf("%w: %s -> %s", models.ErrIllegalTransition, before, job.Status)
	}
	job.UpdatedAt = time.Now().UTC()

	if err := s.upsertWithRetry(job); err != nil {
		s.logger.Error().Err(err).Str("job_id", jobID).Msg("Persistent store failure during update")
		// Best-effort escalation to failed; the record may be unreachable.
		job.Status = models.JobStatusFailed
		job.Error = &models.JobError{Kind: models.ErrorKindServer, Message: "store update failed: " + err.Error()}
		if e2 := s.db.Store().Upsert(job.ID, job); e2 == nil {
			s.notify(job)
		}
		return nil, fmt.Errorf("failed to update job: %w", err)
	}

	s.notify(job)
	return job, nil
}

// upsertWithRetry retries transient badger write failures. Conflicts are
// expected under GC pressure and resolve quickly.
func (s *JobStorage) upsertWithRetry(job *models.Job) error {
	var err error
	backoff := 10 * time.Millisecond
	for attempt := 0; attempt < 5; attempt++ {
		if err = s.db.Store().Upsert(job.ID, job); err == nil {
			return nil
		}
		time.Sleep(backoff)
		backoff *= 2
	}
	return err
}

func (s *JobStorage) notify(job *models.Job) {
	if s.notifier == nil {
		return
	}
	s.notifier.Publish(models.EventForJob(job))
}

// List returns jobs matching the filter, ordered by created_at desc.
func (s *JobStorage) List(ctx context.Context, opts *interfaces.JobListOptions) ([]*models.Job, error) {
	query := badgerhold.Where("ID").Ne("")

	if opts != nil {
		if opts.Status != "" {
			query = query.And("Status").Eq(opts.Status)
		}
		if opts.BatchID != "" {
			query = query.And("BatchID").Eq(opts.BatchID)
		}
		if opts.ActiveOnly {
			query = query.And("Status").In(models.JobStatusQueued, models.JobStatusProcessing)
		}
		if !opts.DateFrom.IsZero() {
			query = query.And("CreatedAt").Ge(opts.DateFrom)
		}
		if !opts.DateTo.IsZero() {
			query = query.And("CreatedAt").Le(opts.DateTo)
		}
	}
	query = query.SortBy("CreatedAt").Reverse()

	var jobs []models.Job
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	// Filename substring search and limit are applied post-query;
	// badgerhold has no substring operator.
	result := make([]*models.Job, 0, len(jobs))
	for i := range jobs {
		if opts != nil && opts.Search != "" &&
			!strings.Contains(strings.ToLower(jobs[i].OriginalFilename), strings.ToLower(opts.Search)) {
			continue
		}
		result = append(result, &jobs[i])
	}
	if opts != nil && opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return []*models.Job{}, nil
		}
		result = result[opts.Offset:]
	}
	if opts != nil && opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}
	return result, nil
}

// Count returns the number of jobs with the given status (all jobs when
// status is empty).
func (s *JobStorage) Count(ctx context.Context, status models.JobStatus) (int, error) {
	query := badgerhold.Where("ID").Ne("")
	if status != "" {
		query = query.And("Status").Eq(status)
	}
	n, err := s.db.Store().Count(&models.Job{}, query)
	if err != nil {
		return 0, fmt.Errorf("failed to count jobs: %w", err)
	}
	return int(n), nil
}

// DeleteTerminalOlderThan removes terminal jobs whose updated_at is older
// than the horizon and returns the deleted records so the caller can
// remove their artifacts. Active jobs are never eligible.
func (s *JobStorage) DeleteTerminalOlderThan(ctx context.Context, horizon time.Duration) ([]*models.Job, error) {
	cutoff := time.Now().UTC().Add(-horizon)

	var jobs []models.Job
	query := badgerhold.Where("Status").In(models.JobStatusCompleted, models.JobStatusFailed, models.JobStatusCancelled).
		And("UpdatedAt").Lt(cutoff)
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to find expired jobs: %w", err)
	}

	deleted := make([]*models.Job, 0, len(jobs))
	for i := range jobs {
		lock := s.lockFor(jobs[i].ID)
		lock.Lock()
		err := s.db.Store().Delete(jobs[i].ID, &models.Job{})
		lock.Unlock()
		if err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
			s.logger.Warn().Err(err).Str("job_id", jobs[i].ID).Msg("Failed to delete expired job")
			continue
		}
		deleted = append(deleted, &jobs[i])
	}
	return deleted, nil
}

// RecoverInterrupted marks jobs left in processing by a previous run as
// failed with server kind. Crash recovery policy: no resume.
func (s *JobStorage) RecoverInterrupted(ctx context.Context) (int, error) {
	var jobs []models.Job
	if err := s.db.Store().Find(&jobs, badgerhold.Where("Status").Eq(models.JobStatusProcessing)); err != nil {
		return 0, fmt.Errorf("failed to scan for interrupted jobs: %w", err)
	}

	recovered := 0
	for i := range jobs {
		_, err := s.Update(ctx, jobs[i].ID, func(j *models.Job) error {
			j.Status = models.JobStatusFailed
			j.Error = &models.JobError{
				Kind:    models.ErrorKindServer,
				Message: "interrupted by service restart",
			}
			return nil
		})
		if err != nil {
			s.logger.Warn().Err(err).Str("job_id", jobs[i].ID).Msg("Failed to recover interrupted job")
			continue
		}
		recovered++
	}
	if recovered > 0 {
		s.logger.Info().Int("count", recovered).Msg("Marked interrupted jobs as failed")
	}
	return recovered, nil
}
