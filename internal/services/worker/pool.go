// -----------------------------------------------------------------------
// Worker Pool - Fixed-ceiling job execution pipeline
// -----------------------------------------------------------------------

package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scriba/internal/common"
	"github.com/ternarybob/scriba/internal/interfaces"
	"github.com/ternarybob/scriba/internal/models"
	"github.com/ternarybob/scriba/internal/services/merge"
)

// Pool runs transcription jobs with a fixed number of workers. Submitted
// job ids queue FIFO; a job beyond the ceiling simply waits its turn in
// queued status. Every stage transition goes through the job store, which
// is what makes progress observable and crash recovery possible.
type Pool struct {
	concurrency int
	queue       chan string
	jobs        interfaces.JobStorage
	artifacts   interfaces.ArtifactStore
	transcriber interfaces.Transcriber
	diarizer    interfaces.Diarizer
	registry    interfaces.CancellationRegistry
	logger      arbor.ILogger

	wg      sync.WaitGroup
	quit    chan struct{}
	started bool
	mu      sync.Mutex
}

// NewPool creates a worker pool with the given concurrency ceiling.
func NewPool(concurrency, queueDepth int, jobs interfaces.JobStorage, artifacts interfaces.ArtifactStore,
	transcriber interfaces.Transcriber, diarizer interfaces.Diarizer,
	registry interfaces.CancellationRegistry, logger arbor.ILogger) *Pool {
	if concurrency <= 0 {
		concurrency = 2
	}
	if queueDepth <= 0 {
		queueDepth = 100
	}
	return &Pool{
		concurrency: concurrency,
		queue:       make(chan string, queueDepth),
		jobs:        jobs,
		artifacts:   artifacts,
		transcriber: transcriber,
		diarizer:    diarizer,
		registry:    registry,
		logger:      logger,
		quit:        make(chan struct{}),
	}
}

// Start launches the workers and re-enqueues jobs left queued by a
// previous run, oldest first.
func (p *Pool) Start() error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return nil
	}
	p.started = true
	p.mu.Unlock()

	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		id := i
		common.SafeGo(p.logger, fmt.Sprintf("worker-%d", id), func() {
			defer p.wg.Done()
			p.run(id)
		})
	}

	if err := p.requeuePersisted(); err != nil {
		return fmt.Errorf("failed to requeue persisted jobs: %w", err)
	}

	p.logger.Info().Int("workers", p.concurrency).Msg("Worker pool started")
	return nil
}

// Stop drains the pool. In-flight jobs finish their current stage; queued
// jobs stay queued in the store and are picked up on the next start.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()

	close(p.quit)
	p.wg.Wait()
	p.logger.Info().Msg("Worker pool stopped")
}

// Submit enqueues a job id for execution. The job must already exist in
// the store in queued status.
func (p *Pool) Submit(jobID string) error {
	select {
	case p.queue <- jobID:
		return nil
	default:
		return fmt.Errorf("worker queue is full")
	}
}

// requeuePersisted reloads queued jobs from the store in creation order
// and feeds them back into the queue.
func (p *Pool) requeuePersisted() error {
	persisted, err := p.jobs.List(context.Background(), &interfaces.JobListOptions{
		Status: models.JobStatusQueued,
	})
	if err != nil {
		return err
	}
	// List returns newest first; replay oldest first to keep FIFO order.
	for i := len(persisted) - 1; i >= 0; i-- {
		if err := p.Submit(persisted[i].ID); err != nil {
			p.logger.Warn().Err(err).Str("job_id", persisted[i].ID).Msg("Could not requeue persisted job")
		}
	}
	if len(persisted) > 0 {
		p.logger.Info().Int("count", len(persisted)).Msg("Requeued persisted jobs")
	}
	return nil
}

func (p *Pool) run(workerID int) {
	for {
		select {
		case <-p.quit:
			return
		case jobID := <-p.queue:
			p.execute(workerID, jobID)
		}
	}
}

// execute drives one job from queued to a terminal state.
func (p *Pool) execute(workerID int, jobID string) {
	ctx := context.Background()

	job, err := p.jobs.Get(ctx, jobID)
	if err != nil {
		p.logger.Warn().Err(err).Str("job_id", jobID).Msg("Dequeued job not found")
		return
	}
	if job.Status != models.JobStatusQueued {
		// Cancelled (or otherwise finished) while waiting in the queue.
		p.logger.Debug().Str("job_id", jobID).Str("status", string(job.Status)).Msg("Skipping non-queued job")
		return
	}

	runCtx := p.registry.Register(jobID)
	defer p.registry.Unregister(jobID)

	started := time.Now()
	p.logger.Info().Int("worker", workerID).Str("job_id", jobID).Msg("Job started")

	if _, err := p.jobs.Update(ctx, jobID, func(j *models.Job) error {
		j.Status = models.JobStatusProcessing
		j.Progress = 1
		j.ProgressMessage = "starting"
		return nil
	}); err != nil {
		p.logger.Error().Err(err).Str("job_id", jobID).Msg("Could not mark job processing")
		return
	}

	transcript, err := p.process(runCtx, job)
	if err != nil {
		p.finishWithError(ctx, jobID, err)
		return
	}

	transcript.Metadata.ProcessingSeconds = time.Since(started).Seconds()
	if transcript.Metadata.ProcessingSeconds > 0 && transcript.Metadata.AudioSeconds > 0 {
		transcript.Metadata.RealtimeFactor = transcript.Metadata.AudioSeconds / transcript.Metadata.ProcessingSeconds
	}

	ref, err := p.artifacts.Save(ctx, transcript)
	if err != nil {
		p.finishWithError(ctx, jobID, fmt.Errorf("failed to persist result: %w", err))
		return
	}

	if _, err := p.jobs.Update(ctx, jobID, func(j *models.Job) error {
		j.Status = models.JobStatusCompleted
		j.Progress = 100
		j.ProgressMessage = "completed"
		j.ResultRef = ref
		return nil
	}); err != nil {
		p.logger.Error().Err(err).Str("job_id", jobID).Msg("Could not mark job completed")
		return
	}

	p.logger.Info().
		Str("job_id", jobID).
		Float64("audio_seconds", transcript.Metadata.AudioSeconds).
		Dur("elapsed", time.Since(started)).
		Msg("Job completed")
}

// process runs the transcription stages and returns the final transcript.
func (p *Pool) process(runCtx context.Context, job *models.Job) (*models.Transcript, error) {
	sink := func(progress int, message string) {
		p.reportProgress(job.ID, progress, message)
	}

	raw, err := p.transcriber.Transcribe(runCtx, job.SourcePath, job.Parameters, sink)
	if err != nil {
		return nil, err
	}
	if err := runCtx.Err(); err != nil {
		return nil, models.ErrCancelled
	}

	segments := raw.Segments
	notes := ""

	if job.Parameters.EnableDiarization {
		if !p.diarizer.Available() {
			// Soft failure: deliver the transcript without speaker labels.
			notes = "diarization unavailable; transcript has no speaker labels"
			p.logger.Warn().Str("job_id", job.ID).Msg("Diarization unavailable, continuing without speakers")
		} else {
			p.reportProgress(job.ID, 85, "identifying speakers")
			turns, derr := p.diarizer.Diarize(runCtx, job.SourcePath)
			switch {
			case derr == nil:
				segments = merge.MergeSpeakers(segments, turns)
			case errors.Is(derr, models.ErrCancelled):
				return nil, models.ErrCancelled
			case errors.Is(derr, models.ErrDiarizationUnavailable):
				notes = "diarization unavailable; transcript has no speaker labels"
				p.logger.Warn().Err(derr).Str("job_id", job.ID).Msg("Diarization unavailable, continuing without speakers")
			default:
				notes = "diarization failed; transcript has no speaker labels"
				p.logger.Warn().Err(derr).Str("job_id", job.ID).Msg("Diarization failed, continuing without speakers")
			}
			if err := runCtx.Err(); err != nil {
				return nil, models.ErrCancelled
			}
		}
	}

	p.reportProgress(job.ID, 95, "formatting output")

	return &models.Transcript{
		JobID:    job.ID,
		Text:     joinText(segments),
		Language: raw.Language,
		Segments: segments,
		Speakers: models.CollectSpeakers(segments),
		Metadata: models.TranscriptMetadata{
			Model:        raw.Model,
			Device:       raw.Device,
			AudioSeconds: raw.AudioSeconds,
			Notes:        notes,
		},
	}, nil
}

// reportProgress records a progress checkpoint, clamped to [1,99] so 100
// remains reserved for completion.
func (p *Pool) reportProgress(jobID string, progress int, message string) {
	if progress < 1 {
		progress = 1
	}
	if progress > 99 {
		progress = 99
	}
	if _, err := p.jobs.Update(context.Background(), jobID, func(j *models.Job) error {
		if j.Status != models.JobStatusProcessing {
			return fmt.Errorf("job is %s", j.Status)
		}
		if progress > j.Progress {
			j.Progress = progress
		}
		j.ProgressMessage = message
		return nil
	}); err != nil {
		p.logger.Debug().Err(err).Str("job_id", jobID).Msg("Progress update skipped")
	}
}

// finishWithError moves the job to its terminal failure state.
func (p *Pool) finishWithError(ctx context.Context, jobID string, cause error) {
	if errors.Is(cause, models.ErrCancelled) {
		if _, err := p.jobs.Update(ctx, jobID, func(j *models.Job) error {
			j.Status = models.JobStatusCancelled
			j.ProgressMessage = "cancelled"
			return nil
		}); err != nil {
			p.logger.Error().Err(err).Str("job_id", jobID).Msg("Could not mark job cancelled")
		}
		p.logger.Info().Str("job_id", jobID).Msg("Job cancelled")
		return
	}

	kind := models.KindForError(cause)
	if _, err := p.jobs.Update(ctx, jobID, func(j *models.Job) error {
		j.Status = models.JobStatusFailed
		j.ProgressMessage = "failed"
		j.Error = &models.JobError{Kind: kind, Message: cause.Error()}
		return nil
	}); err != nil {
		p.logger.Error().Err(err).Str("job_id", jobID).Msg("Could not mark job failed")
	}
	p.logger.Warn().Err(cause).Str("job_id", jobID).Str("kind", string(kind)).Msg("Job failed")
}

func joinText(segments []models.Segment) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		if t := strings.TrimSpace(s.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}
