// -----------------------------------------------------------------------
// Job Service - Submission validation, queries and cancellation
// -----------------------------------------------------------------------

package jobs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scriba/internal/common"
	"github.com/ternarybob/scriba/internal/interfaces"
	"github.com/ternarybob/scriba/internal/models"
)

// SubmitRequest carries the validated submission parameters for one file.
type SubmitRequest struct {
	FilePath          string `validate:"required"`
	ModelSize         string `validate:"omitempty,oneof=tiny base small medium large large-v2 large-v3"`
	Language          string `validate:"omitempty,min=2,max=8"`
	EnableDiarization bool
	Device            string `validate:"omitempty"`
	ComputeType       string `validate:"omitempty,oneof=float16 int8 float32"`
	OutputFormat      string `validate:"omitempty,oneof=json text srt"`
}

// Service is the submission and query front for the job pipeline. All
// surface adapters (agent tools and HTTP) go through it, so validation
// and error codes stay identical across surfaces.
type Service struct {
	config    *common.Config
	jobs      interfaces.JobStorage
	artifacts interfaces.ArtifactStore
	pool      interfaces.WorkerPool
	registry  interfaces.CancellationRegistry
	validate  *validator.Validate
	logger    arbor.ILogger
}

// NewService creates the job service.
func NewService(config *common.Config, jobs interfaces.JobStorage, artifacts interfaces.ArtifactStore,
	pool interfaces.WorkerPool, registry interfaces.CancellationRegistry, logger arbor.ILogger) *Service {
	return &Service{
		config:    config,
		jobs:      jobs,
		artifacts: artifacts,
		pool:      pool,
		registry:  registry,
		validate:  validator.New(),
		logger:    logger,
	}
}

// Submit validates the request, creates a queued job record and hands it
// to the worker pool. The returned error is always a *models.SurfaceError.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*models.Job, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, models.NewSurfaceError(models.CodeInvalidParameters, err.Error())
	}
	if serr := s.ValidateSourceFile(req.FilePath); serr != nil {
		return nil, serr
	}

	job := models.NewJob(common.NewJobID(), s.parameters(req), req.FilePath, filepath.Base(req.FilePath))
	job.EstimatedSeconds = s.EstimateSeconds(req.FilePath)

	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, models.NewSurfaceError(models.CodeInternalError, fmt.Sprintf("failed to persist job: %v", err))
	}
	if err := s.pool.Submit(job.ID); err != nil {
		// Record survives; the pool re-enqueues queued jobs on restart.
		s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Pool rejected submission, job stays queued")
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Str("file", job.OriginalFilename).
		Str("model", job.Parameters.ModelSize).
		Bool("diarization", job.Parameters.EnableDiarization).
		Msg("Job submitted")
	return job, nil
}

// SubmitBatchMember creates a queued batch-member record without handing
// it to the pool; the batch coordinator controls release order.
func (s *Service) SubmitBatchMember(ctx context.Context, batchID string, req SubmitRequest) (*models.Job, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, models.NewSurfaceError(models.CodeInvalidParameters, err.Error())
	}
	if serr := s.ValidateSourceFile(req.FilePath); serr != nil {
		return nil, serr
	}

	job := models.NewBatchMemberJob(common.NewJobID(), batchID, s.parameters(req), req.FilePath, filepath.Base(req.FilePath))
	job.EstimatedSeconds = s.EstimateSeconds(req.FilePath)

	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, models.NewSurfaceError(models.CodeInternalError, fmt.Sprintf("failed to persist job: %v", err))
	}
	return job, nil
}

// Release hands an already-created queued job to the worker pool.
func (s *Service) Release(jobID string) error {
	return s.pool.Submit(jobID)
}

func (s *Service) parameters(req SubmitRequest) models.JobParameters {
	model := req.ModelSize
	if model == "" {
		model = s.config.Engine.Model
	}
	format := req.OutputFormat
	if format == "" {
		format = "json"
	}
	return models.JobParameters{
		ModelSize:         model,
		Language:          req.Language,
		EnableDiarization: req.EnableDiarization,
		Device:            req.Device,
		ComputeType:       req.ComputeType,
		OutputFormat:      format,
	}
}

// ValidateSourceFile checks existence, readability, format and size.
func (s *Service) ValidateSourceFile(path string) *models.SurfaceError {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return models.NewSurfaceError(models.CodeFileNotFound, fmt.Sprintf("file not found: %s", path))
		}
		return models.NewSurfaceError(models.CodeInvalidFile, fmt.Sprintf("file not readable: %v", err))
	}
	if info.IsDir() {
		return models.NewSurfaceError(models.CodeInvalidFile, fmt.Sprintf("%s is a directory", path))
	}
	if info.Size() == 0 {
		return models.NewSurfaceError(models.CodeInvalidFile, fmt.Sprintf("%s is empty", path))
	}
	if !common.IsSupportedAudioFormat(path) {
		return models.NewSurfaceError(models.CodeUnsupportedFormat,
			fmt.Sprintf("unsupported audio format %s", filepath.Ext(path)))
	}
	if info.Size() > s.config.Limits.MaxFileSize {
		return models.NewSurfaceError(models.CodeFileTooLarge,
			fmt.Sprintf("file is %d bytes, limit is %d", info.Size(), s.config.Limits.MaxFileSize))
	}
	return nil
}

// EstimateSeconds guesses audio duration from file size using typical
// per-format bitrates. Advisory only; the real duration comes from the
// engine output.
func (s *Service) EstimateSeconds(path string) float64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	bytesPerSecond := 16000.0 // ~128 kbit/s compressed
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		bytesPerSecond = 176400 // 16-bit 44.1 kHz stereo PCM
	case ".flac":
		bytesPerSecond = 88000
	}
	return float64(info.Size()) / bytesPerSecond
}

// Get returns the job record or a JOB_NOT_FOUND surface error.
func (s *Service) Get(ctx context.Context, jobID string) (*models.Job, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, models.NewSurfaceError(models.CodeJobNotFound, fmt.Sprintf("job %s not found", jobID))
	}
	return job, nil
}

// Result loads the completed transcript for the job.
func (s *Service) Result(ctx context.Context, jobID string) (*models.Job, *models.Transcript, error) {
	job, err := s.Get(ctx, jobID)
	if err != nil {
		return nil, nil, err
	}
	if job.Status != models.JobStatusCompleted {
		return nil, nil, models.NewSurfaceError(models.CodeJobNotCompleted,
			fmt.Sprintf("job %s is %s", jobID, job.Status))
	}
	transcript, err := s.artifacts.Load(ctx, job.ResultRef)
	if err != nil {
		return nil, nil, models.NewSurfaceError(models.CodeResultNotFound,
			fmt.Sprintf("result for job %s is missing", jobID))
	}
	return job, transcript, nil
}

// List returns job records matching the options, newest first.
func (s *Service) List(ctx context.Context, opts *interfaces.JobListOptions) ([]*models.Job, error) {
	records, err := s.jobs.List(ctx, opts)
	if err != nil {
		return nil, models.NewSurfaceError(models.CodeInternalError, fmt.Sprintf("listing failed: %v", err))
	}
	return records, nil
}

// Count returns the total number of job records, unfiltered.
func (s *Service) Count(ctx context.Context) (int, error) {
	n, err := s.jobs.Count(ctx, "")
	if err != nil {
		return 0, models.NewSurfaceError(models.CodeInternalError, fmt.Sprintf("count failed: %v", err))
	}
	return n, nil
}

// Stats summarizes job counts per status.
type Stats struct {
	Queued     int `json:"queued"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Cancelled  int `json:"cancelled"`
}

// Stats counts jobs per status.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	for status, target := range map[models.JobStatus]*int{
		models.JobStatusQueued:     &stats.Queued,
		models.JobStatusProcessing: &stats.Processing,
		models.JobStatusCompleted:  &stats.Completed,
		models.JobStatusFailed:     &stats.Failed,
		models.JobStatusCancelled:  &stats.Cancelled,
	} {
		n, err := s.jobs.Count(ctx, status)
		if err != nil {
			return nil, err
		}
		*target = n
	}
	return stats, nil
}

// Cancel requests cancellation. Queued jobs move straight to cancelled;
// processing jobs get their token fired and reach cancelled once the
// worker observes it. Terminal jobs cannot be cancelled.
func (s *Service) Cancel(ctx context.Context, jobID string) (*models.Job, error) {
	job, err := s.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	switch job.Status {
	case models.JobStatusQueued:
		updated, uerr := s.jobs.Update(ctx, jobID, func(j *models.Job) error {
			if j.Status != models.JobStatusQueued {
				return fmt.Errorf("job became %s", j.Status)
			}
			j.Status = models.JobStatusCancelled
			j.ProgressMessage = "cancelled before start"
			return nil
		})
		if uerr != nil {
			return nil, models.NewSurfaceError(models.CodeCannotCancel,
				fmt.Sprintf("job %s can no longer be cancelled", jobID))
		}
		s.logger.Info().Str("job_id", jobID).Msg("Queued job cancelled")
		return updated, nil

	case models.JobStatusProcessing:
		if outcome := s.registry.Cancel(jobID, "user request"); outcome != interfaces.CancelOutcomeCancelled {
			return nil, models.NewSurfaceError(models.CodeCannotCancel,
				fmt.Sprintf("job %s just finished and cannot be cancelled", jobID))
		}
		// The worker moves the record to cancelled when it observes the
		// token; report the current record meanwhile.
		return job, nil

	default:
		return nil, models.NewSurfaceError(models.CodeCannotCancel,
			fmt.Sprintf("job %s is already %s", jobID, job.Status))
	}
}

// WaitTerminal blocks until the job reaches a terminal state or the
// context expires. Used by synchronous callers.
func (s *Service) WaitTerminal(ctx context.Context, jobID string, poll time.Duration) (*models.Job, error) {
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		job, err := s.Get(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if job.Status.IsTerminal() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}
