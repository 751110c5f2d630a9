// -----------------------------------------------------------------------
// Retention Sweeper - Scheduled deletion of expired terminal jobs
// -----------------------------------------------------------------------

package cleanup

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scriba/internal/common"
	"github.com/ternarybob/scriba/internal/interfaces"
)

// snapshotForgetter drops a job's cached progress snapshot once its
// record is gone. The progress broker implements it.
type snapshotForgetter interface {
	Forget(jobID string)
}

// Sweeper deletes terminal job records past the retention horizon on a
// cron schedule, together with their result artifacts, uploaded source
// files, cached progress snapshots, and batch records whose members are
// all gone. Active jobs are never touched.
type Sweeper struct {
	config    *common.Config
	jobs      interfaces.JobStorage
	batches   interfaces.BatchStorage
	artifacts interfaces.ArtifactStore
	broker    snapshotForgetter
	cron      *cron.Cron
	logger    arbor.ILogger
}

// NewSweeper creates a retention sweeper. Call Start to begin sweeping.
func NewSweeper(config *common.Config, jobs interfaces.JobStorage, batches interfaces.BatchStorage,
	artifacts interfaces.ArtifactStore, broker snapshotForgetter, logger arbor.ILogger) *Sweeper {
	return &Sweeper{
		config:    config,
		jobs:      jobs,
		batches:   batches,
		artifacts: artifacts,
		broker:    broker,
		cron:      cron.New(),
		logger:    logger,
	}
}

// Start registers the schedule, runs one sweep immediately to clear any
// backlog from downtime, and starts the cron loop.
func (s *Sweeper) Start() error {
	schedule := s.config.Retention.SweepSchedule
	if schedule == "" {
		schedule = "@hourly"
	}
	if _, err := s.cron.AddFunc(schedule, s.Sweep); err != nil {
		return err
	}

	common.SafeGo(s.logger, "retention-initial-sweep", s.Sweep)
	s.cron.Start()

	s.logger.Info().
		Str("schedule", schedule).
		Int("retain_hours", s.config.Retention.RetainHours).
		Msg("Retention sweeper started")
	return nil
}

// Stop halts the cron loop, waiting for a running sweep to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// Sweep deletes expired terminal jobs and their artifacts.
func (s *Sweeper) Sweep() {
	horizon := time.Duration(s.config.Retention.RetainHours) * time.Hour
	if horizon <= 0 {
		horizon = 48 * time.Hour
	}

	deleted, err := s.jobs.DeleteTerminalOlderThan(context.Background(), horizon)
	if err != nil {
		s.logger.Error().Err(err).Msg("Retention sweep failed")
		return
	}
	if len(deleted) == 0 {
		s.logger.Debug().Msg("Retention sweep found nothing to delete")
		return
	}

	touched := make(map[string]struct{})
	for _, job := range deleted {
		if job.ResultRef != "" {
			if err := s.artifacts.Delete(context.Background(), job.ResultRef); err != nil {
				s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Could not delete result artifact")
			}
		}
		s.removeUpload(job.SourcePath)
		s.broker.Forget(job.ID)
		if job.BatchID != "" {
			touched[job.BatchID] = struct{}{}
		}
	}
	s.removeEmptyBatches(touched)

	s.logger.Info().Int("deleted", len(deleted)).Msg("Retention sweep complete")
}

// removeEmptyBatches deletes batch records whose member jobs have all
// been swept. A batch with any surviving member is kept.
func (s *Sweeper) removeEmptyBatches(batchIDs map[string]struct{}) {
	if s.batches == nil {
		return
	}
	ctx := context.Background()
	for id := range batchIDs {
		batch, err := s.batches.Get(ctx, id)
		if err != nil {
			continue
		}
		live := false
		for _, memberID := range batch.MemberJobIDs {
			if _, err := s.jobs.Get(ctx, memberID); err == nil {
				live = true
				break
			}
		}
		if live {
			continue
		}
		if err := s.batches.Delete(ctx, id); err != nil {
			s.logger.Warn().Err(err).Str("batch_id", id).Msg("Could not delete swept batch")
			continue
		}
		s.logger.Debug().Str("batch_id", id).Msg("Deleted batch with no surviving members")
	}
}

// removeUpload deletes the source file only when it lives inside the
// managed uploads directory; caller-owned paths are left alone.
func (s *Sweeper) removeUpload(path string) {
	uploads := s.config.UploadsDir()
	if path == "" || uploads == "" {
		return
	}
	if !strings.HasPrefix(path, uploads+string(os.PathSeparator)) {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.logger.Warn().Err(err).Str("path", path).Msg("Could not delete uploaded source file")
	}
}
