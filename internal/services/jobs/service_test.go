package jobs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scriba/internal/common"
	"github.com/ternarybob/scriba/internal/interfaces"
	"github.com/ternarybob/scriba/internal/models"
	"github.com/ternarybob/scriba/internal/services/cancel"
	"github.com/ternarybob/scriba/internal/storage"
	badgerstore "github.com/ternarybob/scriba/internal/storage/badger"
)

// recordingPool captures submissions without executing anything.
type recordingPool struct {
	submitted []string
}

func (p *recordingPool) Submit(jobID string) error {
	p.submitted = append(p.submitted, jobID)
	return nil
}
func (p *recordingPool) Start() error { return nil }
func (p *recordingPool) Stop()        {}

type serviceFixture struct {
	config    *common.Config
	jobs      *badgerstore.JobStorage
	artifacts *storage.ArtifactStore
	pool      *recordingPool
	service   *Service
}

func setupService(t *testing.T) *serviceFixture {
	t.Helper()
	logger := arbor.NewLogger()
	dir := t.TempDir()

	cfg := common.NewDefaultConfig()
	cfg.Storage.WorkDir = dir
	cfg.Limits.MaxFileSize = 1024 // small for boundary tests

	db, err := badgerstore.NewBadgerDB(logger, &common.BadgerConfig{Path: filepath.Join(dir, "badger")})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	fx := &serviceFixture{
		config:    cfg,
		jobs:      badgerstore.NewJobStorage(db, nil, logger),
		artifacts: storage.NewArtifactStore(filepath.Join(dir, "results"), logger),
		pool:      &recordingPool{},
	}
	fx.service = NewService(cfg, fx.jobs, fx.artifacts, fx.pool, cancel.NewRegistry(logger), logger)
	return fx
}

func writeAudioFile(t *testing.T, name string, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0644))
	return path
}

func surfaceCode(t *testing.T, err error) string {
	t.Helper()
	serr, ok := err.(*models.SurfaceError)
	require.True(t, ok, "expected *models.SurfaceError, got %T: %v", err, err)
	return serr.Code
}

func TestSubmit(t *testing.T) {
	fx := setupService(t)
	path := writeAudioFile(t, "meeting.mp3", 512)

	job, err := fx.service.Submit(context.Background(), SubmitRequest{
		FilePath:          path,
		ModelSize:         "small",
		EnableDiarization: true,
	})
	require.NoError(t, err)

	assert.Equal(t, models.JobStatusQueued, job.Status)
	assert.Equal(t, "small", job.Parameters.ModelSize)
	assert.True(t, job.Parameters.EnableDiarization)
	assert.Equal(t, "meeting.mp3", job.OriginalFilename)
	assert.Greater(t, job.EstimatedSeconds, 0.0)
	assert.Equal(t, []string{job.ID}, fx.pool.submitted)

	// Record is durable.
	loaded, err := fx.jobs.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, loaded.ID)
}

func TestSubmit_DefaultsFromConfig(t *testing.T) {
	fx := setupService(t)
	path := writeAudioFile(t, "a.mp3", 100)

	job, err := fx.service.Submit(context.Background(), SubmitRequest{FilePath: path})
	require.NoError(t, err)
	assert.Equal(t, fx.config.Engine.Model, job.Parameters.ModelSize)
	assert.Equal(t, "json", job.Parameters.OutputFormat)
}

func TestSubmit_InvalidModelSize(t *testing.T) {
	fx := setupService(t)
	path := writeAudioFile(t, "a.mp3", 100)

	_, err := fx.service.Submit(context.Background(), SubmitRequest{FilePath: path, ModelSize: "gigantic"})
	assert.Equal(t, models.CodeInvalidParameters, surfaceCode(t, err))
}

func TestValidateSourceFile(t *testing.T) {
	fx := setupService(t)

	t.Run("missing", func(t *testing.T) {
		serr := fx.service.ValidateSourceFile(filepath.Join(t.TempDir(), "nope.mp3"))
		require.NotNil(t, serr)
		assert.Equal(t, models.CodeFileNotFound, serr.Code)
	})

	t.Run("directory", func(t *testing.T) {
		serr := fx.service.ValidateSourceFile(t.TempDir())
		require.NotNil(t, serr)
		assert.Equal(t, models.CodeInvalidFile, serr.Code)
	})

	t.Run("empty", func(t *testing.T) {
		serr := fx.service.ValidateSourceFile(writeAudioFile(t, "empty.mp3", 0))
		require.NotNil(t, serr)
		assert.Equal(t, models.CodeInvalidFile, serr.Code)
	})

	t.Run("unsupported format", func(t *testing.T) {
		serr := fx.service.ValidateSourceFile(writeAudioFile(t, "slides.pdf", 100))
		require.NotNil(t, serr)
		assert.Equal(t, models.CodeUnsupportedFormat, serr.Code)
	})

	t.Run("exactly at limit", func(t *testing.T) {
		serr := fx.service.ValidateSourceFile(writeAudioFile(t, "max.mp3", int(fx.config.Limits.MaxFileSize)))
		assert.Nil(t, serr)
	})

	t.Run("one byte over limit", func(t *testing.T) {
		serr := fx.service.ValidateSourceFile(writeAudioFile(t, "big.mp3", int(fx.config.Limits.MaxFileSize)+1))
		require.NotNil(t, serr)
		assert.Equal(t, models.CodeFileTooLarge, serr.Code)
	})
}

func TestEstimateSeconds(t *testing.T) {
	fx := setupService(t)

	mp3 := writeAudioFile(t, "a.mp3", 160000)
	assert.InDelta(t, 10.0, fx.service.EstimateSeconds(mp3), 0.01)

	wav := writeAudioFile(t, "a.wav", 176400)
	assert.InDelta(t, 1.0, fx.service.EstimateSeconds(wav), 0.01)

	assert.Equal(t, 0.0, fx.service.EstimateSeconds("/does/not/exist.mp3"))
}

func TestGet_NotFound(t *testing.T) {
	fx := setupService(t)

	_, err := fx.service.Get(context.Background(), "job_missing")
	assert.Equal(t, models.CodeJobNotFound, surfaceCode(t, err))
}

func TestResult(t *testing.T) {
	fx := setupService(t)
	ctx := context.Background()
	path := writeAudioFile(t, "a.mp3", 100)

	job, err := fx.service.Submit(ctx, SubmitRequest{FilePath: path})
	require.NoError(t, err)

	// Still queued: not completed.
	_, _, rerr := fx.service.Result(ctx, job.ID)
	assert.Equal(t, models.CodeJobNotCompleted, surfaceCode(t, rerr))

	// Completed but artifact missing on disk.
	_, err = fx.jobs.Update(ctx, job.ID, func(j *models.Job) error {
		j.Status = models.JobStatusProcessing
		return nil
	})
	require.NoError(t, err)
	_, err = fx.jobs.Update(ctx, job.ID, func(j *models.Job) error {
		j.Status = models.JobStatusCompleted
		j.Progress = 100
		j.ResultRef = j.ID
		return nil
	})
	require.NoError(t, err)
	_, _, rerr = fx.service.Result(ctx, job.ID)
	assert.Equal(t, models.CodeResultNotFound, surfaceCode(t, rerr))

	// With the artifact in place the transcript comes back.
	_, err = fx.artifacts.Save(ctx, &models.Transcript{JobID: job.ID, Text: "hello", Language: "en"})
	require.NoError(t, err)
	_, transcript, rerr2 := fx.service.Result(ctx, job.ID)
	require.NoError(t, rerr2)
	assert.Equal(t, "hello", transcript.Text)
}

func TestCancel_Queued(t *testing.T) {
	fx := setupService(t)
	ctx := context.Background()
	path := writeAudioFile(t, "a.mp3", 100)

	job, err := fx.service.Submit(ctx, SubmitRequest{FilePath: path})
	require.NoError(t, err)

	cancelled, err := fx.service.Cancel(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, cancelled.Status)
}

func TestCancel_Terminal(t *testing.T) {
	fx := setupService(t)
	ctx := context.Background()
	path := writeAudioFile(t, "a.mp3", 100)

	job, err := fx.service.Submit(ctx, SubmitRequest{FilePath: path})
	require.NoError(t, err)
	_, err = fx.service.Cancel(ctx, job.ID)
	require.NoError(t, err)

	_, err = fx.service.Cancel(ctx, job.ID)
	assert.Equal(t, models.CodeCannotCancel, surfaceCode(t, err))
}

func TestCancel_ProcessingWithoutToken(t *testing.T) {
	fx := setupService(t)
	ctx := context.Background()
	path := writeAudioFile(t, "a.mp3", 100)

	job, err := fx.service.Submit(ctx, SubmitRequest{FilePath: path})
	require.NoError(t, err)
	_, err = fx.jobs.Update(ctx, job.ID, func(j *models.Job) error {
		j.Status = models.JobStatusProcessing
		return nil
	})
	require.NoError(t, err)

	// No registered token means the worker already finished its handoff.
	_, err = fx.service.Cancel(ctx, job.ID)
	assert.Equal(t, models.CodeCannotCancel, surfaceCode(t, err))
}

func TestCount(t *testing.T) {
	fx := setupService(t)
	ctx := context.Background()

	n, err := fx.service.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	for _, id := range []string{"job_1", "job_2", "job_3"} {
		require.NoError(t, fx.jobs.Create(ctx, models.NewJob(id, models.JobParameters{}, "/audio/a.mp3", "a.mp3")))
	}

	n, err = fx.service.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestStats(t *testing.T) {
	fx := setupService(t)
	ctx := context.Background()

	for _, name := range []string{"a.mp3", "b.mp3"} {
		_, err := fx.service.Submit(ctx, SubmitRequest{FilePath: writeAudioFile(t, name, 100)})
		require.NoError(t, err)
	}

	stats, err := fx.service.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Queued)
	assert.Equal(t, 0, stats.Completed)
}

func TestList(t *testing.T) {
	fx := setupService(t)
	ctx := context.Background()

	_, err := fx.service.Submit(ctx, SubmitRequest{FilePath: writeAudioFile(t, "alpha.mp3", 100)})
	require.NoError(t, err)
	_, err = fx.service.Submit(ctx, SubmitRequest{FilePath: writeAudioFile(t, "beta.wav", 100)})
	require.NoError(t, err)

	all, err := fx.service.List(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	found, err := fx.service.List(ctx, &interfaces.JobListOptions{Search: "beta"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "beta.wav", found[0].OriginalFilename)
}
