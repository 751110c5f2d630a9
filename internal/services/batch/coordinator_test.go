package batch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scriba/internal/common"
	"github.com/ternarybob/scriba/internal/interfaces"
	"github.com/ternarybob/scriba/internal/models"
	"github.com/ternarybob/scriba/internal/services/broker"
	"github.com/ternarybob/scriba/internal/services/cancel"
	"github.com/ternarybob/scriba/internal/services/jobs"
	"github.com/ternarybob/scriba/internal/services/worker"
	"github.com/ternarybob/scriba/internal/storage"
	badgerstore "github.com/ternarybob/scriba/internal/storage/badger"
)

// stubTranscriber completes instantly with a fixed transcript.
type stubTranscriber struct{}

func (stubTranscriber) Transcribe(ctx context.Context, sourcePath string, params models.JobParameters, sink interfaces.ProgressSink) (*interfaces.RawTranscription, error) {
	sink(50, "transcribing audio")
	return &interfaces.RawTranscription{
		Segments:     []models.Segment{{Start: 0, End: 1, Text: "ok"}},
		Language:     "en",
		AudioSeconds: 1,
		Device:       "cpu",
		Model:        "base",
	}, nil
}

// gatedTranscriber blocks every call until release is closed and records
// the peak number of simultaneous calls.
type gatedTranscriber struct {
	mu      sync.Mutex
	current int
	peak    int
	release chan struct{}
}

func (g *gatedTranscriber) Transcribe(ctx context.Context, sourcePath string, params models.JobParameters, sink interfaces.ProgressSink) (*interfaces.RawTranscription, error) {
	g.mu.Lock()
	g.current++
	if g.current > g.peak {
		g.peak = g.current
	}
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		g.current--
		g.mu.Unlock()
	}()

	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, models.ErrCancelled
	}
	return &interfaces.RawTranscription{
		Segments:     []models.Segment{{Start: 0, End: 1, Text: "ok"}},
		Language:     "en",
		AudioSeconds: 1,
		Device:       "cpu",
		Model:        "base",
	}, nil
}

func (g *gatedTranscriber) peakConcurrency() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.peak
}

type stubDiarizer struct{}

func (stubDiarizer) Available() bool { return false }
func (stubDiarizer) Diarize(ctx context.Context, sourcePath string) ([]models.DiarizationTurn, error) {
	return nil, models.ErrDiarizationUnavailable
}

type coordinatorFixture struct {
	config      *common.Config
	coordinator *Coordinator
	service     *jobs.Service
}

func setupCoordinator(t *testing.T) *coordinatorFixture {
	t.Helper()
	return setupCoordinatorWith(t, stubTranscriber{})
}

func setupCoordinatorWith(t *testing.T, transcriber interfaces.Transcriber) *coordinatorFixture {
	t.Helper()
	logger := arbor.NewLogger()
	dir := t.TempDir()

	cfg := common.NewDefaultConfig()
	cfg.Storage.WorkDir = dir

	db, err := badgerstore.NewBadgerDB(logger, &common.BadgerConfig{Path: filepath.Join(dir, "badger")})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	events := broker.NewService(logger)
	jobStore := badgerstore.NewJobStorage(db, events, logger)
	batchStore := badgerstore.NewBatchStorage(db, logger)
	artifacts := storage.NewArtifactStore(filepath.Join(dir, "results"), logger)
	registry := cancel.NewRegistry(logger)

	pool := worker.NewPool(2, 50, jobStore, artifacts, transcriber, stubDiarizer{}, registry, logger)
	require.NoError(t, pool.Start())
	t.Cleanup(pool.Stop)

	service := jobs.NewService(cfg, jobStore, artifacts, pool, registry, logger)
	return &coordinatorFixture{
		config:      cfg,
		coordinator: NewCoordinator(cfg, service, batchStore, events, logger),
		service:     service,
	}
}

func audioFiles(t *testing.T, n int) []string {
	t.Helper()
	dir := t.TempDir()
	files := make([]string, 0, n)
	for i := 0; i < n; i++ {
		path := filepath.Join(dir, "file"+string(rune('a'+i))+".mp3")
		require.NoError(t, os.WriteFile(path, []byte("audio"), 0644))
		files = append(files, path)
	}
	return files
}

func TestBatchSubmit_Empty(t *testing.T) {
	fx := setupCoordinator(t)

	_, err := fx.coordinator.Submit(context.Background(), nil, jobs.SubmitRequest{}, 0)
	serr, ok := err.(*models.SurfaceError)
	require.True(t, ok)
	assert.Equal(t, models.CodeNoValidFiles, serr.Code)
}

func TestBatchSubmit_TooLarge(t *testing.T) {
	fx := setupCoordinator(t)

	_, err := fx.coordinator.Submit(context.Background(), audioFiles(t, 11), jobs.SubmitRequest{}, 0)
	serr, ok := err.(*models.SurfaceError)
	require.True(t, ok)
	assert.Equal(t, models.CodeBatchTooLarge, serr.Code)
}

func TestBatchSubmit_AtLimit(t *testing.T) {
	fx := setupCoordinator(t)

	result, err := fx.coordinator.Submit(context.Background(), audioFiles(t, 10), jobs.SubmitRequest{}, 0)
	require.NoError(t, err)
	assert.Len(t, result.Jobs, 10)
	assert.Empty(t, result.Rejected)
}

func TestBatchSubmit_MixedValidity(t *testing.T) {
	fx := setupCoordinator(t)
	files := audioFiles(t, 2)
	files = append(files, "/does/not/exist.mp3")

	result, err := fx.coordinator.Submit(context.Background(), files, jobs.SubmitRequest{}, 0)
	require.NoError(t, err)
	assert.Len(t, result.Jobs, 2)
	require.Len(t, result.Rejected, 1)
	assert.Equal(t, models.CodeFileNotFound, result.Rejected[0].Code)
	assert.Equal(t, "/does/not/exist.mp3", result.Rejected[0].File)

	for _, j := range result.Jobs {
		assert.Equal(t, models.JobKindBatchMember, j.Kind)
		assert.Equal(t, result.BatchID, j.BatchID)
	}
}

func TestBatchSubmit_AllInvalid(t *testing.T) {
	fx := setupCoordinator(t)

	_, err := fx.coordinator.Submit(context.Background(),
		[]string{"/missing/a.mp3", "/missing/b.mp3"}, jobs.SubmitRequest{}, 0)
	serr, ok := err.(*models.SurfaceError)
	require.True(t, ok)
	assert.Equal(t, models.CodeNoValidFiles, serr.Code)
}

func TestBatchRunsToCompletion(t *testing.T) {
	fx := setupCoordinator(t)
	ctx := context.Background()

	result, err := fx.coordinator.Submit(ctx, audioFiles(t, 3), jobs.SubmitRequest{}, 1)
	require.NoError(t, err)

	deadline := time.Now().Add(10 * time.Second)
	for {
		status, members, serr := fx.coordinator.Status(ctx, result.BatchID)
		require.NoError(t, serr)
		if status.Done {
			assert.Equal(t, 3, status.Total)
			assert.Equal(t, 3, status.Completed)
			assert.Equal(t, 100, status.Progress)
			assert.Len(t, members, 3)
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("batch never finished: %+v", status)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestBatchStatus_NotFound(t *testing.T) {
	fx := setupCoordinator(t)

	_, _, err := fx.coordinator.Status(context.Background(), "batch_missing")
	serr, ok := err.(*models.SurfaceError)
	require.True(t, ok)
	assert.Equal(t, models.CodeBatchNotFound, serr.Code)
}

func TestBatchHonorsConcurrencyCap(t *testing.T) {
	transcriber := &gatedTranscriber{release: make(chan struct{})}
	fx := setupCoordinatorWith(t, transcriber)
	ctx := context.Background()

	// Four members, one slot: the pool has two workers, so any over-release
	// by the dispatcher would show up as concurrent engine calls.
	result, err := fx.coordinator.Submit(ctx, audioFiles(t, 4), jobs.SubmitRequest{}, 1)
	require.NoError(t, err)
	require.Len(t, result.Jobs, 4)

	require.Eventually(t, func() bool {
		return transcriber.peakConcurrency() >= 1
	}, 5*time.Second, 10*time.Millisecond)

	// Hold the gate long enough for a second member to be released if the
	// cap were broken, then let the batch drain.
	time.Sleep(200 * time.Millisecond)
	close(transcriber.release)

	deadline := time.Now().Add(10 * time.Second)
	for {
		status, _, serr := fx.coordinator.Status(ctx, result.BatchID)
		require.NoError(t, serr)
		if status.Done {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("batch never finished: %+v", status)
		}
		time.Sleep(20 * time.Millisecond)
	}
	assert.Equal(t, 1, transcriber.peakConcurrency())
}

func TestConcurrencyCap(t *testing.T) {
	fx := setupCoordinator(t)

	assert.Equal(t, 5, fx.coordinator.concurrencyCap(0))  // default to the limit
	assert.Equal(t, 3, fx.coordinator.concurrencyCap(3))  // in range
	assert.Equal(t, 5, fx.coordinator.concurrencyCap(99)) // clamped
	assert.Equal(t, 5, fx.coordinator.concurrencyCap(-1))
}
