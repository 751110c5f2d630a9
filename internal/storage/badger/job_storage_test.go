package badger

import (
	"context"
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
)

// captureNotifier records published events for assertions.
type captureNotifier struct {
	mu     sync.Mutex
	events []models.ProgressEvent
}

func (n *captureNotifier) Publish(event models.ProgressEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *captureNotifier) all() []models.ProgressEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]models.ProgressEvent, len(n.events))
	copy(out, n.events)
	return out
}

func setupTestDB(t *testing.T) (*BadgerDB, *JobStorage, *captureNotifier) {
	t.Helper()
	logger := arbor.NewLogger()
	db, err := NewBadgerDB(logger, &common.BadgerConfig{
		Path: filepath.Join(t.TempDir(), "badger"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	notifier := &captureNotifier{}
	return db, NewJobStorage(db, notifier, logger), notifier
}

func TestJobStorage_CreateAndGet(t *testing.T) {
	_, store, _ := setupTestDB(t)
	ctx := context.Background()

	job := models.NewJob("job_1", models.JobParameters{ModelSize: "base"}, "/audio/a.mp3", "a.mp3")
	require.NoError(t, store.Create(ctx, job))

	loaded, err := store.Get(ctx, "job_1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusQueued, loaded.Status)
	assert.Equal(t, "a.mp3", loaded.OriginalFilename)
	assert.Equal(t, "base", loaded.Parameters.ModelSize)
}

func TestJobStorage_CreateDuplicate(t *testing.T) {
	_, store, _ := setupTestDB(t)
	ctx := context.Background()

	job := models.NewJob("job_1", models.JobParameters{}, "/audio/a.mp3", "a.mp3")
	require.NoError(t, store.Create(ctx, job))

	err := store.Create(ctx, models.NewJob("job_1", models.JobParameters{}, "/audio/b.mp3", "b.mp3"))
	assert.ErrorIs(t, err, models.ErrAlreadyExists)
}

func TestJobStorage_GetMissing(t *testing.T) {
	_, store, _ := setupTestDB(t)

	_, err := store.Get(context.Background(), "job_missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestJobStorage_UpdateLegalTransition(t *testing.T) {
	_, store, notifier := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, models.NewJob("job_1", models.JobParameters{}, "/audio/a.mp3", "a.mp3")))

	updated, err := store.Update(ctx, "job_1", func(j *models.Job) error {
		j.Status = models.JobStatusProcessing
		j.Progress = 1
		j.ProgressMessage = "starting"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusProcessing, updated.Status)
	assert.Equal(t, 1, updated.Progress)

	// Every committed change is published: create + update.
	events := notifier.all()
	require.Len(t, events, 2)
	assert.Equal(t, models.JobStatusQueued, events[0].Status)
	assert.Equal(t, models.JobStatusProcessing, events[1].Status)
}

func TestJobStorage_UpdateIllegalTransition(t *testing.T) {
	_, store, notifier := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, models.NewJob("job_1", models.JobParameters{}, "/audio/a.mp3", "a.mp3")))

	_, err := store.Update(ctx, "job_1", func(j *models.Job) error {
		j.Status = models.JobStatusCompleted // queued -> completed is not legal
		return nil
	})
	assert.ErrorIs(t, err, models.ErrIllegalTransition)

	// The record is untouched and no event was published for the attempt.
	loaded, err := store.Get(ctx, "job_1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusQueued, loaded.Status)
	assert.Len(t, notifier.all(), 1)
}

func TestJobStorage_TerminalIsImmutable(t *testing.T) {
	_, store, _ := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, models.NewJob("job_1", models.JobParameters{}, "/audio/a.mp3", "a.mp3")))
	_, err := store.Update(ctx, "job_1", func(j *models.Job) error {
		j.Status = models.JobStatusCancelled
		return nil
	})
	require.NoError(t, err)

	_, err = store.Update(ctx, "job_1", func(j *models.Job) error {
		j.Status = models.JobStatusProcessing
		return nil
	})
	assert.ErrorIs(t, err, models.ErrIllegalTransition)
}

func TestJobStorage_List(t *testing.T) {
	_, store, _ := setupTestDB(t)
	ctx := context.Background()

	jobA := models.NewJob("job_a", models.JobParameters{}, "/audio/meeting.mp3", "meeting.mp3")
	jobB := models.NewJob("job_b", models.JobParameters{}, "/audio/standup.wav", "standup.wav")
	jobB.CreatedAt = jobA.CreatedAt.Add(time.Second)
	jobC := models.NewBatchMemberJob("job_c", "batch_1", models.JobParameters{}, "/audio/retro.flac", "retro.flac")
	jobC.CreatedAt = jobA.CreatedAt.Add(2 * time.Second)

	for _, j := range []*models.Job{jobA, jobB, jobC} {
		require.NoError(t, store.Create(ctx, j))
	}
	_, err := store.Update(ctx, "job_b", func(j *models.Job) error {
		j.Status = models.JobStatusProcessing
		return nil
	})
	require.NoError(t, err)

	// Newest first.
	all, err := store.List(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "job_c", all[0].ID)
	assert.Equal(t, "job_a", all[2].ID)

	byStatus, err := store.List(ctx, &interfaces.JobListOptions{Status: models.JobStatusProcessing})
	require.NoError(t, err)
	require.Len(t, byStatus, 1)
	assert.Equal(t, "job_b", byStatus[0].ID)

	byBatch, err := store.List(ctx, &interfaces.JobListOptions{BatchID: "batch_1"})
	require.NoError(t, err)
	require.Len(t, byBatch, 1)
	assert.Equal(t, "job_c", byBatch[0].ID)

	bySearch, err := store.List(ctx, &interfaces.JobListOptions{Search: "STAND"})
	require.NoError(t, err)
	require.Len(t, bySearch, 1)
	assert.Equal(t, "job_b", bySearch[0].ID)

	limited, err := store.List(ctx, &interfaces.JobListOptions{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	paged, err := store.List(ctx, &interfaces.JobListOptions{Offset: 2})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, "job_a", paged[0].ID)

	beyond, err := store.List(ctx, &interfaces.JobListOptions{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, beyond)
}

func TestJobStorage_Count(t *testing.T) {
	_, store, _ := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, models.NewJob("job_1", models.JobParameters{}, "/a.mp3", "a.mp3")))
	require.NoError(t, store.Create(ctx, models.NewJob("job_2", models.JobParameters{}, "/b.mp3", "b.mp3")))

	total, err := store.Count(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	queued, err := store.Count(ctx, models.JobStatusQueued)
	require.NoError(t, err)
	assert.Equal(t, 2, queued)

	completed, err := store.Count(ctx, models.JobStatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, 0, completed)
}

func TestJobStorage_DeleteTerminalOlderThan(t *testing.T) {
	db, store, _ := setupTestDB(t)
	ctx := context.Background()

	oldDone := models.NewJob("job_old", models.JobParameters{}, "/a.mp3", "a.mp3")
	oldDone.Status = models.JobStatusCompleted
	oldDone.Progress = 100
	oldDone.UpdatedAt = time.Now().UTC().Add(-72 * time.Hour)
	require.NoError(t, db.Store().Insert(oldDone.ID, oldDone))

	freshDone := models.NewJob("job_fresh", models.JobParameters{}, "/b.mp3", "b.mp3")
	freshDone.Status = models.JobStatusCompleted
	freshDone.Progress = 100
	require.NoError(t, db.Store().Insert(freshDone.ID, freshDone))

	oldActive := models.NewJob("job_active", models.JobParameters{}, "/c.mp3", "c.mp3")
	oldActive.Status = models.JobStatusProcessing
	oldActive.UpdatedAt = time.Now().UTC().Add(-72 * time.Hour)
	require.NoError(t, db.Store().Insert(oldActive.ID, oldActive))

	deleted, err := store.DeleteTerminalOlderThan(ctx, 48*time.Hour)
	require.NoError(t, err)
	require.Len(t, deleted, 1)
	assert.Equal(t, "job_old", deleted[0].ID)

	_, err = store.Get(ctx, "job_old")
	assert.ErrorIs(t, err, models.ErrNotFound)

	// Fresh terminal and old active records survive.
	_, err = store.Get(ctx, "job_fresh")
	assert.NoError(t, err)
	_, err = store.Get(ctx, "job_active")
	assert.NoError(t, err)
}

func TestJobStorage_PerJobLockSurvivesSweep(t *testing.T) {
	db, store, _ := setupTestDB(t)
	ctx := context.Background()

	done := models.NewJob("job_old", models.JobParameters{}, "/a.mp3", "a.mp3")
	done.Status = models.JobStatusCompleted
	done.Progress = 100
	done.UpdatedAt = time.Now().UTC().Add(-72 * time.Hour)
	require.NoError(t, db.Store().Insert(done.ID, done))

	// A goroutine holding this reference must keep serializing against
	// later callers even after the record is swept.
	before := store.lockFor("job_old")

	deleted, err := store.DeleteTerminalOlderThan(ctx, 48*time.Hour)
	require.NoError(t, err)
	require.Len(t, deleted, 1)

	assert.Same(t, before, store.lockFor("job_old"))
}

func TestJobStorage_RecoverInterrupted(t *testing.T) {
	_, store, notifier := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, models.NewJob("job_1", models.JobParameters{}, "/a.mp3", "a.mp3")))
	_, err := store.Update(ctx, "job_1", func(j *models.Job) error {
		j.Status = models.JobStatusProcessing
		j.Progress = 40
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, store.Create(ctx, models.NewJob("job_2", models.JobParameters{}, "/b.mp3", "b.mp3")))

	recovered, err := store.RecoverInterrupted(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	job, err := store.Get(ctx, "job_1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	require.NotNil(t, job.Error)
	assert.Equal(t, models.ErrorKindServer, job.Error.Kind)
	assert.Contains(t, job.Error.Message, "restart")

	// Queued jobs are untouched.
	queued, err := store.Get(ctx, "job_2")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusQueued, queued.Status)

	events := notifier.all()
	last := events[len(events)-1]
	assert.Equal(t, models.JobStatusFailed, last.Status)
	assert.True(t, last.Terminal())
}

func TestBatchStorage_RoundTrip(t *testing.T) {
	db, _, _ := setupTestDB(t)
	ctx := context.Background()
	logger := arbor.NewLogger()
	batches := NewBatchStorage(db, logger)

	batch := &models.Batch{
		ID:            "batch_1",
		MemberJobIDs:  []string{"job_1", "job_2"},
		MaxConcurrent: 3,
		CreatedAt:     time.Now().UTC(),
	}
	require.NoError(t, batches.Create(ctx, batch))

	loaded, err := batches.Get(ctx, "batch_1")
	require.NoError(t, err)
	assert.Equal(t, []string{"job_1", "job_2"}, loaded.MemberJobIDs)
	assert.Equal(t, 3, loaded.MaxConcurrent)

	_, err = batches.Get(ctx, "batch_missing")
	assert.ErrorIs(t, err, models.ErrNotFound)

	require.NoError(t, batches.Delete(ctx, "batch_1"))
	_, err = batches.Get(ctx, "batch_1")
	assert.ErrorIs(t, err, models.ErrNotFound)
}
