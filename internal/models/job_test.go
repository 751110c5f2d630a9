package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobStatus_IsTerminal(t *testing.T) {
	assert.False(t, JobStatusQueued.IsTerminal())
	assert.False(t, JobStatusProcessing.IsTerminal())
	assert.True(t, JobStatusCompleted.IsTerminal())
	assert.True(t, JobStatusFailed.IsTerminal())
	assert.True(t, JobStatusCancelled.IsTerminal())
}

func TestJobStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from    JobStatus
		to      JobStatus
		allowed bool
	}{
		{JobStatusQueued, JobStatusProcessing, true},
		{JobStatusQueued, JobStatusCancelled, true},
		{JobStatusQueued, JobStatusCompleted, false},
		{JobStatusQueued, JobStatusFailed, false},
		{JobStatusProcessing, JobStatusCompleted, true},
		{JobStatusProcessing, JobStatusFailed, true},
		{JobStatusProcessing, JobStatusCancelled, true},
		{JobStatusProcessing, JobStatusQueued, false},
		{JobStatusCompleted, JobStatusProcessing, false},
		{JobStatusCompleted, JobStatusFailed, false},
		{JobStatusFailed, JobStatusCancelled, false},
		{JobStatusCancelled, JobStatusProcessing, false},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.allowed, tc.from.CanTransitionTo(tc.to),
			"%s -> %s", tc.from, tc.to)
	}

	// Self-transition is always a legal no-op update.
	for _, s := range []JobStatus{JobStatusQueued, JobStatusProcessing, JobStatusCompleted, JobStatusFailed, JobStatusCancelled} {
		assert.True(t, s.CanTransitionTo(s), "%s -> %s", s, s)
	}
}

func TestNewJob(t *testing.T) {
	job := NewJob("job_1", JobParameters{ModelSize: "base"}, "/audio/a.mp3", "a.mp3")

	require.NotNil(t, job)
	assert.Equal(t, JobStatusQueued, job.Status)
	assert.Equal(t, 0, job.Progress)
	assert.Equal(t, JobKindSingle, job.Kind)
	assert.True(t, job.IsActive())
	assert.False(t, job.CreatedAt.IsZero())
}

func TestNewBatchMemberJob(t *testing.T) {
	job := NewBatchMemberJob("job_2", "batch_1", JobParameters{}, "/audio/b.wav", "b.wav")

	assert.Equal(t, JobKindBatchMember, job.Kind)
	assert.Equal(t, "batch_1", job.BatchID)
	assert.Equal(t, JobStatusQueued, job.Status)
}

func TestEventForJob(t *testing.T) {
	job := NewJob("job_3", JobParameters{}, "/audio/c.ogg", "c.ogg")
	job.Status = JobStatusFailed
	job.Error = &JobError{Kind: ErrorKindProcessing, Message: "engine exploded"}

	event := EventForJob(job)
	assert.Equal(t, "job_3", event.JobID)
	assert.True(t, event.Terminal())
	require.NotNil(t, event.Error)
	assert.Equal(t, ErrorKindProcessing, event.Error.Kind)
}

func TestAggregateBatchStatus(t *testing.T) {
	members := []*Job{
		{ID: "a", Status: JobStatusCompleted, Progress: 100},
		{ID: "b", Status: JobStatusProcessing, Progress: 50},
		{ID: "c", Status: JobStatusQueued, Progress: 0},
	}
	status := AggregateBatchStatus("batch_1", members)

	assert.Equal(t, 3, status.Total)
	assert.Equal(t, 1, status.Completed)
	assert.Equal(t, 1, status.Processing)
	assert.Equal(t, 1, status.Queued)
	assert.Equal(t, 50, status.Progress)
	assert.False(t, status.Done)

	allDone := []*Job{
		{ID: "a", Status: JobStatusCompleted, Progress: 100},
		{ID: "b", Status: JobStatusCancelled, Progress: 30},
	}
	assert.True(t, AggregateBatchStatus("batch_2", allDone).Done)
}

func TestKindForError(t *testing.T) {
	assert.Equal(t, ErrorKindProcessing, KindForError(ErrTimeout))
	assert.Equal(t, ErrorKindProcessing, KindForError(ErrEngineFailure))
	assert.Equal(t, ErrorKindCancelled, KindForError(ErrCancelled))
	assert.Equal(t, ErrorKindNotFound, KindForError(ErrNotFound))
	assert.Equal(t, ErrorKindServer, KindForError(ErrIllegalTransition))
}
