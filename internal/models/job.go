// -----------------------------------------------------------------------
// Job - Durable transcription job record and status lifecycle
// -----------------------------------------------------------------------

package models

import (
	"time"
)

// JobStatus represents the lifecycle state of a transcription job.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// IsTerminal returns true for completed, failed and cancelled.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// CanTransitionTo reports whether s -> next is a legal status transition.
// Legal edges: queued -> processing, queued -> cancelled,
// processing -> completed | failed | cancelled. Terminal states have no
// outbound edges. A state may always "transition" to itself (no-op update).
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	if s == next {
		return true
	}
	switch s {
	case JobStatusQueued:
		return next == JobStatusProcessing || next == JobStatusCancelled
	case JobStatusProcessing:
		return next == JobStatusCompleted || next == JobStatusFailed || next == JobStatusCancelled
	default:
		return false
	}
}

// JobKind distinguishes standalone jobs from batch members.
type JobKind string

const (
	JobKindSingle      JobKind = "single"
	JobKindBatchMember JobKind = "batch-member"
)

// JobParameters is the immutable parameter snapshot taken at submission time.
type JobParameters struct {
	ModelSize         string `json:"model_size"`
	Language          string `json:"language,omitempty"` // empty means auto-detect
	EnableDiarization bool   `json:"enable_diarization"`
	Device            string `json:"device,omitempty"`       // "", "auto", "cpu" or GPU identifier
	ComputeType       string `json:"compute_type,omitempty"` // "", "float16", "int8", "float32"
	OutputFormat      string `json:"output_format,omitempty"`
}

// JobError captures a failure in the job record.
type JobError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// Job is the durable per-job record. It is mutated only through the job
// store's update primitive; the store is the source of truth.
type Job struct {
	ID               string        `json:"id" badgerhold:"key"`
	Kind             JobKind       `json:"kind"`
	SourcePath       string        `json:"source_path"`
	OriginalFilename string        `json:"original_filename"`
	Parameters       JobParameters `json:"parameters"`

	Status          JobStatus `json:"status"`
	Progress        int       `json:"progress"` // [0,100]; 100 iff completed
	ProgressMessage string    `json:"progress_message,omitempty"`

	ResultRef string    `json:"result_ref,omitempty"` // set iff completed
	Error     *JobError `json:"error,omitempty"`      // set iff failed

	BatchID string `json:"batch_id,omitempty"` // set iff kind = batch-member

	EstimatedSeconds float64 `json:"estimated_duration,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewJob creates a queued job record for the given source file.
func NewJob(id string, params JobParameters, sourcePath, originalFilename string) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:               id,
		Kind:             JobKindSingle,
		SourcePath:       sourcePath,
		OriginalFilename: originalFilename,
		Parameters:       params,
		Status:           JobStatusQueued,
		Progress:         0,
		ProgressMessage:  "queued",
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// NewBatchMemberJob creates a queued job that belongs to a batch.
func NewBatchMemberJob(id, batchID string, params JobParameters, sourcePath, originalFilename string) *Job {
	j := NewJob(id, params, sourcePath, originalFilename)
	j.Kind = JobKindBatchMember
	j.BatchID = batchID
	return j
}

// IsActive returns true while the job is queued or processing.
func (j *Job) IsActive() bool {
	return !j.Status.IsTerminal()
}
