package interfaces

import (
	"context"

	"github.com/ternarybob/scriba/internal/models"
)

// Notifier receives a change notification for every committed job store
// update. The progress broker implements it; the store is the only
// publisher.
type Notifier interface {
	Publish(event models.ProgressEvent)
}

// Subscription is a live progress stream for one job. The first event is
// the cached last snapshot when one exists; the channel closes after a
// terminal event is delivered or the subscription is cancelled.
type Subscription interface {
	Events() <-chan models.ProgressEvent
	Close()
}

// ProgressBroker fans progress events out to per-job subscribers with
// last-state-wins coalescing. Terminal events are never dropped.
type ProgressBroker interface {
	Notifier
	Subscribe(jobID string) Subscription
	Snapshot(jobID string) (models.ProgressEvent, bool)
}

// ProgressSink receives stage progress from the engine adapter. Progress
// is monotonic within a run; message is a short stage label.
type ProgressSink func(progress int, message string)

// RawTranscription is the engine output before speaker merge.
type RawTranscription struct {
	Segments     []models.Segment
	Language     string
	AudioSeconds float64
	Device       string
	Model        string
}

// Transcriber supervises the external transcription engine.
type Transcriber interface {
	Transcribe(ctx context.Context, sourcePath string, params models.JobParameters, sink ProgressSink) (*RawTranscription, error)
}

// Diarizer produces speaker turns for an audio file. Initialization is
// lazy; Diarize returns models.ErrDiarizationUnavailable when the
// pipeline cannot be initialized, which callers treat as a soft failure.
type Diarizer interface {
	Available() bool
	Diarize(ctx context.Context, sourcePath string) ([]models.DiarizationTurn, error)
}

// CancelOutcome reports the result of a cancellation request.
type CancelOutcome string

const (
	CancelOutcomeCancelled      CancelOutcome = "cancelled"
	CancelOutcomeNotCancellable CancelOutcome = "not_cancellable"
)

// CancellationRegistry maps in-flight job ids to cancellation tokens.
// Cancellation is cooperative at stage boundaries; the engine adapter
// additionally translates it into a subprocess signal.
type CancellationRegistry interface {
	Register(jobID string) context.Context
	Cancel(jobID string, reason string) CancelOutcome
	Unregister(jobID string)
}

// WorkerPool drives jobs from queued to a terminal state under a global
// concurrency ceiling. Submissions beyond the ceiling stay queued (FIFO
// by creation time).
type WorkerPool interface {
	Submit(jobID string) error
	Start() error
	Stop()
}
