package models

import (
	"time"
)

// Batch groups member jobs submitted together under shared parameters and a
// per-batch concurrency cap. The aggregate status view is derived on demand
// from member records, never stored.
type Batch struct {
	ID            string    `json:"id" badgerhold:"key"`
	MemberJobIDs  []string  `json:"member_job_ids"`
	MaxConcurrent int       `json:"max_concurrent"`
	CreatedAt     time.Time `json:"created_at"`
}

// BatchStatus is the derived aggregate view of a batch.
type BatchStatus struct {
	BatchID    string `json:"batch_id"`
	Total      int    `json:"total"`
	Queued     int    `json:"queued"`
	Processing int    `json:"processing"`
	Completed  int    `json:"completed"`
	Failed     int    `json:"failed"`
	Cancelled  int    `json:"cancelled"`
	Progress   int    `json:"progress"` // mean member progress
	Done       bool   `json:"done"`     // all members terminal
}

// AggregateBatchStatus derives the batch view from its member jobs.
func AggregateBatchStatus(batchID string, members []*Job) BatchStatus {
	status := BatchStatus{BatchID: batchID, Total: len(members), Done: len(members) > 0}
	sum := 0
	for _, m := range members {
		sum += m.Progress
		switch m.Status {
		case JobStatusQueued:
			status.Queued++
		case JobStatusProcessing:
			status.Processing++
		case JobStatusCompleted:
			status.Completed++
		case JobStatusFailed:
			status.Failed++
		case JobStatusCancelled:
			status.Cancelled++
		}
		if !m.Status.IsTerminal() {
			status.Done = false
		}
	}
	if len(members) > 0 {
		status.Progress = sum / len(members)
	}
	return status
}
