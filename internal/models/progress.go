package models

// ProgressEvent is the broker payload published on every job store update.
// Intermediate ticks carry status, progress and message; terminal events
// additionally carry the result reference or the error.
type ProgressEvent struct {
	JobID    string    `json:"job_id"`
	Status   JobStatus `json:"status"`
	Progress int       `json:"progress"`
	Message  string    `json:"message,omitempty"`

	ResultRef string    `json:"result_ref,omitempty"`
	Error     *JobError `json:"error,omitempty"`
}

// Terminal reports whether this event closes the stream for its job.
func (e ProgressEvent) Terminal() bool {
	return e.Status.IsTerminal()
}

// EventForJob builds the broker event matching the current job record.
func EventForJob(j *Job) ProgressEvent {
	return ProgressEvent{
		JobID:     j.ID,
		Status:    j.Status,
		Progress:  j.Progress,
		Message:   j.ProgressMessage,
		ResultRef: j.ResultRef,
		Error:     j.Error,
	}
}
