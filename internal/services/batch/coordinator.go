// -----------------------------------------------------------------------
// Batch Coordinator - Grouped submission with a per-batch concurrency cap
// -----------------------------------------------------------------------

package batch

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scriba/internal/common"
	"github.com/ternarybob/scriba/internal/interfaces"
	"github.com/ternarybob/scriba/internal/models"
	"github.com/ternarybob/scriba/internal/services/jobs"
)

// FileRejection records a file that failed per-file validation during a
// batch submission. The rest of the batch proceeds without it.
type FileRejection struct {
	File    string `json:"file"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Result is the outcome of a batch submission.
type Result struct {
	BatchID  string          `json:"batch_id"`
	Jobs     []*models.Job   `json:"jobs"`
	Rejected []FileRejection `json:"rejected,omitempty"`
}

// Coordinator validates batch submissions, creates member jobs and
// releases them to the worker pool under a per-batch cap. The cap only
// bounds how many members of one batch occupy the pool at a time; the
// pool's global ceiling still applies on top.
type Coordinator struct {
	config  *common.Config
	service *jobs.Service
	batches interfaces.BatchStorage
	broker  interfaces.ProgressBroker
	logger  arbor.ILogger
}

// NewCoordinator creates the batch coordinator.
func NewCoordinator(config *common.Config, service *jobs.Service, batches interfaces.BatchStorage,
	broker interfaces.ProgressBroker, logger arbor.ILogger) *Coordinator {
	return &Coordinator{
		config:  config,
		service: service,
		batches: batches,
		broker:  broker,
		logger:  logger,
	}
}

// Submit validates the batch, creates member jobs for the valid files and
// starts the capped dispatch. Invalid files are reported back without
// failing the batch; a batch with no valid files is an error.
func (c *Coordinator) Submit(ctx context.Context, files []string, base jobs.SubmitRequest, maxConcurrent int) (*Result, error) {
	if len(files) == 0 {
		return nil, models.NewSurfaceError(models.CodeNoValidFiles, "batch contains no files")
	}
	if len(files) > c.config.Limits.MaxBatchSize {
		return nil, models.NewSurfaceError(models.CodeBatchTooLarge,
			fmt.Sprintf("batch has %d files, limit is %d", len(files), c.config.Limits.MaxBatchSize))
	}

	perBatch := c.concurrencyCap(maxConcurrent)
	batchID := common.NewBatchID()

	result := &Result{BatchID: batchID}
	for _, file := range files {
		req := base
		req.FilePath = file
		job, err := c.service.SubmitBatchMember(ctx, batchID, req)
		if err != nil {
			rejection := FileRejection{File: file, Code: models.CodeInvalidFile, Message: err.Error()}
			if serr, ok := err.(*models.SurfaceError); ok {
				rejection.Code = serr.Code
				rejection.Message = serr.Message
			}
			result.Rejected = append(result.Rejected, rejection)
			continue
		}
		result.Jobs = append(result.Jobs, job)
	}

	if len(result.Jobs) == 0 {
		return nil, models.NewSurfaceError(models.CodeNoValidFiles,
			fmt.Sprintf("none of the %d files passed validation", len(files)))
	}

	memberIDs := make([]string, len(result.Jobs))
	for i, j := range result.Jobs {
		memberIDs[i] = j.ID
	}
	record := &models.Batch{
		ID:            batchID,
		MemberJobIDs:  memberIDs,
		MaxConcurrent: perBatch,
		CreatedAt:     result.Jobs[0].CreatedAt,
	}
	if err := c.batches.Create(ctx, record); err != nil {
		return nil, models.NewSurfaceError(models.CodeInternalError, fmt.Sprintf("failed to persist batch: %v", err))
	}

	common.SafeGo(c.logger, "batch-dispatch-"+batchID, func() {
		c.dispatch(record)
	})

	c.logger.Info().
		Str("batch_id", batchID).
		Int("accepted", len(result.Jobs)).
		Int("rejected", len(result.Rejected)).
		Int("max_concurrent", perBatch).
		Msg("Batch submitted")
	return result, nil
}

// concurrencyCap clamps the requested per-batch concurrency to [1, limit].
func (c *Coordinator) concurrencyCap(requested int) int {
	limit := c.config.Workers.BatchMaxConcurrent
	if limit <= 0 {
		limit = 5
	}
	if requested <= 0 || requested > limit {
		return limit
	}
	return requested
}

// dispatch releases members to the pool in submission order, holding a
// slot per in-flight member until its terminal broker event arrives.
// Members cancelled while still held back reach terminal through the
// store as well, so their slot is released the same way.
func (c *Coordinator) dispatch(batch *models.Batch) {
	slots := make(chan struct{}, batch.MaxConcurrent)
	for _, jobID := range batch.MemberJobIDs {
		slots <- struct{}{}

		// Subscribe before release so the terminal event cannot be missed.
		sub := c.broker.Subscribe(jobID)
		if err := c.service.Release(jobID); err != nil {
			c.logger.Warn().Err(err).Str("batch_id", batch.ID).Str("job_id", jobID).Msg("Could not release batch member")
		}

		id := jobID
		common.SafeGo(c.logger, "batch-watch-"+id, func() {
			defer func() { <-slots }()
			defer sub.Close()
			for event := range sub.Events() {
				if event.Terminal() {
					return
				}
			}
		})
	}
}

// Status derives the aggregate view of a batch from its member records.
func (c *Coordinator) Status(ctx context.Context, batchID string) (*models.BatchStatus, []*models.Job, error) {
	record, err := c.batches.Get(ctx, batchID)
	if err != nil {
		return nil, nil, models.NewSurfaceError(models.CodeBatchNotFound, fmt.Sprintf("batch %s not found", batchID))
	}

	members := make([]*models.Job, 0, len(record.MemberJobIDs))
	for _, id := range record.MemberJobIDs {
		job, gerr := c.service.Get(ctx, id)
		if gerr != nil {
			continue // member swept by retention
		}
		members = append(members, job)
	}

	status := models.AggregateBatchStatus(batchID, members)
	return &status, members, nil
}
