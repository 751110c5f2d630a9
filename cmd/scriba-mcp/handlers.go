package main

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scriba/internal/app"
	"github.com/ternarybob/scriba/internal/interfaces"
	"github.com/ternarybob/scriba/internal/models"
	"github.com/ternarybob/scriba/internal/services/jobs"
)

// handleTranscribeAudio implements the transcribe_audio tool
func handleTranscribeAudio(application *app.App, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		filePath, err := request.RequireString("file_path")
		if err != nil || filePath == "" {
			return errorResult(models.NewSurfaceError(models.CodeInvalidParameters, "file_path parameter is required")), nil
		}

		req := jobs.SubmitRequest{
			FilePath:          filePath,
			ModelSize:         request.GetString("model_size", ""),
			Language:          request.GetString("language", ""),
			EnableDiarization: request.GetBool("enable_diarization", true),
			Device:            request.GetString("device", ""),
			ComputeType:       request.GetString("compute_type", ""),
			OutputFormat:      request.GetString("output_format", ""),
		}

		job, serr := application.JobService.Submit(ctx, req)
		if serr != nil {
			logger.Warn().Err(serr).Str("file", filePath).Msg("Submission rejected")
			return errorResult(serr), nil
		}
		return jsonResult(formatSubmittedJob(job)), nil
	}
}

// handleGetProgress implements the get_transcription_progress tool
func handleGetProgress(application *app.App, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if request.GetBool("all_jobs", false) {
			active, err := application.JobService.List(ctx, &interfaces.JobListOptions{ActiveOnly: true})
			if err != nil {
				return errorResult(err), nil
			}
			stats, err := application.JobService.Stats(ctx)
			if err != nil {
				return errorResult(err), nil
			}
			return jsonResult(formatActiveJobs(active, stats)), nil
		}

		jobID, err := request.RequireString("job_id")
		if err != nil || jobID == "" {
			return errorResult(models.NewSurfaceError(models.CodeInvalidParameters, "either job_id or all_jobs is required")), nil
		}
		job, serr := application.JobService.Get(ctx, jobID)
		if serr != nil {
			return errorResult(serr), nil
		}
		return jsonResult(formatJobProgress(job)), nil
	}
}

// handleGetResult implements the get_transcription_result tool
func handleGetResult(application *app.App, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jobID, err := request.RequireString("job_id")
		if err != nil || jobID == "" {
			return errorResult(models.NewSurfaceError(models.CodeInvalidParameters, "job_id parameter is required")), nil
		}

		job, transcript, serr := application.JobService.Result(ctx, jobID)
		if serr != nil {
			return errorResult(serr), nil
		}

		opts := resultOptions{
			Format:            request.GetString("format", "full"),
			IncludeMetadata:   request.GetBool("include_metadata", true),
			IncludeTimestamps: request.GetBool("include_timestamps", true),
			IncludeConfidence: request.GetBool("include_confidence", false),
			IncludeSpeakers:   request.GetBool("include_speakers", true),
		}
		return jsonResult(formatResult(job, transcript, opts)), nil
	}
}

// handleListHistory implements the list_transcription_history tool
func handleListHistory(application *app.App, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := request.GetInt("limit", 20)
		if limit > 100 {
			limit = 100
		}

		opts := &interfaces.JobListOptions{
			Status: models.JobStatus(request.GetString("status_filter", "")),
			Search: request.GetString("search_query", ""),
			Limit:  limit,
		}
		if from := request.GetString("date_from", ""); from != "" {
			t, perr := time.Parse(time.RFC3339, from)
			if perr != nil {
				return errorResult(models.NewSurfaceError(models.CodeInvalidParameters, "date_from must be ISO-8601")), nil
			}
			opts.DateFrom = t
		}
		if to := request.GetString("date_to", ""); to != "" {
			t, perr := time.Parse(time.RFC3339, to)
			if perr != nil {
				return errorResult(models.NewSurfaceError(models.CodeInvalidParameters, "date_to must be ISO-8601")), nil
			}
			opts.DateTo = t
		}

		records, err := application.JobService.List(ctx, opts)
		if err != nil {
			return errorResult(err), nil
		}
		total, err := application.JobService.Count(ctx)
		if err != nil {
			return errorResult(err), nil
		}

		var stats *jobs.Stats
		if request.GetBool("get_statistics", false) {
			stats, err = application.JobService.Stats(ctx)
			if err != nil {
				return errorResult(err), nil
			}
		}
		return jsonResult(formatHistory(records, total, stats)), nil
	}
}

// handleBatchTranscribe implements the batch_transcribe tool
func handleBatchTranscribe(application *app.App, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		filePaths := request.GetStringSlice("file_paths", nil)
		if len(filePaths) == 0 {
			return errorResult(models.NewSurfaceError(models.CodeInvalidParameters, "file_paths parameter is required")), nil
		}

		base := jobs.SubmitRequest{
			ModelSize:         request.GetString("model_size", ""),
			Language:          request.GetString("language", ""),
			EnableDiarization: request.GetBool("enable_diarization", true),
		}
		result, serr := application.Coordinator.Submit(ctx, filePaths, base, request.GetInt("max_concurrent", 0))
		if serr != nil {
			logger.Warn().Err(serr).Int("files", len(filePaths)).Msg("Batch rejected")
			return errorResult(serr), nil
		}
		return jsonResult(formatBatch(result)), nil
	}
}

// handleCancel implements the cancel_transcription tool
func handleCancel(application *app.App, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jobID, err := request.RequireString("job_id")
		if err != nil || jobID == "" {
			return errorResult(models.NewSurfaceError(models.CodeInvalidParameters, "job_id parameter is required")), nil
		}
		reason := request.GetString("reason", "cancelled via agent tool")

		if _, serr := application.JobService.Cancel(ctx, jobID); serr != nil {
			return errorResult(serr), nil
		}
		return jsonResult(map[string]interface{}{
			"success": true,
			"job_id":  jobID,
			"reason":  reason,
		}), nil
	}
}
