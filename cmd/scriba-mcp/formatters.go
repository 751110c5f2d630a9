package main

import (
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/ternarybob/scriba/internal/models"
	"github.com/ternarybob/scriba/internal/services/batch"
	"github.com/ternarybob/scriba/internal/services/jobs"
)

// jsonResult wraps a payload as a JSON text content result.
func jsonResult(payload interface{}) *mcp.CallToolResult {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		data = []byte(fmt.Sprintf(`{"success":false,"error":{"code":"INTERNAL_ERROR","message":%q}}`, err.Error()))
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(string(data)),
		},
	}
}

// errorResult renders the shared error envelope.
func errorResult(err error) *mcp.CallToolResult {
	serr, ok := err.(*models.SurfaceError)
	if !ok {
		serr = models.NewSurfaceError(models.CodeInternalError, err.Error())
	}
	return jsonResult(map[string]interface{}{
		"success": false,
		"error":   serr,
	})
}

func formatSubmittedJob(job *models.Job) map[string]interface{} {
	return map[string]interface{}{
		"success": true,
		"job": map[string]interface{}{
			"job_id":             job.ID,
			"status":             job.Status,
			"progress":           job.Progress,
			"estimated_duration": job.EstimatedSeconds,
			"model_info": map[string]interface{}{
				"model_size":         job.Parameters.ModelSize,
				"language":           job.Parameters.Language,
				"enable_diarization": job.Parameters.EnableDiarization,
			},
		},
	}
}

func formatJobProgress(job *models.Job) map[string]interface{} {
	payload := map[string]interface{}{
		"job_id":   job.ID,
		"status":   job.Status,
		"progress": job.Progress,
		"message":  job.ProgressMessage,
		"file":     job.OriginalFilename,
	}
	if job.ResultRef != "" {
		payload["result_ref"] = job.ResultRef
	}
	if job.Error != nil {
		payload["error"] = job.Error
	}
	return map[string]interface{}{
		"success": true,
		"job":     payload,
	}
}

func formatActiveJobs(active []*models.Job, stats *jobs.Stats) map[string]interface{} {
	jobViews := make([]map[string]interface{}, 0, len(active))
	for _, job := range active {
		jobViews = append(jobViews, map[string]interface{}{
			"job_id":   job.ID,
			"status":   job.Status,
			"progress": job.Progress,
			"message":  job.ProgressMessage,
			"file":     job.OriginalFilename,
		})
	}
	return map[string]interface{}{
		"success":     true,
		"active_jobs": jobViews,
		"stats":       stats,
	}
}

// resultOptions controls the shape of get_transcription_result output.
type resultOptions struct {
	Format            string
	IncludeMetadata   bool
	IncludeTimestamps bool
	IncludeConfidence bool
	IncludeSpeakers   bool
}

func formatResult(job *models.Job, transcript *models.Transcript, opts resultOptions) map[string]interface{} {
	payload := map[string]interface{}{
		"success":  true,
		"job_id":   job.ID,
		"language": transcript.Language,
	}

	switch opts.Format {
	case "text":
		payload["text"] = transcript.Text
	case "summary":
		payload["summary"] = map[string]interface{}{
			"characters":    len(transcript.Text),
			"segments":      len(transcript.Segments),
			"speakers":      transcript.Speakers,
			"audio_seconds": transcript.Metadata.AudioSeconds,
		}
	case "segments":
		payload["segments"] = formatSegments(transcript.Segments, opts)
	default: // full
		payload["text"] = transcript.Text
		payload["segments"] = formatSegments(transcript.Segments, opts)
		if opts.IncludeSpeakers {
			payload["speakers"] = transcript.Speakers
		}
	}

	if opts.IncludeMetadata {
		payload["metadata"] = transcript.Metadata
	}
	return payload
}

func formatSegments(segments []models.Segment, opts resultOptions) []map[string]interface{} {
	views := make([]map[string]interface{}, 0, len(segments))
	for _, seg := range segments {
		view := map[string]interface{}{"text": seg.Text}
		if opts.IncludeTimestamps {
			view["start"] = seg.Start
			view["end"] = seg.End
		}
		if opts.IncludeSpeakers && seg.SpeakerLabel != "" {
			view["speaker"] = seg.SpeakerLabel
		}
		if opts.IncludeConfidence && seg.Confidence != nil {
			view["confidence"] = *seg.Confidence
		}
		views = append(views, view)
	}
	return views
}

// formatHistory renders the history listing. total is the unfiltered
// record count; the filtered count comes from the page itself.
func formatHistory(records []*models.Job, total int, stats *jobs.Stats) map[string]interface{} {
	payload := map[string]interface{}{
		"success": true,
		"history": map[string]interface{}{
			"jobs":           records,
			"total_count":    total,
			"filtered_count": len(records),
		},
	}
	if stats != nil {
		payload["statistics"] = stats
	}
	return payload
}

func formatBatch(result *batch.Result) map[string]interface{} {
	return map[string]interface{}{
		"success":       true,
		"batch_id":      result.BatchID,
		"total_jobs":    len(result.Jobs) + len(result.Rejected),
		"valid_files":   len(result.Jobs),
		"invalid_files": len(result.Rejected),
		"jobs":          result.Jobs,
		"rejected":      result.Rejected,
	}
}
