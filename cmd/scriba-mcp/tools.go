package main

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// createTranscribeAudioTool returns the transcribe_audio tool definition
func createTranscribeAudioTool() mcp.Tool {
	return mcp.NewTool("transcribe_audio",
		mcp.WithDescription("Submit an audio file for asynchronous transcription. Returns a job that can be polled with get_transcription_progress."),
		mcp.WithString("file_path",
			mcp.Required(),
			mcp.Description("Absolute path to the audio file (mp3, wav, m4a, ogg, flac, aac, wma)"),
		),
		mcp.WithString("model_size",
			mcp.Description("Model size: tiny, base, small, medium, large, large-v2, large-v3 (default: base)"),
		),
		mcp.WithString("language",
			mcp.Description("ISO language code; auto-detected when omitted"),
		),
		mcp.WithBoolean("enable_diarization",
			mcp.Description("Attach speaker labels to segments (default: true)"),
		),
		mcp.WithString("device",
			mcp.Description("Execution device: auto, cpu or a GPU identifier (default: auto)"),
		),
		mcp.WithString("compute_type",
			mcp.Description("Engine precision: float16, int8 or float32 (default: per device)"),
		),
		mcp.WithString("output_format",
			mcp.Description("Stored result format preference: json, text or srt (default: json)"),
		),
	)
}

// createGetProgressTool returns the get_transcription_progress tool definition
func createGetProgressTool() mcp.Tool {
	return mcp.NewTool("get_transcription_progress",
		mcp.WithDescription("Get the current status and progress of one transcription job, or of all active jobs"),
		mcp.WithString("job_id",
			mcp.Description("Job ID (format: job_{uuid}); required unless all_jobs is true"),
		),
		mcp.WithBoolean("all_jobs",
			mcp.Description("Report all active jobs plus service statistics instead of a single job"),
		),
	)
}

// createGetResultTool returns the get_transcription_result tool definition
func createGetResultTool() mcp.Tool {
	return mcp.NewTool("get_transcription_result",
		mcp.WithDescription("Retrieve the transcript of a completed job in the requested shape"),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("Job ID (format: job_{uuid})"),
		),
		mcp.WithString("format",
			mcp.Description("Result shape: text, summary, segments or full (default: full)"),
		),
		mcp.WithBoolean("include_metadata",
			mcp.Description("Include processing metadata (default: true)"),
		),
		mcp.WithBoolean("include_timestamps",
			mcp.Description("Include segment start/end times (default: true)"),
		),
		mcp.WithBoolean("include_confidence",
			mcp.Description("Include per-segment confidence scores (default: false)"),
		),
		mcp.WithBoolean("include_speakers",
			mcp.Description("Include speaker labels (default: true)"),
		),
	)
}

// createListHistoryTool returns the list_transcription_history tool definition
func createListHistoryTool() mcp.Tool {
	return mcp.NewTool("list_transcription_history",
		mcp.WithDescription("List past and active transcription jobs, newest first, with optional filters"),
		mcp.WithNumber("limit",
			mcp.Description("Maximum jobs to return (default: 20, max: 100)"),
		),
		mcp.WithString("status_filter",
			mcp.Description("Filter by status: queued, processing, completed, failed, cancelled"),
		),
		mcp.WithString("date_from",
			mcp.Description("Only jobs created at or after this ISO-8601 timestamp"),
		),
		mcp.WithString("date_to",
			mcp.Description("Only jobs created at or before this ISO-8601 timestamp"),
		),
		mcp.WithString("search_query",
			mcp.Description("Filename substring filter"),
		),
		mcp.WithBoolean("get_statistics",
			mcp.Description("Include per-status job counts in the response"),
		),
	)
}

// createBatchTranscribeTool returns the batch_transcribe tool definition
func createBatchTranscribeTool() mcp.Tool {
	return mcp.NewTool("batch_transcribe",
		mcp.WithDescription("Submit up to 10 audio files as one batch with a per-batch concurrency cap"),
		mcp.WithArray("file_paths",
			mcp.Required(),
			mcp.WithStringItems(),
			mcp.Description("Audio file paths (1-10)"),
		),
		mcp.WithString("model_size",
			mcp.Description("Model size shared by all members (default: base)"),
		),
		mcp.WithString("language",
			mcp.Description("ISO language code shared by all members; auto-detected when omitted"),
		),
		mcp.WithBoolean("enable_diarization",
			mcp.Description("Attach speaker labels to segments (default: true)"),
		),
		mcp.WithNumber("max_concurrent",
			mcp.Description("Members of this batch processed at once (1-5, default: 5)"),
		),
	)
}

// createCancelTool returns the cancel_transcription tool definition
func createCancelTool() mcp.Tool {
	return mcp.NewTool("cancel_transcription",
		mcp.WithDescription("Cancel a queued or processing transcription job"),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("Job ID (format: job_{uuid})"),
		),
		mcp.WithString("reason",
			mcp.Description("Optional reason recorded in the log"),
		),
	)
}
