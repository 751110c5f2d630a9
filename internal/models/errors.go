// -----------------------------------------------------------------------
// Errors - Failure taxonomy and surface error codes
// -----------------------------------------------------------------------

package models

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes failures for the job record and surface responses.
type ErrorKind string

const (
	ErrorKindValidation ErrorKind = "validation" // input malformed
	ErrorKindNotFound   ErrorKind = "not_found"  // job or result absent
	ErrorKindCapacity   ErrorKind = "capacity"   // backpressure, batch too large
	ErrorKindProcessing ErrorKind = "processing" // engine failure, timeout
	ErrorKindCancelled  ErrorKind = "cancelled"  // explicit cancel
	ErrorKindServer     ErrorKind = "server"     // internal invariant violated
)

// Sentinel errors for the engine adapter and worker failure paths.
var (
	ErrTimeout                = errors.New("engine processing timed out")
	ErrEngineFailure          = errors.New("engine process failed")
	ErrDiarizationUnavailable = errors.New("diarization pipeline unavailable")
	ErrCancelled              = errors.New("job cancelled")
)

// Store sentinel errors.
var (
	ErrAlreadyExists     = errors.New("job already exists")
	ErrNotFound          = errors.New("job not found")
	ErrIllegalTransition = errors.New("illegal status transition")
)

// KindForError maps an engine/worker error to its taxonomy kind.
func KindForError(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrTimeout), errors.Is(err, ErrEngineFailure):
		return ErrorKindProcessing
	case errors.Is(err, ErrCancelled):
		return ErrorKindCancelled
	case errors.Is(err, ErrNotFound):
		return ErrorKindNotFound
	case errors.Is(err, ErrIllegalTransition), errors.Is(err, ErrAlreadyExists):
		return ErrorKindServer
	default:
		return ErrorKindServer
	}
}

// Surface error codes shared by the tool and HTTP adapters.
const (
	CodeFileNotFound      = "FILE_NOT_FOUND"
	CodeInvalidFile       = "INVALID_FILE"
	CodeUnsupportedFormat = "UNSUPPORTED_FORMAT"
	CodeFileTooLarge      = "FILE_TOO_LARGE"
	CodeInvalidParameters = "INVALID_PARAMETERS"
	CodeInternalError     = "INTERNAL_ERROR"
	CodeJobNotFound       = "JOB_NOT_FOUND"
	CodeJobNotCompleted   = "JOB_NOT_COMPLETED"
	CodeResultNotFound    = "RESULT_NOT_FOUND"
	CodeBatchTooLarge     = "BATCH_TOO_LARGE"
	CodeNoValidFiles      = "NO_VALID_FILES"
	CodeCannotCancel      = "CANNOT_CANCEL"
	CodeBatchNotFound     = "BATCH_NOT_FOUND"
)

// SurfaceError is the error payload returned by both surface adapters.
type SurfaceError struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details ErrorDetails `json:"details"`
}

// ErrorDetails carries the advisory context attached to every surface error.
type ErrorDetails struct {
	ErrorType      ErrorKind `json:"error_type"`
	UserAction     string    `json:"user_action,omitempty"`
	HTTPEquivalent int       `json:"http_equivalent,omitempty"`
}

func (e *SurfaceError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewSurfaceError builds a surface error with taxonomy metadata derived
// from the code.
func NewSurfaceError(code, message string) *SurfaceError {
	return &SurfaceError{
		Code:    code,
		Message: message,
		Details: detailsForCode(code),
	}
}

func detailsForCode(code string) ErrorDetails {
	switch code {
	case CodeFileNotFound:
		return ErrorDetails{ErrorType: ErrorKindValidation, UserAction: "verify the file path exists and is readable", HTTPEquivalent: 404}
	case CodeInvalidFile:
		return ErrorDetails{ErrorType: ErrorKindValidation, UserAction: "supply a readable, non-empty audio file", HTTPEquivalent: 422}
	case CodeUnsupportedFormat:
		return ErrorDetails{ErrorType: ErrorKindValidation, UserAction: "convert the audio to a supported format (mp3, wav, m4a, ogg, flac, aac, wma)", HTTPEquivalent: 415}
	case CodeFileTooLarge:
		return ErrorDetails{ErrorType: ErrorKindValidation, UserAction: "split the audio or raise max_file_size", HTTPEquivalent: 413}
	case CodeInvalidParameters:
		return ErrorDetails{ErrorType: ErrorKindValidation, UserAction: "check the request parameters against the tool schema", HTTPEquivalent: 422}
	case CodeJobNotFound, CodeBatchNotFound:
		return ErrorDetails{ErrorType: ErrorKindNotFound, UserAction: "verify the job id; it may have been swept by retention", HTTPEquivalent: 404}
	case CodeJobNotCompleted:
		return ErrorDetails{ErrorType: ErrorKindValidation, UserAction: "wait for the job to complete before requesting results", HTTPEquivalent: 422}
	case CodeResultNotFound:
		return ErrorDetails{ErrorType: ErrorKindNotFound, UserAction: "the result artifact is missing; re-submit the transcription", HTTPEquivalent: 404}
	case CodeBatchTooLarge:
		return ErrorDetails{ErrorType: ErrorKindCapacity, UserAction: "split into smaller batches of at most 10 files", HTTPEquivalent: 413}
	case CodeNoValidFiles:
		return ErrorDetails{ErrorType: ErrorKindValidation, UserAction: "check that the listed files exist and use supported formats", HTTPEquivalent: 422}
	case CodeCannotCancel:
		return ErrorDetails{ErrorType: ErrorKindValidation, UserAction: "the job already reached a terminal state", HTTPEquivalent: 422}
	default:
		return ErrorDetails{ErrorType: ErrorKindServer, UserAction: "retry; contact the operator if the failure persists", HTTPEquivalent: 500}
	}
}
