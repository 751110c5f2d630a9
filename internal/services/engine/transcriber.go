// -----------------------------------------------------------------------
// Transcriber - Supervised WhisperX subprocess with timeout and
// graceful-then-forceful cancellation
// -----------------------------------------------------------------------

package engine

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scriba/internal/common"
	"github.com/ternarybob/scriba/internal/interfaces"
	"github.com/ternarybob/scriba/internal/models"
)

// Transcriber runs the transcription engine as an external process. The
// subprocess is the only safe supervision boundary for the heavyweight
// engine: it gets a hard timeout, a graceful-then-forceful cancellation
// path, and an isolated scratch output directory per run.
type Transcriber struct {
	config  *common.EngineConfig
	scratch string
	tracker *ProcessTracker
	logger  arbor.ILogger
}

// NewTranscriber creates a transcriber writing scratch output under
// scratchDir. It scans for (and logs) orphan engine processes left over
// from previous runs; foreign processes are never killed.
func NewTranscriber(config *common.EngineConfig, scratchDir string, tracker *ProcessTracker, logger arbor.ILogger) *Transcriber {
	t := &Transcriber{
		config:  config,
		scratch: scratchDir,
		tracker: tracker,
		logger:  logger,
	}
	t.logOrphans()
	return t
}

// Transcribe runs the engine on the source file and parses its canonical
// JSON output. Progress checkpoints: 10 loading, 20 model ready,
// 60 transcription complete, 70 alignment complete.
func (t *Transcriber) Transcribe(ctx context.Context, sourcePath string, params models.JobParameters, sink interfaces.ProgressSink) (*interfaces.RawTranscription, error) {
	started := time.Now()

	outputDir, err := os.MkdirTemp(t.scratch, "run-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	defer os.RemoveAll(outputDir)

	choice := SelectDevice(t.config, params)
	model := params.ModelSize
	if model == "" {
		model = t.config.Model
	}

	if sink != nil {
		sink(10, "loading model")
	}

	args := []string{
		sourcePath,
		"--model", model,
		"--device", choice.Device,
		"--compute_type", choice.ComputeType,
		"--batch_size", fmt.Sprintf("%d", choice.BatchSize),
		"--output_format", "json",
		"--output_dir", outputDir,
	}
	if params.Language != "" {
		args = append(args, "--language", params.Language)
	}

	timeout := t.config.ProcessingTimeout
	runCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cmd := exec.Command(t.config.Binary, args...)
	cmd.Env = t.subprocessEnv(choice)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true} // own the process group
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrEngineFailure, err)
	}
	pid := cmd.Process.Pid
	t.tracker.Track(pid)
	defer t.tracker.Untrack(pid)

	t.logger.Info().
		Str("binary", t.config.Binary).
		Str("model", model).
		Str("device", choice.Device).
		Int("pid", pid).
		Msg("Engine subprocess started")

	if sink != nil {
		sink(20, "model ready")
	}

	waitErr := t.supervise(ctx, runCtx, cmd)
	if waitErr != nil {
		switch {
		case runCtx.Err() == context.DeadlineExceeded:
			return nil, fmt.Errorf("%w after %s", models.ErrTimeout, timeout)
		case ctx.Err() != nil:
			return nil, models.ErrCancelled
		default:
			return nil, fmt.Errorf("%w: %s", models.ErrEngineFailure, tail(stderr.String(), 2000))
		}
	}

	if sink != nil {
		sink(60, "transcription complete")
	}

	segments, language, err := parseOutputDir(outputDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrEngineFailure, err)
	}

	if sink != nil {
		sink(70, "alignment complete")
	}

	audioSeconds := 0.0
	if len(segments) > 0 {
		audioSeconds = segments[len(segments)-1].End
	}

	t.logger.Info().
		Int("segments", len(segments)).
		Str("language", language).
		Dur("elapsed", time.Since(started)).
		Msg("Engine subprocess finished")

	return &interfaces.RawTranscription{
		Segments:     segments,
		Language:     language,
		AudioSeconds: audioSeconds,
		Device:       choice.Device,
		Model:        model,
	}, nil
}

// supervise waits for the subprocess, translating cancellation into a
// graceful terminate followed by a kill after the configured grace, and
// timeout into an immediate kill of the process group.
func (t *Transcriber) supervise(cancelCtx, timeoutCtx context.Context, cmd *exec.Cmd) error {
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	pgid := -cmd.Process.Pid // negative pid signals the group

	select {
	case err := <-done:
		return err

	case <-cancelCtx.Done():
		t.logger.Info().Int("pid", cmd.Process.Pid).Msg("Cancelling engine subprocess")
		_ = syscall.Kill(pgid, syscall.SIGTERM)
		select {
		case <-done:
		case <-time.After(t.config.CancelGrace):
			t.logger.Warn().Int("pid", cmd.Process.Pid).Msg("Grace expired, killing engine subprocess")
			_ = syscall.Kill(pgid, syscall.SIGKILL)
			<-done
		}
		return models.ErrCancelled

	case <-timeoutCtx.Done():
		t.logger.Error().Int("pid", cmd.Process.Pid).Msg("Engine subprocess timed out, killing")
		_ = syscall.Kill(pgid, syscall.SIGKILL)
		<-done
		return models.ErrTimeout
	}
}

// subprocessEnv pins native thread pools and exposes the configured
// accelerator to the engine.
func (t *Transcriber) subprocessEnv(choice DeviceChoice) []string {
	threads := fmt.Sprintf("%d", threadCap(t.config.ThreadCap))
	env := append(os.Environ(),
		"OMP_NUM_THREADS="+threads,
		"MKL_NUM_THREADS="+threads,
		"OPENBLAS_NUM_THREADS="+threads,
	)
	if choice.Device == "cpu" {
		env = append(env, "CUDA_VISIBLE_DEVICES=-1")
	}
	if t.config.AcceleratorLibDir != "" {
		env = append(env, "LD_LIBRARY_PATH="+t.config.AcceleratorLibDir+
			string(os.PathListSeparator)+os.Getenv("LD_LIBRARY_PATH"))
	}
	return env
}

// logOrphans scans for engine processes from previous runs and logs
// them. They are never killed: a pid match alone does not prove we
// started the process.
func (t *Transcriber) logOrphans() {
	binary := filepath.Base(t.config.Binary)
	orphans, err := FindProcessesByName(binary)
	if err != nil {
		t.logger.Debug().Err(err).Msg("Orphan scan failed")
		return
	}
	for _, o := range orphans {
		t.logger.Warn().
			Int32("pid", o.Pid).
			Str("name", o.Name).
			Msg("Orphan engine process detected from a previous run")
	}
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
