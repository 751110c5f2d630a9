// -----------------------------------------------------------------------
// Diarizer - Lazily initialized speaker diarization pipeline
// -----------------------------------------------------------------------

package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scriba/internal/common"
	"github.com/ternarybob/scriba/internal/models"
)

// Diarizer runs the speaker diarization pipeline as a helper subprocess.
// Initialization is lazy and happens at most once: the first Diarize call
// probes the helper binary and the access token, and a failed probe is
// remembered so every later call fails fast with the same soft error.
type Diarizer struct {
	config *common.DiarizeConfig
	logger arbor.ILogger

	mu        sync.Mutex
	probed    bool
	available bool
}

// NewDiarizer creates a diarizer. No pipeline resources are touched until
// the first Diarize call.
func NewDiarizer(config *common.DiarizeConfig, logger arbor.ILogger) *Diarizer {
	return &Diarizer{config: config, logger: logger}
}

// Available reports whether the pipeline initialized successfully. Before
// the first Diarize call it reports whether the prerequisites look
// satisfied without touching the pipeline.
func (d *Diarizer) Available() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.probed {
		return d.available
	}
	return d.config.HFToken != ""
}

// ensureReady performs the one-time pipeline probe under the mutex so
// concurrent jobs never race the initialization.
func (d *Diarizer) ensureReady() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.probed {
		if !d.available {
			return models.ErrDiarizationUnavailable
		}
		return nil
	}
	d.probed = true

	if d.config.HFToken == "" {
		d.logger.Warn().Msg("Diarization disabled: no access token configured")
		return models.ErrDiarizationUnavailable
	}
	if _, err := exec.LookPath(d.config.Binary); err != nil {
		d.logger.Warn().Str("binary", d.config.Binary).Msg("Diarization disabled: helper binary not found")
		return models.ErrDiarizationUnavailable
	}

	d.available = true
	d.logger.Info().Str("model", d.config.Model).Msg("Diarization pipeline ready")
	return nil
}

// diarizationResult mirrors the helper's JSON output on stdout.
type diarizationResult struct {
	Turns []struct {
		Start   float64 `json:"start"`
		End     float64 `json:"end"`
		Speaker string  `json:"speaker"`
	} `json:"turns"`
}

// Diarize produces speaker turns for the audio file. A pipeline that
// cannot initialize, or a helper run that fails, yields
// models.ErrDiarizationUnavailable so the caller can complete the job
// without speaker labels.
func (d *Diarizer) Diarize(ctx context.Context, sourcePath string) ([]models.DiarizationTurn, error) {
	if err := d.ensureReady(); err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, d.config.Binary,
		"--model", d.config.Model,
		"--audio", sourcePath,
	)
	cmd.Env = append(os.Environ(), "HF_TOKEN="+d.config.HFToken)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, models.ErrCancelled
		}
		d.logger.Warn().Err(err).Str("stderr", tail(stderr.String(), 500)).Msg("Diarization helper failed")
		return nil, fmt.Errorf("%w: %v", models.ErrDiarizationUnavailable, err)
	}

	var result diarizationResult
	if err := json.Unmarshal(stdout.Bytes(), &result); err != nil {
		return nil, fmt.Errorf("%w: malformed helper output: %v", models.ErrDiarizationUnavailable, err)
	}

	turns := make([]models.DiarizationTurn, 0, len(result.Turns))
	for _, t := range result.Turns {
		turns = append(turns, models.DiarizationTurn{
			Start:        t.Start,
			End:          t.End,
			SpeakerLabel: t.Speaker,
		})
	}
	return turns, nil
}
