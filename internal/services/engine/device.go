// -----------------------------------------------------------------------
// Device selection - GPU/CPU policy for the transcription subprocess
// -----------------------------------------------------------------------

package engine

import (
	"os"
	"os/exec"
	"runtime"

	"github.com/ternarybob/scriba/internal/common"
	"github.com/ternarybob/scriba/internal/models"
)

// DeviceChoice is the resolved execution target for one engine run.
type DeviceChoice struct {
	Device      string // "cuda" or "cpu"
	ComputeType string // "float16", "int8" or "float32"
	BatchSize   int
}

// gpuProbe reports whether an accelerator is usable. Overridable in tests.
var gpuProbe = detectGPU

// detectGPU checks for a usable CUDA device. nvidia-smi on PATH is the
// pragmatic signal the bundled engine itself relies on.
func detectGPU() bool {
	if os.Getenv("CUDA_VISIBLE_DEVICES") == "-1" {
		return false
	}
	_, err := exec.LookPath("nvidia-smi")
	return err == nil
}

// SelectDevice resolves device, compute precision and batch size from the
// configuration and per-job overrides.
//
//	GPU present          -> GPU, float16, configured batch (default 16)
//	GPU absent           -> CPU, int8, batch 1
//	override = cpu       -> CPU, int8, batch 1
//	explicit compute type always wins
func SelectDevice(cfg *common.EngineConfig, params models.JobParameters) DeviceChoice {
	requested := params.Device
	if requested == "" {
		requested = cfg.Device
	}

	useGPU := false
	switch requested {
	case "", "auto":
		useGPU = cfg.UseGPU && gpuProbe()
	case "cpu":
		useGPU = false
	default:
		// Explicit GPU identifier (e.g. "cuda", "cuda:1")
		useGPU = gpuProbe()
	}

	choice := DeviceChoice{}
	if useGPU {
		choice.Device = "cuda"
		if requested != "" && requested != "auto" && requested != "cpu" {
			choice.Device = requested
		}
		choice.ComputeType = "float16"
		choice.BatchSize = cfg.BatchSize
		if choice.BatchSize <= 0 {
			choice.BatchSize = 16
		}
	} else {
		choice.Device = "cpu"
		choice.ComputeType = "int8"
		choice.BatchSize = 1
	}

	if params.ComputeType != "" {
		choice.ComputeType = params.ComputeType
	}
	return choice
}

// threadCap bounds native thread pools to avoid oversubscription.
func threadCap(configured int) int {
	limit := configured
	if limit <= 0 {
		limit = 8
	}
	if n := runtime.NumCPU(); n < limit {
		limit = n
	}
	return limit
}
