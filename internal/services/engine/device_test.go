package engine

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/scriba/internal/common"
	"github.com/ternarybob/scriba/internal/models"
)

func withGPUProbe(t *testing.T, available bool) {
	t.Helper()
	prev := gpuProbe
	gpuProbe = func() bool { return available }
	t.Cleanup(func() { gpuProbe = prev })
}

func TestSelectDevice_GPUAvailable(t *testing.T) {
	withGPUProbe(t, true)
	cfg := &common.EngineConfig{UseGPU: true, BatchSize: 16}

	choice := SelectDevice(cfg, models.JobParameters{})
	assert.Equal(t, "cuda", choice.Device)
	assert.Equal(t, "float16", choice.ComputeType)
	assert.Equal(t, 16, choice.BatchSize)
}

func TestSelectDevice_GPUAbsentFallsBackToCPU(t *testing.T) {
	withGPUProbe(t, false)
	cfg := &common.EngineConfig{UseGPU: true, BatchSize: 16}

	choice := SelectDevice(cfg, models.JobParameters{})
	assert.Equal(t, "cpu", choice.Device)
	assert.Equal(t, "int8", choice.ComputeType)
	assert.Equal(t, 1, choice.BatchSize)
}

func TestSelectDevice_ExplicitCPUOverride(t *testing.T) {
	withGPUProbe(t, true)
	cfg := &common.EngineConfig{UseGPU: true, BatchSize: 16}

	choice := SelectDevice(cfg, models.JobParameters{Device: "cpu"})
	assert.Equal(t, "cpu", choice.Device)
	assert.Equal(t, "int8", choice.ComputeType)
	assert.Equal(t, 1, choice.BatchSize)
}

func TestSelectDevice_ExplicitGPUIdentifier(t *testing.T) {
	withGPUProbe(t, true)
	cfg := &common.EngineConfig{UseGPU: true, BatchSize: 8}

	choice := SelectDevice(cfg, models.JobParameters{Device: "cuda:1"})
	assert.Equal(t, "cuda:1", choice.Device)
	assert.Equal(t, "float16", choice.ComputeType)
	assert.Equal(t, 8, choice.BatchSize)
}

func TestSelectDevice_ExplicitComputeTypeWins(t *testing.T) {
	withGPUProbe(t, false)
	cfg := &common.EngineConfig{UseGPU: true}

	choice := SelectDevice(cfg, models.JobParameters{ComputeType: "float32"})
	assert.Equal(t, "cpu", choice.Device)
	assert.Equal(t, "float32", choice.ComputeType)
}

func TestSelectDevice_DefaultBatchSize(t *testing.T) {
	withGPUProbe(t, true)
	cfg := &common.EngineConfig{UseGPU: true} // batch size unset

	choice := SelectDevice(cfg, models.JobParameters{})
	assert.Equal(t, 16, choice.BatchSize)
}

func TestThreadCap(t *testing.T) {
	assert.LessOrEqual(t, threadCap(0), 8)
	assert.LessOrEqual(t, threadCap(64), runtime.NumCPU())
	if runtime.NumCPU() >= 2 {
		assert.Equal(t, 2, threadCap(2))
	}
}
