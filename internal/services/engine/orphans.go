// -----------------------------------------------------------------------
// Process tracking - Subprocess bookkeeping and orphan detection
// -----------------------------------------------------------------------

package engine

import (
	"strings"
	"sync"
	"syscall"

	"github.com/shirou/gopsutil/v3/process"
)

// ProcessTracker records the pids of engine subprocesses this service
// started, so shutdown can signal exactly those and nothing else.
type ProcessTracker struct {
	mu   sync.Mutex
	pids map[int]struct{}
}

// NewProcessTracker creates an empty tracker.
func NewProcessTracker() *ProcessTracker {
	return &ProcessTracker{pids: make(map[int]struct{})}
}

// Track records a running subprocess pid.
func (t *ProcessTracker) Track(pid int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pids[pid] = struct{}{}
}

// Untrack removes a pid after the subprocess has been reaped.
func (t *ProcessTracker) Untrack(pid int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pids, pid)
}

// Active returns the pids of subprocesses still tracked.
func (t *ProcessTracker) Active() []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	pids := make([]int, 0, len(t.pids))
	for pid := range t.pids {
		pids = append(pids, pid)
	}
	return pids
}

// SignalAll sends sig to the process group of every tracked subprocess.
// Used during shutdown to hand still-running engines a chance to exit.
func (t *ProcessTracker) SignalAll(sig syscall.Signal) {
	for _, pid := range t.Active() {
		_ = syscall.Kill(-pid, sig)
	}
}

// OrphanProcess describes a process matched during the startup scan.
type OrphanProcess struct {
	Pid  int32
	Name string
}

// FindProcessesByName scans the process table for processes whose name
// or command line contains the given binary name. Used at startup to
// surface engines abandoned by a previous run.
func FindProcessesByName(binary string) ([]OrphanProcess, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, err
	}

	var matches []OrphanProcess
	for _, p := range procs {
		name, err := p.Name()
		if err != nil {
			continue
		}
		if name == binary {
			matches = append(matches, OrphanProcess{Pid: p.Pid, Name: name})
			continue
		}
		// Python-hosted engines show up as the interpreter; check argv.
		cmdline, err := p.Cmdline()
		if err != nil {
			continue
		}
		if strings.Contains(cmdline, binary) {
			matches = append(matches, OrphanProcess{Pid: p.Pid, Name: name})
		}
	}
	return matches, nil
}
