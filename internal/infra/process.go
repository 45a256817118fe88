package infra

import (
	"fmt"
	"os"
	"strings"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

// ProcessManagerImpl implements domain.ProcessManager using gopsutil.
type ProcessManagerImpl struct{}

// NewProcessManager creates a new process manager.
func NewProcessManager() *ProcessManagerImpl {
	return &ProcessManagerImpl{}
}

// FindByName returns PIDs of processes whose name contains pattern,
// ignoring case.
func (pm *ProcessManagerImpl) FindByName(pattern string) ([]int, error) {
	var found []int
	err := pm.scan(func(pid int32, name string) {
		if strings.Contains(name, strings.ToLower(pattern)) {
			found = append(found, int(pid))
		}
	})
	return found, err
}

// CountByName counts processes per pattern in one pass over the process
// table. Patterns with no match are absent from the result.
func (pm *ProcessManagerImpl) CountByName(patterns ...string) (map[string]int, error) {
	counts := make(map[string]int)
	err := pm.scan(func(_ int32, name string) {
		for _, pattern := range patterns {
			if strings.Contains(name, strings.ToLower(pattern)) {
				counts[pattern]++
			}
		}
	})
	return counts, err
}

// scan calls fn with the lowercased name of every live process.
func (pm *ProcessManagerImpl) scan(fn func(pid int32, name string)) error {
	procs, err := process.Processes()
	if err != nil {
		return fmt.Errorf("list processes: %w", err)
	}
	for _, p := range procs {
		name, err := p.Name()
		if err != nil {
			continue // exited
		}
		fn(p.Pid, strings.ToLower(name))
	}
	return nil
}

// Terminate asks a process to exit (SIGTERM) so it can shut down cleanly.
func (pm *ProcessManagerImpl) Terminate(pid int) error {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return err
	}
	return p.Terminate()
}

// IsRunning checks if a PID exists and is not a zombie.
func (pm *ProcessManagerImpl) IsRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	exists, err := process.PidExists(int32(pid))
	if err != nil || !exists {
		return false
	}
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return false
	}
	status, err := p.Status()
	if err != nil {
		return true
	}
	for _, s := range status {
		if s == process.Zombie {
			return false
		}
	}
	return true
}

// GetCurrentPID returns the current process PID.
func (pm *ProcessManagerImpl) GetCurrentPID() int {
	return os.Getpid()
}

// Ensure ProcessManagerImpl implements domain.ProcessManager.
var _ domain.ProcessManager = (*ProcessManagerImpl)(nil)
