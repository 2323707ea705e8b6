//go:build darwin

package tuner

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// Detect detects available system resources (CPU and RAM).
// On darwin (macOS), it uses runtime.NumCPU() for CPU cores and
// unix.SysctlUint64 for memory information.
func Detect() (SystemResources, error) {
	resources := SystemResources{
		CPUCores: runtime.NumCPU(),
	}

	totalRAM, err := getTotalRAM()
	if err != nil {
		return resources, fmt.Errorf("failed to get total RAM: %w", err)
	}
	resources.TotalRAM = totalRAM

	// Precise available memory on macOS requires parsing vm_stat or
	// host_statistics. A 50% heuristic is enough for buffer sizing.
	resources.AvailableRAM = totalRAM / 2

	return resources, nil
}

// getTotalRAM retrieves the total physical memory on darwin using sysctl.
func getTotalRAM() (int64, error) {
	memsize, err := unix.SysctlUint64("hw.memsize")
	if err != nil {
		return 0, fmt.Errorf("sysctl hw.memsize: %w", err)
	}

	return int64(memsize), nil
}
