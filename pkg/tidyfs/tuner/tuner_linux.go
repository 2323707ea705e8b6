//go:build linux

package tuner

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// Detect detects available system resources (CPU and RAM).
// On linux it uses runtime.NumCPU() for CPU cores and the sysinfo
// syscall for memory information.
func Detect() (SystemResources, error) {
	resources := SystemResources{
		CPUCores: runtime.NumCPU(),
	}

	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return resources, fmt.Errorf("sysinfo: %w", err)
	}

	unit := int64(info.Unit)
	if unit == 0 {
		unit = 1
	}

	resources.TotalRAM = int64(info.Totalram) * unit

	// Freeram undercounts what is usable because the page cache is
	// reclaimable; counting buffers back in gets closer to the
	// /proc/meminfo "available" figure without parsing it.
	resources.AvailableRAM = (int64(info.Freeram) + int64(info.Bufferram)) * unit
	if resources.AvailableRAM > resources.TotalRAM {
		resources.AvailableRAM = resources.TotalRAM
	}

	return resources, nil
}
