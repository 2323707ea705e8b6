// Package tuner detects system resources and sizes the fingerprint
// worker pool and record buffers accordingly. Callers with an explicit
// worker count configured bypass the calculation via
// CalculateWithOverrides.
package tuner

// SystemResources contains detected system resources.
type SystemResources struct {
	// CPUCores is the number of logical CPU cores available.
	CPUCores int

	// TotalRAM is the total physical RAM in bytes.
	TotalRAM int64

	// AvailableRAM is the available (free) RAM in bytes.
	// This may be an estimate based on system heuristics.
	AvailableRAM int64
}
