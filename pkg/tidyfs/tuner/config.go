package tuner

// Worker configuration limits.
const (
	// maxHashWorkers caps the fingerprint pool. Hashing is cheap
	// relative to reads, so past this point workers only contend for
	// the disk.
	maxHashWorkers = 32

	// minHashWorkers keeps at least two readers in flight so one
	// slow file does not stall the scan.
	minHashWorkers = 2

	// minRecordBuffer is the minimum record/progress buffer size.
	minRecordBuffer = 100

	// maxRecordBuffer is the maximum record/progress buffer size.
	maxRecordBuffer = 100000
)

// Memory-based buffer sizing constants.
const (
	// bytesPerRecord estimates memory per buffered scan record.
	// Each record is roughly a path string (~256 bytes) plus metadata.
	bytesPerRecord = 512

	// bufferMemoryFraction is the fraction of available RAM to use
	// for buffers. Scan records themselves consume most memory.
	bufferMemoryFraction = 0.05
)

// OptimalConfig contains tuned configuration for the detected system.
type OptimalConfig struct {
	// HashWorkers is the number of concurrent fingerprint workers.
	HashWorkers int

	// RecordBuffer is the buffer size for record and progress channels.
	RecordBuffer int
}

// Calculate returns optimal configuration based on system resources.
//
// HashWorkers is NumCPU * 2: fingerprinting alternates between reading
// a chunk and hashing it, so a modest oversubscription keeps the disk
// busy while hashes compute. The count is bounded to [2, 32].
// RecordBuffer is sized from available RAM.
func Calculate(resources SystemResources) OptimalConfig {
	workers := resources.CPUCores * 2
	workers = max(workers, minHashWorkers)
	workers = min(workers, maxHashWorkers)

	return OptimalConfig{
		HashWorkers:  workers,
		RecordBuffer: calculateRecordBuffer(resources.AvailableRAM),
	}
}

// CalculateWithOverrides applies a user override to the optimal config.
// A workerOverride greater than 0 replaces the calculated worker count,
// still respecting the cap; 0 or negative keeps the calculated value.
func CalculateWithOverrides(resources SystemResources, workerOverride int) OptimalConfig {
	config := Calculate(resources)

	if workerOverride > 0 {
		config.HashWorkers = min(workerOverride, maxHashWorkers)
	}

	return config
}

// calculateRecordBuffer determines buffer size based on available memory.
func calculateRecordBuffer(availableRAM int64) int {
	bufferMemory := float64(availableRAM) * bufferMemoryFraction
	entries := int(bufferMemory / bytesPerRecord)

	entries = max(entries, minRecordBuffer)
	entries = min(entries, maxRecordBuffer)

	return entries
}
