// Package tuner detects system resources and derives the worker counts
// and cache capacity an apply run uses when the config leaves them unset.
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

// Worker and cache limits.
const (
	maxWorkers       = 64
	minMergeWorkers  = 2
	minMemberWorkers = 2

	minCacheEntries = 256
	maxCacheEntries = 65536
)

// bytesPerCacheEntry estimates the resident size of one parsed resource.
const bytesPerCacheEntry = 64 * 1024

// cacheMemoryFraction is the share of available RAM given to the cache.
const cacheMemoryFraction = 0.10

// OptimalConfig is the tuned configuration for an apply run.
type OptimalConfig struct {
	// MergeWorkers is the number of top-level paths merged at once.
	MergeWorkers int

	// MemberWorkers bounds parallel member merges inside one archive.
	MemberWorkers int

	// CacheCapacity is the in-memory resource cache size in entries.
	CacheCapacity int
}

// Calculate returns the configuration for the given resources.
//
// Merging is CPU bound, so MergeWorkers is NumCPU. Archive members
// share the same cores, so MemberWorkers is half of that. Cache
// capacity is sized from available RAM.
func Calculate(resources SystemResources) OptimalConfig {
	merge := min(max(resources.CPUCores, minMergeWorkers), maxWorkers)
	member := max(merge/2, minMemberWorkers)

	return OptimalConfig{
		MergeWorkers:  merge,
		MemberWorkers: member,
		CacheCapacity: calculateCacheCapacity(resources.AvailableRAM),
	}
}

// CalculateWithOverrides applies user overrides to the calculated
// config. Values of zero or less keep the calculated value.
func CalculateWithOverrides(resources SystemResources, workers, capacity int) OptimalConfig {
	config := Calculate(resources)
	if workers > 0 {
		config.MergeWorkers = min(workers, maxWorkers)
		config.MemberWorkers = max(config.MergeWorkers/2, minMemberWorkers)
	}
	if capacity > 0 {
		config.CacheCapacity = capacity
	}
	return config
}

func calculateCacheCapacity(availableRAM int64) int {
	entries := int(float64(availableRAM) * cacheMemoryFraction / bytesPerCacheEntry)
	return min(max(entries, minCacheEntries), maxCacheEntries)
}
