package workers

import (
	"os"
	"runtime"
	"strconv"
)

// Environment variables that override computed pool sizes.
const (
	EnvIndexWorkers      = "INDEX_WORKERS"
	EnvConversionWorkers = "CONVERSION_WORKERS"
)

// Count returns the worker count for a pool. An explicit positive integer in
// envVar wins over the computed value; either way the result is capped by
// limit when limit > 0 and is never below 1.
//
// The multiplier adjusts for task characteristics:
//   - 1.0 for CPU-bound tasks
//   - 2.0 for I/O-bound tasks
func Count(envVar string, multiplier float64, limit int) int {
	if envVar != "" {
		if override := os.Getenv(envVar); override != "" {
			if count, err := strconv.Atoi(override); err == nil && count > 0 {
				return capped(count, limit)
			}
		}
	}

	workers := int(float64(runtime.GOMAXPROCS(0)) * multiplier)
	if workers < 1 {
		workers = 1
	}
	return capped(workers, limit)
}

func capped(n, limit int) int {
	if limit > 0 && n > limit {
		return limit
	}
	return n
}

// ForScan returns the scan pool size (2 per CPU).
func ForScan(limit int) int {
	return Count(EnvIndexWorkers, 2.0, limit)
}

// ForConversion returns the conversion pool size (1 per CPU).
func ForConversion(limit int) int {
	return Count(EnvConversionWorkers, 1.0, limit)
}
