// Package util contains misc internal utilities.
package util

import (
	"math"
	"time"
)

// Clamp limits a value to low <= x <= high
func Clamp(input, low, high float64) float64 {
	return math.Max(low, math.Min(input, high))
}

// SecsToDuration converts a floating point number of seconds to a duration,
// rounded to the nearest nanosecond
func SecsToDuration(secs float64) time.Duration {
	return time.Duration(math.Round(secs * 1e9))
}
