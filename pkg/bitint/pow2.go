// SPDX-License-Identifier: MIT

// Package bitint holds the power-of-two helpers shared by the FFT sizing
// checks and the log throttles. None of them allocate or branch on anything
// but their argument, so they are safe on the serving goroutine.
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of two >= size, or 1 for
// size <= 0. Subtracting one first keeps exact powers unchanged.
func NextPowerOfTwo(size int) int {
	if size <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// IsPowerOfTwo reports whether n has exactly one bit set.
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// IsPowerOfTwo64 is IsPowerOfTwo for counters. Logging only when a counter
// hits a power of two keeps a persistent fault to O(log n) lines.
func IsPowerOfTwo64(n int64) bool {
	return n > 0 && n&(n-1) == 0
}
