package common

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Align8 rounds the given integer up to the nearest multiple of 8.
func Align8(n int) int {
	return (n + 7) &^ 7
}

// AlignedTo8 returns true if the integer is a multiple of 8.
func AlignedTo8(n int) bool {
	return n%8 == 0
}

// Assert checks a condition and panics if it is false.
//
// Assertions are reserved for invariants: truths about internal state that
// must always hold. If one fails, continuing execution risks persisting
// corrupted data, so the engine crashes with a diagnostic instead. User
// input validation and I/O failures return errors, never assert.
func Assert(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf(format, args...))
	}
}

// Hash computes a 64-bit hash of the provided byte slice without allocation.
func Hash(data []byte) uint64 {
	return xxhash.Sum64(data)
}

// Hash32 folds the 64-bit hash into the 32-bit value the hash index
// addresses buckets with.
func Hash32(data []byte) uint32 {
	h := xxhash.Sum64(data)
	return uint32(h>>32) ^ uint32(h)
}
