package chord

import (
	"github.com/zeebo/xxh3"
)

const (
	// Also known as m in the original paper
	DefaultBits Space = 48
	// Largest m such that 2^m still fits in uint64 arithmetic
	MaxBits Space = 63
)

// Space is the identifier space of the ring, expressed as the number of bits m.
// Identifiers live in [0, 2^m) and every node keeps m finger entries.
type Space uint

func (s Space) Valid() bool {
	return s >= 1 && s <= MaxBits
}

// Size returns NKEYS = 2^m
func (s Space) Size() uint64 {
	return 1 << s
}

// Fingers returns NFINGERS, which is m
func (s Space) Fingers() int {
	return int(s)
}

func (s Space) Hash(b []byte) uint64 {
	return xxh3.Hash(b) % s.Size()
}

func (s Space) HashString(key string) uint64 {
	return xxh3.HashString(key) % s.Size()
}

func (s Space) ModuloSum(x, y uint64) uint64 {
	// split (x + y) % m into (x % m + y % m) % m to avoid overflow
	m := s.Size()
	return (x%m + y%m) % m
}

// FingerStart returns the identifier that finger i should succeed: (id + 2^i) mod 2^m
func (s Space) FingerStart(id uint64, i int) uint64 {
	return s.ModuloSum(id, 1<<uint(i))
}

// InInterval reports whether x lies in (lo, hi] when inclusive is set, or (lo, hi)
// otherwise. lo == hi denotes the entire ring.
func InInterval(x, lo, hi uint64, inclusive bool) bool {
	return Between(lo, x, hi, inclusive)
}

func Between(low, target, high uint64, inclusive bool) bool {
	// account for loop around
	if high > low {
		return (low < target && target < high) || (inclusive && target == high)
	} else {
		return low < target || target < high || (inclusive && target == high)
	}
}

// target IN [low, high)
func BetweenInclusiveLow(low, target, high uint64) bool {
	if high > low {
		return (low <= target && target < high)
	} else {
		return (low <= target || target < high)
	}
}

// target IN (low, high]
func BetweenInclusiveHigh(low, target, high uint64) bool {
	if high > low {
		return (low < target && target <= high)
	} else {
		return (low < target || target <= high)
	}
}

// target IN (low, high)
func BetweenStrict(low, target, high uint64) bool {
	if high > low {
		return low < target && target < high
	} else {
		return low < target || target < high
	}
}
