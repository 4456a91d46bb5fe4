package snapshot

import (
	"fmt"
	"math/bits"
	"strings"
)

// Mask is an attribute bitmask: bit i set means "this entity has the
// attribute at dictionary index i". Masks are the cheap pre-filter the
// runtime applies before evaluating any predicate program.
type Mask []uint64

// NewMask creates a mask sized for the given number of attribute bits.
func NewMask(size int) Mask {
	return make(Mask, (size+63)/64)
}

// Set sets the given bit, growing the mask if needed.
func (m *Mask) Set(bit int) {
	word := bit / 64
	for len(*m) <= word {
		*m = append(*m, 0)
	}
	(*m)[word] |= 1 << (bit % 64)
}

// Has reports whether the given bit is set.
func (m Mask) Has(bit int) bool {
	word := bit / 64
	if word >= len(m) {
		return false
	}
	return m[word]&(1<<(bit%64)) != 0
}

// Contains reports whether every bit set in other is also set in m. This is
// the step pre-filter: entityMask.Contains(step.RuleMask).
func (m Mask) Contains(other Mask) bool {
	for i, w := range other {
		if i >= len(m) {
			if w != 0 {
				return false
			}
			continue
		}
		if m[i]&w != w {
			return false
		}
	}
	return true
}

// Popcount returns the number of set bits.
func (m Mask) Popcount() int {
	total := 0
	for _, w := range m {
		total += bits.OnesCount64(w)
	}
	return total
}

// IsZero reports whether no bits are set.
func (m Mask) IsZero() bool {
	for _, w := range m {
		if w != 0 {
			return false
		}
	}
	return true
}

// Clone returns an independent copy of the mask.
func (m Mask) Clone() Mask {
	out := make(Mask, len(m))
	copy(out, m)
	return out
}

// String returns the mask as hex words, most significant word first.
func (m Mask) String() string {
	if len(m) == 0 {
		return "0x0"
	}
	var sb strings.Builder
	sb.WriteString("0x")
	for i := len(m) - 1; i >= 0; i-- {
		fmt.Fprintf(&sb, "%016x", m[i])
	}
	return sb.String()
}
