// Package checksum implements the rolling checksum and the strong-digest
// tagged variant used by the signature and delta engines (spec §4.1).
package checksum

// rollingModulus matches upstream rsync's CHAR_OFFSET-free variant: s1/s2
// are reduced mod 1<<16 before being packed into the 32-bit rolling
// value, as in the reference rolling_checksum construction (grounded on
// other_examples kitty tools/rsync/algorithm.go's rolling_checksum).
const rollingModulus = 1 << 16

// Rolling is a 32-bit sum-of-bytes + weighted-sum digest supporting O(1)
// slide-by-one-byte advance. The zero value is ready to use.
type Rolling struct {
	s1, s2 uint32
	length uint32
	first  uint32 // leading byte of the current window, needed by Advance
}

// New returns a fresh Rolling checksum.
func New() *Rolling {
	return &Rolling{}
}

// Update computes the rolling checksum over data from scratch, replacing
// any previous window. This is the "batch append" / full(data) path used
// to seed a new window (e.g. at a block boundary after a match).
func (r *Rolling) Update(data []byte) {
	var s1, s2 uint32
	n := uint32(len(data))
	for i, b := range data {
		s1 += uint32(b)
		s2 += (n - uint32(i)) * uint32(b)
	}
	r.length = n
	if n > 0 {
		r.first = uint32(data[0])
	} else {
		r.first = 0
	}
	r.s1 = s1 % rollingModulus
	r.s2 = s2 % rollingModulus
}

// Advance slides the window forward by one byte in O(1): old is the
// byte leaving the window, new is the byte entering it. The window
// length is unchanged.
//
// Invariant (spec §8 "Rolling slide identity"): Update(x[0:B]) then
// Advance(x[0], x[B]) equals a fresh Update(x[1:B+1]).
func (r *Rolling) Advance(old, new byte) {
	r.s1 = (r.s1 - uint32(old) + uint32(new)) % rollingModulus
	r.s2 = (r.s2 - r.length*uint32(old) + r.s1) % rollingModulus
	r.first = uint32(new)
}

// Value packs the current state into rsync's 32-bit rolling checksum
// representation: s1 in the low 16 bits, s2 in the high 16 bits.
func (r *Rolling) Value() uint32 {
	return (r.s1 & 0xFFFF) | ((r.s2 & 0xFFFF) << 16)
}

// RollingChecksum is a convenience one-shot helper equivalent to
// New().Update(data).Value().
func RollingChecksum(data []byte) uint32 {
	r := New()
	r.Update(data)
	return r.Value()
}
