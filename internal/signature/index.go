package signature

import "sort"

// Index is the sender-side two-level signature lookup structure (spec
// §4.5 "Signature index (sender side)"): a 16-bit hash table keyed on
// the upper 16 bits of the rolling checksum, each bucket holding a list
// of candidate blocks sorted by full rolling value for a fast narrowing
// scan before a strong-digest confirmation.
type Index struct {
	buckets   [65536][]Block
	strongLen int
}

// BuildIndex constructs an Index over the given signature blocks.
func BuildIndex(blocks []Block, strongSumLength int) *Index {
	idx := &Index{strongLen: strongSumLength}
	for _, b := range blocks {
		bucket := b.Rolling >> 16
		idx.buckets[bucket] = append(idx.buckets[bucket], b)
	}
	for i := range idx.buckets {
		sort.Slice(idx.buckets[i], func(a, b int) bool {
			return idx.buckets[i][a].Rolling < idx.buckets[i][b].Rolling
		})
	}
	return idx
}

// Lookup returns the candidate blocks sharing rolling's upper 16 bits.
// Confirming an actual match still requires comparing the full rolling
// value and then the strong digest.
func (idx *Index) Lookup(rolling uint32) []Block {
	return idx.buckets[rolling>>16]
}

// FindStrongMatch scans the bucket for rolling for an exact rolling
// match whose strong digest equals strong, returning (blockIndex, true)
// on success.
func (idx *Index) FindStrongMatch(rolling uint32, strong []byte) (int64, bool) {
	for _, b := range idx.Lookup(rolling) {
		if b.Rolling != rolling {
			continue
		}
		if bytesEqual(b.StrongSum, strong) {
			return b.Index, true
		}
	}
	return 0, false
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
