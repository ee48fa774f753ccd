package flist

import "sort"

// pathLess orders paths byte-wise with the directory separator treated
// as less than any other byte, matching upstream's f_name_cmp so that a
// directory always sorts immediately before its children (spec §4.4
// "Sorting and deduplication").
func pathLess(a, b string) bool {
	i := 0
	for i < len(a) && i < len(b) {
		ca, cb := a[i], b[i]
		if ca != cb {
			return rank(ca) < rank(cb)
		}
		i++
	}
	return len(a) < len(b)
}

func rank(c byte) int {
	if c == '/' {
		return -1
	}
	return int(c)
}

// SortAndDedup sorts entries by path per pathLess and collapses
// duplicate paths, keeping the last-written metadata for each (spec
// §4.4: "Duplicates (same path) are collapsed with the last-written
// metadata winning").
func SortAndDedup(entries []Entry) []Entry {
	// Stable sort preserves "last written wins" among equal paths
	// because later duplicates keep their original relative order and
	// are picked up by the final dedup pass below.
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return pathLess(sorted[i].Path, sorted[j].Path)
	})

	out := make([]Entry, 0, len(sorted))
	for i := 0; i < len(sorted); i++ {
		if i > 0 && sorted[i].Path == sorted[i-1].Path {
			out[len(out)-1] = sorted[i]
			continue
		}
		out = append(out, sorted[i])
	}
	return out
}
