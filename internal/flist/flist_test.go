package flist

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func sampleEntries() []Entry {
	return []Entry{
		{Path: "a.txt", Type: Regular, Size: 5, Mode: 0100644, MtimeSec: 1000, HasUID: true, UID: 1000, HasGID: true, GID: 1000, HardLinkGroup: -1},
		{Path: "dir", Type: Directory, Mode: 040755, MtimeSec: 1000, HasUID: true, UID: 1000, HasGID: true, GID: 1000, HardLinkGroup: -1},
		{Path: "dir/b.txt", Type: Regular, Size: 12345, Mode: 0100644, MtimeSec: 1001, HasUID: true, UID: 1000, HasGID: true, GID: 1000, HardLinkGroup: -1},
		{Path: "link", Type: Symlink, Mode: 0120777, MtimeSec: 999, SymlinkTarget: "a.txt", HasUID: true, UID: 1000, HasGID: true, GID: 1000, HardLinkGroup: -1},
	}
}

func TestFileListRoundTrip(t *testing.T) {
	entries := sampleEntries()
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			t.Fatalf("Encode(%q): %v", e.Path, err)
		}
	}
	if err := enc.Finish(); err != nil {
		t.Fatal(err)
	}

	dec := NewDecoder(&buf)
	var got []Entry
	for {
		e, done, err := dec.Decode()
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if done {
			break
		}
		got = append(got, e)
	}

	if diff := cmp.Diff(entries, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestSortAndDedupOrdersAndCollapses(t *testing.T) {
	entries := []Entry{
		{Path: "b", Size: 1},
		{Path: "a", Size: 1},
		{Path: "a/b", Size: 1},
		{Path: "a", Size: 2}, // duplicate of "a", last wins
	}
	got := SortAndDedup(entries)
	wantPaths := []string{"a", "a/b", "b"}
	if len(got) != len(wantPaths) {
		t.Fatalf("got %d entries, want %d: %+v", len(got), len(wantPaths), got)
	}
	for i, p := range wantPaths {
		if got[i].Path != p {
			t.Errorf("entry %d: path = %q, want %q", i, got[i].Path, p)
		}
	}
	if got[0].Size != 2 {
		t.Errorf("dedup should keep last-written size, got %d", got[0].Size)
	}
}

func TestTreeYieldsEachUnsentDirectoryOnce(t *testing.T) {
	tree := NewTree()
	root := tree.Root()
	a := tree.AddDir(root, 1, "a")
	tree.AddDir(a, 2, "a/b")
	tree.AddDir(root, 3, "c")

	var order []int32
	for {
		idx := tree.NextUnsent(root)
		if idx == noIndex {
			break
		}
		order = append(order, tree.NDX(idx))
		tree.MarkSent(idx)
	}
	if len(order) != 3 {
		t.Fatalf("expected 3 directories visited, got %v", order)
	}
	seen := map[int32]bool{}
	for _, ndx := range order {
		if seen[ndx] {
			t.Errorf("NDX %d visited more than once", ndx)
		}
		seen[ndx] = true
	}
}
