package flist

// Tree is the arena-indexed directory structure used by incremental
// recursion (INC_RECURSE): nodes reference each other by index into a
// single slice rather than by pointer, which sidesteps ownership cycles
// and makes traversal allocation-free (spec §9 "Cyclic references").
type Tree struct {
	nodes []node
}

type node struct {
	ndx         int32 // NDX this directory was assigned on the wire, or -1 for the synthetic root
	path        string
	firstChild  int32 // index into nodes, or -1
	nextSibling int32 // index into nodes, or -1
	parent      int32 // index into nodes, or -1 for the root
	sent        bool
}

const noIndex = -1

// NewTree returns a Tree containing only the synthetic root (path "").
func NewTree() *Tree {
	t := &Tree{}
	t.nodes = append(t.nodes, node{ndx: noIndex, firstChild: noIndex, nextSibling: noIndex, parent: noIndex})
	return t
}

const rootIndex = 0

// AddDir inserts a directory as a child of parent (an index previously
// returned by AddDir, or rootIndex), returning its new index.
func (t *Tree) AddDir(parent int32, ndx int32, path string) int32 {
	idx := int32(len(t.nodes))
	t.nodes = append(t.nodes, node{
		ndx:         ndx,
		path:        path,
		firstChild:  noIndex,
		nextSibling: t.nodes[parent].firstChild,
		parent:      parent,
	})
	t.nodes[parent].firstChild = idx
	return idx
}

// Root returns the synthetic root index.
func (t *Tree) Root() int32 { return rootIndex }

// Path returns the path stored at idx.
func (t *Tree) Path(idx int32) string { return t.nodes[idx].path }

// NDX returns the wire NDX stored at idx.
func (t *Tree) NDX(idx int32) int32 { return t.nodes[idx].ndx }

// MarkSent records that idx's sub-list has been transmitted.
func (t *Tree) MarkSent(idx int32) { t.nodes[idx].sent = true }

// Sent reports whether idx's sub-list has already been transmitted.
func (t *Tree) Sent(idx int32) bool { return t.nodes[idx].sent }

// NextUnsent performs a depth-first traversal starting at idx and
// returns the index of the next unsent directory, or noIndex if every
// directory under idx has already been sent. Each unsent directory is
// visited exactly once across repeated calls as the caller marks nodes
// sent via MarkSent (spec §4.4: "The traversal yields each unsent
// directory exactly once").
func (t *Tree) NextUnsent(idx int32) int32 {
	if idx == noIndex {
		return noIndex
	}
	if !t.nodes[idx].sent && idx != rootIndex {
		return idx
	}
	child := t.nodes[idx].firstChild
	for child != noIndex {
		if found := t.NextUnsent(child); found != noIndex {
			return found
		}
		child = t.nodes[child].nextSibling
	}
	return noIndex
}

// Children returns the direct child indices of idx, in insertion order
// (note: firstChild/nextSibling form a LIFO list, so this reverses it to
// match the original discovery order).
func (t *Tree) Children(idx int32) []int32 {
	var rev []int32
	child := t.nodes[idx].firstChild
	for child != noIndex {
		rev = append(rev, child)
		child = t.nodes[child].nextSibling
	}
	out := make([]int32, len(rev))
	for i, v := range rev {
		out[len(rev)-1-i] = v
	}
	return out
}
