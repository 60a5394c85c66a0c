package mvmap

import "github.com/nainya/chunkstore/pkg/page"

// The functions in this file build new, dirty (pos == 0) nodes out of
// existing ones. None of them ever mutate n in place — every one is a
// copy-on-write clone, the same contract the teacher's leafInsert/
// nodeReplaceKidN/nodeMerge family holds over BNode byte slices.

func leafInsert(n *node, idx int, key, val []byte) *node {
	newN := &node{mapID: n.mapID, leaf: true}
	newN.keys = make([][]byte, 0, n.nkeys()+1)
	newN.values = make([][]byte, 0, n.nkeys()+1)
	newN.keys = append(newN.keys, n.keys[:idx]...)
	newN.values = append(newN.values, n.values[:idx]...)
	newN.keys = append(newN.keys, key)
	newN.values = append(newN.values, val)
	newN.keys = append(newN.keys, n.keys[idx:]...)
	newN.values = append(newN.values, n.values[idx:]...)
	return newN
}

func leafUpdate(n *node, idx int, key, val []byte) *node {
	newN := &node{mapID: n.mapID, leaf: true}
	newN.keys = append([][]byte{}, n.keys...)
	newN.values = append([][]byte{}, n.values...)
	newN.keys[idx] = key
	newN.values[idx] = val
	return newN
}

func leafDelete(n *node, idx int) *node {
	newN := &node{mapID: n.mapID, leaf: true}
	newN.keys = append(append([][]byte{}, n.keys[:idx]...), n.keys[idx+1:]...)
	newN.values = append(append([][]byte{}, n.values[:idx]...), n.values[idx+1:]...)
	return newN
}

// nodeReplaceKidN replaces the single child at idx with one or more
// kids, ported from the teacher's nodeReplaceKidN (here kids arrive as
// a slice from splitNode rather than a variadic, since the number of
// parts is unbounded).
func nodeReplaceKidN(n *node, idx int, kids []*node) *node {
	inc := len(kids)
	capHint := n.nkeys() + inc - 1
	newN := &node{mapID: n.mapID, leaf: false}
	newN.keys = make([][]byte, 0, capHint)
	newN.childPos = make([]page.Position, 0, capHint)
	newN.childNode = make([]*node, 0, capHint)
	newN.counts = make([]uint64, 0, capHint)

	appendRange := func(from, to int) {
		newN.keys = append(newN.keys, n.keys[from:to]...)
		newN.childPos = append(newN.childPos, n.childPos[from:to]...)
		newN.childNode = append(newN.childNode, n.childNode[from:to]...)
		newN.counts = append(newN.counts, n.counts[from:to]...)
	}

	appendRange(0, idx)
	for _, kid := range kids {
		newN.keys = append(newN.keys, kid.keys[0])
		newN.childPos = append(newN.childPos, 0)
		newN.childNode = append(newN.childNode, kid)
		newN.counts = append(newN.counts, kid.count())
	}
	appendRange(idx+1, n.nkeys())
	return newN
}

// nodeReplace2Kid replaces the two adjacent children at idx, idx+1 with
// a single merged child, ported from the teacher's nodeReplace2Kid.
func nodeReplace2Kid(n *node, idx int, merged *node) *node {
	newN := &node{mapID: n.mapID, leaf: false}
	newN.keys = append(newN.keys, n.keys[:idx]...)
	newN.childPos = append(newN.childPos, n.childPos[:idx]...)
	newN.childNode = append(newN.childNode, n.childNode[:idx]...)
	newN.counts = append(newN.counts, n.counts[:idx]...)

	newN.keys = append(newN.keys, merged.keys[0])
	newN.childPos = append(newN.childPos, 0)
	newN.childNode = append(newN.childNode, merged)
	newN.counts = append(newN.counts, merged.count())

	newN.keys = append(newN.keys, n.keys[idx+2:]...)
	newN.childPos = append(newN.childPos, n.childPos[idx+2:]...)
	newN.childNode = append(newN.childNode, n.childNode[idx+2:]...)
	newN.counts = append(newN.counts, n.counts[idx+2:]...)
	return newN
}

// nodeRemoveKid handles the teacher's nodeDelete edge case: an emptied
// child that no sibling absorbs (n has a single child, or the sibling is
// too large to merge with) is dropped from n, keeping every other child.
// If n had a single child it becomes empty too and the emptiness
// propagates up until Delete collapses the root.
func nodeRemoveKid(n *node, idx int) *node {
	newN := &node{mapID: n.mapID, leaf: false}
	newN.keys = append(append([][]byte{}, n.keys[:idx]...), n.keys[idx+1:]...)
	newN.childPos = append(append([]page.Position{}, n.childPos[:idx]...), n.childPos[idx+1:]...)
	newN.childNode = append(append([]*node{}, n.childNode[:idx]...), n.childNode[idx+1:]...)
	newN.counts = append(append([]uint64{}, n.counts[:idx]...), n.counts[idx+1:]...)
	return newN
}

// nodeMerge concatenates two same-kind nodes into one dirty node,
// ported from the teacher's nodeMerge.
func nodeMerge(left, right *node) *node {
	n := &node{mapID: left.mapID, leaf: left.leaf}
	n.keys = append(append([][]byte{}, left.keys...), right.keys...)
	if left.leaf {
		n.values = append(append([][]byte{}, left.values...), right.values...)
	} else {
		n.childPos = append(append([]page.Position{}, left.childPos...), right.childPos...)
		n.childNode = append(append([]*node{}, left.childNode...), right.childNode...)
		n.counts = append(append([]uint64{}, left.counts...), right.counts...)
	}
	return n
}

// combineRoot builds the new root out of the (possibly many) sibling
// parts an oversized root split into, ported from the teacher's
// Insert root-split branch generalized to N parts.
func combineRoot(mapID uint32, parts []*node) *node {
	if len(parts) == 1 {
		return parts[0]
	}
	root := &node{mapID: mapID, leaf: false}
	for _, p := range parts {
		root.keys = append(root.keys, p.keys[0])
		root.childPos = append(root.childPos, 0)
		root.childNode = append(root.childNode, p)
		root.counts = append(root.counts, p.count())
	}
	return root
}

// splitNode returns n unchanged (wrapped) if it already fits under
// page.MaxPageBytes, or splits it into 2+ dirty sibling nodes that each
// fit, recursing as needed. This is node.go's equivalent of
// page.Split, kept separate because page.Split operates on an already
// resolved []Position and would lose the in-memory childNode
// association a dirty internal node still carries.
func splitNode(n *node) []*node {
	if n.encodedLen() <= page.MaxPageBytes {
		return []*node{n}
	}
	if n.nkeys() <= 1 {
		// A single entry can't be split any further; accept it over
		// budget rather than recursing on an unchanged node forever.
		return []*node{n}
	}
	left, right := splitNodeInHalf(n)
	var out []*node
	out = append(out, splitNode(left)...)
	out = append(out, splitNode(right)...)
	return out
}

func splitNodeInHalf(n *node) (*node, *node) {
	target := page.MaxPageBytes * 3 / 4
	total := n.nkeys()
	nleft := 1
	running := nodeEntrySize(n, 0)
	for i := 1; i < total; i++ {
		running += nodeEntrySize(n, i)
		nleft = i + 1
		if running >= target {
			break
		}
	}
	if nleft >= total {
		nleft = total - 1
	}
	if nleft < 1 {
		nleft = 1
	}

	left := &node{mapID: n.mapID, leaf: n.leaf}
	right := &node{mapID: n.mapID, leaf: n.leaf}
	left.keys = append([][]byte{}, n.keys[:nleft]...)
	right.keys = append([][]byte{}, n.keys[nleft:]...)
	if n.leaf {
		left.values = append([][]byte{}, n.values[:nleft]...)
		right.values = append([][]byte{}, n.values[nleft:]...)
	} else {
		left.childPos = append([]page.Position{}, n.childPos[:nleft]...)
		left.childNode = append([]*node{}, n.childNode[:nleft]...)
		left.counts = append([]uint64{}, n.counts[:nleft]...)
		right.childPos = append([]page.Position{}, n.childPos[nleft:]...)
		right.childNode = append([]*node{}, n.childNode[nleft:]...)
		right.counts = append([]uint64{}, n.counts[nleft:]...)
	}
	return left, right
}

func nodeEntrySize(n *node, i int) int {
	size := len(n.keys[i]) + 10
	if n.leaf {
		size += len(n.values[i])
	} else {
		size += 16
	}
	return size
}
