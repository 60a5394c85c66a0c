package mvmap

import (
	"fmt"

	"github.com/nainya/chunkstore/pkg/page"
)

// PageSource resolves a Position to its decoded page, consulting the
// store's page cache before falling back to a chunk read. pkg/store
// implements this for every Tree it opens.
type PageSource interface {
	ReadPage(pos page.Position) (*page.Page, error)
}

// Tree is the copy-on-write B-tree that backs one MVMap version chain.
// It never writes to disk itself: mutations only ever build new *node
// values in memory (spec.md §3, "a page is immutable once written; any
// logical mutation clones it"). Persisting the result to real
// page.Position values is the store's job, done once per commit via
// Persist.
type Tree struct {
	mapID  uint32
	root   *node // nil means an empty tree
	source PageSource

	// free is called for every node that becomes unreachable as a
	// direct result of a mutation, but only when it was already
	// persisted (pos != 0) — a discarded dirty node was never on disk
	// and needs no ledger entry (spec.md §4.5).
	free func(pos page.Position)

	// cmp orders two encoded keys; nil means plain byte ordering
	// (bytesCompare). The store sets this to the map's key Codec's
	// Compare once the codec is known (OpenMap, RollbackTo), since a
	// Tree is built before any codec is attached to it.
	cmp func(a, b []byte) int
}

// SetComparator installs the key ordering Get/Insert/Delete/Scan use.
// A nil cmp reverts to plain byte ordering.
func (t *Tree) SetComparator(cmp func(a, b []byte) int) {
	t.cmp = cmp
}

func (t *Tree) compare(a, b []byte) int {
	if t.cmp != nil {
		return t.cmp(a, b)
	}
	return bytesCompare(a, b)
}

// NewTree builds an empty tree for mapID.
func NewTree(mapID uint32, source PageSource, free func(page.Position)) *Tree {
	return &Tree{mapID: mapID, source: source, free: free}
}

// OpenTree builds a tree whose root is already persisted at rootPos. A
// zero Position means an empty tree (spec.md §3, "the zero Position
// means an empty tree" per PagePosition's definition).
func OpenTree(mapID uint32, rootPos page.Position, source PageSource, free func(page.Position)) (*Tree, error) {
	t := &Tree{mapID: mapID, source: source, free: free}
	if rootPos.IsZero() {
		return t, nil
	}
	pg, err := source.ReadPage(rootPos)
	if err != nil {
		return nil, fmt.Errorf("mvmap: open root %d: %w", rootPos, err)
	}
	t.root = nodeFromPage(pg, rootPos)
	return t, nil
}

// RootPos returns the tree's current root position, or zero if the root
// is dirty (unsaved) or the tree is empty.
func (t *Tree) RootPos() page.Position {
	if t.root == nil {
		return 0
	}
	return t.root.pos
}

// Count returns the number of entries in the tree.
func (t *Tree) Count() uint64 {
	if t.root == nil {
		return 0
	}
	return t.root.count()
}

// Dirty reports whether the tree has mutations not yet persisted.
func (t *Tree) Dirty() bool {
	return t.root != nil && t.root.pos.IsZero()
}

func (t *Tree) child(n *node, i int) (*node, error) {
	if n.childNode[i] != nil {
		return n.childNode[i], nil
	}
	pg, err := t.source.ReadPage(n.childPos[i])
	if err != nil {
		return nil, fmt.Errorf("mvmap: read child %d of map %d: %w", i, t.mapID, err)
	}
	c := nodeFromPage(pg, n.childPos[i])
	n.childNode[i] = c
	return c, nil
}

func (t *Tree) freeNode(n *node) {
	if n != nil && !n.pos.IsZero() && t.free != nil {
		t.free(n.pos)
	}
}

// Get returns the value stored for key, if present.
func (t *Tree) Get(key []byte) ([]byte, bool, error) {
	if t.root == nil {
		return nil, false, nil
	}
	return t.get(t.root, key)
}

func (t *Tree) get(n *node, key []byte) ([]byte, bool, error) {
	idx := n.lookupLE(t.compare, key)
	if n.leaf {
		if idx >= 0 && t.compare(n.keys[idx], key) == 0 {
			return n.values[idx], true, nil
		}
		return nil, false, nil
	}
	child, err := t.child(n, floorIdx(idx))
	if err != nil {
		return nil, false, err
	}
	return t.get(child, key)
}

// floorIdx maps a lookupLE result to a valid child slot: a search key
// smaller than every routing key in n still must descend somewhere, and
// the only correct choice is the leftmost child (spec.md's ordered map
// invariant means no key can legitimately be missing from it).
func floorIdx(idx int) int {
	if idx < 0 {
		return 0
	}
	return idx
}

// Insert sets key to val, inserting or overwriting as needed.
func (t *Tree) Insert(key, val []byte) error {
	if t.root == nil {
		t.root = newRootLeaf(t.mapID, key, val)
		return nil
	}

	updated, err := t.treeInsert(t.root, key, val)
	if err != nil {
		return err
	}
	parts := splitNode(updated)
	t.freeNode(t.root)
	t.root = combineRoot(t.mapID, parts)
	return nil
}

func (t *Tree) treeInsert(n *node, key, val []byte) (*node, error) {
	idx := n.lookupLE(t.compare, key)

	if n.leaf {
		if idx >= 0 && t.compare(n.keys[idx], key) == 0 {
			return leafUpdate(n, idx, key, val), nil
		}
		return leafInsert(n, idx+1, key, val), nil
	}

	childIdx := floorIdx(idx)
	child, err := t.child(n, childIdx)
	if err != nil {
		return nil, err
	}
	updatedChild, err := t.treeInsert(child, key, val)
	if err != nil {
		return nil, err
	}
	parts := splitNode(updatedChild)
	t.freeNode(child)
	return nodeReplaceKidN(n, childIdx, parts), nil
}

// Delete removes key, reporting whether it was present.
func (t *Tree) Delete(key []byte) (bool, error) {
	if t.root == nil {
		return false, nil
	}
	updated, found, err := t.treeDelete(t.root, key)
	if err != nil || !found {
		return false, err
	}
	t.freeNode(t.root)
	if !updated.leaf && updated.nkeys() == 1 {
		// Root collapses a level, per the teacher's Delete.
		child, err := t.child(updated, 0)
		if err != nil {
			return false, err
		}
		t.root = child
	} else if updated.leaf && updated.nkeys() == 0 {
		t.root = nil
	} else {
		t.root = updated
	}
	return true, nil
}

func (t *Tree) treeDelete(n *node, key []byte) (*node, bool, error) {
	idx := n.lookupLE(t.compare, key)

	if n.leaf {
		if idx < 0 || t.compare(n.keys[idx], key) != 0 {
			return nil, false, nil
		}
		return leafDelete(n, idx), true, nil
	}

	childIdx := floorIdx(idx)
	child, err := t.child(n, childIdx)
	if err != nil {
		return nil, false, err
	}
	updatedChild, found, err := t.treeDelete(child, key)
	if err != nil || !found {
		return nil, false, err
	}
	t.freeNode(child)

	mergeDir, sibIdx, err := t.shouldMerge(n, childIdx, updatedChild)
	if err != nil {
		return nil, false, err
	}

	switch {
	case mergeDir < 0:
		sibling, err := t.child(n, sibIdx)
		if err != nil {
			return nil, false, err
		}
		merged := nodeMerge(sibling, updatedChild)
		t.freeNode(sibling)
		return nodeReplace2Kid(n, sibIdx, merged), true, nil
	case mergeDir > 0:
		sibling, err := t.child(n, sibIdx)
		if err != nil {
			return nil, false, err
		}
		merged := nodeMerge(updatedChild, sibling)
		t.freeNode(sibling)
		return nodeReplace2Kid(n, childIdx, merged), true, nil
	case updatedChild.nkeys() == 0:
		return nodeRemoveKid(n, childIdx), true, nil
	default:
		return nodeReplaceKidN(n, childIdx, []*node{updatedChild}), true, nil
	}
}

// shouldMerge mirrors the teacher's shouldMerge: a child shrunk below a
// quarter of the page budget is a merge candidate if a sibling can
// absorb it without exceeding the budget. Returns -1/+1 for a left/right
// sibling index, or 0 if no merge applies.
func (t *Tree) shouldMerge(n *node, idx int, updated *node) (int, int, error) {
	if updated.encodedLen() > page.MaxPageBytes/4 {
		return 0, 0, nil
	}

	if idx > 0 {
		sibling, err := t.child(n, idx-1)
		if err != nil {
			return 0, 0, err
		}
		if sibling.encodedLen()+updated.encodedLen() <= page.MaxPageBytes {
			return -1, idx - 1, nil
		}
	}
	if idx+1 < n.nkeys() {
		sibling, err := t.child(n, idx+1)
		if err != nil {
			return 0, 0, err
		}
		if sibling.encodedLen()+updated.encodedLen() <= page.MaxPageBytes {
			return 1, idx + 1, nil
		}
	}
	return 0, 0, nil
}

// LeafPosition returns the persisted Position of the leaf that key
// currently routes to, without regard to whether key is actually
// present in it. It returns the zero Position for an empty tree or
// when that leaf is still dirty (unpersisted) — such a leaf can never
// be part of an already-written, compaction-eligible chunk. Compaction
// uses this to decide whether an entry found while scanning an old
// chunk still resolves into that same chunk (spec.md §4.4: "the
// currently-live page for that key still lives in a selected chunk").
func (t *Tree) LeafPosition(key []byte) (page.Position, error) {
	if t.root == nil {
		return 0, nil
	}
	n := t.root
	for !n.leaf {
		idx := n.lookupLE(t.compare, key)
		child, err := t.child(n, floorIdx(idx))
		if err != nil {
			return 0, err
		}
		n = child
	}
	return n.pos, nil
}

// Persist walks every dirty node reachable from the root, serializing
// children before parents, and hands each encoded page to appendPage
// (the store's commit-time chunk writer) to obtain its final Position.
// It returns the tree's new root Position, or zero for an empty tree.
// Persist is idempotent: a clean (already-positioned) subtree is left
// untouched.
func (t *Tree) Persist(appendPage func(pg *page.Page) (page.Position, error)) (page.Position, error) {
	if t.root == nil {
		return 0, nil
	}
	pos, err := persistNode(t.root, appendPage)
	if err != nil {
		return 0, err
	}
	return pos, nil
}

func persistNode(n *node, appendPage func(pg *page.Page) (page.Position, error)) (page.Position, error) {
	if !n.pos.IsZero() {
		return n.pos, nil
	}
	if !n.leaf {
		for i, child := range n.childNode {
			if child == nil {
				continue // already clean, childPos[i] is authoritative
			}
			pos, err := persistNode(child, appendPage)
			if err != nil {
				return 0, err
			}
			n.childPos[i] = pos
			n.counts[i] = child.count()
		}
	}
	pos, err := appendPage(n.toPage())
	if err != nil {
		return 0, err
	}
	n.pos = pos
	return pos, nil
}
