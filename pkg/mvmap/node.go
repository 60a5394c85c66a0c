package mvmap

import (
	"github.com/nainya/chunkstore/pkg/page"
)

// node is the in-memory, copy-on-write working representation of a
// page.Page. A node with pos == 0 is dirty (mutated since the last
// commit and not yet assigned a Position); one with pos != 0 is clean
// and immutable — any further mutation must clone it first (spec.md §3:
// "A page is immutable once written; any logical mutation clones it").
//
// Internal nodes resolve children lazily: childNode[i] is nil until the
// first descent through slot i, at which point it is decoded from
// childPos[i] via the tree's PageSource and cached here.
//
// Unlike the teacher's btree.go, which seeds every tree with a
// permanent empty-key placeholder entry at slot 0 to give nodeLookupLE
// an always-present floor, lookupLE here returns -1 when the search key
// is smaller than every key in the node; callers floor that to slot 0
// only when choosing which child to descend into, never when deciding
// whether a leaf entry exists. That keeps every stored key real — no
// phantom entry inflates Count or appears in a Scan.
type node struct {
	mapID uint32
	leaf  bool

	keys   [][]byte
	values [][]byte // leaf only, parallel to keys

	childPos  []page.Position // internal only, parallel to keys
	childNode []*node         // internal only, parallel to keys; lazy
	counts    []uint64        // internal only, parallel to keys

	pos page.Position
}

func newRootLeaf(mapID uint32, key, val []byte) *node {
	return &node{
		mapID:  mapID,
		leaf:   true,
		keys:   [][]byte{key},
		values: [][]byte{val},
	}
}

func nodeFromPage(pg *page.Page, pos page.Position) *node {
	n := &node{mapID: pg.MapID, leaf: pg.Leaf, keys: pg.Keys, pos: pos}
	if pg.Leaf {
		n.values = pg.Values
	} else {
		n.childPos = pg.Children
		n.childNode = make([]*node, len(pg.Children))
		n.counts = pg.Counts
	}
	return n
}

// toPage snapshots n into a serializable page.Page. For internal nodes
// it requires every childNode slot to already carry a resolved
// childPos (i.e. dirty children must be persisted first).
func (n *node) toPage() *page.Page {
	p := &page.Page{MapID: n.mapID, Leaf: n.leaf, Keys: n.keys}
	if n.leaf {
		p.Values = n.values
	} else {
		p.Children = append([]page.Position{}, n.childPos...)
		p.Counts = append([]uint64{}, n.counts...)
	}
	return p
}

func (n *node) nkeys() int { return len(n.keys) }

// count returns the number of leaf entries reachable under n.
func (n *node) count() uint64 {
	if n.leaf {
		return uint64(len(n.keys))
	}
	var total uint64
	for _, c := range n.counts {
		total += c
	}
	return total
}

// lookupLE returns the index of the last key <= the search key under
// cmp, or -1 if key is smaller than every key in n (or n has no keys).
// cmp is the tree's Codec.Compare (or plain byte order if the map never
// registered a custom one), so key ordering always matches the ordering
// the codec's encoding was designed to preserve.
func (n *node) lookupLE(cmp func(a, b []byte) int, key []byte) int {
	found := -1
	for i := 0; i < len(n.keys); i++ {
		if cmp(n.keys[i], key) <= 0 {
			found = i
		} else {
			break
		}
	}
	return found
}

// memory estimates n's in-memory footprint, mirroring page.Page.Memory.
func (n *node) memory() int {
	return n.toPage().Memory()
}

// encodedLen is the byte length n would serialize to.
func (n *node) encodedLen() int {
	return len(n.toPage().Encode())
}
