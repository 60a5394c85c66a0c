package page

import (
	"encoding/binary"
	"fmt"
)

// MaxPageBytes is the target serialized size a Page is split to stay
// under. It mirrors the teacher's BTREE_PAGE_SIZE, but here it is a
// soft target for the splitter rather than a hard mmap-aligned page
// size: chunkstore pages are variable-length byte records inside a
// chunk buffer, not fixed slots in a file.
const MaxPageBytes = 4096

// Page is an in-memory B-tree node. It is immutable once it has a
// non-zero Pos: any logical mutation clones it and installs the clone as
// its parent's child, recursively up to a new root, exactly as spec.md
// §3 describes.
//
// A leaf page holds Keys/Values in parallel. An internal page holds Keys
// (the smallest key covered by each child) parallel to Children and
// Counts (the number of leaf entries reachable under each child, used
// for future rank/position queries).
type Page struct {
	MapID    uint32
	Leaf     bool
	Keys     [][]byte
	Values   [][]byte   // leaf only, parallel to Keys
	Children []Position // internal only, parallel to Keys
	Counts   []uint64   // internal only, parallel to Keys

	// Pos is this page's on-disk location. Zero means unsaved.
	Pos Position
}

// NewLeaf returns an empty leaf page for the given map.
func NewLeaf(mapID uint32) *Page {
	return &Page{MapID: mapID, Leaf: true}
}

// NewInternal returns an empty internal page for the given map.
func NewInternal(mapID uint32) *Page {
	return &Page{MapID: mapID, Leaf: false}
}

// NKeys returns the number of keys in the page.
func (p *Page) NKeys() int { return len(p.Keys) }

// Count returns the total number of leaf entries reachable from this
// page: 1 per key for a leaf, the sum of Counts for an internal page.
func (p *Page) Count() uint64 {
	if p.Leaf {
		return uint64(len(p.Keys))
	}
	var total uint64
	for _, c := range p.Counts {
		total += c
	}
	return total
}

// Memory estimates this page's in-memory footprint in bytes, used both
// by the page cache's cost accounting and (indirectly, via encoded
// length) by the chunk's maxLength space accounting.
func (p *Page) Memory() int {
	const overhead = 48 // struct + slice headers, approximate
	n := overhead
	for _, k := range p.Keys {
		n += len(k) + 16
	}
	if p.Leaf {
		for _, v := range p.Values {
			n += len(v) + 16
		}
	} else {
		n += len(p.Children) * 8
		n += len(p.Counts) * 8
	}
	return n
}

// clone returns a shallow copy of p suitable as the basis for a
// copy-on-write mutation: same slices, Pos reset to unsaved. Callers
// overwrite the slice(s) they mutate before the clone is observed by
// anyone else.
func (p *Page) clone() *Page {
	c := *p
	c.Pos = 0
	return &c
}

// lookupLE returns the index of the last key that is <= the search key
// (or 0 if key is smaller than every key — the first slot is a sentinel
// covering the whole key space, per the teacher's nodeLookupLE
// convention). Keys must be sorted ascending.
func (p *Page) lookupLE(key []byte) int {
	found := 0
	for i := 1; i < len(p.Keys); i++ {
		if bytesCompare(p.Keys[i], key) <= 0 {
			found = i
		} else {
			break
		}
	}
	return found
}

func bytesCompare(a, b []byte) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

// Encode serializes the page to a self-describing byte slice:
//
//	mapID(uvarint) kind(1 byte) nkeys(uvarint)
//	per key: keylen(uvarint) key
//	leaf:     per value: vallen(uvarint) val
//	internal: per child: position(8 bytes, LE) count(uvarint)
func (p *Page) Encode() []byte {
	buf := make([]byte, 0, p.Memory())
	var scratch [binary.MaxVarintLen64]byte

	putUvarint := func(v uint64) {
		n := binary.PutUvarint(scratch[:], v)
		buf = append(buf, scratch[:n]...)
	}

	putUvarint(uint64(p.MapID))
	if p.Leaf {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	putUvarint(uint64(len(p.Keys)))

	for _, k := range p.Keys {
		putUvarint(uint64(len(k)))
		buf = append(buf, k...)
	}

	if p.Leaf {
		for _, v := range p.Values {
			putUvarint(uint64(len(v)))
			buf = append(buf, v...)
		}
	} else {
		for i := range p.Children {
			var posBuf [8]byte
			binary.LittleEndian.PutUint64(posBuf[:], uint64(p.Children[i]))
			buf = append(buf, posBuf[:]...)
			putUvarint(p.Counts[i])
		}
	}

	return buf
}

// Decode parses a Page out of the byte slice produced by Encode.
func Decode(data []byte) (*Page, error) {
	p, _, err := DecodeN(data)
	return p, err
}

// DecodeN parses a Page starting at data[0] and also returns how many
// bytes it consumed, so callers walking a chunk's whole page region
// sequentially (compaction's candidate scan) can advance to the next
// page without already knowing its length.
func DecodeN(data []byte) (*Page, int, error) {
	r := &byteReader{data: data}

	mapID, err := r.uvarint()
	if err != nil {
		return nil, 0, fmt.Errorf("page: decode mapID: %w", err)
	}
	kindByte, err := r.byte()
	if err != nil {
		return nil, 0, fmt.Errorf("page: decode kind: %w", err)
	}
	nkeys, err := r.uvarint()
	if err != nil {
		return nil, 0, fmt.Errorf("page: decode nkeys: %w", err)
	}

	p := &Page{MapID: uint32(mapID), Leaf: kindByte == 1}
	p.Keys = make([][]byte, nkeys)
	for i := range p.Keys {
		klen, err := r.uvarint()
		if err != nil {
			return nil, 0, fmt.Errorf("page: decode key %d length: %w", i, err)
		}
		key, err := r.bytes(int(klen))
		if err != nil {
			return nil, 0, fmt.Errorf("page: decode key %d: %w", i, err)
		}
		p.Keys[i] = key
	}

	if p.Leaf {
		p.Values = make([][]byte, nkeys)
		for i := range p.Values {
			vlen, err := r.uvarint()
			if err != nil {
				return nil, 0, fmt.Errorf("page: decode value %d length: %w", i, err)
			}
			val, err := r.bytes(int(vlen))
			if err != nil {
				return nil, 0, fmt.Errorf("page: decode value %d: %w", i, err)
			}
			p.Values[i] = val
		}
	} else {
		p.Children = make([]Position, nkeys)
		p.Counts = make([]uint64, nkeys)
		for i := range p.Children {
			posBytes, err := r.bytes(8)
			if err != nil {
				return nil, 0, fmt.Errorf("page: decode child %d position: %w", i, err)
			}
			p.Children[i] = Position(binary.LittleEndian.Uint64(posBytes))
			count, err := r.uvarint()
			if err != nil {
				return nil, 0, fmt.Errorf("page: decode child %d count: %w", i, err)
			}
			p.Counts[i] = count
		}
	}

	return p, r.pos, nil
}

type byteReader struct {
	data []byte
	pos  int
}

func (r *byteReader) uvarint() (uint64, error) {
	v, n := binary.Uvarint(r.data[r.pos:])
	if n <= 0 {
		return 0, fmt.Errorf("malformed varint at offset %d", r.pos)
	}
	r.pos += n
	return v, nil
}

func (r *byteReader) byte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, fmt.Errorf("unexpected EOF at offset %d", r.pos)
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

func (r *byteReader) bytes(n int) ([]byte, error) {
	if r.pos+n > len(r.data) {
		return nil, fmt.Errorf("unexpected EOF reading %d bytes at offset %d", n, r.pos)
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}
