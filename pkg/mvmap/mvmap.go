// Package mvmap implements the copy-on-write, versioned B-tree map that
// sits between the store's chunk/page plumbing and its callers
// (spec.md §3, §4.7: "MVMap"). A Map is a live handle onto the current
// version of one map's tree; a View (view.go) is a read-only handle
// onto a historical version, kept as a distinct type so a caller
// holding a past version can never accidentally mutate it.
package mvmap

// Map is a live, mutable handle onto a map's current tree. All key/value
// translation goes through a pluggable Codec pair, defaulting to raw
// bytes when a map registers none.
type Map struct {
	id       uint32
	name     string
	tree     *Tree
	keyCodec Codec
	valCodec Codec
}

// NewMap wraps tree as map id/name, using keyCodec/valCodec for
// translation (BytesCodec{} for either that is nil).
func NewMap(id uint32, name string, tree *Tree, keyCodec, valCodec Codec) *Map {
	if keyCodec == nil {
		keyCodec = BytesCodec{}
	}
	if valCodec == nil {
		valCodec = BytesCodec{}
	}
	return &Map{id: id, name: name, tree: tree, keyCodec: keyCodec, valCodec: valCodec}
}

// ID returns the map's store-assigned identifier.
func (m *Map) ID() uint32 { return m.id }

// Name returns the map's registered name.
func (m *Map) Name() string { return m.name }

// Tree exposes the underlying tree so the store can walk it at commit
// time (Persist) and track its root across versions.
func (m *Map) Tree() *Tree { return m.tree }

// Get decodes and returns the value stored under key.
func (m *Map) Get(key any) (any, bool, error) {
	raw, ok, err := m.tree.Get(m.keyCodec.Encode(key))
	if err != nil || !ok {
		return nil, ok, err
	}
	v, err := m.valCodec.Decode(raw)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// Put inserts or overwrites key with val.
func (m *Map) Put(key, val any) error {
	return m.tree.Insert(m.keyCodec.Encode(key), m.valCodec.Encode(val))
}

// Remove deletes key, reporting whether it was present.
func (m *Map) Remove(key any) (bool, error) {
	return m.tree.Delete(m.keyCodec.Encode(key))
}

// Size returns the number of entries currently in the map.
func (m *Map) Size() uint64 { return m.tree.Count() }

// Scan walks entries from start (inclusive; nil means the beginning) in
// key order, invoking fn until it returns false or the map is
// exhausted.
func (m *Map) Scan(start any, fn func(key, val any) bool) error {
	var startBytes []byte
	if start != nil {
		startBytes = m.keyCodec.Encode(start)
	}
	return m.tree.Scan(startBytes, func(k, v []byte) bool {
		dk, err := m.keyCodec.Decode(k)
		if err != nil {
			return false
		}
		dv, err := m.valCodec.Decode(v)
		if err != nil {
			return false
		}
		return fn(dk, dv)
	})
}
