package mvmap

// View is a read-only handle onto one historical version of a map,
// returned by the store's openMapVersion (spec.md §4.7, §5 "a known
// version stays readable until its retention window elapses"). It only
// exposes read operations: there is no Put/Remove here by design, so a
// caller holding a View for version N cannot accidentally mutate a
// tree that other code may be concurrently relying on being frozen at
// that version.
type View struct {
	id       uint32
	name     string
	version  int64
	tree     *Tree
	keyCodec Codec
	valCodec Codec
}

// NewView wraps a read-only tree rooted at the given historical
// version.
func NewView(id uint32, name string, version int64, tree *Tree, keyCodec, valCodec Codec) *View {
	if keyCodec == nil {
		keyCodec = BytesCodec{}
	}
	if valCodec == nil {
		valCodec = BytesCodec{}
	}
	return &View{id: id, name: name, version: version, tree: tree, keyCodec: keyCodec, valCodec: valCodec}
}

// ID returns the map's store-assigned identifier.
func (v *View) ID() uint32 { return v.id }

// Name returns the map's registered name.
func (v *View) Name() string { return v.name }

// Version returns the store version this view is frozen at.
func (v *View) Version() int64 { return v.version }

// Get decodes and returns the value stored under key as of this
// view's version.
func (v *View) Get(key any) (any, bool, error) {
	raw, ok, err := v.tree.Get(v.keyCodec.Encode(key))
	if err != nil || !ok {
		return nil, ok, err
	}
	val, err := v.valCodec.Decode(raw)
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

// Size returns the number of entries as of this view's version.
func (v *View) Size() uint64 { return v.tree.Count() }

// Scan walks entries from start (inclusive; nil means the beginning)
// in key order as of this view's version.
func (v *View) Scan(start any, fn func(key, val any) bool) error {
	var startBytes []byte
	if start != nil {
		startBytes = v.keyCodec.Encode(start)
	}
	return v.tree.Scan(startBytes, func(k, val []byte) bool {
		dk, err := v.keyCodec.Decode(k)
		if err != nil {
			return false
		}
		dv, err := v.valCodec.Decode(val)
		if err != nil {
			return false
		}
		return fn(dk, dv)
	})
}
