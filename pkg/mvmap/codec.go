package mvmap

// Codec is the capability bundle a map supplies for its key or value
// type (spec.md §3, MVMap: "a pluggable codec pair supplying
// serialize/deserialize/compare/estimateMemory"). Map stores raw bytes
// internally; a Codec only changes how application-level values are
// translated to and from those bytes, the same layering the teacher's
// pkg/storage/encoding.go used for its composite-key scheme before this
// module generalized it into a pluggable interface. Memory estimation is
// not part of this interface; pages estimate their own size.
type Codec interface {
	// Encode serializes v to its byte representation.
	Encode(v any) []byte
	// Decode parses b back into a value.
	Decode(b []byte) (any, error)
	// Compare orders two encoded byte representations, and is what the
	// tree's key ordering actually uses (Tree.SetComparator) once a map
	// attaches its key codec — not bytes.Compare directly. Most codecs
	// can delegate to plain byte ordering when their encoding preserves
	// it (raw strings and fixed-width big-endian integers do); codecs
	// whose encoding doesn't must supply an order-correct comparator
	// here.
	Compare(a, b []byte) int
}

// BytesCodec is the identity codec: application values are already
// []byte, and ordering is plain lexicographic byte comparison. Used as
// the default for both keys and values when a map doesn't register a
// custom codec.
type BytesCodec struct{}

func (BytesCodec) Encode(v any) []byte {
	switch b := v.(type) {
	case []byte:
		return b
	case string:
		return []byte(b)
	default:
		panic("mvmap: BytesCodec.Encode: value is not []byte or string")
	}
}

func (BytesCodec) Decode(b []byte) (any, error) {
	return append([]byte{}, b...), nil
}

func (BytesCodec) Compare(a, b []byte) int {
	return bytesCompare(a, b)
}

// StringCodec treats application values as strings, same byte layout
// as BytesCodec but decoding to string rather than []byte — useful for
// maps whose keys are naturally text (names, paths) and whose callers
// want Get/Scan to hand back strings instead of raw bytes.
type StringCodec struct{}

func (StringCodec) Encode(v any) []byte {
	return []byte(v.(string))
}

func (StringCodec) Decode(b []byte) (any, error) {
	return string(b), nil
}

func (StringCodec) Compare(a, b []byte) int {
	return bytesCompare(a, b)
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
