package mvmap

import "testing"

func TestBytesCodecRoundTrip(t *testing.T) {
	var c BytesCodec
	enc := c.Encode([]byte("hello"))
	dec, err := c.Decode(enc)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if string(dec.([]byte)) != "hello" {
		t.Fatalf("got %q, want %q", dec, "hello")
	}
}

func TestBytesCodecEncodesString(t *testing.T) {
	var c BytesCodec
	enc := c.Encode("hello")
	if string(enc) != "hello" {
		t.Fatalf("got %q", enc)
	}
}

func TestBytesCodecCompareOrdersLexicographically(t *testing.T) {
	var c BytesCodec
	if c.Compare([]byte("a"), []byte("b")) >= 0 {
		t.Fatal("expected a < b")
	}
	if c.Compare([]byte("b"), []byte("a")) <= 0 {
		t.Fatal("expected b > a")
	}
	if c.Compare([]byte("a"), []byte("a")) != 0 {
		t.Fatal("expected a == a")
	}
}

func TestStringCodecRoundTrip(t *testing.T) {
	var c StringCodec
	enc := c.Encode("world")
	dec, err := c.Decode(enc)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if dec.(string) != "world" {
		t.Fatalf("got %q, want %q", dec, "world")
	}
}

// reverseLenCodec orders keys by length, descending — deliberately not
// the byte order their bytes would imply, so a tree using it only
// passes if it actually consults Compare instead of falling back to
// bytesCompare.
type reverseLenCodec struct{ StringCodec }

func (reverseLenCodec) Compare(a, b []byte) int {
	if len(a) != len(b) {
		if len(a) > len(b) {
			return -1
		}
		return 1
	}
	return bytesCompare(a, b)
}

func TestTreeScanHonorsCustomComparator(t *testing.T) {
	store := newFakeStore()
	tree := NewTree(1, store, store.free)
	tree.SetComparator(reverseLenCodec{}.Compare)

	for _, k := range []string{"a", "bb", "ccc"} {
		if err := tree.Insert([]byte(k), []byte(k)); err != nil {
			t.Fatalf("Insert(%q): %v", k, err)
		}
	}

	var got []string
	if err := tree.Scan(nil, func(k, v []byte) bool {
		got = append(got, string(k))
		return true
	}); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	want := []string{"ccc", "bb", "a"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
