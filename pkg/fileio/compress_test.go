package fileio

import (
	"bytes"
	"testing"
)

func TestZstdCompressorRoundTrip(t *testing.T) {
	z, err := NewZstdCompressor()
	if err != nil {
		t.Fatalf("NewZstdCompressor: %v", err)
	}
	defer z.Close()

	plain := bytes.Repeat([]byte("chunkstore page payload "), 200)
	compressed, err := z.Compress(plain)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if len(compressed) >= len(plain) {
		t.Errorf("expected compression to shrink repetitive data: %d >= %d", len(compressed), len(plain))
	}

	got, err := z.Decompress(compressed)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Fatal("round trip mismatch")
	}
}

func TestNoCompressorIsIdentity(t *testing.T) {
	var nc NoCompressor
	data := []byte("hello")
	compressed, _ := nc.Compress(data)
	if !bytes.Equal(compressed, data) {
		t.Fatal("NoCompressor.Compress changed data")
	}
	decompressed, _ := nc.Decompress(compressed)
	if !bytes.Equal(decompressed, data) {
		t.Fatal("NoCompressor.Decompress changed data")
	}
}
