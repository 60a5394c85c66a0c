package fileio

import "testing"

func TestFletcher32KnownValue(t *testing.T) {
	// "abcde" is a commonly cited Fletcher-32 test vector.
	got := Fletcher32([]byte("abcde"))
	const want = 0xF04FC729
	if got != want {
		t.Fatalf("Fletcher32(%q) = %#x, want %#x", "abcde", got, want)
	}
}

func TestFletcher32Empty(t *testing.T) {
	if got := Fletcher32(nil); got != 0 {
		t.Fatalf("Fletcher32(nil) = %#x, want 0", got)
	}
}

func TestFletcher32DetectsSingleByteFlip(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog")
	orig := Fletcher32(data)

	flipped := append([]byte(nil), data...)
	flipped[10] ^= 0x01

	if Fletcher32(flipped) == orig {
		t.Fatal("expected checksum to change after single byte flip")
	}
}
