package merklehash

import "testing"

func TestChunkDeterministic(t *testing.T) {
	a := Chunk([]byte("ABCD"))
	b := Chunk([]byte("ABCD"))
	if a != b {
		t.Fatal("Chunk is not deterministic")
	}
}

func TestChunkDiffers(t *testing.T) {
	a := Chunk([]byte("ABCD"))
	b := Chunk([]byte("EFGH"))
	if a == b {
		t.Fatal("distinct inputs hashed to the same value")
	}
}

func TestCombineOrderMatters(t *testing.T) {
	l := Chunk([]byte("left"))
	r := Chunk([]byte("right"))
	if Combine(l, r) == Combine(r, l) {
		t.Fatal("Combine must not be commutative")
	}
}

func TestZeroHashIsZero(t *testing.T) {
	for _, b := range ZeroHash {
		if b != 0 {
			t.Fatal("ZeroHash is not all zero bytes")
		}
	}
}
