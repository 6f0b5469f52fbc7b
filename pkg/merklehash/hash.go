// Package merklehash implements the fixed leaf/internal hash functions of
// the content Merkle tree. The algorithm is SHA-256, chosen once as a
// persistent-format commitment (§3.2, §10.5 of the design notes) and never
// swapped per deployment.
package merklehash

import (
	"crypto/sha256"

	"github.com/vecbench/vdfetch/pkg/fetchconst"
)

// Size is the width, in bytes, of every hash produced by this package.
const Size = fetchconst.HashSize

// Hash is a single leaf or internal node hash.
type Hash [Size]byte

// ZeroHash is the fixed sentinel used for padded leaves beyond LeafCount.
// It is 32 zero bytes, not H(empty), per the padded-leaf decision in §9.
var ZeroHash Hash

// Chunk hashes a single leaf's bytes.
func Chunk(data []byte) Hash {
	return Hash(sha256.Sum256(data))
}

// Combine hashes the concatenation of two child hashes to produce their
// parent's hash.
func Combine(left, right Hash) Hash {
	buf := make([]byte, 0, 2*Size)
	buf = append(buf, left[:]...)
	buf = append(buf, right[:]...)
	return Hash(sha256.Sum256(buf))
}

// Equal reports whether two hashes are identical.
func Equal(a, b Hash) bool {
	return a == b
}
