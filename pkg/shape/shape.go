// Package shape derives the chunk-size/leaf-count geometry of a content
// Merkle tree deterministically from a total content size, so any reader
// holding only the size can reconstruct the same tree layout.
package shape

import (
	"fmt"
	"math/bits"

	"github.com/vecbench/vdfetch/pkg/fetchconst"
)

// Shape is the tuple of derived quantities described in §3.1. All fields
// are reconstructible from TotalContentSize alone.
type Shape struct {
	TotalContentSize  int64
	ChunkSize         int64
	LeafCount         int64
	CapLeafCount      int64
	InternalNodeCount int64
	TotalNodeCount    int64
}

// Of derives a Shape from totalContentSize. totalContentSize must be >= 1.
func Of(totalContentSize int64) (Shape, error) {
	if totalContentSize < 1 {
		return Shape{}, fmt.Errorf("shape: totalContentSize must be >= 1, got %d", totalContentSize)
	}

	chunkSize := int64(fetchconst.BaseChunkSize)
	for ceilDiv(totalContentSize, chunkSize) > fetchconst.MaxLeafCount {
		chunkSize *= 2
	}

	leafCount := ceilDiv(totalContentSize, chunkSize)
	capLeafCount := nextPowerOfTwo(leafCount)
	internalNodeCount := capLeafCount - 1
	totalNodeCount := internalNodeCount + capLeafCount

	return Shape{
		TotalContentSize:  totalContentSize,
		ChunkSize:         chunkSize,
		LeafCount:         leafCount,
		CapLeafCount:      capLeafCount,
		InternalNodeCount: internalNodeCount,
		TotalNodeCount:    totalNodeCount,
	}, nil
}

// ForLeaf returns the byte offset and length of leaf i within the original
// content. i must be in [0, LeafCount).
func (s Shape) ForLeaf(i int64) (offset, length int64, err error) {
	if i < 0 || i >= s.LeafCount {
		return 0, 0, fmt.Errorf("shape: leaf index %d out of range [0,%d)", i, s.LeafCount)
	}
	offset = i * s.ChunkSize
	if i < s.LeafCount-1 {
		length = s.ChunkSize
	} else {
		length = s.TotalContentSize - offset
	}
	return offset, length, nil
}

// ContainsOffset reports whether o is within [0, TotalContentSize).
func (s Shape) ContainsOffset(o int64) bool {
	return o >= 0 && o < s.TotalContentSize
}

// ChunkIndexForOffset returns the leaf index covering byte offset o.
func (s Shape) ChunkIndexForOffset(o int64) (int64, error) {
	if !s.ContainsOffset(o) {
		return 0, fmt.Errorf("shape: offset %d out of range [0,%d)", o, s.TotalContentSize)
	}
	return o / s.ChunkSize, nil
}

// LeafNodeIndex returns the node index of leaf i in the flattened tree
// array (index 0 is the root; leaves occupy [InternalNodeCount, TotalNodeCount)).
func (s Shape) LeafNodeIndex(i int64) int64 {
	return s.InternalNodeCount + i
}

// ChildrenOf returns the node indices of the left and right children of
// internal node n.
func ChildrenOf(n int64) (left, right int64) {
	return 2*n + 1, 2*n + 2
}

func ceilDiv(a, b int64) int64 {
	return (a + b - 1) / b
}

// nextPowerOfTwo returns the smallest power of two >= n, with n=0 mapping
// to 1 (a Shape always has at least one leaf).
func nextPowerOfTwo(n int64) int64 {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len64(uint64(n-1))
}
