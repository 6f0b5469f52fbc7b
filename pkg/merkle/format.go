// Package merkle implements the reference tree (MerkleRef, C3) and state
// tree (MerkleState, C4) described in §3.3/§3.4, sharing the tail-footer
// binary layout of §3.5.
package merkle

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/bits-and-blooms/bitset"
	"github.com/vecbench/vdfetch/pkg/fetcherr"
	"github.com/vecbench/vdfetch/pkg/merklehash"
	"github.com/vecbench/vdfetch/pkg/shape"
)

const footerSize = 8 + 8 + 4 + 4 + 4 // totalContentSize, chunkSize, totalChunks, bitSetLength, magic

// treeFile is the decoded form of the §3.5 layout, shared by ref.go and
// state.go.
type treeFile struct {
	shape  shape.Shape
	hashes []merklehash.Hash
	bits   *bitset.BitSet
	magic  uint32
}

func writeTreeFile(path string, tf treeFile) error {
	bitsetBytes := packBits(tf.bits, tf.shape.LeafCount)

	buf := make([]byte, 0, int64(len(tf.hashes))*merklehash.Size+int64(len(bitsetBytes))+footerSize)
	for _, h := range tf.hashes {
		buf = append(buf, h[:]...)
	}
	buf = append(buf, bitsetBytes...)

	footer := make([]byte, footerSize)
	binary.LittleEndian.PutUint64(footer[0:8], uint64(tf.shape.TotalContentSize))
	binary.LittleEndian.PutUint64(footer[8:16], uint64(tf.shape.ChunkSize))
	binary.LittleEndian.PutUint32(footer[16:20], uint32(tf.shape.LeafCount))
	binary.LittleEndian.PutUint32(footer[20:24], uint32(tf.shape.LeafCount))
	binary.LittleEndian.PutUint32(footer[24:28], tf.magic)
	buf = append(buf, footer...)

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf, 0o644); err != nil {
		return fetcherr.IoError(err, "write temp tree file %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fetcherr.IoError(err, "rename temp tree file into place: %s", path)
	}
	return nil
}

func readTreeFile(path string, expectedMagic uint32) (treeFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return treeFile{}, fetcherr.IoError(err, "read tree file %s", path)
	}
	if len(raw) < footerSize {
		return treeFile{}, fetcherr.InvalidFormat("tree file %s is too short to contain a footer", path)
	}

	footer := raw[len(raw)-footerSize:]
	totalContentSize := int64(binary.LittleEndian.Uint64(footer[0:8]))
	chunkSize := int64(binary.LittleEndian.Uint64(footer[8:16]))
	totalChunks := int64(binary.LittleEndian.Uint32(footer[16:20]))
	bitSetLength := int64(binary.LittleEndian.Uint32(footer[20:24]))
	magic := binary.LittleEndian.Uint32(footer[24:28])

	if magic != expectedMagic {
		return treeFile{}, fetcherr.InvalidFormat("tree file %s has magic %#x, want %#x", path, magic, expectedMagic)
	}

	sh, err := shape.Of(totalContentSize)
	if err != nil {
		return treeFile{}, fetcherr.InvalidFormat("tree file %s: %v", path, err)
	}
	if sh.ChunkSize != chunkSize || sh.LeafCount != totalChunks {
		return treeFile{}, fetcherr.InvalidFormat(
			"tree file %s footer disagrees with recomputed shape: chunkSize=%d(want %d) leafCount=%d(want %d)",
			path, chunkSize, sh.ChunkSize, totalChunks, sh.LeafCount)
	}
	if bitSetLength != sh.LeafCount {
		return treeFile{}, fetcherr.InvalidFormat("tree file %s: bitSetLength %d != leafCount %d", path, bitSetLength, sh.LeafCount)
	}

	hashesLen := int64(len(raw)) - footerSize - ceilDiv8(sh.LeafCount)
	wantHashesLen := sh.TotalNodeCount * merklehash.Size
	if hashesLen != wantHashesLen {
		return treeFile{}, fetcherr.InvalidFormat(
			"tree file %s: hash array length %d != expected %d", path, hashesLen, wantHashesLen)
	}

	hashes := make([]merklehash.Hash, sh.TotalNodeCount)
	for i := range hashes {
		copy(hashes[i][:], raw[int64(i)*merklehash.Size:(int64(i)+1)*merklehash.Size])
	}

	bitsetBytes := raw[hashesLen : hashesLen+ceilDiv8(sh.LeafCount)]
	bits := unpackBits(bitsetBytes, sh.LeafCount)

	return treeFile{shape: sh, hashes: hashes, bits: bits, magic: magic}, nil
}

func packBits(bs *bitset.BitSet, leafCount int64) []byte {
	buf := make([]byte, ceilDiv8(leafCount))
	for i := int64(0); i < leafCount; i++ {
		if bs != nil && bs.Test(uint(i)) {
			buf[i/8] |= 1 << uint(i%8)
		}
	}
	return buf
}

func unpackBits(buf []byte, leafCount int64) *bitset.BitSet {
	bs := bitset.New(uint(leafCount))
	for i := int64(0); i < leafCount; i++ {
		if buf[i/8]&(1<<uint(i%8)) != 0 {
			bs.Set(uint(i))
		}
	}
	return bs
}

func ceilDiv8(n int64) int64 {
	return (n + 7) / 8
}

func verifyHashArrayLength(sh shape.Shape, hashes []merklehash.Hash) error {
	if int64(len(hashes)) != sh.TotalNodeCount {
		return fmt.Errorf("hash array length %d != totalNodeCount %d", len(hashes), sh.TotalNodeCount)
	}
	return nil
}
