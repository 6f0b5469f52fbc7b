// Package scheduler implements the three node-task planning strategies of
// §4.6: default (leaf-level only), aggressive (promote contiguous unset
// runs to internal-node tasks), and adaptive (choose between them from
// observed validity fraction and a byte budget).
package scheduler

import (
	"sort"

	"github.com/bits-and-blooms/bitset"
	"github.com/vecbench/vdfetch/pkg/fetchconst"
	"github.com/vecbench/vdfetch/pkg/shape"
)

// Range is a half-open byte range [Start, End) on the virtual file.
type Range struct {
	Start, End int64
}

// Task targets a single tree node; completing it verifies every leaf in
// that node's subtree.
type Task struct {
	NodeIndex int64
	ByteRange Range
}

// Scheduler plans an ordered, non-overlapping, range-covering list of
// tasks for a read.
type Scheduler interface {
	Plan(r Range, sh shape.Shape, valid *bitset.BitSet) []Task
}

// Default emits one leaf task per unset leaf intersecting the range, the
// over-fetch-minimizing strategy.
type Default struct{}

func (Default) Plan(r Range, sh shape.Shape, valid *bitset.BitSet) []Task {
	return leafTasks(r, sh, valid)
}

// Aggressive promotes contiguous runs of unset sibling leaves to
// internal-node tasks, capped by MaxBytesPerRequest, to reduce request
// count at the cost of some over-fetching.
type Aggressive struct {
	MaxBytesPerRequest int64
}

func NewAggressive() Aggressive {
	return Aggressive{MaxBytesPerRequest: fetchconst.DefaultAggressiveMaxBytes}
}

func (a Aggressive) Plan(r Range, sh shape.Shape, valid *bitset.BitSet) []Task {
	if a.MaxBytesPerRequest <= 0 {
		a.MaxBytesPerRequest = fetchconst.DefaultAggressiveMaxBytes
	}
	leaves := missingLeavesInRange(r, sh, valid)
	if len(leaves) == 0 {
		return nil
	}

	var tasks []Task
	runStart := leaves[0]
	prev := leaves[0]
	flush := func(from, to int64) {
		tasks = append(tasks, groupLeafRun(from, to, sh, a.MaxBytesPerRequest)...)
	}
	for _, li := range leaves[1:] {
		if li == prev+1 {
			prev = li
			continue
		}
		flush(runStart, prev)
		runStart, prev = li, li
	}
	flush(runStart, prev)

	sort.Slice(tasks, func(i, j int) bool { return tasks[i].NodeIndex < tasks[j].NodeIndex })
	return tasks
}

// Adaptive chooses Default when the range is mostly already valid (so the
// remaining gaps are small and not worth promoting), and Aggressive
// otherwise, per the configured threshold and byte budget.
type Adaptive struct {
	ValidFractionThreshold float64
	MaxBytesPerRequest     int64
}

func NewAdaptive() Adaptive {
	return Adaptive{
		ValidFractionThreshold: fetchconst.DefaultAdaptiveValidFractionThreshold,
		MaxBytesPerRequest:     fetchconst.DefaultAggressiveMaxBytes,
	}
}

func (a Adaptive) Plan(r Range, sh shape.Shape, valid *bitset.BitSet) []Task {
	first, err := sh.ChunkIndexForOffset(r.Start)
	if err != nil {
		return nil
	}
	last, err := sh.ChunkIndexForOffset(r.End - 1)
	if err != nil {
		return nil
	}

	total := last - first + 1
	validCount := int64(0)
	for i := first; i <= last; i++ {
		if valid.Test(uint(i)) {
			validCount++
		}
	}
	fraction := float64(validCount) / float64(total)

	if fraction >= a.ValidFractionThreshold {
		return Default{}.Plan(r, sh, valid)
	}
	return Aggressive{MaxBytesPerRequest: a.MaxBytesPerRequest}.Plan(r, sh, valid)
}

func leafTasks(r Range, sh shape.Shape, valid *bitset.BitSet) []Task {
	leaves := missingLeavesInRange(r, sh, valid)
	tasks := make([]Task, 0, len(leaves))
	for _, i := range leaves {
		off, length, err := sh.ForLeaf(i)
		if err != nil {
			continue
		}
		tasks = append(tasks, Task{NodeIndex: sh.LeafNodeIndex(i), ByteRange: Range{Start: off, End: off + length}})
	}
	return tasks
}

// missingLeavesInRange returns, in ascending order, the indices of unset
// leaves whose byte span intersects r.
func missingLeavesInRange(r Range, sh shape.Shape, valid *bitset.BitSet) []int64 {
	if r.Start < 0 {
		r.Start = 0
	}
	if r.End > sh.TotalContentSize {
		r.End = sh.TotalContentSize
	}
	if r.Start >= r.End {
		return nil
	}

	firstLeaf, err := sh.ChunkIndexForOffset(r.Start)
	if err != nil {
		return nil
	}
	lastLeaf, err := sh.ChunkIndexForOffset(r.End - 1)
	if err != nil {
		return nil
	}

	var leaves []int64
	for i := firstLeaf; i <= lastLeaf; i++ {
		if !valid.Test(uint(i)) {
			leaves = append(leaves, i)
		}
	}
	return leaves
}

// groupLeafRun splits the contiguous missing-leaf run [from,to] into one
// or more tasks, promoting to a single internal-node task when the whole
// run is exactly one power-of-two-sized, power-of-two-aligned subtree and
// its bytes are under maxBytes; otherwise it falls back to per-leaf tasks
// for every leaf in the run (no partial promotion).
func groupLeafRun(from, to int64, sh shape.Shape, maxBytes int64) []Task {
	if node, ok := internalNodeCovering(from, to, sh); ok {
		off, _, _ := sh.ForLeaf(from)
		endOff, length, _ := sh.ForLeaf(to)
		totalBytes := endOff + length - off
		if totalBytes <= maxBytes {
			return []Task{{NodeIndex: node, ByteRange: Range{Start: off, End: off + totalBytes}}}
		}
	}

	var tasks []Task
	for i := from; i <= to; i++ {
		off, length, err := sh.ForLeaf(i)
		if err != nil {
			continue
		}
		tasks = append(tasks, Task{NodeIndex: sh.LeafNodeIndex(i), ByteRange: Range{Start: off, End: off + length}})
	}
	return tasks
}

// internalNodeCovering reports the internal node index whose subtree
// spans exactly the leaf range [from,to], if one exists (the run must
// align to a power-of-two-sized, power-of-two-aligned block).
func internalNodeCovering(from, to int64, sh shape.Shape) (int64, bool) {
	span := to - from + 1
	if span&(span-1) != 0 {
		return 0, false // not a power of two
	}
	if from%span != 0 {
		return 0, false // not aligned
	}

	// Walk up from the leaf level until the subtree width equals span.
	node := sh.LeafNodeIndex(from)
	width := int64(1)
	for width < span {
		parent := (node - 1) / 2
		node = parent
		width *= 2
	}
	return node, true
}
