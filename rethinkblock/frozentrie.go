package rethinkblock

import "encoding/binary"

// labelWidth is W in spec §3/§6: the fixed bit width of a trie edge label.
// A byte-wide label keeps the trie usable directly over arbitrary label
// alphabets (the reversed-domain sentinel included) without a remapping
// table.
const labelWidth = 8

// FrozenTrie is a level-ordered, unary-degree-encoded (LOUDS-style) trie.
// Its shape is described by a single bitstream of per-node unary child
// counts (structure); two parallel arrays aligned to that bitstream's
// 1-bits record each child's label and terminal flag. Neither array is
// ever copied per lookup: all three live for the process lifetime (spec
// §5, "shared resources").
type FrozenTrie struct {
	structure     *BitVector
	structureRank *RankDirectory
	labels        []byte
	terminal      *BitVector
	terminalRank  *RankDirectory
	values        []byte   // concatenation of length-prefixed terminal values
	valueOffsets  []uint32 // cumulative byte offset into values, len == terminals+1
	nodeCount     uint64
}

// NewFrozenTrie constructs navigation over an already-assembled structure
// bitstream, parallel label/terminal arrays, and terminal value section.
// It performs no validation beyond what Lookup needs lazily; build-time
// structural checks belong to the loader (spec §7, TrieFormatError).
func NewFrozenTrie(structure *BitVector, labels []byte, terminal *BitVector, values []byte, valueOffsets []uint32, nodeCount uint64) *FrozenTrie {
	return &FrozenTrie{
		structure:     structure,
		structureRank: NewRankDirectory(structure, nil),
		labels:        labels,
		terminal:      terminal,
		terminalRank:  NewRankDirectory(terminal, nil),
		values:        values,
		valueOffsets:  valueOffsets,
		nodeCount:     nodeCount,
	}
}

// nodeStart returns the bit position where node n's unary child-count
// code begins in the structure bitstream.
func (t *FrozenTrie) nodeStart(n uint64) uint64 {
	if n == 0 {
		return 0
	}
	zeroPos, ok := t.structureRank.Select0(n - 1)
	if !ok {
		panic("rethinkblock: malformed trie structure (missing node terminator)")
	}
	return zeroPos + 1
}

// childRange returns the half-open range [lo, hi) of indices into the
// labels/terminal arrays occupied by node n's children, in label-sorted
// order (children are emitted sorted at build time; see spec §4.B).
func (t *FrozenTrie) childRange(n uint64) (lo, hi uint64) {
	start := t.nodeStart(n)
	zeroPos, ok := t.structureRank.Select0(n)
	if !ok {
		panic("rethinkblock: malformed trie structure (node has no terminator)")
	}
	lo = t.structureRank.Rank1(start)
	hi = lo + (zeroPos - start)
	return lo, hi
}

// ChildCount returns the number of children of node n.
func (t *FrozenTrie) ChildCount(n uint64) uint64 {
	lo, hi := t.childRange(n)
	return hi - lo
}

// Label returns the edge label leading into node n. n must not be the
// root (node 0 has no incoming label).
func (t *FrozenTrie) Label(n uint64) byte {
	return t.labels[n-1]
}

// IsTerminal reports whether node n is a terminal (a stored name ends
// here).
func (t *FrozenTrie) IsTerminal(n uint64) bool {
	if n == 0 {
		return false
	}
	return t.terminal.Get(n-1) == 1
}

// Value returns the decoded list-ID set for terminal node n. It panics if
// n is not terminal; callers must check IsTerminal first, per spec §4.B
// ("hot-path errors ... are programmer bugs").
func (t *FrozenTrie) Value(n uint64) []uint32 {
	if !t.IsTerminal(n) {
		panic("rethinkblock: Value called on non-terminal node")
	}
	rank := t.terminalRank.Rank1(n - 1)
	start := t.valueOffsets[rank]
	end := t.valueOffsets[rank+1]
	ids, _, err := DecodeTagsByLen(t.values[start:end])
	if err != nil {
		panic(err)
	}
	return ids
}

// lookupResult is returned by the internal byte-walk.
type lookupResult struct {
	node  uint64
	found bool
}

// Step advances from node cur to the child reached by the single byte b,
// per the algorithm in spec §4.B: binary search cur's sorted children for
// b. It is the single-byte primitive Lookup and BlocklistFilter's
// incremental suffix walk are both built from.
func (t *FrozenTrie) Step(cur uint64, b byte) (uint64, bool) {
	lo, hi := t.childRange(cur)
	idx, ok := t.binarySearchChild(lo, hi, b)
	if !ok {
		return 0, false
	}
	return idx + 1, true // child array index i maps to node id i+1
}

// Lookup walks the trie consuming the bytes of s one at a time and
// reports the terminal value (if any) once s is exhausted.
func (t *FrozenTrie) Lookup(s []byte) (matched bool, value []uint32) {
	cur := uint64(0)
	for _, b := range s {
		next, ok := t.Step(cur, b)
		if !ok {
			return false, nil
		}
		cur = next
	}
	if cur == 0 {
		// Root itself is never terminal: the empty string never matches.
		return false, nil
	}
	if !t.IsTerminal(cur) {
		return false, nil
	}
	return true, t.Value(cur)
}

// binarySearchChild finds the unique child in labels[lo:hi] equal to b.
// Children are stored in ascending label order; duplicate labels within
// one node are a build-time error (spec §4.B, "tie-breaks").
func (t *FrozenTrie) binarySearchChild(lo, hi uint64, b byte) (uint64, bool) {
	for lo < hi {
		mid := lo + (hi-lo)/2
		l := t.labels[mid]
		switch {
		case l == b:
			return mid, true
		case l < b:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return 0, false
}

// DecodeTagsByLen decodes every delta-coded list-ID packed into buf,
// consuming the whole slice. It is the self-delimiting counterpart to
// DecodeTags used when the node header carries a byte length rather than
// an explicit delta count (see FrozenTrie's terminal value section).
func DecodeTagsByLen(buf []byte) (ids []uint32, consumed int, err error) {
	var prev uint32
	pos := 0
	for pos < len(buf) {
		var delta uint32
		var shift uint
		for {
			if pos >= len(buf) {
				return nil, 0, &TrieFormatError{Reason: "truncated tag value"}
			}
			b := buf[pos]
			pos++
			delta |= uint32(b&(tagContinuationBit-1)) << shift
			shift += tagPayloadBits
			if b&tagContinuationBit == 0 {
				break
			}
		}
		prev += delta
		ids = append(ids, prev)
	}
	return ids, pos, nil
}

// basicConfigSize is the encoded byte length of the {nodecount, tdparts}
// header described in spec §3.
const basicConfigSize = 12

// BasicConfig mirrors spec §3's {nodecount, tdparts} struct.
type BasicConfig struct {
	NodeCount uint64
	TDParts   int32
}

// DecodeBasicConfig reads a BasicConfig from its wire encoding: an 8-byte
// big-endian node count followed by a 4-byte big-endian signed part
// count.
func DecodeBasicConfig(buf []byte) (BasicConfig, error) {
	if len(buf) < basicConfigSize {
		return BasicConfig{}, &ArtifactAssemblyError{Reason: "basic config too short"}
	}
	return BasicConfig{
		NodeCount: binary.BigEndian.Uint64(buf[0:8]),
		TDParts:   int32(binary.BigEndian.Uint32(buf[8:12])),
	}, nil
}
