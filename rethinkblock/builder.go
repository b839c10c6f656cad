package rethinkblock

import "sort"

// bitWriter appends bits MSB-first into a byte buffer, matching the
// layout BitVector.Get expects.
type bitWriter struct {
	buf []byte
	n   uint64 // bits written
}

func (w *bitWriter) writeBit(b int) {
	byteIdx := w.n >> 3
	for uint64(len(w.buf)) <= byteIdx {
		w.buf = append(w.buf, 0)
	}
	if b != 0 {
		bitIdx := 7 - (w.n & 7)
		w.buf[byteIdx] |= 1 << bitIdx
	}
	w.n++
}

func (w *bitWriter) writeUnary(k int) {
	for i := 0; i < k; i++ {
		w.writeBit(1)
	}
	w.writeBit(0)
}

func (w *bitWriter) bitVector() *BitVector {
	return NewBitVector(w.buf, w.n)
}

// Builder assembles a FrozenTrie from a set of raw trie keys (the bytes a
// caller would pass to FrozenTrie.Lookup — i.e. already reversed and
// sentinel-joined, see BlocklistFilter) each carrying a list-ID set. It
// is not part of the fetch pipeline: production filters always navigate
// a trie fetched pre-built from the upstream CDN (spec §4.E). Builder
// exists for tests and for generating conformance fixtures.
type Builder struct {
	entries map[string][]uint32
}

// NewBuilder returns an empty trie builder.
func NewBuilder() *Builder {
	return &Builder{entries: make(map[string][]uint32)}
}

// Add inserts a key with its associated list-IDs. Calling Add again with
// the same key merges the ID sets.
func (b *Builder) Add(key string, listIDs ...uint32) {
	b.entries[key] = append(b.entries[key], listIDs...)
}

// Build constructs the FrozenTrie over the accumulated entries.
func (b *Builder) Build() *FrozenTrie {
	keys := make([]string, 0, len(b.entries))
	for k := range b.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	type qnode struct{ s, e, col int }
	queue := []qnode{{0, len(keys), 0}}

	var sw bitWriter
	var labels []byte
	var terminal []bool
	var values [][]uint32

	for i := 0; i < len(queue); i++ {
		elt := queue[i]
		nodeID := i
		isLeaf := elt.s < elt.e && elt.col == len(keys[elt.s])
		if nodeID > 0 {
			terminal[nodeID-1] = isLeaf
			if isLeaf {
				values[nodeID-1] = dedupSortedIDs(b.entries[keys[elt.s]])
			}
		}
		start := elt.s
		if isLeaf {
			start++
		}
		k := 0
		for j := start; j < elt.e; {
			frm := j
			for j < elt.e && keys[j][elt.col] == keys[frm][elt.col] {
				j++
			}
			queue = append(queue, qnode{frm, j, elt.col + 1})
			labels = append(labels, keys[frm][elt.col])
			terminal = append(terminal, false)
			values = append(values, nil)
			k++
		}
		sw.writeUnary(k)
	}

	var terminalWriter bitWriter
	for _, t := range terminal {
		if t {
			terminalWriter.writeBit(1)
		} else {
			terminalWriter.writeBit(0)
		}
	}

	var valueBuf []byte
	valueOffsets := make([]uint32, 1, len(values)+1)
	for i, isTerm := range terminal {
		if !isTerm {
			continue
		}
		valueBuf = append(valueBuf, EncodeTags(values[i])...)
		valueOffsets = append(valueOffsets, uint32(len(valueBuf)))
	}

	return NewFrozenTrie(sw.bitVector(), labels, terminalWriter.bitVector(), valueBuf, valueOffsets, uint64(len(queue)))
}

func dedupSortedIDs(ids []uint32) []uint32 {
	if len(ids) == 0 {
		return nil
	}
	cp := append([]uint32(nil), ids...)
	sort.Slice(cp, func(i, j int) bool { return cp[i] < cp[j] })
	out := cp[:1]
	for _, id := range cp[1:] {
		if id != out[len(out)-1] {
			out = append(out, id)
		}
	}
	return out
}
