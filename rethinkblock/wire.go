package rethinkblock

import "encoding/binary"

// Wire framing for the assembled td/rd artifacts.
//
// A bit-exact format is only meaningful relative to the producer that
// generates the artifacts served from blocklistUrl (spec §6); absent a
// conformance vector this package defines its own self-consistent
// framing, used symmetrically by Builder (encode, for fixtures/tests)
// and BlocklistLoader (decode, for fetched artifacts):
//
//	td blob:
//	  u32 structureBitLen | structure bytes (ceil/8)
//	  u32 len(labels)     | labels bytes
//	  u32 terminalBitLen  | terminal bytes (ceil/8)
//	  u32 len(values)     | values bytes
//	  u32 len(valueOffsets) | valueOffsets as u32 each
//
//	rd blob:
//	  rank-directory entries for the structure bitvector, u32 each,
//	  one per rankBlockBits-bit block (spec §4.A).
func putU32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

func readU32(buf []byte, off int) (uint32, int, error) {
	if off+4 > len(buf) {
		return 0, 0, &ArtifactAssemblyError{Reason: "truncated stream reading length prefix"}
	}
	return binary.BigEndian.Uint32(buf[off : off+4]), off + 4, nil
}

// EncodeTD serializes the trie's structure, labels, terminal flags, and
// terminal value section into the td wire format.
func (t *FrozenTrie) EncodeTD() []byte {
	var out []byte
	out = putU32(out, uint32(t.structure.Len()))
	out = append(out, t.structure.bytes...)
	out = putU32(out, uint32(len(t.labels)))
	out = append(out, t.labels...)
	out = putU32(out, uint32(t.terminal.Len()))
	out = append(out, t.terminal.bytes...)
	out = putU32(out, uint32(len(t.values)))
	out = append(out, t.values...)
	out = putU32(out, uint32(len(t.valueOffsets)))
	for _, off := range t.valueOffsets {
		out = putU32(out, off)
	}
	return out
}

// EncodeRD serializes the structure bitvector's rank directory.
func (t *FrozenTrie) EncodeRD() []byte {
	var out []byte
	for _, v := range t.structureRank.dir {
		out = putU32(out, v)
	}
	return out
}

// DecodeTD parses a td blob (already assembled from its parts) together
// with its matching rd directory blob into a navigable FrozenTrie. It
// validates the structural invariants of spec §3 (rank consistency is
// implied by construction; child-count unary codes and label ranges are
// checked lazily during traversal and panic on violation per §4.B/§7).
// Build-time decode failures return errors instead of panicking, since a
// malformed fetch is an expected failure mode, not a programmer bug: a
// truncated section returns ArtifactAssemblyError, and a terminal section
// whose length does not match the node count returns TrieFormatError.
func DecodeTD(td, rd []byte, cfg BasicConfig) (*FrozenTrie, error) {
	off := 0
	structureBitLen, off, err := readU32(td, off)
	if err != nil {
		return nil, err
	}
	structureByteLen := (int(structureBitLen) + 7) / 8
	if off+structureByteLen > len(td) {
		return nil, &ArtifactAssemblyError{Reason: "truncated structure section"}
	}
	structureBytes := td[off : off+structureByteLen]
	off += structureByteLen

	labelsLen, off, err := readU32(td, off)
	if err != nil {
		return nil, err
	}
	if off+int(labelsLen) > len(td) {
		return nil, &ArtifactAssemblyError{Reason: "truncated labels section"}
	}
	labels := td[off : off+int(labelsLen)]
	off += int(labelsLen)

	terminalBitLen, off, err := readU32(td, off)
	if err != nil {
		return nil, err
	}
	terminalByteLen := (int(terminalBitLen) + 7) / 8
	if off+terminalByteLen > len(td) {
		return nil, &ArtifactAssemblyError{Reason: "truncated terminal section"}
	}
	terminalBytes := td[off : off+terminalByteLen]
	off += terminalByteLen

	valuesLen, off, err := readU32(td, off)
	if err != nil {
		return nil, err
	}
	if off+int(valuesLen) > len(td) {
		return nil, &ArtifactAssemblyError{Reason: "truncated values section"}
	}
	values := td[off : off+int(valuesLen)]
	off += int(valuesLen)

	offsetsCount, off, err := readU32(td, off)
	if err != nil {
		return nil, err
	}
	valueOffsets := make([]uint32, offsetsCount)
	for i := range valueOffsets {
		v, next, err := readU32(td, off)
		if err != nil {
			return nil, err
		}
		valueOffsets[i] = v
		off = next
	}

	if uint64(terminalBitLen) != cfg.NodeCount-1 && cfg.NodeCount > 0 {
		return nil, &TrieFormatError{Reason: "terminal bitplane length does not match declared node count"}
	}

	var dir []uint32
	if len(rd) > 0 {
		dir = make([]uint32, len(rd)/4)
		for i := range dir {
			v, _, err := readU32(rd, i*4)
			if err != nil {
				return nil, err
			}
			dir[i] = v
		}
	}

	structureBV := NewBitVector(structureBytes, uint64(structureBitLen))
	terminalBV := NewBitVector(terminalBytes, uint64(terminalBitLen))

	trie := &FrozenTrie{
		structure:    structureBV,
		labels:       labels,
		terminal:     terminalBV,
		terminalRank: NewRankDirectory(terminalBV, nil),
		values:       values,
		valueOffsets: valueOffsets,
		nodeCount:    cfg.NodeCount,
	}
	if dir != nil {
		trie.structureRank = NewRankDirectory(structureBV, dir)
	} else {
		trie.structureRank = NewRankDirectory(structureBV, nil)
	}
	return trie, nil
}
