package rethinkblock

// tagPayloadBits is p in spec §4.C / §6: the number of payload bits
// carried per continuation word. Fixed at 6: each word is one byte with
// an unused high bit, a continuation bit (tagContinuationBit, 0x40) and
// 6 payload bits, repeated for the td blob's terminal values. A
// conformance vector, if one becomes available, should be the only
// reason to change this constant.
const tagPayloadBits = 6

const tagContinuationBit = 1 << tagPayloadBits

// EncodeTags encodes an ascending, deduplicated slice of list-IDs as a
// delta-coded, variable-length base-2^p sequence per spec §4.C. The
// caller must pass ids already sorted ascending; EncodeTags does not
// sort or dedupe.
func EncodeTags(ids []uint32) []byte {
	var out []byte
	var prev uint32
	for _, id := range ids {
		delta := id - prev
		prev = id
		out = appendDelta(out, delta)
	}
	return out
}

func appendDelta(out []byte, delta uint32) []byte {
	for {
		chunk := byte(delta & (tagContinuationBit - 1))
		delta >>= tagPayloadBits
		if delta > 0 {
			out = append(out, chunk|tagContinuationBit)
		} else {
			out = append(out, chunk)
			return out
		}
	}
}

// DecodeTags reads exactly n delta-coded list-IDs from buf, returning the
// decoded ascending set and the number of bytes consumed. n is supplied by
// the caller (the node header declares the delta count); DecodeTags does
// not infer it from the stream. n == 0 is legal and consumes zero bytes.
func DecodeTags(buf []byte, n int) (ids []uint32, consumed int, err error) {
	ids = make([]uint32, 0, n)
	var prev uint32
	pos := 0
	for i := 0; i < n; i++ {
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
