package rethinkblock

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTagCodecRoundTrip(t *testing.T) {
	cases := [][]uint32{
		{},
		{0},
		{0, 1, 2},
		{5, 300, 301, 70000},
		{1, 64, 128, 4096, 1 << 20},
	}
	for _, ids := range cases {
		buf := EncodeTags(ids)
		got, consumed, err := DecodeTags(buf, len(ids))
		require.NoError(t, err)
		require.Equal(t, len(buf), consumed)
		if len(ids) == 0 {
			require.Empty(t, got)
		} else {
			require.Equal(t, ids, got)
		}
	}
}

func TestTagCodecTruncated(t *testing.T) {
	buf := EncodeTags([]uint32{1, 1000})
	_, _, err := DecodeTags(buf[:len(buf)-1], 2)
	require.Error(t, err)
	var fmtErr *TrieFormatError
	require.ErrorAs(t, err, &fmtErr)
}

func TestTagCodecMultiByteDelta(t *testing.T) {
	// 70000 needs more than one continuation byte at 6 payload bits/byte.
	buf := EncodeTags([]uint32{70000})
	require.Greater(t, len(buf), 1)
	ids, consumed, err := DecodeTags(buf, 1)
	require.NoError(t, err)
	require.Equal(t, len(buf), consumed)
	require.Equal(t, []uint32{70000}, ids)
}
