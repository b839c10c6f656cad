package rethinkblock

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBitVectorGet(t *testing.T) {
	bv := NewBitVector([]byte{0b10110000}, 8)
	require.Equal(t, 1, bv.Get(0))
	require.Equal(t, 0, bv.Get(1))
	require.Equal(t, 1, bv.Get(2))
	require.Equal(t, 1, bv.Get(3))
	require.Equal(t, 0, bv.Get(4))
}

func TestRankDirectoryRank1(t *testing.T) {
	// 11010100 00000000 -> ones at 0,1,3,5
	bv := NewBitVector([]byte{0b11010100, 0x00}, 16)
	rd := NewRankDirectory(bv, nil)

	require.Equal(t, uint64(0), rd.Rank1(0))
	require.Equal(t, uint64(1), rd.Rank1(1))
	require.Equal(t, uint64(2), rd.Rank1(2))
	require.Equal(t, uint64(2), rd.Rank1(3))
	require.Equal(t, uint64(3), rd.Rank1(4))
	require.Equal(t, uint64(4), rd.Rank1(6))
}

func TestRankDirectorySelect1(t *testing.T) {
	bv := NewBitVector([]byte{0b11010100, 0x00}, 16)
	rd := NewRankDirectory(bv, nil)

	pos, ok := rd.Select1(0)
	require.True(t, ok)
	require.Equal(t, uint64(0), pos)

	pos, ok = rd.Select1(1)
	require.True(t, ok)
	require.Equal(t, uint64(1), pos)

	pos, ok = rd.Select1(2)
	require.True(t, ok)
	require.Equal(t, uint64(3), pos)

	pos, ok = rd.Select1(3)
	require.True(t, ok)
	require.Equal(t, uint64(5), pos)

	_, ok = rd.Select1(4)
	require.False(t, ok)
}

func TestRankDirectorySelect0(t *testing.T) {
	bv := NewBitVector([]byte{0b11010100, 0x00}, 16)
	rd := NewRankDirectory(bv, nil)

	pos, ok := rd.Select0(0)
	require.True(t, ok)
	require.Equal(t, uint64(2), pos)

	pos, ok = rd.Select0(1)
	require.True(t, ok)
	require.Equal(t, uint64(4), pos)
}

func TestRankDirectoryAcrossBlocks(t *testing.T) {
	// Exercise more than one rankBlockBits-sized block.
	n := rankBlockBits*2 + 10
	bytes := make([]byte, (n+7)/8)
	for i := 0; i < n; i += 3 {
		bytes[i/8] |= 1 << (7 - uint(i%8))
	}
	bv := NewBitVector(bytes, uint64(n))
	rd := NewRankDirectory(bv, nil)

	var want uint64
	for i := 0; i < n; i++ {
		require.Equal(t, want, rd.Rank1(uint64(i)))
		if bv.Get(uint64(i)) == 1 {
			want++
		}
	}
}
