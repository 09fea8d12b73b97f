package datasegment

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuilder_sealLaysOutEntriesInInsertionOrder(t *testing.T) {
	b := NewBuilder()
	b.AddS4(7)
	b.AddDouble(0x4010000000000000) // 4.0
	seg := b.Seal()
	require.Len(t, seg.Bytes, 4+8)
	require.EqualValues(t, 7, int32(binary.LittleEndian.Uint32(seg.Bytes[0:4])))
	require.EqualValues(t, 0x4010000000000000, binary.LittleEndian.Uint64(seg.Bytes[4:12]))
}

func TestBuilder_onOffsetFiresWithSealedPosition(t *testing.T) {
	b := NewBuilder()
	b.AddS4(1) // occupies [0,4)
	var gotOffset = -1
	ref := b.AddS4(2) // occupies [4,8)
	ref.OnOffset(func(offset int) { gotOffset = offset })
	b.Seal()
	require.Equal(t, 4, gotOffset)
}

func TestBuilder_lenMatchesSealedLength(t *testing.T) {
	b := NewBuilder()
	b.AddS4(1)
	b.AddAddress(0xdeadbeef)
	require.Equal(t, 12, b.Len())
	seg := b.Seal()
	require.Len(t, seg.Bytes, 12)
}

func TestBuilder_patchOverwritesTargetBytes(t *testing.T) {
	b := NewBuilder()
	ref := b.AddTarget()
	want := make([]byte, 8)
	binary.LittleEndian.PutUint64(want, 0x1122334455667788)
	ref.Patch(want)
	seg := b.Seal()
	require.Equal(t, want, seg.Bytes)
}

func TestBuilder_emptyBuilderSealsToEmptySegment(t *testing.T) {
	b := NewBuilder()
	seg := b.Seal()
	require.Empty(t, seg.Bytes)
	require.Equal(t, 0, b.Len())
}
