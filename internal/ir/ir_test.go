package ir

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValueType_category2IsLongAndDoubleOnly(t *testing.T) {
	require.True(t, TypeLong.Category2())
	require.True(t, TypeDouble.Category2())
	require.False(t, TypeInt.Category2())
	require.False(t, TypeFloat.Category2())
	require.False(t, TypeAddress.Category2())
}

func TestInstruction_hasFlagRequiresAllBitsSet(t *testing.T) {
	in := Instruction{Flags: FlagUnresolved}
	require.True(t, in.HasFlag(FlagUnresolved))
	require.False(t, in.HasFlag(FlagUnresolved|FlagNoNullCheck))

	in.Flags |= FlagNoNullCheck
	require.True(t, in.HasFlag(FlagUnresolved|FlagNoNullCheck))
}

func TestInstruction_hasFlagOnZeroFlagsIsFalse(t *testing.T) {
	var in Instruction
	require.False(t, in.HasFlag(FlagUnresolved))
}
