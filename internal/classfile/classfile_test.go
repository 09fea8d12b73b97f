package classfile

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBasicType_category2IsLongAndDoubleOnly(t *testing.T) {
	require.True(t, TLong.Category2())
	require.True(t, TDouble.Category2())
	require.False(t, TInt.Category2())
	require.False(t, TFloat.Category2())
	require.False(t, TAddress.Category2())
	require.False(t, TVoid.Category2())
}
