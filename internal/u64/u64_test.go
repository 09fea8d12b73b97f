package u64

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLeBytes(t *testing.T) {
	tests := []struct {
		name  string
		input uint64
	}{
		{name: "zero", input: 0},
		{name: "half", input: math.MaxInt64},
		{name: "max", input: math.MaxUint64},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			expected := make([]byte, 8)
			binary.LittleEndian.PutUint64(expected, tc.input)
			b := LeBytes(tc.input)
			require.Equal(t, expected, b[:])
		})
	}
}

func TestLe_roundTripsWithLeBytes(t *testing.T) {
	b := LeBytes(0xdeadbeefcafebabe)
	require.Equal(t, uint64(0xdeadbeefcafebabe), Le(b[:]))
}
