package u32

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLeBytes(t *testing.T) {
	tests := []struct {
		name  string
		input uint32
	}{
		{name: "zero", input: 0},
		{name: "half", input: math.MaxInt32},
		{name: "max", input: math.MaxUint32},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			expected := make([]byte, 4)
			binary.LittleEndian.PutUint32(expected, tc.input)
			b := LeBytes(tc.input)
			require.Equal(t, expected, b[:])
		})
	}
}

func TestLe_roundTripsWithLeBytes(t *testing.T) {
	b := LeBytes(0xcafebabe)
	require.Equal(t, uint32(0xcafebabe), Le(b[:]))
}
