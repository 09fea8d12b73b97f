package compiler

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cacao-jit/cacao/internal/ir"
)

func TestNewCompilerStub_entryPointJumpsThroughJITEntryWord(t *testing.T) {
	m := &ir.Method{}
	stub, err := NewCompilerStub(m, 0x1122334455)
	require.NoError(t, err)
	require.NotZero(t, stub.EntryPoint())
	require.Equal(t, uint64(0x1122334455), binary.LittleEndian.Uint64(stub.Code[stubWordJITEntry:stubWordJITEntry+8]))
	require.Equal(t, stubDataSize, stub.EntryOffset)
}

func TestCompilerStub_overwriteReplacesTheJITEntryWord(t *testing.T) {
	m := &ir.Method{}
	stub, err := NewCompilerStub(m, 0x1)
	require.NoError(t, err)
	stub.Overwrite(0xdeadbeef)
	require.Equal(t, uint64(0xdeadbeef), binary.LittleEndian.Uint64(stub.Code[stubWordJITEntry:stubWordJITEntry+8]))
}

func TestNewNativeStub_staticStubIsMarkedStaticWithEntryPoint(t *testing.T) {
	m := &ir.Method{}
	stub, err := NewNativeStub(m, 0x99, true)
	require.NoError(t, err)
	require.NotZero(t, stub.EntryPoint())
	require.True(t, stub.Static)
}

func TestNewNativeStub_instanceStubIsNotMarkedStatic(t *testing.T) {
	m := &ir.Method{}
	stub, err := NewNativeStub(m, 0x99, false)
	require.NoError(t, err)
	require.False(t, stub.Static)
}

func TestFirstUnusedArgRegister_shiftExceedingWindowErrors(t *testing.T) {
	_, err := firstUnusedArgRegister(len(nativeArgRegisters))
	require.Error(t, err)
}
