package cacao

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cacao-jit/cacao/internal/analyzer"
	"github.com/cacao-jit/cacao/internal/bytecode"
	"github.com/cacao-jit/cacao/internal/classfile"
	"github.com/cacao-jit/cacao/internal/engine/compiler"
)

func compileSimpleMethod(t *testing.T, code []byte, maxStack, maxLocals int32, opts ...Option) *compiler.CodeInfo {
	t.Helper()
	m, err := bytecode.Parse(&classfile.MethodInfo{Code: code, MaxStack: maxStack, MaxLocals: maxLocals}, nil)
	require.NoError(t, err)
	require.NoError(t, analyzer.New(m).Analyze())
	ci, err := NewCompiler(opts...).Compile(m)
	require.NoError(t, err)
	return ci
}

// "bipush 42; ireturn" compiles and publishes as a
// runnable (active) code revision with a non-zero entry point.
func TestCompile_bipushIreturn(t *testing.T) {
	ci := compileSimpleMethod(t, []byte{0x10, 42, 0xac}, 2, 0)
	require.Equal(t, compiler.StateActive, ci.State())
	require.NotZero(t, ci.EntryPoint())
	require.Empty(t, ci.Patches)
}

func TestCompile_synchronizedStaticSetsFlag(t *testing.T) {
	ci := compileSimpleMethod(t, []byte{0x03, 0xac}, 1, 0, Synchronized(true))
	require.NotZero(t, ci.Flags&compiler.FlagSynchronized)
}

func TestCompile_unsynchronizedLeavesFlagClear(t *testing.T) {
	ci := compileSimpleMethod(t, []byte{0x03, 0xac}, 1, 0)
	require.Zero(t, ci.Flags&compiler.FlagSynchronized)
}

// A backward goto must publish successfully and records at least one
// replacement point at the loop header.
func TestCompile_loopRecordsReplacementPoint(t *testing.T) {
	code := []byte{0xa7, 0x00, 0x00} // 0: goto 0 (self loop, stack depth 0 on every edge)
	ci := compileSimpleMethod(t, code, 1, 0)
	require.NotEmpty(t, ci.Replacements)
}

// An unresolved getstatic must publish with exactly one pending patch
// whose subject carries the constant-pool index from the bytecode,
// not a leftover operand-stack slot index.
func TestCompile_unresolvedFieldAccessPublishesWithPendingPatch(t *testing.T) {
	code := []byte{
		0xb2, 0x00, 0x2a, // getstatic #42
		0x57, // pop
		0xb1, // return
	}
	ci := compileSimpleMethod(t, code, 2, 0)
	require.Equal(t, compiler.StateActive, ci.State())
	require.Len(t, ci.Patches, 1)
	require.EqualValues(t, 42, ci.Patches[0].Subject.PoolIndex)
	require.False(t, ci.Patches[0].Applied)
}
