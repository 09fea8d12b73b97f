package compiler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cacao-jit/cacao/internal/analyzer"
	"github.com/cacao-jit/cacao/internal/bytecode"
	"github.com/cacao-jit/cacao/internal/classfile"
)

func compileMethod(t *testing.T, code []byte, maxStack, maxLocals int32, static bool) ([]byte, []PatchReference) {
	t.Helper()
	m, err := bytecode.Parse(&classfile.MethodInfo{Code: code, MaxStack: maxStack, MaxLocals: maxLocals}, nil)
	require.NoError(t, err)
	require.NoError(t, analyzer.New(m).Analyze())
	code2, _, _, patches, _, err := CompileAMD64(m, false, static)
	require.NoError(t, err)
	return code2, patches
}

// "bipush 42; ireturn" must compile to non-empty machine code with no
// pending patches.
func TestCompileAMD64_bipushIreturn(t *testing.T) {
	code, patches := compileMethod(t, []byte{0x10, 42, 0xac}, 2, 0, true)
	require.NotEmpty(t, code)
	require.Empty(t, patches)
}

// getstatic with no resolver supplied is left unresolved and must
// record exactly one patch reference whose subject is the
// constant-pool index carried in the field opcode, and whose
// CodeOffset is resolved to a real, non-negative location once the
// method is fully assembled.
func TestCompileAMD64_unresolvedGetStaticRecordsPatch(t *testing.T) {
	code := []byte{
		0xb2, 0x00, 0x05, // getstatic #5
		0x57, // pop
		0xb1, // return
	}
	machineCode, patches := compileMethod(t, code, 2, 0, true)
	require.NotEmpty(t, machineCode)
	require.Len(t, patches, 1)
	require.Equal(t, patcherGetPutStatic, patches[0].Kind)
	require.EqualValues(t, 5, patches[0].Subject.PoolIndex)
	require.GreaterOrEqual(t, patches[0].CodeOffset, 0)
	require.False(t, patches[0].Applied)
}

// putstatic's subject must likewise come from the pool index, not the
// popped value's variable slot (the analyzer repurposes S2 to hold
// that operand).
func TestCompileAMD64_unresolvedPutStaticRecordsPatch(t *testing.T) {
	code := []byte{
		0x03,             // iconst_0
		0xb3, 0x00, 0x09, // putstatic #9
		0xb1, // return
	}
	_, patches := compileMethod(t, code, 2, 0, true)
	require.Len(t, patches, 1)
	require.EqualValues(t, 9, patches[0].Subject.PoolIndex)
}
