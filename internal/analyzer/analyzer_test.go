package analyzer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cacao-jit/cacao/internal/bytecode"
	"github.com/cacao-jit/cacao/internal/classfile"
	"github.com/cacao-jit/cacao/internal/ir"
)

func parse(t *testing.T, code []byte) *ir.Method {
	t.Helper()
	m, err := bytecode.Parse(&classfile.MethodInfo{Code: code, MaxStack: 4, MaxLocals: 4}, nil)
	require.NoError(t, err)
	return m
}

// S1: "bipush 42; ireturn" -- a single block, no merges, trivially
// reaches a fixed point in one pass.
func TestAnalyze_singleBlock(t *testing.T) {
	m := parse(t, []byte{0x10, 42, 0xac})
	require.NoError(t, New(m).Analyze())
	require.Equal(t, uint8(ir.BlockFinished|ir.BlockReached), m.Blocks[0].Flags&(ir.BlockFinished|ir.BlockReached))
	// Operands were rewritten from raw immediates to slot references.
	require.Equal(t, ir.KindVar, m.Instructions[1].S1.Kind)
}

// Every invariant-1 block reachable by forward flow must end up
// "finished"; dead code after an unconditional return is marked
// deleted rather than erroring.
func TestAnalyze_deadCodeAfterReturnIsDeletedNotError(t *testing.T) {
	// The block after the ireturn at pc 1 is never fallen into or
	// branched to.
	code := []byte{
		0x03,             // 0: iconst_0
		0xac,             // 1: ireturn
		0xa7, 0x00, 0x03, // 2: goto 5  (unreachable: nothing falls/branches here)
		0x04, // 5: iconst_1 (unreachable target of the dead goto, but still a block start)
		0xac, // 6: ireturn
	}
	m := parse(t, code)
	require.NoError(t, New(m).Analyze())
	// Block starting at pc 2 is unreachable from pc 0's ireturn.
	var deadBlock *ir.BasicBlock
	for _, b := range m.Blocks {
		if b.StartPC == 2 {
			deadBlock = b
		}
	}
	require.NotNil(t, deadBlock)
	require.NotZero(t, deadBlock.Flags&ir.BlockDeleted)
}

// A merge of two edges with mismatched stack depth is a verifier
// error: one path reaches the final
// ireturn with an empty stack (straight from the ifeq), the other
// after pushing two more values, so their depths disagree at the
// merge.
func TestAnalyze_mergeDepthMismatchIsVerifyError(t *testing.T) {
	code := []byte{
		0x03,             // 0: iconst_0
		0x99, 0x00, 0x08, // 1: ifeq -> 9
		0x03,             // 4: iconst_0
		0x03,             // 5: iconst_0
		0xa7, 0x00, 0x03, // 6: goto -> 9
		0xac, // 9: ireturn
	}
	m := parse(t, code)
	err := New(m).Analyze()
	require.Error(t, err)
	var ve *VerifyError
	require.ErrorAs(t, err, &ve)
}

func TestAnalyzer_successorsOfReturnIsEmpty(t *testing.T) {
	m := parse(t, []byte{0x03, 0xac})
	a := New(m)
	require.NoError(t, a.Analyze())
	require.Empty(t, a.successors(m.Blocks[0]))
}

func TestAnalyzer_successorsOfGoto(t *testing.T) {
	code := []byte{0xa7, 0x00, 0x03, 0x03, 0xac}
	m := parse(t, code)
	a := New(m)
	require.NoError(t, a.Analyze())
	succ := a.successors(m.Blocks[0])
	require.Equal(t, []int32{1}, succ)
}

// Exception handlers are reached with a one-element in-stack holding
// the exception reference.
func TestAnalyze_exceptionHandlerEntryStack(t *testing.T) {
	code := []byte{
		0x03, // 0: iconst_0
		0xac, // 1: ireturn
		0x57, // 2: pop (handler: drops the exception reference)
		0xac, // 3: (unused, just padding) -- replaced below
	}
	code[3] = 0xb1 // return
	info := &classfile.MethodInfo{Code: code, MaxStack: 4, MaxLocals: 4, ExceptionTable: []classfile.ExceptionRow{
		{StartPC: 0, EndPC: 2, HandlerPC: 2, CatchType: 0},
	}}
	m, err := bytecode.Parse(info, nil)
	require.NoError(t, err)
	require.NoError(t, New(m).Analyze())
	var handler *ir.BasicBlock
	for _, b := range m.Blocks {
		if b.StartPC == 2 {
			handler = b
		}
	}
	require.NotNil(t, handler)
	require.EqualValues(t, 1, handler.InDepth)
}
