package bytecode

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cacao-jit/cacao/internal/classfile"
	"github.com/cacao-jit/cacao/internal/ir"
)

func mi(code []byte) *classfile.MethodInfo {
	return &classfile.MethodInfo{Code: code, MaxStack: 4, MaxLocals: 2}
}

// "bipush 42; ireturn" parses into two
// instructions in a single block and carries the constant as an
// immediate operand.
func TestParse_bipushIreturn(t *testing.T) {
	m, err := Parse(mi([]byte{0x10, 42, 0xac}), nil)
	require.NoError(t, err)
	require.Len(t, m.Instructions, 2)
	require.Equal(t, ir.OpIConst, m.Instructions[0].Op)
	require.Equal(t, int64(42), m.Instructions[0].S1.Imm)
	require.Equal(t, ir.OpIReturn, m.Instructions[1].Op)
	require.Len(t, m.Blocks, 1)
	require.EqualValues(t, 0, m.Blocks[0].Start)
	require.EqualValues(t, 2, m.Blocks[0].End)
}

func TestParse_bipushIsSignExtended(t *testing.T) {
	m, err := Parse(mi([]byte{0x10, 0xff, 0xac}), nil) // bipush -1
	require.NoError(t, err)
	require.Equal(t, int64(-1), m.Instructions[0].S1.Imm)
}

// PC 0 is always a block start even with no branches.
func TestParse_singleBlockWhenNoBranches(t *testing.T) {
	m, err := Parse(mi([]byte{0x03, 0xac}), nil) // iconst_0; ireturn
	require.NoError(t, err)
	require.True(t, m.BlockStarts[0])
	require.Len(t, m.Blocks, 1)
}

// goto splits the method into two blocks: the branch target and the
// fall-through after the goto both become block starts.
func TestParse_gotoCreatesBlocks(t *testing.T) {
	// 0: goto 3 ; 3: iconst_0 ; 4: ireturn
	code := []byte{0xa7, 0x00, 0x03, 0x03, 0xac}
	m, err := Parse(mi(code), nil)
	require.NoError(t, err)
	require.True(t, m.BlockStarts[0])
	require.True(t, m.BlockStarts[3])
	require.Len(t, m.Blocks, 2)
	require.Equal(t, ir.OpGoto, m.Instructions[0].Op)
	require.Equal(t, ir.KindBlock, m.Instructions[0].Dst.Kind)
	require.EqualValues(t, 1, m.Instructions[0].Dst.Index)
}

// A conditional branch's fall-through target is also a block start,
// the conditional branch's fall-through target is itself a block start.
func TestParse_conditionalBranchFallThroughIsBlockStart(t *testing.T) {
	// 0: iconst_0 ; 1: ifeq 6 ; 4: iconst_1 ; 5: ireturn ; 6: iconst_0 ; 7: ireturn
	code := []byte{
		0x03,             // 0: iconst_0
		0x99, 0x00, 0x05, // 1: ifeq -> 6
		0x04,             // 4: iconst_1
		0xac,             // 5: ireturn
		0x03,             // 6: iconst_0
		0xac,             // 7: ireturn
	}
	m, err := Parse(mi(code), nil)
	require.NoError(t, err)
	require.True(t, m.BlockStarts[4]) // fall-through after the ifeq
	require.True(t, m.BlockStarts[6]) // branch target
	require.Len(t, m.Blocks, 3)
}

// Exception table entries mark start/end/handler PCs as block starts
// and get remapped onto block indices.
func TestParse_exceptionTableBoundariesAreBlockStarts(t *testing.T) {
	// 0: iconst_0 ; 1: ireturn ; 2: iconst_m1 ; 3: ireturn
	code := []byte{0x03, 0xac, 0x02, 0xac}
	info := mi(code)
	info.ExceptionTable = []classfile.ExceptionRow{{StartPC: 0, EndPC: 2, HandlerPC: 2, CatchType: 0}}
	m, err := Parse(info, nil)
	require.NoError(t, err)
	require.Len(t, m.Exceptions, 1)
	require.EqualValues(t, 0, m.Exceptions[0].StartBlock)
	require.EqualValues(t, 1, m.Exceptions[0].EndBlock)
	require.EqualValues(t, 1, m.Exceptions[0].HandlerBlock)
}

func TestParse_branchOutOfBoundsIsVerifyError(t *testing.T) {
	code := []byte{0xa7, 0x7f, 0xff} // goto +32767, far past end of a 3-byte method
	_, err := Parse(mi(code), nil)
	require.Error(t, err)
	var ve *VerifyError
	require.ErrorAs(t, err, &ve)
}

func TestParse_branchIntoMiddleOfInstructionIsVerifyError(t *testing.T) {
	// 0: sipush <2 byte imm> ; 3: ireturn ; goto targeting PC 1, the
	// middle of the sipush operand.
	code := []byte{
		0x11, 0x00, 0x2a, // 0: sipush 42
		0xac,             // 3: ireturn
		0xa7, 0xff, 0xfd, // 4: goto -3 -> target PC 1, mid-instruction
	}
	_, err := Parse(mi(code), nil)
	require.Error(t, err)
}

func TestParse_instructionExtendsPastEndOfCodeIsError(t *testing.T) {
	code := []byte{0x11, 0x00} // sipush with truncated operand
	_, err := Parse(mi(code), nil)
	require.Error(t, err)
}

// tableswitch low=0 high=1 default->0 case0->24 case1->25, padded to a
// 4-byte boundary from the start of the method per JVMS §6.5.tableswitch,
// followed by iconst_0 (pc 24); ireturn (pc 25).
func TestParse_tableSwitch(t *testing.T) {
	code := []byte{
		0xaa,             // 0: tableswitch
		0, 0, 0,          // pad to 4-byte boundary
		0, 0, 0, 0, // default = 0
		0, 0, 0, 0, // low = 0
		0, 0, 0, 1, // high = 1
		0, 0, 0, 24, // case 0 -> pc 24
		0, 0, 0, 25, // case 1 -> pc 25
		0x03, // 24: iconst_0
		0xac, // 25: ireturn
	}
	m, err := Parse(mi(code), nil)
	require.NoError(t, err)
	require.Equal(t, ir.OpTableSwitch, m.Instructions[0].Op)
	st, ok := m.Instructions[0].Aux.(*ir.SwitchTable)
	require.True(t, ok)
	require.EqualValues(t, 0, st.Low)
	require.EqualValues(t, 1, st.High)
	require.Len(t, st.Targets, 2)
	for _, tgt := range st.Targets {
		require.Equal(t, ir.KindBlock, tgt.Kind)
	}
	require.Equal(t, ir.KindBlock, st.Default.Kind)
}

func TestParse_tableSwitchUpperLessThanLowerIsVerifyError(t *testing.T) {
	code := []byte{
		0xaa,
		0, 0, 0,
		0, 0, 0, 0, // default
		0, 0, 0, 1, // low = 1
		0, 0, 0, 0, // high = 0 < low
	}
	_, err := Parse(mi(code), nil)
	require.Error(t, err)
}

func TestParse_lookupSwitchUnsortedKeysIsVerifyError(t *testing.T) {
	code := []byte{
		0xab,
		0, 0, 0,
		0, 0, 0, 0, // default
		0, 0, 0, 2, // npairs = 2
		0, 0, 0, 5, 0, 0, 0, 0, // key 5 -> offset 0
		0, 0, 0, 3, 0, 0, 0, 0, // key 3 (not ascending)
	}
	_, err := Parse(mi(code), nil)
	require.Error(t, err)
}
