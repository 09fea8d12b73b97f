package compiler

import (
	"fmt"

	"github.com/cacao-jit/cacao/internal/ir"
)

// CompileAMD64 runs the amd64 code generator over m's basic blocks
// in program order, dispatching each instruction to the compiler
// interface method its opcode family owns, then finalizes and returns
// the assembled code, sealed data segment, and the patch/replacement
// side tables accumulated along the way. The root driver
// (cacao.Compiler.Compile) is the only intended caller; it owns
// turning the result into a published CodeInfo.
func CompileAMD64(m *ir.Method, synchronized, static bool) (code []byte, staticData codeStaticData, frameSlotSize int32, patches []PatchReference, replacements []ReplacementPoint, regs RegisterAllocation, err error) {
	c, err := newAMD64Compiler(m, synchronized, static)
	if err != nil {
		return nil, codeStaticData{}, 0, nil, nil, RegisterAllocation{}, err
	}
	if err := c.compilePreamble(); err != nil {
		return nil, codeStaticData{}, 0, nil, nil, RegisterAllocation{}, err
	}
	for _, b := range m.Blocks {
		if skip := c.compileLabel(b); skip {
			continue
		}
		for i := b.Start; i < b.End; i++ {
			in := &m.Instructions[i]
			if err := c.compileInstruction(in); err != nil {
				return nil, codeStaticData{}, 0, nil, nil, RegisterAllocation{}, fmt.Errorf("compiler: block at pc=%d instr=%d op=%v: %w", b.StartPC, i, in.Op, err)
			}
		}
	}
	code, staticData, _, err = c.compile()
	if err != nil {
		return nil, codeStaticData{}, 0, nil, nil, RegisterAllocation{}, err
	}
	return code, staticData, int32(c.frameSize), c.patches, c.replacements, c.registerAllocation(), nil
}

// compileInstruction dispatches a single IR instruction to the
// compiler-interface method its opcode family owns. Opcode families
// are grouped exactly as the `compiler` interface's doc comments group
// them.
func (c *amd64Compiler) compileInstruction(in *ir.Instruction) error {
	switch in.Op {
	case ir.OpNop:
		return c.compileNop()

	case ir.OpIConst, ir.OpLConst, ir.OpFConst, ir.OpDConst, ir.OpAConstNull:
		return c.compileConst(in)

	case ir.OpILoad, ir.OpLLoad, ir.OpFLoad, ir.OpDLoad, ir.OpALoad:
		return c.compileLocalGet(in)

	case ir.OpIStore, ir.OpLStore, ir.OpFStore, ir.OpDStore, ir.OpAStore:
		return c.compileLocalSet(in)

	case ir.OpIInc:
		return c.compileIncLocal(in)

	case ir.OpPop:
		return c.compileDropRange(&ir.InclusiveRange{Start: 0, End: 0})

	case ir.OpPop2:
		return c.compileDropRange(&ir.InclusiveRange{Start: 0, End: 1})

	case ir.OpDup, ir.OpDupX1, ir.OpDupX2, ir.OpDup2, ir.OpDup2X1, ir.OpDup2X2, ir.OpSwap:
		return c.compileStackShuffle(in)

	case ir.OpIAdd, ir.OpLAdd, ir.OpFAdd, ir.OpDAdd,
		ir.OpISub, ir.OpLSub, ir.OpFSub, ir.OpDSub,
		ir.OpIMul, ir.OpLMul, ir.OpFMul, ir.OpDMul,
		ir.OpIDiv, ir.OpLDiv, ir.OpFDiv, ir.OpDDiv,
		ir.OpIRem, ir.OpLRem, ir.OpFRem, ir.OpDRem,
		ir.OpIShl, ir.OpLShl, ir.OpIShr, ir.OpLShr, ir.OpIUshr, ir.OpLUshr,
		ir.OpIAnd, ir.OpLAnd, ir.OpIOr, ir.OpLOr, ir.OpIXor, ir.OpLXor,
		ir.OpIAddConst, ir.OpIMulShiftConst, ir.OpIDivShiftConst, ir.OpIRemMaskConst:
		return c.compileBinOp(in)

	case ir.OpINeg, ir.OpLNeg, ir.OpFNeg, ir.OpDNeg:
		return c.compileUnaryOp(in)

	case ir.OpI2L, ir.OpI2F, ir.OpI2D, ir.OpL2I, ir.OpL2F, ir.OpL2D,
		ir.OpF2I, ir.OpF2L, ir.OpF2D, ir.OpD2I, ir.OpD2L, ir.OpD2F,
		ir.OpI2B, ir.OpI2C, ir.OpI2S:
		return c.compileConvert(in)

	case ir.OpLCmp, ir.OpFCmpL, ir.OpFCmpG, ir.OpDCmpL, ir.OpDCmpG:
		return c.compileCompare(in)

	case ir.OpIfEq, ir.OpIfNe, ir.OpIfLt, ir.OpIfGe, ir.OpIfGt, ir.OpIfLe,
		ir.OpIfICmpEq, ir.OpIfICmpNe, ir.OpIfICmpLt, ir.OpIfICmpGe, ir.OpIfICmpGt, ir.OpIfICmpLe,
		ir.OpIfACmpEq, ir.OpIfACmpNe, ir.OpIfNull, ir.OpIfNonNull,
		ir.OpIfEqZ, ir.OpIfNeZ, ir.OpLCmpIfEqZ:
		return c.compileBranch(in)

	case ir.OpGoto:
		return c.compileGoto(in)

	case ir.OpTableSwitch, ir.OpLookupSwitch:
		return c.compileSwitch(in)

	case ir.OpIReturn, ir.OpLReturn, ir.OpFReturn, ir.OpDReturn, ir.OpAReturn, ir.OpReturn:
		return c.compileReturn(in)

	case ir.OpGetStatic, ir.OpPutStatic, ir.OpGetField, ir.OpPutField:
		return c.compileFieldAccess(in)

	case ir.OpIALoad, ir.OpLALoad, ir.OpFALoad, ir.OpDALoad, ir.OpAALoad, ir.OpBALoad, ir.OpCALoad, ir.OpSALoad:
		return c.compileArrayLoad(in)

	case ir.OpIAStore, ir.OpLAStore, ir.OpFAStore, ir.OpDAStore, ir.OpAAStore, ir.OpBAStore, ir.OpCAStore, ir.OpSAStore:
		return c.compileArrayStore(in)

	case ir.OpArrayLength:
		return c.compileArrayLength(in)

	case ir.OpNew:
		return c.compileNew(in)

	case ir.OpNewArray, ir.OpANewArray, ir.OpMultiANewArray:
		return c.compileNewArray(in)

	case ir.OpInvokeVirtual, ir.OpInvokeSpecial, ir.OpInvokeStatic, ir.OpInvokeInterface:
		return c.compileInvoke(in)

	case ir.OpCheckCast:
		return c.compileCheckCast(in)

	case ir.OpInstanceOf:
		return c.compileInstanceOf(in)

	case ir.OpMonitorEnter, ir.OpMonitorExit:
		return c.compileMonitor(in)

	case ir.OpAThrow:
		return c.compileAThrow(in)

	default:
		return fmt.Errorf("compiler: unhandled opcode %v", in.Op)
	}
}
