package analyzer

import (
	"fmt"
	"math/bits"

	"github.com/cacao-jit/cacao/internal/classfile"
	"github.com/cacao-jit/cacao/internal/ir"
)

// analyzeBlock simulates the operand stack through one block's
// instructions, assigning ir.Slot identities to each instruction's
// inputs/outputs and applying the per-instruction handling: popping
// declared inputs, naming outputs, assigning storage kinds (local-variable
// loads get a VarLocal slot, every other result a VarTemporary one), and
// rewriting dup/swap-family instructions into lowered slot references.
// It returns the block's out-frame for the fixpoint driver to merge
// into successors.
func (a *Analyzer) analyzeBlock(bi int32, b *ir.BasicBlock) (*frame, error) {
	f := a.inFrames[bi].clone()
	instrs := a.m.Instructions

	pop := func() (ir.ValueType, int32, error) {
		if len(f.stack) == 0 {
			return 0, 0, &VerifyError{Msg: fmt.Sprintf("stack underflow in block %d", bi)}
		}
		n := len(f.stack) - 1
		t, s := f.stack[n], f.slots[n]
		f.stack = f.stack[:n]
		f.slots = f.slots[:n]
		return t, s, nil
	}
	push := func(t ir.ValueType, kind ir.VarKind, idx int32) int32 {
		s := a.newSlot(t, kind, idx)
		f.stack = append(f.stack, t)
		f.slots = append(f.slots, s)
		return s
	}
	pushExisting := func(t ir.ValueType, slot int32) {
		f.stack = append(f.stack, t)
		f.slots = append(f.slots, slot)
	}
	localSlot := func(t ir.ValueType, localIdx int32) int32 {
		return a.newSlot(t, ir.VarLocal, localIdx)
	}
	asVar := func(o *ir.Operand, t ir.ValueType, slot int32) {
		*o = ir.Operand{Kind: ir.KindVar, Index: slot}
		_ = t
	}

	for i := b.Start; i < b.End; i++ {
		in := &instrs[i]
		switch in.Op {

		// --- constants ---
		case ir.OpIConst:
			s := push(ir.TypeInt, ir.VarTemporary, int32(len(f.stack)))
			asVar(&in.Dst, ir.TypeInt, s)
		case ir.OpLConst:
			s := push(ir.TypeLong, ir.VarTemporary, int32(len(f.stack)))
			asVar(&in.Dst, ir.TypeLong, s)
		case ir.OpFConst:
			s := push(ir.TypeFloat, ir.VarTemporary, int32(len(f.stack)))
			asVar(&in.Dst, ir.TypeFloat, s)
		case ir.OpDConst:
			s := push(ir.TypeDouble, ir.VarTemporary, int32(len(f.stack)))
			asVar(&in.Dst, ir.TypeDouble, s)
		case ir.OpAConstNull:
			s := push(ir.TypeAddress, ir.VarTemporary, int32(len(f.stack)))
			asVar(&in.Dst, ir.TypeAddress, s)

		// --- locals: load ---
		case ir.OpILoad, ir.OpLLoad, ir.OpFLoad, ir.OpDLoad, ir.OpALoad:
			t := loadType(in.Op)
			localIdx := in.S1.Index
			s := localSlot(t, localIdx)
			pushExisting(t, s)
			in.Dst = ir.Operand{Kind: ir.KindVar, Index: s}

		// --- locals: store ---
		case ir.OpIStore, ir.OpLStore, ir.OpFStore, ir.OpDStore, ir.OpAStore:
			_, srcSlot, err := pop()
			if err != nil {
				return nil, err
			}
			localIdx := in.S1.Index
			asVar(&in.Dst, storeType(in.Op), localIdx)
			in.S1 = ir.Operand{Kind: ir.KindVar, Index: srcSlot}

		// --- stack shuffles: lowered to explicit slot copies ---
		case ir.OpPop:
			if _, _, err := pop(); err != nil {
				return nil, err
			}
		case ir.OpPop2:
			t, _, err := pop()
			if err != nil {
				return nil, err
			}
			if !t.Category2() {
				if _, _, err := pop(); err != nil {
					return nil, err
				}
			}
		case ir.OpDup, ir.OpDupX1, ir.OpDupX2, ir.OpDup2, ir.OpDup2X1, ir.OpDup2X2, ir.OpSwap:
			if err := a.lowerStackShuffle(in, f); err != nil {
				return nil, err
			}

		// --- arithmetic: binary same-type ops ---
		case ir.OpIAdd, ir.OpISub:
			if err := a.foldAddSub(in, instrs, b, i, &f, pop, push); err != nil {
				return nil, err
			}
		case ir.OpIMul, ir.OpIDiv, ir.OpIRem:
			if err := a.foldMulDivRem(in, instrs, b, i, &f, pop, push); err != nil {
				return nil, err
			}
		case ir.OpIShl, ir.OpIShr, ir.OpIUshr, ir.OpIAnd, ir.OpIOr, ir.OpIXor:
			if err := a.binOp(in, &f, pop, push, ir.TypeInt, ir.TypeInt); err != nil {
				return nil, err
			}
		case ir.OpLShl, ir.OpLShr, ir.OpLUshr:
			// shift amount is an int, value is a long
			_, shAmt, err := pop()
			if err != nil {
				return nil, err
			}
			_, val, err := pop()
			if err != nil {
				return nil, err
			}
			dst := push(ir.TypeLong, ir.VarTemporary, int32(len(f.stack)))
			in.S1, in.S2 = ir.Operand{Kind: ir.KindVar, Index: val}, ir.Operand{Kind: ir.KindVar, Index: shAmt}
			in.Dst = ir.Operand{Kind: ir.KindVar, Index: dst}
		case ir.OpLAdd, ir.OpLSub, ir.OpLMul, ir.OpLDiv, ir.OpLRem, ir.OpLAnd, ir.OpLOr, ir.OpLXor:
			if err := a.binOp(in, &f, pop, push, ir.TypeLong, ir.TypeLong); err != nil {
				return nil, err
			}
		case ir.OpFAdd, ir.OpFSub, ir.OpFMul, ir.OpFDiv, ir.OpFRem:
			if err := a.binOp(in, &f, pop, push, ir.TypeFloat, ir.TypeFloat); err != nil {
				return nil, err
			}
		case ir.OpDAdd, ir.OpDSub, ir.OpDMul, ir.OpDDiv, ir.OpDRem:
			if err := a.binOp(in, &f, pop, push, ir.TypeDouble, ir.TypeDouble); err != nil {
				return nil, err
			}
		case ir.OpINeg, ir.OpLNeg, ir.OpFNeg, ir.OpDNeg:
			t, src, err := pop()
			if err != nil {
				return nil, err
			}
			dst := push(t, ir.VarTemporary, int32(len(f.stack)))
			in.S1 = ir.Operand{Kind: ir.KindVar, Index: src}
			in.Dst = ir.Operand{Kind: ir.KindVar, Index: dst}

		case ir.OpIInc: // reads and writes the same local, no stack effect
			localIdx := in.S1.Index
			s := localSlot(ir.TypeInt, localIdx)
			in.S1 = ir.Operand{Kind: ir.KindVar, Index: s}
			in.Dst = ir.Operand{Kind: ir.KindVar, Index: s}

		// --- conversions ---
		case ir.OpI2L, ir.OpI2F, ir.OpI2D, ir.OpL2I, ir.OpL2F, ir.OpL2D,
			ir.OpF2I, ir.OpF2L, ir.OpF2D, ir.OpD2I, ir.OpD2L, ir.OpD2F,
			ir.OpI2B, ir.OpI2C, ir.OpI2S:
			_, src, err := pop()
			if err != nil {
				return nil, err
			}
			dst := push(convResultType(in.Op), ir.VarTemporary, int32(len(f.stack)))
			in.S1 = ir.Operand{Kind: ir.KindVar, Index: src}
			in.Dst = ir.Operand{Kind: ir.KindVar, Index: dst}

		// --- comparisons producing a category-1 int ---
		case ir.OpLCmp, ir.OpFCmpL, ir.OpFCmpG, ir.OpDCmpL, ir.OpDCmpG:
			_, b2, err := pop()
			if err != nil {
				return nil, err
			}
			_, a2, err := pop()
			if err != nil {
				return nil, err
			}
			dst := push(ir.TypeInt, ir.VarTemporary, int32(len(f.stack)))
			in.S1, in.S2 = ir.Operand{Kind: ir.KindVar, Index: a2}, ir.Operand{Kind: ir.KindVar, Index: b2}
			in.Dst = ir.Operand{Kind: ir.KindVar, Index: dst}

		// --- branches ---
		case ir.OpIfEq, ir.OpIfNe, ir.OpIfLt, ir.OpIfGe, ir.OpIfGt, ir.OpIfLe, ir.OpIfNull, ir.OpIfNonNull:
			_, s, err := pop()
			if err != nil {
				return nil, err
			}
			if in.Op == ir.OpIfEq {
				if pj := lastLive(instrs, b, i); pj >= 0 && instrs[pj].Op == ir.OpLCmp && instrs[pj].Dst.Index == s {
					in.S1, in.S2 = instrs[pj].S1, instrs[pj].S2
					instrs[pj].Op = ir.OpNop
					in.Op = ir.OpLCmpIfEqZ
					continue
				}
			}
			in.S1 = ir.Operand{Kind: ir.KindVar, Index: s}
		case ir.OpIfICmpEq, ir.OpIfICmpNe, ir.OpIfICmpLt, ir.OpIfICmpGe, ir.OpIfICmpGt, ir.OpIfICmpLe,
			ir.OpIfACmpEq, ir.OpIfACmpNe:
			_, b2, err := pop()
			if err != nil {
				return nil, err
			}
			_, a2, err := pop()
			if err != nil {
				return nil, err
			}
			if in.Op == ir.OpIfICmpEq || in.Op == ir.OpIfICmpNe {
				if pj := lastLive(instrs, b, i); pj >= 0 && instrs[pj].Op == ir.OpIConst && instrs[pj].S1.Imm == 0 && instrs[pj].Dst.Index == b2 {
					if in.Op == ir.OpIfICmpEq {
						in.Op = ir.OpIfEqZ
					} else {
						in.Op = ir.OpIfNeZ
					}
					in.S1 = ir.Operand{Kind: ir.KindVar, Index: a2}
					in.S2 = ir.Operand{}
					instrs[pj].Op = ir.OpNop
					continue
				}
			}
			in.S1, in.S2 = ir.Operand{Kind: ir.KindVar, Index: a2}, ir.Operand{Kind: ir.KindVar, Index: b2}
		case ir.OpGoto:
			// no stack effect

		case ir.OpTableSwitch, ir.OpLookupSwitch:
			_, s, err := pop()
			if err != nil {
				return nil, err
			}
			in.S1 = ir.Operand{Kind: ir.KindVar, Index: s}

		// --- returns ---
		case ir.OpIReturn, ir.OpLReturn, ir.OpFReturn, ir.OpDReturn, ir.OpAReturn:
			_, s, err := pop()
			if err != nil {
				return nil, err
			}
			in.S1 = ir.Operand{Kind: ir.KindVar, Index: s}
		case ir.OpReturn:
			// no stack effect

		// --- fields ---
		case ir.OpGetStatic:
			dst := push(ir.TypeAddress, ir.VarTemporary, int32(len(f.stack)))
			in.Dst = ir.Operand{Kind: ir.KindVar, Index: dst}
		case ir.OpPutStatic:
			_, s, err := pop()
			if err != nil {
				return nil, err
			}
			in.S2 = ir.Operand{Kind: ir.KindVar, Index: s}
		case ir.OpGetField:
			_, obj, err := pop()
			if err != nil {
				return nil, err
			}
			dst := push(ir.TypeAddress, ir.VarTemporary, int32(len(f.stack)))
			in.S2 = ir.Operand{Kind: ir.KindVar, Index: obj}
			in.Dst = ir.Operand{Kind: ir.KindVar, Index: dst}
		case ir.OpPutField:
			_, val, err := pop()
			if err != nil {
				return nil, err
			}
			_, obj, err := pop()
			if err != nil {
				return nil, err
			}
			in.S2, in.S3 = ir.Operand{Kind: ir.KindVar, Index: obj}, ir.Operand{Kind: ir.KindVar, Index: val}

		// --- arrays ---
		case ir.OpArrayLength:
			_, arr, err := pop()
			if err != nil {
				return nil, err
			}
			dst := push(ir.TypeInt, ir.VarTemporary, int32(len(f.stack)))
			in.S1 = ir.Operand{Kind: ir.KindVar, Index: arr}
			in.Dst = ir.Operand{Kind: ir.KindVar, Index: dst}
		case ir.OpNewArray, ir.OpANewArray:
			_, cnt, err := pop()
			if err != nil {
				return nil, err
			}
			dst := push(ir.TypeAddress, ir.VarTemporary, int32(len(f.stack)))
			in.S2 = ir.Operand{Kind: ir.KindVar, Index: cnt}
			in.Dst = ir.Operand{Kind: ir.KindVar, Index: dst}
		case ir.OpMultiANewArray:
			dims := int(in.S2.Imm)
			dimSlots := make([]int32, dims)
			for d := dims - 1; d >= 0; d-- {
				_, s, err := pop()
				if err != nil {
					return nil, err
				}
				dimSlots[d] = s
			}
			in.Aux = dimSlots
			dst := push(ir.TypeAddress, ir.VarTemporary, int32(len(f.stack)))
			in.Dst = ir.Operand{Kind: ir.KindVar, Index: dst}
		case ir.OpIALoad, ir.OpLALoad, ir.OpFALoad, ir.OpDALoad, ir.OpAALoad, ir.OpBALoad, ir.OpCALoad, ir.OpSALoad:
			_, idx, err := pop()
			if err != nil {
				return nil, err
			}
			_, arr, err := pop()
			if err != nil {
				return nil, err
			}
			dst := push(arrayLoadType(in.Op), ir.VarTemporary, int32(len(f.stack)))
			in.S1, in.S2 = ir.Operand{Kind: ir.KindVar, Index: arr}, ir.Operand{Kind: ir.KindVar, Index: idx}
			in.Dst = ir.Operand{Kind: ir.KindVar, Index: dst}
		case ir.OpIAStore, ir.OpLAStore, ir.OpFAStore, ir.OpDAStore, ir.OpAAStore, ir.OpBAStore, ir.OpCAStore, ir.OpSAStore:
			_, val, err := pop()
			if err != nil {
				return nil, err
			}
			_, idx, err := pop()
			if err != nil {
				return nil, err
			}
			_, arr, err := pop()
			if err != nil {
				return nil, err
			}
			in.S1, in.S2, in.S3 = ir.Operand{Kind: ir.KindVar, Index: arr}, ir.Operand{Kind: ir.KindVar, Index: idx}, ir.Operand{Kind: ir.KindVar, Index: val}

		// --- objects, calls, checks, sync ---
		case ir.OpNew:
			dst := push(ir.TypeAddress, ir.VarTemporary, int32(len(f.stack)))
			in.Dst = ir.Operand{Kind: ir.KindVar, Index: dst}
		case ir.OpCheckCast, ir.OpInstanceOf:
			_, obj, err := pop()
			if err != nil {
				return nil, err
			}
			dst := push(ir.TypeAddress, ir.VarTemporary, int32(len(f.stack)))
			in.S2 = ir.Operand{Kind: ir.KindVar, Index: obj}
			in.Dst = ir.Operand{Kind: ir.KindVar, Index: dst}
		case ir.OpMonitorEnter, ir.OpMonitorExit:
			_, obj, err := pop()
			if err != nil {
				return nil, err
			}
			in.S1 = ir.Operand{Kind: ir.KindVar, Index: obj}
		case ir.OpAThrow:
			_, exc, err := pop()
			if err != nil {
				return nil, err
			}
			in.S1 = ir.Operand{Kind: ir.KindVar, Index: exc}
		case ir.OpInvokeVirtual, ir.OpInvokeSpecial, ir.OpInvokeInterface, ir.OpInvokeStatic:
			if err := a.invoke(in, &f, pop, push); err != nil {
				return nil, err
			}

		case ir.OpNop:
			// no-op, possibly left behind by constant-folding elsewhere

		default:
			return nil, &VerifyError{Msg: fmt.Sprintf("analyzer: unhandled opcode %d in block %d", in.Op, bi)}
		}
	}

	b.OutDepth = int32(len(f.stack))
	b.OutStack = append([]int32(nil), f.slots...)
	return f, nil
}

func (a *Analyzer) binOp(in *ir.Instruction, f **frame, pop func() (ir.ValueType, int32, error), push func(ir.ValueType, ir.VarKind, int32) int32, lt, rt ir.ValueType) error {
	_, rs, err := pop()
	if err != nil {
		return err
	}
	_, ls, err := pop()
	if err != nil {
		return err
	}
	dst := push(lt, ir.VarTemporary, int32(len((*f).stack)))
	in.S1, in.S2 = ir.Operand{Kind: ir.KindVar, Index: ls}, ir.Operand{Kind: ir.KindVar, Index: rs}
	in.Dst = ir.Operand{Kind: ir.KindVar, Index: dst}
	return nil
}

// invoke pops the argument slots (the parameter count is taken from
// the resolved method's descriptor when known, falling back to the
// single-receiver/no-arg shape when unresolved — unresolved call sites
// defer real argument wiring to the patch mechanism) and pushes a
// result slot unless the callee is void.
func (a *Analyzer) invoke(in *ir.Instruction, f **frame, pop func() (ir.ValueType, int32, error), push func(ir.ValueType, ir.VarKind, int32) int32) error {
	desc, _ := in.Aux.(*classfile.Descriptor)
	var argSlots []int32
	if desc != nil {
		argSlots = make([]int32, len(desc.ParamTypes))
		for i := len(desc.ParamTypes) - 1; i >= 0; i-- {
			_, s, err := pop()
			if err != nil {
				return err
			}
			argSlots[i] = s
		}
	}
	if in.Op != ir.OpInvokeStatic {
		_, recv, err := pop()
		if err != nil {
			return err
		}
		in.S2 = ir.Operand{Kind: ir.KindVar, Index: recv}
	}
	a.precolorArguments(in, argSlots)
	in.Aux = argSlots

	if desc == nil || desc.ReturnType == classfile.TVoid {
		return nil
	}
	dst := push(basicType(desc.ReturnType), ir.VarTemporary, int32(len((*f).stack)))
	in.Dst = ir.Operand{Kind: ir.KindVar, Index: dst}
	return nil
}

// Argument register budget for precoloring, modeled on the SysV-AMD64
// integer/SSE argument-class split.
const (
	maxIntArgRegs   = 6
	maxFloatArgRegs = 8
)

// precolorArguments assigns each outgoing argument slot an ABI location
// (an argument-register ordinal, or a spill offset once registers of
// its class run out) and marks the call instruction FlagPreAllocated.
// This is analyzer-side metadata; the AMD64 code generator's own
// register allocator does not consume it yet.
func (a *Analyzer) precolorArguments(in *ir.Instruction, argSlots []int32) {
	if len(argSlots) == 0 {
		return
	}
	in.Flags |= ir.FlagPreAllocated
	var nextInt, nextFloat, spill int32
	for _, s := range argSlots {
		slot := &a.m.Slots[s]
		if slot.Type == ir.TypeFloat || slot.Type == ir.TypeDouble {
			if nextFloat < maxFloatArgRegs {
				slot.Register = nextFloat
				nextFloat++
				continue
			}
		} else if nextInt < maxIntArgRegs {
			slot.Register = nextInt
			nextInt++
			continue
		}
		slot.Register = -1
		slot.Flags |= ir.SlotInMemory
		slot.SpillOffset = spill * 8
		spill++
	}
}

func basicType(t classfile.BasicType) ir.ValueType {
	switch t {
	case classfile.TLong:
		return ir.TypeLong
	case classfile.TFloat:
		return ir.TypeFloat
	case classfile.TDouble:
		return ir.TypeDouble
	case classfile.TAddress:
		return ir.TypeAddress
	default:
		return ir.TypeInt
	}
}

// lastLive returns the index of the most recent non-nop instruction
// before i within block b, or -1 if there isn't one. Constant-folding
// only fires when the constant push is this immediate predecessor, so
// it can never have been observed by an intervening dup/store/load.
func lastLive(instrs []ir.Instruction, b *ir.BasicBlock, i int32) int32 {
	for j := i - 1; j >= b.Start; j-- {
		if instrs[j].Op != ir.OpNop {
			return j
		}
	}
	return -1
}

func powerOfTwoExponent(v int64) (uint, bool) {
	if v <= 1 || v&(v-1) != 0 {
		return 0, false
	}
	return uint(bits.TrailingZeros64(uint64(v))), true
}

// foldAddSub collapses "push const; iadd/isub" into the with-constant
// form when the constant push is the immediately preceding live
// instruction, NOPing it. Falls back to the plain binop form otherwise.
func (a *Analyzer) foldAddSub(in *ir.Instruction, instrs []ir.Instruction, b *ir.BasicBlock, i int32, f **frame, pop func() (ir.ValueType, int32, error), push func(ir.ValueType, ir.VarKind, int32) int32) error {
	_, rs, err := pop()
	if err != nil {
		return err
	}
	_, ls, err := pop()
	if err != nil {
		return err
	}
	if pj := lastLive(instrs, b, i); pj >= 0 && instrs[pj].Op == ir.OpIConst && instrs[pj].Dst.Index == rs {
		c := instrs[pj].S1.Imm
		if in.Op == ir.OpISub {
			c = -c
		}
		instrs[pj].Op = ir.OpNop
		dst := push(ir.TypeInt, ir.VarTemporary, int32(len((*f).stack)))
		in.Op = ir.OpIAddConst
		in.S1 = ir.Operand{Kind: ir.KindVar, Index: ls}
		in.S2 = ir.Operand{Kind: ir.KindImm, Imm: c}
		in.Dst = ir.Operand{Kind: ir.KindVar, Index: dst}
		return nil
	}
	dst := push(ir.TypeInt, ir.VarTemporary, int32(len((*f).stack)))
	in.S1, in.S2 = ir.Operand{Kind: ir.KindVar, Index: ls}, ir.Operand{Kind: ir.KindVar, Index: rs}
	in.Dst = ir.Operand{Kind: ir.KindVar, Index: dst}
	return nil
}

// foldMulDivRem collapses "push const; imul/idiv/irem" into a
// shift/mask with-constant form when the constant is a power of two and
// is the immediately preceding live instruction. Falls back to the
// plain binop form otherwise (including for non-power-of-two constants).
func (a *Analyzer) foldMulDivRem(in *ir.Instruction, instrs []ir.Instruction, b *ir.BasicBlock, i int32, f **frame, pop func() (ir.ValueType, int32, error), push func(ir.ValueType, ir.VarKind, int32) int32) error {
	_, rs, err := pop()
	if err != nil {
		return err
	}
	_, ls, err := pop()
	if err != nil {
		return err
	}
	if pj := lastLive(instrs, b, i); pj >= 0 && instrs[pj].Op == ir.OpIConst && instrs[pj].Dst.Index == rs {
		if exp, ok := powerOfTwoExponent(instrs[pj].S1.Imm); ok {
			instrs[pj].Op = ir.OpNop
			dst := push(ir.TypeInt, ir.VarTemporary, int32(len((*f).stack)))
			in.S1 = ir.Operand{Kind: ir.KindVar, Index: ls}
			in.S2 = ir.Operand{Kind: ir.KindImm, Imm: int64(exp)}
			in.Dst = ir.Operand{Kind: ir.KindVar, Index: dst}
			switch in.Op {
			case ir.OpIMul:
				in.Op = ir.OpIMulShiftConst
			case ir.OpIDiv:
				in.Op = ir.OpIDivShiftConst
			case ir.OpIRem:
				in.Op = ir.OpIRemMaskConst
			}
			return nil
		}
	}
	dst := push(ir.TypeInt, ir.VarTemporary, int32(len((*f).stack)))
	in.S1, in.S2 = ir.Operand{Kind: ir.KindVar, Index: ls}, ir.Operand{Kind: ir.KindVar, Index: rs}
	in.Dst = ir.Operand{Kind: ir.KindVar, Index: dst}
	return nil
}

// lowerStackShuffle implements the dup/swap lowering: it rewrites
// DUP/DUP_X1/DUP_X2/DUP2/DUP2_X1/DUP2_X2/SWAP into explicit
// source/destination slot copies on the simulated stack, rejecting any
// form that would split a category-2 operand.
func (a *Analyzer) lowerStackShuffle(in *ir.Instruction, f *frame) error {
	n := len(f.stack)
	get := func(depthFromTop int) (ir.ValueType, int32) {
		return f.stack[n-1-depthFromTop], f.slots[n-1-depthFromTop]
	}
	pushTop := func(t ir.ValueType, s int32) {
		f.stack = append(f.stack, t)
		f.slots = append(f.slots, s)
	}
	insertAt := func(depthFromTop int, t ir.ValueType, s int32) {
		pos := len(f.stack) - depthFromTop
		f.stack = append(f.stack, 0)
		f.slots = append(f.slots, 0)
		copy(f.stack[pos+1:], f.stack[pos:len(f.stack)-1])
		copy(f.slots[pos+1:], f.slots[pos:len(f.slots)-1])
		f.stack[pos], f.slots[pos] = t, s
	}

	switch in.Op {
	case ir.OpDup:
		if n < 1 {
			return &VerifyError{Msg: "stack underflow in dup"}
		}
		t, s := get(0)
		if t.Category2() {
			return &VerifyError{Msg: "dup of category-2 value requires dup2"}
		}
		pushTop(t, s)
	case ir.OpDupX1:
		if n < 2 {
			return &VerifyError{Msg: "stack underflow in dup_x1"}
		}
		t0, s0 := get(0)
		t1, _ := get(1)
		if t0.Category2() || t1.Category2() {
			return &VerifyError{Msg: "dup_x1 cannot split a category-2 value"}
		}
		insertAt(2, t0, s0)
	case ir.OpDupX2:
		if n < 3 {
			return &VerifyError{Msg: "stack underflow in dup_x2"}
		}
		t0, s0 := get(0)
		if t0.Category2() {
			return &VerifyError{Msg: "dup_x2 of a category-2 top value is malformed"}
		}
		insertAt(3, t0, s0)
	case ir.OpDup2:
		if n < 2 {
			return &VerifyError{Msg: "stack underflow in dup2"}
		}
		t0, s0 := get(0)
		t1, s1 := get(1)
		if t0.Category2() {
			pushTop(t0, s0)
		} else {
			if t1.Category2() {
				return &VerifyError{Msg: "dup2 would split a category-2 value"}
			}
			pushTop(t1, s1)
			pushTop(t0, s0)
		}
	case ir.OpDup2X1:
		if n < 3 {
			return &VerifyError{Msg: "stack underflow in dup2_x1"}
		}
		t0, s0 := get(0)
		if t0.Category2() {
			insertAt(2, t0, s0)
		} else {
			t1, s1 := get(1)
			insertAt(3, t0, s0)
			insertAt(4, t1, s1)
		}
	case ir.OpDup2X2:
		if n < 4 {
			return &VerifyError{Msg: "stack underflow in dup2_x2"}
		}
		t0, s0 := get(0)
		if t0.Category2() {
			insertAt(2, t0, s0)
		} else {
			t1, s1 := get(1)
			insertAt(4, t0, s0)
			insertAt(5, t1, s1)
		}
	case ir.OpSwap:
		if n < 2 {
			return &VerifyError{Msg: "stack underflow in swap"}
		}
		t0, _ := get(0)
		t1, _ := get(1)
		if t0.Category2() || t1.Category2() {
			return &VerifyError{Msg: "swap cannot split a category-2 value"}
		}
		f.stack[n-1], f.stack[n-2] = f.stack[n-2], f.stack[n-1]
		f.slots[n-1], f.slots[n-2] = f.slots[n-2], f.slots[n-1]
	}
	return nil
}

func loadType(op ir.Opcode) ir.ValueType {
	switch op {
	case ir.OpILoad:
		return ir.TypeInt
	case ir.OpLLoad:
		return ir.TypeLong
	case ir.OpFLoad:
		return ir.TypeFloat
	case ir.OpDLoad:
		return ir.TypeDouble
	default:
		return ir.TypeAddress
	}
}

func storeType(op ir.Opcode) ir.ValueType {
	switch op {
	case ir.OpIStore:
		return ir.TypeInt
	case ir.OpLStore:
		return ir.TypeLong
	case ir.OpFStore:
		return ir.TypeFloat
	case ir.OpDStore:
		return ir.TypeDouble
	default:
		return ir.TypeAddress
	}
}

func convResultType(op ir.Opcode) ir.ValueType {
	switch op {
	case ir.OpI2L, ir.OpF2L, ir.OpD2L:
		return ir.TypeLong
	case ir.OpI2F, ir.OpL2F, ir.OpD2F:
		return ir.TypeFloat
	case ir.OpI2D, ir.OpL2D, ir.OpF2D:
		return ir.TypeDouble
	default:
		return ir.TypeInt
	}
}

func arrayLoadType(op ir.Opcode) ir.ValueType {
	switch op {
	case ir.OpLALoad:
		return ir.TypeLong
	case ir.OpFALoad:
		return ir.TypeFloat
	case ir.OpDALoad:
		return ir.TypeDouble
	case ir.OpAALoad:
		return ir.TypeAddress
	default:
		return ir.TypeInt
	}
}
