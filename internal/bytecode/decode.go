package bytecode

import (
	"fmt"

	"github.com/cacao-jit/cacao/internal/ir"
)

// decodeOne decodes the single instruction starting at d.pc, advancing
// d.pc past it: it sets the opcode, immediate payload and branch
// targets, marks block-start bits at branch/switch targets and
// conditional fall-through PCs, and resolves (or marks unresolved)
// constant-pool references.
func (d *decoder) decodeOne() (ir.Instruction, error) {
	startPC := d.pc
	op, err := d.u8()
	if err != nil {
		return ir.Instruction{}, err
	}

	in := ir.Instruction{Line: d.line}

	simple := func(o ir.Opcode) (ir.Instruction, error) {
		in.Op = o
		return in, nil
	}
	withImm := func(o ir.Opcode, imm int64) (ir.Instruction, error) {
		in.Op = o
		in.S1 = ir.Operand{Kind: ir.KindImm, Imm: imm}
		return in, nil
	}
	withVar := func(o ir.Opcode, idx int32) (ir.Instruction, error) {
		in.Op = o
		in.S1 = ir.Operand{Kind: ir.KindVar, Index: idx}
		return in, nil
	}
	// branch marks the target PC and the fall-through PC (the
	// instruction right after this one) as block starts: both a
	// conditional's fall-through and the instruction following any
	// block-ending opcode are block starts.
	branch := func(o ir.Opcode, targetPC int32) (ir.Instruction, error) {
		in.Op = o
		in.Dst = ir.Operand{Kind: ir.KindImm, Imm: int64(targetPC)}
		d.blockStarts[targetPC] = true
		markFallthrough(d, d.pc)
		return in, nil
	}

	switch op {
	case bcNop:
		return simple(ir.OpNop)
	case bcAConstNull:
		return simple(ir.OpAConstNull)
	case bcIConstM1, bcIConst0, bcIConst0 + 1, bcIConst0 + 2, bcIConst0 + 3, bcIConst0 + 4, bcIConst5:
		return withImm(ir.OpIConst, int64(int32(op)-int32(bcIConst0)))
	case bcLConst0, bcLConst1:
		return withImm(ir.OpLConst, int64(op-bcLConst0))
	case bcFConst0, bcFConst0 + 1, bcFConst2:
		return withImm(ir.OpFConst, int64(op-bcFConst0))
	case bcDConst0, bcDConst1:
		return withImm(ir.OpDConst, int64(op-bcDConst0))
	case bcBipush:
		v, err := d.u8()
		if err != nil {
			return in, err
		}
		return withImm(ir.OpIConst, int64(int8(v)))
	case bcSipush:
		v, err := d.u16()
		if err != nil {
			return in, err
		}
		return withImm(ir.OpIConst, int64(int16(v)))
	case bcLdc:
		idx, err := d.u8()
		if err != nil {
			return in, err
		}
		return d.decodeLdc(uint16(idx))
	case bcLdcW, bcLdc2W:
		idx, err := d.u16()
		if err != nil {
			return in, err
		}
		return d.decodeLdc(idx)

	case bcILoad, bcLLoad, bcFLoad, bcDLoad, bcALoad:
		idx, err := d.u8()
		if err != nil {
			return in, err
		}
		return withVar(loadOpcode(op), int32(idx))
	case bcILoad0, bcILoad0 + 1, bcILoad0 + 2, bcILoad3:
		return withVar(ir.OpILoad, int32(op-bcILoad0))
	case bcLLoad0, bcLLoad0 + 1, bcLLoad0 + 2, bcLLoad3:
		return withVar(ir.OpLLoad, int32(op-bcLLoad0))
	case bcFLoad0, bcFLoad0 + 1, bcFLoad0 + 2, bcFLoad3:
		return withVar(ir.OpFLoad, int32(op-bcFLoad0))
	case bcDLoad0, bcDLoad0 + 1, bcDLoad0 + 2, bcDLoad3:
		return withVar(ir.OpDLoad, int32(op-bcDLoad0))
	case bcALoad0, bcALoad0 + 1, bcALoad0 + 2, bcALoad3:
		return withVar(ir.OpALoad, int32(op-bcALoad0))

	case bcIStore, bcLStore, bcFStore, bcDStore, bcAStore:
		idx, err := d.u8()
		if err != nil {
			return in, err
		}
		return withVar(storeOpcode(op), int32(idx))
	case bcIStore0, bcIStore0 + 1, bcIStore0 + 2, bcIStore3:
		return withVar(ir.OpIStore, int32(op-bcIStore0))
	case bcLStore0, bcLStore0 + 1, bcLStore0 + 2, bcLStore3:
		return withVar(ir.OpLStore, int32(op-bcLStore0))
	case bcFStore0, bcFStore0 + 1, bcFStore0 + 2, bcFStore3:
		return withVar(ir.OpFStore, int32(op-bcFStore0))
	case bcDStore0, bcDStore0 + 1, bcDStore0 + 2, bcDStore3:
		return withVar(ir.OpDStore, int32(op-bcDStore0))
	case bcAStore0, bcAStore0 + 1, bcAStore0 + 2, bcAStore3:
		return withVar(ir.OpAStore, int32(op-bcAStore0))

	case bcIALoad:
		return simple(ir.OpIALoad)
	case bcLALoad:
		return simple(ir.OpLALoad)
	case bcFALoad:
		return simple(ir.OpFALoad)
	case bcDALoad:
		return simple(ir.OpDALoad)
	case bcAALoad:
		return simple(ir.OpAALoad)
	case bcBALoad:
		return simple(ir.OpBALoad)
	case bcCALoad:
		return simple(ir.OpCALoad)
	case bcSALoad:
		return simple(ir.OpSALoad)
	case bcIAStore:
		in.Flags |= ir.FlagArrayStore
		return simple(ir.OpIAStore)
	case bcLAStore:
		in.Flags |= ir.FlagArrayStore
		return simple(ir.OpLAStore)
	case bcFAStore:
		in.Flags |= ir.FlagArrayStore
		return simple(ir.OpFAStore)
	case bcDAStore:
		in.Flags |= ir.FlagArrayStore
		return simple(ir.OpDAStore)
	case bcAAStore:
		in.Flags |= ir.FlagArrayStore
		return simple(ir.OpAAStore)
	case bcBAStore:
		in.Flags |= ir.FlagArrayStore
		return simple(ir.OpBAStore)
	case bcCAStore:
		in.Flags |= ir.FlagArrayStore
		return simple(ir.OpCAStore)
	case bcSAStore:
		in.Flags |= ir.FlagArrayStore
		return simple(ir.OpSAStore)

	case bcPop:
		return simple(ir.OpPop)
	case bcPop2:
		return simple(ir.OpPop2)
	case bcDup:
		return simple(ir.OpDup)
	case bcDupX1:
		return simple(ir.OpDupX1)
	case bcDupX2:
		return simple(ir.OpDupX2)
	case bcDup2:
		return simple(ir.OpDup2)
	case bcDup2X1:
		return simple(ir.OpDup2X1)
	case bcDup2X2:
		return simple(ir.OpDup2X2)
	case bcSwap:
		return simple(ir.OpSwap)

	case bcIAdd:
		return simple(ir.OpIAdd)
	case bcLAdd:
		return simple(ir.OpLAdd)
	case bcFAdd:
		return simple(ir.OpFAdd)
	case bcDAdd:
		return simple(ir.OpDAdd)
	case bcISub:
		return simple(ir.OpISub)
	case bcLSub:
		return simple(ir.OpLSub)
	case bcFSub:
		return simple(ir.OpFSub)
	case bcDSub:
		return simple(ir.OpDSub)
	case bcIMul:
		return simple(ir.OpIMul)
	case bcLMul:
		return simple(ir.OpLMul)
	case bcFMul:
		return simple(ir.OpFMul)
	case bcDMul:
		return simple(ir.OpDMul)
	case bcIDiv:
		in.Flags |= ir.FlagCheckRequired
		return simple(ir.OpIDiv)
	case bcLDiv:
		in.Flags |= ir.FlagCheckRequired
		return simple(ir.OpLDiv)
	case bcFDiv:
		return simple(ir.OpFDiv)
	case bcDDiv:
		return simple(ir.OpDDiv)
	case bcIRem:
		in.Flags |= ir.FlagCheckRequired
		return simple(ir.OpIRem)
	case bcLRem:
		in.Flags |= ir.FlagCheckRequired
		return simple(ir.OpLRem)
	case bcFRem:
		return simple(ir.OpFRem)
	case bcDRem:
		return simple(ir.OpDRem)
	case bcINeg:
		return simple(ir.OpINeg)
	case bcLNeg:
		return simple(ir.OpLNeg)
	case bcFNeg:
		return simple(ir.OpFNeg)
	case bcDNeg:
		return simple(ir.OpDNeg)
	case bcIShl:
		return simple(ir.OpIShl)
	case bcLShl:
		return simple(ir.OpLShl)
	case bcIShr:
		return simple(ir.OpIShr)
	case bcLShr:
		return simple(ir.OpLShr)
	case bcIUshr:
		return simple(ir.OpIUshr)
	case bcLUshr:
		return simple(ir.OpLUshr)
	case bcIAnd:
		return simple(ir.OpIAnd)
	case bcLAnd:
		return simple(ir.OpLAnd)
	case bcIOr:
		return simple(ir.OpIOr)
	case bcLOr:
		return simple(ir.OpLOr)
	case bcIXor:
		return simple(ir.OpIXor)
	case bcLXor:
		return simple(ir.OpLXor)
	case bcIInc:
		idx, err := d.u8()
		if err != nil {
			return in, err
		}
		delta, err := d.u8()
		if err != nil {
			return in, err
		}
		in.Op = ir.OpIInc
		in.S1 = ir.Operand{Kind: ir.KindVar, Index: int32(idx)}
		in.S2 = ir.Operand{Kind: ir.KindImm, Imm: int64(int8(delta))}
		in.Dst = ir.Operand{Kind: ir.KindVar, Index: int32(idx)}
		return in, nil

	case bcI2L:
		return simple(ir.OpI2L)
	case bcI2F:
		return simple(ir.OpI2F)
	case bcI2D:
		return simple(ir.OpI2D)
	case bcL2I:
		return simple(ir.OpL2I)
	case bcL2F:
		return simple(ir.OpL2F)
	case bcL2D:
		return simple(ir.OpL2D)
	case bcF2I:
		return simple(ir.OpF2I)
	case bcF2L:
		return simple(ir.OpF2L)
	case bcF2D:
		return simple(ir.OpF2D)
	case bcD2I:
		return simple(ir.OpD2I)
	case bcD2L:
		return simple(ir.OpD2L)
	case bcD2F:
		return simple(ir.OpD2F)
	case bcI2B:
		return simple(ir.OpI2B)
	case bcI2C:
		return simple(ir.OpI2C)
	case bcI2S:
		return simple(ir.OpI2S)

	case bcLCmp:
		return simple(ir.OpLCmp)
	case bcFCmpL:
		return simple(ir.OpFCmpL)
	case bcFCmpG:
		return simple(ir.OpFCmpG)
	case bcDCmpL:
		return simple(ir.OpDCmpL)
	case bcDCmpG:
		return simple(ir.OpDCmpG)

	case bcIfEq, bcIfNe, bcIfLt, bcIfGe, bcIfGt, bcIfLe,
		bcIfICmpEq, bcIfICmpNe, bcIfICmpLt, bcIfICmpGe, bcIfICmpGt, bcIfICmpLe,
		bcIfACmpEq, bcIfACmpNe, bcIfNull, bcIfNonNull:
		off, err := d.u16()
		if err != nil {
			return in, err
		}
		target := startPC + int32(int16(off))
		return branch(ifOpcode(op), target)
	case bcGoto:
		off, err := d.u16()
		if err != nil {
			return in, err
		}
		target := startPC + int32(int16(off))
		return branch(ir.OpGoto, target)

	case bcTableSwitch:
		return d.decodeTableSwitch(startPC)
	case bcLookupSwitch:
		return d.decodeLookupSwitch(startPC)

	case bcIReturn:
		markFallthrough(d, d.pc)
		return simple(ir.OpIReturn)
	case bcLReturn:
		markFallthrough(d, d.pc)
		return simple(ir.OpLReturn)
	case bcFReturn:
		markFallthrough(d, d.pc)
		return simple(ir.OpFReturn)
	case bcDReturn:
		markFallthrough(d, d.pc)
		return simple(ir.OpDReturn)
	case bcAReturn:
		markFallthrough(d, d.pc)
		return simple(ir.OpAReturn)
	case bcReturn:
		markFallthrough(d, d.pc)
		return simple(ir.OpReturn)

	case bcGetStatic, bcPutStatic, bcGetField, bcPutField:
		idx, err := d.u16()
		if err != nil {
			return in, err
		}
		return d.decodeFieldRef(op, idx)

	case bcInvokeVirtual, bcInvokeSpecial, bcInvokeStatic:
		idx, err := d.u16()
		if err != nil {
			return in, err
		}
		return d.decodeMethodRef(op, idx)
	case bcInvokeInterface:
		idx, err := d.u16()
		if err != nil {
			return in, err
		}
		if _, err := d.u8(); err != nil { // count, historical
			return in, err
		}
		if _, err := d.u8(); err != nil { // must be 0
			return in, err
		}
		return d.decodeMethodRef(op, idx)

	case bcNew:
		idx, err := d.u16()
		if err != nil {
			return in, err
		}
		return d.decodeClassRef(ir.OpNew, idx)
	case bcNewArray:
		atype, err := d.u8()
		if err != nil {
			return in, err
		}
		return withImm(ir.OpNewArray, int64(atype))
	case bcANewArray:
		idx, err := d.u16()
		if err != nil {
			return in, err
		}
		return d.decodeClassRef(ir.OpANewArray, idx)
	case bcArrayLength:
		return simple(ir.OpArrayLength)
	case bcAThrow:
		markFallthrough(d, d.pc)
		return simple(ir.OpAThrow)
	case bcCheckCast:
		idx, err := d.u16()
		if err != nil {
			return in, err
		}
		return d.decodeClassRef(ir.OpCheckCast, idx)
	case bcInstanceOf:
		idx, err := d.u16()
		if err != nil {
			return in, err
		}
		return d.decodeClassRef(ir.OpInstanceOf, idx)
	case bcMonitorEnter:
		return simple(ir.OpMonitorEnter)
	case bcMonitorExit:
		return simple(ir.OpMonitorExit)
	case bcMultiANewArray:
		idx, err := d.u16()
		if err != nil {
			return in, err
		}
		dims, err := d.u8()
		if err != nil {
			return in, err
		}
		in2, err := d.decodeClassRef(ir.OpMultiANewArray, idx)
		if err != nil {
			return in2, err
		}
		in2.S2 = ir.Operand{Kind: ir.KindImm, Imm: int64(dims)}
		return in2, nil

	default:
		return in, &VerifyError{Msg: fmt.Sprintf("unknown opcode 0x%02x at pc=%d", op, startPC)}
	}
}

func loadOpcode(op byte) ir.Opcode {
	switch op {
	case bcILoad:
		return ir.OpILoad
	case bcLLoad:
		return ir.OpLLoad
	case bcFLoad:
		return ir.OpFLoad
	case bcDLoad:
		return ir.OpDLoad
	default:
		return ir.OpALoad
	}
}

func storeOpcode(op byte) ir.Opcode {
	switch op {
	case bcIStore:
		return ir.OpIStore
	case bcLStore:
		return ir.OpLStore
	case bcFStore:
		return ir.OpFStore
	case bcDStore:
		return ir.OpDStore
	default:
		return ir.OpAStore
	}
}

func ifOpcode(op byte) ir.Opcode {
	switch op {
	case bcIfEq:
		return ir.OpIfEq
	case bcIfNe:
		return ir.OpIfNe
	case bcIfLt:
		return ir.OpIfLt
	case bcIfGe:
		return ir.OpIfGe
	case bcIfGt:
		return ir.OpIfGt
	case bcIfLe:
		return ir.OpIfLe
	case bcIfICmpEq:
		return ir.OpIfICmpEq
	case bcIfICmpNe:
		return ir.OpIfICmpNe
	case bcIfICmpLt:
		return ir.OpIfICmpLt
	case bcIfICmpGe:
		return ir.OpIfICmpGe
	case bcIfICmpGt:
		return ir.OpIfICmpGt
	case bcIfICmpLe:
		return ir.OpIfICmpLe
	case bcIfACmpEq:
		return ir.OpIfACmpEq
	case bcIfACmpNe:
		return ir.OpIfACmpNe
	case bcIfNull:
		return ir.OpIfNull
	default:
		return ir.OpIfNonNull
	}
}

func (d *decoder) decodeLdc(poolIndex uint16) (ir.Instruction, error) {
	in := ir.Instruction{Line: d.line}
	if d.resolver == nil {
		in.Op = ir.OpAConstNull
		in.Flags |= ir.FlagUnresolved
		in.S1 = ir.Operand{Kind: ir.KindRef, Index: int32(poolIndex)}
		return in, nil
	}
	kind, intOrRef, floatBits, ok := d.resolver.ResolveConstant(poolIndex)
	if !ok {
		in.Op = ir.OpAConstNull
		in.Flags |= ir.FlagUnresolved
		in.S1 = ir.Operand{Kind: ir.KindRef, Index: int32(poolIndex)}
		return in, nil
	}
	switch kind {
	case 0: // classfile.TInt
		in.Op, in.S1 = ir.OpIConst, ir.Operand{Kind: ir.KindImm, Imm: intOrRef}
	case 1: // TLong
		in.Op, in.S1 = ir.OpLConst, ir.Operand{Kind: ir.KindImm, Imm: intOrRef}
	case 2: // TFloat
		in.Op, in.S1 = ir.OpFConst, ir.Operand{Kind: ir.KindImm, Imm: int64(floatBits)}
	case 3: // TDouble
		in.Op, in.S1 = ir.OpDConst, ir.Operand{Kind: ir.KindImm, Imm: int64(floatBits)}
	default: // address (class/string literal)
		in.Op, in.S1 = ir.OpAConstNull, ir.Operand{Kind: ir.KindImm, Imm: intOrRef}
	}
	return in, nil
}

func (d *decoder) decodeFieldRef(op byte, poolIndex uint16) (ir.Instruction, error) {
	in := ir.Instruction{Line: d.line}
	var o ir.Opcode
	switch op {
	case bcGetStatic:
		o = ir.OpGetStatic
	case bcPutStatic:
		o = ir.OpPutStatic
	case bcGetField:
		o = ir.OpGetField
	default:
		o = ir.OpPutField
	}
	in.Op = o
	if d.resolver != nil {
		if fieldID, offset, ok := d.resolver.ResolveField(poolIndex); ok {
			in.S1 = ir.Operand{Kind: ir.KindRef, Index: fieldID, Imm: int64(offset)}
			return in, nil
		}
	}
	in.Flags |= ir.FlagUnresolved
	in.S1 = ir.Operand{Kind: ir.KindRef, Index: int32(poolIndex)}
	return in, nil
}

func (d *decoder) decodeMethodRef(op byte, poolIndex uint16) (ir.Instruction, error) {
	in := ir.Instruction{Line: d.line}
	var o ir.Opcode
	var resolveFn func() (int32, int32, bool)
	switch op {
	case bcInvokeVirtual:
		o = ir.OpInvokeVirtual
		if d.resolver != nil {
			resolveFn = func() (int32, int32, bool) { return d.resolver.ResolveMethod(poolIndex) }
		}
	case bcInvokeSpecial:
		o = ir.OpInvokeSpecial
		if d.resolver != nil {
			resolveFn = func() (int32, int32, bool) { return d.resolver.ResolveMethod(poolIndex) }
		}
	case bcInvokeStatic:
		o = ir.OpInvokeStatic
		if d.resolver != nil {
			resolveFn = func() (int32, int32, bool) { return d.resolver.ResolveMethod(poolIndex) }
		}
	default:
		o = ir.OpInvokeInterface
		if d.resolver != nil {
			resolveFn = func() (int32, int32, bool) { return d.resolver.ResolveInterfaceMethod(poolIndex) }
		}
	}
	in.Op = o
	if resolveFn != nil {
		if methodID, slot, ok := resolveFn(); ok {
			in.S1 = ir.Operand{Kind: ir.KindRef, Index: methodID, Imm: int64(slot)}
			if desc, ok := d.resolver.ResolveMethodDescriptor(poolIndex); ok {
				in.Aux = &desc
			}
			return in, nil
		}
	}
	in.Flags |= ir.FlagUnresolved
	in.S1 = ir.Operand{Kind: ir.KindRef, Index: int32(poolIndex)}
	return in, nil
}

func (d *decoder) decodeClassRef(o ir.Opcode, poolIndex uint16) (ir.Instruction, error) {
	in := ir.Instruction{Op: o, Line: d.line}
	if d.resolver != nil {
		if classID, ok := d.resolver.ResolveClass(poolIndex); ok {
			in.S1 = ir.Operand{Kind: ir.KindRef, Index: classID}
			return in, nil
		}
	}
	in.Flags |= ir.FlagUnresolved
	in.S1 = ir.Operand{Kind: ir.KindRef, Index: int32(poolIndex)}
	return in, nil
}

func (d *decoder) decodeTableSwitch(startPC int32) (ir.Instruction, error) {
	// Align to a 4-byte boundary from the start of the method's bytecode.
	for (d.pc)%4 != 0 {
		if _, err := d.u8(); err != nil {
			return ir.Instruction{}, err
		}
	}
	def, err := d.s32()
	if err != nil {
		return ir.Instruction{}, err
	}
	low, err := d.s32()
	if err != nil {
		return ir.Instruction{}, err
	}
	high, err := d.s32()
	if err != nil {
		return ir.Instruction{}, err
	}
	if high < low {
		return ir.Instruction{}, &VerifyError{Msg: "tableswitch with upper < lower"}
	}
	n := int(high-low) + 1
	targets := make([]ir.Operand, n)
	for i := 0; i < n; i++ {
		off, err := d.s32()
		if err != nil {
			return ir.Instruction{}, err
		}
		target := startPC + off
		d.blockStarts[target] = true
		targets[i] = ir.Operand{Kind: ir.KindImm, Imm: int64(target)}
	}
	defTarget := startPC + def
	d.blockStarts[defTarget] = true
	markFallthrough(d, d.pc)
	return ir.Instruction{
		Op:   ir.OpTableSwitch,
		Line: d.line,
		Aux: &ir.SwitchTable{
			Targets: targets,
			Default: ir.Operand{Kind: ir.KindImm, Imm: int64(defTarget)},
			Low:     low,
			High:    high,
		},
	}, nil
}

func (d *decoder) decodeLookupSwitch(startPC int32) (ir.Instruction, error) {
	for (d.pc)%4 != 0 {
		if _, err := d.u8(); err != nil {
			return ir.Instruction{}, err
		}
	}
	def, err := d.s32()
	if err != nil {
		return ir.Instruction{}, err
	}
	n, err := d.s32()
	if err != nil {
		return ir.Instruction{}, err
	}
	if n < 0 {
		return ir.Instruction{}, &VerifyError{Msg: "lookupswitch with negative npairs"}
	}
	keys := make([]int32, n)
	targets := make([]ir.Operand, n)
	var prevKey int32
	for i := int32(0); i < n; i++ {
		key, err := d.s32()
		if err != nil {
			return ir.Instruction{}, err
		}
		if i > 0 && key <= prevKey {
			return ir.Instruction{}, &VerifyError{Msg: "lookupswitch keys not strictly ascending"}
		}
		prevKey = key
		off, err := d.s32()
		if err != nil {
			return ir.Instruction{}, err
		}
		target := startPC + off
		d.blockStarts[target] = true
		keys[i] = key
		targets[i] = ir.Operand{Kind: ir.KindImm, Imm: int64(target)}
	}
	defTarget := startPC + def
	d.blockStarts[defTarget] = true
	markFallthrough(d, d.pc)
	return ir.Instruction{
		Op:   ir.OpLookupSwitch,
		Line: d.line,
		Aux: &ir.SwitchTable{
			Keys:    keys,
			Targets: targets,
			Default: ir.Operand{Kind: ir.KindImm, Imm: int64(defTarget)},
		},
	}, nil
}
