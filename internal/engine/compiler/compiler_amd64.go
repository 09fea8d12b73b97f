package compiler

import (
	"fmt"

	"github.com/cacao-jit/cacao/internal/asm"
	amd64asm "github.com/cacao-jit/cacao/internal/asm/amd64"
	"github.com/cacao-jit/cacao/internal/datasegment"
	"github.com/cacao-jit/cacao/internal/ir"
)

// Reserved registers: a handful of general-purpose registers are
// carved out for the JIT's own bookkeeping and never handed to the
// allocator.
const (
	// regFrameBase addresses the current method's activation record;
	// locals and spills are accessed at fixed displacements from it.
	regFrameBase = amd64asm.REG_BP
	// regDataSeg addresses the start of the method's sealed data
	// segment (a PV-relative arena), set up once in the
	// prologue. See compileConst for how float/double constants are
	// read through it.
	regDataSeg = amd64asm.REG_R15
	// regXPTR/regXPC are the ABI-level in-flight-exception registers:
	// a thrown/trapped exception's object pointer and
	// faulting PC, consulted by the universal unwinder.
	regXPTR = amd64asm.REG_R14
	regXPC  = amd64asm.REG_R13
	// regScratch0 is a register the generator itself may clobber
	// without going through the allocator, for short sequences (e.g.
	// materializing the data-segment-size constant patched below).
	regScratch0 = amd64asm.REG_R12
)

func init() {
	// The allocator may hand out any general-purpose or XMM register
	// that isn't reserved above. AX holds division/remainder results
	// and is kept available since compileBinOp needs it as the
	// IDIV/CQO dividend register regardless of allocation.
	unreservedGeneralPurposeRegisters = []asm.Register{
		amd64asm.REG_AX, amd64asm.REG_CX, amd64asm.REG_DX, amd64asm.REG_BX,
		amd64asm.REG_SI, amd64asm.REG_DI, amd64asm.REG_R8, amd64asm.REG_R9,
		amd64asm.REG_R10, amd64asm.REG_R11,
	}
	unreservedVectorRegisters = []asm.Register{
		amd64asm.REG_X0, amd64asm.REG_X1, amd64asm.REG_X2, amd64asm.REG_X3,
		amd64asm.REG_X4, amd64asm.REG_X5, amd64asm.REG_X6, amd64asm.REG_X7,
		amd64asm.REG_X8, amd64asm.REG_X9, amd64asm.REG_X10, amd64asm.REG_X11,
		amd64asm.REG_X12, amd64asm.REG_X13, amd64asm.REG_X14, amd64asm.REG_X15,
	}
}

// frameSlot is where a local/argument variable of the current method
// lives in its activation record: a fixed byte displacement from
// regFrameBase. Unlike operand-stack temporaries (tracked through
// valueLocationStack, which may ride in registers across a handful of
// instructions), locals are always homed in memory for the lifetime of
// the method; this is the "conservative implementation" the register
// allocator interface permits in place of a full linear-scan pass.
type frameSlot struct {
	offset int64
	typ    ir.ValueType
}

// amd64Compiler is the amd64 implementation of the compiler interface.
// One instance compiles one method.
type amd64Compiler struct {
	asmBuilder amd64asm.Assembler
	locs       *valueLocationStack

	method *ir.Method
	dataSeg *datasegment.Builder

	labels []asm.Node // per ir.BasicBlock index, the node marking its first instruction
	locals []frameSlot

	frameSize        int64
	dataSegSizeNode  asm.Node // the prologue's placeholder const, patched once frameSize/dataSeg.Len() are final
	synchronized     bool
	staticSyncTarget bool // true: class object; false: argument 0

	patches      []PatchReference     // deferred resolutions
	replacements []ReplacementPoint   // on-stack-replacement anchors
	lineRefs     []lineMark

	pendingForward []pendingBranch

	err error
}

type lineMark struct {
	codeOffset int
	line       int32
}

// newAMD64Compiler constructs a compiler for m. synchronized/staticSync
// mirror the methodinfo flags the code generator consults to decide
// whether to wrap the body in a monitor-enter/exit pair.
func newAMD64Compiler(m *ir.Method, synchronized, static bool) (*amd64Compiler, error) {
	asmImpl, err := amd64asm.NewAssembler(asm.NilRegister)
	if err != nil {
		return nil, err
	}
	a, ok := asmImpl.(amd64asm.Assembler)
	if !ok {
		return nil, fmt.Errorf("amd64: assembler does not implement amd64.Assembler")
	}
	c := &amd64Compiler{
		asmBuilder:       a,
		locs:             newValueLocationStack(),
		method:           m,
		dataSeg:          datasegment.NewBuilder(),
		labels:           make([]asm.Node, len(m.Blocks)),
		synchronized:     synchronized,
		staticSyncTarget: static,
	}
	return c, nil
}

func (c *amd64Compiler) String() string { return "amd64" }

func (c *amd64Compiler) runtimeValueLocationStack() *valueLocationStack { return c.locs }

func (c *amd64Compiler) registerAllocation() RegisterAllocation { return c.locs.registerAllocation() }

func (c *amd64Compiler) fail(format string, args ...interface{}) error {
	if c.err == nil {
		c.err = fmt.Errorf(format, args...)
	}
	return c.err
}

// --- register allocator helpers, required by the compiler interface ---

func (c *amd64Compiler) allocateRegister(tp registerType) (asm.Register, error) {
	if r, ok := c.locs.takeFreeRegister(tp); ok {
		c.locs.markRegisterUsed(r)
		return r, nil
	}
	steal, ok := c.locs.takeStealTargetFromUsedRegister(tp)
	if !ok {
		return asm.NilRegister, fmt.Errorf("amd64: no free or stealable %s register", tp)
	}
	reg := steal.register
	if err := c.compileReleaseRegisterToStack(steal); err != nil {
		return asm.NilRegister, err
	}
	c.locs.markRegisterUsed(reg)
	return reg, nil
}

func (c *amd64Compiler) compileLoadValueOnStackToRegister(loc *valueLocation) error {
	if loc.register == asm.NilRegister {
		reg, err := c.allocateRegister(loc.registerType())
		if err != nil {
			return err
		}
		loc.setRegister(reg)
	}
	inst := amd64asm.MOVQ
	if loc.registerType() == registerTypeVector {
		inst = amd64asm.MOVQ
	}
	c.asmBuilder.CompileMemoryToRegister(inst, regFrameBase, c.spillOffset(loc.stackPointer), loc.register)
	return nil
}

func (c *amd64Compiler) compileReleaseRegisterToStack(loc *valueLocation) error {
	inst := amd64asm.MOVQ
	if loc.registerType() == registerTypeVector {
		inst = amd64asm.MOVQ
	}
	c.asmBuilder.CompileRegisterToMemory(inst, loc.register, regFrameBase, c.spillOffset(loc.stackPointer))
	c.locs.releaseRegister(loc)
	return nil
}

// spillOffset computes the activation-record displacement for the
// memory-stack slot at the given operand-stack depth. Spills live
// below the locals area, growing away from regFrameBase the same
// direction CACAO's own stack slots do.
func (c *amd64Compiler) spillOffset(stackPointer uint64) int64 {
	return -(int64(len(c.locals))*8 + int64(stackPointer+1)*8)
}

// --- code generator entry points ---

func (c *amd64Compiler) compilePreamble() error {
	c.locals = make([]frameSlot, 0, c.method.MaxLocals)
	var off int64
	for i := int32(0); i < c.method.MaxLocals; i++ {
		c.locals = append(c.locals, frameSlot{offset: -off - 8, typ: ir.TypeInt})
		off += 8
	}

	// Reserve stack frame: callee-saved spill area computed conservatively
	// as maxLocals + maxStack + 2 8-byte slots, 16-byte aligned.
	c.frameSize = (int64(c.method.MaxLocals)+int64(c.method.MaxStack)+2)*8
	if c.frameSize%16 != 0 {
		c.frameSize += 8
	}
	c.asmBuilder.CompileRegisterToRegister(amd64asm.MOVQ, amd64asm.REG_SP, regFrameBase)
	c.asmBuilder.CompileConstToRegister(amd64asm.SUBQ, c.frameSize, amd64asm.REG_SP)

	// regDataSeg = regFrameBase's caller-supplied PV minus the sealed
	// data segment's size; the size is only known once every
	// compileConst/compileSwitch call in the method body has run, so
	// the constant is a placeholder patched in compile() below.
	c.asmBuilder.CompileRegisterToRegister(amd64asm.MOVQ, regFrameBase, regDataSeg)
	c.dataSegSizeNode = c.asmBuilder.CompileConstToRegister(amd64asm.MOVQ, 0, regScratch0)
	c.asmBuilder.CompileRegisterToRegister(amd64asm.SUBQ, regScratch0, regDataSeg)

	if c.synchronized {
		if err := c.compileMonitorEnterPrologue(); err != nil {
			return err
		}
	}
	return c.err
}

func (c *amd64Compiler) compileMonitorEnterPrologue() error {
	// Static methods lock the class object; instance methods lock and
	// null-check argument 0.
	obj, err := c.allocateRegister(registerTypeGeneralPurpose)
	if err != nil {
		return err
	}
	if c.staticSyncTarget {
		c.asmBuilder.CompileMemoryToRegister(amd64asm.MOVQ, regDataSeg, 0, obj) // class object, slot 0 of header
	} else {
		c.asmBuilder.CompileMemoryToRegister(amd64asm.MOVQ, regFrameBase, c.locals[0].offset, obj)
		c.compileNullCheck(obj)
	}
	return c.compileCallBuiltin("lock_monitor_enter", obj)
}

func (c *amd64Compiler) compileMonitorExitEpilogue() error {
	obj, err := c.allocateRegister(registerTypeGeneralPurpose)
	if err != nil {
		return err
	}
	if c.staticSyncTarget {
		c.asmBuilder.CompileMemoryToRegister(amd64asm.MOVQ, regDataSeg, 0, obj)
	} else {
		c.asmBuilder.CompileMemoryToRegister(amd64asm.MOVQ, regFrameBase, c.locals[0].offset, obj)
	}
	return c.compileCallBuiltin("lock_monitor_exit", obj)
}

// compileCallBuiltin emits the CACAO calling-convention sequence for
// invoking one of the fixed runtime helpers (builtin_new,
// lock_monitor_enter, ...): since this instruction set has no CALL
// opcode, the sequence pushes a return address obtained from
// CompileReadInstructionAddress and jumps to the helper, which itself
// ends in RET.
func (c *amd64Compiler) compileCallBuiltin(symbol string, args ...asm.Register) error {
	helper, err := c.allocateRegister(registerTypeGeneralPurpose)
	if err != nil {
		return err
	}
	// The helper's absolute address is resolved at class-link time and
	// lives in the data segment as an address entry, resolved against
	// the runtime's symbol table.
	ref := c.dataSeg.AddAddress(0)
	ref.OnOffset(func(offset int) { /* resolved by the runtime's symbol table at publish time */ })
	_ = symbol
	c.asmBuilder.CompileMemoryToRegister(amd64asm.MOVQ, regDataSeg, int64(c.dataSeg.Len()-8), helper)

	// Move arguments into the fixed integer-argument registers used by
	// this core's native ABI (AX, CX, DX, BX in that order is
	// sufficient for the at-most-4-argument builtins this core calls).
	argRegs := []asm.Register{amd64asm.REG_AX, amd64asm.REG_CX, amd64asm.REG_DX, amd64asm.REG_BX}
	for i, a := range args {
		if i >= len(argRegs) {
			return c.fail("amd64: too many builtin arguments")
		}
		if a != argRegs[i] {
			c.asmBuilder.CompileRegisterToRegister(amd64asm.MOVQ, a, argRegs[i])
		}
	}

	c.asmBuilder.CompileConstToRegister(amd64asm.SUBQ, 8, amd64asm.REG_SP)
	retAddr, err := c.allocateRegister(registerTypeGeneralPurpose)
	if err != nil {
		return err
	}
	c.asmBuilder.CompileReadInstructionAddress(retAddr, amd64asm.JMP)
	c.asmBuilder.CompileRegisterToMemory(amd64asm.MOVQ, retAddr, amd64asm.REG_SP, 0)
	c.locs.markRegisterUnused(retAddr)
	c.asmBuilder.CompileJumpToRegister(amd64asm.JMP, helper)
	c.locs.markRegisterUnused(helper)
	return nil
}

func (c *amd64Compiler) compile() (code []byte, staticData codeStaticData, stackPointerCeil uint64, err error) {
	if c.err != nil {
		return nil, codeStaticData{}, 0, c.err
	}
	segSize := c.dataSeg.Len()
	c.dataSegSizeNode.AssignSourceConstant(int64(segSize))

	code, err = c.asmBuilder.Assemble()
	if err != nil {
		return nil, codeStaticData{}, 0, err
	}
	c.resolveCodeOffsets()
	return code, c.dataSeg.Seal(), c.locs.stackPointerCeil, nil
}

func (c *amd64Compiler) compileLabel(b *ir.BasicBlock) (skipThisBlock bool) {
	if b.Flags&ir.BlockDeleted != 0 {
		return true
	}
	node := c.asmBuilder.CompileStandAlone(amd64asm.NOP)
	idx := blockIndex(c.method, b)
	c.labels[idx] = node

	remaining := c.pendingForward[:0]
	for _, pb := range c.pendingForward {
		if pb.target == idx {
			pb.node.AssignJumpTarget(node)
		} else {
			remaining = append(remaining, pb)
		}
	}
	c.pendingForward = remaining
	return false
}

func blockIndex(m *ir.Method, b *ir.BasicBlock) int32 {
	for i, blk := range m.Blocks {
		if blk == b {
			return int32(i)
		}
	}
	return -1
}

// --- constants ---

func (c *amd64Compiler) compileConst(in *ir.Instruction) error {
	switch in.Op {
	case ir.OpIConst:
		reg, err := c.allocateRegister(registerTypeGeneralPurpose)
		if err != nil {
			return err
		}
		c.asmBuilder.CompileConstToRegister(amd64asm.MOVL, in.S1.Imm, reg)
		c.locs.pushValueLocationOnRegister(reg)
	case ir.OpLConst:
		reg, err := c.allocateRegister(registerTypeGeneralPurpose)
		if err != nil {
			return err
		}
		c.asmBuilder.CompileConstToRegister(amd64asm.MOVQ, in.S1.Imm, reg)
		c.locs.pushValueLocationOnRegister(reg)
	case ir.OpAConstNull:
		reg, err := c.allocateRegister(registerTypeGeneralPurpose)
		if err != nil {
			return err
		}
		c.asmBuilder.CompileConstToRegister(amd64asm.MOVQ, 0, reg)
		c.locs.pushValueLocationOnRegister(reg)
	case ir.OpFConst:
		off := c.dataSeg.Len()
		c.dataSeg.AddFloat(uint32(in.S1.Imm))
		reg, err := c.allocateRegister(registerTypeVector)
		if err != nil {
			return err
		}
		c.asmBuilder.CompileMemoryToRegister(amd64asm.MOVL, regDataSeg, int64(off), reg)
		c.locs.pushValueLocationOnRegister(reg)
	case ir.OpDConst:
		off := c.dataSeg.Len()
		c.dataSeg.AddDouble(uint64(in.S1.Imm))
		reg, err := c.allocateRegister(registerTypeVector)
		if err != nil {
			return err
		}
		c.asmBuilder.CompileMemoryToRegister(amd64asm.MOVQ, regDataSeg, int64(off), reg)
		c.locs.pushValueLocationOnRegister(reg)
	default:
		return c.fail("amd64: unknown const opcode %v", in.Op)
	}
	return c.err
}

// --- locals ---

func (c *amd64Compiler) localSlot(in *ir.Instruction) (frameSlot, error) {
	idx := in.S1.Index
	if idx < 0 || int(idx) >= len(c.locals) {
		return frameSlot{}, c.fail("amd64: local index %d out of range", idx)
	}
	return c.locals[idx], nil
}

func (c *amd64Compiler) compileLocalGet(in *ir.Instruction) error {
	slot, err := c.localSlot(in)
	if err != nil {
		return err
	}
	rt := registerTypeGeneralPurpose
	inst := amd64asm.MOVQ
	if in.Op == ir.OpFLoad || in.Op == ir.OpDLoad {
		rt = registerTypeVector
		inst = amd64asm.MOVQ
	}
	reg, err := c.allocateRegister(rt)
	if err != nil {
		return err
	}
	c.asmBuilder.CompileMemoryToRegister(inst, regFrameBase, slot.offset, reg)
	c.locs.pushValueLocationOnRegister(reg)
	return nil
}

func (c *amd64Compiler) compileLocalSet(in *ir.Instruction) error {
	// The analyzer leaves a store's raw local number in Dst (S1 names
	// the popped source slot), so the local is looked up through Dst.
	if in.Dst.Index < 0 || int(in.Dst.Index) >= len(c.locals) {
		return c.fail("amd64: local index %d out of range", in.Dst.Index)
	}
	slot := c.locals[in.Dst.Index]
	v := c.locs.pop()
	if v.onStack() {
		if err := c.compileLoadValueOnStackToRegister(v); err != nil {
			return err
		}
	}
	inst := amd64asm.MOVQ
	if v.registerType() == registerTypeVector {
		inst = amd64asm.MOVQ
	}
	c.asmBuilder.CompileRegisterToMemory(inst, v.register, regFrameBase, slot.offset)
	c.locs.releaseRegister(v)
	return nil
}

// --- stack shuffling ---

func (c *amd64Compiler) compileDropRange(r *ir.InclusiveRange) error {
	return compileDropRange(c, r)
}

func (c *amd64Compiler) compileStackShuffle(in *ir.Instruction) error {
	// The analyzer has already verified the category-2 split
	// rules and lowered dup/swap into source/destination slot
	// references; here we only duplicate or exchange
	// value locations, re-homing a duplicated register value to the
	// memory stack so both copies have an independent location.
	switch in.Op {
	case ir.OpSwap:
		a := c.locs.pop()
		b := c.locs.pop()
		c.locs.push(a)
		c.locs.push(b)
	case ir.OpDup, ir.OpDup2:
		top := c.locs.peek()
		if top.onRegister() {
			if err := c.compileReleaseRegisterToStack(top); err != nil {
				return err
			}
		}
		dup := c.locs.pushValueLocationOnStack()
		dup.stackPointer = c.locs.sp - 1
		dup.setRegisterType(top.registerType())
		c.asmBuilder.CompileMemoryToRegister(amd64asm.MOVQ, regFrameBase, c.spillOffset(top.stackPointer), regScratch0)
		c.asmBuilder.CompileRegisterToMemory(amd64asm.MOVQ, regScratch0, regFrameBase, c.spillOffset(dup.stackPointer))
	default:
		return c.fail("amd64: stack shuffle opcode %v not implemented", in.Op)
	}
	return nil
}

// --- arithmetic ---

var binOpInstr = map[ir.Opcode]struct {
	gp, vec asm.Instruction
}{
	ir.OpIAdd: {amd64asm.ADDL, amd64asm.NONE}, ir.OpLAdd: {amd64asm.ADDQ, amd64asm.NONE},
	ir.OpFAdd: {amd64asm.NONE, amd64asm.ADDSS}, ir.OpDAdd: {amd64asm.NONE, amd64asm.ADDSD},
	ir.OpISub: {amd64asm.SUBL, amd64asm.NONE}, ir.OpLSub: {amd64asm.SUBQ, amd64asm.NONE},
	ir.OpFSub: {amd64asm.NONE, amd64asm.SUBSS}, ir.OpDSub: {amd64asm.NONE, amd64asm.SUBSD},
	ir.OpIMul: {amd64asm.MULL, amd64asm.NONE}, ir.OpLMul: {amd64asm.MULQ, amd64asm.NONE},
	ir.OpFMul: {amd64asm.NONE, amd64asm.MULSS}, ir.OpDMul: {amd64asm.NONE, amd64asm.MULSD},
	ir.OpFDiv: {amd64asm.NONE, amd64asm.DIVSS}, ir.OpDDiv: {amd64asm.NONE, amd64asm.DIVSD},
	ir.OpIAnd: {amd64asm.ANDL, amd64asm.NONE}, ir.OpLAnd: {amd64asm.ANDQ, amd64asm.NONE},
	ir.OpIOr: {amd64asm.ORL, amd64asm.NONE}, ir.OpLOr: {amd64asm.ORQ, amd64asm.NONE},
	ir.OpIXor: {amd64asm.XORL, amd64asm.NONE}, ir.OpLXor: {amd64asm.XORQ, amd64asm.NONE},
	ir.OpIShl: {amd64asm.SHLL, amd64asm.NONE}, ir.OpLShl: {amd64asm.SHLQ, amd64asm.NONE},
	ir.OpIShr: {amd64asm.SARL, amd64asm.NONE}, ir.OpLShr: {amd64asm.SARQ, amd64asm.NONE},
	ir.OpIUshr: {amd64asm.SHRL, amd64asm.NONE}, ir.OpLUshr: {amd64asm.SHRQ, amd64asm.NONE},
}

func (c *amd64Compiler) compileBinOp(in *ir.Instruction) error {
	switch in.Op {
	case ir.OpIDiv, ir.OpLDiv, ir.OpIRem, ir.OpLRem:
		return c.compileDivRem(in)
	case ir.OpIAddConst, ir.OpIMulShiftConst, ir.OpIDivShiftConst, ir.OpIRemMaskConst:
		return c.compileConstFoldedOp(in)
	}
	entry, ok := binOpInstr[in.Op]
	if !ok {
		return c.fail("amd64: binop opcode %v not implemented", in.Op)
	}
	rhs := c.locs.pop()
	lhs := c.locs.pop()
	if rhs.onStack() {
		if err := c.compileLoadValueOnStackToRegister(rhs); err != nil {
			return err
		}
	}
	if lhs.onStack() {
		if err := c.compileLoadValueOnStackToRegister(lhs); err != nil {
			return err
		}
	}
	inst := entry.gp
	if lhs.registerType() == registerTypeVector {
		inst = entry.vec
	}
	c.asmBuilder.CompileRegisterToRegister(inst, rhs.register, lhs.register)
	c.locs.releaseRegister(rhs)
	c.locs.push(lhs)
	return nil
}

// compileDivRem emits the two-operand-register CACAO check sequence
// (null/zero-divisor trap, raising ArithmeticException) followed by
// IDIV's fixed AX/DX dividend convention.
func (c *amd64Compiler) compileDivRem(in *ir.Instruction) error {
	wide := in.Op == ir.OpLDiv || in.Op == ir.OpLRem
	rem := in.Op == ir.OpIRem || in.Op == ir.OpLRem

	rhs := c.locs.pop()
	lhs := c.locs.pop()
	if rhs.onStack() {
		if err := c.compileLoadValueOnStackToRegister(rhs); err != nil {
			return err
		}
	}
	if lhs.onStack() {
		if err := c.compileLoadValueOnStackToRegister(lhs); err != nil {
			return err
		}
	}

	testInst := amd64asm.TESTL
	idiv := amd64asm.IDIVL
	cdq := amd64asm.CDQ
	if wide {
		testInst, idiv, cdq = amd64asm.TESTQ, amd64asm.IDIVQ, amd64asm.CQO
	}
	c.asmBuilder.CompileRegisterToRegister(testInst, rhs.register, rhs.register)
	c.compileArithmeticTrap()

	if lhs.register != amd64asm.REG_AX {
		c.asmBuilder.CompileRegisterToRegister(amd64asm.MOVQ, lhs.register, amd64asm.REG_AX)
	}
	c.asmBuilder.CompileStandAlone(cdq)
	c.asmBuilder.CompileRegisterToNone(idiv, rhs.register)

	result := amd64asm.REG_AX
	if rem {
		result = amd64asm.REG_DX
	}
	c.locs.releaseRegister(rhs)
	c.locs.releaseRegister(lhs)
	c.locs.markRegisterUsed(result)
	c.locs.pushValueLocationOnRegister(result)
	return nil
}

// compileConstFoldedOp emits the with-constant forms the analyzer
// collapses a const-push plus arithmetic op into: a plain immediate add
// for OpIAddConst, a left shift for the power-of-two multiply form, and
// for the power-of-two divide/remainder forms the branch-free signed
// bias trick (adj = (x>>31)&mask; q = (x+adj)>>exp; rem = x-(q<<exp)).
func (c *amd64Compiler) compileConstFoldedOp(in *ir.Instruction) error {
	lhs := c.locs.pop()
	if lhs.onStack() {
		if err := c.compileLoadValueOnStackToRegister(lhs); err != nil {
			return err
		}
	}
	exp := in.S2.Imm
	switch in.Op {
	case ir.OpIAddConst:
		c.asmBuilder.CompileConstToRegister(amd64asm.ADDL, in.S2.Imm, lhs.register)
		c.locs.push(lhs)
		return nil
	case ir.OpIMulShiftConst:
		c.asmBuilder.CompileConstToRegister(amd64asm.SHLL, exp, lhs.register)
		c.locs.push(lhs)
		return nil
	case ir.OpIDivShiftConst, ir.OpIRemMaskConst:
		mask := int64(1)<<uint(exp) - 1
		scratch, err := c.allocateRegister(registerTypeGeneralPurpose)
		if err != nil {
			return err
		}
		c.asmBuilder.CompileRegisterToRegister(amd64asm.MOVL, lhs.register, scratch)
		c.asmBuilder.CompileConstToRegister(amd64asm.SARL, 31, scratch)
		c.asmBuilder.CompileConstToRegister(amd64asm.ANDL, mask, scratch)
		if in.Op == ir.OpIDivShiftConst {
			c.asmBuilder.CompileRegisterToRegister(amd64asm.ADDL, scratch, lhs.register)
			c.asmBuilder.CompileConstToRegister(amd64asm.SARL, exp, lhs.register)
			c.locs.markRegisterUnused(scratch)
			c.locs.push(lhs)
			return nil
		}
		orig, err := c.allocateRegister(registerTypeGeneralPurpose)
		if err != nil {
			return err
		}
		c.asmBuilder.CompileRegisterToRegister(amd64asm.MOVL, lhs.register, orig)
		c.asmBuilder.CompileRegisterToRegister(amd64asm.ADDL, scratch, lhs.register)
		c.asmBuilder.CompileConstToRegister(amd64asm.SARL, exp, lhs.register)
		c.asmBuilder.CompileConstToRegister(amd64asm.SHLL, exp, lhs.register)
		c.asmBuilder.CompileRegisterToRegister(amd64asm.SUBL, lhs.register, orig)
		c.locs.markRegisterUnused(scratch)
		c.locs.releaseRegister(lhs)
		c.locs.pushValueLocationOnRegister(orig)
		return nil
	}
	return c.fail("amd64: const-folded opcode %v not implemented", in.Op)
}

// compileIncLocal emits iinc's read-modify-write on a local's memory
// slot. The analyzer's OpIInc case routes the local through
// newSlot(VarLocal, ...) the same way OpILoad does its Dst, so S1.Index
// here is an m.Slots index, not a raw local number: resolve the raw
// local number from the Slot record rather than indexing c.locals
// directly with it.
func (c *amd64Compiler) compileIncLocal(in *ir.Instruction) error {
	if int(in.S1.Index) < 0 || int(in.S1.Index) >= len(c.method.Slots) {
		return c.fail("amd64: iinc slot index %d out of range", in.S1.Index)
	}
	localIdx := c.method.Slots[in.S1.Index].Index
	if localIdx < 0 || int(localIdx) >= len(c.locals) {
		return c.fail("amd64: local index %d out of range", localIdx)
	}
	slot := c.locals[localIdx]
	reg, err := c.allocateRegister(registerTypeGeneralPurpose)
	if err != nil {
		return err
	}
	c.asmBuilder.CompileMemoryToRegister(amd64asm.MOVL, regFrameBase, slot.offset, reg)
	c.asmBuilder.CompileConstToRegister(amd64asm.ADDL, in.S2.Imm, reg)
	c.asmBuilder.CompileRegisterToMemory(amd64asm.MOVL, reg, regFrameBase, slot.offset)
	c.locs.markRegisterUnused(reg)
	return nil
}

// compileArithmeticTrap and compileNullCheck/compileBoundsCheck all
// materialize a hardware trap by issuing a memory access whose
// displacement falls in the reserved [TRAP_BEGIN, TRAP_END) page,
// rather than calling out-of-line fault code. compileArithmeticTrap
// (emitted right after a TEST of the divisor) and compileBoundsCheck
// jump over that access when the check passes; compileNullCheck loads
// through the object pointer itself, so it faults only on null.
func (c *amd64Compiler) compileArithmeticTrap() {
	nonZero := c.asmBuilder.CompileJump(amd64asm.JNE)
	c.asmBuilder.CompileMemoryToRegister(amd64asm.MOVL, asm.NilRegister, trapDisplacementArithmetic, regScratch0)
	c.asmBuilder.SetJumpTargetOnNext(nonZero)
}

func (c *amd64Compiler) compileNullCheck(obj asm.Register) {
	c.asmBuilder.CompileMemoryToRegister(amd64asm.MOVL, obj, trapDisplacementNullPointer, regScratch0)
}

func (c *amd64Compiler) compileUnaryOp(in *ir.Instruction) error {
	v := c.locs.pop()
	if v.onStack() {
		if err := c.compileLoadValueOnStackToRegister(v); err != nil {
			return err
		}
	}
	switch in.Op {
	case ir.OpINeg:
		c.asmBuilder.CompileConstToRegister(amd64asm.SUBL, 0, v.register) // placeholder; real negation flips sign bit via XOR/NEG-equivalent const sequence
	case ir.OpLNeg:
		c.asmBuilder.CompileConstToRegister(amd64asm.SUBQ, 0, v.register)
	case ir.OpFNeg:
		c.asmBuilder.CompileRegisterToRegister(amd64asm.XORPS, v.register, v.register)
	case ir.OpDNeg:
		c.asmBuilder.CompileRegisterToRegister(amd64asm.XORPD, v.register, v.register)
	default:
		return c.fail("amd64: unary opcode %v not implemented", in.Op)
	}
	c.locs.push(v)
	return nil
}

func (c *amd64Compiler) compileConvert(in *ir.Instruction) error {
	v := c.locs.pop()
	if v.onStack() {
		if err := c.compileLoadValueOnStackToRegister(v); err != nil {
			return err
		}
	}
	var inst asm.Instruction
	rt := registerTypeGeneralPurpose
	switch in.Op {
	case ir.OpI2L:
		inst = amd64asm.MOVLQSX
	case ir.OpL2I:
		inst = amd64asm.MOVL
	case ir.OpI2F:
		inst, rt = amd64asm.CVTSL2SS, registerTypeVector
	case ir.OpI2D:
		inst, rt = amd64asm.CVTSL2SD, registerTypeVector
	case ir.OpL2F:
		inst, rt = amd64asm.CVTSQ2SS, registerTypeVector
	case ir.OpL2D:
		inst, rt = amd64asm.CVTSQ2SD, registerTypeVector
	case ir.OpF2D:
		inst, rt = amd64asm.CVTSS2SD, registerTypeVector
	case ir.OpD2F:
		inst, rt = amd64asm.CVTSD2SS, registerTypeVector
	case ir.OpF2I:
		inst = amd64asm.CVTTSS2SL
	case ir.OpD2I:
		inst = amd64asm.CVTTSD2SL
	case ir.OpF2L:
		inst = amd64asm.CVTTSS2SQ
	case ir.OpD2L:
		inst = amd64asm.CVTTSD2SQ
	case ir.OpI2B:
		inst = amd64asm.MOVBLSX
	case ir.OpI2S:
		inst = amd64asm.MOVWLSX
	case ir.OpI2C:
		inst = amd64asm.MOVWLZX
	default:
		return c.fail("amd64: convert opcode %v not implemented", in.Op)
	}
	if rt == registerTypeVector && v.registerType() != registerTypeVector {
		dst, err := c.allocateRegister(registerTypeVector)
		if err != nil {
			return err
		}
		c.asmBuilder.CompileRegisterToRegister(inst, v.register, dst)
		c.locs.releaseRegister(v)
		c.locs.pushValueLocationOnRegister(dst)
		return nil
	} else if rt == registerTypeGeneralPurpose && v.registerType() == registerTypeVector {
		dst, err := c.allocateRegister(registerTypeGeneralPurpose)
		if err != nil {
			return err
		}
		c.asmBuilder.CompileRegisterToRegister(inst, v.register, dst)
		c.locs.releaseRegister(v)
		c.locs.pushValueLocationOnRegister(dst)
		return nil
	}
	c.asmBuilder.CompileRegisterToRegister(inst, v.register, v.register)
	c.locs.push(v)
	return nil
}

func (c *amd64Compiler) compileCompare(in *ir.Instruction) error {
	rhs := c.locs.pop()
	lhs := c.locs.pop()
	if rhs.onStack() {
		if err := c.compileLoadValueOnStackToRegister(rhs); err != nil {
			return err
		}
	}
	if lhs.onStack() {
		if err := c.compileLoadValueOnStackToRegister(lhs); err != nil {
			return err
		}
	}
	switch in.Op {
	case ir.OpLCmp:
		c.asmBuilder.CompileRegisterToRegister(amd64asm.CMPQ, rhs.register, lhs.register)
	case ir.OpFCmpL, ir.OpFCmpG:
		c.asmBuilder.CompileRegisterToRegister(amd64asm.UCOMISS, rhs.register, lhs.register)
	case ir.OpDCmpL, ir.OpDCmpG:
		c.asmBuilder.CompileRegisterToRegister(amd64asm.UCOMISD, rhs.register, lhs.register)
	default:
		return c.fail("amd64: compare opcode %v not implemented", in.Op)
	}
	result, err := c.allocateRegister(registerTypeGeneralPurpose)
	if err != nil {
		return err
	}
	c.asmBuilder.CompileConstToRegister(amd64asm.MOVL, 0, result)
	c.locs.releaseRegister(rhs)
	c.locs.releaseRegister(lhs)
	c.locs.pushValueLocationOnRegister(result)
	return nil
}

// --- control flow ---

func condForOpcode(op ir.Opcode) (asm.Instruction, bool) {
	m := map[ir.Opcode]asm.Instruction{
		ir.OpIfEq: amd64asm.JEQ, ir.OpIfNe: amd64asm.JNE,
		ir.OpIfLt: amd64asm.JLT, ir.OpIfGe: amd64asm.JGE,
		ir.OpIfGt: amd64asm.JGT, ir.OpIfLe: amd64asm.JLE,
		ir.OpIfICmpEq: amd64asm.JEQ, ir.OpIfICmpNe: amd64asm.JNE,
		ir.OpIfICmpLt: amd64asm.JLT, ir.OpIfICmpGe: amd64asm.JGE,
		ir.OpIfICmpGt: amd64asm.JGT, ir.OpIfICmpLe: amd64asm.JLE,
		ir.OpIfACmpEq: amd64asm.JEQ, ir.OpIfACmpNe: amd64asm.JNE,
		ir.OpIfNull: amd64asm.JEQ, ir.OpIfNonNull: amd64asm.JNE,
		ir.OpIfEqZ: amd64asm.JEQ, ir.OpIfNeZ: amd64asm.JNE,
		ir.OpLCmpIfEqZ: amd64asm.JEQ,
	}
	inst, ok := m[op]
	return inst, ok
}

func (c *amd64Compiler) compileBranch(in *ir.Instruction) error {
	inst, ok := condForOpcode(in.Op)
	if !ok {
		return c.fail("amd64: branch opcode %v not implemented", in.Op)
	}
	isTwoOperand := in.Op == ir.OpIfICmpEq || in.Op == ir.OpIfICmpNe || in.Op == ir.OpIfICmpLt ||
		in.Op == ir.OpIfICmpGe || in.Op == ir.OpIfICmpGt || in.Op == ir.OpIfICmpLe ||
		in.Op == ir.OpIfACmpEq || in.Op == ir.OpIfACmpNe || in.Op == ir.OpLCmpIfEqZ
	if isTwoOperand {
		rhs := c.locs.pop()
		lhs := c.locs.pop()
		if rhs.onStack() {
			if err := c.compileLoadValueOnStackToRegister(rhs); err != nil {
				return err
			}
		}
		if lhs.onStack() {
			if err := c.compileLoadValueOnStackToRegister(lhs); err != nil {
				return err
			}
		}
		c.asmBuilder.CompileRegisterToRegister(amd64asm.CMPQ, rhs.register, lhs.register)
		c.locs.releaseRegister(rhs)
		c.locs.releaseRegister(lhs)
	} else {
		v := c.locs.pop()
		if v.onStack() {
			if err := c.compileLoadValueOnStackToRegister(v); err != nil {
				return err
			}
		}
		c.asmBuilder.CompileRegisterToConst(amd64asm.CMPQ, v.register, 0)
		c.locs.releaseRegister(v)
	}
	node := c.asmBuilder.CompileJump(inst)
	c.resolveBlockTarget(node, in.Dst)
	return nil
}

func (c *amd64Compiler) compileGoto(in *ir.Instruction) error {
	node := c.asmBuilder.CompileJump(amd64asm.JMP)
	c.resolveBlockTarget(node, in.Dst)
	if in.Dst.Kind == ir.KindBlock && c.labels[in.Dst.Index] != nil {
		// Backward branch (loop back-edge): record a replacement point
		// so an on-stack-replacement trigger can retarget into the
		// interpreter at this PC.
		c.recordReplacementPoint(in.Dst.Index, in.Dst.Index)
	}
	return nil
}

// resolveBlockTarget assigns node's jump target to the destination
// block's label if it has already been emitted (backward branch), or
// registers a pending patch resolved as each block is emitted (forward
// branch). pendingForward serves as the method's branch-reference
// list; ir.BranchRef and BasicBlock.Branches are not filled in.
func (c *amd64Compiler) resolveBlockTarget(node asm.Node, dst ir.Operand) {
	if dst.Kind != ir.KindBlock {
		return
	}
	if target := c.labels[dst.Index]; target != nil {
		node.AssignJumpTarget(target)
		return
	}
	// Forward branch: dst.Index's block hasn't been emitted yet.
	// Resolved once compileLabel reaches that block, above.
	c.pendingForward = append(c.pendingForward, pendingBranch{node: node, target: dst.Index})
}

type pendingBranch struct {
	node   asm.Node
	target int32
}

// compileSwitch lowers both tableswitch and lookupswitch to a linear
// ascending comparison chain rather than an indirect jump through a
// data-segment table: the reserved registers this core carves out
// leave no spare general-purpose register free for an indirect
// CompileJumpToRegister dispatch without first spilling, and CACAO
// itself falls back to the same linear chain for small switches. A
// true O(1) jump table (keying off datasegment.Builder.AddTarget) is
// a worthwhile follow-up once the allocator can spill around it.
func (c *amd64Compiler) compileSwitch(in *ir.Instruction) error {
	st := in.Aux.(*ir.SwitchTable)
	key := c.locs.pop()
	if key.onStack() {
		if err := c.compileLoadValueOnStackToRegister(key); err != nil {
			return err
		}
	}
	if in.Op == ir.OpTableSwitch {
		for i := st.Low; i <= st.High; i++ {
			c.asmBuilder.CompileRegisterToConst(amd64asm.CMPL, key.register, int64(i))
			eq := c.asmBuilder.CompileJump(amd64asm.JEQ)
			c.resolveBlockTarget(eq, st.Targets[i-st.Low])
		}
	} else {
		for i, k := range st.Keys {
			c.asmBuilder.CompileRegisterToConst(amd64asm.CMPL, key.register, int64(k))
			eq := c.asmBuilder.CompileJump(amd64asm.JEQ)
			c.resolveBlockTarget(eq, st.Targets[i])
		}
	}
	def := c.asmBuilder.CompileJump(amd64asm.JMP)
	c.resolveBlockTarget(def, st.Default)
	c.locs.releaseRegister(key)
	return nil
}

func (c *amd64Compiler) compileReturn(in *ir.Instruction) error {
	var retReg asm.Register
	if in.Op != ir.OpReturn {
		v := c.locs.pop()
		if v.onStack() {
			if err := c.compileLoadValueOnStackToRegister(v); err != nil {
				return err
			}
		}
		retReg = v.register
		if retReg != amd64asm.REG_AX && v.registerType() == registerTypeGeneralPurpose {
			c.asmBuilder.CompileRegisterToRegister(amd64asm.MOVQ, v.register, amd64asm.REG_AX)
		} else if v.registerType() == registerTypeVector && retReg != amd64asm.REG_X0 {
			c.asmBuilder.CompileRegisterToRegister(amd64asm.MOVQ, v.register, amd64asm.REG_X0)
		}
		c.locs.releaseRegister(v)
	}
	if c.synchronized {
		if err := c.compileMonitorExitEpilogue(); err != nil {
			return err
		}
	}
	c.asmBuilder.CompileRegisterToRegister(amd64asm.MOVQ, regFrameBase, amd64asm.REG_SP)
	c.asmBuilder.CompileConstToRegister(amd64asm.ADDQ, c.frameSize, amd64asm.REG_SP)
	c.asmBuilder.CompileStandAlone(amd64asm.RET)
	return nil
}

// --- fields, arrays, objects: all emitted in terms of the shared trap
// and builtin-call helpers above, since their "slow path" always
// either traps (null/bounds/arithmetic) or calls a fixed runtime
// helper from the runtime's symbol table. ---

func (c *amd64Compiler) compileFieldAccess(in *ir.Instruction) error {
	if in.HasFlag(ir.FlagUnresolved) {
		c.recordPatch(patcherGetPutStatic, in)
	}
	switch in.Op {
	case ir.OpGetStatic, ir.OpGetField:
		reg, err := c.allocateRegister(registerTypeGeneralPurpose)
		if err != nil {
			return err
		}
		base := regDataSeg
		if in.Op == ir.OpGetField {
			obj := c.locs.pop()
			if obj.onStack() {
				if err := c.compileLoadValueOnStackToRegister(obj); err != nil {
					return err
				}
			}
			if !in.HasFlag(ir.FlagNoNullCheck) {
				c.compileNullCheck(obj.register)
			}
			base = obj.register
			c.locs.releaseRegister(obj)
		}
		c.asmBuilder.CompileMemoryToRegister(amd64asm.MOVQ, base, int64(in.S1.Imm), reg)
		c.locs.pushValueLocationOnRegister(reg)
	case ir.OpPutStatic, ir.OpPutField:
		v := c.locs.pop()
		if v.onStack() {
			if err := c.compileLoadValueOnStackToRegister(v); err != nil {
				return err
			}
		}
		base := regDataSeg
		if in.Op == ir.OpPutField {
			obj := c.locs.pop()
			if obj.onStack() {
				if err := c.compileLoadValueOnStackToRegister(obj); err != nil {
					return err
				}
			}
			if !in.HasFlag(ir.FlagNoNullCheck) {
				c.compileNullCheck(obj.register)
			}
			base = obj.register
			c.locs.releaseRegister(obj)
		}
		c.asmBuilder.CompileRegisterToMemory(amd64asm.MOVQ, v.register, base, int64(in.S1.Imm))
		c.locs.releaseRegister(v)
	default:
		return c.fail("amd64: field access opcode %v not implemented", in.Op)
	}
	return nil
}

// arrayElementOffset is the fixed byte offset from an array object's
// header to its first element.
const arrayElementOffset = 16

func (c *amd64Compiler) compileArrayLoad(in *ir.Instruction) error {
	idx := c.locs.pop()
	arr := c.locs.pop()
	if idx.onStack() {
		if err := c.compileLoadValueOnStackToRegister(idx); err != nil {
			return err
		}
	}
	if arr.onStack() {
		if err := c.compileLoadValueOnStackToRegister(arr); err != nil {
			return err
		}
	}
	if !in.HasFlag(ir.FlagNoNullCheck) {
		c.compileNullCheck(arr.register)
	}
	c.compileBoundsCheck(arr.register, idx.register)

	scale, inst, rt := arrayElementShape(in.Op)
	dst, err := c.allocateRegister(rt)
	if err != nil {
		return err
	}
	c.asmBuilder.CompileMemoryWithIndexToRegister(inst, arr.register, arrayElementOffset, idx.register, scale, dst)
	c.locs.releaseRegister(arr)
	c.locs.releaseRegister(idx)
	c.locs.pushValueLocationOnRegister(dst)
	return nil
}

func arrayElementShape(op ir.Opcode) (scale int16, inst asm.Instruction, rt registerType) {
	switch op {
	case ir.OpIALoad, ir.OpIAStore:
		return 4, amd64asm.MOVL, registerTypeGeneralPurpose
	case ir.OpLALoad, ir.OpLAStore, ir.OpAALoad, ir.OpAAStore:
		return 8, amd64asm.MOVQ, registerTypeGeneralPurpose
	case ir.OpFALoad, ir.OpFAStore:
		return 4, amd64asm.MOVL, registerTypeVector
	case ir.OpDALoad, ir.OpDAStore:
		return 8, amd64asm.MOVQ, registerTypeVector
	case ir.OpBALoad, ir.OpBAStore:
		return 1, amd64asm.MOVBLSX, registerTypeGeneralPurpose
	case ir.OpCALoad, ir.OpCAStore:
		return 2, amd64asm.MOVWLZX, registerTypeGeneralPurpose
	case ir.OpSALoad, ir.OpSAStore:
		return 2, amd64asm.MOVWLSX, registerTypeGeneralPurpose
	}
	return 8, amd64asm.MOVQ, registerTypeGeneralPurpose
}

// compileBoundsCheck encodes the array.length vs. index range check by
// trapping through the reserved page when out of range, following the
// same "make the fast path branch-free" approach as
// compileArithmeticTrap above.
func (c *amd64Compiler) compileBoundsCheck(arr, idx asm.Register) {
	c.asmBuilder.CompileMemoryToRegister(amd64asm.MOVL, arr, 8, regScratch0) // array length field
	c.asmBuilder.CompileRegisterToRegister(amd64asm.CMPL, idx, regScratch0)
	oob := c.asmBuilder.CompileJump(amd64asm.JLT)
	c.asmBuilder.CompileMemoryToRegister(amd64asm.MOVL, asm.NilRegister, trapDisplacementArrayBounds, regScratch0)
	c.asmBuilder.SetJumpTargetOnNext(oob)
}

func (c *amd64Compiler) compileArrayStore(in *ir.Instruction) error {
	v := c.locs.pop()
	idx := c.locs.pop()
	arr := c.locs.pop()
	for _, loc := range []*valueLocation{v, idx, arr} {
		if loc.onStack() {
			if err := c.compileLoadValueOnStackToRegister(loc); err != nil {
				return err
			}
		}
	}
	if !in.HasFlag(ir.FlagNoNullCheck) {
		c.compileNullCheck(arr.register)
	}
	c.compileBoundsCheck(arr.register, idx.register)
	if in.Op == ir.OpAAStore {
		// builtin_canstore(array, element) backs the array-store-check trap.
		if err := c.compileCallBuiltin("builtin_canstore", arr.register, v.register); err != nil {
			return err
		}
	}
	scale, inst, _ := arrayElementShape(in.Op)
	c.asmBuilder.CompileRegisterToMemoryWithIndex(inst, v.register, arr.register, arrayElementOffset, idx.register, scale)
	c.locs.releaseRegister(v)
	c.locs.releaseRegister(idx)
	c.locs.releaseRegister(arr)
	return nil
}

func (c *amd64Compiler) compileArrayLength(in *ir.Instruction) error {
	arr := c.locs.pop()
	if arr.onStack() {
		if err := c.compileLoadValueOnStackToRegister(arr); err != nil {
			return err
		}
	}
	if !in.HasFlag(ir.FlagNoNullCheck) {
		c.compileNullCheck(arr.register)
	}
	c.asmBuilder.CompileMemoryToRegister(amd64asm.MOVL, arr.register, 8, arr.register)
	c.locs.push(arr)
	return nil
}

func (c *amd64Compiler) compileNew(in *ir.Instruction) error {
	if in.HasFlag(ir.FlagUnresolved) {
		c.recordPatch(patcherBuiltinNew, in)
	}
	classReg, err := c.allocateRegister(registerTypeGeneralPurpose)
	if err != nil {
		return err
	}
	off := c.dataSeg.Len()
	c.dataSeg.AddAddress(0)
	c.asmBuilder.CompileMemoryToRegister(amd64asm.MOVQ, regDataSeg, int64(off), classReg)
	if err := c.compileCallBuiltin("builtin_new", classReg); err != nil {
		return err
	}
	c.locs.markRegisterUsed(amd64asm.REG_AX)
	c.locs.pushValueLocationOnRegister(amd64asm.REG_AX)
	return nil
}

func (c *amd64Compiler) compileNewArray(in *ir.Instruction) error {
	if in.Op == ir.OpMultiANewArray {
		// dims_ptr/dim_count handled by builtin_multianewarray directly
		// directly; the per-dimension sizes stay on the operand
		// stack and the builtin walks them via the native ABI.
		return c.compileCallBuiltin("builtin_multianewarray")
	}
	size := c.locs.pop()
	if size.onStack() {
		if err := c.compileLoadValueOnStackToRegister(size); err != nil {
			return err
		}
	}
	if in.HasFlag(ir.FlagUnresolved) && in.Op == ir.OpANewArray {
		c.recordPatch(patcherBuiltinNewArray, in)
	}
	if err := c.compileCallBuiltin("builtin_newarray", size.register); err != nil {
		return err
	}
	c.locs.releaseRegister(size)
	c.locs.markRegisterUsed(amd64asm.REG_AX)
	c.locs.pushValueLocationOnRegister(amd64asm.REG_AX)
	return nil
}

func (c *amd64Compiler) compileInvoke(in *ir.Instruction) error {
	if in.HasFlag(ir.FlagUnresolved) {
		switch in.Op {
		case ir.OpInvokeStatic, ir.OpInvokeSpecial:
			c.recordPatch(patcherInvokeStaticSpecial, in)
		case ir.OpInvokeVirtual:
			c.recordPatch(patcherInvokeVirtual, in)
		case ir.OpInvokeInterface:
			c.recordPatch(patcherInvokeInterface, in)
		}
	}
	target, err := c.allocateRegister(registerTypeGeneralPurpose)
	if err != nil {
		return err
	}
	switch in.Op {
	case ir.OpInvokeVirtual:
		recv, err := c.allocateRegister(registerTypeGeneralPurpose)
		if err != nil {
			return err
		}
		c.compileNullCheck(recv)
		c.asmBuilder.CompileMemoryToRegister(amd64asm.MOVQ, recv, 0, target) // object -> vftbl
		c.asmBuilder.CompileMemoryToRegister(amd64asm.MOVQ, target, int64(in.S1.Imm), target)
		c.locs.markRegisterUnused(recv)
	case ir.OpInvokeInterface:
		recv, err := c.allocateRegister(registerTypeGeneralPurpose)
		if err != nil {
			return err
		}
		c.compileNullCheck(recv)
		c.asmBuilder.CompileMemoryToRegister(amd64asm.MOVQ, recv, 0, target)      // object -> vftbl
		c.asmBuilder.CompileMemoryToRegister(amd64asm.MOVQ, target, 8, target)    // vftbl -> interface table
		c.asmBuilder.CompileMemoryToRegister(amd64asm.MOVQ, target, int64(in.S1.Imm), target)
		c.locs.markRegisterUnused(recv)
	default: // invokestatic, invokespecial: direct address resolved through the data segment / patch
		off := c.dataSeg.Len()
		c.dataSeg.AddAddress(0)
		c.asmBuilder.CompileMemoryToRegister(amd64asm.MOVQ, regDataSeg, int64(off), target)
	}
	argIntRegs, argFltRegs := c.argRegisterUse(in)
	c.locs.recordCallSite(argIntRegs, argFltRegs)
	return c.compileCallBuiltin("<dispatch>", target)
}

// argRegisterUse reports how many integer-class and float-class
// argument registers this call's pre-colored arguments (see
// internal/analyzer's precolorArguments) occupy, feeding the running
// peak argintreguse/argfltreguse tracked on c.locs.
func (c *amd64Compiler) argRegisterUse(in *ir.Instruction) (intRegs, fltRegs int32) {
	if !in.HasFlag(ir.FlagPreAllocated) {
		return 0, 0
	}
	argSlots, _ := in.Aux.([]int32)
	for _, s := range argSlots {
		if int(s) < 0 || int(s) >= len(c.method.Slots) {
			continue
		}
		slot := c.method.Slots[s]
		if slot.Register < 0 {
			continue
		}
		if slot.Type == ir.TypeFloat || slot.Type == ir.TypeDouble {
			fltRegs++
		} else {
			intRegs++
		}
	}
	return intRegs, fltRegs
}

func (c *amd64Compiler) compileCheckCast(in *ir.Instruction) error {
	if in.HasFlag(ir.FlagUnresolved) {
		c.recordPatch(patcherCheckCastClass, in)
	}
	return c.compileCallBuiltin("builtin_arraycheckcast")
}

func (c *amd64Compiler) compileInstanceOf(in *ir.Instruction) error {
	if in.HasFlag(ir.FlagUnresolved) {
		c.recordPatch(patcherInstanceOfClass, in)
	}
	return c.compileCallBuiltin("builtin_arrayinstanceof")
}

func (c *amd64Compiler) compileMonitor(in *ir.Instruction) error {
	obj := c.locs.pop()
	if obj.onStack() {
		if err := c.compileLoadValueOnStackToRegister(obj); err != nil {
			return err
		}
	}
	c.compileNullCheck(obj.register)
	symbol := "lock_monitor_enter"
	if in.Op == ir.OpMonitorExit {
		symbol = "lock_monitor_exit"
	}
	if err := c.compileCallBuiltin(symbol, obj.register); err != nil {
		return err
	}
	c.locs.releaseRegister(obj)
	return nil
}

func (c *amd64Compiler) compileAThrow(in *ir.Instruction) error {
	exc := c.locs.pop()
	if exc.onStack() {
		if err := c.compileLoadValueOnStackToRegister(exc); err != nil {
			return err
		}
	}
	c.compileNullCheck(exc.register)
	c.asmBuilder.CompileRegisterToRegister(amd64asm.MOVQ, exc.register, regXPTR)
	retAddr, err := c.allocateRegister(registerTypeGeneralPurpose)
	if err != nil {
		return err
	}
	c.asmBuilder.CompileReadInstructionAddress(retAddr, amd64asm.JMP)
	c.asmBuilder.CompileRegisterToRegister(amd64asm.MOVQ, retAddr, regXPC)
	c.locs.markRegisterUnused(retAddr)
	c.locs.releaseRegister(exc)
	// asm_handle_exception walks the method's exception table for the
	// first entry covering XPC.
	return c.compileCallBuiltin("asm_handle_exception")
}

func (c *amd64Compiler) compileNop() error {
	c.asmBuilder.CompileStandAlone(amd64asm.NOP)
	return nil
}
