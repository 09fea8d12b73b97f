package compiler

import (
	"github.com/cacao-jit/cacao/internal/asm"
	"github.com/cacao-jit/cacao/internal/ir"
)

// compiler is the interface of the architecture-specific native code
// generator. One implementation exists per supported GOARCH, and
// each is responsible for turning a single internal/ir.Instruction (or,
// for label/drop/stub bookkeeping, the enclosing internal/ir.BasicBlock
// or internal/ir.InclusiveRange) into native machine code appended to
// the compiler's internal asm.Buffer.
type compiler interface {
	// String is for debugging purpose.
	String() string

	// compilePreamble is called before compiling any instruction in the
	// method body. It lays out the locals, sets up the frame base and
	// reserves the activation record, loads the data-segment base, and
	// enters the monitor for synchronized methods. No stack-growth
	// check is emitted.
	compilePreamble() error

	// compile finalizes code generation and returns the assembled
	// native code, its associated data segment, and the maximum
	// stack pointer this method's activation record needs to reserve.
	compile() (code []byte, staticData codeStaticData, stackPointerCeil uint64, err error)

	// runtimeValueLocationStack exposes the compiler's live
	// valueLocationStack so cross-cutting helpers (compileDropRange,
	// the replacement-point and trap helpers) can inspect or mutate it
	// without each implementation re-deriving it.
	runtimeValueLocationStack() *valueLocationStack

	// allocateRegister returns an unused register of the given type,
	// spilling the least recently pushed value of a matching register
	// type to the memory stack if none is free.
	allocateRegister(tp registerType) (asm.Register, error)

	// compileLoadValueOnStackToRegister emits the move from loc's
	// memory-stack slot into loc's register, first allocating one if loc
	// has none.
	compileLoadValueOnStackToRegister(loc *valueLocation) error

	// compileReleaseRegisterToStack emits the move from loc's register
	// back into loc's memory-stack slot and marks the register free.
	compileReleaseRegisterToStack(loc *valueLocation) error

	// compileLabel notifies the compiler of the beginning of a basic
	// block. Returns true if the compiler decided to skip the entire
	// block, which happens for blocks the analyzer marked ir.BlockDeleted.
	compileLabel(b *ir.BasicBlock) (skipThisBlock bool)

	// compileConst adds instructions to push a constant operand (iconst,
	// lconst, fconst, dconst, aconst_null, bipush, sipush, ldc family)
	// onto the value stack.
	compileConst(in *ir.Instruction) error

	// compileLocalGet adds instructions to load the value of a local
	// variable slot onto the value stack.
	compileLocalGet(in *ir.Instruction) error

	// compileLocalSet adds instructions to pop the top of the value
	// stack into a local variable slot. iinc is compiled separately, by
	// the amd64 backend's compileIncLocal.
	compileLocalSet(in *ir.Instruction) error

	// compileDropRange adds instructions to drop the values within the
	// given inclusive range from the value stack, releasing any
	// registers they occupy.
	compileDropRange(r *ir.InclusiveRange) error

	// compileStackShuffle adds instructions for swap, dup and dup2. The
	// analyzer has already verified the category-2 split rules; here we
	// only move values. The dup_x1/dup_x2/dup2_x1/dup2_x2 forms are
	// rejected with an error.
	compileStackShuffle(in *ir.Instruction) error

	// compileBinOp adds instructions to pop two values, perform the
	// given arithmetic or logical operation, and push the result.
	compileBinOp(in *ir.Instruction) error

	// compileUnaryOp adds instructions for the ineg/lneg/fneg/dneg family.
	compileUnaryOp(in *ir.Instruction) error

	// compileConvert adds instructions for the i2l/i2f/.../d2f numeric
	// conversion family.
	compileConvert(in *ir.Instruction) error

	// compileCompare adds instructions for lcmp/fcmpl/fcmpg/dcmpl/dcmpg,
	// which push an int result rather than branching directly.
	compileCompare(in *ir.Instruction) error

	// compileBranch adds instructions for the if<cond> and if_<cond>
	// family, popping one or two operands and branching into the
	// instruction's Dst block if the condition holds, otherwise
	// falling through.
	compileBranch(in *ir.Instruction) error

	// compileGoto adds an unconditional jump into the instruction's Dst block.
	compileGoto(in *ir.Instruction) error

	// compileSwitch adds instructions for tableswitch/lookupswitch,
	// popping the key and branching according to the instruction's
	// *ir.SwitchTable auxiliary data.
	compileSwitch(in *ir.Instruction) error

	// compileReturn adds instructions to pop (if non-void) the return
	// value, unwind any held monitor for synchronized methods, and
	// transfer control back to the caller per the compiled-method ABI.
	compileReturn(in *ir.Instruction) error

	// compileFieldAccess adds instructions for getstatic/putstatic/
	// getfield/putfield. Unresolved field references record a patch
	// reference marked by a NOP landing pad; no trapping sequence is
	// emitted for them.
	compileFieldAccess(in *ir.Instruction) error

	// compileArrayLoad adds instructions for the iaload/laload/.../saload
	// family, including the null-check and bounds-check trap sequences.
	compileArrayLoad(in *ir.Instruction) error

	// compileArrayStore adds instructions for the iastore/lastore/.../sastore
	// family, including the null-check, bounds-check, and (for aastore)
	// array-store-check trap sequences.
	compileArrayStore(in *ir.Instruction) error

	// compileArrayLength adds the null-check and array length load for arraylength.
	compileArrayLength(in *ir.Instruction) error

	// compileNew adds instructions to allocate a new instance of the
	// (possibly unresolved) class named by the instruction.
	compileNew(in *ir.Instruction) error

	// compileNewArray adds instructions for newarray/anewarray/multianewarray.
	compileNewArray(in *ir.Instruction) error

	// compileInvoke adds instructions for invokevirtual/invokespecial/
	// invokestatic/invokeinterface, including the vftbl dispatch for
	// virtual and interface calls and the patch point for unresolved
	// invokespecial/invokestatic targets.
	compileInvoke(in *ir.Instruction) error

	// compileCheckCast adds the trapping type-check sequence for checkcast.
	compileCheckCast(in *ir.Instruction) error

	// compileInstanceOf adds the non-trapping type-test sequence for instanceof.
	compileInstanceOf(in *ir.Instruction) error

	// compileMonitor adds instructions for monitorenter/monitorexit.
	compileMonitor(in *ir.Instruction) error

	// compileAThrow adds instructions to raise the exception on top of
	// the stack by populating the XPTR/XPC ABI registers and jumping to
	// the trap dispatcher.
	compileAThrow(in *ir.Instruction) error

	// compileNop is a no-op retained for block-boundary alignment.
	compileNop() error
}
