// Package ir defines the tagged instruction records, operand/slot model,
// basic blocks and exception table entries produced by the bytecode
// parser and consumed by the stack/variable analyzer and code generator.
package ir

// Opcode is a closed enum of IR instruction kinds. It is deliberately
// coarser-grained than the raw JVM bytecode: the parser folds numeric
// opcode families (e.g. iconst_0..iconst_5, bipush, sipush, ldc) into a
// single opcode carrying an immediate, the way the source opcode table
// collapses them for code generation.
type Opcode uint16

const (
	OpNop Opcode = iota

	// Constants.
	OpIConst // S1.Imm = int32 constant
	OpLConst
	OpFConst
	OpDConst
	OpAConstNull

	// Locals.
	OpILoad
	OpLLoad
	OpFLoad
	OpDLoad
	OpALoad
	OpIStore
	OpLStore
	OpFStore
	OpDStore
	OpAStore

	// Stack shuffling (lowered further by the analyzer; see Dup* below).
	OpPop
	OpPop2
	OpDup
	OpDupX1
	OpDupX2
	OpDup2
	OpDup2X1
	OpDup2X2
	OpSwap

	// Arithmetic, category 1 and 2.
	OpIAdd
	OpLAdd
	OpFAdd
	OpDAdd
	OpISub
	OpLSub
	OpFSub
	OpDSub
	OpIMul
	OpLMul
	OpFMul
	OpDMul
	OpIDiv
	OpLDiv
	OpFDiv
	OpDDiv
	OpIRem
	OpLRem
	OpFRem
	OpDRem
	OpINeg
	OpLNeg
	OpFNeg
	OpDNeg
	OpIShl
	OpLShl
	OpIShr
	OpLShr
	OpIUshr
	OpLUshr
	OpIAnd
	OpLAnd
	OpIOr
	OpLOr
	OpIXor
	OpLXor

	// Constant-folded arithmetic ("with-constant" forms produced by the analyzer).
	OpIAddConst
	OpIMulShiftConst // power-of-two multiply rewritten to shift
	OpIDivShiftConst
	OpIRemMaskConst

	// OpIInc is the local read-modify-write form of iinc (local += const),
	// distinct from OpIAddConst which folds a stack-based add.
	OpIInc

	// Conversions.
	OpI2L
	OpI2F
	OpI2D
	OpL2I
	OpL2F
	OpL2D
	OpF2I
	OpF2L
	OpF2D
	OpD2I
	OpD2L
	OpD2F
	OpI2B
	OpI2C
	OpI2S

	// Comparisons producing a category-1 int (-1/0/1).
	OpLCmp
	OpFCmpL
	OpFCmpG
	OpDCmpL
	OpDCmpG

	// Control flow.
	OpGoto
	OpIfEq
	OpIfNe
	OpIfLt
	OpIfGe
	OpIfGt
	OpIfLe
	OpIfICmpEq
	OpIfICmpNe
	OpIfICmpLt
	OpIfICmpGe
	OpIfICmpGt
	OpIfICmpLe
	OpIfACmpEq
	OpIfACmpNe
	OpIfNull
	OpIfNonNull
	// Compound compare-and-branch forms produced by the analyzer's constant
	// folding (e.g. ICONST 0 + IF_ICMPxx collapses to OpIfEqZ).
	OpIfEqZ
	OpIfNeZ
	OpLCmpIfEqZ
	OpTableSwitch
	OpLookupSwitch

	// Returns.
	OpIReturn
	OpLReturn
	OpFReturn
	OpDReturn
	OpAReturn
	OpReturn

	// Fields and arrays.
	OpGetStatic
	OpPutStatic
	OpGetField
	OpPutField
	OpNewArray
	OpANewArray
	OpMultiANewArray
	OpArrayLength
	OpIALoad
	OpLALoad
	OpFALoad
	OpDALoad
	OpAALoad
	OpBALoad
	OpCALoad
	OpSALoad
	OpIAStore
	OpLAStore
	OpFAStore
	OpDAStore
	OpAAStore
	OpBAStore
	OpCAStore
	OpSAStore

	// Objects, calls, type checks, synchronization.
	OpNew
	OpInvokeVirtual
	OpInvokeSpecial
	OpInvokeStatic
	OpInvokeInterface
	OpCheckCast
	OpInstanceOf
	OpMonitorEnter
	OpMonitorExit
	OpAThrow

	OpNumOpcodes
)

// Kind categorizes an operand/slot reference carried by an Instruction
// field (S1, S2, S3, Dst).
type Kind uint8

const (
	// KindNone marks an unused operand field.
	KindNone Kind = iota
	// KindVar refers to a variable/slot index assigned by the analyzer
	// (see internal/analyzer). Before analysis runs it is a raw
	// local-variable index (loads, stores, iinc); after analysis it is
	// a Slot index, except a store's Dst and a load's S1, which keep the
	// raw local index.
	KindVar
	// KindImm carries an inline immediate payload (int32 constant, branch
	// displacement before resolution, array dimension count, ...).
	KindImm
	// KindRef refers to a constant-pool entry: class, field, method or
	// interface-method. The analyzer/generator resolve it through the
	// classfile oracle, or through a patch reference if unresolved.
	KindRef
	// KindBlock refers to a basic block index; used once branch targets
	// have been resolved from bytecode PCs to block pointers.
	KindBlock
)

// Operand is a single tagged field of an Instruction.
type Operand struct {
	Kind  Kind
	Index int32 // meaning depends on Kind: var index, block index, ref id
	Imm   int64 // meaning depends on Kind/Opcode: constant, branch PC, dim count
}

// Flag bits on Instruction.Flags: unresolved, check-required,
// no-null-check, array-store, retaddr, pre-allocated.
const (
	FlagUnresolved uint16 = 1 << iota
	FlagCheckRequired
	FlagNoNullCheck
	FlagArrayStore
	FlagRetAddr
	FlagPreAllocated
)

// Instruction is one IR instruction: an opcode, up to three tagged
// inputs, a destination, a flag word and a source line for diagnostics.
// Opcodes that need more shape than three operands (table/lookup
// switch) stash it in Aux.
type Instruction struct {
	Op    Opcode
	S1    Operand
	S2    Operand
	S3    Operand
	Dst   Operand
	Flags uint16
	Line  int32

	// Aux carries opcode-specific extra structure that doesn't fit the
	// three-operand shape, e.g. *SwitchTable for OpTableSwitch/OpLookupSwitch.
	Aux interface{}
}

// HasFlag reports whether all of the given bits are set.
func (in *Instruction) HasFlag(f uint16) bool { return in.Flags&f == f }

// SwitchTable is the Aux payload of OpTableSwitch/OpLookupSwitch.
type SwitchTable struct {
	// Keys is empty for OpTableSwitch (where the key implicitly runs
	// low..high) and holds the sorted match keys for OpLookupSwitch.
	Keys    []int32
	Targets []Operand // KindBlock once resolved, KindImm (bytecode PC) before
	Default Operand
	Low     int32 // OpTableSwitch only
	High    int32 // OpTableSwitch only
}

// InclusiveRange describes the inclusive index range [Start, End] of
// values to drop from the value stack, as built by the code generator's
// driver for pop/pop2 and consumed by compileDropRange.
type InclusiveRange struct {
	Start, End int
}

// BlockType distinguishes standard blocks from exception handlers and
// subroutines.
type BlockType uint8

const (
	BlockStandard BlockType = iota
	BlockExceptionHandler
	BlockSubroutine
)

// BlockFlag bits on BasicBlock.Flags.
const (
	BlockReached uint8 = 1 << iota
	BlockFinished
	BlockDeleted
	BlockReplacementAnchor
)

// BranchRef is a pending patch against a not-yet-placed block, recorded
// on the block it targets and resolved once that block's machine-code
// offset (mpc) is known. This is the method's "branch-reference list".
type BranchRef struct {
	// InstrIndex is the index into the method-wide instruction array of
	// the branching instruction.
	InstrIndex int
	// OperandSlot selects which of S1/S2/S3/Dst on that instruction holds
	// the branch target, so the generator's patch callback knows where to
	// write the resolved address.
	OperandSlot int
}

// BasicBlock is a maximal straight-line IR span with a single entry and
// (other than exception edges) a single logical exit.
type BasicBlock struct {
	StartPC int32
	// MPC is the intermediate-PC field for this block's machine-code
	// offset; the amd64 code generator does not assign it.
	MPC int32

	Type  BlockType
	Flags uint8

	// InStack/OutStack are indices into the method-wide Slot array
	// describing the operand-stack image at block entry/exit.
	InStack  []int32
	OutStack []int32
	InDepth  int32
	OutDepth int32

	PredecessorCount int32
	Branches         []BranchRef
	LineEntry        int32

	// Instructions indexes Method.Instructions[Start:End).
	Start, End int32

	// Next chains to the following block in program order.
	Next *BasicBlock
}

// VarKind distinguishes why a stack slot/variable exists.
type VarKind uint8

const (
	VarUndefined VarKind = iota
	VarTemporary
	VarStack
	VarLocal
	VarArgument
)

// ValueType is the JVM basic type tracked per slot.
type ValueType uint8

const (
	TypeInt ValueType = iota
	TypeLong
	TypeFloat
	TypeDouble
	TypeAddress
)

// Category2 reports whether a value of this type occupies two stack
// words (long, double).
func (t ValueType) Category2() bool { return t == TypeLong || t == TypeDouble }

// SlotFlag bits on Slot.Flags.
const (
	SlotInMemory uint8 = 1 << iota
	SlotSavedAcrossCall
)

// Slot is the analyzer-level name for a storage location holding a
// typed value: a stack temporary, a local variable, or an argument.
type Slot struct {
	Type  ValueType
	Kind  VarKind
	Index int32 // numeric index within its Kind
	Flags uint8

	// Register is the physical register assigned by the allocator, or -1 if the
	// slot is an in-memory spill (see SpillOffset).
	Register    int32
	SpillOffset int32
}

// ExceptionEntry is one exception-handler table row, mapped to block
// pointers once the analyzer has built the basic-block graph.
type ExceptionEntry struct {
	StartPC, EndPC, HandlerPC int32
	CatchType                 ClassRef

	StartBlock, EndBlock, HandlerBlock int32 // block indices, filled in after analysis
}

// ClassRef is either an already-resolved class or an unresolved
// constant-pool reference, consulted lazily through the classfile
// oracle or through a patch at first use.
type ClassRef struct {
	Resolved   bool
	ResolvedID int32 // opaque handle into the classfile oracle
	PoolIndex  uint16
}

// Method is the parser's output: a linear instruction array plus
// the block/PC bookkeeping the analyzer consumes.
type Method struct {
	Instructions []Instruction
	Blocks       []*BasicBlock
	// PCToBlock maps a bytecode PC that starts a block to that block's
	// index in Blocks. Populated by the parser, consulted to resolve
	// raw branch-target PCs into block indices.
	PCToBlock map[int32]int32
	// BlockStarts is a bitmap (by bytecode PC) of instruction starts that
	// begin a basic block.
	BlockStarts map[int32]bool
	Exceptions  []ExceptionEntry
	// Slots holds every stack temporary/local/argument allocated during
	// analysis, addressed by Operand.Index when Kind == KindVar.
	Slots []Slot

	MaxStack  int32
	MaxLocals int32
}
