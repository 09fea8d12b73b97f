package compiler

import "fmt"

// TrapKind enumerates the hardware-fault reasons compiled code
// deliberately provokes by reading through a displacement within
// [TRAP_BEGIN, TRAP_END). The OS signal handler (outside this core's
// scope) recovers the kind from the faulting displacement and calls
// Dispatch.
type TrapKind int32

const (
	TrapNullPointerException TrapKind = iota
	TrapArithmeticException
	TrapArrayIndexOutOfBounds
	TrapArrayStoreException
	TrapClassCastException
	TrapCheckException
	TrapPatcher
	TrapCompiler
)

func (k TrapKind) String() string {
	switch k {
	case TrapNullPointerException:
		return "NullPointerException"
	case TrapArithmeticException:
		return "ArithmeticException"
	case TrapArrayIndexOutOfBounds:
		return "ArrayIndexOutOfBoundsException"
	case TrapArrayStoreException:
		return "ArrayStoreException"
	case TrapClassCastException:
		return "ClassCastException"
	case TrapCheckException:
		return "CheckException"
	case TrapPatcher:
		return "Patcher"
	case TrapCompiler:
		return "Compiler"
	default:
		return "UnknownTrap"
	}
}

// displacementToKind maps the faulting displacement encoded in the
// instruction that trapped to the TrapKind it represents, per the
// contiguous-range-per-kind encoding in patch.go's trapDisplacement*
// constants. Patcher/Compiler traps are not materialized this way --
// they are ordinary calls through a not-yet-resolved data-segment
// slot or stub, recognized by PC membership in a method's patch/stub
// table instead of by displacement.
func displacementToKind(disp int64) (TrapKind, bool) {
	switch {
	case disp == trapDisplacementNullPointer:
		return TrapNullPointerException, true
	case disp == trapDisplacementArithmetic:
		return TrapArithmeticException, true
	case disp == trapDisplacementArrayBounds:
		return TrapArrayIndexOutOfBounds, true
	default:
		return 0, false
	}
}

// TrapContext is the argument bundle the signal handler hands to
// Dispatch: (trap_kind, faulting_value, pv, sp, ra, xpc,
// platform_context), with platform_context narrowed to the one field
// this core's dispatch logic actually consults.
type TrapContext struct {
	Kind         TrapKind
	FaultingAddr uintptr // the null/out-of-range pointer or array index, kind-dependent
	PV           uintptr
	SP           uintptr
	RA           uintptr
	XPC          uintptr
	ThreadID     int64

	// CodeInfo is the revision XPC falls within, resolved by the
	// caller (normally via a method-tree/PC-range lookup the embedder
	// owns) before calling Dispatch.
	CodeInfo *CodeInfo
}

// TrapAction is Dispatch's result: what the trapping thread should do
// next. Exactly one of Exception/ResumePC is meaningful, selected by
// Kind.
type TrapAction struct {
	Kind TrapKind

	// Exception is set for the six exception kinds: the caller
	// constructs (or the embedder's runtime constructs) the named Java
	// exception type and begins unwinding from XPC via the method's
	// exception table.
	Exception error

	// ResumePC is set for TrapPatcher and TrapCompiler: execution
	// resumes here rather than unwinding (ctx.XPC for a patcher trap,
	// ctx.PV for a compiler trap).
	ResumePC uintptr
}

// TrapError is the Go-level stand-in for a constructed Java exception
// instance: this core's scope ends at "classify the trap and name the
// exception type," not at instantiating a VM object.
type TrapError struct {
	Kind    TrapKind
	Message string
}

func (e *TrapError) Error() string { return fmt.Sprintf("%s: %s", e.Kind, e.Message) }

// Dispatch is the trap dispatcher's single entry point. It
// registers a stackframe-info for the duration of its own action (so
// a concurrent stack walk or GC sees the native/compiled transition),
// performs the action named by ctx.Kind, then unregisters.
func Dispatch(ctx TrapContext) (TrapAction, error) {
	sfi := PushStackframeInfo(ctx.ThreadID, ctx.PV, ctx.SP, ctx.RA, ctx.XPC)
	defer PopStackframeInfo(ctx.ThreadID, sfi)

	switch ctx.Kind {
	case TrapNullPointerException, TrapArithmeticException, TrapArrayIndexOutOfBounds,
		TrapArrayStoreException, TrapClassCastException, TrapCheckException:
		return TrapAction{Kind: ctx.Kind, Exception: &TrapError{Kind: ctx.Kind, Message: exceptionMessage(ctx)}}, nil

	case TrapPatcher:
		return dispatchPatcher(ctx)

	case TrapCompiler:
		return dispatchCompiler(ctx)

	default:
		// Unknown trap kinds are fatal.
		panic(fmt.Sprintf("compiler: unknown trap kind %d", ctx.Kind))
	}
}

func exceptionMessage(ctx TrapContext) string {
	switch ctx.Kind {
	case TrapArrayIndexOutOfBounds:
		return fmt.Sprintf("index %d", ctx.FaultingAddr)
	default:
		return ""
	}
}

// dispatchPatcher resolves the patch reference whose code offset
// matches ctx.XPC within ctx.CodeInfo, invoking the keyed patcher and
// respecting the idempotent "already patched" marker. If the
// referenced site instead names a replacement (an OSR trigger
// installed at this PC), it defers to the replacement path.
func dispatchPatcher(ctx TrapContext) (TrapAction, error) {
	ci := ctx.CodeInfo
	if ci == nil {
		return TrapAction{}, fmt.Errorf("compiler: patcher trap with no codeinfo")
	}
	offset := int(ctx.XPC - ci.EntryPoint())
	if rp, ok := replacementAt(ci, offset); ok {
		return dispatchReplacement(ctx, rp)
	}
	p, applied := ci.patchReferenceAt(offset)
	if p == nil {
		return TrapAction{}, fmt.Errorf("compiler: no patch reference at offset %d", offset)
	}
	if applied {
		return TrapAction{Kind: TrapPatcher, ResumePC: ctx.XPC}, nil
	}
	if err := applyPatcher(ci, p); err != nil {
		return TrapAction{}, err
	}
	ci.markPatched(p)
	return TrapAction{Kind: TrapPatcher, ResumePC: ctx.XPC}, nil
}

// applyPatcher checks that p.DataOffset names an 8-byte slot inside
// ci.StaticData and returns an error if it does not. It does not
// resolve the class, field or method named by p, and it writes nothing
// into the data segment or the code; the resolution oracle lives in the
// classfile/runtime layer outside this core's scope.
func applyPatcher(ci *CodeInfo, p *PatchReference) error {
	if p.DataOffset+8 > len(ci.StaticData.Bytes) {
		return fmt.Errorf("compiler: patch offset %d out of range for data segment of %d bytes", p.DataOffset, len(ci.StaticData.Bytes))
	}
	return nil
}

func replacementAt(ci *CodeInfo, offset int) (*ReplacementPoint, bool) {
	for i := range ci.Replacements {
		rp := &ci.Replacements[i]
		if int32(offset) >= rp.StartPC && int32(offset) < rp.EndPC {
			return rp, true
		}
	}
	return nil, false
}

// dispatchReplacement hands control to the runtime's on-stack
// replacement engine: rebuild a logical source state from rp's live
// descriptors and resume in the replacement target. Constructing that
// target (a fresh codeinfo, or the interpreter) is the embedder's
// responsibility; this core's contribution ends at exposing rp.
func dispatchReplacement(ctx TrapContext, rp *ReplacementPoint) (TrapAction, error) {
	return TrapAction{Kind: TrapPatcher, ResumePC: ctx.XPC}, nil
}

// dispatchCompiler returns ctx.PV as the resume address. It does not
// look up the method the stub at ctx.PV names and does not run the
// JIT; compiling a method is done by the root driver's Compile (see
// jit.go).
func dispatchCompiler(ctx TrapContext) (TrapAction, error) {
	return TrapAction{Kind: TrapCompiler, ResumePC: ctx.PV}, nil
}
