package compiler

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/cacao-jit/cacao/internal/ir"
	"github.com/cacao-jit/cacao/internal/platform"
)

// State is a codeinfo revision's position in the lifecycle:
// building -> emitted -> active -> invalidated.
type State int32

const (
	StateBuilding State = iota
	StateEmitted
	StateActive
	StateInvalidated
)

// Flag bits on CodeInfo.Flags.
const (
	FlagInvalid uint32 = 1 << iota
	FlagLeaf
	FlagSynchronized
)

// CodeInfo is one completed machine-code revision of a method. The
// owning method must be recoverable at a fixed small negative offset
// from the entry point so the stub prologue and trap dispatcher can
// identify it uniformly whether the PV currently points at a compiler
// stub or finished code; Method is therefore always the first field.
type CodeInfo struct {
	Method *ir.Method

	Previous *CodeInfo
	state    int32 // atomic State

	Flags             uint32
	OptimizationLevel int32
	BasicBlockCount   int32

	SynchronizedObjectOffset int64

	Code       []byte // the mmap'd RWX/RX segment; Entry points partway through it
	Entry      int
	StaticData codeStaticData

	Patches      []PatchReference
	Replacements []ReplacementPoint

	RegisterSaveCount int32
	FrameSlotSize     int32

	// MemUse is the highest value-stack index the code generator used,
	// register- and memory-resident values alike
	// (compiler_value_location.go's stackPointerCeil).
	MemUse int32
	// ArgIntRegUse/ArgFltRegUse are the peak per-class argument-register
	// counts any single call site in this method occupies.
	ArgIntRegUse int32
	ArgFltRegUse int32
	// SavIntRegUse/SavFltRegUse are the peak per-class register counts
	// live (and so requiring a save) across any single call site.
	SavIntRegUse int32
	SavFltRegUse int32

	mu sync.Mutex
}

// NewCodeInfo wraps a freshly assembled (code, data segment) pair
// laid out contiguously in seg (data first, at offset 0; code
// starting at codeOffset) into an emitted-state CodeInfo. The caller
// (cacao.Compiler.Compile) is responsible for calling Publish, which
// makes the code executable and flushes the I-cache.
func NewCodeInfo(m *ir.Method, seg []byte, codeOffset int, staticData codeStaticData, patches []PatchReference, replacements []ReplacementPoint, frameSlotSize int32, regs RegisterAllocation) *CodeInfo {
	return &CodeInfo{
		Method:            m,
		state:             int32(StateEmitted),
		Code:              seg,
		Entry:             codeOffset,
		StaticData:        staticData,
		Patches:           patches,
		Replacements:      replacements,
		FrameSlotSize:     frameSlotSize,
		RegisterSaveCount: regs.SavIntRegUse + regs.SavFltRegUse,
		MemUse:            regs.MemUse,
		ArgIntRegUse:      regs.ArgIntRegUse,
		ArgFltRegUse:      regs.ArgFltRegUse,
		SavIntRegUse:      regs.SavIntRegUse,
		SavFltRegUse:      regs.SavFltRegUse,
	}
}

func (ci *CodeInfo) State() State { return State(atomic.LoadInt32(&ci.state)) }

func (ci *CodeInfo) setState(s State) { atomic.StoreInt32(&ci.state, int32(s)) }

// EntryPoint returns the absolute address compiled callers and the
// stub/trap machinery jump to.
func (ci *CodeInfo) EntryPoint() uintptr {
	if len(ci.Code) == 0 {
		return 0
	}
	return uintptrOf(&ci.Code[ci.Entry])
}

// Publish transitions a finished revision from "emitted" to "active",
// protecting it with a read-execute mapping so the code becomes
// callable, then flushes the instruction cache over it.
func (ci *CodeInfo) Publish() error {
	if err := platform.ProtectExecutable(ci.Code); err != nil {
		return err
	}
	platform.FlushInstructionCache(ci.Code)
	ci.setState(StateActive)
	return nil
}

// Invalidate transitions an active revision out of service: existing
// frames already running inside it keep executing (their return
// addresses still point into Code), but new dispatches must not enter
// it. A successor revision created by replacement calls this on the
// revision it supersedes.
func (ci *CodeInfo) Invalidate() {
	ci.setState(StateInvalidated)
}

// patchReferenceAt returns the patch reference covering codeOffset, if
// any, and reports whether it has already been applied.
func (ci *CodeInfo) patchReferenceAt(codeOffset int) (*PatchReference, bool) {
	ci.mu.Lock()
	defer ci.mu.Unlock()
	for i := range ci.Patches {
		if ci.Patches[i].CodeOffset == codeOffset {
			return &ci.Patches[i], ci.Patches[i].Applied
		}
	}
	return nil, false
}

// markPatched sets the idempotent "already patched" marker: a second
// thread racing the same unresolved site must observe this and skip
// re-patching.
func (ci *CodeInfo) markPatched(p *PatchReference) {
	ci.mu.Lock()
	defer ci.mu.Unlock()
	p.Applied = true
}

func uintptrOf(b *byte) uintptr {
	return uintptr(unsafe.Pointer(b))
}
