package compiler

import (
	amd64asm "github.com/cacao-jit/cacao/internal/asm/amd64"
	"github.com/cacao-jit/cacao/internal/ir"
)

// Trap displacements. A load through these offsets addresses the
// lowest page of the address space and so faults wherever that page is
// unmapped; internal/platform.MmapGuardPage maps its guard page at an
// address the kernel chooses, not at this page. The trap dispatcher
// recovers the faulting PC and classifies the trap kind from the
// displacement itself.
const (
	trapDisplacementNullPointer = 0x00
	trapDisplacementArithmetic  = 0x10
	trapDisplacementArrayBounds = 0x20
)

// PatcherKind identifies what kind of not-yet-resolved reference a
// PatchReference stands in for: one of the patcher functions
// (PATCHER_get_putstatic, PATCHER_builtin_new, ...) the runtime
// exposes for first-execution resolution.
type PatcherKind uint8

const (
	patcherGetPutStatic PatcherKind = iota
	patcherBuiltinNew
	patcherBuiltinNewArray
	patcherInvokeStaticSpecial
	patcherInvokeVirtual
	patcherInvokeInterface
	patcherCheckCastClass
	patcherInstanceOfClass
)

func (k PatcherKind) String() string {
	switch k {
	case patcherGetPutStatic:
		return "getputstatic"
	case patcherBuiltinNew:
		return "builtin_new"
	case patcherBuiltinNewArray:
		return "builtin_newarray"
	case patcherInvokeStaticSpecial:
		return "invokestatic_special"
	case patcherInvokeVirtual:
		return "invokevirtual"
	case patcherInvokeInterface:
		return "invokeinterface"
	case patcherCheckCastClass:
		return "checkcast"
	case patcherInstanceOfClass:
		return "instanceof"
	default:
		return "unknown"
	}
}

// PatchReference is one row of the patch-reference table: the
// code offset of the instruction or data-segment slot that must be
// rewritten once the referenced constant-pool entry resolves, which
// patcher function performs the rewrite, and the subject (class,
// field, or method) being resolved. Idempotency is tracked via
// Applied: a patcher that fires more than once for the same
// breakpoint (two threads racing the same lazily-resolved call site)
// must check this before mutating code.
type PatchReference struct {
	Kind    PatcherKind
	Subject ir.ClassRef
	// DataOffset is the data segment's length when recordPatch ran,
	// i.e. the offset of the next entry added. compileNew and
	// compileInvoke's invokestatic/invokespecial path add an
	// AddAddress(0) placeholder right after recordPatch, so for them it
	// names that slot; the other callers add no slot of their own.
	DataOffset int
	// CodeOffset is the byte offset, within the method's assembled code,
	// of the landing-pad marker emitted immediately before the
	// load/call sequence this patch covers. It is left at -1 until
	// amd64Compiler.compile's final Assemble() call fixes every node's
	// binary offset; the trap dispatcher looks patches up by this field
	// (CodeInfo.patchReferenceAt in codeinfo.go), matching the
	// (code_offset, patcher_id, subject, data_disp, saved_mcode) tuple
	// a patch reference represents.
	CodeOffset int
	// Instruction is always -1: recordPatch does not record which
	// ir.Instruction the patch reference belongs to.
	Instruction int

	Applied bool

	// node marks the landing-pad instruction recordPatch emitted so
	// CodeOffset can be resolved once the whole method is assembled.
	node asmNode
}

// asmNode is the subset of asm.Node recordPatch needs; declared here
// (rather than importing internal/asm directly) purely to avoid a
// second import alias, since internal/asm/amd64 re-exports the same
// interface via its Assembler's return types.
type asmNode interface {
	OffsetInBinary() uint64
}

// recordPatch appends a pending patch reference for in, keyed by the
// patcher that must eventually resolve it. recordPatch allocates no
// data-segment slot; compileNew and compileInvoke's invokestatic/
// invokespecial path add one immediately after this call, and the
// other callers add none (see DataOffset). A NOP landing-pad marks the patch site so
// its CodeOffset can be recovered once the method is fully assembled
// (asm.Node.OffsetInBinary is only meaningful post-Assemble).
func (c *amd64Compiler) recordPatch(kind PatcherKind, in *ir.Instruction) {
	// decodeFieldRef/decodeMethodRef/decodeClassRef all leave the
	// unresolved constant-pool index in S1; the analyzer never
	// rewrites S1 for any of these opcodes (it repurposes S2/S3/Dst
	// for the popped operand stack values instead), so S1 is still the
	// pool index here regardless of which opcode family this is.
	subject := ir.ClassRef{PoolIndex: uint16(in.S1.Index)}
	marker := c.asmBuilder.CompileStandAlone(amd64asm.NOP)
	c.patches = append(c.patches, PatchReference{
		Kind:        kind,
		Subject:     subject,
		DataOffset:  c.dataSeg.Len(),
		CodeOffset:  -1,
		Instruction: -1,
		node:        marker,
	})
}

// resolveCodeOffsets fills in CodeOffset for every recorded patch from
// its landing-pad node, once the method's final Assemble() has fixed
// every node's binary offset. Called by compile() before returning.
func (c *amd64Compiler) resolveCodeOffsets() {
	for i := range c.patches {
		if c.patches[i].node != nil {
			c.patches[i].CodeOffset = int(c.patches[i].node.OffsetInBinary())
		}
	}
}
