// Package datasegment implements the data segment manager: the
// per-method pool of constants, resolved addresses, and branch targets
// referenced by negative-offset addressing from a compiled method's
// entry point, plus the deferred patch-callback bookkeeping needed
// because a value's final offset isn't known until the segment is
// sealed at the end of compilation.
//
// The deferred "add now, patch later" discipline mirrors the
// per-function constant pool wazero's amd64 assembler keeps for static
// SIMD operands (its constPool/maybeFlushConstants; this repository's
// internal/asm/amd64 has no such pool), generalized from "vector constants referenced by a MOVDQU operand"
// to "any scalar, address, or branch-target datum a compiled method's
// code stream can reference."
package datasegment

import (
	"github.com/cacao-jit/cacao/internal/u32"
	"github.com/cacao-jit/cacao/internal/u64"
)

// Kind identifies the Go-level type backing one entry in a Builder.
type Kind uint8

const (
	KindS4 Kind = iota
	KindAddress
	KindFloat
	KindDouble
	KindTarget
	KindLine
)

// entry is one value written into the segment, in insertion order.
// Builder always appends (CACAO's data segment only ever grows; values
// are never coalesced across method compilations).
type entry struct {
	kind  Kind
	bytes []byte
	// patch, if non-nil, is invoked once the segment is sealed and the
	// entry's final byte offset from the segment base is known. This is
	// how the code generator wires a negative-offset load instruction
	// to the datum it will read once the method's machine code and data
	// segment are laid out contiguously in the code cache.
	patch func(offset int)
}

// Builder accumulates one method's data segment while the code
// generator emits instructions that reference it. Offsets reported to
// patch callbacks are relative to the start of the sealed segment; the
// caller (the method's codeinfo) is responsible for translating that
// into a negative displacement from the method's entry point once the
// segment is placed immediately before the machine code in memory.
type Builder struct {
	entries []entry
	size    int
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder { return &Builder{} }

// AddS4 appends a 4-byte signed integer constant and returns a Ref
// whose Resolve method schedules patch to run with its final offset.
func (b *Builder) AddS4(v int32) Ref {
	raw := u32.LeBytes(uint32(v))
	return b.add(KindS4, raw[:])
}

// AddAddress appends an 8-byte absolute address (a resolved class,
// method, or field's runtime location) to the segment.
func (b *Builder) AddAddress(addr uintptr) Ref {
	raw := u64.LeBytes(uint64(addr))
	return b.add(KindAddress, raw[:])
}

// AddFloat appends a 4-byte IEEE-754 float constant.
func (b *Builder) AddFloat(bits uint32) Ref {
	raw := u32.LeBytes(bits)
	return b.add(KindFloat, raw[:])
}

// AddDouble appends an 8-byte IEEE-754 double constant.
func (b *Builder) AddDouble(bits uint64) Ref {
	raw := u64.LeBytes(bits)
	return b.add(KindDouble, raw[:])
}

// AddTarget reserves an 8-byte slot for a branch target (a
// tableswitch/lookupswitch jump address, or a replacement point's
// resume address) whose value is filled in later via Ref.Patch,
// independent of the segment-sealing offset callback.
func (b *Builder) AddTarget() Ref {
	buf := make([]byte, 8)
	return b.add(KindTarget, buf)
}

// AddLine appends a 4-byte source-line marker used by the stackframe-
// info chain to map a PC back to a bytecode line number.
func (b *Builder) AddLine(line int32) Ref {
	raw := u32.LeBytes(uint32(line))
	return b.add(KindLine, raw[:])
}

func (b *Builder) add(k Kind, raw []byte) Ref {
	idx := len(b.entries)
	b.entries = append(b.entries, entry{kind: k, bytes: raw})
	b.size += len(raw)
	return Ref{b: b, index: idx}
}

// Ref is a handle to one entry in a Builder, returned by the Add*
// methods so the code generator can register a patch callback before
// the segment is sealed.
type Ref struct {
	b     *Builder
	index int
}

// OnOffset registers fn to run once Seal has determined this entry's
// byte offset within the sealed segment.
func (r Ref) OnOffset(fn func(offset int)) {
	r.b.entries[r.index].patch = fn
}

// Patch overwrites this entry's bytes directly, for AddTarget refs
// whose value (a resolved branch address) becomes known only after
// the surrounding machine code has been laid out.
func (r Ref) Patch(raw []byte) {
	copy(r.b.entries[r.index].bytes, raw)
}

// Segment is the immutable, laid-out result of sealing a Builder.
type Segment struct {
	Bytes []byte
}

// Seal concatenates every entry's bytes into one contiguous buffer in
// insertion order, invokes each entry's registered offset callback
// with its final position, and returns the sealed Segment.
func (b *Builder) Seal() Segment {
	out := make([]byte, 0, b.size)
	for _, e := range b.entries {
		offset := len(out)
		out = append(out, e.bytes...)
		if e.patch != nil {
			e.patch(offset)
		}
	}
	return Segment{Bytes: out}
}

// Len reports the sealed segment's byte length without sealing it,
// so the code generator can reserve displacement fields ahead of time.
func (b *Builder) Len() int { return b.size }
