// Package cacao implements the CACAO-style JVM JIT compiler core:
// bytecode parsing (internal/bytecode) into IR (internal/ir), stack
// analysis (internal/analyzer), machine-code emission with a per-method
// data segment (internal/datasegment) and deferred patch/replacement
// bookkeeping, and the trap-dispatch contract compiled code relies on
// at run time (internal/engine/compiler).
//
// This package is the root driver: Compile takes a parsed method and
// produces a published CodeInfo revision ready to be entered.
package cacao

import (
	"fmt"

	"github.com/cacao-jit/cacao/internal/engine/compiler"
	"github.com/cacao-jit/cacao/internal/ir"
	"github.com/cacao-jit/cacao/internal/platform"
)

// Compiler drives the JIT pipeline. amd64 is the only implemented
// backend; NewCompiler does not check GOARCH.
type Compiler struct {
	synchronized bool
	static       bool
}

// Option configures a Compiler.
type Option func(*Compiler)

// Synchronized marks compiled methods as needing the monitor-enter/
// exit wrapper around the method body.
func Synchronized(static bool) Option {
	return func(c *Compiler) {
		c.synchronized = true
		c.static = static
	}
}

// NewCompiler returns a Compiler configured by opts.
func NewCompiler(opts ...Option) *Compiler {
	c := &Compiler{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile runs the full code generation pipeline against m: emits
// native code and a sealed data segment, lays both out in a fresh
// executable mapping, flushes the instruction cache, and publishes the
// resulting compiler.CodeInfo as active (emitted -> active). On error m's state reverts to "needs compilation"
// implicitly: no CodeInfo is returned and no VM-visible state is
// touched.
func (c *Compiler) Compile(m *ir.Method) (*compiler.CodeInfo, error) {
	code, staticData, frameSlots, patches, replacements, regs, err := compiler.CompileAMD64(m, c.synchronized, c.static)
	if err != nil {
		return nil, fmt.Errorf("cacao: compile: %w", err)
	}

	total := len(staticData.Bytes) + len(code)
	seg, err := platform.MmapCodeSegment(total)
	if err != nil {
		return nil, fmt.Errorf("cacao: mmap code segment: %w", err)
	}
	copy(seg, staticData.Bytes)
	copy(seg[len(staticData.Bytes):], code)

	ci := compiler.NewCodeInfo(m, seg, len(staticData.Bytes), staticData, patches, replacements, frameSlots, regs)
	if c.synchronized {
		ci.Flags |= compiler.FlagSynchronized
	}
	if err := ci.Publish(); err != nil {
		return nil, fmt.Errorf("cacao: publish: %w", err)
	}
	return ci, nil
}
