// Package analyzer implements the stack/variable analyzer: it iterates
// basic blocks to a fixed point simulating the operand stack, assigns
// variable identities to stack positions, and performs local peephole
// rewrites (constant folding, dup/swap lowering, argument pre-coloring).
//
// The fixpoint driver simulates the operand stack one instruction at a
// time, pushing and popping a per-block frame and merging states at
// branch/label points, as a standalone pass that runs ahead of code
// generation rather than interleaved with it.
package analyzer

import (
	"fmt"

	"github.com/cacao-jit/cacao/internal/ir"
)

// VerifyError mirrors bytecode.VerifyError for analysis-time failures
// (stack underflow/overflow, depth mismatch at a merge, type mismatch
// at a merge, splitting a category-2 value).
type VerifyError struct{ Msg string }

func (e *VerifyError) Error() string { return "VerifyError: " + e.Msg }

// blockState tracks analysis progress along the lattice
// {unreached < reached < finished}.
type blockState uint8

const (
	unreached blockState = iota
	reached
	finished
)

// frame is the simulated operand-stack image live during analysis of a
// single block.
type frame struct {
	stack []ir.ValueType // simulated operand stack, top-of-stack last
	slots []int32        // parallel: the ir.Method.Slots index backing each stack position
}

func (f *frame) clone() *frame {
	c := &frame{stack: append([]ir.ValueType(nil), f.stack...), slots: append([]int32(nil), f.slots...)}
	return c
}

// Analyzer runs the fixpoint analysis over a parsed ir.Method.
type Analyzer struct {
	m *ir.Method

	states   []blockState
	inFrames []*frame // recorded in-stack per block, set the first time it's reached
}

// New constructs an Analyzer for m. m.Blocks/Instructions/Exceptions
// must already be populated by internal/bytecode.Parse.
func New(m *ir.Method) *Analyzer {
	return &Analyzer{
		m:        m,
		states:   make([]blockState, len(m.Blocks)),
		inFrames: make([]*frame, len(m.Blocks)),
	}
}

// Analyze runs the fixpoint iteration to completion, assigning
// ir.Slot entries to m.Slots and rewriting operands from KindImm/raw
// stack positions to KindVar slot indices. It returns a *VerifyError
// for any ill-formed merge (depth or type mismatch) or malformed
// stack-shuffle pattern it detects along the way.
func (a *Analyzer) Analyze() error {
	m := a.m
	if len(m.Blocks) == 0 {
		return nil
	}

	// Block 0 is reached with an empty in-stack; every exception
	// handler's entry is reached with a one-element in-stack holding
	// the exception reference.
	a.states[0] = reached
	a.inFrames[0] = &frame{}
	for _, exc := range m.Exceptions {
		if a.states[exc.HandlerBlock] == unreached {
			a.states[exc.HandlerBlock] = reached
			a.inFrames[exc.HandlerBlock] = &frame{
				stack: []ir.ValueType{ir.TypeAddress},
				slots: []int32{a.newSlot(ir.TypeAddress, ir.VarTemporary, 0)},
			}
			m.Blocks[exc.HandlerBlock].InDepth = 1
		}
	}

	changed := true
	for changed {
		changed = false
		for bi, b := range m.Blocks {
			if b.Flags&ir.BlockDeleted != 0 {
				continue
			}
			if a.states[bi] != reached {
				continue
			}
			out, err := a.analyzeBlock(int32(bi), b)
			if err != nil {
				return err
			}
			a.states[bi] = finished
			b.Flags |= ir.BlockFinished | ir.BlockReached

			for _, succ := range a.successors(b) {
				if a.states[succ] == unreached {
					a.states[succ] = reached
					a.inFrames[succ] = out.clone()
					m.Blocks[succ].InDepth = int32(len(out.stack))
					changed = true
				} else {
					prev := a.inFrames[succ]
					if len(prev.stack) != len(out.stack) {
						return &VerifyError{Msg: fmt.Sprintf("stack depth mismatch merging into block %d", succ)}
					}
					for i := range prev.stack {
						if prev.stack[i] != out.stack[i] {
							return &VerifyError{Msg: fmt.Sprintf("stack type mismatch merging into block %d", succ)}
						}
					}
				}
			}
		}
	}

	// Dead code: blocks never reached are permitted; mark them deleted
	// so the generator emits nothing for them.
	for bi, st := range a.states {
		if st == unreached {
			m.Blocks[bi].Flags |= ir.BlockDeleted
		} else if st == reached {
			// A block reached but never fully analyzed (shouldn't happen
			// given the loop above always finishes a reached block before
			// leaving it in 'reached', but keep the invariant checked).
			return &VerifyError{Msg: fmt.Sprintf("block %d left unfinished", bi)}
		}
	}
	return nil
}

func (a *Analyzer) newSlot(t ir.ValueType, kind ir.VarKind, index int32) int32 {
	a.m.Slots = append(a.m.Slots, ir.Slot{Type: t, Kind: kind, Index: index, Register: -1})
	return int32(len(a.m.Slots) - 1)
}

// successors returns the block indices control may fall into from b:
// the fall-through (if b doesn't end in an unconditional transfer), any
// branch targets recorded on its terminal instruction, and switch
// targets.
func (a *Analyzer) successors(b *ir.BasicBlock) []int32 {
	if b.End <= b.Start {
		return nil
	}
	last := a.m.Instructions[b.End-1]
	var out []int32
	switch last.Op {
	case ir.OpGoto:
		return []int32{last.Dst.Index}
	case ir.OpTableSwitch, ir.OpLookupSwitch:
		st := last.Aux.(*ir.SwitchTable)
		out = append(out, st.Default.Index)
		for _, t := range st.Targets {
			out = append(out, t.Index)
		}
		return out
	case ir.OpIReturn, ir.OpLReturn, ir.OpFReturn, ir.OpDReturn, ir.OpAReturn, ir.OpReturn, ir.OpAThrow:
		return nil
	case ir.OpIfEq, ir.OpIfNe, ir.OpIfLt, ir.OpIfGe, ir.OpIfGt, ir.OpIfLe,
		ir.OpIfICmpEq, ir.OpIfICmpNe, ir.OpIfICmpLt, ir.OpIfICmpGe, ir.OpIfICmpGt, ir.OpIfICmpLe,
		ir.OpIfACmpEq, ir.OpIfACmpNe, ir.OpIfNull, ir.OpIfNonNull,
		ir.OpIfEqZ, ir.OpIfNeZ, ir.OpLCmpIfEqZ:
		out = append(out, last.Dst.Index)
	}
	// fall-through to the next block in program order, if any.
	if b.Next != nil {
		for i, blk := range a.m.Blocks {
			if blk == b.Next {
				out = append(out, int32(i))
				break
			}
		}
	}
	return out
}
