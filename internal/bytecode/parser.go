// Package bytecode implements the bytecode parser: it decodes one
// method's bytecode into internal/ir instructions, marks basic-block
// boundaries, and builds the exception table, using a linear
// single-pass scan with deferred branch-target patching: raw bytecode
// PCs recorded during the decode are rewritten into block-relative
// branches once block boundaries are known.
package bytecode

import (
	"encoding/binary"
	"fmt"

	"github.com/cacao-jit/cacao/internal/classfile"
	"github.com/cacao-jit/cacao/internal/ir"
)

// VerifyError is returned for any malformed-bytecode condition: an
// out-of-range branch target, a branch into the middle of an
// instruction, an ill-formed switch, or code that runs past
// end-of-method.
type VerifyError struct{ Msg string }

func (e *VerifyError) Error() string { return "VerifyError: " + e.Msg }

type decoder struct {
	code     []byte
	pc       int32
	resolver classfile.ConstantPoolResolver

	instrs      []ir.Instruction
	instrPCs    []int32   // parallel to instrs: bytecode PC of each instruction
	pcToInstr   map[int32]int32 // bytecode PC -> instruction index, only at instruction starts
	blockStarts map[int32]bool
	line        int32
	lineMap     map[int32]int32 // instruction index -> source line, built incrementally
}

// Parse decodes mi.Code into an ir.Method. resolver may be nil, in
// which case every constant-pool reference is left unresolved
// (ir.FlagUnresolved) for the patcher to resolve lazily.
func Parse(mi *classfile.MethodInfo, resolver classfile.ConstantPoolResolver) (*ir.Method, error) {
	d := &decoder{
		code:        mi.Code,
		resolver:    resolver,
		pcToInstr:   map[int32]int32{},
		blockStarts: map[int32]bool{0: true}, // PC-0 instruction is always a block start
		lineMap:     map[int32]int32{},
	}

	for int(d.pc) < len(d.code) {
		start := d.pc
		d.pcToInstr[start] = int32(len(d.instrs))
		in, err := d.decodeOne()
		if err != nil {
			return nil, err
		}
		d.instrs = append(d.instrs, in)
		d.instrPCs = append(d.instrPCs, start)
	}

	for _, exc := range mi.ExceptionTable {
		if exc.StartPC < 0 || int(exc.EndPC) > len(d.code) || exc.HandlerPC < 0 || int(exc.HandlerPC) >= len(d.code) {
			return nil, &VerifyError{Msg: "exception table entry out of bounds"}
		}
		d.blockStarts[exc.StartPC] = true
		d.blockStarts[exc.EndPC] = true
		d.blockStarts[exc.HandlerPC] = true
	}

	blocks, pcToBlock, err := d.buildBlocks()
	if err != nil {
		return nil, err
	}

	if err := d.resolveBranchTargets(blocks, pcToBlock); err != nil {
		return nil, err
	}

	exceptions := make([]ir.ExceptionEntry, 0, len(mi.ExceptionTable))
	for _, exc := range mi.ExceptionTable {
		startBlock, ok1 := pcToBlock[exc.StartPC]
		endBlock, ok2 := pcToBlock[exc.EndPC]
		handlerBlock, ok3 := pcToBlock[exc.HandlerPC]
		if !ok1 || !ok2 || !ok3 {
			return nil, &VerifyError{Msg: "exception table entry does not land on a block boundary"}
		}
		exceptions = append(exceptions, ir.ExceptionEntry{
			StartPC: exc.StartPC, EndPC: exc.EndPC, HandlerPC: exc.HandlerPC,
			CatchType:    ir.ClassRef{Resolved: false, PoolIndex: exc.CatchType},
			StartBlock:   startBlock,
			EndBlock:     endBlock,
			HandlerBlock: handlerBlock,
		})
	}

	return &ir.Method{
		Instructions: d.instrs,
		Blocks:       blocks,
		PCToBlock:    pcToBlock,
		BlockStarts:  d.blockStarts,
		Exceptions:   exceptions,
		MaxStack:     mi.MaxStack,
		MaxLocals:    mi.MaxLocals,
	}, nil
}

// buildBlocks materializes BasicBlock records from the block-start
// bitmap accumulated during decodeOne, in increasing PC order.
func (d *decoder) buildBlocks() ([]*ir.BasicBlock, map[int32]int32, error) {
	starts := make([]int32, 0, len(d.blockStarts))
	for pc := range d.blockStarts {
		if int(pc) == len(d.code) {
			continue // end-of-code sentinel from an exception end-PC; not a real block
		}
		starts = append(starts, pc)
	}
	sortInt32s(starts)

	blocks := make([]*ir.BasicBlock, 0, len(starts))
	pcToBlock := make(map[int32]int32, len(starts))
	for i, pc := range starts {
		idx, ok := d.pcToInstr[pc]
		if !ok {
			return nil, nil, &VerifyError{Msg: fmt.Sprintf("branch into middle of an instruction at pc=%d", pc)}
		}
		var end int32
		if i+1 < len(starts) {
			nextIdx, ok := d.pcToInstr[starts[i+1]]
			if !ok {
				return nil, nil, &VerifyError{Msg: fmt.Sprintf("branch into middle of an instruction at pc=%d", starts[i+1])}
			}
			end = nextIdx
		} else {
			end = int32(len(d.instrs))
		}
		b := &ir.BasicBlock{StartPC: pc, Start: idx, End: end}
		pcToBlock[pc] = int32(i)
		blocks = append(blocks, b)
	}
	for i := 0; i+1 < len(blocks); i++ {
		blocks[i].Next = blocks[i+1]
	}
	return blocks, pcToBlock, nil
}

// resolveBranchTargets rewrites every branch/switch operand holding a
// raw bytecode PC (ir.KindImm) into a resolved ir.KindBlock index, and
// verifies every such PC lands on a recorded block start: branching
// into the middle of an instruction is a verifier error.
func (d *decoder) resolveBranchTargets(blocks []*ir.BasicBlock, pcToBlock map[int32]int32) error {
	resolve := func(target int32) (ir.Operand, error) {
		if target < 0 || int(target) > len(d.code) {
			return ir.Operand{}, &VerifyError{Msg: fmt.Sprintf("branch target %d out of bounds", target)}
		}
		bi, ok := pcToBlock[target]
		if !ok {
			return ir.Operand{}, &VerifyError{Msg: fmt.Sprintf("branch target %d is not a block start", target)}
		}
		return ir.Operand{Kind: ir.KindBlock, Index: bi}, nil
	}

	for i := range d.instrs {
		in := &d.instrs[i]
		switch in.Op {
		case ir.OpGoto, ir.OpIfEq, ir.OpIfNe, ir.OpIfLt, ir.OpIfGe, ir.OpIfGt, ir.OpIfLe,
			ir.OpIfICmpEq, ir.OpIfICmpNe, ir.OpIfICmpLt, ir.OpIfICmpGe, ir.OpIfICmpGt, ir.OpIfICmpLe,
			ir.OpIfACmpEq, ir.OpIfACmpNe, ir.OpIfNull, ir.OpIfNonNull:
			op, err := resolve(int32(in.Dst.Imm))
			if err != nil {
				return err
			}
			in.Dst = op
		case ir.OpTableSwitch, ir.OpLookupSwitch:
			st := in.Aux.(*ir.SwitchTable)
			for j, t := range st.Targets {
				op, err := resolve(int32(t.Imm))
				if err != nil {
					return err
				}
				st.Targets[j] = op
			}
			op, err := resolve(int32(st.Default.Imm))
			if err != nil {
				return err
			}
			st.Default = op
		}
	}
	return nil
}

func sortInt32s(s []int32) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

func (d *decoder) u8() (byte, error) {
	if int(d.pc) >= len(d.code) {
		return 0, &VerifyError{Msg: "instruction extends past end-of-code"}
	}
	b := d.code[d.pc]
	d.pc++
	return b, nil
}

func (d *decoder) u16() (uint16, error) {
	if int(d.pc)+2 > len(d.code) {
		return 0, &VerifyError{Msg: "instruction extends past end-of-code"}
	}
	v := binary.BigEndian.Uint16(d.code[d.pc:])
	d.pc += 2
	return v, nil
}

func (d *decoder) s32() (int32, error) {
	if int(d.pc)+4 > len(d.code) {
		return 0, &VerifyError{Msg: "instruction extends past end-of-code"}
	}
	v := int32(binary.BigEndian.Uint32(d.code[d.pc:]))
	d.pc += 4
	return v, nil
}

func markFallthrough(d *decoder, target int32) { d.blockStarts[target] = true }
