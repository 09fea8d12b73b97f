package compiler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cacao-jit/cacao/internal/asm"
)

func Test_isIntRegister(t *testing.T) {
	for _, r := range unreservedGeneralPurposeRegisters {
		require.True(t, isIntRegister(r))
	}
}

func Test_isVectorRegister(t *testing.T) {
	for _, r := range unreservedVectorRegisters {
		require.True(t, isVectorRegister(r))
	}
}

func TestValueLocationStack_basic(t *testing.T) {
	s := newValueLocationStack()
	// Push a stack value.
	loc := s.pushValueLocationOnStack()
	require.Equal(t, uint64(1), s.sp)
	require.Equal(t, uint64(0), loc.stackPointer)
	require.True(t, loc.onStack())

	// Push a register value.
	tmpReg := unreservedGeneralPurposeRegisters[0]
	loc = s.pushValueLocationOnRegister(tmpReg)
	require.Equal(t, uint64(2), s.sp)
	require.Equal(t, uint64(1), loc.stackPointer)
	require.Equal(t, tmpReg, loc.register)
	require.True(t, loc.onRegister())

	// markRegisterUsed.
	tmpReg2 := unreservedGeneralPurposeRegisters[1]
	s.markRegisterUsed(tmpReg2)
	_, used := s.usedRegisters[tmpReg2]
	require.True(t, used)

	// releaseRegister.
	s.releaseRegister(loc)
	_, stillUsed := s.usedRegisters[tmpReg]
	require.False(t, stillUsed)
	require.Equal(t, asm.NilRegister, loc.register)

	// Check the max stack pointer is tracked across pushes and pops.
	for i := 0; i < 1000; i++ {
		s.pushValueLocationOnStack()
	}
	for i := 0; i < 1000; i++ {
		s.pop()
	}
	require.Equal(t, uint64(1001), s.stackPointerCeil)
}

func TestValueLocationStack_takeFreeRegister(t *testing.T) {
	s := newValueLocationStack()
	r, ok := s.takeFreeRegister(registerTypeGeneralPurpose)
	require.True(t, ok)
	require.True(t, isIntRegister(r))

	for _, r := range unreservedGeneralPurposeRegisters {
		s.markRegisterUsed(r)
	}
	_, ok = s.takeFreeRegister(registerTypeGeneralPurpose)
	require.False(t, ok)

	r, ok = s.takeFreeRegister(registerTypeVector)
	require.True(t, ok)
	require.True(t, isVectorRegister(r))

	for _, r := range unreservedVectorRegisters {
		s.markRegisterUsed(r)
	}
	_, ok = s.takeFreeRegister(registerTypeVector)
	require.False(t, ok)
}

func TestValueLocationStack_takeStealTargetFromUsedRegister(t *testing.T) {
	s := newValueLocationStack()
	intReg := unreservedGeneralPurposeRegisters[0]
	floatReg := unreservedVectorRegisters[0]
	intLoc := s.pushValueLocationOnRegister(intReg)
	floatLoc := s.pushValueLocationOnRegister(floatReg)
	s.markRegisterUsed(intReg, floatReg)

	target, ok := s.takeStealTargetFromUsedRegister(registerTypeVector)
	require.True(t, ok)
	require.Equal(t, floatLoc, target)

	target, ok = s.takeStealTargetFromUsedRegister(registerTypeGeneralPurpose)
	require.True(t, ok)
	require.Equal(t, intLoc, target)

	popped := s.pop()
	require.Equal(t, floatLoc, popped)
	_, ok = s.takeStealTargetFromUsedRegister(registerTypeVector)
	require.False(t, ok)

	popped = s.pop()
	require.Equal(t, intLoc, popped)
	_, ok = s.takeStealTargetFromUsedRegister(registerTypeGeneralPurpose)
	require.False(t, ok)
}

func TestValueLocationStack_clonePreservesStateIndependently(t *testing.T) {
	s := newValueLocationStack()
	reg := unreservedGeneralPurposeRegisters[0]
	s.pushValueLocationOnRegister(reg)
	s.markRegisterUsed(reg)

	c := s.clone()
	require.Equal(t, s.sp, c.sp)
	require.Equal(t, s.stack[0].register, c.stack[0].register)

	c.pushValueLocationOnStack()
	require.NotEqual(t, s.sp, c.sp)
}
