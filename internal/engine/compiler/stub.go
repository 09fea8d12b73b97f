package compiler

import (
	"encoding/binary"
	"fmt"
	"unsafe"

	"github.com/cacao-jit/cacao/internal/asm"
	amd64asm "github.com/cacao-jit/cacao/internal/asm/amd64"
	"github.com/cacao-jit/cacao/internal/ir"
	"github.com/cacao-jit/cacao/internal/platform"
)

// CompilerStub is the lazy-compile trampoline: a three-word data
// area (compiler entry address, method pointer, codeinfo placeholder)
// immediately preceding a short code sequence that loads the jit_entry
// word and jumps to it. The stub code does not load the method pointer;
// it stays in the data area. The data layout
// mirrors CodeInfo's "owning method at a fixed small negative offset"
// convention so the trap dispatcher can treat a stub and a compiled
// method uniformly when recovering the method from a PV.
type CompilerStub struct {
	Method      *ir.Method
	jitEntry    uintptr
	Code        []byte // data area followed by the trampoline instructions
	DataOffset  int    // byte offset of [jit_entry, method, codeinfo] within Code
	EntryOffset int    // byte offset of the first trampoline instruction
}

// stub data layout: word 0 = jit_entry, word 1 = method pointer, word
// 2 = codeinfo placeholder.
const (
	stubWordJITEntry = 0
	stubWordMethod   = 8
	stubWordCodeInfo = 16
	stubDataSize     = 24
)

// NewCompilerStub builds the per-method stub: callers that dispatch
// through the method's stubroutine before
// it has been compiled land here, which jumps to jitEntry.
// CompilerStub.Overwrite replaces that word with a compiled entry
// point.
func NewCompilerStub(m *ir.Method, jitEntry uintptr) (*CompilerStub, error) {
	asmImpl, err := newStubAssembler()
	if err != nil {
		return nil, err
	}

	// Load the jit_entry word (at data[-stubDataSize]) into a scratch
	// register and jump to it; the method pointer is recovered by
	// jit_entry itself from the same fixed negative offset, mirroring
	// how a compiled method's own header is read by the trap dispatcher.
	asmImpl.CompileMemoryToRegister(amd64asm.MOVQ, regDataSeg, -stubDataSize+stubWordJITEntry, regScratch0)
	asmImpl.CompileJumpToRegister(amd64asm.JMP, regScratch0)

	code, err := asmImpl.Assemble()
	if err != nil {
		return nil, err
	}

	full := make([]byte, stubDataSize+len(code))
	binary.LittleEndian.PutUint64(full[stubWordMethod:stubWordMethod+8], uint64(uintptr(unsafe.Pointer(m))))
	copy(full[stubDataSize:], code)

	seg, err := platform.MmapCodeSegment(len(full))
	if err != nil {
		return nil, err
	}
	copy(seg, full)
	binary.LittleEndian.PutUint64(seg[stubWordJITEntry:stubWordJITEntry+8], uint64(jitEntry))
	if err := platform.ProtectExecutable(seg); err != nil {
		return nil, err
	}

	return &CompilerStub{
		Method:      m,
		jitEntry:    jitEntry,
		Code:        seg,
		DataOffset:  0,
		EntryOffset: stubDataSize,
	}, nil
}

func newStubAssembler() (amd64asm.Assembler, error) {
	a, err := amd64asm.NewAssembler(asm.NilRegister)
	if err != nil {
		return nil, err
	}
	asmImpl, ok := a.(amd64asm.Assembler)
	if !ok {
		return nil, fmt.Errorf("compiler: amd64 assembler does not implement Assembler")
	}
	return asmImpl, nil
}

// EntryPoint returns the address a caller's invoke sequence should
// dispatch to while this method is unresolved.
func (s *CompilerStub) EntryPoint() uintptr {
	return uintptr(unsafe.Pointer(&s.Code[s.EntryOffset]))
}

// Overwrite replaces this stub's jit_entry word with a compiled
// method's entry point, so future dispatches through this PV land
// directly in compiled code instead of re-entering the JIT.
func (s *CompilerStub) Overwrite(entry uintptr) {
	binary.LittleEndian.PutUint64(s.Code[stubWordJITEntry:stubWordJITEntry+8], uint64(entry))
	platform.FlushInstructionCache(s.Code)
}

// NativeStub is the bridge from the JIT ABI to a C-ABI-callable
// native method: it shifts the integer argument registers to leave
// room for JNIEnv* as argument 0 and, for static methods, the class
// pointer as argument 1, then tail-jumps to the native function. It
// does not register a stackframe-info, save the return value, call
// codegen_finish_native_call, or branch into an exception handler.
type NativeStub struct {
	Method      *ir.Method
	NativeFunc  uintptr
	Static      bool
	Code        []byte
	EntryOffset int
}

// nativeArgRegisters is this core's reduced native-ABI argument
// register order, matching compileCallBuiltin's AX/CX/DX/BX
// convention.
var nativeArgRegisters = []asm.Register{amd64asm.REG_AX, amd64asm.REG_CX, amd64asm.REG_DX, amd64asm.REG_BX}

// NewNativeStub assembles the bridge sequence described above. Integer
// argument registers are shifted right by one (instance methods) or
// two (static methods) slots to make room for the prepended JNIEnv*
// and, for static methods, the class pointer -- both filled in by
// codegen_start_native_call before this bridge's body runs.
func NewNativeStub(m *ir.Method, nativeFunc uintptr, static bool) (*NativeStub, error) {
	asmImpl, err := newStubAssembler()
	if err != nil {
		return nil, err
	}

	shift := 1
	if static {
		shift = 2
	}
	for i := len(nativeArgRegisters) - 1; i >= shift; i-- {
		asmImpl.CompileRegisterToRegister(amd64asm.MOVQ, nativeArgRegisters[i-shift], nativeArgRegisters[i])
	}

	entryReg, err := firstUnusedArgRegister(shift)
	if err != nil {
		return nil, err
	}
	asmImpl.CompileConstToRegister(amd64asm.MOVQ, int64(nativeFunc), entryReg)
	asmImpl.CompileJumpToRegister(amd64asm.JMP, entryReg)

	code, err := asmImpl.Assemble()
	if err != nil {
		return nil, err
	}
	seg, err := platform.MmapCodeSegment(len(code))
	if err != nil {
		return nil, err
	}
	copy(seg, code)
	if err := platform.ProtectExecutable(seg); err != nil {
		return nil, err
	}
	return &NativeStub{Method: m, NativeFunc: nativeFunc, Static: static, Code: seg, EntryOffset: 0}, nil
}

// firstUnusedArgRegister picks a scratch register outside the
// shifted argument window for holding the native function's address
// immediately before the tail jump.
func firstUnusedArgRegister(shift int) (asm.Register, error) {
	if shift >= len(nativeArgRegisters) {
		return asm.NilRegister, fmt.Errorf("compiler: native stub shift %d exceeds argument register window", shift)
	}
	return regScratch0, nil
}

// EntryPoint returns the bridge's callable address.
func (s *NativeStub) EntryPoint() uintptr {
	return uintptr(unsafe.Pointer(&s.Code[s.EntryOffset]))
}
