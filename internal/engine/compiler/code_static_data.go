package compiler

import "github.com/cacao-jit/cacao/internal/datasegment"

// codeStaticData is the sealed per-method data segment a compiler
// implementation produces alongside the method's machine code. It is
// placed immediately before the code in the mapped segment so that
// negative-offset addressing from the method's entry point can reach
// it; see CodeInfo.Code/Entry in codeinfo.go.
type codeStaticData = datasegment.Segment
