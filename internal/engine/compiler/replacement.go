package compiler

// ReplacementPoint is one entry of the replacement-point table: a
// PC range within the compiled method's code plus, for each live
// variable in scope across that range, where it is stored (register
// or memory-stack slot) so an on-stack-replacement event can rebuild
// an equivalent interpreter frame.
type ReplacementPoint struct {
	// StartPC/EndPC bound the native code range this point covers,
	// as offsets from the method's entry point.
	StartPC, EndPC int32

	// Locations mirrors the valueLocationStack's live entries at the
	// point this was recorded, snapshotted by value so later code
	// generation doesn't mutate it in place.
	Locations []ReplacementLocation
}

// ReplacementLocation describes where one live value lives at a
// ReplacementPoint: Register holds the register number when the value
// is in a register, and -1 when it is in the memory-stack slot at
// StackOffset.
type ReplacementLocation struct {
	VarIndex    int32
	Register    int8
	StackOffset int32
}

// recordReplacementPoint snapshots the compiler's current value
// locations into a new ReplacementPoint spanning [startPC, endPC).
// Typical call sites are loop back-edges and method-call return
// addresses, where an on-stack-replacement trigger or a deoptimizing
// trap may need to resume execution in the interpreter.
func (c *amd64Compiler) recordReplacementPoint(startPC, endPC int32) {
	locs := c.locs
	snapshot := make([]ReplacementLocation, 0, locs.sp)
	for i := uint64(0); i < locs.sp; i++ {
		v := locs.stack[i]
		loc := ReplacementLocation{VarIndex: int32(i)}
		if v.onRegister() {
			loc.Register = int8(v.register)
		} else {
			loc.Register = -1
			loc.StackOffset = int32(c.spillOffset(v.stackPointer))
		}
		snapshot = append(snapshot, loc)
	}
	c.replacements = append(c.replacements, ReplacementPoint{
		StartPC:   startPC,
		EndPC:     endPC,
		Locations: snapshot,
	})
}
