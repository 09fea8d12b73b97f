package compiler

import (
	"github.com/cacao-jit/cacao/internal/asm"
	"github.com/cacao-jit/cacao/internal/ir"
)

// compileDropRange adds instructions to drop the values on the target range
// from the value stack, in the architecture-independent way. The driver
// uses it for pop and pop2, passing a range over the top of the value
// stack.
func compileDropRange(c compiler, r *ir.InclusiveRange) (err error) {
	locationStack := c.runtimeValueLocationStack()
	if r == nil {
		return
	} else if r.Start == 0 {
		for i := 0; i <= r.End; i++ {
			if loc := locationStack.pop(); loc.onRegister() {
				locationStack.releaseRegister(loc)
			}
		}
		return
	}

	// liveValues must be pushed back after dropping the target range.
	liveValues := locationStack.stack[locationStack.sp-uint64(r.Start) : locationStack.sp]
	// dropValues are the values on the drop target range.
	dropValues := locationStack.stack[locationStack.sp-uint64(r.End) : locationStack.sp-uint64(r.Start)+1]
	for _, dv := range dropValues {
		if dv.onRegister() {
			locationStack.releaseRegister(dv)
		}
	}

	// These hold a spare register of the corresponding type, allocated
	// lazily the first time a live value on the memory stack needs to
	// be shuffled down past the dropped range.
	var gpTmp, vecTmp = asm.NilRegister, asm.NilRegister
	for _, l := range liveValues {
		if !l.onStack() {
			continue
		}
		switch l.registerType() {
		case registerTypeGeneralPurpose:
			if gpTmp == asm.NilRegister {
				if gpTmp, err = c.allocateRegister(registerTypeGeneralPurpose); err != nil {
					return err
				}
			}
		case registerTypeVector:
			if vecTmp == asm.NilRegister {
				if vecTmp, err = c.allocateRegister(registerTypeVector); err != nil {
					return err
				}
			}
		}
	}

	// Reset the stack pointer below the dropped range.
	locationStack.sp -= uint64(len(liveValues) + len(dropValues))

	// Push the live values back, now immediately above the new stack pointer.
	for _, live := range liveValues {
		previouslyOnStack := live.onStack()
		if previouslyOnStack {
			switch live.registerType() {
			case registerTypeGeneralPurpose:
				live.setRegister(gpTmp)
			case registerTypeVector:
				live.setRegister(vecTmp)
			}
			if err = c.compileLoadValueOnStackToRegister(live); err != nil {
				return err
			}
		}

		newLocation := locationStack.pushValueLocationOnRegister(live.register)

		if previouslyOnStack {
			// The value is parked on the shared temporary register;
			// release it back to its new memory-stack slot so the
			// temporary is free for the next live value.
			if err = c.compileReleaseRegisterToStack(newLocation); err != nil {
				return err
			}
		}
	}
	return
}
