package compiler

import "sync"

// StackframeInfo is one record of the per-thread chain: a marker
// left at a compiled/native ABI boundary so a stack walker or the GC
// can cross it without understanding the callee's frame layout.
type StackframeInfo struct {
	PV     uintptr // the frame's procedure value (entry point of its codeinfo or native stub)
	SP     uintptr
	RA     uintptr
	XPC    uintptr
	Parent *StackframeInfo
}

// threadChain is the stack of StackframeInfo records for one thread,
// linked through Parent. Go has no first-class OS-thread-local
// storage, so each chain is looked up by thread ID in chains (guarded
// by chainsMu), and every push, pop and walk on a chain also takes that
// chain's own mu; chain operations are not lock-free.
type threadChain struct {
	mu   sync.Mutex
	top  *StackframeInfo
}

var (
	chainsMu sync.Mutex
	chains   = map[int64]*threadChain{}
)

// chainFor returns (creating if needed) the calling thread's chain,
// keyed by id -- callers pass a stable per-thread identifier (e.g. the
// OS thread id the embedder's runtime already tracks for this
// execution context).
func chainFor(threadID int64) *threadChain {
	chainsMu.Lock()
	defer chainsMu.Unlock()
	c, ok := chains[threadID]
	if !ok {
		c = &threadChain{}
		chains[threadID] = c
	}
	return c
}

// PushStackframeInfo links a new record onto the top of threadID's
// chain and returns it so the
// caller can pass it back to PopStackframeInfo once the boundary is
// re-crossed in the other direction.
func PushStackframeInfo(threadID int64, pv, sp, ra, xpc uintptr) *StackframeInfo {
	c := chainFor(threadID)
	c.mu.Lock()
	defer c.mu.Unlock()
	sfi := &StackframeInfo{PV: pv, SP: sp, RA: ra, XPC: xpc, Parent: c.top}
	c.top = sfi
	return sfi
}

// PopStackframeInfo unlinks sfi from threadID's chain. sfi must be
// the current top (crossings nest strictly).
func PopStackframeInfo(threadID int64, sfi *StackframeInfo) {
	c := chainFor(threadID)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.top == sfi {
		c.top = sfi.Parent
	}
}

// WalkStackframes returns the live chain for threadID from the
// innermost crossing outward, for use by a stack walker that has just
// reached the boundary of a codeinfo's PC range.
func WalkStackframes(threadID int64) []*StackframeInfo {
	c := chainFor(threadID)
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*StackframeInfo
	for sfi := c.top; sfi != nil; sfi = sfi.Parent {
		out = append(out, sfi)
	}
	return out
}
