package platform

// FlushInstructionCache is a no-op on amd64: the architecture keeps
// its instruction cache coherent with writes through the data cache,
// so self-modifying code (the patcher's doing) becomes visible to
// later fetches without an explicit flush. Kept as a named call site
// so a future non-x86 backend has somewhere to put one.
func FlushInstructionCache(code []byte) {}
