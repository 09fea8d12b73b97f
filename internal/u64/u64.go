// Package u64 provides little-endian encode/decode helpers for 64-bit
// values, used by the data segment.
package u64

import "encoding/binary"

// LeBytes encodes v as 8 little-endian bytes.
func LeBytes(v uint64) (ret [8]byte) {
	binary.LittleEndian.PutUint64(ret[:], v)
	return
}

// Le decodes 8 little-endian bytes at the head of b into a uint64.
func Le(b []byte) uint64 {
	return binary.LittleEndian.Uint64(b)
}
