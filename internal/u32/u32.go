// Package u32 provides little-endian encode/decode helpers for 32-bit
// values, used by the data segment.
package u32

import "encoding/binary"

// LeBytes encodes v as 4 little-endian bytes.
func LeBytes(v uint32) (ret [4]byte) {
	binary.LittleEndian.PutUint32(ret[:], v)
	return
}

// Le decodes 4 little-endian bytes at the head of b into a uint32.
func Le(b []byte) uint32 {
	return binary.LittleEndian.Uint32(b)
}
