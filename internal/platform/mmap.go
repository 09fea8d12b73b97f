// Package platform owns the OS-level primitives the JIT core needs
// that are not themselves part of the compiler pipeline: allocating
// and growing the executable code segment a codeinfo's machine code is
// written into, and mapping a no-access guard page (MmapGuardPage).
//
// Uses github.com/edsrzf/mmap-go for mapping the pages compiled code
// executes from, combined with golang.org/x/sys/unix for the mprotect
// calls mmap-go itself does not expose.
package platform

import (
	"fmt"

	"github.com/edsrzf/mmap-go"
	"golang.org/x/sys/unix"
)

// MmapCodeSegment allocates a fresh RWX anonymous mapping of at least
// size bytes. The code generator writes machine code into it directly;
// callers are expected to mprotect it to RX once a method's code is
// finalized (see ProtectExecutable).
func MmapCodeSegment(size int) ([]byte, error) {
	if size == 0 {
		size = 1
	}
	m, err := mmap.MapRegion(nil, size, mmap.RDWR|mmap.EXEC, mmap.ANON, 0)
	if err != nil {
		return nil, fmt.Errorf("platform: mmap code segment of %d bytes: %w", size, err)
	}
	return m, nil
}

// MunmapCodeSegment releases a mapping obtained from MmapCodeSegment or
// RemapCodeSegment.
func MunmapCodeSegment(code []byte) error {
	if len(code) == 0 {
		return nil
	}
	return mmap.MMap(code).Unmap()
}

// RemapCodeSegment grows an existing code segment to newSize, copying
// the old contents over. mmap-go (and mmap(2) on most platforms) offers
// no in-place grow, so this allocates a fresh mapping and releases the
// old one, mirroring CodeSegment.grow's doubling strategy.
func RemapCodeSegment(old []byte, newSize int) ([]byte, error) {
	next, err := MmapCodeSegment(newSize)
	if err != nil {
		return nil, err
	}
	copy(next, old)
	if old != nil {
		if err := MunmapCodeSegment(old); err != nil {
			return nil, err
		}
	}
	return next, nil
}

// ProtectExecutable mprotects a finalized code segment to read+execute,
// dropping write access once the code generator is done mutating it;
// callers flush the instruction cache over the same range before
// trusting the new bytes.
func ProtectExecutable(code []byte) error {
	if len(code) == 0 {
		return nil
	}
	return unix.Mprotect(code, unix.PROT_READ|unix.PROT_EXEC)
}

// MmapGuardPage maps one page of pageSize bytes as PROT_NONE at an
// address the kernel chooses and returns it so a test or embedder can
// Munmap it on shutdown. It does not map the first page of the address
// space, which the trap displacements address.
func MmapGuardPage(pageSize int) ([]byte, error) {
	m, err := mmap.MapRegion(nil, pageSize, mmap.RDWR, mmap.ANON, 0)
	if err != nil {
		return nil, fmt.Errorf("platform: mmap guard page: %w", err)
	}
	if err := unix.Mprotect(m, unix.PROT_NONE); err != nil {
		_ = m.Unmap()
		return nil, fmt.Errorf("platform: protect guard page: %w", err)
	}
	return m, nil
}
