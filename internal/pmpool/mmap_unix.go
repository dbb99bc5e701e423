//go:build unix

package pmpool

import (
	"os"

	"golang.org/x/sys/unix"
)

// mmapFile maps the first size bytes of f for reading and writing. isPmem
// is always false on this path: detecting a true DAX mapping (MAP_SYNC on a
// DAX-backed file) is out of scope here, so every mapping is treated as a
// regular file requiring explicit msync, matching the C original's
// non-libpmem fallback path.
func mmapFile(f *os.File, size uint64) (data []byte, isPmem bool, err error) {
	data, err = unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, false, err
	}
	return data, false, nil
}

func (p *Pool) unmap() error {
	if p.data == nil {
		return nil
	}
	err := unix.Munmap(p.data)
	p.data = nil
	return err
}

// msync flushes [offset, offset+length) to the backing file. sync selects
// MS_SYNC (block until durable) versus MS_ASYNC (schedule and return).
// msync requires a page-aligned start address, so the range is widened down
// to the containing page boundary.
func (p *Pool) msync(offset, length uint64, sync bool) error {
	if length == 0 {
		return nil
	}
	pageSize := uint64(os.Getpagesize())
	alignedStart := offset - offset%pageSize
	end := offset + length
	if end > uint64(len(p.data)) {
		end = uint64(len(p.data))
	}
	flags := unix.MS_ASYNC
	if sync {
		flags = unix.MS_SYNC
	}
	return unix.Msync(p.data[alignedStart:end], flags)
}
