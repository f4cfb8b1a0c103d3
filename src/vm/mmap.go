package vm

import "defs"
import "fdops"
import "mem"
import "util"

// / MAP_FAILED is the sentinel Mmap returns on invalid arguments
// / (spec.md §4.5, §7 kind 5).
const MAP_FAILED = ^uintptr(0)

// / Mmap implements spec.md §4.5's mmap: reopens file once to obtain an
// / independent position, then inserts one lazily-loaded File-flavored
// / Uninit page per page-sized chunk of length. Returns MAP_FAILED
// / without side effects on any constraint violation.
func (as *AS_t) Mmap(addr uintptr, length int, writable bool, file fdops.FileOps_i, offset int) (uintptr, defs.Err_t) {
	if addr == 0 || addr&mem.PGOFFSET != 0 {
		return MAP_FAILED, -defs.EINVAL
	}
	if length <= 0 {
		return MAP_FAILED, -defs.EINVAL
	}
	if file == nil {
		return MAP_FAILED, -defs.EINVAL
	}
	flen, err := file.Size()
	if err != 0 {
		return MAP_FAILED, err
	}
	if flen == 0 {
		return MAP_FAILED, -defs.EINVAL
	}

	npages := util.Roundup(length, mem.PGSIZE) / mem.PGSIZE
	for i := 0; i < npages; i++ {
		if _, ok := as.Spt.Find(addr + uintptr(i*mem.PGSIZE)); ok {
			return MAP_FAILED, -defs.EINVAL
		}
	}

	reopened, err := file.Reopen()
	if err != 0 {
		return MAP_FAILED, err
	}

	for i := 0; i < npages; i++ {
		pgva := addr + uintptr(i*mem.PGSIZE)
		foff := offset + i*mem.PGSIZE

		// read_bytes is bounded by the file's actual length, not the
		// requested mapping length: a mapping may extend past EOF, in
		// which case the tail is zero-filled and never written back
		// (spec.md §8 scenario 6).
		readBytes := flen - foff
		if readBytes > mem.PGSIZE {
			readBytes = mem.PGSIZE
		}
		if readBytes < 0 {
			readBytes = 0
		}
		zeroBytes := mem.PGSIZE - readBytes

		fh, ferr := reopened.Duplicate()
		if ferr != 0 {
			reopened.Close()
			return MAP_FAILED, ferr
		}
		p := mkLazyFilePage(pgva, fh, foff, readBytes, zeroBytes, writable, length)
		if !as.Spt.Insert(p) {
			invariant("mmap: vetted range not actually free")
		}
	}
	reopened.Close()
	return addr, 0
}

// / Munmap implements spec.md §4.5's munmap: addr must be the start of
// / an mmap region. The check only confirms that addr's page carries
// / mmap_length, which every page of a region does; the pages from addr
// / up to addr+mmap_length are the ones unmapped. Every page of the
// / region is written back if dirty, unmapped, and removed from the
// / SPT; zero-padded trailing bytes are never written back because
// / writeBack only ever touches read_bytes, not zero_bytes.
func (as *AS_t) Munmap(addr uintptr) defs.Err_t {
	p0, ok := as.Spt.Find(addr)
	if !ok || !p0.isMmapRegionStart() {
		return -defs.EINVAL
	}
	length := p0.mmapLength
	if length == 0 {
		return -defs.EINVAL
	}

	npages := util.Roundup(length, mem.PGSIZE) / mem.PGSIZE
	for i := 0; i < npages; i++ {
		pgva := addr + uintptr(i*mem.PGSIZE)
		p, ok := as.Spt.Find(pgva)
		if !ok {
			continue
		}
		p.destroy()
		as.Spt.Remove(p)
	}
	return 0
}
