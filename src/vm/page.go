package vm

import "sync"

import "defs"
import "fdops"
import "fs"
import "mem"

// / flavor_t tags which concrete backing-store behavior a Page_t has.
// / Uninit is a placeholder: the page mutates into Anon or File in
// / place, at the same address and the same Spt_t slot, the first time
// / it is faulted.
type flavor_t int

const (
	FlavorUninit flavor_t = iota
	FlavorAnon
	FlavorFile
)

func (f flavor_t) String() string {
	switch f {
	case FlavorUninit:
		return "uninit"
	case FlavorAnon:
		return "anon"
	case FlavorFile:
		return "file"
	}
	return "?"
}

// / Page_t is the per-process bookkeeping record for one page-sized
// / chunk of virtual address space. Its identity (Va, its slot in the
// / owning Spt_t) stays fixed across its lifetime even though Flavor
// / changes in place on first fault.
type Page_t struct {
	mu sync.Mutex

	spt *Spt_t

	Va       uintptr
	Flavor   flavor_t
	Writable bool
	Frame    *Frame_t

	// Uninit: realize into target, then run init exactly once.
	target flavor_t
	init   func(p *Page_t, kva *mem.Bytepg_t) defs.Err_t

	// Anon
	hasSlot bool
	slot    int

	// File
	file       fdops.FileOps_i
	offset     int
	readBytes  int
	zeroBytes  int
	mmapLength int
	pageOff    int // lazy-anon only: byte offset within the page where file content begins

	// execRelease, if set, releases a deny_write hold on an
	// executable's backing file (spec.md §6); fired exactly once, on
	// realization or on destroy while still Uninit.
	execRelease func()
}

// / mkAnonPage creates an already-realized, never-written anonymous
// / page: no frame, no swap slot, logically zero (spec.md §3 invariant
// / 2). Used directly by stack growth, which does not go through the
// / Uninit lazy-load path.
func mkAnonPage(va uintptr, writable bool) *Page_t {
	return &Page_t{Va: va, Flavor: FlavorAnon, Writable: writable}
}

// / mkLazyAnonPage creates an Uninit page that realizes into Anon on
// / first fault, loading read_bytes from (file, offset) at byte pageOff
// / within the frame and zero-filling everything before and after it,
// / exactly once — the lazily-loaded executable segment case of
// / spec.md §4.5. pageOff is nonzero only for a segment's first chunk
// / when the segment's virtual address is not itself page-aligned
// / (loader.Segment_t.PageOff). After realization the page behaves as
// / an ordinary anonymous page: later evictions go to the swap disk,
// / not back to file.
func mkLazyAnonPage(va uintptr, file fdops.FileOps_i, offset, readBytes, zeroBytes int, writable bool) *Page_t {
	return mkLazyAnonPageAt(va, file, offset, readBytes, zeroBytes, 0, writable)
}

func mkLazyAnonPageAt(va uintptr, file fdops.FileOps_i, offset, readBytes, zeroBytes, pageOff int, writable bool) *Page_t {
	p := &Page_t{Va: va, Flavor: FlavorUninit, target: FlavorAnon, Writable: writable}
	p.file = file
	p.offset = offset
	p.readBytes = readBytes
	p.zeroBytes = zeroBytes
	p.pageOff = pageOff
	p.init = func(pg *Page_t, kva *mem.Bytepg_t) defs.Err_t {
		for i := 0; i < pg.pageOff && i < len(kva); i++ {
			kva[i] = 0
		}
		err := loadFileAt(kva, pg.file, pg.offset, pg.pageOff, pg.readBytes, pg.zeroBytes)
		pg.file.Close()
		pg.file = nil
		if pg.execRelease != nil {
			pg.execRelease()
			pg.execRelease = nil
		}
		return err
	}
	return p
}

// / mkLazyFilePage creates an Uninit page that realizes into File on
// / first fault. Because File.swap_in always re-reads (file, offset)
// / the same way, the one-shot realization and every later claim share
// / the same logic (fileSwapIn) — see swap_in below.
func mkLazyFilePage(va uintptr, file fdops.FileOps_i, offset, readBytes, zeroBytes int, writable bool, mmapLength int) *Page_t {
	p := &Page_t{Va: va, Flavor: FlavorUninit, target: FlavorFile, Writable: writable}
	p.file = file
	p.offset = offset
	p.readBytes = readBytes
	p.zeroBytes = zeroBytes
	p.mmapLength = mmapLength
	p.init = func(pg *Page_t, kva *mem.Bytepg_t) defs.Err_t {
		return fileSwapIn(pg, kva)
	}
	return p
}

// / dupUninit rebuilds an equivalent still-lazy page for the fork child
// / from a parent page that has not yet been realized, duplicating its
// / file handle (spec.md §4.6 "duplicate the aux closure, including
// / reopening any file it references").
func dupUninit(p *Page_t) (*Page_t, defs.Err_t) {
	var dupFile fdops.FileOps_i
	if p.file != nil {
		var err defs.Err_t
		dupFile, err = p.file.Duplicate()
		if err != 0 {
			return nil, err
		}
	}
	switch p.target {
	case FlavorAnon:
		return mkLazyAnonPageAt(p.Va, dupFile, p.offset, p.readBytes, p.zeroBytes, p.pageOff, p.Writable), 0
	case FlavorFile:
		return mkLazyFilePage(p.Va, dupFile, p.offset, p.readBytes, p.zeroBytes, p.Writable, p.mmapLength), 0
	}
	panic("bad uninit target")
}

// / isMmapRegionStart reports whether p carries an mmap_length, the
// / check munmap applies to its argument (spec.md §4.5). Every page of
// / an mmap region carries the region's length, so this does not tell
// / the region's first page apart from its later pages.
func (p *Page_t) isMmapRegionStart() bool {
	return p.mmapLength != 0
}

// / loadFileInto reads read_bytes from (file, offset) into kva and
// / zero-fills the trailing zero_bytes. A short read is an error
// / (spec.md §4.1).
func loadFileInto(kva *mem.Bytepg_t, file fdops.FileOps_i, offset, readBytes, zeroBytes int) defs.Err_t {
	if readBytes > 0 {
		n, err := file.ReadAt(kva[:readBytes], offset)
		if err != 0 {
			return err
		}
		if n != readBytes {
			return -defs.EIO
		}
	}
	for i := readBytes; i < readBytes+zeroBytes && i < len(kva); i++ {
		kva[i] = 0
	}
	return 0
}

// / loadFileAt is loadFileInto generalized with a nonzero starting
// / offset within the page, for an executable segment chunk whose
// / virtual address is not itself page-aligned (loader.Segment_t's
// / first chunk): bytes before pageOff are left zeroed by the caller,
// / readBytes are read starting at pageOff, and zeroBytes trail them.
func loadFileAt(kva *mem.Bytepg_t, file fdops.FileOps_i, offset, pageOff, readBytes, zeroBytes int) defs.Err_t {
	if readBytes > 0 {
		n, err := file.ReadAt(kva[pageOff:pageOff+readBytes], offset)
		if err != 0 {
			return err
		}
		if n != readBytes {
			return -defs.EIO
		}
	}
	start := pageOff + readBytes
	for i := start; i < start+zeroBytes && i < len(kva); i++ {
		kva[i] = 0
	}
	return 0
}

// / swapIn realizes p's contents into kva, the sole place backing-store
// / I/O happens during ordinary fault handling (spec.md §4.4).
func (p *Page_t) swapIn(kva *mem.Bytepg_t) defs.Err_t {
	switch p.Flavor {
	case FlavorUninit:
		target := p.target
		init := p.init
		p.Flavor = target
		if init != nil {
			return init(p, kva)
		}
		return 0
	case FlavorAnon:
		return anonSwapIn(p, kva)
	case FlavorFile:
		return fileSwapIn(p, kva)
	}
	panic("bad flavor")
}

// / swapOut writes p's resident frame back to its backing store and
// / detaches the frame, or reports failure (spec.md §4.1). Uninit pages
// / never reach here: they have no frame until realized.
func (p *Page_t) swapOut() defs.Err_t {
	switch p.Flavor {
	case FlavorAnon:
		return anonSwapOut(p)
	case FlavorFile:
		return fileSwapOut(p)
	}
	panic("swap_out of uninit page")
}

// / destroy tears down p's flavor-specific state: frees a swap slot,
// / writes back a dirty file page, releases any frame, and closes any
// / open file handle. Called by Spt_t.Kill on process exit and directly
// / by munmap.
func (p *Page_t) destroy() {
	switch p.Flavor {
	case FlavorUninit:
		if p.file != nil {
			p.file.Close()
		}
		if p.execRelease != nil {
			p.execRelease()
			p.execRelease = nil
		}
	case FlavorAnon:
		anonDestroy(p)
	case FlavorFile:
		fileDestroy(p)
	}
}

// / anonSwapIn implements Anon.swap_in (spec.md §4.1): reads the swap
// / slot back if one is recorded, otherwise the page was never written
// / and its frame is zero-filled here (GetFrame hands out frames with
// / whatever content they last held).
func anonSwapIn(p *Page_t, kva *mem.Bytepg_t) defs.Err_t {
	if !p.hasSlot {
		*kva = mem.Bytepg_t{}
		return 0
	}
	slot := p.slot
	if err := p.spt.vm.SwapBits.readSlot(p.spt.vm.Swap, slot, kva); err != 0 {
		return err
	}
	p.spt.vm.SwapBits.free(slot)
	p.hasSlot = false
	p.slot = 0
	p.spt.vm.St.SwapIns.Inc()
	return 0
}

// / anonSwapOut implements Anon.swap_out (spec.md §4.1): claim a free
// / swap slot and write the frame's content there.
func anonSwapOut(p *Page_t) defs.Err_t {
	kva := p.spt.vm.Phys.Page(p.Frame.Pa)
	slot, err := p.spt.vm.SwapBits.alloc()
	if err != 0 {
		return err
	}
	if err := p.spt.vm.SwapBits.writeSlot(p.spt.vm.Swap, slot, kva); err != 0 {
		p.spt.vm.SwapBits.free(slot)
		return err
	}
	p.hasSlot = true
	p.slot = slot
	p.Frame = nil
	p.spt.vm.St.SwapOuts.Inc()
	return 0
}

// / anonDestroy implements Anon.destroy (spec.md §4.1).
func anonDestroy(p *Page_t) {
	p.spt.Pml4.ClearPage(p.Va)
	if p.hasSlot {
		p.spt.vm.SwapBits.free(p.slot)
		p.hasSlot = false
	}
	if p.Frame != nil {
		p.spt.vm.dropFrame(p.Frame, p)
		p.Frame = nil
	}
}

// / fileSwapIn implements File.swap_in (spec.md §4.1): read read_bytes
// / from (file, offset) under the file-system mutex and zero the rest.
func fileSwapIn(p *Page_t, kva *mem.Bytepg_t) defs.Err_t {
	fs.Filesys_lock.Lock()
	defer fs.Filesys_lock.Unlock()
	return loadFileInto(kva, p.file, p.offset, p.readBytes, p.zeroBytes)
}

// / fileSwapOut implements File.swap_out (spec.md §4.1): write back iff
// / the hardware dirty bit is set, then disconnect the frame (the file
// / remains the backing store, no swap slot is used).
func fileSwapOut(p *Page_t) defs.Err_t {
	if p.spt.Pml4.IsDirty(p.Va) {
		if err := writeBack(p); err != 0 {
			return err
		}
		p.spt.Pml4.ClearDirty(p.Va)
	}
	p.Frame = nil
	return 0
}

func writeBack(p *Page_t) defs.Err_t {
	if p.readBytes == 0 {
		return 0
	}
	fs.Filesys_lock.Lock()
	defer fs.Filesys_lock.Unlock()
	kva := p.spt.vm.Phys.Page(p.Frame.Pa)
	n, err := p.file.WriteAt(kva[:p.readBytes], p.offset)
	if err != 0 {
		return err
	}
	if n != p.readBytes {
		return -defs.EIO
	}
	return 0
}

// / fileDestroy implements File.destroy (spec.md §4.1): write back like
// / swap_out, then release the frame, clear the mapping, and close the
// / reopened file handle.
func fileDestroy(p *Page_t) {
	if p.Frame != nil && p.spt.Pml4.IsDirty(p.Va) {
		writeBack(p)
	}
	p.spt.Pml4.ClearPage(p.Va)
	if p.Frame != nil {
		p.spt.vm.dropFrame(p.Frame, p)
		p.Frame = nil
	}
	if p.file != nil {
		p.file.Close()
	}
}
