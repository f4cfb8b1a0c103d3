package mem

import "sync"
import "sync/atomic"

import "limits"

// / PGSHIFT is the base-2 exponent for the page size.
const PGSHIFT uint = 12

// / PGSIZE is the size of a single page in bytes.
const PGSIZE int = 1 << PGSHIFT

// / PGOFFSET masks offsets within a page.
const PGOFFSET uintptr = 0xfff

// / PGMASK masks the page number of an address.
const PGMASK uintptr = ^(PGOFFSET)

// / Pa_t is an opaque handle to one physical user-pool frame. It is
// / only ever compared for identity or used to index Physmem_t's
// / internal bookkeeping; callers operate on frame contents through the
// / *Bytepg_t returned alongside it.
type Pa_t uintptr

// / Bytepg_t is a byte-addressed physical page: the "kva" of spec.md §6
// / (alloc_user_page/free_user_page), collapsed to a direct pointer
// / since this kernel has no separate kernel/user address space split
// / to map through.
type Bytepg_t [PGSIZE]uint8

// / Page_i abstracts physical page allocation, standing in for the
// / external alloc_user_page/free_user_page interface of spec.md §6.
type Page_i interface {
	AllocUserPage(zeroed bool) (*Bytepg_t, Pa_t, bool)
	FreeUserPage(Pa_t)
	Refup(Pa_t)
	Refdown(Pa_t) bool
	Refcnt(Pa_t) int
	Page(Pa_t) *Bytepg_t
}

type physpg_t struct {
	pg     Bytepg_t
	refcnt int32
	inuse  bool
}

// / Physmem_t manages the fixed-size pool of physical frames available
// / to user address spaces. Capacity is gated with an atomic take/give
// / counter (limits.Sysatomic_t) rather than letting the free list run
// / dry silently, so allocation failure is detected before scanning.
type Physmem_t struct {
	sync.Mutex
	pgs   []physpg_t
	free  []uint32 // indices of unused frames
	avail limits.Sysatomic_t
}

// / Zeropg is shared, read-only, zero-filled page content. The VM does
// / not map it: a never-written anonymous page gets its own zero-filled
// / frame when first claimed.
var Zeropg = &Bytepg_t{}

// / MkPhysmem allocates a user frame pool of n frames.
func MkPhysmem(n int) *Physmem_t {
	p := &Physmem_t{}
	p.pgs = make([]physpg_t, n)
	p.free = make([]uint32, n)
	for i := range p.free {
		p.free[i] = uint32(i)
	}
	p.avail = limits.Sysatomic_t(n)
	return p
}

// / NFrames reports the total capacity of the frame pool.
func (p *Physmem_t) NFrames() int {
	return len(p.pgs)
}

// / Avail reports the number of frames not currently allocated.
func (p *Physmem_t) Avail() int {
	return int(p.avail.Remain())
}

// / AllocUserPage allocates one physical frame. If zeroed, its content
// / is cleared before being handed to the caller; otherwise its prior
// / content (if any) is visible, matching biscuit's Refpg_new vs.
// / Refpg_new_nozero distinction.
func (p *Physmem_t) AllocUserPage(zeroed bool) (*Bytepg_t, Pa_t, bool) {
	if !p.avail.Take() {
		return nil, 0, false
	}
	p.Lock()
	defer p.Unlock()
	if len(p.free) == 0 {
		panic("avail/free desynced")
	}
	idx := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	pg := &p.pgs[idx]
	if pg.inuse {
		panic("double alloc")
	}
	pg.inuse = true
	pg.refcnt = 1
	if zeroed {
		pg.pg = Bytepg_t{}
	}
	return &pg.pg, Pa_t(idx), true
}

// / FreeUserPage releases a frame allocated with a refcount of exactly
// / one back-reference remaining; it is equivalent to Refdown but
// / panics if the frame was still shared, which would indicate a VM
// / bug (spec.md §7 kind 6).
func (p *Physmem_t) FreeUserPage(pa Pa_t) {
	if p.Refdown(pa) {
		return
	}
	panic("freed frame still referenced")
}

// / Refup increments a frame's reference count, used when a frame is
// / shared across a fork (spec.md §4.6).
func (p *Physmem_t) Refup(pa Pa_t) {
	pg := &p.pgs[int(pa)]
	if atomic.AddInt32(&pg.refcnt, 1) <= 1 {
		panic("refup of unreferenced frame")
	}
}

// / Refdown decrements a frame's reference count and releases it back
// / to the pool when it reaches zero. Returns true if the frame was
// / freed.
func (p *Physmem_t) Refdown(pa Pa_t) bool {
	pg := &p.pgs[int(pa)]
	c := atomic.AddInt32(&pg.refcnt, -1)
	if c < 0 {
		panic("refcount underflow")
	}
	if c > 0 {
		return false
	}
	p.Lock()
	pg.inuse = false
	p.free = append(p.free, uint32(pa))
	p.Unlock()
	p.avail.Give()
	return true
}

// / Refcnt returns the current reference count of a frame.
func (p *Physmem_t) Refcnt(pa Pa_t) int {
	return int(atomic.LoadInt32(&p.pgs[int(pa)].refcnt))
}

// / Page fetches the live backing storage for an allocated frame.
func (p *Physmem_t) Page(pa Pa_t) *Bytepg_t {
	return &p.pgs[int(pa)].pg
}
