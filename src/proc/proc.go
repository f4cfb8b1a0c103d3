// Package proc models just enough of a thread's hardware context for
// the virtual memory subsystem: a simulated page table and the
// per-thread fields the fault handler consults (current stack extent,
// exit status, accounting).
package proc

import "sync"

import "accnt"
import "defs"
import "mem"

// / pte_t is one simulated page table entry: present/writable/dirty
// / bits plus the frame it maps to, standing in for the hardware PTE
// / format a real x86 page table would use.
type pte_t struct {
	pa      mem.Pa_t
	present bool
	writ    bool
	user    bool
	dirty   bool
	accessd bool
}

// / Pml4_t simulates a hardware page table: a map from virtual page
// / number to physical frame plus permission bits, standing in for the
// / four-level x86-64 paging structure biscuit's Pmap_t abstracts.
// / Addresses are rounded down to the containing page by every method.
type Pml4_t struct {
	sync.Mutex
	ptes map[uintptr]*pte_t
}

// / MkPml4 allocates an empty page table.
func MkPml4() *Pml4_t {
	return &Pml4_t{ptes: make(map[uintptr]*pte_t)}
}

func pgnum(va uintptr) uintptr {
	return va &^ mem.PGOFFSET
}

// / SetPage installs (or replaces) the mapping for the page containing
// / va.
func (p *Pml4_t) SetPage(va uintptr, pa mem.Pa_t, writable, user bool) {
	p.Lock()
	defer p.Unlock()
	p.ptes[pgnum(va)] = &pte_t{pa: pa, present: true, writ: writable, user: user}
}

// / GetPage looks up the mapping for the page containing va.
func (p *Pml4_t) GetPage(va uintptr) (mem.Pa_t, bool) {
	p.Lock()
	defer p.Unlock()
	e, ok := p.ptes[pgnum(va)]
	if !ok || !e.present {
		return 0, false
	}
	return e.pa, true
}

// / ClearPage removes the mapping for the page containing va, if any.
func (p *Pml4_t) ClearPage(va uintptr) {
	p.Lock()
	defer p.Unlock()
	delete(p.ptes, pgnum(va))
}

// / IsWritable reports whether the page containing va is currently
// / mapped writable.
func (p *Pml4_t) IsWritable(va uintptr) bool {
	p.Lock()
	defer p.Unlock()
	e, ok := p.ptes[pgnum(va)]
	return ok && e.present && e.writ
}

// / SetWritable changes the write permission of an existing mapping,
// / used to install (read-only-copy-on-write) or lift (handle_wp) write
// / protection without changing the frame it maps to.
func (p *Pml4_t) SetWritable(va uintptr, writable bool) {
	p.Lock()
	defer p.Unlock()
	if e, ok := p.ptes[pgnum(va)]; ok {
		e.writ = writable
	}
}

// / IsDirty reports the page containing va's dirty bit, read when
// / deciding whether to write a page back before eviction. It does not
// / clear the bit; ClearDirty does.
func (p *Pml4_t) IsDirty(va uintptr) bool {
	p.Lock()
	defer p.Unlock()
	e, ok := p.ptes[pgnum(va)]
	return ok && e.dirty
}

// / SetDirty marks the page containing va as written-to.
func (p *Pml4_t) SetDirty(va uintptr) {
	p.Lock()
	defer p.Unlock()
	if e, ok := p.ptes[pgnum(va)]; ok {
		e.dirty = true
	}
}

// / ClearDirty clears the dirty bit, done after a page's content has
// / been written back to swap or its file.
func (p *Pml4_t) ClearDirty(va uintptr) {
	p.Lock()
	defer p.Unlock()
	if e, ok := p.ptes[pgnum(va)]; ok {
		e.dirty = false
	}
}

// / Present reports whether the page containing va has any mapping at
// / all (i.e. a fault on it is a supplemental-page-table miss rather
// / than a permission fault).
func (p *Pml4_t) Present(va uintptr) bool {
	_, ok := p.GetPage(va)
	return ok
}

// / Thread_t is the subset of a schedulable thread's state the VM
// / subsystem needs: its page table, current stack pointer (for stack
// / growth heuristics) and accounting, plus an exit status latch.
type Thread_t struct {
	accnt.Accnt_t

	Tid     defs.Tid_t
	Pml4    *Pml4_t
	UserRsp uintptr

	mu         sync.Mutex
	exited     bool
	ExitStatus int
}

// / MkThread allocates a new thread with an empty page table.
func MkThread(tid defs.Tid_t) *Thread_t {
	return &Thread_t{Tid: tid, Pml4: MkPml4()}
}

// / MarkExited records the thread's exit status. Idempotent calls after
// / the first are ignored.
func (t *Thread_t) MarkExited(status int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.exited {
		return
	}
	t.exited = true
	t.ExitStatus = status
}

// / Exited reports whether the thread has begun exiting. The VM fault
// / handler does not consult it.
func (t *Thread_t) Exited() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.exited
}

// / intrlock serializes the critical sections IntrDisable/IntrEnable
// / bracket. The teaching kernel disables interrupts on the current
// / CPU for this; absent real interrupts, a global lock gives callers
// / the same mutual-exclusion guarantee for code that must not be
// / preempted mid-update (e.g. touching a thread's own page table
// / entry and the frame table together).
var intrlock sync.Mutex

// / IntrDisable begins a critical section.
func IntrDisable() {
	intrlock.Lock()
}

// / IntrEnable ends a critical section begun by IntrDisable.
func IntrEnable() {
	intrlock.Unlock()
}
