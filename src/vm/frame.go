package vm

import "container/list"
import "sync"
import "sync/atomic"

import "defs"
import "mem"

// / Frame_t is one physical user-pool page currently in use, shared
// / between however many Page_t's reference it (spec.md §3). sharers
// / tracks every Page_t currently mapped to the frame — not just the
// / last one touched — so that a partial COW break (one sharer
// / detaching to a private copy while others remain) leaves the frame
// / pointing at a page that is still actually attached to it. Rcnt
// / mirrors len(sharers) for lock-free reads (eviction's skip check,
// / tests); the frame's real refcount is mem.Page_i's, via Refup/Refdown
// / below.
type Frame_t struct {
	Pa      mem.Pa_t
	mu      sync.Mutex
	sharers []*Page_t
	Rcnt    int32
}

// / addSharer records p as an additional owner of an already-resident
// / frame (spec.md §4.6's fork sharing) and bumps the physical frame's
// / own reference count to match — the frame must not be freed while
// / any sharer remains attached to it.
func (f *Frame_t) addSharer(phys mem.Page_i, p *Page_t) {
	f.mu.Lock()
	first := len(f.sharers) == 0
	f.sharers = append(f.sharers, p)
	atomic.StoreInt32(&f.Rcnt, int32(len(f.sharers)))
	f.mu.Unlock()
	if !first {
		phys.Refup(f.Pa)
	}
}

// / removeSharer detaches p from f, used when p stops referencing the
// / frame through a COW break or destroy (eviction does not call it: the
// / victim's physical page is handed straight to a new Frame_t). Returns the number of
// / sharers still attached afterward. If others remain, the physical
// / frame's refcount is only decremented (Refdown); if p was the last
// / one, the frame is actually released back to the pool (FreeUserPage,
// / which itself asserts the physical refcount was exactly one).
func (f *Frame_t) removeSharer(phys mem.Page_i, p *Page_t) int {
	f.mu.Lock()
	for i, s := range f.sharers {
		if s == p {
			f.sharers = append(f.sharers[:i], f.sharers[i+1:]...)
			break
		}
	}
	n := len(f.sharers)
	atomic.StoreInt32(&f.Rcnt, int32(n))
	f.mu.Unlock()
	if n == 0 {
		phys.FreeUserPage(f.Pa)
		return 0
	}
	phys.Refdown(f.Pa)
	if phys.Refcnt(f.Pa) != n {
		invariant("frame sharer count diverged from physical refcount")
	}
	return n
}

// / anySharer returns one of the frame's current sharers — used by
// / eviction to locate a page whose content must be written back.
// / Eviction only ever picks frames with at most one sharer (Open
// / Question (b)'s "skip shared frames" resolution), so which sharer
// / comes back is never ambiguous in practice.
func (f *Frame_t) anySharer() *Page_t {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sharers) == 0 {
		return nil
	}
	return f.sharers[0]
}

// / FrameTable_t is the kernel-wide FIFO of resident frames eviction
// / picks a victim from, front = oldest (spec.md §4.3).
type FrameTable_t struct {
	sync.Mutex
	l    *list.List
	elem map[mem.Pa_t]*list.Element
}

func mkFrameTable() *FrameTable_t {
	return &FrameTable_t{l: list.New(), elem: make(map[mem.Pa_t]*list.Element)}
}

func (ft *FrameTable_t) push(f *Frame_t) {
	ft.Lock()
	ft.elem[f.Pa] = ft.l.PushBack(f)
	ft.Unlock()
}

func (ft *FrameTable_t) remove(f *Frame_t) {
	ft.Lock()
	if e, ok := ft.elem[f.Pa]; ok {
		ft.l.Remove(e)
		delete(ft.elem, f.Pa)
	}
	ft.Unlock()
}

// / GetFrame allocates a user-pool page, evicting a victim if the pool
// / is exhausted, and registers the fresh frame at the tail of the
// / FIFO (spec.md §4.3). The physical page pool hands back a frame with
// / a refcount of one; the caller's first addSharer call consumes that
// / implicit reference rather than bumping it again.
func (v *VM_t) GetFrame() (*Frame_t, defs.Err_t) {
	if _, pa, ok := v.Phys.AllocUserPage(false); ok {
		f := &Frame_t{Pa: pa}
		v.Frames.push(f)
		return f, 0
	}
	pa, err := v.evictFrame()
	if err != 0 {
		return nil, err
	}
	f := &Frame_t{Pa: pa}
	v.Frames.push(f)
	return f, 0
}

// / dropFrame detaches p from f (spec.md §3 invariant 6) and, once f has
// / no sharers left, removes it from the frame table; removeSharer has
// / already returned the physical page to the pool in that case.
func (v *VM_t) dropFrame(f *Frame_t, p *Page_t) {
	if f.removeSharer(v.Phys, p) > 0 {
		return
	}
	v.Frames.remove(f)
}

// / evictFrame implements spec.md §4.3's eviction algorithm: pop the
// / front of the FIFO, skipping any frame still shared (r_cnt > 1,
// / per Open Question (b)'s "skip" resolution), swap out its owning
// / page, clear the hardware mapping, and hand the bare frame back to
// / the caller to reuse.
func (v *VM_t) evictFrame() (mem.Pa_t, defs.Err_t) {
	v.Frames.Lock()
	var victim *Frame_t
	var elem *list.Element
	for e := v.Frames.l.Front(); e != nil; e = e.Next() {
		f := e.Value.(*Frame_t)
		if atomic.LoadInt32(&f.Rcnt) <= 1 {
			victim = f
			elem = e
			break
		}
	}
	if victim == nil {
		v.Frames.Unlock()
		return 0, -defs.ENOMEM
	}
	v.Frames.l.Remove(elem)
	delete(v.Frames.elem, victim.Pa)
	v.Frames.Unlock()
	v.St.Evictions.Inc()

	if p := victim.anySharer(); p != nil {
		p.mu.Lock()
		err := p.swapOut()
		if err != 0 {
			p.mu.Unlock()
			return 0, err
		}
		p.spt.Pml4.ClearPage(p.Va)
		p.mu.Unlock()
	}
	return victim.Pa, 0
}
