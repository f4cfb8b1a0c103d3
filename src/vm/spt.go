package vm

import "hashtable"
import "mem"
import "proc"

// / sptBuckets sizes the per-process page table's hash table; a
// / process with more resident pages than this merely grows its
// / average chain length, it does not fail.
const sptBuckets = 64

// / Spt_t is one process's supplemental page table: a hash-indexed set
// / of Page_t keyed by virtual address (spec.md §3, §4.2).
type Spt_t struct {
	vm   *VM_t
	Pml4 *proc.Pml4_t
	ht   *hashtable.Hashtable_t
}

// / MkSpt creates an empty supplemental page table bound to a process's
// / hardware page table.
func MkSpt(v *VM_t, pml4 *proc.Pml4_t) *Spt_t {
	return &Spt_t{vm: v, Pml4: pml4, ht: hashtable.MkHash(sptBuckets)}
}

func pageround(va uintptr) uintptr {
	return va & mem.PGMASK
}

// / Find rounds va down to its page boundary and looks up the Page_t
// / there, if any (spec.md §4.2).
func (s *Spt_t) Find(va uintptr) (*Page_t, bool) {
	v, ok := s.ht.Get(pageround(va))
	if !ok {
		return nil, false
	}
	return v.(*Page_t), true
}

// / Insert adds p only if no entry exists for p.Va yet; it reports
// / whether the insertion happened (spec.md §4.2, §3 invariant 5: no
// / two entries share a va).
func (s *Spt_t) Insert(p *Page_t) bool {
	p.Va = pageround(p.Va)
	p.spt = s
	_, inserted := s.ht.Set(p.Va, p)
	return inserted
}

// / Remove unlinks the page at va from the table without running its
// / destroy logic (spec.md §4.2).
func (s *Spt_t) Remove(p *Page_t) {
	s.ht.Del(p.Va)
}

// / Kill tears down every page in the table, running destroy on each,
// / for process exit. Per spec.md §4.2 the hash must not be mutated
// / while iterating; Elems takes a point-in-time snapshot first.
func (s *Spt_t) Kill() {
	for _, pair := range s.ht.Elems() {
		p := pair.Value.(*Page_t)
		p.destroy()
		s.ht.Del(p.Va)
	}
}

// / Size reports the number of pages currently tracked.
func (s *Spt_t) Size() int {
	return s.ht.Size()
}
