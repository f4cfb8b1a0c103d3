package vm

import "sync/atomic"

import "defs"
import "mem"
import "proc"

// / AS_t is a process's address space: its supplemental page table
// / paired with the thread record the fault handler consults for the
// / current user stack pointer and exit status (spec.md §6 "external
// / interfaces to the thread subsystem").
type AS_t struct {
	Spt    *Spt_t
	Thread *proc.Thread_t
}

// / MkAS creates an address space bound to t, with a fresh, empty
// / supplemental page table.
func MkAS(v *VM_t, t *proc.Thread_t) *AS_t {
	return &AS_t{Spt: MkSpt(v, t.Pml4), Thread: t}
}

// / TryHandleFault implements the fault handler decision table of
// / spec.md §4.4. fault_addr is the faulting virtual address; write and
// / notPresent mirror the CPU trap frame's bits.
func (as *AS_t) TryHandleFault(faultAddr uintptr, write, notPresent bool) defs.Err_t {
	as.Spt.vm.St.Faults.Inc()
	if faultAddr < USERMIN {
		return -defs.EFAULT
	}

	p, ok := as.Spt.Find(faultAddr)
	if ok {
		if !notPresent {
			if write && !p.Writable {
				return -defs.EFAULT
			}
			if write && p.Writable {
				return as.handleWP(p)
			}
			return -defs.EFAULT
		}
		return as.doClaim(p)
	}

	if inStackGrowthRange(faultAddr, as.Thread.UserRsp) {
		if err := as.stackGrowth(pageround(faultAddr)); err != 0 {
			return err
		}
		return 0
	}
	return -defs.EFAULT
}

// / inStackGrowthRange reports whether addr falls within one page below
// / the thread's captured user RSP and within STACK_LIMIT of
// / USER_STACK, the heuristic spec.md §4.4 uses to distinguish a
// / legitimate stack-extending push from a wild pointer (spec.md §8
// / scenario 4).
func inStackGrowthRange(addr, userRsp uintptr) bool {
	if userRsp == 0 {
		return false
	}
	if addr > USER_STACK || addr < USER_STACK-STACK_LIMIT {
		return false
	}
	if addr > userRsp {
		return false
	}
	return addr >= userRsp-uintptr(mem.PGSIZE)
}

// / doClaim implements spec.md §4.4's do_claim: obtain a frame, link it
// / to p, install the hardware mapping, and realize/read back p's
// / content via swap_in — the only place ordinary fault handling
// / performs backing-store I/O.
func (as *AS_t) doClaim(p *Page_t) defs.Err_t {
	as.Spt.vm.St.Claims.Inc()
	p.mu.Lock()
	defer p.mu.Unlock()

	// GetFrame may evict (disk write-back) and swapIn may read from
	// swap or file: both are suspension points (spec.md §5); charge the
	// faulting thread's blocked time to I/O rather than system time.
	ioStart := as.Thread.Now()
	defer as.Thread.Io_time(ioStart)

	f, err := as.Spt.vm.GetFrame()
	if err != 0 {
		return err
	}
	p.Frame = f
	f.addSharer(as.Spt.vm.Phys, p)

	as.Spt.Pml4.SetPage(p.Va, f.Pa, p.Writable, true)

	kva := as.Spt.vm.Phys.Page(f.Pa)
	if err := p.swapIn(kva); err != 0 {
		as.Spt.Pml4.ClearPage(p.Va)
		p.Frame = nil
		as.Spt.vm.dropFrame(f, p)
		return err
	}
	return 0
}

// / stackGrowth implements spec.md §4.4's stack_growth: insert a fresh,
// / writable anonymous page at addr without claiming it. The faulting
// / instruction re-executes, refaults on the new SPT entry, and claims
// / it through the ordinary not_present path.
func (as *AS_t) stackGrowth(addr uintptr) defs.Err_t {
	p := mkAnonPage(addr, true)
	if !as.Spt.Insert(p) {
		return -defs.EINVAL
	}
	return 0
}

// / handleWP implements spec.md §4.4's copy-on-write handler: detach p
// / from its shared frame, allocate a private one, copy the old
// / contents, and install a writable mapping. The old frame survives —
// / still correctly attached to whichever sharer(s) remain — if other
// / sharers remain; dropFrame repoints nothing itself, because the
// / frame's sharer set (not a single weak pointer) is what eviction
// / consults afterward.
func (as *AS_t) handleWP(p *Page_t) defs.Err_t {
	p.mu.Lock()
	defer p.mu.Unlock()

	old := p.Frame
	if old == nil {
		return -defs.EFAULT
	}
	if atomic.LoadInt32(&old.Rcnt) <= 1 {
		// not actually shared: just lift the write-protect.
		as.Spt.Pml4.SetWritable(p.Va, true)
		return 0
	}
	as.Spt.vm.St.CowBreaks.Inc()

	nf, err := as.Spt.vm.GetFrame()
	if err != 0 {
		return err
	}
	oldpg := as.Spt.vm.Phys.Page(old.Pa)
	newpg := as.Spt.vm.Phys.Page(nf.Pa)
	*newpg = *oldpg

	p.Frame = nf
	as.Spt.vm.dropFrame(old, p)
	nf.addSharer(as.Spt.vm.Phys, p)
	as.Spt.Pml4.SetPage(p.Va, nf.Pa, true, true)
	return 0
}
