package vm

import "defs"

// / ForkCopy implements spec.md §4.6: deep-duplicate src's supplemental
// / page table into dst, one equivalent entry per flavor. Any failure
// / is fatal: the child's partially-built SPT is torn down and an error
// / is reported, matching the spec's "any failure during copy is fatal"
// / rule.
func (src *AS_t) ForkCopy(dst *AS_t) defs.Err_t {
	for _, pair := range src.Spt.ht.Elems() {
		p := pair.Value.(*Page_t)
		if err := src.copyOnePage(dst, p); err != 0 {
			dst.Spt.Kill()
			return err
		}
	}
	return 0
}

func (src *AS_t) copyOnePage(dst *AS_t, p *Page_t) defs.Err_t {
	switch p.Flavor {
	case FlavorUninit:
		np, err := dupUninit(p)
		if err != 0 {
			return err
		}
		if !dst.Spt.Insert(np) {
			return -defs.EINVAL
		}
		return 0
	case FlavorFile:
		dupFile, err := p.file.Duplicate()
		if err != 0 {
			return err
		}
		np := mkLazyFilePage(p.Va, dupFile, p.offset, p.readBytes, p.zeroBytes, p.Writable, p.mmapLength)
		if !dst.Spt.Insert(np) {
			return -defs.EINVAL
		}
		// File-backed pages are never shared across fork: force-install
		// immediately instead of leaving the child lazy (spec.md §4.6).
		return dst.doClaim(np)
	case FlavorAnon:
		return src.copyAnon(dst, p)
	}
	panic("bad flavor")
}

// / copyAnon implements spec.md §4.6's Anon case: share the parent's
// / resident frame with the child via r_cnt++ and a read-only mapping
// / in both processes (copy-on-write), or — if the parent's page is
// / not currently resident — give the child a fresh, pristine anon page
// / that will be lazily faulted in independently.
func (src *AS_t) copyAnon(dst *AS_t, p *Page_t) defs.Err_t {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.Frame == nil {
		np := mkAnonPage(p.Va, p.Writable)
		if !dst.Spt.Insert(np) {
			return -defs.EINVAL
		}
		return 0
	}

	np := mkAnonPage(p.Va, p.Writable)
	np.Frame = p.Frame
	p.Frame.addSharer(src.Spt.vm.Phys, np)
	if !dst.Spt.Insert(np) {
		np.Frame = nil
		src.Spt.vm.dropFrame(p.Frame, np)
		return -defs.EINVAL
	}
	src.Spt.vm.St.CowShares.Inc()

	dst.Spt.Pml4.SetPage(np.Va, p.Frame.Pa, false, true)
	if p.Writable {
		src.Spt.Pml4.SetWritable(p.Va, false)
	}
	return 0
}
