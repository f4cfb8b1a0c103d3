package vm

import (
	"testing"

	"defs"
	"disk"
	"fdops"
	"mem"
	"proc"
)

func mkTestAS(t *testing.T, nframes int, swapSectors int) (*VM_t, *AS_t) {
	t.Helper()
	phys := mem.MkPhysmem(nframes)
	var swap disk.Disk_i
	if swapSectors > 0 {
		swap = disk.MkMemDisk(swapSectors)
	}
	v := MkVM(phys, swap)
	th := proc.MkThread(1)
	as := MkAS(v, th)
	return v, as
}

func fillPage(t *testing.T, v *VM_t, p *Page_t, b byte) {
	t.Helper()
	if p.Frame == nil {
		t.Fatalf("fillPage: page at %#x has no resident frame", p.Va)
	}
	kva := v.Phys.Page(p.Frame.Pa)
	for i := range kva {
		kva[i] = b
	}
	p.spt.Pml4.SetDirty(p.Va)
}

func checkPage(t *testing.T, v *VM_t, p *Page_t, want byte) {
	t.Helper()
	if p.Frame == nil {
		t.Fatalf("checkPage: page at %#x has no resident frame", p.Va)
	}
	kva := v.Phys.Page(p.Frame.Pa)
	for i, b := range kva {
		if b != want {
			t.Fatalf("checkPage: byte %d = %#x, want %#x", i, b, want)
		}
	}
}

// TestLazyLoad exercises the Uninit→Anon lazy-loader path of spec.md
// §4.5: a page inserted with a backing file and no resident frame reads
// that file's content on first claim.
func TestLazyLoad(t *testing.T) {
	v, as := mkTestAS(t, 4, 0)

	const va = 0x400000
	content := make([]byte, mem.PGSIZE)
	for i := range content {
		content[i] = 0x7a
	}
	file := &memFileStub{data: content}

	p := mkLazyAnonPage(va, file, 0, len(content), 0, true)
	if !as.Spt.Insert(p) {
		t.Fatalf("insert failed")
	}

	if err := as.TryHandleFault(va, false, true); err != 0 {
		t.Fatalf("claim failed: %v", err)
	}
	got, ok := as.Spt.Find(va)
	if !ok {
		t.Fatalf("page vanished after claim")
	}
	if got.Flavor != FlavorAnon {
		t.Fatalf("flavor after realization = %v, want anon", got.Flavor)
	}
	checkPage(t, v, got, 0x7a)

	// a write to an already-writable, unshared page just lifts the
	// write-protect; it must not fail or duplicate the frame.
	if err := as.TryHandleFault(va, true, false); err != 0 {
		t.Fatalf("write after claim failed: %v", err)
	}
}

// TestStackGrowth checks the heuristic of spec.md §8 scenario 4: a
// fault one page below the captured RSP grows the stack, but the same
// address with a deeper RSP does not.
func TestStackGrowth(t *testing.T) {
	_, as := mkTestAS(t, 4, 0)

	faultAddr := uintptr(USER_STACK - mem.PGSIZE - 4)

	as.Thread.UserRsp = USER_STACK - 8
	if err := as.TryHandleFault(faultAddr, true, true); err != 0 {
		t.Fatalf("expected stack growth to succeed, got %v", err)
	}
	if _, ok := as.Spt.Find(faultAddr); !ok {
		t.Fatalf("stack page was not inserted")
	}

	as2 := MkAS(as.Spt.vm, proc.MkThread(2))
	as2.Thread.UserRsp = USER_STACK - 3*uintptr(mem.PGSIZE)
	if err := as2.TryHandleFault(faultAddr, true, true); err == 0 {
		t.Fatalf("expected stack growth to fail with a deep RSP, got success")
	}
}

// TestFaultBelowUsermin checks the first row of the decision table: an
// address below USERMIN is never a legitimate fault.
func TestFaultBelowUsermin(t *testing.T) {
	_, as := mkTestAS(t, 4, 0)
	if err := as.TryHandleFault(0, false, true); err == 0 {
		t.Fatalf("expected fault below USERMIN to fail")
	}
}

// TestWriteToReadOnlyFails checks the real-protection-fault row: a
// present, read-only page faulted on a write (not a COW situation)
// fails outright.
func TestWriteToReadOnlyFails(t *testing.T) {
	_, as := mkTestAS(t, 4, 0)
	const va = 0x410000
	p := mkAnonPage(va, false)
	as.Spt.Insert(p)
	if err := as.TryHandleFault(va, false, true); err != 0 {
		t.Fatalf("claim failed: %v", err)
	}
	if err := as.TryHandleFault(va, true, false); err == 0 {
		t.Fatalf("expected write to read-only page to fail")
	}
}

// memFileStub is a minimal fdops.FileOps_i backed by an in-memory byte
// slice, used where a test only needs a readable file and never
// exercises Duplicate/Reopen (fork and mmap tests use fs.MkMemFile
// instead, for its real refcounting).
type memFileStub struct {
	data   []byte
	closed bool
}

func (f *memFileStub) ReadAt(buf []uint8, off int) (int, defs.Err_t) {
	if off >= len(f.data) {
		return 0, 0
	}
	n := copy(buf, f.data[off:])
	return n, 0
}
func (f *memFileStub) WriteAt(buf []uint8, off int) (int, defs.Err_t) {
	end := off + len(buf)
	if end > len(f.data) {
		grown := make([]byte, end)
		copy(grown, f.data)
		f.data = grown
	}
	return copy(f.data[off:], buf), 0
}
func (f *memFileStub) Size() (int, defs.Err_t) { return len(f.data), 0 }
func (f *memFileStub) Reopen() (fdops.FileOps_i, defs.Err_t) {
	return f, 0
}
func (f *memFileStub) Duplicate() (fdops.FileOps_i, defs.Err_t) {
	return f, 0
}
func (f *memFileStub) Close() defs.Err_t      { f.closed = true; return 0 }
func (f *memFileStub) DenyWrite() defs.Err_t  { return 0 }
func (f *memFileStub) AllowWrite() defs.Err_t { return 0 }

var _ fdops.FileOps_i = (*memFileStub)(nil)
