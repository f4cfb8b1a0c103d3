package vm

import (
	"testing"

	"fs"
	"mem"
	"proc"
)

// TestForkCOW exercises spec.md §8 scenario 5: a parent writes to a
// resident anonymous page, forks, and the child observes the same
// content through a shared, read-only frame; a write by either side
// breaks the sharing without disturbing the other.
func TestForkCOW(t *testing.T) {
	v, parent := mkTestAS(t, 8, 0)

	const va = 0x700000
	p := mkAnonPage(va, true)
	parent.Spt.Insert(p)
	if err := parent.TryHandleFault(va, false, true); err != 0 {
		t.Fatalf("parent claim failed: %v", err)
	}
	pg, _ := parent.Spt.Find(va)
	fillPage(t, v, pg, 'X')

	child := MkAS(v, proc.MkThread(2))
	if err := parent.ForkCopy(child); err != 0 {
		t.Fatalf("fork copy failed: %v", err)
	}

	cp, ok := child.Spt.Find(va)
	if !ok {
		t.Fatalf("child missing forked page")
	}
	if cp.Frame != pg.Frame {
		t.Fatalf("child does not share parent's frame immediately after fork")
	}
	if pg.Frame.Rcnt != 2 {
		t.Fatalf("shared frame Rcnt = %d, want 2", pg.Frame.Rcnt)
	}
	if child.Spt.Pml4.IsWritable(va) {
		t.Fatalf("child's COW mapping must start read-only")
	}
	if parent.Spt.Pml4.IsWritable(va) {
		t.Fatalf("parent's mapping must be write-protected once shared")
	}

	checkPage(t, v, cp, 'X')

	// Child writes: breaks sharing, gets a private frame.
	if err := child.TryHandleFault(va, true, false); err != 0 {
		t.Fatalf("child COW break failed: %v", err)
	}
	cp, _ = child.Spt.Find(va)
	if cp.Frame == pg.Frame {
		t.Fatalf("child still shares parent's frame after writing")
	}
	fillKva := v.Phys.Page(cp.Frame.Pa)
	for i := range fillKva {
		fillKva[i] = 'Y'
	}

	// Parent must still see its original content, and the frame it
	// still owns alone now has Rcnt back to 1.
	checkPage(t, v, pg, 'X')
	if pg.Frame.Rcnt != 1 {
		t.Fatalf("parent's frame Rcnt after child's COW break = %d, want 1", pg.Frame.Rcnt)
	}

	// A subsequent parent write just lifts its own write-protect
	// (no longer shared) rather than copying again.
	beforeBreaks := v.St.CowBreaks.Get()
	if err := parent.TryHandleFault(va, true, false); err != 0 {
		t.Fatalf("parent write after child's break failed: %v", err)
	}
	if v.St.CowBreaks.Get() != beforeBreaks {
		t.Fatalf("parent write triggered an unnecessary COW copy")
	}
	checkPage(t, v, pg, 'X')
}

// TestForkNonResidentAnon exercises spec.md §4.6's fallback: if the
// parent's anonymous page has no resident frame at fork time, the
// child gets an independent, lazily-faulted copy rather than sharing
// anything.
func TestForkNonResidentAnon(t *testing.T) {
	v, parent := mkTestAS(t, 8, 0)
	const va = 0x701000
	parent.Spt.Insert(mkAnonPage(va, true))

	child := MkAS(v, proc.MkThread(3))
	if err := parent.ForkCopy(child); err != 0 {
		t.Fatalf("fork copy failed: %v", err)
	}
	cp, ok := child.Spt.Find(va)
	if !ok {
		t.Fatalf("child missing page")
	}
	if cp.Frame != nil {
		t.Fatalf("child's copy of a non-resident page must not be resident")
	}
	if err := child.TryHandleFault(va, false, true); err != 0 {
		t.Fatalf("child claim of its own copy failed: %v", err)
	}
}

// TestForkFileBackedForcesClaim exercises spec.md §4.6's File case:
// file-backed pages are never shared across fork, and the child's
// copy is force-installed immediately rather than left lazy.
func TestForkFileBackedForcesClaim(t *testing.T) {
	v, parent := mkTestAS(t, 8, 0)
	content := make([]byte, mem.PGSIZE)
	content[0] = 'Z'
	file := fs.MkMemFile(content)

	const addr = 0x702000
	if _, err := parent.Mmap(addr, mem.PGSIZE, true, file, 0); err != 0 {
		t.Fatalf("mmap failed: %v", err)
	}
	// Realize the parent's page as File first: a still-Uninit page is
	// copied lazily, and only a realized file page is force-claimed.
	if err := parent.TryHandleFault(addr, false, true); err != 0 {
		t.Fatalf("parent claim of mmap'd page failed: %v", err)
	}

	child := MkAS(v, proc.MkThread(4))
	if err := parent.ForkCopy(child); err != 0 {
		t.Fatalf("fork copy failed: %v", err)
	}
	cp, ok := child.Spt.Find(addr)
	if !ok {
		t.Fatalf("child missing mmap'd page")
	}
	if cp.Frame == nil {
		t.Fatalf("child's file-backed page should be force-claimed, not lazy")
	}
	kva := v.Phys.Page(cp.Frame.Pa)
	if kva[0] != 'Z' {
		t.Fatalf("child's forced claim read byte 0 = %q, want 'Z'", kva[0])
	}
}
