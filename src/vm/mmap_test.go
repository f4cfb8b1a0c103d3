package vm

import (
	"testing"

	"fs"
	"mem"
)

// TestMmapDirtyWriteback exercises spec.md §8 scenario 3: a one-page
// mmap of a file whose first byte is 'A', written to 'B' at offset 0,
// must be reflected in the file after munmap.
func TestMmapDirtyWriteback(t *testing.T) {
	_, as := mkTestAS(t, 4, 0)

	content := make([]byte, mem.PGSIZE)
	content[0] = 'A'
	file := fs.MkMemFile(content)

	const addr = 0x600000
	got, err := as.Mmap(addr, mem.PGSIZE, true, file, 0)
	if err != 0 || got != addr {
		t.Fatalf("mmap failed: addr=%#x err=%v", got, err)
	}

	if err := as.TryHandleFault(addr, false, true); err != 0 {
		t.Fatalf("claim of mmap'd page failed: %v", err)
	}
	p, ok := as.Spt.Find(addr)
	if !ok {
		t.Fatalf("mmap page missing from SPT")
	}
	if p.Flavor != FlavorFile {
		t.Fatalf("flavor after realization = %v, want file", p.Flavor)
	}

	kva := as.Spt.vm.Phys.Page(p.Frame.Pa)
	kva[0] = 'B'
	as.Spt.Pml4.SetDirty(addr)

	if err := as.Munmap(addr); err != 0 {
		t.Fatalf("munmap failed: %v", err)
	}
	if _, ok := as.Spt.Find(addr); ok {
		t.Fatalf("mmap page still present in SPT after munmap")
	}
	if _, ok := as.Spt.Pml4.GetPage(addr); ok {
		t.Fatalf("hardware mapping still present after munmap")
	}

	n, rerr := file.Size()
	if rerr != 0 {
		t.Fatalf("size after munmap: %v", rerr)
	}
	if n != mem.PGSIZE {
		t.Fatalf("file shrank after munmap: size = %d", n)
	}
	buf := make([]byte, 1)
	if _, rerr := file.ReadAt(buf, 0); rerr != 0 {
		t.Fatalf("read back byte 0: %v", rerr)
	}
	if buf[0] != 'B' {
		t.Fatalf("byte 0 after munmap = %q, want 'B'", buf[0])
	}
}

// TestMunmapTrailingZeroNeverWritten exercises spec.md §8 scenario 6: a
// mapping that extends past EOF must never write its zero-padded tail
// back to the file, even if that tail is dirtied in memory.
func TestMunmapTrailingZeroNeverWritten(t *testing.T) {
	_, as := mkTestAS(t, 4, 0)

	const fileLen = 100
	file := fs.MkMemFile(make([]byte, fileLen))

	const addr = 0x601000
	got, err := as.Mmap(addr, mem.PGSIZE, true, file, 0)
	if err != 0 || got != addr {
		t.Fatalf("mmap failed: addr=%#x err=%v", got, err)
	}

	if err := as.TryHandleFault(addr, false, true); err != 0 {
		t.Fatalf("claim failed: %v", err)
	}
	p, _ := as.Spt.Find(addr)
	if p.readBytes != fileLen {
		t.Fatalf("readBytes = %d, want %d", p.readBytes, fileLen)
	}

	kva := as.Spt.vm.Phys.Page(p.Frame.Pa)
	for i := mem.PGSIZE - 10; i < mem.PGSIZE; i++ {
		kva[i] = 0x42
	}
	as.Spt.Pml4.SetDirty(addr)

	if err := as.Munmap(addr); err != 0 {
		t.Fatalf("munmap failed: %v", err)
	}

	n, rerr := file.Size()
	if rerr != 0 {
		t.Fatalf("size: %v", rerr)
	}
	if n != fileLen {
		t.Fatalf("file length after munmap = %d, want %d (zero padding must not be written back)", n, fileLen)
	}
}

// TestMmapRejectsOverlap exercises spec.md §4.5's "no page within
// [addr, addr+length) may already have an SPT entry" constraint.
func TestMmapRejectsOverlap(t *testing.T) {
	_, as := mkTestAS(t, 4, 0)
	const addr = 0x602000
	as.Spt.Insert(mkAnonPage(addr, true))

	file := fs.MkMemFile(make([]byte, mem.PGSIZE))
	got, err := as.Mmap(addr, mem.PGSIZE, true, file, 0)
	if err == 0 || got != MAP_FAILED {
		t.Fatalf("expected MAP_FAILED on overlap, got addr=%#x err=%v", got, err)
	}
}

// TestMmapRejectsBadArgs exercises spec.md §7 kind 5: misaligned
// address, zero length, and an empty file are all rejected without
// side effects.
func TestMmapRejectsBadArgs(t *testing.T) {
	_, as := mkTestAS(t, 4, 0)
	file := fs.MkMemFile(make([]byte, mem.PGSIZE))

	if _, err := as.Mmap(1, mem.PGSIZE, true, file, 0); err == 0 {
		t.Fatalf("expected failure on misaligned addr")
	}
	if _, err := as.Mmap(0x603000, 0, true, file, 0); err == 0 {
		t.Fatalf("expected failure on zero length")
	}
	empty := fs.MkMemFile(nil)
	if _, err := as.Mmap(0x604000, mem.PGSIZE, true, empty, 0); err == 0 {
		t.Fatalf("expected failure on empty file")
	}
}
