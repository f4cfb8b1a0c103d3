// Package loader splits an ELF executable's loadable segments into
// page-sized chunks so the virtual memory subsystem can register them
// as lazily-loaded pages instead of reading the whole binary into
// memory at exec time, the same job biscuit's chentry command uses
// debug/elf to do to an ELF header at build time.
package loader

import "debug/elf"
import "io"

import "defs"
import "mem"

// / Segment_t describes one page's worth of a PT_LOAD segment: where it
// / belongs in the address space, how many of its bytes come from the
// / file (the rest, up to PGSIZE, are zero), and the segment's
// / permissions.
type Segment_t struct {
	// Va is the page-aligned virtual address of the chunk (always a
	// multiple of PGSIZE, even when the segment itself starts or ends
	// mid-page).
	Va uintptr
	// PageOff is the byte offset within the page at which file content
	// begins; nonzero only for a segment's first chunk when the
	// segment's p_vaddr is not itself page-aligned. Bytes before it are
	// zero-filled.
	PageOff  int
	FileOff  int64
	Filesz   int
	Writable bool

	// Executable is the segment's PF_X bit, carried through for callers
	// that want to validate an entry point lands in an executable
	// segment.
	Executable bool
}

// / Image_t is an ELF executable split into page-aligned, lazily
// / loadable chunks.
type Image_t struct {
	Entry    uintptr
	Segments []Segment_t
}

// / chkELF validates that f looks like an executable this kernel can
// / run, mirroring chentry's header checks.
func chkELF(eh *elf.FileHeader) defs.Err_t {
	if eh.Class != elf.ELFCLASS64 {
		return -defs.EINVAL
	}
	if eh.Data != elf.ELFDATA2LSB {
		return -defs.EINVAL
	}
	if eh.Type != elf.ET_EXEC && eh.Type != elf.ET_DYN {
		return -defs.EINVAL
	}
	if eh.Machine != elf.EM_X86_64 {
		return -defs.EINVAL
	}
	return 0
}

// / Load parses an ELF executable and returns its lazily-loadable
// / image. r must support ReaderAt (a regular file does); only PT_LOAD
// / segments are considered, one Segment_t per page they span.
func Load(r io.ReaderAt) (*Image_t, defs.Err_t) {
	ef, err := elf.NewFile(r)
	if err != nil {
		return nil, -defs.EINVAL
	}
	if rerr := chkELF(&ef.FileHeader); rerr != 0 {
		return nil, rerr
	}

	img := &Image_t{Entry: uintptr(ef.Entry)}
	for _, prog := range ef.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		segs, rerr := splitSegment(prog)
		if rerr != 0 {
			return nil, rerr
		}
		img.Segments = append(img.Segments, segs...)
	}
	return img, 0
}

// / splitSegment breaks one PT_LOAD program header into page-sized
// / chunks. A segment's Memsz may exceed its Filesz (the remainder is
// / .bss, backed by zero pages); a segment's start or end may fall
// / mid-page, in which case that chunk's Filesz is less than a full
// / page and the lazily-faulted-in page is zero-padded past it, per
// / spec.md §4.3's lazy-load semantics.
func splitSegment(prog *elf.Prog) ([]Segment_t, defs.Err_t) {
	if prog.Memsz == 0 {
		return nil, 0
	}
	va := uintptr(prog.Vaddr)
	base := va & mem.PGMASK
	writable := prog.Flags&elf.PF_W != 0
	executable := prog.Flags&elf.PF_X != 0

	var segs []Segment_t
	pgva := base
	for pgva < va+uintptr(prog.Memsz) {
		segStart := pgva
		if segStart < va {
			segStart = va
		}
		fileEnd := va + uintptr(prog.Filesz)
		pgEnd := pgva + uintptr(mem.PGSIZE)

		var filesz int
		var fileoff int64
		if segStart < fileEnd {
			end := fileEnd
			if pgEnd < end {
				end = pgEnd
			}
			filesz = int(end - segStart)
			fileoff = int64(prog.Off) + int64(segStart-va)
		}
		segs = append(segs, Segment_t{
			// The chunk's SPT entry is keyed by the page-aligned
			// address; PageOff records where within that page the
			// segment's own (possibly mid-page) start falls.
			Va:         pgva,
			PageOff:    int(segStart - pgva),
			FileOff:    fileoff,
			Filesz:     filesz,
			Writable:   writable,
			Executable: executable,
		})
		pgva += uintptr(mem.PGSIZE)
	}
	return segs, 0
}
