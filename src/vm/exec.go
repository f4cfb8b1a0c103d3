package vm

import "sync"

import "defs"
import "fdops"
import "loader"
import "mem"

// / execHold_t holds one deny_write on an executable's backing file
// / open for as long as any of its lazily-loaded segment pages still
// / reference it, releasing the hold the moment the last one is
// / realized or destroyed (spec.md §6 deny_write/allow_write;
// / SPEC_FULL.md "SUPPLEMENTED FEATURES").
type execHold_t struct {
	mu    sync.Mutex
	file  fdops.FileOps_i
	count int
}

func (h *execHold_t) release() {
	h.mu.Lock()
	h.count--
	done := h.count == 0
	h.mu.Unlock()
	if done {
		h.file.AllowWrite()
		h.file.Close()
	}
}

// / LoadExecutable installs one Uninit→Anon page per page-sized chunk
// / of every PT_LOAD segment of img, each with a lazy-loader closure
// / capturing (file, offset, read_bytes, zero_bytes, writable) — the
// / exec-segment case of spec.md §4.5. file is deny-written for the
// / lifetime of the mapping, released page by page as segments are
// / realized or torn down (spec.md §6).
func (as *AS_t) LoadExecutable(img *loader.Image_t, file fdops.FileOps_i) defs.Err_t {
	if len(img.Segments) == 0 {
		return 0
	}
	if err := file.DenyWrite(); err != 0 {
		return err
	}
	hold := &execHold_t{file: file, count: len(img.Segments)}
	// unheld drops the counts of segment i and every later segment,
	// none of which ended up with a page in the SPT.
	unheld := func(i int) {
		for ; i < len(img.Segments); i++ {
			hold.release()
		}
	}
	for i, seg := range img.Segments {
		fh, err := file.Duplicate()
		if err != 0 {
			unheld(i)
			return err
		}
		zeroBytes := mem.PGSIZE - seg.PageOff - seg.Filesz
		p := mkLazyAnonPageAt(seg.Va, fh, int(seg.FileOff), seg.Filesz, zeroBytes, seg.PageOff, seg.Writable)
		p.execRelease = hold.release
		if !as.Spt.Insert(p) {
			fh.Close()
			unheld(i)
			return -defs.EINVAL
		}
	}
	return 0
}
