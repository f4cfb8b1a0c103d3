// Package fs provides the minimal file abstraction the virtual memory
// subsystem mmaps and lazily loads executable segments from. It keeps
// file content in memory, optionally mirrored to a sector disk, rather
// than implementing inodes, directories or a log — those are out of
// scope for the VM subsystem this package backs.
package fs

import "sync"

import "defs"
import "disk"
import "fdops"

// / Filesys_lock serializes operations that touch more than one
// / File_t's metadata at once (duplicate/reopen bookkeeping), the same
// / coarse-grained role biscuit's fs package gives a single filesystem
// / lock.
var Filesys_lock sync.Mutex

// / inode_t is the shared, refcounted backing store for one file's
// / content. Every File_t handle returned by Duplicate/Reopen points at
// / the same inode_t, so writes through one handle are visible through
// / all of them, matching POSIX file-description semantics.
type inode_t struct {
	sync.Mutex
	data    []uint8
	disk    disk.Disk_i
	secbase int // first sector backing this file, if disk != nil
	refs    int
	denyw   int
}

// / File_t is a single open handle onto an inode_t, implementing
// / fdops.FileOps_i. Multiple File_t's may share one inode_t (via
// / Duplicate, used by fork, or Reopen).
type File_t struct {
	ino *inode_t
}

// / MkMemFile creates a new in-memory file with the given initial
// / content. The returned File_t owns the only reference.
func MkMemFile(content []uint8) *File_t {
	buf := make([]uint8, len(content))
	copy(buf, content)
	return &File_t{ino: &inode_t{data: buf, refs: 1}}
}

// / MkDiskFile creates a file whose content is mirrored to sectors
// / [secbase, secbase+...) of d, with an initial length of n bytes.
// / Used to back the executable whose segments are lazily loaded
// / (spec.md §4.3) and whose pages are written back on eviction and
// / munmap (spec.md §4.5).
func MkDiskFile(d disk.Disk_i, secbase int, n int) *File_t {
	ino := &inode_t{disk: d, secbase: secbase, refs: 1}
	ino.data = make([]uint8, n)
	if d != nil {
		ino.readThrough()
	}
	return &File_t{ino: ino}
}

func (ino *inode_t) readThrough() {
	var buf [disk.SectorSize]uint8
	for off := 0; off < len(ino.data); off += disk.SectorSize {
		sec := ino.secbase + off/disk.SectorSize
		if disk.ReadSector(ino.disk, sec, &buf) != 0 {
			return
		}
		n := copy(ino.data[off:], buf[:])
		_ = n
	}
}

func (ino *inode_t) writeThrough() defs.Err_t {
	if ino.disk == nil {
		return 0
	}
	var buf [disk.SectorSize]uint8
	for off := 0; off < len(ino.data); off += disk.SectorSize {
		buf = [disk.SectorSize]uint8{}
		copy(buf[:], ino.data[off:])
		sec := ino.secbase + off/disk.SectorSize
		if err := disk.WriteSector(ino.disk, sec, &buf); err != 0 {
			return err
		}
	}
	return 0
}

// / ReadAt implements fdops.FileOps_i.
func (f *File_t) ReadAt(buf []uint8, off int) (int, defs.Err_t) {
	ino := f.ino
	ino.Lock()
	defer ino.Unlock()

	if off < 0 {
		return 0, -defs.EINVAL
	}
	if off >= len(ino.data) {
		return 0, 0
	}
	n := copy(buf, ino.data[off:])
	return n, 0
}

// / WriteAt implements fdops.FileOps_i, growing the file if the write
// / extends past its current length. mmap write-back of a partial
// / trailing page never grows the file: it writes only read_bytes,
// / which end at the file's length, so zero padding is not appended.
func (f *File_t) WriteAt(buf []uint8, off int) (int, defs.Err_t) {
	ino := f.ino
	ino.Lock()
	defer ino.Unlock()

	if off < 0 {
		return 0, -defs.EINVAL
	}
	if ino.denyw > 0 {
		return 0, -defs.EINVAL
	}
	end := off + len(buf)
	if end > len(ino.data) {
		grown := make([]uint8, end)
		copy(grown, ino.data)
		ino.data = grown
	}
	n := copy(ino.data[off:], buf)
	if err := ino.writeThrough(); err != 0 {
		return n, err
	}
	return n, 0
}

// / Size implements fdops.FileOps_i.
func (f *File_t) Size() (int, defs.Err_t) {
	ino := f.ino
	ino.Lock()
	defer ino.Unlock()
	return len(ino.data), 0
}

// / Reopen implements fdops.FileOps_i, returning a handle sharing this
// / file's inode_t.
func (f *File_t) Reopen() (fdops.FileOps_i, defs.Err_t) {
	return f.Duplicate()
}

// / Duplicate implements fdops.FileOps_i.
func (f *File_t) Duplicate() (fdops.FileOps_i, defs.Err_t) {
	Filesys_lock.Lock()
	defer Filesys_lock.Unlock()

	f.ino.refs++
	return &File_t{ino: f.ino}, 0
}

// / Close implements fdops.FileOps_i. The backing inode_t's content is
// / kept alive until every handle (the original plus every
// / Duplicate/Reopen) has closed.
func (f *File_t) Close() defs.Err_t {
	Filesys_lock.Lock()
	defer Filesys_lock.Unlock()

	f.ino.refs--
	if f.ino.refs < 0 {
		panic("close of already-closed file")
	}
	return 0
}

// / DenyWrite implements fdops.FileOps_i.
func (f *File_t) DenyWrite() defs.Err_t {
	ino := f.ino
	ino.Lock()
	defer ino.Unlock()
	ino.denyw++
	return 0
}

// / AllowWrite implements fdops.FileOps_i.
func (f *File_t) AllowWrite() defs.Err_t {
	ino := f.ino
	ino.Lock()
	defer ino.Unlock()
	if ino.denyw <= 0 {
		panic("allow_write without matching deny_write")
	}
	ino.denyw--
	return 0
}
