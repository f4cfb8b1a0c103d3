// Package fdops defines the narrow file interface the virtual memory
// subsystem needs from the filesystem: enough to back a memory-mapped
// region and page in lazily-loaded executable segments, without
// pulling in directories, inodes, or the rest of a real filesystem.
package fdops

import "defs"

// / FileOps_i is the file-backed collaborator of spec.md §6
// / (open/close/read_at/write_at/length/reopen/duplicate/deny_write/
// / allow_write). A Spt_t entry for a file-backed or lazily-loaded page
// / holds one of these rather than an *os.File directly, so the VM code
// / never depends on a concrete filesystem implementation.
type FileOps_i interface {
	// / ReadAt reads into buf starting at byte offset off, returning the
	// / number of bytes read (which is less than len(buf) only at EOF).
	ReadAt(buf []uint8, off int) (int, defs.Err_t)

	// / WriteAt writes buf at byte offset off, extending the file if
	// / necessary.
	WriteAt(buf []uint8, off int) (int, defs.Err_t)

	// / Size reports the file's current length in bytes.
	Size() (int, defs.Err_t)

	// / Reopen returns a fresh handle to the same underlying file, used
	// / when a page's backing file outlives the FileOps_i that was open
	// / at mmap time (e.g. forked children keep the mapping alive).
	Reopen() (FileOps_i, defs.Err_t)

	// / Duplicate returns a second handle sharing this file's identity
	// / and deny-write count, for fork.
	Duplicate() (FileOps_i, defs.Err_t)

	// / Close releases this handle. The underlying file is only
	// / actually freed once its last handle is closed.
	Close() defs.Err_t

	// / DenyWrite marks the file non-writable by other file descriptors,
	// / for the duration an executable's segments remain mapped
	// / (spec.md §4.3 Non-goals note this is enforced, not merely
	// / advisory).
	DenyWrite() defs.Err_t

	// / AllowWrite reverses one DenyWrite.
	AllowWrite() defs.Err_t
}
