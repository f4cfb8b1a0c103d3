package defs

// / Err_t is the kernel-wide error-code space. Zero means success;
// / negative values name a failure. Functions return Err_t instead of
// / Go's error so that failure paths match the teaching kernel's C
// / heritage: callers test `if err != 0` and propagate `-defs.EFOO`.
type Err_t int

const (
	/// EFAULT marks a bogus memory access: unmapped VA, write to a
	/// read-only page outside of copy-on-write, or access outside of
	/// user space.
	EFAULT Err_t = 14
	/// EINVAL marks invalid arguments, e.g. a misaligned or zero-length
	/// mmap request.
	EINVAL Err_t = 22
	/// ENOMEM marks failure to obtain a physical frame even after
	/// eviction was attempted.
	ENOMEM Err_t = 12
	/// ENOSPC marks a full swap bitmap: no free slot for swap_out.
	ENOSPC Err_t = 28
	/// EIO marks a short read/write against the swap disk or a
	/// backing file.
	EIO Err_t = 5
	/// ENAMETOOLONG marks an oversized name or region argument.
	ENAMETOOLONG Err_t = 36
	/// EEXIST marks an attempt to create something that already
	/// exists. The VM code does not return it: an SPT insertion at a VA
	/// that is already mapped, e.g. an overlapping mmap, is EINVAL.
	EEXIST Err_t = 17
)

// / Tid_t identifies a kernel thread (one thread per process in this
// / teaching kernel; no kernel-level multithreading within a process).
type Tid_t int
