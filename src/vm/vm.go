// Package vm implements the virtual-memory subsystem: supplemental
// page tables, frame eviction, anonymous swap, file-backed mmap, lazy
// executable loading, stack growth, and copy-on-write fork.
package vm

import "disk"
import "mem"

// / USER_STACK is the virtual address one past the top of every
// / process's stack; stacks grow down from here.
const USER_STACK = 0x0000_7fff_ffff_f000

// / STACK_LIMIT bounds how far a stack may automatically grow
// / (spec.md §4.4): 1 MiB.
const STACK_LIMIT = 1 << 20

// / USERMIN is the lowest valid user virtual address; anything below it
// / is never a legitimate fault (spec.md §4.4, first row of the
// / decision table).
const USERMIN = 1 << 20

// / VM_t holds the kernel-wide state shared by every process's address
// / space: the physical frame pool, the swap disk, the frame table and
// / the swap bitmap (spec.md §3, §9 "Global state").
type VM_t struct {
	Phys mem.Page_i
	Swap disk.Disk_i

	Frames   *FrameTable_t
	SwapBits *SwapTable_t

	St VMStats_t
}

// / MkVM initializes VM-wide state at kernel bring-up: the frame table
// / starts empty, and the swap bitmap is sized from the swap disk's
// / capacity (disk_size / 8 bits, all clear), per spec.md §6.
func MkVM(phys mem.Page_i, swapDisk disk.Disk_i) *VM_t {
	v := &VM_t{Phys: phys, Swap: swapDisk}
	v.Frames = mkFrameTable()
	nslots := 0
	if swapDisk != nil {
		nslots = swapDisk.Size() / disk.SectorsPerSlot
	}
	v.SwapBits = mkSwapTable(nslots)
	return v
}
