package vm

import "sync"

import "defs"
import "disk"
import "limits"
import "mem"

// / SwapTable_t is the kernel-wide bitmap of swap slots, one bit per
// / slot, one slot = 8 sectors = one page (spec.md §3, §6). Bit clear
// / means free. avail mirrors the free-bit count in a
// / limits.Sysatomic_t so alloc can fail fast on an exhausted disk
// / without scanning the whole bitmap under lock.
type SwapTable_t struct {
	sync.Mutex
	bits  []bool
	avail limits.Sysatomic_t
}

func mkSwapTable(nslots int) *SwapTable_t {
	st := &SwapTable_t{bits: make([]bool, nslots)}
	st.avail.Given(uint(nslots))
	return st
}

// / alloc scans for a free slot and atomically claims it (spec.md
// / §4.1's "scan the swap bitmap for a free slot and atomically flip
// / it"). Fails if none is free.
func (st *SwapTable_t) alloc() (int, defs.Err_t) {
	if !st.avail.Take() {
		return 0, -defs.ENOSPC
	}
	st.Lock()
	defer st.Unlock()
	for i, used := range st.bits {
		if !used {
			st.bits[i] = true
			return i, 0
		}
	}
	invariant("swap avail counter out of sync with bitmap")
	return 0, -defs.ENOSPC
}

// / free clears a slot's bit.
func (st *SwapTable_t) free(slot int) {
	st.Lock()
	defer st.Unlock()
	if slot < 0 || slot >= len(st.bits) {
		invariant("bad swap slot")
	}
	if !st.bits[slot] {
		invariant("double free of swap slot")
	}
	st.bits[slot] = false
	st.avail.Give()
}

// / isSet reports a slot's bit.
func (st *SwapTable_t) isSet(slot int) bool {
	st.Lock()
	defer st.Unlock()
	return st.bits[slot]
}

// / Used returns the number of currently-occupied swap slots.
func (st *SwapTable_t) Used() int {
	st.Lock()
	defer st.Unlock()
	n := 0
	for _, b := range st.bits {
		if b {
			n++
		}
	}
	return n
}

// / readSlot reads slot's 8 sectors into kva.
func (st *SwapTable_t) readSlot(d disk.Disk_i, slot int, kva *mem.Bytepg_t) defs.Err_t {
	base := slot * disk.SectorsPerSlot
	for i := 0; i < disk.SectorsPerSlot; i++ {
		var buf [disk.SectorSize]uint8
		if err := disk.ReadSector(d, base+i, &buf); err != 0 {
			return err
		}
		copy(kva[i*disk.SectorSize:], buf[:])
	}
	return 0
}

// / writeSlot writes kva's 8 sectors to slot.
func (st *SwapTable_t) writeSlot(d disk.Disk_i, slot int, kva *mem.Bytepg_t) defs.Err_t {
	base := slot * disk.SectorsPerSlot
	for i := 0; i < disk.SectorsPerSlot; i++ {
		var buf [disk.SectorSize]uint8
		copy(buf[:], kva[i*disk.SectorSize:])
		if err := disk.WriteSector(d, base+i, &buf); err != 0 {
			return err
		}
	}
	return 0
}
