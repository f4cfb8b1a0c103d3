package vm

import "testing"

// TestSwapRoundTrip exercises spec.md §8 scenario 2: with a frame pool
// smaller than the number of resident anonymous pages, eviction pushes
// the oldest page to swap; faulting on it again must read back exactly
// what was written, and exactly one swap slot should be occupied at a
// time.
func TestSwapRoundTrip(t *testing.T) {
	v, as := mkTestAS(t, 2, 64) // 2 frames, 64 sectors = 8 swap slots

	vas := []uintptr{0x500000, 0x501000, 0x502000}
	patterns := []byte{0xaa, 0xbb, 0xcc}

	for i, va := range vas {
		p := mkAnonPage(va, true)
		if !as.Spt.Insert(p) {
			t.Fatalf("insert %d failed", i)
		}
	}

	// Claim and fill the first two: the pool now holds exactly these
	// two frames.
	for i := 0; i < 2; i++ {
		if err := as.TryHandleFault(vas[i], false, true); err != 0 {
			t.Fatalf("claim %d failed: %v", i, err)
		}
		p, _ := as.Spt.Find(vas[i])
		fillPage(t, v, p, patterns[i])
	}

	// Claiming the third forces eviction of the first (FIFO front).
	if err := as.TryHandleFault(vas[2], false, true); err != 0 {
		t.Fatalf("claim 2 failed: %v", err)
	}
	p2, _ := as.Spt.Find(vas[2])
	fillPage(t, v, p2, patterns[2])

	if got := v.SwapBits.Used(); got != 1 {
		t.Fatalf("swap slots used = %d, want 1", got)
	}
	if got := v.St.Evictions.Get(); got != 1 {
		t.Fatalf("evictions = %d, want 1", got)
	}
	if got := v.St.SwapOuts.Get(); got != 1 {
		t.Fatalf("swap-outs = %d, want 1", got)
	}

	p0, ok := as.Spt.Find(vas[0])
	if !ok {
		t.Fatalf("page 0 missing from SPT after eviction")
	}
	if p0.Frame != nil {
		t.Fatalf("evicted page still has a resident frame")
	}

	// Refaulting page 0 evicts page 1 (now the FIFO front) and must
	// read back page 0's original pattern.
	if err := as.TryHandleFault(vas[0], false, true); err != 0 {
		t.Fatalf("refault of evicted page failed: %v", err)
	}
	p0, _ = as.Spt.Find(vas[0])
	checkPage(t, v, p0, patterns[0])

	if got := v.SwapBits.Used(); got != 1 {
		t.Fatalf("swap slots used after refault = %d, want 1 (page 1 now out)", got)
	}
	if got := v.St.SwapIns.Get(); got != 1 {
		t.Fatalf("swap-ins = %d, want 1", got)
	}
	if got := v.St.Evictions.Get(); got != 2 {
		t.Fatalf("evictions after refault = %d, want 2", got)
	}

	p1, ok := as.Spt.Find(vas[1])
	if !ok || p1.Frame != nil {
		t.Fatalf("page 1 should now be the one resident in swap")
	}
}
