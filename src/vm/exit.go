package vm

// / Kill tears down an address space at process exit: every page's
// / destroy runs (freeing swap slots, writing back dirty file pages,
// / dropping frame references), per spec.md §4.2's kill() and §3's
// / lifecycle description.
func (as *AS_t) Kill() {
	as.Spt.Kill()
}
