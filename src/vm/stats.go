package vm

import "caller"
import "stats"

// / VMStats_t counts rare-enough-to-matter VM events: how often the
// / fault handler ran and what it did, how often eviction ran, and how
// / much swap traffic resulted. Tests assert against these directly
// / (spec.md §8 scenario 2's "exactly one slot used").
type VMStats_t struct {
	Faults    stats.Counter_t
	Claims    stats.Counter_t
	Evictions stats.Counter_t
	SwapIns   stats.Counter_t
	SwapOuts  stats.Counter_t
	CowBreaks stats.Counter_t
	CowShares stats.Counter_t
}

// / String renders the counters as a multi-line report.
func (s *VMStats_t) String() string {
	return stats.Stats2String(*s)
}

// / panicDC dedups repeated panic sites so a tight fault loop hitting
// / the same invariant violation doesn't flood the log with identical
// / stack traces (only the first occurrence of each distinct call chain
// / is dumped).
var panicDC = &caller.Distinct_caller_t{Enabled: true}

// / invariant panics with msg, first dumping the call stack if this is
// / the first time this particular call chain has hit it.
func invariant(msg string) {
	if new, trace := panicDC.Distinct(); new {
		caller.Callerdump(2)
		panic(msg + "\n" + trace)
	}
	panic(msg)
}
